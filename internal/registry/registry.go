// Package registry хранит все, что сейчас известно о воздушном пространстве:
// историю ситуаций и parts по позывным и станции УВД.
//
// Каждая таблица (ситуации, parts, УВД) защищена своим RWMutex. Блокировки
// держатся только на время изменения карты; watchdog, сигналы и логи
// вызываются после освобождения блокировки.
package registry

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/flybeeper/fsd-airspace/internal/clock"
	"github.com/flybeeper/fsd-airspace/internal/metrics"
	"github.com/flybeeper/fsd-airspace/internal/models"
	"github.com/flybeeper/fsd-airspace/internal/signal"
	"github.com/flybeeper/fsd-airspace/pkg/utils"
)

// Config ограничения истории
type Config struct {
	MaxSituations      int
	SituationRetention time.Duration
	MaxParts           int
	PartsRetention     time.Duration
}

// DefaultConfig значения по умолчанию
func DefaultConfig() Config {
	return Config{
		MaxSituations:      6,
		SituationRetention: 30 * time.Second,
		MaxParts:           20,
		PartsRetention:     60 * time.Second,
	}
}

type aircraftEntry struct {
	situations  []models.AircraftSituation // по возрастанию времени
	transponder models.Transponder
	enabled     bool
	firstSeen   time.Time
	lastUpdate  time.Time
}

type partsEntry struct {
	// baseline свертка вытесненных из истории parts
	baseline     *models.AircraftParts
	history      []models.AircraftParts // по возрастанию времени
	supported    bool
	supportKnown bool
}

type atcEntry struct {
	station   models.AtcStation
	firstSeen time.Time
}

// AircraftInfo сводка по одному судну
type AircraftInfo struct {
	Callsign        models.Callsign          `json:"callsign"`
	Latest          models.AircraftSituation `json:"latest"`
	SituationsCount int                      `json:"situations_count"`
	Transponder     models.Transponder       `json:"transponder"`
	Enabled         bool                     `json:"enabled"`
	FirstSeen       time.Time                `json:"first_seen"`
	LastUpdate      time.Time                `json:"last_update"`
}

// InRangeAircraft судно в зоне видимости с дистанцией до собственной позиции
type InRangeAircraft struct {
	Callsign    models.Callsign
	Latest      models.AircraftSituation
	Transponder models.Transponder
	DistanceNM  float64
	Enabled     bool
}

// Registry авторитетное хранилище состояния воздушного пространства
type Registry struct {
	cfg     Config
	clock   clock.Clock
	logger  *utils.Logger
	tracker Tracker
	rng     *RangeFilter

	aircraftMu sync.RWMutex
	aircraft   map[models.Callsign]*aircraftEntry

	partsMu sync.RWMutex
	parts   map[models.Callsign]*partsEntry

	atcMu sync.RWMutex
	atc   map[models.Callsign]*atcEntry

	connected atomic.Bool

	// AircraftAdded первое появление позывного
	AircraftAdded signal.Signal[models.Callsign]
	// SituationsChanged новая ситуация для позывного
	SituationsChanged signal.Signal[models.Callsign]
	// AtcChanged станция добавлена, обновлена или ушла из сети
	AtcChanged signal.Signal[models.AtcStation]
	// SessionEnded судно удалено или станция ушла из сети
	SessionEnded signal.Signal[models.SessionRecord]
}

// New создает реестр. tracker может быть nil.
func New(cfg Config, rng *RangeFilter, tracker Tracker, clk clock.Clock, logger *utils.Logger) (*Registry, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	if rng == nil {
		return nil, fmt.Errorf("range filter cannot be nil")
	}
	if cfg.MaxSituations < 1 || cfg.MaxParts < 1 {
		return nil, fmt.Errorf("history limits must be positive: situations=%d parts=%d", cfg.MaxSituations, cfg.MaxParts)
	}
	if tracker == nil {
		tracker = noopTracker{}
	}
	if clk == nil {
		clk = clock.System{}
	}

	return &Registry{
		cfg:      cfg,
		clock:    clk,
		logger:   logger.WithComponent("registry"),
		tracker:  tracker,
		rng:      rng,
		aircraft: make(map[models.Callsign]*aircraftEntry),
		parts:    make(map[models.Callsign]*partsEntry),
		atc:      make(map[models.Callsign]*atcEntry),
	}, nil
}

// Range фильтр зоны видимости
func (r *Registry) Range() *RangeFilter { return r.rng }

// AddOrUpdateSituation вставляет ситуацию в историю позывного по времени.
// Ситуация с уже известным временем заменяет прежнюю. Опоздавшие пакеты
// встают на свое место, а не в конец.
func (r *Registry) AddOrUpdateSituation(s models.AircraftSituation) bool {
	s.Callsign = models.NewCallsign(string(s.Callsign))
	if s.Callsign.IsEmpty() || s.Timestamp.IsZero() {
		return false
	}
	now := r.clock.Now()

	r.aircraftMu.Lock()
	e, exists := r.aircraft[s.Callsign]
	if !exists {
		e = &aircraftEntry{enabled: true, firstSeen: now}
		r.aircraft[s.Callsign] = e
	}
	e.situations = insertSituation(e.situations, s)
	e.situations = pruneSituations(e.situations, r.cfg.SituationRetention, r.cfg.MaxSituations)
	e.lastUpdate = now
	total := len(r.aircraft)
	r.aircraftMu.Unlock()

	r.tracker.TouchAircraft(s.Callsign)
	if !exists {
		metrics.AircraftTracked.Set(float64(total))
		r.logger.WithField("callsign", s.Callsign).Debug("Aircraft added")
		r.AircraftAdded.Emit(s.Callsign)
	}
	r.SituationsChanged.Emit(s.Callsign)
	return true
}

func insertSituation(list []models.AircraftSituation, s models.AircraftSituation) []models.AircraftSituation {
	i := sort.Search(len(list), func(i int) bool { return !list[i].Timestamp.Before(s.Timestamp) })
	if i < len(list) && list[i].Timestamp.Equal(s.Timestamp) {
		list[i] = s
		return list
	}
	list = append(list, models.AircraftSituation{})
	copy(list[i+1:], list[i:])
	list[i] = s
	return list
}

// pruneSituations удаляет ситуации старше retention относительно самой новой
// и ограничивает историю maxCount последними
func pruneSituations(list []models.AircraftSituation, retention time.Duration, maxCount int) []models.AircraftSituation {
	if len(list) == 0 {
		return list
	}
	start := 0
	if retention > 0 {
		cutoff := list[len(list)-1].Timestamp.Add(-retention)
		start = sort.Search(len(list), func(i int) bool { return !list[i].Timestamp.Before(cutoff) })
	}
	if len(list)-start > maxCount {
		start = len(list) - maxCount
	}
	if start == 0 {
		return list
	}
	out := make([]models.AircraftSituation, len(list)-start, maxCount+1)
	copy(out, list[start:])
	return out
}

// UpdateTransponder сохраняет транспондер известного судна
func (r *Registry) UpdateTransponder(cs models.Callsign, t models.Transponder) bool {
	r.aircraftMu.Lock()
	defer r.aircraftMu.Unlock()

	e, ok := r.aircraft[cs]
	if !ok {
		return false
	}
	e.transponder = t
	return true
}

// AddOrUpdateParts добавляет parts в историю. Полный снимок (incremental=false)
// становится новой базой интерпретации, инкрементальные накладываются по порядку.
// Получение parts означает, что позывной их поддерживает.
func (r *Registry) AddOrUpdateParts(cs models.Callsign, p models.AircraftParts, incremental bool) bool {
	cs = models.NewCallsign(string(cs))
	if cs.IsEmpty() || p.Timestamp.IsZero() {
		return false
	}
	p = p.Clone()
	p.Incremental = incremental
	if !incremental {
		p.Fields = models.PartsFieldAll
	}

	r.partsMu.Lock()
	e, ok := r.parts[cs]
	if !ok {
		e = &partsEntry{}
		r.parts[cs] = e
	}
	e.supported, e.supportKnown = true, true
	e.history = insertParts(e.history, p)
	e.pruneLocked(r.cfg.PartsRetention, r.cfg.MaxParts)
	r.partsMu.Unlock()

	r.tracker.TouchAircraft(cs)
	return true
}

func insertParts(list []models.AircraftParts, p models.AircraftParts) []models.AircraftParts {
	// Равные метки времени: новые встают после прежних, порядок поступления сохраняется
	i := sort.Search(len(list), func(i int) bool { return list[i].Timestamp.After(p.Timestamp) })
	list = append(list, models.AircraftParts{})
	copy(list[i+1:], list[i:])
	list[i] = p
	return list
}

// pruneLocked сворачивает вытесняемые parts в baseline, чтобы инкрементальные
// обновления после них оставались интерпретируемыми
func (e *partsEntry) pruneLocked(retention time.Duration, maxCount int) {
	if len(e.history) == 0 {
		return
	}
	drop := 0
	if retention > 0 {
		cutoff := e.history[len(e.history)-1].Timestamp.Add(-retention)
		drop = sort.Search(len(e.history), func(i int) bool { return !e.history[i].Timestamp.Before(cutoff) })
	}
	if len(e.history)-drop > maxCount {
		drop = len(e.history) - maxCount
	}
	if drop == 0 {
		return
	}

	for _, p := range e.history[:drop] {
		if e.baseline == nil {
			folded := models.AircraftParts{}.Overlay(p)
			e.baseline = &folded
			continue
		}
		folded := e.baseline.Overlay(p)
		e.baseline = &folded
	}
	rest := make([]models.AircraftParts, len(e.history)-drop, maxCount+1)
	copy(rest, e.history[drop:])
	e.history = rest
}

// SetPartsSupported фиксирует, поддерживает ли позывной parts (ответ на запрос возможностей)
func (r *Registry) SetPartsSupported(cs models.Callsign, supported bool) {
	r.partsMu.Lock()
	defer r.partsMu.Unlock()

	e, ok := r.parts[cs]
	if !ok {
		e = &partsEntry{}
		r.parts[cs] = e
	}
	e.supported, e.supportKnown = supported, true
}

// RemoveAircraft явное удаление судна сетью
func (r *Registry) RemoveAircraft(cs models.Callsign) bool {
	return r.RemoveAircraftWithReason(cs, models.EndRemoved)
}

// RemoveAircraftWithReason удаляет судно, его parts и отметку watchdog.
// Удаление неизвестного позывного ничего не делает.
func (r *Registry) RemoveAircraftWithReason(cs models.Callsign, reason models.EndReason) bool {
	return r.removeAircraft(cs, reason, time.Time{})
}

// RemoveAircraftIfIdle удаляет судно по таймауту, только если после
// lastActivity от него не было позиций. Иначе судно остается и false.
func (r *Registry) RemoveAircraftIfIdle(cs models.Callsign, lastActivity time.Time) bool {
	return r.removeAircraft(cs, models.EndTimeout, lastActivity)
}

// removeAircraft с ненулевым idleSince пропускает судно, обновленное позже idleSince
func (r *Registry) removeAircraft(cs models.Callsign, reason models.EndReason, idleSince time.Time) bool {
	r.aircraftMu.Lock()
	e, ok := r.aircraft[cs]
	if ok && !idleSince.IsZero() && e.lastUpdate.After(idleSince) {
		r.aircraftMu.Unlock()
		r.logger.WithField("callsign", cs).Debug("Aircraft updated after timeout check, kept")
		return false
	}
	if ok {
		delete(r.aircraft, cs)
	}
	total := len(r.aircraft)
	r.aircraftMu.Unlock()

	r.partsMu.Lock()
	delete(r.parts, cs)
	r.partsMu.Unlock()

	if !ok {
		return false
	}

	if reason != models.EndTimeout {
		r.tracker.RemoveAircraft(cs)
	}
	metrics.AircraftTracked.Set(float64(total))

	r.logger.WithFields(map[string]interface{}{
		"callsign": cs,
		"reason":   reason,
	}).Debug("Aircraft removed")

	r.endSession(models.SessionRecord{
		Callsign:  cs,
		Kind:      models.KindAircraft,
		FirstSeen: e.firstSeen,
		LastSeen:  e.lastUpdate,
		EndReason: reason,
	})
	return true
}

func (r *Registry) endSession(rec models.SessionRecord) {
	metrics.SessionsEnded.WithLabelValues(string(rec.Kind), string(rec.EndReason)).Inc()
	r.SessionEnded.Emit(rec)
}

// EnableAircraft явно включает или выключает судно для отрисовки
func (r *Registry) EnableAircraft(cs models.Callsign, enabled bool) bool {
	r.aircraftMu.Lock()
	defer r.aircraftMu.Unlock()

	e, ok := r.aircraft[cs]
	if !ok || e.enabled == enabled {
		return false
	}
	e.enabled = enabled
	return true
}

// AddAtcStation добавляет или обновляет станцию УВД и отмечает ее активность
func (r *Registry) AddAtcStation(st models.AtcStation) bool {
	st.Callsign = models.NewCallsign(string(st.Callsign))
	if st.Callsign.IsEmpty() {
		return false
	}
	now := r.clock.Now()
	st.Online = true
	st.LastUpdate = now

	r.atcMu.Lock()
	e, ok := r.atc[st.Callsign]
	if ok {
		// станция вернулась после таймаута: новая сессия
		if !e.station.Online {
			e.firstSeen = now
		}
		e.station = e.station.MergeFrom(st)
	} else {
		e = &atcEntry{station: st, firstSeen: now}
		r.atc[st.Callsign] = e
	}
	station := e.station
	online := r.countOnlineLocked()
	r.atcMu.Unlock()

	r.tracker.TouchAtc(st.Callsign)
	metrics.AtcOnline.Set(float64(online))
	r.AtcChanged.Emit(station)
	return true
}

// UpdateAtcText сохраняет ATIS/METAR известной станции
func (r *Registry) UpdateAtcText(cs models.Callsign, atis, metar string) bool {
	r.atcMu.Lock()
	e, ok := r.atc[cs]
	if ok {
		if atis != "" {
			e.station.Atis = atis
		}
		if metar != "" {
			e.station.Metar = metar
		}
	}
	var station models.AtcStation
	if ok {
		station = e.station
	}
	r.atcMu.Unlock()

	if ok {
		r.AtcChanged.Emit(station)
	}
	return ok
}

// RemoveAtcStation станция ушла из сети штатно
func (r *Registry) RemoveAtcStation(cs models.Callsign) bool {
	r.atcMu.Lock()
	e, ok := r.atc[cs]
	if ok {
		delete(r.atc, cs)
	}
	online := r.countOnlineLocked()
	r.atcMu.Unlock()

	if !ok {
		return false
	}
	r.tracker.RemoveAtc(cs)
	metrics.AtcOnline.Set(float64(online))

	station := e.station
	station.Online = false
	r.AtcChanged.Emit(station)
	if e.station.Online {
		r.endSession(models.SessionRecord{
			Callsign:  cs,
			Kind:      models.KindAtc,
			FirstSeen: e.firstSeen,
			LastSeen:  e.station.LastUpdate,
			EndReason: models.EndRemoved,
		})
	}
	return true
}

// SetAtcOffline помечает станцию как не в сети (таймаут watchdog).
// Запись остается, следующее обновление вернет станцию в сеть.
func (r *Registry) SetAtcOffline(cs models.Callsign) bool {
	return r.setAtcOffline(cs, time.Time{})
}

// SetAtcOfflineIfIdle как SetAtcOffline, но станция, обновленная после
// lastActivity, остается в сети
func (r *Registry) SetAtcOfflineIfIdle(cs models.Callsign, lastActivity time.Time) bool {
	return r.setAtcOffline(cs, lastActivity)
}

func (r *Registry) setAtcOffline(cs models.Callsign, idleSince time.Time) bool {
	r.atcMu.Lock()
	e, ok := r.atc[cs]
	if ok && !idleSince.IsZero() && e.station.LastUpdate.After(idleSince) {
		r.atcMu.Unlock()
		return false
	}
	wasOnline := ok && e.station.Online
	if wasOnline {
		e.station.Online = false
	}
	var station models.AtcStation
	if ok {
		station = e.station
	}
	online := r.countOnlineLocked()
	r.atcMu.Unlock()

	if !wasOnline {
		return false
	}
	metrics.AtcOnline.Set(float64(online))
	r.AtcChanged.Emit(station)
	r.endSession(models.SessionRecord{
		Callsign:  cs,
		Kind:      models.KindAtc,
		FirstSeen: e.firstSeen,
		LastSeen:  station.LastUpdate,
		EndReason: models.EndTimeout,
	})
	return true
}

func (r *Registry) countOnlineLocked() int {
	n := 0
	for _, e := range r.atc {
		if e.station.Online {
			n++
		}
	}
	return n
}

// SituationsFor копия истории ситуаций позывного по возрастанию времени
func (r *Registry) SituationsFor(cs models.Callsign) []models.AircraftSituation {
	r.aircraftMu.RLock()
	defer r.aircraftMu.RUnlock()

	e, ok := r.aircraft[cs]
	if !ok {
		return nil
	}
	out := make([]models.AircraftSituation, len(e.situations))
	copy(out, e.situations)
	return out
}

// LatestSituation самая новая ситуация позывного
func (r *Registry) LatestSituation(cs models.Callsign) (models.AircraftSituation, bool) {
	r.aircraftMu.RLock()
	defer r.aircraftMu.RUnlock()

	e, ok := r.aircraft[cs]
	if !ok || len(e.situations) == 0 {
		return models.AircraftSituation{}, false
	}
	return e.situations[len(e.situations)-1], true
}

// PartsBeforeTime parts с временем <= cutoff по возрастанию времени и статус поддержки.
// Parts, время которых еще не наступило, не возвращаются.
func (r *Registry) PartsBeforeTime(cs models.Callsign, cutoff time.Time) ([]models.AircraftParts, models.PartsStatus) {
	r.partsMu.RLock()
	defer r.partsMu.RUnlock()

	e, ok := r.parts[cs]
	if !ok {
		return nil, models.PartsStatus{}
	}
	status := models.PartsStatus{Supported: e.supported, SupportKnown: e.supportKnown}

	n := sort.Search(len(e.history), func(i int) bool { return e.history[i].Timestamp.After(cutoff) })
	if n == 0 {
		return nil, status
	}
	out := make([]models.AircraftParts, n)
	for i := 0; i < n; i++ {
		out[i] = e.history[i].Clone()
	}
	status.PartsCount = n
	return out, status
}

// ResolvedPartsAt итоговое состояние parts на момент cutoff: база плюс все
// обновления до cutoff, наложенные по порядку
func (r *Registry) ResolvedPartsAt(cs models.Callsign, cutoff time.Time) (models.AircraftParts, models.PartsStatus, bool) {
	r.partsMu.RLock()
	defer r.partsMu.RUnlock()

	e, ok := r.parts[cs]
	if !ok {
		return models.AircraftParts{}, models.PartsStatus{}, false
	}
	status := models.PartsStatus{Supported: e.supported, SupportKnown: e.supportKnown}

	var resolved models.AircraftParts
	have := false
	if e.baseline != nil && !e.baseline.Timestamp.After(cutoff) {
		resolved = e.baseline.Clone()
		have = true
	}
	for _, p := range e.history {
		if p.Timestamp.After(cutoff) {
			break
		}
		resolved = resolved.Overlay(p)
		status.PartsCount++
		have = true
	}
	return resolved, status, have
}

// AircraftInRange суда в зоне видимости, ближайшие первыми, при равной дистанции по позывному
func (r *Registry) AircraftInRange() []InRangeAircraft {
	r.aircraftMu.RLock()
	out := make([]InRangeAircraft, 0, len(r.aircraft))
	for cs, e := range r.aircraft {
		if len(e.situations) == 0 {
			continue
		}
		out = append(out, InRangeAircraft{
			Callsign:    cs,
			Latest:      e.situations[len(e.situations)-1],
			Transponder: e.transponder,
			Enabled:     e.enabled,
		})
	}
	r.aircraftMu.RUnlock()

	// Дистанции считаются вне блокировки реестра
	inRange := out[:0]
	for _, a := range out {
		d, ok := r.rng.Distance(a.Latest.Position)
		if !ok {
			continue
		}
		a.DistanceNM = d
		inRange = append(inRange, a)
	}

	sort.Slice(inRange, func(i, j int) bool {
		if inRange[i].DistanceNM != inRange[j].DistanceNM {
			return inRange[i].DistanceNM < inRange[j].DistanceNM
		}
		return inRange[i].Callsign < inRange[j].Callsign
	})
	return inRange
}

// Aircraft сводка по судну
func (r *Registry) Aircraft(cs models.Callsign) (AircraftInfo, bool) {
	r.aircraftMu.RLock()
	defer r.aircraftMu.RUnlock()

	e, ok := r.aircraft[cs]
	if !ok {
		return AircraftInfo{}, false
	}
	return e.info(cs), true
}

// AllAircraft сводки по всем судам, по позывному
func (r *Registry) AllAircraft() []AircraftInfo {
	r.aircraftMu.RLock()
	out := make([]AircraftInfo, 0, len(r.aircraft))
	for cs, e := range r.aircraft {
		out = append(out, e.info(cs))
	}
	r.aircraftMu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Callsign < out[j].Callsign })
	return out
}

func (e *aircraftEntry) info(cs models.Callsign) AircraftInfo {
	info := AircraftInfo{
		Callsign:        cs,
		SituationsCount: len(e.situations),
		Transponder:     e.transponder,
		Enabled:         e.enabled,
		FirstSeen:       e.firstSeen,
		LastUpdate:      e.lastUpdate,
	}
	if len(e.situations) > 0 {
		info.Latest = e.situations[len(e.situations)-1]
	}
	return info
}

// AtcStationsOnline станции в сети, по позывному
func (r *Registry) AtcStationsOnline() []models.AtcStation {
	r.atcMu.RLock()
	out := make([]models.AtcStation, 0, len(r.atc))
	for _, e := range r.atc {
		if e.station.Online {
			out = append(out, e.station)
		}
	}
	r.atcMu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Callsign < out[j].Callsign })
	return out
}

// AtcStation станция по позывному, включая ушедшие из сети по таймауту
func (r *Registry) AtcStation(cs models.Callsign) (models.AtcStation, bool) {
	r.atcMu.RLock()
	defer r.atcMu.RUnlock()

	e, ok := r.atc[cs]
	if !ok {
		return models.AtcStation{}, false
	}
	return e.station, true
}

// AircraftCount число судов
func (r *Registry) AircraftCount() int {
	r.aircraftMu.RLock()
	defer r.aircraftMu.RUnlock()
	return len(r.aircraft)
}

// AtcOnlineCount число станций в сети
func (r *Registry) AtcOnlineCount() int {
	r.atcMu.RLock()
	defer r.atcMu.RUnlock()
	return r.countOnlineLocked()
}

// HasAircraft известен ли позывной
func (r *Registry) HasAircraft(cs models.Callsign) bool {
	r.aircraftMu.RLock()
	defer r.aircraftMu.RUnlock()
	_, ok := r.aircraft[cs]
	return ok
}

// SetConnectionStatus обрабатывает смену состояния подключения.
// Переход в Disconnected очищает реестр и watchdog.
func (r *Registry) SetConnectionStatus(from, to models.ConnectionStatus) {
	r.connected.Store(to.IsConnected())
	metrics.NetworkConnected.Set(metrics.BoolGauge(to.IsConnected()))

	r.logger.WithFields(map[string]interface{}{
		"from": from.String(),
		"to":   to.String(),
	}).Info("Network connection status changed")

	if to == models.Disconnected && from != models.Disconnected {
		r.Clear(models.EndDisconnect)
	}
}

// IsConnected подключены ли к сети
func (r *Registry) IsConnected() bool {
	return r.connected.Load()
}

// Clear удаляет все суда и станции и сбрасывает watchdog
func (r *Registry) Clear(reason models.EndReason) {
	r.aircraftMu.Lock()
	aircraft := r.aircraft
	r.aircraft = make(map[models.Callsign]*aircraftEntry)
	r.aircraftMu.Unlock()

	r.partsMu.Lock()
	r.parts = make(map[models.Callsign]*partsEntry)
	r.partsMu.Unlock()

	r.atcMu.Lock()
	atc := r.atc
	r.atc = make(map[models.Callsign]*atcEntry)
	r.atcMu.Unlock()

	r.tracker.RemoveAll()
	metrics.AircraftTracked.Set(0)
	metrics.AtcOnline.Set(0)

	r.logger.WithFields(map[string]interface{}{
		"aircraft": len(aircraft),
		"atc":      len(atc),
		"reason":   reason,
	}).Info("Registry cleared")

	for cs, e := range aircraft {
		r.endSession(models.SessionRecord{
			Callsign: cs, Kind: models.KindAircraft,
			FirstSeen: e.firstSeen, LastSeen: e.lastUpdate, EndReason: reason,
		})
	}
	for cs, e := range atc {
		station := e.station
		wasOnline := station.Online
		station.Online = false
		r.AtcChanged.Emit(station)
		if wasOnline {
			r.endSession(models.SessionRecord{
				Callsign: cs, Kind: models.KindAtc,
				FirstSeen: e.firstSeen, LastSeen: station.LastUpdate, EndReason: reason,
			})
		}
	}
}
