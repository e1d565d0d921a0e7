package repository

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/flybeeper/fsd-airspace/internal/config"
	"github.com/flybeeper/fsd-airspace/internal/metrics"
	"github.com/flybeeper/fsd-airspace/internal/models"
	"github.com/flybeeper/fsd-airspace/pkg/utils"
)

const (
	// SnapshotKey последний снапшот в msgpack
	SnapshotKey = "airspace:snapshot"
	// AircraftGeoKey GEO индекс судов из последнего снапшота
	AircraftGeoKey = "airspace:aircraft:geo"
	// AtcKey хеш станций УВД: поле = позывной, значение = msgpack станции
	AtcKey = "airspace:atc"

	AircraftPrefix = "aircraft:" // aircraft:{callsign}
	StatsPrefix    = "stats:"    // stats:{metric}

	DefaultSnapshotTTL = 30 * time.Second

	// Redis GEO ограничение по широте
	maxGeoLatitude = 85.05112878

	geohashPrecision = 7
	kmPerNM          = 1.852
)

// AircraftRecord судно из GEO индекса
type AircraftRecord struct {
	Callsign    models.Callsign `json:"callsign"`
	Position    models.GeoPoint `json:"position"`
	Geohash     string          `json:"geohash"`
	Heading     float64         `json:"heading"`
	GroundSpeed float64         `json:"ground_speed"`
	Enabled     bool            `json:"enabled"`
	DistanceNM  float64         `json:"distance_nm"` // от центра запроса
}

// SnapshotStore хранит опубликованные снапшоты и станции в Redis.
// Local экземпляр пишет, Remote экземпляры читают.
type SnapshotStore struct {
	client *redis.Client
	logger *utils.Logger
	config *config.RedisConfig
	ttl    time.Duration
}

// NewSnapshotStore создает Redis хранилище снапшотов
func NewSnapshotStore(cfg *config.RedisConfig, logger *utils.Logger) (*SnapshotStore, error) {
	if cfg == nil {
		return nil, fmt.Errorf("redis config cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}

	opt, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	if cfg.Password != "" {
		opt.Password = cfg.Password
	}
	opt.DB = cfg.DB
	if cfg.PoolSize > 0 {
		opt.PoolSize = cfg.PoolSize
	}
	opt.MinIdleConns = cfg.MinIdleConns
	opt.ConnMaxIdleTime = 30 * time.Minute
	opt.DialTimeout = 10 * time.Second
	opt.ReadTimeout = 3 * time.Second
	opt.WriteTimeout = 3 * time.Second

	ttl := cfg.SnapshotTTL
	if ttl <= 0 {
		ttl = DefaultSnapshotTTL
	}

	return &SnapshotStore{
		client: redis.NewClient(opt),
		logger: logger.WithComponent("redis"),
		config: cfg,
		ttl:    ttl,
	}, nil
}

// Ping проверяет соединение с Redis
func (s *SnapshotStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		metrics.RedisConnectionStatus.Set(0)
		return fmt.Errorf("redis ping failed: %w", err)
	}
	metrics.RedisConnectionStatus.Set(1)
	return nil
}

// Close закрывает соединение с Redis
func (s *SnapshotStore) Close() error {
	return s.client.Close()
}

// Client Redis клиент для тестов и диагностики
func (s *SnapshotStore) Client() *redis.Client {
	return s.client
}

func validGeo(p models.GeoPoint) bool {
	return p.Latitude >= -maxGeoLatitude && p.Latitude <= maxGeoLatitude &&
		p.Longitude >= -180 && p.Longitude <= 180 &&
		!math.IsNaN(p.Latitude) && !math.IsNaN(p.Longitude)
}

// PublishSnapshot записывает снапшот и перестраивает GEO индекс одной транзакцией
func (s *SnapshotStore) PublishSnapshot(ctx context.Context, snap *models.AirspaceAircraftSnapshot) error {
	if snap == nil {
		return fmt.Errorf("snapshot cannot be nil")
	}
	start := time.Now()

	blob, err := msgpack.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, SnapshotKey, blob, s.ttl)
	pipe.Del(ctx, AircraftGeoKey)

	skipped := 0
	for _, a := range snap.Aircraft() {
		if !validGeo(a.Position) {
			skipped++
			continue
		}
		pipe.GeoAdd(ctx, AircraftGeoKey, &redis.GeoLocation{
			Name:      string(a.Callsign),
			Latitude:  a.Position.Latitude,
			Longitude: a.Position.Longitude,
		})

		key := AircraftPrefix + string(a.Callsign)
		pipe.HSet(ctx, key, map[string]interface{}{
			"geohash":      a.Position.Geohash(geohashPrecision),
			"altitude":     a.Position.Altitude,
			"heading":      a.Heading,
			"ground_speed": a.GroundSpeed,
			"enabled":      a.Enabled,
			"squawk":       a.Transponder.Code,
			"generation":   snap.Generation(),
		})
		pipe.Expire(ctx, key, s.ttl)
	}
	pipe.Expire(ctx, AircraftGeoKey, s.ttl)
	pipe.Incr(ctx, StatsPrefix+"snapshots:published")

	if _, err := pipe.Exec(ctx); err != nil {
		metrics.RedisOperationErrors.WithLabelValues("publish_snapshot").Inc()
		return fmt.Errorf("failed to publish snapshot: %w", err)
	}

	if skipped > 0 {
		s.logger.WithField("skipped", skipped).Warn("Skipping GEO indexing for aircraft outside Redis GEO range")
	}
	s.logger.WithFields(map[string]interface{}{
		"generation": snap.Generation(),
		"in_range":   snap.InRangeCount(),
		"enabled":    snap.EnabledCount(),
	}).Debug("Published snapshot to Redis")

	metrics.RedisOperationDuration.WithLabelValues("publish_snapshot").Observe(time.Since(start).Seconds())
	return nil
}

// SaveAtcStations заменяет хеш станций
func (s *SnapshotStore) SaveAtcStations(ctx context.Context, stations []models.AtcStation) error {
	start := time.Now()

	values := make(map[string]interface{}, len(stations))
	for _, st := range stations {
		blob, err := msgpack.Marshal(st)
		if err != nil {
			return fmt.Errorf("failed to encode station %s: %w", st.Callsign, err)
		}
		values[string(st.Callsign)] = blob
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, AtcKey)
	if len(values) > 0 {
		pipe.HSet(ctx, AtcKey, values)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		metrics.RedisOperationErrors.WithLabelValues("save_atc").Inc()
		return fmt.Errorf("failed to save atc stations: %w", err)
	}

	metrics.RedisOperationDuration.WithLabelValues("save_atc").Observe(time.Since(start).Seconds())
	return nil
}

// LoadSnapshot последний снапшот; nil без ошибки, если ключа нет или он истек
func (s *SnapshotStore) LoadSnapshot(ctx context.Context) (*models.AirspaceAircraftSnapshot, error) {
	start := time.Now()

	blob, err := s.client.Get(ctx, SnapshotKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		metrics.RedisOperationErrors.WithLabelValues("load_snapshot").Inc()
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}

	snap := new(models.AirspaceAircraftSnapshot)
	if err := msgpack.Unmarshal(blob, snap); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}

	metrics.RedisOperationDuration.WithLabelValues("load_snapshot").Observe(time.Since(start).Seconds())
	return snap, nil
}

// LoadAtcStations станции по позывному
func (s *SnapshotStore) LoadAtcStations(ctx context.Context) ([]models.AtcStation, error) {
	values, err := s.client.HGetAll(ctx, AtcKey).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		metrics.RedisOperationErrors.WithLabelValues("load_atc").Inc()
		return nil, fmt.Errorf("failed to load atc stations: %w", err)
	}

	stations := make([]models.AtcStation, 0, len(values))
	for cs, raw := range values {
		var st models.AtcStation
		if err := msgpack.Unmarshal([]byte(raw), &st); err != nil {
			s.logger.WithFields(map[string]interface{}{
				"callsign": cs,
				"error":    err,
			}).Warn("Failed to decode atc station")
			continue
		}
		stations = append(stations, st)
	}

	sort.Slice(stations, func(i, j int) bool { return stations[i].Callsign < stations[j].Callsign })
	return stations, nil
}

// AircraftInRadius суда из последнего снапшота в радиусе от точки, ближние первыми
func (s *SnapshotStore) AircraftInRadius(ctx context.Context, center models.GeoPoint, radiusNM float64) ([]AircraftRecord, error) {
	start := time.Now()

	locations, err := s.client.GeoRadius(ctx, AircraftGeoKey, center.Longitude, center.Latitude, &redis.GeoRadiusQuery{
		Radius:    radiusNM * kmPerNM,
		Unit:      "km",
		WithCoord: true,
		WithDist:  true,
		Count:     1000,
		Sort:      "ASC",
	}).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		metrics.RedisOperationErrors.WithLabelValues("aircraft_radius").Inc()
		return nil, fmt.Errorf("failed to get aircraft in radius: %w", err)
	}
	if len(locations) == 0 {
		return []AircraftRecord{}, nil
	}

	pipe := s.client.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(locations))
	for i, loc := range locations {
		cmds[i] = pipe.HGetAll(ctx, AircraftPrefix+loc.Name)
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("failed to get aircraft details: %w", err)
	}

	records := make([]AircraftRecord, 0, len(locations))
	for i, cmd := range cmds {
		data := cmd.Val()
		if len(data) == 0 {
			continue // запись истекла раньше индекса
		}
		records = append(records, mapToAircraft(locations[i], data))
	}

	metrics.RedisOperationDuration.WithLabelValues("aircraft_radius").Observe(time.Since(start).Seconds())
	return records, nil
}

func mapToAircraft(loc redis.GeoLocation, data map[string]string) AircraftRecord {
	altitude, _ := strconv.ParseFloat(data["altitude"], 64)
	heading, _ := strconv.ParseFloat(data["heading"], 64)
	gs, _ := strconv.ParseFloat(data["ground_speed"], 64)
	enabled := data["enabled"] == "1" || strings.EqualFold(data["enabled"], "true")

	return AircraftRecord{
		Callsign: models.Callsign(loc.Name),
		Position: models.GeoPoint{
			Latitude:  loc.Latitude,
			Longitude: loc.Longitude,
			Altitude:  altitude,
		},
		Geohash:     data["geohash"],
		Heading:     heading,
		GroundSpeed: gs,
		Enabled:     enabled,
		DistanceNM:  loc.Dist / kmPerNM,
	}
}

// GetStats статистика хранилища
func (s *SnapshotStore) GetStats(ctx context.Context) (map[string]interface{}, error) {
	pipe := s.client.Pipeline()
	published := pipe.Get(ctx, StatsPrefix+"snapshots:published")
	indexed := pipe.ZCard(ctx, AircraftGeoKey)
	atc := pipe.HLen(ctx, AtcKey)
	ttl := pipe.TTL(ctx, SnapshotKey)
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("failed to get redis stats: %w", err)
	}

	count, _ := published.Int64()
	return map[string]interface{}{
		"snapshots_published": count,
		"aircraft_indexed":    indexed.Val(),
		"atc_stations":        atc.Val(),
		"snapshot_ttl_ms":     ttl.Val().Milliseconds(),
	}, nil
}
