package mqtt

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/flybeeper/fsd-airspace/internal/models"
	"github.com/flybeeper/fsd-airspace/pkg/utils"
)

// EventType тип сетевого события, последний значимый сегмент топика
type EventType string

const (
	EventPosition     EventType = "position"      // обычная позиция
	EventFastPosition EventType = "fast_position" // высокочастотный поток позиций
	EventParts        EventType = "parts"
	EventPartsSupport EventType = "parts_support"
	EventAtc          EventType = "atc"
	EventAtcText      EventType = "atc_text"
	EventRemoved      EventType = "removed"
	EventConnection   EventType = "connection"
)

// Event распарсенное сетевое событие. Заполнено только поле, соответствующее Type.
type Event struct {
	Type     EventType
	Callsign models.Callsign

	Situation   *models.AircraftSituation
	Transponder *models.Transponder

	Parts          *models.AircraftParts
	Incremental    bool
	PartsSupported bool

	Atc      *models.AtcStation
	Online   bool
	Atis     string
	Metar    string
	From, To models.ConnectionStatus
}

// positionPayload JSON позиции от FSD моста
type positionPayload struct {
	Latitude    float64 `json:"lat"`
	Longitude   float64 `json:"lon"`
	AltitudeFt  float64 `json:"alt_ft"`
	Pitch       float64 `json:"pitch"`
	Bank        float64 `json:"bank"`
	Heading     float64 `json:"heading"`
	GroundSpeed float64 `json:"gs_kt"`
	OnGround    bool    `json:"on_ground"`
	Squawk      *int    `json:"squawk,omitempty"`
	XpdrMode    string  `json:"xpdr_mode,omitempty"`
	TimestampMs int64   `json:"ts"`
}

type partsPayload struct {
	Lights      *models.Lights  `json:"lights,omitempty"`
	GearDown    *bool           `json:"gear_down,omitempty"`
	Flaps       *int            `json:"flaps_pct,omitempty"`
	SpoilersOut *bool           `json:"spoilers_out,omitempty"`
	Engines     []models.Engine `json:"engines,omitempty"`
	OnGround    *bool           `json:"on_ground,omitempty"`
	Incremental bool            `json:"incremental"`
	TimestampMs int64           `json:"ts"`
}

type partsSupportPayload struct {
	Supported bool `json:"supported"`
}

type atcPayload struct {
	Controller    string  `json:"controller"`
	Frequency     float64 `json:"frequency"`
	Latitude      float64 `json:"lat"`
	Longitude     float64 `json:"lon"`
	VisualRangeNM float64 `json:"visual_range_nm"`
	Online        bool    `json:"online"`
	Atis          string  `json:"atis,omitempty"`
	Metar         string  `json:"metar,omitempty"`
}

type atcTextPayload struct {
	Atis  string `json:"atis"`
	Metar string `json:"metar"`
}

type connectionPayload struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// Parser разбирает топик и JSON тело сетевого события
type Parser struct {
	prefix string
	logger *utils.Logger
}

// NewParser создает парсер для топиков вида {prefix}/{event}[/{callsign}]
func NewParser(prefix string, logger *utils.Logger) *Parser {
	return &Parser{
		prefix: strings.Trim(prefix, "/"),
		logger: logger,
	}
}

// Parse возвращает событие. Топик без префикса или неизвестный тип дает (nil, nil).
func (p *Parser) Parse(topic string, payload []byte) (*Event, error) {
	rest, ok := strings.CutPrefix(topic, p.prefix+"/")
	if !ok {
		return nil, fmt.Errorf("invalid topic format: %s", topic)
	}

	parts := strings.Split(rest, "/")
	eventType := EventType(parts[0])

	if eventType == EventConnection {
		var body connectionPayload
		if err := json.Unmarshal(payload, &body); err != nil {
			return nil, fmt.Errorf("invalid connection payload: %w", err)
		}
		return &Event{
			Type: EventConnection,
			From: models.ParseConnectionStatus(body.From),
			To:   models.ParseConnectionStatus(body.To),
		}, nil
	}

	if len(parts) != 2 || parts[1] == "" {
		return nil, fmt.Errorf("topic %s has no callsign", topic)
	}
	cs := models.NewCallsign(parts[1])

	switch eventType {
	case EventPosition, EventFastPosition:
		return p.parsePosition(eventType, cs, payload)
	case EventParts:
		return p.parseParts(cs, payload)
	case EventPartsSupport:
		var body partsSupportPayload
		if err := json.Unmarshal(payload, &body); err != nil {
			return nil, fmt.Errorf("invalid parts support payload: %w", err)
		}
		return &Event{Type: eventType, Callsign: cs, PartsSupported: body.Supported}, nil
	case EventAtc:
		return p.parseAtc(cs, payload)
	case EventAtcText:
		var body atcTextPayload
		if err := json.Unmarshal(payload, &body); err != nil {
			return nil, fmt.Errorf("invalid atc text payload: %w", err)
		}
		return &Event{Type: eventType, Callsign: cs, Atis: body.Atis, Metar: body.Metar}, nil
	case EventRemoved:
		return &Event{Type: eventType, Callsign: cs}, nil
	default:
		p.logger.WithField("topic", topic).Debug("Unsupported event type")
		return nil, nil
	}
}

func (p *Parser) parsePosition(eventType EventType, cs models.Callsign, payload []byte) (*Event, error) {
	var body positionPayload
	if err := json.Unmarshal(payload, &body); err != nil {
		return nil, fmt.Errorf("invalid position payload: %w", err)
	}
	if body.TimestampMs <= 0 {
		return nil, fmt.Errorf("position for %s has no timestamp", cs)
	}

	s := models.AircraftSituation{
		Callsign: cs,
		Position: models.GeoPoint{
			Latitude:  body.Latitude,
			Longitude: body.Longitude,
			Altitude:  body.AltitudeFt,
		},
		Pitch:        body.Pitch,
		Bank:         body.Bank,
		Heading:      models.NormalizeHeading(body.Heading),
		GroundSpeed:  body.GroundSpeed,
		OnGround:     body.OnGround,
		FastPosition: eventType == EventFastPosition,
		Timestamp:    time.UnixMilli(body.TimestampMs).UTC(),
	}

	ev := &Event{Type: eventType, Callsign: cs, Situation: &s}
	if body.Squawk != nil {
		ev.Transponder = &models.Transponder{Code: *body.Squawk, Mode: parseTransponderMode(body.XpdrMode)}
	}
	return ev, nil
}

func parseTransponderMode(s string) models.TransponderMode {
	switch strings.ToLower(s) {
	case "c", "mode_c", "modec":
		return models.TransponderModeC
	case "ident", "i":
		return models.TransponderIdent
	default:
		return models.TransponderStandby
	}
}

// parseParts собирает маску полей из присутствующих в JSON ключей
func (p *Parser) parseParts(cs models.Callsign, payload []byte) (*Event, error) {
	var body partsPayload
	if err := json.Unmarshal(payload, &body); err != nil {
		return nil, fmt.Errorf("invalid parts payload: %w", err)
	}
	if body.TimestampMs <= 0 {
		return nil, fmt.Errorf("parts for %s have no timestamp", cs)
	}

	parts := models.AircraftParts{
		Incremental: body.Incremental,
		Timestamp:   time.UnixMilli(body.TimestampMs).UTC(),
	}
	if body.Lights != nil {
		parts.Lights = *body.Lights
		parts.Fields |= models.PartsFieldLights
	}
	if body.GearDown != nil {
		parts.GearDown = *body.GearDown
		parts.Fields |= models.PartsFieldGear
	}
	if body.Flaps != nil {
		parts.FlapsPercent = *body.Flaps
		parts.Fields |= models.PartsFieldFlaps
	}
	if body.SpoilersOut != nil {
		parts.SpoilersOut = *body.SpoilersOut
		parts.Fields |= models.PartsFieldSpoilers
	}
	if body.Engines != nil {
		parts.Engines = body.Engines
		parts.Fields |= models.PartsFieldEngines
	}
	if body.OnGround != nil {
		parts.OnGround = *body.OnGround
		parts.Fields |= models.PartsFieldOnGround
	}

	return &Event{Type: EventParts, Callsign: cs, Parts: &parts, Incremental: body.Incremental}, nil
}

func (p *Parser) parseAtc(cs models.Callsign, payload []byte) (*Event, error) {
	var body atcPayload
	if err := json.Unmarshal(payload, &body); err != nil {
		return nil, fmt.Errorf("invalid atc payload: %w", err)
	}

	st := models.AtcStation{
		Callsign:      cs,
		Controller:    body.Controller,
		Frequency:     body.Frequency,
		Position:      models.GeoPoint{Latitude: body.Latitude, Longitude: body.Longitude},
		VisualRangeNM: body.VisualRangeNM,
		Online:        body.Online,
		Atis:          body.Atis,
		Metar:         body.Metar,
	}
	return &Event{Type: EventAtc, Callsign: cs, Atc: &st, Online: body.Online}, nil
}
