package mqtt

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/flybeeper/fsd-airspace/internal/config"
	"github.com/flybeeper/fsd-airspace/internal/models"
	"github.com/flybeeper/fsd-airspace/pkg/utils"
)

func newTestParser() *Parser {
	return NewParser("fsd/events", utils.NewLogger("info", "text"))
}

func TestParser_Parse_Topic(t *testing.T) {
	parser := newTestParser()
	payload := []byte(`{"lat":50.1,"lon":8.6,"alt_ft":5000,"heading":90,"gs_kt":200,"ts":1717243200000}`)

	tests := []struct {
		name        string
		topic       string
		expectError bool
		expectNil   bool
	}{
		{"Valid position topic", "fsd/events/position/DLH123", false, false},
		{"Wrong prefix", "other/events/position/DLH123", true, false},
		{"Missing callsign", "fsd/events/position", true, false},
		{"Empty callsign", "fsd/events/position/", true, false},
		{"Extra segments", "fsd/events/position/DLH123/x", true, false},
		{"Unknown event type", "fsd/events/textmessage/DLH123", false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := parser.Parse(tt.topic, payload)
			if tt.expectError {
				assert.Error(t, err)
				assert.Nil(t, ev)
				return
			}
			require.NoError(t, err)
			if tt.expectNil {
				assert.Nil(t, ev)
				return
			}
			require.NotNil(t, ev)
			assert.Equal(t, models.Callsign("DLH123"), ev.Callsign)
		})
	}
}

func TestParser_Parse_Position(t *testing.T) {
	parser := newTestParser()
	payload := []byte(`{"lat":50.1,"lon":8.6,"alt_ft":5000,"pitch":2.5,"bank":-10,
		"heading":370,"gs_kt":210,"on_ground":false,"squawk":2000,"xpdr_mode":"C","ts":1717243200500}`)

	ev, err := parser.Parse("fsd/events/position/dlh123", payload)
	require.NoError(t, err)
	require.NotNil(t, ev.Situation)

	s := ev.Situation
	assert.Equal(t, models.Callsign("DLH123"), s.Callsign)
	assert.Equal(t, 50.1, s.Position.Latitude)
	assert.Equal(t, 5000.0, s.Position.Altitude)
	assert.InDelta(t, 10, s.Heading, 1e-9, "heading normalized")
	assert.Equal(t, -10.0, s.Bank)
	assert.False(t, s.FastPosition)
	assert.Equal(t, time.UnixMilli(1717243200500).UTC(), s.Timestamp)

	require.NotNil(t, ev.Transponder)
	assert.Equal(t, 2000, ev.Transponder.Code)
	assert.Equal(t, models.TransponderModeC, ev.Transponder.Mode)

	ev, err = parser.Parse("fsd/events/fast_position/DLH123", []byte(`{"lat":50,"lon":8,"ts":1}`))
	require.NoError(t, err)
	assert.True(t, ev.Situation.FastPosition)
	assert.Nil(t, ev.Transponder)

	_, err = parser.Parse("fsd/events/position/DLH123", []byte(`{"lat":50,"lon":8}`))
	assert.Error(t, err, "timestamp required")

	_, err = parser.Parse("fsd/events/position/DLH123", []byte(`{not json`))
	assert.Error(t, err)
}

func TestParser_Parse_PartsFieldMask(t *testing.T) {
	parser := newTestParser()

	ev, err := parser.Parse("fsd/events/parts/DLH123",
		[]byte(`{"gear_down":true,"flaps_pct":25,"incremental":true,"ts":1717243200000}`))
	require.NoError(t, err)
	require.NotNil(t, ev.Parts)
	assert.True(t, ev.Incremental)
	assert.Equal(t, models.PartsFieldGear|models.PartsFieldFlaps, ev.Parts.Fields)
	assert.True(t, ev.Parts.GearDown)
	assert.Equal(t, 25, ev.Parts.FlapsPercent)

	ev, err = parser.Parse("fsd/events/parts/DLH123",
		[]byte(`{"lights":{"strobe":true},"engines":[{"number":1,"on":true}],"on_ground":true,"ts":1}`))
	require.NoError(t, err)
	assert.False(t, ev.Incremental)
	assert.Equal(t, models.PartsFieldLights|models.PartsFieldEngines|models.PartsFieldOnGround, ev.Parts.Fields)
	assert.True(t, ev.Parts.Lights.Strobe)
}

func TestParser_Parse_AtcAndConnection(t *testing.T) {
	parser := newTestParser()

	ev, err := parser.Parse("fsd/events/atc/EDDF_TWR",
		[]byte(`{"controller":"Jane","frequency":119.9,"lat":50.03,"lon":8.57,"visual_range_nm":50,"online":true}`))
	require.NoError(t, err)
	require.NotNil(t, ev.Atc)
	assert.True(t, ev.Online)
	assert.Equal(t, 119.9, ev.Atc.Frequency)
	assert.Equal(t, models.Callsign("EDDF_TWR"), ev.Atc.Callsign)

	ev, err = parser.Parse("fsd/events/atc_text/EDDF_TWR", []byte(`{"atis":"INFO B","metar":""}`))
	require.NoError(t, err)
	assert.Equal(t, "INFO B", ev.Atis)

	ev, err = parser.Parse("fsd/events/connection", []byte(`{"from":"connecting","to":"connected"}`))
	require.NoError(t, err)
	assert.Equal(t, models.Connecting, ev.From)
	assert.Equal(t, models.Connected, ev.To)

	ev, err = parser.Parse("fsd/events/removed/AFR1", nil)
	require.NoError(t, err)
	assert.Equal(t, EventRemoved, ev.Type)
}

// mockSink записывает доставленные события
type mockSink struct {
	mock.Mock
}

func (m *mockSink) OnPositionUpdate(s models.AircraftSituation, xpdr *models.Transponder) error {
	return m.Called(s, xpdr).Error(0)
}

func (m *mockSink) OnPartsUpdate(cs models.Callsign, p models.AircraftParts, incremental bool) error {
	return m.Called(cs, p, incremental).Error(0)
}

func (m *mockSink) OnPartsSupport(cs models.Callsign, supported bool) { m.Called(cs, supported) }

func (m *mockSink) OnAtcStationUpdate(st models.AtcStation, online bool) error {
	return m.Called(st, online).Error(0)
}

func (m *mockSink) OnAtcText(cs models.Callsign, atis, metar string) { m.Called(cs, atis, metar) }

func (m *mockSink) OnAircraftRemoved(cs models.Callsign) error { return m.Called(cs).Error(0) }

func (m *mockSink) OnConnectionStatusChanged(from, to models.ConnectionStatus) error {
	return m.Called(from, to).Error(0)
}

func TestClient_HandleMessageDispatches(t *testing.T) {
	sink := &mockSink{}
	c, err := NewClient(&config.MQTTConfig{URL: "tcp://localhost:1883", ClientID: "test", TopicPrefix: "fsd/events"},
		utils.NewLogger("debug", "text"), sink)
	require.NoError(t, err)

	sink.On("OnPositionUpdate", mock.MatchedBy(func(s models.AircraftSituation) bool {
		return s.Callsign == "DLH123"
	}), mock.Anything).Return(nil).Once()
	sink.On("OnAircraftRemoved", models.Callsign("DLH123")).Return(nil).Once()
	sink.On("OnConnectionStatusChanged", models.Connected, models.Disconnected).Return(nil).Once()
	sink.On("OnPartsSupport", models.Callsign("DLH123"), false).Once()

	c.HandleMessage("fsd/events/position/DLH123", []byte(`{"lat":50,"lon":8,"ts":1000}`))
	c.HandleMessage("fsd/events/parts_support/DLH123", []byte(`{"supported":false}`))
	c.HandleMessage("fsd/events/removed/DLH123", nil)
	c.HandleMessage("fsd/events/connection", []byte(`{"from":"connected","to":"disconnected"}`))

	// нераспознанное и сломанное до приемника не доходят
	c.HandleMessage("other/topic", []byte(`{}`))
	c.HandleMessage("fsd/events/position/DLH123", []byte(`garbage`))

	sink.AssertExpectations(t)
}

func TestNewClient_Validation(t *testing.T) {
	logger := utils.NewLogger("info", "text")
	cfg := &config.MQTTConfig{URL: "tcp://localhost:1883"}

	_, err := NewClient(nil, logger, &mockSink{})
	assert.Error(t, err)
	_, err = NewClient(cfg, nil, &mockSink{})
	assert.Error(t, err)
	_, err = NewClient(cfg, logger, nil)
	assert.Error(t, err)
}
