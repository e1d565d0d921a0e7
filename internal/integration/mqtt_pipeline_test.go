package integration

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/flybeeper/fsd-airspace/internal/airspace"
	"github.com/flybeeper/fsd-airspace/internal/clock"
	"github.com/flybeeper/fsd-airspace/internal/config"
	"github.com/flybeeper/fsd-airspace/internal/models"
	mqttclient "github.com/flybeeper/fsd-airspace/internal/mqtt"
	"github.com/flybeeper/fsd-airspace/internal/repository"
	"github.com/flybeeper/fsd-airspace/internal/restriction"
	"github.com/flybeeper/fsd-airspace/internal/service"
	"github.com/flybeeper/fsd-airspace/pkg/utils"
)

const brokerURL = "tcp://localhost:1883"

// MQTTPipelineTestSuite тестирует полный путь MQTT -> Local -> Redis -> Remote
type MQTTPipelineTestSuite struct {
	suite.Suite
	ctx    context.Context
	cancel context.CancelFunc
	logger *utils.Logger

	publisher mqtt.Client
	store     *repository.SnapshotStore
	local     *airspace.Local
	client    *mqttclient.Client
}

func (suite *MQTTPipelineTestSuite) SetupSuite() {
	suite.logger = utils.NewLogger("warn", "text")

	var err error
	suite.store, err = repository.NewSnapshotStore(&config.RedisConfig{
		URL:          "redis://localhost:6379",
		DB:           14, // отдельная DB для интеграционных тестов
		PoolSize:     10,
		MinIdleConns: 2,
		SnapshotTTL:  time.Minute,
	}, suite.logger)
	require.NoError(suite.T(), err)

	if err := suite.store.Ping(context.Background()); err != nil {
		suite.T().Skip("Redis not available for integration testing: " + err.Error())
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(brokerURL)
	opts.SetClientID("fsd_integration_publisher")
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(false)
	opts.SetConnectTimeout(5 * time.Second)

	suite.publisher = mqtt.NewClient(opts)
	if token := suite.publisher.Connect(); token.Wait() && token.Error() != nil {
		suite.T().Skip("MQTT broker not available for integration testing: " + token.Error().Error())
	}
}

func (suite *MQTTPipelineTestSuite) SetupTest() {
	suite.ctx, suite.cancel = context.WithCancel(context.Background())
	require.NoError(suite.T(), suite.store.Client().FlushDB(suite.ctx).Err())

	cfg, err := config.Load()
	require.NoError(suite.T(), err)
	cfg.Airspace.OwnLatitude = 50.03
	cfg.Airspace.OwnLongitude = 8.57
	cfg.Airspace.DigestInterval = 50 * time.Millisecond
	cfg.MQTT.URL = brokerURL
	cfg.MQTT.ClientID = "fsd_integration_engine"
	cfg.MQTT.TopicPrefix = prefix

	suite.local, err = airspace.NewLocal(airspace.LocalOptionsFromConfig(cfg), clock.System{}, suite.logger)
	require.NoError(suite.T(), err)

	publisher, err := service.NewSnapshotPublisher(suite.store, suite.local.AtcStationsOnline, suite.logger)
	require.NoError(suite.T(), err)
	suite.local.OnSnapshot(publisher.Submit)
	suite.local.AtcStationsChanged.Connect(func([]models.Callsign) { publisher.MarkAtcChanged() })
	go publisher.Run(suite.ctx)

	suite.client, err = mqttclient.NewClient(&cfg.MQTT, suite.logger, suite.local)
	require.NoError(suite.T(), err)
	require.NoError(suite.T(), suite.client.Connect())
}

func (suite *MQTTPipelineTestSuite) TearDownTest() {
	suite.client.Disconnect()
	suite.cancel()
	_ = suite.local.Close()
}

func (suite *MQTTPipelineTestSuite) TearDownSuite() {
	if suite.publisher != nil && suite.publisher.IsConnected() {
		suite.publisher.Disconnect(1000)
	}
	if suite.store != nil {
		suite.store.Client().FlushDB(context.Background())
		suite.store.Close()
	}
}

func (suite *MQTTPipelineTestSuite) publish(event, callsign string, body interface{}) {
	payload, err := json.Marshal(body)
	require.NoError(suite.T(), err)

	topic := prefix + "/" + event
	if callsign != "" {
		topic += "/" + callsign
	}
	token := suite.publisher.Publish(topic, 1, false, payload)
	require.True(suite.T(), token.WaitTimeout(5*time.Second))
	require.NoError(suite.T(), token.Error())
}

func (suite *MQTTPipelineTestSuite) position(callsign string, lat, lon float64) {
	suite.publish("position", callsign, map[string]interface{}{
		"lat":     lat,
		"lon":     lon,
		"alt_ft":  10000,
		"heading": 90,
		"gs_kt":   250,
		"squawk":  1000,
		"ts":      time.Now().UnixMilli(),
	})
}

func (suite *MQTTPipelineTestSuite) TestMQTTToRedisPipeline() {
	suite.publish("connection", "", map[string]string{"from": "connecting", "to": "connected"})
	suite.position("DLH123", 50.1, 8.6)
	suite.position("AFR456", 50.8, 8.6)

	suite.Eventually(func() bool {
		return len(suite.local.AllAircraft()) == 2
	}, 5*time.Second, 50*time.Millisecond)

	suite.Require().True(suite.local.Analyzer().Tick())
	generation := suite.local.LatestSnapshot().Generation()

	suite.Eventually(func() bool {
		snap, err := suite.store.LoadSnapshot(suite.ctx)
		return err == nil && snap != nil && snap.Generation() == generation
	}, 5*time.Second, 50*time.Millisecond)

	nearby, err := suite.store.AircraftInRadius(suite.ctx, models.GeoPoint{Latitude: 50.03, Longitude: 8.57}, 20)
	suite.Require().NoError(err)
	suite.Require().Len(nearby, 1)
	suite.Equal(models.Callsign("DLH123"), nearby[0].Callsign)
}

func (suite *MQTTPipelineTestSuite) TestAtcStationsReachRemote() {
	suite.publish("connection", "", map[string]string{"from": "connecting", "to": "connected"})
	suite.publish("atc", "EDDF_APP", map[string]interface{}{
		"controller":      "John Doe",
		"frequency":       120.8,
		"lat":             50.03,
		"lon":             8.57,
		"visual_range_nm": 150,
		"online":          true,
	})

	remote, err := airspace.NewRemote(suite.store, 100*time.Millisecond, restriction.NewRenderRestriction(), clock.System{}, suite.logger)
	suite.Require().NoError(err)

	suite.Eventually(func() bool {
		if err := remote.Refresh(suite.ctx); err != nil {
			return false
		}
		stations := remote.AtcStationsOnline()
		return len(stations) == 1 && stations[0].Callsign == "EDDF_APP"
	}, 5*time.Second, 100*time.Millisecond)
}

func TestMQTTPipelineTestSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration tests in short mode")
	}
	suite.Run(t, new(MQTTPipelineTestSuite))
}
