package repository

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/flybeeper/fsd-airspace/internal/config"
	"github.com/flybeeper/fsd-airspace/internal/models"
	"github.com/flybeeper/fsd-airspace/pkg/utils"
)

// SnapshotStoreTestSuite тестовый набор Redis хранилища снапшотов
type SnapshotStoreTestSuite struct {
	suite.Suite
	store  *SnapshotStore
	client *redis.Client
	ctx    context.Context
}

// SetupSuite запускается один раз перед всеми тестами
func (suite *SnapshotStoreTestSuite) SetupSuite() {
	suite.ctx = context.Background()

	cfg := &config.RedisConfig{
		URL:          "redis://localhost:6379",
		DB:           15, // тестовая база
		PoolSize:     10,
		MinIdleConns: 2,
		SnapshotTTL:  time.Minute,
	}

	var err error
	suite.store, err = NewSnapshotStore(cfg, utils.NewLogger("info", "text"))
	require.NoError(suite.T(), err)
	suite.client = suite.store.Client()

	if err := suite.store.Ping(suite.ctx); err != nil {
		suite.T().Skip("Redis not available for testing: " + err.Error())
	}
}

// SetupTest очищает тестовую базу
func (suite *SnapshotStoreTestSuite) SetupTest() {
	require.NoError(suite.T(), suite.client.FlushDB(suite.ctx).Err())
}

// TearDownSuite закрывает соединение
func (suite *SnapshotStoreTestSuite) TearDownSuite() {
	if suite.client != nil {
		suite.client.FlushDB(suite.ctx)
		suite.store.Close()
	}
}

func testSnapshot(generation uint64) *models.AirspaceAircraftSnapshot {
	return models.NewAirspaceAircraftSnapshot(generation, time.Unix(1717243200, 0).UTC(),
		models.SnapshotRestriction{RenderingEnabled: true, MaxAircraft: 1},
		[]models.SnapshotAircraft{
			{
				Callsign:    "DLH123",
				DistanceNM:  5,
				Enabled:     true,
				Position:    models.GeoPoint{Latitude: 50.1, Longitude: 8.6, Altitude: 5000},
				Heading:     90,
				GroundSpeed: 210,
			},
			{
				Callsign:   "AFR1",
				DistanceNM: 40,
				Position:   models.GeoPoint{Latitude: 50.6, Longitude: 8.9, Altitude: 30000},
			},
		}, nil)
}

func (suite *SnapshotStoreTestSuite) TestLoadSnapshot_Missing() {
	snap, err := suite.store.LoadSnapshot(suite.ctx)
	suite.NoError(err)
	suite.Nil(snap)
}

func (suite *SnapshotStoreTestSuite) TestPublishAndLoadSnapshot() {
	require.NoError(suite.T(), suite.store.PublishSnapshot(suite.ctx, testSnapshot(7)))

	snap, err := suite.store.LoadSnapshot(suite.ctx)
	require.NoError(suite.T(), err)
	require.NotNil(suite.T(), snap)

	suite.Equal(uint64(7), snap.Generation())
	suite.Equal(2, snap.InRangeCount())
	suite.Equal(1, snap.EnabledCount())
	suite.True(snap.IsEnabled("DLH123"))
	suite.Equal(models.Callsign("DLH123"), snap.Aircraft()[0].Callsign)

	ttl := suite.client.TTL(suite.ctx, SnapshotKey).Val()
	suite.True(ttl > 0 && ttl <= time.Minute)
}

func (suite *SnapshotStoreTestSuite) TestAircraftInRadius() {
	require.NoError(suite.T(), suite.store.PublishSnapshot(suite.ctx, testSnapshot(1)))

	center := models.GeoPoint{Latitude: 50.1, Longitude: 8.6}
	records, err := suite.store.AircraftInRadius(suite.ctx, center, 10)
	require.NoError(suite.T(), err)
	require.Len(suite.T(), records, 1)
	suite.Equal(models.Callsign("DLH123"), records[0].Callsign)
	suite.True(records[0].Enabled)
	suite.Equal(5000.0, records[0].Position.Altitude)
	suite.Len(records[0].Geohash, geohashPrecision)

	records, err = suite.store.AircraftInRadius(suite.ctx, center, 100)
	require.NoError(suite.T(), err)
	require.Len(suite.T(), records, 2)
	suite.Equal(models.Callsign("AFR1"), records[1].Callsign, "nearest first")

	// новый снапшот без AFR1 перестраивает индекс
	next := models.NewAirspaceAircraftSnapshot(2, time.Now(), models.SnapshotRestriction{},
		testSnapshot(1).Aircraft()[:1], nil)
	require.NoError(suite.T(), suite.store.PublishSnapshot(suite.ctx, next))
	records, err = suite.store.AircraftInRadius(suite.ctx, center, 100)
	require.NoError(suite.T(), err)
	suite.Len(records, 1)
}

func (suite *SnapshotStoreTestSuite) TestAtcStations() {
	stations := []models.AtcStation{
		{Callsign: "EDDF_TWR", Frequency: 119.9, Online: true, Atis: "INFO B",
			Position: models.GeoPoint{Latitude: 50.03, Longitude: 8.57}},
		{Callsign: "EDDF_GND", Frequency: 121.8, Online: true},
	}
	require.NoError(suite.T(), suite.store.SaveAtcStations(suite.ctx, stations))

	loaded, err := suite.store.LoadAtcStations(suite.ctx)
	require.NoError(suite.T(), err)
	require.Len(suite.T(), loaded, 2)
	suite.Equal(models.Callsign("EDDF_GND"), loaded[0].Callsign)
	suite.Equal("INFO B", loaded[1].Atis)

	require.NoError(suite.T(), suite.store.SaveAtcStations(suite.ctx, nil))
	loaded, err = suite.store.LoadAtcStations(suite.ctx)
	require.NoError(suite.T(), err)
	suite.Empty(loaded)
}

func (suite *SnapshotStoreTestSuite) TestGetStats() {
	require.NoError(suite.T(), suite.store.PublishSnapshot(suite.ctx, testSnapshot(1)))
	require.NoError(suite.T(), suite.store.PublishSnapshot(suite.ctx, testSnapshot(2)))

	stats, err := suite.store.GetStats(suite.ctx)
	require.NoError(suite.T(), err)
	suite.Equal(int64(2), stats["snapshots_published"])
	suite.Equal(int64(2), stats["aircraft_indexed"])
}

func TestSnapshotStoreSuite(t *testing.T) {
	suite.Run(t, new(SnapshotStoreTestSuite))
}

func TestNewSnapshotStore_Validation(t *testing.T) {
	logger := utils.NewLogger("info", "text")

	_, err := NewSnapshotStore(nil, logger)
	assert.Error(t, err)
	_, err = NewSnapshotStore(&config.RedisConfig{URL: "redis://localhost:6379"}, nil)
	assert.Error(t, err)
	_, err = NewSnapshotStore(&config.RedisConfig{URL: "://bad"}, logger)
	assert.Error(t, err)

	store, err := NewSnapshotStore(&config.RedisConfig{URL: "redis://localhost:6379"}, logger)
	require.NoError(t, err)
	assert.Equal(t, DefaultSnapshotTTL, store.ttl)
	store.Close()
}

func TestValidGeo(t *testing.T) {
	assert.True(t, validGeo(models.GeoPoint{Latitude: 50, Longitude: 8}))
	assert.False(t, validGeo(models.GeoPoint{Latitude: 89, Longitude: 8}))
	assert.False(t, validGeo(models.GeoPoint{Latitude: 0, Longitude: 181}))
}
