package repository

import (
	"context"

	"github.com/flybeeper/fsd-airspace/internal/models"
)

// SnapshotRepository публикация и чтение состояния воздушного пространства
type SnapshotRepository interface {
	Ping(ctx context.Context) error
	Close() error

	PublishSnapshot(ctx context.Context, snap *models.AirspaceAircraftSnapshot) error
	SaveAtcStations(ctx context.Context, stations []models.AtcStation) error

	LoadSnapshot(ctx context.Context) (*models.AirspaceAircraftSnapshot, error)
	LoadAtcStations(ctx context.Context) ([]models.AtcStation, error)
	AircraftInRadius(ctx context.Context, center models.GeoPoint, radiusNM float64) ([]AircraftRecord, error)

	GetStats(ctx context.Context) (map[string]interface{}, error)
}

// SessionRepository история сессий позывных
type SessionRepository interface {
	Ping(ctx context.Context) error
	Close() error

	SaveSessionsBatch(ctx context.Context, sessions []models.SessionRecord) error
	RecentSessions(ctx context.Context, cs models.Callsign, limit int) ([]models.SessionRecord, error)
	GetStats(ctx context.Context) (map[string]interface{}, error)
}

// Ensure implementations
var _ SnapshotRepository = (*SnapshotStore)(nil)
var _ SessionRepository = (*MySQLRepository)(nil)
