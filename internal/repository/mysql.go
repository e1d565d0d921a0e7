package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"

	"github.com/flybeeper/fsd-airspace/internal/config"
	"github.com/flybeeper/fsd-airspace/internal/models"
	"github.com/flybeeper/fsd-airspace/pkg/utils"
)

// SessionsSchema таблица истории сессий
const SessionsSchema = `
CREATE TABLE IF NOT EXISTS network_session (
	id BIGINT AUTO_INCREMENT PRIMARY KEY,
	callsign VARCHAR(16) NOT NULL,
	kind VARCHAR(8) NOT NULL,
	first_seen DATETIME(3) NOT NULL,
	last_seen DATETIME(3) NOT NULL,
	end_reason VARCHAR(16) NOT NULL,
	duration_ms BIGINT NOT NULL,
	KEY idx_callsign_last_seen (callsign, last_seen)
)`

const sessionFields = 6

// MySQLRepository история сессий позывных в MySQL
type MySQLRepository struct {
	db     *sql.DB
	logger *utils.Logger
	config *config.MySQLConfig
}

// NewMySQLRepository создает новый MySQL репозиторий
func NewMySQLRepository(cfg *config.MySQLConfig, logger *utils.Logger) (*MySQLRepository, error) {
	if cfg == nil {
		return nil, fmt.Errorf("mysql config cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	if cfg.DSN == "" {
		return nil, fmt.Errorf("mysql DSN is required")
	}

	db, err := sql.Open("mysql", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open MySQL connection: %w", err)
	}

	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetConnMaxLifetime(1 * time.Hour)

	return &MySQLRepository{
		db:     db,
		logger: logger.WithComponent("mysql"),
		config: cfg,
	}, nil
}

// Ping проверяет соединение с MySQL
func (r *MySQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close закрывает соединение с MySQL
func (r *MySQLRepository) Close() error {
	return r.db.Close()
}

// EnsureSchema создает таблицу, если ее нет
func (r *MySQLRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, SessionsSchema); err != nil {
		return fmt.Errorf("failed to create session table: %w", err)
	}
	return nil
}

// SaveSessionsBatch сохраняет пачку сессий одним INSERT
func (r *MySQLRepository) SaveSessionsBatch(ctx context.Context, sessions []models.SessionRecord) error {
	if len(sessions) == 0 {
		return nil
	}

	args := make([]interface{}, 0, len(sessions)*sessionFields)
	count := 0
	for _, s := range sessions {
		if s.Callsign.IsEmpty() {
			r.logger.Warn("Skipping session without callsign")
			continue
		}
		args = append(args,
			string(s.Callsign), string(s.Kind), s.FirstSeen.UTC(), s.LastSeen.UTC(),
			string(s.EndReason), s.Duration().Milliseconds())
		count++
	}
	if count == 0 {
		return nil
	}

	query := `
		INSERT INTO network_session (
			callsign, kind, first_seen, last_seen, end_reason, duration_ms
		) VALUES ` + generatePlaceholders(count, sessionFields)

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to batch insert sessions: %w", err)
	}

	affected, _ := result.RowsAffected()
	r.logger.WithField("count", affected).Debug("Saved sessions batch to MySQL")
	return nil
}

// RecentSessions последние сессии позывного, новые первыми
func (r *MySQLRepository) RecentSessions(ctx context.Context, cs models.Callsign, limit int) ([]models.SessionRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT callsign, kind, first_seen, last_seen, end_reason
		FROM network_session
		WHERE callsign = ?
		ORDER BY last_seen DESC
		LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, query, string(cs), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []models.SessionRecord
	for rows.Next() {
		var (
			callsign, kind, reason string
			firstSeen, lastSeen    time.Time
		)
		if err := rows.Scan(&callsign, &kind, &firstSeen, &lastSeen, &reason); err != nil {
			r.logger.WithField("error", err).Warn("Failed to scan session row")
			continue
		}
		sessions = append(sessions, models.SessionRecord{
			Callsign:  models.Callsign(callsign),
			Kind:      models.EntityKind(kind),
			FirstSeen: firstSeen,
			LastSeen:  lastSeen,
			EndReason: models.EndReason(reason),
		})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating session rows: %w", err)
	}
	return sessions, nil
}

// GetStats статистика таблицы сессий
func (r *MySQLRepository) GetStats(ctx context.Context) (map[string]interface{}, error) {
	var total, lastHour int64
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(last_seen > DATE_SUB(NOW(), INTERVAL 1 HOUR)), 0)
		FROM network_session
	`).Scan(&total, &lastHour)
	if err != nil {
		return nil, fmt.Errorf("failed to get session stats: %w", err)
	}

	dbStats := r.db.Stats()
	return map[string]interface{}{
		"sessions_total":     total,
		"sessions_last_hour": lastHour,
		"open_connections":   dbStats.OpenConnections,
		"in_use":             dbStats.InUse,
	}, nil
}

// generatePlaceholders генерирует плейсхолдеры для batch INSERT
func generatePlaceholders(count, fieldsPerRecord int) string {
	if count == 0 {
		return ""
	}

	singleRecord := "(" + strings.Repeat("?,", fieldsPerRecord-1) + "?)"

	placeholders := make([]string, count)
	for i := 0; i < count; i++ {
		placeholders[i] = singleRecord
	}

	return strings.Join(placeholders, ",")
}
