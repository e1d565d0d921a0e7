package service

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/flybeeper/fsd-airspace/internal/models"
	"github.com/flybeeper/fsd-airspace/pkg/utils"
)

// SnapshotWriter хранилище, куда публикуется состояние для Remote экземпляров
type SnapshotWriter interface {
	PublishSnapshot(ctx context.Context, snap *models.AirspaceAircraftSnapshot) error
	SaveAtcStations(ctx context.Context, stations []models.AtcStation) error
}

// SnapshotPublisher выносит запись снапшотов из цикла анализатора.
// Очередь на одно место: неопубликованный снапшот заменяется более новым.
type SnapshotPublisher struct {
	store     SnapshotWriter
	atcSource func() []models.AtcStation
	logger    *utils.Logger
	timeout   time.Duration

	pending  chan *models.AirspaceAircraftSnapshot
	atcDirty chan struct{}

	published atomic.Int64
	replaced  atomic.Int64
	failed    atomic.Int64
}

// NewSnapshotPublisher создает публикатор. atcSource может быть nil,
// тогда станции не публикуются.
func NewSnapshotPublisher(store SnapshotWriter, atcSource func() []models.AtcStation, logger *utils.Logger) (*SnapshotPublisher, error) {
	if store == nil {
		return nil, fmt.Errorf("snapshot store cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}

	return &SnapshotPublisher{
		store:     store,
		atcSource: atcSource,
		logger:    logger.WithComponent("snapshot_publisher"),
		timeout:   3 * time.Second,
		pending:   make(chan *models.AirspaceAircraftSnapshot, 1),
		atcDirty:  make(chan struct{}, 1),
	}, nil
}

// Submit ставит снапшот на публикацию, не блокируя вызывающего
func (p *SnapshotPublisher) Submit(snap *models.AirspaceAircraftSnapshot) {
	if snap == nil {
		return
	}
	for {
		select {
		case p.pending <- snap:
			return
		default:
		}
		select {
		case <-p.pending:
			p.replaced.Add(1)
		default:
		}
	}
}

// MarkAtcChanged просит переопубликовать список станций
func (p *SnapshotPublisher) MarkAtcChanged() {
	select {
	case p.atcDirty <- struct{}{}:
	default:
	}
}

// Run публикует до отмены контекста
func (p *SnapshotPublisher) Run(ctx context.Context) error {
	p.logger.Info("Snapshot publisher started")
	defer p.logger.Info("Snapshot publisher stopped")

	for {
		select {
		case <-ctx.Done():
			return nil
		case snap := <-p.pending:
			p.publishSnapshot(ctx, snap)
		case <-p.atcDirty:
			p.publishAtc(ctx)
		}
	}
}

func (p *SnapshotPublisher) publishSnapshot(ctx context.Context, snap *models.AirspaceAircraftSnapshot) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	if err := p.store.PublishSnapshot(ctx, snap); err != nil {
		p.failed.Add(1)
		p.logger.WithFields(map[string]interface{}{
			"generation": snap.Generation(),
			"error":      err,
		}).Error("Failed to publish snapshot")
		return
	}
	p.published.Add(1)
}

func (p *SnapshotPublisher) publishAtc(ctx context.Context) {
	if p.atcSource == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	if err := p.store.SaveAtcStations(ctx, p.atcSource()); err != nil {
		p.failed.Add(1)
		p.logger.WithField("error", err).Error("Failed to publish atc stations")
	}
}

// GetStats статистика публикатора
func (p *SnapshotPublisher) GetStats() map[string]interface{} {
	return map[string]interface{}{
		"published": p.published.Load(),
		"replaced":  p.replaced.Load(),
		"failed":    p.failed.Load(),
	}
}
