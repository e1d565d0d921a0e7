package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/flybeeper/fsd-airspace/internal/metrics"
	"github.com/flybeeper/fsd-airspace/internal/models"
	"github.com/flybeeper/fsd-airspace/pkg/utils"
)

// SessionSaver хранилище истории сессий
type SessionSaver interface {
	SaveSessionsBatch(ctx context.Context, sessions []models.SessionRecord) error
}

// HistoryConfig конфигурация батчера сессий
type HistoryConfig struct {
	BatchSize     int           `json:"batch_size"`     // Размер батча
	FlushInterval time.Duration `json:"flush_interval"` // Интервал принудительного flush
	ChannelBuffer int           `json:"channel_buffer"` // Размер буфера канала
	MaxRetries    int           `json:"max_retries"`
	RetryDelay    time.Duration `json:"retry_delay"`
	StopTimeout   time.Duration `json:"stop_timeout"` // Время на финальный flush
}

// HistoryMetrics счетчики батчера
type HistoryMetrics struct {
	mu sync.RWMutex

	Queued    int64 `json:"queued"`
	Dropped   int64 `json:"dropped"`
	Batches   int64 `json:"batches"`
	Processed int64 `json:"processed"`
	Errors    int64 `json:"errors"`

	QueueDepth        int64         `json:"queue_depth"`
	LastFlushDuration time.Duration `json:"last_flush_duration"`
	LastBatchSize     int           `json:"last_batch_size"`
}

// DefaultHistoryConfig возвращает конфигурацию по умолчанию
func DefaultHistoryConfig() *HistoryConfig {
	return &HistoryConfig{
		BatchSize:     200,
		FlushInterval: 5 * time.Second,
		ChannelBuffer: 10000,
		MaxRetries:    3,
		RetryDelay:    100 * time.Millisecond,
		StopTimeout:   5 * time.Second,
	}
}

// HistoryWriter асинхронно складывает завершенные сессии позывных в MySQL пачками.
// Queue не блокирует: при переполненной очереди запись отбрасывается.
type HistoryWriter struct {
	repo   SessionSaver
	logger *utils.Logger
	config *HistoryConfig

	records chan models.SessionRecord
	flushes chan chan struct{}
	buffer  []models.SessionRecord

	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once

	metrics *HistoryMetrics
}

// NewHistoryWriter создает батчер и запускает worker
func NewHistoryWriter(repo SessionSaver, logger *utils.Logger, cfg *HistoryConfig) (*HistoryWriter, error) {
	if repo == nil {
		return nil, fmt.Errorf("session repository cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	if cfg == nil {
		cfg = DefaultHistoryConfig()
	}
	if cfg.BatchSize <= 0 || cfg.FlushInterval <= 0 {
		return nil, fmt.Errorf("batch size and flush interval must be positive")
	}

	ctx, cancel := context.WithCancel(context.Background())

	hw := &HistoryWriter{
		repo:    repo,
		logger:  logger.WithComponent("history_writer"),
		config:  cfg,
		records: make(chan models.SessionRecord, cfg.ChannelBuffer),
		flushes: make(chan chan struct{}),
		buffer:  make([]models.SessionRecord, 0, cfg.BatchSize),
		ctx:     ctx,
		cancel:  cancel,
		metrics: &HistoryMetrics{},
	}

	hw.wg.Add(1)
	go hw.worker()

	hw.logger.WithFields(map[string]interface{}{
		"batch_size":     cfg.BatchSize,
		"flush_interval": cfg.FlushInterval,
	}).Info("Started session history writer")

	return hw, nil
}

// Queue ставит запись в очередь на сохранение
func (hw *HistoryWriter) Queue(rec models.SessionRecord) error {
	select {
	case <-hw.ctx.Done():
		return fmt.Errorf("history writer is shutting down")
	default:
	}

	select {
	case hw.records <- rec:
		hw.metrics.mu.Lock()
		hw.metrics.Queued++
		hw.metrics.mu.Unlock()
		metrics.MySQLQueueSize.Set(float64(len(hw.records)))
		return nil
	default:
		hw.metrics.mu.Lock()
		hw.metrics.Dropped++
		hw.metrics.mu.Unlock()
		metrics.MySQLRecordsDropped.Inc()
		return fmt.Errorf("session queue is full")
	}
}

// OnSessionEnded обработчик сигнала реестра
func (hw *HistoryWriter) OnSessionEnded(rec models.SessionRecord) {
	if err := hw.Queue(rec); err != nil {
		hw.logger.WithFields(map[string]interface{}{
			"callsign": rec.Callsign,
			"error":    err,
		}).Warn("Dropped session record")
	}
}

func (hw *HistoryWriter) worker() {
	defer hw.wg.Done()

	ticker := time.NewTicker(hw.config.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case rec := <-hw.records:
			hw.buffer = append(hw.buffer, rec)
			if len(hw.buffer) >= hw.config.BatchSize {
				hw.flush(hw.ctx)
			}

		case <-ticker.C:
			if len(hw.buffer) > 0 {
				hw.flush(hw.ctx)
			}

		case done := <-hw.flushes:
			hw.drain()
			hw.flush(hw.ctx)
			close(done)

		case <-hw.ctx.Done():
			// финальный flush на отдельном контексте: основной уже отменен
			hw.drain()
			ctx, cancel := context.WithTimeout(context.Background(), hw.config.StopTimeout)
			hw.flush(ctx)
			cancel()
			return
		}
	}
}

// drain забирает из канала все, что уже поставлено в очередь
func (hw *HistoryWriter) drain() {
	for {
		select {
		case rec := <-hw.records:
			hw.buffer = append(hw.buffer, rec)
		default:
			return
		}
	}
}

func (hw *HistoryWriter) flush(ctx context.Context) {
	if len(hw.buffer) == 0 {
		return
	}

	start := time.Now()
	batch := make([]models.SessionRecord, len(hw.buffer))
	copy(batch, hw.buffer)
	hw.buffer = hw.buffer[:0]

	err := hw.retryOperation(ctx, func() error {
		return hw.repo.SaveSessionsBatch(ctx, batch)
	})
	duration := time.Since(start)

	metrics.MySQLBatchSize.Observe(float64(len(batch)))
	metrics.MySQLBatchDuration.Observe(duration.Seconds())
	metrics.MySQLQueueSize.Set(float64(len(hw.records)))

	hw.metrics.mu.Lock()
	if err != nil {
		hw.metrics.Errors += int64(len(batch))
		metrics.MySQLBatchesTotal.WithLabelValues("error").Inc()
		hw.logger.WithFields(map[string]interface{}{
			"batch_size": len(batch),
			"duration":   duration,
			"error":      err,
		}).Error("Failed to flush session batch")
	} else {
		hw.metrics.Batches++
		hw.metrics.Processed += int64(len(batch))
		metrics.MySQLBatchesTotal.WithLabelValues("success").Inc()
		hw.logger.WithFields(map[string]interface{}{
			"batch_size": len(batch),
			"duration":   duration,
		}).Debug("Flushed session batch to MySQL")
	}
	hw.metrics.LastFlushDuration = duration
	hw.metrics.LastBatchSize = len(batch)
	hw.metrics.mu.Unlock()
}

// retryOperation выполняет операцию с повторами
func (hw *HistoryWriter) retryOperation(ctx context.Context, operation func() error) error {
	var lastErr error

	for attempt := 0; attempt <= hw.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(hw.config.RetryDelay * time.Duration(attempt)):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		lastErr = operation()
		if lastErr == nil {
			return nil
		}

		hw.logger.WithFields(map[string]interface{}{
			"attempt":     attempt + 1,
			"max_retries": hw.config.MaxRetries,
			"error":       lastErr,
		}).Warn("MySQL batch operation failed, retrying")
	}

	return fmt.Errorf("operation failed after %d retries: %w", hw.config.MaxRetries, lastErr)
}

// Flush сохраняет все, что уже в очереди, и ждет завершения
func (hw *HistoryWriter) Flush(ctx context.Context) error {
	done := make(chan struct{})
	select {
	case hw.flushes <- done:
	case <-hw.ctx.Done():
		return fmt.Errorf("history writer is shutting down")
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// GetMetrics возвращает копию счетчиков
func (hw *HistoryWriter) GetMetrics() HistoryMetrics {
	hw.metrics.mu.RLock()
	defer hw.metrics.mu.RUnlock()

	return HistoryMetrics{
		Queued:            hw.metrics.Queued,
		Dropped:           hw.metrics.Dropped,
		Batches:           hw.metrics.Batches,
		Processed:         hw.metrics.Processed,
		Errors:            hw.metrics.Errors,
		QueueDepth:        int64(len(hw.records)),
		LastFlushDuration: hw.metrics.LastFlushDuration,
		LastBatchSize:     hw.metrics.LastBatchSize,
	}
}

// Stop останавливает worker после финального flush
func (hw *HistoryWriter) Stop() error {
	hw.stopOnce.Do(func() {
		hw.logger.Info("Stopping session history writer...")
		hw.cancel()
		hw.wg.Wait()
		hw.logger.Info("Session history writer stopped")
	})
	return nil
}
