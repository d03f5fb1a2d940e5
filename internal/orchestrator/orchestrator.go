package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/conveyor/internal/mq"
	"github.com/shaiso/conveyor/internal/telemetry"
)

// Default configuration values.
const (
	defaultPollInterval = 10 * time.Second
	defaultSyncInterval = 30 * time.Second
	defaultBatchSize    = 100
)

// Orchestrator управляет деплоями.
//
// Orchestrator:
//   - Получает запросы на деплой из очереди RabbitMQ (event-driven)
//   - Периодически подбирает PENDING/COMPILED деплои из БД (polling fallback)
//   - Проводит каждый деплой через Pipeline
//   - Синхронизирует статусы RUNNING деплоев с подложкой
type Orchestrator struct {
	store     DeploymentStore
	substrate Substrate
	pipeline  *Pipeline
	publisher StatusPublisher

	// MQ
	conn     *mq.Connection
	consumer *mq.Consumer

	// Active — деплои в обработке (dedupe между очередью и polling)
	active map[uuid.UUID]struct{}
	mu     sync.Mutex

	// Configuration
	pollInterval time.Duration
	syncInterval time.Duration
	batchSize    int

	metrics *telemetry.Metrics

	// Lifecycle
	logger     *slog.Logger
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
	stopped    bool
	stoppedMu  sync.RWMutex
}

// Config — конфигурация Orchestrator.
type Config struct {
	Store     DeploymentStore
	Substrate Substrate
	Pipeline  *Pipeline

	// Publisher — публикация статусов (может быть nil).
	Publisher StatusPublisher

	// Conn — соединение с RabbitMQ; без него работает только polling.
	Conn *mq.Connection

	PollInterval time.Duration // интервал polling (default: 10s)
	SyncInterval time.Duration // интервал синхронизации статусов (default: 30s)
	BatchSize    int           // количество деплоев за один проход (default: 100)

	Metrics *telemetry.Metrics
	Logger  *slog.Logger
}

// New создаёт новый Orchestrator.
func New(cfg Config) *Orchestrator {
	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}

	syncInterval := cfg.SyncInterval
	if syncInterval <= 0 {
		syncInterval = defaultSyncInterval
	}

	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Orchestrator{
		store:        cfg.Store,
		substrate:    cfg.Substrate,
		pipeline:     cfg.Pipeline,
		publisher:    cfg.Publisher,
		conn:         cfg.Conn,
		active:       make(map[uuid.UUID]struct{}),
		pollInterval: pollInterval,
		syncInterval: syncInterval,
		batchSize:    batchSize,
		metrics:      cfg.Metrics,
		logger:       logger,
	}
}

// Start запускает Orchestrator.
//
// Запускает:
//   - Consumer для deployments.requested (если есть соединение)
//   - Polling горутину для fallback
//   - Горутину синхронизации статусов
func (o *Orchestrator) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	o.cancelFunc = cancel

	o.logger.Info("starting orchestrator",
		"poll_interval", o.pollInterval,
		"sync_interval", o.syncInterval,
		"batch_size", o.batchSize,
	)

	if o.conn != nil {
		o.consumer = mq.NewConsumer(o.conn, o.logger, mq.ConsumerConfig{
			Queue:    string(mq.QueueDeploymentsRequested),
			Handler:  o.handleDeploymentRequested,
			Prefetch: 4,
		})

		o.wg.Add(1)
		go func() {
			defer o.wg.Done()
			if err := o.consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				o.logger.Error("deployment consumer error", "error", err)
			}
		}()
	}

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.loop(ctx, o.pollInterval, o.poll)
	}()

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.loop(ctx, o.syncInterval, o.sync)
	}()

	o.logger.Info("orchestrator started")
	return nil
}

// Stop останавливает Orchestrator и ждёт завершения горутин.
func (o *Orchestrator) Stop() {
	o.stoppedMu.Lock()
	o.stopped = true
	o.stoppedMu.Unlock()

	o.logger.Info("stopping orchestrator...")

	if o.cancelFunc != nil {
		o.cancelFunc()
	}
	if o.consumer != nil {
		o.consumer.Stop()
	}

	o.wg.Wait()

	o.logger.Info("orchestrator stopped", "active_deployments", o.ActiveCount())
}

// IsStopped проверяет, остановлен ли Orchestrator.
func (o *Orchestrator) IsStopped() bool {
	o.stoppedMu.RLock()
	defer o.stoppedMu.RUnlock()
	return o.stopped
}

// loop вызывает fn сразу и затем каждые interval до отмены ctx.
func (o *Orchestrator) loop(ctx context.Context, interval time.Duration, fn func(context.Context)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Первый проход сразу при старте (подхватываем то, что накопилось,
	// пока оркестратор был выключен)
	fn(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn(ctx)
		}
	}
}

// tryActivate помечает деплой активным; false, если он уже в обработке.
func (o *Orchestrator) tryActivate(id uuid.UUID) bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	if _, exists := o.active[id]; exists {
		return false
	}
	o.active[id] = struct{}{}
	return true
}

func (o *Orchestrator) deactivate(id uuid.UUID) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.active, id)
}

// IsActive проверяет, находится ли деплой в обработке.
func (o *Orchestrator) IsActive(id uuid.UUID) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, exists := o.active[id]
	return exists
}

// ActiveCount возвращает количество деплоев в обработке.
func (o *Orchestrator) ActiveCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.active)
}
