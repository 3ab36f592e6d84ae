// Package service wires the sale reconstruction pipeline and implements the
// dependencies required by the HTTP API.
package service

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/okian/axiesales/internal/adapters/chaindata"
	salequeue "github.com/okian/axiesales/internal/adapters/mq/queue"
	workerpool "github.com/okian/axiesales/internal/adapters/mq/worker"
	"github.com/okian/axiesales/internal/adapters/partcatalog"
	"github.com/okian/axiesales/internal/adapters/repository"
	"github.com/okian/axiesales/internal/config"
	"github.com/okian/axiesales/internal/domain/dedupe"
	"github.com/okian/axiesales/internal/domain/model"
	"github.com/okian/axiesales/internal/domain/reconstruct"
	"github.com/okian/axiesales/pkg/logger"
)

// Service owns the pipeline: ingress dedupe, queue, workers, reconstructor,
// part catalog and sale store.
type Service struct {
	mu sync.RWMutex

	cfg *config.Config

	// Core components
	store         *repository.Store
	catalog       *partcatalog.Catalog
	reconstructor *reconstruct.Reconstructor
	deduper       dedupe.Deduper
	queue         *salequeue.InMemoryQueue
	pool          *workerpool.Pool

	// Upstreams, built from cfg unless injected.
	assetSource reconstruct.AssetSource
	partSource  partcatalog.Source

	// State
	started   bool
	startedAt time.Time
	cancel    context.CancelFunc

	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithAssetSource replaces the chain data provider.
func WithAssetSource(src reconstruct.AssetSource) Option {
	return func(s *Service) {
		if src != nil {
			s.assetSource = src
		}
	}
}

// WithPartSource replaces the part data CDN.
func WithPartSource(src partcatalog.Source) Option {
	return func(s *Service) {
		if src != nil {
			s.partSource = src
		}
	}
}

// New constructs a Service from cfg. Nothing is opened until Start.
func New(cfg *config.Config, opts ...Option) *Service {
	s := &Service{
		cfg:     cfg,
		deduper: dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(cfg.DedupeSize)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start opens the store, syncs the part catalog and starts the workers.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}
	s.logger.Info(ctx, "starting sales service...")

	db, err := repository.NewDB(s.cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	s.store = repository.New(db)

	httpClient := &http.Client{Timeout: s.cfg.FetchTimeout()}
	if s.partSource == nil {
		s.partSource = partcatalog.NewCDNSource(httpClient, s.cfg.PartsCDNURL, s.cfg.PartsSearchDays)
	}
	if s.assetSource == nil {
		s.assetSource = chaindata.New(s.cfg.ChainAPIURL, s.cfg.ChainAPIKey,
			chaindata.WithHTTPClient(httpClient),
			chaindata.WithRetry(s.cfg.FetchRetries, s.cfg.FetchBackoff()),
			chaindata.WithBreaker(s.cfg.BreakerMaxFailures, s.cfg.BreakerOpenTimeout()),
			chaindata.WithPageSize(s.cfg.ActivityPageSize),
		)
	}

	s.catalog = partcatalog.New(s.store, s.partSource)
	if err := s.catalog.EnsureInitialized(ctx); err != nil {
		// Lookups refresh on a miss, so the service can still make progress
		// once the CDN is reachable.
		s.logger.Warn(ctx, "part catalog not initialized", logger.Error(err))
	}

	s.reconstructor = reconstruct.New(s.assetSource, s.catalog, s.store,
		reconstruct.WithStrictOrdering(s.cfg.StrictOrdering),
		reconstruct.WithRealtimeWindow(s.cfg.RealtimeWindow()),
	)
	s.queue = salequeue.NewInMemoryQueue(
		salequeue.WithCapacity(s.cfg.QueueSize),
		salequeue.WithMaxDeliveries(s.cfg.MaxDeliveries),
		salequeue.WithRedeliveryDelay(s.cfg.RedeliveryDelay()),
		salequeue.WithDropHandler(s.forget),
	)
	s.pool = workerpool.NewPool(s.cfg.WorkerCount, s.queue, s.reconstructor)

	// Workers outlive the caller's context so Stop can let them drain.
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel
	s.pool.Start(runCtx)

	s.started = true
	s.startedAt = time.Now()
	s.logger.Info(ctx, "sales service started",
		logger.Int("workers", s.pool.Size()),
		logger.Int("queue_size", s.cfg.QueueSize),
		logger.Int("dedupe_size", s.cfg.DedupeSize),
		logger.String("database", s.cfg.DatabasePath),
	)
	return nil
}

// Stop closes the queue, waits for the workers to drain it within ctx and
// closes the store.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}
	s.logger.Info(ctx, "stopping sales service...")

	drainErr := s.pool.Shutdown(ctx)
	if drainErr != nil {
		s.logger.Warn(ctx, "workers did not drain", logger.Error(drainErr))
	}
	s.cancel()

	if err := s.store.Close(); err != nil {
		s.logger.Error(ctx, "closing store failed", logger.Error(err))
	}

	s.started = false
	s.logger.Info(ctx, "sales service stopped")
	return drainErr
}

// SeenAndRecord reports whether the sale key was already accepted and
// records it if not.
func (s *Service) SeenAndRecord(ctx context.Context, key string) bool {
	return s.deduper.SeenAndRecord(ctx, key)
}

// Unrecord forgets a sale key so it can be submitted again.
func (s *Service) Unrecord(ctx context.Context, key string) {
	s.deduper.Unrecord(ctx, key)
}

// forget releases the dedupe entry of a sale the queue gave up on, so a
// resubmission is processed instead of acknowledged as a duplicate.
func (s *Service) forget(m model.SaleMessage) {
	s.deduper.Unrecord(context.Background(), m.Key())
}

// Size returns the current number of entries in the deduper.
func (s *Service) Size() int64 {
	return s.deduper.Size()
}

// Enqueue submits a sale for asynchronous reconstruction.
func (s *Service) Enqueue(ctx context.Context, m model.SaleMessage) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return salequeue.ErrStopped
	}
	s.logger.Debug(ctx, "enqueueing sale",
		logger.String("tx_hash", m.TransactionHash),
		logger.Int64("axie_id", m.AxieID),
		logger.Int64("sale_date", m.SaleDate),
	)
	return s.queue.Enqueue(ctx, m)
}

// RefreshParts forces a part catalog resync.
func (s *Service) RefreshParts(ctx context.Context) error {
	s.mu.RLock()
	catalog := s.catalog
	s.mu.RUnlock()
	if catalog == nil {
		return salequeue.ErrStopped
	}
	return catalog.RefreshLatestVersion(ctx)
}

// Sale returns a stored sale.
func (s *Service) Sale(ctx context.Context, txHash string, axieID int64) (model.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.store == nil {
		return model.Sale{}, repository.ErrNotFound
	}
	return s.store.Get(ctx, txHash, axieID)
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx := context.Background()
	stats := map[string]interface{}{
		"started":    s.started,
		"dedupeSize": s.Size(),
	}
	if !s.started {
		return stats
	}

	c := s.pool.Counters()
	stats["uptimeSeconds"] = int64(time.Since(s.startedAt).Seconds())
	stats["workerCount"] = s.pool.Size()
	stats["queueCapacity"] = s.cfg.QueueSize
	stats["queueLength"] = s.queue.Len(ctx)
	stats["pendingRedeliveries"] = s.queue.Pending()
	stats["processed"] = c.Processed
	stats["failed"] = c.Failed
	stats["duplicates"] = c.Duplicates
	stats["skippedImmature"] = c.Skipped

	if n, err := s.store.CountSales(ctx); err == nil {
		stats["storedSales"] = n
	} else {
		s.logger.Warn(ctx, "count sales failed", logger.Error(err))
	}
	if n, err := s.store.CountParts(ctx); err == nil {
		stats["catalogParts"] = n
	}
	if v, err := s.store.PartsVersion(ctx); err == nil {
		stats["partsVersion"] = v
	}
	return stats
}
