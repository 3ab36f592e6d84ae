// Package partcatalog keeps the local part table in sync with the published
// part data and answers part lookups for reconstruction.
package partcatalog

import (
	"context"
	"fmt"

	"golang.org/x/sync/singleflight"

	"github.com/okian/axiesales/internal/domain/model"
	"github.com/okian/axiesales/pkg/logger"
	"github.com/okian/axiesales/pkg/metrics"
)

const refreshKey = "refresh"

// Store is the persistent part table.
type Store interface {
	GetPart(ctx context.Context, id string) (model.PartRecord, bool, error)
	PartsVersion(ctx context.Context) (string, error)
	ReplaceParts(ctx context.Context, version string, parts []model.PartRecord) error
	CountParts(ctx context.Context) (int, error)
}

// Source finds the newest published release on or after a version.
type Source interface {
	Latest(ctx context.Context, current string) (*Release, error)
}

// Catalog serves part lookups from the store and resyncs it from the source.
// Concurrent refreshes share one upstream resync.
type Catalog struct {
	store  Store
	source Source
	group  singleflight.Group
	logger logger.Logger
}

// New creates a Catalog.
func New(store Store, source Source, opts ...Option) *Catalog {
	c := &Catalog{store: store, source: source}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = logger.Get().Named("partcatalog")
	}
	return c
}

// GetPart returns the part with id. ok is false when the catalog does not
// know it; callers decide whether to refresh.
func (c *Catalog) GetPart(ctx context.Context, id string) (model.PartRecord, bool, error) {
	p, ok, err := c.store.GetPart(ctx, id)
	if err != nil {
		return model.PartRecord{}, false, err
	}
	if !ok {
		metrics.RecordCatalogMiss()
	}
	return p, ok, nil
}

// RefreshLatestVersion resyncs the part table with the newest release.
// Callers arriving while a refresh is running wait for it and share its result.
func (c *Catalog) RefreshLatestVersion(ctx context.Context) error {
	ch := c.group.DoChan(refreshKey, func() (interface{}, error) {
		// detached so one caller's cancellation does not fail the others
		return nil, c.refresh(context.WithoutCancel(ctx))
	})
	select {
	case <-ctx.Done():
		return ctx.Err()
	case res := <-ch:
		return res.Err
	}
}

// EnsureInitialized loads a release when the part table has never been
// populated. It fails with ErrNoVersion if none can be found.
func (c *Catalog) EnsureInitialized(ctx context.Context) error {
	v, err := c.store.PartsVersion(ctx)
	if err != nil {
		return err
	}
	if v != "" {
		c.updateGauge(ctx)
		return nil
	}
	return c.RefreshLatestVersion(ctx)
}

func (c *Catalog) refresh(ctx context.Context) error {
	current, err := c.store.PartsVersion(ctx)
	if err != nil {
		metrics.RecordCatalogRefresh("error")
		return err
	}

	c.logger.Info(ctx, "looking for part data updates", logger.String("current_version", current))
	rel, err := c.source.Latest(ctx, current)
	if err != nil {
		metrics.RecordCatalogRefresh("error")
		c.logger.Error(ctx, "part data lookup failed", logger.Error(err))
		return fmt.Errorf("find part data release: %w", err)
	}
	if rel == nil {
		if current == "" {
			metrics.RecordCatalogRefresh("error")
			return ErrNoVersion
		}
		metrics.RecordCatalogRefresh("unchanged")
		c.logger.Info(ctx, "part data is up to date", logger.String("version", current))
		return nil
	}

	if err := c.store.ReplaceParts(ctx, rel.Version, rel.Parts); err != nil {
		metrics.RecordCatalogRefresh("error")
		return fmt.Errorf("store part data %s: %w", rel.Version, err)
	}
	metrics.RecordCatalogRefresh("updated")
	c.logger.Info(ctx, "part data updated",
		logger.String("version", rel.Version),
		logger.String("url", rel.URL),
		logger.Int("parts", len(rel.Parts)),
	)
	c.updateGauge(ctx)
	return nil
}

func (c *Catalog) updateGauge(ctx context.Context) {
	n, err := c.store.CountParts(ctx)
	if err != nil {
		c.logger.Warn(ctx, "count parts failed", logger.Error(err))
		return
	}
	metrics.UpdateCatalogParts(n)
}
