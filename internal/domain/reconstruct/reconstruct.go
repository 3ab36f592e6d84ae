// Package reconstruct rebuilds an asset's mutable attributes as they were at
// the moment of a sale, from its present-day snapshot and recent activity.
package reconstruct

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/okian/axiesales/internal/domain/model"
	"github.com/okian/axiesales/pkg/logger"
	"github.com/okian/axiesales/pkg/metrics"
)

const (
	defaultRealtimeWindow = 60 * time.Second
	imageURLFormat        = "https://axiecdn.axieinfinity.com/axies/%d/axie/axie-full-transparent.png"
)

// AssetSource provides the present-day view and activity log of an asset.
type AssetSource interface {
	GetAssetData(ctx context.Context, axieID int64) (model.Asset, error)
	GetAssetActivities(ctx context.Context, axieID int64) (model.Activities, error)
}

// PartCatalog resolves part ids. RefreshLatestVersion must be safe to call
// concurrently.
type PartCatalog interface {
	GetPart(ctx context.Context, id string) (model.PartRecord, bool, error)
	RefreshLatestVersion(ctx context.Context) error
}

// SaleStore persists reconstructed sales. Insert returns false without error
// when the sale was already stored.
type SaleStore interface {
	Insert(ctx context.Context, sale model.Sale) (bool, error)
}

// Outcome describes how a sale message was handled.
type Outcome string

// Outcomes of Process.
const (
	OutcomeStored          Outcome = "stored"
	OutcomeDuplicate       Outcome = "duplicate"
	OutcomeSkippedImmature Outcome = "skipped_immature"
)

// Processing steps, used for logs and error metrics.
const (
	stepFetching       = "fetching"
	stepMaturityCheck  = "maturity_check"
	stepPartCorrection = "part_correction"
	stepPersist        = "persist"
)

// Reconstructor runs one sale through fetch, correction and persistence.
// It is safe for concurrent use; each call to Process is independent.
type Reconstructor struct {
	source  AssetSource
	catalog PartCatalog
	store   SaleStore

	now            func() time.Time
	realtimeWindow time.Duration
	strictOrdering bool

	logger logger.Logger
}

// New creates a Reconstructor.
func New(source AssetSource, catalog PartCatalog, store SaleStore, opts ...Option) *Reconstructor {
	r := &Reconstructor{
		source:         source,
		catalog:        catalog,
		store:          store,
		now:            time.Now,
		realtimeWindow: defaultRealtimeWindow,
		logger:         logger.Get().Named("reconstruct"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Process reconstructs the asset of msg at its sale time and stores it.
func (r *Reconstructor) Process(ctx context.Context, msg model.SaleMessage) (Outcome, error) {
	start := time.Now()
	defer func() {
		metrics.RecordReconstructionLatency(float64(time.Since(start).Milliseconds()))
	}()

	runID := uuid.NewString()
	fields := []logger.Field{
		logger.String("run_id", runID),
		logger.String("tx_hash", msg.TransactionHash),
		logger.Int64("axie_id", msg.AxieID),
	}
	r.logger.Info(ctx, "processing sale", append(fields, logger.Int("attempt", msg.Attempt))...)

	asset, err := r.source.GetAssetData(ctx, msg.AxieID)
	if err != nil {
		return r.fail(ctx, stepFetching, fmt.Errorf("get asset %d: %w", msg.AxieID, err), fields)
	}
	activities, err := r.source.GetAssetActivities(ctx, msg.AxieID)
	if err != nil {
		return r.fail(ctx, stepFetching, fmt.Errorf("get activities %d: %w", msg.AxieID, err), fields)
	}

	if asset.Immature() {
		r.logger.Info(ctx, "asset is an egg; skipping", fields...)
		metrics.RecordReconstruction(string(OutcomeSkippedImmature))
		return OutcomeSkippedImmature, nil
	}
	if missing := missingSlots(asset.Snapshot.Parts); len(missing) > 0 {
		return r.fail(ctx, stepMaturityCheck, fmt.Errorf("%w: %v", ErrIncompleteParts, missing), fields)
	}

	activities, err = r.ordered(ctx, activities, fields)
	if err != nil {
		return r.fail(ctx, stepMaturityCheck, err, fields)
	}

	snap, err := r.reconstruct(ctx, asset, activities, msg.SaleDate, fields)
	if err != nil {
		return r.fail(ctx, stepPartCorrection, err, fields)
	}

	now := r.now().UTC()
	sale := model.Sale{
		TransactionHash: msg.TransactionHash,
		AxieID:          msg.AxieID,
		SaleDate:        msg.SaleDate,
		Class:           asset.Class,
		BodyShape:       asset.BodyShape,
		Title:           asset.Title,
		ImageURL:        fmt.Sprintf(imageURLFormat, msg.AxieID),
		Snapshot:        snap,
		CreatedAt:       now,
		ModifiedAt:      now,
	}
	inserted, err := r.store.Insert(ctx, sale)
	if err != nil {
		return r.fail(ctx, stepPersist, fmt.Errorf("store sale: %w", err), fields)
	}
	if !inserted {
		r.logger.Info(ctx, "sale already stored; skipping insert", fields...)
		metrics.RecordReconstruction(string(OutcomeDuplicate))
		return OutcomeDuplicate, nil
	}

	r.logger.Info(ctx, "sale stored",
		append(fields,
			logger.Int("level", snap.Level),
			logger.Int("xp", snap.XP),
			logger.Int("breed_count", snap.BreedCount),
		)...,
	)
	metrics.RecordReconstruction(string(OutcomeStored))
	return OutcomeStored, nil
}

// reconstruct applies the part, level and breed corrections to the asset's
// current snapshot. Parts are always checked because an evolution is paid for
// when it starts and may finish with no further activity. Level, XP and breed
// count are only rolled back once the sale is older than the realtime window.
func (r *Reconstructor) reconstruct(ctx context.Context, asset model.Asset, activities model.Activities, saleDate int64, fields []logger.Field) (model.AttributeSnapshot, error) {
	snap := asset.Snapshot.Clone()

	pv := &partVerifier{catalog: r.catalog, logger: r.logger}
	parts, err := pv.verify(ctx, snap.Parts, activities, saleDate)
	if err != nil {
		return model.AttributeSnapshot{}, err
	}
	snap.Parts = parts.Parts
	metrics.RecordPartCorrections(len(parts.Mutated))
	if parts.MidEvolution != "" {
		metrics.RecordMidEvolution()
		r.logger.Debug(ctx, "part was evolving at sale time",
			append(fields, logger.String("slot", string(parts.MidEvolution)))...)
	}

	now := r.now()
	if now.Before(time.Unix(saleDate, 0).Add(r.realtimeWindow)) {
		r.logger.Debug(ctx, "sale within realtime window; trusting live level and breed count", fields...)
		return snap, nil
	}

	est, underflow := estimateLevel(levelState{Level: snap.Level, XP: snap.XP}, asset.EarnedXP, activities, saleDate, now)
	if underflow {
		metrics.RecordXPUnderflow()
		r.logger.Warn(ctx, "earned XP exceeds current total; flooring estimate", fields...)
	}
	snap.Level, snap.XP = est.Level, est.XP

	snap.BreedCount = verifyBreedCount(snap.BreedCount, activities, saleDate)
	if snap.BreedCount < 0 {
		metrics.RecordNegativeBreedCount()
		r.logger.Warn(ctx, "reconstructed breed count is negative",
			append(fields, logger.Int("breed_count", snap.BreedCount))...)
	}
	return snap, nil
}

// ordered returns activities newest first, re-sorting out of order input
// unless strict ordering is enabled.
func (r *Reconstructor) ordered(ctx context.Context, activities model.Activities, fields []logger.Field) (model.Activities, error) {
	if activities.Descending() {
		return activities, nil
	}
	if r.strictOrdering {
		return nil, ErrActivitiesUnordered
	}
	metrics.RecordActivitiesReordered()
	r.logger.Warn(ctx, "activities out of order; re-sorting", fields...)
	return activities.SortedDescending(), nil
}

func (r *Reconstructor) fail(ctx context.Context, step string, err error, fields []logger.Field) (Outcome, error) {
	metrics.RecordReconstructionError(step)
	r.logger.Error(ctx, "sale reconstruction failed",
		append(fields, logger.String("step", step), logger.Error(err))...)
	return "", err
}

func missingSlots(parts model.Parts) []model.PartSlot {
	var missing []model.PartSlot
	for _, slot := range model.Slots {
		if _, ok := parts[slot]; !ok {
			missing = append(missing, slot)
		}
	}
	return missing
}
