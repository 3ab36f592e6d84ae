package reconstruct

import (
	"context"
	"fmt"

	"github.com/okian/axiesales/internal/domain/model"
	"github.com/okian/axiesales/pkg/logger"
)

// evolutionGrace is how long a part takes to finish evolving. An evolution
// started within this window before a sale was still in progress at sale time.
const evolutionGrace int64 = 4 * 24 * 60 * 60

// stageTwoID derives the id of the evolved variant of a base part.
func stageTwoID(baseID string) string {
	return baseID + "-2"
}

func clampStage(stage int) int {
	if stage < model.StageBase {
		return model.StageBase
	}
	if stage > model.StageEvolved {
		return model.StageEvolved
	}
	return stage
}

// partsResult is the outcome of a part stage verification.
type partsResult struct {
	Parts        model.Parts
	Mutated      []model.PartSlot // slots whose stage was re-evaluated, name order
	MidEvolution model.PartSlot   // slot that was evolving at sale time, if any
}

// partVerifier rolls part stages back to the sale time and resolves the
// matching part ids from the catalog.
type partVerifier struct {
	catalog PartCatalog
	logger  logger.Logger
}

// verify applies the evolve/devolve history to parts.
//
// Post-sale evolutions and devolutions are undone. Within the grace window
// before the sale a devolution pins the slot at its current stage, and the
// newest evolution of an untouched slot is treated as complete at sale time,
// provided nothing evolved after the sale. Only one part evolves at a time so
// the scan ends there.
func (v *partVerifier) verify(ctx context.Context, current model.Parts, activities model.Activities, saleDate int64) (partsResult, error) {
	parts := current.Clone()
	mutated := make(map[model.PartSlot]struct{})
	evolvedAfterSale := false
	var mid model.PartSlot

scan:
	for _, a := range activities {
		if a.Type != model.ActivityEvolve && a.Type != model.ActivityDevolve {
			continue
		}
		state, ok := parts[a.Slot]
		if !ok {
			v.logger.Warn(ctx, "activity references unknown part slot", logger.String("slot", string(a.Slot)))
			continue
		}

		switch {
		case a.CreatedAt > saleDate:
			if a.Type == model.ActivityEvolve {
				state.Stage = a.ResultingStage - 1
				evolvedAfterSale = true
			} else {
				state.Stage = a.ResultingStage + 1
			}
			parts[a.Slot] = state
			mutated[a.Slot] = struct{}{}

		case a.CreatedAt < saleDate && a.CreatedAt >= saleDate-evolutionGrace:
			if evolvedAfterSale {
				continue
			}
			if a.Type == model.ActivityEvolve {
				if _, seen := mutated[a.Slot]; seen {
					continue
				}
				state.Stage = a.ResultingStage
				parts[a.Slot] = state
				mutated[a.Slot] = struct{}{}
				mid = a.Slot
				break scan
			}
			mutated[a.Slot] = struct{}{}
		}
	}

	res := partsResult{Parts: parts, MidEvolution: mid}
	for _, slot := range parts.SortedSlots() {
		if _, ok := mutated[slot]; !ok {
			continue
		}
		res.Mutated = append(res.Mutated, slot)

		state := parts[slot]
		if clamped := clampStage(state.Stage); clamped != state.Stage {
			v.logger.Warn(ctx, "part stage out of range after rollback; clamping",
				logger.String("slot", string(slot)),
				logger.Int("stage", state.Stage),
			)
			state.Stage = clamped
		}

		resolved, err := v.resolveID(ctx, state)
		if err != nil {
			return partsResult{}, fmt.Errorf("resolve %s part: %w", slot, err)
		}
		state.PartID = resolved
		parts[slot] = state
	}
	return res, nil
}

// resolveID maps the slot's current part id to the id of the variant at the
// target stage.
func (v *partVerifier) resolveID(ctx context.Context, target model.PartState) (string, error) {
	rec, err := v.lookup(ctx, target.PartID)
	if err != nil {
		return "", err
	}
	switch {
	case rec.Stage < target.Stage:
		return stageTwoID(rec.ID), nil
	case rec.Stage > target.Stage:
		if rec.PreviousStageID == "" {
			return "", fmt.Errorf("%w: %s", ErrNoPreviousStage, rec.ID)
		}
		return rec.PreviousStageID, nil
	default:
		return target.PartID, nil
	}
}

// lookup fetches a part, forcing one catalog refresh on a miss.
func (v *partVerifier) lookup(ctx context.Context, id string) (model.PartRecord, error) {
	rec, ok, err := v.catalog.GetPart(ctx, id)
	if err != nil {
		return model.PartRecord{}, fmt.Errorf("get part %s: %w", id, err)
	}
	if ok {
		return rec, nil
	}

	v.logger.Warn(ctx, "part missing from catalog; refreshing", logger.String("part_id", id))
	if err := v.catalog.RefreshLatestVersion(ctx); err != nil {
		return model.PartRecord{}, fmt.Errorf("refresh catalog: %w", err)
	}

	rec, ok, err = v.catalog.GetPart(ctx, id)
	if err != nil {
		return model.PartRecord{}, fmt.Errorf("get part %s: %w", id, err)
	}
	if !ok {
		v.logger.Error(ctx, "part still missing after catalog refresh", logger.String("part_id", id))
		return model.PartRecord{}, &PartNotFoundError{PartID: id}
	}
	return rec, nil
}
