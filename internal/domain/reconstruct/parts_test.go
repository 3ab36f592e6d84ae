package reconstruct

import (
	"context"
	"errors"
	"math/rand"
	"testing"

	"github.com/okian/axiesales/internal/domain/model"
	"github.com/okian/axiesales/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func newPartVerifier(c PartCatalog) *partVerifier {
	return &partVerifier{catalog: c, logger: logger.Get().Named("test")}
}

func withPart(parts model.Parts, slot model.PartSlot, id string, stage int) model.Parts {
	out := parts.Clone()
	out[slot] = model.PartState{PartID: id, Stage: stage}
	return out
}

func TestVerifyPartStages(t *testing.T) {
	ctx := context.Background()

	Convey("Given an asset's current parts", t, func() {
		catalog := standardCatalog()
		v := newPartVerifier(catalog)
		current := standardParts()

		Convey("With no activity the parts are returned unchanged", func() {
			res, err := v.verify(ctx, current, nil, saleDate)
			So(err, ShouldBeNil)
			So(res.Parts, ShouldResemble, current)
			So(res.Mutated, ShouldBeEmpty)
			So(catalog.lookups, ShouldBeEmpty)
		})

		Convey("With only breed and ascend activity the parts are returned unchanged", func() {
			acts := model.Activities{breed(1741000000), ascend(20, 1739900000)}
			res, err := v.verify(ctx, current, acts, saleDate)
			So(err, ShouldBeNil)
			So(res.Parts, ShouldResemble, current)
		})

		Convey("Evolve then devolve before the sale leaves the part as it is", func() {
			acts := model.Activities{devolve(model.SlotEars, 1739900000), evolve(model.SlotEars, 1739800000)}
			res, err := v.verify(ctx, current, acts, saleDate)
			So(err, ShouldBeNil)
			So(res.Parts, ShouldResemble, current)
			So(res.Mutated, ShouldResemble, []model.PartSlot{model.SlotEars})
			So(res.MidEvolution, ShouldEqual, model.PartSlot(""))
		})

		Convey("An evolution in progress at sale time counts as evolved", func() {
			res, err := v.verify(ctx, current, model.Activities{evolve(model.SlotEars, 1739800000)}, saleDate)
			So(err, ShouldBeNil)
			So(res.Parts, ShouldResemble, withPart(current, model.SlotEars, "ears-nimo-2", 2))
			So(res.MidEvolution, ShouldEqual, model.SlotEars)
		})

		Convey("Evolve and devolve after the sale cancel out", func() {
			acts := model.Activities{devolve(model.SlotEars, 1742000000), evolve(model.SlotEars, 1741000000)}
			res, err := v.verify(ctx, current, acts, saleDate)
			So(err, ShouldBeNil)
			So(res.Parts, ShouldResemble, current)
		})

		Convey("A devolution after the sale restores the evolved variant", func() {
			acts := model.Activities{devolve(model.SlotEars, 1741000000), evolve(model.SlotEars, 1739900000)}
			res, err := v.verify(ctx, current, acts, saleDate)
			So(err, ShouldBeNil)
			So(res.Parts, ShouldResemble, withPart(current, model.SlotEars, "ears-nimo-2", 2))
			So(res.MidEvolution, ShouldEqual, model.PartSlot(""))
		})

		Convey("An evolution after the sale blocks in-progress attribution and is undone", func() {
			acts := model.Activities{
				devolve(model.SlotEars, 1742000000),
				evolve(model.SlotTail, 1741000000),
				evolve(model.SlotEars, 1739900000),
			}
			res, err := v.verify(ctx, current, acts, saleDate)
			So(err, ShouldBeNil)
			want := withPart(current, model.SlotEars, "ears-nimo-2", 2)
			want = withPart(want, model.SlotTail, "tail-hare", 1)
			So(res.Parts, ShouldResemble, want)
			So(catalog.lookups, ShouldResemble, []string{"ears-nimo", "tail-hare-2"})
		})

		Convey("Only the newest evolution before the sale is in progress", func() {
			acts := model.Activities{evolve(model.SlotEars, 1739900000), evolve(model.SlotTail, 1739800000)}
			res, err := v.verify(ctx, current, acts, saleDate)
			So(err, ShouldBeNil)
			So(res.Parts, ShouldResemble, withPart(current, model.SlotEars, "ears-nimo-2", 2))
			So(res.Mutated, ShouldResemble, []model.PartSlot{model.SlotEars})
			So(catalog.lookups, ShouldResemble, []string{"ears-nimo"})
		})

		Convey("Two evolutions after the sale are both undone", func() {
			acts := model.Activities{evolve(model.SlotEars, 1742000000), evolve(model.SlotTail, 1741000000)}
			res, err := v.verify(ctx, current, acts, saleDate)
			So(err, ShouldBeNil)
			So(res.Parts, ShouldResemble, withPart(current, model.SlotTail, "tail-hare", 1))
		})

		Convey("A devolution in the window pins its slot and the next evolution is in progress", func() {
			acts := model.Activities{
				devolve(model.SlotEars, 1739900000),
				evolve(model.SlotEyes, 1739800000),
				evolve(model.SlotEars, 1739700000),
			}
			res, err := v.verify(ctx, current, acts, saleDate)
			So(err, ShouldBeNil)
			So(res.Parts, ShouldResemble, withPart(current, model.SlotEyes, "eyes-telescope-2", 2))
			So(res.MidEvolution, ShouldEqual, model.SlotEyes)
		})

		Convey("A post-sale devolution and an in-progress evolution of another slot both apply", func() {
			acts := model.Activities{
				devolve(model.SlotEars, 1741000000),
				evolve(model.SlotEyes, 1739900000),
				evolve(model.SlotEars, 1739800000),
			}
			res, err := v.verify(ctx, current, acts, saleDate)
			So(err, ShouldBeNil)
			want := withPart(current, model.SlotEars, "ears-nimo-2", 2)
			want = withPart(want, model.SlotEyes, "eyes-telescope-2", 2)
			So(res.Parts, ShouldResemble, want)
		})

		Convey("Evolutions older than the grace window are ignored", func() {
			acts := model.Activities{evolve(model.SlotEars, saleDate-evolutionGrace-1)}
			res, err := v.verify(ctx, current, acts, saleDate)
			So(err, ShouldBeNil)
			So(res.Parts, ShouldResemble, current)
		})

		Convey("An evolution exactly at the start of the grace window is in progress", func() {
			acts := model.Activities{evolve(model.SlotEars, saleDate-evolutionGrace)}
			res, err := v.verify(ctx, current, acts, saleDate)
			So(err, ShouldBeNil)
			So(res.Parts[model.SlotEars], ShouldResemble, model.PartState{PartID: "ears-nimo-2", Stage: 2})
		})

		Convey("An evolution exactly at the sale timestamp is ignored", func() {
			acts := model.Activities{evolve(model.SlotEars, saleDate)}
			res, err := v.verify(ctx, current, acts, saleDate)
			So(err, ShouldBeNil)
			So(res.Parts, ShouldResemble, current)
			So(res.Mutated, ShouldBeEmpty)
		})

		Convey("The input map is not modified", func() {
			snapshot := current.Clone()
			_, err := v.verify(ctx, current, model.Activities{evolve(model.SlotEars, 1739800000)}, saleDate)
			So(err, ShouldBeNil)
			So(current, ShouldResemble, snapshot)
		})
	})

	Convey("Given a catalog that does not know the current part", t, func() {
		catalog := standardCatalog()
		v := newPartVerifier(catalog)
		current := withPart(standardParts(), model.SlotEars, "ears-new", 1)

		Convey("A refresh that brings the part in resolves it", func() {
			catalog.pending["ears-new"] = model.PartRecord{ID: "ears-new", Stage: 1}
			res, err := v.verify(ctx, current, model.Activities{evolve(model.SlotEars, 1739800000)}, saleDate)
			So(err, ShouldBeNil)
			So(catalog.refreshes, ShouldEqual, 1)
			So(res.Parts[model.SlotEars], ShouldResemble, model.PartState{PartID: "ears-new-2", Stage: 2})
		})

		Convey("A part still missing after refresh fails the run", func() {
			_, err := v.verify(ctx, current, model.Activities{evolve(model.SlotEars, 1739800000)}, saleDate)
			So(err, ShouldNotBeNil)
			So(errors.Is(err, ErrPartNotFound), ShouldBeTrue)
			var nf *PartNotFoundError
			So(errors.As(err, &nf), ShouldBeTrue)
			So(nf.PartID, ShouldEqual, "ears-new")
			So(catalog.refreshes, ShouldEqual, 1)
			So(catalog.lookups, ShouldResemble, []string{"ears-new", "ears-new"})
		})

		Convey("A failed refresh is returned", func() {
			catalog.refreshErr = errors.New("cdn unavailable")
			_, err := v.verify(ctx, current, model.Activities{evolve(model.SlotEars, 1739800000)}, saleDate)
			So(err, ShouldNotBeNil)
			So(errors.Is(err, catalog.refreshErr), ShouldBeTrue)
		})
	})

	Convey("Given an evolved part with no previous stage in the catalog", t, func() {
		catalog := standardCatalog()
		catalog.parts["tail-hare-2"] = model.PartRecord{ID: "tail-hare-2", Stage: 2}
		v := newPartVerifier(catalog)

		Convey("Undoing its evolution fails", func() {
			_, err := v.verify(ctx, standardParts(), model.Activities{evolve(model.SlotTail, 1741000000)}, saleDate)
			So(errors.Is(err, ErrNoPreviousStage), ShouldBeTrue)
		})
	})
}

func TestVerifyPartStagesProperties(t *testing.T) {
	ctx := context.Background()
	rng := rand.New(rand.NewSource(7))

	types := []model.ActivityType{model.ActivityEvolve, model.ActivityDevolve, model.ActivityBreed, model.ActivityAscend}

	Convey("Given random activity logs", t, func() {
		for i := 0; i < 200; i++ {
			n := rng.Intn(8)
			acts := make(model.Activities, 0, n)
			at := saleDate + 500000
			for j := 0; j < n; j++ {
				at -= int64(rng.Intn(200000))
				ev := model.ActivityEvent{
					Type:      types[rng.Intn(len(types))],
					CreatedAt: at,
					Slot:      model.Slots[rng.Intn(len(model.Slots))],
				}
				switch ev.Type {
				case model.ActivityEvolve:
					ev.ResultingStage = 2
				case model.ActivityDevolve:
					ev.ResultingStage = 1
				case model.ActivityAscend:
					ev.ResultingLevel = 2 + rng.Intn(58)
				}
				acts = append(acts, ev)
			}

			catalog := standardCatalog()
			res, err := newPartVerifier(catalog).verify(ctx, standardParts(), acts, saleDate)
			So(err, ShouldBeNil)

			So(len(res.Parts), ShouldEqual, len(model.Slots))
			for _, slot := range model.Slots {
				state, ok := res.Parts[slot]
				So(ok, ShouldBeTrue)
				So(state.PartID, ShouldNotBeEmpty)
				So(state.Stage, ShouldBeBetweenOrEqual, 1, 2)
			}

			if res.MidEvolution != "" {
				So(res.Mutated, ShouldContain, res.MidEvolution)
				So(res.Parts[res.MidEvolution].Stage, ShouldEqual, model.StageEvolved)
			}

			hasStageEvents := false
			for _, a := range acts {
				if a.Type == model.ActivityEvolve || a.Type == model.ActivityDevolve {
					hasStageEvents = true
				}
			}
			if !hasStageEvents {
				So(res.Parts, ShouldResemble, standardParts())
			}
		}
	})
}
