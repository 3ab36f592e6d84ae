package reconstruct

import (
	"context"
	"errors"
	"sync"

	"github.com/okian/axiesales/internal/domain/model"
	"github.com/okian/axiesales/pkg/logger"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

// saleDate is 2025-02-19 21:20:00 UTC.
const saleDate int64 = 1740000000

type fakeCatalog struct {
	mu         sync.Mutex
	parts      map[string]model.PartRecord
	pending    map[string]model.PartRecord // added on refresh
	refreshErr error
	refreshes  int
	lookups    []string
}

func newFakeCatalog(records ...model.PartRecord) *fakeCatalog {
	c := &fakeCatalog{parts: map[string]model.PartRecord{}, pending: map[string]model.PartRecord{}}
	for _, r := range records {
		c.parts[r.ID] = r
	}
	return c
}

func (c *fakeCatalog) GetPart(_ context.Context, id string) (model.PartRecord, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lookups = append(c.lookups, id)
	r, ok := c.parts[id]
	return r, ok, nil
}

func (c *fakeCatalog) RefreshLatestVersion(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.refreshes++
	if c.refreshErr != nil {
		return c.refreshErr
	}
	for id, r := range c.pending {
		c.parts[id] = r
	}
	return nil
}

func standardCatalog() *fakeCatalog {
	return newFakeCatalog(
		model.PartRecord{ID: "eyes-telescope", Class: "aquatic", Stage: 1},
		model.PartRecord{ID: "ears-nimo", Class: "aquatic", Stage: 1},
		model.PartRecord{ID: "mouth-little-owl", Class: "bird", Stage: 1},
		model.PartRecord{ID: "horn-eggshell-2", Class: "bug", Stage: 2, PreviousStageID: "horn-eggshell"},
		model.PartRecord{ID: "back-pigeon-post", Class: "bird", Stage: 1},
		model.PartRecord{ID: "tail-hare-2", Class: "beast", Stage: 2, PreviousStageID: "tail-hare"},
	)
}

func standardParts() model.Parts {
	return model.Parts{
		model.SlotEyes:  {PartID: "eyes-telescope", Stage: 1},
		model.SlotEars:  {PartID: "ears-nimo", Stage: 1},
		model.SlotMouth: {PartID: "mouth-little-owl", Stage: 1},
		model.SlotHorn:  {PartID: "horn-eggshell-2", Stage: 2},
		model.SlotBack:  {PartID: "back-pigeon-post", Stage: 1},
		model.SlotTail:  {PartID: "tail-hare-2", Stage: 2},
	}
}

func evolve(slot model.PartSlot, at int64) model.ActivityEvent {
	return model.ActivityEvent{Type: model.ActivityEvolve, CreatedAt: at, Slot: slot, ResultingStage: 2}
}

func devolve(slot model.PartSlot, at int64) model.ActivityEvent {
	return model.ActivityEvent{Type: model.ActivityDevolve, CreatedAt: at, Slot: slot, ResultingStage: 1}
}

func ascend(level int, at int64) model.ActivityEvent {
	return model.ActivityEvent{Type: model.ActivityAscend, CreatedAt: at, ResultingLevel: level}
}

func breed(at int64) model.ActivityEvent {
	return model.ActivityEvent{Type: model.ActivityBreed, CreatedAt: at}
}

type fakeSource struct {
	asset         model.Asset
	activities    model.Activities
	assetErr      error
	activitiesErr error
}

func (s *fakeSource) GetAssetData(context.Context, int64) (model.Asset, error) {
	if s.assetErr != nil {
		return model.Asset{}, s.assetErr
	}
	a := s.asset
	a.Snapshot = a.Snapshot.Clone()
	return a, nil
}

func (s *fakeSource) GetAssetActivities(context.Context, int64) (model.Activities, error) {
	if s.activitiesErr != nil {
		return nil, s.activitiesErr
	}
	return s.activities, nil
}

var errStoreDown = errors.New("store down")

type fakeStore struct {
	mu    sync.Mutex
	rows  map[string]model.Sale
	calls int
	err   error
}

func newFakeStore() *fakeStore { return &fakeStore{rows: map[string]model.Sale{}} }

func (s *fakeStore) Insert(_ context.Context, sale model.Sale) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return false, s.err
	}
	key := model.SaleMessage{TransactionHash: sale.TransactionHash, AxieID: sale.AxieID}.Key()
	if _, ok := s.rows[key]; ok {
		return false, nil
	}
	s.rows[key] = sale
	return true, nil
}
