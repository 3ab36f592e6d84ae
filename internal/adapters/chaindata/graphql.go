package chaindata

import (
	"fmt"
	"sort"
	"time"

	"github.com/okian/axiesales/internal/domain/model"
)

// assetContract is the ERC-721 contract of the assets.
const assetContract = "0x32950db2a7164ae833121501c797d79e7b79d74c"

const getAssetDataQuery = `query GetAxieData($axieId: ID!, $lastNDays: Int = 30) {
  axie(axieId: $axieId) {
    earnedAxpStat(lastNDays: $lastNDays)
    bodyShape
    breedCount
    class
    title
    parts { id stage type }
    axpInfo { level xp }
    stage
  }
}`

const getAssetActivitiesQuery = `query GetAxieActivities($tokenAddress: String!, $tokenId: BigDecimal, $size: Int!) {
  axieActivities: tokenActivities(
    tokenAddress: $tokenAddress
    tokenId: $tokenId
    size: $size
    activityTypes: [EvolveAxie, AscendAxie, BreedAxie, DevolveAxie]
  ) {
    activityType
    createdAt
    activityDetails {
      ... on AxiePartUpdateActivity { partType partStage }
      ... on AscendAxieActivity { level }
    }
  }
}`

type graphQLRequest struct {
	Query         string         `json:"query"`
	OperationName string         `json:"operationName"`
	Variables     map[string]any `json:"variables"`
}

type graphQLError struct {
	Message string `json:"message"`
}

type assetData struct {
	Axie *struct {
		EarnedAxpStat map[string][]struct {
			XP int `json:"xp"`
		} `json:"earnedAxpStat"`
		BodyShape  string `json:"bodyShape"`
		BreedCount int    `json:"breedCount"`
		Class      string `json:"class"`
		Title      string `json:"title"`
		Parts      []struct {
			ID    string `json:"id"`
			Stage int    `json:"stage"`
			Type  string `json:"type"`
		} `json:"parts"`
		AxpInfo struct {
			Level int `json:"level"`
			XP    int `json:"xp"`
		} `json:"axpInfo"`
		Stage int `json:"stage"`
	} `json:"axie"`
}

type activitiesData struct {
	Activities []struct {
		ActivityType string `json:"activityType"`
		CreatedAt    int64  `json:"createdAt"`
		Details      struct {
			PartType  string `json:"partType"`
			PartStage int    `json:"partStage"`
			Level     int    `json:"level"`
		} `json:"activityDetails"`
	} `json:"axieActivities"`
}

// earnedDayLayouts are the accepted earnedAxpStat keys.
var earnedDayLayouts = []string{"2006-01-02", time.RFC3339, "20060102"}

func parseDay(s string) (time.Time, error) {
	for _, layout := range earnedDayLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			y, m, d := t.UTC().Date()
			return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: unrecognized day %q", ErrDecode, s)
}

// toAsset maps the provider view; earned XP is summed per day, newest first.
func (d assetData) toAsset(id int64) (model.Asset, error) {
	a := d.Axie
	asset := model.Asset{
		ID:        id,
		Stage:     a.Stage,
		Class:     a.Class,
		BodyShape: a.BodyShape,
		Title:     a.Title,
		Snapshot: model.AttributeSnapshot{
			Level:      a.AxpInfo.Level,
			XP:         a.AxpInfo.XP,
			BreedCount: a.BreedCount,
			Parts:      make(model.Parts, len(a.Parts)),
		},
	}
	for _, p := range a.Parts {
		slot := model.PartSlot(p.Type)
		if !slot.Valid() {
			continue
		}
		asset.Snapshot.Parts[slot] = model.PartState{PartID: p.ID, Stage: p.Stage}
	}

	for key, sources := range a.EarnedAxpStat {
		day, err := parseDay(key)
		if err != nil {
			return model.Asset{}, err
		}
		total := 0
		for _, s := range sources {
			total += s.XP
		}
		asset.EarnedXP = append(asset.EarnedXP, model.DailyXP{Date: day, XP: total})
	}
	sort.Slice(asset.EarnedXP, func(i, j int) bool {
		return asset.EarnedXP[i].Date.After(asset.EarnedXP[j].Date)
	})
	return asset, nil
}

func (d activitiesData) toActivities() model.Activities {
	out := make(model.Activities, 0, len(d.Activities))
	for _, a := range d.Activities {
		ev := model.ActivityEvent{
			Type:      model.ActivityType(a.ActivityType),
			CreatedAt: a.CreatedAt,
		}
		switch ev.Type {
		case model.ActivityEvolve, model.ActivityDevolve:
			ev.Slot = model.PartSlot(a.Details.PartType)
			ev.ResultingStage = a.Details.PartStage
		case model.ActivityAscend:
			ev.ResultingLevel = a.Details.Level
		}
		out = append(out, ev)
	}
	return out
}
