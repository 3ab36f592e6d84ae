package reconstruct

import (
	"sort"
	"time"

	"github.com/okian/axiesales/internal/domain/curve"
	"github.com/okian/axiesales/internal/domain/model"
)

// levelState is a (level, xp) pair.
type levelState struct {
	Level int
	XP    int
}

// sameDay reports whether a and b fall on the same UTC calendar date.
func sameDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}

func day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// estimateLevel rolls the current level and XP back to saleDate.
//
// XP earned after the sale day is removed from the running total; XP earned
// on the sale day itself cannot be split and stays. An ascension after the
// sale caps the result at the top of the level below the ascended one.
// The second return value is true when the subtracted XP exceeded the total.
func estimateLevel(current levelState, earned []model.DailyXP, activities model.Activities, saleDate int64, now time.Time) (levelState, bool) {
	sale := time.Unix(saleDate, 0).UTC()
	if sameDay(sale, now) {
		return current, false
	}

	total := curve.CumulativeXP(current.Level) + current.XP

	days := make([]model.DailyXP, len(earned))
	copy(days, earned)
	sort.Slice(days, func(i, j int) bool { return days[i].Date.After(days[j].Date) })

	saleDay := day(sale)
	for _, d := range days {
		if !day(d.Date).After(saleDay) {
			break
		}
		total -= d.XP
	}

	underflow := total < 0
	// A past state cannot be above the current level.
	level, xp := curve.LevelForMax(total, current.Level)
	est := levelState{Level: level, XP: xp}

	for _, a := range activities {
		if a.CreatedAt > saleDate {
			below := a.ResultingLevel - 1
			if a.Type == model.ActivityAscend && below >= curve.MinLevel && below < est.Level {
				est.Level = below
				est.XP = curve.XPToNext(est.Level)
			}
			continue
		}
		if a.CreatedAt < saleDate {
			break
		}
	}
	return est, underflow
}
