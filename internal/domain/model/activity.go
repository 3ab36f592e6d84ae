package model

import "sort"

// ActivityType enumerates the activity kinds relevant to reconstruction.
type ActivityType string

// Activity types as reported by the provider.
const (
	ActivityEvolve  ActivityType = "EvolveAxie"
	ActivityDevolve ActivityType = "DevolveAxie"
	ActivityBreed   ActivityType = "BreedAxie"
	ActivityAscend  ActivityType = "AscendAxie"
)

// ActivityEvent is one entry of an asset's activity log.
// Slot and ResultingStage are set for evolve/devolve, ResultingLevel for ascend.
type ActivityEvent struct {
	Type           ActivityType
	CreatedAt      int64
	Slot           PartSlot
	ResultingStage int
	ResultingLevel int
}

// Activities is an activity log, newest first.
type Activities []ActivityEvent

// Descending reports whether the log is ordered newest first.
// Ties are allowed.
func (a Activities) Descending() bool {
	for i := 1; i < len(a); i++ {
		if a[i].CreatedAt > a[i-1].CreatedAt {
			return false
		}
	}
	return true
}

// SortedDescending returns a newest-first copy. Equal timestamps keep their
// original relative order.
func (a Activities) SortedDescending() Activities {
	out := make(Activities, len(a))
	copy(out, a)
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt > out[j].CreatedAt })
	return out
}
