package model

import (
	"sort"
	"time"
)

// PartSlot is one of the six body locations that carry a part.
type PartSlot string

// Body part slots.
const (
	SlotBack  PartSlot = "Back"
	SlotEars  PartSlot = "Ears"
	SlotEyes  PartSlot = "Eyes"
	SlotHorn  PartSlot = "Horn"
	SlotMouth PartSlot = "Mouth"
	SlotTail  PartSlot = "Tail"
)

// Slots lists every part slot in name order.
var Slots = []PartSlot{SlotBack, SlotEars, SlotEyes, SlotHorn, SlotMouth, SlotTail}

// Valid reports whether s is a known slot.
func (s PartSlot) Valid() bool {
	for _, known := range Slots {
		if s == known {
			return true
		}
	}
	return false
}

// Part stages.
const (
	StageBase    = 1
	StageEvolved = 2
)

// AssetStageEgg marks an unhatched, non-tradeable asset.
const AssetStageEgg = 1

// PartState is the part occupying a slot.
type PartState struct {
	PartID string
	Stage  int
}

// Parts maps each slot to its part.
type Parts map[PartSlot]PartState

// Clone returns an independent copy of p.
func (p Parts) Clone() Parts {
	out := make(Parts, len(p))
	for slot, state := range p {
		out[slot] = state
	}
	return out
}

// SortedSlots returns the slots present in p ordered by name.
func (p Parts) SortedSlots() []PartSlot {
	slots := make([]PartSlot, 0, len(p))
	for slot := range p {
		slots = append(slots, slot)
	}
	sort.Slice(slots, func(i, j int) bool { return slots[i] < slots[j] })
	return slots
}

// AttributeSnapshot holds the mutable attributes of an asset at a point in time.
type AttributeSnapshot struct {
	Level      int
	XP         int
	BreedCount int
	Parts      Parts
}

// Clone returns a deep copy of s.
func (s AttributeSnapshot) Clone() AttributeSnapshot {
	s.Parts = s.Parts.Clone()
	return s
}

// DailyXP is the XP summed over one calendar day (UTC).
type DailyXP struct {
	Date time.Time
	XP   int
}

// Asset is the provider's present-day view of an asset.
type Asset struct {
	ID        int64
	Stage     int
	Class     string
	BodyShape string
	Title     string
	Snapshot  AttributeSnapshot
	EarnedXP  []DailyXP
}

// Immature reports whether the asset cannot have been traded as an adult.
func (a Asset) Immature() bool {
	return a.Stage == AssetStageEgg
}

// PartRecord is a catalog entry describing a part.
type PartRecord struct {
	ID              string
	Name            string
	Class           string
	Type            string
	Stage           int
	PreviousStageID string
	SpecialGenes    string
}
