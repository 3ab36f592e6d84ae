// Package curve holds the experience curve that maps levels to XP.
package curve

// MinLevel and MaxLevel bound every level value.
const (
	MinLevel = 1
	MaxLevel = 60
)

type row struct {
	cumulative int // XP required to reach the level
	toNext     int // XP needed to go from the level to the next
}

// table is indexed by level-1. The deltas have no closed form.
var table = [MaxLevel]row{
	{0, 100},          // 1
	{100, 210},        // 2
	{310, 430},        // 3
	{740, 740},        // 4
	{1480, 1140},      // 5
	{2620, 1640},      // 6
	{4260, 2260},      // 7
	{6520, 2980},      // 8
	{9500, 3810},      // 9
	{13310, 4760},     // 10
	{18070, 5830},     // 11
	{23900, 7010},     // 12
	{30910, 8320},     // 13
	{39230, 9760},     // 14
	{48990, 11310},    // 15
	{60300, 13010},    // 16
	{73310, 14830},    // 17
	{88140, 16780},    // 18
	{104920, 18870},   // 19
	{123790, 21090},   // 20
	{144880, 23460},   // 21
	{168340, 25950},   // 22
	{194290, 28600},   // 23
	{222890, 31380},   // 24
	{254270, 34300},   // 25
	{288570, 37380},   // 26
	{325950, 40590},   // 27
	{366540, 43950},   // 28
	{410490, 47470},   // 29
	{457960, 51130},   // 30
	{509090, 54940},   // 31
	{564030, 58910},   // 32
	{622940, 63020},   // 33
	{685960, 67300},   // 34
	{753260, 71720},   // 35
	{824980, 76300},   // 36
	{901280, 81040},   // 37
	{982320, 85940},   // 38
	{1068260, 91000},  // 39
	{1159260, 96210},  // 40
	{1255470, 101590}, // 41
	{1357060, 107130}, // 42
	{1464190, 112820}, // 43
	{1577010, 118700}, // 44
	{1695710, 124720}, // 45
	{1820430, 130920}, // 46
	{1951350, 137280}, // 47
	{2088630, 143800}, // 48
	{2232430, 150500}, // 49
	{2382930, 157370}, // 50
	{2540300, 164390}, // 51
	{2704690, 171600}, // 52
	{2876290, 178970}, // 53
	{3055260, 186520}, // 54
	{3241780, 194240}, // 55
	{3436020, 202120}, // 56
	{3638140, 210190}, // 57
	{3848330, 218430}, // 58
	{4066760, 226840}, // 59
	{4293600, 235430}, // 60
}

func clamp(level int) int {
	if level < MinLevel {
		return MinLevel
	}
	if level > MaxLevel {
		return MaxLevel
	}
	return level
}

// CumulativeXP returns the total XP needed to reach level.
// Out of range levels are clamped.
func CumulativeXP(level int) int {
	return table[clamp(level)-1].cumulative
}

// XPToNext returns the XP delta from level to level+1.
// Out of range levels are clamped.
func XPToNext(level int) int {
	return table[clamp(level)-1].toNext
}

// LevelFor returns the highest level whose cumulative XP does not exceed
// totalXP, and the XP remaining above that level's threshold.
// Negative totals resolve to the first level with zero XP.
func LevelFor(totalXP int) (level, xp int) {
	return LevelForMax(totalXP, MaxLevel)
}

// LevelForMax is LevelFor with the search capped at maxLevel. XP beyond the
// cap stays on maxLevel, which is how an asset waiting to ascend is reported.
func LevelForMax(totalXP, maxLevel int) (level, xp int) {
	if totalXP <= 0 {
		return MinLevel, 0
	}
	for l := clamp(maxLevel); l > MinLevel; l-- {
		if totalXP >= table[l-1].cumulative {
			return l, totalXP - table[l-1].cumulative
		}
	}
	return MinLevel, totalXP
}
