package skill

import (
	"errors"
	"math"
)

// Level and experience bounds.
const (
	MaxRealLevel    = 99
	MaxVirtualLevel = 126
	MaxSkillXP      = 200_000_000
)

// ErrNegativeXP is returned when a level is requested for negative experience.
var ErrNegativeXP = errors.New("experience must not be negative")

// xpForLevel[i] is the experience required for level i+1.
var xpForLevel = buildTable()

func buildTable() [MaxVirtualLevel]int64 {
	var table [MaxVirtualLevel]int64
	var points int64
	for level := 1; level < MaxVirtualLevel; level++ {
		table[level-1] = points / 4
		points += int64(float64(level) + 300.0*math.Pow(2.0, float64(level)/7.0))
	}
	table[MaxVirtualLevel-1] = points / 4
	return table
}

// XPForLevel returns the experience needed to reach level, clamped to
// 1..MaxVirtualLevel.
func XPForLevel(level int) int64 {
	if level < 1 {
		level = 1
	}
	if level > MaxVirtualLevel {
		level = MaxVirtualLevel
	}
	return xpForLevel[level-1]
}

// LevelForXP returns the uncapped (virtual) level implied by xp: the highest
// level whose requirement does not exceed xp.
func LevelForXP(xp int64) (int, error) {
	if xp < 0 {
		return 0, ErrNegativeXP
	}
	low, high := 0, len(xpForLevel)-1
	for low <= high {
		mid := low + (high-low)/2
		switch need := xpForLevel[mid]; {
		case xp < need:
			high = mid - 1
		case xp > need:
			low = mid + 1
		default:
			return mid + 1, nil
		}
	}
	return high + 1, nil
}

// RealLevelForXP is LevelForXP capped at MaxRealLevel.
func RealLevelForXP(xp int64) (int, error) {
	lvl, err := LevelForXP(xp)
	if err != nil {
		return 0, err
	}
	return min(lvl, MaxRealLevel), nil
}

// CombatLevels holds the seven levels the combat formula reads.
type CombatLevels struct {
	Attack    int
	Strength  int
	Defence   int
	Hitpoints int
	Magic     int
	Ranged    int
	Prayer    int
}

// CombatLevelPrecise computes the unrounded combat level.
func CombatLevelPrecise(l CombatLevels) float64 {
	base := 0.25 * float64(l.Defence+l.Hitpoints+l.Prayer/2)
	melee := 0.325 * float64(l.Attack+l.Strength)
	ranged := 0.325 * float64(l.Ranged/2+l.Ranged)
	magic := 0.325 * float64(l.Magic/2+l.Magic)
	return base + math.Max(melee, math.Max(ranged, magic))
}
