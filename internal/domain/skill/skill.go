// Package skill enumerates the tracked skills and provides the experience
// table and combat formula used to derive levels.
package skill

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownSkill is returned for names or values outside the enumeration.
var ErrUnknownSkill = errors.New("unknown skill")

// Skill identifies one trainable skill, or the aggregate Overall pseudo-skill.
type Skill int

// Skills in the order the client reports them. Overall is last and is not a
// real skill.
const (
	Attack Skill = iota
	Defence
	Strength
	Hitpoints
	Ranged
	Prayer
	Magic
	Cooking
	Woodcutting
	Fletching
	Fishing
	Firemaking
	Crafting
	Smithing
	Mining
	Herblore
	Agility
	Thieving
	Slayer
	Farming
	Runecraft
	Hunter
	Construction
	Overall
)

var names = [...]string{
	Attack:       "ATTACK",
	Defence:      "DEFENCE",
	Strength:     "STRENGTH",
	Hitpoints:    "HITPOINTS",
	Ranged:       "RANGED",
	Prayer:       "PRAYER",
	Magic:        "MAGIC",
	Cooking:      "COOKING",
	Woodcutting:  "WOODCUTTING",
	Fletching:    "FLETCHING",
	Fishing:      "FISHING",
	Firemaking:   "FIREMAKING",
	Crafting:     "CRAFTING",
	Smithing:     "SMITHING",
	Mining:       "MINING",
	Herblore:     "HERBLORE",
	Agility:      "AGILITY",
	Thieving:     "THIEVING",
	Slayer:       "SLAYER",
	Farming:      "FARMING",
	Runecraft:    "RUNECRAFT",
	Hunter:       "HUNTER",
	Construction: "CONSTRUCTION",
	Overall:      "OVERALL",
}

// Valid reports whether s is part of the enumeration.
func (s Skill) Valid() bool {
	return s >= Attack && s <= Overall
}

// String returns the upper-case skill name used as a tag value.
func (s Skill) String() string {
	if !s.Valid() {
		return fmt.Sprintf("Skill(%d)", int(s))
	}
	return names[s]
}

// Parse resolves a skill name case-insensitively.
func Parse(name string) (Skill, error) {
	n := strings.ToUpper(strings.TrimSpace(name))
	for i, candidate := range names {
		if candidate == n {
			return Skill(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownSkill, name)
}

// All returns every real skill, excluding Overall.
func All() []Skill {
	out := make([]Skill, 0, int(Overall))
	for s := Attack; s < Overall; s++ {
		out = append(out, s)
	}
	return out
}

// WithOverall returns every real skill followed by Overall.
func WithOverall() []Skill {
	return append(All(), Overall)
}
