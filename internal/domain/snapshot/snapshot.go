// Package snapshot defines the JSON game-state document submitted by clients
// and adapts it to the measurement builder's state provider.
package snapshot

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"

	"github.com/okian/xpmeter/internal/domain/measurement"
	"github.com/okian/xpmeter/internal/domain/skill"
)

// SkillState is the reported progress in one skill. Level is the real level;
// it is derived from XP when omitted.
type SkillState struct {
	XP    int64 `json:"xp"`
	Level *int  `json:"level,omitempty"`
}

// Position is a world coordinate.
type Position struct {
	X     int `json:"x"`
	Y     int `json:"y"`
	Plane int `json:"plane"`
}

// Item is one inventory slot.
type Item struct {
	ID       int `json:"id"`
	Quantity int `json:"quantity"`
}

// Inventory is one item container such as INVENTORY, EQUIPMENT or BANK.
type Inventory struct {
	ID    string `json:"id"`
	Items []Item `json:"items"`
}

// KillCount is a boss kill counter reading.
type KillCount struct {
	Boss  string `json:"boss"`
	Count int64  `json:"count"`
}

// Snapshot is a point-in-time view of one player's game state.
type Snapshot struct {
	ID          string                `json:"snapshot_id,omitempty"`
	User        string                `json:"user"`
	Name        string                `json:"name,omitempty"`
	Skills      map[string]SkillState `json:"skills,omitempty"`
	OverallXP   *int64                `json:"overall_xp,omitempty"`
	TotalLevel  *int                  `json:"total_level,omitempty"`
	Position    *Position             `json:"position,omitempty"`
	Instanced   bool                  `json:"instanced,omitempty"`
	QuestPoints int                   `json:"quest_points,omitempty"`
	Skulled     bool                  `json:"skulled,omitempty"`
	Overhead    string                `json:"overhead,omitempty"`
	Inventories []Inventory           `json:"inventories,omitempty"`
	KillCounts  []KillCount           `json:"kill_counts,omitempty"`
}

// Decode reads one snapshot document from r.
func Decode(r io.Reader) (*Snapshot, error) {
	var s Snapshot
	if err := json.NewDecoder(r).Decode(&s); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSnapshot, err)
	}
	return &s, nil
}

// EnsureID assigns a random snapshot id when none was supplied and returns it.
func (s *Snapshot) EnsureID() string {
	if strings.TrimSpace(s.ID) == "" {
		s.ID = uuid.NewString()
	}
	return s.ID
}

// Validate checks the document for values the builder cannot represent.
// Values that become tags (user, inventory ids, bosses) must be valid
// line-protocol labels.
func (s *Snapshot) Validate() error {
	if strings.TrimSpace(s.User) == "" {
		return ErrMissingUser
	}
	if !measurement.ValidLabel(s.User) {
		return fmt.Errorf("%w: user %q is not a valid tag value", ErrInvalidSnapshot, s.User)
	}
	seen := make(map[skill.Skill]string, len(s.Skills))
	for name, st := range s.Skills {
		sk, err := skill.Parse(name)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidSnapshot, err)
		}
		if sk == skill.Overall {
			return fmt.Errorf("%w: %s is derived, use overall_xp", ErrInvalidSnapshot, name)
		}
		if prev, ok := seen[sk]; ok {
			return fmt.Errorf("%w: skill %s given twice (%q, %q)", ErrInvalidSnapshot, sk, prev, name)
		}
		seen[sk] = name
		if st.XP < 0 || st.XP > skill.MaxSkillXP {
			return fmt.Errorf("%w: %s xp %d out of range", ErrInvalidSnapshot, name, st.XP)
		}
		if st.Level != nil && (*st.Level < 1 || *st.Level > skill.MaxRealLevel) {
			return fmt.Errorf("%w: %s level %d out of range", ErrInvalidSnapshot, name, *st.Level)
		}
	}
	if s.OverallXP != nil && *s.OverallXP < 0 {
		return fmt.Errorf("%w: negative overall_xp", ErrInvalidSnapshot)
	}
	if s.TotalLevel != nil && *s.TotalLevel < 0 {
		return fmt.Errorf("%w: negative total_level", ErrInvalidSnapshot)
	}
	if s.QuestPoints < 0 {
		return fmt.Errorf("%w: negative quest_points", ErrInvalidSnapshot)
	}
	for i, inv := range s.Inventories {
		if strings.TrimSpace(inv.ID) == "" {
			return fmt.Errorf("%w: inventory %d has no id", ErrInvalidSnapshot, i)
		}
		if !measurement.ValidLabel(inv.ID) {
			return fmt.Errorf("%w: inventory id %q is not a valid tag value", ErrInvalidSnapshot, inv.ID)
		}
	}
	for _, kc := range s.KillCounts {
		if strings.TrimSpace(kc.Boss) == "" {
			return fmt.Errorf("%w: kill count without boss", ErrInvalidSnapshot)
		}
		if !measurement.ValidLabel(kc.Boss) {
			return fmt.Errorf("%w: boss %q is not a valid tag value", ErrInvalidSnapshot, kc.Boss)
		}
		if kc.Count < 0 {
			return fmt.Errorf("%w: %s kill count %d", ErrInvalidSnapshot, kc.Boss, kc.Count)
		}
	}
	return nil
}

// State validates s and returns a provider over it.
func (s *Snapshot) State() (*State, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	st := &State{
		snap:   s,
		xp:     make(map[skill.Skill]int64, len(s.Skills)),
		levels: make(map[skill.Skill]int, len(skill.All())),
	}
	for name, ss := range s.Skills {
		sk, _ := skill.Parse(name)
		st.xp[sk] = ss.XP
		if ss.Level != nil {
			st.levels[sk] = *ss.Level
		}
	}
	for _, sk := range skill.All() {
		xp := st.xp[sk]
		st.overallXP += xp
		if _, ok := st.levels[sk]; !ok {
			lvl, _ := skill.RealLevelForXP(xp)
			st.levels[sk] = lvl
		}
		st.totalLevel += st.levels[sk]
	}
	if s.OverallXP != nil {
		st.overallXP = *s.OverallXP
	}
	if s.TotalLevel != nil {
		st.totalLevel = *s.TotalLevel
	}
	return st, nil
}

// State is the measurement.StateProvider view of a validated snapshot.
type State struct {
	snap       *Snapshot
	xp         map[skill.Skill]int64
	levels     map[skill.Skill]int
	overallXP  int64
	totalLevel int
}

var _ measurement.StateProvider = (*State)(nil)

func (s *State) Username() string { return s.snap.User }
func (s *State) SkillExperience(sk skill.Skill) int64 { return s.xp[sk] }
func (s *State) OverallExperience() int64 { return s.overallXP }
func (s *State) RealSkillLevel(sk skill.Skill) int { return s.levels[sk] }
func (s *State) TotalLevel() int { return s.totalLevel }
func (s *State) InInstancedRegion() bool { return s.snap.Instanced }
func (s *State) QuestPoints() int { return s.snap.QuestPoints }
func (s *State) Skulled() bool { return s.snap.Skulled }

func (s *State) Position() (measurement.Position, bool) {
	if s.snap.Position == nil {
		return measurement.Position{}, false
	}
	p := s.snap.Position
	return measurement.Position{X: p.X, Y: p.Y, Plane: p.Plane}, true
}

func (s *State) PlayerName() (string, bool) {
	return s.snap.Name, s.snap.Name != ""
}

func (s *State) OverheadIcon() (string, bool) {
	return s.snap.Overhead, s.snap.Overhead != ""
}

func (s *State) Inventories() []measurement.Inventory {
	out := make([]measurement.Inventory, 0, len(s.snap.Inventories))
	for _, inv := range s.snap.Inventories {
		items := make([]measurement.Item, len(inv.Items))
		for i, it := range inv.Items {
			items[i] = measurement.Item{ID: it.ID, Quantity: it.Quantity}
		}
		out = append(out, measurement.Inventory{ID: inv.ID, Items: items})
	}
	return out
}

func (s *State) KillCounts() []measurement.KillCount {
	out := make([]measurement.KillCount, len(s.snap.KillCounts))
	for i, kc := range s.snap.KillCounts {
		out[i] = measurement.KillCount{Boss: kc.Boss, Count: kc.Count}
	}
	return out
}

// Session is a provider carrying only a user name, used to build records that
// do not depend on game state such as kill counts parsed from chat.
type Session string

var _ measurement.StateProvider = Session("")

func (s Session) Username() string { return string(s) }
func (Session) SkillExperience(skill.Skill) int64 { return 0 }
func (Session) OverallExperience() int64 { return 0 }
func (Session) RealSkillLevel(skill.Skill) int { return 1 }
func (Session) TotalLevel() int { return 0 }
func (Session) Position() (measurement.Position, bool) { return measurement.Position{}, false }
func (Session) InInstancedRegion() bool { return false }
func (Session) QuestPoints() int { return 0 }
func (Session) Skulled() bool { return false }
func (Session) PlayerName() (string, bool) { return "", false }
func (Session) OverheadIcon() (string, bool) { return "", false }
func (Session) Inventories() []measurement.Inventory { return nil }
func (Session) KillCounts() []measurement.KillCount { return nil }
