package measurement

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"

	"github.com/okian/xpmeter/internal/domain/skill"
)

// Item ids with fixed handling.
const (
	ItemCoins         = 995
	ItemPlatinumToken = 13204
	ItemBankFiller    = 20594
)

// Valuation constants.
const (
	// ValueThreshold is the exclusive bound above which an item is reported
	// under its own name instead of the "other" bucket.
	ValueThreshold        = 50_000
	HighAlchemyMultiplier = 0.6
	platinumTokenValue    = 1000
)

// Valuation types, used as the "type" tag of inventory records.
const (
	ValueTypeGE = "GE"
	ValueTypeHA = "HA"
)

// Reserved inventory field names.
const (
	FieldTotal = "total"
	FieldOther = "other"
)

// Position is a world coordinate.
type Position struct {
	X     int
	Y     int
	Plane int
}

// Item is one inventory slot.
type Item struct {
	ID       int
	Quantity int
}

// Inventory is an identified container of items.
type Inventory struct {
	ID    string
	Items []Item
}

// KillCount is a boss kill counter reading.
type KillCount struct {
	Boss  string
	Count int64
}

// StateProvider exposes a point-in-time view of one player's game state.
// Implementations must not change while a build is in progress.
type StateProvider interface {
	Username() string
	SkillExperience(s skill.Skill) int64
	OverallExperience() int64
	RealSkillLevel(s skill.Skill) int
	TotalLevel() int
	Position() (Position, bool)
	InInstancedRegion() bool
	QuestPoints() int
	Skulled() bool
	PlayerName() (string, bool)
	OverheadIcon() (string, bool)
	Inventories() []Inventory
	KillCounts() []KillCount
}

// ItemDefinition describes an item for valuation.
type ItemDefinition struct {
	ID         int
	Name       string
	StorePrice int64
}

// ItemLookup resolves item ids for valuation. Unknown items must yield an
// error wrapping ErrItemNotFound.
type ItemLookup interface {
	Canonicalize(id int) int
	Definition(ctx context.Context, id int) (ItemDefinition, error)
	MarketPrice(ctx context.Context, id int) (int64, error)
}

// Builder turns provider state into records. It keeps no state between calls
// and never mutates the provider.
type Builder struct {
	state StateProvider
	items ItemLookup
}

// NewBuilder creates a Builder over the given collaborators.
func NewBuilder(state StateProvider, items ItemLookup) *Builder {
	return &Builder{state: state, items: items}
}

// series returns a fresh series for measurement tagged with the current user.
func (b *Builder) series(measurement string, tags ...Tag) Series {
	ts := TagSet{}.With("user", b.state.Username())
	for _, t := range tags {
		ts = ts.With(t.Key, t.Value)
	}
	return Series{Measurement: measurement, Tags: ts}
}

// Experience builds the rs_skill record for s.
func (b *Builder) Experience(_ context.Context, s skill.Skill) (Record, error) {
	if !s.Valid() {
		return Record{}, fmt.Errorf("%w: %d", ErrInvalidSkill, int(s))
	}

	var (
		xp        int64
		virtual   int
		realLevel int
	)
	if s == skill.Overall {
		xp = b.state.OverallExperience()
		for _, each := range skill.All() {
			lvl, err := skill.LevelForXP(b.state.SkillExperience(each))
			if err != nil {
				return Record{}, fmt.Errorf("%w: %s: %w", ErrInvalidState, each, err)
			}
			virtual += lvl
		}
		realLevel = b.state.TotalLevel()
	} else {
		xp = b.state.SkillExperience(s)
		lvl, err := skill.LevelForXP(xp)
		if err != nil {
			return Record{}, fmt.Errorf("%w: %s: %w", ErrInvalidState, s, err)
		}
		virtual = lvl
		realLevel = b.state.RealSkillLevel(s)
	}

	fields := (&fieldsBuilder{}).
		int("xp", xp).
		int("virtualLevel", int64(virtual)).
		int("realLevel", int64(realLevel))
	return Record{
		Series: b.series(SeriesSkill, Tag{Key: "skill", Value: s.String()}),
		Fields: fields.fields,
	}, nil
}

// Inventory values items and returns exactly two records: market value (GE)
// then high-alchemy value (HA). A failed lookup aborts the whole batch.
func (b *Builder) Inventory(ctx context.Context, inventoryID string, items []Item) ([]Record, error) {
	if strings.TrimSpace(inventoryID) == "" {
		return nil, ErrInvalidInventory
	}

	ge, ha := &fieldsBuilder{}, &fieldsBuilder{}
	var totalGE, totalHA, otherGE, otherHA int64

	for _, item := range items {
		if item.ID < 0 || item.Quantity <= 0 || item.ID == ItemBankFiller {
			continue
		}
		geValue, haValue, name, err := b.value(ctx, item)
		if err != nil {
			return nil, fmt.Errorf("inventory %s: item %d: %w", inventoryID, item.ID, err)
		}

		totalGE += geValue
		totalHA += haValue
		if (geValue > ValueThreshold || haValue > ValueThreshold) && breakoutName(name) {
			ge.add(name, geValue)
			ha.add(name, haValue)
			continue
		}
		otherGE += geValue
		otherHA += haValue
	}

	ge.int(FieldTotal, totalGE).int(FieldOther, otherGE)
	ha.int(FieldTotal, totalHA).int(FieldOther, otherHA)

	return []Record{
		{Series: b.inventorySeries(inventoryID, ValueTypeGE), Fields: ge.fields},
		{Series: b.inventorySeries(inventoryID, ValueTypeHA), Fields: ha.fields},
	}, nil
}

// breakoutName reports whether name may be used as its own field key.
func breakoutName(name string) bool {
	return name != "" && name != FieldTotal && name != FieldOther
}

func (b *Builder) inventorySeries(inventoryID, valueType string) Series {
	return b.series(SeriesInventory,
		Tag{Key: "inventory", Value: inventoryID},
		Tag{Key: "type", Value: valueType},
	)
}

// value returns the market and alchemy value of one stack and its display name.
func (b *Builder) value(ctx context.Context, item Item) (geValue, haValue int64, name string, err error) {
	canonical := b.items.Canonicalize(item.ID)
	def, err := b.items.Definition(ctx, canonical)
	if err != nil {
		return 0, 0, "", lookupError(err)
	}
	qty := int64(item.Quantity)

	switch canonical {
	case ItemCoins:
		return qty, qty, def.Name, nil
	case ItemPlatinumToken:
		return qty * platinumTokenValue, qty * platinumTokenValue, def.Name, nil
	}

	price, err := b.items.MarketPrice(ctx, canonical)
	if err != nil {
		return 0, 0, "", lookupError(err)
	}
	alchPrice := int64(float64(def.StorePrice) * HighAlchemyMultiplier)
	return price * qty, alchPrice * qty, def.Name, nil
}

func lookupError(err error) error {
	if errors.Is(err, ErrItemNotFound) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrLookup, err)
}

// SelfLocation builds the rs_self_loc record. The provider must have a position.
func (b *Builder) SelfLocation(_ context.Context) (Record, error) {
	pos, ok := b.state.Position()
	if !ok {
		return Record{}, fmt.Errorf("%w: no position", ErrInvalidState)
	}
	instance := int64(0)
	if b.state.InInstancedRegion() {
		instance = 1
	}
	fields := (&fieldsBuilder{}).
		int("locX", int64(pos.X)).
		int("locY", int64(pos.Y)).
		int("plane", int64(pos.Plane)).
		int("instance", instance)
	return Record{Series: b.series(SeriesSelfLoc), Fields: fields.fields}, nil
}

// SelfStatus builds the rs_self record.
func (b *Builder) SelfStatus(_ context.Context) (Record, error) {
	combat := skill.CombatLevelPrecise(skill.CombatLevels{
		Attack:    b.state.RealSkillLevel(skill.Attack),
		Strength:  b.state.RealSkillLevel(skill.Strength),
		Defence:   b.state.RealSkillLevel(skill.Defence),
		Hitpoints: b.state.RealSkillLevel(skill.Hitpoints),
		Magic:     b.state.RealSkillLevel(skill.Magic),
		Ranged:    b.state.RealSkillLevel(skill.Ranged),
		Prayer:    b.state.RealSkillLevel(skill.Prayer),
	})

	skulled := int64(0)
	if b.state.Skulled() {
		skulled = 1
	}
	name, ok := b.state.PlayerName()
	if !ok || name == "" {
		name = "none"
	}
	overhead, ok := b.state.OverheadIcon()
	if !ok || overhead == "" {
		overhead = "NONE"
	}

	fields := (&fieldsBuilder{}).
		set("combat", Float(combat)).
		int("questPoints", int64(b.state.QuestPoints())).
		int("skulled", skulled).
		set("name", String(name)).
		set("overhead", String(overhead))
	return Record{Series: b.series(SeriesSelf), Fields: fields.fields}, nil
}

// KillCount builds the rs_killcount record for boss.
func (b *Builder) KillCount(_ context.Context, boss string, count int64) (Record, error) {
	if strings.TrimSpace(boss) == "" {
		return Record{}, ErrInvalidBoss
	}
	if count < 0 {
		return Record{}, fmt.Errorf("%w: %d", ErrInvalidKillCount, count)
	}
	return Record{
		Series: b.series(SeriesKillCount, Tag{Key: "boss", Value: boss}),
		Fields: FieldSet{{Key: "kc", Value: Int(count)}},
	}, nil
}

// Snapshot lazily yields every record the provider's state implies: skills
// (Overall last), status, location when known, inventories, then kill
// counts. A failing group yields a single error and iteration moves on.
func (b *Builder) Snapshot(ctx context.Context) iter.Seq2[Record, error] {
	return func(yield func(Record, error) bool) {
		for _, s := range skill.WithOverall() {
			if !yield(b.Experience(ctx, s)) {
				return
			}
		}
		if !yield(b.SelfStatus(ctx)) {
			return
		}
		if _, ok := b.state.Position(); ok {
			if !yield(b.SelfLocation(ctx)) {
				return
			}
		}
		for _, inv := range b.state.Inventories() {
			recs, err := b.Inventory(ctx, inv.ID, inv.Items)
			if err != nil {
				if !yield(Record{}, err) {
					return
				}
				continue
			}
			for _, r := range recs {
				if !yield(r, nil) {
					return
				}
			}
		}
		for _, kc := range b.state.KillCounts() {
			if !yield(b.KillCount(ctx, kc.Boss, kc.Count)) {
				return
			}
		}
	}
}

// Collect drains seq, returning the built records and every error seen.
func Collect(seq iter.Seq2[Record, error]) ([]Record, error) {
	var (
		out  []Record
		errs []error
	)
	for r, err := range seq {
		if err != nil {
			errs = append(errs, err)
			continue
		}
		out = append(out, r)
	}
	return out, errors.Join(errs...)
}
