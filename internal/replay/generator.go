package replay

import (
	"fmt"
	"math/rand/v2"

	"github.com/okian/xpmeter/internal/domain/measurement"
	"github.com/okian/xpmeter/internal/domain/skill"
	"github.com/okian/xpmeter/internal/domain/snapshot"
)

var (
	bosses    = []string{"Zulrah", "Vorkath", "General Graardor", "Kree'Arra", "Chambers of Xeric"}
	overheads = []string{"", "PROTECT_FROM_MELEE", "PROTECT_FROM_MISSILES", "PROTECT_FROM_MAGIC"}
	// items from the built-in catalog
	itemPool = []int{measurement.ItemCoins, measurement.ItemPlatinumToken, 4151, 385, 11802, 2434, 560}
)

// Generate returns perPlayer snapshots for each of players synthetic accounts.
// Within one player, experience and kill counts never decrease, so the last
// snapshot of a player describes its final state.
func Generate(players, perPlayer int, seed uint64) [][]snapshot.Snapshot {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	out := make([][]snapshot.Snapshot, players)

	for p := range out {
		user := fmt.Sprintf("replay-%04d", p)
		xp := make(map[string]int64, len(skill.All()))
		for _, sk := range skill.All() {
			xp[sk.String()] = rng.Int64N(1_000_000)
		}
		kills := make(map[string]int64, len(bosses))

		out[p] = make([]snapshot.Snapshot, perPlayer)
		for i := range out[p] {
			skills := make(map[string]snapshot.SkillState, len(xp))
			for _, sk := range skill.All() {
				name := sk.String()
				xp[name] = min(xp[name]+rng.Int64N(50_000), skill.MaxSkillXP)
				skills[name] = snapshot.SkillState{XP: xp[name]}
			}
			boss := bosses[rng.IntN(len(bosses))]
			kills[boss] += 1 + rng.Int64N(3)

			out[p][i] = snapshot.Snapshot{
				ID:          fmt.Sprintf("%s-%d", user, i),
				User:        user,
				Name:        user,
				Skills:      skills,
				Position:    &snapshot.Position{X: 3000 + rng.IntN(400), Y: 3000 + rng.IntN(400), Plane: rng.IntN(3)},
				Instanced:   rng.IntN(10) == 0,
				QuestPoints: rng.IntN(300),
				Skulled:     rng.IntN(20) == 0,
				Overhead:    overheads[rng.IntN(len(overheads))],
				Inventories: []snapshot.Inventory{
					{ID: "INVENTORY", Items: randomItems(rng, 5)},
					{ID: "BANK", Items: randomItems(rng, 12)},
				},
				KillCounts: []snapshot.KillCount{{Boss: boss, Count: kills[boss]}},
			}
		}
	}
	return out
}

func randomItems(rng *rand.Rand, n int) []snapshot.Item {
	items := make([]snapshot.Item, n)
	for i := range items {
		items[i] = snapshot.Item{ID: itemPool[rng.IntN(len(itemPool))], Quantity: 1 + rng.IntN(5_000)}
	}
	return items
}
