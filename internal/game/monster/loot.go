package monster

import (
	"fmt"

	"github.com/cory-johannsen/crawl/internal/game/catalog"
	"github.com/cory-johannsen/crawl/internal/game/dice"
)

// Drop is one item stack rolled from a loot table.
type Drop struct {
	ItemID   string
	Quantity int
}

// RollLoot rolls each entry of table independently: an entry drops when a
// [0,100) draw falls below its Chance.
//
// Precondition: r must be non-nil; every entry must have passed validation.
// Postcondition: Returns the drops in table order; entries sharing an item id
// are merged.
func RollLoot(table []catalog.LootEntry, r *dice.Roller) []Drop {
	var drops []Drop
	index := make(map[string]int)
	for _, entry := range table {
		if r.Percent(fmt.Sprintf("loot:%s", entry.ItemID)) >= entry.Chance {
			continue
		}
		if at, ok := index[entry.ItemID]; ok {
			drops[at].Quantity += entry.Quantity
			continue
		}
		index[entry.ItemID] = len(drops)
		drops = append(drops, Drop{ItemID: entry.ItemID, Quantity: entry.Quantity})
	}
	return drops
}

// Items converts drops into an item-id to quantity map.
func Items(drops []Drop) map[string]int {
	if len(drops) == 0 {
		return nil
	}
	out := make(map[string]int, len(drops))
	for _, d := range drops {
		out[d.ItemID] += d.Quantity
	}
	return out
}
