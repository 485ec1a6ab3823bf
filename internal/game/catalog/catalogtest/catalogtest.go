// Package catalogtest provides a small, fully cross-referenced catalog for
// tests of the packages built on top of catalog.
package catalogtest

import (
	"testing"

	"github.com/cory-johannsen/crawl/internal/game/catalog"
)

// FixtureYAML is the content behind Fixture.
//
// Dungeon "cellar": min level 1, 2 floors, slime (lvl 1) and goblin (lvl 3).
// Dungeon "crypt": min level 10, 3 floors, goblin (lvl 3) and ogre (lvl 12).
// Dungeon "pit": min level 10, 2 floors, slime only.
const FixtureYAML = `
items:
  - id: iron_sword
    name: Iron Sword
    kind: weapon
    slot: weapon
    weapon: {class: sword, attack: 10, crit_rate: 0}
  - id: flame_staff
    name: Flame Staff
    kind: weapon
    slot: weapon
    weapon: {class: staff, attack: 5, element: fire}
    bonuses: {intelligence: 2, max_mana: 10}
  - id: leather_cap
    name: Leather Cap
    kind: armor
    slot: head
    bonuses: {defense: 2, max_health: 15}
  - id: potion
    name: Healing Potion
    kind: consumable
    effect: {kind: heal, health: 30}
    value: 25
  - id: gem
    name: Cut Gem
    kind: material
    value: 50
  - id: gel
    name: Slime Gel
    kind: material
    value: 2
monsters:
  - id: slime
    name: Slime
    level: 1
    health: 20
    attack: 4
    defense: 10
    weaknesses: [fire]
    xp: 30
    gold: 12
    loot:
      - {item: gel, chance: 100, quantity: 1}
  - id: goblin
    name: Goblin
    level: 3
    health: 35
    attack: 8
    defense: 5
    xp: 60
    gold: 25
    loot:
      - {item: potion, chance: 25, quantity: 1}
  - id: ogre
    name: Ogre
    level: 12
    health: 80
    attack: 15
    defense: 20
    resistances: [fire]
    xp: 200
    gold: 90
skills:
  - id: fireball
    name: Fireball
    mana_cost: 10
    effect: {kind: direct_damage, offset: 5, element: fire}
  - id: mend
    name: Mend
    mana_cost: 8
    effect: {kind: heal, health: 30}
  - id: barrier
    name: Barrier
    mana_cost: 6
    effect: {kind: buff, status: barrier, reduction: 25}
events:
  - id: fountain
    title: A Glittering Fountain
    text: Clear water bubbles from a cracked basin.
    choices:
      - {id: drink, label: Drink, effect: {kind: heal, amount: "20"}}
      - {id: leave, label: Walk on, effect: {kind: none}}
  - id: shrine
    title: A Quiet Shrine
    text: Candles flicker before a worn idol.
    choices:
      - {id: pray, label: Pray, effect: {kind: restore_mana, amount: "2d6+5"}}
      - {id: leave, label: Walk on, effect: {kind: none}}
dungeons:
  - id: cellar
    name: Damp Cellar
    min_level: 1
    max_floors: 2
    monsters: [slime, goblin]
    treasure_item: gem
  - id: crypt
    name: Old Crypt
    min_level: 10
    max_floors: 3
    monsters: [goblin, ogre]
    treasure_item: potion
    rewards: {gold_per_floor: 20, xp_per_floor: 10}
  - id: pit
    name: Slime Pit
    min_level: 10
    max_floors: 2
    monsters: [slime]
    treasure_item: gem
`

// Fixture returns the catalog built from FixtureYAML, failing t on error.
func Fixture(t testing.TB) *catalog.Catalog {
	t.Helper()
	content, err := catalog.LoadContentFromBytes([]byte(FixtureYAML))
	if err != nil {
		t.Fatalf("decoding fixture catalog: %v", err)
	}
	cat, err := catalog.New(content)
	if err != nil {
		t.Fatalf("building fixture catalog: %v", err)
	}
	return cat
}
