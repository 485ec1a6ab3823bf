package character

import (
	"fmt"
	"sort"

	"github.com/cory-johannsen/crawl/internal/game/catalog"
)

// ItemLookup resolves item definitions by id. *catalog.Catalog satisfies it.
type ItemLookup interface {
	Item(id string) (*catalog.ItemDef, error)
}

// Stats are a character's effective combat stats: base attributes plus every
// equipped item's bonuses, and the equipped weapon's combat properties.
type Stats struct {
	Attributes
	MaxHealth int
	MaxMana   int
	// Weapon is nil when nothing is equipped in the weapon slot.
	Weapon   *catalog.WeaponStats
	WeaponID string
}

// Derive computes c's effective Stats from its equipped item ids. Stats are
// never cached; call Derive again after equipment or attributes change.
//
// Precondition: c and items must be non-nil.
// Postcondition: Returns the derived Stats, or an error when an equipped id is
// unknown or sits in a slot the item cannot occupy.
func Derive(c *Character, items ItemLookup) (Stats, error) {
	slots := make([]string, 0, len(c.Equipment))
	for slot := range c.Equipment {
		slots = append(slots, string(slot))
	}
	sort.Strings(slots)

	var bonus catalog.StatBonuses
	s := Stats{}
	for _, name := range slots {
		slot := catalog.Slot(name)
		id := c.Equipment[slot]
		if id == "" {
			continue
		}
		def, err := items.Item(id)
		if err != nil {
			return Stats{}, fmt.Errorf("character %q slot %q: %w", c.ID, slot, err)
		}
		if !def.Equippable() || def.Slot != slot {
			return Stats{}, fmt.Errorf("character %q: item %q cannot be equipped in slot %q", c.ID, id, slot)
		}
		bonus = bonus.Add(def.Bonuses)
		if slot == catalog.SlotWeapon {
			s.Weapon = def.Weapon
			s.WeaponID = def.ID
		}
	}

	s.Attributes = Attributes{
		Strength:     c.Attributes.Strength + bonus.Strength,
		Intelligence: c.Attributes.Intelligence + bonus.Intelligence,
		Defense:      c.Attributes.Defense + bonus.Defense,
		Agility:      c.Attributes.Agility + bonus.Agility,
		Luck:         c.Attributes.Luck + bonus.Luck,
	}
	s.MaxHealth = max(1, c.MaxHealth+bonus.MaxHealth)
	s.MaxMana = max(0, c.MaxMana+bonus.MaxMana)
	return s, nil
}

// PrimaryStat returns intelligence for staff wielders and strength otherwise.
func (s Stats) PrimaryStat() int {
	if s.Weapon.IsStaff() {
		return s.Intelligence
	}
	return s.Strength
}

// ClampHealth clamps v to [0, MaxHealth].
func (s Stats) ClampHealth(v int) int {
	return min(max(0, v), s.MaxHealth)
}

// ClampMana clamps v to [0, MaxMana].
func (s Stats) ClampMana(v int) int {
	return min(max(0, v), s.MaxMana)
}
