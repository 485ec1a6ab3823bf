package catalog

import (
	"errors"
	"fmt"
)

// LootEntry is one possible drop of a monster.
type LootEntry struct {
	ItemID string `yaml:"item"`
	// Chance is the drop chance in percent, in (0, 100].
	Chance   float64 `yaml:"chance"`
	Quantity int     `yaml:"quantity"`
}

// MonsterDef defines a reusable monster archetype.
type MonsterDef struct {
	ID          string      `yaml:"id"`
	Name        string      `yaml:"name"`
	Description string      `yaml:"description"`
	Level       int         `yaml:"level"`
	MaxHealth   int         `yaml:"health"`
	Attack      int         `yaml:"attack"`
	Defense     int         `yaml:"defense"`
	Weaknesses  []string    `yaml:"weaknesses"`
	Resistances []string    `yaml:"resistances"`
	XPReward    int         `yaml:"xp"`
	GoldReward  int         `yaml:"gold"`
	Loot        []LootEntry `yaml:"loot"`
}

// Validate checks that the monster satisfies basic invariants.
//
// Precondition: m must not be nil.
// Postcondition: Returns nil iff ID and Name are non-empty, Level >= 1,
// MaxHealth >= 1, Attack/Defense/rewards are >= 0 and every loot entry is valid.
func (m *MonsterDef) Validate() error {
	var errs []error
	if m.ID == "" {
		errs = append(errs, errors.New("id must not be empty"))
	}
	if m.Name == "" {
		errs = append(errs, errors.New("name must not be empty"))
	}
	if m.Level < 1 {
		errs = append(errs, errors.New("level must be >= 1"))
	}
	if m.MaxHealth < 1 {
		errs = append(errs, errors.New("health must be >= 1"))
	}
	if m.Attack < 0 || m.Defense < 0 {
		errs = append(errs, errors.New("attack and defense must be >= 0"))
	}
	if m.XPReward < 0 || m.GoldReward < 0 {
		errs = append(errs, errors.New("xp and gold must be >= 0"))
	}
	for i, drop := range m.Loot {
		if drop.ItemID == "" {
			errs = append(errs, fmt.Errorf("loot[%d] must have a non-empty item id", i))
		}
		if drop.Chance <= 0 || drop.Chance > 100 {
			errs = append(errs, fmt.Errorf("loot[%d] chance must be in (0, 100], got %v", i, drop.Chance))
		}
		if drop.Quantity < 1 {
			errs = append(errs, fmt.Errorf("loot[%d] quantity must be >= 1, got %d", i, drop.Quantity))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("monster %q: %v", m.ID, errors.Join(errs...))
	}
	return nil
}
