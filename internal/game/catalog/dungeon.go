package catalog

import (
	"errors"
	"fmt"
)

// FloorRewards scale the completion bonus with the floor reached.
type FloorRewards struct {
	GoldPerFloor int `yaml:"gold_per_floor"`
	XPPerFloor   int `yaml:"xp_per_floor"`
}

// DungeonDef defines a multi-floor dungeon.
type DungeonDef struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	MinLevel    int    `yaml:"min_level"`
	MaxFloors   int    `yaml:"max_floors"`
	// Monsters lists the eligible monster ids in draw order.
	Monsters []string `yaml:"monsters"`
	// TreasureItem is the item granted by item-type treasure rooms.
	TreasureItem string       `yaml:"treasure_item"`
	Rewards      FloorRewards `yaml:"rewards"`
}

// Validate checks that the dungeon satisfies basic invariants.
//
// Precondition: d must not be nil.
// Postcondition: Returns nil iff ID and Name are non-empty, MinLevel >= 1,
// MaxFloors >= 1, at least one monster is eligible and TreasureItem is set.
func (d *DungeonDef) Validate() error {
	var errs []error
	if d.ID == "" {
		errs = append(errs, errors.New("id must not be empty"))
	}
	if d.Name == "" {
		errs = append(errs, errors.New("name must not be empty"))
	}
	if d.MinLevel < 1 {
		errs = append(errs, errors.New("min_level must be >= 1"))
	}
	if d.MaxFloors < 1 {
		errs = append(errs, errors.New("max_floors must be >= 1"))
	}
	if len(d.Monsters) == 0 {
		errs = append(errs, errors.New("at least one monster is required"))
	}
	if d.TreasureItem == "" {
		errs = append(errs, errors.New("treasure_item must not be empty"))
	}
	if d.Rewards.GoldPerFloor < 0 || d.Rewards.XPPerFloor < 0 {
		errs = append(errs, errors.New("rewards must be >= 0"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("dungeon %q: %v", d.ID, errors.Join(errs...))
	}
	return nil
}
