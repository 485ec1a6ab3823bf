// Package character defines the character domain model, the partial-update
// contract of the Character Store, derived combat stats, and level progression.
package character

import (
	"context"
	"errors"
	"maps"
	"slices"

	"github.com/cory-johannsen/crawl/internal/game/catalog"
)

var (
	// ErrNotFound is returned when a character lookup yields no results.
	ErrNotFound = errors.New("character not found")
	// ErrExists is returned when creating a character whose id is taken.
	ErrExists = errors.New("character already exists")
)

// Attributes holds the five base attributes of a character.
type Attributes struct {
	Strength     int
	Intelligence int
	Defense      int
	Agility      int
	Luck         int
}

// Character is a loaded snapshot of a player character.
type Character struct {
	ID    string
	Name  string
	Level int
	// Experience is the lifetime XP total; Level is derived from it by LevelForXP.
	Experience int
	Gold       int

	Attributes Attributes
	Health     int
	MaxHealth  int
	Mana       int
	MaxMana    int

	// Equipment maps each occupied slot to the equipped item id.
	Equipment map[catalog.Slot]string
	// Inventory maps item id to quantity held.
	Inventory map[string]int
	// Skills lists the ids of skills the character knows.
	Skills []string
}

// Clone returns a deep copy of c.
func (c *Character) Clone() *Character {
	out := *c
	out.Equipment = maps.Clone(c.Equipment)
	out.Inventory = maps.Clone(c.Inventory)
	out.Skills = slices.Clone(c.Skills)
	if out.Equipment == nil {
		out.Equipment = make(map[catalog.Slot]string)
	}
	if out.Inventory == nil {
		out.Inventory = make(map[string]int)
	}
	return &out
}

// KnowsSkill reports whether id is one of the character's skills.
func (c *Character) KnowsSkill(id string) bool {
	return slices.Contains(c.Skills, id)
}

// Holds reports whether the character carries at least qty of item id.
func (c *Character) Holds(id string, qty int) bool {
	return c.Inventory[id] >= qty
}

// Update is a partial character update. Delta fields are relative
// increments; pointer fields, when non-nil, are absolute sets. Absolute sets
// are applied before deltas.
type Update struct {
	GoldDelta       int
	ExperienceDelta int
	HealthDelta     int
	ManaDelta       int
	// InventoryDelta adds (or, when negative, removes) item quantities.
	InventoryDelta map[string]int

	Level      *int
	Attributes *Attributes
	MaxHealth  *int
	MaxMana    *int
	Health     *int
	Mana       *int
}

// IsZero reports whether u changes nothing.
func (u Update) IsZero() bool {
	return u.GoldDelta == 0 && u.ExperienceDelta == 0 && u.HealthDelta == 0 && u.ManaDelta == 0 &&
		len(u.InventoryDelta) == 0 && u.Level == nil && u.Attributes == nil &&
		u.MaxHealth == nil && u.MaxMana == nil && u.Health == nil && u.Mana == nil
}

// Apply applies u to c in place. Store implementations use it so that every
// backend shares the same update semantics.
//
// Postcondition: gold, experience, health, mana and item quantities never go
// negative; items reaching zero are removed. Clamping health and mana to the
// derived maximum is the caller's job (see Stats.ClampHealth).
func (u Update) Apply(c *Character) {
	if u.Level != nil {
		c.Level = *u.Level
	}
	if u.Attributes != nil {
		c.Attributes = *u.Attributes
	}
	if u.MaxHealth != nil {
		c.MaxHealth = *u.MaxHealth
	}
	if u.MaxMana != nil {
		c.MaxMana = *u.MaxMana
	}
	if u.Health != nil {
		c.Health = *u.Health
	}
	if u.Mana != nil {
		c.Mana = *u.Mana
	}

	c.Gold = max(0, c.Gold+u.GoldDelta)
	c.Experience = max(0, c.Experience+u.ExperienceDelta)
	c.Health = max(0, c.Health+u.HealthDelta)
	c.Mana = max(0, c.Mana+u.ManaDelta)

	if len(u.InventoryDelta) > 0 && c.Inventory == nil {
		c.Inventory = make(map[string]int)
	}
	for id, delta := range u.InventoryDelta {
		qty := c.Inventory[id] + delta
		if qty <= 0 {
			delete(c.Inventory, id)
			continue
		}
		c.Inventory[id] = qty
	}
}

// Store loads and saves characters.
//
// Implementations MUST be safe for concurrent use.
type Store interface {
	// Load returns the character with the given id, or an error wrapping ErrNotFound.
	Load(ctx context.Context, id string) (*Character, error)
	// Save applies u to the stored character, or returns an error wrapping ErrNotFound.
	Save(ctx context.Context, id string, u Update) error
}

// Ptr returns a pointer to v. It keeps absolute-set Update literals short.
func Ptr[T any](v T) *T {
	return &v
}
