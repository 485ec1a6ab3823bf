// Package reward credits gold, experience and items to characters and applies
// the level-ups those grants trigger.
package reward

import (
	"context"
	"fmt"
	"maps"

	"go.uber.org/zap"

	"github.com/cory-johannsen/crawl/internal/game/character"
)

// Grant is a bundle of rewards to credit.
type Grant struct {
	Gold int
	XP   int
	// Items maps item id to quantity granted.
	Items map[string]int
}

// IsZero reports whether g grants nothing.
func (g Grant) IsZero() bool {
	return g.Gold == 0 && g.XP == 0 && len(g.Items) == 0
}

// Add returns the sum of g and o.
func (g Grant) Add(o Grant) Grant {
	out := Grant{Gold: g.Gold + o.Gold, XP: g.XP + o.XP}
	if len(g.Items)+len(o.Items) > 0 {
		out.Items = maps.Clone(g.Items)
		if out.Items == nil {
			out.Items = make(map[string]int, len(o.Items))
		}
		for id, n := range o.Items {
			out.Items[id] += n
		}
	}
	return out
}

// Settlement reports what a Settle call changed.
type Settlement struct {
	Grant
	LevelsGained int
	Level        int
	// Health and Mana are the character's pools after settlement; after a
	// level-up they equal the new derived maximums.
	Health int
	Mana   int
}

// Settler applies grants through a character.Store.
type Settler struct {
	items  character.ItemLookup
	logger *zap.Logger
}

// NewSettler creates a Settler. items resolves equipped items when a level-up
// recomputes the derived maximum pools.
//
// Precondition: items and logger must be non-nil.
func NewSettler(items character.ItemLookup, logger *zap.Logger) *Settler {
	return &Settler{items: items, logger: logger}
}

// Settle credits g to character id in a single Save. Every level boundary the
// experience crosses applies character.PerLevel once; any level-up restores
// health and mana to the new derived maximum.
//
// Precondition: g.XP >= 0; store must be scoped to the caller's transaction.
// Postcondition: On error nothing is saved. The error wraps
// character.ErrNotFound when the character does not exist.
func (s *Settler) Settle(ctx context.Context, store character.Store, id string, g Grant) (Settlement, error) {
	c, err := store.Load(ctx, id)
	if err != nil {
		return Settlement{}, fmt.Errorf("settle rewards: %w", err)
	}
	xp := max(0, g.XP)

	next := c.Clone()
	levels := character.GainExperience(next, xp)
	out := Settlement{
		Grant:        Grant{Gold: g.Gold, XP: xp, Items: maps.Clone(g.Items)},
		LevelsGained: levels,
		Level:        next.Level,
		Health:       c.Health,
		Mana:         c.Mana,
	}
	if g.IsZero() {
		return out, nil
	}

	u := character.Update{
		GoldDelta:       g.Gold,
		ExperienceDelta: xp,
		InventoryDelta:  maps.Clone(g.Items),
	}
	if levels > 0 {
		// Items granted in the same settlement are not equipped, so deriving
		// from next before the inventory delta is exact.
		stats, err := character.Derive(next, s.items)
		if err != nil {
			return Settlement{}, fmt.Errorf("settle rewards: %w", err)
		}
		u.Level = character.Ptr(next.Level)
		u.Attributes = character.Ptr(next.Attributes)
		u.MaxHealth = character.Ptr(next.MaxHealth)
		u.MaxMana = character.Ptr(next.MaxMana)
		u.Health = character.Ptr(stats.MaxHealth)
		u.Mana = character.Ptr(stats.MaxMana)
		out.Health = stats.MaxHealth
		out.Mana = stats.MaxMana
	}
	if err := store.Save(ctx, id, u); err != nil {
		return Settlement{}, fmt.Errorf("settle rewards: %w", err)
	}

	if levels > 0 {
		s.logger.Info("level up",
			zap.String("character_id", id),
			zap.Int("from", c.Level),
			zap.Int("to", next.Level),
		)
	}
	s.logger.Debug("rewards settled",
		zap.String("character_id", id),
		zap.Int("gold", g.Gold),
		zap.Int("xp", xp),
		zap.Int("items", len(g.Items)),
	)
	return out, nil
}
