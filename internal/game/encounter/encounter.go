// Package encounter generates the randomized content of dungeon rooms and
// resolves the choices players make in narrative events.
package encounter

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/cory-johannsen/crawl/internal/game/catalog"
	"github.com/cory-johannsen/crawl/internal/game/dice"
	"github.com/cory-johannsen/crawl/internal/game/monster"
)

// Outcome weights. They are fixed policy, not per-dungeon content.
const (
	MonsterWeight  = 0.70
	TreasureWeight = 0.20
	EventWeight    = 0.10

	GoldTreasureWeight = 0.40
	XPTreasureWeight   = 0.30
	ItemTreasureWeight = 0.30
)

// ErrNoEvents is returned when an event room is drawn but the catalog has no events.
var ErrNoEvents = errors.New("no events available")

// Kind is the type of a room encounter.
type Kind int

const (
	KindMonster Kind = iota
	KindTreasure
	KindEvent
)

// String returns "monster", "treasure", "event" or "unknown".
func (k Kind) String() string {
	switch k {
	case KindMonster:
		return "monster"
	case KindTreasure:
		return "treasure"
	case KindEvent:
		return "event"
	default:
		return "unknown"
	}
}

// TreasureKind is the type of a treasure room's grant.
type TreasureKind int

const (
	TreasureGold TreasureKind = iota
	TreasureXP
	TreasureItem
)

// Treasure is the grant found in a treasure room.
type Treasure struct {
	Kind     TreasureKind
	Gold     int
	XP       int
	ItemID   string
	Quantity int
}

// Tag returns the label recorded in a session's treasure list.
func (t Treasure) Tag() string {
	switch t.Kind {
	case TreasureGold:
		return "gold"
	case TreasureXP:
		return "xp"
	default:
		return "item:" + t.ItemID
	}
}

// Encounter is what a room holds. Exactly one of Monster, Treasure or Event is
// set, matching Kind.
type Encounter struct {
	Kind     Kind
	Monster  *monster.Instance
	Treasure *Treasure
	Event    *catalog.EventDef
}

// Catalog is the read-only content a Generator draws from.
// *catalog.Catalog satisfies it.
type Catalog interface {
	Monster(id string) (*catalog.MonsterDef, error)
	Events() []*catalog.EventDef
}

// Generator produces room encounters and resolves event choices.
type Generator struct {
	cat     Catalog
	roller  *dice.Roller
	scripts ScriptRunner
	logger  *zap.Logger
}

// Option configures a Generator.
type Option func(*Generator)

// WithScripts enables script event effects.
func WithScripts(runner ScriptRunner) Option {
	return func(g *Generator) { g.scripts = runner }
}

// NewGenerator creates a Generator.
//
// Precondition: cat, roller and logger must be non-nil.
func NewGenerator(cat Catalog, roller *dice.Roller, logger *zap.Logger, opts ...Option) *Generator {
	g := &Generator{cat: cat, roller: roller, logger: logger}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate draws the encounter for the next room of dungeon d on floor.
//
// Precondition: d must be non-nil and valid; floor >= 1.
// Postcondition: Returns an Encounter of exactly one kind, or an error when a
// catalog lookup fails.
func (g *Generator) Generate(d *catalog.DungeonDef, floor int) (Encounter, error) {
	roll := g.roller.Float64("encounter")
	switch {
	case roll < MonsterWeight:
		m, err := g.pickMonster(d, floor)
		if err != nil {
			return Encounter{}, err
		}
		g.logger.Debug("monster encounter", zap.String("dungeon_id", d.ID), zap.Int("floor", floor), zap.String("monster", m.DefID))
		return Encounter{Kind: KindMonster, Monster: m}, nil
	case roll < MonsterWeight+TreasureWeight:
		t := g.rollTreasure(d, floor)
		g.logger.Debug("treasure encounter", zap.String("dungeon_id", d.ID), zap.Int("floor", floor), zap.String("treasure", t.Tag()))
		return Encounter{Kind: KindTreasure, Treasure: &t}, nil
	default:
		events := g.cat.Events()
		if len(events) == 0 {
			return Encounter{}, ErrNoEvents
		}
		ev := events[g.roller.Intn("event", len(events))]
		g.logger.Debug("event encounter", zap.String("dungeon_id", d.ID), zap.Int("floor", floor), zap.String("event", ev.ID))
		return Encounter{Kind: KindEvent, Event: ev}, nil
	}
}

// pickMonster selects uniformly among the dungeon's monsters whose level lies
// in [max(1, floor-1), floor+2], falling back to every eligible monster when
// none fit.
func (g *Generator) pickMonster(d *catalog.DungeonDef, floor int) (*monster.Instance, error) {
	lo, hi := max(1, floor-1), floor+2
	defs := make([]*catalog.MonsterDef, 0, len(d.Monsters))
	var inRange []*catalog.MonsterDef
	for _, id := range d.Monsters {
		def, err := g.cat.Monster(id)
		if err != nil {
			return nil, fmt.Errorf("dungeon %q: %w", d.ID, err)
		}
		defs = append(defs, def)
		if def.Level >= lo && def.Level <= hi {
			inRange = append(inRange, def)
		}
	}
	if len(inRange) == 0 {
		inRange = defs
	}
	def := inRange[g.roller.Intn("monster", len(inRange))]
	return monster.NewInstance(def), nil
}

func (g *Generator) rollTreasure(d *catalog.DungeonDef, floor int) Treasure {
	roll := g.roller.Float64("treasure")
	switch {
	case roll < GoldTreasureWeight:
		return Treasure{Kind: TreasureGold, Gold: 50 + floor*25 + g.roller.Between("treasure gold", 0, 100)}
	case roll < GoldTreasureWeight+XPTreasureWeight:
		return Treasure{Kind: TreasureXP, XP: 25 + floor*15 + g.roller.Between("treasure xp", 0, 50)}
	default:
		return Treasure{Kind: TreasureItem, ItemID: d.TreasureItem, Quantity: 1}
	}
}
