// Package catalog holds the immutable reference data of the game: items,
// monsters, dungeons, skills and narrative events. A Catalog is built once at
// startup and shared read-only by every component.
package catalog

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrItemNotFound is returned when an item id is not in the catalog.
	ErrItemNotFound = errors.New("item not found")
	// ErrMonsterNotFound is returned when a monster id is not in the catalog.
	ErrMonsterNotFound = errors.New("monster not found")
	// ErrDungeonNotFound is returned when a dungeon id is not in the catalog.
	ErrDungeonNotFound = errors.New("dungeon not found")
	// ErrSkillNotFound is returned when a skill id is not in the catalog.
	ErrSkillNotFound = errors.New("skill not found")
	// ErrEventNotFound is returned when an event id is not in the catalog.
	ErrEventNotFound = errors.New("event not found")
)

// Content is the raw set of definitions a Catalog is built from.
type Content struct {
	Items    []*ItemDef    `yaml:"items"`
	Monsters []*MonsterDef `yaml:"monsters"`
	Dungeons []*DungeonDef `yaml:"dungeons"`
	Skills   []*SkillDef   `yaml:"skills"`
	Events   []*EventDef   `yaml:"events"`
}

// merge appends other's definitions to c.
func (c *Content) merge(other Content) {
	c.Items = append(c.Items, other.Items...)
	c.Monsters = append(c.Monsters, other.Monsters...)
	c.Dungeons = append(c.Dungeons, other.Dungeons...)
	c.Skills = append(c.Skills, other.Skills...)
	c.Events = append(c.Events, other.Events...)
}

// Catalog indexes every definition by ID.
//
// Invariant: a Catalog is never mutated after New returns. Callers must treat
// returned definitions as read-only.
type Catalog struct {
	items    map[string]*ItemDef
	monsters map[string]*MonsterDef
	dungeons map[string]*DungeonDef
	skills   map[string]*SkillDef
	events   map[string]*EventDef

	eventOrder   []*EventDef
	dungeonOrder []*DungeonDef
}

// New validates content and builds a Catalog from it.
//
// Postcondition: Returns a Catalog in which every cross reference (dungeon
// monsters, treasure items, loot items) resolves, or an error describing all
// violations.
func New(content Content) (*Catalog, error) {
	c := &Catalog{
		items:    make(map[string]*ItemDef, len(content.Items)),
		monsters: make(map[string]*MonsterDef, len(content.Monsters)),
		dungeons: make(map[string]*DungeonDef, len(content.Dungeons)),
		skills:   make(map[string]*SkillDef, len(content.Skills)),
		events:   make(map[string]*EventDef, len(content.Events)),
	}

	var errs []string
	add := func(kind, id string, err error, exists bool) bool {
		if err != nil {
			errs = append(errs, err.Error())
			return false
		}
		if exists {
			errs = append(errs, fmt.Sprintf("%s %q defined more than once", kind, id))
			return false
		}
		return true
	}

	for _, d := range content.Items {
		_, dup := c.items[d.ID]
		if add("item", d.ID, d.Validate(), dup) {
			c.items[d.ID] = d
		}
	}
	for _, d := range content.Monsters {
		_, dup := c.monsters[d.ID]
		if add("monster", d.ID, d.Validate(), dup) {
			c.monsters[d.ID] = d
		}
	}
	for _, d := range content.Dungeons {
		_, dup := c.dungeons[d.ID]
		if add("dungeon", d.ID, d.Validate(), dup) {
			c.dungeons[d.ID] = d
			c.dungeonOrder = append(c.dungeonOrder, d)
		}
	}
	for _, d := range content.Skills {
		_, dup := c.skills[d.ID]
		if add("skill", d.ID, d.Validate(), dup) {
			c.skills[d.ID] = d
		}
	}
	for _, d := range content.Events {
		_, dup := c.events[d.ID]
		if add("event", d.ID, d.Validate(), dup) {
			c.events[d.ID] = d
			c.eventOrder = append(c.eventOrder, d)
		}
	}

	errs = append(errs, c.checkReferences()...)
	if len(errs) > 0 {
		return nil, fmt.Errorf("catalog validation failed: %s", strings.Join(errs, "; "))
	}

	sort.Slice(c.eventOrder, func(i, j int) bool { return c.eventOrder[i].ID < c.eventOrder[j].ID })
	sort.Slice(c.dungeonOrder, func(i, j int) bool { return c.dungeonOrder[i].ID < c.dungeonOrder[j].ID })
	return c, nil
}

func (c *Catalog) checkReferences() []string {
	var errs []string
	for _, m := range c.monsters {
		for _, drop := range m.Loot {
			if _, ok := c.items[drop.ItemID]; !ok {
				errs = append(errs, fmt.Sprintf("monster %q loot references unknown item %q", m.ID, drop.ItemID))
			}
		}
	}
	for _, d := range c.dungeons {
		for _, id := range d.Monsters {
			if _, ok := c.monsters[id]; !ok {
				errs = append(errs, fmt.Sprintf("dungeon %q references unknown monster %q", d.ID, id))
			}
		}
		if _, ok := c.items[d.TreasureItem]; !ok {
			errs = append(errs, fmt.Sprintf("dungeon %q treasure_item %q is not a known item", d.ID, d.TreasureItem))
		}
	}
	if len(c.dungeons) > 0 && len(c.events) == 0 {
		errs = append(errs, "at least one event is required when dungeons are defined")
	}
	sort.Strings(errs)
	return errs
}

// Item returns the item definition for id.
//
// Postcondition: Returns the definition, or an error wrapping ErrItemNotFound.
func (c *Catalog) Item(id string) (*ItemDef, error) {
	if d, ok := c.items[id]; ok {
		return d, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrItemNotFound, id)
}

// Monster returns the monster definition for id.
//
// Postcondition: Returns the definition, or an error wrapping ErrMonsterNotFound.
func (c *Catalog) Monster(id string) (*MonsterDef, error) {
	if d, ok := c.monsters[id]; ok {
		return d, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrMonsterNotFound, id)
}

// Dungeon returns the dungeon definition for id.
//
// Postcondition: Returns the definition, or an error wrapping ErrDungeonNotFound.
func (c *Catalog) Dungeon(id string) (*DungeonDef, error) {
	if d, ok := c.dungeons[id]; ok {
		return d, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrDungeonNotFound, id)
}

// Skill returns the skill definition for id.
//
// Postcondition: Returns the definition, or an error wrapping ErrSkillNotFound.
func (c *Catalog) Skill(id string) (*SkillDef, error) {
	if d, ok := c.skills[id]; ok {
		return d, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrSkillNotFound, id)
}

// Event returns the event definition for id.
//
// Postcondition: Returns the definition, or an error wrapping ErrEventNotFound.
func (c *Catalog) Event(id string) (*EventDef, error) {
	if d, ok := c.events[id]; ok {
		return d, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrEventNotFound, id)
}

// Events returns every event sorted by ID.
func (c *Catalog) Events() []*EventDef {
	out := make([]*EventDef, len(c.eventOrder))
	copy(out, c.eventOrder)
	return out
}

// Dungeons returns every dungeon sorted by ID.
func (c *Catalog) Dungeons() []*DungeonDef {
	out := make([]*DungeonDef, len(c.dungeonOrder))
	copy(out, c.dungeonOrder)
	return out
}

// Counts reports how many definitions of each kind are loaded, keyed by kind.
func (c *Catalog) Counts() map[string]int {
	return map[string]int{
		"items":    len(c.items),
		"monsters": len(c.monsters),
		"dungeons": len(c.dungeons),
		"skills":   len(c.skills),
		"events":   len(c.events),
	}
}
