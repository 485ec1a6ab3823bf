package catalog

import (
	"errors"
	"fmt"

	"github.com/cory-johannsen/crawl/internal/game/dice"
)

// EventEffectKind tags what happens when an event choice is taken.
type EventEffectKind string

const (
	EventHeal        EventEffectKind = "heal"
	EventRestoreMana EventEffectKind = "restore_mana"
	EventNone        EventEffectKind = "none"
	// EventScript delegates the outcome to a Lua hook.
	EventScript EventEffectKind = "script"
)

// EventEffect is the mechanical outcome of an event choice.
type EventEffect struct {
	Kind EventEffectKind `yaml:"kind"`
	// Amount is a dice expression ("2d6+10" or "25") for heal and restore_mana.
	Amount string `yaml:"amount"`
	// Hook is the Lua function called for script effects.
	Hook string `yaml:"hook"`
}

// EventChoice is one named option offered by an event.
type EventChoice struct {
	ID     string      `yaml:"id"`
	Label  string      `yaml:"label"`
	Effect EventEffect `yaml:"effect"`
}

// EventDef defines a narrative room event.
type EventDef struct {
	ID      string        `yaml:"id"`
	Title   string        `yaml:"title"`
	Text    string        `yaml:"text"`
	Choices []EventChoice `yaml:"choices"`
}

// Choice returns the choice with the given id.
//
// Postcondition: ok is true iff the event offers id.
func (e *EventDef) Choice(id string) (EventChoice, bool) {
	for _, c := range e.Choices {
		if c.ID == id {
			return c, true
		}
	}
	return EventChoice{}, false
}

// Validate checks that the event offers at least two well-formed choices.
func (e *EventDef) Validate() error {
	var errs []error
	if e.ID == "" {
		errs = append(errs, errors.New("id must not be empty"))
	}
	if e.Title == "" {
		errs = append(errs, errors.New("title must not be empty"))
	}
	if len(e.Choices) < 2 {
		errs = append(errs, fmt.Errorf("at least 2 choices are required, got %d", len(e.Choices)))
	}
	seen := make(map[string]bool, len(e.Choices))
	for i, c := range e.Choices {
		if c.ID == "" || c.Label == "" {
			errs = append(errs, fmt.Errorf("choice[%d] requires an id and a label", i))
		}
		if seen[c.ID] {
			errs = append(errs, fmt.Errorf("choice id %q is duplicated", c.ID))
		}
		seen[c.ID] = true
		switch c.Effect.Kind {
		case EventHeal, EventRestoreMana:
			if _, err := dice.Parse(c.Effect.Amount); err != nil {
				errs = append(errs, fmt.Errorf("choice %q amount: %w", c.ID, err))
			}
		case EventScript:
			if c.Effect.Hook == "" {
				errs = append(errs, fmt.Errorf("choice %q script effect requires a hook", c.ID))
			}
		case EventNone:
		default:
			errs = append(errs, fmt.Errorf("choice %q effect kind must be one of heal, restore_mana, none, script; got %q", c.ID, c.Effect.Kind))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("event %q: %v", e.ID, errors.Join(errs...))
	}
	return nil
}
