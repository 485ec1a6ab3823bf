package encounter

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/cory-johannsen/crawl/internal/game/catalog"
	"github.com/cory-johannsen/crawl/internal/game/combat"
)

// ErrScriptsDisabled is returned when a script effect is chosen but the
// Generator has no ScriptRunner.
var ErrScriptsDisabled = errors.New("script effects are disabled")

// ScriptInput is the state handed to an event hook.
type ScriptInput struct {
	CharacterID string
	DungeonID   string
	EventID     string
	ChoiceID    string
	Floor       int
	Health      int
	MaxHealth   int
	Mana        int
	MaxMana     int
}

// ScriptOutput is what an event hook asks for. Deltas are relative.
type ScriptOutput struct {
	HealthDelta int
	ManaDelta   int
	GoldDelta   int
	XPDelta     int
	Message     string
}

// ScriptRunner runs event hooks. *scripting.Manager satisfies it.
type ScriptRunner interface {
	RunEventHook(dungeonID, hook string, in ScriptInput) (ScriptOutput, error)
}

// EventState is the character state an event choice acts on.
type EventState struct {
	CharacterID string
	DungeonID   string
	Floor       int
	Health      int
	MaxHealth   int
	Mana        int
	MaxMana     int
}

// EventOutcome is the result of resolving an event choice.
type EventOutcome struct {
	EventID  string
	ChoiceID string
	// Health and Mana are the new absolute values, clamped to [0, max].
	Health int
	Mana   int
	// Gold and XP are grants to settle; only scripts produce them.
	Gold    int
	XP      int
	Message string
}

// ResolveEvent applies the effect of choiceID on ev to state.
//
// Precondition: ev must be non-nil.
// Postcondition: Returns an error wrapping combat.ErrInvalidAction when the
// event does not offer choiceID; no draws are made in that case.
func (g *Generator) ResolveEvent(ev *catalog.EventDef, choiceID string, state EventState) (EventOutcome, error) {
	choice, ok := ev.Choice(choiceID)
	if !ok {
		return EventOutcome{}, fmt.Errorf("%w: event %q has no choice %q", combat.ErrInvalidAction, ev.ID, choiceID)
	}

	out := EventOutcome{
		EventID:  ev.ID,
		ChoiceID: choice.ID,
		Health:   clamp(state.Health, state.MaxHealth),
		Mana:     clamp(state.Mana, state.MaxMana),
	}

	switch choice.Effect.Kind {
	case catalog.EventHeal:
		amount, err := g.roller.RollExpr(choice.Effect.Amount)
		if err != nil {
			return EventOutcome{}, fmt.Errorf("event %q choice %q: %w", ev.ID, choice.ID, err)
		}
		before := out.Health
		out.Health = clamp(out.Health+amount.Total(), state.MaxHealth)
		out.Message = fmt.Sprintf("%s: you recover %d health.", choice.Label, out.Health-before)
	case catalog.EventRestoreMana:
		amount, err := g.roller.RollExpr(choice.Effect.Amount)
		if err != nil {
			return EventOutcome{}, fmt.Errorf("event %q choice %q: %w", ev.ID, choice.ID, err)
		}
		before := out.Mana
		out.Mana = clamp(out.Mana+amount.Total(), state.MaxMana)
		out.Message = fmt.Sprintf("%s: you recover %d mana.", choice.Label, out.Mana-before)
	case catalog.EventNone:
		out.Message = choice.Label + ": nothing happens."
	case catalog.EventScript:
		if g.scripts == nil {
			return EventOutcome{}, fmt.Errorf("event %q choice %q: %w", ev.ID, choice.ID, ErrScriptsDisabled)
		}
		res, err := g.scripts.RunEventHook(state.DungeonID, choice.Effect.Hook, ScriptInput{
			CharacterID: state.CharacterID,
			DungeonID:   state.DungeonID,
			EventID:     ev.ID,
			ChoiceID:    choice.ID,
			Floor:       state.Floor,
			Health:      out.Health,
			MaxHealth:   state.MaxHealth,
			Mana:        out.Mana,
			MaxMana:     state.MaxMana,
		})
		if err != nil {
			return EventOutcome{}, fmt.Errorf("event %q hook %q: %w", ev.ID, choice.Effect.Hook, err)
		}
		out.Health = clamp(out.Health+res.HealthDelta, state.MaxHealth)
		out.Mana = clamp(out.Mana+res.ManaDelta, state.MaxMana)
		out.Gold = res.GoldDelta
		out.XP = max(0, res.XPDelta)
		out.Message = res.Message
		if out.Message == "" {
			out.Message = choice.Label + "."
		}
	}

	g.logger.Debug("event resolved",
		zap.String("character_id", state.CharacterID),
		zap.String("event", ev.ID),
		zap.String("choice", choice.ID),
		zap.Int("health", out.Health),
		zap.Int("mana", out.Mana),
	)
	return out, nil
}

func clamp(v, hi int) int {
	return min(max(0, v), hi)
}
