package combat

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/cory-johannsen/crawl/internal/game/catalog"
	"github.com/cory-johannsen/crawl/internal/game/character"
	"github.com/cory-johannsen/crawl/internal/game/dice"
	"github.com/cory-johannsen/crawl/internal/game/monster"
)

// DefendReduction is the percentage of counter-attack damage removed by defending.
const DefendReduction = 50

// Lookup resolves the skill and item definitions a turn may reference.
// *catalog.Catalog satisfies it.
type Lookup interface {
	Skill(id string) (*catalog.SkillDef, error)
	Item(id string) (*catalog.ItemDef, error)
}

// Combatant is the character side of a turn: the loaded snapshot, its derived
// stats, and its current health and mana in this fight.
type Combatant struct {
	Character *character.Character
	Stats     character.Stats
	Health    int
	Mana      int
}

// Turn is the outcome of one resolved turn. The resolver never mutates its
// inputs; callers apply the new totals.
type Turn struct {
	Action Action
	Actor  Result
	// Counter is nil when the monster did not survive the action.
	Counter *Result

	CharacterHealth int
	CharacterMana   int
	MonsterHealth   int
	// MonsterCondition describes the monster's health after the turn, as
	// shown to the player.
	MonsterCondition string
	// Consumed lists item units used up by the action.
	Consumed map[string]int
}

// MonsterDefeated reports whether the monster ended the turn at zero health.
func (t Turn) MonsterDefeated() bool { return t.MonsterHealth <= 0 }

// CharacterDefeated reports whether the character ended the turn at zero health.
func (t Turn) CharacterDefeated() bool { return t.CharacterHealth <= 0 }

// Resolver resolves combat turns.
type Resolver struct {
	lookup Lookup
	roller *dice.Roller
	logger *zap.Logger
}

// NewResolver creates a Resolver.
//
// Precondition: lookup, roller and logger must be non-nil.
func NewResolver(lookup Lookup, roller *dice.Roller, logger *zap.Logger) *Resolver {
	return &Resolver{lookup: lookup, roller: roller, logger: logger}
}

// ResolveTurn resolves the character's action and, if the monster survives,
// its counter-attack.
//
// Precondition: c.Character and m must be non-nil.
// Postcondition: On error nothing is drawn and no state is changed; the error
// wraps ErrInvalidAction or ErrInsufficientResource. On success
// 0 <= CharacterHealth <= c.Stats.MaxHealth and MonsterHealth >= 0.
func (r *Resolver) ResolveTurn(c Combatant, action Action, m *monster.Instance) (Turn, error) {
	plan, err := r.plan(c, action)
	if err != nil {
		return Turn{}, err
	}

	turn := Turn{
		Action:          action,
		CharacterHealth: c.Stats.ClampHealth(c.Health),
		CharacterMana:   c.Stats.ClampMana(c.Mana - plan.manaCost),
		MonsterHealth:   max(0, m.Health),
		Consumed:        plan.consumed,
	}

	reduction := 0
	switch action.Kind {
	case ActionAttack:
		turn.Actor = ComputeAttackDamage(c.Stats, m.Defense, m.Weaknesses, r.roller)
	case ActionDefend:
		turn.Actor = Result{Effects: []string{StatusDefending}, Message: "You brace for the next blow."}
		reduction = DefendReduction
	case ActionSkill, ActionItem:
		turn.Actor, reduction = r.applyEffect(c, plan, m, &turn)
	}

	target := m.Clone()
	target.Health = turn.MonsterHealth
	target.ApplyDamage(turn.Actor.Damage)
	turn.MonsterHealth = target.Health
	turn.MonsterCondition = target.HealthDescription()
	if !target.IsDead() {
		counter := ComputeMonsterAttack(m, c.Stats.Defense, r.roller)
		if reduction > 0 {
			counter.Damage = counter.Damage * (100 - reduction) / 100
			counter.Effects = append(counter.Effects, StatusReduced)
			counter.Message = fmt.Sprintf("%s hits you for %d damage (reduced).", m.Name, counter.Damage)
		}
		turn.Counter = &counter
		turn.CharacterHealth = c.Stats.ClampHealth(turn.CharacterHealth - counter.Damage)
	}

	r.logger.Debug("turn resolved",
		zap.String("character_id", c.Character.ID),
		zap.String("monster", m.DefID),
		zap.Stringer("action", action),
		zap.Int("damage", turn.Actor.Damage),
		zap.Int("character_health", turn.CharacterHealth),
		zap.Int("monster_health", turn.MonsterHealth),
		zap.String("monster_condition", turn.MonsterCondition),
	)
	return turn, nil
}

// plan holds what validation resolved for a skill or item action.
type plan struct {
	effect   catalog.SkillEffect
	name     string
	manaCost int
	consumed map[string]int
}

// plan validates action against the character's current resources. It makes
// no draws.
func (r *Resolver) plan(c Combatant, action Action) (plan, error) {
	if err := action.Validate(); err != nil {
		return plan{}, err
	}
	switch action.Kind {
	case ActionSkill:
		if !c.Character.KnowsSkill(action.SkillID) {
			return plan{}, fmt.Errorf("%w: skill %q is not known", ErrInvalidAction, action.SkillID)
		}
		def, err := r.lookup.Skill(action.SkillID)
		if err != nil {
			return plan{}, fmt.Errorf("%w: %w", ErrInvalidAction, err)
		}
		if c.Mana < def.ManaCost {
			return plan{}, fmt.Errorf("%w: %s needs %d mana, have %d", ErrInsufficientResource, def.Name, def.ManaCost, c.Mana)
		}
		return plan{effect: def.Effect, name: def.Name, manaCost: def.ManaCost}, nil
	case ActionItem:
		if !c.Character.Holds(action.ItemID, 1) {
			return plan{}, fmt.Errorf("%w: no %q in inventory", ErrInsufficientResource, action.ItemID)
		}
		def, err := r.lookup.Item(action.ItemID)
		if err != nil {
			return plan{}, fmt.Errorf("%w: %w", ErrInvalidAction, err)
		}
		if def.Kind != catalog.KindConsumable || def.Effect == nil || def.Effect.Kind != catalog.EffectHeal {
			return plan{}, fmt.Errorf("%w: %s cannot be used in combat", ErrInvalidAction, def.Name)
		}
		return plan{effect: *def.Effect, name: def.Name, consumed: map[string]int{def.ID: 1}}, nil
	}
	return plan{}, nil
}

// applyEffect resolves a skill or item effect, updating turn's pools. It
// returns the actor result and the counter-attack reduction percent.
func (r *Resolver) applyEffect(c Combatant, p plan, m *monster.Instance, turn *Turn) (Result, int) {
	switch p.effect.Kind {
	case catalog.EffectHeal:
		before := turn.CharacterHealth
		turn.CharacterHealth = c.Stats.ClampHealth(turn.CharacterHealth + p.effect.Health)
		turn.CharacterMana = c.Stats.ClampMana(turn.CharacterMana + p.effect.Mana)
		return Result{
			Effects: []string{StatusHealed},
			Message: fmt.Sprintf("%s restores %d health.", p.name, turn.CharacterHealth-before),
		}, 0
	case catalog.EffectDirectDamage:
		res := ComputeSkillDamage(c.Stats, p.effect, m.Defense, m.Weaknesses, r.roller)
		res.Message = p.name + ": " + res.Message
		return res, 0
	case catalog.EffectBuff:
		return Result{
			Effects: []string{p.effect.Status},
			Message: fmt.Sprintf("%s grants %s.", p.name, p.effect.Status),
		}, p.effect.Reduction
	default:
		panic(fmt.Sprintf("combat: unhandled effect kind %q", p.effect.Kind))
	}
}
