package catalog

import (
	"errors"
	"fmt"
)

// EffectKind tags the variant held by a SkillEffect.
type EffectKind string

const (
	// EffectHeal restores health and/or mana without touching the monster.
	EffectHeal EffectKind = "heal"
	// EffectDirectDamage strikes the monster with (STR+INT)*Coefficient + Offset.
	EffectDirectDamage EffectKind = "direct_damage"
	// EffectBuff grants a status that reduces the monster's counter-attack.
	EffectBuff EffectKind = "buff"
)

// DefaultSkillCoefficient scales STR+INT for direct-damage skills that declare
// no coefficient.
const DefaultSkillCoefficient = 0.7

// SkillEffect is a tagged union; only the fields of Kind are meaningful.
type SkillEffect struct {
	Kind EffectKind `yaml:"kind"`

	// heal
	Health int `yaml:"health"`
	Mana   int `yaml:"mana"`

	// direct_damage
	Coefficient float64 `yaml:"coefficient"`
	Offset      int     `yaml:"offset"`
	Element     string  `yaml:"element"`

	// buff
	Status    string `yaml:"status"`
	Reduction int    `yaml:"reduction"` // percent of incoming damage removed
}

// DamageCoefficient returns Coefficient or DefaultSkillCoefficient when unset.
func (e SkillEffect) DamageCoefficient() float64 {
	if e.Coefficient <= 0 {
		return DefaultSkillCoefficient
	}
	return e.Coefficient
}

// Validate checks that the fields required by Kind are present.
//
// Postcondition: Returns nil iff Kind is known and its fields are in range.
func (e SkillEffect) Validate() error {
	switch e.Kind {
	case EffectHeal:
		if e.Health < 0 || e.Mana < 0 || e.Health+e.Mana == 0 {
			return errors.New("heal effect must restore a positive amount of health or mana")
		}
	case EffectDirectDamage:
		if e.Coefficient < 0 || e.Offset < 0 {
			return errors.New("direct_damage coefficient and offset must be >= 0")
		}
	case EffectBuff:
		if e.Status == "" {
			return errors.New("buff effect requires a status")
		}
		if e.Reduction < 0 || e.Reduction > 100 {
			return fmt.Errorf("buff reduction must be in [0, 100], got %d", e.Reduction)
		}
	default:
		return fmt.Errorf("effect kind must be one of heal, direct_damage, buff; got %q", e.Kind)
	}
	return nil
}

// SkillDef defines an active skill a character can use in combat.
type SkillDef struct {
	ID          string      `yaml:"id"`
	Name        string      `yaml:"name"`
	Description string      `yaml:"description"`
	ManaCost    int         `yaml:"mana_cost"`
	Effect      SkillEffect `yaml:"effect"`
}

// Validate checks that the skill satisfies basic invariants.
func (s *SkillDef) Validate() error {
	var errs []error
	if s.ID == "" {
		errs = append(errs, errors.New("id must not be empty"))
	}
	if s.Name == "" {
		errs = append(errs, errors.New("name must not be empty"))
	}
	if s.ManaCost < 0 {
		errs = append(errs, errors.New("mana_cost must be >= 0"))
	}
	if err := s.Effect.Validate(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return fmt.Errorf("skill %q: %v", s.ID, errors.Join(errs...))
	}
	return nil
}
