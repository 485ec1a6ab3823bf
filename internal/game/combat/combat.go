// Package combat implements the damage formulas and the one-turn resolver for
// a character fighting a single monster.
package combat

import (
	"errors"
	"fmt"
	"math"
	"slices"

	"github.com/cory-johannsen/crawl/internal/game/catalog"
	"github.com/cory-johannsen/crawl/internal/game/character"
	"github.com/cory-johannsen/crawl/internal/game/dice"
	"github.com/cory-johannsen/crawl/internal/game/monster"
)

var (
	// ErrInvalidAction is returned for a malformed action, an unknown skill or
	// item, or an action that is not valid in the current state.
	ErrInvalidAction = errors.New("invalid action")
	// ErrInsufficientResource is returned when the character lacks the mana or
	// item an action needs.
	ErrInsufficientResource = errors.New("insufficient resource")
)

const (
	// PrimaryStatScale scales the primary attribute into base damage.
	PrimaryStatScale = 0.5
	// WeaknessMultiplier applies when the attack element matches a weakness.
	WeaknessMultiplier = 1.5
	// VarianceLow and VarianceHigh bound the final random damage factor.
	VarianceLow  = 0.9
	VarianceHigh = 1.1
	// MinDamage is the least damage a landed attack deals.
	MinDamage = 1
)

// Status effect tags reported in Result.Effects.
const (
	StatusDefending = "defending"
	StatusHealed    = "healed"
	StatusReduced   = "reduced"
)

// Result is the outcome of one attack or action.
type Result struct {
	// Damage dealt, always >= 0.
	Damage        int
	Critical      bool
	WeaknessBreak bool
	// Effects lists the status tags applied by the action.
	Effects []string
	Message string
}

// Mitigation returns the damage factor 100/(100+defense).
//
// Postcondition: Returns a value in (0, 1]; exactly 1 when defense <= 0.
func Mitigation(defense int) float64 {
	return 100 / (100 + float64(max(0, defense)))
}

// ComputeAttackDamage computes the damage of a character's weapon attack
// against a target with the given defense and weaknesses. Staff wielders scale
// with intelligence, everyone else with strength.
//
// Precondition: r must be non-nil.
// Postcondition: Damage >= MinDamage. Exactly two draws are made: the critical
// roll, then the variance.
func ComputeAttackDamage(stats character.Stats, targetDefense int, weaknesses []string, r *dice.Roller) Result {
	base := float64(stats.PrimaryStat())*PrimaryStatScale + float64(stats.Weapon.AttackPower())
	return strike(base, stats.Weapon, stats.Weapon.ElementTag(), targetDefense, weaknesses, r)
}

// ComputeSkillDamage computes a direct-damage skill hit: (STR+INT) scaled by
// the skill coefficient plus its offset. The weapon supplies the critical
// profile; the skill element, or the weapon element when the skill has none,
// is matched against weaknesses.
//
// Precondition: effect.Kind == catalog.EffectDirectDamage; r must be non-nil.
// Postcondition: Damage >= MinDamage.
func ComputeSkillDamage(stats character.Stats, effect catalog.SkillEffect, targetDefense int, weaknesses []string, r *dice.Roller) Result {
	base := float64(stats.Strength+stats.Intelligence)*effect.DamageCoefficient() + float64(effect.Offset)
	element := effect.Element
	if element == "" {
		element = stats.Weapon.ElementTag()
	}
	return strike(base, stats.Weapon, element, targetDefense, weaknesses, r)
}

// ComputeMonsterAttack computes a monster's plain attack against a defender
// with the given defense. Monsters never crit or exploit weaknesses.
//
// Precondition: m and r must be non-nil.
// Postcondition: Damage >= MinDamage. Exactly one draw is made: the variance.
func ComputeMonsterAttack(m *monster.Instance, defenderDefense int, r *dice.Roller) Result {
	dmg := float64(m.Attack) * Mitigation(defenderDefense)
	dmg *= r.Uniform("monster variance", VarianceLow, VarianceHigh)
	final := max(MinDamage, int(math.Floor(dmg)))
	return Result{
		Damage:  final,
		Message: fmt.Sprintf("%s hits you for %d damage.", m.Name, final),
	}
}

func strike(base float64, weapon *catalog.WeaponStats, element string, defense int, weaknesses []string, r *dice.Roller) Result {
	dmg := base * Mitigation(defense)

	var res Result
	if r.Percent("crit") < weapon.CritChance() {
		res.Critical = true
		dmg *= weapon.CritMultiplier()
	}
	if element != "" && slices.Contains(weaknesses, element) {
		res.WeaknessBreak = true
		dmg *= WeaknessMultiplier
	}
	dmg *= r.Uniform("variance", VarianceLow, VarianceHigh)

	res.Damage = max(MinDamage, int(math.Floor(dmg)))
	res.Message = hitMessage(res)
	return res
}

func hitMessage(res Result) string {
	switch {
	case res.Critical && res.WeaknessBreak:
		return fmt.Sprintf("Critical weakness break! You deal %d damage.", res.Damage)
	case res.Critical:
		return fmt.Sprintf("Critical hit! You deal %d damage.", res.Damage)
	case res.WeaknessBreak:
		return fmt.Sprintf("Weakness break! You deal %d damage.", res.Damage)
	default:
		return fmt.Sprintf("You deal %d damage.", res.Damage)
	}
}
