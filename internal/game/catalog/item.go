package catalog

import (
	"errors"
	"fmt"
)

// ItemKind classifies an item definition.
type ItemKind string

const (
	KindWeapon     ItemKind = "weapon"
	KindArmor      ItemKind = "armor"
	KindAccessory  ItemKind = "accessory"
	KindConsumable ItemKind = "consumable"
	KindMaterial   ItemKind = "material"
)

var validKinds = map[ItemKind]bool{
	KindWeapon:     true,
	KindArmor:      true,
	KindAccessory:  true,
	KindConsumable: true,
	KindMaterial:   true,
}

// Slot identifies an equipment slot on a character.
type Slot string

const (
	SlotWeapon    Slot = "weapon"
	SlotHead      Slot = "head"
	SlotBody      Slot = "body"
	SlotHands     Slot = "hands"
	SlotFeet      Slot = "feet"
	SlotAccessory Slot = "accessory"
)

var validSlots = map[Slot]bool{
	SlotWeapon:    true,
	SlotHead:      true,
	SlotBody:      true,
	SlotHands:     true,
	SlotFeet:      true,
	SlotAccessory: true,
}

// StaffClass is the weapon class whose damage scales with intelligence.
const StaffClass = "staff"

const (
	// DefaultCritRate is the critical chance, in percent, of a weapon that
	// declares none.
	DefaultCritRate = 5.0
	// DefaultCritDamage is the critical damage multiplier, in percent, of a
	// weapon that declares none.
	DefaultCritDamage = 150.0
)

// StatBonuses are additive bonuses granted while an item is equipped.
type StatBonuses struct {
	Strength     int `yaml:"strength"`
	Intelligence int `yaml:"intelligence"`
	Defense      int `yaml:"defense"`
	Agility      int `yaml:"agility"`
	Luck         int `yaml:"luck"`
	MaxHealth    int `yaml:"max_health"`
	MaxMana      int `yaml:"max_mana"`
}

// Add returns the field-wise sum of b and o.
func (b StatBonuses) Add(o StatBonuses) StatBonuses {
	return StatBonuses{
		Strength:     b.Strength + o.Strength,
		Intelligence: b.Intelligence + o.Intelligence,
		Defense:      b.Defense + o.Defense,
		Agility:      b.Agility + o.Agility,
		Luck:         b.Luck + o.Luck,
		MaxHealth:    b.MaxHealth + o.MaxHealth,
		MaxMana:      b.MaxMana + o.MaxMana,
	}
}

// WeaponStats are the combat properties of a weapon.
type WeaponStats struct {
	// Class is the weapon family, e.g. "sword" or "staff".
	Class  string `yaml:"class"`
	Attack int    `yaml:"attack"`
	// CritRate is the critical chance in percent; nil means DefaultCritRate.
	CritRate *float64 `yaml:"crit_rate"`
	// CritDamage is the critical multiplier in percent; nil means DefaultCritDamage.
	CritDamage *float64 `yaml:"crit_damage"`
	// Element is the elemental tag matched against monster weaknesses.
	Element string `yaml:"element"`
}

// IsStaff reports whether the weapon scales with intelligence.
func (w *WeaponStats) IsStaff() bool {
	return w != nil && w.Class == StaffClass
}

// CritChance returns the critical chance in percent.
//
// Postcondition: Returns DefaultCritRate when w is nil or declares no rate.
func (w *WeaponStats) CritChance() float64 {
	if w == nil || w.CritRate == nil {
		return DefaultCritRate
	}
	return *w.CritRate
}

// CritMultiplier returns the critical damage multiplier as a factor (1.5 for 150%).
//
// Postcondition: Returns DefaultCritDamage/100 when w is nil or declares no multiplier.
func (w *WeaponStats) CritMultiplier() float64 {
	if w == nil || w.CritDamage == nil {
		return DefaultCritDamage / 100
	}
	return *w.CritDamage / 100
}

// AttackPower returns the weapon's flat attack, 0 for a nil weapon.
func (w *WeaponStats) AttackPower() int {
	if w == nil {
		return 0
	}
	return w.Attack
}

// ElementTag returns the weapon's element, "" for a nil weapon.
func (w *WeaponStats) ElementTag() string {
	if w == nil {
		return ""
	}
	return w.Element
}

// ItemDef defines the static properties of an item.
type ItemDef struct {
	ID          string       `yaml:"id"`
	Name        string       `yaml:"name"`
	Description string       `yaml:"description"`
	Kind        ItemKind     `yaml:"kind"`
	Slot        Slot         `yaml:"slot"`
	Weapon      *WeaponStats `yaml:"weapon"`
	Bonuses     StatBonuses  `yaml:"bonuses"`
	// Effect is applied when a consumable is used in combat.
	Effect *SkillEffect `yaml:"effect"`
	Value  int          `yaml:"value"`
}

// Equippable reports whether the item can occupy an equipment slot.
func (d *ItemDef) Equippable() bool {
	return d.Kind == KindWeapon || d.Kind == KindArmor || d.Kind == KindAccessory
}

func (w *WeaponStats) validate() []error {
	var errs []error
	if w.Attack < 0 {
		errs = append(errs, errors.New("weapon attack must be >= 0"))
	}
	if w.CritRate != nil && (*w.CritRate < 0 || *w.CritRate > 100) {
		errs = append(errs, errors.New("weapon crit_rate must be in [0, 100]"))
	}
	if w.CritDamage != nil && *w.CritDamage < 100 {
		errs = append(errs, errors.New("weapon crit_damage must be >= 100"))
	}
	return errs
}

// Validate checks that the ItemDef satisfies its invariants.
//
// Precondition: d is non-nil.
// Postcondition: returns nil iff all fields are valid.
func (d *ItemDef) Validate() error {
	var errs []error
	if d.ID == "" {
		errs = append(errs, errors.New("id must not be empty"))
	}
	if d.Name == "" {
		errs = append(errs, errors.New("name must not be empty"))
	}
	if !validKinds[d.Kind] {
		errs = append(errs, fmt.Errorf("kind must be one of weapon, armor, accessory, consumable, material; got %q", d.Kind))
	}
	if d.Equippable() && !validSlots[d.Slot] {
		errs = append(errs, fmt.Errorf("equippable item needs a valid slot, got %q", d.Slot))
	}
	if d.Kind == KindWeapon {
		if d.Slot != SlotWeapon {
			errs = append(errs, fmt.Errorf("weapon must use slot %q", SlotWeapon))
		}
		if d.Weapon == nil {
			errs = append(errs, errors.New("weapon stats are required when kind is weapon"))
		} else {
			errs = append(errs, d.Weapon.validate()...)
		}
	}
	if d.Kind == KindConsumable {
		if d.Effect == nil {
			errs = append(errs, errors.New("consumable requires an effect"))
		} else if d.Effect.Kind != EffectHeal {
			errs = append(errs, fmt.Errorf("consumable effect must be %q, got %q", EffectHeal, d.Effect.Kind))
		} else if err := d.Effect.Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("item %q: %v", d.ID, errors.Join(errs...))
	}
	return nil
}
