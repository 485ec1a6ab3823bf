// Package monster holds the mutable monster copies fought inside a dungeon
// session, distinct from the immutable catalog definitions they come from.
package monster

import (
	"slices"

	"github.com/google/uuid"

	"github.com/cory-johannsen/crawl/internal/game/catalog"
)

// Instance is a live monster with mutable health.
type Instance struct {
	// ID uniquely identifies this runtime instance.
	ID string
	// DefID is the source definition's ID.
	DefID string
	// Name is copied from the definition for display.
	Name        string
	Level       int
	Health      int
	MaxHealth   int
	Attack      int
	Defense     int
	Weaknesses  []string
	Resistances []string
	XPReward    int
	GoldReward  int
}

// NewInstance creates a fresh instance of def at full health.
//
// Precondition: def must be non-nil and valid.
// Postcondition: Health equals def.MaxHealth; the instance shares no slices with def.
func NewInstance(def *catalog.MonsterDef) *Instance {
	return &Instance{
		ID:          uuid.New().String(),
		DefID:       def.ID,
		Name:        def.Name,
		Level:       def.Level,
		Health:      def.MaxHealth,
		MaxHealth:   def.MaxHealth,
		Attack:      def.Attack,
		Defense:     def.Defense,
		Weaknesses:  slices.Clone(def.Weaknesses),
		Resistances: slices.Clone(def.Resistances),
		XPReward:    def.XPReward,
		GoldReward:  def.GoldReward,
	}
}

// Clone returns a deep copy of i.
func (i *Instance) Clone() *Instance {
	out := *i
	out.Weaknesses = slices.Clone(i.Weaknesses)
	out.Resistances = slices.Clone(i.Resistances)
	return &out
}

// ApplyDamage reduces Health by amount, flooring at zero.
//
// Precondition: amount must be >= 0.
// Postcondition: Health >= 0.
func (i *Instance) ApplyDamage(amount int) {
	i.Health = max(0, i.Health-amount)
}

// IsDead reports whether the instance has zero or fewer hit points.
func (i *Instance) IsDead() bool {
	return i.Health <= 0
}

// HealthDescription returns a visible health state string.
//
// Postcondition: Returns a non-empty string.
func (i *Instance) HealthDescription() string {
	if i.Health <= 0 {
		return "dead"
	}
	pct := float64(i.Health) / float64(i.MaxHealth)
	switch {
	case pct >= 1.0:
		return "unharmed"
	case pct >= 0.85:
		return "barely scratched"
	case pct >= 0.60:
		return "lightly wounded"
	case pct >= 0.40:
		return "moderately wounded"
	case pct >= 0.20:
		return "heavily wounded"
	default:
		return "critically wounded"
	}
}
