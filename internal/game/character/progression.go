package character

// XPPerLevelUnit is the divisor of the level curve level(xp) = floor(sqrt(xp/100)) + 1.
const XPPerLevelUnit = 100

// Growth is the fixed stat increase granted by each level gained.
type Growth struct {
	Attributes
	MaxHealth int
	MaxMana   int
}

// PerLevel is applied once for every level crossed.
var PerLevel = Growth{
	Attributes: Attributes{Strength: 2, Intelligence: 2, Defense: 1, Agility: 1, Luck: 1},
	MaxHealth:  5,
	MaxMana:    3,
}

// LevelForXP returns the level reached with xp lifetime experience.
//
// Postcondition: Returns floor(sqrt(xp/100)) + 1, and 1 for xp <= 0.
func LevelForXP(xp int) int {
	if xp <= 0 {
		return 1
	}
	return isqrt(xp/XPPerLevelUnit) + 1
}

// isqrt returns floor(sqrt(n)) for n >= 0 using integer arithmetic only.
func isqrt(n int) int {
	r := 0
	for (r+1)*(r+1) <= n {
		r++
	}
	return r
}

// GainExperience adds xp to c and applies PerLevel once for every level
// boundary crossed.
//
// Precondition: xp >= 0.
// Postcondition: c.Level == max(previous level, LevelForXP(c.Experience));
// returns the number of levels gained. Health and mana are left untouched; the
// caller restores them to the derived maximum when levels > 0.
func GainExperience(c *Character, xp int) int {
	c.Experience += xp
	levels := 0
	for LevelForXP(c.Experience) > c.Level {
		c.Level++
		c.Attributes.Strength += PerLevel.Strength
		c.Attributes.Intelligence += PerLevel.Intelligence
		c.Attributes.Defense += PerLevel.Defense
		c.Attributes.Agility += PerLevel.Agility
		c.Attributes.Luck += PerLevel.Luck
		c.MaxHealth += PerLevel.MaxHealth
		c.MaxMana += PerLevel.MaxMana
		levels++
	}
	return levels
}
