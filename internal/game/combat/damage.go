// Package combat implements hit, crit, damage and capture rolls.
package combat

import (
	"math"

	"github.com/udisondev/beastcall/internal/config"
	"github.com/udisondev/beastcall/internal/model"
)

// Roller yields uniform random numbers in [0, 1).
// *rand.Rand from math/rand/v2 satisfies it.
type Roller interface {
	Float64() float64
}

// DamageType selects the attack/defense pair and balance constant.
type DamageType uint8

const (
	Physical DamageType = iota
	Magical
)

func (t DamageType) String() string {
	if t == Magical {
		return "magical"
	}
	return "physical"
}

// Combatant is a stat snapshot of one side of an exchange, with modifiers applied.
type Combatant struct {
	Stats            model.StatBlock
	FixedReduction   float64 // 0..1
	PercentReduction float64 // 0..1
}

// Hit is the outcome of one strike.
type Hit struct {
	Missed bool
	Crit   bool
	Damage int32
}

// Calculator rolls combat outcomes using fixed configuration constants.
// Not thread-safe when the underlying Roller is not.
type Calculator struct {
	cfg config.Damage
	rng Roller
}

// NewCalculator creates a Calculator.
func NewCalculator(cfg config.Damage, rng Roller) *Calculator {
	return &Calculator{cfg: cfg, rng: rng}
}

// Config returns the damage constants in use.
func (c *Calculator) Config() config.Damage {
	return c.cfg
}

// BaseDamage computes the deterministic part of the damage formula:
//
//	k * atk / (atk + def) * skillBonus * (1 - fixed) * (1 - percent)
//
// Returns 0 when atk + def is not positive.
func BaseDamage(k, atk, def, skillBonus, fixed, percent float64) float64 {
	if atk+def <= 0 || atk <= 0 {
		return 0
	}
	return k * atk / (atk + def) * skillBonus * (1 - fixed) * (1 - percent)
}

// HitChance returns clamp(hitRate - dodgeRate, min, max).
func (c *Calculator) HitChance(attacker, defender model.StatBlock) float64 {
	chance := attacker.HitRate - defender.DodgeRate
	return math.Max(c.cfg.MinHitChance, math.Min(c.cfg.MaxHitChance, chance))
}

// CritMultiplier returns the attacker's crit multiplier, never below 1.0.
func (c *Calculator) CritMultiplier(attacker model.StatBlock) float64 {
	if attacker.CritDamage >= 1.0 {
		return attacker.CritDamage
	}
	return math.Max(c.cfg.DefaultCritDamage, 1.0)
}

// Base returns the deterministic damage for a strike of the given type.
func (c *Calculator) Base(typ DamageType, attacker, defender Combatant, skillBonus float64) float64 {
	k, atk, def := c.cfg.PhysicalBalance, attacker.Stats.PhysicalAttack, defender.Stats.PhysicalDefense
	if typ == Magical {
		k, atk, def = c.cfg.MagicalBalance, attacker.Stats.MagicalAttack, defender.Stats.MagicalDefense
	}
	return BaseDamage(k, float64(atk), float64(def), skillBonus, defender.FixedReduction, defender.PercentReduction)
}

// Strike rolls one attack: hit, then damage variation, then crit.
//
// A miss deals no damage. A landed hit deals at least MinDamage.
func (c *Calculator) Strike(typ DamageType, attacker, defender Combatant, skillBonus float64) Hit {
	if c.rng.Float64() >= c.HitChance(attacker.Stats, defender.Stats) {
		return Hit{Missed: true}
	}

	dmg := c.Base(typ, attacker, defender, skillBonus)

	// x[1-v, 1+v]
	if v := c.cfg.Variation; v > 0 {
		dmg *= 1 + v*(2*c.rng.Float64()-1)
	}

	var h Hit
	if c.rng.Float64() < attacker.Stats.CritRate {
		h.Crit = true
		dmg *= c.CritMultiplier(attacker.Stats)
	}

	h.Damage = int32(math.Min(math.Floor(dmg), math.MaxInt32))
	h.Damage = max(h.Damage, c.cfg.MinDamage)
	return h
}
