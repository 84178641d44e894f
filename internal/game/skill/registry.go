// Package skill tracks timed status effects on battle units.
package skill

import (
	"fmt"
	"log/slog"
	"math"
	"slices"

	"github.com/udisondev/beastcall/internal/model"
)

// BuffNotFoundError reports an operation on a buff the unit does not hold.
// It is never fatal: callers report it and continue.
type BuffNotFoundError struct {
	UnitID string
	BuffID string
}

func (e *BuffNotFoundError) Error() string {
	return fmt.Sprintf("buff %q not found on unit %s", e.BuffID, e.UnitID)
}

// Registry manages the effect lists of battle units.
//
// It holds no per-unit state of its own: effects live on model.BattleUnit.Effects
// in application order. Not thread-safe, the battle machine serialises access.
type Registry struct {
	logger *slog.Logger
}

// NewRegistry creates a Registry. A nil logger uses slog.Default().
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{logger: logger}
}

// Apply attaches e to u.
//
// Stacking: an effect with the BuffID of one already held replaces it (the old
// instance is removed and the new one appended) unless e.Stackable is set, in which
// case both instances are kept. Returns true if an existing instance was replaced.
func (r *Registry) Apply(u *model.BattleUnit, e model.StatusEffect) bool {
	if e.RemainingDuration <= 0 {
		r.logger.Debug("effect with no duration ignored", "unit", u.ID, "buff", e.BuffID)
		return false
	}

	replaced := false
	if !e.Stackable {
		before := len(u.Effects)
		u.Effects = slices.DeleteFunc(u.Effects, func(x model.StatusEffect) bool {
			return x.BuffID == e.BuffID
		})
		replaced = len(u.Effects) != before
	}
	u.Effects = append(u.Effects, e)

	r.logger.Debug("effect applied",
		"unit", u.ID,
		"buff", e.BuffID,
		"source", e.SourceSkill,
		"duration", e.RemainingDuration,
		"active", e.Active,
		"replaced", replaced)
	return replaced
}

// HasActive reports whether u holds an active instance of buffID.
func (r *Registry) HasActive(u *model.BattleUnit, buffID string) bool {
	return slices.ContainsFunc(u.Effects, func(e model.StatusEffect) bool {
		return e.BuffID == buffID && e.Active
	})
}

// SetActive sets the activation flag of every instance of buffID on u.
func (r *Registry) SetActive(u *model.BattleUnit, buffID string, active bool) error {
	found := false
	for i := range u.Effects {
		if u.Effects[i].BuffID == buffID {
			u.Effects[i].Active = active
			found = true
		}
	}
	if !found {
		return &BuffNotFoundError{UnitID: u.ID, BuffID: buffID}
	}
	return nil
}

// Toggle flips buffID between active and suspended and returns the new state.
// Stacked instances are switched together: if any is active, all are suspended.
func (r *Registry) Toggle(u *model.BattleUnit, buffID string) (bool, error) {
	next := !r.HasActive(u, buffID)
	if err := r.SetActive(u, buffID, next); err != nil {
		return false, err
	}
	return next, nil
}

// ListActive returns copies of u's active effects in application order.
func (r *Registry) ListActive(u *model.BattleUnit) []model.StatusEffect {
	return filter(u.Effects, true)
}

// ListInactive returns copies of u's suspended effects in application order.
func (r *Registry) ListInactive(u *model.BattleUnit) []model.StatusEffect {
	return filter(u.Effects, false)
}

// Remove drops every instance of buffID from u.
func (r *Registry) Remove(u *model.BattleUnit, buffID string) error {
	before := len(u.Effects)
	u.Effects = slices.DeleteFunc(u.Effects, func(e model.StatusEffect) bool {
		return e.BuffID == buffID
	})
	if len(u.Effects) == before {
		return &BuffNotFoundError{UnitID: u.ID, BuffID: buffID}
	}
	return nil
}

// TickResult summarises one resolution-phase tick of a unit.
type TickResult struct {
	HPDelta int32    // net HP change from periodic effects
	Expired []string // buff IDs removed, in application order
	Died    bool     // the unit was alive before the tick and is dead after it
}

// Tick runs one resolution-phase step on u.
//
// Active effects apply their HPPerRound delta and lose one round; effects reaching 0
// are removed. Suspended effects neither count down nor apply. Units out of battle
// (dead or captured) are skipped entirely.
func (r *Registry) Tick(u *model.BattleUnit) TickResult {
	var res TickResult
	if !u.InBattle() {
		return res
	}

	n := 0
	for _, e := range u.Effects {
		if e.Active {
			switch {
			case e.HPPerRound > 0:
				res.HPDelta += u.Heal(e.HPPerRound)
			case e.HPPerRound < 0:
				res.HPDelta -= u.ApplyDamage(-e.HPPerRound)
			}
			e.RemainingDuration--
			if e.RemainingDuration <= 0 {
				res.Expired = append(res.Expired, e.BuffID)
				continue
			}
		}
		u.Effects[n] = e
		n++
	}
	clear(u.Effects[n:])
	u.Effects = u.Effects[:n]

	res.Died = u.IsDead()
	if len(res.Expired) > 0 || res.HPDelta != 0 {
		r.logger.Debug("effects ticked",
			"unit", u.ID,
			"hpDelta", res.HPDelta,
			"expired", res.Expired)
	}
	return res
}

// StatBonus returns the additive sum and multiplicative product of u's active
// modifiers for stat. With no modifiers it returns (0, 1).
func (r *Registry) StatBonus(u *model.BattleUnit, stat string) (add, mul float64) {
	mul = 1
	for _, e := range u.Effects {
		if !e.Active || e.Stat != stat {
			continue
		}
		switch e.Mod {
		case model.ModAdd:
			add += e.Magnitude
		case model.ModMul:
			mul *= e.Magnitude
		}
	}
	return add, mul
}

// Effective returns u's stat block with active modifiers applied:
// (base + add) * mul. Results keep the derivation minimums.
func (r *Registry) Effective(u *model.BattleUnit) model.StatBlock {
	b := u.Stats
	for _, stat := range model.ModifiableStats {
		add, mul := r.StatBonus(u, stat)
		if add == 0 && mul == 1 {
			continue
		}
		b.Set(stat, (b.Get(stat)+add)*mul)
	}

	b.PhysicalAttack = max(b.PhysicalAttack, 0)
	b.MagicalAttack = max(b.MagicalAttack, 0)
	b.PhysicalDefense = max(b.PhysicalDefense, 0)
	b.MagicalDefense = max(b.MagicalDefense, 0)
	b.Speed = max(b.Speed, 1)
	b.CritDamage = max(b.CritDamage, 1.0)
	b.CritRate = clamp01(b.CritRate)
	b.HitRate = clamp01(b.HitRate)
	b.DodgeRate = clamp01(b.DodgeRate)
	return b
}

// Reductions returns u's fixed and percent damage reductions from active effects,
// each clamped to [0, 1].
func (r *Registry) Reductions(u *model.BattleUnit) (fixed, percent float64) {
	reduction := func(stat string) float64 {
		add, mul := r.StatBonus(u, stat)
		return clamp01(add * mul)
	}
	return reduction(model.StatFixedReduction), reduction(model.StatPercentReduction)
}

func filter(effects []model.StatusEffect, active bool) []model.StatusEffect {
	var out []model.StatusEffect
	for _, e := range effects {
		if e.Active == active {
			out = append(out, e)
		}
	}
	return out
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	return min(v, 1)
}
