package model

import "slices"

// Side identifies which party a unit fights for.
type Side uint8

const (
	SidePlayer Side = iota
	SideEnemy
)

// String returns the lowercase side name used in logs and persisted results.
func (s Side) String() string {
	switch s {
	case SidePlayer:
		return "player"
	case SideEnemy:
		return "enemy"
	default:
		return "unknown"
	}
}

// Opponent returns the opposing side.
func (s Side) Opponent() Side {
	if s == SidePlayer {
		return SideEnemy
	}
	return SidePlayer
}

// BattleUnit is a combatant registered in a battle.
//
// Invariant: 0 <= Stats.CurrentHP <= Stats.MaxHP. A unit with CurrentHP == 0 is dead;
// dead and captured units are out of battle and never act or get targeted.
type BattleUnit struct {
	ID           string
	Name         string
	Side         Side
	Level        int32
	TemplateID   string
	Stats        StatBlock
	Effects      []StatusEffect // application order
	IsPlayerUnit bool
	Skills       []string

	// BaseCaptureRate is the template capture rate, 0 means "use the configured default".
	BaseCaptureRate float64
	Captured        bool
	Experience      int64
}

// IsDead reports whether the unit has no HP left.
func (u *BattleUnit) IsDead() bool {
	return u.Stats.CurrentHP <= 0
}

// InBattle reports whether the unit can still act and be targeted.
func (u *BattleUnit) InBattle() bool {
	return !u.IsDead() && !u.Captured
}

// HasSkill reports whether the unit knows skillID.
func (u *BattleUnit) HasSkill(skillID string) bool {
	return slices.Contains(u.Skills, skillID)
}

// SetCurrentHP sets HP clamped to [0, MaxHP].
func (u *BattleUnit) SetCurrentHP(hp int32) {
	u.Stats.CurrentHP = clampInt32(hp, 0, u.Stats.MaxHP)
}

// SetCurrentMP sets MP clamped to [0, MaxMP].
func (u *BattleUnit) SetCurrentMP(mp int32) {
	u.Stats.CurrentMP = clampInt32(mp, 0, u.Stats.MaxMP)
}

// ApplyDamage reduces HP by dmg and returns the HP actually lost.
func (u *BattleUnit) ApplyDamage(dmg int32) int32 {
	if dmg <= 0 {
		return 0
	}
	before := u.Stats.CurrentHP
	u.SetCurrentHP(before - dmg)
	return before - u.Stats.CurrentHP
}

// Heal restores HP by amount and returns the HP actually gained.
// Dead units cannot be healed.
func (u *BattleUnit) Heal(amount int32) int32 {
	if amount <= 0 || u.IsDead() {
		return 0
	}
	before := u.Stats.CurrentHP
	u.SetCurrentHP(before + amount)
	return u.Stats.CurrentHP - before
}

// Clone returns a deep copy safe to hand out to readers.
func (u *BattleUnit) Clone() BattleUnit {
	c := *u
	c.Effects = slices.Clone(u.Effects)
	c.Skills = slices.Clone(u.Skills)
	return c
}

func clampInt32(v, lo, hi int32) int32 {
	if hi < lo {
		hi = lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
