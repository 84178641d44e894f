package testutil

import (
	"github.com/udisondev/beastcall/internal/data"
	"github.com/udisondev/beastcall/internal/model"
)

// UnitBuilder собирает BattleUnit для тестов с детерминированными статами:
// hitRate 1, dodge 0, crit 0, critDamage 1.5.
type UnitBuilder struct {
	u model.BattleUnit
}

// NewUnit начинает сборку юнита. По умолчанию 100 HP, 10 speed, без защиты.
func NewUnit(id string, side model.Side) *UnitBuilder {
	return &UnitBuilder{u: model.BattleUnit{
		ID:           id,
		Name:         id,
		Side:         side,
		Level:        1,
		IsPlayerUnit: side == model.SidePlayer,
		Skills:       []string{data.SkillBasicAttack},
		Stats: model.StatBlock{
			MaxHP:      100,
			CurrentHP:  100,
			Speed:      10,
			CritDamage: 1.5,
			HitRate:    1,
		},
	}}
}

// Player is shorthand for NewUnit(id, model.SidePlayer).
func Player(id string) *UnitBuilder { return NewUnit(id, model.SidePlayer) }

// Enemy is shorthand for NewUnit(id, model.SideEnemy).
func Enemy(id string) *UnitBuilder { return NewUnit(id, model.SideEnemy) }

func (b *UnitBuilder) HP(hp int32) *UnitBuilder {
	b.u.Stats.MaxHP, b.u.Stats.CurrentHP = hp, hp
	return b
}

// CurrentHP sets HP below the maximum.
func (b *UnitBuilder) CurrentHP(hp int32) *UnitBuilder {
	b.u.Stats.CurrentHP = hp
	return b
}

func (b *UnitBuilder) MP(mp int32) *UnitBuilder {
	b.u.Stats.MaxMP, b.u.Stats.CurrentMP = mp, mp
	return b
}

// Attack sets both physical and magical attack.
func (b *UnitBuilder) Attack(atk int32) *UnitBuilder {
	b.u.Stats.PhysicalAttack, b.u.Stats.MagicalAttack = atk, atk
	return b
}

// Defense sets both physical and magical defense.
func (b *UnitBuilder) Defense(def int32) *UnitBuilder {
	b.u.Stats.PhysicalDefense, b.u.Stats.MagicalDefense = def, def
	return b
}

func (b *UnitBuilder) Speed(spd int32) *UnitBuilder {
	b.u.Stats.Speed = spd
	return b
}

func (b *UnitBuilder) Crit(rate, damage float64) *UnitBuilder {
	b.u.Stats.CritRate, b.u.Stats.CritDamage = rate, damage
	return b
}

func (b *UnitBuilder) HitDodge(hit, dodge float64) *UnitBuilder {
	b.u.Stats.HitRate, b.u.Stats.DodgeRate = hit, dodge
	return b
}

func (b *UnitBuilder) Level(level int32) *UnitBuilder {
	b.u.Level = level
	b.u.Experience = data.GetExpForLevel(level)
	return b
}

func (b *UnitBuilder) Template(id string) *UnitBuilder {
	b.u.TemplateID = id
	return b
}

// Skills adds skills on top of basic_attack.
func (b *UnitBuilder) Skills(ids ...string) *UnitBuilder {
	b.u.Skills = append(b.u.Skills, ids...)
	return b
}

func (b *UnitBuilder) CaptureRate(rate float64) *UnitBuilder {
	b.u.BaseCaptureRate = rate
	return b
}

// Effect attaches a status effect as-is.
func (b *UnitBuilder) Effect(e model.StatusEffect) *UnitBuilder {
	b.u.Effects = append(b.u.Effects, e)
	return b
}

// Build returns a fresh copy; the builder may be reused.
func (b *UnitBuilder) Build() *model.BattleUnit {
	u := b.u.Clone()
	return &u
}
