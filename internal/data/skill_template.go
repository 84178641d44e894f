package data

import "github.com/udisondev/beastcall/internal/model"

// SkillKind defines how a skill is resolved.
type SkillKind string

const (
	KindPhysical SkillKind = "physical"
	KindMagical  SkillKind = "magical"
	KindSupport  SkillKind = "support" // heals and buffs, never misses
	KindCapture  SkillKind = "capture"
	KindWait     SkillKind = "wait" // do nothing
)

// TargetMode defines which units a skill may target.
type TargetMode string

const (
	TargetSingle       TargetMode = "single"        // one opponent
	TargetAllOpponents TargetMode = "all_opponents" // every opponent in battle
	TargetSelf         TargetMode = "self"
	TargetAlly         TargetMode = "ally" // one unit of the caster's side
	TargetAllAllies    TargetMode = "all_allies"
	TargetNone         TargetMode = "none"
)

// Built-in skills every unit may use.
const (
	SkillBasicAttack = "basic_attack"
	SkillWait        = "wait"
)

// EffectTemplate describes a status effect a skill applies.
type EffectTemplate struct {
	BuffID     string  `yaml:"buff_id"`
	Stat       string  `yaml:"stat"`
	Mod        string  `yaml:"mod"` // "add" (default) or "mul"
	Magnitude  float64 `yaml:"magnitude"`
	Duration   int32   `yaml:"duration"` // rounds
	HPPerRound int32   `yaml:"hp_per_round"`
	Stackable  bool    `yaml:"stackable"`

	// OnCaster applies the effect to the caster instead of the target.
	OnCaster bool `yaml:"on_caster"`
	// StartInactive applies the effect suspended.
	StartInactive bool `yaml:"start_inactive"`
}

// NewEffect instantiates the template as a status effect from skillID.
func (e EffectTemplate) NewEffect(skillID string) model.StatusEffect {
	se := model.NewStatusEffect(e.BuffID, skillID, e.Magnitude, e.Duration, !e.StartInactive)
	se.Stackable = e.Stackable
	se.Stat = e.Stat
	se.HPPerRound = e.HPPerRound
	if e.Mod == "mul" {
		se.Mod = model.ModMul
	}
	return se
}

// SkillTemplate is the immutable definition of a skill.
type SkillTemplate struct {
	ID     string     `yaml:"id"`
	Name   string     `yaml:"name"`
	Kind   SkillKind  `yaml:"kind"`
	Target TargetMode `yaml:"target"`

	// Power is the skill bonus multiplier for damage, or the heal ratio of
	// magical attack for support skills.
	Power  float64 `yaml:"power"`
	MPCost int32   `yaml:"mp_cost"`

	// CaptureRate overrides the target template rate for capture skills.
	CaptureRate float64 `yaml:"capture_rate"`

	Effects []EffectTemplate `yaml:"effects"`
}

// IsDamaging reports whether resolution rolls hit and damage.
func (s *SkillTemplate) IsDamaging() bool {
	switch s.Kind {
	case KindPhysical, KindMagical:
		return true
	case KindCapture:
		return s.Power > 0
	default:
		return false
	}
}

// TargetsOpponents reports whether targets must be on the opposing side.
func (s *SkillTemplate) TargetsOpponents() bool {
	return s.Target == TargetSingle || s.Target == TargetAllOpponents
}

// BuiltinSkills returns the skills every catalog contains.
func BuiltinSkills() []*SkillTemplate {
	return []*SkillTemplate{
		{
			ID:     SkillBasicAttack,
			Name:   "Basic Attack",
			Kind:   KindPhysical,
			Target: TargetSingle,
			Power:  1.0,
		},
		{
			ID:     SkillWait,
			Name:   "Wait",
			Kind:   KindWait,
			Target: TargetNone,
		},
	}
}
