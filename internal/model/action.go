package model

import "slices"

// Action is one unit's intent for the current round.
type Action struct {
	CasterID  string
	TargetIDs []string
	SkillID   string

	// Auto marks actions chosen by the machine (AI selection or timeout fill-in).
	Auto bool
}

// Clone returns a deep copy of the action.
func (a Action) Clone() Action {
	a.TargetIDs = slices.Clone(a.TargetIDs)
	return a
}

// TargetOutcome is the effect of one resolved action on one target.
type TargetOutcome struct {
	TargetID     string   `json:"targetId"`
	Damage       int32    `json:"damage"`
	Heal         int32    `json:"heal,omitempty"`
	Missed       bool     `json:"missed,omitempty"`
	Crit         bool     `json:"crit,omitempty"`
	CaptureTried bool     `json:"captureTried,omitempty"`
	Captured     bool     `json:"captured,omitempty"`
	Defeated     bool     `json:"defeated,omitempty"`
	AppliedBuffs []string `json:"appliedBuffs,omitempty"`
}

// ActionResult is the history record of a resolved (or skipped) action.
type ActionResult struct {
	Round    int32           `json:"round"`
	Seq      int             `json:"seq"`
	CasterID string          `json:"casterId"`
	SkillID  string          `json:"skillId"`
	Auto     bool            `json:"auto,omitempty"`
	MPSpent  int32           `json:"mpSpent,omitempty"`
	Targets  []TargetOutcome `json:"targets,omitempty"`
	Skipped  bool            `json:"skipped,omitempty"`
	Reason   string          `json:"reason,omitempty"`

	// CasterBuffs lists effects the skill applied to its caster.
	CasterBuffs []string `json:"casterBuffs,omitempty"`
}

// TotalDamage sums damage dealt to all targets.
func (r ActionResult) TotalDamage() int32 {
	var total int32
	for _, t := range r.Targets {
		total += t.Damage
	}
	return total
}

// Clone returns a deep copy of the result.
func (r ActionResult) Clone() ActionResult {
	r.Targets = slices.Clone(r.Targets)
	r.CasterBuffs = slices.Clone(r.CasterBuffs)
	for i := range r.Targets {
		r.Targets[i].AppliedBuffs = slices.Clone(r.Targets[i].AppliedBuffs)
	}
	return r
}
