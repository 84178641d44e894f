package battle

import (
	"github.com/udisondev/beastcall/internal/data"
	"github.com/udisondev/beastcall/internal/model"
)

// ActionSelector picks actions for units that do not submit their own: enemies,
// and player units in auto-battle mode.
//
// allies and opponents hold units still in battle, in turn order. Returning false
// leaves the unit without an action until it submits one or preparation times out.
type ActionSelector interface {
	SelectAction(caster model.BattleUnit, allies, opponents []model.BattleUnit) (model.Action, bool)
}

// SelectorFunc adapts a function to ActionSelector.
type SelectorFunc func(caster model.BattleUnit, allies, opponents []model.BattleUnit) (model.Action, bool)

func (f SelectorFunc) SelectAction(caster model.BattleUnit, allies, opponents []model.BattleUnit) (model.Action, bool) {
	return f(caster, allies, opponents)
}

// BasicAttackSelector attacks the first opponent in turn order.
type BasicAttackSelector struct{}

func (BasicAttackSelector) SelectAction(caster model.BattleUnit, _, opponents []model.BattleUnit) (model.Action, bool) {
	if len(opponents) == 0 {
		return model.Action{}, false
	}
	return BasicAttack(caster.ID, opponents[0].ID), true
}

// BasicAttack builds a basic attack from caster on target.
func BasicAttack(casterID, targetID string) model.Action {
	return model.Action{
		CasterID:  casterID,
		TargetIDs: []string{targetID},
		SkillID:   data.SkillBasicAttack,
	}
}

// Wait builds the do-nothing action.
func Wait(casterID string) model.Action {
	return model.Action{CasterID: casterID, SkillID: data.SkillWait}
}
