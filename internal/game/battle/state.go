package battle

import (
	"github.com/google/uuid"

	"github.com/udisondev/beastcall/internal/model"
)

// State is the mutable battle state. It is owned by the Machine and never handed
// out; readers get a Snapshot.
type State struct {
	Phase    Phase
	Round    int32
	IsActive bool

	Units   map[string]*model.BattleUnit
	Order   []string                // registration order
	Actions map[string]model.Action // by caster, cleared each round
	History []model.ActionResult    // append-only
}

func newState() State {
	return State{
		Phase:   PhaseIdle,
		Units:   make(map[string]*model.BattleUnit),
		Actions: make(map[string]model.Action),
	}
}

// Unit returns the registered unit with id, or nil.
func (s *State) Unit(id string) *model.BattleUnit {
	return s.Units[id]
}

// All returns every registered unit in registration order.
func (s *State) All() []*model.BattleUnit {
	out := make([]*model.BattleUnit, 0, len(s.Order))
	for _, id := range s.Order {
		out = append(out, s.Units[id])
	}
	return out
}

// Living returns units still in battle, in registration order.
func (s *State) Living() []*model.BattleUnit {
	var out []*model.BattleUnit
	for _, id := range s.Order {
		if u := s.Units[id]; u.InBattle() {
			out = append(out, u)
		}
	}
	return out
}

// LivingOn returns units of side still in battle, in registration order.
func (s *State) LivingOn(side model.Side) []*model.BattleUnit {
	var out []*model.BattleUnit
	for _, id := range s.Order {
		if u := s.Units[id]; u.Side == side && u.InBattle() {
			out = append(out, u)
		}
	}
	return out
}

// SideOut reports whether side has no unit left in battle.
func (s *State) SideOut(side model.Side) bool {
	return len(s.LivingOn(side)) == 0
}

// Snapshot is an immutable deep copy of the battle state.
type Snapshot struct {
	BattleID uuid.UUID               `json:"battleId"`
	Phase    Phase                   `json:"phase"`
	Round    int32                   `json:"round"`
	IsActive bool                    `json:"isActive"`
	Units    []model.BattleUnit      `json:"units"` // registration order
	Actions  map[string]model.Action `json:"actions"`
	History  []model.ActionResult    `json:"history"`
	Pending  int                     `json:"pending"` // queued actions left in execution
}

// Unit returns the snapshot of unit id.
func (s Snapshot) Unit(id string) (model.BattleUnit, bool) {
	for _, u := range s.Units {
		if u.ID == id {
			return u, true
		}
	}
	return model.BattleUnit{}, false
}

// Living returns snapshots of units of side still in battle.
func (s Snapshot) Living(side model.Side) []model.BattleUnit {
	var out []model.BattleUnit
	for _, u := range s.Units {
		if u.Side == side && u.InBattle() {
			out = append(out, u)
		}
	}
	return out
}

func (s *State) snapshot(id uuid.UUID, pending int) Snapshot {
	snap := Snapshot{
		BattleID: id,
		Phase:    s.Phase,
		Round:    s.Round,
		IsActive: s.IsActive,
		Units:    make([]model.BattleUnit, 0, len(s.Order)),
		Actions:  make(map[string]model.Action, len(s.Actions)),
		History:  cloneHistory(s.History),
		Pending:  pending,
	}
	for _, u := range s.All() {
		snap.Units = append(snap.Units, u.Clone())
	}
	for id, a := range s.Actions {
		snap.Actions[id] = a.Clone()
	}
	return snap
}

func cloneHistory(h []model.ActionResult) []model.ActionResult {
	out := make([]model.ActionResult, len(h))
	for i, r := range h {
		out[i] = r.Clone()
	}
	return out
}
