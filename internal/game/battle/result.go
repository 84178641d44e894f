package battle

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/udisondev/beastcall/internal/model"
)

//go:generate go tool mockgen -destination=mocks/result_sink_mock.go -package=mocks . ResultSink

// Outcome is the terminal result of a battle from the player's side.
type Outcome string

const (
	OutcomeVictory Outcome = "victory"
	OutcomeDefeat  Outcome = "defeat"
	OutcomeDraw    Outcome = "draw"
	// OutcomeAborted ends battles terminated by a fault, reset or force end.
	// It is never a victory.
	OutcomeAborted Outcome = "aborted"
)

// Result is delivered to result sinks once a battle reaches end.
type Result struct {
	BattleID  uuid.UUID            `json:"battleId"`
	Outcome   Outcome              `json:"outcome"`
	Reason    string               `json:"reason"`
	Rounds    int32                `json:"rounds"`
	Survivors []model.BattleUnit   `json:"survivors"` // units of either side still in battle
	Defeated  []model.BattleUnit   `json:"defeated"`  // enemies at 0 HP
	Captured  []model.BattleUnit   `json:"captured"`  // enemies captured by the player
	History   []model.ActionResult `json:"history"`
	StartedAt time.Time            `json:"startedAt"`
	EndedAt   time.Time            `json:"endedAt"`
}

// Victory reports whether the player side won.
func (r Result) Victory() bool {
	return r.Outcome == OutcomeVictory
}

// PlayerSurvivors returns the surviving player units.
func (r Result) PlayerSurvivors() []model.BattleUnit {
	var out []model.BattleUnit
	for _, u := range r.Survivors {
		if u.Side == model.SidePlayer {
			out = append(out, u)
		}
	}
	return out
}

// ResultSink consumes finished battles (rewards, persistence).
type ResultSink interface {
	Record(ctx context.Context, r Result) error
}

// ResultSinkFunc adapts a function to ResultSink.
type ResultSinkFunc func(ctx context.Context, r Result) error

func (f ResultSinkFunc) Record(ctx context.Context, r Result) error { return f(ctx, r) }

func (m *Machine) buildResult() Result {
	r := Result{
		BattleID:  m.battleID,
		Outcome:   m.outcome,
		Reason:    m.reason,
		Rounds:    m.state.Round,
		History:   cloneHistory(m.state.History),
		StartedAt: m.startedAt,
		EndedAt:   time.Now(),
	}
	for _, u := range m.state.All() {
		switch {
		case u.InBattle():
			r.Survivors = append(r.Survivors, u.Clone())
		case u.Side == model.SideEnemy && u.Captured:
			r.Captured = append(r.Captured, u.Clone())
		case u.Side == model.SideEnemy && u.IsDead():
			r.Defeated = append(r.Defeated, u.Clone())
		}
	}
	return r
}
