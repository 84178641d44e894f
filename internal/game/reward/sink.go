package reward

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/udisondev/beastcall/internal/game/battle"
)

// Summary is the reward bookkeeping for one battle.
type Summary struct {
	BattleID uuid.UUID  `json:"battleId"`
	Outcome  string     `json:"outcome"`
	Rewards  Rewards    `json:"rewards"`
	Progress []Progress `json:"progress,omitempty"`
}

// Sink computes and distributes rewards for every finished battle.
// It implements battle.ResultSink.
type Sink struct {
	computer    *Computer
	distributor *Distributor
	logger      *slog.Logger

	mu      sync.Mutex
	last    *Summary
	handler func(Summary)
}

// NewSink creates a Sink. handler, if set, receives every summary.
func NewSink(c *Computer, d *Distributor, logger *slog.Logger, handler func(Summary)) *Sink {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sink{computer: c, distributor: d, logger: logger, handler: handler}
}

// Record implements battle.ResultSink.
func (s *Sink) Record(_ context.Context, res battle.Result) error {
	sum := Summary{
		BattleID: res.BattleID,
		Outcome:  string(res.Outcome),
		Rewards:  s.computer.ComputeResult(res),
	}
	if sum.Rewards.Experience > 0 {
		sum.Progress = s.distributor.Distribute(sum.Rewards.Experience, res.Survivors)
	}

	for _, p := range sum.Progress {
		if p.LeveledUp() {
			s.logger.Info("unit leveled up",
				"battle", res.BattleID,
				"unit", p.UnitID,
				"oldLevel", p.OldLevel,
				"newLevel", p.NewLevel,
				"exp", p.Experience)
		}
	}
	s.logger.Info("rewards granted",
		"battle", res.BattleID,
		"outcome", res.Outcome,
		"exp", sum.Rewards.Experience,
		"gold", sum.Rewards.Gold,
		"items", len(sum.Rewards.Items))

	s.mu.Lock()
	s.last = &sum
	handler := s.handler
	s.mu.Unlock()

	if handler != nil {
		handler(sum)
	}
	return nil
}

// Last returns the most recent summary.
func (s *Sink) Last() (Summary, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return Summary{}, false
	}
	return *s.last, true
}
