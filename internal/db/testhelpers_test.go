package db

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/udisondev/beastcall/internal/config"
	"github.com/udisondev/beastcall/internal/data"
	"github.com/udisondev/beastcall/internal/game/battle"
	"github.com/udisondev/beastcall/internal/model"
	"github.com/udisondev/beastcall/internal/testutil"
)

// sampleResult собирает результат боя с заданным временем окончания.
func sampleResult(outcome battle.Outcome, ended time.Time) battle.Result {
	survivor := *testutil.Player("p1").Template("sproutling").CurrentHP(42).Build()
	fallen := *testutil.Enemy("e1").Template("cinderpup").CurrentHP(0).Build()
	return battle.Result{
		BattleID:  uuid.New(),
		Outcome:   outcome,
		Reason:    "all enemies defeated",
		Rounds:    2,
		Survivors: []model.BattleUnit{survivor},
		Defeated:  []model.BattleUnit{fallen},
		History: []model.ActionResult{
			{Round: 1, Seq: 1, CasterID: "p1", SkillID: data.SkillBasicAttack, Targets: []model.TargetOutcome{{TargetID: "e1", Damage: 75}}},
			{Round: 2, Seq: 2, CasterID: "p1", SkillID: data.SkillBasicAttack, Targets: []model.TargetOutcome{{TargetID: "e1", Damage: 25, Defeated: true}}},
		},
		StartedAt: ended.Add(-time.Minute),
		EndedAt:   ended,
	}
}

// runRepositorySuite прогоняет общие сценарии для любой реализации BattleRepository.
func runRepositorySuite(t *testing.T, repo BattleRepository) {
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	var results []battle.Result
	for i, o := range []battle.Outcome{battle.OutcomeVictory, battle.OutcomeDefeat, battle.OutcomeDraw} {
		r := sampleResult(o, base.Add(time.Duration(i)*time.Minute))
		require.NoError(t, repo.Record(ctx, r))
		results = append(results, r)
	}

	t.Run("recent newest first", func(t *testing.T) {
		got, err := repo.Recent(ctx, 2)
		require.NoError(t, err)
		require.Len(t, got, 2)

		assert.Equal(t, results[2].BattleID, got[0].BattleID)
		assert.Equal(t, battle.OutcomeDraw, got[0].Outcome)
		assert.Equal(t, results[1].BattleID, got[1].BattleID)

		s := got[1]
		assert.Equal(t, int32(2), s.Rounds)
		assert.Equal(t, 2, s.Actions)
		assert.Equal(t, 1, s.Survivors)
		assert.Equal(t, 1, s.Defeated)
		assert.Zero(t, s.Captured)
		assert.WithinDuration(t, results[1].EndedAt, s.EndedAt, time.Millisecond)
		assert.WithinDuration(t, results[1].StartedAt, s.StartedAt, time.Millisecond)
	})

	t.Run("duplicate record keeps first", func(t *testing.T) {
		dup := results[0]
		dup.Reason = "changed"
		require.NoError(t, repo.Record(ctx, dup))

		got, err := repo.Recent(ctx, 10)
		require.NoError(t, err)
		assert.Len(t, got, 3)

		h, err := repo.History(ctx, dup.BattleID)
		require.NoError(t, err)
		assert.Equal(t, "all enemies defeated", h.Reason)
	})

	t.Run("history round trip", func(t *testing.T) {
		want := results[0]
		got, err := repo.History(ctx, want.BattleID)
		require.NoError(t, err)

		assert.Equal(t, want.BattleID, got.BattleID)
		assert.Equal(t, want.Outcome, got.Outcome)
		assert.Equal(t, want.History, got.History)
		assert.Equal(t, want.Survivors, got.Survivors)
		assert.Equal(t, want.Defeated, got.Defeated)
		assert.True(t, want.EndedAt.Equal(got.EndedAt))
	})

	t.Run("unknown battle", func(t *testing.T) {
		_, err := repo.History(ctx, uuid.New())
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("machine sink", func(t *testing.T) {
		cfg := config.DefaultBattle()
		cfg.Timeouts = config.Timeouts{}
		m, err := battle.NewMachine(cfg, data.DefaultCatalog(),
			battle.WithLogger(slog.New(slog.DiscardHandler)),
			battle.WithRoller(testutil.FixedRoller(0.5)),
			battle.WithAutoBattle(true),
			battle.WithResultSink(repo))
		require.NoError(t, err)

		require.NoError(t, m.Start(ctx, []*model.BattleUnit{
			testutil.Player("p1").Attack(300).Speed(30).Build(),
			testutil.Enemy("e1").HP(60).Attack(10).Build(),
		}))
		res, err := m.Run(ctx)
		require.NoError(t, err)

		stored, err := repo.History(ctx, res.BattleID)
		require.NoError(t, err)
		assert.Equal(t, res.Outcome, stored.Outcome)
		assert.Len(t, stored.History, len(res.History))

		recent, err := repo.Recent(ctx, 1)
		require.NoError(t, err)
		require.Len(t, recent, 1)
		assert.Equal(t, res.BattleID, recent[0].BattleID)
	})
}
