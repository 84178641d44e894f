package battle

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/udisondev/beastcall/internal/config"
	"github.com/udisondev/beastcall/internal/data"
	"github.com/udisondev/beastcall/internal/model"
	"github.com/udisondev/beastcall/internal/testutil"
)

// testConfig makes damage easy to compute by hand: 100 * atk / (atk + def), no
// variation, no timeouts.
func testConfig() config.Battle {
	cfg := config.DefaultBattle()
	cfg.Damage.PhysicalBalance = 100
	cfg.Damage.Variation = 0
	cfg.Timeouts = config.Timeouts{}
	cfg.Recovery.RetryDelay = time.Millisecond
	return cfg
}

func newTestMachine(t *testing.T, cfg config.Battle, opts ...Option) *Machine {
	t.Helper()
	opts = append([]Option{
		WithLogger(discard),
		WithRoller(testutil.FixedRoller(0.5)),
	}, opts...)
	m, err := NewMachine(cfg, data.DefaultCatalog(), opts...)
	require.NoError(t, err)
	return m
}

// duelists: p1 deals 75 per hit, e1 deals 71.
func duelists() []*model.BattleUnit {
	return []*model.BattleUnit{
		testutil.Player("p1").HP(100).Attack(30).Defense(10).Speed(20).Build(),
		testutil.Enemy("e1").HP(80).Attack(25).Defense(10).Speed(15).Build(),
	}
}

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) OnEvent(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) all() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.events)
}

func (r *recorder) transitions() []string {
	var out []string
	for _, e := range r.all() {
		if e.Type == EventTransition {
			out = append(out, fmt.Sprintf("%s->%s", e.Before, e.After))
		}
	}
	return out
}

func (r *recorder) count(typ EventType) int {
	n := 0
	for _, e := range r.all() {
		if e.Type == typ {
			n++
		}
	}
	return n
}

func TestNewMachine_InvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.MaxRounds = 0
	_, err := NewMachine(cfg, data.DefaultCatalog())
	require.Error(t, err)

	_, err = NewMachine(testConfig(), nil)
	require.Error(t, err)
}

func TestMachine_Duel(t *testing.T) {
	ctx := context.Background()
	rec := &recorder{}
	m := newTestMachine(t, testConfig(), WithObserver(rec))

	input := duelists()
	require.NoError(t, m.Start(ctx, input))
	assert.Equal(t, PhasePreparation, m.Phase())
	// The enemy acts through the selector, the player must submit.
	assert.Equal(t, []string{"p1"}, m.Missing())

	for round := 1; m.Phase() != PhaseIdle; round++ {
		require.LessOrEqual(t, round, 5, "battle did not end")

		require.NoError(t, m.Submit(BasicAttack("p1", "e1")))
		require.NoError(t, m.Advance(ctx))
		require.Equal(t, PhaseExecution, m.Phase())
		assert.Equal(t, 2, m.Snapshot().Pending)

		res, more, err := m.ResolveNext(ctx)
		require.NoError(t, err)
		assert.Equal(t, "p1", res.CasterID, "faster unit acts first")
		assert.True(t, more)

		require.NoError(t, m.Advance(ctx))
		if m.Phase() == PhaseResolution {
			require.NoError(t, m.Advance(ctx))
		}
	}

	res, ok := m.Result()
	require.True(t, ok)
	assert.Equal(t, OutcomeVictory, res.Outcome)
	assert.True(t, res.Victory())
	assert.Equal(t, int32(2), res.Rounds)

	require.Len(t, res.History, 3)
	assert.Equal(t, int32(75), res.History[0].TotalDamage())
	assert.Equal(t, "e1", res.History[1].CasterID)
	assert.Equal(t, int32(71), res.History[1].TotalDamage())
	assert.Equal(t, int32(5), res.History[2].TotalDamage())
	assert.True(t, res.History[2].Targets[0].Defeated)
	for i, h := range res.History {
		assert.Equal(t, i+1, h.Seq)
	}

	require.Len(t, res.PlayerSurvivors(), 1)
	assert.Equal(t, int32(29), res.PlayerSurvivors()[0].Stats.CurrentHP)
	require.Len(t, res.Defeated, 1)
	assert.Equal(t, "e1", res.Defeated[0].ID)

	// The dead enemy's round 2 action is skipped, not resolved.
	assert.Equal(t, 3, rec.count(EventActionResolved))
	assert.Equal(t, 1, rec.count(EventActionSkipped))
	assert.Equal(t, 1, rec.count(EventUnitDefeated))
	assert.Equal(t, 1, rec.count(EventBattleEnded))

	// Caller's units are untouched.
	assert.Equal(t, int32(100), input[0].Stats.CurrentHP)
	assert.Equal(t, int32(80), input[1].Stats.CurrentHP)
}

func TestMachine_EventsAreOrdered(t *testing.T) {
	var (
		mu  sync.Mutex
		log []string
	)
	named := func(name string) Observer {
		return ObserverFunc(func(e Event) {
			mu.Lock()
			defer mu.Unlock()
			log = append(log, fmt.Sprintf("%s:%d", name, e.Seq))
		})
	}
	rec := &recorder{}
	m := newTestMachine(t, testConfig(), WithObserver(named("a")), WithObserver(named("b")), WithObserver(rec))

	require.NoError(t, m.Start(context.Background(), duelists()))

	assert.Equal(t, []string{
		"idle->initialization",
		"initialization->round_start",
		"round_start->preparation",
	}, rec.transitions())

	mu.Lock()
	assert.Equal(t, []string{"a:1", "b:1", "a:2", "b:2", "a:3", "b:3"}, log)
	mu.Unlock()

	events := rec.all()
	for i, e := range events {
		assert.Equal(t, uint64(i+1), e.Seq)
		assert.Equal(t, m.Snapshot().BattleID, e.BattleID)
	}
}

func TestMachine_ObserverIssuesCommands(t *testing.T) {
	ctx := testutil.ContextWithTimeout(t, 5*time.Second)
	rec := &recorder{}
	m := newTestMachine(t, testConfig(), WithObserver(rec))

	var errs []error
	m.Subscribe(ObserverFunc(func(e Event) {
		if e.Type != EventTransition || e.After != PhasePreparation || e.Round != 1 {
			return
		}
		_ = m.Snapshot()
		errs = append(errs, m.Submit(BasicAttack("p1", "e1")), m.Advance(ctx))
	}))

	done := make(chan error, 1)
	go func() { done <- m.Start(ctx, duelists()) }()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-ctx.Done():
		t.Fatal("command from an observer blocked the machine")
	}

	assert.Equal(t, []error{nil, nil}, errs)
	assert.Equal(t, PhaseExecution, m.Phase())
	assert.Equal(t, []string{
		"idle->initialization",
		"initialization->round_start",
		"round_start->preparation",
		"preparation->execution",
	}, rec.transitions())
	for i, e := range rec.all() {
		assert.Equal(t, uint64(i+1), e.Seq)
	}
}

func TestMachine_ObserverPanicIsContained(t *testing.T) {
	rec := &recorder{}
	boom := ObserverFunc(func(Event) { panic("observer bug") })
	m := newTestMachine(t, testConfig(), WithObserver(boom), WithObserver(rec))

	require.NoError(t, m.Start(context.Background(), duelists()))
	assert.Len(t, rec.transitions(), 3)
}

func TestMachine_StartValidation(t *testing.T) {
	tests := []struct {
		name  string
		units []*model.BattleUnit
	}{
		{"empty", nil},
		{"no enemies", []*model.BattleUnit{testutil.Player("p1").Build()}},
		{"dead enemy only", []*model.BattleUnit{
			testutil.Player("p1").Build(),
			testutil.Enemy("e1").CurrentHP(0).Build(),
		}},
		{"duplicate id", []*model.BattleUnit{
			testutil.Player("x").Build(),
			testutil.Enemy("x").Build(),
		}},
		{"nil unit", []*model.BattleUnit{testutil.Player("p1").Build(), nil}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newTestMachine(t, testConfig())
			err := m.Start(context.Background(), tt.units)

			var perr *PreconditionFailedError
			require.ErrorAs(t, err, &perr)
			assert.Equal(t, PhaseInitialization, perr.Phase)
			assert.Equal(t, PhaseIdle, m.Phase())
		})
	}
}

func TestMachine_StartTwice(t *testing.T) {
	ctx := context.Background()
	m := newTestMachine(t, testConfig())
	require.NoError(t, m.Start(ctx, duelists()))
	assert.ErrorIs(t, m.Start(ctx, duelists()), ErrWrongPhase)
}

func TestMachine_Submit(t *testing.T) {
	ctx := context.Background()

	t.Run("not started", func(t *testing.T) {
		m := newTestMachine(t, testConfig())
		assert.ErrorIs(t, m.Submit(BasicAttack("p1", "e1")), ErrNotActive)
	})

	t.Run("rejected actions", func(t *testing.T) {
		m := newTestMachine(t, testConfig())
		require.NoError(t, m.Start(ctx, []*model.BattleUnit{
			testutil.Player("p1").Skills("ember").Build(),
			testutil.Player("p2").Build(),
			testutil.Enemy("e1").Build(),
		}))

		var invalid *InvalidTargetError
		assert.ErrorAs(t, m.Submit(BasicAttack("p1", "p2")), &invalid)
		assert.ErrorAs(t, m.Submit(BasicAttack("ghost", "e1")), &invalid)
		assert.ErrorAs(t, m.Submit(BasicAttack("p1", "ghost")), &invalid)
		assert.ErrorIs(t, m.Submit(model.Action{CasterID: "p1", SkillID: "gust"}), ErrUnknownSkill)
		assert.ErrorIs(t, m.Submit(model.Action{CasterID: "p1", SkillID: "ember", TargetIDs: []string{"e1"}}), ErrInsufficientMP)

		assert.ElementsMatch(t, []string{"p1", "p2"}, m.Missing())
	})

	t.Run("resubmit replaces", func(t *testing.T) {
		m := newTestMachine(t, testConfig())
		require.NoError(t, m.Start(ctx, duelists()))

		require.NoError(t, m.Submit(Wait("p1")))
		a := BasicAttack("p1", "e1")
		a.Auto = true
		require.NoError(t, m.Submit(a))

		got := m.Snapshot().Actions["p1"]
		assert.Equal(t, data.SkillBasicAttack, got.SkillID)
		assert.False(t, got.Auto, "submitted actions are never auto")
	})

	t.Run("wrong phase", func(t *testing.T) {
		m := newTestMachine(t, testConfig())
		require.NoError(t, m.Start(ctx, duelists()))
		require.NoError(t, m.Expire(ctx))
		require.Equal(t, PhaseExecution, m.Phase())

		assert.ErrorIs(t, m.Submit(BasicAttack("p1", "e1")), ErrWrongPhase)
	})
}

func TestMachine_AdvanceNeedsAllActions(t *testing.T) {
	ctx := context.Background()
	m := newTestMachine(t, testConfig(), WithSelector(nil))
	require.NoError(t, m.Start(ctx, duelists()))

	err := m.Advance(ctx)
	var perr *PreconditionFailedError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, PhaseExecution, perr.Phase)
	assert.Equal(t, PhasePreparation, m.Phase())

	require.NoError(t, m.Submit(BasicAttack("p1", "e1")))
	require.Error(t, m.Advance(ctx), "enemy still has no action")
	require.NoError(t, m.Submit(BasicAttack("e1", "p1")))
	require.NoError(t, m.Advance(ctx))
	assert.Equal(t, PhaseExecution, m.Phase())
}

func TestMachine_PreparationTimeoutFillsActions(t *testing.T) {
	ctx := context.Background()
	m := newTestMachine(t, testConfig(), WithSelector(nil))
	require.NoError(t, m.Start(ctx, []*model.BattleUnit{
		testutil.Player("p1").Speed(40).Build(),
		testutil.Player("p2").Speed(10).Build(),
		testutil.Enemy("e1").Speed(20).Build(),
		testutil.Enemy("e2").Speed(30).Build(),
		testutil.Enemy("e3").CurrentHP(0).Build(),
	}))
	require.NoError(t, m.Submit(Wait("p2")))

	require.NoError(t, m.Expire(ctx))
	snap := m.Snapshot()
	require.Equal(t, PhaseExecution, snap.Phase)

	// One action per living unit.
	require.Len(t, snap.Actions, 4)
	assert.Equal(t, 4, snap.Pending)
	assert.False(t, snap.Actions["p2"].Auto)
	for _, id := range []string{"p1", "e1", "e2"} {
		a := snap.Actions[id]
		assert.True(t, a.Auto, id)
		assert.Equal(t, data.SkillBasicAttack, a.SkillID, id)
	}
	// Fastest living opponent.
	assert.Equal(t, []string{"e2"}, snap.Actions["p1"].TargetIDs)
	assert.Equal(t, []string{"p1"}, snap.Actions["e1"].TargetIDs)
}

func TestMachine_PreparationTimeoutWait(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig()
	cfg.TimeoutAction = config.TimeoutActionWait
	m := newTestMachine(t, cfg, WithSelector(nil))
	require.NoError(t, m.Start(ctx, duelists()))

	require.NoError(t, m.Expire(ctx))
	for id, a := range m.Snapshot().Actions {
		assert.Equal(t, data.SkillWait, a.SkillID, id)
	}
}

func TestMachine_ExecutionTimeoutSkipsRest(t *testing.T) {
	ctx := context.Background()
	rec := &recorder{}
	m := newTestMachine(t, testConfig(), WithObserver(rec))
	require.NoError(t, m.Start(ctx, duelists()))
	require.NoError(t, m.Submit(BasicAttack("p1", "e1")))
	require.NoError(t, m.Advance(ctx))

	_, _, err := m.ResolveNext(ctx)
	require.NoError(t, err)
	require.NoError(t, m.Expire(ctx))

	snap := m.Snapshot()
	assert.Equal(t, PhaseResolution, snap.Phase)
	assert.Len(t, snap.History, 1)
	p1, ok := snap.Unit("p1")
	require.True(t, ok)
	assert.Equal(t, int32(100), p1.Stats.CurrentHP)
	assert.Equal(t, 1, rec.count(EventActionSkipped))

	// Resolution timeout starts the next round.
	require.NoError(t, m.Expire(ctx))
	assert.Equal(t, PhasePreparation, m.Phase())
	assert.Equal(t, int32(2), m.Snapshot().Round)
}

func TestMachine_StatusEffectDefeat(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig()
	cfg.TimeoutAction = config.TimeoutActionWait
	rec := &recorder{}
	m := newTestMachine(t, cfg, WithSelector(nil), WithObserver(rec))

	burn := model.NewStatusEffect("burn", "ember", 0, 2, true)
	burn.HPPerRound = -3
	require.NoError(t, m.Start(ctx, []*model.BattleUnit{
		testutil.Player("p1").Build(),
		testutil.Enemy("e1").CurrentHP(2).Effect(burn).Build(),
	}))

	require.NoError(t, m.Expire(ctx))
	require.NoError(t, m.Advance(ctx))

	res, ok := m.Result()
	require.True(t, ok)
	assert.Equal(t, OutcomeVictory, res.Outcome)
	assert.Len(t, res.History, 2)

	var defeats []UnitEvent
	for _, e := range rec.all() {
		if e.Type == EventUnitDefeated {
			defeats = append(defeats, e.Payload.(UnitEvent))
		}
	}
	require.Len(t, defeats, 1)
	assert.Equal(t, "e1", defeats[0].UnitID)
	assert.Equal(t, "status effect", defeats[0].By)
}

func TestMachine_CapturedUnitSkipsStatusEffects(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig()
	cfg.TimeoutAction = config.TimeoutActionWait
	rec := &recorder{}
	m := newTestMachine(t, cfg,
		WithSelector(nil),
		WithRoller(testutil.FixedRoller(0.1)),
		WithObserver(rec))

	burn := model.NewStatusEffect("burn", "ember", 0, 3, true)
	burn.HPPerRound = -5
	require.NoError(t, m.Start(ctx, []*model.BattleUnit{
		testutil.Player("p1").Skills("lure_net").Speed(20).Build(),
		testutil.Enemy("e1").CurrentHP(3).Effect(burn).Build(),
	}))
	require.NoError(t, m.Submit(model.Action{CasterID: "p1", SkillID: "lure_net", TargetIDs: []string{"e1"}}))

	require.NoError(t, m.Expire(ctx))
	require.NoError(t, m.Advance(ctx))

	res, ok := m.Result()
	require.True(t, ok)
	assert.Equal(t, OutcomeVictory, res.Outcome)
	require.Len(t, res.Captured, 1)
	e1 := res.Captured[0]
	assert.Equal(t, "e1", e1.ID)
	assert.Equal(t, int32(3), e1.Stats.CurrentHP)
	require.Len(t, e1.Effects, 1)
	assert.Equal(t, int32(3), e1.Effects[0].RemainingDuration)

	assert.Equal(t, 1, rec.count(EventUnitCaptured))
	assert.Zero(t, rec.count(EventUnitDefeated))
}

func TestMachine_HookRetry(t *testing.T) {
	ctx := context.Background()
	failures := 2
	hook := func(_ context.Context, _, to Phase) error {
		if to == PhaseExecution && failures > 0 {
			failures--
			return errors.New("flaky")
		}
		return nil
	}
	rec := &recorder{}
	m := newTestMachine(t, testConfig(), WithPhaseHook(hook), WithObserver(rec))
	require.NoError(t, m.Start(ctx, duelists()))
	require.NoError(t, m.Submit(BasicAttack("p1", "e1")))

	require.NoError(t, m.Advance(ctx))
	assert.Equal(t, PhaseExecution, m.Phase())
	assert.Zero(t, failures)
	// Failed attempts emit nothing.
	n := 0
	for _, tr := range rec.transitions() {
		if tr == "preparation->execution" {
			n++
		}
	}
	assert.Equal(t, 1, n)
}

func TestMachine_HookRetriesExhausted(t *testing.T) {
	ctx := context.Background()
	errHook := errors.New("storage offline")
	calls := 0
	hook := func(_ context.Context, _, to Phase) error {
		if to == PhaseExecution {
			calls++
			return errHook
		}
		return nil
	}
	cfg := testConfig()
	cfg.Recovery.MaxRetries = 2
	rec := &recorder{}
	m := newTestMachine(t, cfg, WithPhaseHook(hook), WithObserver(rec))
	require.NoError(t, m.Start(ctx, duelists()))
	require.NoError(t, m.Submit(BasicAttack("p1", "e1")))

	err := m.Advance(ctx)
	var terr *TransitionError
	require.ErrorAs(t, err, &terr)
	assert.ErrorIs(t, err, errHook)
	assert.Equal(t, 3, terr.Attempt)
	assert.Equal(t, 3, calls)
	assert.Equal(t, PhasePreparation, terr.From)
	assert.Equal(t, PhaseExecution, terr.To)

	assert.Equal(t, PhaseIdle, m.Phase())
	res, ok := m.Result()
	require.True(t, ok)
	assert.Equal(t, OutcomeAborted, res.Outcome)
	assert.False(t, res.Victory())
	assert.Equal(t, 1, rec.count(EventBattleEnded))
	assert.Contains(t, rec.transitions(), "preparation->end")
}

func TestMachine_ForceEndPreemptsRetry(t *testing.T) {
	ctx := testutil.ContextWithTimeout(t, 5*time.Second)
	var calls atomic.Int32
	hook := func(_ context.Context, _, to Phase) error {
		if to == PhaseExecution {
			calls.Add(1)
			return errors.New("storage offline")
		}
		return nil
	}
	cfg := testConfig()
	cfg.Recovery.MaxRetries = 5
	cfg.Recovery.RetryDelay = 500 * time.Millisecond
	m := newTestMachine(t, cfg, WithPhaseHook(hook))
	require.NoError(t, m.Start(ctx, duelists()))
	require.NoError(t, m.Submit(BasicAttack("p1", "e1")))

	advanced := make(chan error, 1)
	go func() { advanced <- m.Advance(ctx) }()
	testutil.Eventually(t, time.Second, func() bool { return calls.Load() == 1 }, "first attempt failed")

	// The machine stays responsive while the retry waits.
	assert.ErrorIs(t, m.Submit(BasicAttack("p1", "e1")), ErrTransitionPending)
	assert.Equal(t, PhasePreparation, m.Snapshot().Phase)

	began := time.Now()
	require.NoError(t, m.ForceEnd(ctx, "player fled"))
	assert.Less(t, time.Since(began), 250*time.Millisecond)

	select {
	case err := <-advanced:
		assert.ErrorIs(t, err, ErrNotActive)
		var terr *TransitionError
		assert.False(t, errors.As(err, &terr))
	case <-ctx.Done():
		t.Fatal("advance did not return")
	}
	assert.Equal(t, int32(1), calls.Load())

	assert.Equal(t, PhaseIdle, m.Phase())
	res, ok := m.Result()
	require.True(t, ok)
	assert.Equal(t, OutcomeAborted, res.Outcome)
	assert.Equal(t, "forced end: player fled", res.Reason)

	require.NoError(t, m.Start(ctx, duelists()))
}

func TestMachine_ResetPreemptsRetry(t *testing.T) {
	ctx := testutil.ContextWithTimeout(t, 5*time.Second)
	var calls atomic.Int32
	hook := func(_ context.Context, _, to Phase) error {
		if to == PhaseRoundStart {
			calls.Add(1)
			return errors.New("storage offline")
		}
		return nil
	}
	cfg := testConfig()
	cfg.Recovery.MaxRetries = 5
	cfg.Recovery.RetryDelay = 500 * time.Millisecond
	m := newTestMachine(t, cfg, WithPhaseHook(hook))

	started := make(chan error, 1)
	go func() { started <- m.Start(ctx, duelists()) }()
	testutil.Eventually(t, time.Second, func() bool { return calls.Load() == 1 }, "first attempt failed")

	m.Reset(ctx)

	select {
	case err := <-started:
		assert.ErrorIs(t, err, ErrNotActive)
	case <-ctx.Done():
		t.Fatal("start did not return")
	}
	assert.Equal(t, int32(1), calls.Load())

	snap := m.Snapshot()
	assert.Equal(t, PhaseIdle, snap.Phase)
	assert.Empty(t, snap.Units)
	res, ok := m.Result()
	require.True(t, ok)
	assert.Equal(t, "reset", res.Reason)
}

func TestMachine_Run_RetriesTransition(t *testing.T) {
	ctx := testutil.ContextWithTimeout(t, 5*time.Second)
	failures := 1
	hook := func(_ context.Context, _, to Phase) error {
		if to == PhaseExecution && failures > 0 {
			failures--
			return errors.New("flaky")
		}
		return nil
	}
	cfg := testConfig()
	cfg.Recovery.RetryDelay = 20 * time.Millisecond
	m := newTestMachine(t, cfg, WithAutoBattle(true), WithPhaseHook(hook))
	require.NoError(t, m.Start(ctx, duelists()))

	res, err := m.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, OutcomeVictory, res.Outcome)
	assert.Zero(t, failures)
}

func TestMachine_HookRecoveryDisabled(t *testing.T) {
	ctx := context.Background()
	calls := 0
	hook := func(_ context.Context, _, to Phase) error {
		if to == PhaseExecution {
			calls++
			return errors.New("no")
		}
		return nil
	}
	cfg := testConfig()
	cfg.Recovery.Enabled = false
	m := newTestMachine(t, cfg, WithPhaseHook(hook))
	require.NoError(t, m.Start(ctx, duelists()))
	require.NoError(t, m.Submit(BasicAttack("p1", "e1")))

	var terr *TransitionError
	require.ErrorAs(t, m.Advance(ctx), &terr)
	assert.Equal(t, 1, terr.Attempt)
	assert.Equal(t, 1, calls)
}

func TestMachine_HookPanic(t *testing.T) {
	ctx := context.Background()
	hook := func(_ context.Context, _, to Phase) error {
		if to == PhaseRoundStart {
			panic("nil map write")
		}
		return nil
	}
	cfg := testConfig()
	cfg.Recovery.MaxRetries = 0
	m := newTestMachine(t, cfg, WithPhaseHook(hook))

	err := m.Start(ctx, duelists())
	var terr *TransitionError
	require.ErrorAs(t, err, &terr)
	assert.Contains(t, terr.Error(), "panic: nil map write")
	assert.Equal(t, PhaseIdle, m.Phase())

	res, ok := m.Result()
	require.True(t, ok)
	assert.Equal(t, OutcomeAborted, res.Outcome)
}

func TestMachine_ForceEnd(t *testing.T) {
	ctx := context.Background()
	m := newTestMachine(t, testConfig())

	assert.ErrorIs(t, m.ForceEnd(ctx, "nothing to end"), ErrNotActive)

	require.NoError(t, m.Start(ctx, duelists()))
	require.NoError(t, m.ForceEnd(ctx, "player fled"))

	assert.Equal(t, PhaseIdle, m.Phase())
	res, ok := m.Result()
	require.True(t, ok)
	assert.Equal(t, OutcomeAborted, res.Outcome)
	assert.Equal(t, "forced end: player fled", res.Reason)
	assert.Len(t, res.Survivors, 2)

	assert.ErrorIs(t, m.ForceEnd(ctx, "again"), ErrNotActive)
	assert.ErrorIs(t, m.Advance(ctx), ErrNotActive)
}

func TestMachine_ResetAndReuse(t *testing.T) {
	ctx := context.Background()
	m := newTestMachine(t, testConfig())

	require.NoError(t, m.Start(ctx, duelists()))
	first := m.Snapshot().BattleID
	m.Reset(ctx)

	snap := m.Snapshot()
	assert.Equal(t, PhaseIdle, snap.Phase)
	assert.Empty(t, snap.Units)
	assert.Zero(t, snap.Round)
	res, ok := m.Result()
	require.True(t, ok)
	assert.Equal(t, OutcomeAborted, res.Outcome)
	assert.Equal(t, "reset", res.Reason)

	// Reset of an idle machine is a no-op.
	m.Reset(ctx)

	require.NoError(t, m.Start(ctx, duelists()))
	snap = m.Snapshot()
	assert.Equal(t, int32(1), snap.Round)
	assert.NotEqual(t, first, snap.BattleID)
}

func TestMachine_Run_AutoBattle(t *testing.T) {
	ctx := testutil.ContextWithTimeout(t, 5*time.Second)
	tl := NewTimeline()
	m := newTestMachine(t, testConfig(), WithAutoBattle(true), WithObserver(tl))
	require.NoError(t, m.Start(ctx, duelists()))

	res, err := m.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, OutcomeVictory, res.Outcome)
	assert.Equal(t, int32(2), res.Rounds)

	cues := tl.Drain()
	var types []EventType
	for _, c := range cues {
		types = append(types, c.Type)
	}
	assert.Equal(t, []EventType{
		EventActionResolved,
		EventActionResolved,
		EventActionResolved,
		EventUnitDefeated,
		EventBattleEnded,
	}, types)
	assert.Equal(t, int32(75), cues[0].Action.Targets[0].Damage)
	assert.Equal(t, "e1", cues[3].Unit.UnitID)
	assert.Equal(t, OutcomeVictory, cues[4].Result.Outcome)
	assert.Empty(t, tl.Drain())
}

func TestMachine_Run_NotStarted(t *testing.T) {
	m := newTestMachine(t, testConfig())
	_, err := m.Run(context.Background())
	assert.ErrorIs(t, err, ErrNotActive)
}

func TestMachine_Run_Submissions(t *testing.T) {
	ctx := testutil.ContextWithTimeout(t, 5*time.Second)
	m := newTestMachine(t, testConfig())
	require.NoError(t, m.Start(ctx, duelists()))

	done := make(chan Result, 1)
	go func() {
		res, err := m.Run(ctx)
		assert.NoError(t, err)
		done <- res
	}()

	for range 2 {
		testutil.Eventually(t, time.Second, func() bool {
			return slices.Contains(m.Missing(), "p1")
		}, "p1 waits for an action")
		require.NoError(t, m.Submit(BasicAttack("p1", "e1")))
	}

	select {
	case res := <-done:
		assert.Equal(t, OutcomeVictory, res.Outcome)
	case <-ctx.Done():
		t.Fatal("run did not finish")
	}
}

func TestMachine_Run_PreparationTimeout(t *testing.T) {
	ctx := testutil.ContextWithTimeout(t, 5*time.Second)
	cfg := testConfig()
	cfg.Timeouts.Preparation = 10 * time.Millisecond
	m := newTestMachine(t, cfg, WithSelector(nil))
	require.NoError(t, m.Start(ctx, duelists()))

	res, err := m.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, OutcomeVictory, res.Outcome)
	for _, h := range res.History {
		assert.True(t, h.Auto)
	}
}

func TestMachine_Run_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	m := newTestMachine(t, testConfig(), WithSelector(nil))
	require.NoError(t, m.Start(ctx, duelists()))

	time.AfterFunc(20*time.Millisecond, cancel)
	res, err := m.Run(ctx)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, OutcomeAborted, res.Outcome)
	assert.Equal(t, PhaseIdle, m.Phase())
}

func TestMachine_Run_RoundLimit(t *testing.T) {
	ctx := testutil.ContextWithTimeout(t, 5*time.Second)
	cfg := testConfig()
	cfg.MaxRounds = 3
	m := newTestMachine(t, cfg, WithAutoBattle(true))
	require.NoError(t, m.Start(ctx, []*model.BattleUnit{
		testutil.Player("p1").HP(10000).Attack(1).Defense(1000).Build(),
		testutil.Enemy("e1").HP(10000).Attack(1).Defense(1000).Build(),
	}))

	res, err := m.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, OutcomeDraw, res.Outcome)
	assert.Equal(t, int32(3), res.Rounds)
	assert.Len(t, res.Survivors, 2)
}

func TestMachine_Run_Defeat(t *testing.T) {
	ctx := testutil.ContextWithTimeout(t, 5*time.Second)
	m := newTestMachine(t, testConfig(), WithAutoBattle(true))
	require.NoError(t, m.Start(ctx, []*model.BattleUnit{
		testutil.Player("p1").HP(10).Attack(1).Build(),
		testutil.Enemy("e1").HP(100).Attack(50).Speed(30).Build(),
	}))

	res, err := m.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, OutcomeDefeat, res.Outcome)
	assert.Empty(t, res.PlayerSurvivors())
}

// Every execution phase starts with exactly one action per living unit, and every
// queued caster is alive at that point.
func TestMachine_Properties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		var units []*model.BattleUnit
		for side, prefix := range []string{"p", "e"} {
			n := rapid.IntRange(1, 3).Draw(t, prefix+"_count")
			for i := range n {
				id := fmt.Sprintf("%s%d", prefix, i)
				units = append(units, testutil.NewUnit(id, model.Side(side)).
					HP(rapid.Int32Range(20, 120).Draw(t, id+"_hp")).
					Attack(rapid.Int32Range(5, 40).Draw(t, id+"_atk")).
					Defense(rapid.Int32Range(0, 20).Draw(t, id+"_def")).
					Speed(rapid.Int32Range(1, 30).Draw(t, id+"_spd")).
					Build())
			}
		}

		var m *Machine
		var failures []string
		check := ObserverFunc(func(e Event) {
			if e.Type != EventTransition || e.After != PhaseExecution {
				return
			}
			snap := m.Snapshot()
			living := 0
			for _, u := range snap.Units {
				if u.InBattle() {
					living++
				}
			}
			if len(snap.Actions) != living {
				failures = append(failures, fmt.Sprintf("round %d: %d actions for %d living", snap.Round, len(snap.Actions), living))
			}
			for id := range snap.Actions {
				if u, ok := snap.Unit(id); !ok || !u.InBattle() {
					failures = append(failures, fmt.Sprintf("round %d: action for %s out of battle", snap.Round, id))
				}
			}
		})

		cfg := testConfig()
		var err error
		m, err = NewMachine(cfg, data.DefaultCatalog(),
			WithLogger(discard),
			WithRoller(testutil.FixedRoller(rapid.Float64Range(0, 0.99).Draw(t, "roll"))),
			WithAutoBattle(true),
			WithObserver(check))
		if err != nil {
			t.Fatal(err)
		}
		if err := m.Start(context.Background(), units); err != nil {
			t.Fatal(err)
		}
		res, err := m.Run(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		if len(failures) > 0 {
			t.Fatalf("%v", failures)
		}
		if res.Rounds < 1 || res.Rounds > cfg.MaxRounds {
			t.Fatalf("rounds %d out of range", res.Rounds)
		}
		if res.Outcome == OutcomeAborted {
			t.Fatalf("unexpected abort: %s", res.Reason)
		}
	})
}
