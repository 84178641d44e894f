// Package battle implements the turn-based battle state machine and the action
// resolution pipeline.
package battle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"

	"github.com/udisondev/beastcall/internal/config"
	"github.com/udisondev/beastcall/internal/data"
	"github.com/udisondev/beastcall/internal/game/combat"
	"github.com/udisondev/beastcall/internal/game/skill"
	"github.com/udisondev/beastcall/internal/model"
)

// PhaseHook runs before a phase is entered. An error or panic fails the
// transition, which is then retried per the recovery policy.
// Hooks run with the machine locked and must not call back into it.
type PhaseHook func(ctx context.Context, from, to Phase) error

// Option configures a Machine.
type Option func(*Machine)

// WithLogger sets the logger. Default slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(m *Machine) { m.logger = l }
}

// WithObserver registers an observer. Observers are notified in registration order.
func WithObserver(o Observer) Option {
	return func(m *Machine) { m.observers = append(m.observers, o) }
}

// WithResultSink registers a sink receiving every finished battle.
func WithResultSink(s ResultSink) Option {
	return func(m *Machine) { m.sinks = append(m.sinks, s) }
}

// WithSelector sets the selector for enemy and auto-battle actions.
// nil disables selection: those units then act only on timeout.
func WithSelector(s ActionSelector) Option {
	return func(m *Machine) { m.selector = s }
}

// WithAutoBattle lets the selector pick actions for player units too.
func WithAutoBattle(on bool) Option {
	return func(m *Machine) { m.autoBattle = on }
}

// WithPhaseHook adds a hook run before every phase entry.
func WithPhaseHook(h PhaseHook) Option {
	return func(m *Machine) { m.hooks = append(m.hooks, h) }
}

// WithRoller sets the random source for combat rolls. Default math/rand/v2.
func WithRoller(r combat.Roller) Option {
	return func(m *Machine) { m.roller = r }
}

// WithBuffRegistry sets the status effect registry.
func WithBuffRegistry(r *skill.Registry) Option {
	return func(m *Machine) { m.buffs = r }
}

type globalRoller struct{}

func (globalRoller) Float64() float64 { return rand.Float64() }

// Machine is the battle state machine.
//
// It owns the battle state exclusively. Commands may come from any goroutine and are
// serialised by an internal mutex. Observers and result sinks are called after the
// mutex is released, in event order, by one goroutine at a time; commands issued
// meanwhile (from observers too) queue their events behind the running delivery.
//
// A failed phase transition waits for its retry without holding the mutex. Until
// it settles, ForceEnd and Reset preempt it and the other commands return
// ErrTransitionPending.
type Machine struct {
	cfg        config.Battle
	catalog    *data.Catalog
	buffs      *skill.Registry
	roller     combat.Roller
	pipeline   *Pipeline
	selector   ActionSelector
	autoBattle bool
	hooks      []PhaseHook
	sinks      []ResultSink
	logger     *slog.Logger

	mu        sync.Mutex
	state     State
	battleID  uuid.UUID
	startedAt time.Time
	entered   time.Time // current phase entry
	incoming  []*model.BattleUnit
	queue     []model.Action // execution queue, turn order
	outcome   Outcome
	reason    string
	result    *Result
	pending   []Event
	finished  []Result
	wake      chan struct{}

	retrying  bool
	interrupt context.CancelFunc // cancels the pending retry
	epoch     uint64             // bumped by ForceEnd and Reset

	observers  []Observer
	outbox     []delivery
	delivering bool
	seq        uint64 // owned by the delivering goroutine
}

// delivery is what one command leaves for observers and sinks.
type delivery struct {
	ctx     context.Context
	events  []Event
	results []Result
}

// NewMachine creates an idle Machine.
func NewMachine(cfg config.Battle, catalog *data.Catalog, opts ...Option) (*Machine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid battle config: %w", err)
	}
	if catalog == nil {
		return nil, errors.New("nil catalog")
	}

	m := &Machine{
		cfg:      cfg,
		catalog:  catalog,
		selector: BasicAttackSelector{},
		logger:   slog.Default(),
		roller:   globalRoller{},
		state:    newState(),
		wake:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	if m.buffs == nil {
		m.buffs = skill.NewRegistry(m.logger)
	}

	calc := combat.NewCalculator(cfg.Damage, m.roller)
	m.pipeline = NewPipeline(catalog, calc, m.buffs, m.logger)
	return m, nil
}

// Subscribe registers an observer after construction.
func (m *Machine) Subscribe(o Observer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observers = append(m.observers, o)
}

// Start registers units and runs initialization up to the first preparation phase.
//
// Each side needs at least one unit in battle. Units are copied: the caller's
// values are not modified by the battle.
func (m *Machine) Start(ctx context.Context, units []*model.BattleUnit) error {
	m.mu.Lock()
	defer m.unlock(ctx)

	if m.retrying {
		return ErrTransitionPending
	}
	if m.state.Phase != PhaseIdle {
		return fmt.Errorf("start: %w (phase %s)", ErrWrongPhase, m.state.Phase)
	}
	if err := validateRoster(units); err != nil {
		return err
	}

	m.incoming = units
	defer func() { m.incoming = nil }()

	if err := m.transition(ctx, PhaseInitialization); err != nil {
		return fmt.Errorf("start: %w", err)
	}
	if err := m.transition(ctx, PhaseRoundStart); err != nil {
		return fmt.Errorf("start: %w", err)
	}
	if err := m.transition(ctx, PhasePreparation); err != nil {
		return fmt.Errorf("start: %w", err)
	}
	return nil
}

// Submit records a unit's action for the current round, replacing any earlier one.
func (m *Machine) Submit(a model.Action) error {
	m.mu.Lock()
	defer m.unlock(context.Background())

	if m.retrying {
		return ErrTransitionPending
	}
	if !m.state.IsActive {
		return ErrNotActive
	}
	if m.state.Phase != PhasePreparation {
		return fmt.Errorf("submit: %w (phase %s)", ErrWrongPhase, m.state.Phase)
	}
	if _, _, err := m.pipeline.validate(a, &m.state, false); err != nil {
		return fmt.Errorf("submit %s: %w", a.CasterID, err)
	}

	a = a.Clone()
	a.Auto = false
	m.state.Actions[a.CasterID] = a
	m.signal()
	return nil
}

// Advance moves the battle forward on the normal path:
//   - preparation: to execution, once every living unit has an action
//   - execution: resolves the remaining queue, then enters resolution
//   - resolution: starts the next round, or ends the battle on a terminal condition
func (m *Machine) Advance(ctx context.Context) error {
	m.mu.Lock()
	defer m.unlock(ctx)

	if m.retrying {
		return ErrTransitionPending
	}
	if !m.state.IsActive {
		return ErrNotActive
	}

	switch m.state.Phase {
	case PhasePreparation:
		if missing := m.missing(); len(missing) > 0 {
			return &PreconditionFailedError{
				Phase:  PhaseExecution,
				Reason: fmt.Sprintf("%d living units without action: %v", len(missing), missing),
			}
		}
		return m.transition(ctx, PhaseExecution)
	case PhaseExecution:
		for len(m.queue) > 0 {
			m.resolveNext()
		}
		return m.enterResolution(ctx)
	case PhaseResolution:
		return m.nextRound(ctx)
	default:
		return fmt.Errorf("advance: %w (phase %s)", ErrWrongPhase, m.state.Phase)
	}
}

// Expire applies the timeout of the current sub-state:
//   - preparation: units without an action get the timeout action, then execution
//   - execution: remaining queued actions are skipped, then resolution
//   - resolution: next round, unless a terminal condition holds
func (m *Machine) Expire(ctx context.Context) error {
	m.mu.Lock()
	defer m.unlock(ctx)

	if m.retrying {
		return ErrTransitionPending
	}
	if !m.state.IsActive {
		return ErrNotActive
	}
	phase := m.state.Phase
	next, ok := timeoutNext[phase]
	if !ok {
		return fmt.Errorf("expire: %w (phase %s)", ErrWrongPhase, phase)
	}

	m.logger.Info("phase timed out",
		"battle", m.battleID,
		"round", m.state.Round,
		"phase", phase,
		"next", next)

	switch phase {
	case PhasePreparation:
		m.fillMissing()
		return m.transition(ctx, next)
	case PhaseExecution:
		m.skipQueue("execution timeout")
		return m.enterResolution(ctx)
	default:
		return m.nextRound(ctx)
	}
}

// ResolveNext resolves the next queued action during execution. more reports
// whether actions remain. A skipped action is returned with Skipped set and a nil
// error: action-level faults never fail the round.
func (m *Machine) ResolveNext(ctx context.Context) (res model.ActionResult, more bool, err error) {
	m.mu.Lock()
	defer m.unlock(ctx)

	if m.retrying {
		return res, false, ErrTransitionPending
	}
	if !m.state.IsActive {
		return res, false, ErrNotActive
	}
	if m.state.Phase != PhaseExecution {
		return res, false, fmt.Errorf("resolve: %w (phase %s)", ErrWrongPhase, m.state.Phase)
	}
	if len(m.queue) == 0 {
		return res, false, nil
	}
	res = m.resolveNext()
	return res, len(m.queue) > 0, nil
}

// ForceEnd terminates the running battle immediately with an aborted outcome. A
// transition waiting for its retry is abandoned; its command returns ErrNotActive.
func (m *Machine) ForceEnd(ctx context.Context, reason string) error {
	m.mu.Lock()
	defer m.unlock(ctx)

	if !m.state.IsActive && !m.retrying {
		return ErrNotActive
	}
	m.logger.Warn("battle force ended", "battle", m.battleID, "phase", m.state.Phase, "reason", reason)
	m.preempt()
	m.finish(OutcomeAborted, "forced end: "+reason)
	return nil
}

// Reset ends a running battle (aborted) and clears all state so the machine can
// be reused. The last Result stays available. Accepted in any phase.
func (m *Machine) Reset(ctx context.Context) {
	m.mu.Lock()
	defer m.unlock(ctx)

	if m.state.IsActive || m.retrying {
		m.logger.Warn("battle reset", "battle", m.battleID, "phase", m.state.Phase)
		m.preempt()
		m.finish(OutcomeAborted, "reset")
	}
	m.state = newState()
	m.queue = nil
	m.signal()
}

// Snapshot returns a deep copy of the current state.
func (m *Machine) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.snapshot(m.battleID, len(m.queue))
}

// Phase returns the current phase.
func (m *Machine) Phase() Phase {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Phase
}

// Result returns the result of the last finished battle.
func (m *Machine) Result() (Result, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.result == nil {
		return Result{}, false
	}
	return *m.result, true
}

// Missing returns the living units that have no action this round, in turn order.
func (m *Machine) Missing() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state.Phase != PhasePreparation {
		return nil
	}
	return m.missing()
}

// transition moves to phase to, running hooks and the phase entry step.
//
// Precondition failures leave the machine where it is. Entry faults are retried per
// the recovery policy; when retries are exhausted the battle is forced to end with
// an aborted outcome and the *TransitionError is returned. Must hold mu.
func (m *Machine) transition(ctx context.Context, to Phase) error {
	from := m.state.Phase
	if !canTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, from, to)
	}
	if err := m.precondition(to); err != nil {
		return err
	}

	err := m.attempt(ctx, from, to)
	if err == nil {
		return nil
	}
	terr := m.failed(from, to, 1, err)
	if m.cfg.Recovery.Enabled && m.cfg.Recovery.MaxRetries > 0 {
		return m.retry(ctx, from, to, terr)
	}
	return m.abandon(terr)
}

// retry repeats a failed transition on the recovery schedule. mu is released
// while waiting for the next attempt; ForceEnd and Reset cut the wait short.
// Must hold mu.
func (m *Machine) retry(ctx context.Context, from, to Phase, terr *TransitionError) error {
	rctx, cancel := context.WithCancel(ctx)
	defer cancel()
	m.retrying, m.interrupt = true, cancel
	epoch := m.epoch

	locked := true
	schedule := retry.WithMaxRetries(uint64(m.cfg.Recovery.MaxRetries),
		retry.NewConstant(max(m.cfg.Recovery.RetryDelay, time.Nanosecond)))
	backoff := retry.BackoffFunc(func() (time.Duration, bool) {
		d, stop := schedule.Next()
		if !stop {
			m.mu.Unlock()
			locked = false
		}
		return d, stop
	})

	err := retry.Do(rctx, backoff, func(ctx context.Context) error {
		if locked {
			// First call: the attempt made by transition.
			return retry.RetryableError(terr)
		}
		m.mu.Lock()
		locked = true
		if m.epoch != epoch {
			return ErrNotActive
		}
		if err := m.attempt(ctx, from, to); err != nil {
			terr = m.failed(from, to, terr.Attempt+1, err)
			return retry.RetryableError(terr)
		}
		return nil
	})
	if !locked {
		m.mu.Lock()
	}
	m.retrying, m.interrupt = false, nil
	m.signal()

	switch {
	case err == nil:
		return nil
	case m.epoch != epoch:
		return fmt.Errorf("transition %s -> %s interrupted: %w", from, to, ErrNotActive)
	case ctx.Err() != nil:
		terr.Err = errors.Join(terr.Err, ctx.Err())
	}
	return m.abandon(terr)
}

// attempt enters phase to once. A failed attempt leaves no trace. Must hold mu.
func (m *Machine) attempt(ctx context.Context, from, to Phase) error {
	mark := len(m.pending)
	m.state.Phase = to

	if err := m.try(ctx, from, to); err != nil {
		m.state.Phase = from
		m.pending = m.pending[:mark]
		return err
	}
	// The transition event precedes events raised while entering.
	m.pending = slices.Insert(m.pending, mark, m.event(EventTransition, from, to, nil))
	m.entered = time.Now()
	m.signal()
	return nil
}

func (m *Machine) failed(from, to Phase, attempt int, err error) *TransitionError {
	attempts := 1
	if m.cfg.Recovery.Enabled {
		attempts += m.cfg.Recovery.MaxRetries
	}
	m.logger.Warn("phase transition failed",
		"battle", m.battleID,
		"from", from,
		"to", to,
		"attempt", attempt,
		"attempts", attempts,
		"error", err)
	return &TransitionError{From: from, To: to, Attempt: attempt, Err: err}
}

// abandon ends the battle after a transition fault that is not retried further.
func (m *Machine) abandon(terr *TransitionError) error {
	m.logger.Error("phase transition abandoned, ending battle",
		"battle", m.battleID,
		"from", terr.From,
		"to", terr.To,
		"error", terr)
	m.finish(OutcomeAborted, terr.Error())
	return terr
}

// preempt abandons a transition waiting for its retry. Must hold mu.
func (m *Machine) preempt() {
	m.epoch++
	if m.interrupt != nil {
		m.interrupt()
	}
}

func (m *Machine) try(ctx context.Context, from, to Phase) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	for _, h := range m.hooks {
		if err := h(ctx, from, to); err != nil {
			return err
		}
	}
	m.enter(to)
	return nil
}

func (m *Machine) precondition(to Phase) error {
	fail := func(reason string) error {
		return &PreconditionFailedError{Phase: to, Reason: reason}
	}
	switch to {
	case PhaseInitialization:
		return validateRoster(m.incoming)
	case PhasePreparation:
		if len(m.state.Living()) == 0 {
			return fail("no living units")
		}
	case PhaseExecution:
		if len(m.state.Actions) == 0 {
			return fail("no submitted actions")
		}
	case PhaseEnd:
		if m.state.IsActive {
			return fail("battle still active")
		}
	}
	return nil
}

// enter runs the entry step of phase p. Must hold mu.
func (m *Machine) enter(p Phase) {
	switch p {
	case PhaseInitialization:
		m.state = newState()
		m.state.Phase = PhaseInitialization
		for _, u := range m.incoming {
			c := u.Clone()
			m.state.Units[c.ID] = &c
			m.state.Order = append(m.state.Order, c.ID)
		}
		m.state.IsActive = true
		m.battleID = uuid.New()
		m.startedAt = time.Now()
		m.outcome, m.reason = "", ""
		m.queue = nil
		m.logger.Info("battle started",
			"battle", m.battleID,
			"players", len(m.state.LivingOn(model.SidePlayer)),
			"enemies", len(m.state.LivingOn(model.SideEnemy)))

	case PhaseRoundStart:
		m.state.Round++
		clear(m.state.Actions)
		m.queue = nil
		m.logger.Debug("round started", "battle", m.battleID, "round", m.state.Round)

	case PhasePreparation:
		m.autoSelect()

	case PhaseExecution:
		order := OrderUnits(m.state.Living(), m.pipeline.Speed)
		m.queue = m.queue[:0]
		for _, u := range order {
			if a, ok := m.state.Actions[u.ID]; ok {
				m.queue = append(m.queue, a)
			}
		}

	case PhaseResolution:
		for _, u := range m.state.All() {
			if !u.InBattle() {
				continue
			}
			tick := m.buffs.Tick(u)
			if tick.Died {
				m.record(EventUnitDefeated, unitEvent(u, "status effect"))
			}
		}

	case PhaseEnd:
		r := m.buildResult()
		m.result = &r
		m.finished = append(m.finished, r)
		m.record(EventBattleEnded, r)
		m.logger.Info("battle ended",
			"battle", m.battleID,
			"outcome", r.Outcome,
			"reason", r.Reason,
			"rounds", r.Rounds,
			"actions", len(r.History))
	}
}

// enterResolution moves execution to resolution and ends the battle if a terminal
// condition holds.
func (m *Machine) enterResolution(ctx context.Context) error {
	if err := m.transition(ctx, PhaseResolution); err != nil {
		return err
	}
	if outcome, reason, done := m.terminal(); done {
		return m.end(ctx, outcome, reason)
	}
	return nil
}

// nextRound leaves resolution: to end on a terminal condition, else into the next
// round's preparation.
func (m *Machine) nextRound(ctx context.Context) error {
	if outcome, reason, done := m.terminal(); done {
		return m.end(ctx, outcome, reason)
	}
	if err := m.transition(ctx, PhaseRoundStart); err != nil {
		return err
	}
	return m.transition(ctx, PhasePreparation)
}

func (m *Machine) terminal() (Outcome, string, bool) {
	playersOut := m.state.SideOut(model.SidePlayer)
	enemiesOut := m.state.SideOut(model.SideEnemy)

	switch {
	case playersOut && enemiesOut:
		return OutcomeDraw, "both sides defeated", true
	case enemiesOut:
		return OutcomeVictory, "all enemies defeated", true
	case playersOut:
		return OutcomeDefeat, "all player units defeated", true
	case m.state.Round >= m.cfg.MaxRounds:
		return OutcomeDraw, fmt.Sprintf("round limit %d reached", m.cfg.MaxRounds), true
	}
	return "", "", false
}

// end concludes the battle through the regular transition path.
func (m *Machine) end(ctx context.Context, outcome Outcome, reason string) error {
	m.outcome, m.reason = outcome, reason
	m.state.IsActive = false
	m.queue = nil
	if err := m.transition(ctx, PhaseEnd); err != nil {
		return err
	}
	m.toIdle()
	return nil
}

// finish forces the battle to end without hooks or retries. No-op when no battle
// is running. Must hold mu.
func (m *Machine) finish(outcome Outcome, reason string) {
	from := m.state.Phase
	if from == PhaseIdle || from == PhaseEnd {
		return
	}
	m.outcome, m.reason = outcome, reason
	m.state.IsActive = false
	m.queue = nil
	m.state.Phase = PhaseEnd
	m.pending = append(m.pending, m.event(EventTransition, from, PhaseEnd, nil))
	m.enter(PhaseEnd)
	m.toIdle()
}

func (m *Machine) toIdle() {
	m.state.Phase = PhaseIdle
	m.pending = append(m.pending, m.event(EventTransition, PhaseEnd, PhaseIdle, nil))
	m.entered = time.Now()
	m.signal()
}

// resolveNext pops and resolves the head of the queue. Must hold mu.
func (m *Machine) resolveNext() model.ActionResult {
	a := m.queue[0]
	m.queue = m.queue[1:]

	res, err := m.pipeline.Resolve(a, &m.state)
	if err != nil {
		m.record(EventActionSkipped, res)
		return res
	}

	m.record(EventActionResolved, res)
	for _, t := range res.Targets {
		u := m.state.Unit(t.TargetID)
		switch {
		case t.Defeated:
			m.record(EventUnitDefeated, unitEvent(u, a.CasterID))
		case t.Captured:
			m.record(EventUnitCaptured, unitEvent(u, a.CasterID))
		}
	}
	return res
}

func (m *Machine) skipQueue(reason string) {
	for _, a := range m.queue {
		m.logger.Info("action dropped", "battle", m.battleID, "caster", a.CasterID, "skill", a.SkillID, "reason", reason)
		m.record(EventActionSkipped, model.ActionResult{
			Round:    m.state.Round,
			CasterID: a.CasterID,
			SkillID:  a.SkillID,
			Auto:     a.Auto,
			Skipped:  true,
			Reason:   reason,
		})
	}
	m.queue = nil
}

// autoSelect asks the selector for actions of enemies (and players in auto-battle).
func (m *Machine) autoSelect() {
	if m.selector == nil {
		return
	}
	order := OrderUnits(m.state.Living(), m.pipeline.Speed)
	for _, u := range order {
		if u.Side == model.SidePlayer && !m.autoBattle {
			continue
		}
		a, ok := m.selector.SelectAction(u.Clone(), view(order, u.Side), view(order, u.Side.Opponent()))
		if !ok {
			continue
		}
		a.CasterID = u.ID
		a.Auto = true
		if _, _, err := m.pipeline.validate(a, &m.state, false); err != nil {
			m.logger.Warn("selected action rejected", "battle", m.battleID, "unit", u.ID, "skill", a.SkillID, "error", err)
			continue
		}
		m.state.Actions[u.ID] = a
	}
}

// fillMissing assigns the timeout action to every living unit without one.
func (m *Machine) fillMissing() {
	order := OrderUnits(m.state.Living(), m.pipeline.Speed)
	for _, u := range order {
		if _, ok := m.state.Actions[u.ID]; ok {
			continue
		}
		a := Wait(u.ID)
		if m.cfg.TimeoutAction == config.TimeoutActionBasicAttack {
			if sel, ok := (BasicAttackSelector{}).SelectAction(u.Clone(), nil, view(order, u.Side.Opponent())); ok {
				a = sel
			}
		}
		a.Auto = true
		m.state.Actions[u.ID] = a
		m.logger.Debug("timeout action assigned", "battle", m.battleID, "unit", u.ID, "skill", a.SkillID)
	}
}

func (m *Machine) missing() []string {
	var ids []string
	for _, u := range OrderUnits(m.state.Living(), m.pipeline.Speed) {
		if _, ok := m.state.Actions[u.ID]; !ok {
			ids = append(ids, u.ID)
		}
	}
	return ids
}

func (m *Machine) event(typ EventType, before, after Phase, payload any) Event {
	return Event{
		Type:     typ,
		BattleID: m.battleID,
		Before:   before,
		After:    after,
		Round:    m.state.Round,
		At:       time.Now(),
		Payload:  payload,
	}
}

// record queues a non-transition event for delivery. Must hold mu.
func (m *Machine) record(typ EventType, payload any) {
	p := m.state.Phase
	m.pending = append(m.pending, m.event(typ, p, p, payload))
}

// signal wakes goroutines waiting in Run. Must hold mu.
func (m *Machine) signal() {
	close(m.wake)
	m.wake = make(chan struct{})
}

// unlock releases mu and delivers queued events to observers and finished results
// to sinks. Deliveries run one at a time in recording order: while one is in
// progress, later commands (including those issued by observers) leave their
// delivery in the outbox for the running deliverer.
func (m *Machine) unlock(ctx context.Context) {
	if len(m.pending) > 0 || len(m.finished) > 0 {
		m.outbox = append(m.outbox, delivery{
			// Sinks outlive a cancelled command context.
			ctx:     context.WithoutCancel(ctx),
			events:  m.pending,
			results: m.finished,
		})
		m.pending, m.finished = nil, nil
	}
	if m.delivering {
		m.mu.Unlock()
		return
	}

	m.delivering = true
	for len(m.outbox) > 0 {
		d := m.outbox[0]
		m.outbox = m.outbox[1:]
		observers := slices.Clone(m.observers)
		m.mu.Unlock()

		m.deliver(d, observers)

		m.mu.Lock()
	}
	m.delivering = false
	m.mu.Unlock()
}

func (m *Machine) deliver(d delivery, observers []Observer) {
	for _, e := range d.events {
		m.seq++
		e.Seq = m.seq
		for _, o := range observers {
			m.notify(o, e)
		}
	}
	for _, r := range d.results {
		for _, s := range m.sinks {
			m.store(d.ctx, s, r)
		}
	}
}

func (m *Machine) notify(o Observer, e Event) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("observer panicked", "event", e.Type, "seq", e.Seq, "panic", r)
		}
	}()
	o.OnEvent(e)
}

func (m *Machine) store(ctx context.Context, s ResultSink, r Result) {
	defer func() {
		if p := recover(); p != nil {
			m.logger.Error("result sink panicked", "battle", r.BattleID, "panic", p)
		}
	}()
	if err := s.Record(ctx, r); err != nil {
		m.logger.Error("recording battle result", "battle", r.BattleID, "error", err)
	}
}

func validateRoster(units []*model.BattleUnit) error {
	fail := func(format string, args ...any) error {
		return &PreconditionFailedError{Phase: PhaseInitialization, Reason: fmt.Sprintf(format, args...)}
	}
	seen := make(map[string]struct{}, len(units))
	var players, enemies int
	for i, u := range units {
		if u == nil {
			return fail("unit %d is nil", i)
		}
		if u.ID == "" {
			return fail("unit %d has no id", i)
		}
		if _, dup := seen[u.ID]; dup {
			return fail("duplicate unit id %q", u.ID)
		}
		seen[u.ID] = struct{}{}
		if !u.InBattle() {
			continue
		}
		switch u.Side {
		case model.SidePlayer:
			players++
		case model.SideEnemy:
			enemies++
		}
	}
	if players == 0 || enemies == 0 {
		return fail("each side needs a unit in battle (players %d, enemies %d)", players, enemies)
	}
	return nil
}

func view(order []*model.BattleUnit, side model.Side) []model.BattleUnit {
	var out []model.BattleUnit
	for _, u := range order {
		if u.Side == side {
			out = append(out, u.Clone())
		}
	}
	return out
}

func unitEvent(u *model.BattleUnit, by string) UnitEvent {
	return UnitEvent{UnitID: u.ID, Name: u.Name, Side: u.Side, By: by}
}
