package battle

import (
	"context"
	"errors"
	"time"
)

// Run drives a started battle to its end and returns the result.
//
// Preparation waits for submissions until every living unit has an action or the
// preparation timeout expires. Execution resolves the queue action by action and
// skips what is left once the execution timeout expires. Resolution advances
// immediately. Waits end early on any state change (Submit, Reset, ForceEnd,
// Advance from another goroutine).
//
// While another goroutine's transition waits for its retry, Run waits too.
//
// Cancelling ctx force-ends the battle; the aborted result is returned with
// ctx.Err(). A transition fault that exhausted its retries is returned with the
// aborted result.
func (m *Machine) Run(ctx context.Context) (Result, error) {
	for {
		m.mu.Lock()
		if !m.state.IsActive && !m.retrying {
			res := m.result
			m.mu.Unlock()
			if res == nil {
				return Result{}, ErrNotActive
			}
			return *res, nil
		}
		phase := m.state.Phase
		ready := phase != PhasePreparation || len(m.missing()) == 0
		queued := len(m.queue)
		deadline := m.deadline(phase)
		wake := m.wake
		busy := m.retrying
		m.mu.Unlock()

		expired := !deadline.IsZero() && !time.Now().Before(deadline)

		var err error
		switch {
		case busy:
			err = ErrTransitionPending
		case expired && phase != PhaseResolution:
			err = m.Expire(ctx)
		case ready && phase == PhaseExecution && queued > 0:
			_, _, err = m.ResolveNext(ctx)
		case ready:
			err = m.Advance(ctx)
		default:
			if err := m.wait(ctx, wake, deadline); err != nil {
				_ = m.ForceEnd(ctx, err.Error())
				res, _ := m.Result()
				return res, err
			}
			continue
		}

		if err != nil {
			var terr *TransitionError
			if errors.As(err, &terr) {
				res, _ := m.Result()
				return res, err
			}
			// Stale view (another goroutine moved the battle) or an unmet
			// precondition: re-evaluate.
			m.logger.Debug("run step rejected", "phase", phase, "error", err)
			if errors.Is(err, ErrWrongPhase) || errors.Is(err, ErrNotActive) {
				continue
			}
			if errors.Is(err, ErrTransitionPending) {
				if err := m.wait(ctx, wake, time.Time{}); err != nil {
					_ = m.ForceEnd(ctx, err.Error())
					res, _ := m.Result()
					return res, err
				}
				continue
			}
			var perr *PreconditionFailedError
			if errors.As(err, &perr) {
				if err := m.wait(ctx, wake, deadline); err != nil {
					_ = m.ForceEnd(ctx, err.Error())
					res, _ := m.Result()
					return res, err
				}
				continue
			}
			return Result{}, err
		}
	}
}

// deadline returns when the current phase times out, zero if it never does.
// Must hold mu.
func (m *Machine) deadline(p Phase) time.Time {
	var d time.Duration
	switch p {
	case PhasePreparation:
		d = m.cfg.Timeouts.Preparation
	case PhaseExecution:
		d = m.cfg.Timeouts.Execution
	case PhaseResolution:
		d = m.cfg.Timeouts.Resolution
	}
	if d <= 0 {
		return time.Time{}
	}
	return m.entered.Add(d)
}

// wait blocks until the state changes, the deadline passes or ctx is done.
func (m *Machine) wait(ctx context.Context, wake <-chan struct{}, deadline time.Time) error {
	var timeout <-chan time.Time
	if !deadline.IsZero() {
		t := time.NewTimer(time.Until(deadline))
		defer t.Stop()
		timeout = t.C
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-wake:
	case <-timeout:
	}
	return nil
}
