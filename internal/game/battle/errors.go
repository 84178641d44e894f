package battle

import (
	"errors"
	"fmt"
)

var (
	// ErrNotActive is returned by commands that need a running battle.
	ErrNotActive = errors.New("battle not active")
	// ErrWrongPhase is returned by commands issued in a phase that does not accept them.
	ErrWrongPhase = errors.New("command not allowed in current phase")
	// ErrTransitionPending is returned by commands issued while a failed phase
	// transition waits for its retry.
	ErrTransitionPending = errors.New("phase transition pending retry")
	// ErrIllegalTransition reports a transition missing from the transition table.
	ErrIllegalTransition = errors.New("illegal phase transition")
	// ErrUnknownSkill reports a skill missing from the catalog or not known by the caster.
	ErrUnknownSkill = errors.New("unknown skill")
	// ErrInsufficientMP reports a caster unable to pay the skill cost.
	ErrInsufficientMP = errors.New("insufficient mp")
)

// InvalidTargetError reports an action referencing a dead, captured, missing or
// wrong-side unit. The action is skipped and the round continues.
type InvalidTargetError struct {
	CasterID string
	UnitID   string
	Reason   string
}

func (e *InvalidTargetError) Error() string {
	return fmt.Sprintf("invalid target %q for caster %q: %s", e.UnitID, e.CasterID, e.Reason)
}

// PreconditionFailedError reports an unmet phase entry requirement. The machine
// stays in its current phase.
type PreconditionFailedError struct {
	Phase  Phase
	Reason string
}

func (e *PreconditionFailedError) Error() string {
	return fmt.Sprintf("precondition for %s failed: %s", e.Phase, e.Reason)
}

// TransitionError reports an internal fault while changing phase.
type TransitionError struct {
	From    Phase
	To      Phase
	Attempt int
	Err     error
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("transition %s -> %s failed (attempt %d): %v", e.From, e.To, e.Attempt, e.Err)
}

func (e *TransitionError) Unwrap() error {
	return e.Err
}
