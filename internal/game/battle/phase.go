package battle

import (
	"fmt"
	"slices"
)

// Phase is a state of the battle machine. RoundStart through Resolution are the
// sub-states of the active phase.
type Phase uint8

const (
	PhaseIdle Phase = iota
	PhaseInitialization
	PhaseRoundStart
	PhasePreparation
	PhaseExecution
	PhaseResolution
	PhaseEnd
)

var phaseNames = [...]string{
	PhaseIdle:           "idle",
	PhaseInitialization: "initialization",
	PhaseRoundStart:     "round_start",
	PhasePreparation:    "preparation",
	PhaseExecution:      "execution",
	PhaseResolution:     "resolution",
	PhaseEnd:            "end",
}

func (p Phase) String() string {
	if int(p) < len(phaseNames) {
		return phaseNames[p]
	}
	return fmt.Sprintf("phase(%d)", p)
}

// MarshalText encodes the phase by name.
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// Active reports whether p is one of the round sub-states.
func (p Phase) Active() bool {
	return p >= PhaseRoundStart && p <= PhaseResolution
}

// transitions is the exact transition table. Any phase may additionally be forced
// to end (fatal error, reset, force end).
var transitions = map[Phase][]Phase{
	PhaseIdle:           {PhaseInitialization},
	PhaseInitialization: {PhaseRoundStart},
	PhaseRoundStart:     {PhasePreparation},
	PhasePreparation:    {PhaseExecution},
	PhaseExecution:      {PhaseResolution},
	PhaseResolution:     {PhaseRoundStart, PhaseEnd},
	PhaseEnd:            {PhaseIdle},
}

// timeoutNext maps a sub-state to the phase forced on timeout expiry.
var timeoutNext = map[Phase]Phase{
	PhasePreparation: PhaseExecution,
	PhaseExecution:   PhaseResolution,
	PhaseResolution:  PhaseRoundStart,
}

func canTransition(from, to Phase) bool {
	return slices.Contains(transitions[from], to)
}
