package testutil

import "sync"

// FixedRoller всегда возвращает одно и то же значение.
// 0.5 даёт нейтральный разброс урона; при hitRate 1 удар всегда попадает,
// при critRate 0 крит не проходит.
type FixedRoller float64

// Float64 implements combat.Roller.
func (r FixedRoller) Float64() float64 { return float64(r) }

// SequenceRoller возвращает значения по порядку, затем повторяет последнее.
// Позволяет точно задать исход бросков hit → variation → crit.
type SequenceRoller struct {
	mu     sync.Mutex
	values []float64
	calls  int
}

// NewSequenceRoller создаёт SequenceRoller. Без значений возвращает 0.5.
func NewSequenceRoller(values ...float64) *SequenceRoller {
	return &SequenceRoller{values: values}
}

// Float64 implements combat.Roller.
func (r *SequenceRoller) Float64() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.calls++
	switch {
	case len(r.values) == 0:
		return 0.5
	case r.calls <= len(r.values):
		return r.values[r.calls-1]
	default:
		return r.values[len(r.values)-1]
	}
}

// Calls возвращает число сделанных бросков.
func (r *SequenceRoller) Calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}
