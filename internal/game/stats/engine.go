// Package stats derives unit combat stats from templates and levels.
package stats

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/udisondev/beastcall/internal/data"
	"github.com/udisondev/beastcall/internal/model"
)

// Template sanity limits keeping derived stats inside int32.
const (
	MaxAttribute = 10_000
	MaxGrowth    = 10.0
)

// InvalidTemplateError reports unusable stat derivation input.
// DeriveStats returns it together with the fallback block.
type InvalidTemplateError struct {
	TemplateID string
	Level      int32
	Reason     string
}

func (e *InvalidTemplateError) Error() string {
	return fmt.Sprintf("invalid template %q at level %d: %s", e.TemplateID, e.Level, e.Reason)
}

// Engine derives stat blocks using a derivation table.
type Engine struct {
	table  data.DerivationTable
	logger *slog.Logger
}

// NewEngine creates an Engine with the given derivation table. A nil logger
// means slog.Default().
func NewEngine(table data.DerivationTable, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{table: table, logger: logger}
}

// Fallback returns the safe minimal stat block used for invalid input.
func Fallback() model.StatBlock {
	return model.StatBlock{
		MaxHP:      1,
		CurrentHP:  1,
		Speed:      1,
		CritDamage: 1.0,
		Fallback:   true,
	}
}

// Primary computes the primary attributes of t at level:
// floor(midpoint * (1 + (level-1) * growth)).
func (e *Engine) Primary(t *data.UnitTemplate, level int32) data.Attributes {
	grow := func(r data.AttributeRange, rate float64) int32 {
		return int32(math.Floor(r.Midpoint() * (1 + float64(level-1)*rate)))
	}
	return data.Attributes{
		Constitution: grow(t.Attributes.Constitution, t.Growth.Constitution),
		Strength:     grow(t.Attributes.Strength, t.Growth.Strength),
		Agility:      grow(t.Attributes.Agility, t.Growth.Agility),
		Intelligence: grow(t.Attributes.Intelligence, t.Growth.Intelligence),
		Luck:         grow(t.Attributes.Luck, t.Growth.Luck),
	}
}

// DeriveStats computes the combat stats of template t at level.
//
// Invalid input never aborts: the returned block is then Fallback() and the error is
// an *InvalidTemplateError. Callers needing strict validation check the error or
// StatBlock.Fallback.
func (e *Engine) DeriveStats(t *data.UnitTemplate, level int32) (model.StatBlock, error) {
	if err := validate(t, level); err != nil {
		return Fallback(), err
	}

	a := e.Primary(t, level)
	floor := func(w data.Weights) int32 {
		return int32(math.Floor(w.Apply(a)))
	}

	b := model.StatBlock{
		MaxHP:           max(floor(e.table.MaxHP), 1),
		MaxMP:           max(floor(e.table.MaxMP), 0),
		PhysicalAttack:  max(floor(e.table.PhysicalAttack), 0),
		MagicalAttack:   max(floor(e.table.MagicalAttack), 0),
		PhysicalDefense: max(floor(e.table.PhysicalDefense), 0),
		MagicalDefense:  max(floor(e.table.MagicalDefense), 0),
		Speed:           max(floor(e.table.Speed), 1),
		CritRate:        clampRate(e.table.CritRate.Apply(a)),
		CritDamage:      max(e.table.CritDamage.Apply(a), 1.0),
		HitRate:         clampRate(e.table.HitRate.Apply(a)),
		DodgeRate:       clampRate(e.table.DodgeRate.Apply(a)),
	}
	b.CurrentHP = b.MaxHP
	b.CurrentMP = b.MaxMP
	return b, nil
}

func validate(t *data.UnitTemplate, level int32) error {
	if t == nil {
		return &InvalidTemplateError{Level: level, Reason: "nil template"}
	}
	invalid := func(reason string) error {
		return &InvalidTemplateError{TemplateID: t.ID, Level: level, Reason: reason}
	}
	if t.ID == "" {
		return invalid("empty id")
	}
	if level < 1 {
		return invalid("level must be >= 1")
	}
	if level > data.MaxLevel {
		return invalid(fmt.Sprintf("level exceeds %d", data.MaxLevel))
	}
	for _, spec := range t.AttributeSpecs() {
		switch {
		case math.IsNaN(spec.Range.Min) || math.IsNaN(spec.Range.Max) || math.IsNaN(spec.Growth):
			return invalid(spec.Name + " is NaN")
		case spec.Range.Min < 0:
			return invalid(spec.Name + " min is negative")
		case spec.Range.Min > spec.Range.Max:
			return invalid(spec.Name + " min exceeds max")
		case spec.Range.Max > MaxAttribute:
			return invalid(spec.Name + " max exceeds attribute limit")
		case spec.Growth < 0 || spec.Growth > MaxGrowth:
			return invalid(spec.Name + " growth out of range")
		}
	}
	return nil
}

func clampRate(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
