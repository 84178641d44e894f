package battle

import (
	"time"

	"github.com/google/uuid"

	"github.com/udisondev/beastcall/internal/model"
)

// EventType names an event on the battle stream.
type EventType string

const (
	EventTransition     EventType = "transition"
	EventActionResolved EventType = "action_resolved"
	EventActionSkipped  EventType = "action_skipped"
	EventUnitDefeated   EventType = "unit_defeated"
	EventUnitCaptured   EventType = "unit_captured"
	EventBattleEnded    EventType = "battle_ended"
)

// Event is one entry of the battle stream.
//
// Payload by type:
//   - action_resolved, action_skipped: model.ActionResult
//   - unit_defeated, unit_captured: UnitEvent
//   - battle_ended: Result
//   - transition: nil
type Event struct {
	Seq      uint64    `json:"seq"`
	Type     EventType `json:"type"`
	BattleID uuid.UUID `json:"battleId"`
	Before   Phase     `json:"phaseBefore"`
	After    Phase     `json:"phaseAfter"`
	Round    int32     `json:"round"`
	At       time.Time `json:"at"`
	Payload  any       `json:"payload,omitempty"`
}

// UnitEvent identifies the unit a defeat or capture happened to.
type UnitEvent struct {
	UnitID string     `json:"unitId"`
	Name   string     `json:"name"`
	Side   model.Side `json:"side"`
	By     string     `json:"by,omitempty"` // caster or buff responsible
}

// Observer receives every event of a machine, synchronously, in registration order.
//
// OnEvent runs outside the machine lock, so observers may read Snapshot and issue
// commands. Events raised by such a command are delivered once the current event
// has reached every observer.
type Observer interface {
	OnEvent(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

func (f ObserverFunc) OnEvent(e Event) { f(e) }
