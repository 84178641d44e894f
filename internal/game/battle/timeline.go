package battle

import (
	"slices"
	"sync"

	"github.com/udisondev/beastcall/internal/model"
)

// Cue is one presentation step, e.g. an attack animation followed by a damage number.
type Cue struct {
	Seq    uint64
	Round  int32
	Type   EventType
	Action *ActionCue // set for resolved actions
	Unit   *UnitEvent // set for defeats and captures
	Result *Result    // set for battle end
}

// ActionCue is the presentation view of a resolved action.
type ActionCue struct {
	CasterID string
	SkillID  string
	Targets  []TargetCue
}

// TargetCue is the per-target part of an ActionCue.
type TargetCue struct {
	TargetID string
	Damage   int32
	Heal     int32
	Missed   bool
	Crit     bool
	Captured bool
}

// Timeline queues presentation cues for resolved combat events.
//
// It observes a machine and never blocks it: cues accumulate until the presentation
// layer drains them, at its own pace. Safe for concurrent use.
type Timeline struct {
	mu   sync.Mutex
	cues []Cue
}

// NewTimeline creates an empty Timeline.
func NewTimeline() *Timeline {
	return &Timeline{}
}

// OnEvent implements Observer. Transitions and skips produce no cue.
func (t *Timeline) OnEvent(e Event) {
	c := Cue{Seq: e.Seq, Round: e.Round, Type: e.Type}

	switch p := e.Payload.(type) {
	case model.ActionResult:
		if e.Type != EventActionResolved {
			return
		}
		c.Action = newActionCue(p)
	case UnitEvent:
		c.Unit = &p
	case Result:
		c.Result = &p
	default:
		return
	}

	t.mu.Lock()
	t.cues = append(t.cues, c)
	t.mu.Unlock()
}

// Drain removes and returns all queued cues in event order.
func (t *Timeline) Drain() []Cue {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := t.cues
	t.cues = nil
	return out
}

// Len returns the number of queued cues.
func (t *Timeline) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.cues)
}

// Peek returns a copy of queued cues without removing them.
func (t *Timeline) Peek() []Cue {
	t.mu.Lock()
	defer t.mu.Unlock()
	return slices.Clone(t.cues)
}

func newActionCue(r model.ActionResult) *ActionCue {
	c := &ActionCue{CasterID: r.CasterID, SkillID: r.SkillID}
	for _, t := range r.Targets {
		c.Targets = append(c.Targets, TargetCue{
			TargetID: t.TargetID,
			Damage:   t.Damage,
			Heal:     t.Heal,
			Missed:   t.Missed,
			Crit:     t.Crit,
			Captured: t.Captured,
		})
	}
	return c
}
