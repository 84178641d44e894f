package stats

import (
	"context"
	"fmt"
	"runtime"
	"slices"

	"golang.org/x/sync/errgroup"

	"github.com/udisondev/beastcall/internal/data"
	"github.com/udisondev/beastcall/internal/model"
)

// Request asks for one unit to be derived.
type Request struct {
	Entry data.RosterEntry
	Side  model.Side
}

// Derived is the outcome of one Request. Err is set when the template was missing
// or invalid; Unit is then built on the fallback block.
type Derived struct {
	Unit *model.BattleUnit
	Err  error
}

// NewUnit derives a battle unit for a roster entry from its catalog template.
// A missing or invalid template still yields a (fallback) unit alongside the error.
func (e *Engine) NewUnit(catalog *data.Catalog, entry data.RosterEntry, side model.Side) (*model.BattleUnit, error) {
	t := catalog.Template(entry.Template)

	var err error
	var block model.StatBlock
	if t == nil {
		block = Fallback()
		err = &InvalidTemplateError{TemplateID: entry.Template, Level: entry.Level, Reason: "unknown template"}
	} else {
		block, err = e.DeriveStats(t, entry.Level)
	}

	name := entry.Name
	if name == "" && t != nil {
		name = t.Name
	}
	if name == "" {
		name = entry.ID
	}

	u := &model.BattleUnit{
		ID:           entry.ID,
		Name:         name,
		Side:         side,
		Level:        entry.Level,
		TemplateID:   entry.Template,
		Stats:        block,
		IsPlayerUnit: side == model.SidePlayer,
		Skills:       []string{data.SkillBasicAttack},
		Experience:   data.GetExpForLevel(entry.Level),
	}
	if t != nil {
		u.Skills = append(u.Skills, t.Skills...)
		u.BaseCaptureRate = t.CaptureRate
	}
	return u, err
}

// DeriveRoster derives all requests concurrently, preserving request order.
//
// A bad template never fails the batch: its entry carries the error and a fallback
// unit. The returned error is non-nil only when ctx is cancelled.
func (e *Engine) DeriveRoster(ctx context.Context, catalog *data.Catalog, reqs []Request) ([]Derived, error) {
	out := make([]Derived, len(reqs))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))

	for i, req := range reqs {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			u, err := e.NewUnit(catalog, req.Entry, req.Side)
			if err != nil {
				e.logger.Warn("unit derived from fallback stats",
					"unit", req.Entry.ID,
					"template", req.Entry.Template,
					"error", err)
			}
			out[i] = Derived{Unit: u, Err: err}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("deriving roster: %w", err)
	}
	return out, nil
}

// RosterRequests flattens a roster into requests, player side first.
func RosterRequests(r data.Roster) []Request {
	reqs := make([]Request, 0, len(r.Player)+len(r.Enemy))
	for _, e := range r.Player {
		reqs = append(reqs, Request{Entry: e, Side: model.SidePlayer})
	}
	for _, e := range r.Enemy {
		reqs = append(reqs, Request{Entry: e, Side: model.SideEnemy})
	}
	return reqs
}

// Units extracts the units of derived entries, keeping order.
func Units(derived []Derived) []*model.BattleUnit {
	units := make([]*model.BattleUnit, 0, len(derived))
	for _, d := range derived {
		units = append(units, d.Unit)
	}
	return slices.Clip(units)
}
