package battle

import (
	"cmp"
	"slices"

	"github.com/udisondev/beastcall/internal/model"
)

// SpeedFunc returns the speed a unit acts with this round.
type SpeedFunc func(*model.BattleUnit) int32

// BaseSpeed reads the unmodified speed stat.
func BaseSpeed(u *model.BattleUnit) int32 {
	return u.Stats.Speed
}

// OrderUnits returns the units still in battle sorted by speed, fastest first.
// Equal speeds keep input order, so passing units in registration order gives a
// deterministic, idempotent order. The input slice is not modified.
func OrderUnits(units []*model.BattleUnit, speed SpeedFunc) []*model.BattleUnit {
	if speed == nil {
		speed = BaseSpeed
	}

	type entry struct {
		unit  *model.BattleUnit
		speed int32
	}
	entries := make([]entry, 0, len(units))
	for _, u := range units {
		if u != nil && u.InBattle() {
			entries = append(entries, entry{u, speed(u)})
		}
	}

	slices.SortStableFunc(entries, func(a, b entry) int {
		return cmp.Compare(b.speed, a.speed)
	})

	out := make([]*model.BattleUnit, len(entries))
	for i, e := range entries {
		out[i] = e.unit
	}
	return out
}
