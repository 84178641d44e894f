// Package reward turns finished battles into experience, gold and item drops.
package reward

import (
	"log/slog"

	"github.com/udisondev/beastcall/internal/config"
	"github.com/udisondev/beastcall/internal/data"
	"github.com/udisondev/beastcall/internal/game/battle"
	"github.com/udisondev/beastcall/internal/game/combat"
	"github.com/udisondev/beastcall/internal/model"
)

// Drop is an item granted by a battle. Drops of the same item are merged.
type Drop struct {
	ItemID string `json:"itemId"`
	Count  int32  `json:"count"`
}

// Rewards is what the player side earns from one battle.
type Rewards struct {
	Experience int64  `json:"experience"`
	Gold       int64  `json:"gold"`
	Items      []Drop `json:"items,omitempty"`
}

// Empty reports whether nothing was earned.
func (r Rewards) Empty() bool {
	return r.Experience == 0 && r.Gold == 0 && len(r.Items) == 0
}

// Computer computes battle rewards from enemy templates.
type Computer struct {
	catalog *data.Catalog
	rates   config.Rewards
	rng     combat.Roller
	logger  *slog.Logger
}

// NewComputer creates a Computer. rng drives drop rolls.
func NewComputer(catalog *data.Catalog, rates config.Rewards, rng combat.Roller, logger *slog.Logger) *Computer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Computer{catalog: catalog, rates: rates, rng: rng, logger: logger}
}

// Compute returns the rewards of a battle. Only a victory pays out.
//
// Every defeated or captured enemy grants template base experience and gold times
// its level. Only defeated enemies drop items; each drop entry is rolled on its own,
// so one enemy can drop several items.
func (c *Computer) Compute(outcome battle.Outcome, defeated, captured []model.BattleUnit) Rewards {
	var r Rewards
	if outcome != battle.OutcomeVictory {
		return r
	}

	drops := newDropSet()
	for _, u := range defeated {
		t := c.earn(&r, u)
		if t != nil {
			c.rollDrops(drops, u, t)
		}
	}
	for _, u := range captured {
		c.earn(&r, u)
	}
	r.Items = drops.list()
	return r
}

// ComputeResult is Compute over a battle result.
func (c *Computer) ComputeResult(res battle.Result) Rewards {
	return c.Compute(res.Outcome, res.Defeated, res.Captured)
}

func (c *Computer) earn(r *Rewards, u model.BattleUnit) *data.UnitTemplate {
	if u.Side != model.SideEnemy {
		return nil
	}
	t := c.catalog.Template(u.TemplateID)
	if t == nil {
		c.logger.Warn("no template for defeated unit, no reward",
			"unit", u.ID,
			"template", u.TemplateID)
		return nil
	}

	level := int64(max(u.Level, 1))
	r.Experience += int64(float64(t.BaseExp*level) * c.rates.ExpMultiplier)
	r.Gold += int64(float64(t.BaseGold*level) * c.rates.GoldMultiplier)
	return t
}

// rollDrops rolls every drop entry of t independently.
func (c *Computer) rollDrops(set *dropSet, u model.BattleUnit, t *data.UnitTemplate) {
	for _, d := range t.Drops {
		chance := d.Chance * c.rates.DropChanceMultiplier
		if chance <= 0 {
			continue
		}
		if chance < 1 && c.rng.Float64() >= chance {
			continue
		}

		minCount := max(d.Min, 1)
		maxCount := max(d.Max, minCount)
		count := minCount
		if maxCount > minCount {
			span := maxCount - minCount + 1
			count = minCount + min(int32(c.rng.Float64()*float64(span)), span-1)
		}

		count = int32(float64(count) * c.rates.DropAmountMultiplier)
		if count <= 0 {
			count = 1
		}

		set.add(d.ItemID, count)
		c.logger.Debug("item dropped",
			"unit", u.ID,
			"item", d.ItemID,
			"count", count)
	}
}

// dropSet merges drops by item keeping first-drop order.
type dropSet struct {
	order []string
	count map[string]int32
}

func newDropSet() *dropSet {
	return &dropSet{count: make(map[string]int32)}
}

func (s *dropSet) add(itemID string, n int32) {
	if _, ok := s.count[itemID]; !ok {
		s.order = append(s.order, itemID)
	}
	s.count[itemID] += n
}

func (s *dropSet) list() []Drop {
	if len(s.order) == 0 {
		return nil
	}
	out := make([]Drop, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, Drop{ItemID: id, Count: s.count[id]})
	}
	return out
}
