package reward

import (
	"github.com/udisondev/beastcall/internal/data"
	"github.com/udisondev/beastcall/internal/game/stats"
	"github.com/udisondev/beastcall/internal/model"
)

// Progress is one unit's share of a battle's experience.
type Progress struct {
	UnitID     string          `json:"unitId"`
	Gained     int64           `json:"gained"`
	Experience int64           `json:"experience"`
	OldLevel   int32           `json:"oldLevel"`
	NewLevel   int32           `json:"newLevel"`
	Stats      model.StatBlock `json:"stats"`
}

// LeveledUp reports whether the unit gained at least one level.
func (p Progress) LeveledUp() bool {
	return p.NewLevel > p.OldLevel
}

// Distributor hands out experience to surviving player units.
type Distributor struct {
	catalog *data.Catalog
	engine  *stats.Engine
}

// NewDistributor creates a Distributor re-deriving stats with engine.
func NewDistributor(catalog *data.Catalog, engine *stats.Engine) *Distributor {
	return &Distributor{catalog: catalog, engine: engine}
}

// Distribute splits exp evenly across the player units in survivors; the
// remainder goes to the first units in order. A unit that levels up gets its stats
// re-derived at the new level and is restored to full HP and MP. Units are not
// modified, the new state is returned in Progress.
func (d *Distributor) Distribute(exp int64, survivors []model.BattleUnit) []Progress {
	var players []model.BattleUnit
	for _, u := range survivors {
		if u.Side == model.SidePlayer && u.InBattle() {
			players = append(players, u)
		}
	}
	if len(players) == 0 {
		return nil
	}

	n := int64(len(players))
	share, rest := exp/n, exp%n

	out := make([]Progress, 0, len(players))
	for i, u := range players {
		gained := share
		if int64(i) < rest {
			gained++
		}
		out = append(out, d.grant(u, gained))
	}
	return out
}

func (d *Distributor) grant(u model.BattleUnit, gained int64) Progress {
	p := Progress{
		UnitID:     u.ID,
		Gained:     gained,
		Experience: u.Experience + gained,
		OldLevel:   u.Level,
		NewLevel:   data.GetLevelForExp(u.Experience+gained, u.Level),
		Stats:      u.Stats,
	}
	if !p.LeveledUp() {
		return p
	}

	t := d.catalog.Template(u.TemplateID)
	if t == nil {
		return p
	}
	block, err := d.engine.DeriveStats(t, p.NewLevel)
	if err != nil {
		// Keep the current block rather than the fallback.
		return p
	}
	block.CurrentHP = block.MaxHP
	block.CurrentMP = block.MaxMP
	p.Stats = block
	return p
}
