package battle

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/udisondev/beastcall/internal/data"
	"github.com/udisondev/beastcall/internal/game/combat"
	"github.com/udisondev/beastcall/internal/game/skill"
	"github.com/udisondev/beastcall/internal/model"
)

// Pipeline resolves one action at a time against the battle state.
type Pipeline struct {
	catalog *data.Catalog
	calc    *combat.Calculator
	buffs   *skill.Registry
	logger  *slog.Logger
}

// NewPipeline creates a Pipeline.
func NewPipeline(catalog *data.Catalog, calc *combat.Calculator, buffs *skill.Registry, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{catalog: catalog, calc: calc, buffs: buffs, logger: logger}
}

// Speed returns u's speed with active modifiers. Used for turn order.
func (p *Pipeline) Speed(u *model.BattleUnit) int32 {
	return p.buffs.Effective(u).Speed
}

// Resolve validates and applies action a to s, appending the record to s.History.
//
// Steps: validate caster, skill, MP and targets; pay MP; per target roll hit, apply
// damage or healing, apply status effects and evaluate capture; append history.
// An invalid action is not applied: the returned result is marked Skipped, the error
// says why, and the history is left untouched.
//
// Auto actions whose single target left battle are retargeted to the first valid
// unit in turn order instead of being skipped.
func (p *Pipeline) Resolve(a model.Action, s *State) (model.ActionResult, error) {
	res := model.ActionResult{
		Round:    s.Round,
		Seq:      len(s.History) + 1,
		CasterID: a.CasterID,
		SkillID:  a.SkillID,
		Auto:     a.Auto,
	}

	sk, targets, err := p.validate(a, s, a.Auto)
	if err != nil {
		res.Skipped = true
		res.Reason = err.Error()
		p.logger.Info("action skipped",
			"round", s.Round,
			"caster", a.CasterID,
			"skill", a.SkillID,
			"error", err)
		return res, err
	}

	caster := s.Unit(a.CasterID)
	if sk.MPCost > 0 {
		caster.SetCurrentMP(caster.Stats.CurrentMP - sk.MPCost)
		res.MPSpent = sk.MPCost
	}

	for _, target := range targets {
		res.Targets = append(res.Targets, p.resolveTarget(sk, caster, target))
	}

	for _, e := range sk.Effects {
		if e.OnCaster && caster.InBattle() {
			p.buffs.Apply(caster, e.NewEffect(sk.ID))
			res.CasterBuffs = append(res.CasterBuffs, e.BuffID)
		}
	}

	s.History = append(s.History, res)

	p.logger.Debug("action resolved",
		"round", s.Round,
		"caster", a.CasterID,
		"skill", a.SkillID,
		"targets", len(res.Targets),
		"damage", res.TotalDamage())
	return res, nil
}

func (p *Pipeline) resolveTarget(sk *data.SkillTemplate, caster, target *model.BattleUnit) model.TargetOutcome {
	out := model.TargetOutcome{TargetID: target.ID}

	switch {
	case sk.IsDamaging():
		typ := combat.Physical
		if sk.Kind == data.KindMagical {
			typ = combat.Magical
		}
		power := sk.Power
		if power <= 0 {
			power = 1
		}

		h := p.calc.Strike(typ, p.combatant(caster), p.combatant(target), power)
		if h.Missed {
			out.Missed = true
			return out
		}
		out.Crit = h.Crit
		out.Damage = target.ApplyDamage(h.Damage)
		out.Defeated = target.IsDead()

	case sk.Kind == data.KindSupport && sk.Power > 0:
		atk := p.buffs.Effective(caster).MagicalAttack
		amount := max(int32(math.Floor(sk.Power*float64(atk))), 1)
		out.Heal = target.Heal(amount)
	}

	if out.Defeated {
		return out
	}

	for _, e := range sk.Effects {
		if e.OnCaster {
			continue
		}
		p.buffs.Apply(target, e.NewEffect(sk.ID))
		out.AppliedBuffs = append(out.AppliedBuffs, e.BuffID)
	}

	if sk.Kind == data.KindCapture && caster.Side == model.SidePlayer && target.Side != caster.Side {
		rate := p.calc.CaptureRate(sk.CaptureRate, target.BaseCaptureRate)
		ok, chance := p.calc.RollCapture(rate, target.Stats.CurrentHP, target.Stats.MaxHP)
		out.CaptureTried = true
		out.Captured = ok
		if ok {
			target.Captured = true
		}
		p.logger.Debug("capture attempt",
			"caster", caster.ID,
			"target", target.ID,
			"chance", chance,
			"captured", ok)
	}
	return out
}

func (p *Pipeline) combatant(u *model.BattleUnit) combat.Combatant {
	fixed, percent := p.buffs.Reductions(u)
	return combat.Combatant{
		Stats:            p.buffs.Effective(u),
		FixedReduction:   fixed,
		PercentReduction: percent,
	}
}

// validate checks a against s without changing anything and returns the skill and
// the units it will affect. With retarget set, a single target that left battle is
// replaced by the first valid unit in turn order.
func (p *Pipeline) validate(a model.Action, s *State, retarget bool) (*data.SkillTemplate, []*model.BattleUnit, error) {
	caster := s.Unit(a.CasterID)
	if caster == nil {
		return nil, nil, &InvalidTargetError{CasterID: a.CasterID, UnitID: a.CasterID, Reason: "unknown caster"}
	}
	if !caster.InBattle() {
		return nil, nil, &InvalidTargetError{CasterID: a.CasterID, UnitID: a.CasterID, Reason: "caster out of battle"}
	}

	sk := p.catalog.Skill(a.SkillID)
	if sk == nil {
		return nil, nil, fmt.Errorf("%w %q", ErrUnknownSkill, a.SkillID)
	}
	if !builtin(sk.ID) && !caster.HasSkill(sk.ID) {
		return nil, nil, fmt.Errorf("%w %q: not known by %s", ErrUnknownSkill, sk.ID, caster.ID)
	}
	if caster.Stats.CurrentMP < sk.MPCost {
		return nil, nil, fmt.Errorf("%w: %s has %d, %q costs %d",
			ErrInsufficientMP, caster.ID, caster.Stats.CurrentMP, sk.ID, sk.MPCost)
	}

	targets, err := p.targets(sk, caster, a, s, retarget)
	if err != nil {
		return nil, nil, err
	}
	return sk, targets, nil
}

func (p *Pipeline) targets(sk *data.SkillTemplate, caster *model.BattleUnit, a model.Action, s *State, retarget bool) ([]*model.BattleUnit, error) {
	invalid := func(id, reason string) error {
		return &InvalidTargetError{CasterID: caster.ID, UnitID: id, Reason: reason}
	}

	switch sk.Target {
	case data.TargetNone:
		return nil, nil
	case data.TargetSelf:
		return []*model.BattleUnit{caster}, nil
	case data.TargetAllOpponents:
		units := s.LivingOn(caster.Side.Opponent())
		if len(units) == 0 {
			return nil, invalid("", "no opponents left")
		}
		return units, nil
	case data.TargetAllAllies:
		return s.LivingOn(caster.Side), nil
	}

	side := caster.Side.Opponent()
	if sk.Target == data.TargetAlly {
		side = caster.Side
	}

	var reason, id string
	if len(a.TargetIDs) == 0 {
		reason = "no target"
	} else {
		id = a.TargetIDs[0]
		switch u := s.Unit(id); {
		case u == nil:
			reason = "unknown unit"
		case !u.InBattle():
			reason = "target out of battle"
		case u.Side != side:
			reason = fmt.Sprintf("target on %s side", u.Side)
		default:
			return []*model.BattleUnit{u}, nil
		}
	}

	if retarget {
		if order := OrderUnits(s.LivingOn(side), p.Speed); len(order) > 0 {
			p.logger.Debug("auto action retargeted", "caster", caster.ID, "from", id, "to", order[0].ID)
			return order[:1], nil
		}
	}
	return nil, invalid(id, reason)
}

func builtin(skillID string) bool {
	return skillID == data.SkillBasicAttack || skillID == data.SkillWait
}
