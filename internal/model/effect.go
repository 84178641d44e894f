package model

// ModType defines how an effect's magnitude combines with a stat.
type ModType uint8

const (
	ModAdd ModType = iota // additive bonus, e.g. +20 physicalAttack
	ModMul                // multiplicative bonus, e.g. x0.5 speed
)

// StatusEffect is a timed modifier attached to a unit.
//
// Active is always set explicitly at creation. Suspended (inactive) effects stay on
// the unit but contribute nothing and do not count down.
type StatusEffect struct {
	BuffID            string  `json:"buffId"`
	SourceSkill       string  `json:"sourceSkill"`
	Magnitude         float64 `json:"magnitude"`
	RemainingDuration int32   `json:"remainingDuration"` // rounds
	Active            bool    `json:"active"`
	Stackable         bool    `json:"stackable,omitempty"`

	Stat       string  `json:"stat,omitempty"`
	Mod        ModType `json:"mod,omitempty"`
	HPPerRound int32   `json:"hpPerRound,omitempty"` // heal (>0) or damage (<0) per resolution
}

// NewStatusEffect creates an effect with an explicit activation flag.
func NewStatusEffect(buffID, sourceSkill string, magnitude float64, duration int32, active bool) StatusEffect {
	return StatusEffect{
		BuffID:            buffID,
		SourceSkill:       sourceSkill,
		Magnitude:         magnitude,
		RemainingDuration: duration,
		Active:            active,
	}
}
