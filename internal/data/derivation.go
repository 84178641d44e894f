package data

// Weights is one row of the derivation table: a derived stat as a weighted sum
// of primary attributes plus a base.
type Weights struct {
	Base         float64 `yaml:"base"`
	Constitution float64 `yaml:"constitution"`
	Strength     float64 `yaml:"strength"`
	Agility      float64 `yaml:"agility"`
	Intelligence float64 `yaml:"intelligence"`
	Luck         float64 `yaml:"luck"`
}

// Apply computes the weighted sum for the given attributes.
func (w Weights) Apply(a Attributes) float64 {
	return w.Base +
		w.Constitution*float64(a.Constitution) +
		w.Strength*float64(a.Strength) +
		w.Agility*float64(a.Agility) +
		w.Intelligence*float64(a.Intelligence) +
		w.Luck*float64(a.Luck)
}

// DerivationTable maps every derived combat stat to its weights.
type DerivationTable struct {
	MaxHP           Weights `yaml:"max_hp"`
	MaxMP           Weights `yaml:"max_mp"`
	PhysicalAttack  Weights `yaml:"physical_attack"`
	MagicalAttack   Weights `yaml:"magical_attack"`
	PhysicalDefense Weights `yaml:"physical_defense"`
	MagicalDefense  Weights `yaml:"magical_defense"`
	Speed           Weights `yaml:"speed"`
	CritRate        Weights `yaml:"crit_rate"`
	CritDamage      Weights `yaml:"crit_damage"`
	HitRate         Weights `yaml:"hit_rate"`
	DodgeRate       Weights `yaml:"dodge_rate"`
}

// DefaultDerivationTable returns the stock derivation weights.
func DefaultDerivationTable() DerivationTable {
	return DerivationTable{
		MaxHP:           Weights{Base: 20, Constitution: 10, Strength: 2},
		MaxMP:           Weights{Base: 5, Intelligence: 5, Constitution: 1},
		PhysicalAttack:  Weights{Strength: 2, Agility: 0.5},
		MagicalAttack:   Weights{Intelligence: 2, Luck: 0.5},
		PhysicalDefense: Weights{Constitution: 1.5, Strength: 0.5},
		MagicalDefense:  Weights{Intelligence: 1.5, Constitution: 0.5},
		Speed:           Weights{Agility: 1, Luck: 0.25},
		CritRate:        Weights{Base: 0.05, Luck: 0.002},
		CritDamage:      Weights{Base: 1.5, Strength: 0.002},
		HitRate:         Weights{Base: 0.9, Agility: 0.002},
		DodgeRate:       Weights{Base: 0.02, Agility: 0.001, Luck: 0.001},
	}
}
