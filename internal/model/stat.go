package model

// Stat names used by status effect modifiers and the derivation table.
const (
	StatMaxHP            = "maxHp"
	StatMaxMP            = "maxMp"
	StatPhysicalAttack   = "physicalAttack"
	StatMagicalAttack    = "magicalAttack"
	StatPhysicalDefense  = "physicalDefense"
	StatMagicalDefense   = "magicalDefense"
	StatSpeed            = "speed"
	StatCritRate         = "critRate"
	StatCritDamage       = "critDamage"
	StatHitRate          = "hitRate"
	StatDodgeRate        = "dodgeRate"
	StatFixedReduction   = "fixedReduction"
	StatPercentReduction = "percentReduction"
)

// StatBlock holds a unit's combat stats.
type StatBlock struct {
	MaxHP     int32 `yaml:"max_hp" json:"maxHp"`
	CurrentHP int32 `yaml:"current_hp" json:"currentHp"`
	MaxMP     int32 `yaml:"max_mp" json:"maxMp"`
	CurrentMP int32 `yaml:"current_mp" json:"currentMp"`

	PhysicalAttack  int32 `yaml:"physical_attack" json:"physicalAttack"`
	MagicalAttack   int32 `yaml:"magical_attack" json:"magicalAttack"`
	PhysicalDefense int32 `yaml:"physical_defense" json:"physicalDefense"`
	MagicalDefense  int32 `yaml:"magical_defense" json:"magicalDefense"`
	Speed           int32 `yaml:"speed" json:"speed"`

	CritRate   float64 `yaml:"crit_rate" json:"critRate"`
	CritDamage float64 `yaml:"crit_damage" json:"critDamage"` // multiplier, >= 1.0
	HitRate    float64 `yaml:"hit_rate" json:"hitRate"`
	DodgeRate  float64 `yaml:"dodge_rate" json:"dodgeRate"`

	// Fallback marks a block produced from an invalid template.
	Fallback bool `yaml:"-" json:"fallback,omitempty"`
}

// Get returns the named stat as float64. Unknown names return 0.
// Reductions are not part of the block and always return 0.
func (b StatBlock) Get(stat string) float64 {
	switch stat {
	case StatMaxHP:
		return float64(b.MaxHP)
	case StatMaxMP:
		return float64(b.MaxMP)
	case StatPhysicalAttack:
		return float64(b.PhysicalAttack)
	case StatMagicalAttack:
		return float64(b.MagicalAttack)
	case StatPhysicalDefense:
		return float64(b.PhysicalDefense)
	case StatMagicalDefense:
		return float64(b.MagicalDefense)
	case StatSpeed:
		return float64(b.Speed)
	case StatCritRate:
		return b.CritRate
	case StatCritDamage:
		return b.CritDamage
	case StatHitRate:
		return b.HitRate
	case StatDodgeRate:
		return b.DodgeRate
	default:
		return 0
	}
}

// Set writes the named stat, truncating to int32 for integer stats.
// Unknown names are ignored.
func (b *StatBlock) Set(stat string, v float64) {
	switch stat {
	case StatMaxHP:
		b.MaxHP = int32(v)
	case StatMaxMP:
		b.MaxMP = int32(v)
	case StatPhysicalAttack:
		b.PhysicalAttack = int32(v)
	case StatMagicalAttack:
		b.MagicalAttack = int32(v)
	case StatPhysicalDefense:
		b.PhysicalDefense = int32(v)
	case StatMagicalDefense:
		b.MagicalDefense = int32(v)
	case StatSpeed:
		b.Speed = int32(v)
	case StatCritRate:
		b.CritRate = v
	case StatCritDamage:
		b.CritDamage = v
	case StatHitRate:
		b.HitRate = v
	case StatDodgeRate:
		b.DodgeRate = v
	}
}

// ModifiableStats lists the stats status effects may modify, in a fixed order.
var ModifiableStats = []string{
	StatPhysicalAttack,
	StatMagicalAttack,
	StatPhysicalDefense,
	StatMagicalDefense,
	StatSpeed,
	StatCritRate,
	StatCritDamage,
	StatHitRate,
	StatDodgeRate,
}
