package config

import (
	"fmt"
	"time"
)

// Timeout actions substituted for units that did not submit in time.
const (
	TimeoutActionBasicAttack = "basic_attack"
	TimeoutActionWait        = "wait"
)

// Damage holds the fixed combat constants used by the damage calculator.
type Damage struct {
	// Balance constants: damage = k * atk / (atk + def) * ...
	PhysicalBalance float64 `yaml:"physical_balance" env:"PHYSICAL_BALANCE"`
	MagicalBalance  float64 `yaml:"magical_balance" env:"MAGICAL_BALANCE"`

	// Variation is the +/- random damage band, 0.05 means x[0.95, 1.05].
	Variation float64 `yaml:"variation" env:"VARIATION"`

	// Hit chance = clamp(hitRate - dodgeRate, MinHitChance, MaxHitChance).
	MinHitChance float64 `yaml:"min_hit_chance" env:"MIN_HIT_CHANCE"`
	MaxHitChance float64 `yaml:"max_hit_chance" env:"MAX_HIT_CHANCE"`

	// DefaultCritDamage replaces unit crit multipliers below 1.0.
	DefaultCritDamage float64 `yaml:"default_crit_damage" env:"DEFAULT_CRIT_DAMAGE"`

	// BaseCaptureRate applies when neither skill nor template define one.
	BaseCaptureRate float64 `yaml:"base_capture_rate" env:"BASE_CAPTURE_RATE"`

	// MinDamage is the floor for a landed damaging hit.
	MinDamage int32 `yaml:"min_damage" env:"MIN_DAMAGE"`
}

// Timeouts holds per sub-state timeouts. Zero disables the timeout for that phase.
type Timeouts struct {
	Preparation time.Duration `yaml:"preparation" env:"PREPARATION"`
	Execution   time.Duration `yaml:"execution" env:"EXECUTION"`
	Resolution  time.Duration `yaml:"resolution" env:"RESOLUTION"`
}

// Recovery is the retry policy for failed phase transitions.
type Recovery struct {
	Enabled    bool          `yaml:"enabled" env:"ENABLED"`
	MaxRetries int           `yaml:"max_retries" env:"MAX_RETRIES"`
	RetryDelay time.Duration `yaml:"retry_delay" env:"RETRY_DELAY"`
}

// Rewards holds reward rate multipliers (x1 by default).
type Rewards struct {
	ExpMultiplier        float64 `yaml:"exp_multiplier" env:"EXP_MULTIPLIER"`
	GoldMultiplier       float64 `yaml:"gold_multiplier" env:"GOLD_MULTIPLIER"`
	DropChanceMultiplier float64 `yaml:"drop_chance_multiplier" env:"DROP_CHANCE_MULTIPLIER"`
	DropAmountMultiplier float64 `yaml:"drop_amount_multiplier" env:"DROP_AMOUNT_MULTIPLIER"`
}

// Battle holds everything the battle state machine is constructed with.
type Battle struct {
	MaxRounds     int32  `yaml:"max_rounds" env:"MAX_ROUNDS"`
	TimeoutAction string `yaml:"timeout_action" env:"TIMEOUT_ACTION"`

	Damage   Damage   `yaml:"damage" envPrefix:"DAMAGE_"`
	Timeouts Timeouts `yaml:"timeouts" envPrefix:"TIMEOUT_"`
	Recovery Recovery `yaml:"recovery" envPrefix:"RECOVERY_"`
	Rewards  Rewards  `yaml:"rewards" envPrefix:"REWARDS_"`
}

// DefaultDamage returns the stock combat constants.
func DefaultDamage() Damage {
	return Damage{
		PhysicalBalance:   1000,
		MagicalBalance:    1200,
		Variation:         0.05,
		MinHitChance:      0.05,
		MaxHitChance:      1.0,
		DefaultCritDamage: 1.5,
		BaseCaptureRate:   0.3,
		MinDamage:         1,
	}
}

// DefaultRewards returns x1 reward rates.
func DefaultRewards() Rewards {
	return Rewards{
		ExpMultiplier:        1.0,
		GoldMultiplier:       1.0,
		DropChanceMultiplier: 1.0,
		DropAmountMultiplier: 1.0,
	}
}

// DefaultBattle returns Battle config with sensible defaults.
func DefaultBattle() Battle {
	return Battle{
		MaxRounds:     30,
		TimeoutAction: TimeoutActionBasicAttack,
		Damage:        DefaultDamage(),
		Timeouts: Timeouts{
			Preparation: 30 * time.Second,
			Execution:   10 * time.Second,
			Resolution:  5 * time.Second,
		},
		Recovery: Recovery{
			Enabled:    true,
			MaxRetries: 3,
			RetryDelay: 50 * time.Millisecond,
		},
		Rewards: DefaultRewards(),
	}
}

// Validate reports the first inconsistent setting.
func (b Battle) Validate() error {
	if b.MaxRounds < 1 {
		return fmt.Errorf("max_rounds must be >= 1, got %d", b.MaxRounds)
	}
	switch b.TimeoutAction {
	case TimeoutActionBasicAttack, TimeoutActionWait:
	default:
		return fmt.Errorf("unknown timeout_action %q", b.TimeoutAction)
	}
	if b.Damage.PhysicalBalance <= 0 || b.Damage.MagicalBalance <= 0 {
		return fmt.Errorf("balance constants must be positive")
	}
	if b.Damage.Variation < 0 || b.Damage.Variation >= 1 {
		return fmt.Errorf("damage variation must be in [0, 1), got %v", b.Damage.Variation)
	}
	if b.Damage.MinHitChance > b.Damage.MaxHitChance {
		return fmt.Errorf("min_hit_chance %v exceeds max_hit_chance %v", b.Damage.MinHitChance, b.Damage.MaxHitChance)
	}
	if b.Recovery.MaxRetries < 0 {
		return fmt.Errorf("recovery.max_retries must be >= 0")
	}
	return nil
}
