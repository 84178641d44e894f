package combat

import "math"

// CaptureChance returns clamp(baseRate * (2 - hp/maxHP), 0, 1).
// A target at full HP yields baseRate; one near death approaches twice baseRate.
// Invalid targets (hp <= 0 or maxHP <= 0) have zero chance.
func CaptureChance(baseRate float64, hp, maxHP int32) float64 {
	if hp <= 0 || maxHP <= 0 || baseRate <= 0 || math.IsNaN(baseRate) {
		return 0
	}
	ratio := math.Min(float64(hp)/float64(maxHP), 1)
	return math.Max(0, math.Min(1, baseRate*(2-ratio)))
}

// CaptureRate picks the first positive rate: skill, then template, then the
// configured default.
func (c *Calculator) CaptureRate(skillRate, templateRate float64) float64 {
	switch {
	case skillRate > 0:
		return skillRate
	case templateRate > 0:
		return templateRate
	default:
		return c.cfg.BaseCaptureRate
	}
}

// RollCapture evaluates one capture attempt. Failure is a normal outcome, not an error.
func (c *Calculator) RollCapture(baseRate float64, hp, maxHP int32) (bool, float64) {
	chance := CaptureChance(baseRate, hp, maxHP)
	if chance <= 0 {
		return false, 0
	}
	return c.rng.Float64() < chance, chance
}
