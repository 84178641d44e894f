package data

// MaxLevel is the maximum unit level.
const MaxLevel = 100

// ExperienceTable holds cumulative experience required to reach each level.
// Index = level (0-101). Levels 0 and 1 require 0 XP. Cubic curve: level^3.
var ExperienceTable = func() [MaxLevel + 2]int64 {
	var t [MaxLevel + 2]int64
	for level := 2; level <= MaxLevel+1; level++ {
		l := int64(level)
		t[level] = l * l * l
	}
	return t
}()

// GetExpForLevel returns cumulative XP required to reach the given level.
// Returns 0 for level <= 1. Returns max XP for level > MaxLevel.
func GetExpForLevel(level int32) int64 {
	if level <= 1 {
		return 0
	}
	if level > MaxLevel+1 {
		level = MaxLevel + 1
	}
	return ExperienceTable[level]
}

// GetLevelForExp returns the level corresponding to the given cumulative XP.
// Scans upward from startLevel to find the highest level whose threshold is <= exp.
func GetLevelForExp(exp int64, startLevel int32) int32 {
	if startLevel < 1 {
		startLevel = 1
	}
	level := startLevel
	for level < MaxLevel {
		if ExperienceTable[level+1] > exp {
			break
		}
		level++
	}
	return level
}
