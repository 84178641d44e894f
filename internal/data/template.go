package data

// AttributeRange is the level-1 roll range of one primary attribute.
type AttributeRange struct {
	Min float64 `yaml:"min"`
	Max float64 `yaml:"max"`
}

// Midpoint returns the centre of the range.
func (r AttributeRange) Midpoint() float64 {
	return (r.Min + r.Max) / 2
}

// AttributeRanges groups the five primary attribute ranges of a template.
type AttributeRanges struct {
	Constitution AttributeRange `yaml:"constitution"`
	Strength     AttributeRange `yaml:"strength"`
	Agility      AttributeRange `yaml:"agility"`
	Intelligence AttributeRange `yaml:"intelligence"`
	Luck         AttributeRange `yaml:"luck"`
}

// Growth holds per-level growth rates of the primary attributes.
// value(level) = midpoint * (1 + (level-1) * rate)
type Growth struct {
	Constitution float64 `yaml:"constitution"`
	Strength     float64 `yaml:"strength"`
	Agility      float64 `yaml:"agility"`
	Intelligence float64 `yaml:"intelligence"`
	Luck         float64 `yaml:"luck"`
}

// Attributes are the primary attributes of a unit at a given level.
type Attributes struct {
	Constitution int32
	Strength     int32
	Agility      int32
	Intelligence int32
	Luck         int32
}

// DropEntry is one independent item roll in a template's drop table.
type DropEntry struct {
	ItemID string  `yaml:"item_id"`
	Chance float64 `yaml:"chance"` // 0..1
	Min    int32   `yaml:"min"`
	Max    int32   `yaml:"max"`
}

// UnitTemplate is the immutable species definition units are derived from.
// Shared across battles, do not modify after loading.
type UnitTemplate struct {
	ID         string          `yaml:"id"`
	Name       string          `yaml:"name"`
	Attributes AttributeRanges `yaml:"attributes"`
	Growth     Growth          `yaml:"growth"`
	Skills     []string        `yaml:"skills"`

	CaptureRate float64     `yaml:"capture_rate"`
	BaseExp     int64       `yaml:"base_exp"`
	BaseGold    int64       `yaml:"base_gold"`
	Drops       []DropEntry `yaml:"drops"`
}

// AttributeSpec pairs an attribute range with its growth rate.
type AttributeSpec struct {
	Name   string
	Range  AttributeRange
	Growth float64
}

// AttributeSpecs lists the template's attributes in a fixed order.
func (t *UnitTemplate) AttributeSpecs() []AttributeSpec {
	return []AttributeSpec{
		{"constitution", t.Attributes.Constitution, t.Growth.Constitution},
		{"strength", t.Attributes.Strength, t.Growth.Strength},
		{"agility", t.Attributes.Agility, t.Growth.Agility},
		{"intelligence", t.Attributes.Intelligence, t.Growth.Intelligence},
		{"luck", t.Attributes.Luck, t.Growth.Luck},
	}
}
