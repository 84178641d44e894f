package data

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed catalog_default.yaml
var defaultCatalogYAML []byte

// Catalog holds unit templates, skills and the derivation table of one game data set.
// Constructed once and injected; read-only after loading.
type Catalog struct {
	Templates  map[string]*UnitTemplate
	Skills     map[string]*SkillTemplate
	Derivation DerivationTable
}

type catalogFile struct {
	Derivation *DerivationTable `yaml:"derivation"`
	Templates  []*UnitTemplate  `yaml:"templates"`
	Skills     []*SkillTemplate `yaml:"skills"`
}

// NewCatalog returns a catalog with the built-in skills and default derivation table.
func NewCatalog() *Catalog {
	c := &Catalog{
		Templates:  make(map[string]*UnitTemplate),
		Skills:     make(map[string]*SkillTemplate),
		Derivation: DefaultDerivationTable(),
	}
	for _, s := range BuiltinSkills() {
		c.Skills[s.ID] = s
	}
	return c
}

// DefaultCatalog returns the embedded starter data set.
func DefaultCatalog() *Catalog {
	c, err := ParseCatalog(defaultCatalogYAML)
	if err != nil {
		panic("parse embedded catalog: " + err.Error())
	}
	return c
}

// LoadCatalog loads a catalog from a YAML file.
func LoadCatalog(path string) (*Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading catalog %s: %w", path, err)
	}
	c, err := ParseCatalog(raw)
	if err != nil {
		return nil, fmt.Errorf("parsing catalog %s: %w", path, err)
	}
	return c, nil
}

// ParseCatalog decodes catalog YAML and validates cross references.
func ParseCatalog(raw []byte) (*Catalog, error) {
	var f catalogFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("decoding catalog: %w", err)
	}

	c := NewCatalog()
	if f.Derivation != nil {
		c.Derivation = *f.Derivation
	}
	for _, s := range f.Skills {
		if err := c.AddSkill(s); err != nil {
			return nil, err
		}
	}
	for _, t := range f.Templates {
		if err := c.AddTemplate(t); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// AddSkill registers a skill. Built-in skills may not be redefined.
func (c *Catalog) AddSkill(s *SkillTemplate) error {
	if s == nil || s.ID == "" {
		return fmt.Errorf("skill without id")
	}
	if _, dup := c.Skills[s.ID]; dup {
		return fmt.Errorf("duplicate skill %q", s.ID)
	}
	switch s.Kind {
	case KindPhysical, KindMagical, KindSupport, KindCapture, KindWait:
	default:
		return fmt.Errorf("skill %q: unknown kind %q", s.ID, s.Kind)
	}
	if s.Target == "" {
		s.Target = TargetSingle
	}
	for _, e := range s.Effects {
		if e.BuffID == "" {
			return fmt.Errorf("skill %q: effect without buff_id", s.ID)
		}
		if e.Duration < 1 {
			return fmt.Errorf("skill %q: effect %q duration must be >= 1", s.ID, e.BuffID)
		}
	}
	c.Skills[s.ID] = s
	return nil
}

// AddTemplate registers a unit template. Every skill it lists must already exist.
func (c *Catalog) AddTemplate(t *UnitTemplate) error {
	if t == nil || t.ID == "" {
		return fmt.Errorf("template without id")
	}
	if _, dup := c.Templates[t.ID]; dup {
		return fmt.Errorf("duplicate template %q", t.ID)
	}
	for _, id := range t.Skills {
		if _, ok := c.Skills[id]; !ok {
			return fmt.Errorf("template %q: unknown skill %q", t.ID, id)
		}
	}
	c.Templates[t.ID] = t
	return nil
}

// Template returns the template by ID, nil if not found.
func (c *Catalog) Template(id string) *UnitTemplate {
	return c.Templates[id]
}

// Skill returns the skill by ID, nil if not found.
func (c *Catalog) Skill(id string) *SkillTemplate {
	return c.Skills[id]
}
