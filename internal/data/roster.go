package data

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// RosterEntry is one unit a roster generator supplies for battle.
type RosterEntry struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	Template string `yaml:"template"`
	Level    int32  `yaml:"level"`
}

// Roster lists the initial units of both sides.
type Roster struct {
	Player []RosterEntry `yaml:"player"`
	Enemy  []RosterEntry `yaml:"enemy"`
}

// LoadRoster loads a roster from a YAML file.
func LoadRoster(path string) (Roster, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Roster{}, fmt.Errorf("reading roster %s: %w", path, err)
	}
	r, err := ParseRoster(raw)
	if err != nil {
		return Roster{}, fmt.Errorf("parsing roster %s: %w", path, err)
	}
	return r, nil
}

// ParseRoster decodes roster YAML and checks unit IDs are unique.
func ParseRoster(raw []byte) (Roster, error) {
	var r Roster
	if err := yaml.Unmarshal(raw, &r); err != nil {
		return Roster{}, fmt.Errorf("decoding roster: %w", err)
	}
	seen := make(map[string]struct{}, len(r.Player)+len(r.Enemy))
	for _, e := range append(append([]RosterEntry(nil), r.Player...), r.Enemy...) {
		if e.ID == "" {
			return Roster{}, fmt.Errorf("roster entry without id (template %q)", e.Template)
		}
		if _, dup := seen[e.ID]; dup {
			return Roster{}, fmt.Errorf("duplicate roster id %q", e.ID)
		}
		seen[e.ID] = struct{}{}
	}
	return r, nil
}
