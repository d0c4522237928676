// Package scenario loads battle setups from YAML and spawns them into an arena.
package scenario

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/cory-johannsen/skirmish/internal/game/arena"
	"github.com/cory-johannsen/skirmish/internal/game/ecs"
)

// Order is one queued command in a unit definition. Exactly one field is set.
type Order struct {
	// Attack is the index into Scenario.Units of the unit to attack.
	Attack *int `yaml:"attack"`
	// AttackMove is a destination to advance to, engaging enemies on the way.
	AttackMove *arena.Vec2 `yaml:"attack_move"`
}

// Unit describes one unit to spawn.
type Unit struct {
	Side     string   `yaml:"side"`
	X        float64  `yaml:"x"`
	Y        float64  `yaml:"y"`
	Health   uint32   `yaml:"health"`
	Range    *float64 `yaml:"range"`
	Cooldown *uint32  `yaml:"cooldown"`
	Speed    float64  `yaml:"speed"`
	// Orders are listed front first.
	Orders []Order `yaml:"orders"`
}

// Scenario is a complete battle setup.
type Scenario struct {
	Name string `yaml:"name"`
	// MaxTicks caps the battle length. Zero defers to configuration.
	MaxTicks int `yaml:"max_ticks"`
	// Script is the path of an optional Lua script. Load resolves relative
	// paths against the scenario file's directory.
	Script string `yaml:"script"`
	Units  []Unit `yaml:"units"`
}

// Validate checks that the scenario satisfies basic invariants.
//
// Precondition: s must not be nil.
// Postcondition: Returns nil iff Name is non-empty, MaxTicks >= 0, at least one
// unit is defined and every unit and order is well formed; returns an error on
// the first violation otherwise.
func (s *Scenario) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("scenario: name must not be empty")
	}
	if s.MaxTicks < 0 {
		return fmt.Errorf("scenario %q: max_ticks must be >= 0", s.Name)
	}
	if len(s.Units) == 0 {
		return fmt.Errorf("scenario %q: at least one unit is required", s.Name)
	}
	for i, u := range s.Units {
		if err := u.validate(i, len(s.Units)); err != nil {
			return fmt.Errorf("scenario %q: unit %d: %w", s.Name, i, err)
		}
	}
	return nil
}

func (u Unit) validate(self, count int) error {
	if err := u.arenaUnit().Validate(); err != nil {
		return err
	}
	for j, o := range u.Orders {
		switch {
		case o.Attack != nil && o.AttackMove != nil:
			return fmt.Errorf("order %d: attack and attack_move are exclusive", j)
		case o.Attack != nil:
			if *o.Attack < 0 || *o.Attack >= count {
				return fmt.Errorf("order %d: attack index %d out of range", j, *o.Attack)
			}
			if *o.Attack == self {
				return fmt.Errorf("order %d: unit cannot attack itself", j)
			}
		case o.AttackMove == nil:
			return fmt.Errorf("order %d: one of attack or attack_move is required", j)
		}
	}
	return nil
}

// LoadFromBytes parses a single scenario from raw YAML bytes.
//
// Precondition: data must be valid YAML for a single Scenario.
// Postcondition: Returns a validated *Scenario, or an error.
func LoadFromBytes(data []byte) (*Scenario, error) {
	var s Scenario
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parsing scenario YAML: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Load reads and parses the scenario file at path.
//
// Postcondition: Returns a validated *Scenario whose Script, if set, is
// resolved relative to the directory of path.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %q: %w", path, err)
	}
	s, err := LoadFromBytes(data)
	if err != nil {
		return nil, fmt.Errorf("loading %q: %w", path, err)
	}
	if s.Script != "" && !filepath.IsAbs(s.Script) {
		s.Script = filepath.Join(filepath.Dir(path), s.Script)
	}
	return s, nil
}

// LoadDir reads all *.yaml files in dir.
//
// Precondition: dir must be a readable directory.
// Postcondition: Returns the scenarios sorted by name, or an error on the first
// parse or validate failure.
func LoadDir(dir string) ([]*Scenario, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading scenario dir %q: %w", dir, err)
	}
	var out []*Scenario
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".yaml") {
			continue
		}
		s, err := Load(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// arenaUnit converts u without its orders, which need the spawned entity IDs.
func (u Unit) arenaUnit() arena.UnitSpec {
	return arena.UnitSpec{
		Side:     arena.Side(u.Side),
		Position: arena.Vec2{X: u.X, Y: u.Y},
		Health:   u.Health,
		Range:    u.Range,
		Cooldown: u.Cooldown,
		Speed:    u.Speed,
	}
}

// Select loads a scenario from path. A file is loaded directly and name, if
// set, must match it. For a directory, every scenario in it is loaded with
// LoadDir and the one called name is returned; name may be empty only when the
// directory holds exactly one scenario.
func Select(path, name string) (*Scenario, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("reading %q: %w", path, err)
	}
	if !info.IsDir() {
		s, err := Load(path)
		if err != nil {
			return nil, err
		}
		if name != "" && s.Name != name {
			return nil, fmt.Errorf("%q holds scenario %q, not %q", path, s.Name, name)
		}
		return s, nil
	}

	all, err := LoadDir(path)
	if err != nil {
		return nil, err
	}
	if name == "" {
		if len(all) == 1 {
			return all[0], nil
		}
		return nil, fmt.Errorf("%q holds %d scenarios; choose one of %s", path, len(all), names(all))
	}
	for _, s := range all {
		if s.Name == name {
			return s, nil
		}
	}
	return nil, fmt.Errorf("no scenario %q in %q; have %s", name, path, names(all))
}

func names(all []*Scenario) string {
	out := make([]string, len(all))
	for i, s := range all {
		out[i] = s.Name
	}
	return "[" + strings.Join(out, ", ") + "]"
}

// Spawn creates every unit of s in a and flushes.
//
// Precondition: s must have passed Validate.
// Postcondition: Returns the spawned entities in unit order; all are live and
// attack orders reference the corresponding spawned entities.
func (s *Scenario) Spawn(a *arena.Arena) []ecs.Entity {
	ids := make([]ecs.Entity, len(s.Units))
	for i, u := range s.Units {
		ids[i] = a.SpawnUnit(u.arenaUnit())
	}
	a.Flush()
	for i, u := range s.Units {
		if len(u.Orders) == 0 {
			continue
		}
		orders := make([]arena.Command, 0, len(u.Orders))
		for _, o := range u.Orders {
			if o.Attack != nil {
				orders = append(orders, arena.Attack(ids[*o.Attack]))
				continue
			}
			orders = append(orders, arena.AttackMove(*o.AttackMove))
		}
		q, _ := a.Commands.Get(ids[i])
		*q = arena.NewCommandQueue(orders...)
	}
	return ids
}

// Sides returns the distinct sides in s, sorted.
func (s *Scenario) Sides() []arena.Side {
	counts := make(map[arena.Side]int)
	for _, u := range s.Units {
		counts[arena.Side(u.Side)]++
	}
	return arena.SortedSides(counts)
}
