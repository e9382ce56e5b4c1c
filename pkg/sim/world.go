package sim

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// World describes the starting state of a simulated host environment.
type World struct {
	Skill           int     `yaml:"skill"`
	UnitCostGB      float64 `yaml:"unit_cost_gb"`
	StabilizeEffect float64 `yaml:"stabilize_effect"`
	ExtractCost     float64 `yaml:"extract_integrity_cost"`
	RestoreCost     float64 `yaml:"restore_integrity_cost"`
	// ExtractPerUnit and GrowthPerUnit are defaults for targets that do
	// not set their own.
	ExtractPerUnit float64    `yaml:"extract_per_unit"`
	GrowthPerUnit  float64    `yaml:"growth_per_unit"`
	Hosts          []HostSpec `yaml:"hosts"`
}

// HostSpec is one host. Every host offers capacity (possibly none); hosts
// with a Target section can also be worked.
type HostSpec struct {
	ID         string      `yaml:"id"`
	CapacityGB float64     `yaml:"capacity_gb"`
	UsedGB     float64     `yaml:"used_gb"`
	Controlled bool        `yaml:"controlled"`
	Owned      bool        `yaml:"owned"`
	Target     *TargetSpec `yaml:"target,omitempty"`
}

// TargetSpec is the workable side of a host.
type TargetSpec struct {
	Integrity       float64 `yaml:"integrity"`
	MinIntegrity    float64 `yaml:"min_integrity"`
	Yield           float64 `yaml:"yield"`
	MaxYield        float64 `yaml:"max_yield"`
	RequiredSkill   int     `yaml:"required_skill"`
	SuccessChance   float64 `yaml:"success_chance"`
	BaseStabilizeMs float64 `yaml:"base_stabilize_ms"`
	ExtractPerUnit  float64 `yaml:"extract_per_unit,omitempty"`
	GrowthPerUnit   float64 `yaml:"growth_per_unit,omitempty"`
}

// DefaultWorld fills the effect model with the usual constants.
func DefaultWorld() World {
	return World{
		UnitCostGB:      1.75,
		StabilizeEffect: 0.05,
		ExtractCost:     0.002,
		RestoreCost:     0.004,
		ExtractPerUnit:  0.002,
		GrowthPerUnit:   0.0025,
	}
}

// LoadWorld reads a world file. Effect constants missing from the file
// keep their defaults.
func LoadWorld(path string) (*World, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	w := DefaultWorld()
	if err := yaml.Unmarshal(b, &w); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := w.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &w, nil
}

func (w *World) Validate() error {
	if w.UnitCostGB <= 0 || w.StabilizeEffect <= 0 {
		return fmt.Errorf("unit cost and stabilize effect must be positive")
	}
	seen := make(map[string]bool, len(w.Hosts))
	for i, h := range w.Hosts {
		if h.ID == "" {
			return fmt.Errorf("hosts[%d]: missing id", i)
		}
		if seen[h.ID] {
			return fmt.Errorf("hosts[%d]: duplicate id %q", i, h.ID)
		}
		seen[h.ID] = true
		if h.Owned && !h.Controlled {
			return fmt.Errorf("host %s: owned hosts must be controlled", h.ID)
		}
		if h.UsedGB > h.CapacityGB {
			return fmt.Errorf("host %s: used %.2fGB exceeds capacity %.2fGB", h.ID, h.UsedGB, h.CapacityGB)
		}
		if t := h.Target; t != nil {
			if t.Integrity < t.MinIntegrity {
				return fmt.Errorf("host %s: integrity below minimum", h.ID)
			}
			if t.Yield < 0 || t.Yield > t.MaxYield {
				return fmt.Errorf("host %s: yield outside [0, max]", h.ID)
			}
			if t.SuccessChance < 0 || t.SuccessChance > 1 {
				return fmt.Errorf("host %s: success chance outside [0,1]", h.ID)
			}
			if t.BaseStabilizeMs <= 0 {
				return fmt.Errorf("host %s: base_stabilize_ms must be positive", h.ID)
			}
		}
	}
	return nil
}
