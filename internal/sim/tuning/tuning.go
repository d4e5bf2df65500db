package tuning

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Tuning struct {
	ProtocolVersion string `yaml:"protocol_version" json:"protocol_version"`

	TickRateHz int `yaml:"tick_rate_hz" json:"tick_rate_hz"`

	Motion  Motion  `yaml:"motion" json:"motion"`
	Pathing Pathing `yaml:"pathing" json:"pathing"`
	Debug   Debug   `yaml:"debug" json:"debug"`
	Nav     Nav     `yaml:"nav" json:"nav"`
}

type Motion struct {
	Speed            float64 `yaml:"speed" json:"speed"`
	ArrivalTolerance float64 `yaml:"arrival_tolerance" json:"arrival_tolerance"`
}

type Pathing struct {
	// Workers bounds the number of concurrently running path queries.
	Workers      int     `yaml:"workers" json:"workers"`
	SearchRadius float64 `yaml:"search_radius" json:"search_radius"`
	// MaxTaskTicks drops queries still running after this many ticks. 0 disables it.
	MaxTaskTicks int `yaml:"max_task_ticks" json:"max_task_ticks"`
}

type Debug struct {
	DrawPaths      bool `yaml:"draw_paths" json:"draw_paths"`
	PathLifetimeMs int  `yaml:"path_lifetime_ms" json:"path_lifetime_ms"`
}

type Nav struct {
	CellSize         float64     `yaml:"cell_size" json:"cell_size"`
	WorldHalfExtents float64     `yaml:"world_half_extents" json:"world_half_extents"`
	WorldBottomBound float64     `yaml:"world_bottom_bound" json:"world_bottom_bound"`
	WalkableRadius   int         `yaml:"walkable_radius" json:"walkable_radius"`
	AreaCosts        []float64   `yaml:"area_costs" json:"area_costs"`
	Obstacles        []Obstacle  `yaml:"obstacles" json:"obstacles"`
	Areas            []AreaPatch `yaml:"areas" json:"areas,omitempty"`
}

// Obstacle is an axis-aligned box given by its center and half extents.
type Obstacle struct {
	Center      [3]float64 `yaml:"center" json:"center"`
	HalfExtents [3]float64 `yaml:"half_extents" json:"half_extents"`
}

// AreaPatch assigns an area id to every cell inside a rectangle on the XZ plane.
type AreaPatch struct {
	Min  [2]float64 `yaml:"min" json:"min"`
	Max  [2]float64 `yaml:"max" json:"max"`
	Area int        `yaml:"area" json:"area"`
}

func Defaults() Tuning {
	return Tuning{
		ProtocolVersion: "1.0",
		TickRateHz:      20,
		Motion: Motion{
			Speed:            10,
			ArrivalTolerance: 1.2,
		},
		Pathing: Pathing{
			Workers:      4,
			SearchRadius: 2,
		},
		Debug: Debug{
			DrawPaths:      true,
			PathLifetimeMs: 4000,
		},
		Nav: Nav{
			CellSize:         0.5,
			WorldHalfExtents: 50,
			WorldBottomBound: -100,
			WalkableRadius:   1,
			AreaCosts:        []float64{1.0, 0.5},
		},
	}
}

func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	t.Normalize()
	return t, nil
}

// Normalize clamps out-of-range values back to defaults.
func (t *Tuning) Normalize() {
	d := Defaults()
	if t.ProtocolVersion == "" {
		t.ProtocolVersion = d.ProtocolVersion
	}
	if t.TickRateHz <= 0 {
		t.TickRateHz = d.TickRateHz
	}
	if t.TickRateHz > 240 {
		t.TickRateHz = 240
	}
	if t.Motion.Speed <= 0 {
		t.Motion.Speed = d.Motion.Speed
	}
	if t.Motion.ArrivalTolerance < 0 {
		t.Motion.ArrivalTolerance = d.Motion.ArrivalTolerance
	}
	if t.Pathing.Workers <= 0 {
		t.Pathing.Workers = d.Pathing.Workers
	}
	if t.Pathing.SearchRadius < 0 {
		t.Pathing.SearchRadius = 0
	}
	if t.Pathing.MaxTaskTicks < 0 {
		t.Pathing.MaxTaskTicks = 0
	}
	if t.Debug.PathLifetimeMs <= 0 {
		t.Debug.PathLifetimeMs = d.Debug.PathLifetimeMs
	}
	if t.Nav.CellSize <= 0 {
		t.Nav.CellSize = d.Nav.CellSize
	}
	if t.Nav.WorldHalfExtents <= 0 {
		t.Nav.WorldHalfExtents = d.Nav.WorldHalfExtents
	}
	if t.Nav.WalkableRadius < 0 {
		t.Nav.WalkableRadius = 0
	}
	if len(t.Nav.AreaCosts) == 0 {
		t.Nav.AreaCosts = d.Nav.AreaCosts
	}
}
