// Package config describes a particle system and its nonbonded method in
// yaml, and assembles the force description the engines are compiled from.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/mdkit/ewald/internal/nonbonded"
	"github.com/mdkit/ewald/internal/unit"
)

const (
	DefaultCutoff     = 1.0
	DefaultTolerance  = 5e-4
	DefaultDielectric = 78.3
	DefaultBoxSide    = 2.0
)

type Config struct {
	Method     string  `yaml:"method"`
	Cutoff     float64 `yaml:"cutoff"`
	Tolerance  float64 `yaml:"tolerance"`
	Dielectric float64 `yaml:"dielectric"`
	Precision  string  `yaml:"precision"`

	SwitchingDistance    float64 `yaml:"switching_distance"`
	UseSwitching         bool    `yaml:"use_switching"`
	DispersionCorrection bool    `yaml:"dispersion_correction"`

	Box       BoxConfig        `yaml:"box"`
	Particles []ParticleConfig `yaml:"particles"`
	Exception []ExceptionEntry `yaml:"exceptions"`
	Offsets   []OffsetEntry    `yaml:"offsets"`
}

type BoxConfig struct {
	A [3]float64 `yaml:"a"`
	B [3]float64 `yaml:"b"`
	C [3]float64 `yaml:"c"`
}

type ParticleConfig struct {
	Charge   float64    `yaml:"charge"`
	Sigma    float64    `yaml:"sigma"`
	Epsilon  float64    `yaml:"epsilon"`
	Position [3]float64 `yaml:"position"`
}

type ExceptionEntry struct {
	Particle1  int     `yaml:"particle1"`
	Particle2  int     `yaml:"particle2"`
	ChargeProd float64 `yaml:"charge_prod"`
	Sigma      float64 `yaml:"sigma"`
	Epsilon    float64 `yaml:"epsilon"`
}

type OffsetEntry struct {
	Parameter  string  `yaml:"parameter"`
	Particle   int     `yaml:"particle"`
	Exception  int     `yaml:"exception"`
	OnParticle bool    `yaml:"on_particle"`
	Charge     float64 `yaml:"charge"`
	Sigma      float64 `yaml:"sigma"`
	Epsilon    float64 `yaml:"epsilon"`
}

// DefaultConfig is a small neutral ion pair under PME.
func DefaultConfig() *Config {
	return &Config{
		Method:               "pme",
		Cutoff:               DefaultCutoff,
		Tolerance:            DefaultTolerance,
		Dielectric:           DefaultDielectric,
		Precision:            "double",
		DispersionCorrection: true,
		Box: BoxConfig{
			A: [3]float64{DefaultBoxSide, 0, 0},
			B: [3]float64{0, DefaultBoxSide, 0},
			C: [3]float64{0, 0, DefaultBoxSide},
		},
		Particles: []ParticleConfig{
			{Charge: 1, Sigma: 0.24, Epsilon: 0.09, Position: [3]float64{0.5, 1, 1}},
			{Charge: -1, Sigma: 0.4, Epsilon: 0.15, Position: [3]float64{1.5, 1, 1}},
		},
	}
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func (c *Config) method() (nonbonded.Method, error) {
	switch c.Method {
	case "no-cutoff":
		return nonbonded.NoCutoff, nil
	case "cutoff":
		return nonbonded.CutoffNonPeriodic, nil
	case "cutoff-periodic":
		return nonbonded.CutoffPeriodic, nil
	case "ewald":
		return nonbonded.Ewald, nil
	case "pme":
		return nonbonded.PME, nil
	case "ljpme":
		return nonbonded.LJPME, nil
	}
	return 0, fmt.Errorf("unknown method %q", c.Method)
}

// GetPrecision maps the configured precision name to a context mode.
func (c *Config) GetPrecision() (nonbonded.Precision, error) {
	switch c.Precision {
	case "", "double":
		return nonbonded.Double, nil
	case "single":
		return nonbonded.Single, nil
	case "mixed":
		return nonbonded.Mixed, nil
	}
	return 0, fmt.Errorf("unknown precision %q", c.Precision)
}

// GetBox validates and returns the periodic box.
func (c *Config) GetBox() (unit.Box, error) {
	return unit.NewBox(
		unit.Vec3{X: c.Box.A[0], Y: c.Box.A[1], Z: c.Box.A[2]},
		unit.Vec3{X: c.Box.B[0], Y: c.Box.B[1], Z: c.Box.B[2]},
		unit.Vec3{X: c.Box.C[0], Y: c.Box.C[1], Z: c.Box.C[2]},
	)
}

// GetPositions returns the particle positions in declaration order.
func (c *Config) GetPositions() []unit.Vec3 {
	pos := make([]unit.Vec3, len(c.Particles))
	for i, p := range c.Particles {
		pos[i] = unit.Vec3{X: p.Position[0], Y: p.Position[1], Z: p.Position[2]}
	}
	return pos
}

// BuildForce assembles the force description from the config.
func (c *Config) BuildForce() (*nonbonded.Force, error) {
	method, err := c.method()
	if err != nil {
		return nil, err
	}
	f := nonbonded.NewForce(method)
	f.Cutoff = c.Cutoff
	f.EwaldErrorTolerance = c.Tolerance
	f.ReactionFieldDielectric = c.Dielectric
	f.UseSwitchingFunction = c.UseSwitching
	f.SwitchingDistance = c.SwitchingDistance
	f.UseDispersionCorrection = c.DispersionCorrection
	for _, p := range c.Particles {
		f.AddParticle(p.Charge, p.Sigma, p.Epsilon)
	}
	for _, e := range c.Exception {
		f.AddException(e.Particle1, e.Particle2, e.ChargeProd, e.Sigma, e.Epsilon)
	}
	for _, o := range c.Offsets {
		if o.OnParticle {
			f.AddParticleOffset(o.Parameter, o.Particle, o.Charge, o.Sigma, o.Epsilon)
		} else {
			f.AddExceptionOffset(o.Parameter, o.Exception, o.Charge, o.Sigma, o.Epsilon)
		}
	}
	return f, nil
}
