package config

// water positions one TIP3P-like molecule at the given oxygen site. Charges
// and LJ parameters follow the common 3-site model.
func water(ox, oy, oz float64) ([]ParticleConfig, []ExceptionEntry) {
	particles := []ParticleConfig{
		{Charge: -0.834, Sigma: 0.3151, Epsilon: 0.6364, Position: [3]float64{ox, oy, oz}},
		{Charge: 0.417, Sigma: 0.1, Epsilon: 0, Position: [3]float64{ox + 0.09572, oy, oz}},
		{Charge: 0.417, Sigma: 0.1, Epsilon: 0, Position: [3]float64{ox - 0.024, oy + 0.0927, oz}},
	}
	exceptions := []ExceptionEntry{
		{Particle1: 0, Particle2: 1},
		{Particle1: 0, Particle2: 2},
		{Particle1: 1, Particle2: 2},
	}
	return particles, exceptions
}

var Presets = map[string]*Config{
	// Eight water molecules on a loose grid; all intramolecular pairs are
	// excluded so only the long-range machinery acts between molecules.
	"water-box-small": waterBoxSmall(),

	// One ion pair with a scaled interaction between them, driven by the
	// "lambda" global parameter.
	"salt-pair": {
		Method:               "pme",
		Cutoff:               1.0,
		Tolerance:            5e-4,
		Dielectric:           78.3,
		Precision:            "double",
		DispersionCorrection: true,
		Box: BoxConfig{
			A: [3]float64{2.5, 0, 0},
			B: [3]float64{0, 2.5, 0},
			C: [3]float64{0, 0, 2.5},
		},
		Particles: []ParticleConfig{
			{Charge: 1, Sigma: 0.2439, Epsilon: 0.0874, Position: [3]float64{1.0, 1.25, 1.25}},
			{Charge: -1, Sigma: 0.4045, Epsilon: 0.6276, Position: [3]float64{1.5, 1.25, 1.25}},
		},
		Exception: []ExceptionEntry{
			{Particle1: 0, Particle2: 1},
		},
		Offsets: []OffsetEntry{
			{Parameter: "lambda", Exception: 0, Charge: -1},
		},
	},
}

func waterBoxSmall() *Config {
	cfg := &Config{
		Method:               "pme",
		Cutoff:               0.9,
		Tolerance:            5e-4,
		Dielectric:           78.3,
		Precision:            "mixed",
		DispersionCorrection: true,
		Box: BoxConfig{
			A: [3]float64{2.0, 0, 0},
			B: [3]float64{0, 2.0, 0},
			C: [3]float64{0, 0, 2.0},
		},
	}
	for i := 0; i < 2; i++ {
		for j := 0; j < 2; j++ {
			for k := 0; k < 2; k++ {
				particles, exceptions := water(0.5+float64(i), 0.5+float64(j), 0.5+float64(k))
				base := len(cfg.Particles)
				cfg.Particles = append(cfg.Particles, particles...)
				for _, e := range exceptions {
					e.Particle1 += base
					e.Particle2 += base
					cfg.Exception = append(cfg.Exception, e)
				}
			}
		}
	}
	return cfg
}

func GetPreset(name string) *Config {
	return Presets[name]
}

func ListPresets() []string {
	names := make([]string, 0, len(Presets))
	for name := range Presets {
		names = append(names, name)
	}
	return names
}
