package config

import "sort"

// Preset is a named tweak applied on top of DefaultConfig.
type Preset struct {
	Description string
	Apply       func(*Config)
}

var Presets = map[string]Preset{
	"default": {
		Description: "1000 particles in a 1200x800 box",
		Apply:       func(*Config) {},
	},
	"rain": {
		Description: "strong gravity, soft floor",
		Apply: func(c *Config) {
			c.Gravity = 20
			c.Restitution = 0.3
		},
	},
	"elastic": {
		Description: "lossless walls",
		Apply: func(c *Config) {
			c.Restitution = 1
		},
	},
	"zero-g": {
		Description: "no gravity, lossless walls",
		Apply: func(c *Config) {
			c.Gravity = 0
			c.Restitution = 1
		},
	},
	"dense": {
		Description: "100000 particles",
		Apply: func(c *Config) {
			c.Particles = 100000
		},
	},
}

// GetPreset returns DefaultConfig with the named preset applied, or nil.
func GetPreset(name string) *Config {
	p, ok := Presets[name]
	if !ok {
		return nil
	}
	cfg := DefaultConfig()
	p.Apply(cfg)
	return cfg
}

func ListPresets() []string {
	names := make([]string, 0, len(Presets))
	for name := range Presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
