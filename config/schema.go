package config

import "fmt"

// Schema is an ordered, immutable collection of option groups.
type Schema struct {
	groups []Group
}

// NewSchema builds a schema from groups. Option names must be unique across
// all groups; a duplicate is a programming error and panics.
func NewSchema(groups ...Group) Schema {
	seen := make(map[string]bool)
	for _, g := range groups {
		for _, o := range g.Options {
			if seen[o.Name] {
				panic(fmt.Sprintf("config: option %q declared twice", o.Name))
			}
			seen[o.Name] = true
		}
	}
	return Schema{groups: cloneGroups(groups)}
}

// DefaultSchema is the schema every command of this module starts from.
func DefaultSchema() Schema {
	return NewSchema(DataGroup(), AugGroup(), FitGroup())
}

// Groups returns a copy of the schema groups.
func (s Schema) Groups() []Group {
	return cloneGroups(s.groups)
}

// Options returns every option in declaration order.
func (s Schema) Options() []Option {
	var opts []Option
	for _, g := range s.groups {
		opts = append(opts, g.Options...)
	}
	return opts
}

// Lookup finds an option by its snake_case name.
func (s Schema) Lookup(name string) (Option, bool) {
	for _, g := range s.groups {
		for _, o := range g.Options {
			if o.Name == name {
				return o, true
			}
		}
	}
	return Option{}, false
}

// Default returns the default of name, or nil if the option has none or is
// unknown.
func (s Schema) Default(name string) any {
	o, _ := s.Lookup(name)
	return o.Default
}

// WithDefaults returns a copy of s where the named options have new
// defaults. Unknown names and values of the wrong kind panic.
func (s Schema) WithDefaults(defaults map[string]any) Schema {
	groups := cloneGroups(s.groups)
	for name, v := range defaults {
		found := false
		for gi := range groups {
			for oi := range groups[gi].Options {
				o := &groups[gi].Options[oi]
				if o.Name != name {
					continue
				}
				if !kindMatches(o.Kind, v) {
					panic(fmt.Sprintf("config: default %v (%T) does not match %s option %q", v, v, o.Kind, name))
				}
				o.Default = v
				found = true
			}
		}
		if !found {
			panic(fmt.Sprintf("config: unknown option %q", name))
		}
	}
	return Schema{groups: groups}
}

// SetDataAugLevel returns a copy of s with the augmentation defaults of the
// given tier. Tiers are cumulative:
//
//	1: random crop and mirror
//	2: + hue, saturation and lightness jitter
//	3: + rotation, shear and aspect-ratio jitter
//
// Options not named by a tier keep their current default. Levels below 1
// return s unchanged.
func (s Schema) SetDataAugLevel(level int) Schema {
	if level >= 1 {
		s = s.WithDefaults(map[string]any{"random_crop": 1, "random_mirror": 1})
	}
	if level >= 2 {
		s = s.WithDefaults(map[string]any{"max_random_h": 36, "max_random_s": 50, "max_random_l": 50})
	}
	if level >= 3 {
		s = s.WithDefaults(map[string]any{
			"max_random_rotate_angle": 10,
			"max_random_shear_ratio":  0.1,
			"max_random_aspect_ratio": 0.25,
		})
	}
	return s
}

// Config materializes the schema defaults. Options without a default keep
// the zero value, which the consumers treat as "unset".
func (s Schema) Config() *Config {
	cfg := &Config{}
	for _, o := range s.Options() {
		if o.Default == nil {
			continue
		}
		if err := cfg.set(o.Name, o.Default); err != nil {
			panic(err)
		}
	}
	return cfg
}

func kindMatches(k Kind, v any) bool {
	switch v.(type) {
	case string:
		return k == String
	case int:
		return k == Int
	case float64:
		return k == Float
	}
	return false
}

func cloneGroups(groups []Group) []Group {
	out := make([]Group, len(groups))
	for i, g := range groups {
		out[i] = g
		out[i].Options = append([]Option(nil), g.Options...)
	}
	return out
}
