package config

import (
	"flag"
	"fmt"
)

// Values is a schema bound to a flag.FlagSet.
type Values struct {
	fs     *flag.FlagSet
	schema Schema
	byFlag map[string]string
}

// Register defines one flag per schema option on fs. Flags show the schema
// default in their usage; options without a default show the zero value.
func (s Schema) Register(fs *flag.FlagSet) *Values {
	v := &Values{fs: fs, schema: s, byFlag: make(map[string]string)}
	for _, g := range s.groups {
		for _, o := range g.Options {
			usage := fmt.Sprintf("%s (%s)", o.Help, g.Title)
			switch o.Kind {
			case String:
				def, _ := o.Default.(string)
				fs.String(o.Flag(), def, usage)
			case Int:
				def, _ := o.Default.(int)
				fs.Int(o.Flag(), def, usage)
			case Float:
				def, _ := o.Default.(float64)
				fs.Float64(o.Flag(), def, usage)
			}
			v.byFlag[o.Flag()] = o.Name
		}
	}
	return v
}

// Apply copies every flag the user set explicitly into cfg. Flags left at
// their default do not touch cfg, so defaults from another schema or a
// config file survive.
func (v *Values) Apply(cfg *Config) error {
	var err error
	v.fs.Visit(func(f *flag.Flag) {
		name, ok := v.byFlag[f.Name]
		if !ok || err != nil {
			return
		}
		err = cfg.setString(name, f.Value.String())
	})
	return err
}

// Config returns the schema defaults overlaid with the explicitly set flags.
func (v *Values) Config() (*Config, error) {
	cfg := v.schema.Config()
	if err := v.Apply(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
