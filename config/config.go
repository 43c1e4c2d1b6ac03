package config

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config captures every option of DefaultSchema. Zero values of options
// without a default mean "unset".
type Config struct {
	DataTrain    string
	DataVal      string
	RGBMean      string
	PadSize      int
	ImageShape   string
	NumClasses   int
	NumExamples  int
	DataNThreads int
	Benchmark    int
	BatchSize    int

	RandomCrop           int
	RandomMirror         int
	MaxRandomH           int
	MaxRandomS           int
	MaxRandomL           int
	MaxRandomAspectRatio float64
	MaxRandomRotateAngle int
	MaxRandomShearRatio  float64
	MaxRandomScale       float64
	MinRandomScale       float64
}

func (c *Config) field(name string) any {
	switch name {
	case "data_train":
		return &c.DataTrain
	case "data_val":
		return &c.DataVal
	case "rgb_mean":
		return &c.RGBMean
	case "pad_size":
		return &c.PadSize
	case "image_shape":
		return &c.ImageShape
	case "num_classes":
		return &c.NumClasses
	case "num_examples":
		return &c.NumExamples
	case "data_nthreads":
		return &c.DataNThreads
	case "benchmark":
		return &c.Benchmark
	case "batch_size":
		return &c.BatchSize
	case "random_crop":
		return &c.RandomCrop
	case "random_mirror":
		return &c.RandomMirror
	case "max_random_h":
		return &c.MaxRandomH
	case "max_random_s":
		return &c.MaxRandomS
	case "max_random_l":
		return &c.MaxRandomL
	case "max_random_aspect_ratio":
		return &c.MaxRandomAspectRatio
	case "max_random_rotate_angle":
		return &c.MaxRandomRotateAngle
	case "max_random_shear_ratio":
		return &c.MaxRandomShearRatio
	case "max_random_scale":
		return &c.MaxRandomScale
	case "min_random_scale":
		return &c.MinRandomScale
	}
	return nil
}

// set assigns v to the option called name. Ints are accepted for float
// options. String options take any scalar in its printed form, so
// `data_train: 2024` is "2024", and sequences of scalars joined with commas,
// so `image_shape: [3, 224, 224]` works in YAML.
func (c *Config) set(name string, v any) error {
	switch p := c.field(name).(type) {
	case *string:
		switch x := v.(type) {
		case string:
			*p = x
		case int, int64, uint64, float64, bool:
			*p = fmt.Sprint(x)
		case []any:
			parts := make([]string, len(x))
			for i, e := range x {
				parts[i] = fmt.Sprint(e)
			}
			*p = strings.Join(parts, ",")
		default:
			return errors.Errorf("option %q: want string, got %T", name, v)
		}
	case *int:
		x, ok := v.(int)
		if !ok {
			return errors.Errorf("option %q: want int, got %T", name, v)
		}
		*p = x
	case *float64:
		switch x := v.(type) {
		case float64:
			*p = x
		case int:
			*p = float64(x)
		default:
			return errors.Errorf("option %q: want float, got %T", name, v)
		}
	default:
		return errors.Errorf("unknown option %q", name)
	}
	return nil
}

// setString parses a command-line style string into the option's type.
func (c *Config) setString(name, raw string) error {
	switch c.field(name).(type) {
	case *string:
		return c.set(name, raw)
	case *int:
		v, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			return errors.Wrapf(err, "option %q", name)
		}
		return c.set(name, v)
	case *float64:
		v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return errors.Wrapf(err, "option %q", name)
		}
		return c.set(name, v)
	}
	return errors.Errorf("unknown option %q", name)
}

// LoadFile overlays the YAML mapping at path onto cfg. Keys are option names
// in snake_case; keys not in the file leave cfg untouched.
func LoadFile(path string, cfg *Config) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrap(err, "open config")
	}
	defer f.Close()

	var values map[string]any
	if err := yaml.NewDecoder(f).Decode(&values); err != nil && !errors.Is(err, io.EOF) {
		return errors.Wrapf(err, "parse config %s", path)
	}
	for name, v := range values {
		if err := cfg.set(name, v); err != nil {
			return errors.Wrapf(err, "config %s", path)
		}
	}
	return nil
}

// Validate checks value ranges. Fields required only by a particular mode
// (image_shape, batch_size in benchmark mode, ...) are checked by the code
// that needs them.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	if c.PadSize < 0 {
		return errors.Errorf("pad_size must be >= 0 (got %d)", c.PadSize)
	}
	if c.DataNThreads < 0 {
		return errors.Errorf("data_nthreads must be >= 0 (got %d)", c.DataNThreads)
	}
	if c.BatchSize < 0 {
		return errors.Errorf("batch_size must be >= 0 (got %d)", c.BatchSize)
	}
	if c.MinRandomScale > c.MaxRandomScale {
		return errors.Errorf("min_random_scale %g exceeds max_random_scale %g", c.MinRandomScale, c.MaxRandomScale)
	}
	if c.MaxRandomAspectRatio < 0 || c.MaxRandomAspectRatio > 1 {
		return errors.Errorf("max_random_aspect_ratio must be in [0, 1] (got %g)", c.MaxRandomAspectRatio)
	}
	if c.MaxRandomShearRatio < 0 || c.MaxRandomShearRatio > 1 {
		return errors.Errorf("max_random_shear_ratio must be in [0, 1] (got %g)", c.MaxRandomShearRatio)
	}
	return nil
}
