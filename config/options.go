// Package config declares the command-line and file options of the image
// data pipeline, their defaults, and the typed Config they materialize into.
//
// The option schema is a value: building, re-defaulting (SetDataAugLevel) and
// registering it never mutates shared state, so several commands in one
// process can use differently-defaulted schemas side by side.
package config

import "strings"

// Kind is the value type of an option.
type Kind int

const (
	String Kind = iota
	Int
	Float
)

func (k Kind) String() string {
	switch k {
	case String:
		return "string"
	case Int:
		return "int"
	case Float:
		return "float"
	}
	return "unknown"
}

// Option describes one recognized configuration value.
type Option struct {
	// Name is the canonical snake_case name, also used as the YAML key.
	Name string
	Kind Kind
	// Default is nil when the option has no default. Otherwise it holds a
	// string, int or float64 matching Kind.
	Default any
	Help    string
}

// Flag returns the command-line spelling of the option, e.g. "data-train".
func (o Option) Flag() string {
	return strings.ReplaceAll(o.Name, "_", "-")
}

// Group is a titled set of options.
type Group struct {
	Title       string
	Description string
	Options     []Option
}

// DataGroup returns the options describing the input images.
func DataGroup() Group {
	return Group{
		Title:       "Data",
		Description: "the input images",
		Options: []Option{
			{Name: "data_train", Kind: String, Help: "the training data"},
			{Name: "data_val", Kind: String, Help: "the validation data"},
			{Name: "rgb_mean", Kind: String, Default: "123.68,116.779,103.939",
				Help: "a tuple of size 3 for the mean rgb"},
			{Name: "pad_size", Kind: Int, Default: 0, Help: "padding the input image"},
			{Name: "image_shape", Kind: String,
				Help: "the image shape feed into the network, e.g. (3,224,224)"},
			{Name: "num_classes", Kind: Int, Help: "the number of classes"},
			{Name: "num_examples", Kind: Int, Help: "the number of training examples"},
			{Name: "data_nthreads", Kind: Int, Default: 4,
				Help: "number of threads for data decoding"},
			{Name: "benchmark", Kind: Int, Default: 0,
				Help: "if 1, then feed the network with synthetic data"},
		},
	}
}

// AugGroup returns the image augmentation options. All ranges default to
// "disabled" except random crop and mirror.
func AugGroup() Group {
	return Group{
		Title:       "Image augmentations",
		Description: "forwarded to the image record iterator",
		Options: []Option{
			{Name: "random_crop", Kind: Int, Default: 1, Help: "if or not randomly crop the image"},
			{Name: "random_mirror", Kind: Int, Default: 1, Help: "if or not randomly flip horizontally"},
			{Name: "max_random_h", Kind: Int, Default: 0, Help: "max change of hue, whose range is [0, 180]"},
			{Name: "max_random_s", Kind: Int, Default: 0, Help: "max change of saturation, whose range is [0, 255]"},
			{Name: "max_random_l", Kind: Int, Default: 0, Help: "max change of intensity, whose range is [0, 255]"},
			{Name: "max_random_aspect_ratio", Kind: Float, Default: 0.0,
				Help: "max change of aspect ratio, whose range is [0, 1]"},
			{Name: "max_random_rotate_angle", Kind: Int, Default: 0,
				Help: "max angle to rotate, whose range is [0, 360]"},
			{Name: "max_random_shear_ratio", Kind: Float, Default: 0.0,
				Help: "max ratio to shear, whose range is [0, 1]"},
			{Name: "max_random_scale", Kind: Float, Default: 1.0, Help: "max ratio to scale"},
			{Name: "min_random_scale", Kind: Float, Default: 1.0,
				Help: "min ratio to scale, should >= img_size/input_shape. otherwise use --pad-size"},
		},
	}
}

// FitGroup returns the training-loop options the iterators depend on.
func FitGroup() Group {
	return Group{
		Title:       "Training",
		Description: "options shared with the training loop",
		Options: []Option{
			{Name: "batch_size", Kind: Int, Default: 128, Help: "the batch size"},
		},
	}
}
