package config

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

var (
	// ErrMalformed reports a numeric tuple option that does not parse.
	ErrMalformed = errors.New("malformed option value")

	// ErrMissingField reports an option required by the selected mode that
	// was not set.
	ErrMissingField = errors.New("missing required option")
)

// Missing returns an ErrMissingField naming the option.
func Missing(name string) error {
	return errors.Wrapf(ErrMissingField, "%s", name)
}

// ParseImageShape parses "channels,height,width" into three positive ints.
// Surrounding parentheses and spaces are ignored, so "(3, 224, 224)" works.
func ParseImageShape(s string) ([3]int, error) {
	var shape [3]int
	parts, err := splitTuple("image_shape", s, 3)
	if err != nil {
		return shape, err
	}
	for i, p := range parts {
		v, err := strconv.Atoi(p)
		if err != nil {
			return shape, errors.Wrapf(ErrMalformed, "image_shape %q: element %d: %v", s, i, err)
		}
		if v <= 0 {
			return shape, errors.Wrapf(ErrMalformed, "image_shape %q: element %d must be positive", s, i)
		}
		shape[i] = v
	}
	return shape, nil
}

// ParseRGBMean parses "r,g,b" into three floats.
func ParseRGBMean(s string) ([3]float64, error) {
	var mean [3]float64
	parts, err := splitTuple("rgb_mean", s, 3)
	if err != nil {
		return mean, err
	}
	for i, p := range parts {
		v, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return mean, errors.Wrapf(ErrMalformed, "rgb_mean %q: element %d: %v", s, i, err)
		}
		mean[i] = v
	}
	return mean, nil
}

func splitTuple(name, s string, n int) ([]string, error) {
	trimmed := strings.TrimSpace(s)
	trimmed = strings.TrimPrefix(trimmed, "(")
	trimmed = strings.TrimSuffix(trimmed, ")")
	if strings.TrimSpace(trimmed) == "" {
		return nil, errors.Wrapf(ErrMalformed, "%s is empty", name)
	}
	parts := strings.Split(trimmed, ",")
	if len(parts) != n {
		return nil, errors.Wrapf(ErrMalformed, "%s %q: want %d elements, got %d", name, s, n, len(parts))
	}
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts, nil
}
