package scoring

import (
	"errors"
	"fmt"
	"maps"
	"math"
	"slices"
	"strings"
)

var ErrInvalidWeight = errors.New("invalid category weight")

// DefaultCategoryWeight applies to every category without an explicit weight.
const DefaultCategoryWeight = 1.0

// Weights maps category names to positive weights. Build it with NewWeights
// or DefaultWeights; the zero value weighs every category equally.
type Weights struct {
	byCategory map[string]float64
}

// NewWeights validates the configured weights. Every weight must be a finite
// number greater than zero.
func NewWeights(weights map[string]float64) (Weights, error) {
	var errs []error
	clean := make(map[string]float64, len(weights))

	names := slices.Sorted(maps.Keys(weights))
	for _, name := range names {
		w := weights[name]
		category := strings.TrimSpace(name)
		switch {
		case category == "":
			errs = append(errs, fmt.Errorf("%w: empty category name", ErrInvalidWeight))
		case math.IsNaN(w) || math.IsInf(w, 0):
			errs = append(errs, fmt.Errorf("%w: %q is not a finite number", ErrInvalidWeight, category))
		case w <= 0:
			errs = append(errs, fmt.Errorf("%w: %q must be greater than zero, got %v", ErrInvalidWeight, category, w))
		default:
			clean[category] = w
		}
	}

	if len(errs) > 0 {
		return Weights{}, errors.Join(errs...)
	}
	return Weights{byCategory: clean}, nil
}

// DefaultWeights elevates core values, relationship expectations and explicit
// compatibility questions over the rest.
func DefaultWeights() Weights {
	w, _ := NewWeights(map[string]float64{
		"Values":        3,
		"Relationship":  2.5,
		"Future":        2,
		"Personality":   1.5,
		"Lifestyle":     1,
		"Social":        1,
		"Compatibility": 3,
	})
	return w
}

// Of returns the weight of category.
func (w Weights) Of(category string) float64 {
	if v, ok := w.byCategory[category]; ok {
		return v
	}
	return DefaultCategoryWeight
}

// Map returns a copy of the explicitly configured weights.
func (w Weights) Map() map[string]float64 {
	return maps.Clone(w.byCategory)
}
