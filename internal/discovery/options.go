package discovery

import (
	"errors"
	"fmt"
	"slices"
)

var ErrInvalidConfig = errors.New("invalid discovery configuration")

const (
	DefaultMinScore   = 70
	DefaultMaxResults = 10
)

// Options bounds a discovery pass.
type Options struct {
	// MinScore is the lowest overall score a candidate may have, inclusive.
	MinScore int `json:"min_score"`
	// MaxResults caps the number of returned matches.
	MaxResults int `json:"max_results"`
	// Workers > 1 evaluates candidates concurrently. Results do not depend on it.
	Workers int `json:"workers"`
	// Exclude lists candidate response ids the subject does not want to see.
	Exclude []string `json:"exclude,omitempty"`
}

func DefaultOptions() Options {
	return Options{MinScore: DefaultMinScore, MaxResults: DefaultMaxResults, Workers: 1}
}

func (o Options) Validate() error {
	var errs []error
	if o.MinScore < 0 || o.MinScore > 100 {
		errs = append(errs, fmt.Errorf("min score must be within [0, 100], got %d", o.MinScore))
	}
	if o.MaxResults <= 0 {
		errs = append(errs, fmt.Errorf("max results must be greater than zero, got %d", o.MaxResults))
	}
	if o.Workers < 0 {
		errs = append(errs, fmt.Errorf("workers must not be negative, got %d", o.Workers))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

// Option overrides engine defaults for a single FindMatches call.
type Option func(*Options)

func WithMinScore(score int) Option {
	return func(o *Options) { o.MinScore = score }
}

func WithMaxResults(n int) Option {
	return func(o *Options) { o.MaxResults = n }
}

func WithWorkers(n int) Option {
	return func(o *Options) { o.Workers = n }
}

func WithExclude(ids ...string) Option {
	return func(o *Options) { o.Exclude = append(slices.Clone(o.Exclude), ids...) }
}
