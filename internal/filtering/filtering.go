package filtering

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/spigell/knot-matcher/internal/logger"
)

// Filter represents a single filtering step applied to a candidate pool.
type Filter interface {
	Name() string

	Validate() error
	Apply(ctx context.Context, p *Pool) (*Pool, Step, error)
}

// Step describes the result of executing a filtering step.
type Step struct {
	Name    string
	Initial int
	Dropped int
	Left    int
	// Excluded lists the response ids removed by the step.
	Excluded []string
}

// Filtering runs an ordered list of filters.
type Filtering struct {
	steps  []Filter
	logger *zap.Logger
}

func New(steps []Filter, l *zap.Logger) *Filtering {
	return &Filtering{
		steps:  steps,
		logger: logger.WithFields(l),
	}
}

// Names returns the configured filter names in execution order.
func (f *Filtering) Names() []string {
	names := make([]string, 0, len(f.steps))
	for _, step := range f.steps {
		names = append(names, step.Name())
	}
	return names
}

// RunFilters validates every filter and then applies them sequentially.
func (f *Filtering) RunFilters(ctx context.Context, p *Pool) (*Pool, []Step, error) {
	for _, step := range f.steps {
		if err := step.Validate(); err != nil {
			return nil, nil, fmt.Errorf("%s: %w", step.Name(), err)
		}
	}

	infos := make([]Step, 0, len(f.steps))
	for _, step := range f.steps {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}

		next, info, err := step.Apply(ctx, p)
		if err != nil {
			return nil, nil, fmt.Errorf("%s: %w", step.Name(), err)
		}
		info.Name = step.Name()

		f.logger.Info("filter step",
			zap.String("name", info.Name),
			zap.Int("initial", info.Initial),
			zap.Int("dropped", info.Dropped),
			zap.Int("left", info.Left),
		)
		if len(info.Excluded) > 0 {
			f.logger.Debug("excluded candidates",
				zap.String("name", info.Name),
				zap.Strings("excluded_responses", info.Excluded),
			)
		}

		infos = append(infos, info)
		p = next
	}

	return p, infos, nil
}
