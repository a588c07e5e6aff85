package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/google/uuid"
)

// Step is a single step in a pipeline. It receives the table produced by the
// previous step (or the source) and returns the table for the next step.
// A step either returns its input unchanged or a new table owned by the caller;
// it never releases its input.
type Step func(ctx context.Context, in arrow.Table) (arrow.Table, error)

// Source produces the first table of a standalone run.
type Source func(ctx context.Context) (arrow.Table, error)

// Observer provides pre/post hooks for pipeline and step execution, e.g. for
// logging and metrics. BeforePipeline is called before any step runs,
// BeforeStep/AfterStep around each step, AfterPipeline when the run finishes
// (success or error).
type Observer interface {
	BeforePipeline(ctx context.Context, runID, name string, input arrow.Table) error
	AfterPipeline(ctx context.Context, runID string, result arrow.Table, err error) error
	BeforeStep(ctx context.Context, runID string, index int, input arrow.Table) error
	AfterStep(ctx context.Context, runID string, index int, input, output arrow.Table, stepErr error, duration time.Duration) error
}

// RunOptions is optional and used to attach an Observer and optional RunID.
// If Observer is set and RunID is empty, a new UUID is generated for the run.
type RunOptions struct {
	Observer Observer
	RunID    string
}

// Pipeline runs a linear chain of steps. Source is optional and used only by Run.
type Pipeline struct {
	Name   string
	Source Source
	Steps  []Step
}

// Run executes the source, then each step in order. Returns the last step's
// output, which the caller must release, or the first error.
func (p *Pipeline) Run(ctx context.Context, opts *RunOptions) (arrow.Table, error) {
	if p.Source == nil {
		return nil, fmt.Errorf("pipeline %q: no source", p.Name)
	}
	in, err := p.Source(ctx)
	if err != nil {
		return nil, fmt.Errorf("pipeline %q: source: %w", p.Name, err)
	}
	out, err := p.RunWithInput(ctx, in, opts)
	if out != in {
		in.Release()
	}
	return out, err
}

// RunWithInput runs the steps starting with the given table. The input stays
// owned by the caller; the result may be the input itself when every step
// passes it through. On error, including a failing AfterPipeline hook, no
// table is returned.
func (p *Pipeline) RunWithInput(ctx context.Context, input arrow.Table, opts *RunOptions) (arrow.Table, error) {
	if opts == nil || opts.Observer == nil {
		return p.runSteps(ctx, input, nil, "")
	}
	runID := opts.RunID
	if runID == "" {
		runID = uuid.New().String()
	}
	if err := opts.Observer.BeforePipeline(ctx, runID, p.Name, input); err != nil {
		return nil, fmt.Errorf("before pipeline: %w", err)
	}
	result, err := p.runSteps(ctx, input, opts.Observer, runID)
	if postErr := opts.Observer.AfterPipeline(ctx, runID, result, err); postErr != nil {
		// Don't mask pipeline error
		if err == nil {
			err = fmt.Errorf("after pipeline: %w", postErr)
		}
	}
	if err != nil {
		if result != nil && result != input {
			result.Release()
		}
		return nil, err
	}
	return result, nil
}

// runSteps releases intermediate tables as soon as the following step has
// replaced them. The caller's input is never released.
func (p *Pipeline) runSteps(ctx context.Context, input arrow.Table, obs Observer, runID string) (arrow.Table, error) {
	out := input
	drop := func(t arrow.Table) {
		if t != nil && t != input {
			t.Release()
		}
	}
	for i, step := range p.Steps {
		if err := ctx.Err(); err != nil {
			drop(out)
			return nil, fmt.Errorf("step %d: %w", i, err)
		}
		if obs != nil {
			if err := obs.BeforeStep(ctx, runID, i, out); err != nil {
				drop(out)
				return nil, fmt.Errorf("before step %d: %w", i, err)
			}
		}
		start := time.Now()
		next, stepErr := step(ctx, out)
		duration := time.Since(start)
		if obs != nil {
			if postErr := obs.AfterStep(ctx, runID, i, out, next, stepErr, duration); postErr != nil {
				if stepErr == nil {
					stepErr = fmt.Errorf("after step: %w", postErr)
				}
			}
		}
		if stepErr != nil {
			if next != out {
				drop(next)
			}
			drop(out)
			return nil, fmt.Errorf("step %d: %w", i, stepErr)
		}
		if next != out {
			drop(out)
		}
		out = next
	}
	return out, nil
}

// Sequence runs multiple standalone pipelines in order, each from its own
// Source. Stops on first error (like shell &&).
type Sequence struct {
	Name      string
	Pipelines []*Pipeline
}

// Run executes every pipeline with Run and releases each result. When opts
// carries an Observer without a RunID, one ID is generated and shared by all
// pipelines of the sequence.
func (s *Sequence) Run(ctx context.Context, opts *RunOptions) error {
	if opts != nil && opts.Observer != nil && opts.RunID == "" {
		shared := *opts
		shared.RunID = uuid.New().String()
		opts = &shared
	}
	for i, p := range s.Pipelines {
		out, err := p.Run(ctx, opts)
		if err != nil {
			return fmt.Errorf("pipeline %d (%s): %w", i, p.Name, err)
		}
		if out != nil {
			out.Release()
		}
	}
	return nil
}
