package config

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/ctolon/tabpipe/pipeline"
)

// TableIO reads and writes tables by path; *session.Session implements it.
type TableIO interface {
	pipeline.TableReader
	pipeline.TableWriter
}

// StepRegistry maps step names to steps. Safe for concurrent use.
type StepRegistry struct {
	mu    sync.RWMutex
	steps map[string]pipeline.Step
}

// NewStepRegistry returns an empty step registry.
func NewStepRegistry() *StepRegistry {
	return &StepRegistry{steps: make(map[string]pipeline.Step)}
}

// DefaultSteps returns a registry holding the built-in steps:
//
//	identity            passes the table through
//	conform-raw         rejects tables not shaped like RawSchema
//	conform-featurized  rejects tables not shaped like FeaturizedSchema
//	require-rows        rejects empty tables
func DefaultSteps() *StepRegistry {
	r := NewStepRegistry()
	r.Register("identity", pipeline.Identity())
	r.Register("conform-raw", pipeline.Conform(RawSchema))
	r.Register("conform-featurized", pipeline.Conform(FeaturizedSchema))
	r.Register("require-rows", pipeline.RequireRows(1))
	return r
}

// Register adds a step under name. Overwrites any existing registration.
func (r *StepRegistry) Register(name string, step pipeline.Step) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.steps == nil {
		r.steps = make(map[string]pipeline.Step)
	}
	r.steps[name] = step
}

// Get returns the step for name, or false if not found.
func (r *StepRegistry) Get(name string) (pipeline.Step, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.steps[name]
	return s, ok
}

// Names returns all registered step names, sorted.
func (r *StepRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.steps))
	for n := range r.steps {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// BuildPipeline builds a pipeline.Pipeline from cfg. The source reads the
// cfg.Source dataset under root with its schema; when cfg.Sink is set the
// result is conformed to the sink's schema and written to that dataset. Step
// and dataset names must be registered.
func BuildPipeline(steps *StepRegistry, datasets *Registry, io TableIO, root string, cfg *PipelineConfig) (*pipeline.Pipeline, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	if cfg.Source == "" {
		return nil, errors.New("source dataset required")
	}
	src, err := datasets.Lookup(cfg.Source)
	if err != nil {
		return nil, fmt.Errorf("source: %w", err)
	}
	built := make([]pipeline.Step, 0, len(cfg.Steps)+2)
	for i, ref := range cfg.Steps {
		if ref.Name == "" {
			return nil, fmt.Errorf("step %d: name required", i)
		}
		step, ok := steps.Get(ref.Name)
		if !ok {
			return nil, fmt.Errorf("step %d: %q not in registry", i, ref.Name)
		}
		if ref.Timeout > 0 {
			step = pipeline.WithTimeout(step, ref.Timeout.Duration())
		}
		built = append(built, step)
	}
	if cfg.Sink != "" {
		sink, err := datasets.Lookup(cfg.Sink)
		if err != nil {
			return nil, fmt.Errorf("sink: %w", err)
		}
		built = append(built,
			pipeline.Conform(sink.Schema),
			pipeline.Store(io, Resolve(root, sink.Path)))
	}
	return &pipeline.Pipeline{
		Name:   cfg.Name,
		Source: pipeline.Load(io, Resolve(root, src.Path), src.Schema),
		Steps:  built,
	}, nil
}

// BuildAllPipelines builds a pipeline.Pipeline for each entry of s.Pipelines.
// Keys are pipeline names. If a pipeline config's Name is empty, the map key
// is used as the pipeline name.
func BuildAllPipelines(steps *StepRegistry, datasets *Registry, io TableIO, s *Settings) (map[string]*pipeline.Pipeline, error) {
	if s == nil {
		return nil, errors.New("settings are nil")
	}
	out := make(map[string]*pipeline.Pipeline, len(s.Pipelines))
	for name, cfg := range s.Pipelines {
		if cfg.Name == "" {
			cfg.Name = name
		}
		p, err := BuildPipeline(steps, datasets, io, s.DataRoot, &cfg)
		if err != nil {
			return nil, fmt.Errorf("pipeline %q: %w", name, err)
		}
		out[name] = p
	}
	return out, nil
}

// BuildSequence builds a pipeline.Sequence by looking up the named pipelines
// in built. Each name in seq.Pipelines must exist in built.
func BuildSequence(seq *SequenceConfig, built map[string]*pipeline.Pipeline) (*pipeline.Sequence, error) {
	if seq == nil {
		return nil, errors.New("SequenceConfig is nil")
	}
	out := make([]*pipeline.Pipeline, 0, len(seq.Pipelines))
	for i, name := range seq.Pipelines {
		p, ok := built[name]
		if !ok {
			return nil, fmt.Errorf("sequence %q pipeline %d: %q not in built pipelines", seq.Name, i, name)
		}
		out = append(out, p)
	}
	return &pipeline.Sequence{Name: seq.Name, Pipelines: out}, nil
}

// BuildAllSequences builds a pipeline.Sequence for each entry of s.Sequences.
func BuildAllSequences(s *Settings, built map[string]*pipeline.Pipeline) (map[string]*pipeline.Sequence, error) {
	if s == nil || len(s.Sequences) == 0 {
		return map[string]*pipeline.Sequence{}, nil
	}
	out := make(map[string]*pipeline.Sequence, len(s.Sequences))
	for name, cfg := range s.Sequences {
		if cfg.Name == "" {
			cfg.Name = name
		}
		seq, err := BuildSequence(&cfg, built)
		if err != nil {
			return nil, fmt.Errorf("sequence %q: %w", name, err)
		}
		out[name] = seq
	}
	return out, nil
}
