package config

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/apache/arrow-go/v18/arrow"
)

// ErrUnknownDataset is returned when a dataset name is not registered.
var ErrUnknownDataset = errors.New("unknown dataset")

// Dataset ties a registered name to a file location and the schema its
// contents must match.
type Dataset struct {
	Name   string
	Stage  Stage
	Split  Split
	Path   string
	Schema *arrow.Schema
}

// Registry maps dataset names to datasets. Safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	datasets map[string]Dataset
}

// NewRegistry returns an empty dataset registry.
func NewRegistry() *Registry {
	return &Registry{datasets: make(map[string]Dataset)}
}

// DefaultDatasets returns a registry holding every path constant. Stages 1-3
// carry RawSchema; the feature store carries FeaturizedSchema.
func DefaultDatasets() *Registry {
	r := NewRegistry()
	for _, stage := range []Stage{StageSchemeless, StageSchematic, StagePreprocessed} {
		for _, split := range []Split{SplitTrain, SplitTest} {
			path, _ := StagePath(stage, split)
			r.Register(Dataset{
				Name:   stage.String() + "/" + string(split),
				Stage:  stage,
				Split:  split,
				Path:   path,
				Schema: RawSchema,
			})
		}
	}
	r.Register(Dataset{Name: "features", Stage: StageFeatureStore, Split: SplitTrain, Path: FeatureData, Schema: FeaturizedSchema})
	r.Register(Dataset{Name: "features/scaled", Stage: StageFeatureStore, Split: SplitTrain, Path: ScaledFeatureData, Schema: FeaturizedSchema})
	return r
}

// Register adds a dataset under d.Name. Overwrites any existing registration.
func (r *Registry) Register(d Dataset) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.datasets == nil {
		r.datasets = make(map[string]Dataset)
	}
	r.datasets[d.Name] = d
}

// Get returns the dataset for name, or false if not found.
func (r *Registry) Get(name string) (Dataset, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.datasets[name]
	return d, ok
}

// Lookup is Get with an error wrapping ErrUnknownDataset.
func (r *Registry) Lookup(name string) (Dataset, error) {
	d, ok := r.Get(name)
	if !ok {
		return Dataset{}, fmt.Errorf("%w: %q", ErrUnknownDataset, name)
	}
	return d, nil
}

// MustGet returns the dataset for name, or panics if not found.
func (r *Registry) MustGet(name string) Dataset {
	d, ok := r.Get(name)
	if !ok {
		panic(fmt.Sprintf("config: dataset %q not registered", name))
	}
	return d
}

// Names returns all registered dataset names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.datasets))
	for n := range r.datasets {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
