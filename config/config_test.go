package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"gopkg.in/yaml.v3"

	"github.com/ctolon/tabpipe/pipeline"
)

func TestParsePipelineConfig_Simple(t *testing.T) {
	data := `
name: promote
source: schemeless/train
sink: schematic/train
steps:
  - conform-raw
  - require-rows
`
	cfg, err := ParsePipelineConfig([]byte(data))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Name != "promote" || cfg.Source != "schemeless/train" || cfg.Sink != "schematic/train" {
		t.Errorf("cfg = %+v", cfg)
	}
	if len(cfg.Steps) != 2 {
		t.Fatalf("steps: got %d", len(cfg.Steps))
	}
	if cfg.Steps[0].Name != "conform-raw" || cfg.Steps[1].Name != "require-rows" {
		t.Errorf("step names: %v", cfg.Steps)
	}
}

func TestParsePipelineConfig_WithOptions(t *testing.T) {
	data := `
name: with-timeout
source: features
steps:
  - identity
  - name: conform-featurized
    timeout: 90s
`
	cfg, err := ParsePipelineConfig([]byte(data))
	if err != nil {
		t.Fatal(err)
	}
	if len(cfg.Steps) != 2 {
		t.Fatalf("steps: got %d", len(cfg.Steps))
	}
	s1 := cfg.Steps[1]
	if s1.Name != "conform-featurized" || s1.Timeout.Duration() != 90*time.Second {
		t.Errorf("step 1: %+v", s1)
	}
	if cfg.Steps[0].Timeout != 0 {
		t.Errorf("step 0 timeout: %v", cfg.Steps[0].Timeout.Duration())
	}
}

func TestDuration_Invalid(t *testing.T) {
	var ref StepRef
	err := yaml.Unmarshal([]byte("name: x\ntimeout: soon\n"), &ref)
	if err == nil || !strings.Contains(err.Error(), `duration "soon"`) {
		t.Errorf("err = %v", err)
	}
}

func TestDuration_Marshal(t *testing.T) {
	out, err := yaml.Marshal(StepRef{Name: "x", Timeout: Duration(2 * time.Minute)})
	if err != nil {
		t.Fatal(err)
	}
	var back StepRef
	if err := yaml.Unmarshal(out, &back); err != nil {
		t.Fatal(err)
	}
	if back.Timeout.Duration() != 2*time.Minute {
		t.Errorf("round trip: %s -> %v", out, back.Timeout.Duration())
	}
}

func TestParseSettings(t *testing.T) {
	data := `
app_name: titanic
data_root: /srv/titanic
session:
  sql.shuffle.partitions: "8"
  serializer: zstd
logging:
  level: debug
pipelines:
  promote-train:
    source: schemeless/train
    sink: schematic/train
    steps: [conform-raw]
  named:
    name: custom
    source: features
sequences:
  promote:
    pipelines: [promote-train, named]
`
	s, err := ParseSettings([]byte(data))
	if err != nil {
		t.Fatal(err)
	}
	if s.AppName != "titanic" || s.DataRoot != "/srv/titanic" {
		t.Errorf("settings = %+v", s)
	}
	if s.Session["sql.shuffle.partitions"] != "8" || s.Session["serializer"] != "zstd" {
		t.Errorf("session = %v", s.Session)
	}
	if s.Logging.Level != "debug" || s.Logging.Format != "json" {
		t.Errorf("logging = %+v", s.Logging)
	}
	if got := s.Pipelines["promote-train"].Name; got != "promote-train" {
		t.Errorf("unnamed pipeline takes its key, got %q", got)
	}
	if got := s.Pipelines["named"].Name; got != "custom" {
		t.Errorf("named pipeline keeps its name, got %q", got)
	}
	if q := s.Sequences["promote"]; q.Name != "promote" || len(q.Pipelines) != 2 {
		t.Errorf("sequence = %+v", q)
	}
}

func TestParseSettings_Invalid(t *testing.T) {
	if _, err := ParseSettings([]byte("pipelines: [unclosed")); err == nil {
		t.Error("expected a YAML error")
	}
}

func TestDefaultSettings(t *testing.T) {
	s := DefaultSettings()
	if s.DataRoot != "." || s.Logging.Level != "info" || s.Logging.Format != "json" {
		t.Errorf("defaults = %+v", s)
	}
}

func TestLoadSettings_EnvOverride(t *testing.T) {
	t.Setenv(EnvDataRoot, "")
	path := filepath.Join(t.TempDir(), "tabpipe.yaml")
	if err := os.WriteFile(path, []byte("data_root: /from/file\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	s, err := LoadSettings(path)
	if err != nil {
		t.Fatal(err)
	}
	if s.DataRoot != "/from/file" {
		t.Errorf("DataRoot = %q", s.DataRoot)
	}

	t.Setenv(EnvDataRoot, "/from/env")
	s, err = LoadSettings(path)
	if err != nil {
		t.Fatal(err)
	}
	if s.DataRoot != "/from/env" {
		t.Errorf("DataRoot with %s = %q", EnvDataRoot, s.DataRoot)
	}
}

func TestLoadSettings_Missing(t *testing.T) {
	_, err := LoadSettings(filepath.Join(t.TempDir(), "absent.yaml"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("err = %v, want ErrNotExist", err)
	}
}

// memIO keeps tables in memory, keyed by path.
type memIO struct {
	mu      sync.Mutex
	tables  map[string]arrow.Table
	schemas map[string]*arrow.Schema
}

func newMemIO() *memIO {
	return &memIO{tables: map[string]arrow.Table{}, schemas: map[string]*arrow.Schema{}}
}

func (m *memIO) ReadTable(ctx context.Context, path string, schema *arrow.Schema) (arrow.Table, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tbl, ok := m.tables[path]
	if !ok {
		return nil, os.ErrNotExist
	}
	m.schemas[path] = schema
	tbl.Retain()
	return tbl, nil
}

func (m *memIO) WriteTable(ctx context.Context, path string, tbl arrow.Table) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if old, ok := m.tables[path]; ok {
		old.Release()
	}
	tbl.Retain()
	m.tables[path] = tbl
	return nil
}

func (m *memIO) release() {
	for _, tbl := range m.tables {
		tbl.Release()
	}
}

func rawRows(n int) arrow.Table {
	b := array.NewRecordBuilder(memory.DefaultAllocator, RawSchema)
	defer b.Release()
	for i := 0; i < n; i++ {
		for j := range RawSchema.Fields() {
			b.Field(j).AppendNull()
		}
	}
	rec := b.NewRecord()
	defer rec.Release()
	return array.NewTableFromRecords(RawSchema, []arrow.Record{rec})
}

func TestBuildPipeline(t *testing.T) {
	io := newMemIO()
	defer io.release()
	root := "/data"
	src := rawRows(4)
	io.tables[Resolve(root, SchemelessDataTrain)] = src

	cfg := &PipelineConfig{
		Name:   "promote",
		Source: "schemeless/train",
		Sink:   "schematic/train",
		Steps:  []StepRef{{Name: "conform-raw"}, {Name: "require-rows", Timeout: Duration(time.Second)}},
	}
	p, err := BuildPipeline(DefaultSteps(), DefaultDatasets(), io, root, cfg)
	if err != nil {
		t.Fatal(err)
	}
	if p.Name != "promote" || len(p.Steps) != 4 {
		t.Fatalf("pipeline %q with %d steps", p.Name, len(p.Steps))
	}

	out, err := p.Run(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	defer out.Release()
	if out.NumRows() != 4 {
		t.Errorf("rows = %d", out.NumRows())
	}
	written, ok := io.tables[Resolve(root, SchematicDataTrain)]
	if !ok || written.NumRows() != 4 {
		t.Errorf("sink not written: %v", io.tables)
	}
	if io.schemas[Resolve(root, SchemelessDataTrain)] != RawSchema {
		t.Error("source read without RawSchema")
	}
}

func TestBuildPipeline_NoSink(t *testing.T) {
	io := newMemIO()
	defer io.release()
	p, err := BuildPipeline(DefaultSteps(), DefaultDatasets(), io, "", &PipelineConfig{Name: "check", Source: "features"})
	if err != nil {
		t.Fatal(err)
	}
	if len(p.Steps) != 0 {
		t.Errorf("steps = %d, want 0", len(p.Steps))
	}
	if _, err := p.Run(context.Background(), nil); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("run err = %v, want ErrNotExist", err)
	}
}

func TestBuildPipeline_SinkSchemaEnforced(t *testing.T) {
	io := newMemIO()
	defer io.release()
	io.tables[Resolve("", SchematicDataTrain)] = rawRows(1)

	p, err := BuildPipeline(DefaultSteps(), DefaultDatasets(), io, "", &PipelineConfig{Source: "schematic/train", Sink: "features"})
	if err != nil {
		t.Fatal(err)
	}
	_, err = p.Run(context.Background(), nil)
	if err == nil || !strings.Contains(err.Error(), "step 0: ") {
		t.Fatalf("err = %v, want conform failure", err)
	}
	if _, ok := io.tables[Resolve("", FeatureData)]; ok {
		t.Error("features written despite schema mismatch")
	}
}

func TestBuildPipeline_Errors(t *testing.T) {
	tests := []struct {
		name string
		cfg  *PipelineConfig
		want string
	}{
		{"nil config", nil, "config is nil"},
		{"no source", &PipelineConfig{Name: "x"}, "source dataset required"},
		{"unknown source", &PipelineConfig{Source: "raw"}, `source: unknown dataset: "raw"`},
		{"unknown sink", &PipelineConfig{Source: "features", Sink: "models"}, `sink: unknown dataset: "models"`},
		{"unnamed step", &PipelineConfig{Source: "features", Steps: []StepRef{{}}}, "step 0: name required"},
		{"unknown step", &PipelineConfig{Source: "features", Steps: []StepRef{{Name: "identity"}, {Name: "scale"}}}, `step 1: "scale" not in registry`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := BuildPipeline(DefaultSteps(), DefaultDatasets(), newMemIO(), "", tt.cfg)
			if err == nil || err.Error() != tt.want {
				t.Errorf("err = %v, want %q", err, tt.want)
			}
		})
	}
	_, err := BuildPipeline(DefaultSteps(), DefaultDatasets(), newMemIO(), "", &PipelineConfig{Source: "raw"})
	if !errors.Is(err, ErrUnknownDataset) {
		t.Errorf("err = %v, want ErrUnknownDataset", err)
	}
}

func TestBuildAllPipelinesAndSequences(t *testing.T) {
	s, err := ParseSettings([]byte(`
pipelines:
  a:
    source: schemeless/train
    sink: schematic/train
  b:
    source: schemeless/test
    sink: schematic/test
sequences:
  both:
    pipelines: [a, b]
`))
	if err != nil {
		t.Fatal(err)
	}
	s.DataRoot = "root"

	io := newMemIO()
	defer io.release()
	io.tables[Resolve(s.DataRoot, SchemelessDataTrain)] = rawRows(2)
	io.tables[Resolve(s.DataRoot, SchemelessDataTest)] = rawRows(1)

	built, err := BuildAllPipelines(DefaultSteps(), DefaultDatasets(), io, s)
	if err != nil {
		t.Fatal(err)
	}
	if len(built) != 2 || built["a"].Name != "a" {
		t.Fatalf("built = %v", built)
	}
	seqs, err := BuildAllSequences(s, built)
	if err != nil {
		t.Fatal(err)
	}
	seq := seqs["both"]
	if seq == nil || len(seq.Pipelines) != 2 {
		t.Fatalf("sequences = %v", seqs)
	}
	if err := seq.Run(context.Background(), nil); err != nil {
		t.Fatal(err)
	}
	if tbl := io.tables[Resolve(s.DataRoot, SchematicDataTest)]; tbl == nil || tbl.NumRows() != 1 {
		t.Errorf("schematic/test not written")
	}
}

func TestBuildAllPipelines_Error(t *testing.T) {
	s := &Settings{Pipelines: map[string]PipelineConfig{"bad": {Source: "nowhere"}}}
	_, err := BuildAllPipelines(DefaultSteps(), DefaultDatasets(), newMemIO(), s)
	if err == nil || !strings.HasPrefix(err.Error(), `pipeline "bad": `) {
		t.Errorf("err = %v", err)
	}
	if _, err := BuildAllPipelines(DefaultSteps(), DefaultDatasets(), newMemIO(), nil); err == nil {
		t.Error("nil settings should be an error")
	}
}

func TestBuildSequence_Missing(t *testing.T) {
	_, err := BuildSequence(&SequenceConfig{Name: "s", Pipelines: []string{"x"}}, map[string]*pipeline.Pipeline{})
	if err == nil || !strings.Contains(err.Error(), `"x" not in built pipelines`) {
		t.Errorf("err = %v", err)
	}
	seqs, err := BuildAllSequences(DefaultSettings(), nil)
	if err != nil || len(seqs) != 0 {
		t.Errorf("no sequences: %v, %v", seqs, err)
	}
}
