package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvDataRoot overrides Settings.DataRoot when set.
const EnvDataRoot = "TABPIPE_DATA_ROOT"

// Settings is the root structure of a tabpipe settings file.
type Settings struct {
	AppName  string            `yaml:"app_name"`
	DataRoot string            `yaml:"data_root"`
	Session  map[string]string `yaml:"session"` // session tuning keys, e.g. sql.shuffle.partitions
	Logging  Logging           `yaml:"logging"`

	Pipelines map[string]PipelineConfig `yaml:"pipelines"`
	Sequences map[string]SequenceConfig `yaml:"sequences"`
}

// Logging selects the log level and encoder ("json" or "console").
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// PipelineConfig defines one pipeline: the dataset it reads, the steps applied
// in order and the dataset it writes. Source and Sink are dataset names.
type PipelineConfig struct {
	Name   string    `yaml:"name"`
	Source string    `yaml:"source"`
	Sink   string    `yaml:"sink"` // optional
	Steps  []StepRef `yaml:"steps"`
}

// StepRef is a single step entry: either a plain name or name + options.
// In YAML, a step can be written as:
//   - conform-raw
//   - name: require-rows
//     timeout: 30s
type StepRef struct {
	Name    string   `yaml:"name"`
	Timeout Duration `yaml:"timeout"`
}

// UnmarshalYAML allows a step to be a string (step name only) or a struct.
func (s *StepRef) UnmarshalYAML(value *yaml.Node) error {
	var nameOnly string
	if err := value.Decode(&nameOnly); err == nil {
		s.Name = nameOnly
		return nil
	}
	type raw StepRef
	return value.Decode((*raw)(s))
}

// SequenceConfig names pipelines run one after another.
type SequenceConfig struct {
	Name      string   `yaml:"name"`
	Pipelines []string `yaml:"pipelines"`
}

// Duration is a time.Duration that unmarshals from YAML strings (e.g. "60s", "5m").
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Duration returns the standard time.Duration.
func (d Duration) Duration() time.Duration { return time.Duration(d) }

// DefaultSettings returns the settings used when no file is given.
func DefaultSettings() *Settings {
	s := &Settings{}
	s.setDefaults()
	return s
}

func (s *Settings) setDefaults() {
	if s.DataRoot == "" {
		s.DataRoot = "."
	}
	if s.Logging.Level == "" {
		s.Logging.Level = "info"
	}
	if s.Logging.Format == "" {
		s.Logging.Format = "json"
	}
	for name, p := range s.Pipelines {
		if p.Name == "" {
			p.Name = name
			s.Pipelines[name] = p
		}
	}
	for name, q := range s.Sequences {
		if q.Name == "" {
			q.Name = name
			s.Sequences[name] = q
		}
	}
}

// ParseSettings parses YAML bytes into Settings and fills defaults. Pipelines
// and sequences without a name take their map key.
//
// Example YAML:
//
//	app_name: titanic
//	data_root: /srv/data
//	session:
//	  sql.shuffle.partitions: "8"
//	pipelines:
//	  promote-train:
//	    source: schemeless/train
//	    sink: schematic/train
//	    steps: [conform-raw, require-rows]
func ParseSettings(data []byte) (*Settings, error) {
	var s Settings
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	s.setDefaults()
	return &s, nil
}

// LoadSettings reads and parses the settings file at path, then applies
// environment overrides.
func LoadSettings(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("settings: %w", err)
	}
	s, err := ParseSettings(data)
	if err != nil {
		return nil, fmt.Errorf("settings %q: %w", path, err)
	}
	s.ApplyEnv()
	return s, nil
}

// ApplyEnv overrides fields from the environment (EnvDataRoot).
func (s *Settings) ApplyEnv() {
	if root, ok := os.LookupEnv(EnvDataRoot); ok && root != "" {
		s.DataRoot = root
	}
}

// ParsePipelineConfig parses YAML bytes into a single PipelineConfig.
func ParsePipelineConfig(data []byte) (*PipelineConfig, error) {
	var cfg PipelineConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
