package config

import (
	"fmt"
	"path/filepath"
)

// Dataset locations, relative to the data root. Stages 1-3 are split into
// train and test files; the feature store holds the engineered and scaled
// feature tables.
const (
	SchemelessDataTrain = "data/1-Schemeless-Raw-Data/train.csv"
	SchemelessDataTest  = "data/1-Schemeless-Raw-Data/test.csv"

	SchematicDataTrain = "data/2-Schematic-Raw-Data/train.csv"
	SchematicDataTest  = "data/2-Schematic-Raw-Data/test.csv"

	PreprocessedDataTrain = "data/3-Preprocessed-Data/train.csv"
	PreprocessedDataTest  = "data/3-Preprocessed-Data/test.csv"

	FeatureData       = "data/4-Feature-Store/features.csv"
	ScaledFeatureData = "data/4-Feature-Store/scaled-features.csv"
)

// Stage is a step of the dataset lifecycle.
type Stage int

const (
	StageSchemeless Stage = iota + 1
	StageSchematic
	StagePreprocessed
	StageFeatureStore
)

// Stages lists every stage in pipeline order.
var Stages = []Stage{StageSchemeless, StageSchematic, StagePreprocessed, StageFeatureStore}

func (s Stage) String() string {
	switch s {
	case StageSchemeless:
		return "schemeless"
	case StageSchematic:
		return "schematic"
	case StagePreprocessed:
		return "preprocessed"
	case StageFeatureStore:
		return "features"
	default:
		return fmt.Sprintf("stage(%d)", int(s))
	}
}

// Dir returns the directory holding the stage's files.
func (s Stage) Dir() string {
	switch s {
	case StageSchemeless:
		return "data/1-Schemeless-Raw-Data"
	case StageSchematic:
		return "data/2-Schematic-Raw-Data"
	case StagePreprocessed:
		return "data/3-Preprocessed-Data"
	case StageFeatureStore:
		return "data/4-Feature-Store"
	default:
		return ""
	}
}

// Split selects the train or test variant of a stage.
type Split string

const (
	SplitTrain Split = "train"
	SplitTest  Split = "test"
)

// StagePath returns the path constant for stage and split. The feature store
// has no test split; its train variant is FeatureData.
func StagePath(stage Stage, split Split) (string, error) {
	switch split {
	case SplitTrain, SplitTest:
	default:
		return "", fmt.Errorf("unknown split %q", split)
	}
	switch stage {
	case StageSchemeless:
		return pick(split, SchemelessDataTrain, SchemelessDataTest), nil
	case StageSchematic:
		return pick(split, SchematicDataTrain, SchematicDataTest), nil
	case StagePreprocessed:
		return pick(split, PreprocessedDataTrain, PreprocessedDataTest), nil
	case StageFeatureStore:
		if split == SplitTest {
			return "", fmt.Errorf("stage %s has no %s split", stage, split)
		}
		return FeatureData, nil
	default:
		return "", fmt.Errorf("unknown stage %d", int(stage))
	}
}

func pick(split Split, train, test string) string {
	if split == SplitTest {
		return test
	}
	return train
}

// Resolve joins a relative dataset path onto root. An empty root leaves the
// path relative to the working directory; absolute paths are returned as is.
func Resolve(root, path string) string {
	if root == "" || filepath.IsAbs(path) {
		return filepath.FromSlash(path)
	}
	return filepath.Join(root, filepath.FromSlash(path))
}
