package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
)

// TargetColumn is the label the models predict.
const TargetColumn = "Transported"

var (
	CategoricalColumns = []string{"PassengerId", "HomePlanet", "Cabin", "Destination", "Name"}
	NumericalColumns   = []string{"Age", "RoomService", "FoodCourt", "ShoppingMall", "Spa", "VRDeck"}
	BooleanColumns     = []string{"CryoSleep", "VIP"}

	CategoricalColumnsFeaturized = []string{"HomePlanet", "Destination", "CabinDeck", "CabinSide"}
	NumericalColumnsFeaturized   = []string{"Age", "RoomService", "FoodCourt", "ShoppingMall", "Spa", "VRDeck"}
)

// Groups partitions a schema's columns by role.
type Groups struct {
	Categorical []string
	Numerical   []string
	Boolean     []string
	Target      string
}

// RawGroups returns the groupings for RawSchema. The slices are copies.
func RawGroups() Groups {
	return Groups{
		Categorical: clone(CategoricalColumns),
		Numerical:   clone(NumericalColumns),
		Boolean:     clone(BooleanColumns),
		Target:      TargetColumn,
	}
}

// FeaturizedGroups returns the groupings for FeaturizedSchema. The featurized
// tables keep the raw boolean columns.
func FeaturizedGroups() Groups {
	return Groups{
		Categorical: clone(CategoricalColumnsFeaturized),
		Numerical:   clone(NumericalColumnsFeaturized),
		Boolean:     clone(BooleanColumns),
		Target:      TargetColumn,
	}
}

func clone(cols []string) []string {
	return append([]string(nil), cols...)
}

// ErrInconsistentGroups is returned by CheckGroups.
var ErrInconsistentGroups = errors.New("column groups inconsistent with schema")

// CheckGroups reports every grouped column missing from s, every column that
// appears in more than one group, and a target that is absent or grouped.
func CheckGroups(s *arrow.Schema, g Groups) error {
	var problems []string
	seen := make(map[string]string)
	check := func(group string, cols []string) {
		for _, c := range cols {
			if !s.HasField(c) {
				problems = append(problems, fmt.Sprintf("%s column %q not in schema", group, c))
			}
			if prev, ok := seen[c]; ok {
				problems = append(problems, fmt.Sprintf("column %q in both %s and %s", c, prev, group))
				continue
			}
			seen[c] = group
		}
	}
	check(RoleCategorical, g.Categorical)
	check(RoleNumerical, g.Numerical)
	check(RoleBoolean, g.Boolean)

	if g.Target != "" {
		if !s.HasField(g.Target) {
			problems = append(problems, fmt.Sprintf("target %q not in schema", g.Target))
		}
		if group, ok := seen[g.Target]; ok {
			problems = append(problems, fmt.Sprintf("target %q also listed as %s", g.Target, group))
		}
	}
	if len(problems) == 0 {
		return nil
	}
	sort.Strings(problems)
	return fmt.Errorf("%w: %s", ErrInconsistentGroups, strings.Join(problems, "; "))
}
