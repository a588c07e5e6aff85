package config

import (
	"github.com/apache/arrow-go/v18/arrow"
)

// RoleKey is the field metadata key carrying a column's statistical role.
const RoleKey = "role"

// Column roles stored under RoleKey.
const (
	RoleCategorical = "categorical"
	RoleNumerical   = "numerical"
	RoleBoolean     = "boolean"
	RoleTarget      = "target"
)

func field(name string, typ arrow.DataType, role string) arrow.Field {
	return arrow.Field{
		Name:     name,
		Type:     typ,
		Nullable: true,
		Metadata: arrow.NewMetadata([]string{RoleKey}, []string{role}),
	}
}

var (
	// RawSchema is the shape of the ingested passenger files. Field order
	// matches the CSV header.
	RawSchema = arrow.NewSchema([]arrow.Field{
		field("PassengerId", arrow.BinaryTypes.String, RoleCategorical),
		field("HomePlanet", arrow.BinaryTypes.String, RoleCategorical),
		field("CryoSleep", arrow.FixedWidthTypes.Boolean, RoleBoolean),
		field("Cabin", arrow.BinaryTypes.String, RoleCategorical),
		field("Destination", arrow.BinaryTypes.String, RoleCategorical),
		field("Age", arrow.PrimitiveTypes.Int32, RoleNumerical),
		field("VIP", arrow.FixedWidthTypes.Boolean, RoleBoolean),
		field("RoomService", arrow.PrimitiveTypes.Float32, RoleNumerical),
		field("FoodCourt", arrow.PrimitiveTypes.Float32, RoleNumerical),
		field("ShoppingMall", arrow.PrimitiveTypes.Float32, RoleNumerical),
		field("Spa", arrow.PrimitiveTypes.Float32, RoleNumerical),
		field("VRDeck", arrow.PrimitiveTypes.Float32, RoleNumerical),
		field("Name", arrow.BinaryTypes.String, RoleCategorical),
		field(TargetColumn, arrow.FixedWidthTypes.Boolean, RoleTarget),
	}, nil)

	// FeaturizedSchema is the shape of the feature store tables: the raw
	// columns without identifiers, with the cabin split into deck and side.
	FeaturizedSchema = arrow.NewSchema([]arrow.Field{
		field("HomePlanet", arrow.BinaryTypes.String, RoleCategorical),
		field("CryoSleep", arrow.FixedWidthTypes.Boolean, RoleBoolean),
		field("Destination", arrow.BinaryTypes.String, RoleCategorical),
		field("Age", arrow.PrimitiveTypes.Int32, RoleNumerical),
		field("VIP", arrow.FixedWidthTypes.Boolean, RoleBoolean),
		field("RoomService", arrow.PrimitiveTypes.Float32, RoleNumerical),
		field("FoodCourt", arrow.PrimitiveTypes.Float32, RoleNumerical),
		field("ShoppingMall", arrow.PrimitiveTypes.Float32, RoleNumerical),
		field("Spa", arrow.PrimitiveTypes.Float32, RoleNumerical),
		field("VRDeck", arrow.PrimitiveTypes.Float32, RoleNumerical),
		field(TargetColumn, arrow.FixedWidthTypes.Boolean, RoleTarget),
		field("CabinDeck", arrow.BinaryTypes.String, RoleCategorical),
		field("CabinSide", arrow.BinaryTypes.String, RoleCategorical),
	}, nil)
)

// FieldNames returns the schema's field names in order.
func FieldNames(s *arrow.Schema) []string {
	names := make([]string, 0, s.NumFields())
	for _, f := range s.Fields() {
		names = append(names, f.Name)
	}
	return names
}

// Role returns the role recorded in the field's metadata, or "" when unset.
func Role(f arrow.Field) string {
	i := f.Metadata.FindKey(RoleKey)
	if i < 0 {
		return ""
	}
	return f.Metadata.Values()[i]
}
