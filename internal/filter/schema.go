package filter

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/supabase/supabase-sub056/internal/database"
)

// Operators offered for columns of each family
var (
	opEqual          = Choice{Label: "equals", Value: "="}
	opNotEqual       = Choice{Label: "not equal", Value: "<>"}
	opGreaterThan    = Choice{Label: "greater than", Value: ">"}
	opGreaterOrEqual = Choice{Label: "greater than or equal", Value: ">="}
	opLessThan       = Choice{Label: "less than", Value: "<"}
	opLessOrEqual    = Choice{Label: "less than or equal", Value: "<="}
	opLike           = Choice{Label: "like", Value: "~~"}
	opILike          = Choice{Label: "like (case insensitive)", Value: "~~*"}
	opIs             = Choice{Label: "is", Value: "is"}
)

// OperatorsForType returns the operators that make sense for a Postgres data type.
func OperatorsForType(dataType string) []Choice {
	switch typeFamily(dataType) {
	case TypeNumber, TypeDate:
		return []Choice{opEqual, opNotEqual, opGreaterThan, opGreaterOrEqual, opLessThan, opLessOrEqual, opIs}
	case TypeBoolean:
		return []Choice{opEqual, opNotEqual, opIs}
	default:
		if strings.Contains(dataType, "char") || strings.Contains(dataType, "text") {
			return []Choice{opEqual, opNotEqual, opLike, opILike, opIs}
		}
		return []Choice{opEqual, opNotEqual, opIs}
	}
}

func typeFamily(dataType string) PropertyType {
	dt := strings.ToLower(dataType)
	switch {
	case strings.Contains(dt, "int") && !strings.Contains(dt, "interval") && !strings.Contains(dt, "point"),
		strings.Contains(dt, "numeric"), strings.Contains(dt, "decimal"),
		strings.Contains(dt, "real"), strings.Contains(dt, "double"), strings.Contains(dt, "serial"):
		return TypeNumber
	case strings.Contains(dt, "bool"):
		return TypeBoolean
	case strings.Contains(dt, "date"), strings.Contains(dt, "time"):
		return TypeDate
	default:
		return TypeString
	}
}

// PropertiesFromColumns builds the filter schema for a table. Enum columns
// offer their labels as options.
func PropertiesFromColumns(columns []database.ColumnInfo) []Property {
	props := make([]Property, 0, len(columns))
	for _, col := range columns {
		dataType := col.DataType
		if dataType == "USER-DEFINED" && col.UDTName != "" {
			dataType = col.UDTName
		}

		p := Property{
			Label:     col.Name,
			Name:      col.Name,
			Type:      typeFamily(dataType),
			Operators: OperatorsForType(dataType),
		}
		if len(col.EnumValues) > 0 {
			p.Type = TypeString
			p.Operators = []Choice{opEqual, opNotEqual, opIs}
			p.Options = Texts(col.EnumValues...)
		}
		props = append(props, p)
	}
	return props
}

// LoadProperties reads a property schema from a YAML or JSON file.
func LoadProperties(path string) ([]Property, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read property schema: %w", err)
	}
	return ParseProperties(data, filepath.Ext(path))
}

// ParseProperties decodes a property schema. ext selects the format; anything
// other than ".json" is read as YAML.
func ParseProperties(data []byte, ext string) ([]Property, error) {
	var props []Property
	if strings.EqualFold(ext, ".json") {
		if err := json.Unmarshal(data, &props); err != nil {
			return nil, fmt.Errorf("failed to parse property schema: %w", err)
		}
	} else if err := yaml.Unmarshal(data, &props); err != nil {
		return nil, fmt.Errorf("failed to parse property schema: %w", err)
	}

	for i, p := range props {
		if p.Name == "" {
			return nil, fmt.Errorf("property %d has no name", i)
		}
		if p.Label == "" {
			props[i].Label = p.Name
		}
		if p.Type == "" {
			props[i].Type = TypeString
		}
	}
	return props, nil
}
