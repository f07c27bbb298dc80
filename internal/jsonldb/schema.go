// Describes the row type in the first line of every table file.

package jsonldb

import (
	"errors"
	"fmt"
	"reflect"
	"slices"

	"github.com/invopop/jsonschema"
)

// currentVersion is the current version of the JSONL table format.
const currentVersion = "1.0"

type columnType string

const (
	columnTypeText   columnType = "text"
	columnTypeNumber columnType = "number"
	columnTypeBool   columnType = "bool"
	columnTypeDate   columnType = "date"
	columnTypeJSONB  columnType = "jsonb"
)

// column describes one JSON field of the rows.
type column struct {
	Name        string     `json:"name"`
	Type        columnType `json:"type"`
	Required    bool       `json:"required,omitempty"`
	Description string     `json:"description,omitempty"`
}

// schemaHeader is the first line of a table file.
type schemaHeader struct {
	Version string   `json:"version"`
	Columns []column `json:"columns"`
}

func (h *schemaHeader) Validate() error {
	if h.Version == "" {
		return errors.New("schema version is required")
	}
	for i := range h.Columns {
		if h.Columns[i].Name == "" || h.Columns[i].Type == "" {
			return fmt.Errorf("column %d: name and type are required", i)
		}
	}
	return nil
}

// schemaFromType derives the columns of T, a struct or pointer to struct,
// from its JSON Schema. Descriptions come from `jsonschema:"description=..."`
// tags and a field is required unless tagged omitempty.
func schemaFromType[T any]() ([]column, error) {
	t := reflect.TypeFor[T]()
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("row type must be a struct, got %s", reflect.TypeFor[T]())
	}
	r := jsonschema.Reflector{Anonymous: true, DoNotReference: true, ExpandedStruct: true}
	s := r.ReflectFromType(t)
	var columns []column
	for pair := s.Properties.Oldest(); pair != nil; pair = pair.Next() {
		columns = append(columns, column{
			Name:        pair.Key,
			Type:        toColumnType(pair.Value),
			Required:    slices.Contains(s.Required, pair.Key),
			Description: pair.Value.Description,
		})
	}
	return columns, nil
}

func toColumnType(s *jsonschema.Schema) columnType {
	switch s.Type {
	case "string":
		if s.Format == "date-time" || s.Format == "date" {
			return columnTypeDate
		}
		return columnTypeText
	case "integer", "number":
		return columnTypeNumber
	case "boolean":
		return columnTypeBool
	case "object", "array":
		return columnTypeJSONB
	default:
		return columnTypeText
	}
}
