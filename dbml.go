package relq

import (
	"fmt"
	"strings"

	"github.com/zoobzio/dbml"
)

// SchemaFromDBML converts a DBML table definition into a record schema, so
// symbols can be declared against a schema that already describes the
// backend. Columns are treated as nullable: DBML columns admit NULL unless
// constrained, and nullable is the safe direction for promotion.
func SchemaFromDBML(table *dbml.Table) (Schema, error) {
	if table == nil {
		return Schema{}, &SchemaError{Op: "dbml", Detail: "table is nil"}
	}
	cols := make([]Column, 0, len(table.Columns))
	for _, c := range table.Columns {
		t, err := scalarTypeFromDBML(c.Type)
		if err != nil {
			return Schema{}, &SchemaError{
				Op:     "dbml",
				Detail: fmt.Sprintf("column %q: %v", c.Name, err),
			}
		}
		cols = append(cols, Column{Name: c.Name, Type: t, Nullable: true})
	}
	if len(cols) == 0 {
		return Schema{}, &SchemaError{Op: "dbml", Detail: fmt.Sprintf("table %q has no columns", table.Name)}
	}
	return Record(cols...), nil
}

// SchemasFromDBML converts every table of a DBML project, keyed by table
// name.
func SchemasFromDBML(project *dbml.Project) (map[string]Schema, error) {
	if project == nil {
		return nil, &SchemaError{Op: "dbml", Detail: "project is nil"}
	}
	out := make(map[string]Schema, len(project.Tables))
	for _, t := range project.Tables {
		s, err := SchemaFromDBML(t)
		if err != nil {
			return nil, err
		}
		out[t.Name] = s
	}
	return out, nil
}

func scalarTypeFromDBML(dbType string) (ScalarType, error) {
	switch strings.ToLower(dbType) {
	case "bool", "boolean", "bit":
		return Bool, nil
	case "int", "integer", "smallint", "serial":
		return Int32, nil
	case "bigint", "bigserial":
		return Int64, nil
	case "real", "float", "double", "double precision", "numeric", "decimal":
		return Float64, nil
	case "text", "varchar", "char", "character varying", "uuid":
		return String, nil
	case "timestamp", "timestamptz", "datetime", "date":
		return Datetime, nil
	case "interval":
		return Duration, nil
	default:
		return "", fmt.Errorf("no scalar type for db type %q", dbType)
	}
}
