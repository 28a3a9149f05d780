package database

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
)

// SchemaInspector provides PostgreSQL schema introspection capabilities
type SchemaInspector struct {
	conn Querier
}

// TableInfo represents metadata about a table or view
type TableInfo struct {
	Schema  string       `json:"schema"`
	Name    string       `json:"name"`
	Type    string       `json:"type"` // "table" or "view"
	Columns []ColumnInfo `json:"columns"`
}

// ColumnInfo represents metadata about a table column
type ColumnInfo struct {
	Name         string   `json:"name"`
	DataType     string   `json:"data_type"`
	UDTSchema    string   `json:"udt_schema,omitempty"`
	UDTName      string   `json:"udt_name,omitempty"`
	IsNullable   bool     `json:"is_nullable"`
	DefaultValue *string  `json:"default_value"`
	Position     int      `json:"position"`
	EnumValues   []string `json:"enum_values,omitempty"`
}

// NewSchemaInspector creates a new schema inspector
func NewSchemaInspector(conn Querier) *SchemaInspector {
	return &SchemaInspector{conn: conn}
}

// GetSchemas retrieves all non-system schemas
func (si *SchemaInspector) GetSchemas(ctx context.Context) ([]string, error) {
	query := `
		SELECT schema_name
		FROM information_schema.schemata
		WHERE schema_name NOT IN ('pg_catalog', 'information_schema')
			AND schema_name NOT LIKE 'pg_%'
		ORDER BY schema_name
	`

	rows, err := si.conn.Query(WithOperation(ctx, "schemas"), query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var schemas []string
	for rows.Next() {
		var schema string
		if err := rows.Scan(&schema); err != nil {
			return nil, err
		}
		schemas = append(schemas, schema)
	}

	return schemas, rows.Err()
}

// GetTables retrieves every table and view in the given schemas with their
// columns. Columns and enum labels are fetched in one batched query each.
func (si *SchemaInspector) GetTables(ctx context.Context, schemas ...string) ([]TableInfo, error) {
	if len(schemas) == 0 {
		schemas = []string{"public"}
	}

	query := `
		SELECT table_schema, table_name,
			CASE WHEN table_type = 'VIEW' THEN 'view' ELSE 'table' END
		FROM information_schema.tables
		WHERE table_schema = ANY($1)
			AND table_type IN ('BASE TABLE', 'VIEW')
		ORDER BY table_schema, table_name
	`

	rows, err := si.conn.Query(WithOperation(ctx, "tables"), query, schemas)
	if err != nil {
		return nil, err
	}

	var tables []TableInfo
	for rows.Next() {
		var t TableInfo
		if err := rows.Scan(&t.Schema, &t.Name, &t.Type); err != nil {
			rows.Close()
			return nil, err
		}
		tables = append(tables, t)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(tables) == 0 {
		return tables, nil
	}

	columns, err := si.batchGetColumns(ctx, schemas)
	if err != nil {
		return nil, fmt.Errorf("failed to get columns: %w", err)
	}

	for i := range tables {
		tables[i].Columns = columns[makeKey(tables[i].Schema, tables[i].Name)]
	}

	log.Debug().
		Strs("schemas", schemas).
		Int("tables", len(tables)).
		Msg("Inspected schema tables")

	return tables, nil
}

// GetTableInfo retrieves a single table or view. It returns ErrTableNotFound
// when the relation has no visible columns.
func (si *SchemaInspector) GetTableInfo(ctx context.Context, schema, table string) (*TableInfo, error) {
	columns, err := si.GetColumns(ctx, schema, table)
	if err != nil {
		return nil, err
	}
	if len(columns) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrTableNotFound, makeKey(schema, table))
	}
	return &TableInfo{Schema: schema, Name: table, Type: "table", Columns: columns}, nil
}

// GetColumns retrieves column information for one table
func (si *SchemaInspector) GetColumns(ctx context.Context, schema, table string) ([]ColumnInfo, error) {
	query := `
		SELECT column_name, data_type, udt_schema, udt_name,
			is_nullable, column_default, ordinal_position
		FROM information_schema.columns
		WHERE table_schema = $1 AND table_name = $2
		ORDER BY ordinal_position
	`

	rows, err := si.conn.Query(WithOperation(ctx, "columns"), query, schema, table)
	if err != nil {
		return nil, err
	}

	var columns []ColumnInfo
	for rows.Next() {
		col, err := scanColumn(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		columns = append(columns, col)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := si.attachEnumValues(ctx, []string{schema}, columns); err != nil {
		return nil, err
	}
	return columns, nil
}

// rowScanner is the subset of pgx.Rows used by scanColumn
type rowScanner interface {
	Scan(dest ...any) error
}

func scanColumn(rows rowScanner, prefix ...any) (ColumnInfo, error) {
	var col ColumnInfo
	var isNullable string

	dest := append(prefix,
		&col.Name,
		&col.DataType,
		&col.UDTSchema,
		&col.UDTName,
		&isNullable,
		&col.DefaultValue,
		&col.Position,
	)
	if err := rows.Scan(dest...); err != nil {
		return col, err
	}
	col.IsNullable = isNullable == "YES"
	return col, nil
}

// batchGetColumns retrieves columns for all tables in the given schemas.
// Returns map of "schema.table" -> columns
func (si *SchemaInspector) batchGetColumns(ctx context.Context, schemas []string) (map[string][]ColumnInfo, error) {
	query := `
		SELECT table_schema, table_name,
			column_name, data_type, udt_schema, udt_name,
			is_nullable, column_default, ordinal_position
		FROM information_schema.columns
		WHERE table_schema = ANY($1)
		ORDER BY table_schema, table_name, ordinal_position
	`

	rows, err := si.conn.Query(WithOperation(ctx, "columns"), query, schemas)
	if err != nil {
		return nil, err
	}

	type keyed struct {
		key string
		col ColumnInfo
	}
	var all []keyed
	for rows.Next() {
		var schema, table string
		col, err := scanColumn(rows, &schema, &table)
		if err != nil {
			rows.Close()
			return nil, err
		}
		all = append(all, keyed{key: makeKey(schema, table), col: col})
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	flat := make([]ColumnInfo, len(all))
	for i := range all {
		flat[i] = all[i].col
	}
	if err := si.attachEnumValues(ctx, schemas, flat); err != nil {
		return nil, err
	}

	result := make(map[string][]ColumnInfo)
	for i := range all {
		result[all[i].key] = append(result[all[i].key], flat[i])
	}
	return result, nil
}

// attachEnumValues fills EnumValues for every USER-DEFINED column whose type
// is an enum. Enum types may live outside the inspected schemas, so the
// lookup is keyed by the column's own udt_schema.
func (si *SchemaInspector) attachEnumValues(ctx context.Context, schemas []string, columns []ColumnInfo) error {
	typeSchemas := map[string]bool{}
	for _, s := range schemas {
		typeSchemas[s] = true
	}
	found := false
	for _, col := range columns {
		if col.DataType == "USER-DEFINED" {
			typeSchemas[col.UDTSchema] = true
			found = true
		}
	}
	if !found {
		return nil
	}

	lookup := make([]string, 0, len(typeSchemas))
	for s := range typeSchemas {
		lookup = append(lookup, s)
	}

	enums, err := si.getEnumValues(ctx, lookup)
	if err != nil {
		return fmt.Errorf("failed to get enum values: %w", err)
	}

	for i := range columns {
		if columns[i].DataType != "USER-DEFINED" {
			continue
		}
		if labels, ok := enums[makeKey(columns[i].UDTSchema, columns[i].UDTName)]; ok {
			columns[i].EnumValues = labels
		}
	}
	return nil
}

// getEnumValues returns enum labels in sort order keyed by "schema.type"
func (si *SchemaInspector) getEnumValues(ctx context.Context, schemas []string) (map[string][]string, error) {
	query := `
		SELECT n.nspname, t.typname, e.enumlabel
		FROM pg_type t
		JOIN pg_enum e ON e.enumtypid = t.oid
		JOIN pg_namespace n ON n.oid = t.typnamespace
		WHERE n.nspname = ANY($1)
		ORDER BY n.nspname, t.typname, e.enumsortorder
	`

	rows, err := si.conn.Query(WithOperation(ctx, "enums"), query, schemas)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make(map[string][]string)
	for rows.Next() {
		var schema, typ, label string
		if err := rows.Scan(&schema, &typ, &label); err != nil {
			return nil, err
		}
		key := makeKey(schema, typ)
		result[key] = append(result[key], label)
	}
	return result, rows.Err()
}
