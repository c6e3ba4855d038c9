package value

// ColumnType is the declared type token for a table column, as written in
// CREATE TABLE (INT, STR, FLOAT, BOOL all collapse onto the Value model;
// the declared token is kept only for round-tripping metadata).
type ColumnType string

const (
	ColInt    ColumnType = "INT"
	ColStr    ColumnType = "STR"
	ColFloat  ColumnType = "FLOAT"
	ColBool   ColumnType = "BOOL"
)

// ColumnDef names one column of a table's schema, in declaration order.
type ColumnDef struct {
	Name string
	Type ColumnType
}

// Schema is a table's column list (ordered), its primary-key column name,
// and the set of secondary indexes declared on it (index name -> indexed
// column name). Unlike the teacher's CompositeKey model, the primary key
// here is always exactly one column, matching spec.md's single-column PK.
type Schema struct {
	Columns    []ColumnDef
	PrimaryKey string
	Indexes    map[string]string // index name -> column name
}

// ColumnNames returns the schema's column names in declaration order.
func (s *Schema) ColumnNames() []string {
	names := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		names[i] = c.Name
	}
	return names
}

// HasColumn reports whether name is a declared column of s.
func (s *Schema) HasColumn(name string) bool {
	for _, c := range s.Columns {
		if c.Name == name {
			return true
		}
	}
	return false
}
