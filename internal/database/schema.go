package database

// ColumnInfo describes a single column in a table.
type ColumnInfo struct {
	Name      string
	DataType  string // engine type name: text, INTEGER, varchar, …
	Nullable  bool
	Default   *string // nil if no default
	IsPrimary bool
	IsUnique  bool
}

// ForeignKey describes a reference from one column to another table.
type ForeignKey struct {
	Column    string
	RefTable  string
	RefColumn string
}

// TableInfo describes a table, its columns and keys.
type TableInfo struct {
	Name        string
	Columns     []*ColumnInfo
	PrimaryKey  []string
	ForeignKeys []*ForeignKey
}

// Schema is the full introspected database schema. Tables are kept in the
// order ListTables returned them so rendered descriptions are stable.
type Schema struct {
	Tables []*TableInfo
}

// Table returns the table with the given name, or nil.
func (s *Schema) Table(name string) *TableInfo {
	for _, t := range s.Tables {
		if t.Name == name {
			return t
		}
	}
	return nil
}

// MarkKeys sets IsPrimary and IsUnique on t's columns from the given
// column name lists.
func (t *TableInfo) MarkKeys(primary, unique []string) {
	pkSet := toSet(primary)
	uqSet := toSet(unique)
	for _, col := range t.Columns {
		col.IsPrimary = pkSet[col.Name]
		col.IsUnique = uqSet[col.Name]
	}
}

func toSet(ss []string) map[string]bool {
	m := make(map[string]bool, len(ss))
	for _, s := range ss {
		m[s] = true
	}
	return m
}
