package relq

import (
	"fmt"

	"github.com/zoobzio/dbml"
)

// Schema holds the table, column, and relation metadata the query model
// resolves field paths against. Tables and columns come from a DBML
// project; to-one relations are registered on top with AddRelation.
type Schema struct {
	tables map[string]*TableInfo
}

// TableInfo describes one table in the schema.
type TableInfo struct {
	Name      string
	Columns   map[string]*ColumnInfo
	Relations map[string]*Relation
}

// ColumnInfo describes one column. Nullable comes from the DBML column
// settings.
type ColumnInfo struct {
	Name     string
	Type     string
	Nullable bool
}

// Relation describes a named to-one relation from one table to another.
// Nullable relations join through LEFT OUTER even outside aggregation,
// since an inner join would drop rows with no related row.
type Relation struct {
	Name         string
	Table        string // owning table
	Column       string // FK column on the owning table
	Target       string // target table
	TargetColumn string // joined column on the target, usually its key
	Nullable     bool
}

// NewFromDBML creates a Schema from a DBML project.
func NewFromDBML(project *dbml.Project) (*Schema, error) {
	if project == nil {
		return nil, fmt.Errorf("project cannot be nil")
	}

	s := &Schema{tables: make(map[string]*TableInfo)}
	for _, table := range project.Tables {
		ti := &TableInfo{
			Name:      table.Name,
			Columns:   make(map[string]*ColumnInfo),
			Relations: make(map[string]*Relation),
		}
		for _, col := range table.Columns {
			ti.Columns[col.Name] = &ColumnInfo{
				Name:     col.Name,
				Type:     col.Type,
				Nullable: col.Settings != nil && col.Settings.Null,
			}
		}
		s.tables[table.Name] = ti
	}
	return s, nil
}

// AddRelation registers a to-one relation reachable in field paths as
// "name.column". Both endpoints must already exist in the schema. The
// relation is treated as nullable when marked so or when the FK column
// itself is nullable.
func (s *Schema) AddRelation(table, name, fkColumn, toTable, toColumn string, nullable bool) error {
	owner, ok := s.tables[table]
	if !ok {
		return fmt.Errorf("table %q not found in schema", table)
	}
	if _, ok := owner.Columns[fkColumn]; !ok {
		return fmt.Errorf("column %q not found in table %q", fkColumn, table)
	}
	target, ok := s.tables[toTable]
	if !ok {
		return fmt.Errorf("table %q not found in schema", toTable)
	}
	if _, ok := target.Columns[toColumn]; !ok {
		return fmt.Errorf("column %q not found in table %q", toColumn, toTable)
	}
	if !isValidIdentifier(name) {
		return fmt.Errorf("invalid relation name %q", name)
	}

	// A nullable FK column cannot guarantee a matching row either way.
	owner.Relations[name] = &Relation{
		Name:         name,
		Table:        table,
		Column:       fkColumn,
		Target:       toTable,
		TargetColumn: toColumn,
		Nullable:     nullable || owner.Columns[fkColumn].Nullable,
	}
	return nil
}

// Table returns the metadata for a table, or an error if unknown.
func (s *Schema) Table(name string) (*TableInfo, error) {
	ti, ok := s.tables[name]
	if !ok {
		return nil, fmt.Errorf("table %q not found in schema", name)
	}
	return ti, nil
}

// column returns a table's column, or nil.
func (s *Schema) column(table, name string) *ColumnInfo {
	ti, ok := s.tables[table]
	if !ok {
		return nil
	}
	return ti.Columns[name]
}

// relation returns a table's named relation, or nil.
func (s *Schema) relation(table, name string) *Relation {
	ti, ok := s.tables[table]
	if !ok {
		return nil
	}
	return ti.Relations[name]
}

// Only allows alphanumerics and underscores, starting with a letter or
// underscore. Everything rendered into SQL as an identifier passes through
// this check first.
func isValidIdentifier(name string) bool {
	if name == "" {
		return false
	}
	first := name[0]
	if !((first >= 'a' && first <= 'z') ||
		(first >= 'A' && first <= 'Z') ||
		first == '_') {
		return false
	}
	for i := 1; i < len(name); i++ {
		ch := name[i]
		if !((ch >= 'a' && ch <= 'z') ||
			(ch >= 'A' && ch <= 'Z') ||
			(ch >= '0' && ch <= '9') ||
			ch == '_') {
			return false
		}
	}
	return true
}
