package lf

import (
	"strings"
)

// Column describes one typed column of a table.
type Column struct {
	Name     string
	Type     ValueKind
	Nullable bool
}

// IndexKind selects the index implementation backing a spec.
type IndexKind uint8

const (
	// IndexOrdered is a B-tree style index supporting range scans.
	IndexOrdered IndexKind = iota
	// IndexHash is a flat map index; range scans degrade to full scans.
	IndexHash
)

// IndexSpec describes a secondary index declared on a table.
type IndexSpec struct {
	Name    string
	Columns []string
	Unique  bool
	Kind    IndexKind
	Desc    bool // declared order of the index, descending when set
}

// Table is the immutable metadata of one table.
type Table struct {
	name       string
	columns    []*Column
	colsByName map[string]*Column
	primaryKey []string
	indices    []*IndexSpec
	pos        int
}

func (tbl *Table) Name() string { return tbl.name }

func (tbl *Table) Columns() []*Column {
	return append([]*Column(nil), tbl.columns...)
}

func (tbl *Table) ColumnNamed(name string) *Column {
	return tbl.colsByName[name]
}

func (tbl *Table) PrimaryKey() []string {
	return append([]string(nil), tbl.primaryKey...)
}

func (tbl *Table) Indices() []*IndexSpec {
	return append([]*IndexSpec(nil), tbl.indices...)
}

func (tbl *Table) IndexNamed(name string) *IndexSpec {
	for _, spec := range tbl.indices {
		if spec.Name == name {
			return spec
		}
	}
	return nil
}

// Schema is the immutable metadata of a database: a name, a monotonic
// version and a set of tables.
type Schema struct {
	name              string
	version           uint64
	tables            []*Table
	tablesByLowerName map[string]*Table
}

func (scm *Schema) Name() string    { return scm.name }
func (scm *Schema) Version() uint64 { return scm.version }

func (scm *Schema) Tables() []*Table {
	return append([]*Table(nil), scm.tables...)
}

func (scm *Schema) TableNamed(name string) *Table {
	return scm.tablesByLowerName[strings.ToLower(name)]
}
