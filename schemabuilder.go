package lf

import (
	"fmt"
	"strings"
)

// ColumnOpt modifies a column declaration.
type ColumnOpt int

const (
	// NotNull marks the column as rejecting null values.
	NotNull ColumnOpt = iota
)

// SchemaBuilder accumulates tables and freezes them into a Schema.
type SchemaBuilder struct {
	scm *Schema
	cur *Table
	err error
}

// NewSchema starts building a schema with the given name and version.
func NewSchema(name string, version uint64) *SchemaBuilder {
	return &SchemaBuilder{
		scm: &Schema{
			name:              name,
			version:           version,
			tablesByLowerName: make(map[string]*Table),
		},
	}
}

func (sb *SchemaBuilder) fail(err error) *SchemaBuilder {
	if sb.err == nil {
		sb.err = err
	}
	return sb
}

// Table starts a new table declaration; subsequent Column, PrimaryKey
// and Index calls apply to it.
func (sb *SchemaBuilder) Table(name string) *SchemaBuilder {
	if name == "" {
		return sb.fail(errf(CodeSyntax, nil, "empty table name"))
	}
	if sb.scm.tablesByLowerName[strings.ToLower(name)] != nil {
		return sb.fail(errf(CodeSyntax, nil, "duplicate table %q", name))
	}
	tbl := &Table{
		name:       name,
		colsByName: make(map[string]*Column),
		pos:        len(sb.scm.tables),
	}
	sb.scm.tables = append(sb.scm.tables, tbl)
	sb.scm.tablesByLowerName[strings.ToLower(name)] = tbl
	sb.cur = tbl
	return sb
}

func (sb *SchemaBuilder) Column(name string, typ ValueKind, opts ...ColumnOpt) *SchemaBuilder {
	tbl := sb.cur
	if tbl == nil {
		return sb.fail(errf(CodeSyntax, nil, "Column(%q) before Table", name))
	}
	if typ == KindNull {
		return sb.fail(tableErrf(CodeSyntax, tbl.name, name, nil, "null is not a column type"))
	}
	if tbl.colsByName[name] != nil {
		return sb.fail(tableErrf(CodeSyntax, tbl.name, name, nil, "duplicate column"))
	}
	col := &Column{Name: name, Type: typ, Nullable: true}
	for _, opt := range opts {
		switch opt {
		case NotNull:
			col.Nullable = false
		default:
			panic(fmt.Errorf("invalid option %v", opt))
		}
	}
	tbl.columns = append(tbl.columns, col)
	tbl.colsByName[name] = col
	return sb
}

// PrimaryKey declares the primary key columns. The declaration adds an
// implicit unique index and makes the columns non-nullable.
func (sb *SchemaBuilder) PrimaryKey(cols ...string) *SchemaBuilder {
	tbl := sb.cur
	if tbl == nil {
		return sb.fail(errf(CodeSyntax, nil, "PrimaryKey before Table"))
	}
	if len(tbl.primaryKey) != 0 {
		return sb.fail(tableErrf(CodeSyntax, tbl.name, "", nil, "duplicate primary key"))
	}
	tbl.primaryKey = cols
	return sb
}

// Index declares a non-unique ordered index over the given columns.
func (sb *SchemaBuilder) Index(name string, cols ...string) *SchemaBuilder {
	return sb.addIndex(&IndexSpec{Name: name, Columns: cols})
}

// UniqueIndex declares a unique ordered index over the given columns.
func (sb *SchemaBuilder) UniqueIndex(name string, cols ...string) *SchemaBuilder {
	return sb.addIndex(&IndexSpec{Name: name, Columns: cols, Unique: true})
}

// HashIndex declares a flat map index; lookups are by equality only.
func (sb *SchemaBuilder) HashIndex(name string, cols ...string) *SchemaBuilder {
	return sb.addIndex(&IndexSpec{Name: name, Columns: cols, Kind: IndexHash})
}

// Unique declares a uniqueness constraint on a single column,
// implemented as an implicit unique hash index.
func (sb *SchemaBuilder) Unique(col string) *SchemaBuilder {
	return sb.addIndex(&IndexSpec{
		Name:    "uq_" + col,
		Columns: []string{col},
		Unique:  true,
		Kind:    IndexHash,
	})
}

func (sb *SchemaBuilder) addIndex(spec *IndexSpec) *SchemaBuilder {
	tbl := sb.cur
	if tbl == nil {
		return sb.fail(errf(CodeSyntax, nil, "Index(%q) before Table", spec.Name))
	}
	if spec.Name == "" || len(spec.Columns) == 0 {
		return sb.fail(tableErrf(CodeSyntax, tbl.name, "", nil, "index needs a name and at least one column"))
	}
	if tbl.IndexNamed(spec.Name) != nil {
		return sb.fail(tableErrf(CodeSyntax, tbl.name, "", nil, "duplicate index %q", spec.Name))
	}
	tbl.indices = append(tbl.indices, spec)
	return sb
}

// Build validates the accumulated declarations and freezes the schema.
func (sb *SchemaBuilder) Build() (*Schema, error) {
	if sb.err != nil {
		return nil, sb.err
	}
	for _, tbl := range sb.scm.tables {
		for _, pk := range tbl.primaryKey {
			col := tbl.colsByName[pk]
			if col == nil {
				return nil, tableErrf(CodeNotFound, tbl.name, pk, nil, "primary key column not declared")
			}
			col.Nullable = false
		}
		if len(tbl.primaryKey) != 0 && tbl.IndexNamed("pk_"+tbl.name) == nil {
			tbl.indices = append(tbl.indices, &IndexSpec{
				Name:    "pk_" + tbl.name,
				Columns: append([]string(nil), tbl.primaryKey...),
				Unique:  true,
				Kind:    IndexHash,
			})
		}
		for _, spec := range tbl.indices {
			for _, c := range spec.Columns {
				if tbl.colsByName[c] == nil {
					return nil, tableErrf(CodeNotFound, tbl.name, c, nil, "index %q references unknown column", spec.Name)
				}
			}
		}
	}
	return sb.scm, nil
}

func (sb *SchemaBuilder) MustBuild() *Schema {
	return must(sb.Build())
}
