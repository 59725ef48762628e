package lf

import (
	"testing"

	"gotest.tools/assert"
)

const validSchemaDoc = `{
  "name": "moviedb",
  "version": 2,
  "tables": [
    {
      "name": "movie",
      "columns": [
        {"name": "id", "type": "integer", "nullable": false},
        {"name": "title", "type": "text"},
        {"name": "year", "type": "integer"}
      ],
      "primaryKey": ["id"],
      "indices": [
        {"name": "idx_year", "columns": ["year"]},
        {"name": "uq_title", "columns": ["title"], "unique": true, "kind": "hash"}
      ]
    }
  ]
}`

func TestSchemaFromJSON(t *testing.T) {
	scm, err := SchemaFromJSON([]byte(validSchemaDoc))
	assert.NilError(t, err)
	assert.Equal(t, scm.Name(), "moviedb")
	assert.Equal(t, scm.Version(), uint64(2))

	tbl := scm.TableNamed("movie")
	assert.Assert(t, tbl != nil)
	assert.Equal(t, len(tbl.Columns()), 3)
	assert.Equal(t, tbl.ColumnNamed("id").Nullable, false)
	assert.Equal(t, tbl.ColumnNamed("title").Type, KindText)

	idx := tbl.IndexNamed("idx_year")
	assert.Assert(t, idx != nil)
	assert.Equal(t, idx.Kind, IndexOrdered)
	uq := tbl.IndexNamed("uq_title")
	assert.Equal(t, uq.Unique, true)
	assert.Equal(t, uq.Kind, IndexHash)

	// The primary key declaration adds an implicit unique index.
	assert.Assert(t, tbl.IndexNamed("pk_movie") != nil)

	db := setup(t, scm)
	_, err = db.Insert().Into("movie").Values(map[string]any{
		"id": int64(1), "title": "Heat", "year": int64(1995),
	}).Exec()
	assert.NilError(t, err)
}

func TestSchemaFromJSONRejectsBadDocuments(t *testing.T) {
	cases := []struct {
		name string
		doc  string
	}{
		{"not json", `{`},
		{"missing name", `{"version": 1, "tables": []}`},
		{"bad version", `{"name": "x", "version": 0, "tables": []}`},
		{"bad column type", `{"name": "x", "version": 1, "tables": [{"name": "t", "columns": [{"name": "c", "type": "uuid"}]}]}`},
		{"empty columns", `{"name": "x", "version": 1, "tables": [{"name": "t", "columns": []}]}`},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, err := SchemaFromJSON([]byte(c.doc))
			assert.Assert(t, err != nil)
			assert.Equal(t, CodeOf(err), CodeSyntax)
		})
	}
}

func TestSchemaFromJSONUnknownIndexColumn(t *testing.T) {
	doc := `{
	  "name": "x", "version": 1,
	  "tables": [{
	    "name": "t",
	    "columns": [{"name": "c", "type": "integer"}],
	    "indices": [{"name": "bad", "columns": ["nope"]}]
	  }]
	}`
	_, err := SchemaFromJSON([]byte(doc))
	assert.Equal(t, CodeOf(err), CodeNotFound)
}
