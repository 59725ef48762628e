package lf

import (
	"testing"

	"gotest.tools/assert"
)

func TestBuilderUnknownTable(t *testing.T) {
	db := setup(t, testSchema())
	_, err := db.Select().From("nope").Exec()
	assert.Equal(t, CodeOf(err), CodeNotFound)
}

func TestBuilderUnknownColumn(t *testing.T) {
	db := setup(t, testSchema())

	_, err := db.Select("nope").From("movie").Exec()
	assert.Equal(t, CodeOf(err), CodeNotFound)

	_, err = db.Select().From("movie").Where(Eq("nope", 1)).Exec()
	assert.Equal(t, CodeOf(err), CodeNotFound)

	_, err = db.Update("movie").Set("nope", int64(1)).Exec()
	assert.Equal(t, CodeOf(err), CodeNotFound)
}

func TestBuilderAmbiguousColumn(t *testing.T) {
	db := setup(t, testSchema())
	// Both movie and actor declare an id column.
	_, err := db.Select("id").From("movie").
		InnerJoin("actor", EqCols("movie.id", "actor.movie_id")).Exec()
	assert.Equal(t, CodeOf(err), CodeSyntax)
}

func TestBuilderNoTable(t *testing.T) {
	db := setup(t, testSchema())
	_, err := db.Select().Exec()
	assert.Equal(t, CodeOf(err), CodeSyntax)

	_, err = db.Insert().Values(map[string]any{"x": int64(1)}).Exec()
	assert.Equal(t, CodeOf(err), CodeSyntax)
}

func TestBuilderInsertTypeMismatch(t *testing.T) {
	db := setup(t, testSchema())
	_, err := db.Insert().Into("movie").Values(map[string]any{
		"id": int64(1), "title": "Heat", "year": "nineteen-ninety-five",
	}).Exec()
	assert.Equal(t, CodeOf(err), CodeSyntax)
}

func TestBuilderUpdateWithoutSet(t *testing.T) {
	db := setup(t, testSchema())
	_, err := db.Update("movie").Exec()
	assert.Equal(t, CodeOf(err), CodeSyntax)
}

func TestBuilderFrozenContextIsStable(t *testing.T) {
	db := setup(t, testSchema())
	sb := db.Select().From("movie")
	ctx1, err := sb.Build()
	assert.NilError(t, err)
	ctx2, err := sb.Build()
	assert.NilError(t, err)
	assert.Assert(t, ctx1 == ctx2)
}

func TestSchemaBuilderErrors(t *testing.T) {
	_, err := NewSchema("x", 1).Column("orphan", KindInteger).Build()
	assert.Equal(t, CodeOf(err), CodeSyntax)

	_, err = NewSchema("x", 1).
		Table("t").Column("a", KindInteger).Column("a", KindText).
		Build()
	assert.Equal(t, CodeOf(err), CodeSyntax)

	_, err = NewSchema("x", 1).
		Table("t").Column("a", KindInteger).PrimaryKey("missing").
		Build()
	assert.Equal(t, CodeOf(err), CodeNotFound)

	_, err = NewSchema("x", 1).
		Table("t").Column("a", KindInteger).Index("bad", "missing").
		Build()
	assert.Equal(t, CodeOf(err), CodeNotFound)
}
