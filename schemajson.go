package lf

import (
	"encoding/json"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// metaSchemaJSON validates schema metadata documents before we try to
// interpret them, so malformed input fails with a precise message
// instead of a half-built schema.
const metaSchemaJSON = `{
  "type": "object",
  "required": ["name", "version", "tables"],
  "properties": {
    "name": {"type": "string", "minLength": 1},
    "version": {"type": "integer", "minimum": 1},
    "tables": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["name", "columns"],
        "properties": {
          "name": {"type": "string", "minLength": 1},
          "columns": {
            "type": "array",
            "minItems": 1,
            "items": {
              "type": "object",
              "required": ["name", "type"],
              "properties": {
                "name": {"type": "string", "minLength": 1},
                "type": {"enum": ["integer", "real", "text", "boolean", "datetime", "binary"]},
                "nullable": {"type": "boolean"}
              }
            }
          },
          "primaryKey": {"type": "array", "items": {"type": "string"}},
          "indices": {
            "type": "array",
            "items": {
              "type": "object",
              "required": ["name", "columns"],
              "properties": {
                "name": {"type": "string", "minLength": 1},
                "columns": {"type": "array", "minItems": 1, "items": {"type": "string"}},
                "unique": {"type": "boolean"},
                "kind": {"enum": ["ordered", "hash"]},
                "order": {"enum": ["asc", "desc"]}
              }
            }
          }
        }
      }
    }
  }
}`

type schemaDoc struct {
	Name    string     `json:"name"`
	Version uint64     `json:"version"`
	Tables  []tableDoc `json:"tables"`
}

type tableDoc struct {
	Name       string      `json:"name"`
	Columns    []columnDoc `json:"columns"`
	PrimaryKey []string    `json:"primaryKey"`
	Indices    []indexDoc  `json:"indices"`
}

type columnDoc struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Nullable *bool  `json:"nullable"`
}

type indexDoc struct {
	Name    string   `json:"name"`
	Columns []string `json:"columns"`
	Unique  bool     `json:"unique"`
	Kind    string   `json:"kind"`
	Order   string   `json:"order"`
}

// SchemaFromJSON builds a schema from a JSON metadata document.
func SchemaFromJSON(data []byte) (*Schema, error) {
	schemaLoader := gojsonschema.NewStringLoader(metaSchemaJSON)
	compiled, err := gojsonschema.NewSchema(schemaLoader)
	if err != nil {
		panic(err) // the meta schema is a compile-time constant
	}

	result, err := compiled.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return nil, errf(CodeSyntax, err, "schema metadata is not valid JSON")
	}
	if !result.Valid() {
		var msgs []string
		for _, desc := range result.Errors() {
			msgs = append(msgs, desc.String())
		}
		return nil, errf(CodeSyntax, nil, "invalid schema metadata: %s", strings.Join(msgs, "; "))
	}

	var doc schemaDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, errf(CodeSyntax, err, "schema metadata")
	}

	sb := NewSchema(doc.Name, doc.Version)
	for _, td := range doc.Tables {
		sb.Table(td.Name)
		for _, cd := range td.Columns {
			var opts []ColumnOpt
			if cd.Nullable != nil && !*cd.Nullable {
				opts = append(opts, NotNull)
			}
			sb.Column(cd.Name, columnKind(cd.Type), opts...)
		}
		if len(td.PrimaryKey) != 0 {
			sb.PrimaryKey(td.PrimaryKey...)
		}
		for _, id := range td.Indices {
			spec := &IndexSpec{
				Name:    id.Name,
				Columns: id.Columns,
				Unique:  id.Unique,
				Desc:    id.Order == "desc",
			}
			if id.Kind == "hash" {
				spec.Kind = IndexHash
			}
			sb.addIndex(spec)
		}
	}
	return sb.Build()
}

func columnKind(s string) ValueKind {
	switch s {
	case "integer":
		return KindInteger
	case "real":
		return KindReal
	case "text":
		return KindText
	case "boolean":
		return KindBoolean
	case "datetime":
		return KindDateTime
	case "binary":
		return KindBinary
	default:
		return KindNull // rejected by the builder
	}
}
