package scenario

import (
	"bytes"
	_ "embed"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed scenario_schema.json
var schemaJSON []byte

// importSchema is compiled once at startup. A broken embedded schema is
// a build defect, so compilation failure panics.
var importSchema = mustCompileSchema()

func mustCompileSchema() *jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("scenario_schema.json", bytes.NewReader(schemaJSON)); err != nil {
		panic("scenario: adding schema resource: " + err.Error())
	}
	schema, err := compiler.Compile("scenario_schema.json")
	if err != nil {
		panic("scenario: compiling schema: " + err.Error())
	}
	return schema
}
