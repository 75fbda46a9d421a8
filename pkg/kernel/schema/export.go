package schema

import "github.com/invopop/jsonschema"

// GenerateTemplateJSONSchema reflects Template into a JSON Schema document,
// used by the mission/schema MCP tool, scripts/gen-schema.go, and as the
// structural phase of the compatibility diagnostics pipeline.
func GenerateTemplateJSONSchema() *jsonschema.Schema {
	r := &jsonschema.Reflector{
		ExpandedStruct: true,
		DoNotReference: true,
	}
	return r.Reflect(&Template{})
}

// GeneratePolicyJSONSchema reflects Policy into a JSON Schema document.
func GeneratePolicyJSONSchema() *jsonschema.Schema {
	r := &jsonschema.Reflector{
		ExpandedStruct: true,
		DoNotReference: true,
	}
	return r.Reflect(&Policy{})
}

// GenerateSnapshotJSONSchema reflects Snapshot into a JSON Schema document,
// documenting the persisted state.json shape.
func GenerateSnapshotJSONSchema() *jsonschema.Schema {
	r := &jsonschema.Reflector{
		ExpandedStruct: true,
		DoNotReference: true,
	}
	return r.Reflect(&Snapshot{})
}
