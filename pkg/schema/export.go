package schema

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
)

// schemaTestFile is the document shape used for JSON Schema generation.
// It mirrors rawTestFile but with concrete step forms so the generated
// schema documents the step union.
type schemaTestFile struct {
	Name      string       `json:"name" jsonschema:"required,description=Globally unique test name"`
	Type      string       `json:"type,omitempty" jsonschema:"enum=test,enum=reference"`
	Platforms []string     `json:"platforms,omitempty" jsonschema:"description=Host platforms this file is limited to"`
	Steps     []schemaStep `json:"steps" jsonschema:"required"`
}

type schemaStep struct {
	Ref             string   `json:"ref,omitempty" jsonschema:"description=Path to another test file whose steps run inline"`
	Step            string   `json:"step,omitempty" jsonschema:"description=An instruction or a retrieval should assertion"`
	Macro           string   `json:"macro,omitempty" jsonschema:"description=A registered macro pattern"`
	Snapshot        string   `json:"snapshot,omitempty" jsonschema:"description=A retrieval whose output is captured for review"`
	SnapshotContent string   `json:"snapshot_content,omitempty" jsonschema:"description=The last accepted snapshot output"`
	Extract         string   `json:"extract,omitempty" jsonschema:"description=A retrieval whose output is written to a file"`
	ExtractLocation string   `json:"extract_location,omitempty" jsonschema:"description=Destination path for an extract step"`
	Platforms       []string `json:"platforms,omitempty"`
}

// GenerateJSONSchema produces a JSON Schema Draft 2020-12 document for the
// .toolproof.yml file format using invopop/jsonschema.
func GenerateJSONSchema() ([]byte, error) {
	r := new(jsonschema.Reflector)
	r.DoNotReference = false

	s := r.Reflect(&schemaTestFile{})
	s.ID = "https://github.com/ormasoftchile/toolproof/schemas/testfile-v1.json"
	s.Title = "Toolproof Test File v1"
	s.Description = "Schema for toolproof .toolproof.yml test documents (Draft 2020-12)"

	// A step is either a bare instruction string or a step mapping; the
	// reflector only sees the struct, so widen steps.items by hand.
	if def, ok := s.Definitions["schemaTestFile"]; ok {
		if props := def.Properties; props != nil {
			if steps, ok := props.Get("steps"); ok && steps.Items != nil {
				mapping := *steps.Items
				steps.Items = &jsonschema.Schema{
					OneOf: []*jsonschema.Schema{
						{Type: "string"},
						&mapping,
					},
				}
			}
		}
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	return data, nil
}
