package schema

import (
	"bytes"
	"encoding/json"
	"fmt"

	jsv "github.com/santhosh-tekuri/jsonschema/v6"
	"gopkg.in/yaml.v3"
)

// ValidateDocument checks a test document against the generated JSON
// Schema before the structural parser runs, so schema-shaped mistakes get
// positional messages instead of parse errors.
func ValidateDocument(src string) error {
	schemaBytes, err := GenerateJSONSchema()
	if err != nil {
		return fmt.Errorf("generate schema: %w", err)
	}

	schemaDoc, err := jsv.UnmarshalJSON(bytes.NewReader(schemaBytes))
	if err != nil {
		return fmt.Errorf("load schema: %w", err)
	}

	compiler := jsv.NewCompiler()
	if err := compiler.AddResource("testfile.json", schemaDoc); err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	compiled, err := compiler.Compile("testfile.json")
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}

	var doc any
	if err := yaml.Unmarshal([]byte(src), &doc); err != nil {
		return fmt.Errorf("parse document: %w", err)
	}

	// Route through JSON so the instance uses the types the validator
	// expects.
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("normalize document: %w", err)
	}
	instance, err := jsv.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("normalize document: %w", err)
	}

	if err := compiled.Validate(instance); err != nil {
		return err
	}
	return nil
}
