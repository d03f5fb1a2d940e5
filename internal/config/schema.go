package config

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schema.json
var schemaSource string

var deploymentSchema = jsonschema.MustCompileString("schema.json", schemaSource)

// validateSchema проверяет документ, разобранный из YAML.
//
// Валидатор работает с JSON значениями, поэтому документ сначала
// проходит через JSON (числа остаются json.Number).
func validateSchema(doc any) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("%w: document is not representable as JSON: %v", ErrInvalidDeployment, err)
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var value any
	if err := dec.Decode(&value); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidDeployment, err)
	}

	if err := deploymentSchema.Validate(value); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidDeployment, err)
	}
	return nil
}
