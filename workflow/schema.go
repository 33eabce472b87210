package workflow

import (
	_ "embed"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/devjn1998/projetoEvolutionApiChatWoot/errors"
)

//go:embed schema.json
var documentSchema string

// ValidateDocument checks a serialized workflow document against the engine's
// expected shape before submission. It complements Validate(): the structural
// check catches graph inconsistencies, the schema check catches wire-shape
// mistakes (missing required fields, wrong JSON types).
func ValidateDocument(data []byte) error {
	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(documentSchema),
		gojsonschema.NewBytesLoader(data),
	)
	if err != nil {
		return errors.WrapInvalid(err, "workflow", "ValidateDocument", "schema evaluation")
	}
	if result.Valid() {
		return nil
	}

	var problems []string
	for _, desc := range result.Errors() {
		problems = append(problems, desc.String())
	}
	return errors.WrapInvalid(
		fmt.Errorf("document does not match engine schema: %s", strings.Join(problems, "; ")),
		"workflow", "ValidateDocument", "schema validation")
}
