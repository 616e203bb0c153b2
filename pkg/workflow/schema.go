package workflow

import (
	_ "embed"
	"encoding/json"
	"strings"

	"github.com/dukex/ruleflow/pkg/models"
	"github.com/xeipuuv/gojsonschema"
)

//go:embed schemas/definition.json
var definitionSchema []byte

var definitionSchemaLoader = gojsonschema.NewBytesLoader(definitionSchema)

// ValidateDocument checks a serialized definition against the definition JSON schema.
func ValidateDocument(raw []byte) error {
	result, err := gojsonschema.Validate(definitionSchemaLoader, gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return &models.DefinitionError{WorkflowID: documentID(raw), Reason: "unreadable document", Err: err}
	}

	if !result.Valid() {
		messages := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			messages = append(messages, desc.String())
		}

		return models.NewDefinitionError(documentID(raw), "schema validation failed: "+strings.Join(messages, "; "))
	}

	return nil
}

// DecodeDocument validates raw against the schema and decodes it.
func DecodeDocument(raw []byte) (*models.WorkflowDefinition, error) {
	if err := ValidateDocument(raw); err != nil {
		return nil, err
	}

	var def models.WorkflowDefinition
	if err := json.Unmarshal(raw, &def); err != nil {
		return nil, &models.DefinitionError{WorkflowID: documentID(raw), Reason: "decode failed", Err: err}
	}

	return &def, nil
}

func documentID(raw []byte) string {
	var doc struct {
		ID string `json:"id"`
	}

	if err := json.Unmarshal(raw, &doc); err != nil {
		return ""
	}

	return doc.ID
}
