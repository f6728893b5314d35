package gateway

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/kaptinlin/jsonschema"

	"agency-ai/internal/domain"
)

// agentDefinitionSchema validates agent.register payloads before they
// are unmarshalled. Name and type are the only required fields; the
// rest mirrors domain.AgentDefinition.
const agentDefinitionSchema = `{
	"$schema": "https://json-schema.org/draft/2020-12/schema",
	"title": "AgentDefinition",
	"type": "object",
	"required": ["name", "type"],
	"additionalProperties": false,
	"properties": {
		"id":           {"type": "string", "maxLength": 64},
		"name":         {"type": "string", "minLength": 1, "maxLength": 128},
		"type":         {"type": "string", "minLength": 1, "maxLength": 64},
		"capabilities": {"type": "array", "items": {"type": "string", "minLength": 1}, "maxItems": 64},
		"model":        {"type": "string", "maxLength": 128},
		"tools":        {"type": "array", "items": {"type": "string", "minLength": 1}, "maxItems": 64},
		"prompt":       {"type": "string", "maxLength": 32768},
		"created_by":   {"type": "string", "maxLength": 128},
		"owner_id":     {"type": "string", "maxLength": 128}
	}
}`

var (
	agentSchemaOnce sync.Once
	agentSchema     *jsonschema.Schema
	agentSchemaErr  error
)

func compiledAgentSchema() (*jsonschema.Schema, error) {
	agentSchemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		agentSchema, agentSchemaErr = compiler.Compile([]byte(agentDefinitionSchema))
		if agentSchemaErr != nil {
			agentSchemaErr = fmt.Errorf("agent definition schema: %w", agentSchemaErr)
		}
	})
	return agentSchema, agentSchemaErr
}

// validateAgentDefinition checks a raw agent.register payload against
// the definition schema. Violations come back as ErrRPCInvalidPayload
// with the schema error as detail.
func validateAgentDefinition(payload json.RawMessage) error {
	schema, err := compiledAgentSchema()
	if err != nil {
		return err
	}
	var data any
	if err := json.Unmarshal(payload, &data); err != nil {
		return domain.ErrRPCInvalidPayload
	}
	result := schema.Validate(data)
	if !result.IsValid() {
		return fmt.Errorf("%w: %s", domain.ErrRPCInvalidPayload, result.Error())
	}
	return nil
}
