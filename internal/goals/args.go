package goals

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// ErrInvalidArgs wraps every ParseArgs failure.
var ErrInvalidArgs = errors.New("invalid set_goals arguments")

// ToolName is the name the agent calls this tool by.
const ToolName = "set_goals"

// Args are the decoded tool-call arguments.
type Args struct {
	CategoryGoals []CategoryGoal `json:"category_goals,omitempty"`
	MuscleGoals   []MuscleGoal   `json:"muscle_goals,omitempty"`
}

const argsSchemaURL = "https://trainer.local/schemas/set-goals.json"

// ArgsSchema is the JSON schema advertised for the tool's input. Weights
// are not bounded here; out-of-range values are clamped on execution.
const ArgsSchema = `{
	"$schema": "https://json-schema.org/draft/2020-12/schema",
	"type": "object",
	"additionalProperties": false,
	"properties": {
		"category_goals": {
			"type": "array",
			"items": {
				"type": "object",
				"additionalProperties": false,
				"required": ["category", "weight"],
				"properties": {
					"category": {"type": "string", "minLength": 1},
					"weight": {"type": "number"}
				}
			}
		},
		"muscle_goals": {
			"type": "array",
			"items": {
				"type": "object",
				"additionalProperties": false,
				"required": ["muscle", "weight"],
				"properties": {
					"muscle": {"type": "string", "minLength": 1},
					"weight": {"type": "number"}
				}
			}
		}
	}
}`

var (
	argsOnce   sync.Once
	argsSchema *jsonschema.Schema
	argsErr    error
)

func compiledArgsSchema() (*jsonschema.Schema, error) {
	argsOnce.Do(func() {
		doc, err := jsonschema.UnmarshalJSON(bytes.NewReader([]byte(ArgsSchema)))
		if err != nil {
			argsErr = fmt.Errorf("unmarshal set_goals schema: %w", err)
			return
		}
		c := jsonschema.NewCompiler()
		if err := c.AddResource(argsSchemaURL, doc); err != nil {
			argsErr = fmt.Errorf("add set_goals schema resource: %w", err)
			return
		}
		argsSchema, argsErr = c.Compile(argsSchemaURL)
	})
	return argsSchema, argsErr
}

// ParseArgs checks raw against ArgsSchema and decodes it.
func ParseArgs(raw []byte) (Args, error) {
	s, err := compiledArgsSchema()
	if err != nil {
		return Args{}, err
	}
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return Args{}, fmt.Errorf("%w: %v", ErrInvalidArgs, err)
	}
	if err := s.Validate(doc); err != nil {
		return Args{}, fmt.Errorf("%w: %v", ErrInvalidArgs, err)
	}
	var args Args
	if err := json.Unmarshal(raw, &args); err != nil {
		return Args{}, fmt.Errorf("%w: %v", ErrInvalidArgs, err)
	}
	return args, nil
}
