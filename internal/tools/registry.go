// Package tools defines the side-effecting functions the LLM may call and
// dispatches calls to them by name.
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	jsonschemavalidate "github.com/google/jsonschema-go/jsonschema"
	"github.com/sashabaranov/go-openai/jsonschema"

	"profile-assistant/internal/domain"
)

// Handler executes one tool with already-validated JSON arguments.
type Handler func(ctx context.Context, args json.RawMessage) (any, error)

// Tool is a descriptor paired with its handler.
type Tool struct {
	Descriptor domain.ToolDescriptor
	Handler    Handler
}

type entry struct {
	tool   Tool
	schema *jsonschemavalidate.Resolved
}

// Registry is an immutable, ordered name->handler table. It is built once at
// startup and is safe for concurrent use.
type Registry struct {
	order   []string
	entries map[string]entry
}

// NewRegistry builds a registry from tools in advertisement order.
func NewRegistry(tools ...Tool) (*Registry, error) {
	r := &Registry{entries: make(map[string]entry, len(tools))}
	for _, t := range tools {
		name := t.Descriptor.Name
		if name == "" {
			return nil, errors.New("tools: tool name must not be empty")
		}
		if t.Handler == nil {
			return nil, fmt.Errorf("tools: tool %s has no handler", name)
		}
		if _, exists := r.entries[name]; exists {
			return nil, fmt.Errorf("tools: tool %s already registered", name)
		}
		schema, err := resolveSchema(t.Descriptor.Parameters)
		if err != nil {
			return nil, fmt.Errorf("tools: tool %s: %w", name, err)
		}
		r.order = append(r.order, name)
		r.entries[name] = entry{tool: t, schema: schema}
	}
	return r, nil
}

// Descriptors returns the tool descriptors in registration order.
func (r *Registry) Descriptors() []domain.ToolDescriptor {
	out := make([]domain.ToolDescriptor, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.entries[name].tool.Descriptor)
	}
	return out
}

// Invoke runs the named tool and returns a JSON-serializable result. It never
// fails: an unknown tool yields an empty object, and malformed or incomplete
// arguments yield {"error": "..."} so the model still gets an answer for the
// call id.
func (r *Registry) Invoke(ctx context.Context, name, arguments string) any {
	e, ok := r.entries[name]
	if !ok {
		return map[string]any{}
	}

	args, err := e.bind(arguments)
	if err != nil {
		return errorResult(err)
	}
	out, err := e.tool.Handler(ctx, args)
	if err != nil {
		return errorResult(err)
	}
	return out
}

func (e entry) bind(arguments string) (json.RawMessage, error) {
	if arguments == "" {
		arguments = "{}"
	}
	var instance map[string]any
	if err := json.Unmarshal([]byte(arguments), &instance); err != nil {
		return nil, fmt.Errorf("invalid arguments for %s: %w", e.tool.Descriptor.Name, err)
	}
	if instance == nil {
		instance = map[string]any{}
	}
	if err := e.schema.Validate(instance); err != nil {
		return nil, fmt.Errorf("invalid arguments for %s: %w", e.tool.Descriptor.Name, err)
	}
	return json.RawMessage(arguments), nil
}

func errorResult(err error) map[string]string {
	return map[string]string{"error": err.Error()}
}

// resolveSchema turns the advertised parameter definition into a validator so
// the schema the model sees is the schema arguments are checked against.
func resolveSchema(def jsonschema.Definition) (*jsonschemavalidate.Resolved, error) {
	raw, err := json.Marshal(def)
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	var schema jsonschemavalidate.Schema
	if err := json.Unmarshal(raw, &schema); err != nil {
		return nil, fmt.Errorf("decode schema: %w", err)
	}
	resolved, err := schema.Resolve(nil)
	if err != nil {
		return nil, fmt.Errorf("resolve schema: %w", err)
	}
	return resolved, nil
}
