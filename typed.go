package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/invopop/jsonschema"
	"github.com/spf13/cast"
)

// TypedToolHandler adapts a function taking decoded arguments into a ToolHandler. Arguments that
// do not decode into A are rejected with invalid params before fn runs. Absent arguments leave
// A at its zero value.
func TypedToolHandler[A any](fn func(ctx context.Context, req *Request, args A) (any, error)) ToolHandler {
	return func(ctx context.Context, req *Request, arguments json.RawMessage) (any, error) {
		var args A
		if len(arguments) > 0 {
			if err := json.Unmarshal(arguments, &args); err != nil {
				return nil, invalidParamsError(fmt.Errorf("failed to unmarshal arguments: %w", err))
			}
		}
		return fn(ctx, req, args)
	}
}

// TypedPromptHandler adapts a function taking decoded arguments into a PromptHandler. Prompt
// arguments arrive as strings; each one is converted to the JSON type of the matching field of A
// before decoding, so numeric and boolean fields work.
func TypedPromptHandler[A any](fn func(ctx context.Context, req *Request, args A) (any, error)) PromptHandler {
	schema := reflectSchema[A]()
	return func(ctx context.Context, req *Request, arguments map[string]string) (any, error) {
		values := make(map[string]any, len(arguments))
		for name, raw := range arguments {
			v, err := convertArgument(schema, name, raw)
			if err != nil {
				return nil, invalidParamsError(fmt.Errorf("argument %q: %w", name, err))
			}
			values[name] = v
		}

		bs, err := json.Marshal(values)
		if err != nil {
			return nil, internalError(err)
		}
		var args A
		if err := json.Unmarshal(bs, &args); err != nil {
			return nil, invalidParamsError(fmt.Errorf("failed to unmarshal arguments: %w", err))
		}
		return fn(ctx, req, args)
	}
}

// WithInputSchemaOf advertises the JSON schema of A as the tool input schema. Struct tags of A
// drive the schema the same way they drive encoding/json, plus jsonschema tags for descriptions.
// The schema is advertised only; arguments are not validated against it.
func WithInputSchemaOf[A any]() ToolOption {
	return withSchema(reflectSchema[A]())
}

func withSchema(s *jsonschema.Schema) ToolOption {
	return func(t *toolEntry) {
		bs, err := json.Marshal(s)
		if err != nil {
			t.err = fmt.Errorf("failed to marshal input schema: %w", err)
			return
		}
		t.tool.InputSchema = bs
	}
}

// WithPromptArgumentsOf declares the prompt arguments from the top-level properties of A.
func WithPromptArgumentsOf[A any]() PromptOption {
	return func(p *promptEntry) {
		s := reflectSchema[A]()
		if s.Properties == nil {
			return
		}
		required := make(map[string]bool, len(s.Required))
		for _, name := range s.Required {
			required[name] = true
		}
		for el := s.Properties.Oldest(); el != nil; el = el.Next() {
			p.prompt.Arguments = append(p.prompt.Arguments, PromptArgument{
				Name:        el.Key,
				Description: el.Value.Description,
				Required:    required[el.Key],
			})
		}
	}
}

func reflectSchema[A any]() *jsonschema.Schema {
	r := &jsonschema.Reflector{
		DoNotReference: true,
		ExpandedStruct: true,
	}
	s := r.Reflect(new(A))
	s.Version = ""
	if s.Type == "" {
		s.Type = "object"
	}
	return s
}

func convertArgument(schema *jsonschema.Schema, name, raw string) (any, error) {
	if schema == nil || schema.Properties == nil {
		return raw, nil
	}
	prop, ok := schema.Properties.Get(name)
	if !ok || prop == nil {
		return raw, nil
	}
	switch prop.Type {
	case "integer":
		// cast truncates "2.5" to 2, so integers are parsed strictly.
		n, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%q is not an integer", raw)
		}
		return n, nil
	case "number":
		return cast.ToFloat64E(raw)
	case "boolean":
		return cast.ToBoolE(raw)
	case "object", "array":
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			return nil, err
		}
		return v, nil
	default:
		return raw, nil
	}
}
