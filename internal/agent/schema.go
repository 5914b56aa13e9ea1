package agent

import (
	"fmt"
	"math"
	"slices"
)

const (
	TypeObject  = "object"
	TypeString  = "string"
	TypeNumber  = "number"
	TypeInteger = "integer"
	TypeBoolean = "boolean"
	TypeArray   = "array"
)

var propertyTypes = []string{TypeString, TypeNumber, TypeInteger, TypeBoolean, TypeObject, TypeArray}

// Schema describes the arguments of a tool in JSON-Schema terms.
type Schema struct {
	Type       string              `json:"type"`
	Properties map[string]Property `json:"properties"`
	Required   []string            `json:"required,omitempty"`
}

type Property struct {
	Type        string    `json:"type"`
	Description string    `json:"description,omitempty"`
	Enum        []string  `json:"enum,omitempty"`
	Items       *Property `json:"items,omitempty"`
	Default     any       `json:"default,omitempty"`
}

// Validate checks that s is a well-formed object schema.
func (s Schema) Validate() error {
	if s.Type != TypeObject {
		return fmt.Errorf("%w: type must be %q, got %q", ErrInvalidSchema, TypeObject, s.Type)
	}
	for name, p := range s.Properties {
		if name == "" {
			return fmt.Errorf("%w: empty property name", ErrInvalidSchema)
		}
		if err := p.validate(); err != nil {
			return fmt.Errorf("%w: property %q: %s", ErrInvalidSchema, name, err)
		}
	}
	seen := make(map[string]bool, len(s.Required))
	for _, name := range s.Required {
		if _, ok := s.Properties[name]; !ok {
			return fmt.Errorf("%w: required property %q is not declared", ErrInvalidSchema, name)
		}
		if seen[name] {
			return fmt.Errorf("%w: required property %q listed twice", ErrInvalidSchema, name)
		}
		seen[name] = true
	}
	return nil
}

func (p Property) validate() error {
	if !slices.Contains(propertyTypes, p.Type) {
		return fmt.Errorf("unsupported type %q", p.Type)
	}
	if p.Type == TypeArray && p.Items != nil {
		if err := p.Items.validate(); err != nil {
			return fmt.Errorf("items: %s", err)
		}
	}
	if len(p.Enum) > 0 && p.Type != TypeString {
		return fmt.Errorf("enum is only supported on %s, got %s", TypeString, p.Type)
	}
	if p.Default != nil && !matchesType(p.Type, p.Default) {
		return fmt.Errorf("default %v is not a %s", p.Default, p.Type)
	}
	return nil
}

// Apply fills declared defaults and checks args against the schema.
// The returned map is a copy; args is left untouched.
func (s Schema) Apply(args Arguments) (Arguments, error) {
	out := make(Arguments, len(args)+len(s.Properties))
	for k, v := range args {
		if _, ok := s.Properties[k]; !ok {
			return nil, fmt.Errorf("%w: unexpected field %q", ErrInvalidArguments, k)
		}
		out[k] = v
	}
	for name, p := range s.Properties {
		if _, ok := out[name]; !ok && p.Default != nil {
			out[name] = p.Default
		}
	}
	for _, name := range s.Required {
		if _, ok := out[name]; !ok {
			return nil, fmt.Errorf("%w: missing required field %q", ErrInvalidArguments, name)
		}
	}
	for name, v := range out {
		p := s.Properties[name]
		if !matchesType(p.Type, v) {
			return nil, fmt.Errorf("%w: field %q must be %s, got %T", ErrInvalidArguments, name, p.Type, v)
		}
		if len(p.Enum) > 0 {
			str, _ := v.(string)
			if !slices.Contains(p.Enum, str) {
				return nil, fmt.Errorf("%w: field %q must be one of %v", ErrInvalidArguments, name, p.Enum)
			}
		}
	}
	return out, nil
}

func matchesType(typ string, v any) bool {
	switch typ {
	case TypeString:
		_, ok := v.(string)
		return ok
	case TypeNumber:
		switch v.(type) {
		case float64, float32, int, int64:
			return true
		}
	case TypeInteger:
		switch n := v.(type) {
		case int, int64:
			return true
		case float64:
			return n == math.Trunc(n)
		}
	case TypeBoolean:
		_, ok := v.(bool)
		return ok
	case TypeObject:
		_, ok := v.(map[string]any)
		return ok
	case TypeArray:
		_, ok := v.([]any)
		return ok
	}
	return false
}
