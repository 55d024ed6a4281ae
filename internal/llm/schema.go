package llm

import (
	"encoding/json"
	"fmt"
	"strings"
)

type Kind int

const (
	KindString Kind = iota
	KindStringList
)

// Field is one required property of a response object.
type Field struct {
	Name        string
	Kind        Kind
	Description string
}

// Schema describes a flat JSON object whose fields are all required.
type Schema struct {
	Name   string
	Fields []Field
}

// JSONSchema renders s as a JSON Schema document.
func (s *Schema) JSONSchema() map[string]any {
	props := make(map[string]any, len(s.Fields))
	required := make([]string, 0, len(s.Fields))
	for _, f := range s.Fields {
		prop := map[string]any{"description": f.Description}
		switch f.Kind {
		case KindStringList:
			prop["type"] = "array"
			prop["items"] = map[string]any{"type": "string"}
		default:
			prop["type"] = "string"
		}
		props[f.Name] = prop
		required = append(required, f.Name)
	}
	return map[string]any{
		"type":                 "object",
		"properties":           props,
		"required":             required,
		"additionalProperties": false,
	}
}

// RawJSONSchema is JSONSchema marshalled, for APIs that take raw bytes.
func (s *Schema) RawJSONSchema() json.RawMessage {
	b, err := json.Marshal(s.JSONSchema())
	if err != nil {
		// The document is built from strings and maps only.
		panic(fmt.Sprintf("marshal schema %s: %v", s.Name, err))
	}
	return b
}

// Instruction is a prose version of the schema for backends that cannot
// constrain their output natively.
func (s *Schema) Instruction() string {
	var b strings.Builder
	b.WriteString("Respond with only a JSON object, no other text, of the form {")
	for i, f := range s.Fields {
		if i > 0 {
			b.WriteString(", ")
		}
		switch f.Kind {
		case KindStringList:
			fmt.Fprintf(&b, "%q: [string, ...]", f.Name)
		default:
			fmt.Fprintf(&b, "%q: string", f.Name)
		}
	}
	b.WriteString("}.")
	for _, f := range s.Fields {
		if f.Description != "" {
			fmt.Fprintf(&b, "\n%s: %s", f.Name, f.Description)
		}
	}
	return b.String()
}

// PromptWithInstruction appends the schema instruction to prompt when the
// request carries a schema.
func PromptWithInstruction(req Request) string {
	if req.Schema == nil {
		return req.Prompt
	}
	return req.Prompt + "\n\n" + req.Schema.Instruction()
}
