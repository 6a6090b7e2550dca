package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
)

// Structured represents a type that can be used for structured output
type Structured interface {
	Validate() error
	JSONSchema() map[string]interface{}
}

// StructuredResponse contains the parsed and validated structured output
type StructuredResponse[T Structured] struct {
	Data        T                 `json:"data"`
	RawResponse *Response         `json:"raw_response"`
	Usage       *Usage            `json:"usage,omitempty"`
	Validation  *ValidationResult `json:"validation,omitempty"`
}

// ValidationResult contains details about validation
type ValidationResult struct {
	Valid   bool     `json:"valid"`
	Errors  []string `json:"errors,omitempty"`
	Retries int      `json:"retries"`
	RawJSON string   `json:"raw_json,omitempty"`
}

// Usage contains token usage information
type Usage struct {
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
	TotalTokens  int     `json:"total_tokens"`
	Cost         float64 `json:"cost,omitempty"`
}

// TextClassification is a generic label + confidence output.
type TextClassification struct {
	Label      string  `json:"label" description:"The predicted label/category"`
	Confidence float64 `json:"confidence" description:"Confidence score between 0 and 1"`
	Reasoning  string  `json:"reasoning,omitempty" description:"Explanation of the classification"`
}

func (tc TextClassification) Validate() error {
	if tc.Label == "" {
		return fmt.Errorf("label cannot be empty")
	}
	if tc.Confidence < 0 || tc.Confidence > 1 {
		return fmt.Errorf("confidence must be between 0 and 1, got %f", tc.Confidence)
	}
	return nil
}

func (tc TextClassification) JSONSchema() map[string]interface{} { return SchemaOf(tc) }

// SchemaOf builds a JSON schema for a struct from its json and description tags.
// Fields without omitempty are required.
func SchemaOf(v interface{}) map[string]interface{} {
	t := reflect.TypeOf(v)
	if t == nil {
		return map[string]interface{}{"type": "object"}
	}
	return fieldSchema(t, "")
}

func structSchema(t reflect.Type) map[string]interface{} {
	properties := make(map[string]interface{})
	var required []string

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}
		jsonTag := field.Tag.Get("json")
		if jsonTag == "-" {
			continue
		}

		jsonName := field.Name
		omitEmpty := false
		if jsonTag != "" {
			parts := strings.Split(jsonTag, ",")
			if parts[0] != "" {
				jsonName = parts[0]
			}
			for _, part := range parts[1:] {
				if part == "omitempty" {
					omitEmpty = true
				}
			}
		}

		s := fieldSchema(field.Type, field.Tag.Get("description"))
		if enum := field.Tag.Get("enum"); enum != "" {
			s["enum"] = strings.Split(enum, "|")
		}
		properties[jsonName] = s
		if !omitEmpty {
			required = append(required, jsonName)
		}
	}

	schema := map[string]interface{}{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func fieldSchema(t reflect.Type, description string) map[string]interface{} {
	var schema map[string]interface{}

	switch t.Kind() {
	case reflect.Ptr:
		return fieldSchema(t.Elem(), description)
	case reflect.Struct:
		schema = structSchema(t)
	case reflect.String:
		schema = map[string]interface{}{"type": "string"}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		schema = map[string]interface{}{"type": "integer"}
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		schema = map[string]interface{}{"type": "integer", "minimum": 0}
	case reflect.Float32, reflect.Float64:
		schema = map[string]interface{}{"type": "number"}
	case reflect.Bool:
		schema = map[string]interface{}{"type": "boolean"}
	case reflect.Slice, reflect.Array:
		schema = map[string]interface{}{"type": "array", "items": fieldSchema(t.Elem(), "")}
	case reflect.Map:
		schema = map[string]interface{}{"type": "object"}
	default:
		schema = map[string]interface{}{}
	}

	if description != "" {
		schema["description"] = description
	}
	return schema
}

// ExtractJSON returns the first JSON object or array in s. Models often wrap
// JSON in a fenced code block or add a sentence before it.
func ExtractJSON(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.Index(s, "```"); i >= 0 {
		rest := s[i+3:]
		rest = strings.TrimPrefix(rest, "json")
		if j := strings.Index(rest, "```"); j >= 0 {
			return strings.TrimSpace(rest[:j])
		}
	}
	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return s
	}
	open, closing := s[start], byte('}')
	if open == '[' {
		closing = ']'
	}
	end := strings.LastIndexByte(s, closing)
	if end < start {
		return s[start:]
	}
	return s[start : end+1]
}

// ParseStructured parses JSON (tolerating surrounding prose) into T and validates it.
func ParseStructured[T Structured](raw string, template T) (*StructuredResponse[T], error) {
	var result T
	jsonStr := ExtractJSON(raw)

	templateType := reflect.TypeOf(template)
	wantPtr := templateType.Kind() == reflect.Ptr
	if wantPtr {
		templateType = templateType.Elem()
	}

	ptrValue := reflect.New(templateType)
	if err := json.Unmarshal([]byte(jsonStr), ptrValue.Interface()); err != nil {
		return nil, NewLLMErrorWithCause("", ErrorTypeJSONParsingError, "json parsing error: "+err.Error(), err)
	}

	if wantPtr {
		result = ptrValue.Interface().(T)
	} else {
		result = ptrValue.Elem().Interface().(T)
	}

	validation := &ValidationResult{RawJSON: jsonStr}
	if err := result.Validate(); err != nil {
		validation.Errors = []string{err.Error()}
		return &StructuredResponse[T]{Data: result, Validation: validation}, fmt.Errorf("validation failed: %w", err)
	}
	validation.Valid = true
	return &StructuredResponse[T]{Data: result, Validation: validation}, nil
}

// StructuredChat asks client for a JSON answer matching template's schema. When
// the answer does not parse or validate, the error is fed back to the model and
// the call is repeated up to maxRetries times.
func StructuredChat[T Structured](ctx context.Context, client Client, req *ChatRequest, template T, maxRetries int) (*StructuredResponse[T], error) {
	schema, err := json.Marshal(template.JSONSchema())
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}

	r := cloneChatRequest(req)
	r.Messages = append([]Message(nil), req.Messages...)
	instruction := "Respond only with a JSON object matching this JSON schema, without any other text:\n" + string(schema)
	if r.SystemPrompt != "" {
		r.SystemPrompt += "\n\n" + instruction
	} else {
		r.SystemPrompt = instruction
	}
	r.ResponseFormat = &ResponseFormat{Type: "json_object", JSONSchema: template.JSONSchema()}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		resp, err := client.Chat(ctx, r)
		if err != nil {
			return nil, err
		}
		out, err := ParseStructured(resp.Content, template)
		if err == nil {
			out.RawResponse = resp
			out.Usage = resp.Usage
			out.Validation.Retries = attempt
			return out, nil
		}
		lastErr = err
		r.Messages = append(r.Messages,
			Message{Role: "assistant", Content: resp.Content},
			Message{Role: "user", Content: "That response was invalid (" + err.Error() + "). Reply again with only the corrected JSON object."},
		)
	}
	return nil, lastErr
}
