package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/KamdynS/bedrock-agents/llm"
	obs "github.com/KamdynS/bedrock-agents/observability"
)

// ErrToolNotFound is returned by Execute for unknown tool names.
var ErrToolNotFound = errors.New("tool not found")

// Tool defines the interface for agent tools
type Tool interface {
	Name() string
	Description() string

	// Execute runs the tool. input is the JSON argument object chosen by the model.
	Execute(ctx context.Context, input string) (string, error)

	// Schema returns the JSON schema for input
	Schema() map[string]interface{}
}

// Registry manages a collection of tools available to agents
type Registry interface {
	Register(tool Tool) error
	Get(name string) (Tool, bool)
	// List returns tool names in sorted order
	List() []string
	Execute(ctx context.Context, name string, input string) (string, error)
}

// DefaultRegistry is a simple in-memory tool registry
type DefaultRegistry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry creates a new DefaultRegistry
func NewRegistry(initial ...Tool) *DefaultRegistry {
	r := &DefaultRegistry{tools: make(map[string]Tool)}
	for _, t := range initial {
		_ = r.Register(t)
	}
	return r
}

// Register implements Registry interface
func (r *DefaultRegistry) Register(tool Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := tool.Name()
	if !validName(name) {
		return fmt.Errorf("invalid tool name %q", name)
	}
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("tool %s already registered", name)
	}
	r.tools[name] = tool
	return nil
}

// Get implements Registry interface
func (r *DefaultRegistry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, exists := r.tools[name]
	return tool, exists
}

// List implements Registry interface
func (r *DefaultRegistry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Execute implements Registry interface
func (r *DefaultRegistry) Execute(ctx context.Context, name string, input string) (string, error) {
	tool, exists := r.Get(name)
	if !exists {
		return "", fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}

	start := time.Now()
	span, ctx := obs.TracerImpl.StartSpan(ctx, "tool.execute")
	span.SetAttribute(obs.AttrToolName, name)
	defer span.End()

	result, err := tool.Execute(ctx, input)
	labels := map[string]string{"tool_name": name}
	obs.MetricsImpl.RecordLatency(time.Since(start), labels)
	if err != nil {
		obs.MetricsImpl.RecordError("tool_error", labels)
		span.SetStatus(obs.StatusCodeError, err.Error())
		return "", err
	}
	span.SetStatus(obs.StatusCodeOk, "")
	return result, nil
}

// Merge registers every tool of src into r. A name already present in r is
// registered as prefix + "__" + name instead. It returns the names used.
func (r *DefaultRegistry) Merge(prefix string, src Registry) ([]string, error) {
	var added []string
	for _, name := range src.List() {
		t, ok := src.Get(name)
		if !ok {
			continue
		}
		if _, exists := r.Get(name); exists && prefix != "" {
			t = Renamed(prefix+"__"+name, t)
		}
		if err := r.Register(t); err != nil {
			return added, err
		}
		added = append(added, t.Name())
	}
	return added, nil
}

// Renamed returns t exposed under a different name.
func Renamed(name string, t Tool) Tool { return renamedTool{Tool: t, name: name} }

type renamedTool struct {
	Tool
	name string
}

func (r renamedTool) Name() string { return r.name }

// Definitions converts the registered tools into model tool definitions.
func Definitions(r Registry) []llm.Tool {
	var defs []llm.Tool
	for _, name := range r.List() {
		t, ok := r.Get(name)
		if !ok {
			continue
		}
		schema := t.Schema()
		if schema == nil {
			schema = map[string]interface{}{"type": "object", "properties": map[string]interface{}{}}
		}
		defs = append(defs, llm.Tool{
			Type:     "function",
			Function: llm.ToolFunction{Name: name, Description: t.Description(), Parameters: schema},
		})
	}
	return defs
}

// Bedrock tool names must match [a-zA-Z0-9_-]{1,64}.
func validName(name string) bool {
	if name == "" || len(name) > 64 {
		return false
	}
	return strings.IndexFunc(name, func(r rune) bool {
		return !(r == '_' || r == '-' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9')
	}) < 0
}

// FuncTool adapts a function to Tool.
type FuncTool struct {
	name   string
	desc   string
	schema map[string]interface{}
	fn     func(ctx context.Context, input string) (string, error)
}

// NewFunc builds a Tool from fn.
func NewFunc(name, description string, schema map[string]interface{}, fn func(ctx context.Context, input string) (string, error)) *FuncTool {
	return &FuncTool{name: name, desc: description, schema: schema, fn: fn}
}

func (f *FuncTool) Name() string                   { return f.name }
func (f *FuncTool) Description() string            { return f.desc }
func (f *FuncTool) Schema() map[string]interface{} { return f.schema }
func (f *FuncTool) Execute(ctx context.Context, input string) (string, error) {
	return f.fn(ctx, input)
}

// DecodeArgs unmarshals a tool's JSON input into T. Empty input yields the zero value.
func DecodeArgs[T any](input string) (T, error) {
	var v T
	if strings.TrimSpace(input) == "" {
		return v, nil
	}
	if err := json.Unmarshal([]byte(input), &v); err != nil {
		return v, fmt.Errorf("invalid tool arguments: %w", err)
	}
	return v, nil
}

// ObjectSchema is shorthand for a JSON schema object with the given properties.
func ObjectSchema(properties map[string]interface{}, required ...string) map[string]interface{} {
	s := map[string]interface{}{"type": "object", "properties": properties}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

var _ Tool = (*FuncTool)(nil)
