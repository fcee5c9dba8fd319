package dispatcher

import (
	"bytes"
	"encoding/json"
	"strings"
	"sync"

	"github.com/Laisky/errors/v2"
	"github.com/santhosh-tekuri/jsonschema/v6"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/twinmcp/gateway/registry"
)

var localePrinter = message.NewPrinter(language.English)

// ValidationError reports schema validation failures with per-field detail.
// Keys are JSON pointers into the argument object; the root is "/".
type ValidationError struct {
	Fields map[string]string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for field, msg := range e.Fields {
		parts = append(parts, field+": "+msg)
	}
	return "argument validation failed: " + strings.Join(parts, "; ")
}

// validator compiles tool input schemas on first use and caches the
// compiled form keyed by tool id and version.
type validator struct {
	mu       sync.RWMutex
	compiled map[string]*jsonschema.Schema
}

func newValidator() *validator {
	return &validator{compiled: make(map[string]*jsonschema.Schema)}
}

// Validate checks args against the tool's input schema. Tools without a
// schema accept anything.
func (v *validator) Validate(tool *registry.Tool, args map[string]any) error {
	if len(tool.InputSchema) == 0 {
		return nil
	}

	schema, err := v.schemaFor(tool)
	if err != nil {
		return errors.Wrapf(err, "compile input schema for tool %q", tool.Id)
	}

	// Round-trip through JSON so argument values carry the generic types
	// the validator expects regardless of how the caller built the map.
	normalized, err := normalizeArgs(args)
	if err != nil {
		return errors.Wrap(err, "encode arguments")
	}

	err = schema.Validate(normalized)
	if err == nil {
		return nil
	}

	var verr *jsonschema.ValidationError
	if !errors.As(err, &verr) {
		return errors.Wrap(err, "validate arguments")
	}

	fields := make(map[string]string)
	collectCauses(verr, fields)
	return &ValidationError{Fields: fields}
}

func (v *validator) schemaFor(tool *registry.Tool) (*jsonschema.Schema, error) {
	cacheKey := tool.Id + "@" + tool.Version

	v.mu.RLock()
	schema, ok := v.compiled[cacheKey]
	v.mu.RUnlock()
	if ok {
		return schema, nil
	}

	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(tool.InputSchema))
	if err != nil {
		return nil, errors.Wrap(err, "unmarshal schema")
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", doc); err != nil {
		return nil, errors.Wrap(err, "add schema resource")
	}
	schema, err = compiler.Compile("schema.json")
	if err != nil {
		return nil, errors.Wrap(err, "compile schema")
	}

	v.mu.Lock()
	v.compiled[cacheKey] = schema
	v.mu.Unlock()
	return schema, nil
}

// collectCauses flattens the validation error tree into field → message,
// keeping leaf causes only.
func collectCauses(verr *jsonschema.ValidationError, fields map[string]string) {
	if len(verr.Causes) == 0 {
		fields[pointerOf(verr.InstanceLocation)] = verr.ErrorKind.LocalizedString(localePrinter)
		return
	}
	for _, cause := range verr.Causes {
		collectCauses(cause, fields)
	}
}

func pointerOf(location []string) string {
	if len(location) == 0 {
		return "/"
	}
	return "/" + strings.Join(location, "/")
}

func normalizeArgs(args map[string]any) (any, error) {
	if args == nil {
		args = map[string]any{}
	}
	raw, err := json.Marshal(args)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return jsonschema.UnmarshalJSON(bytes.NewReader(raw))
}
