// Package assertions defines the assertion type registry, assertion parsing
// and validation, and resolution of file:// and package: value references.
package assertions

import (
	"fmt"
	"sort"
	"strings"
)

// ValueType declares the literal shape an assertion type accepts for its
// value. Every shape additionally accepts the universal string escapes
// "file://<path>" and "package:<name>".
type ValueType string

const (
	ValueNone      ValueType = "none"
	ValueString    ValueType = "string"
	ValueNumber    ValueType = "number"
	ValueArray     ValueType = "array"
	ValueRegex     ValueType = "regex"
	ValueCode      ValueType = "code"
	ValueReference ValueType = "reference"
	ValueSchema    ValueType = "schema"
	ValueCustom    ValueType = "custom"
)

// TypeEntry is one registry row: the value shape and capability flags for a
// base assertion type. Inverted ("not-" prefixed) forms do not get their own
// entry; they inherit the base type's capabilities.
type TypeEntry struct {
	ValueType         ValueType
	SupportsThreshold bool
	RequiresValue     bool
}

// Registry is an immutable mapping from base assertion type to its entry.
// Built-ins are registered at construction; extensions are added through
// Register before the registry is handed to the pipeline.
type Registry struct {
	entries map[string]TypeEntry
	sealed  bool
}

// NewRegistry returns a registry populated with the built-in types.
func NewRegistry() *Registry {
	r := &Registry{entries: make(map[string]TypeEntry)}
	for name, entry := range builtinTypes {
		r.entries[name] = entry
	}
	return r
}

// Register adds an extension type. Registering a duplicate or a "not-"
// prefixed name is an error: inverted forms are derived, never stored.
func (r *Registry) Register(name string, entry TypeEntry) error {
	if r.sealed {
		return fmt.Errorf("registry is sealed")
	}
	if strings.HasPrefix(name, inversePrefix) {
		return fmt.Errorf("cannot register inverted type %q; register the base type", name)
	}
	if _, exists := r.entries[name]; exists {
		return fmt.Errorf("assertion type %q is already registered", name)
	}
	r.entries[name] = entry
	return nil
}

// Seal freezes the registry against further registration.
func (r *Registry) Seal() { r.sealed = true }

// Lookup returns the entry for a base type.
func (r *Registry) Lookup(baseType string) (TypeEntry, bool) {
	entry, ok := r.entries[baseType]
	return entry, ok
}

// Types returns the registered base type names, sorted.
func (r *Registry) Types() []string {
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// builtinTypes is the built-in assertion type table. Exactly one entry per
// base type.
var builtinTypes = map[string]TypeEntry{
	// Exact/substring family.
	"contains":     {ValueType: ValueString, RequiresValue: true},
	"contains-any": {ValueType: ValueArray, RequiresValue: true},
	"contains-all": {ValueType: ValueArray, RequiresValue: true},
	"equals":       {ValueType: ValueString, RequiresValue: true},
	"regex":        {ValueType: ValueRegex, RequiresValue: true},

	// Similarity/overlap family.
	"similar": {ValueType: ValueArray, SupportsThreshold: true, RequiresValue: true},
	"bleu":    {ValueType: ValueArray, SupportsThreshold: true, RequiresValue: true},
	"gleu":    {ValueType: ValueArray, SupportsThreshold: true, RequiresValue: true},

	// Judge-delegated family.
	"llm-rubric":           {ValueType: ValueString, SupportsThreshold: true, RequiresValue: true},
	"classifier":           {ValueType: ValueString, SupportsThreshold: true, RequiresValue: true},
	"context-faithfulness": {ValueType: ValueNone, SupportsThreshold: true},
	"context-recall":       {ValueType: ValueString, SupportsThreshold: true, RequiresValue: true},
	"context-relevance":    {ValueType: ValueNone, SupportsThreshold: true},

	// Provider safety flags.
	"guardrails": {ValueType: ValueNone},

	// Trace introspection.
	"trace-span-count":    {ValueType: ValueCustom, RequiresValue: true},
	"trace-span-duration": {ValueType: ValueCustom, RequiresValue: true},

	// Output classification.
	"counterfactual-equality": {ValueType: ValueNone},
	"is-refusal":              {ValueType: ValueNone},
	"is-json":                 {ValueType: ValueSchema},

	// Budget checks.
	"cost":    {ValueType: ValueNumber, RequiresValue: true},
	"latency": {ValueType: ValueNumber, RequiresValue: true},

	// Script types are registered for validation; grading them requires an
	// extension handler.
	"javascript": {ValueType: ValueCode, SupportsThreshold: true, RequiresValue: true},
	"python":     {ValueType: ValueCode, SupportsThreshold: true, RequiresValue: true},
}
