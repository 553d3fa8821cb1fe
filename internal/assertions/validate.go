package assertions

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/gavelhq/gavel/internal/models"
	"github.com/santhosh-tekuri/jsonschema/v6"
)

// ValidationResult aggregates the errors and warnings found while validating
// assertion values. Warnings never make a result invalid.
type ValidationResult struct {
	Errors   []string
	Warnings []string
}

// Valid reports whether validation produced no errors.
func (r *ValidationResult) Valid() bool { return len(r.Errors) == 0 }

func (r *ValidationResult) errorf(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

func (r *ValidationResult) warnf(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

func (r *ValidationResult) merge(other ValidationResult) {
	r.Errors = append(r.Errors, other.Errors...)
	r.Warnings = append(r.Warnings, other.Warnings...)
}

// ValidateAssertion checks one assertion's value shape against the registry.
//
// Namespaced external types skip validation entirely. Unknown base types are
// valid with a warning so extension types configured before registration
// don't fail a whole spec.
func ValidateAssertion(reg *Registry, a *models.Assertion) ValidationResult {
	var result ValidationResult

	if IsNamespaced(a.Type) {
		return result
	}

	base, _ := ParseType(a.Type)

	entry, known := reg.Lookup(base)
	if !known {
		result.warnf("Unknown assertion type: %s", base)
		return result
	}

	hasValue := a.Value != nil

	if entry.RequiresValue && !hasValue {
		result.errorf("%s requires a value", base)
		return result
	}

	if entry.ValueType == ValueNone && hasValue {
		result.warnf("%s does not use a value", base)
	}

	if a.Threshold.IsSet() {
		if !entry.SupportsThreshold {
			result.warnf("%s does not support threshold", base)
		} else if t := a.Threshold.Value(); t < 0 || t > 1 {
			result.errorf("Threshold must be a number between 0 and 1")
		}
	}

	if hasValue && entry.ValueType != ValueNone {
		result.merge(validateValueShape(base, entry.ValueType, a.Value))
	}

	return result
}

// ValidateAssertions validates every assertion in the list, aggregating all
// errors and warnings without short-circuiting.
func ValidateAssertions(reg *Registry, list []models.Assertion) ValidationResult {
	var result ValidationResult
	for i := range list {
		r := ValidateAssertion(reg, &list[i])
		for _, e := range r.Errors {
			result.Errors = append(result.Errors, fmt.Sprintf("assertion %d: %s", i, e))
		}
		for _, w := range r.Warnings {
			result.Warnings = append(result.Warnings, fmt.Sprintf("assertion %d: %s", i, w))
		}
	}
	return result
}

// isEscape reports whether a string value defers resolution to the loader
// collaborator.
func isEscape(s string) bool {
	return strings.HasPrefix(s, FileRefPrefix) || strings.HasPrefix(s, PackageRefPrefix)
}

func validateValueShape(base string, vt ValueType, value any) ValidationResult {
	var result ValidationResult

	// The universal escapes are accepted for every shape; the loader
	// validates the referenced content when it resolves them.
	if s, ok := value.(string); ok && isEscape(s) {
		return result
	}

	switch vt {
	case ValueString, ValueCode:
		if _, ok := value.(string); !ok {
			result.errorf("%s requires a string value", base)
		}

	case ValueNumber:
		if !isNumber(value) {
			result.errorf("%s requires a number value", base)
		}

	case ValueArray:
		switch v := value.(type) {
		case string:
			// A bare string is accepted as a single-element array.
		case []any:
			for i, elem := range v {
				if _, ok := elem.(string); !ok {
					result.errorf("%s requires an array of strings (element %d is not a string)", base, i)
				}
			}
		case []string:
		default:
			result.errorf("%s requires a string or array value", base)
		}

	case ValueRegex:
		s, ok := value.(string)
		if !ok {
			result.errorf("%s requires a regex string value", base)
			break
		}
		if _, err := regexp.Compile(s); err != nil {
			result.errorf("%s has an invalid regex: %v", base, err)
		}

	case ValueReference:
		s, ok := value.(string)
		if !ok || !isEscape(s) {
			result.errorf("%s requires a file:// or package: reference", base)
		}

	case ValueSchema:
		m, ok := toStringMap(value)
		if !ok {
			result.errorf("%s requires an object value", base)
			break
		}
		if err := compileSchema(m); err != nil {
			result.errorf("%s has an invalid JSON schema: %v", base, err)
		}

	case ValueCustom:
		if _, ok := toStringMap(value); !ok {
			result.errorf("%s requires an object value", base)
		}
	}

	return result
}

func isNumber(v any) bool {
	switch v.(type) {
	case int, int32, int64, float32, float64:
		return true
	}
	return false
}

// toStringMap normalizes the two map shapes YAML decoding can produce.
func toStringMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case map[any]any:
		out := make(map[string]any, len(m))
		for k, val := range m {
			ks, ok := k.(string)
			if !ok {
				return nil, false
			}
			out[ks] = val
		}
		return out, true
	}
	return nil, false
}

// compileSchema checks that a value parses as a JSON schema.
func compileSchema(doc map[string]any) error {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("assertion.schema.json", normalizeJSON(doc)); err != nil {
		return err
	}
	_, err := compiler.Compile("assertion.schema.json")
	return err
}

// normalizeJSON converts YAML-decoded values into JSON-compatible types.
func normalizeJSON(v any) any {
	switch val := v.(type) {
	case map[any]any:
		out := make(map[string]any, len(val))
		for k, elem := range val {
			out[fmt.Sprintf("%v", k)] = normalizeJSON(elem)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, elem := range val {
			out[k] = normalizeJSON(elem)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, elem := range val {
			out[i] = normalizeJSON(elem)
		}
		return out
	case int:
		return float64(val)
	default:
		return v
	}
}
