package graders

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/gavelhq/gavel/internal/models"
	"github.com/santhosh-tekuri/jsonschema/v6"
)

// stringValue coerces a rendered assertion value into a string.
func stringValue(typ string, v any) (string, error) {
	switch s := v.(type) {
	case string:
		return s, nil
	case nil:
		return "", structuralf("%s requires a value", typ)
	default:
		return "", structuralf("%s requires a string value, got %T", typ, v)
	}
}

// stringListValue coerces a rendered value into a list of strings,
// preserving input order. A bare string is a single-element list.
func stringListValue(typ string, v any) ([]string, error) {
	switch list := v.(type) {
	case string:
		return []string{list}, nil
	case []string:
		return list, nil
	case []any:
		out := make([]string, 0, len(list))
		for i, elem := range list {
			s, ok := elem.(string)
			if !ok {
				return nil, structuralf("%s requires an array of strings (element %d is %T)", typ, i, elem)
			}
			out = append(out, s)
		}
		return out, nil
	case nil:
		return nil, structuralf("%s requires a value", typ)
	default:
		return nil, structuralf("%s requires a string or array value, got %T", typ, v)
	}
}

func numberValue(typ string, v any) (float64, error) {
	switch n := v.(type) {
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case float32:
		return float64(n), nil
	case float64:
		return n, nil
	case nil:
		return 0, structuralf("%s requires a value", typ)
	default:
		return 0, structuralf("%s requires a number value, got %T", typ, v)
	}
}

func handleContains(_ context.Context, _ *Pipeline, a *models.Assertion, rendered any, gctx *Context) (*models.GradingResult, error) {
	expected, err := stringValue(a.Type, rendered)
	if err != nil {
		return nil, err
	}

	ok := strings.Contains(gctx.Output, expected)
	reason := fmt.Sprintf("Output contains %q", expected)
	if !ok {
		reason = fmt.Sprintf("Output does not contain %q", expected)
	}
	return &models.GradingResult{Pass: ok, Score: boolScore(ok), Reason: reason}, nil
}

func handleEquals(_ context.Context, _ *Pipeline, a *models.Assertion, rendered any, gctx *Context) (*models.GradingResult, error) {
	var expected string
	switch v := rendered.(type) {
	case string:
		expected = v
	case nil:
		return nil, structuralf("equals requires a value")
	default:
		expected = fmt.Sprintf("%v", v)
	}

	ok := gctx.Output == expected
	reason := "Output equals expected value"
	if !ok {
		reason = fmt.Sprintf("Output does not equal %q", expected)
	}
	return &models.GradingResult{Pass: ok, Score: boolScore(ok), Reason: reason}, nil
}

func handleContainsAny(_ context.Context, _ *Pipeline, a *models.Assertion, rendered any, gctx *Context) (*models.GradingResult, error) {
	expected, err := stringListValue(a.Type, rendered)
	if err != nil {
		return nil, err
	}

	for _, s := range expected {
		if strings.Contains(gctx.Output, s) {
			return &models.GradingResult{
				Pass:   true,
				Score:  1,
				Reason: fmt.Sprintf("Output contains %q", s),
			}, nil
		}
	}
	return &models.GradingResult{
		Pass:   false,
		Score:  0,
		Reason: fmt.Sprintf("Output contains none of: %s", strings.Join(expected, ", ")),
	}, nil
}

func handleContainsAll(_ context.Context, _ *Pipeline, a *models.Assertion, rendered any, gctx *Context) (*models.GradingResult, error) {
	expected, err := stringListValue(a.Type, rendered)
	if err != nil {
		return nil, err
	}

	// Missing substrings are reported in input order, exactly.
	var missing []string
	for _, s := range expected {
		if !strings.Contains(gctx.Output, s) {
			missing = append(missing, s)
		}
	}

	if len(missing) > 0 {
		return &models.GradingResult{
			Pass:   false,
			Score:  0,
			Reason: fmt.Sprintf("Missing required substrings: %s", strings.Join(missing, ", ")),
		}, nil
	}
	return &models.GradingResult{
		Pass:   true,
		Score:  1,
		Reason: fmt.Sprintf("Output contains all %d required substrings", len(expected)),
	}, nil
}

func handleRegex(_ context.Context, _ *Pipeline, a *models.Assertion, rendered any, gctx *Context) (*models.GradingResult, error) {
	pattern, err := stringValue(a.Type, rendered)
	if err != nil {
		return nil, err
	}

	re, compileErr := regexp.Compile(pattern)
	if compileErr != nil {
		return nil, structuralf("regex assertion has an invalid pattern: %v", compileErr)
	}

	ok := re.MatchString(gctx.Output)
	reason := fmt.Sprintf("Output matches regex %q", pattern)
	if !ok {
		reason = fmt.Sprintf("Output does not match regex %q", pattern)
	}
	return &models.GradingResult{Pass: ok, Score: boolScore(ok), Reason: reason}, nil
}

func handleCost(_ context.Context, _ *Pipeline, a *models.Assertion, rendered any, gctx *Context) (*models.GradingResult, error) {
	maxCost, err := numberValue(a.Type, rendered)
	if err != nil {
		return nil, err
	}

	cost := 0.0
	if gctx.Response != nil {
		cost = gctx.Response.Cost
	}

	ok := cost <= maxCost
	reason := fmt.Sprintf("Cost %.6f is within limit %.6f", cost, maxCost)
	if !ok {
		reason = fmt.Sprintf("Cost %.6f exceeds limit %.6f", cost, maxCost)
	}
	return &models.GradingResult{Pass: ok, Score: boolScore(ok), Reason: reason}, nil
}

func handleLatency(_ context.Context, _ *Pipeline, a *models.Assertion, rendered any, gctx *Context) (*models.GradingResult, error) {
	maxMs, err := numberValue(a.Type, rendered)
	if err != nil {
		return nil, err
	}

	ok := float64(gctx.LatencyMs) <= maxMs
	reason := fmt.Sprintf("Latency %dms is within limit %.0fms", gctx.LatencyMs, maxMs)
	if !ok {
		reason = fmt.Sprintf("Latency %dms exceeds limit %.0fms", gctx.LatencyMs, maxMs)
	}
	return &models.GradingResult{Pass: ok, Score: boolScore(ok), Reason: reason}, nil
}

func handleIsJSON(_ context.Context, _ *Pipeline, a *models.Assertion, rendered any, gctx *Context) (*models.GradingResult, error) {
	var doc any
	if err := json.Unmarshal([]byte(strings.TrimSpace(gctx.Output)), &doc); err != nil {
		return &models.GradingResult{
			Pass:   false,
			Score:  0,
			Reason: fmt.Sprintf("Output is not valid JSON: %v", err),
		}, nil
	}

	if rendered == nil {
		return &models.GradingResult{Pass: true, Score: 1, Reason: "Output is valid JSON"}, nil
	}

	schemaDoc, ok := rendered.(map[string]any)
	if !ok {
		return nil, structuralf("is-json requires an object value")
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("is-json.schema.json", schemaDoc); err != nil {
		return nil, structuralf("is-json has an invalid JSON schema: %v", err)
	}
	schema, err := compiler.Compile("is-json.schema.json")
	if err != nil {
		return nil, structuralf("is-json has an invalid JSON schema: %v", err)
	}

	if err := schema.Validate(doc); err != nil {
		return &models.GradingResult{
			Pass:   false,
			Score:  0,
			Reason: fmt.Sprintf("Output does not match schema: %v", err),
		}, nil
	}
	return &models.GradingResult{Pass: true, Score: 1, Reason: "Output matches JSON schema"}, nil
}
