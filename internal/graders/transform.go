package graders

import (
	"strings"
)

// applyTransform rewrites the output text before a handler sees it. The
// transform names are fixed; script-based transforms belong to extension
// handlers, not the engine.
func applyTransform(name, output string) (string, error) {
	switch name {
	case "trim":
		return strings.TrimSpace(output), nil
	case "lowercase":
		return strings.ToLower(output), nil
	case "uppercase":
		return strings.ToUpper(output), nil
	case "first-line":
		line, _, _ := strings.Cut(strings.TrimSpace(output), "\n")
		return strings.TrimSpace(line), nil
	case "last-line":
		trimmed := strings.TrimSpace(output)
		if i := strings.LastIndex(trimmed, "\n"); i >= 0 {
			trimmed = trimmed[i+1:]
		}
		return strings.TrimSpace(trimmed), nil
	}
	return "", structuralf("unknown transform %q", name)
}
