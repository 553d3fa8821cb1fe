package assertions

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	// FileRefPrefix marks a value resolved from a local file.
	FileRefPrefix = "file://"
	// PackageRefPrefix marks a value resolved from an installed package.
	PackageRefPrefix = "package:"
)

// Loader resolves assertion values, expanding the universal file:// and
// package: escapes. Literal values pass through unchanged.
type Loader interface {
	Resolve(value any) (any, error)
}

// PackageResolver resolves a package: reference. Supplied by the embedding
// application; gavel itself ships no package manager integration.
type PackageResolver func(name string) (any, error)

// FileLoader is the default Loader. file:// paths resolve relative to
// BaseDir; package: references delegate to Packages when set.
type FileLoader struct {
	BaseDir  string
	Packages PackageResolver
}

var _ Loader = (*FileLoader)(nil)

// Resolve implements [Loader].
func (l *FileLoader) Resolve(value any) (any, error) {
	s, ok := value.(string)
	if !ok {
		return value, nil
	}

	switch {
	case strings.HasPrefix(s, FileRefPrefix):
		return l.loadFile(strings.TrimPrefix(s, FileRefPrefix))
	case strings.HasPrefix(s, PackageRefPrefix):
		name := strings.TrimPrefix(s, PackageRefPrefix)
		if l.Packages == nil {
			return nil, fmt.Errorf("no package resolver configured for %q", s)
		}
		return l.Packages(name)
	default:
		return value, nil
	}
}

func (l *FileLoader) loadFile(path string) (any, error) {
	if !filepath.IsAbs(path) && l.BaseDir != "" {
		path = filepath.Join(l.BaseDir, path)
	}

	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
	switch ext {
	case "json", "yaml", "yml", "txt":
	default:
		return nil, fmt.Errorf("Unsupported file type: %s", ext)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading assertion value file: %w", err)
	}

	switch ext {
	case "json":
		var v any
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
		return v, nil
	case "yaml", "yml":
		var v any
		if err := yaml.Unmarshal(data, &v); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
		return normalizeJSON(v), nil
	default: // txt
		return string(data), nil
	}
}
