// Package config merges prompt-level provider configuration with per-test
// overrides.
package config

// Merge returns a new map combining base configuration with per-test
// overrides. Overrides always win on conflict. The merge is shallow: a key
// whose value is itself a map is replaced wholesale by the override's value,
// never merged field by field. Neither input is mutated.
func Merge(base, overrides map[string]any) map[string]any {
	merged := make(map[string]any, len(base)+len(overrides))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range overrides {
		merged[k] = v
	}
	return merged
}
