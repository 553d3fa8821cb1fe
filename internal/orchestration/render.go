package orchestration

import (
	"fmt"
	"strings"
)

// RenderPrompt substitutes {{var}} placeholders with test variables. Both
// "{{name}}" and "{{ name }}" spellings are accepted; unknown placeholders
// are left intact.
func RenderPrompt(text string, vars map[string]any) string {
	if len(vars) == 0 || !strings.Contains(text, "{{") {
		return text
	}

	pairs := make([]string, 0, len(vars)*4)
	for k, v := range vars {
		rendered := fmt.Sprintf("%v", v)
		pairs = append(pairs,
			"{{"+k+"}}", rendered,
			"{{ "+k+" }}", rendered,
		)
	}
	return strings.NewReplacer(pairs...).Replace(text)
}
