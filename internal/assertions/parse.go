package assertions

import (
	"strings"

	"github.com/gavelhq/gavel/internal/models"
)

const inversePrefix = "not-"

// ParseType splits an assertion type string into its base type and inversion
// flag. Namespaced external types (containing ':') are never treated as
// invertible.
func ParseType(typ string) (base string, inverse bool) {
	if IsNamespaced(typ) {
		return typ, false
	}
	if rest, ok := strings.CutPrefix(typ, inversePrefix); ok {
		return rest, true
	}
	return typ, false
}

// IsNamespaced reports whether a type belongs to an external plugin namespace
// (e.g. "redteam:jailbreak"). Such types skip registry validation entirely.
func IsNamespaced(typ string) bool {
	return strings.Contains(typ, ":")
}

// Normalize strips the "not-" prefix from an assertion's type and records it
// in the Inverse flag. It is applied exactly once, when a spec is loaded;
// after that the type string is always the base type.
func Normalize(a *models.Assertion) {
	base, inverse := ParseType(a.Type)
	a.Type = base
	if inverse {
		a.Inverse = true
	}
}

// NormalizeAll normalizes every assertion of every test in place.
func NormalizeAll(tests []models.TestCase) {
	for i := range tests {
		for j := range tests[i].Assertions {
			Normalize(&tests[i].Assertions[j])
		}
	}
}
