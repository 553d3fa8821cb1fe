package matrix

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/gavelhq/gavel/internal/models"
)

// ConcurrencyKey identifies a logical conversation. Work items sharing a key
// must execute serially in ascending repeat order; items with different keys
// have no relative ordering constraint.
//
// The key is a SHA-256 digest over provider identity, prompt identity and the
// conversation identity of the test case. It deliberately excludes the repeat
// index so all repeats of one logical conversation map to one key. Keys are
// comparable: equality is digest equality, and the zero value is "no key".
type ConcurrencyKey struct {
	digest string
}

// String returns the hex digest.
func (k ConcurrencyKey) String() string { return k.digest }

// IsZero reports whether the key was never resolved.
func (k ConcurrencyKey) IsZero() bool { return k.digest == "" }

// conversationIDKey is the test metadata key that joins multiple test cases
// into one multi-turn conversation.
const conversationIDKey = "conversationId"

// ResolveKey computes the concurrency key for one (provider, prompt, test)
// combination. Tests that share a conversationId metadata value (under the
// same provider and prompt) share a key regardless of their vars, so all
// turns of one conversation serialize together; without a conversationId the
// test's own index is the identity, so unrelated tests never collide.
func ResolveKey(providerID string, prompt *models.Prompt, test *models.TestCase, testIndex int) ConcurrencyKey {
	h := sha256.New()

	writeField(h, providerID)
	writeField(h, prompt.ID())
	writeField(h, conversationIdentity(test, testIndex))

	return ConcurrencyKey{digest: hex.EncodeToString(h.Sum(nil))}
}

func conversationIdentity(test *models.TestCase, testIndex int) string {
	if test.Metadata != nil {
		if id, ok := test.Metadata[conversationIDKey].(string); ok && id != "" {
			return "conversation:" + id
		}
	}
	return fmt.Sprintf("test:%d", testIndex)
}

// writeField writes a length-prefixed field so adjacent fields can't alias.
func writeField(w io.Writer, s string) {
	fmt.Fprintf(w, "%d:%s", len(s), s)
}
