// Package matrix expands an evaluation spec into the ordered list of work
// items the dispatcher executes, and computes the concurrency key that
// serializes items belonging to one logical conversation.
package matrix

import (
	"github.com/gavelhq/gavel/internal/models"
)

// WorkItem is one concrete (provider, prompt, test, repeat) unit of
// execution. Items are immutable once built and consumed exactly once.
type WorkItem struct {
	ProviderID string
	Prompt     *models.Prompt
	Test       *models.TestCase

	PromptIndex int
	TestIndex   int
	RepeatIndex int

	// Index is the item's slot in the run's result set.
	Index int

	Key ConcurrencyKey
}

// Build expands providers × prompts × tests × repeat into an ordered work
// item list. Repeats of a fixed (provider, prompt, test) appear in ascending
// RepeatIndex order and share exactly one concurrency key.
func Build(providerIDs []string, prompts []*models.Prompt, tests []*models.TestCase, repeat int) []WorkItem {
	if repeat < 1 {
		repeat = 1
	}

	items := make([]WorkItem, 0, len(providerIDs)*len(prompts)*len(tests)*repeat)
	for _, providerID := range providerIDs {
		for promptIndex, prompt := range prompts {
			for testIndex, test := range tests {
				key := ResolveKey(providerID, prompt, test, testIndex)
				for repeatIndex := 0; repeatIndex < repeat; repeatIndex++ {
					items = append(items, WorkItem{
						ProviderID:  providerID,
						Prompt:      prompt,
						Test:        test,
						PromptIndex: promptIndex,
						TestIndex:   testIndex,
						RepeatIndex: repeatIndex,
						Index:       len(items),
						Key:         key,
					})
				}
			}
		}
	}
	return items
}
