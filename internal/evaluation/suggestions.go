package evaluation

import (
	"fmt"

	"github.com/jordanhubbard/gauntlet/pkg/models"
)

var suggestions = map[models.Category]string{
	models.CategoryCoding:        "revisit error handling and idiomatic structure",
	models.CategoryArchitecture:  "clarify component boundaries and failure modes",
	models.CategorySecurity:      "review threat modeling",
	models.CategoryPerformance:   "profile and cache",
	models.CategoryIntegration:   "pin down the contract and retry semantics",
	models.CategoryCollaboration: "make handoffs and ownership explicit",
	models.CategoryDebugging:     "reproduce first, then isolate the root cause",
	models.CategoryTesting:       "cover edge cases and failure paths",
	models.CategoryOptimization:  "measure before and after each change",
	models.CategoryInnovation:    "validate the idea with a small experiment",
}

// Suggestion returns the remediation hint for a weak criterion.
func Suggestion(category models.Category, criterion string) string {
	hint, ok := suggestions[category]
	if !ok {
		hint = "study the fundamentals of " + string(category)
	}
	return fmt.Sprintf("%s: %s", hint, criterion)
}
