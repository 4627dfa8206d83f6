package models

import (
	"strings"
)

// Category is the skill area a scenario targets.
type Category string

const (
	CategoryCoding        Category = "coding"
	CategoryArchitecture  Category = "architecture"
	CategorySecurity      Category = "security"
	CategoryPerformance   Category = "performance"
	CategoryIntegration   Category = "integration"
	CategoryCollaboration Category = "collaboration"
	CategoryDebugging     Category = "debugging"
	CategoryTesting       Category = "testing"
	CategoryOptimization  Category = "optimization"
	CategoryInnovation    Category = "innovation"
)

// Categories lists every supported category.
var Categories = []Category{
	CategoryCoding,
	CategoryArchitecture,
	CategorySecurity,
	CategoryPerformance,
	CategoryIntegration,
	CategoryCollaboration,
	CategoryDebugging,
	CategoryTesting,
	CategoryOptimization,
	CategoryInnovation,
}

// NormalizeCategory lowercases and trims a category name without validating it.
func NormalizeCategory(s string) Category {
	return Category(strings.ToLower(strings.TrimSpace(s)))
}

// Supported reports whether c is one of Categories.
func (c Category) Supported() bool {
	for _, candidate := range Categories {
		if candidate == c {
			return true
		}
	}
	return false
}

// RequiresGroup reports whether scenarios in c need at least two participants.
func (c Category) RequiresGroup() bool { return c == CategoryCollaboration }

func (c Category) String() string { return string(c) }
