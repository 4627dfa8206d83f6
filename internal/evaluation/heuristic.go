package evaluation

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/jordanhubbard/gauntlet/pkg/models"
)

const (
	heuristicHit        = 70
	heuristicMiss       = 30
	domainKeywordStep   = 10
	maxDomainAdjustment = 30
)

var stopwords = map[string]bool{
	"about": true, "after": true, "also": true, "and": true, "are": true, "been": true,
	"before": true, "being": true, "between": true, "both": true, "does": true,
	"each": true, "every": true, "from": true, "have": true, "into": true, "must": true,
	"only": true, "other": true, "over": true, "same": true, "should": true, "such": true,
	"than": true, "that": true, "their": true, "them": true, "then": true, "there": true,
	"these": true, "they": true, "this": true, "those": true, "through": true, "under": true,
	"using": true, "very": true, "were": true, "what": true, "when": true, "where": true,
	"which": true, "while": true, "will": true, "with": true, "within": true, "without": true,
	"your": true, "solution": true, "clearly": true,
}

// DomainKeywords are the terms a credible answer in each category tends to use.
var DomainKeywords = map[models.Category][]string{
	models.CategoryCoding:        {"function", "error", "interface", "test", "module", "refactor", "type", "return"},
	models.CategoryArchitecture:  {"service", "component", "boundary", "scalab", "layer", "coupling", "queue", "tradeoff"},
	models.CategorySecurity:      {"threat", "auth", "encrypt", "validat", "sanitiz", "privilege", "token", "vulnerab"},
	models.CategoryPerformance:   {"latency", "throughput", "cache", "profil", "benchmark", "memory", "allocation", "concurren"},
	models.CategoryIntegration:   {"api", "contract", "schema", "retry", "idempoten", "timeout", "version", "adapter"},
	models.CategoryCollaboration: {"handoff", "interface", "agree", "review", "integrat", "responsib", "plan", "merge"},
	models.CategoryDebugging:     {"reproduc", "root cause", "log", "stack", "bisect", "hypothes", "trace", "regression"},
	models.CategoryTesting:       {"assert", "coverage", "mock", "fixture", "edge case", "table", "integration test", "flaky"},
	models.CategoryOptimization:  {"complexity", "index", "batch", "cache", "allocation", "parallel", "profil", "hot path"},
	models.CategoryInnovation:    {"prototype", "experiment", "novel", "alternative", "tradeoff", "measure", "hypothes", "iterate"},
}

// Keywords extracts the significant words of s: lowercased, at least four
// characters and not a stopword. Order follows first appearance.
func Keywords(s string) []string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	seen := make(map[string]bool, len(fields))
	var out []string
	for _, f := range fields {
		if len(f) < 4 || stopwords[f] || seen[f] {
			continue
		}
		seen[f] = true
		out = append(out, f)
	}
	return out
}

// HeuristicScore grades a response by keyword overlap with the criterion and
// the category's domain vocabulary.
func HeuristicScore(criterion, response string, category models.Category) (float64, string) {
	text := strings.ToLower(response)

	keywords := Keywords(criterion)
	matched := 0
	for _, k := range keywords {
		if strings.Contains(text, k) {
			matched++
		}
	}
	score := float64(heuristicMiss)
	if len(keywords) > 0 && matched*2 >= len(keywords) {
		score = heuristicHit
	}

	domain := 0
	for _, k := range DomainKeywords[category] {
		if strings.Contains(text, k) {
			domain++
		}
	}
	if domain == 0 {
		score -= domainKeywordStep
	} else {
		score += float64(min(domain*domainKeywordStep, maxDomainAdjustment))
	}

	score = clamp(score)
	return score, fmt.Sprintf("heuristic: %d/%d criterion keywords, %d domain keywords", matched, len(keywords), domain)
}

// overlapsFailure reports whether criterion addresses something the agent
// previously failed: an exact match ignoring case, or two shared keywords.
func overlapsFailure(criterion string, failures []string) bool {
	ck := Keywords(criterion)
	for _, f := range failures {
		if strings.EqualFold(strings.TrimSpace(criterion), strings.TrimSpace(f)) {
			return true
		}
		fk := make(map[string]bool)
		for _, k := range Keywords(f) {
			fk[k] = true
		}
		shared := 0
		for _, k := range ck {
			if fk[k] {
				shared++
			}
		}
		if shared >= 2 {
			return true
		}
	}
	return false
}
