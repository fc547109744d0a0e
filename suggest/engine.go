// Package suggest maps free-text health questions to canned follow-up
// suggestions via case-insensitive keyword matching.
package suggest

import "strings"

// Rule binds a keyword to a reply sentence and follow-up suggestions.
type Rule struct {
	Keyword     string   `json:"keyword"`
	Reply       string   `json:"reply"`
	Suggestions []string `json:"suggestions"`
}

// Match is the outcome of scanning an input against the rule table.
type Match struct {
	// Reply is the first matching rule's sentence, empty when nothing matched.
	Reply string
	// Suggestions concatenates every matching rule's suggestion list in
	// table order. Duplicates across rules are preserved.
	Suggestions []string
}

// Matched reports whether any keyword was found in the input.
func (m Match) Matched() bool {
	return m.Reply != "" || len(m.Suggestions) > 0
}

// Engine performs lookups over a fixed rule table. It is stateless and
// safe for concurrent use.
type Engine struct {
	rules []Rule
}

func NewEngine(rules []Rule) *Engine {
	return &Engine{rules: rules}
}

// Rules returns the engine's rule table in order.
func (e *Engine) Rules() []Rule {
	out := make([]Rule, len(e.rules))
	copy(out, e.rules)
	return out
}

// Match scans the input against every keyword (lowercased substring
// containment). It never fails; an input matching nothing yields a zero Match.
func (e *Engine) Match(input string) Match {
	lowered := strings.ToLower(input)

	var m Match
	for _, rule := range e.rules {
		if !strings.Contains(lowered, strings.ToLower(rule.Keyword)) {
			continue
		}
		if m.Reply == "" {
			m.Reply = rule.Reply
		}
		m.Suggestions = append(m.Suggestions, rule.Suggestions...)
	}
	return m
}
