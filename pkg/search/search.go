// Package search highlights fights whose opponent or event mentions any of a
// set of query terms.
package search

import (
	"strings"

	"github.com/cloudflare/ahocorasick"
	"github.com/sudorandom/fightscope/pkg/fights"
)

// Matcher tests fights against a fixed set of case-insensitive terms.
type Matcher struct {
	terms []string
	m     *ahocorasick.Matcher
}

// NewMatcher splits query on commas and whitespace. An empty query yields a
// nil Matcher, which matches everything.
func NewMatcher(query string) *Matcher {
	terms := Terms(query)
	if len(terms) == 0 {
		return nil
	}
	return &Matcher{terms: terms, m: ahocorasick.NewStringMatcher(terms)}
}

// Terms normalizes a free-form query into lowercase search terms.
func Terms(query string) []string {
	fields := strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == '\n'
	})
	seen := make(map[string]bool, len(fields))
	out := fields[:0]
	for _, f := range fields {
		if seen[f] {
			continue
		}
		seen[f] = true
		out = append(out, f)
	}
	return out
}

func (m *Matcher) Terms() []string {
	if m == nil {
		return nil
	}
	return m.terms
}

// Match reports whether any term occurs in the fight's opponent name, event
// name, division or country.
func (m *Matcher) Match(f fights.Fight) bool {
	if m == nil {
		return true
	}
	hay := strings.ToLower(strings.Join([]string{f.OpponentName, f.EventName, f.Division, fights.CountryName(f.OpponentCountry)}, "\x00"))
	return m.m.Contains([]byte(hay))
}

// Filter returns the IDs of fights that match.
func (m *Matcher) Filter(list []fights.Fight) map[string]bool {
	out := make(map[string]bool, len(list))
	for _, f := range list {
		if m.Match(f) {
			out[f.ID] = true
		}
	}
	return out
}
