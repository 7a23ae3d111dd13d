// Package fights holds the immutable bout records the scatter and report
// tooling consume, plus loading, filtering and density aggregation helpers.
package fights

import (
	"errors"
	"strings"
	"time"
)

// Method is how a bout ended.
type Method string

const (
	MethodKO    Method = "KO"
	MethodSUB   Method = "SUB"
	MethodDEC   Method = "DEC"
	MethodOther Method = "OTHER"
)

// Methods lists every method in display order.
var Methods = []Method{MethodKO, MethodSUB, MethodDEC, MethodOther}

// Result is the outcome from the profiled fighter's perspective.
type Result string

const (
	ResultWin  Result = "WIN"
	ResultLoss Result = "LOSS"
	ResultDraw Result = "DRAW"
)

// Results lists every result in display order.
var Results = []Result{ResultWin, ResultLoss, ResultDraw}

var ErrUnknownResult = errors.New("unknown fight result")

// ParseMethod normalizes a free-form method string. Anything that is not a
// knockout, submission or decision maps to MethodOther.
func ParseMethod(s string) Method {
	v := strings.ToUpper(strings.TrimSpace(s))
	switch {
	case v == "KO" || v == "TKO" || strings.HasPrefix(v, "KO/") || strings.HasPrefix(v, "TKO"):
		return MethodKO
	case v == "SUB" || strings.HasPrefix(v, "SUBMISSION"):
		return MethodSUB
	case v == "DEC" || strings.HasPrefix(v, "DECISION") || strings.HasSuffix(v, "DEC"):
		return MethodDEC
	default:
		return MethodOther
	}
}

// ParseResult normalizes a result string.
func ParseResult(s string) (Result, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "WIN", "W":
		return ResultWin, nil
	case "LOSS", "L":
		return ResultLoss, nil
	case "DRAW", "D", "NC":
		return ResultDraw, nil
	}
	return "", ErrUnknownResult
}

// Fight is one bout. It is built once per load and never mutated.
type Fight struct {
	ID              string
	Date            time.Time
	DurationSeconds float64
	Method          Method
	Result          Result
	OpponentID      string
	OpponentName    string
	EventName       string
	FinishRound     int
	FinishRoundTime string
	ExternalURL     string

	Division        string
	OpponentCountry string
	HeadshotURL     string
}

// Filters selects which fights are drawn at full opacity. An empty set does
// not filter on that dimension.
type Filters struct {
	Results map[Result]bool
	Methods map[Method]bool
}

// NewFilters builds a filter from explicit sets.
func NewFilters(results []Result, methods []Method) Filters {
	f := Filters{}
	if len(results) > 0 {
		f.Results = make(map[Result]bool, len(results))
		for _, r := range results {
			f.Results[r] = true
		}
	}
	if len(methods) > 0 {
		f.Methods = make(map[Method]bool, len(methods))
		for _, m := range methods {
			f.Methods[m] = true
		}
	}
	return f
}

// Excludes reports whether the fight fails the active filters.
func (f Filters) Excludes(fight Fight) bool {
	if len(f.Results) > 0 && !f.Results[fight.Result] {
		return true
	}
	if len(f.Methods) > 0 && !f.Methods[fight.Method] {
		return true
	}
	return false
}

// ToggleResult returns a copy with r flipped in the result set.
func (f Filters) ToggleResult(r Result) Filters {
	out := Filters{Results: make(map[Result]bool, len(f.Results)+1), Methods: f.Methods}
	for k, v := range f.Results {
		out.Results[k] = v
	}
	if out.Results[r] {
		delete(out.Results, r)
	} else {
		out.Results[r] = true
	}
	return out
}

// ToggleMethod returns a copy with m flipped in the method set.
func (f Filters) ToggleMethod(m Method) Filters {
	out := Filters{Results: f.Results, Methods: make(map[Method]bool, len(f.Methods)+1)}
	for k, v := range f.Methods {
		out.Methods[k] = v
	}
	if out.Methods[m] {
		delete(out.Methods, m)
	} else {
		out.Methods[m] = true
	}
	return out
}

// Initials returns up to two uppercase initials for a display name.
func Initials(name string) string {
	parts := strings.Fields(name)
	var b strings.Builder
	for _, p := range parts {
		r := []rune(p)
		if len(r) == 0 {
			continue
		}
		b.WriteString(strings.ToUpper(string(r[0])))
		if b.Len() >= 2 {
			break
		}
	}
	if b.Len() == 0 {
		return "?"
	}
	return b.String()
}
