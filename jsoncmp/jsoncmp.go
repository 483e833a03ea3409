// Package jsoncmp implements strict structural comparison of decoded JSON
// values. Object comparisons require identical key sets, array comparisons are
// order- and length-sensitive, and scalars must match in both type and value.
package jsoncmp

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"
)

// Kind classifies a single difference between two documents.
type Kind string

const (
	// Added marks a path present in the actual document only.
	Added Kind = "added"
	// Removed marks a path present in the expected document only.
	Removed Kind = "removed"
	// Changed marks a path present in both documents with differing values.
	Changed Kind = "changed"
)

// Difference is one location-qualified mismatch.
type Difference struct {
	Path     string
	Kind     Kind
	Actual   any
	Expected any
}

func (d Difference) String() string {
	switch d.Kind {
	case Added:
		return fmt.Sprintf("%s: added in actual: %s", d.Path, compact(d.Actual))
	case Removed:
		return fmt.Sprintf("%s: missing from actual: %s", d.Path, compact(d.Expected))
	default:
		return fmt.Sprintf("%s: changed: actual %s, expected %s", d.Path, compact(d.Actual), compact(d.Expected))
	}
}

// Compare walks both documents and returns every difference in path order.
// A nil slice means the documents are structurally identical.
func Compare(actual, expected any) []Difference {
	return walk("$", actual, expected, nil)
}

// Equal reports whether the two documents are identical in strict mode.
func Equal(actual, expected any) bool {
	return len(Compare(actual, expected)) == 0
}

func walk(path string, actual, expected any, diffs []Difference) []Difference {
	switch exp := expected.(type) {
	case map[string]any:
		act, ok := actual.(map[string]any)
		if !ok {
			return append(diffs, Difference{Path: path, Kind: Changed, Actual: actual, Expected: expected})
		}
		keys := make([]string, 0, len(exp)+len(act))
		for k := range exp {
			keys = append(keys, k)
		}
		for k := range act {
			if _, seen := exp[k]; !seen {
				keys = append(keys, k)
			}
		}
		sort.Strings(keys)
		for _, k := range keys {
			kp := path + "." + k
			ev, inExp := exp[k]
			av, inAct := act[k]
			switch {
			case inExp && inAct:
				diffs = walk(kp, av, ev, diffs)
			case inExp:
				diffs = append(diffs, Difference{Path: kp, Kind: Removed, Expected: ev})
			default:
				diffs = append(diffs, Difference{Path: kp, Kind: Added, Actual: av})
			}
		}
		return diffs

	case []any:
		act, ok := actual.([]any)
		if !ok {
			return append(diffs, Difference{Path: path, Kind: Changed, Actual: actual, Expected: expected})
		}
		n := len(exp)
		if len(act) < n {
			n = len(act)
		}
		for i := 0; i < n; i++ {
			diffs = walk(fmt.Sprintf("%s[%d]", path, i), act[i], exp[i], diffs)
		}
		for i := n; i < len(exp); i++ {
			diffs = append(diffs, Difference{Path: fmt.Sprintf("%s[%d]", path, i), Kind: Removed, Expected: exp[i]})
		}
		for i := n; i < len(act); i++ {
			diffs = append(diffs, Difference{Path: fmt.Sprintf("%s[%d]", path, i), Kind: Added, Actual: act[i]})
		}
		return diffs

	default:
		// Scalars and null. encoding/json decodes every JSON number to
		// float64, so a matching reflect type implies a matching JSON type.
		if actual == nil && expected == nil {
			return diffs
		}
		if actual == nil || expected == nil || reflect.TypeOf(actual) != reflect.TypeOf(expected) || actual != expected {
			return append(diffs, Difference{Path: path, Kind: Changed, Actual: actual, Expected: expected})
		}
		return diffs
	}
}

// FormatDiffs renders the difference list one entry per line.
func FormatDiffs(diffs []Difference) string {
	lines := make([]string, len(diffs))
	for i, d := range diffs {
		lines[i] = d.String()
	}
	return strings.Join(lines, "\n")
}

// Pretty returns an indented rendering of a decoded JSON value for diagnostics.
func Pretty(v any) string {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}

func compact(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}
