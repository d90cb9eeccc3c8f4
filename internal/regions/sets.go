// Package regions resolves the regions an account should be monitored in
// and provides the set arithmetic used to converge region lists.
package regions

import (
	"slices"
	"sort"
)

// Normalize returns the distinct non-empty entries of in, sorted.
func Normalize(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, r := range in {
		if r == "" || seen[r] {
			continue
		}
		seen[r] = true
		out = append(out, r)
	}
	sort.Strings(out)
	return out
}

// Union returns the sorted union of a and b.
func Union(a, b []string) []string {
	return Normalize(append(slices.Clone(a), b...))
}

// Missing returns the entries of want absent from have, sorted.
func Missing(want, have []string) []string {
	present := make(map[string]bool, len(have))
	for _, r := range have {
		present[r] = true
	}
	var out []string
	for _, r := range Normalize(want) {
		if !present[r] {
			out = append(out, r)
		}
	}
	return out
}

// IsSubset reports whether every entry of sub is in super.
func IsSubset(sub, super []string) bool {
	return len(Missing(sub, super)) == 0
}

// Intersect returns the entries of a also in b, sorted. An empty b means
// no restriction and returns a.
func Intersect(a, b []string) []string {
	if len(b) == 0 {
		return Normalize(a)
	}
	allowed := make(map[string]bool, len(b))
	for _, r := range b {
		allowed[r] = true
	}
	var out []string
	for _, r := range Normalize(a) {
		if allowed[r] {
			out = append(out, r)
		}
	}
	return out
}
