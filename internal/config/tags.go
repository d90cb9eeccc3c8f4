package config

import (
	"fmt"
	"strings"
)

// Tag is a key/value pair applied to every deployed stack.
type Tag struct {
	Key   string
	Value string
}

// ParseTags parses "key|value,key|value". Empty input yields no tags.
func ParseTags(s string) ([]Tag, error) {
	var tags []Tag
	for _, pair := range ParseList(s) {
		key, value, ok := strings.Cut(pair, "|")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid custom tag %q: expected key|value", pair)
		}
		tags = append(tags, Tag{Key: key, Value: strings.TrimSpace(value)})
	}
	return tags, nil
}

// ParseList splits a comma-separated list, dropping blanks and duplicates
// while keeping the first-seen order.
func ParseList(s string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, item := range strings.Split(s, ",") {
		item = strings.TrimSpace(item)
		if item == "" || seen[item] {
			continue
		}
		seen[item] = true
		out = append(out, item)
	}
	return out
}
