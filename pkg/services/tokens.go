package services

import (
	"regexp"
	"strings"

	"github.com/jinzhu/inflection"
)

// Underscores separate words in snake_case headers.
var nonWord = regexp.MustCompile(`[\W_]+`)

// nameTokens splits a column name on non-word boundaries, lowercases each
// token and singularises it ("Countries" and "Country" share a token).
func nameTokens(name string) []string {
	parts := nonWord.Split(strings.ToLower(name), -1)
	tokens := make([]string, 0, len(parts))
	for _, p := range parts {
		if p == "" {
			continue
		}
		tokens = append(tokens, inflection.Singular(p))
	}
	return tokens
}

func tokenSet(tokens []string) map[string]bool {
	set := make(map[string]bool, len(tokens))
	for _, t := range tokens {
		set[t] = true
	}
	return set
}

// containsAllTokens reports whether every token of needle is in haystack and
// returns how many haystack tokens are left over.
func containsAllTokens(haystack map[string]bool, needle []string) (bool, int) {
	if len(needle) == 0 {
		return false, 0
	}
	matched := make(map[string]bool, len(needle))
	for _, t := range needle {
		if !haystack[t] {
			return false, 0
		}
		matched[t] = true
	}
	return true, len(haystack) - len(matched)
}

// normalizeName is the comparison form used for exact column-name matches.
func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// foreignKeyTokens mark a column name as key-shaped.
var foreignKeyTokens = map[string]bool{"code": true, "id": true, "key": true}

// looksLikeForeignKeyName reports whether a column name is shaped like a reference
// to another table ("Area Code", "item_id").
func looksLikeForeignKeyName(name string) bool {
	for _, t := range nameTokens(name) {
		if foreignKeyTokens[t] {
			return true
		}
	}
	return false
}
