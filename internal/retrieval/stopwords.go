package retrieval

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// #region stopwords
// stopwords holds interrogatives and connectives that survive the length
// filter but carry no topic, in Portuguese and English.
var stopwords = map[string]bool{
	"como": true, "qual": true, "quais": true, "onde": true, "quando": true,
	"sobre": true, "para": true, "pelo": true, "pela": true, "quem": true,
	"porque": true, "você": true, "isso": true, "esse": true, "essa": true,
	"este": true, "esta": true, "posso": true, "preciso": true, "existe": true,
	"what": true, "which": true, "about": true, "when": true, "where": true,
	"with": true, "that": true, "this": true, "there": true, "does": true,
}

// minWordRunes is the shortest significant word length, exclusive.
const minWordRunes = 3

// significantWords splits text into unique lowercase words longer than
// minWordRunes runes, dropping stopwords. Order of first appearance is kept.
func significantWords(text string) []string {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '-'
	})
	seen := make(map[string]bool)
	var tokens []string
	for _, w := range words {
		w = strings.Trim(w, "-")
		if utf8.RuneCountInString(w) <= minWordRunes || stopwords[w] || seen[w] {
			continue
		}
		seen[w] = true
		tokens = append(tokens, w)
	}
	return tokens
}

// sharedKeywords returns the count of tokens present in both slices.
func sharedKeywords(a, b []string) int {
	set := make(map[string]bool, len(a))
	for _, t := range a {
		set[t] = true
	}
	count := 0
	for _, t := range b {
		if set[t] {
			count++
		}
	}
	return count
}

// #endregion stopwords
