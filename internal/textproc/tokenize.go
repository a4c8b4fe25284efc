package textproc

// #region imports
import (
	"strings"
	"unicode"

	"github.com/blevesearch/snowballstem"
	"github.com/blevesearch/snowballstem/portuguese"
)

// #endregion imports

// #region stem

// stemmedStopwords holds the stopword list after stemming, so exclusion is
// always a stem-to-stem comparison.
var stemmedStopwords = func() map[string]bool {
	set := make(map[string]bool, len(portugueseStopwords))
	for _, w := range portugueseStopwords {
		set[Stem(w)] = true
	}
	return set
}()

// Stem reduces a single lowercase Portuguese word to its snowball stem.
func Stem(word string) string {
	env := snowballstem.NewEnv(word)
	portuguese.Stem(env)
	return env.Current()
}

// IsStopword reports whether a stemmed token is in the stemmed stopword set.
func IsStopword(stem string) bool {
	return stemmedStopwords[stem]
}

// #endregion stem

// #region tokenize

// splitWords breaks lowercase text into candidate tokens. Letters, digits and
// hyphens are word characters; everything else separates.
func splitWords(lower string) []string {
	return strings.FieldsFunc(lower, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '-'
	})
}

func isAlpha(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsLetter(r) {
			return false
		}
	}
	return true
}

// TokenizeAndStem lowercases text, keeps alphabetic tokens and any token
// containing a hyphen other than a bare "-", and stems the alphabetic ones.
// Hyphenated tokens pass through byte for byte. The result is a pure function
// of text.
func TokenizeAndStem(text string) []string {
	var out []string
	for _, tok := range splitWords(strings.ToLower(text)) {
		switch {
		case tok == "-":
			continue
		case strings.Contains(tok, "-"):
			out = append(out, tok)
		case isAlpha(tok):
			out = append(out, Stem(tok))
		}
	}
	return out
}

// Terms is TokenizeAndStem with stemmed stopwords removed. This is the token
// stream the vectorizer builds n-grams from.
func Terms(text string) []string {
	toks := TokenizeAndStem(text)
	out := toks[:0]
	for _, t := range toks {
		if !IsStopword(t) {
			out = append(out, t)
		}
	}
	return out
}

// #endregion tokenize
