package textproc

// #region imports
import (
	"regexp"
	"strings"
)

// #endregion imports

// #region rules

// MaxVariations caps how many paraphrases a single question may produce.
const MaxVariations = 6

// boundary emulates a unicode-aware \b: RE2's \b only knows ASCII word characters,
// which breaks on accented endings like "é".
const boundaryL = `(^|[^\p{L}\p{N}_])`
const boundaryR = `([^\p{L}\p{N}_]|$)`

type rewriteRule struct {
	pattern     *regexp.Regexp
	replacement string
}

func phraseRule(phrase, replacement string) rewriteRule {
	words := strings.Fields(phrase)
	return rewriteRule{
		pattern:     regexp.MustCompile(boundaryL + strings.Join(words, `\s+`) + boundaryR),
		replacement: "${1}" + replacement + "${2}",
	}
}

var (
	ruleComoPosso     = phraseRule("como posso", "como faço para")
	ruleQualE         = phraseRule("qual é", "qual")
	ruleOndeEncontro  = phraseRule("onde encontro", "onde posso encontrar")
	ruleComoSolicitar = phraseRule("como solicitar", "como posso solicitar")
	leadingComo       = regexp.MustCompile(`^como` + boundaryR)
	leadingQualE      = regexp.MustCompile(`^qual é` + boundaryR)
	politenessPrefix  = "por favor"
)

// #endregion rules

// #region variations

// Variations derives deterministic paraphrases of question using fixed lexical
// rewrites. Each variation is lowercase. The original question is not included.
func Variations(question string) []string {
	lower := strings.ToLower(strings.TrimSpace(question))
	if lower == "" {
		return nil
	}

	var out []string
	add := func(v string) {
		if len(out) < MaxVariations {
			out = append(out, v)
		}
	}

	if ruleComoPosso.pattern.MatchString(lower) {
		add(ruleComoPosso.pattern.ReplaceAllString(lower, ruleComoPosso.replacement))
	}
	if ruleQualE.pattern.MatchString(lower) {
		add(ruleQualE.pattern.ReplaceAllString(lower, ruleQualE.replacement))
	}
	if ruleOndeEncontro.pattern.MatchString(lower) {
		add(ruleOndeEncontro.pattern.ReplaceAllString(lower, ruleOndeEncontro.replacement))
	}
	if !strings.HasPrefix(lower, politenessPrefix) {
		add("Por favor, " + lower)
	}
	if ruleComoSolicitar.pattern.MatchString(lower) {
		add(ruleComoSolicitar.pattern.ReplaceAllString(lower, ruleComoSolicitar.replacement))
	}
	if leadingComo.MatchString(lower) {
		add(leadingComo.ReplaceAllString(lower, "de que forma${1}"))
	}
	if leadingQualE.MatchString(lower) {
		add(leadingQualE.ReplaceAllString(lower, "informe${1}"))
	}

	return out
}

// #endregion variations
