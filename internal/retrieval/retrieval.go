// Package retrieval ranks an agent's stored contexts by keyword overlap with a
// question. It picks the examples sent to the remote model and backs the
// keyword fallback when both the classifier and the remote model give up.
package retrieval

import (
	"sort"
	"strings"

	"github.com/danielpatrickdp/answer-engine/go-controller/internal/contexts"
)

// #region score
// Score rates one context against the question's significant words: one point
// per word shared with the context question, half a point per word found
// anywhere in the lowercased answer.
func Score(sigQ []string, ex contexts.Example) float64 {
	score := float64(sharedKeywords(sigQ, significantWords(ex.Question)))
	answer := strings.ToLower(ex.Answer)
	for _, w := range sigQ {
		if strings.Contains(answer, w) {
			score += 0.5
		}
	}
	return score
}

// #endregion score

// #region select
// Select returns up to limit contexts ordered by descending Score. Ties keep
// input order. It never fails: a question with no significant words, or an
// empty context list, simply yields input order or nothing.
func Select(examples []contexts.Example, question string, limit int) []contexts.Example {
	if limit <= 0 || len(examples) == 0 {
		return nil
	}
	ranked := rank(examples, significantWords(question))
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	out := make([]contexts.Example, len(ranked))
	for i, s := range ranked {
		out[i] = examples[s.index]
	}
	return out
}

func rank(examples []contexts.Example, sigQ []string) []scored {
	ranked := make([]scored, len(examples))
	for i, ex := range examples {
		ranked[i] = scored{index: i, score: Score(sigQ, ex)}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].score > ranked[j].score
	})
	return ranked
}

// #endregion select

// #region best-match
// BestMatch returns the top-scoring context. ok is false when there are no
// contexts, the question has no significant words, or nothing scores above zero.
func BestMatch(examples []contexts.Example, question string) (m Match, ok bool) {
	sigQ := significantWords(question)
	if len(examples) == 0 || len(sigQ) == 0 {
		return Match{}, false
	}
	top := rank(examples, sigQ)[0]
	if top.score <= 0 {
		return Match{}, false
	}
	return Match{
		Example:  examples[top.index],
		Index:    top.index,
		Score:    top.score,
		Coverage: top.score / float64(len(sigQ)),
	}, true
}

// #endregion best-match
