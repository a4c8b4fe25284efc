package retrieval

import "github.com/danielpatrickdp/answer-engine/go-controller/internal/contexts"

// #region match
// Match is the best-scoring context for a question.
type Match struct {
	Example  contexts.Example
	Index    int     // position in the input slice
	Score    float64 // keyword overlap score
	Coverage float64 // Score divided by the question's significant word count
}

// #endregion match

// #region scored
type scored struct {
	index int
	score float64
}

// #endregion scored
