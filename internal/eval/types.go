package eval

import "github.com/danielpatrickdp/answer-engine/go-controller/internal/resolver"

// #region eval-config
// EvalConfig holds thresholds for judging a resolved decision.
type EvalConfig struct {
	MinAnswerConfidence float64 // in-scope answers below this fail
	StrictCache         bool    // fail when a decision was served from cache
}

// DefaultEvalConfig returns the stock thresholds.
func DefaultEvalConfig() EvalConfig {
	return EvalConfig{MinAnswerConfidence: 0.05}
}

// #endregion eval-config

// #region expectation
// Expectation is what a fixture says a question should resolve to. Zero
// fields are not checked.
type Expectation struct {
	Source         resolver.Source
	AnswerContains string
	InScope        *bool
}

// #endregion expectation

// #region eval-metric
// EvalMetric captures a single check result.
type EvalMetric struct {
	Name  string
	Value float64
	Pass  bool
}

// #endregion eval-metric

// #region eval-result
// EvalResult is the outcome of judging one decision.
type EvalResult struct {
	Passed  bool
	Metrics []EvalMetric
	Reason  string
}

// #endregion eval-result
