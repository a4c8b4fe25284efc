// Package eval judges resolver decisions against expected outcomes and
// against the invariants every decision must satisfy.
package eval

import (
	"fmt"
	"strings"

	"github.com/danielpatrickdp/answer-engine/go-controller/internal/resolver"
)

// #region eval-harness
// EvalHarness checks decisions.
type EvalHarness struct {
	config EvalConfig
}

// NewEvalHarness creates an eval harness with the given configuration.
func NewEvalHarness(config EvalConfig) *EvalHarness {
	return &EvalHarness{config: config}
}

// Run judges d. Invariant checks always run; expectation checks only for the
// fields exp sets.
func (h *EvalHarness) Run(d resolver.Decision, exp Expectation) EvalResult {
	var (
		metrics     []EvalMetric
		failReasons []string
	)
	check := func(name string, value float64, pass bool, reason string) {
		metrics = append(metrics, EvalMetric{Name: name, Value: value, Pass: pass})
		if !pass {
			failReasons = append(failReasons, reason)
		}
	}

	// 1. Confidence range
	check("confidence", d.Confidence, d.Confidence >= 0 && d.Confidence <= 1,
		fmt.Sprintf("confidence %.4f outside [0,1]", d.Confidence))

	// 2. Refusal shape: refusals are out of scope with the fixed message, nothing else is
	if d.Source == resolver.SourceRefusal {
		check("refusal_shape", 0, !d.InScope && d.Answer == resolver.RefusalMessage,
			"refusal must be out of scope with the refusal message")
	} else {
		check("answer_shape", d.Confidence, d.InScope && strings.TrimSpace(d.Answer) != "",
			fmt.Sprintf("%s answer must be in scope and non-empty", d.Source))
		check("answer_confidence", d.Confidence, d.Confidence >= h.config.MinAnswerConfidence,
			fmt.Sprintf("confidence %.4f below %.4f", d.Confidence, h.config.MinAnswerConfidence))
	}

	// 3. Expectations
	if exp.Source != "" {
		check("source", boolValue(d.Source == exp.Source), d.Source == exp.Source,
			fmt.Sprintf("source %s, expected %s", d.Source, exp.Source))
	}
	if exp.AnswerContains != "" {
		ok := strings.Contains(d.Answer, exp.AnswerContains)
		check("answer_contains", boolValue(ok), ok,
			fmt.Sprintf("answer %q lacks %q", d.Answer, exp.AnswerContains))
	}
	if exp.InScope != nil {
		check("in_scope", boolValue(d.InScope == *exp.InScope), d.InScope == *exp.InScope,
			fmt.Sprintf("in_scope %t, expected %t", d.InScope, *exp.InScope))
	}

	// 4. Cache: informational unless strict
	metrics = append(metrics, EvalMetric{Name: "cached", Value: boolValue(d.Cached), Pass: !d.Cached})
	if h.config.StrictCache && d.Cached {
		failReasons = append(failReasons, "decision served from cache")
	}

	reason := "all checks passed"
	switch len(failReasons) {
	case 0:
	case 1:
		reason = "eval failed: " + failReasons[0]
	default:
		reason = fmt.Sprintf("eval failed: %d checks: %s", len(failReasons), failReasons[0])
	}
	return EvalResult{Passed: len(failReasons) == 0, Metrics: metrics, Reason: reason}
}

// #endregion eval-harness

// #region helpers
func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// #endregion helpers
