package replay

import (
	"encoding/json"
	"os"

	"github.com/pkg/errors"

	"github.com/danielpatrickdp/answer-engine/go-controller/internal/contexts"
	"github.com/danielpatrickdp/answer-engine/go-controller/internal/eval"
	"github.com/danielpatrickdp/answer-engine/go-controller/internal/resolver"
)

// #region fixture-types

// Fixture is the top-level JSON structure for a replay fixture.
type Fixture struct {
	Description     string                  `json:"description"`
	Profile         string                  `json:"profile,omitempty"`
	Config          FixtureConfig           `json:"config"`
	Contexts        []contexts.Example      `json:"contexts"`
	Interactions    []FixtureInteraction    `json:"interactions"`
	ExpectedResults []FixtureExpectedResult `json:"expected_results"`
}

// FixtureConfig overrides the profile's resolver settings. Nil fields keep
// the preset value.
type FixtureConfig struct {
	ThresholdAbs        *float64 `json:"threshold_abs,omitempty"`
	ThresholdDiff       *float64 `json:"threshold_diff,omitempty"`
	APIUsageProbability *float64 `json:"api_usage_probability,omitempty"`
	ContextLimit        *int     `json:"context_limit,omitempty"`
	KeywordMinCoverage  *float64 `json:"keyword_min_coverage,omitempty"`
	EnhanceAnswers      *bool    `json:"enhance_answers,omitempty"`
	RemoteEnabled       *bool    `json:"remote_enabled,omitempty"`
	MinAnswerConfidence *float64 `json:"min_answer_confidence,omitempty"`
}

// FixtureRemote scripts the remote model's reply for one turn.
type FixtureRemote struct {
	Answer     string `json:"answer,omitempty"`
	Enhanced   string `json:"enhanced,omitempty"`
	Fail       bool   `json:"fail,omitempty"`
	OutOfScope bool   `json:"out_of_scope,omitempty"`
}

// FixtureInteraction mirrors replay.Interaction with JSON tags.
type FixtureInteraction struct {
	TurnID   string        `json:"turn_id"`
	Question string        `json:"question"`
	Sample   float64       `json:"sample,omitempty"`
	Remote   FixtureRemote `json:"remote"`
}

// FixtureExpectedResult captures the expected outcome per turn.
type FixtureExpectedResult struct {
	TurnID         string `json:"turn_id"`
	Source         string `json:"source,omitempty"`
	AnswerContains string `json:"answer_contains,omitempty"`
	InScope        *bool  `json:"in_scope,omitempty"`
}

// #endregion fixture-types

// #region fixture-loader

// LoadFixture reads and parses a JSON fixture file.
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read fixture %s", path)
	}
	var f Fixture
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, errors.Wrapf(err, "parse fixture %s", path)
	}
	return &f, nil
}

// WriteFixture stores f as indented JSON.
func WriteFixture(f Fixture, path string) error {
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshal fixture")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrapf(err, "write %s", path)
	}
	return nil
}

// ToInteraction converts a FixtureInteraction to a domain Interaction.
func (fi *FixtureInteraction) ToInteraction() Interaction {
	return Interaction{
		TurnID:   fi.TurnID,
		Question: fi.Question,
		Sample:   fi.Sample,
		Remote: RemoteScript{
			Answer:     fi.Remote.Answer,
			Enhanced:   fi.Remote.Enhanced,
			Fail:       fi.Remote.Fail,
			OutOfScope: fi.Remote.OutOfScope,
		},
	}
}

// ToExpectation converts a FixtureExpectedResult to an eval.Expectation.
func (fe *FixtureExpectedResult) ToExpectation() eval.Expectation {
	return eval.Expectation{
		Source:         resolver.Source(fe.Source),
		AnswerContains: fe.AnswerContains,
		InScope:        fe.InScope,
	}
}

// ToReplayConfig resolves the profile preset and applies the overrides.
func (f *Fixture) ToReplayConfig() (ReplayConfig, error) {
	preset, err := resolver.ConfigFor(resolver.Profile(f.Profile))
	if err != nil {
		return ReplayConfig{}, err
	}
	cfg := DefaultReplayConfig()
	cfg.Resolver = preset

	o := f.Config
	if o.ThresholdAbs != nil {
		cfg.Resolver.ThresholdAbs = *o.ThresholdAbs
	}
	if o.ThresholdDiff != nil {
		cfg.Resolver.ThresholdDiff = *o.ThresholdDiff
	}
	if o.APIUsageProbability != nil {
		cfg.Resolver.APIUsageProbability = *o.APIUsageProbability
	}
	if o.ContextLimit != nil {
		cfg.Resolver.ContextLimit = *o.ContextLimit
	}
	if o.KeywordMinCoverage != nil {
		cfg.Resolver.KeywordMinCoverage = *o.KeywordMinCoverage
	}
	if o.EnhanceAnswers != nil {
		cfg.Resolver.EnhanceAnswers = *o.EnhanceAnswers
	}
	if o.RemoteEnabled != nil {
		cfg.RemoteEnabled = *o.RemoteEnabled
	}
	if o.MinAnswerConfidence != nil {
		cfg.Eval.MinAnswerConfidence = *o.MinAnswerConfidence
	}
	return cfg, nil
}

// Expectations indexes the expected results by turn.
func (f *Fixture) Expectations() map[string]eval.Expectation {
	out := make(map[string]eval.Expectation, len(f.ExpectedResults))
	for i := range f.ExpectedResults {
		out[f.ExpectedResults[i].TurnID] = f.ExpectedResults[i].ToExpectation()
	}
	return out
}

// #endregion fixture-loader
