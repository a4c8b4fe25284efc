// Package replay runs scripted question sequences through a fully wired,
// in-memory resolver and judges every decision. It backs regression fixtures
// for threshold and routing changes.
package replay

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"github.com/danielpatrickdp/answer-engine/go-controller/internal/artifact"
	"github.com/danielpatrickdp/answer-engine/go-controller/internal/cache"
	"github.com/danielpatrickdp/answer-engine/go-controller/internal/classifier"
	"github.com/danielpatrickdp/answer-engine/go-controller/internal/contexts"
	"github.com/danielpatrickdp/answer-engine/go-controller/internal/eval"
	"github.com/danielpatrickdp/answer-engine/go-controller/internal/inference"
	"github.com/danielpatrickdp/answer-engine/go-controller/internal/remote"
	"github.com/danielpatrickdp/answer-engine/go-controller/internal/resolver"
	"github.com/danielpatrickdp/answer-engine/go-controller/internal/training"
)

// #region types
// Interaction is one scripted question.
type Interaction struct {
	TurnID   string
	Question string
	Sample   float64 // value returned by the resolver's sampling source
	Remote   RemoteScript
}

// RemoteScript is the remote model's behaviour for one turn.
type RemoteScript struct {
	Answer     string
	Enhanced   string // enhancement output; empty leaves the draft unchanged
	Fail       bool
	OutOfScope bool
}

// ReplayConfig bundles resolver, training and eval settings for a replay run.
type ReplayConfig struct {
	Resolver      resolver.Config
	Training      training.Config
	Eval          eval.EvalConfig
	RemoteEnabled bool
}

// DefaultReplayConfig returns the development preset with the remote model on.
func DefaultReplayConfig() ReplayConfig {
	return ReplayConfig{
		Resolver:      resolver.DevelopmentConfig(),
		Training:      training.DefaultConfig(),
		Eval:          eval.DefaultEvalConfig(),
		RemoteEnabled: true,
	}
}

// ReplayResult captures the outcome of replaying one interaction.
type ReplayResult struct {
	TurnID      string
	Question    string
	Action      string // "pass" | "fail"
	Reason      string
	Decision    resolver.Decision
	RemoteCalls int
	EvalResult  eval.EvalResult
}

// ReplaySummary provides aggregate stats from a replay run.
type ReplaySummary struct {
	TotalTurns  int
	Passed      int
	Failed      int
	Cached      int
	RemoteCalls int
	BySource    map[resolver.Source]int
	Training    *training.Result // nil when the examples could not be trained
}

// #endregion types

// #region replay
// Replay trains a classifier on examples, then resolves each interaction in
// order through a resolver with an in-process cache and a scripted remote
// model. Expectations are keyed by turn ID. Training rejections leave the
// agent untrained rather than failing the run.
func Replay(ctx context.Context, examples []contexts.Example, interactions []Interaction, expected map[string]eval.Expectation, config ReplayConfig) ([]ReplayResult, *training.Result, error) {
	pred := &modelPredictor{topK: inference.DefaultConfig().TopK}
	var trained *training.Result
	res, err := training.NewPipeline(config.Training, pred).Train(ctx, replayAgentID, examples)
	switch {
	case err == nil:
		trained = &res
	case errors.Is(err, training.ErrInsufficientData), errors.Is(err, training.ErrInsufficientClassDiversity):
	default:
		return nil, nil, errors.Wrap(err, "train replay agent")
	}

	store, err := cache.NewMemoryStore(1 << 20)
	if err != nil {
		return nil, nil, err
	}
	defer store.Close()

	gen := &scriptedGenerator{enabled: config.RemoteEnabled}
	var current Interaction
	r := resolver.New(config.Resolver, staticContexts(examples), pred, gen, store,
		resolver.WithRandom(func() float64 { return current.Sample }))
	judge := eval.NewEvalHarness(config.Eval)

	results := make([]ReplayResult, 0, len(interactions))
	for _, inter := range interactions {
		current = inter
		before := gen.calls()
		gen.script(inter.Remote)

		d := r.Resolve(ctx, replayAgentID, inter.Question)
		ev := judge.Run(d, expected[inter.TurnID])

		action := "pass"
		if !ev.Passed {
			action = "fail"
		}
		results = append(results, ReplayResult{
			TurnID:      inter.TurnID,
			Question:    inter.Question,
			Action:      action,
			Reason:      ev.Reason,
			Decision:    d,
			RemoteCalls: gen.calls() - before,
			EvalResult:  ev,
		})
	}
	return results, trained, nil
}

// Summarize computes aggregate stats from replay results.
func Summarize(results []ReplayResult, trained *training.Result) ReplaySummary {
	s := ReplaySummary{
		TotalTurns: len(results),
		BySource:   make(map[resolver.Source]int),
		Training:   trained,
	}
	for _, r := range results {
		switch r.Action {
		case "pass":
			s.Passed++
		case "fail":
			s.Failed++
		}
		if r.Decision.Cached {
			s.Cached++
		}
		s.RemoteCalls += r.RemoteCalls
		s.BySource[r.Decision.Source]++
	}
	return s
}

// #endregion replay

// #region collaborators

const replayAgentID int64 = 1

type staticContexts []contexts.Example

func (s staticContexts) ListContexts(context.Context, int64) ([]contexts.Example, error) {
	return s, nil
}

func (s staticContexts) AgentName(context.Context, int64) (string, error) {
	return "Replay", nil
}

// modelPredictor publishes into and predicts from memory.
type modelPredictor struct {
	topK  int
	model *classifier.Model
}

func (m *modelPredictor) Publish(_ context.Context, rec artifact.Record, blobs map[artifact.Kind][]byte) (artifact.Record, error) {
	model, err := classifier.UnmarshalModel(blobs[artifact.KindVectorizer], blobs[artifact.KindClassifier])
	if err != nil {
		return artifact.Record{}, err
	}
	m.model = model
	rec.ArtifactID = "replay"
	rec.IsActive = true
	return rec, nil
}

func (m *modelPredictor) Predict(_ context.Context, _ int64, question string) (classifier.Result, error) {
	if m.model == nil {
		return classifier.Result{}, inference.ErrArtifactNotFound
	}
	return m.model.Classify(question, m.topK), nil
}

type scriptedGenerator struct {
	enabled bool

	mu      sync.Mutex
	current RemoteScript
	n       int
}

func (g *scriptedGenerator) script(s RemoteScript) {
	g.mu.Lock()
	g.current = s
	g.mu.Unlock()
}

func (g *scriptedGenerator) calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.n
}

func (g *scriptedGenerator) Disabled() bool { return !g.enabled }

func (g *scriptedGenerator) Generate(context.Context, string, string, []contexts.Example) remote.GenerateResult {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	s := g.current
	switch {
	case s.Fail:
		return remote.GenerateResult{Err: remote.ErrRemoteUnavailable}
	case s.OutOfScope:
		return remote.GenerateResult{Answer: remote.RefusalMessage, Succeeded: true, OutOfScope: true}
	}
	return remote.GenerateResult{Answer: s.Answer, Succeeded: s.Answer != "", Err: errorIfEmpty(s.Answer)}
}

func (g *scriptedGenerator) Enhance(_ context.Context, answer, _, _ string) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	if g.current.Enhanced == "" {
		return answer
	}
	return g.current.Enhanced
}

func errorIfEmpty(answer string) error {
	if answer == "" {
		return errors.Wrap(remote.ErrRemoteUnavailable, "empty scripted answer")
	}
	return nil
}

// #endregion collaborators
