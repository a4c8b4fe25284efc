// Package resolver decides, per question, whether an agent's local classifier
// can answer on its own, whether to ask the remote model, or whether to fall
// back to keyword matching or a refusal.
package resolver

// #region imports
import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/danielpatrickdp/answer-engine/go-controller/internal/cache"
	"github.com/danielpatrickdp/answer-engine/go-controller/internal/classifier"
	"github.com/danielpatrickdp/answer-engine/go-controller/internal/contexts"
	"github.com/danielpatrickdp/answer-engine/go-controller/internal/inference"
	"github.com/danielpatrickdp/answer-engine/go-controller/internal/logging"
	"github.com/danielpatrickdp/answer-engine/go-controller/internal/metrics"
	"github.com/danielpatrickdp/answer-engine/go-controller/internal/remote"
	"github.com/danielpatrickdp/answer-engine/go-controller/internal/retrieval"
)

// #endregion imports

// #region collaborators

// ContextSource reads an agent's stored examples and display name.
type ContextSource interface {
	ListContexts(ctx context.Context, agentID int64) ([]contexts.Example, error)
	AgentName(ctx context.Context, agentID int64) (string, error)
}

// Predictor classifies a question with the agent's trained model.
type Predictor interface {
	Predict(ctx context.Context, agentID int64, question string) (classifier.Result, error)
}

// Generator is the remote generative model.
type Generator interface {
	Disabled() bool
	Generate(ctx context.Context, agentName, question string, examples []contexts.Example) remote.GenerateResult
	Enhance(ctx context.Context, answer, question, agentName string) string
}

// VersionSource reports the agent's active model version. Cached decisions
// are keyed by it, so retraining or a rollback retires them.
type VersionSource interface {
	ActiveVersion(ctx context.Context, agentID int64) (string, error)
}

// DecisionRecorder persists an audit row per resolved question.
type DecisionRecorder interface {
	LogDecision(ctx context.Context, entry logging.ResolutionEntry) error
}

// #endregion collaborators

// #region resolver-struct

// Resolver is the hybrid answer state machine. It is safe for concurrent use.
type Resolver struct {
	cfg       Config
	contexts  ContextSource
	predictor Predictor
	generator Generator
	cache     cache.Store
	audit     DecisionRecorder
	versions  VersionSource
	logger    zerolog.Logger
	metrics   *metrics.Recorder
	random    func() float64
	inflight  singleflight.Group
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithRandom injects the sampling source; it must return values in [0, 1).
func WithRandom(fn func() float64) Option {
	return func(r *Resolver) { r.random = fn }
}

// WithLogger sets the resolver logger.
func WithLogger(l zerolog.Logger) Option {
	return func(r *Resolver) { r.logger = l.With().Str("component", "resolver").Logger() }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m *metrics.Recorder) Option {
	return func(r *Resolver) { r.metrics = m }
}

// WithAudit persists every fresh decision.
func WithAudit(a DecisionRecorder) Option {
	return func(r *Resolver) { r.audit = a }
}

// WithVersions keys cached entries by the agent's active model version.
func WithVersions(v VersionSource) Option {
	return func(r *Resolver) { r.versions = v }
}

// New wires a Resolver.
func New(cfg Config, cs ContextSource, p Predictor, g Generator, store cache.Store, opts ...Option) *Resolver {
	if g == nil {
		g = remote.NewDisabledClient("no generator")
	}
	r := &Resolver{
		cfg:       cfg,
		contexts:  cs,
		predictor: p,
		generator: g,
		cache:     store,
		logger:    zerolog.Nop(),
		random:    rand.Float64,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Config returns the resolver's fixed configuration.
func (r *Resolver) Config() Config {
	return r.cfg
}

// recoverRefusal turns a panic into an uncached refusal.
func (r *Resolver) recoverRefusal(agentID int64, d *Decision) {
	if p := recover(); p != nil {
		r.logger.Error().Interface("panic", p).Int64("agent_id", agentID).Msg("resolve panicked")
		*d = Refusal()
		r.metrics.Decision(string(d.Source), false)
	}
}

// #endregion resolver-struct

// #region resolve

// Resolve answers question for agentID. It never returns an error and never
// panics; every failure degrades to a keyword fallback or a refusal.
// Identical concurrent misses share one resolution.
func (r *Resolver) Resolve(ctx context.Context, agentID int64, question string) (d Decision) {
	defer r.recoverRefusal(agentID, &d)

	version, versioned := r.version(ctx, agentID)
	key := cache.DecisionKey(agentID, version, question)
	if versioned {
		if d, ok := r.cached(ctx, key); ok {
			r.metrics.Decision(string(d.Source), true)
			r.record(ctx, agentID, question, d, &trace{cacheHit: true, reasons: []string{"cache hit"}})
			return d
		}
	}

	v, _, _ := r.inflight.Do(key, func() (any, error) {
		return r.resolveOnce(ctx, agentID, question, key, version, versioned), nil
	})
	return v.(Decision)
}

// version returns the agent's active model version. ok is false when the
// version cannot be read; the request then bypasses the cache.
func (r *Resolver) version(ctx context.Context, agentID int64) (string, bool) {
	if r.versions == nil {
		return "", true
	}
	v, err := r.versions.ActiveVersion(ctx, agentID)
	if err != nil {
		r.logger.Warn().Err(err).Int64("agent_id", agentID).Msg("model version lookup failed, bypassing cache")
		return "", false
	}
	return v, true
}

func (r *Resolver) resolveOnce(ctx context.Context, agentID int64, question, key, version string, versioned bool) (d Decision) {
	defer r.recoverRefusal(agentID, &d)

	tr := &trace{version: version, noCache: !versioned}
	d = r.decide(ctx, agentID, question, tr)

	if !tr.noCache {
		r.store(ctx, key, d)
	}
	r.metrics.Decision(string(d.Source), false)
	r.record(ctx, agentID, question, d, tr)
	r.logger.Debug().
		Int64("agent_id", agentID).
		Str("source", string(d.Source)).
		Float64("confidence", d.Confidence).
		Str("reason", tr.String()).
		Msg("question resolved")
	return d
}

// #endregion resolve

// #region decide

// decide runs the uncached state machine.
func (r *Resolver) decide(ctx context.Context, agentID int64, question string, tr *trace) Decision {
	lazy := &agentData{source: r.contexts, agentID: agentID}

	// Without the remote model for this request the classifier is not
	// consulted either: keyword matching answers or the question is refused.
	switch {
	case r.generator.Disabled():
		tr.note("remote disabled")
		return r.keywordFallback(ctx, question, lazy, tr)
	case r.cfg.APIUsageProbability <= 0, r.random() > r.cfg.APIUsageProbability:
		tr.note("remote sampled out")
		return r.keywordFallback(ctx, question, lazy, tr)
	}

	result, err := r.predictor.Predict(ctx, agentID, question)
	switch {
	case err != nil:
		if !errors.Is(err, inference.ErrArtifactNotFound) {
			r.logger.Warn().Err(err).Int64("agent_id", agentID).Msg("classifier failed")
		}
		tr.note("classifier unavailable: %v", errors.Cause(err))
	case confident(result, r.cfg):
		tr.classified(result)
		tr.note("confident: top %.3f gap %.3f", result.TopProbability, result.ProbabilityGap)
		return r.answerLocally(ctx, agentID, question, result, lazy, tr)
	default:
		tr.classified(result)
		tr.note("low confidence: top %.3f gap %.3f known %d", result.TopProbability, result.ProbabilityGap, result.KnownTerms)
	}

	if d, ok := r.remoteDirect(ctx, question, lazy, tr); ok {
		return d
	}
	return r.keywordFallback(ctx, question, lazy, tr)
}

// confident reports whether a classification clears both thresholds and rests
// on at least one known term.
func confident(res classifier.Result, cfg Config) bool {
	return res.KnownTerms > 0 &&
		res.TopProbability >= cfg.ThresholdAbs &&
		res.ProbabilityGap >= cfg.ThresholdDiff
}

func (r *Resolver) answerLocally(ctx context.Context, agentID int64, question string, res classifier.Result, lazy *agentData, tr *trace) Decision {
	d := Decision{
		Source:     SourceLocalConfident,
		Answer:     res.TopLabel,
		Confidence: res.TopProbability,
		InScope:    true,
	}
	if !r.cfg.EnhanceAnswers {
		return d
	}
	enhanced := r.enhance(ctx, agentID, question, res.TopLabel, lazy.name(ctx), tr)
	if enhanced != res.TopLabel {
		d.Source = SourceLocalEnhanced
		d.Answer = enhanced
		tr.note("enhanced")
	}
	return d
}

func (r *Resolver) enhance(ctx context.Context, agentID int64, question, draft, agentName string, tr *trace) string {
	key := cache.EnhancementKey(agentID, tr.version, question, draft)
	useCache := r.cache != nil && !tr.noCache
	if useCache {
		v, ok, err := r.cache.Get(ctx, key)
		if err != nil {
			r.logger.Warn().Err(err).Msg("enhancement cache read failed")
		}
		r.metrics.CacheLookup("enhancement", ok)
		if ok {
			return v
		}
	}
	text := r.generator.Enhance(ctx, draft, question, agentName)
	if text != draft && useCache {
		if err := r.cache.Set(ctx, key, text, r.cfg.CacheTTLGood); err != nil {
			r.logger.Warn().Err(err).Msg("enhancement cache write failed")
		}
	}
	return text
}

func (r *Resolver) remoteDirect(ctx context.Context, question string, lazy *agentData, tr *trace) (Decision, bool) {
	examples, err := lazy.examples(ctx)
	if err != nil {
		return r.contextFailure(err, tr), true
	}
	if len(examples) == 0 {
		tr.note("no contexts, remote skipped")
		return Decision{}, false
	}

	selected := retrieval.Select(examples, question, r.cfg.ContextLimit)
	res := r.generator.Generate(ctx, lazy.name(ctx), question, selected)
	switch {
	case res.Succeeded && res.OutOfScope:
		tr.note("remote: out of scope")
		return Refusal(), true
	case res.Succeeded:
		tr.note("remote answered from %d contexts", len(selected))
		return Decision{
			Source:     SourceRemoteDirect,
			Answer:     res.Answer,
			Confidence: r.cfg.RemoteConfidence,
			InScope:    true,
		}, true
	}
	tr.note("remote failed: %v", res.Err)
	return Decision{}, false
}

func (r *Resolver) keywordFallback(ctx context.Context, question string, lazy *agentData, tr *trace) Decision {
	examples, err := lazy.examples(ctx)
	if err != nil {
		return r.contextFailure(err, tr)
	}
	if len(examples) == 0 {
		tr.note("no contexts")
		return Refusal()
	}
	m, ok := retrieval.BestMatch(examples, question)
	if !ok {
		tr.note("keyword: no overlap")
		return Refusal()
	}
	if m.Coverage < r.cfg.KeywordMinCoverage {
		tr.note("keyword: coverage %.2f < %.2f", m.Coverage, r.cfg.KeywordMinCoverage)
		return Refusal()
	}
	tr.note("keyword: coverage %.2f", m.Coverage)
	return Decision{
		Source:     SourceKeywordFallback,
		Answer:     m.Example.Answer,
		Confidence: r.cfg.KeywordConfidence,
		InScope:    true,
	}
}

// contextFailure refuses without caching so the next request retries the store.
func (r *Resolver) contextFailure(err error, tr *trace) Decision {
	r.logger.Error().Err(err).Msg("context load failed")
	tr.note("context load failed: %v", err)
	tr.noCache = true
	return Refusal()
}

// #endregion decide

// #region cache

func (r *Resolver) cached(ctx context.Context, key string) (Decision, bool) {
	if r.cache == nil {
		return Decision{}, false
	}
	raw, ok, err := r.cache.Get(ctx, key)
	if err != nil {
		r.logger.Warn().Err(err).Msg("decision cache read failed")
	}
	r.metrics.CacheLookup("decision", ok)
	if !ok {
		return Decision{}, false
	}
	var d Decision
	if err := json.Unmarshal([]byte(raw), &d); err != nil || !validSource(d.Source) {
		r.logger.Warn().Err(err).Msg("discarding malformed cache entry")
		return Decision{}, false
	}
	d.Cached = true
	return d, true
}

func (r *Resolver) store(ctx context.Context, key string, d Decision) {
	if r.cache == nil {
		return
	}
	raw, err := json.Marshal(d)
	if err != nil {
		r.logger.Warn().Err(err).Msg("encode decision")
		return
	}
	if err := r.cache.Set(ctx, key, string(raw), r.ttl(d.Source)); err != nil {
		r.logger.Warn().Err(err).Msg("decision cache write failed")
	}
}

// ttl picks the cache lifetime for a decision source.
func (r *Resolver) ttl(s Source) time.Duration {
	switch s {
	case SourceLocalConfident, SourceLocalEnhanced, SourceRemoteDirect:
		return r.cfg.CacheTTLGood
	case SourceKeywordFallback, SourceRefusal:
		return r.cfg.CacheTTLFallback
	}
	return 0
}

func validSource(s Source) bool {
	for _, known := range Sources {
		if s == known {
			return true
		}
	}
	return false
}

// #endregion cache

// #region audit

func (r *Resolver) record(ctx context.Context, agentID int64, question string, d Decision, tr *trace) {
	if r.audit == nil {
		return
	}
	entry := logging.ResolutionEntry{
		AgentID:        agentID,
		QuestionHash:   logging.HashQuestion(cache.NormalizeQuestion(question)),
		Source:         string(d.Source),
		Confidence:     d.Confidence,
		InScope:        d.InScope,
		CacheHit:       tr.cacheHit,
		TopProbability: tr.top,
		ProbabilityGap: tr.gap,
		Reason:         tr.String(),
	}
	if err := r.audit.LogDecision(ctx, entry); err != nil {
		r.logger.Warn().Err(err).Msg("audit write failed")
	}
}

// trace collects the reasons behind one decision for the audit log.
type trace struct {
	reasons  []string
	version  string
	top      *float64
	gap      *float64
	cacheHit bool
	noCache  bool
}

func (t *trace) note(format string, args ...any) {
	t.reasons = append(t.reasons, fmt.Sprintf(format, args...))
}

func (t *trace) classified(res classifier.Result) {
	top, gap := res.TopProbability, res.ProbabilityGap
	t.top, t.gap = &top, &gap
}

func (t *trace) String() string {
	return strings.Join(t.reasons, "; ")
}

// #endregion audit

// #region agent-data

// agentData loads an agent's contexts and name at most once per resolution,
// and only on paths that need them.
type agentData struct {
	source  ContextSource
	agentID int64

	loaded   bool
	list     []contexts.Example
	err      error
	nameDone bool
	display  string
}

func (a *agentData) examples(ctx context.Context) ([]contexts.Example, error) {
	if !a.loaded {
		a.loaded = true
		a.list, a.err = a.source.ListContexts(ctx, a.agentID)
	}
	return a.list, a.err
}

// defaultAgentName is used in prompts when the agent's name cannot be read.
const defaultAgentName = "Assistente"

func (a *agentData) name(ctx context.Context) string {
	if !a.nameDone {
		a.nameDone = true
		n, err := a.source.AgentName(ctx, a.agentID)
		if err != nil || strings.TrimSpace(n) == "" {
			n = defaultAgentName
		}
		a.display = n
	}
	return a.display
}

// #endregion agent-data
