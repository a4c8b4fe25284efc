package resolver

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danielpatrickdp/answer-engine/go-controller/internal/cache"
	"github.com/danielpatrickdp/answer-engine/go-controller/internal/classifier"
	"github.com/danielpatrickdp/answer-engine/go-controller/internal/contexts"
	"github.com/danielpatrickdp/answer-engine/go-controller/internal/inference"
	"github.com/danielpatrickdp/answer-engine/go-controller/internal/logging"
	"github.com/danielpatrickdp/answer-engine/go-controller/internal/metrics"
	"github.com/danielpatrickdp/answer-engine/go-controller/internal/remote"
)

// #region fakes

type fakeContexts struct {
	mu       sync.Mutex
	examples []contexts.Example
	err      error
	loads    int
}

func (f *fakeContexts) ListContexts(context.Context, int64) ([]contexts.Example, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loads++
	return f.examples, f.err
}

func (f *fakeContexts) AgentName(context.Context, int64) (string, error) {
	return "RH Bot", nil
}

type fakePredictor struct {
	mu     sync.Mutex
	result classifier.Result
	err    error
	panics bool
	calls  int
}

func (f *fakePredictor) Predict(context.Context, int64, string) (classifier.Result, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.panics {
		panic("model exploded")
	}
	return f.result, f.err
}

type fakeGenerator struct {
	mu        sync.Mutex
	disabled  bool
	result    remote.GenerateResult
	enhanced  string
	generates int
	enhances  int
	entered   chan struct{}
	release   chan struct{}
}

func (f *fakeGenerator) Disabled() bool { return f.disabled }

func (f *fakeGenerator) Generate(context.Context, string, string, []contexts.Example) remote.GenerateResult {
	f.mu.Lock()
	f.generates++
	f.mu.Unlock()
	if f.entered != nil {
		f.entered <- struct{}{}
		<-f.release
	}
	return f.result
}

func (f *fakeGenerator) Enhance(_ context.Context, answer, _, _ string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.enhances++
	if f.enhanced == "" {
		return answer
	}
	return f.enhanced
}

func (f *fakeGenerator) counts() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.generates, f.enhances
}

type fakeVersions struct {
	mu      sync.Mutex
	version string
	err     error
}

func (f *fakeVersions) ActiveVersion(context.Context, int64) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.version, f.err
}

func (f *fakeVersions) set(v string) {
	f.mu.Lock()
	f.version = v
	f.mu.Unlock()
}

type mapCache struct {
	mu   sync.Mutex
	data map[string]string
	ttls map[string]time.Duration
}

func newMapCache() *mapCache {
	return &mapCache{data: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (m *mapCache) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *mapCache) Set(_ context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	m.ttls[key] = ttl
	return nil
}

func (m *mapCache) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func (m *mapCache) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.data)
}

type fakeAudit struct {
	mu      sync.Mutex
	entries []logging.ResolutionEntry
}

func (f *fakeAudit) LogDecision(_ context.Context, e logging.ResolutionEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, e)
	return nil
}

// #endregion fakes

// #region helpers

var hrExamples = []contexts.Example{
	{Question: "Qual o horário de trabalho?", Answer: "Das 8h às 17h."},
	{Question: "Como solicitar férias?", Answer: "Pelo portal do colaborador."},
	{Question: "Qual o valor do vale-refeição?", Answer: "R$ 35,00 por dia."},
}

func confidentResult() classifier.Result {
	return classifier.Result{
		TopLabel:          "Das 8h às 17h.",
		TopProbability:    0.62,
		SecondProbability: 0.21,
		ProbabilityGap:    0.41,
		KnownTerms:        2,
	}
}

func uncertainResult() classifier.Result {
	return classifier.Result{
		TopLabel:          "Das 8h às 17h.",
		TopProbability:    0.36,
		SecondProbability: 0.34,
		ProbabilityGap:    0.02,
		KnownTerms:        1,
	}
}

type harness struct {
	ctxs  *fakeContexts
	pred  *fakePredictor
	gen   *fakeGenerator
	cache *mapCache
	audit *fakeAudit
}

func newHarness() *harness {
	return &harness{
		ctxs:  &fakeContexts{examples: hrExamples},
		pred:  &fakePredictor{result: confidentResult()},
		gen:   &fakeGenerator{result: remote.GenerateResult{Answer: "Resposta gerada.", Succeeded: true}},
		cache: newMapCache(),
		audit: &fakeAudit{},
	}
}

func (h *harness) resolver(cfg Config, opts ...Option) *Resolver {
	opts = append([]Option{WithAudit(h.audit), WithMetrics(metrics.New()), WithRandom(func() float64 { return 0 })}, opts...)
	return New(cfg, h.ctxs, h.pred, h.gen, h.cache, opts...)
}

func noEnhance() Config {
	cfg := DevelopmentConfig()
	cfg.EnhanceAnswers = false
	return cfg
}

// #endregion helpers

// #region local-tests

func TestResolve_ConfidentLocal(t *testing.T) {
	h := newHarness()
	r := h.resolver(noEnhance())

	d := r.Resolve(context.Background(), 1, "Qual o horário?")
	assert.Equal(t, SourceLocalConfident, d.Source)
	assert.Equal(t, "Das 8h às 17h.", d.Answer)
	assert.InDelta(t, 0.62, d.Confidence, 1e-9)
	assert.True(t, d.InScope)
	assert.False(t, d.Cached)

	generates, enhances := h.gen.counts()
	assert.Zero(t, generates)
	assert.Zero(t, enhances)
	assert.Zero(t, h.ctxs.loads, "confident path must not load contexts")
}

func TestResolve_RemoteDisabledGoesToKeywordFallback(t *testing.T) {
	h := newHarness()
	h.gen.disabled = true
	r := h.resolver(DevelopmentConfig())

	d := r.Resolve(context.Background(), 1, "Qual a capital da França?")
	assert.Equal(t, Refusal(), d)

	d = r.Resolve(context.Background(), 1, "Como solicitar férias?")
	assert.Equal(t, SourceKeywordFallback, d.Source)
	assert.Equal(t, "Pelo portal do colaborador.", d.Answer)

	assert.Zero(t, h.pred.calls, "classifier is skipped without the remote model")
	generates, enhances := h.gen.counts()
	assert.Zero(t, generates)
	assert.Zero(t, enhances)
}

func TestResolve_SampledOutSkipsConfidentClassifier(t *testing.T) {
	h := newHarness()
	r := h.resolver(CostConstrainedConfig(), WithRandom(func() float64 { return 0.99 }))

	d := r.Resolve(context.Background(), 1, "Qual a capital da França?")
	assert.Equal(t, Refusal(), d)
	assert.Zero(t, h.pred.calls)
	require.Len(t, h.audit.entries, 1)
	assert.Nil(t, h.audit.entries[0].TopProbability)
	assert.Contains(t, h.audit.entries[0].Reason, "remote sampled out")
}

func TestResolve_Enhanced(t *testing.T) {
	h := newHarness()
	h.gen.enhanced = "Nosso expediente vai das 8h às 17h."
	r := h.resolver(DevelopmentConfig())

	d := r.Resolve(context.Background(), 1, "Qual o horário?")
	assert.Equal(t, SourceLocalEnhanced, d.Source)
	assert.Equal(t, "Nosso expediente vai das 8h às 17h.", d.Answer)
	assert.InDelta(t, 0.62, d.Confidence, 1e-9)
}

func TestResolve_EnhancementUnchangedStaysConfident(t *testing.T) {
	h := newHarness()
	r := h.resolver(DevelopmentConfig())

	d := r.Resolve(context.Background(), 1, "Qual o horário?")
	assert.Equal(t, SourceLocalConfident, d.Source)
	assert.Equal(t, "Das 8h às 17h.", d.Answer)
	_, enhances := h.gen.counts()
	assert.Equal(t, 1, enhances)
}

func TestResolve_EnhancementCachedAcrossQuestions(t *testing.T) {
	h := newHarness()
	h.gen.enhanced = "Melhorada."
	r := h.resolver(DevelopmentConfig())

	r.Resolve(context.Background(), 1, "Qual o horário?")
	// Evicting the decision leaves the enhancement entry in place.
	for k := range h.cache.data {
		if strings.HasPrefix(k, "decision:") {
			delete(h.cache.data, k)
		}
	}
	d := r.Resolve(context.Background(), 1, "Qual o horário?")
	assert.Equal(t, SourceLocalEnhanced, d.Source)
	_, enhances := h.gen.counts()
	assert.Equal(t, 1, enhances)
}

func TestResolve_ZeroKnownTermsIsNeverConfident(t *testing.T) {
	h := newHarness()
	res := confidentResult()
	res.KnownTerms = 0
	h.pred.result = res
	r := h.resolver(noEnhance())

	d := r.Resolve(context.Background(), 1, "xyzzy plugh")
	assert.Equal(t, SourceRemoteDirect, d.Source)
}

// #endregion local-tests

// #region threshold-tests

func TestConfident_Monotonic(t *testing.T) {
	res := classifier.Result{TopProbability: 0.5, ProbabilityGap: 0.1, KnownTerms: 1}
	loose := Config{ThresholdAbs: 0.2, ThresholdDiff: 0.05}
	strict := Config{ThresholdAbs: 0.6, ThresholdDiff: 0.05}
	assert.True(t, confident(res, loose))
	assert.False(t, confident(res, strict))

	for _, abs := range []float64{0.1, 0.3, 0.5, 0.7, 0.9} {
		for _, lower := range []float64{0, 0.05, 0.1} {
			hi := Config{ThresholdAbs: abs, ThresholdDiff: 0.05}
			lo := Config{ThresholdAbs: abs - lower, ThresholdDiff: 0.05}
			if confident(res, hi) {
				assert.True(t, confident(res, lo), "lowering threshold must keep confidence")
			}
		}
	}
}

func TestConfident_BoundariesInclusive(t *testing.T) {
	cfg := Config{ThresholdAbs: 0.5, ThresholdDiff: 0.1}
	assert.True(t, confident(classifier.Result{TopProbability: 0.5, ProbabilityGap: 0.1, KnownTerms: 1}, cfg))
	assert.False(t, confident(classifier.Result{TopProbability: 0.5, ProbabilityGap: 0.09, KnownTerms: 1}, cfg))
}

// #endregion threshold-tests

// #region remote-tests

func TestResolve_RemoteDirect(t *testing.T) {
	h := newHarness()
	h.pred.result = uncertainResult()
	r := h.resolver(noEnhance())

	d := r.Resolve(context.Background(), 1, "Qual o horário de trabalho aos sábados?")
	assert.Equal(t, SourceRemoteDirect, d.Source)
	assert.Equal(t, "Resposta gerada.", d.Answer)
	assert.InDelta(t, 0.95, d.Confidence, 1e-9)
	assert.True(t, d.InScope)
}

func TestResolve_MissingArtifactUsesRemote(t *testing.T) {
	h := newHarness()
	h.pred.err = errors.Wrap(inference.ErrArtifactNotFound, "agent 1")
	r := h.resolver(noEnhance())

	d := r.Resolve(context.Background(), 1, "Qual o horário?")
	assert.Equal(t, SourceRemoteDirect, d.Source)
}

func TestResolve_RemoteOutOfScope(t *testing.T) {
	h := newHarness()
	h.pred.result = uncertainResult()
	h.gen.result = remote.GenerateResult{Answer: RefusalMessage, Succeeded: true, OutOfScope: true}
	r := h.resolver(noEnhance())

	d := r.Resolve(context.Background(), 1, "Qual a capital da França?")
	assert.Equal(t, Refusal(), d)
}

func TestResolve_NoContextsSkipsRemote(t *testing.T) {
	h := newHarness()
	h.ctxs.examples = []contexts.Example{}
	h.pred.err = inference.ErrArtifactNotFound
	r := h.resolver(noEnhance())

	d := r.Resolve(context.Background(), 1, "Qual o horário?")
	assert.Equal(t, SourceRefusal, d.Source)
	generates, _ := h.gen.counts()
	assert.Zero(t, generates)
	assert.Equal(t, 1, h.ctxs.loads)
}

func TestResolve_SampledOut(t *testing.T) {
	h := newHarness()
	h.pred.result = uncertainResult()
	cfg := noEnhance()
	cfg.APIUsageProbability = 0.3
	r := h.resolver(cfg, WithRandom(func() float64 { return 0.9 }))

	d := r.Resolve(context.Background(), 1, "Como solicitar férias?")
	generates, _ := h.gen.counts()
	assert.Zero(t, generates)
	assert.Zero(t, h.pred.calls)
	assert.Equal(t, SourceKeywordFallback, d.Source)
	assert.Equal(t, "Pelo portal do colaborador.", d.Answer)
}

func TestResolve_ZeroUsageProbabilityNeverCallsRemote(t *testing.T) {
	h := newHarness()
	h.pred.result = uncertainResult()
	cfg := DevelopmentConfig()
	cfg.APIUsageProbability = 0
	r := h.resolver(cfg, WithRandom(func() float64 { return 0.000001 }))

	for _, q := range []string{"Como solicitar férias?", "Qual o horário?", "Onde fica a sala?"} {
		r.Resolve(context.Background(), 1, q)
	}
	generates, enhances := h.gen.counts()
	assert.Zero(t, generates)
	assert.Zero(t, enhances)
}

// #endregion remote-tests

// #region fallback-tests

func TestResolve_FallbackWhenRemoteFails(t *testing.T) {
	h := newHarness()
	h.pred.result = uncertainResult()
	h.gen.result = remote.GenerateResult{Err: remote.ErrRemoteUnavailable}
	r := h.resolver(noEnhance())

	d := r.Resolve(context.Background(), 1, "Como solicitar férias?")
	assert.Equal(t, SourceKeywordFallback, d.Source)
	assert.Equal(t, "Pelo portal do colaborador.", d.Answer)
	assert.InDelta(t, 0.7, d.Confidence, 1e-9)
}

func TestResolve_FallbackSafety(t *testing.T) {
	h := newHarness()
	h.pred.err = inference.ErrArtifactNotFound
	h.gen.result = remote.GenerateResult{Err: remote.ErrRemoteTimeout}
	r := h.resolver(noEnhance())

	questions := []string{
		"Como solicitar férias?",
		"Qual a capital da França?",
		"",
		"   ",
		"valor vale-refeição",
		"!!!???",
	}
	for _, q := range questions {
		d := r.Resolve(context.Background(), 1, q)
		switch d.Source {
		case SourceKeywordFallback:
			assert.True(t, d.InScope)
			assert.NotEmpty(t, d.Answer)
		case SourceRefusal:
			assert.Equal(t, RefusalMessage, d.Answer)
			assert.False(t, d.InScope)
		default:
			t.Fatalf("question %q resolved to %s with a failing remote", q, d.Source)
		}
	}
}

func TestResolve_WeakKeywordMatchRefuses(t *testing.T) {
	h := newHarness()
	h.pred.result = uncertainResult()
	h.gen.disabled = true
	r := h.resolver(noEnhance())

	// "férias" matches but "viagem" and "internacional" do not: coverage 1/3.
	d := r.Resolve(context.Background(), 1, "férias viagem internacional")
	assert.Equal(t, SourceRefusal, d.Source)
}

// #endregion fallback-tests

// #region cache-tests

func TestResolve_CacheIdempotent(t *testing.T) {
	h := newHarness()
	h.pred.result = uncertainResult()
	r := h.resolver(noEnhance())

	first := r.Resolve(context.Background(), 1, "Qual o horário de trabalho?")
	second := r.Resolve(context.Background(), 1, "  qual O horário de   trabalho? ")

	assert.False(t, first.Cached)
	assert.True(t, second.Cached)
	first.Cached, second.Cached = false, false
	assert.Equal(t, first, second)

	generates, _ := h.gen.counts()
	assert.Equal(t, 1, generates)
	assert.Equal(t, 1, h.pred.calls)
}

func TestResolve_CacheTTLBySource(t *testing.T) {
	h := newHarness()
	h.gen.result = remote.GenerateResult{Err: remote.ErrRemoteUnavailable}
	cfg := noEnhance()
	r := h.resolver(cfg)

	r.Resolve(context.Background(), 1, "Qual o horário?")
	h.pred.result = uncertainResult()
	r.Resolve(context.Background(), 1, "Qual a capital da França?")

	var ttls []time.Duration
	for _, ttl := range h.cache.ttls {
		ttls = append(ttls, ttl)
	}
	assert.ElementsMatch(t, []time.Duration{cfg.CacheTTLGood, cfg.CacheTTLFallback}, ttls)
}

func TestResolve_CachesArePerAgent(t *testing.T) {
	h := newHarness()
	r := h.resolver(noEnhance())

	r.Resolve(context.Background(), 1, "Qual o horário?")
	d := r.Resolve(context.Background(), 2, "Qual o horário?")
	assert.False(t, d.Cached)
	assert.Equal(t, 2, h.pred.calls)
}

func TestResolve_MalformedCacheEntryIsMiss(t *testing.T) {
	h := newHarness()
	r := h.resolver(noEnhance())
	h.cache.data[cache.DecisionKey(1, "", "Qual o horário?")] = "{"

	d := r.Resolve(context.Background(), 1, "Qual o horário?")
	assert.Equal(t, SourceLocalConfident, d.Source)
}

func TestResolve_NewModelVersionRetiresCachedDecisions(t *testing.T) {
	h := newHarness()
	versions := &fakeVersions{version: "artifact-1"}
	h.gen.enhanced = "Expediente das 8h às 17h."
	r := h.resolver(DevelopmentConfig(), WithVersions(versions))

	first := r.Resolve(context.Background(), 1, "Qual o horário?")
	assert.Equal(t, "Expediente das 8h às 17h.", first.Answer)
	assert.True(t, r.Resolve(context.Background(), 1, "Qual o horário?").Cached)

	versions.set("artifact-2")
	h.pred.result.TopLabel = "Das 9h às 18h."
	h.gen.enhanced = "Expediente das 9h às 18h."

	d := r.Resolve(context.Background(), 1, "Qual o horário?")
	assert.False(t, d.Cached)
	assert.Equal(t, "Expediente das 9h às 18h.", d.Answer)
	assert.Equal(t, 2, h.pred.calls)
	_, enhances := h.gen.counts()
	assert.Equal(t, 2, enhances)
}

func TestResolve_VersionLookupFailureBypassesCache(t *testing.T) {
	h := newHarness()
	h.gen.enhanced = "Melhorada."
	versions := &fakeVersions{err: errors.New("database is locked")}
	r := h.resolver(DevelopmentConfig(), WithVersions(versions))

	d := r.Resolve(context.Background(), 1, "Qual o horário?")
	assert.Equal(t, SourceLocalEnhanced, d.Source)
	assert.Zero(t, h.cache.len())

	d = r.Resolve(context.Background(), 1, "Qual o horário?")
	assert.False(t, d.Cached)
	assert.Equal(t, 2, h.pred.calls)
}

// #endregion cache-tests

// #region failure-tests

func TestResolve_PanicBecomesUncachedRefusal(t *testing.T) {
	h := newHarness()
	h.pred.panics = true
	r := h.resolver(noEnhance())

	d := r.Resolve(context.Background(), 1, "Qual o horário?")
	assert.Equal(t, Refusal(), d)
	assert.Zero(t, h.cache.len())

	r.Resolve(context.Background(), 1, "Qual o horário?")
	assert.Equal(t, 2, h.pred.calls)
}

func TestResolve_ContextLoadFailureIsNotCached(t *testing.T) {
	h := newHarness()
	h.pred.result = uncertainResult()
	h.ctxs.err = errors.New("database is locked")
	r := h.resolver(noEnhance())

	d := r.Resolve(context.Background(), 1, "Como solicitar férias?")
	assert.Equal(t, Refusal(), d)
	assert.Zero(t, h.cache.len())

	h.ctxs.err = nil
	d = r.Resolve(context.Background(), 1, "Como solicitar férias?")
	assert.Equal(t, SourceRemoteDirect, d.Source)
}

func TestResolve_NilCache(t *testing.T) {
	h := newHarness()
	r := New(noEnhance(), h.ctxs, h.pred, h.gen, nil)

	d := r.Resolve(context.Background(), 1, "Qual o horário?")
	assert.Equal(t, SourceLocalConfident, d.Source)
	d = r.Resolve(context.Background(), 1, "Qual o horário?")
	assert.False(t, d.Cached)
}

// #endregion failure-tests

// #region concurrency-tests

func TestResolve_ConcurrentMissesShareOneRemoteCall(t *testing.T) {
	h := newHarness()
	h.pred.result = uncertainResult()
	h.gen.entered = make(chan struct{}, 1)
	h.gen.release = make(chan struct{})
	r := h.resolver(noEnhance())

	const callers = 8
	results := make([]Decision, callers)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		results[0] = r.Resolve(context.Background(), 1, "Qual o horário de trabalho?")
	}()
	<-h.gen.entered

	for i := 1; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = r.Resolve(context.Background(), 1, "Qual o horário de trabalho?")
		}(i)
	}
	time.Sleep(50 * time.Millisecond)
	close(h.gen.release)
	wg.Wait()

	generates, _ := h.gen.counts()
	assert.Equal(t, 1, generates)
	for _, d := range results {
		assert.Equal(t, SourceRemoteDirect, d.Source)
	}
}

// #endregion concurrency-tests

// #region audit-tests

func TestResolve_AuditTrail(t *testing.T) {
	h := newHarness()
	h.pred.result = uncertainResult()
	r := h.resolver(noEnhance())

	r.Resolve(context.Background(), 7, "Qual o horário de trabalho?")
	r.Resolve(context.Background(), 7, "Qual o horário de trabalho?")

	require.Len(t, h.audit.entries, 2)
	fresh, hit := h.audit.entries[0], h.audit.entries[1]
	assert.Equal(t, int64(7), fresh.AgentID)
	assert.Equal(t, string(SourceRemoteDirect), fresh.Source)
	assert.False(t, fresh.CacheHit)
	require.NotNil(t, fresh.TopProbability)
	assert.InDelta(t, 0.36, *fresh.TopProbability, 1e-9)
	assert.Contains(t, fresh.Reason, "low confidence")
	assert.Equal(t, logging.HashQuestion("qual o horário de trabalho?"), fresh.QuestionHash)

	assert.True(t, hit.CacheHit)
	assert.Equal(t, fresh.QuestionHash, hit.QuestionHash)
}

// #endregion audit-tests

// #region config-tests

func TestConfigFor(t *testing.T) {
	dev, err := ConfigFor(ProfileDevelopment)
	require.NoError(t, err)
	assert.Equal(t, 1.0, dev.APIUsageProbability)

	cost, err := ConfigFor(ProfileCostConstrained)
	require.NoError(t, err)
	assert.Less(t, cost.APIUsageProbability, dev.APIUsageProbability)
	assert.Greater(t, cost.CacheTTLGood, dev.CacheTTLGood)

	_, err = ConfigFor("turbo")
	assert.Error(t, err)
}

// #endregion config-tests
