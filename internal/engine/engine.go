// Package engine assembles the stores, classifier, remote client and resolver
// into one handle used by the command line and by tests.
package engine

// #region imports
import (
	"context"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/danielpatrickdp/answer-engine/go-controller/internal/artifact"
	"github.com/danielpatrickdp/answer-engine/go-controller/internal/cache"
	"github.com/danielpatrickdp/answer-engine/go-controller/internal/config"
	"github.com/danielpatrickdp/answer-engine/go-controller/internal/contexts"
	"github.com/danielpatrickdp/answer-engine/go-controller/internal/inference"
	"github.com/danielpatrickdp/answer-engine/go-controller/internal/logging"
	"github.com/danielpatrickdp/answer-engine/go-controller/internal/metrics"
	"github.com/danielpatrickdp/answer-engine/go-controller/internal/remote"
	"github.com/danielpatrickdp/answer-engine/go-controller/internal/resolver"
	"github.com/danielpatrickdp/answer-engine/go-controller/internal/training"
)

// #endregion imports

// #region engine-struct

// Engine owns every long-lived component. Close releases them.
type Engine struct {
	Contexts  *contexts.Store
	Artifacts *artifact.Store
	Audit     *logging.AuditLog
	Inference *inference.Service
	Pipeline  *training.Pipeline
	Resolver  *resolver.Resolver
	Metrics   *metrics.Recorder

	generator resolver.Generator
	cache     cache.Store
	logger    zerolog.Logger
	closers   []func() error
}

// Option overrides a component Build would otherwise construct.
type Option func(*buildOptions)

type buildOptions struct {
	logger    zerolog.Logger
	generator resolver.Generator
	cache     cache.Store
	cacheSet  bool
	random    func() float64
	metrics   *metrics.Recorder
}

// WithLogger sets the root logger.
func WithLogger(l zerolog.Logger) Option {
	return func(o *buildOptions) { o.logger = l }
}

// WithGenerator replaces the configured remote client.
func WithGenerator(g resolver.Generator) Option {
	return func(o *buildOptions) { o.generator = g }
}

// WithCache replaces the configured cache backend. A nil store disables caching.
func WithCache(c cache.Store) Option {
	return func(o *buildOptions) { o.cache, o.cacheSet = c, true }
}

// WithRandom injects the resolver's sampling source.
func WithRandom(fn func() float64) Option {
	return func(o *buildOptions) { o.random = fn }
}

// WithMetrics shares a metrics recorder.
func WithMetrics(m *metrics.Recorder) Option {
	return func(o *buildOptions) { o.metrics = m }
}

// #endregion engine-struct

// #region build

// Build opens the database and wires every component from cfg.
func Build(ctx context.Context, cfg *config.Config, opts ...Option) (*Engine, error) {
	bo := buildOptions{logger: zerolog.Nop()}
	for _, o := range opts {
		o(&bo)
	}
	if bo.metrics == nil {
		bo.metrics = metrics.New()
	}

	e := &Engine{Metrics: bo.metrics, logger: logging.Component(bo.logger, "engine")}
	ok := false
	defer func() {
		if !ok {
			e.Close()
		}
	}()

	arts, err := artifact.Open(cfg.DBPath, blobDir(cfg))
	if err != nil {
		return nil, err
	}
	e.Artifacts = arts
	e.closers = append(e.closers, arts.Close)

	if e.Contexts, err = contexts.NewStore(arts.DB()); err != nil {
		return nil, err
	}
	if e.Audit, err = logging.NewAuditLog(arts.DB()); err != nil {
		return nil, err
	}

	e.Inference, err = inference.NewService(arts, cfg.InferenceServiceConfig(),
		inference.WithLogger(bo.logger), inference.WithMetrics(bo.metrics))
	if err != nil {
		return nil, err
	}
	e.Pipeline = training.NewPipeline(cfg.TrainingPipelineConfig(), arts,
		training.WithLogger(bo.logger), training.WithMetrics(bo.metrics), training.WithInvalidator(e.Inference))

	if bo.cacheSet {
		e.cache = bo.cache
	} else if e.cache, err = e.openCache(ctx, cfg.Cache); err != nil {
		return nil, err
	}

	e.generator = bo.generator
	if e.generator == nil {
		client := remote.NewFromConfig(ctx, cfg.BackendConfig(), cfg.RemoteClientConfig(),
			remote.WithLogger(bo.logger), remote.WithMetrics(bo.metrics))
		e.closers = append(e.closers, client.Close)
		e.generator = client
	}

	ropts := []resolver.Option{
		resolver.WithLogger(bo.logger),
		resolver.WithMetrics(bo.metrics),
		resolver.WithAudit(e.Audit),
		resolver.WithVersions(e.Inference),
	}
	if bo.random != nil {
		ropts = append(ropts, resolver.WithRandom(bo.random))
	}
	e.Resolver = resolver.New(cfg.ResolverConfig(), e.Contexts, e.Inference, e.generator, e.cache, ropts...)

	e.logger.Info().
		Str("profile", cfg.Profile).
		Str("db", cfg.DBPath).
		Str("cache", cfg.Cache.Backend).
		Bool("remote", !e.generator.Disabled()).
		Msg("engine ready")
	ok = true
	return e, nil
}

func blobDir(cfg *config.Config) string {
	if cfg.ArtifactDir != "" {
		return cfg.ArtifactDir
	}
	return filepath.Join(filepath.Dir(cfg.DBPath), "artifacts")
}

func (e *Engine) openCache(ctx context.Context, cc config.CacheConfig) (cache.Store, error) {
	switch strings.ToLower(cc.Backend) {
	case "none":
		return nil, nil
	case "redis":
		client, err := cache.DialRedis(ctx, cc.RedisAddr, cc.RedisPassword, cc.RedisDB)
		if err != nil {
			return nil, err
		}
		e.closers = append(e.closers, client.Close)
		return cache.NewRedisStore(client, cc.RedisPrefix), nil
	default:
		mem, err := cache.NewMemoryStore(cc.MaxBytes)
		if err != nil {
			return nil, err
		}
		e.closers = append(e.closers, func() error { mem.Close(); return nil })
		return mem, nil
	}
}

// Close releases components in reverse order of construction.
func (e *Engine) Close() error {
	var first error
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	e.closers = nil
	return first
}

// #endregion build

// #region operations

// RemoteEnabled reports whether the engine may call the remote model at all.
func (e *Engine) RemoteEnabled() bool {
	return !e.generator.Disabled()
}

// TrainAgent trains agentID on its stored contexts and activates the result.
func (e *Engine) TrainAgent(ctx context.Context, agentID int64) (training.Result, error) {
	data, err := e.Contexts.ListContexts(ctx, agentID)
	if err != nil {
		return training.Result{}, err
	}
	return e.Pipeline.Train(ctx, agentID, data)
}

// TrainAgentWith trains agentID on explicitly supplied examples.
func (e *Engine) TrainAgentWith(ctx context.Context, agentID int64, data []contexts.Example) (training.Result, error) {
	if err := e.requireAgent(ctx, agentID); err != nil {
		return training.Result{}, err
	}
	return e.Pipeline.Train(ctx, agentID, data)
}

// ResolveQuestion answers question for agentID. The only error it returns is
// contexts.ErrAgentNotFound; every other failure is folded into the decision.
func (e *Engine) ResolveQuestion(ctx context.Context, agentID int64, question string) (resolver.Decision, error) {
	exists, err := e.Contexts.AgentExists(ctx, agentID)
	switch {
	case err != nil:
		e.logger.Warn().Err(err).Int64("agent_id", agentID).Msg("agent lookup failed, resolving anyway")
	case !exists:
		return resolver.Decision{}, errors.Wrapf(contexts.ErrAgentNotFound, "agent %d", agentID)
	}
	return e.Resolver.Resolve(ctx, agentID, question), nil
}

func (e *Engine) requireAgent(ctx context.Context, agentID int64) error {
	exists, err := e.Contexts.AgentExists(ctx, agentID)
	if err != nil {
		return err
	}
	if !exists {
		return errors.Wrapf(contexts.ErrAgentNotFound, "agent %d", agentID)
	}
	return nil
}

// #endregion operations
