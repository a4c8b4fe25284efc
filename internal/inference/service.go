// Package inference serves predictions from each agent's active classifier
// artifact, keeping recently used models in memory.
package inference

// #region imports
import (
	"context"
	"strconv"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/danielpatrickdp/answer-engine/go-controller/internal/artifact"
	"github.com/danielpatrickdp/answer-engine/go-controller/internal/classifier"
	"github.com/danielpatrickdp/answer-engine/go-controller/internal/metrics"
)

// #endregion imports

// #region errors

// ErrArtifactNotFound means the agent has never been trained or its active
// artifact cannot be read.
var ErrArtifactNotFound = errors.New("no trained classifier for agent")

// #endregion errors

// #region config

// Config bounds the model cache and artifact loading.
type Config struct {
	CacheSize   int
	LoadTimeout time.Duration
	TopK        int
}

// DefaultConfig returns the stock inference settings.
func DefaultConfig() Config {
	return Config{CacheSize: 128, LoadTimeout: 5 * time.Second, TopK: 3}
}

// #endregion config

// #region service

// ArtifactReader is the read side of the artifact store.
type ArtifactReader interface {
	Active(ctx context.Context, agentID int64) (artifact.Record, error)
	ReadBlob(rec artifact.Record, kind artifact.Kind) ([]byte, error)
}

type loadedModel struct {
	artifactID string
	model      *classifier.Model
}

// Service predicts answers with each agent's active model. A model is loaded
// on first use and reloaded whenever the active artifact id changes.
type Service struct {
	store   ArtifactReader
	cfg     Config
	models  *lru.Cache[int64, loadedModel]
	loads   singleflight.Group
	logger  zerolog.Logger
	metrics *metrics.Recorder
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the service logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Service) { s.logger = l.With().Str("component", "inference").Logger() }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m *metrics.Recorder) Option {
	return func(s *Service) { s.metrics = m }
}

// NewService creates a Service reading artifacts from store.
func NewService(store ArtifactReader, cfg Config, opts ...Option) (*Service, error) {
	def := DefaultConfig()
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = def.CacheSize
	}
	if cfg.LoadTimeout <= 0 {
		cfg.LoadTimeout = def.LoadTimeout
	}
	if cfg.TopK <= 0 {
		cfg.TopK = def.TopK
	}
	models, err := lru.New[int64, loadedModel](cfg.CacheSize)
	if err != nil {
		return nil, errors.Wrap(err, "create model cache")
	}
	s := &Service{store: store, cfg: cfg, models: models, logger: zerolog.Nop()}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// Predict classifies question with the agent's active model.
func (s *Service) Predict(ctx context.Context, agentID int64, question string) (classifier.Result, error) {
	m, err := s.model(ctx, agentID)
	if err != nil {
		return classifier.Result{}, err
	}
	return m.Classify(question, s.cfg.TopK), nil
}

// ActiveVersion returns the id of the agent's active artifact, or "" when the
// agent has never been trained.
func (s *Service) ActiveVersion(ctx context.Context, agentID int64) (string, error) {
	lctx, cancel := context.WithTimeout(ctx, s.cfg.LoadTimeout)
	defer cancel()

	rec, err := s.store.Active(lctx, agentID)
	if errors.Is(err, artifact.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", errors.Wrap(err, "lookup active artifact")
	}
	return rec.ArtifactID, nil
}

// Invalidate drops the cached model for agentID.
func (s *Service) Invalidate(agentID int64) {
	s.models.Remove(agentID)
}

// Loaded reports how many models are held in memory.
func (s *Service) Loaded() int {
	return s.models.Len()
}

func (s *Service) model(ctx context.Context, agentID int64) (*classifier.Model, error) {
	lctx, cancel := context.WithTimeout(ctx, s.cfg.LoadTimeout)
	defer cancel()

	rec, err := s.store.Active(lctx, agentID)
	if errors.Is(err, artifact.ErrNotFound) {
		return nil, errors.Wrapf(ErrArtifactNotFound, "agent %d", agentID)
	}
	if err != nil {
		return nil, errors.Wrap(err, "lookup active artifact")
	}
	if cached, ok := s.models.Get(agentID); ok && cached.artifactID == rec.ArtifactID {
		return cached.model, nil
	}

	key := strconv.FormatInt(agentID, 10) + "/" + rec.ArtifactID
	v, err, _ := s.loads.Do(key, func() (any, error) {
		return s.load(rec)
	})
	if err != nil {
		return nil, err
	}
	return v.(*classifier.Model), nil
}

func (s *Service) load(rec artifact.Record) (*classifier.Model, error) {
	start := time.Now()
	vec, err := s.store.ReadBlob(rec, artifact.KindVectorizer)
	if err != nil {
		s.metrics.ModelLoad("error")
		return nil, s.loadError(rec, err)
	}
	clf, err := s.store.ReadBlob(rec, artifact.KindClassifier)
	if err != nil {
		s.metrics.ModelLoad("error")
		return nil, s.loadError(rec, err)
	}
	m, err := classifier.UnmarshalModel(vec, clf)
	if err != nil {
		s.metrics.ModelLoad("error")
		return nil, s.loadError(rec, err)
	}

	s.models.Add(rec.AgentID, loadedModel{artifactID: rec.ArtifactID, model: m})
	s.metrics.ModelLoad("ok")
	s.logger.Debug().
		Int64("agent_id", rec.AgentID).
		Str("artifact_id", rec.ArtifactID).
		Int("classes", len(m.Bayes.Classes)).
		Int("features", m.Vectorizer.Features()).
		Dur("took", time.Since(start)).
		Msg("model loaded")
	return m, nil
}

// loadError maps unreadable or corrupt artifacts to ErrArtifactNotFound so the
// resolver degrades the same way as for an untrained agent.
func (s *Service) loadError(rec artifact.Record, err error) error {
	s.logger.Error().Err(err).Int64("agent_id", rec.AgentID).Str("artifact_id", rec.ArtifactID).Msg("artifact load failed")
	return errors.Wrapf(ErrArtifactNotFound, "artifact %s unreadable: %v", rec.ArtifactID, err)
}

// #endregion service
