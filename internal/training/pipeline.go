// Package training turns an agent's question/answer examples into a published
// classifier artifact.
package training

// #region imports
import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/danielpatrickdp/answer-engine/go-controller/internal/artifact"
	"github.com/danielpatrickdp/answer-engine/go-controller/internal/classifier"
	"github.com/danielpatrickdp/answer-engine/go-controller/internal/contexts"
	"github.com/danielpatrickdp/answer-engine/go-controller/internal/metrics"
	"github.com/danielpatrickdp/answer-engine/go-controller/internal/textproc"
)

// #endregion imports

// #region errors

var (
	// ErrInsufficientData means fewer examples than Config.MinExamples were supplied.
	ErrInsufficientData = errors.New("insufficient training data")
	// ErrInsufficientClassDiversity means the examples carry fewer than two distinct answers.
	ErrInsufficientClassDiversity = errors.New("insufficient class diversity: need at least 2 distinct answers")
)

// #endregion errors

// #region config

// Config controls a training run.
type Config struct {
	MinExamples int
	MaxFolds    int
	Grid        []classifier.Params
}

// DefaultConfig returns the stock training settings.
func DefaultConfig() Config {
	return Config{
		MinExamples: 3,
		MaxFolds:    3,
		Grid:        classifier.DefaultGrid(),
	}
}

// #endregion config

// #region result

// Result summarises one published artifact.
type Result struct {
	ArtifactID     string            `json:"artifact_id"`
	AgentID        int64             `json:"agent_id"`
	ExamplesCount  int               `json:"examples_count"`
	AugmentedCount int               `json:"augmented_count"`
	BestScore      float64           `json:"best_score"`
	BestParams     classifier.Params `json:"best_params"`
	Folds          int               `json:"folds"`
	Duration       time.Duration     `json:"duration"`
}

// #endregion result

// #region pipeline

// Publisher stores a trained artifact and makes it active.
type Publisher interface {
	Publish(ctx context.Context, rec artifact.Record, blobs map[artifact.Kind][]byte) (artifact.Record, error)
}

// Invalidator drops any in-memory model held for an agent.
type Invalidator interface {
	Invalidate(agentID int64)
}

// Pipeline trains and publishes per-agent classifiers.
type Pipeline struct {
	cfg         Config
	publisher   Publisher
	invalidator Invalidator
	logger      zerolog.Logger
	metrics     *metrics.Recorder
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the pipeline logger.
func WithLogger(l zerolog.Logger) Option {
	return func(p *Pipeline) { p.logger = l.With().Str("component", "training").Logger() }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m *metrics.Recorder) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// WithInvalidator registers the model cache to flush after each publish.
func WithInvalidator(inv Invalidator) Option {
	return func(p *Pipeline) { p.invalidator = inv }
}

// NewPipeline creates a pipeline publishing through pub.
func NewPipeline(cfg Config, pub Publisher, opts ...Option) *Pipeline {
	if cfg.MinExamples <= 0 {
		cfg.MinExamples = DefaultConfig().MinExamples
	}
	if cfg.MaxFolds <= 0 {
		cfg.MaxFolds = DefaultConfig().MaxFolds
	}
	if len(cfg.Grid) == 0 {
		cfg.Grid = classifier.DefaultGrid()
	}
	p := &Pipeline{cfg: cfg, publisher: pub, logger: zerolog.Nop()}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Train augments data, selects hyper-parameters by cross-validation, refits on
// everything and publishes the result as the agent's active artifact.
func (p *Pipeline) Train(ctx context.Context, agentID int64, data []contexts.Example) (Result, error) {
	start := time.Now()
	res, err := p.train(ctx, agentID, data)
	if err != nil {
		outcome := "error"
		if errors.Is(err, ErrInsufficientData) || errors.Is(err, ErrInsufficientClassDiversity) {
			outcome = "rejected"
		}
		p.metrics.TrainingRun(outcome)
		p.logger.Warn().Err(err).Int64("agent_id", agentID).Int("examples", len(data)).Msg("training failed")
		return Result{}, err
	}
	res.Duration = time.Since(start)

	p.metrics.TrainingRun("ok")
	p.metrics.TrainingScore(strconv.FormatInt(agentID, 10), res.BestScore)
	p.logger.Info().
		Int64("agent_id", agentID).
		Str("artifact_id", res.ArtifactID).
		Int("examples", res.ExamplesCount).
		Int("augmented", res.AugmentedCount).
		Float64("best_score", res.BestScore).
		Int("ngram_max", res.BestParams.NGramMax).
		Float64("alpha", res.BestParams.Alpha).
		Dur("took", res.Duration).
		Msg("artifact published")
	return res, nil
}

func (p *Pipeline) train(ctx context.Context, agentID int64, data []contexts.Example) (Result, error) {
	if len(data) < p.cfg.MinExamples {
		return Result{}, errors.Wrapf(ErrInsufficientData, "got %d examples, need %d", len(data), p.cfg.MinExamples)
	}

	docs, labels := Augment(data)
	if distinct(labels) < 2 {
		return Result{}, ErrInsufficientClassDiversity
	}

	k := p.cfg.MaxFolds
	if d := distinct(labels); d < k {
		k = d
	}
	search, err := classifier.GridSearch(docs, labels, p.cfg.Grid, k)
	if err != nil {
		return Result{}, errors.Wrap(err, "grid search")
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	model, err := classifier.Fit(docs, labels, search.Best)
	if err != nil {
		return Result{}, errors.Wrap(err, "refit")
	}
	vecBlob, clfBlob, err := model.MarshalBlobs()
	if err != nil {
		return Result{}, err
	}
	params, err := json.Marshal(search.Best)
	if err != nil {
		return Result{}, errors.Wrap(err, "marshal params")
	}

	rec, err := p.publisher.Publish(ctx, artifact.Record{
		AgentID:        agentID,
		ExamplesCount:  len(data),
		AugmentedCount: len(docs),
		BestScore:      search.BestScore,
		BestParams:     string(params),
	}, map[artifact.Kind][]byte{
		artifact.KindVectorizer: vecBlob,
		artifact.KindClassifier: clfBlob,
	})
	if err != nil {
		return Result{}, errors.Wrap(err, "publish artifact")
	}
	if p.invalidator != nil {
		p.invalidator.Invalidate(agentID)
	}

	return Result{
		ArtifactID:     rec.ArtifactID,
		AgentID:        agentID,
		ExamplesCount:  len(data),
		AugmentedCount: len(docs),
		BestScore:      search.BestScore,
		BestParams:     search.Best,
		Folds:          search.Folds,
	}, nil
}

// #endregion pipeline

// #region augment

// Augment expands every example with its paraphrases. Originals keep their
// position; each one's variations follow it, all labelled with its answer.
func Augment(data []contexts.Example) (docs, labels []string) {
	for _, ex := range data {
		docs = append(docs, ex.Question)
		labels = append(labels, ex.Answer)
		for _, v := range textproc.Variations(ex.Question) {
			docs = append(docs, v)
			labels = append(labels, ex.Answer)
		}
	}
	return docs, labels
}

func distinct(labels []string) int {
	seen := make(map[string]struct{}, len(labels))
	for _, l := range labels {
		seen[l] = struct{}{}
	}
	return len(seen)
}

// #endregion augment
