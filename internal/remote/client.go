package remote

// #region imports
import (
	"context"
	"io"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/danielpatrickdp/answer-engine/go-controller/internal/contexts"
	"github.com/danielpatrickdp/answer-engine/go-controller/internal/metrics"
)

// #endregion imports

// #region config

// Config holds the client's generation and resilience settings.
type Config struct {
	Timeout          time.Duration
	Temperature      float32
	MaxOutputTokens  int
	ContextLimit     int // examples per prompt
	BreakerThreshold int
	BreakerCooldown  time.Duration
	RatePerSecond    float64 // 0 disables the ceiling
	RateBurst        int
}

// DefaultConfig returns the stock remote settings.
func DefaultConfig() Config {
	return Config{
		Timeout:          8 * time.Second,
		Temperature:      0.2,
		MaxOutputTokens:  256,
		ContextLimit:     3,
		BreakerThreshold: 3,
		BreakerCooldown:  time.Minute,
	}
}

// #endregion config

// #region result

// GenerateResult is the outcome of a remote-direct answer attempt.
type GenerateResult struct {
	Answer     string
	Succeeded  bool
	OutOfScope bool  // the model answered with the refusal phrase
	Err        error // set when Succeeded is false; for logging only
}

// #endregion result

// #region client

// Client wraps a Backend with timeouts, a circuit breaker, an optional rate
// ceiling and refusal handling.
type Client struct {
	backend  Backend
	cfg      Config
	breaker  *Breaker
	limiter  *rate.Limiter
	logger   zerolog.Logger
	metrics  *metrics.Recorder
	now      func() time.Time
	disabled string
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the client logger.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) { c.logger = l.With().Str("component", "remote").Logger() }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m *metrics.Recorder) Option {
	return func(c *Client) { c.metrics = m }
}

// WithBreaker replaces the default breaker.
func WithBreaker(b *Breaker) Option {
	return func(c *Client) { c.breaker = b }
}

// WithNow injects the clock used for the wall-clock timeout check.
func WithNow(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// NewClient creates an enabled client around backend.
func NewClient(backend Backend, cfg Config, opts ...Option) *Client {
	def := DefaultConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.MaxOutputTokens <= 0 {
		cfg.MaxOutputTokens = def.MaxOutputTokens
	}
	if cfg.ContextLimit <= 0 {
		cfg.ContextLimit = def.ContextLimit
	}
	if cfg.BreakerThreshold <= 0 {
		cfg.BreakerThreshold = def.BreakerThreshold
	}
	if cfg.BreakerCooldown <= 0 {
		cfg.BreakerCooldown = def.BreakerCooldown
	}

	c := &Client{backend: backend, cfg: cfg, logger: zerolog.Nop(), now: time.Now}
	if cfg.RatePerSecond > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), burst)
	}
	for _, o := range opts {
		o(c)
	}
	if c.breaker == nil {
		c.breaker = NewBreaker(cfg.BreakerThreshold, cfg.BreakerCooldown,
			WithStateListener(func(s BreakerState) {
				c.metrics.BreakerState(string(s), AllBreakerStates)
				c.logger.Warn().Str("state", string(s)).Msg("circuit breaker transition")
			}))
	}
	return c
}

// NewDisabledClient returns a client that never calls out. reason is logged.
func NewDisabledClient(reason string, opts ...Option) *Client {
	c := &Client{disabled: reason, logger: zerolog.Nop(), now: time.Now}
	if c.disabled == "" {
		c.disabled = "disabled"
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Disabled reports whether the client is permanently off.
func (c *Client) Disabled() bool {
	return c.disabled != ""
}

// Breaker exposes the circuit breaker, or nil for a disabled client.
func (c *Client) Breaker() *Breaker {
	return c.breaker
}

// Close releases the backend's connection, if it holds one.
func (c *Client) Close() error {
	if closer, ok := c.backend.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

// #endregion client

// #region generate

// Generate answers question from examples. On any failure the result carries
// the refusal message and Succeeded=false.
func (c *Client) Generate(ctx context.Context, agentName, question string, examples []contexts.Example) GenerateResult {
	if c.Disabled() {
		return GenerateResult{Answer: RefusalMessage, Err: errors.Wrap(ErrRemoteUnavailable, c.disabled)}
	}
	prompt := BuildPrompt(agentName, question, examples, c.cfg.ContextLimit)
	text, err := c.call(ctx, "generate", prompt)
	if err != nil {
		c.logger.Warn().Err(err).Str("agent", agentName).Msg("remote generate failed")
		return GenerateResult{Answer: RefusalMessage, Err: err}
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return GenerateResult{Answer: RefusalMessage, Err: errors.Wrap(ErrRemoteUnavailable, "empty completion")}
	}
	if containsRefusal(text) {
		return GenerateResult{Answer: RefusalMessage, Succeeded: true, OutOfScope: true}
	}
	return GenerateResult{Answer: text, Succeeded: true}
}

func containsRefusal(text string) bool {
	return strings.Contains(strings.ToLower(text), strings.ToLower(RefusalMessage))
}

// #endregion generate

// #region enhance

// Enhance rewrites answer for tone while keeping its facts. It returns answer
// unchanged on any failure, when disabled, or when the model refuses.
func (c *Client) Enhance(ctx context.Context, answer, question, agentName string) string {
	if c.Disabled() {
		return answer
	}
	text, err := c.call(ctx, "enhance", BuildEnhancePrompt(agentName, question, answer))
	if err != nil {
		c.logger.Debug().Err(err).Msg("remote enhance failed, keeping original")
		return answer
	}
	text = strings.TrimSpace(text)
	if text == "" || containsRefusal(text) {
		return answer
	}
	return text
}

// #endregion enhance

// #region call

// call runs one backend request behind the breaker, the rate ceiling and the
// soft timeout, and maps every failure onto ErrRemoteUnavailable or
// ErrRemoteTimeout.
func (c *Client) call(ctx context.Context, op, prompt string) (string, error) {
	name := c.backend.Name()
	// The ceiling is checked first so a denied call never spends a half-open probe.
	if c.limiter != nil && !c.limiter.Allow() {
		c.metrics.RemoteCall(op, name, "rate_limited", 0)
		return "", errors.Wrap(ErrRemoteUnavailable, "rate limited")
	}
	if !c.breaker.Allow() {
		c.metrics.RemoteCall(op, name, "breaker_open", 0)
		return "", errors.Wrap(ErrRemoteUnavailable, "circuit open")
	}

	cctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	start := c.now()
	returned := false
	defer func() {
		// A backend panic still settles the breaker, so a half-open trial call
		// cannot stay outstanding.
		if !returned {
			c.breaker.RecordFailure()
			c.metrics.RemoteCall(op, name, "panic", c.now().Sub(start))
		}
	}()
	text, err := c.backend.Complete(cctx, prompt, GenerationParams{
		Temperature:     c.cfg.Temperature,
		MaxOutputTokens: c.cfg.MaxOutputTokens,
	})
	returned = true
	elapsed := c.now().Sub(start)

	switch {
	case elapsed > c.cfg.Timeout || (err != nil && errors.Is(cctx.Err(), context.DeadlineExceeded)):
		c.breaker.RecordFailure()
		c.metrics.RemoteCall(op, name, "timeout", elapsed)
		return "", errors.Wrapf(ErrRemoteTimeout, "%s after %s", op, elapsed)
	case err != nil && isQuotaError(err):
		c.breaker.Trip()
		c.metrics.RemoteCall(op, name, "quota", elapsed)
		return "", errors.Wrapf(ErrRemoteUnavailable, "quota exhausted: %v", err)
	case err != nil:
		c.breaker.RecordFailure()
		c.metrics.RemoteCall(op, name, "error", elapsed)
		return "", errors.Wrapf(ErrRemoteUnavailable, "%v", err)
	}

	c.breaker.RecordSuccess()
	c.metrics.RemoteCall(op, name, "ok", elapsed)
	return text, nil
}

// #endregion call
