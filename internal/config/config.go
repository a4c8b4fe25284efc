// Package config loads engine settings from defaults, an optional YAML file,
// an optional .env file and ANSWER_* environment variables, in increasing
// order of precedence.
package config

// #region imports
import (
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"github.com/danielpatrickdp/answer-engine/go-controller/internal/inference"
	"github.com/danielpatrickdp/answer-engine/go-controller/internal/remote"
	"github.com/danielpatrickdp/answer-engine/go-controller/internal/resolver"
	"github.com/danielpatrickdp/answer-engine/go-controller/internal/training"
)

// #endregion imports

// #region types

// EnvPrefix prefixes every environment override, e.g. ANSWER_REMOTE_PROVIDER.
const EnvPrefix = "ANSWER"

// Config is the full process configuration.
type Config struct {
	Profile     string `mapstructure:"profile"`
	DBPath      string `mapstructure:"db_path"`
	ArtifactDir string `mapstructure:"artifact_dir"`
	MetricsAddr string `mapstructure:"metrics_addr"`

	Log       LogConfig       `mapstructure:"log"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Remote    RemoteConfig    `mapstructure:"remote"`
	Resolver  ResolverConfig  `mapstructure:"resolver"`
	Training  TrainingConfig  `mapstructure:"training"`
	Inference InferenceConfig `mapstructure:"inference"`
}

// LogConfig selects the logger level and format.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

// CacheConfig selects the decision cache backend.
type CacheConfig struct {
	Backend       string `mapstructure:"backend"` // memory | redis | none
	MaxBytes      int64  `mapstructure:"max_bytes"`
	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`
	RedisPrefix   string `mapstructure:"redis_prefix"`
}

// RemoteConfig selects and tunes the remote generative model.
type RemoteConfig struct {
	Provider         string        `mapstructure:"provider"` // gemini | openai | grpc | none
	APIKey           string        `mapstructure:"api_key"`
	BaseURL          string        `mapstructure:"base_url"`
	Model            string        `mapstructure:"model"`
	Addr             string        `mapstructure:"addr"`
	Timeout          time.Duration `mapstructure:"timeout"`
	Temperature      float32       `mapstructure:"temperature"`
	MaxOutputTokens  int           `mapstructure:"max_output_tokens"`
	BreakerThreshold int           `mapstructure:"breaker_threshold"`
	BreakerCooldown  time.Duration `mapstructure:"breaker_cooldown"`
	RatePerSecond    float64       `mapstructure:"rate_per_second"`
	RateBurst        int           `mapstructure:"rate_burst"`
}

// ResolverConfig mirrors resolver.Config; profile presets fill the defaults.
type ResolverConfig struct {
	ThresholdAbs        float64       `mapstructure:"threshold_abs"`
	ThresholdDiff       float64       `mapstructure:"threshold_diff"`
	APIUsageProbability float64       `mapstructure:"api_usage_probability"`
	CacheTTLGood        time.Duration `mapstructure:"cache_ttl_good"`
	CacheTTLFallback    time.Duration `mapstructure:"cache_ttl_fallback"`
	ContextLimit        int           `mapstructure:"context_limit"`
	KeywordMinCoverage  float64       `mapstructure:"keyword_min_coverage"`
	RemoteConfidence    float64       `mapstructure:"remote_confidence"`
	KeywordConfidence   float64       `mapstructure:"keyword_confidence"`
	EnhanceAnswers      bool          `mapstructure:"enhance_answers"`
}

// TrainingConfig bounds a training run.
type TrainingConfig struct {
	MinExamples int `mapstructure:"min_examples"`
	MaxFolds    int `mapstructure:"max_folds"`
}

// InferenceConfig bounds the loaded-model cache.
type InferenceConfig struct {
	CacheSize   int           `mapstructure:"cache_size"`
	LoadTimeout time.Duration `mapstructure:"load_timeout"`
	TopK        int           `mapstructure:"top_k"`
}

// #endregion types

// #region load

// Options locate optional inputs for Load.
type Options struct {
	ConfigFile string // YAML; ignored when empty
	EnvFile    string // .env; a missing file is not an error
	Profile    string // overrides file and environment when set
}

// Load resolves the configuration. The deployment profile is read first so
// its presets become the defaults for every resolver setting.
func Load(opts Options) (*Config, error) {
	if opts.EnvFile != "" {
		if err := godotenv.Load(opts.EnvFile); err != nil && !os.IsNotExist(errors.Cause(err)) {
			return nil, errors.Wrapf(err, "load env file %s", opts.EnvFile)
		}
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// Provider-native variable names are honoured as a fallback.
	if err := v.BindEnv("remote.api_key", EnvPrefix+"_REMOTE_API_KEY", "GEMINI_API_KEY", "OPENAI_API_KEY"); err != nil {
		return nil, errors.Wrap(err, "bind remote.api_key")
	}

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "read config file %s", opts.ConfigFile)
		}
	}

	v.SetDefault("profile", string(resolver.ProfileDevelopment))
	if opts.Profile != "" {
		v.Set("profile", opts.Profile)
	}
	profile := resolver.Profile(strings.ToLower(strings.TrimSpace(v.GetString("profile"))))
	preset, err := resolver.ConfigFor(profile)
	if err != nil {
		return nil, err
	}
	setDefaults(v, preset)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "decode config")
	}
	cfg.Profile = string(profile)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper, preset resolver.Config) {
	rd := remote.DefaultConfig()
	td := training.DefaultConfig()
	id := inference.DefaultConfig()

	v.SetDefault("db_path", "answer_engine.db")
	v.SetDefault("artifact_dir", "")
	v.SetDefault("metrics_addr", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)

	v.SetDefault("cache.backend", "memory")
	v.SetDefault("cache.max_bytes", int64(32<<20))
	v.SetDefault("cache.redis_addr", "localhost:6379")
	v.SetDefault("cache.redis_password", "")
	v.SetDefault("cache.redis_db", 0)
	v.SetDefault("cache.redis_prefix", "answer-engine:")

	v.SetDefault("remote.provider", "gemini")
	v.SetDefault("remote.api_key", "")
	v.SetDefault("remote.base_url", "")
	v.SetDefault("remote.model", "")
	v.SetDefault("remote.addr", "localhost:50051")
	v.SetDefault("remote.timeout", rd.Timeout)
	v.SetDefault("remote.temperature", rd.Temperature)
	v.SetDefault("remote.max_output_tokens", rd.MaxOutputTokens)
	v.SetDefault("remote.breaker_threshold", rd.BreakerThreshold)
	v.SetDefault("remote.breaker_cooldown", rd.BreakerCooldown)
	v.SetDefault("remote.rate_per_second", rd.RatePerSecond)
	v.SetDefault("remote.rate_burst", rd.RateBurst)

	v.SetDefault("resolver.threshold_abs", preset.ThresholdAbs)
	v.SetDefault("resolver.threshold_diff", preset.ThresholdDiff)
	v.SetDefault("resolver.api_usage_probability", preset.APIUsageProbability)
	v.SetDefault("resolver.cache_ttl_good", preset.CacheTTLGood)
	v.SetDefault("resolver.cache_ttl_fallback", preset.CacheTTLFallback)
	v.SetDefault("resolver.context_limit", preset.ContextLimit)
	v.SetDefault("resolver.keyword_min_coverage", preset.KeywordMinCoverage)
	v.SetDefault("resolver.remote_confidence", preset.RemoteConfidence)
	v.SetDefault("resolver.keyword_confidence", preset.KeywordConfidence)
	v.SetDefault("resolver.enhance_answers", preset.EnhanceAnswers)

	v.SetDefault("training.min_examples", td.MinExamples)
	v.SetDefault("training.max_folds", td.MaxFolds)

	v.SetDefault("inference.cache_size", id.CacheSize)
	v.SetDefault("inference.load_timeout", id.LoadTimeout)
	v.SetDefault("inference.top_k", id.TopK)
}

// #endregion load

// #region validate

// Validate rejects settings the engine cannot run with.
func (c *Config) Validate() error {
	r := c.Resolver
	if r.ThresholdAbs < 0 || r.ThresholdAbs > 1 {
		return errors.Errorf("resolver.threshold_abs must be within [0,1], got %v", r.ThresholdAbs)
	}
	if r.ThresholdDiff < 0 || r.ThresholdDiff > 1 {
		return errors.Errorf("resolver.threshold_diff must be within [0,1], got %v", r.ThresholdDiff)
	}
	if r.APIUsageProbability < 0 || r.APIUsageProbability > 1 {
		return errors.Errorf("resolver.api_usage_probability must be within [0,1], got %v", r.APIUsageProbability)
	}
	if r.ContextLimit < 1 {
		return errors.Errorf("resolver.context_limit must be positive, got %d", r.ContextLimit)
	}
	switch strings.ToLower(c.Cache.Backend) {
	case "memory", "redis", "none":
	default:
		return errors.Errorf("cache.backend must be memory, redis or none, got %q", c.Cache.Backend)
	}
	if c.Training.MinExamples < 1 {
		return errors.Errorf("training.min_examples must be positive, got %d", c.Training.MinExamples)
	}
	return nil
}

// #endregion validate

// #region conversions

// ResolverConfig returns the resolver settings.
func (c *Config) ResolverConfig() resolver.Config {
	r := c.Resolver
	return resolver.Config{
		ThresholdAbs:        r.ThresholdAbs,
		ThresholdDiff:       r.ThresholdDiff,
		APIUsageProbability: r.APIUsageProbability,
		CacheTTLGood:        r.CacheTTLGood,
		CacheTTLFallback:    r.CacheTTLFallback,
		ContextLimit:        r.ContextLimit,
		KeywordMinCoverage:  r.KeywordMinCoverage,
		RemoteConfidence:    r.RemoteConfidence,
		KeywordConfidence:   r.KeywordConfidence,
		EnhanceAnswers:      r.EnhanceAnswers,
	}
}

// RemoteClientConfig returns the remote client settings. The prompt context
// limit follows the resolver's.
func (c *Config) RemoteClientConfig() remote.Config {
	r := c.Remote
	return remote.Config{
		Timeout:          r.Timeout,
		Temperature:      r.Temperature,
		MaxOutputTokens:  r.MaxOutputTokens,
		ContextLimit:     c.Resolver.ContextLimit,
		BreakerThreshold: r.BreakerThreshold,
		BreakerCooldown:  r.BreakerCooldown,
		RatePerSecond:    r.RatePerSecond,
		RateBurst:        r.RateBurst,
	}
}

// BackendConfig returns the remote backend selection.
func (c *Config) BackendConfig() remote.BackendConfig {
	return remote.BackendConfig{
		Provider: c.Remote.Provider,
		APIKey:   c.Remote.APIKey,
		BaseURL:  c.Remote.BaseURL,
		Model:    c.Remote.Model,
		Addr:     c.Remote.Addr,
	}
}

// TrainingPipelineConfig returns the training settings with the stock grid.
func (c *Config) TrainingPipelineConfig() training.Config {
	cfg := training.DefaultConfig()
	cfg.MinExamples = c.Training.MinExamples
	cfg.MaxFolds = c.Training.MaxFolds
	return cfg
}

// InferenceServiceConfig returns the model cache settings.
func (c *Config) InferenceServiceConfig() inference.Config {
	return inference.Config{
		CacheSize:   c.Inference.CacheSize,
		LoadTimeout: c.Inference.LoadTimeout,
		TopK:        c.Inference.TopK,
	}
}

// #endregion conversions
