package resolver

// #region imports
import (
	"time"

	"github.com/pkg/errors"

	"github.com/danielpatrickdp/answer-engine/go-controller/internal/remote"
)

// #endregion imports

// #region source

// Source tags which path produced a Decision. Consumers switch on it.
type Source string

const (
	SourceLocalConfident  Source = "local_confident"
	SourceLocalEnhanced   Source = "local_enhanced"
	SourceRemoteDirect    Source = "remote_direct"
	SourceKeywordFallback Source = "keyword_fallback"
	SourceRefusal         Source = "refusal"
)

// Sources lists every Source in resolution order.
var Sources = []Source{
	SourceLocalConfident, SourceLocalEnhanced, SourceRemoteDirect, SourceKeywordFallback, SourceRefusal,
}

// #endregion source

// #region decision

// RefusalMessage is the answer carried by every out-of-scope decision.
const RefusalMessage = remote.RefusalMessage

// Decision is the resolved answer to one question. InScope is false only for
// SourceRefusal, whose Answer is always RefusalMessage.
type Decision struct {
	Source     Source  `json:"source"`
	Answer     string  `json:"answer"`
	Confidence float64 `json:"confidence"`
	InScope    bool    `json:"in_scope"`
	Cached     bool    `json:"-"`
}

// Refusal returns the canonical out-of-scope decision.
func Refusal() Decision {
	return Decision{Source: SourceRefusal, Answer: RefusalMessage, Confidence: 0, InScope: false}
}

// #endregion decision

// #region config

// Config carries every tunable the resolver reads. It is fixed at
// construction; nothing is read from the environment at call time.
type Config struct {
	ThresholdAbs        float64       // minimum top-class probability
	ThresholdDiff       float64       // minimum gap between first and second class
	APIUsageProbability float64       // share of requests allowed to call the remote model
	CacheTTLGood        time.Duration // local and remote answers
	CacheTTLFallback    time.Duration // keyword fallbacks and refusals
	ContextLimit        int           // contexts sent to the remote model
	KeywordMinCoverage  float64       // keyword fallback acceptance threshold
	RemoteConfidence    float64
	KeywordConfidence   float64
	EnhanceAnswers      bool
}

// Profile names a deployment preset.
type Profile string

const (
	ProfileDevelopment     Profile = "development"
	ProfileCostConstrained Profile = "cost_constrained"
)

// DevelopmentConfig favours answer quality: every request may use the remote model.
func DevelopmentConfig() Config {
	return Config{
		ThresholdAbs:        0.20,
		ThresholdDiff:       0.035,
		APIUsageProbability: 1.0,
		CacheTTLGood:        time.Hour,
		CacheTTLFallback:    10 * time.Minute,
		ContextLimit:        3,
		KeywordMinCoverage:  0.7,
		RemoteConfidence:    0.95,
		KeywordConfidence:   0.7,
		EnhanceAnswers:      true,
	}
}

// CostConstrainedConfig samples remote usage down and caches longer.
func CostConstrainedConfig() Config {
	cfg := DevelopmentConfig()
	cfg.APIUsageProbability = 0.3
	cfg.CacheTTLGood = 24 * time.Hour
	cfg.CacheTTLFallback = 6 * time.Hour
	cfg.ContextLimit = 2
	cfg.EnhanceAnswers = false
	return cfg
}

// ConfigFor returns the preset for profile.
func ConfigFor(profile Profile) (Config, error) {
	switch profile {
	case ProfileDevelopment, "":
		return DevelopmentConfig(), nil
	case ProfileCostConstrained:
		return CostConstrainedConfig(), nil
	}
	return Config{}, errors.Errorf("unknown deployment profile %q", profile)
}

// #endregion config
