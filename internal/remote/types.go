// Package remote calls a hosted generative model to answer questions from an
// agent's contexts or to polish a locally chosen answer. Every failure is
// absorbed into a deterministic refusal; callers never see a raw error.
package remote

// #region imports
import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// #endregion imports

// #region errors

var (
	// ErrRemoteUnavailable wraps every non-timeout remote failure.
	ErrRemoteUnavailable = errors.New("remote model unavailable")
	// ErrRemoteTimeout means a call exceeded its soft timeout.
	ErrRemoteTimeout = errors.New("remote model timed out")
	// ErrNoBackend means no provider or credential was configured.
	ErrNoBackend = errors.New("no remote backend configured")
)

// #endregion errors

// #region refusal

// RefusalMessage is the canonical out-of-scope answer. The prompt instructs
// the model to emit it verbatim when the context does not cover the question.
const RefusalMessage = "Desculpe, não encontrei uma resposta relevante para sua pergunta."

// #endregion refusal

// #region backend

// GenerationParams are the sampling settings sent with every request.
type GenerationParams struct {
	Temperature     float32
	MaxOutputTokens int
}

// Backend is one concrete generative model transport.
type Backend interface {
	// Complete returns the model's text for prompt.
	Complete(ctx context.Context, prompt string, params GenerationParams) (string, error)
	// Name identifies the backend in logs and metrics.
	Name() string
}

// #endregion backend

// #region quota

var quotaMarkers = []string{"quota", "429", "resource_exhausted", "resourceexhausted", "resource exhausted", "rate limit"}

// isQuotaError reports whether err looks like a provider quota rejection.
func isQuotaError(err error) bool {
	if err == nil {
		return false
	}
	if status.Code(errors.Cause(err)) == codes.ResourceExhausted {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, m := range quotaMarkers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}

// #endregion quota
