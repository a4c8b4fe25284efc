package remote

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

// #region grpc-tests
func startCompletionServer(t *testing.T, backend Backend) *GRPCBackend {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	RegisterCompletionServer(srv, backend)
	go srv.Serve(lis)
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return NewGRPCBackendWithConn(conn, "test-model")
}

func TestGRPCBackend_RoundTrip(t *testing.T) {
	fb := &fakeBackend{text: "resposta via sidecar"}
	g := startCompletionServer(t, fb)

	text, err := g.Complete(context.Background(), "prompt", GenerationParams{Temperature: 0.2, MaxOutputTokens: 256})
	require.NoError(t, err)
	assert.Equal(t, "resposta via sidecar", text)
	assert.Equal(t, []string{"prompt"}, fb.prompts)
	assert.Equal(t, "grpc", g.Name())
}

func TestGRPCBackend_QuotaMapsToResourceExhausted(t *testing.T) {
	g := startCompletionServer(t, &fakeBackend{err: errors.New("quota exceeded")})

	_, err := g.Complete(context.Background(), "prompt", GenerationParams{})
	require.Error(t, err)
	assert.Equal(t, codes.ResourceExhausted, status.Code(errors.Cause(err)))
	assert.True(t, isQuotaError(err))
}

func TestGRPCBackend_OtherErrorsUnavailable(t *testing.T) {
	g := startCompletionServer(t, &fakeBackend{err: errors.New("model crashed")})
	_, err := g.Complete(context.Background(), "prompt", GenerationParams{})
	assert.Equal(t, codes.Unavailable, status.Code(errors.Cause(err)))
}

func TestGRPCBackend_EmptyPromptRejected(t *testing.T) {
	g := startCompletionServer(t, &fakeBackend{text: "x"})
	_, err := g.Complete(context.Background(), "", GenerationParams{})
	assert.Equal(t, codes.InvalidArgument, status.Code(errors.Cause(err)))
}

func TestGRPCBackend_ThroughClient(t *testing.T) {
	g := startCompletionServer(t, &fakeBackend{text: "Pelo portal do colaborador."})
	c := NewClient(g, DefaultConfig())
	res := c.Generate(context.Background(), "bot", "Como pedir férias?", examples)
	assert.True(t, res.Succeeded)
	assert.Equal(t, "Pelo portal do colaborador.", res.Answer)
}

// #endregion grpc-tests

// #region openai-tests
func TestOpenAIBackend(t *testing.T) {
	var got struct {
		Model     string  `json:"model"`
		MaxTokens int     `json:"max_tokens"`
		Temp      float32 `json:"temperature"`
		Messages  []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"Das 8h às 17h."},"finish_reason":"stop"}]}`))
	}))
	defer srv.Close()

	b, err := NewOpenAIBackend("test-key", srv.URL, "local-model")
	require.NoError(t, err)
	text, err := b.Complete(context.Background(), "Qual o horário?", GenerationParams{Temperature: 0.2, MaxOutputTokens: 256})
	require.NoError(t, err)
	assert.Equal(t, "Das 8h às 17h.", text)
	assert.Equal(t, "local-model", got.Model)
	assert.Equal(t, 256, got.MaxTokens)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "user", got.Messages[0].Role)
	assert.Equal(t, "Qual o horário?", got.Messages[0].Content)
}

func TestOpenAIBackend_QuotaError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"You exceeded your current quota","type":"insufficient_quota"}}`))
	}))
	defer srv.Close()

	b, err := NewOpenAIBackend("k", srv.URL, "")
	require.NoError(t, err)
	c := NewClient(b, DefaultConfig())
	res := c.Generate(context.Background(), "bot", "q", examples)
	assert.False(t, res.Succeeded)
	assert.Equal(t, StateOpen, c.Breaker().State())
}

func TestOpenAIBackend_RequiresKeyOrURL(t *testing.T) {
	_, err := NewOpenAIBackend("", "", "")
	assert.True(t, errors.Is(err, ErrNoBackend))
}

// #endregion openai-tests
