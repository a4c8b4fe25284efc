package logging

import (
	"bytes"
	"context"
	"database/sql"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

// #region helpers
func setupLog(t *testing.T) *AuditLog {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	a, err := NewAuditLog(db)
	require.NoError(t, err)
	return a
}

func ptr(f float64) *float64 { return &f }

// #endregion helpers

// #region log-decision-tests
func TestLogDecision_RoundTrip(t *testing.T) {
	ctx := context.Background()
	a := setupLog(t)

	entry := ResolutionEntry{
		AgentID:        7,
		QuestionHash:   HashQuestion("qual o horário?"),
		Source:         "local_confident",
		Confidence:     0.81,
		InScope:        true,
		TopProbability: ptr(0.81),
		ProbabilityGap: ptr(0.6),
		Reason:         "top 0.810 >= 0.200, gap 0.600 >= 0.035",
		CreatedAt:      time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, a.LogDecision(ctx, entry))

	got, err := a.Recent(ctx, 7, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, entry, got[0])
}

func TestLogDecision_NullableFields(t *testing.T) {
	ctx := context.Background()
	a := setupLog(t)

	require.NoError(t, a.LogDecision(ctx, ResolutionEntry{
		AgentID:      1,
		QuestionHash: HashQuestion("x"),
		Source:       "refusal",
	}))

	got, err := a.Recent(ctx, 1, 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Nil(t, got[0].TopProbability)
	assert.Nil(t, got[0].ProbabilityGap)
	assert.Empty(t, got[0].Reason)
	assert.False(t, got[0].CreatedAt.IsZero())
}

func TestCountBySource(t *testing.T) {
	ctx := context.Background()
	a := setupLog(t)
	for _, src := range []string{"refusal", "refusal", "remote_direct"} {
		require.NoError(t, a.LogDecision(ctx, ResolutionEntry{AgentID: 3, QuestionHash: "h", Source: src}))
	}
	require.NoError(t, a.LogDecision(ctx, ResolutionEntry{AgentID: 4, QuestionHash: "h", Source: "refusal"}))

	counts, err := a.CountBySource(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"refusal": 2, "remote_direct": 1}, counts)
}

func TestHashQuestion(t *testing.T) {
	assert.Equal(t, HashQuestion("a"), HashQuestion("a"))
	assert.NotEqual(t, HashQuestion("a"), HashQuestion("b"))
	assert.Len(t, HashQuestion("a"), 64)
}

// #endregion log-decision-tests

// #region logger-tests
func TestNewWithWriter_Level(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf, "warn", false)
	l.Info().Msg("hidden")
	l.Warn().Msg("shown")
	out := buf.String()
	assert.False(t, strings.Contains(out, "hidden"))
	assert.True(t, strings.Contains(out, "shown"))
	assert.True(t, strings.Contains(out, `"app":"answer-engine"`))
}

func TestNewWithWriter_UnknownLevelIsInfo(t *testing.T) {
	var buf bytes.Buffer
	l := Component(NewWithWriter(&buf, "loud", false), "resolver")
	l.Debug().Msg("hidden")
	l.Info().Msg("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"component":"resolver"`)
}

// #endregion logger-tests
