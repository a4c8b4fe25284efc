package contexts

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

// #region helpers
func tempStore(t *testing.T) *Store {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "contexts.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	_, err = db.Exec("PRAGMA foreign_keys=ON")
	require.NoError(t, err)

	s, err := NewStore(db)
	require.NoError(t, err)
	return s
}

// #endregion helpers

func TestCreateAgentAndName(t *testing.T) {
	ctx := context.Background()
	s := tempStore(t)

	a, err := s.CreateAgent(ctx, "  RH Bot ", "benefícios")
	require.NoError(t, err)
	assert.NotZero(t, a.ID)
	assert.Equal(t, "RH Bot", a.Name)

	name, err := s.AgentName(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "RH Bot", name)

	ok, err := s.AgentExists(ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	agents, err := s.ListAgents(ctx)
	require.NoError(t, err)
	require.Len(t, agents, 1)
	assert.Equal(t, a.ID, agents[0].ID)
}

func TestCreateAgent_RequiresName(t *testing.T) {
	_, err := tempStore(t).CreateAgent(context.Background(), "   ", "")
	assert.Error(t, err)
}

func TestUnknownAgent(t *testing.T) {
	ctx := context.Background()
	s := tempStore(t)

	ok, err := s.AgentExists(ctx, 42)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = s.AgentName(ctx, 42)
	assert.True(t, errors.Is(err, ErrAgentNotFound))

	_, err = s.ListContexts(ctx, 42)
	assert.True(t, errors.Is(err, ErrAgentNotFound))

	_, err = s.AddContext(ctx, 42, Example{Question: "q", Answer: "a"})
	assert.True(t, errors.Is(err, ErrAgentNotFound))
}

func TestAddListDeleteContexts(t *testing.T) {
	ctx := context.Background()
	s := tempStore(t)
	a, err := s.CreateAgent(ctx, "bot", "")
	require.NoError(t, err)

	empty, err := s.ListContexts(ctx, a.ID)
	require.NoError(t, err)
	assert.Empty(t, empty)
	assert.NotNil(t, empty)

	c1, err := s.AddContext(ctx, a.ID, Example{Question: " Qual o horário? ", Answer: "8h às 17h"})
	require.NoError(t, err)
	_, err = s.AddContext(ctx, a.ID, Example{Question: "Como solicitar férias?", Answer: "Pelo portal."})
	require.NoError(t, err)

	got, err := s.ListContexts(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, []Example{
		{Question: "Qual o horário?", Answer: "8h às 17h"},
		{Question: "Como solicitar férias?", Answer: "Pelo portal."},
	}, got)

	require.NoError(t, s.DeleteContext(ctx, c1.ID))
	got, err = s.ListContexts(ctx, a.ID)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestAddContext_RejectsBlank(t *testing.T) {
	ctx := context.Background()
	s := tempStore(t)
	a, err := s.CreateAgent(ctx, "bot", "")
	require.NoError(t, err)

	_, err = s.AddContext(ctx, a.ID, Example{Question: "q", Answer: "  "})
	assert.Error(t, err)
}

func TestContextsIsolatedPerAgent(t *testing.T) {
	ctx := context.Background()
	s := tempStore(t)
	a1, _ := s.CreateAgent(ctx, "one", "")
	a2, _ := s.CreateAgent(ctx, "two", "")

	_, err := s.AddContext(ctx, a1.ID, Example{Question: "q1", Answer: "a1"})
	require.NoError(t, err)

	got, err := s.ListContexts(ctx, a2.ID)
	require.NoError(t, err)
	assert.Empty(t, got)
}
