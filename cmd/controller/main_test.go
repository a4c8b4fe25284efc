package main

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danielpatrickdp/answer-engine/go-controller/internal/resolver"
)

type cli struct {
	t  *testing.T
	db string
}

func newCLI(t *testing.T) *cli {
	t.Setenv("ANSWER_REMOTE_PROVIDER", "none")
	t.Setenv("ANSWER_PROFILE", "")
	return &cli{t: t, db: filepath.Join(t.TempDir(), "cli.db")}
}

func (c *cli) run(stdin string, args ...string) (string, error) {
	c.t.Helper()
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append([]string{"--db", c.db, "--env-file", "", "--log-level", "error"}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func (c *cli) mustRun(args ...string) string {
	c.t.Helper()
	out, err := c.run("", args...)
	require.NoError(c.t, err, "args %v", args)
	return out
}

func (c *cli) seed() {
	c.mustRun("agent", "create", "RH", "Bot", "--description", "recursos humanos")
	c.mustRun("context", "add", "1", "-q", "Qual o horário de trabalho?", "-a", "8h às 17h")
	c.mustRun("context", "add", "1", "-q", "Como solicito férias?", "-a", "via sistema")
	c.mustRun("context", "add", "1", "-q", "Qual o valor do vale-refeição?", "-a", "R$35/dia")
}

func TestCLI_TrainAndAsk(t *testing.T) {
	c := newCLI(t)
	c.seed()

	out := c.mustRun("agent", "list")
	assert.Contains(t, out, "RH Bot")

	out = c.mustRun("context", "list", "1")
	assert.Contains(t, out, "Como solicito férias?")

	out = c.mustRun("train", "1")
	assert.Contains(t, out, "active for agent 1")

	out = c.mustRun("ask", "1", "Qual é o horário de trabalho?", "--json")
	var d resolver.Decision
	require.NoError(t, json.Unmarshal([]byte(out), &d))
	// Without a remote provider the question is answered by keyword matching.
	assert.Equal(t, resolver.SourceKeywordFallback, d.Source)
	assert.Equal(t, "8h às 17h", d.Answer)

	out = c.mustRun("artifacts", "1", "--json")
	var rows []artifactRow
	require.NoError(t, json.Unmarshal([]byte(out), &rows))
	require.Len(t, rows, 1)
	assert.True(t, rows[0].Active)
	assert.Equal(t, 3, rows[0].ExamplesCount)
	require.NotNil(t, rows[0].BestParams)
}

func TestCLI_REPL(t *testing.T) {
	c := newCLI(t)
	c.seed()
	c.mustRun("train", "1")

	out, err := c.run("Qual é o horário de trabalho?\n\nQual a capital da França?\nquit\n", "ask", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "RH Bot ready (remote model: off)")
	assert.Contains(t, out, "8h às 17h")
	assert.Contains(t, out, resolver.RefusalMessage)
	assert.Equal(t, 4, strings.Count(out, "> "))
}

func TestCLI_AuditAfterAsk(t *testing.T) {
	c := newCLI(t)
	c.seed()
	c.mustRun("ask", "1", "Qual a capital da França?")

	out := c.mustRun("audit", "1")
	assert.Contains(t, out, string(resolver.SourceRefusal))
}

func TestCLI_Errors(t *testing.T) {
	c := newCLI(t)

	_, err := c.run("", "ask", "7", "Olá?")
	assert.Error(t, err)

	_, err = c.run("", "train", "abc")
	assert.Error(t, err)

	c.mustRun("agent", "create", "Vazio")
	_, err = c.run("", "train", "1")
	assert.ErrorContains(t, err, "insufficient training data")

	_, err = c.run("", "--profile", "turbo", "agent", "list")
	assert.Error(t, err)
}
