package contexts

// #region imports
import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// #endregion imports

// #region types

// ErrAgentNotFound is returned when an operation names an agent that does not exist.
var ErrAgentNotFound = errors.New("agent not found")

// Example is one question/answer pair attached to an agent. The answer doubles
// as the class label during training.
type Example struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// Agent is a tenant-owned chatbot persona.
type Agent struct {
	ID          int64
	Name        string
	Description string
	CreatedAt   time.Time
}

// Context is a stored example with its row identity.
type Context struct {
	ID      int64
	AgentID int64
	Example
	CreatedAt time.Time
}

// #endregion types

// #region store

// Store persists agents and their question/answer contexts in SQLite.
type Store struct {
	db *sql.DB
}

// NewStore creates the agents and contexts tables if needed and returns a store
// sharing db with the other stores.
func NewStore(db *sql.DB) (*Store, error) {
	s := &Store{db: db}
	if err := s.init(); err != nil {
		return nil, errors.Wrap(err, "init contexts schema")
	}
	return s, nil
}

func (s *Store) init() error {
	_, err := s.db.Exec(`
CREATE TABLE IF NOT EXISTS agents (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	name        TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	created_at  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS contexts (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	agent_id   INTEGER NOT NULL,
	question   TEXT NOT NULL,
	answer     TEXT NOT NULL,
	created_at TEXT NOT NULL,
	FOREIGN KEY (agent_id) REFERENCES agents(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_contexts_agent ON contexts(agent_id);
`)
	return err
}

// #endregion store

// #region agents

// CreateAgent inserts a new agent and returns it with its assigned id.
func (s *Store) CreateAgent(ctx context.Context, name, description string) (Agent, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Agent{}, errors.New("agent name is required")
	}
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO agents (name, description, created_at) VALUES (?, ?, ?)`,
		name, description, now.Format(time.RFC3339Nano),
	)
	if err != nil {
		return Agent{}, errors.Wrap(err, "insert agent")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Agent{}, errors.Wrap(err, "agent id")
	}
	return Agent{ID: id, Name: name, Description: description, CreatedAt: now}, nil
}

// Agent reads a single agent.
func (s *Store) Agent(ctx context.Context, agentID int64) (Agent, error) {
	var a Agent
	var createdStr string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, description, created_at FROM agents WHERE id = ?`, agentID,
	).Scan(&a.ID, &a.Name, &a.Description, &createdStr)
	if err == sql.ErrNoRows {
		return Agent{}, errors.Wrapf(ErrAgentNotFound, "agent %d", agentID)
	}
	if err != nil {
		return Agent{}, errors.Wrapf(err, "get agent %d", agentID)
	}
	a.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
	return a, nil
}

// AgentExists reports whether agentID names a stored agent.
func (s *Store) AgentExists(ctx context.Context, agentID int64) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM agents WHERE id = ?`, agentID,
	).Scan(&n)
	if err != nil {
		return false, errors.Wrap(err, "check agent")
	}
	return n > 0, nil
}

// AgentName returns the display name used in remote prompts.
func (s *Store) AgentName(ctx context.Context, agentID int64) (string, error) {
	a, err := s.Agent(ctx, agentID)
	if err != nil {
		return "", err
	}
	return a.Name, nil
}

// ListAgents returns every agent ordered by id.
func (s *Store) ListAgents(ctx context.Context) ([]Agent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, description, created_at FROM agents ORDER BY id`)
	if err != nil {
		return nil, errors.Wrap(err, "list agents")
	}
	defer rows.Close()

	var out []Agent
	for rows.Next() {
		var a Agent
		var createdStr string
		if err := rows.Scan(&a.ID, &a.Name, &a.Description, &createdStr); err != nil {
			return nil, errors.Wrap(err, "scan agent")
		}
		a.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
		out = append(out, a)
	}
	return out, rows.Err()
}

// #endregion agents

// #region contexts

// AddContext attaches a question/answer pair to an agent.
func (s *Store) AddContext(ctx context.Context, agentID int64, ex Example) (Context, error) {
	ex.Question = strings.TrimSpace(ex.Question)
	ex.Answer = strings.TrimSpace(ex.Answer)
	if ex.Question == "" || ex.Answer == "" {
		return Context{}, errors.New("context question and answer are required")
	}
	ok, err := s.AgentExists(ctx, agentID)
	if err != nil {
		return Context{}, err
	}
	if !ok {
		return Context{}, errors.Wrapf(ErrAgentNotFound, "agent %d", agentID)
	}

	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO contexts (agent_id, question, answer, created_at) VALUES (?, ?, ?, ?)`,
		agentID, ex.Question, ex.Answer, now.Format(time.RFC3339Nano),
	)
	if err != nil {
		return Context{}, errors.Wrap(err, "insert context")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Context{}, errors.Wrap(err, "context id")
	}
	return Context{ID: id, AgentID: agentID, Example: ex, CreatedAt: now}, nil
}

// ListContexts returns an agent's examples in insertion order. An agent with
// no contexts yields an empty slice; an unknown agent yields ErrAgentNotFound.
func (s *Store) ListContexts(ctx context.Context, agentID int64) ([]Example, error) {
	ok, err := s.AgentExists(ctx, agentID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.Wrapf(ErrAgentNotFound, "agent %d", agentID)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT question, answer FROM contexts WHERE agent_id = ? ORDER BY id`, agentID)
	if err != nil {
		return nil, errors.Wrap(err, "list contexts")
	}
	defer rows.Close()

	out := []Example{}
	for rows.Next() {
		var ex Example
		if err := rows.Scan(&ex.Question, &ex.Answer); err != nil {
			return nil, errors.Wrap(err, "scan context")
		}
		out = append(out, ex)
	}
	return out, rows.Err()
}

// DeleteContext removes a single context row. Deleting a missing row is a no-op.
func (s *Store) DeleteContext(ctx context.Context, contextID int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM contexts WHERE id = ?`, contextID)
	if err != nil {
		return errors.Wrapf(err, "delete context %d", contextID)
	}
	return nil
}

// #endregion contexts
