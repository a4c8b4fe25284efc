package logging

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"time"

	"github.com/pkg/errors"
)

// #region schema
const resolutionSchema = `
CREATE TABLE IF NOT EXISTS resolution_log (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	agent_id        INTEGER NOT NULL,
	question_hash   TEXT NOT NULL,
	source          TEXT NOT NULL,
	confidence      REAL NOT NULL,
	in_scope        INTEGER NOT NULL,
	cache_hit       INTEGER NOT NULL,
	top_probability REAL,
	probability_gap REAL,
	reason          TEXT,
	created_at      TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_resolution_agent ON resolution_log(agent_id, created_at);
`

// #endregion schema

// #region entry

// ResolutionEntry is one row of the resolution_log table. Questions are stored
// only as a hash.
type ResolutionEntry struct {
	AgentID        int64
	QuestionHash   string
	Source         string
	Confidence     float64
	InScope        bool
	CacheHit       bool
	TopProbability *float64 // nil when no classification ran
	ProbabilityGap *float64
	Reason         string
	CreatedAt      time.Time
}

// HashQuestion returns the hex sha256 of a question.
func HashQuestion(q string) string {
	sum := sha256.Sum256([]byte(q))
	return hex.EncodeToString(sum[:])
}

// #endregion entry

// #region audit-log

// AuditLog persists resolver decisions in SQLite.
type AuditLog struct {
	db *sql.DB
}

// NewAuditLog creates the resolution_log table if needed.
func NewAuditLog(db *sql.DB) (*AuditLog, error) {
	if _, err := db.Exec(resolutionSchema); err != nil {
		return nil, errors.Wrap(err, "migrate resolution_log")
	}
	return &AuditLog{db: db}, nil
}

// LogDecision writes a provenance entry to the resolution_log table.
func (a *AuditLog) LogDecision(ctx context.Context, entry ResolutionEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := a.db.ExecContext(ctx,
		`INSERT INTO resolution_log (agent_id, question_hash, source, confidence, in_scope, cache_hit,
		 top_probability, probability_gap, reason, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.AgentID,
		entry.QuestionHash,
		entry.Source,
		entry.Confidence,
		boolInt(entry.InScope),
		boolInt(entry.CacheHit),
		nullFloat(entry.TopProbability),
		nullFloat(entry.ProbabilityGap),
		nullIfEmpty(entry.Reason),
		formatTime(entry.CreatedAt),
	)
	if err != nil {
		return errors.Wrap(err, "log decision")
	}
	return nil
}

// Recent returns the newest entries for an agent, newest first.
func (a *AuditLog) Recent(ctx context.Context, agentID int64, limit int) ([]ResolutionEntry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := a.db.QueryContext(ctx,
		`SELECT agent_id, question_hash, source, confidence, in_scope, cache_hit,
		        top_probability, probability_gap, reason, created_at
		 FROM resolution_log WHERE agent_id = ? ORDER BY id DESC LIMIT ?`, agentID, limit)
	if err != nil {
		return nil, errors.Wrap(err, "query resolution_log")
	}
	defer rows.Close()

	var out []ResolutionEntry
	for rows.Next() {
		var e ResolutionEntry
		var inScope, cacheHit int
		var top, gap sql.NullFloat64
		var reason sql.NullString
		var created string
		if err := rows.Scan(&e.AgentID, &e.QuestionHash, &e.Source, &e.Confidence, &inScope, &cacheHit,
			&top, &gap, &reason, &created); err != nil {
			return nil, errors.Wrap(err, "scan resolution_log")
		}
		e.InScope = inScope == 1
		e.CacheHit = cacheHit == 1
		if top.Valid {
			v := top.Float64
			e.TopProbability = &v
		}
		if gap.Valid {
			v := gap.Float64
			e.ProbabilityGap = &v
		}
		e.Reason = reason.String
		e.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		out = append(out, e)
	}
	return out, rows.Err()
}

// CountBySource tallies an agent's logged decisions per source.
func (a *AuditLog) CountBySource(ctx context.Context, agentID int64) (map[string]int, error) {
	rows, err := a.db.QueryContext(ctx,
		`SELECT source, COUNT(*) FROM resolution_log WHERE agent_id = ? GROUP BY source`, agentID)
	if err != nil {
		return nil, errors.Wrap(err, "count resolution_log")
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var source string
		var n int
		if err := rows.Scan(&source, &n); err != nil {
			return nil, errors.Wrap(err, "scan count")
		}
		out[source] = n
	}
	return out, rows.Err()
}

// #endregion audit-log

// #region helpers
func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func nullFloat(f *float64) interface{} {
	if f == nil {
		return nil
	}
	return *f
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// #endregion helpers
