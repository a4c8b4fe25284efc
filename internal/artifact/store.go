package artifact

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	_ "modernc.org/sqlite"
)

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS classifier_artifacts (
	artifact_id     TEXT PRIMARY KEY,
	agent_id        INTEGER NOT NULL,
	vectorizer_path TEXT NOT NULL,
	classifier_path TEXT NOT NULL,
	examples_count  INTEGER NOT NULL,
	augmented_count INTEGER NOT NULL,
	best_score      REAL NOT NULL,
	best_params     TEXT NOT NULL,
	is_active       INTEGER NOT NULL DEFAULT 0,
	created_at      TEXT NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_artifacts_one_active
	ON classifier_artifacts(agent_id) WHERE is_active = 1;

CREATE INDEX IF NOT EXISTS idx_artifacts_agent_created
	ON classifier_artifacts(agent_id, created_at);
`

// #endregion schema

// #region store-struct

// Store manages versioned classifier artifacts: metadata in SQLite, blobs in
// files under blobDir.
type Store struct {
	db      *sql.DB
	blobDir string
	now     func() time.Time
}

// #endregion store-struct

// #region constructor

// Open opens a SQLite database, runs migrations and prepares the blob directory.
func Open(dbPath, blobDir string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, errors.Wrap(err, "open db")
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "pragma")
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "pragma fk")
	}
	s, err := NewStore(db, blobDir)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewStore runs the artifact migrations on an existing db.
func NewStore(db *sql.DB, blobDir string) (*Store, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, errors.Wrap(err, "migrate")
	}
	if err := os.MkdirAll(blobDir, 0o755); err != nil {
		return nil, errors.Wrap(err, "create blob dir")
	}
	return &Store{db: db, blobDir: blobDir, now: time.Now}, nil
}

// #endregion constructor

// #region close

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB so the context store and audit log can share it.
func (s *Store) DB() *sql.DB {
	return s.db
}

// #endregion close

// #region publish

// Publish writes the blobs of a new artifact and makes it the agent's only
// active artifact. Blobs are written to temp files and renamed into place
// before the metadata row is inserted; the insert and the deactivation of the
// previous artifact share one transaction. rec.ArtifactID is assigned when empty.
func (s *Store) Publish(ctx context.Context, rec Record, blobs map[Kind][]byte) (Record, error) {
	for _, k := range Kinds {
		if _, ok := blobs[k]; !ok {
			return Record{}, errors.Errorf("missing %s blob", k)
		}
	}
	if rec.ArtifactID == "" {
		rec.ArtifactID = uuid.New().String()
	}
	if rec.BestParams == "" {
		rec.BestParams = "{}"
	}
	rec.CreatedAt = s.now().UTC()

	dir := filepath.Join(s.blobDir, "agent_"+strconv.FormatInt(rec.AgentID, 10), rec.ArtifactID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Record{}, errors.Wrap(err, "create artifact dir")
	}
	for _, k := range Kinds {
		path := filepath.Join(dir, string(k)+".json")
		if err := writeFileAtomic(path, blobs[k]); err != nil {
			return Record{}, errors.Wrapf(err, "write %s blob", k)
		}
		switch k {
		case KindVectorizer:
			rec.VectorizerPath = path
		case KindClassifier:
			rec.ClassifierPath = path
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Record{}, errors.Wrap(err, "begin tx")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`UPDATE classifier_artifacts SET is_active = 0 WHERE agent_id = ? AND is_active = 1`,
		rec.AgentID,
	); err != nil {
		return Record{}, errors.Wrap(err, "deactivate previous")
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO classifier_artifacts
		 (artifact_id, agent_id, vectorizer_path, classifier_path, examples_count, augmented_count,
		  best_score, best_params, is_active, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, 1, ?)`,
		rec.ArtifactID, rec.AgentID, rec.VectorizerPath, rec.ClassifierPath,
		rec.ExamplesCount, rec.AugmentedCount, rec.BestScore, rec.BestParams,
		rec.CreatedAt.Format(time.RFC3339Nano),
	); err != nil {
		return Record{}, errors.Wrap(err, "insert artifact")
	}

	if err := tx.Commit(); err != nil {
		return Record{}, errors.Wrap(err, "commit")
	}
	rec.IsActive = true
	return rec, nil
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// #endregion publish

// #region active

const selectColumns = `artifact_id, agent_id, vectorizer_path, classifier_path, examples_count,
	augmented_count, best_score, best_params, is_active, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (Record, error) {
	var rec Record
	var active int
	var createdStr string
	if err := row.Scan(&rec.ArtifactID, &rec.AgentID, &rec.VectorizerPath, &rec.ClassifierPath,
		&rec.ExamplesCount, &rec.AugmentedCount, &rec.BestScore, &rec.BestParams,
		&active, &createdStr); err != nil {
		return Record{}, err
	}
	rec.IsActive = active == 1
	rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
	return rec, nil
}

// Active returns the agent's active artifact or ErrNotFound.
func (s *Store) Active(ctx context.Context, agentID int64) (Record, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+selectColumns+` FROM classifier_artifacts WHERE agent_id = ? AND is_active = 1`,
		agentID,
	)
	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return Record{}, errors.Wrapf(ErrNotFound, "agent %d has no active artifact", agentID)
	}
	if err != nil {
		return Record{}, errors.Wrap(err, "get active")
	}
	return rec, nil
}

// Get reads one artifact by id, active or not.
func (s *Store) Get(ctx context.Context, artifactID string) (Record, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+selectColumns+` FROM classifier_artifacts WHERE artifact_id = ?`, artifactID,
	)
	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return Record{}, errors.Wrapf(ErrNotFound, "artifact %s", artifactID)
	}
	if err != nil {
		return Record{}, errors.Wrapf(err, "get artifact %s", artifactID)
	}
	return rec, nil
}

// ReadBlob loads one blob of rec from disk.
func (s *Store) ReadBlob(rec Record, kind Kind) ([]byte, error) {
	path := rec.Path(kind)
	if path == "" {
		return nil, errors.Errorf("unknown blob kind %q", kind)
	}
	b, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, errors.Wrapf(ErrNotFound, "%s blob of %s", kind, rec.ArtifactID)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "read %s blob", kind)
	}
	return b, nil
}

// #endregion active

// #region activate

// Activate points the agent's active flag at a previously published artifact.
func (s *Store) Activate(ctx context.Context, artifactID string) (Record, error) {
	rec, err := s.Get(ctx, artifactID)
	if err != nil {
		return Record{}, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Record{}, errors.Wrap(err, "begin tx")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`UPDATE classifier_artifacts SET is_active = 0 WHERE agent_id = ? AND is_active = 1`,
		rec.AgentID,
	); err != nil {
		return Record{}, errors.Wrap(err, "deactivate current")
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE classifier_artifacts SET is_active = 1 WHERE artifact_id = ?`, artifactID,
	); err != nil {
		return Record{}, errors.Wrap(err, "activate")
	}
	if err := tx.Commit(); err != nil {
		return Record{}, errors.Wrap(err, "commit")
	}
	rec.IsActive = true
	return rec, nil
}

// #endregion activate

// #region list

// List returns the agent's artifacts, newest first. limit <= 0 means no limit.
func (s *Store) List(ctx context.Context, agentID int64, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+selectColumns+` FROM classifier_artifacts
		 WHERE agent_id = ? ORDER BY created_at DESC, rowid DESC LIMIT ?`,
		agentID, limit,
	)
	if err != nil {
		return nil, errors.Wrap(err, "list artifacts")
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan artifact")
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// #endregion list
