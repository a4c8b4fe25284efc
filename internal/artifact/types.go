package artifact

import (
	"time"

	"github.com/pkg/errors"
)

// #region kinds

// Kind names one blob of a trained artifact.
type Kind string

const (
	KindVectorizer Kind = "vectorizer"
	KindClassifier Kind = "classifier"
)

// Kinds lists every blob a complete artifact carries.
var Kinds = []Kind{KindVectorizer, KindClassifier}

// #endregion kinds

// #region errors

// ErrNotFound is returned when an agent has no active artifact or an id is unknown.
var ErrNotFound = errors.New("artifact not found")

// #endregion errors

// #region record

// Record is the metadata row for one trained classifier artifact. Blobs live on
// disk; the row points at them.
type Record struct {
	ArtifactID     string
	AgentID        int64
	VectorizerPath string
	ClassifierPath string
	ExamplesCount  int
	AugmentedCount int
	BestScore      float64
	BestParams     string // JSON, e.g. {"alpha":0.5,"ngram_max":2}
	IsActive       bool
	CreatedAt      time.Time
}

// Path returns the blob path recorded for kind.
func (r Record) Path(kind Kind) string {
	switch kind {
	case KindVectorizer:
		return r.VectorizerPath
	case KindClassifier:
		return r.ClassifierPath
	}
	return ""
}

// #endregion record
