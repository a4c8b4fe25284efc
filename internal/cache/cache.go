// Package cache stores resolver decisions and enhanced answers with a TTL,
// either in process (ristretto) or in Redis.
package cache

// #region imports
import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"
	"unicode"
)

// #endregion imports

// #region store

// Store is a string key/value cache with per-entry TTL. A miss is reported as
// ok=false with a nil error; errors are reserved for backend failures.
type Store interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// #endregion store

// #region keys

// NormalizeQuestion lowercases, trims and collapses whitespace so trivially
// different spellings of a question share one cache entry.
func NormalizeQuestion(q string) string {
	return strings.Join(strings.FieldsFunc(strings.ToLower(q), unicode.IsSpace), " ")
}

// DecisionKey keys a resolver decision by agent, model version and normalised
// question. version is the agent's active artifact id, empty when untrained,
// so publishing or activating an artifact retires every earlier entry.
func DecisionKey(agentID int64, version, question string) string {
	return "decision:" + digest(strconv.FormatInt(agentID, 10), version, NormalizeQuestion(question))
}

// EnhancementKey keys an enhanced answer by agent, model version, question and
// draft answer.
func EnhancementKey(agentID int64, version, question, draft string) string {
	return "enhance:" + digest(strconv.FormatInt(agentID, 10), version, NormalizeQuestion(question), draft)
}

func digest(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// #endregion keys
