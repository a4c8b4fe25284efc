package main

// #region imports
import (
	"encoding/json"
	"io"
	"strconv"

	"github.com/pkg/errors"
)

// #endregion imports

// #region helpers
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}

func parseID(arg, what string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.Errorf("invalid %s id %q", what, arg)
	}
	return id, nil
}

// #endregion helpers
