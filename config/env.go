package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/c360/relaybridge/errors"
)

// envDefault returns the trimmed value of key, or def when unset or blank.
func envDefault(key, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return strings.TrimSpace(v)
	}
	return def
}

// envList splits a comma-separated variable into trimmed non-empty entries.
func envList(key string) []string {
	raw := os.Getenv(key)
	if strings.TrimSpace(raw) == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// envBool parses a boolean variable. Accepts the strconv.ParseBool forms;
// unset or unparseable values fall back to def.
func envBool(key string, def bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return def
	}
	return v
}

// envInt parses an integer variable. Unset uses def; a set but unparseable
// value is a fatal configuration error.
func envInt(key string, def int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.WrapFatal(err, "config", "Load", fmt.Sprintf("%s must be an integer", key))
	}
	return v, nil
}
