package main

import (
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
)

// loadDotEnv reads dataDir/.env. A missing file yields an empty map.
func loadDotEnv(dataDir string) (map[string]string, error) {
	env := make(map[string]string)
	content, err := os.ReadFile(filepath.Join(dataDir, ".env")) //nolint:gosec // G304: path is constructed from dataDir flag, not user input
	if err != nil {
		if os.IsNotExist(err) {
			return env, nil
		}
		return nil, err
	}
	for line := range strings.SplitSeq(string(content), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, val, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		val = strings.TrimSpace(val)
		if strings.HasPrefix(val, "'") || strings.HasSuffix(val, "'") {
			return nil, fmt.Errorf("single quotes are not supported in .env: %s", key)
		}
		if strings.HasPrefix(val, `"`) {
			if val, err = strconv.Unquote(val); err != nil {
				return nil, fmt.Errorf("failed to unquote %s: %w", key, err)
			}
		}
		env[key] = val
	}
	return env, nil
}

// saveDotEnv writes the non-empty values of env to dataDir/.env, sorted by
// key. Values that would not survive loadDotEnv verbatim are double quoted.
func saveDotEnv(dataDir string, env map[string]string) error {
	var b strings.Builder
	for _, k := range slices.Sorted(maps.Keys(env)) {
		v := env[k]
		if v == "" {
			continue
		}
		if v != strings.TrimSpace(v) || strings.ContainsAny(v, "\"'\n#") {
			v = strconv.Quote(v)
		}
		fmt.Fprintf(&b, "%s=%s\n", k, v)
	}
	return os.WriteFile(filepath.Join(dataDir, ".env"), []byte(b.String()), 0o600)
}
