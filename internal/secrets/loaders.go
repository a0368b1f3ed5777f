package secrets

import (
	"fmt"
	"os"
	"strings"
)

// EnvLoader returns a Loader that reads the specified environment variables.
// Missing variables are silently omitted from the result map.
func EnvLoader(keys ...string) Loader {
	return func() (map[string]string, error) {
		vals := make(map[string]string, len(keys))
		for _, k := range keys {
			if v := os.Getenv(k); v != "" {
				vals[k] = v
			}
		}
		return vals, nil
	}
}

// FileLoader returns a Loader reading each key from the file at its path,
// trimmed of surrounding whitespace. Empty paths are skipped; an unreadable
// file is an error.
func FileLoader(paths map[string]string) Loader {
	return func() (map[string]string, error) {
		vals := make(map[string]string, len(paths))
		for key, path := range paths {
			if path == "" {
				continue
			}
			data, err := os.ReadFile(path) //nolint:gosec // G304: path comes from operator config
			if err != nil {
				return nil, fmt.Errorf("read secret %s: %w", key, err)
			}
			if v := strings.TrimSpace(string(data)); v != "" {
				vals[key] = v
			}
		}
		return vals, nil
	}
}

// Merge combines loaders. A key set by a later loader wins.
func Merge(loaders ...Loader) Loader {
	return func() (map[string]string, error) {
		out := make(map[string]string)
		for _, l := range loaders {
			vals, err := l()
			if err != nil {
				return nil, err
			}
			for k, v := range vals {
				out[k] = v
			}
		}
		return out, nil
	}
}
