package config

import (
	"fmt"
	"os"
	"strings"
)

// ResolveSecret returns the secret called name. NAME_FILE, when set, names
// a file holding the secret and wins over NAME. A missing secret is empty.
func ResolveSecret(name string) (string, error) {
	fileVar := name + "_FILE"
	if path, ok := os.LookupEnv(fileVar); ok && path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			// The error names the file, never its content.
			return "", fmt.Errorf("failed to read secret from %s=%s: %w", fileVar, path, err)
		}
		return strings.TrimSpace(string(b)), nil
	}
	return os.Getenv(name), nil
}

// ResolveSecrets resolves several secrets and stops at the first error.
func ResolveSecrets(names ...string) (map[string]string, error) {
	out := make(map[string]string, len(names))
	for _, name := range names {
		v, err := ResolveSecret(name)
		if err != nil {
			return nil, err
		}
		out[name] = v
	}
	return out, nil
}
