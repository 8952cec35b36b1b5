// Package secrets resolves credentials given as environment variable
// references or as files (Docker/Kubernetes secrets). Secret values are
// never logged or included in errors.
package secrets

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"github.com/tphakala/parrot-tester/internal/errors"
	"github.com/tphakala/parrot-tester/internal/logger"
)

// maxSecretFileSize limits secret file reads. Secrets are tokens and
// passwords, not large files.
const maxSecretFileSize = 64 * 1024

// ExpandString resolves ${VAR} and ${VAR:-default} references in s.
// A referenced variable that is unset and has no default is an error.
func ExpandString(s string) (string, error) {
	if s == "" {
		return "", nil
	}

	var missing []string
	expanded := os.Expand(s, func(key string) string {
		name, fallback, hasFallback := strings.Cut(key, ":-")
		if value := os.Getenv(name); value != "" {
			return value
		}
		if hasFallback {
			return fallback
		}
		missing = append(missing, name)
		return ""
	})

	if len(missing) > 0 {
		return "", errors.Newf("missing required environment variable(s): %s", strings.Join(missing, ", ")).
			Component("secrets").
			Category(errors.CategoryConfiguration).
			Build()
	}
	return expanded, nil
}

// ReadFile reads a secret from path. Trailing newlines are trimmed; files
// readable by group or others are accepted with a warning.
func ReadFile(fs afero.Fs, path string) (string, error) {
	if path == "" {
		return "", fileError("secret file path is empty", path, nil)
	}
	clean := filepath.Clean(path)

	info, err := fs.Stat(clean)
	if err != nil {
		return "", fileError("secret file unavailable", clean, err)
	}
	if !info.Mode().IsRegular() {
		return "", fileError("secret path is not a regular file", clean, nil)
	}
	if info.Size() > maxSecretFileSize {
		return "", fileError("secret file too large", clean, nil)
	}
	if perm := info.Mode().Perm(); perm&0o077 != 0 {
		logger.Global().Module("secrets").Warn("secret file has group/other permissions",
			logger.String("path", clean),
			logger.String("mode", perm.String()))
	}

	data, err := afero.ReadFile(fs, clean)
	if err != nil {
		return "", fileError("failed to read secret file", clean, err)
	}
	secret := strings.TrimRight(string(data), "\r\n")
	if secret == "" {
		return "", fileError("secret file is empty", clean, nil)
	}
	return secret, nil
}

// Resolve returns the secret from filePath when set, otherwise value with
// environment references expanded.
func Resolve(fs afero.Fs, filePath, value string) (string, error) {
	if filePath != "" {
		return ReadFile(fs, filePath)
	}
	return ExpandString(value)
}

func fileError(msg, path string, cause error) error {
	err := errors.NewStd(msg)
	if cause != nil {
		err = fmt.Errorf("%s: %w", msg, cause)
	}
	return errors.New(err).
		Component("secrets").
		Category(errors.CategoryFileIO).
		Context("path", path).
		Build()
}
