// Package secrets resolves credential references in configuration values.
//
// A value may be written literally, as env:<VAR>, or as
// keyring:<service>/<user> to read it from the OS keyring.
package secrets

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/zalando/go-keyring"
)

const (
	envScheme     = "env:"
	keyringScheme = "keyring:"
)

// ErrNotFound indicates the referenced secret does not exist.
var ErrNotFound = errors.New("secret not found")

// Resolve returns the secret value referenced by ref. Literal values are
// returned unchanged.
func Resolve(ref string) (string, error) {
	switch {
	case strings.HasPrefix(ref, envScheme):
		name := strings.TrimPrefix(ref, envScheme)
		if name == "" {
			return "", fmt.Errorf("empty env secret reference")
		}
		v, ok := os.LookupEnv(name)
		if !ok {
			return "", fmt.Errorf("%w: env %s", ErrNotFound, name)
		}
		return v, nil

	case strings.HasPrefix(ref, keyringScheme):
		service, user, ok := strings.Cut(strings.TrimPrefix(ref, keyringScheme), "/")
		if !ok || service == "" || user == "" {
			return "", fmt.Errorf("invalid keyring reference %q, want keyring:<service>/<user>", ref)
		}
		v, err := keyring.Get(service, user)
		if errors.Is(err, keyring.ErrNotFound) {
			return "", fmt.Errorf("%w: keyring %s/%s", ErrNotFound, service, user)
		}
		if err != nil {
			return "", fmt.Errorf("keyring %s/%s: %w", service, user, err)
		}
		return v, nil
	}
	return ref, nil
}

// Store saves value in the OS keyring and returns the reference that resolves to it.
func Store(service, user, value string) (string, error) {
	if err := keyring.Set(service, user, value); err != nil {
		return "", fmt.Errorf("keyring %s/%s: %w", service, user, err)
	}
	return keyringScheme + service + "/" + user, nil
}

// IsReference reports whether v is an env: or keyring: reference.
func IsReference(v string) bool {
	return strings.HasPrefix(v, envScheme) || strings.HasPrefix(v, keyringScheme)
}

// Redact returns v suitable for logs: references are shown, literals hidden.
func Redact(v string) string {
	if v == "" || IsReference(v) {
		return v
	}
	return "****"
}
