// Package fetch downloads sample files from the remote file store into the
// local staging area.
package fetch

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Credential is the caller-supplied secret used to authorize a download.
type Credential struct {
	// Token is sent in the Authorization header by HTTP fetchers. A bare token
	// is sent as a bearer token.
	Token string
}

// Fetcher downloads remotePath into localPath.
type Fetcher interface {
	Fetch(ctx context.Context, remotePath, localPath string, cred Credential) error
}

// Func adapts a function to the Fetcher interface.
type Func func(ctx context.Context, remotePath, localPath string, cred Credential) error

// Fetch implements Fetcher.
func (f Func) Fetch(ctx context.Context, remotePath, localPath string, cred Credential) error {
	return f(ctx, remotePath, localPath, cred)
}

// writeAtomic streams r into path via a temp file in the same directory so a
// failed download never leaves a partial file at path.
func writeAtomic(path string, r io.Reader) (int64, error) {
	dir := filepath.Dir(path)
	// #nosec G301 -- staging directories use 0755 for multi-user access compatibility
	if err := os.MkdirAll(dir, 0755); err != nil {
		return 0, fmt.Errorf("create staging dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".part.*")
	if err != nil {
		return 0, fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	n, err := io.Copy(tmp, r)
	if err != nil {
		_ = tmp.Close()
		return n, fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return n, fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return n, fmt.Errorf("rename into place: %w", err)
	}
	return n, nil
}

// authorization renders the Authorization header value for token.
func authorization(token string) string {
	token = strings.TrimSpace(token)
	if token == "" || strings.Contains(token, " ") {
		return token
	}
	return "Bearer " + token
}
