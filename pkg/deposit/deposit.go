// Package deposit uploads converted sequence files to the archive's bulk
// transfer area.
package deposit

import (
	"context"
	"fmt"
	"path"
	"strings"
)

// Dialer opens deposit sessions.
type Dialer interface {
	Connect(ctx context.Context, host, user, password string) (Session, error)
}

// Session is an authenticated connection to the deposit area.
type Session interface {
	// Upload copies localPath to remoteName in the deposit area.
	Upload(ctx context.Context, localPath, remoteName string) error
	Close() error
}

// cleanName validates a remote file name. Deposit areas are flat, so names
// must not contain directory components.
func cleanName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) || path.Base(name) != name {
		return "", fmt.Errorf("invalid remote name %q", name)
	}
	return name, nil
}
