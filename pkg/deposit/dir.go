package deposit

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// DirDialer deposits files into a local directory. It backs dry runs and
// sites that mount the deposit area as a filesystem. Credentials are ignored.
type DirDialer struct {
	BaseDir string
}

var _ Dialer = (*DirDialer)(nil)

// Connect returns a session writing under BaseDir, or under BaseDir/host when
// host is set.
func (d *DirDialer) Connect(ctx context.Context, host, _, _ string) (Session, error) {
	_ = ctx
	if strings.TrimSpace(d.BaseDir) == "" {
		return nil, fmt.Errorf("deposit dir is required")
	}
	dir := filepath.Clean(d.BaseDir)
	if host != "" {
		h, err := cleanName(host)
		if err != nil {
			return nil, err
		}
		dir = filepath.Join(dir, h)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create deposit dir: %w", err)
	}
	return &dirSession{dir: dir}, nil
}

type dirSession struct {
	dir string
}

func (s *dirSession) Upload(ctx context.Context, localPath, remoteName string) error {
	name, err := cleanName(remoteName)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	src, err := os.Open(localPath) // #nosec G304 -- local path is inside the job staging dir
	if err != nil {
		return fmt.Errorf("open %s: %w", localPath, err)
	}
	defer func() { _ = src.Close() }()

	tmp, err := os.CreateTemp(s.dir, "seqsubmit-put-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}()

	if _, err := io.Copy(tmp, src); err != nil {
		return fmt.Errorf("copy %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, filepath.Join(s.dir, name))
}

func (s *dirSession) Close() error { return nil }
