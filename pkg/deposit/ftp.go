package deposit

import (
	"context"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/jlaffaye/ftp"
	"go.uber.org/zap"
)

// DefaultFTPPort is appended to hosts given without a port.
const DefaultFTPPort = "21"

// FTPDialer connects to an FTP deposit area such as webin.ebi.ac.uk.
type FTPDialer struct {
	// Timeout bounds connection setup and each command. Zero uses 30s.
	Timeout time.Duration

	Logger *zap.Logger
}

var _ Dialer = (*FTPDialer)(nil)

// Connect dials host and logs in.
func (d *FTPDialer) Connect(ctx context.Context, host, user, password string) (Session, error) {
	timeout := d.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	addr := ftpAddr(host)
	conn, err := ftp.Dial(addr, ftp.DialWithContext(ctx), ftp.DialWithTimeout(timeout))
	if err != nil {
		return nil, fmt.Errorf("ftp connect %s: %w", addr, err)
	}
	if err := conn.Login(user, password); err != nil {
		_ = conn.Quit()
		return nil, fmt.Errorf("ftp login %s: %w", addr, err)
	}

	logger.Debug("FTP session opened", zap.String("addr", addr), zap.String("user", user))
	return &ftpSession{conn: conn, addr: addr, logger: logger}, nil
}

// ftpAddr returns host with DefaultFTPPort unless it already names a port.
func ftpAddr(host string) string {
	if _, _, err := net.SplitHostPort(host); err == nil {
		return host
	}
	return net.JoinHostPort(host, DefaultFTPPort)
}

type ftpSession struct {
	conn   *ftp.ServerConn
	addr   string
	logger *zap.Logger
}

func (s *ftpSession) Upload(ctx context.Context, localPath, remoteName string) error {
	name, err := cleanName(remoteName)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	f, err := os.Open(localPath) // #nosec G304 -- local path is inside the job staging dir
	if err != nil {
		return fmt.Errorf("open %s: %w", localPath, err)
	}
	defer func() { _ = f.Close() }()

	start := time.Now()
	if err := s.conn.Stor(name, f); err != nil {
		return fmt.Errorf("ftp put %s: %w", name, err)
	}
	s.logger.Debug("Uploaded file",
		zap.String("addr", s.addr),
		zap.String("remote_name", name),
		zap.Duration("elapsed", time.Since(start)))
	return nil
}

func (s *ftpSession) Close() error {
	return s.conn.Quit()
}
