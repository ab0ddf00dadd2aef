package fetch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// DefaultStripPrefix is removed from sample file paths before they are
// requested from the media API.
const DefaultStripPrefix = "/iplant/home"

// HTTPConfig configures an HTTPFetcher.
type HTTPConfig struct {
	// BaseURL is the file API root, e.g. https://agave.example.org.
	BaseURL string

	// MediaPath is the download endpoint below BaseURL. Defaults to /files/v2/media.
	MediaPath string

	// StripPrefix is removed from remote paths. Defaults to DefaultStripPrefix;
	// set to "/" to disable.
	StripPrefix string

	// Timeout bounds one download. Zero means no timeout beyond ctx.
	Timeout time.Duration

	// RateLimit caps requests per second across all jobs. Zero disables limiting.
	RateLimit float64

	// Burst is the limiter burst size. Defaults to 1.
	Burst int
}

// HTTPFetcher downloads files from an authenticated HTTP media API.
type HTTPFetcher struct {
	cfg     HTTPConfig
	client  *http.Client
	limiter *rate.Limiter
	logger  *zap.Logger
}

var _ Fetcher = (*HTTPFetcher)(nil)

// HTTPOption customizes an HTTPFetcher.
type HTTPOption func(*HTTPFetcher)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(f *HTTPFetcher) { f.client = c }
}

// WithLogger sets the logger used for download diagnostics.
func WithLogger(l *zap.Logger) HTTPOption {
	return func(f *HTTPFetcher) {
		if l != nil {
			f.logger = l
		}
	}
}

// NewHTTP creates an HTTPFetcher.
func NewHTTP(cfg HTTPConfig, opts ...HTTPOption) (*HTTPFetcher, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, errors.New("fetch base url is required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid fetch base url: %w", err)
	}
	if cfg.MediaPath == "" {
		cfg.MediaPath = "/files/v2/media"
	}
	if cfg.StripPrefix == "" {
		cfg.StripPrefix = DefaultStripPrefix
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}

	f := &HTTPFetcher{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: zap.NewNop(),
	}
	if cfg.RateLimit > 0 {
		f.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.Burst)
	}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

// RemotePath maps a sample file path to the path requested from the media API.
func (f *HTTPFetcher) RemotePath(path string) string {
	return StripPrefix(path, f.cfg.StripPrefix)
}

// StripPrefix removes prefix from path when path starts with it. A prefix of
// "/" leaves path unchanged.
func StripPrefix(path, prefix string) string {
	if prefix == "" || prefix == "/" {
		return path
	}
	prefix = strings.TrimRight(prefix, "/")
	if path == prefix {
		return "/"
	}
	if strings.HasPrefix(path, prefix+"/") {
		return strings.TrimPrefix(path, prefix)
	}
	return path
}

// mediaURL returns the download URL for remotePath. Each path segment is
// escaped so names containing '#', '?', '%' or spaces address the right file.
func (f *HTTPFetcher) mediaURL(remotePath string) string {
	segments := strings.Split(strings.Trim(f.RemotePath(remotePath), "/"), "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return strings.TrimRight(f.cfg.BaseURL, "/") + "/" + strings.Trim(f.cfg.MediaPath, "/") + "/" +
		strings.Join(segments, "/")
}

// Fetch downloads remotePath into localPath.
func (f *HTTPFetcher) Fetch(ctx context.Context, remotePath, localPath string, cred Credential) error {
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx); err != nil {
			return &Error{Op: "Get", Source: "http", Path: remotePath, Err: err}
		}
	}

	target := f.mediaURL(remotePath)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return &Error{Op: "Get", Source: "http", Path: remotePath, Err: err}
	}
	if auth := authorization(cred.Token); auth != "" {
		req.Header.Set("Authorization", auth)
	}

	start := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		return &Error{Op: "Get", Source: "http", Path: remotePath, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &Error{
			Op:     "Get",
			Source: "http",
			Path:   remotePath,
			Status: resp.StatusCode,
			Err:    statusError(resp.StatusCode, strings.TrimSpace(string(body))),
		}
	}

	// The media API reports some failures as a 200 with a JSON error envelope.
	if isJSON(resp.Header.Get("Content-Type")) {
		var envelope struct {
			Status  string `json:"status"`
			Message string `json:"message"`
		}
		body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return &Error{Op: "Get", Source: "http", Path: remotePath, Err: err}
		}
		if json.Unmarshal(body, &envelope) == nil && strings.EqualFold(envelope.Status, "error") {
			return &Error{Op: "Get", Source: "http", Path: remotePath, Status: resp.StatusCode, Err: errors.New(envelope.Message)}
		}
		n, err := writeAtomic(localPath, bytes.NewReader(body))
		if err != nil {
			return &Error{Op: "Write", Source: "http", Path: remotePath, Err: err}
		}
		f.logDone(remotePath, localPath, n, start)
		return nil
	}

	n, err := writeAtomic(localPath, resp.Body)
	if err != nil {
		return &Error{Op: "Write", Source: "http", Path: remotePath, Err: err}
	}
	f.logDone(remotePath, localPath, n, start)
	return nil
}

func (f *HTTPFetcher) logDone(remotePath, localPath string, n int64, start time.Time) {
	f.logger.Debug("Fetched file",
		zap.String("remote_path", remotePath),
		zap.String("local_path", localPath),
		zap.Int64("bytes", n),
		zap.Duration("elapsed", time.Since(start)))
}

func statusError(code int, body string) error {
	var base error
	switch {
	case code == http.StatusNotFound:
		base = ErrNotFound
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		base = ErrAccessDenied
	case code == http.StatusTooManyRequests:
		base = ErrThrottled
	case code >= 500:
		base = ErrUnavailable
	default:
		base = fmt.Errorf("unexpected status %d", code)
	}
	if body == "" {
		return base
	}
	return fmt.Errorf("%w: %s", base, body)
}

func isJSON(contentType string) bool {
	mt, _, err := mime.ParseMediaType(contentType)
	return err == nil && (mt == "application/json" || strings.HasSuffix(mt, "+json"))
}
