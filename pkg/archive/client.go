package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/3leaps/seqsubmit/pkg/job"
)

// Drop-box endpoints.
const (
	DevelopmentURL = "https://wwwdev.ebi.ac.uk/ena/submit/drop-box/submit/"
	ProductionURL  = "https://www.ebi.ac.uk/ena/submit/drop-box/submit/"
)

// maxReceiptBytes bounds how much of a response body is read.
const maxReceiptBytes = 8 << 20

// Documents is one post. Submission is always sent; the rest are sent when set.
type Documents struct {
	Submission SubmissionEnvelope
	Project    *ProjectSet
	Sample     *SampleSet
	Experiment *ExperimentSet
	Run        *RunSet
}

// Submitter posts documents to the archive.
//
// Both methods return the parsed receipt. A receipt with success="false" is
// returned together with a SubmissionRejected error carrying its messages.
type Submitter interface {
	Submit(ctx context.Context, docs Documents) (*Receipt, error)
	Release(ctx context.Context, accession string) (*Receipt, error)
}

// Config configures a Client.
type Config struct {
	// URL overrides the drop-box endpoint chosen by Development.
	URL string

	// Development selects the test drop-box when URL is empty.
	Development bool

	Username string
	Password string

	// Timeout bounds one post. Zero uses 5 minutes.
	Timeout time.Duration
}

// Endpoint returns the drop-box URL c resolves to.
func (c Config) Endpoint() string {
	if c.URL != "" {
		return c.URL
	}
	if c.Development {
		return DevelopmentURL
	}
	return ProductionURL
}

// Client posts multipart submissions with HTTP basic auth.
type Client struct {
	cfg    Config
	http   *http.Client
	logger *zap.Logger
}

var _ Submitter = (*Client)(nil)

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.http = c }
}

// WithLogger sets the client logger.
func WithLogger(l *zap.Logger) Option {
	return func(cl *Client) {
		if l != nil {
			cl.logger = l
		}
	}
}

// NewClient creates a Client. Missing credentials are a configuration error.
func NewClient(cfg Config, opts ...Option) (*Client, error) {
	if cfg.Username == "" || cfg.Password == "" {
		return nil, job.NewError("archive", job.ErrConfiguration, errors.New("archive username and password are required"))
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	c := &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: timeout},
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Submit posts docs and returns the receipt.
func (c *Client) Submit(ctx context.Context, docs Documents) (*Receipt, error) {
	parts := []part{{name: "SUBMISSION", doc: docs.Submission}}
	if docs.Project != nil {
		parts = append(parts, part{name: "PROJECT", doc: docs.Project})
	}
	if docs.Sample != nil {
		parts = append(parts, part{name: "SAMPLE", doc: docs.Sample})
	}
	if docs.Experiment != nil {
		parts = append(parts, part{name: "EXPERIMENT", doc: docs.Experiment})
	}
	if docs.Run != nil {
		parts = append(parts, part{name: "RUN", doc: docs.Run})
	}
	return c.post(ctx, "submit", parts)
}

// Release posts a RELEASE action for accession.
func (c *Client) Release(ctx context.Context, accession string) (*Receipt, error) {
	env := Builder{}.Release(accession)
	return c.post(ctx, "release", []part{{name: "SUBMISSION", doc: env}})
}

type part struct {
	name string
	doc  any
}

func (c *Client) post(ctx context.Context, op string, parts []part) (*Receipt, error) {
	body, contentType, err := encodeParts(parts)
	if err != nil {
		return nil, job.NewError(op, nil, err)
	}

	endpoint := c.cfg.Endpoint()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, job.NewError(op, job.ErrTransport, err)
	}
	req.SetBasicAuth(c.cfg.Username, c.cfg.Password)
	req.Header.Set("Accept", "application/xml")
	req.Header.Set("Content-Type", contentType)

	names := make([]string, len(parts))
	for i, p := range parts {
		names[i] = p.name
	}
	c.logger.Debug("Posting to archive",
		zap.String("op", op),
		zap.String("url", endpoint),
		zap.Strings("parts", names))

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, job.NewError(op, job.ErrTransport, err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxReceiptBytes))
	if err != nil {
		return nil, job.NewError(op, job.ErrTransport, fmt.Errorf("read receipt: %w", err))
	}

	receipt, parseErr := ParseReceipt(raw)
	if parseErr != nil {
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return nil, job.NewError(op, job.ErrTransport,
				fmt.Errorf("status %d: %s", resp.StatusCode, truncate(strings.TrimSpace(string(raw)), 512)))
		}
		return nil, job.NewError(op, job.ErrTransport, parseErr)
	}

	if !receipt.Accepted() {
		msgs := receipt.ErrorMessages()
		c.logger.Warn("Archive rejected submission",
			zap.String("op", op),
			zap.Strings("messages", msgs))
		return receipt, job.Rejected(op, msgs)
	}
	return receipt, nil
}

func encodeParts(parts []part) ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for _, p := range parts {
		data, err := Encode(p.doc)
		if err != nil {
			return nil, "", err
		}
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, p.name, p.name+".xml"))
		h.Set("Content-Type", "application/xml")
		pw, err := w.CreatePart(h)
		if err != nil {
			return nil, "", err
		}
		if _, err := pw.Write(data); err != nil {
			return nil, "", err
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
