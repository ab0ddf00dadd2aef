// Package errors maps job and service failures to HTTP error envelopes and
// process exit codes.
package errors

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"

	"github.com/fulmenhq/gofulmen/foundry"
	"go.uber.org/zap"

	"github.com/3leaps/seqsubmit/pkg/job"
)

// Error codes used in HTTP envelopes.
const (
	CodeBadRequest         = "BAD_REQUEST"
	CodeNotFound           = "NOT_FOUND"
	CodeMethodNotAllowed   = "METHOD_NOT_ALLOWED"
	CodeConflict           = "CONFLICT"
	CodeUnprocessable      = "UNPROCESSABLE_ENTITY"
	CodeInternal           = "INTERNAL_ERROR"
	CodeServiceUnavailable = "SERVICE_UNAVAILABLE"
	CodeBadGateway         = "BAD_GATEWAY"
)

// Exit codes from the foundry catalog.
var (
	ExitInvalidArgument            = int(foundry.ExitInvalidArgument)
	ExitExternalServiceUnavailable = int(foundry.ExitExternalServiceUnavailable)
	ExitFileNotFound               = int(foundry.ExitFileNotFound)
	ExitFileReadError              = int(foundry.ExitFileReadError)
	ExitFileWriteError             = int(foundry.ExitFileWriteError)
	ExitSignalInt                  = int(foundry.ExitSignalInt)
	ExitFailure                    = 1
)

// AppError is an error with an HTTP status and a stable code.
type AppError struct {
	Code    string
	Status  int
	Message string
	Details map[string]any
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *AppError) Unwrap() error { return e.Err }

// WithDetails attaches extra context rendered in the envelope.
func (e *AppError) WithDetails(details map[string]any) *AppError {
	e.Details = details
	return e
}

// HTTPError is the body of HTTPErrorResponse.
type HTTPError struct {
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	RequestID string         `json:"request_id,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
}

// HTTPErrorResponse is the JSON error envelope returned by the ops server.
type HTTPErrorResponse struct {
	Error HTTPError `json:"error"`
}

// New builds an AppError.
func New(status int, code, message string) *AppError {
	return &AppError{Code: code, Status: status, Message: message}
}

// NewNotFound reports a missing route or resource.
func NewNotFound(message string) *AppError {
	return New(http.StatusNotFound, CodeNotFound, message)
}

// NewMethodNotAllowed reports a route that exists for other methods.
func NewMethodNotAllowed(message string) *AppError {
	return New(http.StatusMethodNotAllowed, CodeMethodNotAllowed, message)
}

// NewServiceUnavailable reports a failing dependency or health check.
func NewServiceUnavailable(message string) *AppError {
	return New(http.StatusServiceUnavailable, CodeServiceUnavailable, message)
}

// NewExternalServiceError reports an unreachable remote service.
func NewExternalServiceError(message string) *AppError {
	return New(http.StatusBadGateway, CodeBadGateway, message)
}

// WrapInternal wraps err as a 500. The request id in ctx, if any, is kept
// in the details.
func WrapInternal(ctx context.Context, err error, message string) *AppError {
	e := New(http.StatusInternalServerError, CodeInternal, message)
	e.Err = err
	if id := RequestIDFromContext(ctx); id != "" {
		e.Details = map[string]any{"request_id": id}
	}
	return e
}

// FromError classifies err. AppErrors pass through; job errors are mapped by
// kind; anything else is internal.
func FromError(err error) *AppError {
	var app *AppError
	if stderrors.As(err, &app) {
		return app
	}

	status, code := http.StatusInternalServerError, CodeInternal
	switch job.Kind(err) {
	case job.ErrNotFound:
		status, code = http.StatusNotFound, CodeNotFound
	case job.ErrConfiguration, job.ErrInvalidTransition:
		status, code = http.StatusBadRequest, CodeBadRequest
	case job.ErrActiveJobExists, job.ErrDuplicateID:
		status, code = http.StatusConflict, CodeConflict
	case job.ErrNoInputFiles, job.ErrUnsupportedFormat, job.ErrMissingRequiredAttribute, job.ErrSubmissionRejected,
		job.ErrConversion:
		status, code = http.StatusUnprocessableEntity, CodeUnprocessable
	case job.ErrTransport:
		status, code = http.StatusBadGateway, CodeBadGateway
	case job.ErrStorage:
		status, code = http.StatusServiceUnavailable, CodeServiceUnavailable
	}
	e := &AppError{Code: code, Status: status, Message: err.Error(), Err: err}
	if msgs := job.RejectionMessages(err); len(msgs) > 0 {
		e.Details = map[string]any{"archive_messages": msgs}
	}
	return e
}

// ExitCode maps err to a process exit code.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	if stderrors.Is(err, context.Canceled) {
		return ExitSignalInt
	}
	switch job.Kind(err) {
	case job.ErrConfiguration, job.ErrNotFound, job.ErrInvalidTransition, job.ErrActiveJobExists:
		return ExitInvalidArgument
	case job.ErrTransport, job.ErrSubmissionRejected:
		return ExitExternalServiceUnavailable
	case job.ErrStorage, job.ErrStaging:
		return ExitFileWriteError
	default:
		return ExitFailure
	}
}

// RespondWithError writes err as an HTTPErrorResponse.
func RespondWithError(w http.ResponseWriter, r *http.Request, err error) {
	app := FromError(err)
	body := HTTPErrorResponse{Error: HTTPError{
		Code:      app.Code,
		Message:   app.Message,
		RequestID: RequestIDFromContext(r.Context()),
		Details:   app.Details,
	}}
	WriteJSON(w, app.Status, body)
}

// WriteJSON writes v with status and a JSON content type.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("Failed to write JSON response", zap.Error(err))
	}
}

type requestIDKey struct{}

// WithRequestID returns ctx carrying id.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFromContext returns the request id stored by WithRequestID.
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}
