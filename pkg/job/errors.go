package job

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors classifying job failures.
var (
	// ErrConfiguration indicates required submission settings or credentials are absent.
	ErrConfiguration = errors.New("missing configuration")

	// ErrNotFound indicates a project or job does not exist.
	ErrNotFound = errors.New("not found")

	// ErrNoInputFiles indicates a project has no recognized sequence files.
	ErrNoInputFiles = errors.New("no input files")

	// ErrUnsupportedFormat indicates a file cannot be brought into the canonical format.
	ErrUnsupportedFormat = errors.New("unsupported format")

	// ErrMissingRequiredAttribute indicates project or sample metadata lacks a mandatory field.
	ErrMissingRequiredAttribute = errors.New("missing required attribute")

	// ErrConversion indicates a staged file could not be converted, e.g. a
	// converter exiting non-zero or input that is not valid FASTA.
	ErrConversion = errors.New("conversion failed")

	// ErrStaging indicates a local staging directory or file could not be
	// created or read.
	ErrStaging = errors.New("staging error")

	// ErrTransport indicates a fetch, upload or post failed in transit.
	ErrTransport = errors.New("transport error")

	// ErrSubmissionRejected indicates the archive refused a submission.
	ErrSubmissionRejected = errors.New("submission rejected")

	// ErrStorage indicates the job store failed.
	ErrStorage = errors.New("storage error")

	// ErrDuplicateID indicates a job with the same id already exists.
	ErrDuplicateID = errors.New("duplicate job id")

	// ErrInvalidTransition indicates a status change outside the state machine.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrActiveJobExists indicates the project already has a non-terminal job.
	ErrActiveJobExists = errors.New("project has an active job")
)

var kinds = []error{
	ErrConfiguration,
	ErrNotFound,
	ErrNoInputFiles,
	ErrUnsupportedFormat,
	ErrMissingRequiredAttribute,
	ErrConversion,
	ErrStaging,
	ErrTransport,
	ErrSubmissionRejected,
	ErrStorage,
	ErrDuplicateID,
	ErrInvalidTransition,
	ErrActiveJobExists,
}

// Error wraps a job failure with its classification and context.
type Error struct {
	// Op is the operation that failed (e.g., "fetch", "submit").
	Op string

	// Kind is one of the sentinel errors above.
	Kind error

	// JobID is the affected job, if known.
	JobID string

	// Messages carries archive-side messages verbatim for rejected submissions.
	Messages []string

	// Err is the underlying error.
	Err error
}

// NewError classifies err under kind for operation op.
func NewError(op string, kind error, err error) *Error {
	return &Error{Op: op, Kind: kind, Err: err}
}

// Rejected builds a SubmissionRejected error carrying the archive's messages.
func Rejected(op string, messages []string) *Error {
	return &Error{Op: op, Kind: ErrSubmissionRejected, Messages: append([]string(nil), messages...)}
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Op)
	if e.JobID != "" {
		fmt.Fprintf(&b, " [job %s]", e.JobID)
	}
	if e.Kind != nil {
		b.WriteString(": ")
		b.WriteString(e.Kind.Error())
	}
	if len(e.Messages) > 0 {
		b.WriteString(": ")
		b.WriteString(strings.Join(e.Messages, ","))
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap exposes both the classification and the cause to errors.Is/As.
func (e *Error) Unwrap() []error {
	out := make([]error, 0, 2)
	if e.Kind != nil {
		out = append(out, e.Kind)
	}
	if e.Err != nil {
		out = append(out, e.Err)
	}
	return out
}

// Kind returns the sentinel classifying err, or nil when err is unclassified.
func Kind(err error) error {
	if err == nil {
		return nil
	}
	for _, k := range kinds {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}

// KindName returns a stable snake_case label for err's classification.
func KindName(err error) string {
	switch Kind(err) {
	case ErrConfiguration:
		return "configuration"
	case ErrNotFound:
		return "not_found"
	case ErrNoInputFiles:
		return "no_input_files"
	case ErrUnsupportedFormat:
		return "unsupported_format"
	case ErrMissingRequiredAttribute:
		return "missing_required_attribute"
	case ErrConversion:
		return "conversion"
	case ErrStaging:
		return "staging"
	case ErrTransport:
		return "transport"
	case ErrSubmissionRejected:
		return "submission_rejected"
	case ErrStorage:
		return "storage"
	case ErrDuplicateID:
		return "duplicate_id"
	case ErrInvalidTransition:
		return "invalid_transition"
	case ErrActiveJobExists:
		return "active_job_exists"
	default:
		return "unknown"
	}
}

// RejectionMessages returns the archive messages carried by err, if any.
func RejectionMessages(err error) []string {
	var je *Error
	if errors.As(err, &je) {
		return je.Messages
	}
	return nil
}

// IsNotFound returns true if the error indicates a missing project or job.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsConfiguration returns true if the error indicates missing configuration.
func IsConfiguration(err error) bool {
	return errors.Is(err, ErrConfiguration)
}

// IsTransport returns true if the error indicates a transport failure.
func IsTransport(err error) bool {
	return errors.Is(err, ErrTransport)
}

// IsSubmissionRejected returns true if the archive rejected a submission.
func IsSubmissionRejected(err error) bool {
	return errors.Is(err, ErrSubmissionRejected)
}

// IsStorage returns true if the error originated in the job store.
func IsStorage(err error) bool {
	return errors.Is(err, ErrStorage)
}

// IsDuplicateID returns true if the error indicates a job id collision.
func IsDuplicateID(err error) bool {
	return errors.Is(err, ErrDuplicateID)
}
