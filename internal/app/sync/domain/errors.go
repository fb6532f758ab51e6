package domain

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Sentinel errors raised by the matching/retrieval core.
var (
	// ErrValueNotFound indicates a remote lookup returned nothing for a
	// requested filter value.
	ErrValueNotFound = errors.New("no remote record for value")

	// ErrDuplicateMatch indicates a single filter value matched more
	// than one remote record.
	ErrDuplicateMatch = errors.New("filter value matched more than one remote record")

	// ErrMissingConverter indicates an adapter without the converter
	// capability was handed to a component that needs it.
	ErrMissingConverter = errors.New("adapter does not implement entity conversion")
)

// ErrorKind classifies a per-item failure.
type ErrorKind string

const (
	KindValidation ErrorKind = "validation"
	KindNotFound   ErrorKind = "not_found"
	KindDuplicate  ErrorKind = "duplicate"
	KindHTTP       ErrorKind = "http"
	KindAPI        ErrorKind = "api"
	KindInternal   ErrorKind = "internal"
)

// APIError is one structured business error reported by a remote API
// that succeeded at the transport level.
type APIError struct {
	Code      string
	Message   string
	Parameter string
}

// ErrorRecord is the inert, serializable per-item failure produced by
// batch operations. Value always traces back to exactly one input item.
// It carries captured diagnostics only, never live responses.
type ErrorRecord struct {
	Kind       ErrorKind
	Value      string
	Message    string
	StatusCode int
	Violations []string
	APIErrors  []APIError
}

func (e *ErrorRecord) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s (%d): %s: %s", e.Kind, e.StatusCode, e.Value, e.Message)
	}
	return fmt.Sprintf("%s: %s: %s", e.Kind, e.Value, e.Message)
}

// RemoteCallError is returned by adapters when a remote call fails.
// APIErrors set means the transport succeeded but the API reported
// business errors.
type RemoteCallError struct {
	StatusCode int
	Message    string
	APIErrors  []APIError
}

func (e *RemoteCallError) Error() string {
	if len(e.APIErrors) > 0 {
		return fmt.Sprintf("remote api error (status %d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("remote http error (status %d): %s", e.StatusCode, e.Message)
}

// ValidationError reports input that failed shape/business rules before
// any remote call was made.
type ValidationError struct {
	Violations []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %d violation(s)", len(e.Violations))
}

// Classify maps an error into the record taxonomy. Remote-call and
// validation errors carry their own kind; gRPC status codes and context
// errors are folded into transport-level kinds; anything unrecognized
// is internal.
func Classify(err error) ErrorKind {
	if err == nil {
		return ""
	}

	var rec *ErrorRecord
	if errors.As(err, &rec) {
		return rec.Kind
	}

	var vErr *ValidationError
	if errors.As(err, &vErr) {
		return KindValidation
	}

	var rcErr *RemoteCallError
	if errors.As(err, &rcErr) {
		if len(rcErr.APIErrors) > 0 {
			return KindAPI
		}
		if rcErr.StatusCode == http.StatusNotFound {
			return KindNotFound
		}
		return KindHTTP
	}

	if errors.Is(err, ErrValueNotFound) {
		return KindNotFound
	}
	if errors.Is(err, ErrDuplicateMatch) {
		return KindDuplicate
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return KindHTTP
	}

	if st, ok := status.FromError(err); ok && st.Code() != codes.OK && st.Code() != codes.Unknown {
		switch st.Code() {
		case codes.NotFound:
			return KindNotFound
		case codes.AlreadyExists:
			return KindDuplicate
		case codes.InvalidArgument, codes.FailedPrecondition, codes.OutOfRange:
			return KindValidation
		case codes.Unavailable, codes.DeadlineExceeded, codes.Canceled,
			codes.ResourceExhausted, codes.Unauthenticated, codes.PermissionDenied:
			return KindHTTP
		default:
			return KindInternal
		}
	}

	return KindInternal
}

// NewErrorRecord captures err as an inert record attributed to the
// given input value.
func NewErrorRecord(value string, err error) *ErrorRecord {
	if err == nil {
		return nil
	}

	var rec *ErrorRecord
	if errors.As(err, &rec) {
		// Already a record; re-attribute it to this value if needed.
		if rec.Value == value {
			return rec
		}
		copied := *rec
		copied.Value = value
		return &copied
	}

	out := &ErrorRecord{
		Kind:    Classify(err),
		Value:   value,
		Message: err.Error(),
	}

	var vErr *ValidationError
	if errors.As(err, &vErr) {
		out.Violations = append(out.Violations, vErr.Violations...)
	}

	var rcErr *RemoteCallError
	if errors.As(err, &rcErr) {
		out.StatusCode = rcErr.StatusCode
		out.APIErrors = append(out.APIErrors, rcErr.APIErrors...)
	}

	return out
}
