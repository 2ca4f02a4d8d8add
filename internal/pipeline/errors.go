package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cinepulse/internal/clustering"
	"cinepulse/internal/dataprocessing"
	"cinepulse/internal/forecast"
	"cinepulse/pkg/contracts/domain"
)

// ErrorKind classifies pipeline failures
type ErrorKind string

const (
	KindPrerequisiteMissing ErrorKind = "prerequisite_missing"
	KindInvalidParameter    ErrorKind = "invalid_parameter"
	KindInsufficientData    ErrorKind = "insufficient_data"
	KindCoercionFailure     ErrorKind = "coercion_failure"
	KindBusy                ErrorKind = "busy"
	KindFitFailure          ErrorKind = "fit_failure"
	KindCancelled           ErrorKind = "cancelled"
	KindNotFound            ErrorKind = "not_found"
	KindInternal            ErrorKind = "internal"
)

// Error is a typed pipeline failure carrying enough context to render a
// user-facing message
type Error struct {
	Kind      ErrorKind `json:"kind"`
	Domain    Domain    `json:"domain,omitempty"`
	Key       string    `json:"key,omitempty"`
	Operation Operation `json:"operation,omitempty"`
	Reason    string    `json:"reason"`
	Cause     error     `json:"-"`
}

// Error implements the error interface
func (e *Error) Error() string {
	if e == nil {
		return "unknown pipeline error"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "[%s]", e.Kind)
	if e.Domain != "" {
		fmt.Fprintf(&b, " %s", e.Domain)
		if e.Key != "" {
			fmt.Fprintf(&b, "/%s", e.Key)
		}
	}
	if e.Operation != "" {
		fmt.Fprintf(&b, " %s", e.Operation)
	}
	if e.Reason != "" {
		fmt.Fprintf(&b, ": %s", e.Reason)
	}
	if e.Cause != nil {
		fmt.Fprintf(&b, ": %v", e.Cause)
	}
	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Is matches any *Error of the same kind, so the kind sentinels below work
// with errors.Is
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || e == nil {
		return false
	}
	return t.Kind == e.Kind && t.Domain == "" && t.Key == "" && t.Operation == ""
}

// Kind sentinels for errors.Is
var (
	ErrPrerequisiteMissing = &Error{Kind: KindPrerequisiteMissing}
	ErrInvalidParameter    = &Error{Kind: KindInvalidParameter}
	ErrInsufficientData    = &Error{Kind: KindInsufficientData}
	ErrBusy                = &Error{Kind: KindBusy}
	ErrFitFailure          = &Error{Kind: KindFitFailure}
	ErrCancelled           = &Error{Kind: KindCancelled}
	ErrNotFound            = &Error{Kind: KindNotFound}

	// ErrStoreClosed is returned by a torn-down store
	ErrStoreClosed = errors.New("store is closed")
)

// NewPrerequisiteError reports an operation attempted before its dependency committed
func NewPrerequisiteError(d Domain, key string, op Operation, missing Stage) *Error {
	return &Error{
		Kind:      KindPrerequisiteMissing,
		Domain:    d,
		Key:       key,
		Operation: op,
		Reason:    fmt.Sprintf("%s stage has not been committed", missing),
	}
}

// NewInvalidParameterError reports a rejected argument
func NewInvalidParameterError(d Domain, key string, op Operation, reason string) *Error {
	return &Error{Kind: KindInvalidParameter, Domain: d, Key: key, Operation: op, Reason: reason}
}

// NewBusyError reports a transition already in flight on the same key
func NewBusyError(d Domain, key string, op Operation) *Error {
	return &Error{
		Kind:      KindBusy,
		Domain:    d,
		Key:       key,
		Operation: op,
		Reason:    "another transition is in progress for this key",
	}
}

// NewNotFoundError reports a missing record or artifact
func NewNotFoundError(d Domain, key string, what string) *Error {
	return &Error{Kind: KindNotFound, Domain: d, Key: key, Reason: what + " not found"}
}

// KindOf returns the kind of err, or KindInternal for foreign errors
func KindOf(err error) ErrorKind {
	var pErr *Error
	if errors.As(err, &pErr) {
		return pErr.Kind
	}
	return KindInternal
}

// classify converts engine and cleaning errors into a typed pipeline error
// bound to the operation context.
func classify(err error, d Domain, key string, op Operation) *Error {
	if err == nil {
		return nil
	}

	var pErr *Error
	if errors.As(err, &pErr) {
		out := *pErr
		if out.Domain == "" {
			out.Domain = d
		}
		if out.Key == "" {
			out.Key = key
		}
		if out.Operation == "" {
			out.Operation = op
		}
		return &out
	}

	e := &Error{Kind: KindInternal, Domain: d, Key: key, Operation: op, Reason: "stage failed", Cause: err}
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		e.Kind, e.Reason = KindCancelled, "stage was cancelled"
	case errors.Is(err, forecast.ErrInsufficientData),
		errors.Is(err, clustering.ErrNoData),
		errors.Is(err, dataprocessing.ErrNoData):
		e.Kind, e.Reason = KindInsufficientData, "not enough data"
	case errors.Is(err, forecast.ErrFitFailure):
		e.Kind, e.Reason = KindFitFailure, "model fit failed"
	case errors.Is(err, clustering.ErrInvalidK),
		errors.Is(err, clustering.ErrTooManyClusters),
		errors.Is(err, forecast.ErrInvalidOrder),
		errors.Is(err, forecast.ErrInvalidHorizon),
		errors.Is(err, forecast.ErrInvalidSeries),
		errors.Is(err, dataprocessing.ErrMissingColumn),
		errors.Is(err, dataprocessing.ErrInvalidPeriod),
		errors.Is(err, dataprocessing.ErrNoNumericValues),
		errors.Is(err, dataprocessing.ErrWrongPayloadKind),
		errors.Is(err, dataprocessing.ErrUnsupportedFormat),
		errors.Is(err, domain.ErrEmptyPayload),
		errors.Is(err, domain.ErrUnknownPayload):
		e.Kind, e.Reason = KindInvalidParameter, "invalid input"
	}
	return e
}
