// Package errors defines the error kinds surfaced by an equivalence run and
// maps them to process exit codes.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrMalformedInput    = errors.New("malformed input")
	ErrDocumentNotFound  = errors.New("document not found")
	ErrReduction         = errors.New("reduction failed")
	ErrHashMismatch      = errors.New("hash mismatch")
	ErrNumericComparison = errors.New("numeric comparison undefined")
)

// Exit codes. A FAIL verdict is ExitFail; every error kind gets its own code
// so a harness can tell them apart without parsing output.
const (
	ExitPass             = 0
	ExitFail             = 1
	ExitInternal         = 2
	ExitMalformedInput   = 3
	ExitDocumentNotFound = 4
	ExitReduction        = 5
	ExitHashMismatch     = 6
	ExitNumeric          = 7
)

// AppError carries the error kind plus the context an auditor needs to
// locate the failure: which stage, and which document or query.
type AppError struct {
	Err     error
	Stage   string
	DocID   string
	QueryID string
	Message string
}

func (e *AppError) Error() string {
	var b strings.Builder
	if e.Stage != "" {
		b.WriteString(e.Stage)
		b.WriteString(": ")
	}
	b.WriteString(e.Err.Error())
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.DocID != "" {
		fmt.Fprintf(&b, " (doc %q)", e.DocID)
	}
	if e.QueryID != "" {
		fmt.Fprintf(&b, " (query %q)", e.QueryID)
	}
	return b.String()
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(sentinel error, message string) *AppError {
	return &AppError{
		Err:     sentinel,
		Message: message,
	}
}

func Newf(sentinel error, format string, args ...any) *AppError {
	return &AppError{
		Err:     sentinel,
		Message: fmt.Sprintf(format, args...),
	}
}

// ForDoc returns a copy of e naming the offending document.
func (e *AppError) ForDoc(docID string) *AppError {
	c := *e
	c.DocID = docID
	return &c
}

// ForQuery returns a copy of e naming the offending query.
func (e *AppError) ForQuery(queryID string) *AppError {
	c := *e
	c.QueryID = queryID
	return &c
}

// WithStage tags err with the pipeline stage it escaped from. An AppError
// that already names a stage keeps it; anything else is wrapped as internal.
// Context added by wrappers around an AppError is folded into its message.
func WithStage(stage string, err error) error {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		if appErr.Stage != "" {
			return err
		}
		c := *appErr
		c.Stage = stage
		if err != error(appErr) {
			c.Message = joinContext(wrapperContext(err.Error(), appErr.Error()), c.Message)
		}
		return &c
	}
	return fmt.Errorf("%s: %w", stage, err)
}

// wrapperContext returns the text a chain of fmt.Errorf wrappers put in
// front of the inner error, or the whole outer text when the inner error is
// not its suffix.
func wrapperContext(outer, inner string) string {
	prefix, ok := strings.CutSuffix(outer, inner)
	if !ok {
		return outer
	}
	return strings.TrimSuffix(strings.TrimSpace(prefix), ":")
}

func joinContext(context, message string) string {
	switch {
	case context == "":
		return message
	case message == "":
		return context
	default:
		return context + ": " + message
	}
}

// Kind returns a short name for the error kind, used in reports.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrMalformedInput):
		return "MalformedInputError"
	case errors.Is(err, ErrDocumentNotFound):
		return "DocumentNotFoundError"
	case errors.Is(err, ErrReduction):
		return "ReductionError"
	case errors.Is(err, ErrHashMismatch):
		return "HashMismatchError"
	case errors.Is(err, ErrNumericComparison):
		return "NumericComparisonError"
	default:
		return "InternalError"
	}
}

func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitPass
	case errors.Is(err, ErrMalformedInput):
		return ExitMalformedInput
	case errors.Is(err, ErrDocumentNotFound):
		return ExitDocumentNotFound
	case errors.Is(err, ErrReduction):
		return ExitReduction
	case errors.Is(err, ErrHashMismatch):
		return ExitHashMismatch
	case errors.Is(err, ErrNumericComparison):
		return ExitNumeric
	default:
		return ExitInternal
	}
}
