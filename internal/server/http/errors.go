package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
)

// ErrorIDLayout formats the timestamp used as error id.
const ErrorIDLayout = "20060102_150405"

// DetailError is a handled error rendered as {"detail": "..."}.
type DetailError struct {
	Status int    `json:"-"`
	Detail string `json:"detail"`
}

// Error implements error.
func (e *DetailError) Error() string {
	return e.Detail
}

// GetStatus implements huma.StatusError.
func (e *DetailError) GetStatus() int {
	return e.Status
}

// ErrorRecord is the body returned for unhandled failures.
type ErrorRecord struct {
	ErrorID      string `json:"error_id"`
	ErrorType    string `json:"error_type"`
	ErrorMessage string `json:"error_message"`
	Traceback    string `json:"traceback"`
}

// Error implements error.
func (e *ErrorRecord) Error() string {
	return fmt.Sprintf("%s: %s", e.ErrorType, e.ErrorMessage)
}

// GetStatus implements huma.StatusError.
func (e *ErrorRecord) GetStatus() int {
	return http.StatusInternalServerError
}

var (
	_ huma.StatusError = (*DetailError)(nil)
	_ huma.StatusError = (*ErrorRecord)(nil)
)

// NewErrorRecord builds and logs the record for an unhandled error.
func NewErrorRecord(err error) *ErrorRecord {
	rec := &ErrorRecord{
		ErrorID:      time.Now().Format(ErrorIDLayout),
		ErrorType:    errorType(rootCause(err)),
		ErrorMessage: err.Error(),
		Traceback:    traceback(err),
	}

	slog.Error("Unhandled error",
		"error_id", rec.ErrorID,
		"error_type", rec.ErrorType,
		"error_message", rec.ErrorMessage,
		"traceback", rec.Traceback,
	)

	return rec
}

// newPanicRecord builds and logs the record for a recovered panic.
func newPanicRecord(v any, stack []byte) *ErrorRecord {
	err, ok := v.(error)
	if !ok {
		err = fmt.Errorf("%v", v)
	}

	rec := &ErrorRecord{
		ErrorID:      time.Now().Format(ErrorIDLayout),
		ErrorType:    errorType(v),
		ErrorMessage: err.Error(),
		Traceback:    string(stack),
	}

	slog.Error("Recovered panic",
		"error_id", rec.ErrorID,
		"error_type", rec.ErrorType,
		"error_message", rec.ErrorMessage,
		"traceback", rec.Traceback,
	)

	return rec
}

// rootCause follows the first branch of the wrap chain to its end.
func rootCause(err error) error {
	for {
		switch x := err.(type) {
		case interface{ Unwrap() error }:
			next := x.Unwrap()
			if next == nil {
				return err
			}
			err = next
		case interface{ Unwrap() []error }:
			errs := x.Unwrap()
			if len(errs) == 0 {
				return err
			}
			err = errs[0]
		default:
			return err
		}
	}
}

func errorType(v any) string {
	return strings.TrimPrefix(fmt.Sprintf("%T", v), "*")
}

// traceback lists the wrap chain from outermost to innermost, one error per line.
func traceback(err error) string {
	var b strings.Builder
	for depth := 0; err != nil; depth++ {
		fmt.Fprintf(&b, "%s%s: %s\n", strings.Repeat("  ", depth), errorType(err), err.Error())
		next := errors.Unwrap(err)
		if next == nil {
			if j, ok := err.(interface{ Unwrap() []error }); ok && len(j.Unwrap()) > 0 {
				next = j.Unwrap()[0]
			}
		}
		err = next
	}
	return strings.TrimRight(b.String(), "\n")
}

// newError renders every error huma raises itself (validation, parsing, not found) in the
// same shapes the handlers use.
func newError(status int, msg string, errs ...error) huma.StatusError {
	if status >= http.StatusInternalServerError {
		err := errors.Join(errs...)
		if err == nil {
			err = errors.New(msg)
		}
		return NewErrorRecord(err)
	}

	detail := msg
	if len(errs) > 0 {
		parts := make([]string, 0, len(errs))
		for _, e := range errs {
			if e != nil {
				parts = append(parts, e.Error())
			}
		}
		if len(parts) > 0 {
			detail = msg + ": " + strings.Join(parts, "; ")
		}
	}

	return &DetailError{Status: status, Detail: detail}
}

// huma.NewError is a package-level hook, so importing this package changes error rendering
// for every huma API in the process. ttsd serves a single API and relies on that.
func init() {
	huma.NewError = newError
}

// writeJSON writes v as a JSON response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
