package sfmc

import (
	"errors"
	"fmt"

	httpclient "github.com/natserract/sfmc/pkg/http"
	"go.uber.org/multierr"
)

// AuthError reports a failed token exchange. It is fatal to the calling
// operation: nothing proceeds without a token.
type AuthError struct {
	Status int
	Body   string
	Err    error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("authentication failed: %v", e.Err)
	}
	return fmt.Sprintf("authentication failed with status %d: %s", e.Status, e.Body)
}

func (e *AuthError) Unwrap() error { return e.Err }

// SoapFault is a business-level SOAP failure: either an envelope-level
// fault or a non-OK OverallStatus.
type SoapFault struct {
	Code    string
	Message string
}

func (e *SoapFault) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("soap fault %s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("soap fault: %s", e.Message)
}

// RestError is a non-2xx REST response outside the 401 retry path.
type RestError struct {
	Status int
	Body   string
}

func (e *RestError) Error() string {
	return fmt.Sprintf("rest request failed with status %d: %s", e.Status, e.Body)
}

// UnknownObjectError reports a catalog miss.
type UnknownObjectError struct {
	Name string
}

func (e *UnknownObjectError) Error() string {
	return fmt.Sprintf("object %q not found in catalogs", e.Name)
}

// TimeoutError reports a network call that exceeded its time budget.
type TimeoutError struct {
	Op  string
	Err error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s timed out: %v", e.Op, e.Err)
}

func (e *TimeoutError) Unwrap() error { return e.Err }

// wrapTimeout converts the HTTP layer's timeout sentinel into a
// TimeoutError naming the failed operation; other errors pass through.
func wrapTimeout(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, httpclient.ErrTimeout) {
		return &TimeoutError{Op: op, Err: err}
	}
	return err
}

// RecordFailure names one record whose copy failed and why.
type RecordFailure struct {
	Name string
	Err  error
}

func (f RecordFailure) Error() string {
	return fmt.Sprintf("%s: %v", f.Name, f.Err)
}

// PartialCopyError aggregates per-record copy failures. The batch as a
// whole completed; Failures lists exactly which records did not.
type PartialCopyError struct {
	Failures []RecordFailure
}

func (e *PartialCopyError) Error() string {
	errs := make([]error, 0, len(e.Failures))
	for _, f := range e.Failures {
		errs = append(errs, f)
	}
	return fmt.Sprintf("%d record(s) failed to copy: %v", len(e.Failures), multierr.Combine(errs...))
}

// Unwrap exposes the individual failures to errors.Is/As.
func (e *PartialCopyError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failures))
	for _, f := range e.Failures {
		if f.Err != nil {
			errs = append(errs, f.Err)
		}
	}
	return errs
}
