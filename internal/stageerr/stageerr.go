// Package stageerr classifies pipeline-stage failures as fatal or retryable,
// the distinction the job controller uses to decide between RequeueJob and
// FailJob (spec.md §5 error taxonomy).
package stageerr

import "errors"

type fatalError struct{ err error }

func (e *fatalError) Error() string { return e.err.Error() }
func (e *fatalError) Unwrap() error { return e.err }

type retryableError struct{ err error }

func (e *retryableError) Error() string { return e.err.Error() }
func (e *retryableError) Unwrap() error { return e.err }

// Fatal wraps err as permanent: the job controller fails the job without
// retrying. Use for malformed input, schema/validation violations, and
// anything a retry cannot fix.
func Fatal(err error) error {
	if err == nil {
		return nil
	}
	return &fatalError{err: err}
}

// Retryable wraps err as transient: the job controller requeues the job up
// to the configured attempt limit. Use for network timeouts, rate limits,
// and database connection errors.
func Retryable(err error) error {
	if err == nil {
		return nil
	}
	return &retryableError{err: err}
}

// IsFatal reports whether err (or anything it wraps) was marked Fatal.
func IsFatal(err error) bool {
	var fe *fatalError
	return errors.As(err, &fe)
}

// IsRetryable reports whether err (or anything it wraps) was marked
// Retryable.
func IsRetryable(err error) bool {
	var re *retryableError
	return errors.As(err, &re)
}
