// Package blob defines the injected blob-upload capability.
//
// The core treats cloud storage as opaque: it needs only the three-method
// Uploader contract and the transient/permanent error distinction, which the
// processor uses to choose between retry and immediate failure.
package blob

import (
	"context"
	"errors"
	"fmt"
)

// Uploader is the capability contract for a blob storage backend.
type Uploader interface {
	// Upload streams the file at localPath to container/objectName,
	// overwriting any existing object of the same name. Errors are
	// classified transient or permanent; see IsTransient and IsPermanent.
	Upload(ctx context.Context, localPath, container, objectName string) error

	// ListContainers returns the container names visible to the
	// credentials. Advisory; used by ops tooling, not the core loop.
	ListContainers(ctx context.Context) ([]string, error)

	// Probe checks connectivity to the backend. Used as a startup
	// diagnostic; a failure is reported, not fatal.
	Probe(ctx context.Context) error
}

// transientError marks an error as retryable: network faults, throttling,
// 5xx-class responses.
type transientError struct {
	err error
}

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

// permanentError marks an error as terminal: authentication failures,
// malformed names, 4xx-class responses.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Transient wraps err as a retryable upload error.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

// Transientf wraps a formatted message as a retryable upload error.
func Transientf(format string, args ...any) error {
	return &transientError{err: fmt.Errorf(format, args...)}
}

// Permanent wraps err as a terminal upload error.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Permanentf wraps a formatted message as a terminal upload error.
func Permanentf(format string, args ...any) error {
	return &permanentError{err: fmt.Errorf(format, args...)}
}

// IsPermanent reports whether err was classified permanent.
func IsPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}

// IsTransient reports whether err should be retried. Unclassified errors
// count as transient: retrying an unknown fault is safe, failing a
// recoverable job permanently is not.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	return !IsPermanent(err)
}
