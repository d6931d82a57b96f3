package scaler

import (
	"fmt"
	"time"
)

// NotFoundError reports that the target object was absent at fetch time.
type NotFoundError struct {
	Ref ResourceRef
	Err error
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("failed to retrieve requested object %s: %v", e.Ref, e.Err)
}

func (e *NotFoundError) Unwrap() error { return e.Err }

// CountUnavailableError reports that the fetched object carries neither
// spec.replicas nor spec.parallelism.
type CountUnavailableError struct {
	Ref ResourceRef
}

func (e *CountUnavailableError) Error() string {
	return fmt.Sprintf("failed to retrieve the available count for %s", e.Ref)
}

// UnsupportedKindError reports a kind with no scale subresource that is
// not a Job either.
type UnsupportedKindError struct {
	Kind string
}

func (e *UnsupportedKindError) Error() string {
	return fmt.Sprintf("cannot perform scale on resource of kind %s", e.Kind)
}

// TransportError wraps a failed fetch or patch. Transport failures are
// never retried at this layer.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s request failed: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// TimeoutError reports that the convergence wait expired. It carries the
// last-known result so the caller can inspect partial progress.
type TimeoutError struct {
	Ref     ResourceRef
	Elapsed time.Duration
	Result  ScaleResult
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("resource scaling timed out for %s after %s", e.Ref, e.Elapsed)
}
