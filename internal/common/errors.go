package common

import (
	"errors"
	"fmt"
)

var (
	// ErrObjectNotFound is returned when no live record exists for an object id.
	ErrObjectNotFound = errors.New("object not found")

	// ErrTransport wraps failures reaching a storage node.
	ErrTransport = errors.New("shard unreachable")

	// ErrShuttingDown is returned once a node stops accepting background work.
	ErrShuttingDown = errors.New("node is shutting down")

	ErrInvalidArgument = errors.New("invalid argument")
)

// NotFoundReason tells apart the states a caller sees as "not found".
type NotFoundReason string

const (
	ReasonMissing        NotFoundReason = "missing"
	ReasonPending        NotFoundReason = "pending"
	ReasonWriteFailed    NotFoundReason = "write_failed"
	ReasonDeleted        NotFoundReason = "deleted"
	ReasonContentMissing NotFoundReason = "content_missing"
)

// ObjectError is a not-found outcome carrying the reason.
// errors.Is(err, ErrObjectNotFound) holds for every reason.
type ObjectError struct {
	ObjectID string
	Reason   NotFoundReason
	Err      error
}

func (e *ObjectError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("object %s not found (%s): %v", e.ObjectID, e.Reason, e.Err)
	}
	return fmt.Sprintf("object %s not found (%s)", e.ObjectID, e.Reason)
}

func (e *ObjectError) Is(target error) bool {
	return target == ErrObjectNotFound
}

func (e *ObjectError) Unwrap() error {
	return e.Err
}

// NotFound builds an ObjectError.
func NotFound(objectID string, reason NotFoundReason) *ObjectError {
	return &ObjectError{ObjectID: objectID, Reason: reason}
}

// ReasonOf extracts the not-found reason, or "" if err is not a not-found error.
func ReasonOf(err error) NotFoundReason {
	var objErr *ObjectError
	if errors.As(err, &objErr) {
		return objErr.Reason
	}
	if errors.Is(err, ErrObjectNotFound) {
		return ReasonMissing
	}
	return ""
}
