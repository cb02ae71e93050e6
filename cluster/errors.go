package cluster

import (
	"errors"
	"fmt"
)

// Resolution and transport errors
var (
	ErrUnresolvedPath    = errors.New("actor path cannot be resolved")
	ErrRemoteUnavailable = errors.New("remote service unavailable")
	ErrRemoteFailure     = errors.New("remote actor call failed")
	ErrBadRemotePath     = errors.New("malformed remote actor path")
)

// RemoteError describes a failed call to a remote endpoint.
type RemoteError struct {
	Operation string
	Path      string
	Status    int
	Err       error
}

func (e *RemoteError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("remote %s %s failed with status %d: %v", e.Operation, e.Path, e.Status, e.Err)
	}
	return fmt.Sprintf("remote %s %s failed: %v", e.Operation, e.Path, e.Err)
}

func (e *RemoteError) Unwrap() error {
	return e.Err
}
