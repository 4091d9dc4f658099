package syncer

import (
	"errors"
	"fmt"
)

// ErrTransientNetwork marks a delivery attempt that failed before reaching
// the remote endpoint: no connectivity or the host is unreachable. Always
// recoverable by retry on a later drain.
var ErrTransientNetwork = errors.New("syncer: transient network failure")

// RemoteRejectionError is a non-2xx response from the remote endpoint.
// The entry stays queued for a future attempt: server-side causes may be
// transient, and dropping an emergency alert is never acceptable.
type RemoteRejectionError struct {
	Status int
}

func (e *RemoteRejectionError) Error() string {
	return fmt.Sprintf("syncer: remote rejected delivery with status %d", e.Status)
}

// IsRemoteRejection reports whether err is a RemoteRejectionError.
func IsRemoteRejection(err error) bool {
	var rejection *RemoteRejectionError
	return errors.As(err, &rejection)
}
