package retry

import (
	"errors"

	"github.com/pme-sh/lrpc/rpcerr"
)

var ErrDeadlineExceeded = errors.New("retry: deadline exceeded")
var ErrMaxAttemptsExceeded = errors.New("retry: max attempts exceeded")

// Retryable reports whether another attempt could succeed: only failures to reach
// or keep a peer are. Anything the remote side answered, including application
// errors, is final.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, rpcerr.ConnectionUnavailable) || errors.Is(err, rpcerr.ChannelClosed)
}
