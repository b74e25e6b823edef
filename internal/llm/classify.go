package llm

import (
	"context"
	"errors"
	"net"
)

// classify maps a transport error onto an outcome. Timeouts and 5xx are
// retryable; 4xx and anything unrecognised are fatal. Cancellation of the
// caller's context is handled by Client, not here.
func classify(err error) Outcome {
	if err == nil {
		return fatal(errors.New("classify called without error"))
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		if statusErr.Temporary() {
			return retryable(err)
		}
		return fatal(err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return retryable(err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return retryable(err)
	}
	return fatal(err)
}
