package poster

import (
	"errors"
	"net"
)

var (
	ErrRateLimited = errors.New("rate limited by endpoint")
	ErrServerError = errors.New("endpoint server error")
	ErrAuthFailed  = errors.New("endpoint rejected credentials")
)

// retryable reports whether another attempt could plausibly succeed.
func retryable(err error) bool {
	if errors.Is(err, ErrRateLimited) || errors.Is(err, ErrServerError) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	// Transport-level failures surface as *url.Error wrapping the cause.
	var opErr *net.OpError
	return errors.As(err, &opErr)
}
