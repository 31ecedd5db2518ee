package remote

import (
	"context"
	"errors"
	"net"
)

// Sentinel errors for the structural and transient failure modes the
// engine recovers from. Transport implementations must map their wire
// errors onto these so classification stays in one place.
var (
	// ErrNoAccount means no signed-in account is available.
	ErrNoAccount = errors.New("remote: no account")
	// ErrRestricted means the account exists but may not be used.
	ErrRestricted = errors.New("remote: account restricted")
	// ErrZoneNotFound means the record partition is missing and must be
	// re-provisioned before any further operation.
	ErrZoneNotFound = errors.New("remote: zone not found")
	// ErrCursorExpired means the stored change cursor is no longer valid
	// and a full fetch is required.
	ErrCursorExpired = errors.New("remote: change cursor expired")
	// ErrRateLimited means the service asked us to back off.
	ErrRateLimited = errors.New("remote: rate limited")
	// ErrUnavailable means the service or network is temporarily down.
	ErrUnavailable = errors.New("remote: service unavailable")
	// ErrBusy means a resource was busy server-side; retry later.
	ErrBusy = errors.New("remote: resource busy")
)

// Retryable reports whether err is a transient failure worth retrying
// with backoff. Structural errors (missing zone, expired cursor, account
// problems) have their own recovery paths and are not retryable here.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	switch {
	case errors.Is(err, ErrRateLimited),
		errors.Is(err, ErrUnavailable),
		errors.Is(err, ErrBusy):
		return true
	case errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		// Cancellation initiated remotely or by a timeout is retried;
		// local Stop() cancels the retry task itself.
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return false
}
