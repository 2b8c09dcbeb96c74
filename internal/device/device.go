// Package device defines the boundary between the dispatcher and the router.
//
// A Session is one live, authenticated connection to the router's web
// administration UI. Sessions are not safe for concurrent use; the dispatcher
// serializes every call. A failed session is never repaired in place: it is
// closed and replaced by a fresh one from the Factory.
package device

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrLoginFailed      = errors.New("login failed")
	ErrNavigationFailed = errors.New("navigation failed")
	ErrSendFailed       = errors.New("send failed")
)

type Session interface {
	// Login authenticates against the router. On failure the session has
	// already released its browser process.
	Login(ctx context.Context) error
	// NavigateToCompose brings the UI to the new-message form.
	NavigateToCompose(ctx context.Context) error
	// Send submits one message using the current session.
	Send(ctx context.Context, phoneNumber, message string) error
	// Close terminates the browser process. Safe to call more than once.
	Close() error
}

// Factory builds an unauthenticated session.
type Factory func(ctx context.Context) (Session, error)

// LoginError wraps cause as ErrLoginFailed.
func LoginError(cause error) error {
	return fmt.Errorf("%w: %w", ErrLoginFailed, cause)
}

// NavigationError wraps cause as ErrNavigationFailed.
func NavigationError(cause error) error {
	return fmt.Errorf("%w: %w", ErrNavigationFailed, cause)
}

// SendError wraps cause as ErrSendFailed.
func SendError(cause error) error {
	return fmt.Errorf("%w: %w", ErrSendFailed, cause)
}
