package notify

import "errors"

// Common errors returned by notify.
var (
	// ErrSubscriberClosed is returned by Send once the subscriber's
	// connection is gone.
	ErrSubscriberClosed = errors.New("subscriber closed")

	// ErrDispatcherClosed is returned when subscribing after Close.
	ErrDispatcherClosed = errors.New("dispatcher closed")
)
