package models

import (
	"errors"
	"fmt"
)

var (
	ErrNotSubscribed       = errors.New("feed is not subscribed")
	ErrAlreadySubscribed   = errors.New("feed is already subscribed")
	ErrUnknownTenant       = errors.New("tenant has no configuration")
	ErrNotPrivileged       = errors.New("caller is not allowed to trigger a check")
	ErrUnsupportedPlatform = errors.New("unsupported destination platform")
	ErrInvalidDestination  = errors.New("invalid destination")
	ErrNoEntries           = errors.New("feed has no entries")
	ErrNoLogDestination    = errors.New("no log destination is configured")
	ErrNoKeywords          = errors.New("at least one keyword is required")
	ErrInvalidFeedURL      = errors.New("feed url must be an absolute http(s) url")
)

// FetchError is a transport failure while retrieving a feed.
type FetchError struct {
	URL string
	Err error
}

func (e *FetchError) Error() string { return fmt.Sprintf("fetch %s: %v", e.URL, e.Err) }
func (e *FetchError) Unwrap() error { return e.Err }

// InvalidFeedError means the document could not be parsed into any entries.
type InvalidFeedError struct {
	URL string
	Err error
}

func (e *InvalidFeedError) Error() string { return fmt.Sprintf("invalid feed %s: %v", e.URL, e.Err) }
func (e *InvalidFeedError) Unwrap() error { return e.Err }

// DeliveryError means a destination rejected or could not be reached.
type DeliveryError struct {
	Destination Destination
	Err         error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("deliver to %s: %v", e.Destination, e.Err)
}
func (e *DeliveryError) Unwrap() error { return e.Err }

// PersistenceError means the state document could not be saved. The
// in-memory state has already been mutated when this is returned.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string { return fmt.Sprintf("persist %s: %v", e.Op, e.Err) }
func (e *PersistenceError) Unwrap() error { return e.Err }
