package crawler

import "errors"

var (
	// ErrElementNotFound is returned when a locator resolves nothing within its wait.
	ErrElementNotFound = errors.New("element not found")
	// ErrNavigation is returned when a destination never becomes reachable.
	ErrNavigation = errors.New("navigation failed")
	// ErrSessionUnusable marks failures that leave the browser session unable to continue.
	ErrSessionUnusable = errors.New("session unusable")
	// ErrNoProgress is returned by bounded loops that stopped making progress.
	ErrNoProgress = errors.New("no progress")
	// ErrUnsupported is returned by accessors that cannot perform an operation.
	ErrUnsupported = errors.New("operation not supported")
)
