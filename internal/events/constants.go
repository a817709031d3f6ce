package events

import "errors"

// DefaultUserAgent is stored when the client sends none.
const DefaultUserAgent = "Unknown User Agent"

// ErrExcluded is returned when an event comes from an excluded IP and was not stored.
var ErrExcluded = errors.New("events: client address is excluded from tracking")

// ErrInvalidInput wraps validation failures of an event payload.
var ErrInvalidInput = errors.New("events: invalid input")
