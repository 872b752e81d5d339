package domain

import "errors"

var (
	// ErrUnsupportedEvent is returned when a relevant source record has no parser.
	// It aborts the sub-batch the record belongs to.
	ErrUnsupportedEvent = errors.New("unsupported event")

	// ErrMalformedEvent is returned when a required event argument is missing or invalid
	ErrMalformedEvent = errors.New("malformed event")

	// ErrSourceAlreadyProcessed is returned when a sub-batch claims a source record
	// another run has already marked processed. The whole sub-batch is rolled back.
	ErrSourceAlreadyProcessed = errors.New("source record already processed")

	// ErrCollectionNotFound is returned when a collection is not tracked
	ErrCollectionNotFound = errors.New("collection not found")

	// ErrUnknownJob is returned by the dispatcher for a job name without handler
	ErrUnknownJob = errors.New("unknown job")

	// ErrMissingConfig is returned when a required configuration value is absent
	ErrMissingConfig = errors.New("missing required configuration")

	// ErrSubscriptionFailed is returned when subscription to new blocks fails
	ErrSubscriptionFailed = errors.New("subscription failed")
)
