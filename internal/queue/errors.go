package queue

import "errors"

var (
	// ErrJobNotFound is returned by mutating operations handed an id whose
	// record does not exist (never created, or expired). Plain reads report
	// absence as a nil job instead.
	ErrJobNotFound = errors.New("job not found")
)

// MaxRetriesExceededMessage is the error text stored on a job that failed
// terminally because its retry budget ran out.
const MaxRetriesExceededMessage = "Max retries exceeded"
