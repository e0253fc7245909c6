package util

import "github.com/google/uuid"

// NewRunID returns a random identifier used to correlate the log records of one run.
func NewRunID() string {
	return uuid.NewString()
}
