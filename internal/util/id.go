package util

import "github.com/google/uuid"

// NewID returns a random identifier for sessions, messages and jobs.
func NewID() string {
	return uuid.NewString()
}
