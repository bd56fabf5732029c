// Package googleflow keeps the Google sign-ins that have been started but not yet
// completed, keyed by their OAuth state parameter.
package googleflow

import (
	"errors"
	"time"
)

// DefaultTTL is how long a started sign-in can wait for Google's callback
const DefaultTTL = 10 * time.Minute

var (
	ErrEmptyState    = errors.New("state cannot be empty")
	ErrStateNotFound = errors.New("state not found")
)

type Flow struct {
	// ReturnURL is where the browser lands after signing in
	ReturnURL string
	CreatedAt time.Time
}

type Repo interface {
	Upsert(state string, flow Flow) error
	// Take returns the flow and removes it, so a state is only ever accepted once
	Take(state string) (Flow, error)
}
