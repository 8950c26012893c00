// hunt/service/errors.go
package service

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors surfaced by the progression engine. Handlers map these to
// HTTP statuses; none of them indicate a server fault.
var (
	// ErrInvalidAnswer means the submitted answer failed validation. No state
	// was touched; resubmitting a valid answer is always allowed.
	ErrInvalidAnswer = errors.New("answer must be lowercase alphanumeric with no spaces")

	// ErrTeamNotFound means no progress record exists for the team.
	ErrTeamNotFound = errors.New("team progress not found")

	// ErrLevelNotFound means no question is defined for the team's current level.
	ErrLevelNotFound = errors.New("no question found for current level")

	// ErrTeamDisqualified means the team is currently disqualified from the hunt.
	ErrTeamDisqualified = errors.New("team is disqualified")

	// ErrTeamExists means a team with the given id is already registered.
	ErrTeamExists = errors.New("team already registered")
)

// RateLimitedError is returned when a submission arrives inside the cooldown
// window. RetryAfter carries the remaining wait. State is never mutated on
// this path.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limit exceeded, please wait %d second(s)", int(e.RetryAfter.Seconds()+0.999))
}

// IsRateLimited reports whether err is a RateLimitedError and returns it.
func IsRateLimited(err error) (*RateLimitedError, bool) {
	var rl *RateLimitedError
	if errors.As(err, &rl) {
		return rl, true
	}
	return nil, false
}
