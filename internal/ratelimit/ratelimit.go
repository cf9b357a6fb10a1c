package ratelimit

import (
	"fmt"
	"time"
)

// Denial reasons.
const (
	ReasonCooldown = "cooldown"
	ReasonQuota    = "quota"
)

// DeniedError reports why a query was rejected before reaching the
// model.
type DeniedError struct {
	Reason string
}

func (e *DeniedError) Error() string {
	switch e.Reason {
	case ReasonCooldown:
		return "please wait before sending another query"
	case ReasonQuota:
		return "session query limit reached"
	}
	return fmt.Sprintf("query denied: %s", e.Reason)
}

// Limiter bounds query frequency and total per-session query count.
// The counters themselves live in the session; the limiter only holds
// policy.
type Limiter struct {
	Cooldown   time.Duration
	MaxQueries int
}

func New(cooldown time.Duration, maxQueries int) *Limiter {
	return &Limiter{Cooldown: cooldown, MaxQueries: maxQueries}
}

// Check returns nil when a query issued at now is allowed given the
// session's query count and last accepted query time, or a
// DeniedError naming the violated limit. The cooldown is checked
// first, matching the order queries are gated in.
func (l *Limiter) Check(queryCount int, lastQuery, now time.Time) error {
	if now.Sub(lastQuery) < l.Cooldown {
		return &DeniedError{Reason: ReasonCooldown}
	}
	if queryCount >= l.MaxQueries {
		return &DeniedError{Reason: ReasonQuota}
	}
	return nil
}
