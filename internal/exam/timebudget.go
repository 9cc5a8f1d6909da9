package exam

import "time"

// Budget is the time left on a timed module. Untimed modules report Timed=false
// and are never expired.
type Budget struct {
	RemainingSeconds int64 `json:"remaining_seconds"`
	IsExpired        bool  `json:"is_expired"`
	Timed            bool  `json:"timed"`
}

// ComputeRemaining is the single expiry formula shared by every server-side
// gate and the countdown sent to clients:
//
//	remaining = max(0, duration*60 - elapsedSeconds), expired = remaining == 0
//
// Elapsed time is truncated to whole seconds and never negative.
func ComputeRemaining(startedAt time.Time, durationMinutes *int, now time.Time) Budget {
	if durationMinutes == nil {
		return Budget{}
	}
	elapsed := int64(now.Sub(startedAt) / time.Second)
	if elapsed < 0 {
		elapsed = 0
	}
	remaining := int64(*durationMinutes)*60 - elapsed
	if remaining < 0 {
		remaining = 0
	}
	return Budget{RemainingSeconds: remaining, IsExpired: remaining == 0, Timed: true}
}

// deadline returns the instant the budget runs out, if the module is timed.
func deadline(startedAt time.Time, durationMinutes *int) (time.Time, bool) {
	if durationMinutes == nil {
		return time.Time{}, false
	}
	return startedAt.Add(time.Duration(*durationMinutes) * time.Minute), true
}
