package types

import (
	"math"
	"time"

	"github.com/dustin/go-humanize"
)

// compactMagnitudes renders "just now", "5m ago", "2h ago" and "3d ago".
var compactMagnitudes = []humanize.RelTimeMagnitude{
	{D: time.Minute, Format: "just now", DivBy: 1},
	{D: time.Hour, Format: "%dm %s", DivBy: time.Minute},
	{D: 24 * time.Hour, Format: "%dh %s", DivBy: time.Hour},
	{D: math.MaxInt64, Format: "%dd %s", DivBy: 24 * time.Hour},
}

// RelativeTime formats then relative to now in the compact form used by
// job listings.
func RelativeTime(then, now time.Time) string {
	if then.After(now) {
		return "just now"
	}
	return humanize.CustomRelTime(then, now, "ago", "from now", compactMagnitudes)
}

// LastUpdate returns the relative time of the most recent transition, or
// an empty string when the job has none or the timestamp is malformed.
func (j Job) LastUpdate(now time.Time) string {
	last, ok := j.LastTransition()
	if !ok {
		return ""
	}
	at, err := last.Parsed()
	if err != nil {
		return ""
	}
	return RelativeTime(at, now)
}
