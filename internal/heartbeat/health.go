// Package heartbeat infers liveness for running tasks. Health scoring is a
// pure function of heartbeat staleness; the monitor applies it on a tick
// and flags suspected zombies without ever killing anything itself.
package heartbeat

import "time"

// Band is a display classification of a health score.
type Band string

const (
	BandHealthy  Band = "healthy"
	BandWarning  Band = "warning"
	BandCritical Band = "critical"
)

// Thresholds are the named health cutoffs. They classify scores for
// display and stall detection; they are not lifecycle states.
type Thresholds struct {
	// StalledBelow is the score under which a task counts as stalled.
	StalledBelow float64
	// WarnBelow is the score under which a task shows as warning.
	WarnBelow float64
}

// DefaultThresholds matches the dashboard bands: healthy above 60,
// warning 30-60, critical below 30.
var DefaultThresholds = Thresholds{StalledBelow: 30, WarnBelow: 60}

// Score computes the health percentage for a task whose last heartbeat was
// sinceHeartbeat ago against its timeout. 100 at a fresh heartbeat,
// decaying linearly to 0 as staleness reaches the timeout, clamped there.
func Score(sinceHeartbeat, timeout time.Duration) float64 {
	if timeout <= 0 {
		return 0
	}
	h := 100 - (sinceHeartbeat.Seconds()/timeout.Seconds())*100
	if h < 0 {
		return 0
	}
	if h > 100 {
		return 100
	}
	return h
}

// Stalled reports whether the score falls below the stalled threshold.
func (th Thresholds) Stalled(score float64) bool {
	return score < th.StalledBelow
}

// Band classifies a score into its display band.
func (th Thresholds) Band(score float64) Band {
	switch {
	case score < th.StalledBelow:
		return BandCritical
	case score < th.WarnBelow:
		return BandWarning
	default:
		return BandHealthy
	}
}
