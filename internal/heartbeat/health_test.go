package heartbeat

import (
	"testing"
	"time"
)

func TestScore(t *testing.T) {
	timeout := 600 * time.Second

	tests := []struct {
		name  string
		since time.Duration
		want  float64
	}{
		{"fresh heartbeat", 0, 100},
		{"quarter stale", 150 * time.Second, 75},
		{"half stale", 300 * time.Second, 50},
		{"at timeout", 600 * time.Second, 0},
		{"beyond timeout", 700 * time.Second, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Score(tt.since, timeout)
			if got != tt.want {
				t.Fatalf("Score(%s, %s) = %v, want %v", tt.since, timeout, got, tt.want)
			}
		})
	}
}

func TestScoreDecreasesLinearly(t *testing.T) {
	timeout := 600 * time.Second
	prev := Score(0, timeout)
	for since := 30 * time.Second; since <= timeout; since += 30 * time.Second {
		got := Score(since, timeout)
		if got >= prev {
			t.Fatalf("score did not decrease at since=%s: %v >= %v", since, got, prev)
		}
		// each 30s of staleness costs exactly 5 points
		if diff := prev - got; diff < 4.999 || diff > 5.001 {
			t.Fatalf("non-linear drop at since=%s: %v", since, diff)
		}
		prev = got
	}
}

func TestScoreDegenerateTimeout(t *testing.T) {
	if got := Score(time.Second, 0); got != 0 {
		t.Fatalf("Score with zero timeout = %v, want 0", got)
	}
}

func TestThresholdBands(t *testing.T) {
	th := DefaultThresholds

	tests := []struct {
		score   float64
		band    Band
		stalled bool
	}{
		{100, BandHealthy, false},
		{60, BandHealthy, false},
		{59.9, BandWarning, false},
		{30, BandWarning, false},
		{29.9, BandCritical, true},
		{0, BandCritical, true},
	}
	for _, tt := range tests {
		if got := th.Band(tt.score); got != tt.band {
			t.Errorf("Band(%v) = %s, want %s", tt.score, got, tt.band)
		}
		if got := th.Stalled(tt.score); got != tt.stalled {
			t.Errorf("Stalled(%v) = %v, want %v", tt.score, got, tt.stalled)
		}
	}
}
