package cronjob

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// cronParser is a standard 5-field cron expression parser (minute hour dom month dow).
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Validate checks that a schedule string parses for its kind. Called on
// every create and update so a malformed job never reaches the store.
func Validate(kind Kind, schedule, timezone string) error {
	if timezone != "" {
		if _, err := time.LoadLocation(timezone); err != nil {
			return fmt.Errorf("%w: unknown timezone %q", ErrInvalidSchedule, timezone)
		}
	}
	switch kind {
	case KindEvery:
		if _, err := parseEvery(schedule); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidSchedule, err)
		}
	case KindCron:
		if _, err := cronParser.Parse(schedule); err != nil {
			return fmt.Errorf("%w: cron expression %q: %v", ErrInvalidSchedule, schedule, err)
		}
	case KindAt:
		if _, err := time.Parse(time.RFC3339, schedule); err != nil {
			return fmt.Errorf("%w: at timestamp %q: %v", ErrInvalidSchedule, schedule, err)
		}
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidSchedule, kind)
	}
	return nil
}

// parseEvery accepts a bare millisecond count or a Go duration string.
func parseEvery(schedule string) (time.Duration, error) {
	s := strings.TrimSpace(schedule)
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		if ms <= 0 {
			return 0, fmt.Errorf("interval must be positive, got %dms", ms)
		}
		return time.Duration(ms) * time.Millisecond, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("parse every interval %q: %w", s, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("interval must be positive, got %v", d)
	}
	return d, nil
}

// calcNextRun computes a job's next firing instant relative to now. The
// result may lie in the past, which means the job is overdue and fires
// once immediately; missed boundaries never compound into a burst. A zero
// time means the job is exhausted (a one-shot that already fired).
func calcNextRun(job *Job, now time.Time) (time.Time, error) {
	switch job.Kind {
	case KindEvery:
		d, err := parseEvery(job.Schedule)
		if err != nil {
			return time.Time{}, err
		}
		if job.LastRunAt == nil {
			return now, nil
		}
		next := job.LastRunAt.Add(d)
		if next.Before(now) {
			// process was down across one or more boundaries
			return now, nil
		}
		return next, nil

	case KindCron:
		sched, err := cronParser.Parse(job.Schedule)
		if err != nil {
			return time.Time{}, fmt.Errorf("parse cron expression %q: %w", job.Schedule, err)
		}
		loc := job.Location()
		if job.LastRunAt == nil {
			return sched.Next(now.In(loc)), nil
		}
		next := sched.Next(job.LastRunAt.In(loc))
		if next.Before(now) {
			// one catch-up firing; the reschedule after it lands in the future
			return next, nil
		}
		return next, nil

	case KindAt:
		if job.LastRunAt != nil {
			// one-shot already fired
			return time.Time{}, nil
		}
		t, err := time.Parse(time.RFC3339, job.Schedule)
		if err != nil {
			return time.Time{}, fmt.Errorf("parse at timestamp %q: %w", job.Schedule, err)
		}
		return t, nil

	default:
		return time.Time{}, fmt.Errorf("unknown schedule kind: %s", job.Kind)
	}
}
