package automation

import (
	"fmt"
	"math/rand"
	"strconv"
	"strings"
	"time"
)

// PatternKind classifies a parsed localtime expression.
type PatternKind int

const (
	// KindAbsolute is a one-shot wall-clock timestamp.
	KindAbsolute PatternKind = iota
	// KindRecurring is a weekday-masked daily time (W.../T...).
	KindRecurring
	// KindTimer is a one-shot countdown from the schedule's start time (PT...).
	KindTimer
	// KindRecurringTimer is a countdown that re-arms after firing (R/PT...).
	KindRecurringTimer
)

// TimePattern is a parsed v1 localtime expression. The optional /A suffix
// adds a random offset, fixed at parse time so the schedule fires at one
// consistent instant per arming.
type TimePattern struct {
	Kind PatternKind

	// Weekdays is the W bitmask: bit 1<<(6-d) with Monday as day 0.
	Weekdays int
	// At is the trigger time as seconds since midnight, jitter included.
	At int

	Absolute time.Time
	Duration time.Duration

	Jitter time.Duration
}

// ParseTimePattern parses the v1 localtime grammar:
//
//	W127/T06:00:00        every day at 06:00
//	W064/T08:30:00/A00:30:00  Mondays at 08:30 plus up to 30min
//	PT00:05:00            5 minutes after the schedule was armed
//	R/PT00:05:00          every 5 minutes
//	2024-06-21T17:00:00   once, at that local timestamp
func ParseTimePattern(raw string) (TimePattern, error) {
	var p TimePattern

	// Split off a trailing random-offset element.
	body := raw
	if idx := strings.Index(raw, "/A"); idx >= 0 {
		jitterMax, err := parseClock(raw[idx+2:])
		if err != nil {
			return p, fmt.Errorf("localtime %q: bad random element: %w", raw, err)
		}
		if jitterMax > 0 {
			p.Jitter = time.Duration(rand.Intn(jitterMax+1)) * time.Second
		}
		body = raw[:idx]
	}

	switch {
	case strings.HasPrefix(body, "W"):
		parts := strings.SplitN(body, "/", 2)
		if len(parts) != 2 || !strings.HasPrefix(parts[1], "T") {
			return p, fmt.Errorf("localtime %q: want W<mask>/T<time>", raw)
		}
		mask, err := strconv.Atoi(parts[0][1:])
		if err != nil || mask < 0 || mask > 127 {
			return p, fmt.Errorf("localtime %q: bad weekday mask", raw)
		}
		at, err := parseClock(parts[1][1:])
		if err != nil {
			return p, fmt.Errorf("localtime %q: %w", raw, err)
		}
		p.Kind = KindRecurring
		p.Weekdays = mask
		p.At = at + int(p.Jitter/time.Second)
		return p, nil

	case strings.HasPrefix(body, "R/PT"):
		secs, err := parseClock(body[4:])
		if err != nil {
			return p, fmt.Errorf("localtime %q: %w", raw, err)
		}
		p.Kind = KindRecurringTimer
		p.Duration = time.Duration(secs)*time.Second + p.Jitter
		return p, nil

	case strings.HasPrefix(body, "PT"):
		secs, err := parseClock(body[2:])
		if err != nil {
			return p, fmt.Errorf("localtime %q: %w", raw, err)
		}
		p.Kind = KindTimer
		p.Duration = time.Duration(secs)*time.Second + p.Jitter
		return p, nil

	default:
		ts, err := time.ParseInLocation("2006-01-02T15:04:05", body, time.Local)
		if err != nil {
			return p, fmt.Errorf("localtime %q: unrecognized pattern", raw)
		}
		p.Kind = KindAbsolute
		p.Absolute = ts.Add(p.Jitter)
		return p, nil
	}
}

// parseClock parses HH:MM:SS into seconds.
func parseClock(raw string) (int, error) {
	var h, m, s int
	if _, err := fmt.Sscanf(raw, "%d:%d:%d", &h, &m, &s); err != nil {
		return 0, fmt.Errorf("bad time %q", raw)
	}
	if h < 0 || m < 0 || m > 59 || s < 0 || s > 59 {
		return 0, fmt.Errorf("bad time %q", raw)
	}
	return h*3600 + m*60 + s, nil
}

// weekdayBit returns the W-mask bit for a weekday, with Monday as day 0.
func weekdayBit(wd time.Weekday) int {
	mondayIdx := (int(wd) + 6) % 7
	return 1 << (6 - mondayIdx)
}

// Due reports whether the pattern should fire at now. starttime anchors
// countdown patterns. Recurring patterns match one exact second, so the
// caller must evaluate at least once per second.
func (p TimePattern) Due(now, starttime time.Time) bool {
	switch p.Kind {
	case KindAbsolute:
		return !now.Before(p.Absolute)
	case KindRecurring:
		if p.Weekdays&weekdayBit(now.Weekday()) == 0 {
			return false
		}
		cur := now.Hour()*3600 + now.Minute()*60 + now.Second()
		return cur == p.At
	case KindTimer, KindRecurringTimer:
		return !now.Before(starttime.Add(p.Duration))
	}
	return false
}
