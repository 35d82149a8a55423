package automation

import (
	"testing"
	"time"
)

func TestParseRecurringPattern(t *testing.T) {
	p, err := ParseTimePattern("W127/T06:30:00")
	if err != nil {
		t.Fatal(err)
	}
	if p.Kind != KindRecurring {
		t.Fatalf("kind = %v, want KindRecurring", p.Kind)
	}
	if p.Weekdays != 127 {
		t.Errorf("weekdays = %d, want 127", p.Weekdays)
	}
	if p.At != 6*3600+30*60 {
		t.Errorf("at = %d, want %d", p.At, 6*3600+30*60)
	}
}

func TestRecurringMondayOnly(t *testing.T) {
	// W64 is Monday: bit 1<<6 with Monday as day 0.
	p, err := ParseTimePattern("W064/T09:00:00")
	if err != nil {
		t.Fatal(err)
	}

	monday := time.Date(2024, 6, 17, 9, 0, 0, 0, time.Local)
	if monday.Weekday() != time.Monday {
		t.Fatalf("test date is %v, want Monday", monday.Weekday())
	}
	if !p.Due(monday, time.Time{}) {
		t.Error("pattern not due on Monday 09:00:00")
	}

	tuesday := monday.AddDate(0, 0, 1)
	if p.Due(tuesday, time.Time{}) {
		t.Error("pattern due on Tuesday")
	}

	if p.Due(monday.Add(time.Second), time.Time{}) {
		t.Error("pattern due one second past the trigger")
	}
}

func TestTimerPattern(t *testing.T) {
	p, err := ParseTimePattern("PT00:05:00")
	if err != nil {
		t.Fatal(err)
	}
	if p.Kind != KindTimer {
		t.Fatalf("kind = %v, want KindTimer", p.Kind)
	}

	start := time.Date(2024, 6, 17, 12, 0, 0, 0, time.Local)
	if p.Due(start.Add(4*time.Minute), start) {
		t.Error("timer due before the delay elapsed")
	}
	if !p.Due(start.Add(5*time.Minute), start) {
		t.Error("timer not due after the delay elapsed")
	}
}

func TestRecurringTimerPattern(t *testing.T) {
	p, err := ParseTimePattern("R/PT00:01:00")
	if err != nil {
		t.Fatal(err)
	}
	if p.Kind != KindRecurringTimer {
		t.Fatalf("kind = %v, want KindRecurringTimer", p.Kind)
	}
	if p.Duration != time.Minute {
		t.Errorf("duration = %v, want 1m", p.Duration)
	}
}

func TestAbsolutePattern(t *testing.T) {
	p, err := ParseTimePattern("2024-06-21T17:00:00")
	if err != nil {
		t.Fatal(err)
	}
	if p.Kind != KindAbsolute {
		t.Fatalf("kind = %v, want KindAbsolute", p.Kind)
	}

	before := time.Date(2024, 6, 21, 16, 59, 59, 0, time.Local)
	after := time.Date(2024, 6, 21, 17, 0, 0, 0, time.Local)
	if p.Due(before, time.Time{}) {
		t.Error("absolute pattern due before its timestamp")
	}
	if !p.Due(after, time.Time{}) {
		t.Error("absolute pattern not due at its timestamp")
	}
}

func TestJitterBounded(t *testing.T) {
	for i := 0; i < 20; i++ {
		p, err := ParseTimePattern("W127/T08:00:00/A00:30:00")
		if err != nil {
			t.Fatal(err)
		}
		base := 8 * 3600
		if p.At < base || p.At > base+1800 {
			t.Fatalf("jittered time %d outside [%d, %d]", p.At, base, base+1800)
		}
	}
}

func TestParseErrors(t *testing.T) {
	for _, raw := range []string{"", "W/T06:00:00", "W300/T06:00:00", "Wfoo/T06:00:00", "banana"} {
		if _, err := ParseTimePattern(raw); err == nil {
			t.Errorf("ParseTimePattern(%q) succeeded, want error", raw)
		}
	}
}
