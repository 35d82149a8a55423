package daylight

import (
	"testing"
	"time"
)

func TestSunTimesOrdering(t *testing.T) {
	// Amsterdam
	c := NewCalculator(52.37, 4.89, "UTC")
	date := time.Date(2024, time.June, 21, 12, 0, 0, 0, time.UTC)

	times := c.Times(date)

	if !times.Sunrise.Before(times.Noon) {
		t.Errorf("sunrise %v not before noon %v", times.Sunrise, times.Noon)
	}
	if !times.Noon.Before(times.Sunset) {
		t.Errorf("noon %v not before sunset %v", times.Noon, times.Sunset)
	}
	if times.Sunrise.Day() != date.Day() {
		t.Errorf("sunrise fell on day %d, want %d", times.Sunrise.Day(), date.Day())
	}
}

func TestSummerDayLongerThanWinterDay(t *testing.T) {
	c := NewCalculator(52.37, 4.89, "UTC")

	summer := c.Times(time.Date(2024, time.June, 21, 0, 0, 0, 0, time.UTC))
	winter := c.Times(time.Date(2024, time.December, 21, 0, 0, 0, 0, time.UTC))

	summerLen := summer.Sunset.Sub(summer.Sunrise)
	winterLen := winter.Sunset.Sub(winter.Sunrise)

	if summerLen <= winterLen {
		t.Errorf("summer day %v not longer than winter day %v", summerLen, winterLen)
	}
	if summerLen < 14*time.Hour {
		t.Errorf("summer day %v implausibly short for 52N", summerLen)
	}
	if winterLen > 10*time.Hour {
		t.Errorf("winter day %v implausibly long for 52N", winterLen)
	}
}

func TestIsDaylight(t *testing.T) {
	c := NewCalculator(52.37, 4.89, "UTC")

	noon := time.Date(2024, time.June, 21, 12, 30, 0, 0, time.UTC)
	midnight := time.Date(2024, time.June, 21, 0, 30, 0, 0, time.UTC)

	if !c.IsDaylight(noon) {
		t.Error("noon should be daylight")
	}
	if c.IsDaylight(midnight) {
		t.Error("midnight should not be daylight")
	}
}

func TestTimesCached(t *testing.T) {
	c := NewCalculator(52.37, 4.89, "UTC")
	date := time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC)

	a := c.Times(date)
	b := c.Times(date)

	if !a.Sunrise.Equal(b.Sunrise) || !a.Sunset.Equal(b.Sunset) {
		t.Error("cached result differs from first computation")
	}
}
