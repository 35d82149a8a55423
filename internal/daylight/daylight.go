// Package daylight computes local sunrise and sunset for the bridge's
// configured coordinates. The daylight sensor and smart scene sunset slots
// are driven from these times.
package daylight

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// SunTimes are the solar events of one day, in the bridge's timezone.
type SunTimes struct {
	Sunrise time.Time `json:"sunrise"`
	Noon    time.Time `json:"noon"`
	Sunset  time.Time `json:"sunset"`
}

// Calculator computes sun times for a fixed location, caching per day.
type Calculator struct {
	lat float64
	lon float64
	tz  *time.Location

	mu    sync.RWMutex
	cache map[string]SunTimes
}

// NewCalculator creates a calculator for the given coordinates. An unknown
// timezone falls back to UTC.
func NewCalculator(lat, lon float64, timezone string) *Calculator {
	tz, err := time.LoadLocation(timezone)
	if err != nil {
		log.Warn().Err(err).Str("timezone", timezone).Msg("Failed to load timezone, using UTC")
		tz = time.UTC
	}

	log.Info().
		Float64("lat", lat).
		Float64("lon", lon).
		Str("timezone", tz.String()).
		Msg("Daylight calculator initialized")

	return &Calculator{
		lat:   lat,
		lon:   lon,
		tz:    tz,
		cache: make(map[string]SunTimes),
	}
}

// Timezone returns the calculator's location.
func (c *Calculator) Timezone() *time.Location {
	return c.tz
}

// Times returns the sun times for the given date.
func (c *Calculator) Times(date time.Time) SunTimes {
	date = date.In(c.tz)
	key := fmt.Sprintf("%.4f,%.4f,%s", c.lat, c.lon, date.Format("2006-01-02"))

	c.mu.RLock()
	cached, ok := c.cache[key]
	c.mu.RUnlock()
	if ok {
		return cached
	}

	// The NOAA sunrise equation expects the Julian day at noon, not midnight.
	jd := toJulianDay(date) + 0.5

	times := SunTimes{
		Sunrise: sunTime(jd, c.lat, c.lon, c.tz, date, -0.833, true),
		Noon:    solarNoon(jd, c.lon, c.tz, date),
		Sunset:  sunTime(jd, c.lat, c.lon, c.tz, date, -0.833, false),
	}

	c.mu.Lock()
	c.cache[key] = times
	c.mu.Unlock()

	return times
}

// TimesForToday returns the sun times for the current day.
func (c *Calculator) TimesForToday() SunTimes {
	return c.Times(time.Now().In(c.tz))
}

// IsDaylight reports whether now falls between sunrise and sunset.
func (c *Calculator) IsDaylight(now time.Time) bool {
	times := c.Times(now)
	return now.After(times.Sunrise) && now.Before(times.Sunset)
}

// toJulianDay converts a date to Julian day number.
func toJulianDay(t time.Time) float64 {
	y := float64(t.Year())
	m := float64(t.Month())
	d := float64(t.Day())

	if m <= 2 {
		y--
		m += 12
	}

	a := math.Floor(y / 100)
	b := 2 - a + math.Floor(a/4)

	return math.Floor(365.25*(y+4716)) + math.Floor(30.6001*(m+1)) + d + b - 1524.5
}

// solarNoon calculates solar noon.
func solarNoon(jd, lon float64, tz *time.Location, date time.Time) time.Time {
	n := jd - 2451545.0 + 0.0008
	jStar := n - lon/360.0

	// Solar mean anomaly
	m := math.Mod(357.5291+0.98560028*jStar, 360.0)
	mRad := m * math.Pi / 180.0

	// Equation of center
	c := 1.9148*math.Sin(mRad) + 0.02*math.Sin(2*mRad) + 0.0003*math.Sin(3*mRad)

	// Ecliptic longitude
	lambda := math.Mod(m+c+180+102.9372, 360.0)
	lambdaRad := lambda * math.Pi / 180.0

	jTransit := 2451545.0 + jStar + 0.0053*math.Sin(mRad) - 0.0069*math.Sin(2*lambdaRad)

	return julianToTime(jTransit, tz, date)
}

// sunTime calculates sunrise or sunset for the given solar angle.
func sunTime(jd, lat, lon float64, tz *time.Location, date time.Time, angle float64, rising bool) time.Time {
	n := jd - 2451545.0 + 0.0008
	jStar := n - lon/360.0

	m := math.Mod(357.5291+0.98560028*jStar, 360.0)
	mRad := m * math.Pi / 180.0

	c := 1.9148*math.Sin(mRad) + 0.02*math.Sin(2*mRad) + 0.0003*math.Sin(3*mRad)

	lambda := math.Mod(m+c+180+102.9372, 360.0)
	lambdaRad := lambda * math.Pi / 180.0

	jTransit := 2451545.0 + jStar + 0.0053*math.Sin(mRad) - 0.0069*math.Sin(2*lambdaRad)

	// Declination of the sun
	sinDec := math.Sin(lambdaRad) * math.Sin(23.44*math.Pi/180.0)
	dec := math.Asin(sinDec)

	// Hour angle
	latRad := lat * math.Pi / 180.0
	angleRad := angle * math.Pi / 180.0

	cosOmega := (math.Sin(angleRad) - math.Sin(latRad)*math.Sin(dec)) / (math.Cos(latRad) * math.Cos(dec))

	// Polar day/night clamp
	if cosOmega > 1 {
		cosOmega = 1
	} else if cosOmega < -1 {
		cosOmega = -1
	}

	omega := math.Acos(cosOmega) * 180.0 / math.Pi

	var jTime float64
	if rising {
		jTime = jTransit - omega/360.0
	} else {
		jTime = jTransit + omega/360.0
	}

	return julianToTime(jTime, tz, date)
}

// julianToTime converts a Julian day to a wall-clock time on the reference
// date.
func julianToTime(jd float64, tz *time.Location, refDate time.Time) time.Time {
	unixTime := (jd - 2440587.5) * 86400.0
	t := time.Unix(int64(unixTime), int64((unixTime-math.Floor(unixTime))*1e9)).In(tz)

	return time.Date(
		refDate.Year(), refDate.Month(), refDate.Day(),
		t.Hour(), t.Minute(), t.Second(), 0, tz,
	)
}
