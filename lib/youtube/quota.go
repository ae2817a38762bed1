package youtube

import (
	"math"
	"time"
)

const (
	// Each API key has a quota of 10,000 units per day.
	unitsPerKeyPerDay = 10_000

	// listPageSize is the maximum page size for list endpoints.
	listPageSize = 50

	// quotaResetZone is where the platform anchors its daily quota reset
	// (midnight Pacific time).
	quotaResetZone = "America/Los_Angeles"
)

var resetLocation = mustLoadLocation(quotaResetZone)

func mustLoadLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic(err)
	}
	return loc
}

// QuotaWindow returns the UTC boundaries of the daily quota window containing
// now: the previous and next midnight in the reset timezone.
func QuotaWindow(now time.Time) (start, end time.Time) {
	local := now.In(resetLocation)
	y, m, d := local.Date()
	start = time.Date(y, m, d, 0, 0, 0, 0, resetLocation)
	end = start.AddDate(0, 0, 1)
	return start.UTC(), end.UTC()
}

// NextReset returns the UTC time when the current quota window rolls over.
func NextReset(now time.Time) time.Time {
	_, end := QuotaWindow(now)
	return end
}

// DailyBudget returns the total units the key set may spend per quota window.
func DailyBudget(numKeys int) int {
	return numKeys * unitsPerKeyPerDay
}

// CycleInterval derives how often a full poll cycle may run without blowing
// the daily quota, spreading the allowed request budget evenly over the day.
// One cycle costs one playlist request per channel, plus one request of
// headroom for resolution calls.
func CycleInterval(numChannels, numKeys int) time.Duration {
	if numChannels <= 0 || numKeys <= 0 {
		return 24 * time.Hour
	}

	requestsPerCycle := numChannels + 1
	cyclesPerDay := (numKeys * unitsPerKeyPerDay) / requestsPerCycle
	if cyclesPerDay == 0 {
		return 24 * time.Hour
	}

	secs := math.Ceil(float64(24*60*60) / float64(cyclesPerDay))
	return time.Duration(secs) * time.Second
}
