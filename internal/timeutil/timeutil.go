package timeutil

import (
	"fmt"
	"regexp"
	"time"
)

var intervalRe = regexp.MustCompile(`^(\d+)([mhd])$`)

// ParseInterval converts a candle interval string ("15m", "4h", "1d")
// into a duration. time.ParseDuration is not enough here: exchanges use
// "d" for days.
func ParseInterval(interval string) (time.Duration, error) {
	match := intervalRe.FindStringSubmatch(interval)
	if match == nil {
		return 0, fmt.Errorf("invalid candle interval %q", interval)
	}

	var value int
	if _, err := fmt.Sscanf(match[1], "%d", &value); err != nil {
		return 0, fmt.Errorf("invalid candle interval %q: %w", interval, err)
	}

	var unit time.Duration
	switch match[2] {
	case "m":
		unit = time.Minute
	case "h":
		unit = time.Hour
	case "d":
		unit = 24 * time.Hour
	}

	return time.Duration(value) * unit, nil
}
