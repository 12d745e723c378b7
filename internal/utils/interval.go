package utils

import (
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/robfig/cron/v3"
)

var intervalUnits = map[byte]time.Duration{
	'w': 7 * 24 * time.Hour,
	'd': 24 * time.Hour,
	'h': time.Hour,
	'm': time.Minute,
	's': time.Second,
}

// ParseSmartInterval parses the compact interval format "1w2d3h4m5s" into a
// duration. Empty input means zero (run once). Unknown characters between
// digit groups are rejected.
func ParseSmartInterval(interval string) (time.Duration, error) {
	if interval == "" {
		return 0, nil
	}
	var total time.Duration
	var current int
	var haveDigits bool
	for i := 0; i < len(interval); i++ {
		c := interval[i]
		switch {
		case c >= '0' && c <= '9':
			current = current*10 + int(c-'0')
			haveDigits = true
		default:
			unit, ok := intervalUnits[c]
			if !ok || !haveDigits {
				return 0, fmt.Errorf("invalid interval format: %s", interval)
			}
			total += time.Duration(current) * unit
			current = 0
			haveDigits = false
		}
	}
	if haveDigits {
		return 0, fmt.Errorf("invalid interval format: %s", interval)
	}
	return total, nil
}

// ConvertToJobDef converts an interval string to a gocron.JobDefinition.
// Accepts the smart format ("1w2d"), a cron expression, or a plain duration.
func ConvertToJobDef(interval string) (gocron.JobDefinition, error) {
	if dur, err := ParseSmartInterval(interval); err == nil && dur > 0 {
		return gocron.DurationJob(dur), nil
	}

	if _, err := cron.ParseStandard(interval); err == nil {
		return gocron.CronJob(interval, false), nil
	}

	if dur, err := time.ParseDuration(interval); err == nil {
		return gocron.DurationJob(dur), nil
	}

	return nil, fmt.Errorf("invalid interval format: %s", interval)
}
