package datacube

import (
	"strings"
	"time"
)

const (
	datetimeLayout    = "2006-01-02_15-04-05"
	dateLayout        = "2006-01-02"
	datetimeTagLayout = "2006:01:02 15:04:05"
	dateTagLayout     = "2006:01:02"
	// DateLayout is the layout of user-defined dates
	DateLayout = dateLayout
)

// DatetimeString formats the timestep to be used in a filename
func DatetimeString(t time.Time, grouped bool) string {
	if grouped {
		return t.UTC().Format(dateLayout)
	}
	return t.UTC().Format(datetimeLayout)
}

// DatetimeTag formats the timestep as expected by TIFFTAG_DATETIME
func DatetimeTag(t time.Time, grouped bool) string {
	if grouped {
		return t.UTC().Format(dateTagLayout)
	}
	return t.UTC().Format(datetimeTagLayout)
}

// ParseDate parses a YYYY-MM-DD date (UTC)
func ParseDate(s string) (time.Time, error) {
	return time.ParseInLocation(dateLayout, strings.TrimSpace(s), time.UTC)
}

func equalFold(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
