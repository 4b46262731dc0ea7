package datacube

import (
	"fmt"
	"math"
	"time"
)

// GroupBy defines how the datasets of a query are grouped into timesteps
type GroupBy int

const (
	// GroupByNone: one timestep per distinct acquisition time
	GroupByNone GroupBy = iota
	// GroupBySolarDay: one timestep per local solar day
	GroupBySolarDay
)

func (g GroupBy) String() string {
	switch g {
	case GroupByNone:
		return "time"
	case GroupBySolarDay:
		return "solar_day"
	}
	return fmt.Sprintf("GroupBy(%d)", int(g))
}

// IsGrouped returns true if several acquisition times may be fused in a timestep
func (g GroupBy) IsGrouped() bool {
	return g != GroupByNone
}

// FuseFunc defines how the datasets of a timestep are fused
type FuseFunc int

const (
	// FuseFirst keeps the first valid pixel (datasets being sorted by time)
	FuseFirst FuseFunc = iota
)

func (f FuseFunc) String() string {
	if f == FuseFirst {
		return "first"
	}
	return fmt.Sprintf("FuseFunc(%d)", int(f))
}

// GroupByOption is a user-facing grouping choice
type GroupByOption struct {
	Label    string
	GroupBy  GroupBy
	FuseFunc FuseFunc
}

// GroupByOptions lists the grouping choices, the first one being the default
var GroupByOptions = []GroupByOption{
	{Label: "Solar day", GroupBy: GroupBySolarDay, FuseFunc: FuseFirst},
	{Label: "Time", GroupBy: GroupByNone, FuseFunc: FuseFirst},
}

// GroupByOptionFromLabel returns the index of the option (case insensitive)
func GroupByOptionFromLabel(label string) (int, error) {
	for i, o := range GroupByOptions {
		if equalFold(o.Label, label) || equalFold(o.GroupBy.String(), label) {
			return i, nil
		}
	}
	return 0, NewValidationError("unknown group by: %s", label)
}

// SolarDay returns the date of the local solar day of an acquisition at the given longitude
func SolarDay(t time.Time, lon float64) time.Time {
	offset := time.Duration(math.Round(lon / 15 * float64(time.Hour)))
	d := t.UTC().Add(offset)
	return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)
}

// TimeKey returns the timestep the dataset belongs to
func (g GroupBy) TimeKey(d Dataset) time.Time {
	if g == GroupBySolarDay {
		return SolarDay(d.Time, d.CenterLongitude())
	}
	return d.Time.UTC()
}
