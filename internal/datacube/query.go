package datacube

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// TimeRange is a [Start, End) interval
type TimeRange struct {
	Start time.Time
	End   time.Time
}

// NewTimeRangeFromDates returns the range covering whole days, from the first day to the last one (included)
func NewTimeRangeFromDates(first, last time.Time) TimeRange {
	return TimeRange{Start: first.UTC(), End: last.UTC().AddDate(0, 0, 1)}
}

// Contains returns true if t is in the range
func (tr TimeRange) Contains(t time.Time) bool {
	return !t.Before(tr.Start) && t.Before(tr.End)
}

// Query selects the measurements of a product, on an extent and a time range, and defines the output grid
type Query struct {
	Product      string
	Measurements []string
	// Time is optional
	Time *TimeRange
	// X and Y are the (min, max) extent in CRS
	X, Y [2]float64
	CRS  string
	// OutputCRS is optional (product native grid is used instead)
	OutputCRS string
	// Resolution is (y, x), y being usually negative
	Resolution [2]float64
	GroupBy    GroupBy
	FuseFunc   FuseFunc
	// Chunks is the number of elements per dimension to load at once (e.g. {"time": 1})
	// If nil, all the timesteps are loaded at once
	Chunks map[string]int
}

// Bounds returns [xmin, ymin, xmax, ymax] in q.CRS
func (q Query) Bounds() [4]float64 {
	return [4]float64{q.X[0], q.Y[0], q.X[1], q.Y[1]}
}

// TimeChunk returns the number of timesteps to load at once or 0 for all
func (q Query) TimeChunk() int {
	if q.Chunks == nil {
		return 0
	}
	return q.Chunks["time"]
}

// Validate checks the consistency of the query
func (q Query) Validate() error {
	if q.Product == "" {
		return NewValidationError("query: product is not defined")
	}
	if len(q.Measurements) == 0 {
		return NewValidationError("query: at least one measurement must be defined for %s", q.Product)
	}
	if q.X[0] > q.X[1] || q.Y[0] > q.Y[1] {
		return NewValidationError("query: invalid extent x=%v y=%v", q.X, q.Y)
	}
	if q.CRS == "" {
		return NewValidationError("query: crs is not defined")
	}
	if q.OutputCRS != "" && (q.Resolution[0] == 0 || q.Resolution[1] == 0) {
		return NewValidationError("query: resolution must be defined with output crs")
	}
	if q.Time != nil && !q.Time.Start.Before(q.Time.End) {
		return NewValidationError("query: invalid time range %v", *q.Time)
	}
	return nil
}

// String returns a human-readable representation of the query
func (q Query) String() string {
	parts := []string{
		"product=" + q.Product,
		"measurements=[" + strings.Join(q.Measurements, ",") + "]",
	}
	if q.Time != nil {
		parts = append(parts, fmt.Sprintf("time=(%s, %s)", q.Time.Start.Format(time.RFC3339), q.Time.End.Format(time.RFC3339)))
	}
	parts = append(parts,
		fmt.Sprintf("x=(%v, %v)", q.X[0], q.X[1]),
		fmt.Sprintf("y=(%v, %v)", q.Y[0], q.Y[1]),
		"crs="+q.CRS)
	if q.OutputCRS != "" {
		parts = append(parts, "output_crs="+q.OutputCRS, fmt.Sprintf("resolution=(%v, %v)", q.Resolution[0], q.Resolution[1]))
	}
	parts = append(parts, "group_by="+q.GroupBy.String())
	if len(q.Chunks) > 0 {
		keys := make([]string, 0, len(q.Chunks))
		for k := range q.Chunks {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		var chunks []string
		for _, k := range keys {
			chunks = append(chunks, fmt.Sprintf("%s:%d", k, q.Chunks[k]))
		}
		parts = append(parts, "dask_chunks={"+strings.Join(chunks, ",")+"}")
	}
	return "Query(" + strings.Join(parts, ", ") + ")"
}
