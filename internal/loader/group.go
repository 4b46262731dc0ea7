package loader

import (
	"sort"
	"time"

	"github.com/airbusgeo/dcquery/internal/datacube"
)

// TimeGroup gathers the datasets of a timestep
type TimeGroup struct {
	Time     time.Time
	Datasets []datacube.Dataset
}

// Group sorts the datasets by time and groups them by timestep:
// the acquisition time (GroupByNone) or the solar day of the centre of the footprint (GroupBySolarDay).
// Inside a group, datasets are sorted by acquisition time, then by id.
func Group(datasets []datacube.Dataset, groupBy datacube.GroupBy) []TimeGroup {
	sorted := append([]datacube.Dataset(nil), datasets...)
	sort.SliceStable(sorted, func(i, j int) bool {
		ki, kj := groupBy.TimeKey(sorted[i]), groupBy.TimeKey(sorted[j])
		if !ki.Equal(kj) {
			return ki.Before(kj)
		}
		if !sorted[i].Time.Equal(sorted[j].Time) {
			return sorted[i].Time.Before(sorted[j].Time)
		}
		return sorted[i].ID < sorted[j].ID
	})

	var groups []TimeGroup
	for _, d := range sorted {
		key := groupBy.TimeKey(d)
		if n := len(groups); n > 0 && groups[n-1].Time.Equal(key) {
			groups[n-1].Datasets = append(groups[n-1].Datasets, d)
			continue
		}
		groups = append(groups, TimeGroup{Time: key, Datasets: []datacube.Dataset{d}})
	}
	return groups
}
