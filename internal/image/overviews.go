package image

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/airbusgeo/dcquery/internal/datacube"
	"github.com/airbusgeo/godal"
)

// OverviewNamespace is the metadata domain where the resampling used to build the overviews is stored
const OverviewNamespace = "rio_overview"

// OverviewOptions configures the overviews (pyramid) of a GeoTIFF
type OverviewOptions struct {
	Factors         []int
	Resampling      datacube.Resampling
	InternalStorage bool
}

// DefaultOverviewOptions returns the options used when none is overridden
func DefaultOverviewOptions() OverviewOptions {
	return OverviewOptions{
		Factors:         []int{2, 4, 8, 16, 32},
		Resampling:      datacube.ResamplingNEAR,
		InternalStorage: true,
	}
}

// Merge returns a copy of o updated with the decoded settings values (keys are case insensitive):
// factors (list of int), resampling (name) and internal_storage (bool)
func (o OverviewOptions) Merge(override map[string]interface{}) (OverviewOptions, error) {
	res := o
	res.Factors = append([]int(nil), o.Factors...)
	for k, v := range override {
		switch strings.ToLower(k) {
		case "factors":
			factors, err := toInts(v)
			if err != nil {
				return res, fmt.Errorf("overview factors: %w", err)
			}
			res.Factors = factors
		case "resampling":
			s, ok := v.(string)
			if !ok {
				return res, fmt.Errorf("overview resampling: expecting a string, got %v", v)
			}
			r, err := datacube.ParseResampling(s)
			if err != nil {
				return res, fmt.Errorf("overview resampling: %w", err)
			}
			res.Resampling = r
		case "internal_storage":
			b, err := toBool(v)
			if err != nil {
				return res, fmt.Errorf("overview internal_storage: %w", err)
			}
			res.InternalStorage = b
		default:
			return res, fmt.Errorf("unknown overview option %s", k)
		}
	}
	for _, f := range res.Factors {
		if f < 2 {
			return res, fmt.Errorf("overview factors must be greater than 1 (got %d)", f)
		}
	}
	return res, nil
}

func toInts(v interface{}) ([]int, error) {
	switch v := v.(type) {
	case []int:
		return v, nil
	case []interface{}:
		res := make([]int, len(v))
		for i, e := range v {
			switch e := e.(type) {
			case int:
				res[i] = e
			case int64:
				res[i] = int(e)
			case float64:
				if e != float64(int(e)) {
					return nil, fmt.Errorf("%v is not an integer", e)
				}
				res[i] = int(e)
			default:
				return nil, fmt.Errorf("%v is not an integer", e)
			}
		}
		return res, nil
	}
	return nil, fmt.Errorf("expecting a list of integers, got %v", v)
}

func toBool(v interface{}) (bool, error) {
	switch v := v.(type) {
	case bool:
		return v, nil
	case string:
		return strconv.ParseBool(v)
	}
	return false, fmt.Errorf("expecting a boolean, got %v", v)
}

// BuildOverviews builds the overviews of the GeoTIFF at path.
// With internal storage, the overviews are written inside the file, otherwise in path.ovr.
// The resampling is then tagged in the OverviewNamespace domain.
func BuildOverviews(path string, opts OverviewOptions) error {
	if len(opts.Factors) == 0 {
		return nil
	}

	var openOptions []godal.OpenOption
	if opts.InternalStorage {
		openOptions = append(openOptions, godal.Update())
	}
	openOptions = append(openOptions, godal.Drivers("GTiff"), ErrLogger)
	ds, err := godal.Open(path, openOptions...)
	if err != nil {
		return fmt.Errorf("BuildOverviews.Open %s: %w", path, err)
	}

	if err := ds.BuildOverviews(godal.Levels(opts.Factors...), godal.Resampling(opts.Resampling.ToGDAL())); err != nil {
		ds.Close()
		return fmt.Errorf("BuildOverviews %s: %w", path, err)
	}
	if err := ds.Close(); err != nil {
		return fmt.Errorf("BuildOverviews.Close %s: %w", path, err)
	}

	return UpdateTags(path, 0, OverviewNamespace, map[string]string{"resampling": opts.Resampling.String()})
}
