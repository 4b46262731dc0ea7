package image

import (
	"fmt"
	"strings"

	"github.com/airbusgeo/godal"
)

// BandStatistics are the statistics of the valid pixels of a band
type BandStatistics struct {
	Min, Max, Mean, StdDev float64
	Approximate            bool
}

// GDAL fails to compute the statistics of a band without valid pixel with this message
const noValidPixelMsg = "no valid pixels"

func bandStatistics(band godal.Band, approxOK bool) (*BandStatistics, error) {
	opts := []godal.StatisticsOption{ErrLogger}
	if approxOK {
		opts = append(opts, godal.Approximate())
	}
	s, err := band.ComputeStatistics(opts...)
	if err != nil {
		if strings.Contains(err.Error(), noValidPixelMsg) {
			return nil, nil
		}
		return nil, err
	}
	return &BandStatistics{Min: s.Min, Max: s.Max, Mean: s.Mean, StdDev: s.Std, Approximate: s.Approximate}, nil
}

// CalculateStatistics computes the statistics of each band of the GeoTIFF at path.
// GDAL stores them as STATISTICS_* metadata. If approxOK, statistics may be computed on an overview.
// A band without any valid pixel is left without statistics (nil).
func CalculateStatistics(path string, approxOK bool) ([]*BandStatistics, error) {
	ds, err := godal.Open(path, godal.Update(), ErrLogger)
	if err != nil {
		return nil, fmt.Errorf("CalculateStatistics.Open %s: %w", path, err)
	}
	bands := ds.Bands()
	res := make([]*BandStatistics, len(bands))
	for i, band := range bands {
		if res[i], err = bandStatistics(band, approxOK); err != nil {
			ds.Close()
			return nil, fmt.Errorf("CalculateStatistics %s (band %d): %w", path, i+1, err)
		}
	}
	if err := ds.Close(); err != nil {
		return nil, fmt.Errorf("CalculateStatistics.Close %s: %w", path, err)
	}
	return res, nil
}
