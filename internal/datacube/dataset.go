package datacube

import (
	"fmt"
	"time"

	"github.com/airbusgeo/dcquery/internal/utils/proj"
)

// BandLocation locates the raster of a measurement: a file and a band (starting at 1)
type BandLocation struct {
	URI  string
	Band int
}

// Dataset is an indexed observation of a product at a given time
type Dataset struct {
	ID      string
	Product string
	Time    time.Time
	// Footprint in lon/lat (EPSG:4326)
	Footprint proj.Shape
	CRS       string
	Bands     map[string]BandLocation
	Metadata  Metadata
}

// Band returns the location of the measurement in the dataset
func (d Dataset) Band(measurement string) (BandLocation, error) {
	b, ok := d.Bands[measurement]
	if !ok {
		return BandLocation{}, NewEntityNotFound("", "", "", "measurement %s not found in dataset %s", measurement, d.ID)
	}
	return b, nil
}

// CenterLongitude returns the longitude of the center of the footprint
func (d Dataset) CenterLongitude() float64 {
	if len(d.Footprint.FlatCoords()) == 0 {
		return 0
	}
	lon, _ := d.Footprint.Centroid()
	return lon
}

func (d Dataset) String() string {
	return fmt.Sprintf("%s[%s@%s]", d.ID, d.Product, d.Time.Format(time.RFC3339))
}
