package svc_test

import (
	"time"

	"github.com/airbusgeo/dcquery/internal/datacube"
	"github.com/airbusgeo/dcquery/internal/utils/proj"
	"github.com/airbusgeo/godal"
	. "github.com/onsi/gomega"
)

const size = 10

var (
	nodata = 0.0
	t0     = time.Date(2020, 1, 1, 10, 0, 0, 0, time.UTC)
	// extent of the sources in EPSG:32631
	sourceExtent = [4]float64{500000, 4599900, 500100, 4600000}
)

func newProduct(name string) *datacube.Product {
	return &datacube.Product{
		Name:       name,
		Type:       "surface_reflectance",
		CRS:        "EPSG:32631",
		Resolution: [2]float64{-10, 10},
		Measurements: []datacube.Measurement{
			{Name: "red", Aliases: []string{"band_4"}, DType: datacube.DTypeUINT16, NoData: &nodata},
			{Name: "nir", DType: datacube.DTypeUINT16, NoData: &nodata},
		},
	}
}

func newDataset(id, product, path string, t time.Time) *datacube.Dataset {
	return &datacube.Dataset{
		ID:        id,
		Product:   product,
		Time:      t,
		Footprint: proj.NewShapeFromBounds([4]float64{2.5, 41.5, 3.5, 41.6}, 4326),
		CRS:       "EPSG:32631",
		Bands:     map[string]datacube.BandLocation{"red": {URI: path, Band: 1}},
	}
}

// createSource writes a 10x10 uint16 GeoTIFF covering sourceExtent with nodata=0
func createSource(path string, value float64) {
	ds, err := godal.Create(godal.GTiff, path, 1, godal.UInt16, size, size)
	Expect(err).To(BeNil())
	defer ds.Close()
	sr, err := godal.NewSpatialRefFromEPSG(32631)
	Expect(err).To(BeNil())
	defer sr.Close()
	Expect(ds.SetSpatialRef(sr)).To(Succeed())
	Expect(ds.SetGeoTransform([6]float64{sourceExtent[0], 10, 0, sourceExtent[3], 0, -10})).To(Succeed())
	buf := make([]float64, size*size)
	for i := range buf {
		buf[i] = value
	}
	band := ds.Bands()[0]
	Expect(band.SetNoData(0)).To(Succeed())
	Expect(band.Write(0, 0, buf, size, size)).To(Succeed())
}
