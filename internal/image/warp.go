package image

import (
	"fmt"
	"strconv"

	"github.com/airbusgeo/dcquery/internal/datacube"
	"github.com/airbusgeo/dcquery/internal/utils"
	"github.com/airbusgeo/dcquery/internal/utils/affine"
	"github.com/airbusgeo/godal"
)

// WarpOptions returns the gdalwarp switches to reproject datasets on the grid defined by (wktCRS, transform, width, height)
// nodata is optional.
func WarpOptions(wktCRS string, transform *affine.Affine, width, height int, resampling datacube.Resampling, dtype datacube.DType, nodata *float64) []string {
	options := []string{
		"-t_srs", wktCRS,
		"-ts", strconv.Itoa(width), strconv.Itoa(height),
		"-ovr", "AUTO",
		"-wm", "500",
		"-ot", dtype.ToGDAL().String(),
		"-r", resampling.GDALName(),
		"-nomd",
		"-multi",
	}

	if nodata != nil {
		options = append(options, "-wo", "INIT_DEST="+toS(*nodata), "-dstnodata", toS(*nodata))
	} else {
		options = append(options, "-wo", "INIT_DEST=0", "-dstnodata", "None")
	}

	if transform != nil {
		bounds := transform.Bounds(width, height)
		options = append(options, "-te", toS(bounds[0]), toS(bounds[1]), toS(bounds[2]), toS(bounds[3]))
	}
	return options
}

// ExtractBand opens the band (starting at 1) of the raster at uri as a single-band dataset
// The caller is responsible to close the dataset
func ExtractBand(uri string, band int) (*EphemeralDataset, error) {
	ds, err := godal.Open(uri, ErrLogger)
	if err != nil {
		return nil, fmt.Errorf("ExtractBand[%s]: %w", uri, err)
	}
	nbands := ds.Structure().NBands
	if band < 1 || band > nbands {
		ds.Close()
		return nil, fmt.Errorf("ExtractBand[%s]: band %d does not exist (%d bands)", uri, band, nbands)
	}
	if nbands == 1 {
		return &EphemeralDataset{ds, ""}, nil
	}

	turi := NewMemURI(".vrt")
	tds, err := ds.Translate(turi, []string{"-of", "VRT", "-b", strconv.Itoa(band)}, ErrLogger)
	ds.Close()
	if err != nil {
		return nil, fmt.Errorf("ExtractBand.Translate[%s] band %d: %w", uri, band, err)
	}
	return &EphemeralDataset{tds, turi}, nil
}

// CloseEphemeralDatasets closes the datasets in reverse order
func CloseEphemeralDatasets(ds []*EphemeralDataset) error {
	var errs error
	for i := len(ds) - 1; i >= 0; i-- {
		if err := ds[i].Close(); err != nil {
			errs = utils.MergeErrors(true, errs, err)
		}
	}
	return errs
}
