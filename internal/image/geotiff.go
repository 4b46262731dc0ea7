package image

import (
	"fmt"

	"github.com/airbusgeo/dcquery/internal/datacube"
	"github.com/airbusgeo/godal"
)

// outputDType returns the dtype used to write bands of the given dtypes in a GeoTIFF.
// All the bands must share the same dtype. A dtype that GTiff cannot store is upcast.
func outputDType(dtypes []datacube.DType) (datacube.DType, error) {
	if len(dtypes) == 0 {
		return datacube.DTypeUNDEFINED, fmt.Errorf("no band to write")
	}
	dtype := dtypes[0]
	for _, d := range dtypes[1:] {
		if d != dtype {
			return datacube.DTypeUNDEFINED, fmt.Errorf("all the bands must have the same dtype (found %s and %s)", dtype, d)
		}
	}
	if dtype.IsValidForGTiff() {
		return dtype, nil
	}
	upcast, err := dtype.Upcast()
	if err != nil {
		return datacube.DTypeUNDEFINED, fmt.Errorf("dtype %s cannot be written in a GeoTIFF: %w", dtype, err)
	}
	if !upcast.IsValidForGTiff() {
		return datacube.DTypeUNDEFINED, fmt.Errorf("dtype %s cannot be written in a GeoTIFF", dtype)
	}
	return upcast, nil
}

// WriteGeoTIFF writes all the bands of ds in a GeoTIFF file.
// The creation options are GTiffDefaults updated with override.
// If the file exists and overwrite is false, an error is returned.
func WriteGeoTIFF(ds *godal.Dataset, path string, override Profile, overwrite bool) error {
	bands := ds.Bands()
	if len(bands) == 0 {
		return fmt.Errorf("WriteGeoTIFF %s: dataset has no band", path)
	}

	profile := GTiffDefaults.Merge(override)
	var dtypes []datacube.DType
	if dt, ok := profile[ProfileDType]; ok && dt != "" {
		if dtypes = []datacube.DType{datacube.DTypeFromString(dt)}; dtypes[0] == datacube.DTypeUNDEFINED {
			return fmt.Errorf("WriteGeoTIFF %s: unknown dtype %s", path, dt)
		}
	} else {
		for _, band := range bands {
			dtypes = append(dtypes, datacube.DTypeFromGDAL(band.Structure().DataType))
		}
	}
	dtype, err := outputDType(dtypes)
	if err != nil {
		return fmt.Errorf("WriteGeoTIFF %s: %w", path, err)
	}

	structure := ds.Structure()
	profile.adjustBlockSize(structure.SizeX, structure.SizeY)

	nodata, hasNoData, err := profile.NoData()
	if err != nil {
		return fmt.Errorf("WriteGeoTIFF %s: %w", path, err)
	}

	if fileExists(path) {
		if !overwrite {
			return fmt.Errorf("WriteGeoTIFF: %s already exists", path)
		}
		if err := removeRaster(path); err != nil {
			return fmt.Errorf("WriteGeoTIFF: %w", err)
		}
	}

	options := append([]string{"-of", "GTiff", "-ot", dtype.ToGDAL().String()}, profile.creationOptions()...)
	out, err := ds.Translate(path, options, ErrLogger)
	if err != nil {
		return fmt.Errorf("WriteGeoTIFF.Translate %s: %w", path, err)
	}

	outBands := out.Bands()
	for i, band := range bands {
		nd, ok := nodata, hasNoData
		if !ok {
			nd, ok = band.NoData()
		}
		if ok {
			if err := outBands[i].SetNoData(nd); err != nil {
				out.Close()
				return fmt.Errorf("WriteGeoTIFF.SetNoData %s: %w", path, err)
			}
		}
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("WriteGeoTIFF.Close %s: %w", path, err)
	}
	return nil
}
