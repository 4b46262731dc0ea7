package image

import (
	"fmt"
	"os"

	"github.com/airbusgeo/dcquery/internal/utils"
	"github.com/airbusgeo/godal"
	"github.com/google/uuid"
)

var ErrLogger = godal.ErrLogger(func(ec godal.ErrorCategory, code int, msg string) error {
	if ec <= godal.CE_Warning {
		return nil
	}
	return fmt.Errorf("GDAL %d: %s", code, msg)
})

// EphemeralDataset is a dataset that is removed from the filesystem (or /vsimem) when closed
type EphemeralDataset struct {
	*godal.Dataset
	URI string
}

// NewMemURI returns a unique /vsimem uri with the given extension
func NewMemURI(ext string) string {
	return "/vsimem/" + uuid.New().String() + ext
}

// UnlinkDataset closes and unlinks dataset whether it's a /vsimem or physical uri
func UnlinkDataset(dataset *godal.Dataset, uri string) error {
	if dataset != nil {
		if err := dataset.Close(); err != nil {
			return err
		}
	}
	if uri == "" {
		return nil
	}
	return godal.VSIUnlink(uri)
}

func (ds *EphemeralDataset) Close() error {
	err := UnlinkDataset(ds.Dataset, ds.URI)
	ds.Dataset = nil
	return err
}

// removeRaster removes a GeoTIFF and its sidecar files (external overviews, PAM metadata)
func removeRaster(path string) error {
	var errs error
	for _, p := range []string{path, path + ".ovr", path + ".aux.xml"} {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			errs = utils.MergeErrors(true, errs, err)
		}
	}
	return errs
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func toS(f float64) string {
	return utils.F64ToS(f)
}
