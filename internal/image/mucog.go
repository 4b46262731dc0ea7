package image

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/airbusgeo/mucog"
	"github.com/google/tiff"
)

// WriteMultiTemporal stacks the COGs of paths into a single multi-temporal COG (MUCOG) written in out.
// Each source becomes a sub-image named after its file name (without extension).
func WriteMultiTemporal(paths []string, out string) error {
	if len(paths) == 0 {
		return fmt.Errorf("WriteMultiTemporal %s: no input file", out)
	}
	totalSize := int64(0)
	multicog := mucog.New()
	for _, p := range paths {
		f, err := os.Open(p)
		if err != nil {
			return fmt.Errorf("WriteMultiTemporal: %w", err)
		}
		//noinspection GoDeferInLoop
		defer f.Close()

		size, err := appendCOG(multicog, f, p)
		if err != nil {
			return fmt.Errorf("WriteMultiTemporal %s: %w", p, err)
		}
		totalSize += size
	}

	mucogFile, err := os.Create(out)
	if err != nil {
		return fmt.Errorf("WriteMultiTemporal: %w", err)
	}
	if err = multicog.Write(mucogFile, totalSize > int64(^uint32(0))); err != nil {
		mucogFile.Close()
		return fmt.Errorf("WriteMultiTemporal.Write %s: %w", out, err)
	}
	return mucogFile.Close()
}

func appendCOG(multicog *mucog.MultiCOG, f *os.File, path string) (int64, error) {
	st, err := f.Stat()
	if err != nil {
		return 0, fmt.Errorf("stat: %w", err)
	}

	tif, err := tiff.Parse(f, nil, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to parse tiff file: %w", err)
	}

	ifds, err := mucog.LoadTIFF(tif)
	if err != nil {
		return 0, fmt.Errorf("failed to load tiff file: %w", err)
	}

	if len(ifds) == 1 && ifds[0].DocumentName == "" {
		ifds[0].DocumentName = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	for _, ifd := range ifds {
		multicog.AppendIFD(ifd)
	}
	return st.Size(), nil
}
