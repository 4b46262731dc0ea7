package image

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/airbusgeo/cogger"
	"github.com/airbusgeo/dcquery/internal/utils"
	"github.com/airbusgeo/godal"
	"github.com/google/tiff"
)

// RewriteCOG rewrites the tiled GeoTIFF at path (and its internal overviews) as a Cloud Optimized GeoTIFF.
// External overviews (path.ovr) cannot be embedded.
func RewriteCOG(path string) error {
	if fileExists(path + ".ovr") {
		return fmt.Errorf("RewriteCOG %s: external overviews cannot be embedded in a COG", path)
	}
	tmpPath := path + ".cog.tmp"
	if err := rewriteTiff(path, tmpPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("RewriteCOG %s: %w", path, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("RewriteCOG %s: %w", path, err)
	}
	return nil
}

func rewriteTiff(src, dest string) error {
	file, fdesc, err := openDatasetTiff(src)
	if err != nil {
		return fmt.Errorf("failed to open tiff: %w", err)
	}
	defer fdesc.Close()

	cogFile, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("failed to create cog: %w", err)
	}

	if err := cogger.Rewrite(cogFile, file); err != nil {
		cogFile.Close()
		return fmt.Errorf("failed to rewrite cog: %w", err)
	}
	return cogFile.Close()
}

func openDatasetTiff(path string) (tiff.ReadAtReadSeeker, io.Closer, error) {
	fd, err := godal.VSIOpen(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open file: %w", err)
	}
	return tiff.NewReadAtReadSeeker(fd), fd, nil
}

// ValidateCOG returns an error if the file is not a valid COG
// (see: https://github.com/rouault/cog_validator/blob/master/validate_cloud_optimized_geotiff.py)
func ValidateCOG(path string) error {
	ds, err := godal.Open(path, godal.Drivers("GTiff"), ErrLogger)
	if err != nil {
		return err
	}
	defer ds.Close()

	band := ds.Bands()[0]
	st := band.Structure()
	overviews := band.Overviews()

	if st.SizeX > 512 || st.SizeY > 512 {
		if isStripped(st.BlockSizeX, st.BlockSizeY, st.SizeX, st.SizeY) {
			err = utils.MergeErrors(true, err, fmt.Errorf("file is greater than 1024xHeight or Widthx1024, but is not tiled"))
		}
	}

	ifdOffsets := []int{}
	ifdOffset, e := strconv.Atoi(band.Metadata("IFD_OFFSET", godal.Domain("TIFF")))
	if e != nil {
		err = utils.MergeErrors(true, err, e)
	}
	ifdOffsets = append(ifdOffsets, ifdOffset)

	prevX, prevY := st.SizeX, st.SizeY
	for i, ovr := range overviews {
		ost := ovr.Structure()
		if ost.SizeX > prevX || ost.SizeY > prevY {
			err = utils.MergeErrors(true, err, fmt.Errorf("overview %d is larger than the previous level", i))
		}
		prevX, prevY = ost.SizeX, ost.SizeY
		if isStripped(ost.BlockSizeX, ost.BlockSizeY, st.SizeX, st.SizeY) {
			err = utils.MergeErrors(true, err, fmt.Errorf("overview %d is not tiled", i))
		}

		if ifdOffset, e = strconv.Atoi(ovr.Metadata("IFD_OFFSET", godal.Domain("TIFF"))); e != nil {
			err = utils.MergeErrors(true, err, e)
		}
		ifdOffsets = append(ifdOffsets, ifdOffset)
		if n := len(ifdOffsets); ifdOffsets[n-1] < ifdOffsets[n-2] {
			err = utils.MergeErrors(true, err, fmt.Errorf("the IFD of overview %d is at byte %d, before the IFD of the previous level (byte %d)", i, ifdOffsets[n-1], ifdOffsets[n-2]))
		}
	}

	dataOffsets := []int{firstBlockOffset(band)}
	for _, ovr := range overviews {
		dataOffsets = append(dataOffsets, firstBlockOffset(ovr))
	}

	if last := dataOffsets[len(dataOffsets)-1]; last != 0 && last < ifdOffsets[len(ifdOffsets)-1] {
		err = utils.MergeErrors(true, err, fmt.Errorf("the first block of the smallest level should be after its IFD"))
	}
	if len(dataOffsets) >= 2 && dataOffsets[0] != 0 && dataOffsets[0] < dataOffsets[1] {
		err = utils.MergeErrors(true, err, fmt.Errorf("the first block of the full resolution should be after the one of the overviews"))
	}
	return err
}

func isStripped(blockSizeX, blockSizeY, sizeX, sizeY int) bool {
	return (blockSizeX == sizeX && blockSizeX > 1024) || (blockSizeY == sizeY && blockSizeY > 1024)
}

func firstBlockOffset(band godal.Band) int {
	st := band.Structure()
	for y := 0; y < (st.SizeY+st.BlockSizeY-1)/st.BlockSizeY; y++ {
		for x := 0; x < (st.SizeX+st.BlockSizeX-1)/st.BlockSizeX; x++ {
			if offset := band.Metadata(fmt.Sprintf("BLOCK_OFFSET_%d_%d", x, y), godal.Domain("TIFF")); offset != "" {
				i, err := strconv.Atoi(offset)
				if err != nil {
					return -1
				}
				return i
			}
		}
	}
	return -1
}
