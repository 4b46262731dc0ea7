package image

import (
	"fmt"
	"sort"

	"github.com/airbusgeo/godal"
)

// UpdateTags sets the metadata items of a raster in the given namespace (empty for the default domain).
// bidx is the 1-based index of the band, 0 for the dataset.
func UpdateTags(path string, bidx int, namespace string, tags map[string]string) error {
	ds, err := godal.Open(path, godal.Update(), ErrLogger)
	if err != nil {
		return fmt.Errorf("UpdateTags.Open %s: %w", path, err)
	}
	if err := setTags(ds, bidx, namespace, tags); err != nil {
		ds.Close()
		return fmt.Errorf("UpdateTags %s: %w", path, err)
	}
	return ds.Close()
}

func setTags(ds *godal.Dataset, bidx int, namespace string, tags map[string]string) error {
	var opts []godal.MetadataOption
	if namespace != "" {
		opts = append(opts, godal.Domain(namespace))
	}

	keys := make([]string, 0, len(tags))
	for k := range tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	if bidx == 0 {
		for _, k := range keys {
			if err := ds.SetMetadata(k, tags[k], opts...); err != nil {
				return fmt.Errorf("set %s: %w", k, err)
			}
		}
		return nil
	}

	bands := ds.Bands()
	if bidx < 0 || bidx > len(bands) {
		return fmt.Errorf("band %d does not exist", bidx)
	}
	for _, k := range keys {
		if err := bands[bidx-1].SetMetadata(k, tags[k], opts...); err != nil {
			return fmt.Errorf("set %s on band %d: %w", k, bidx, err)
		}
	}
	return nil
}

// Tags returns the metadata items of a raster in the given namespace
func Tags(path string, bidx int, namespace string) (map[string]string, error) {
	ds, err := godal.Open(path, ErrLogger)
	if err != nil {
		return nil, fmt.Errorf("Tags.Open %s: %w", path, err)
	}
	defer ds.Close()

	var opts []godal.MetadataOption
	if namespace != "" {
		opts = append(opts, godal.Domain(namespace))
	}
	if bidx == 0 {
		return ds.Metadatas(opts...), nil
	}
	bands := ds.Bands()
	if bidx < 0 || bidx > len(bands) {
		return nil, fmt.Errorf("Tags %s: band %d does not exist", path, bidx)
	}
	return bands[bidx-1].Metadatas(opts...), nil
}
