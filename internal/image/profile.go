package image

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/airbusgeo/dcquery/internal/utils"
)

// Profile holds the creation options of a GeoTIFF. Keys are lowercase.
type Profile map[string]string

// Keys of a profile that are not passed to the driver as creation options
const (
	ProfileNoData = "nodata"
	ProfileDType  = "dtype"
	ProfileDriver = "driver"
)

// GTiffDefaults are the creation options used when none is overridden
var GTiffDefaults = Profile{
	"tiled":      "yes",
	"blockxsize": "256",
	"blockysize": "256",
	"compress":   "lzw",
	"interleave": "band",
}

// NewProfile converts decoded settings values (yaml/json) to a Profile
func NewProfile(options map[string]interface{}) (Profile, error) {
	p := Profile{}
	for k, v := range options {
		s, err := optionValue(v)
		if err != nil {
			return nil, fmt.Errorf("option %s: %w", k, err)
		}
		p[strings.ToLower(k)] = s
	}
	return p, nil
}

func optionValue(v interface{}) (string, error) {
	switch v := v.(type) {
	case string:
		return v, nil
	case bool:
		if v {
			return "yes", nil
		}
		return "no", nil
	case int:
		return strconv.Itoa(v), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case float64:
		return utils.F64ToS(v), nil
	case nil:
		return "", nil
	}
	return "", fmt.Errorf("unsupported value %v (%T)", v, v)
}

// Merge returns a copy of p updated by override, with lowercase keys
func (p Profile) Merge(override Profile) Profile {
	res := Profile{}
	for k, v := range p {
		res[strings.ToLower(k)] = v
	}
	for k, v := range override {
		res[strings.ToLower(k)] = v
	}
	return res
}

func (p Profile) isTrue(key string) bool {
	switch strings.ToLower(p[key]) {
	case "yes", "true", "on", "1":
		return true
	}
	return false
}

// adjustBlockSize drops the block size and disables tiling if the blocks are larger than the raster
func (p Profile) adjustBlockSize(width, height int) {
	bx, errx := strconv.Atoi(p["blockxsize"])
	by, erry := strconv.Atoi(p["blockysize"])
	if (errx == nil && bx > width) || (erry == nil && by > height) {
		delete(p, "blockxsize")
		delete(p, "blockysize")
		p["tiled"] = "no"
	}
}

// NoData returns the nodata value overriding the one of the bands, if any
func (p Profile) NoData() (float64, bool, error) {
	v, ok := p[ProfileNoData]
	if !ok || v == "" {
		return 0, false, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, false, fmt.Errorf("invalid nodata %q: %w", v, err)
	}
	return f, true, nil
}

// creationOptions returns the "-co KEY=VALUE" switches, sorted by key
func (p Profile) creationOptions() []string {
	keys := make([]string, 0, len(p))
	for k := range p {
		switch k {
		case ProfileNoData, ProfileDType, ProfileDriver:
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var options []string
	for _, k := range keys {
		v := p[k]
		if k == "tiled" {
			v = "NO"
			if p.isTrue(k) {
				v = "YES"
			}
		}
		options = append(options, "-co", strings.ToUpper(k)+"="+v)
	}
	return options
}
