package datacube

import (
	"fmt"
	"strings"

	"github.com/airbusgeo/godal"
)

// Resampling defines how the raster is resampled when its size has to be changed
type Resampling int32

const (
	ResamplingNEAR Resampling = iota
	ResamplingBILINEAR
	ResamplingCUBIC
	ResamplingCUBICSPLINE
	ResamplingLANCZOS
	ResamplingAVERAGE
	ResamplingGAUSS
	ResamplingMODE
	ResamplingMAX
	ResamplingMIN
	ResamplingMED
	ResamplingQ1
	ResamplingQ3
)

var resamplingNames = [...]string{"nearest", "bilinear", "cubic", "cubic_spline", "lanczos", "average", "gauss", "mode", "max", "min", "med", "q1", "q3"}

func (r Resampling) String() string {
	if r < 0 || int(r) >= len(resamplingNames) {
		return fmt.Sprintf("Resampling(%d)", int(r))
	}
	return resamplingNames[r]
}

// ParseResampling returns the resampling from its name (case insensitive)
func ParseResampling(s string) (Resampling, error) {
	switch strings.ToLower(s) {
	case "near", "nearest":
		return ResamplingNEAR, nil
	case "cubicspline":
		return ResamplingCUBICSPLINE, nil
	case "median":
		return ResamplingMED, nil
	}
	for i, n := range resamplingNames {
		if strings.EqualFold(n, s) {
			return Resampling(i), nil
		}
	}
	return ResamplingNEAR, NewValidationError("unknown resampling: %s", s)
}

// MarshalYAML implements yaml.Marshaler
func (r Resampling) MarshalYAML() (interface{}, error) {
	return r.String(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler
func (r *Resampling) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	var err error
	*r, err = ParseResampling(s)
	return err
}

func (r Resampling) ToGDAL() godal.ResamplingAlg {
	switch r {
	default:
		return godal.Nearest
	case ResamplingBILINEAR:
		return godal.Bilinear
	case ResamplingCUBIC:
		return godal.Cubic
	case ResamplingCUBICSPLINE:
		return godal.CubicSpline
	case ResamplingLANCZOS:
		return godal.Lanczos
	case ResamplingAVERAGE:
		return godal.Average
	case ResamplingGAUSS:
		return godal.Gauss
	case ResamplingMODE:
		return godal.Mode
	case ResamplingMAX:
		return godal.Max
	case ResamplingMIN:
		return godal.Min
	case ResamplingMED:
		return godal.Median
	case ResamplingQ1:
		return godal.Q1
	case ResamplingQ3:
		return godal.Q3
	}
}

// GDALName returns the name of the resampling as expected by gdal utilities (-r)
func (r Resampling) GDALName() string {
	switch r {
	case ResamplingNEAR:
		return "near"
	case ResamplingCUBICSPLINE:
		return "cubicspline"
	}
	return r.String()
}
