package proj

import (
	"database/sql/driver"
	"fmt"
	"math"
	"runtime"
	"strconv"
	"strings"
	"sync"

	"github.com/airbusgeo/godal"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkbhex"
)

// LonLatBounds is the valid extent of geographic coordinates
var LonLatBounds = [4]float64{-180, -90, 180, 90}

// CreateLonLatProj create a CoordinateTransform from/to the geographic lon/lat coordinates
func CreateLonLatProj(crs *godal.SpatialRef, inverse bool) (*godal.Transform, error) {
	lonlatCRS, err := CRSFromEPSG(4326)
	if err != nil {
		return nil, fmt.Errorf("CreateLonLatProj.%w", err)
	}

	var tr *godal.Transform
	if inverse {
		tr, err = godal.NewTransform(crs, lonlatCRS)
	} else {
		tr, err = godal.NewTransform(lonlatCRS, crs)
	}
	if err != nil {
		return nil, fmt.Errorf("CreateLonLatProj: %w", err)
	}
	return tr, nil
}

// CRSFromUserInput initialize a crs from epsg ("4326", "EPSG:4326"), proj4 or Wkt format
// Return the SRID if known
// The caller is responsible to close the crs
func CRSFromUserInput(input string) (*godal.SpatialRef, int, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return nil, 0, fmt.Errorf("CRSFromUserInput: empty crs")
	}
	if epsg, err := strconv.Atoi(input); err == nil {
		crs, err := godal.NewSpatialRefFromEPSG(epsg)
		return crs, epsg, err
	}
	if strings.HasPrefix(strings.ToLower(input), "epsg:") {
		epsg, err := strconv.Atoi(input[5:])
		if err != nil {
			return nil, 0, fmt.Errorf("CRSFromUserInput[%s]: %w", input, err)
		}
		crs, err := godal.NewSpatialRefFromEPSG(epsg)
		return crs, epsg, err
	}
	if strings.HasPrefix(input, "+") {
		crs, err := godal.NewSpatialRefFromProj4(input)
		if err != nil {
			return nil, 0, err
		}
		return crs, Srid(crs), nil
	}
	crs, err := godal.NewSpatialRefFromWKT(input)
	if err != nil {
		return nil, 0, err
	}
	return crs, Srid(crs), nil
}

// IsValid returns true if input can be parsed as a crs
func IsValid(input string) bool {
	crs, _, err := CRSFromUserInput(input)
	if err != nil {
		return false
	}
	crs.Close()
	return true
}

// WKTFromUserInput converts a user-defined crs to its WKT representation
func WKTFromUserInput(input string) (string, error) {
	crs, _, err := CRSFromUserInput(input)
	if err != nil {
		return "", fmt.Errorf("WKTFromUserInput.%w", err)
	}
	defer crs.Close()
	return crs.WKT()
}

var crsEPSG = map[int]*godal.SpatialRef{}
var crsEPSGLock sync.Mutex

// CRSFromEPSG initialize a crs from epsg (only once per epsg)
// DO NOT release the crs (it is kept for further uses)
func CRSFromEPSG(epsg int) (*godal.SpatialRef, error) {
	crsEPSGLock.Lock()
	defer crsEPSGLock.Unlock()

	if crs, ok := crsEPSG[epsg]; ok {
		return crs, nil
	}

	crs, err := godal.NewSpatialRefFromEPSG(epsg)
	if err != nil {
		return nil, fmt.Errorf("CRSFromEPSG: %w", err)
	}
	runtime.SetFinalizer(crs, func(crs *godal.SpatialRef) { crs.Close() })
	crsEPSG[epsg] = crs
	return crs, nil
}

// Srid returns the SRID from the crs or 0 if not found
// Warning : this function is not reliable...
func Srid(crs *godal.SpatialRef) int {
	if crs == nil {
		return 0
	}
	entities := []string{"PROJCS", "PROJCS", "LOCAL_CS", "GEOGCS"}
	for i, entity := range entities {
		if crs.AuthorityName(entity) == "EPSG" {
			if res, err := strconv.Atoi(crs.AuthorityCode(entity)); err == nil {
				return res
			}
		}
		if i == 0 {
			crs.AutoIdentifyEPSG()
		}
	}
	return 0
}

// Within returns true if bounds is included in container
func Within(bounds, container [4]float64) bool {
	return bounds[0] >= container[0] && bounds[1] >= container[1] && bounds[2] <= container[2] && bounds[3] <= container[3]
}

// TransformBounds transforms [xmin, ymin, xmax, ymax] from src to dst,
// densifying each edge with densifyPts points, and returns the bounding box of the result.
func TransformBounds(bounds [4]float64, src, dst *godal.SpatialRef, densifyPts int) ([4]float64, error) {
	if src.IsSame(dst) {
		return bounds, nil
	}
	tr, err := godal.NewTransform(src, dst)
	if err != nil {
		return [4]float64{}, fmt.Errorf("TransformBounds: %w", err)
	}
	defer tr.Close()

	n := densifyPts + 2
	x, y := make([]float64, 0, 4*n), make([]float64, 0, 4*n)
	for i := 0; i < n; i++ {
		f := float64(i) / float64(n-1)
		xi := bounds[0] + f*(bounds[2]-bounds[0])
		yi := bounds[1] + f*(bounds[3]-bounds[1])
		x = append(x, xi, xi, bounds[0], bounds[2])
		y = append(y, bounds[1], bounds[3], yi, yi)
	}
	ok := make([]bool, len(x))
	if err := tr.TransformEx(x, y, make([]float64, len(x)), ok); err != nil {
		return [4]float64{}, fmt.Errorf("TransformBounds: %w", err)
	}

	res := [4]float64{math.Inf(1), math.Inf(1), math.Inf(-1), math.Inf(-1)}
	for i := range x {
		if !ok[i] {
			continue
		}
		res[0], res[1] = math.Min(res[0], x[i]), math.Min(res[1], y[i])
		res[2], res[3] = math.Max(res[2], x[i]), math.Max(res[3], y[i])
	}
	if math.IsInf(res[0], 0) {
		return [4]float64{}, fmt.Errorf("TransformBounds: no point of %v can be transformed", bounds)
	}
	return res, nil
}

// NewPolygonFromBounds returns the polygon corresponding to [xmin, ymin, xmax, ymax]
func NewPolygonFromBounds(bounds [4]float64, srid int) *geom.Polygon {
	b := geom.NewBounds(geom.XY)
	b.SetCoords([]float64{bounds[0], bounds[1]}, []float64{bounds[2], bounds[3]})
	p := b.Polygon()
	p.SetSRID(srid)
	return p
}

/*******************************************************************/
/*                            SHAPES                               */
/*******************************************************************/

// Shape is a XY-Multipolygon implementing Scan & Value
type Shape struct {
	geom.MultiPolygon
}

// NewShape create a new shape
func NewShape(srid int, mp *geom.MultiPolygon) Shape {
	p := mp.Clone()
	p.SetSRID(srid)
	return Shape{*p}
}

// NewShapeFromBounds creates a single-polygon shape
func NewShapeFromBounds(bounds [4]float64, srid int) Shape {
	mp := geom.NewMultiPolygon(geom.XY)
	if err := mp.Push(NewPolygonFromBounds(bounds, srid)); err != nil {
		panic(err)
	}
	mp.SetSRID(srid)
	return Shape{*mp}
}

// Centroid returns the center of the bounding box of the shape
func (shape *Shape) Centroid() (float64, float64) {
	b := shape.Bounds()
	return (b.Min(0) + b.Max(0)) / 2, (b.Min(1) + b.Max(1)) / 2
}

// Scan implements the sql.Scanner interface.
func (shape *Shape) Scan(src interface{}) error {
	if src == nil {
		*shape = Shape{}
		return nil
	}
	var hex string
	switch src := src.(type) {
	case []uint8:
		hex = string(src)
	case string:
		hex = src
	default:
		return fmt.Errorf("cannot convert %T to Shape", src)
	}
	g, err := ewkbhex.Decode(hex)
	if err != nil {
		return err
	}
	switch g := g.(type) {
	case *geom.MultiPolygon:
		shape.MultiPolygon = *g
	case *geom.Polygon:
		mp := geom.NewMultiPolygon(geom.XY)
		if err := mp.Push(g); err != nil {
			return fmt.Errorf("shape.Scan: %w", err)
		}
		mp.SetSRID(g.SRID())
		shape.MultiPolygon = *mp
	default:
		return fmt.Errorf("shape.Scan: data is not a (multi)polygon")
	}
	return nil
}

// Value implements the driver.Valuer interface.
func (shape Shape) Value() (driver.Value, error) {
	return ewkbhex.Encode(&shape.MultiPolygon, ewkbhex.NDR)
}
