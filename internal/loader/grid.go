package loader

import (
	"fmt"
	"math"

	"github.com/airbusgeo/dcquery/internal/datacube"
	"github.com/airbusgeo/dcquery/internal/utils/affine"
	"github.com/airbusgeo/dcquery/internal/utils/proj"
	"github.com/airbusgeo/godal"
)

// DefaultCRS is the CRS of a query extent when none is given
const DefaultCRS = "EPSG:4326"

// densifyPts is the number of points added on each edge of an extent to transform it
const densifyPts = 21

// Grid is the output pixel grid of a query
type Grid struct {
	// CRS in WKT
	CRS       string
	Transform *affine.Affine
	Width     int
	Height    int
}

// Bounds returns [xmin, ymin, xmax, ymax] of the grid in its CRS
func (g Grid) Bounds() [4]float64 {
	return g.Transform.Bounds(g.Width, g.Height)
}

func (g Grid) String() string {
	return fmt.Sprintf("%dx%d %v", g.Width, g.Height, *g.Transform)
}

func queryCRS(q datacube.Query) (*godal.SpatialRef, error) {
	crs := q.CRS
	if crs == "" {
		crs = DefaultCRS
	}
	src, _, err := proj.CRSFromUserInput(crs)
	if err != nil {
		return nil, datacube.NewValidationError("invalid query crs %s: %v", crs, err)
	}
	return src, nil
}

// LonLatBounds returns the extent of the query in geographic coordinates
func LonLatBounds(q datacube.Query) ([4]float64, error) {
	src, err := queryCRS(q)
	if err != nil {
		return [4]float64{}, fmt.Errorf("LonLatBounds: %w", err)
	}
	defer src.Close()
	lonlat, err := proj.CRSFromEPSG(4326)
	if err != nil {
		return [4]float64{}, fmt.Errorf("LonLatBounds: %w", err)
	}
	bounds, err := proj.TransformBounds(q.Bounds(), src, lonlat, densifyPts)
	if err != nil {
		return [4]float64{}, fmt.Errorf("LonLatBounds.%w", err)
	}
	return bounds, nil
}

// NewGrid returns the grid covering the extent of the query in the output crs (else the native crs of the product)
// with the resolution of the query (else the native resolution of the product).
func NewGrid(q datacube.Query, product datacube.Product) (Grid, error) {
	outCRS, res := q.OutputCRS, q.Resolution
	if outCRS == "" {
		if product.CRS == "" {
			return Grid{}, datacube.NewValidationError("product %s has no native crs: output_crs must be specified", product.Name)
		}
		outCRS = product.CRS
	}
	if res[0] == 0 || res[1] == 0 {
		if res = product.Resolution; res[0] == 0 || res[1] == 0 {
			return Grid{}, datacube.NewValidationError("resolution must be specified with output_crs %s", outCRS)
		}
	}

	src, err := queryCRS(q)
	if err != nil {
		return Grid{}, fmt.Errorf("NewGrid: %w", err)
	}
	defer src.Close()
	dst, _, err := proj.CRSFromUserInput(outCRS)
	if err != nil {
		return Grid{}, datacube.NewValidationError("invalid output crs %s: %v", outCRS, err)
	}
	defer dst.Close()
	wkt, err := dst.WKT()
	if err != nil {
		return Grid{}, fmt.Errorf("NewGrid: %w", err)
	}

	bounds, err := proj.TransformBounds(q.Bounds(), src, dst, densifyPts)
	if err != nil {
		return Grid{}, fmt.Errorf("NewGrid.%w", err)
	}
	return snapGrid(wkt, bounds, res)
}

// snapGrid aligns bounds on the multiples of the resolution (y, x)
func snapGrid(wkt string, bounds [4]float64, res [2]float64) (Grid, error) {
	resy, resx := res[0], res[1]
	ax, ay := math.Abs(resx), math.Abs(resy)
	xmin, xmax := math.Floor(bounds[0]/ax)*ax, math.Ceil(bounds[2]/ax)*ax
	ymin, ymax := math.Floor(bounds[1]/ay)*ay, math.Ceil(bounds[3]/ay)*ay

	width, height := int(math.Round((xmax-xmin)/ax)), int(math.Round((ymax-ymin)/ay))
	if width <= 0 || height <= 0 {
		return Grid{}, datacube.NewValidationError("the extent %v is empty at resolution %v", bounds, res)
	}

	ox, oy := xmin, ymax
	if resx < 0 {
		ox = xmax
	}
	if resy > 0 {
		oy = ymin
	}
	return Grid{
		CRS:       wkt,
		Transform: affine.FromOrigin(ox, oy, resx, resy),
		Width:     width,
		Height:    height,
	}, nil
}
