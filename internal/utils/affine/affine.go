// Package affine handles 2D affine transformations, following GDAL affine convention
package affine

import "math/big"

// Affine follows the GDAL geotransform convention:
// x = a[0] + px*a[1] + py*a[2]
// y = a[3] + px*a[4] + py*a[5]
type Affine [6]float64

func NewAffine(a, b, c, d, e, f float64) *Affine {
	res := Affine{a, b, c, d, e, f}
	return &res
}

// Translation creates a translation transform from (offx, offy)
func Translation(offx, offy float64) *Affine {
	return NewAffine(offx, 1.0, 0, offy, 0, 1.0)
}

// Scale creates a scale transform from (scalex, scaley)
func Scale(scalex, scaley float64) *Affine {
	return NewAffine(0, scalex, 0, 0, 0, scaley)
}

// FromOrigin creates a north-up transform with the upper-left corner at (ox, oy)
// and pixel size (resx, resy). resy is usually negative.
func FromOrigin(ox, oy, resx, resy float64) *Affine {
	return Translation(ox, oy).Multiply(Scale(resx, resy))
}

// Rx returns the X resolution
func (a *Affine) Rx() float64 {
	return a[1]
}

// Ry returns the Y resolution
func (a *Affine) Ry() float64 {
	return a[5]
}

const prec = 128

// highPrecisionTransform computes o + sx*x + sy*y, such as
// highPrecisionTransform(sx, x+1, sy, y+1, o) = highPrecisionTransform(sx, x, sy, y, o) + highPrecisionTransform(sx, 1, sy, 1, 0)
func highPrecisionTransform(sx, x, sy, y, o float64) float64 {
	sX := big.NewFloat(sx).SetPrec(prec)
	sY := big.NewFloat(sy).SetPrec(prec)
	X := big.NewFloat(x).SetPrec(prec)
	Y := big.NewFloat(y).SetPrec(prec)
	O := big.NewFloat(o).SetPrec(prec)
	r, _ := O.Add(O, sX.Mul(sX, X)).Add(O, sY.Mul(sY, Y)).Float64()
	return r
}

// Multiply merges the two affines transforms into one.
func (a *Affine) Multiply(b *Affine) *Affine {
	return NewAffine(
		highPrecisionTransform(a[1], b[0], a[2], b[3], a[0]),
		highPrecisionTransform(a[1], b[1], a[2], b[4], 0),
		highPrecisionTransform(a[1], b[2], a[2], b[5], 0),
		highPrecisionTransform(a[4], b[0], a[5], b[3], a[3]),
		highPrecisionTransform(a[4], b[1], a[5], b[4], 0),
		highPrecisionTransform(a[4], b[2], a[5], b[5], 0),
	)
}

// Transform applies the affine transform to the point (x, y)
func (a *Affine) Transform(x float64, y float64) (float64, float64) {
	return highPrecisionTransform(a[1], x, a[2], y, a[0]), highPrecisionTransform(a[4], x, a[5], y, a[3])
}

// Bounds returns [xmin, ymin, xmax, ymax] of a width x height raster
func (a *Affine) Bounds(width, height int) [4]float64 {
	x0, y0 := a.Transform(0, 0)
	x1, y1 := a.Transform(float64(width), float64(height))
	if x0 > x1 {
		x0, x1 = x1, x0
	}
	if y0 > y1 {
		y0, y1 = y1, y0
	}
	return [4]float64{x0, y0, x1, y1}
}
