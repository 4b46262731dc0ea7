package datacube

//go:generate enumer -json -sql -type DType -trimprefix DType -transform lower

import (
	"fmt"
	"strings"

	"github.com/airbusgeo/godal"
)

// DType is one of supported DataTypes for raster
type DType int

// Supported DataTypes
const (
	DTypeUNDEFINED DType = iota
	DTypeUINT8
	DTypeUINT16
	DTypeUINT32
	DTypeINT8
	DTypeINT16
	DTypeINT32
	DTypeFLOAT32
	DTypeFLOAT64
	DTypeCOMPLEX64
)

// DTypeFromString convert string dtype to DType (gdal names are accepted)
func DTypeFromString(dtype string) DType {
	switch strings.ToLower(dtype) {
	case "byte":
		return DTypeUINT8
	case "cfloat32":
		return DTypeCOMPLEX64
	}
	d, err := DTypeString(dtype)
	if err != nil {
		return DTypeUNDEFINED
	}
	return d
}

// ToGDAL returns the gdal datatype or godal.Unknown if the dtype cannot be stored by gdal
func (dtype DType) ToGDAL() godal.DataType {
	switch dtype {
	case DTypeUINT8:
		return godal.Byte
	case DTypeUINT16:
		return godal.UInt16
	case DTypeUINT32:
		return godal.UInt32
	case DTypeINT16:
		return godal.Int16
	case DTypeINT32:
		return godal.Int32
	case DTypeFLOAT32:
		return godal.Float32
	case DTypeFLOAT64:
		return godal.Float64
	case DTypeCOMPLEX64:
		return godal.CFloat32
	default:
		return godal.Unknown
	}
}

// DTypeFromGDAL convert gdal.DataType to DType
func DTypeFromGDAL(dtype godal.DataType) DType {
	switch dtype {
	case godal.Byte:
		return DTypeUINT8
	case godal.UInt16:
		return DTypeUINT16
	case godal.UInt32:
		return DTypeUINT32
	case godal.Int16:
		return DTypeINT16
	case godal.Int32:
		return DTypeINT32
	case godal.Float32:
		return DTypeFLOAT32
	case godal.Float64:
		return DTypeFLOAT64
	case godal.CFloat32:
		return DTypeCOMPLEX64
	default:
		return DTypeUNDEFINED
	}
}

// Size returns the size of the dtype in bytes
func (dtype DType) Size() int {
	switch dtype {
	case DTypeUINT8, DTypeINT8:
		return 1
	case DTypeUINT16, DTypeINT16:
		return 2
	case DTypeUINT32, DTypeINT32, DTypeFLOAT32:
		return 4
	case DTypeFLOAT64, DTypeCOMPLEX64:
		return 8
	}
	return 0
}

// IsValidForGTiff returns true if a GeoTIFF band can be written with this dtype
func (dtype DType) IsValidForGTiff() bool {
	return dtype.ToGDAL() != godal.Unknown
}

// Upcast returns the dtype of the same kind with the next size (e.g. int8 => int16)
func (dtype DType) Upcast() (DType, error) {
	switch dtype {
	case DTypeUINT8:
		return DTypeUINT16, nil
	case DTypeUINT16:
		return DTypeUINT32, nil
	case DTypeINT8:
		return DTypeINT16, nil
	case DTypeINT16:
		return DTypeINT32, nil
	case DTypeFLOAT32:
		return DTypeFLOAT64, nil
	}
	return DTypeUNDEFINED, fmt.Errorf("cannot upcast %s", dtype)
}
