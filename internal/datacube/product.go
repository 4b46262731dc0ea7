package datacube

import (
	"sort"
	"strings"
)

// Measurement is a named raster band of a product
type Measurement struct {
	Name    string
	Aliases []string
	DType   DType
	NoData  *float64
	Units   string
}

// Matches returns true if name is the name or an alias of the measurement
func (m Measurement) Matches(name string) bool {
	if m.Name == name {
		return true
	}
	for _, a := range m.Aliases {
		if a == name {
			return true
		}
	}
	return false
}

// Product is a named type of raster dataset (e.g. a surface reflectance collection)
type Product struct {
	Name        string
	Type        string
	Description string
	// Native grid, used when a query does not define the output grid
	CRS          string
	Resolution   [2]float64
	Metadata     Metadata
	Measurements []Measurement
}

// Measurement returns the measurement matching name (or one of its aliases)
func (p Product) Measurement(name string) (Measurement, error) {
	for _, m := range p.Measurements {
		if m.Matches(name) {
			return m, nil
		}
	}
	return Measurement{}, NewEntityNotFound("Measurement", "name", name, "")
}

// HasNativeGrid returns true if the product defines a crs and a resolution
func (p Product) HasNativeGrid() bool {
	return p.CRS != "" && p.Resolution[0] != 0 && p.Resolution[1] != 0
}

// CatalogEntry is a flattened product/measurement pair, as listed in a product selector
type CatalogEntry struct {
	ProductType string
	Product     string
	Description string
	Measurement string
	Aliases     []string
	DType       string
	Units       string
}

// Catalog lists the products and measurements available in an index
type Catalog []CatalogEntry

// NewCatalog flattens the products into a catalog sorted by product type, product and measurement
func NewCatalog(products []Product) Catalog {
	var c Catalog
	for _, p := range products {
		for _, m := range p.Measurements {
			c = append(c, CatalogEntry{
				ProductType: p.Type,
				Product:     p.Name,
				Description: p.Description,
				Measurement: m.Name,
				Aliases:     m.Aliases,
				DType:       m.DType.String(),
				Units:       m.Units,
			})
		}
	}
	sort.SliceStable(c, func(i, j int) bool {
		if c[i].ProductType != c[j].ProductType {
			return c[i].ProductType < c[j].ProductType
		}
		if c[i].Product != c[j].Product {
			return c[i].Product < c[j].Product
		}
		return c[i].Measurement < c[j].Measurement
	})
	return c
}

// Products returns the distinct product names, in catalog order
func (c Catalog) Products() []string {
	var res []string
	for i, e := range c {
		if i == 0 || c[i-1].Product != e.Product {
			res = append(res, e.Product)
		}
	}
	return res
}

// Measurements returns the measurements of the product, in catalog order
func (c Catalog) Measurements(product string) []string {
	var res []string
	for _, e := range c {
		if e.Product == product {
			res = append(res, e.Measurement)
		}
	}
	return res
}

// Contains returns true if the product/measurement (or alias) pair exists
func (c Catalog) Contains(product, measurement string) bool {
	for _, e := range c {
		if e.Product != product {
			continue
		}
		if strings.EqualFold(e.Measurement, measurement) {
			return true
		}
		for _, a := range e.Aliases {
			if strings.EqualFold(a, measurement) {
				return true
			}
		}
	}
	return false
}
