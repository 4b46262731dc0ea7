package database

import (
	"context"

	"github.com/airbusgeo/dcquery/internal/datacube"
)

// DatasetFilter defines the criterias of a dataset search
type DatasetFilter struct {
	Product string
	// [Optional] datasets must have all the measurements
	Measurements []string
	// [Optional] datasets must be acquired in the time range
	Time *datacube.TimeRange
	// [Optional] datasets footprint must intersect the lon/lat bounds [xmin, ymin, xmax, ymax]
	LonLatBounds *[4]float64
}

// Index is the catalog of the indexed products and datasets
type Index interface {
	/******************** Products *************************/
	// CreateProduct creates a product and its measurements
	// Raise EntityAlreadyExists
	CreateProduct(ctx context.Context, product *datacube.Product) error
	// ReadProduct retrieves a product and its measurements
	// Raise EntityNotFound
	ReadProduct(ctx context.Context, name string) (*datacube.Product, error)
	// ListProducts returns all the products matching namelike, with their measurements
	// [Optional] namelike: filter by name (support "*?" and "(?i)" suffix for case insensitivity)
	ListProducts(ctx context.Context, namelike string) ([]*datacube.Product, error)

	/******************** Datasets *************************/
	// IndexDatasets adds a batch of datasets (and their band locations) in the index
	IndexDatasets(ctx context.Context, datasets []*datacube.Dataset) error
	// CountDatasets returns the number of datasets matching the filter
	CountDatasets(ctx context.Context, filter DatasetFilter) (int, error)
	// FindDatasets returns the datasets matching the filter, ordered by time
	// [Optional] limit: limits the number of results
	FindDatasets(ctx context.Context, filter DatasetFilter, limit int) ([]*datacube.Dataset, error)
}
