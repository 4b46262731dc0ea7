package svc

import (
	"context"
	"fmt"

	"github.com/airbusgeo/dcquery/internal/datacube"
	"github.com/airbusgeo/dcquery/internal/query"
	"github.com/airbusgeo/dcquery/internal/utils"
)

// indexError marks the errors due to an unreachable index
func indexError(err error) error {
	if utils.Temporary(err) && !datacube.IsError(err, datacube.IndexUnavailable) {
		return datacube.NewIndexUnavailable(err)
	}
	return err
}

// ProductsAndMeasurements returns the catalog of the products (matching namelike, if not empty) and their measurements
func (svc *Service) ProductsAndMeasurements(ctx context.Context, namelike string) (datacube.Catalog, error) {
	products, err := svc.index.ListProducts(ctx, namelike)
	if err != nil {
		return nil, fmt.Errorf("ProductsAndMeasurements: %w", indexError(err))
	}
	ps := make([]datacube.Product, len(products))
	for i, p := range products {
		ps[i] = *p
	}
	return datacube.NewCatalog(ps), nil
}

// ValidateParameters checks the parameter values and that the selected products and measurements exist.
// It returns the list of messages to display to the user.
func (svc *Service) ValidateParameters(ctx context.Context, params query.Parameters) (bool, []string, error) {
	ok, msgs := query.CheckParameterValues(params)
	if len(params.Products) == 0 {
		return ok, msgs, nil
	}
	catalog, err := svc.ProductsAndMeasurements(ctx, "")
	if err != nil {
		return false, msgs, err
	}
	for _, product := range params.ProductNames() {
		if len(catalog.Measurements(product)) == 0 {
			msgs = append(msgs, fmt.Sprintf("Unknown product: %s", product))
			continue
		}
		for _, m := range params.Products[product] {
			if !catalog.Contains(product, m) {
				msgs = append(msgs, fmt.Sprintf("Unknown measurement: %s/%s", product, m))
			}
		}
	}
	return len(msgs) == 0, msgs, nil
}
