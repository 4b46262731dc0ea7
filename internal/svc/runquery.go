package svc

import (
	"context"
	"fmt"

	"github.com/airbusgeo/dcquery/interface/database"
	"github.com/airbusgeo/dcquery/internal/datacube"
	"github.com/airbusgeo/dcquery/internal/loader"
	"github.com/airbusgeo/dcquery/internal/log"
	"github.com/airbusgeo/dcquery/internal/utils"
	"go.uber.org/zap"
)

// RunQuery searches the datasets matching the query and prepares their loading on the output grid.
// It returns a NoData error if no dataset is found and a TooManyDatasets error if more than maxDatasets (>0) are found.
func (svc *Service) RunQuery(ctx context.Context, q datacube.Query, maxDatasets int, opts loader.Options) (*loader.Result, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	product, err := svc.index.ReadProduct(ctx, q.Product)
	if err != nil {
		return nil, indexError(err)
	}
	measurements := make([]datacube.Measurement, len(q.Measurements))
	for i, name := range q.Measurements {
		if measurements[i], err = product.Measurement(name); err != nil {
			return nil, err
		}
	}

	bounds, err := loader.LonLatBounds(q)
	if err != nil {
		return nil, err
	}
	filter := database.DatasetFilter{
		Product:      q.Product,
		Time:         q.Time,
		LonLatBounds: &bounds,
	}

	count, err := svc.index.CountDatasets(ctx, filter)
	if err != nil {
		return nil, indexError(err)
	}
	if count == 0 {
		return nil, datacube.NewNoData("No datasets found")
	}
	if maxDatasets > 0 && count > maxDatasets {
		return nil, datacube.NewTooManyDatasets(count, maxDatasets)
	}

	found, err := svc.index.FindDatasets(ctx, filter, 0)
	if err != nil {
		return nil, indexError(err)
	}
	datasets := make([]datacube.Dataset, len(found))
	for i, d := range found {
		datasets[i] = *d
	}

	grid, err := loader.NewGrid(q, *product)
	if err != nil {
		return nil, err
	}
	groups := loader.Group(datasets, q.GroupBy)
	log.Logger(ctx).Debug("datasets found",
		zap.String("product", q.Product),
		zap.Int("datasets", len(datasets)),
		zap.Int("timesteps", len(groups)),
		zap.Stringer("grid", grid))

	opts.TimeChunk = q.TimeChunk()
	opts.Workers = svc.maxWorkers(grid, measurements, opts.Workers)
	result, err := loader.Load(groups, measurements, grid, opts)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", q.Product, err)
	}
	return result, nil
}

// maxWorkers bounds the number of timesteps loaded in parallel, so that they fit in a quarter of the memory.
// A timestep needs its warped measurements and the stacked dataset.
func (svc *Service) maxWorkers(grid loader.Grid, measurements []datacube.Measurement, workers int) int {
	if svc.ramSize <= 0 || len(measurements) == 0 {
		return workers
	}
	sliceSize := 2 * grid.Width * grid.Height * len(measurements) * measurements[0].DType.Size()
	if sliceSize <= 0 {
		return workers
	}
	return utils.MaxI(1, utils.MinI(workers, svc.ramSize/4/sliceSize))
}
