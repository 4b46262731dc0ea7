package loader

import (
	"context"
	"fmt"
	"time"

	"github.com/airbusgeo/dcquery/internal/datacube"
	"github.com/airbusgeo/dcquery/internal/image"
	"github.com/airbusgeo/dcquery/internal/log"
	"github.com/airbusgeo/dcquery/internal/utils"
	"github.com/airbusgeo/godal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Options configures the loading of the timesteps
type Options struct {
	// Workers is the number of timesteps loaded in parallel
	Workers    int
	Resampling datacube.Resampling
	// TimeChunk bounds the number of timesteps in flight (0: no bound other than Workers)
	TimeChunk int
}

// TimeSlice is a loaded timestep: a MEM dataset with one band per measurement.
// The receiver is responsible to close the dataset.
type TimeSlice struct {
	Index    int
	Time     time.Time
	Datasets []datacube.Dataset
	Dataset  *godal.Dataset
	Err      error
}

// Result is a lazily loaded, time-indexed raster result
type Result struct {
	Groups       []TimeGroup
	Measurements []datacube.Measurement
	Grid         Grid
	DType        datacube.DType
	opts         Options
}

// Load prepares the loading of the groups of datasets on the grid.
// All the measurements must share the same dtype.
func Load(groups []TimeGroup, measurements []datacube.Measurement, grid Grid, opts Options) (*Result, error) {
	if len(measurements) == 0 {
		return nil, datacube.NewValidationError("at least one measurement must be loaded")
	}
	dtype := measurements[0].DType
	for _, m := range measurements[1:] {
		if m.DType != dtype {
			return nil, datacube.NewValidationError("all the measurements must have the same dtype (%s: %s, %s: %s)", measurements[0].Name, dtype, m.Name, m.DType)
		}
	}
	if !dtype.IsValidForGTiff() {
		upcast, err := dtype.Upcast()
		if err != nil {
			return nil, datacube.NewValidationError("unsupported dtype %s: %v", dtype, err)
		}
		dtype = upcast
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	return &Result{
		Groups:       groups,
		Measurements: measurements,
		Grid:         grid,
		DType:        dtype,
		opts:         opts,
	}, nil
}

// Len returns the number of timesteps
func (r *Result) Len() int {
	return len(r.Groups)
}

// Times returns the timesteps
func (r *Result) Times() []time.Time {
	times := make([]time.Time, len(r.Groups))
	for i, g := range r.Groups {
		times[i] = g.Time
	}
	return times
}

type loadJob struct {
	ID    int
	Group TimeGroup
}

// Stream loads the timesteps in parallel and returns them in time order.
// The channel is closed when all the timesteps are sent or ctx is done.
func (r *Result) Stream(ctx context.Context) <-chan TimeSlice {
	unorderedSlices := make([]chan TimeSlice, len(r.Groups))
	for i := range unorderedSlices {
		unorderedSlices[i] = make(chan TimeSlice)
	}
	orderedSlices := make(chan TimeSlice)
	go orderResults(ctx, unorderedSlices, orderedSlices)

	nbWorkers := utils.MinI(len(r.Groups), r.opts.Workers)
	if r.opts.TimeChunk > 0 {
		nbWorkers = utils.MinI(nbWorkers, r.opts.TimeChunk)
	}
	jobs := make(chan loadJob, len(r.Groups))
	for i := 0; i < nbWorkers; i++ {
		go r.loadWorker(ctx, jobs, unorderedSlices)
	}
	for i, g := range r.Groups {
		jobs <- loadJob{ID: i, Group: g}
	}
	close(jobs)

	return orderedSlices
}

func orderResults(ctx context.Context, unordered []chan TimeSlice, ordered chan<- TimeSlice) {
	defer close(ordered)
	var slice TimeSlice
	for _, chanOut := range unordered {
		select {
		case slice = <-chanOut:
		case <-ctx.Done():
			return
		}

		select {
		case ordered <- slice:
		case <-ctx.Done():
			if slice.Dataset != nil {
				slice.Dataset.Close()
			}
			return
		}
	}
}

func (r *Result) loadWorker(ctx context.Context, jobs <-chan loadJob, slicesOut []chan TimeSlice) {
	for job := range jobs {
		select {
		case <-ctx.Done():
			return
		default:
		}

		start := time.Now()
		ds, err := r.loadSlice(ctx, job.Group)
		log.Logger(ctx).Debug("timestep loaded",
			zap.Time("time", job.Group.Time),
			zap.Int("datasets", len(job.Group.Datasets)),
			zap.Duration("elapsed", time.Since(start)))

		select {
		case <-ctx.Done():
			if ds != nil {
				ds.Close()
			}
			return
		case slicesOut[job.ID] <- TimeSlice{Index: job.ID, Time: job.Group.Time, Datasets: job.Group.Datasets, Dataset: ds, Err: err}:
		}
	}
}

// loadSlice warps each measurement of the datasets of the group on the grid and stacks them in a MEM dataset
func (r *Result) loadSlice(ctx context.Context, group TimeGroup) (*godal.Dataset, error) {
	w, h := r.Grid.Width, r.Grid.Height
	warped := make([]*godal.Dataset, len(r.Measurements))
	defer func() {
		for _, ds := range warped {
			if ds != nil {
				ds.Close()
			}
		}
	}()

	g, gctx := errgroup.WithContext(ctx)
	for i, m := range r.Measurements {
		i, m := i, m
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			ds, err := r.warpMeasurement(group.Datasets, m)
			if err != nil {
				return fmt.Errorf("measurement %s: %w", m.Name, err)
			}
			warped[i] = ds
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("loadSlice[%s]: %w", group.Time.Format(time.RFC3339), err)
	}

	ds, err := godal.Create(godal.Memory, "", len(r.Measurements), r.DType.ToGDAL(), w, h)
	if err != nil {
		return nil, fmt.Errorf("loadSlice.Create: %w", err)
	}
	if err := r.initDataset(ds); err != nil {
		ds.Close()
		return nil, fmt.Errorf("loadSlice.%w", err)
	}

	buf := make([]float64, w*h)
	bands := ds.Bands()
	for i, m := range r.Measurements {
		if warped[i] == nil {
			if m.NoData != nil {
				if err := bands[i].Fill(*m.NoData, 0); err != nil {
					ds.Close()
					return nil, fmt.Errorf("loadSlice.Fill: %w", err)
				}
			}
			continue
		}
		if err := warped[i].Bands()[0].Read(0, 0, buf, w, h); err != nil {
			ds.Close()
			return nil, fmt.Errorf("loadSlice.Read[%s]: %w", m.Name, err)
		}
		if err := bands[i].Write(0, 0, buf, w, h); err != nil {
			ds.Close()
			return nil, fmt.Errorf("loadSlice.Write[%s]: %w", m.Name, err)
		}
	}
	return ds, nil
}

func (r *Result) initDataset(ds *godal.Dataset) error {
	if err := ds.SetGeoTransform(*r.Grid.Transform); err != nil {
		return fmt.Errorf("SetGeoTransform: %w", err)
	}
	if err := ds.SetProjection(r.Grid.CRS); err != nil {
		return fmt.Errorf("SetProjection: %w", err)
	}
	for i, m := range r.Measurements {
		band := ds.Bands()[i]
		if m.NoData != nil {
			if err := band.SetNoData(*m.NoData); err != nil {
				return fmt.Errorf("SetNoData: %w", err)
			}
		}
		if err := band.SetMetadata("measurement", m.Name); err != nil {
			return fmt.Errorf("SetMetadata: %w", err)
		}
	}
	return nil
}

// warpMeasurement warps the band of the measurement of each dataset on the grid.
// The first dataset having a valid pixel wins, so they are warped in reverse order.
// Returns nil if no dataset has the measurement.
func (r *Result) warpMeasurement(datasets []datacube.Dataset, m datacube.Measurement) (*godal.Dataset, error) {
	var sources []*image.EphemeralDataset
	defer func() {
		image.CloseEphemeralDatasets(sources)
	}()

	for i := len(datasets) - 1; i >= 0; i-- {
		loc, err := datasets[i].Band(m.Name)
		if err != nil {
			continue
		}
		eds, err := image.ExtractBand(loc.URI, loc.Band)
		if err != nil {
			return nil, err
		}
		sources = append(sources, eds)
	}
	if len(sources) == 0 {
		return nil, nil
	}

	gdatasets := make([]*godal.Dataset, len(sources))
	for i, s := range sources {
		gdatasets[i] = s.Dataset
	}
	options := image.WarpOptions(r.Grid.CRS, r.Grid.Transform, r.Grid.Width, r.Grid.Height, r.opts.Resampling, r.DType, m.NoData)
	if m.NoData != nil {
		options = append(options, "-srcnodata", utils.F64ToS(*m.NoData))
	}
	options = append(options, "-of", "MEM")
	ds, err := godal.Warp("", gdatasets, options, image.ErrLogger)
	if err != nil {
		return nil, fmt.Errorf("warp[%v]: %w", options, err)
	}
	return ds, nil
}
