package svc

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/airbusgeo/dcquery/interface/storage"
	"github.com/airbusgeo/dcquery/interface/storage/uri"
	"github.com/airbusgeo/dcquery/internal/datacube"
	"github.com/airbusgeo/dcquery/internal/image"
	"github.com/airbusgeo/dcquery/internal/loader"
	"github.com/airbusgeo/dcquery/internal/log"
	"github.com/airbusgeo/dcquery/internal/query"
	"github.com/airbusgeo/dcquery/internal/utils"
	"go.uber.org/zap"
)

// DatetimeTag is the tag of the acquisition time of an output
const DatetimeTag = "TIFFTAG_DATETIME"

const (
	uploadMaxTries   = 5
	uploadRetryDelay = 2 * time.Second
)

// Outputs maps the written files to their layer name
type Outputs map[string]string

// Layer is an output file and the name of its layer
type Layer struct {
	Path string
	Name string
}

// PostProcess returns the outputs as layers, sorted by name (then path)
func PostProcess(outputs Outputs) []Layer {
	layers := make([]Layer, 0, len(outputs))
	for path, name := range outputs {
		layers = append(layers, Layer{Path: path, Name: name})
	}
	sort.Slice(layers, func(i, j int) bool {
		if layers[i].Name != layers[j].Name {
			return layers[i].Name < layers[j].Name
		}
		return layers[i].Path < layers[j].Path
	})
	return layers
}

// isProductError returns true if the export can go on with the next product
func isProductError(err error) bool {
	return !datacube.IsError(err, datacube.IndexUnavailable) &&
		!errors.Is(err, context.Canceled) &&
		!errors.Is(err, context.DeadlineExceeded)
}

// Execute exports the datasets of each product of the parameters, one GeoTIFF per timestep.
// The failure of a product is reported and the export goes on with the next one.
// If the export is canceled, the outputs written so far are returned without error.
func (svc *Service) Execute(ctx context.Context, params query.Parameters, settings query.Settings, feedback Feedback) (Outputs, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	queries, err := params.Queries()
	if err != nil {
		return nil, err
	}
	if len(queries) == 0 {
		return nil, datacube.NewValidationError("Please select at least one product")
	}

	task, err := svc.newExportTask(ctx, params.OutputDirectory, settings, feedback, len(queries))
	if err != nil {
		return nil, err
	}
	defer task.clean(ctx)

	feedback.PushInfo("output_folder: " + params.OutputDirectory)
	feedback.SetProgress(0)

	loadOpts := loader.Options{Workers: settings.Workers, Resampling: settings.Resampling}
	for idx, q := range queries {
		if feedback.IsCanceled() {
			return task.outputs, nil
		}
		feedback.SetProgressText("Processing " + q.Product)
		feedback.PushInfo("Query: " + q.String())

		result, err := svc.RunQuery(ctx, q, settings.MaxDatasets, loadOpts)
		if err != nil {
			if !isProductError(err) {
				return task.outputs, err
			}
			task.reportProductError(q.Product, err)
			feedback.SetProgress(task.productEnd(idx))
			continue
		}

		feedback.SetProgressText("Saving outputs for " + q.Product)
		canceled, err := task.exportProduct(ctx, idx, q, result)
		if err != nil {
			return task.outputs, err
		}
		if canceled {
			return task.outputs, nil
		}
		feedback.SetProgress(task.productEnd(idx))
	}
	return task.outputs, nil
}

type exportTask struct {
	settings      query.Settings
	profile       image.Profile
	overviews     image.OverviewOptions
	feedback      Feedback
	outputDir     string
	localDir      string
	strategy      storage.Strategy
	progressTotal float64
	outputs       Outputs
}

func (svc *Service) newExportTask(ctx context.Context, outputDir string, settings query.Settings, feedback Feedback, nbProducts int) (*exportTask, error) {
	if outputDir == "" {
		return nil, datacube.NewValidationError("output directory is not defined")
	}
	profile, err := settings.Profile()
	if err != nil {
		return nil, datacube.NewValidationError("gtiff_options: %v", err)
	}
	overviews, err := settings.OverviewOptions()
	if err != nil {
		return nil, datacube.NewValidationError("gtiff_ovr_options: %v", err)
	}
	t := &exportTask{
		settings:      settings,
		profile:       profile,
		overviews:     overviews,
		feedback:      feedback,
		outputDir:     outputDir,
		progressTotal: 100 / float64(10*nbProducts),
		outputs:       Outputs{},
	}

	if !uri.IsRemote(outputDir) {
		t.localDir = strings.TrimPrefix(outputDir, "file://")
		if err := os.MkdirAll(t.localDir, 0777); err != nil {
			return nil, fmt.Errorf("newExportTask: %w", err)
		}
		return t, nil
	}

	if t.strategy, err = svc.storageStrategy(ctx, outputDir); err != nil {
		return nil, fmt.Errorf("newExportTask: %w", err)
	}
	if t.localDir, err = os.MkdirTemp(svc.workspace, "export-"); err != nil {
		return nil, fmt.Errorf("newExportTask: %w", err)
	}
	return t, nil
}

func (svc *Service) storageStrategy(ctx context.Context, rawURI string) (storage.Strategy, error) {
	if svc.storage != nil {
		return svc.storage, nil
	}
	u, err := uri.ParseUri(rawURI)
	if err != nil {
		return nil, fmt.Errorf("failed to parse uri %s: %w", rawURI, err)
	}
	return u.NewStorageStrategy(ctx)
}

// clean removes the local copy of the outputs uploaded to a remote directory
func (t *exportTask) clean(ctx context.Context) {
	if t.strategy == nil {
		return
	}
	if err := os.RemoveAll(t.localDir); err != nil {
		log.Logger(ctx).Sugar().Errorf("failed to clean workspace: %s", err.Error())
	}
}

// productEnd returns the progress when the product idx is done
func (t *exportTask) productEnd(idx int) float64 {
	return float64((idx+1)*10) * t.progressTotal
}

func (t *exportTask) reportProductError(product string, err error) {
	msg := err.Error()
	var dcerr datacube.DatacubeError
	if errors.As(err, &dcerr) {
		msg = dcerr.Desc()
	}
	t.feedback.ReportError(fmt.Sprintf("Error encountered processing %s: %s", product, msg), false)
}

// exportProduct writes the timesteps of the result and returns true if the export has been canceled
func (t *exportTask) exportProduct(ctx context.Context, idx int, q datacube.Query, result *loader.Result) (bool, error) {
	streamCtx, cancel := context.WithCancel(ctx)
	stream := result.Stream(streamCtx)
	defer func() {
		cancel()
		for slice := range stream {
			if slice.Dataset != nil {
				slice.Dataset.Close()
			}
		}
	}()

	grouped := q.GroupBy.IsGrouped()
	var layers []Layer
	canceled := false
	for slice := range stream {
		if slice.Err != nil {
			t.reportProductError(q.Product, slice.Err)
			break
		}
		layer, err := t.writeTimestep(q.Product, slice, grouped)
		slice.Dataset.Close()
		if err != nil {
			t.publish(ctx, layers)
			return false, fmt.Errorf("%s: %w", q.Product, err)
		}
		layers = append(layers, layer)

		t.feedback.SetProgress(utils.ClampF(float64(idx*10+slice.Index+1)*t.progressTotal, 0, t.productEnd(idx)))
		if t.feedback.IsCanceled() {
			canceled = true
			break
		}
	}

	if t.settings.MultiTemporal && !canceled && len(layers) > 0 {
		layer, err := t.writeMultiTemporal(q.Product, layers)
		if err != nil {
			t.publish(ctx, layers)
			return false, fmt.Errorf("%s: %w", q.Product, err)
		}
		layers = append(layers, layer)
	}
	return canceled, t.publish(ctx, layers)
}

// writeTimestep writes the timestep as {product}_{datetime}.tif and post-processes it
func (t *exportTask) writeTimestep(product string, slice loader.TimeSlice, grouped bool) (Layer, error) {
	name := product + "_" + datacube.DatetimeString(slice.Time, grouped)
	path := filepath.Join(t.localDir, name+".tif")

	if err := image.WriteGeoTIFF(slice.Dataset, path, t.profile, true); err != nil {
		return Layer{}, err
	}
	if err := image.UpdateTags(path, 0, "", map[string]string{DatetimeTag: datacube.DatetimeTag(slice.Time, grouped)}); err != nil {
		return Layer{}, err
	}
	if t.settings.BuildOverviews {
		if err := image.BuildOverviews(path, t.overviews); err != nil {
			return Layer{}, err
		}
	}
	if t.settings.CalculateStatistics {
		if _, err := image.CalculateStatistics(path, t.settings.ApproxStatistics); err != nil {
			return Layer{}, err
		}
	}
	if t.settings.CloudOptimized {
		if err := image.RewriteCOG(path); err != nil {
			return Layer{}, err
		}
	}
	return Layer{Path: path, Name: name}, nil
}

// writeMultiTemporal stacks the timesteps of a product in {product}_mucog.tif
func (t *exportTask) writeMultiTemporal(product string, layers []Layer) (Layer, error) {
	paths := make([]string, len(layers))
	for i, l := range layers {
		paths[i] = l.Path
	}
	name := product + "_mucog"
	path := filepath.Join(t.localDir, name+".tif")
	if err := image.WriteMultiTemporal(paths, path); err != nil {
		return Layer{}, err
	}
	return Layer{Path: path, Name: name}, nil
}

// publish adds the layers to the outputs, after their upload if the output directory is remote
func (t *exportTask) publish(ctx context.Context, layers []Layer) error {
	for _, l := range layers {
		path := l.Path
		if t.strategy != nil {
			var err error
			if path, err = t.upload(ctx, l.Path); err != nil {
				return err
			}
		}
		t.outputs[path] = l.Name
	}
	return nil
}

// upload sends the file and its sidecar files (external overviews, aux.xml) to the output directory
func (t *exportTask) upload(ctx context.Context, path string) (string, error) {
	var dest string
	for i, p := range []string{path, path + ".ovr", path + ".aux.xml"} {
		if i > 0 {
			if _, err := os.Stat(p); err != nil {
				continue
			}
		}
		f, err := os.Open(p)
		if err != nil {
			return "", fmt.Errorf("failed to open %s: %w", p, err)
		}
		d := utils.URLJoin(t.outputDir, filepath.Base(p))
		err = t.strategy.UploadFile(ctx, d, f, t.uploadOptions(p)...)
		f.Close()
		if err != nil {
			return "", fmt.Errorf("failed to upload %s: %w", d, err)
		}
		if err := t.checkUpload(ctx, p, d); err != nil {
			return "", err
		}
		log.Logger(ctx).Debug("output uploaded", zap.String("uri", d))
		if i == 0 {
			dest = d
		}
	}
	return dest, nil
}

func (t *exportTask) uploadOptions(path string) []storage.Option {
	opts := []storage.Option{
		storage.ContentType(contentType(path)),
		storage.MaxTries(uploadMaxTries),
		storage.OnErrorRetryDelay(uploadRetryDelay),
	}
	if t.settings.StorageClass != "" {
		opts = append(opts, storage.StorageClass(t.settings.StorageClass))
	}
	return opts
}

// checkUpload compares the size of the uploaded object with the local file
func (t *exportTask) checkUpload(ctx context.Context, local, remote string) error {
	info, err := os.Stat(local)
	if err != nil {
		return fmt.Errorf("checkUpload: %w", err)
	}
	attrs, err := t.strategy.GetAttrs(ctx, remote)
	if err != nil {
		return fmt.Errorf("checkUpload %s: %w", remote, err)
	}
	if attrs.Size != info.Size() {
		return fmt.Errorf("checkUpload %s: incomplete upload (%d/%d bytes)", remote, attrs.Size, info.Size())
	}
	return nil
}

func contentType(path string) string {
	switch filepath.Ext(path) {
	case ".tif", ".ovr":
		return "image/tiff"
	case ".xml":
		return "application/xml"
	}
	return "application/octet-stream"
}
