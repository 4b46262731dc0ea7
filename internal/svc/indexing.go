package svc

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/airbusgeo/dcquery/internal/datacube"
	"github.com/airbusgeo/dcquery/internal/image"
	"github.com/airbusgeo/dcquery/internal/log"
	"github.com/airbusgeo/dcquery/internal/utils"
	"github.com/airbusgeo/dcquery/internal/utils/proj"
	"github.com/airbusgeo/godal"
	"github.com/google/uuid"
	"gopkg.in/yaml.v2"
)

// MeasurementDocument is the yaml definition of a measurement
type MeasurementDocument struct {
	Name    string   `yaml:"name"`
	Aliases []string `yaml:"aliases"`
	DType   string   `yaml:"dtype"`
	NoData  *float64 `yaml:"nodata"`
	Units   string   `yaml:"units"`
}

// ProductDocument is the yaml definition of a product
type ProductDocument struct {
	Name         string                `yaml:"name"`
	Type         string                `yaml:"product_type"`
	Description  string                `yaml:"description"`
	CRS          string                `yaml:"crs"`
	Resolution   []float64             `yaml:"resolution"`
	Metadata     map[string]string     `yaml:"metadata"`
	Measurements []MeasurementDocument `yaml:"measurements"`
}

// BandDocument locates the raster of a measurement
type BandDocument struct {
	Path string `yaml:"path"`
	Band int    `yaml:"band"`
}

// DatasetDocument is the yaml definition of a dataset. Its footprint and crs are read from the rasters.
type DatasetDocument struct {
	ID       string                  `yaml:"id"`
	Product  string                  `yaml:"product"`
	Datetime string                  `yaml:"datetime"`
	Metadata map[string]string       `yaml:"metadata"`
	Bands    map[string]BandDocument `yaml:"bands"`
}

// decodeDocuments decodes a stream of yaml documents (separated by ---)
func decodeDocuments(data []byte, newDoc func() interface{}) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.SetStrict(true)
	for i := 0; ; i++ {
		doc := newDoc()
		err := dec.Decode(doc)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return datacube.NewValidationError("document %d: %v", i, err)
		}
	}
}

// ToProduct validates the document and converts it to a product
func (d ProductDocument) ToProduct() (*datacube.Product, error) {
	if d.Name == "" {
		return nil, datacube.NewValidationError("product: missing name")
	}
	if len(d.Measurements) == 0 {
		return nil, datacube.NewValidationError("product %s: at least one measurement is required", d.Name)
	}
	p := datacube.Product{
		Name:        d.Name,
		Type:        d.Type,
		Description: d.Description,
		CRS:         d.CRS,
		Metadata:    datacube.Metadata(d.Metadata),
	}
	if p.CRS != "" && !proj.IsValid(p.CRS) {
		return nil, datacube.NewValidationError("product %s: invalid crs: %s", d.Name, d.CRS)
	}
	switch len(d.Resolution) {
	case 0:
	case 2:
		if d.Resolution[0] == 0 || d.Resolution[1] == 0 {
			return nil, datacube.NewValidationError("product %s: resolution must be non-zero", d.Name)
		}
		p.Resolution = [2]float64{d.Resolution[0], d.Resolution[1]}
	default:
		return nil, datacube.NewValidationError("product %s: resolution must be a pair (y, x)", d.Name)
	}

	names := utils.NewStringSet()
	for _, md := range d.Measurements {
		m := datacube.Measurement{Name: md.Name, Aliases: md.Aliases, DType: datacube.DTypeFromString(md.DType), NoData: md.NoData, Units: md.Units}
		if m.Name == "" {
			return nil, datacube.NewValidationError("product %s: measurement without name", d.Name)
		}
		if m.DType == datacube.DTypeUNDEFINED {
			return nil, datacube.NewValidationError("product %s: measurement %s: unknown dtype %q", d.Name, m.Name, md.DType)
		}
		for _, n := range append([]string{m.Name}, m.Aliases...) {
			if names.Exists(n) {
				return nil, datacube.NewValidationError("product %s: duplicated measurement name or alias: %s", d.Name, n)
			}
			names.Push(n)
		}
		p.Measurements = append(p.Measurements, m)
	}
	return &p, nil
}

// AddProducts creates the products defined in the yaml documents and returns their names
func (svc *Service) AddProducts(ctx context.Context, data []byte) ([]string, error) {
	var docs []*ProductDocument
	if err := decodeDocuments(data, func() interface{} {
		docs = append(docs, &ProductDocument{})
		return docs[len(docs)-1]
	}); err != nil {
		return nil, fmt.Errorf("AddProducts.%w", err)
	}

	var names []string
	for _, doc := range docs {
		if doc.Name == "" && len(doc.Measurements) == 0 {
			// empty document
			continue
		}
		p, err := doc.ToProduct()
		if err != nil {
			return names, fmt.Errorf("AddProducts.%w", err)
		}
		if err := svc.index.CreateProduct(ctx, p); err != nil {
			return names, fmt.Errorf("AddProducts.%w", indexError(err))
		}
		log.Logger(ctx).Sugar().Infof("product %s added with %d measurements", p.Name, len(p.Measurements))
		names = append(names, p.Name)
	}
	return names, nil
}

func parseDatetime(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unsupported datetime format: %q", s)
}

// ToDataset validates the document against its product and converts it to a dataset.
// The footprint and the crs are read from the raster of the first measurement.
func (d DatasetDocument) ToDataset(product *datacube.Product) (*datacube.Dataset, error) {
	if d.Product != product.Name {
		return nil, datacube.NewShouldNeverHappen("dataset of %s validated with %s", d.Product, product.Name)
	}
	t, err := parseDatetime(d.Datetime)
	if err != nil {
		return nil, datacube.NewValidationError("dataset %s: %v", d.ID, err)
	}
	if len(d.Bands) == 0 {
		return nil, datacube.NewValidationError("dataset %s: at least one band is required", d.ID)
	}

	ds := datacube.Dataset{
		ID:       d.ID,
		Product:  d.Product,
		Time:     t,
		Metadata: datacube.Metadata(d.Metadata),
		Bands:    map[string]datacube.BandLocation{},
	}
	names := make([]string, 0, len(d.Bands))
	for name := range d.Bands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		m, err := product.Measurement(name)
		if err != nil {
			return nil, datacube.NewValidationError("dataset %s: unknown measurement %s in product %s", d.ID, name, product.Name)
		}
		if _, ok := ds.Bands[m.Name]; ok {
			return nil, datacube.NewValidationError("dataset %s: measurement %s is defined twice", d.ID, m.Name)
		}
		b := d.Bands[name]
		if b.Path == "" {
			return nil, datacube.NewValidationError("dataset %s: missing path of %s", d.ID, name)
		}
		if b.Band == 0 {
			b.Band = 1
		}
		ds.Bands[m.Name] = datacube.BandLocation{URI: b.Path, Band: b.Band}
	}

	if ds.ID == "" {
		// same raster, same product, same time: same id
		first := d.Bands[names[0]].Path
		ds.ID = uuid.NewSHA1(uuid.NameSpaceURL, []byte(fmt.Sprintf("%s/%s/%s", product.Name, t.Format(time.RFC3339Nano), first))).String()
	}
	return &ds, nil
}

// setFromRasters checks that the bands of the dataset are reachable and sets its crs and footprint
func setFromRasters(dataset *datacube.Dataset) error {
	measurements := make([]string, 0, len(dataset.Bands))
	for m := range dataset.Bands {
		measurements = append(measurements, m)
	}
	sort.Strings(measurements)

	for i, m := range measurements {
		loc := dataset.Bands[m]
		ds, err := godal.Open(loc.URI, image.ErrLogger)
		if err != nil {
			return datacube.NewValidationError("%s is not reachable", loc.URI)
		}
		if loc.Band <= 0 || loc.Band > ds.Structure().NBands {
			ds.Close()
			return datacube.NewValidationError("%s has no band: %d", loc.URI, loc.Band)
		}
		if i == 0 {
			if err := setFootprint(dataset, ds); err != nil {
				ds.Close()
				return err
			}
		}
		ds.Close()
	}
	return nil
}

func setFootprint(dataset *datacube.Dataset, ds *godal.Dataset) error {
	wkt := ds.Projection()
	if strings.TrimSpace(wkt) == "" {
		return datacube.NewValidationError("dataset %s: raster without crs", dataset.ID)
	}
	extent, err := ds.Bounds()
	if err != nil {
		return datacube.NewValidationError("dataset %s: failed to get the bounds: %v", dataset.ID, err)
	}
	src, srid, err := proj.CRSFromUserInput(wkt)
	if err != nil {
		return datacube.NewValidationError("dataset %s: invalid crs: %v", dataset.ID, err)
	}
	defer src.Close()
	lonlat, err := proj.CRSFromEPSG(4326)
	if err != nil {
		return fmt.Errorf("setFootprint: %w", err)
	}
	bounds, err := proj.TransformBounds(extent, src, lonlat, densifyPts)
	if err != nil {
		return datacube.NewValidationError("dataset %s: %v", dataset.ID, err)
	}
	dataset.Footprint = proj.NewShapeFromBounds(bounds, 4326)
	dataset.CRS = wkt
	if srid != 0 {
		dataset.CRS = fmt.Sprintf("EPSG:%d", srid)
	}
	return nil
}

const densifyPts = 21

// IndexDatasets indexes the datasets defined in the yaml documents and returns their ids
func (svc *Service) IndexDatasets(ctx context.Context, data []byte) ([]string, error) {
	var docs []*DatasetDocument
	if err := decodeDocuments(data, func() interface{} {
		docs = append(docs, &DatasetDocument{})
		return docs[len(docs)-1]
	}); err != nil {
		return nil, fmt.Errorf("IndexDatasets.%w", err)
	}

	products := map[string]*datacube.Product{}
	var datasets []*datacube.Dataset
	for _, doc := range docs {
		if doc.Product == "" && len(doc.Bands) == 0 {
			continue
		}
		p, ok := products[doc.Product]
		if !ok {
			var err error
			if p, err = svc.index.ReadProduct(ctx, doc.Product); err != nil {
				return nil, fmt.Errorf("IndexDatasets.%w", indexError(err))
			}
			products[doc.Product] = p
		}
		ds, err := doc.ToDataset(p)
		if err != nil {
			return nil, fmt.Errorf("IndexDatasets.%w", err)
		}
		if err := setFromRasters(ds); err != nil {
			return nil, fmt.Errorf("IndexDatasets.%w", err)
		}
		datasets = append(datasets, ds)
	}
	if len(datasets) == 0 {
		return nil, nil
	}

	if err := svc.index.IndexDatasets(ctx, datasets); err != nil {
		return nil, fmt.Errorf("IndexDatasets.%w", indexError(err))
	}
	ids := make([]string, len(datasets))
	for i, d := range datasets {
		ids[i] = d.ID
	}
	log.Logger(ctx).Sugar().Infof("%d datasets indexed", len(ids))
	return ids, nil
}
