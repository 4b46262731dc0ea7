package svc_test

import (
	"context"
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"

	mocksDB "github.com/airbusgeo/dcquery/interface/database/mocks"
	"github.com/airbusgeo/dcquery/internal/datacube"
	"github.com/airbusgeo/dcquery/internal/svc"
	"github.com/stretchr/testify/mock"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("AddProducts", func() {
	var (
		ctx = context.Background()

		mockIndex *mocksDB.Index
		service   *svc.Service

		document        string
		createdProducts []*datacube.Product
		createReturned  error
		returnedNames   []string
		returnedError   error
	)

	BeforeEach(func() {
		var err error
		mockIndex = new(mocksDB.Index)
		service, err = svc.New(ctx, mockIndex)
		Expect(err).To(BeNil())
		createdProducts = nil
		createReturned = nil
		document = `
name: s2_l2a
product_type: surface_reflectance
crs: EPSG:32631
resolution: [-10, 10]
measurements:
  - {name: red, aliases: [band_4], dtype: uint16, nodata: 0}
  - {name: nir, dtype: uint16, nodata: 0, units: reflectance}
---
name: ls8_nbar
measurements:
  - {name: swir1, dtype: int16}
`
	})

	JustBeforeEach(func() {
		mockIndex.On("CreateProduct", mock.Anything, mock.Anything).Return(func(ctx context.Context, p *datacube.Product) error {
			createdProducts = append(createdProducts, p)
			return createReturned
		})
		returnedNames, returnedError = service.AddProducts(ctx, []byte(document))
	})

	var itShouldReturnAValidationError = func() {
		It("should return a validation error", func() {
			Expect(datacube.IsError(returnedError, datacube.ValidationError)).To(BeTrue())
			Expect(createdProducts).To(BeEmpty())
		})
	}

	Context("default", func() {
		It("should create the products", func() {
			Expect(returnedError).To(BeNil())
			Expect(returnedNames).To(Equal([]string{"s2_l2a", "ls8_nbar"}))
			Expect(createdProducts).To(HaveLen(2))
			p := createdProducts[0]
			Expect(p.CRS).To(Equal("EPSG:32631"))
			Expect(p.Resolution).To(Equal([2]float64{-10, 10}))
			Expect(p.Measurements).To(HaveLen(2))
			Expect(p.Measurements[0].Aliases).To(Equal([]string{"band_4"}))
			Expect(*p.Measurements[0].NoData).To(Equal(0.0))
			Expect(p.Measurements[1].Units).To(Equal("reflectance"))
			Expect(createdProducts[1].Measurements[0].DType).To(Equal(datacube.DTypeINT16))
		})
	})

	Context("unknown dtype", func() {
		BeforeEach(func() {
			document = `{name: p, measurements: [{name: red, dtype: uint12}]}`
		})
		itShouldReturnAValidationError()
	})

	Context("duplicated alias", func() {
		BeforeEach(func() {
			document = `{name: p, measurements: [{name: red, dtype: uint8}, {name: nir, aliases: [red], dtype: uint8}]}`
		})
		itShouldReturnAValidationError()
	})

	Context("unknown key", func() {
		BeforeEach(func() {
			document = `{name: p, unknown: 1, measurements: [{name: red, dtype: uint8}]}`
		})
		itShouldReturnAValidationError()
	})

	Context("product already exists", func() {
		BeforeEach(func() {
			createReturned = datacube.NewEntityAlreadyExists("Product", "name", "s2_l2a")
		})
		It("should stop at the first error", func() {
			Expect(datacube.IsError(returnedError, datacube.EntityAlreadyExists)).To(BeTrue())
			Expect(returnedNames).To(BeEmpty())
			Expect(createdProducts).To(HaveLen(1))
		})
	})
})

var _ = Describe("IndexDatasets", func() {
	var (
		ctx = context.Background()

		mockIndex *mocksDB.Index
		service   *svc.Service
		workDir   string
		source    string

		document      string
		indexed       []*datacube.Dataset
		returnedIDs   []string
		returnedError error
	)

	BeforeEach(func() {
		var err error
		mockIndex = new(mocksDB.Index)
		service, err = svc.New(ctx, mockIndex)
		Expect(err).To(BeNil())
		workDir, err = ioutil.TempDir("", "index")
		Expect(err).To(BeNil())
		source = filepath.Join(workDir, "red.tif")
		createSource(source, 3)
		indexed = nil
		document = fmt.Sprintf(`
product: s2_l2a
datetime: 2020-01-01T10:00:00Z
bands:
  band_4: {path: %s}
`, source)
	})

	AfterEach(func() {
		os.RemoveAll(workDir)
	})

	JustBeforeEach(func() {
		mockIndex.On("ReadProduct", mock.Anything, "s2_l2a").Return(newProduct("s2_l2a"), nil)
		mockIndex.On("ReadProduct", mock.Anything, mock.Anything).Return(nil, datacube.NewEntityNotFound("Product", "name", "", ""))
		mockIndex.On("IndexDatasets", mock.Anything, mock.Anything).Return(func(ctx context.Context, ds []*datacube.Dataset) error {
			indexed = append(indexed, ds...)
			return nil
		})
		returnedIDs, returnedError = service.IndexDatasets(ctx, []byte(document))
	})

	Context("default", func() {
		It("should index the dataset", func() {
			Expect(returnedError).To(BeNil())
			Expect(indexed).To(HaveLen(1))
			Expect(returnedIDs).To(Equal([]string{indexed[0].ID}))
			Expect(indexed[0].Time).To(Equal(t0))
		})
		It("should resolve the aliases", func() {
			Expect(indexed[0].Bands).To(Equal(map[string]datacube.BandLocation{"red": {URI: source, Band: 1}}))
		})
		It("should read the crs and the footprint from the raster", func() {
			Expect(indexed[0].CRS).To(Equal("EPSG:32631"))
			lon, lat := indexed[0].Footprint.Centroid()
			Expect(lon).To(BeNumerically("~", 3.0, 0.01))
			Expect(lat).To(BeNumerically("~", 41.55, 0.01))
		})
		It("should compute a stable id", func() {
			ids, err := service.IndexDatasets(ctx, []byte(document))
			Expect(err).To(BeNil())
			Expect(ids).To(Equal(returnedIDs))
		})
	})

	Context("unknown measurement", func() {
		BeforeEach(func() {
			document = fmt.Sprintf("{product: s2_l2a, datetime: 2020-01-01, bands: {swir: {path: %s}}}", source)
		})
		It("should return a validation error", func() {
			Expect(datacube.IsError(returnedError, datacube.ValidationError)).To(BeTrue())
			Expect(indexed).To(BeEmpty())
		})
	})

	Context("missing band", func() {
		BeforeEach(func() {
			document = fmt.Sprintf("{product: s2_l2a, datetime: 2020-01-01, bands: {red: {path: %s, band: 2}}}", source)
		})
		It("should return a validation error", func() {
			Expect(datacube.IsError(returnedError, datacube.ValidationError)).To(BeTrue())
			Expect(indexed).To(BeEmpty())
		})
	})

	Context("unreachable raster", func() {
		BeforeEach(func() {
			document = fmt.Sprintf("{product: s2_l2a, datetime: 2020-01-01, bands: {red: {path: %s}}}", filepath.Join(workDir, "missing.tif"))
		})
		It("should return a validation error", func() {
			Expect(datacube.IsError(returnedError, datacube.ValidationError)).To(BeTrue())
		})
	})

	Context("invalid datetime", func() {
		BeforeEach(func() {
			document = fmt.Sprintf("{product: s2_l2a, datetime: 01/02/2020, bands: {red: {path: %s}}}", source)
		})
		It("should return a validation error", func() {
			Expect(datacube.IsError(returnedError, datacube.ValidationError)).To(BeTrue())
		})
	})

	Context("unknown product", func() {
		BeforeEach(func() {
			document = fmt.Sprintf("{product: ls8, datetime: 2020-01-01, bands: {red: {path: %s}}}", source)
		})
		It("should return an EntityNotFound error", func() {
			Expect(datacube.IsError(returnedError, datacube.EntityNotFound)).To(BeTrue())
		})
	})
})
