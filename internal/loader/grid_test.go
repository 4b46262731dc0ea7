package loader_test

import (
	"github.com/airbusgeo/dcquery/internal/datacube"
	"github.com/airbusgeo/dcquery/internal/loader"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("NewGrid", func() {
	var (
		query         datacube.Query
		product       datacube.Product
		returnedGrid  loader.Grid
		returnedError error
	)

	BeforeEach(func() {
		query = datacube.Query{
			Product:      "ls8_nbar",
			Measurements: []string{"red"},
			X:            [2]float64{500005, 500995},
			Y:            [2]float64{4599010, 4599995},
			CRS:          "EPSG:32631",
		}
		product = datacube.Product{Name: "ls8_nbar", CRS: "EPSG:32631", Resolution: [2]float64{-30, 30}}
	})

	JustBeforeEach(func() {
		returnedGrid, returnedError = loader.NewGrid(query, product)
	})

	var (
		itShouldNotReturnAnError = func() {
			It("should not return an error", func() {
				Expect(returnedError).To(BeNil())
			})
		}
		itShouldReturnAValidationError = func() {
			It("should return a validation error", func() {
				Expect(datacube.IsError(returnedError, datacube.ValidationError)).To(BeTrue())
			})
		}
	)

	Context("native grid", func() {
		itShouldNotReturnAnError()
		It("should snap the extent on the resolution", func() {
			Expect(returnedGrid.Width).To(Equal(34))
			Expect(returnedGrid.Height).To(Equal(34))
			Expect(returnedGrid.Transform.Rx()).To(Equal(30.0))
			Expect(returnedGrid.Transform.Ry()).To(Equal(-30.0))
			Expect(returnedGrid.Bounds()).To(Equal([4]float64{499980, 4599000, 501000, 4600020}))
		})
	})

	Context("output resolution", func() {
		BeforeEach(func() {
			query.OutputCRS = "EPSG:32631"
			query.Resolution = [2]float64{-10, 10}
		})
		itShouldNotReturnAnError()
		It("should use the query resolution", func() {
			Expect(returnedGrid.Width).To(Equal(100))
			Expect(returnedGrid.Height).To(Equal(99))
		})
	})

	Context("reprojection", func() {
		BeforeEach(func() {
			query.OutputCRS = "EPSG:4326"
			query.Resolution = [2]float64{-0.001, 0.001}
		})
		itShouldNotReturnAnError()
		It("should cover the extent in the output crs", func() {
			b := returnedGrid.Bounds()
			Expect(b[0]).To(BeNumerically("~", 3, 0.01))
			Expect(b[1]).To(BeNumerically("~", 41.54, 0.02))
			Expect(returnedGrid.Width).To(BeNumerically(">", 10))
		})
	})

	Context("product without native grid", func() {
		BeforeEach(func() {
			product.CRS = ""
		})
		itShouldReturnAValidationError()
	})

	Context("output crs without resolution", func() {
		BeforeEach(func() {
			query.OutputCRS = "EPSG:3857"
			product.Resolution = [2]float64{}
		})
		itShouldReturnAValidationError()
	})

	Context("invalid output crs", func() {
		BeforeEach(func() {
			query.OutputCRS = "EPSG:0"
			query.Resolution = [2]float64{-10, 10}
		})
		itShouldReturnAValidationError()
	})
})

var _ = Describe("LonLatBounds", func() {
	It("should default to lon/lat", func() {
		b, err := loader.LonLatBounds(datacube.Query{X: [2]float64{1, 2}, Y: [2]float64{43, 44}})
		Expect(err).To(BeNil())
		Expect(b).To(Equal([4]float64{1, 43, 2, 44}))
	})
})
