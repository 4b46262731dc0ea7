package svc_test

import (
	"context"
	"fmt"

	mocksDB "github.com/airbusgeo/dcquery/interface/database/mocks"
	"github.com/airbusgeo/dcquery/internal/datacube"
	"github.com/airbusgeo/dcquery/internal/query"
	"github.com/airbusgeo/dcquery/internal/svc"
	"github.com/airbusgeo/dcquery/internal/utils"
	"github.com/stretchr/testify/mock"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("ProductsAndMeasurements", func() {
	var (
		ctx = context.Background()

		mockIndex *mocksDB.Index
		service   *svc.Service

		listReturned      []*datacube.Product
		listErrorReturned error

		returnedCatalog datacube.Catalog
		returnedError   error
	)

	BeforeEach(func() {
		var err error
		mockIndex = new(mocksDB.Index)
		service, err = svc.New(ctx, mockIndex)
		Expect(err).To(BeNil())
		listReturned = []*datacube.Product{newProduct("s2_l2a"), newProduct("ls8_nbar")}
		listErrorReturned = nil
	})

	JustBeforeEach(func() {
		mockIndex.On("ListProducts", mock.Anything, "").Return(listReturned, listErrorReturned)
		returnedCatalog, returnedError = service.ProductsAndMeasurements(ctx, "")
	})

	Context("default", func() {
		It("should list the measurements of each product", func() {
			Expect(returnedError).To(BeNil())
			Expect(returnedCatalog.Products()).To(Equal([]string{"ls8_nbar", "s2_l2a"}))
			Expect(returnedCatalog.Contains("s2_l2a", "nir")).To(BeTrue())
		})
	})

	Context("index unreachable", func() {
		BeforeEach(func() {
			listReturned = nil
			listErrorReturned = utils.MakeTemporary(fmt.Errorf("dial tcp: connection refused"))
		})
		It("should return an IndexUnavailable error", func() {
			Expect(datacube.IsError(returnedError, datacube.IndexUnavailable)).To(BeTrue())
			Expect(returnedError.Error()).To(ContainSubstring("Unable to connect to a running Data Cube instance"))
		})
	})

	Context("other error", func() {
		BeforeEach(func() {
			listReturned = nil
			listErrorReturned = fmt.Errorf("syntax error")
		})
		It("should return the error as is", func() {
			Expect(returnedError).NotTo(BeNil())
			Expect(datacube.IsError(returnedError, datacube.IndexUnavailable)).To(BeFalse())
		})
	})
})

var _ = Describe("ValidateParameters", func() {
	var (
		ctx = context.Background()

		mockIndex *mocksDB.Index
		service   *svc.Service
		params    query.Parameters

		returnedOK       bool
		returnedMessages []string
		returnedError    error
	)

	BeforeEach(func() {
		var err error
		mockIndex = new(mocksDB.Index)
		service, err = svc.New(ctx, mockIndex)
		Expect(err).To(BeNil())
		params = query.Parameters{
			Products:  map[string][]string{"s2_l2a": {"red", "nir"}},
			DateRange: [2]string{"2020-01-01", "2020-02-01"},
			Extent:    [4]float64{2.5, 41.5, 3.5, 41.6},
		}
	})

	JustBeforeEach(func() {
		mockIndex.On("ListProducts", mock.Anything, "").Return([]*datacube.Product{newProduct("s2_l2a")}, nil)
		returnedOK, returnedMessages, returnedError = service.ValidateParameters(ctx, params)
	})

	var (
		itShouldBeValid = func() {
			It("should be valid", func() {
				Expect(returnedError).To(BeNil())
				Expect(returnedOK).To(BeTrue())
				Expect(returnedMessages).To(BeEmpty())
			})
		}
		itShouldReturnTheMessage = func(msg string) {
			It("should return: "+msg, func() {
				Expect(returnedError).To(BeNil())
				Expect(returnedOK).To(BeFalse())
				Expect(returnedMessages).To(ContainElement(msg))
			})
		}
	)

	Context("valid parameters", func() {
		itShouldBeValid()
	})

	Context("unknown product", func() {
		BeforeEach(func() {
			params.Products["ls5_nbar"] = []string{"red"}
		})
		itShouldReturnTheMessage("Unknown product: ls5_nbar")
	})

	Context("unknown measurement", func() {
		BeforeEach(func() {
			params.Products["s2_l2a"] = []string{"red", "swir"}
		})
		itShouldReturnTheMessage("Unknown measurement: s2_l2a/swir")
	})

	Context("invalid dates", func() {
		BeforeEach(func() {
			params.DateRange = [2]string{"2020-02-01", "2020-01-01"}
		})
		itShouldReturnTheMessage("The start date must be earlier than the end date")
	})

	Context("no product", func() {
		BeforeEach(func() {
			params.Products = nil
		})
		itShouldReturnTheMessage("Please select at least one product")
		It("should not query the index", func() {
			mockIndex.AssertNotCalled(GinkgoT(), "ListProducts", mock.Anything, mock.Anything)
		})
	})
})
