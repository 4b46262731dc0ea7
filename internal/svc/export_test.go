package svc_test

import (
	"context"
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"

	"github.com/airbusgeo/dcquery/interface/database"
	mocksDB "github.com/airbusgeo/dcquery/interface/database/mocks"
	"github.com/airbusgeo/dcquery/interface/storage"
	mocksStorage "github.com/airbusgeo/dcquery/interface/storage/mocks"
	"github.com/airbusgeo/dcquery/internal/datacube"
	"github.com/airbusgeo/dcquery/internal/image"
	"github.com/airbusgeo/dcquery/internal/query"
	"github.com/airbusgeo/dcquery/internal/svc"
	"github.com/airbusgeo/dcquery/internal/utils"
	"github.com/stretchr/testify/mock"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

// progressFeedback records the progress. It is canceled after cancelAfter progress updates (if >0).
type progressFeedback struct {
	*svc.LogFeedback
	progress    []float64
	cancelAfter int
}

func (f *progressFeedback) SetProgress(progress float64) {
	f.LogFeedback.SetProgress(progress)
	f.progress = append(f.progress, progress)
}

func (f *progressFeedback) IsCanceled() bool {
	if f.cancelAfter > 0 && len(f.progress) >= f.cancelAfter {
		return true
	}
	return f.LogFeedback.IsCanceled()
}

func productFilter(product string) interface{} {
	return mock.MatchedBy(func(f database.DatasetFilter) bool { return f.Product == product })
}

var _ = Describe("Execute", func() {
	var (
		ctx    context.Context
		cancel context.CancelFunc

		mockIndex   *mocksDB.Index
		mockStorage *mocksStorage.Strategy
		service     *svc.Service
		workDir     string
		outDir      string

		params   query.Parameters
		settings query.Settings
		feedback *progressFeedback

		readProductErrorReturned map[string]error
		countReturned            map[string]int
		countErrorReturned       error
		findReturned             map[string][]*datacube.Dataset
		uploadErrorReturned      error
		uploaded                 map[string]int64
		truncatedUpload          bool

		returnedOutputs svc.Outputs
		returnedError   error
	)

	BeforeEach(func() {
		var err error
		ctx, cancel = context.WithCancel(context.Background())
		workDir, err = ioutil.TempDir("", "export")
		Expect(err).To(BeNil())
		outDir = filepath.Join(workDir, "out")
		source := filepath.Join(workDir, "source.tif")
		createSource(source, 3)

		mockIndex = new(mocksDB.Index)
		mockStorage = new(mocksStorage.Strategy)
		service, err = svc.New(ctx, mockIndex, svc.WithStorage(mockStorage), svc.WithWorkspace(workDir))
		Expect(err).To(BeNil())

		params = query.Parameters{
			Products:        map[string][]string{"p1": {"red"}, "p2": {"red"}},
			DateRange:       [2]string{"2020-01-01", "2020-01-31"},
			Extent:          sourceExtent,
			ExtentCRS:       "EPSG:32631",
			OutputDirectory: outDir,
		}
		settings = query.DefaultSettings()
		settings.BuildOverviews = false
		settings.ApproxStatistics = false
		feedback = &progressFeedback{LogFeedback: svc.NewLogFeedback(ctx)}

		readProductErrorReturned = map[string]error{}
		countReturned = map[string]int{"p1": 2, "p2": 1}
		countErrorReturned = nil
		findReturned = map[string][]*datacube.Dataset{
			"p1": {newDataset("d1", "p1", source, t0), newDataset("d2", "p1", source, t0.AddDate(0, 0, 1))},
			"p2": {newDataset("d3", "p2", source, t0)},
		}
		uploadErrorReturned = nil
		uploaded = map[string]int64{}
		truncatedUpload = false
	})

	AfterEach(func() {
		cancel()
		os.RemoveAll(workDir)
	})

	JustBeforeEach(func() {
		for _, p := range []string{"p1", "p2"} {
			if err := readProductErrorReturned[p]; err != nil {
				mockIndex.On("ReadProduct", mock.Anything, p).Return(nil, err)
			} else {
				mockIndex.On("ReadProduct", mock.Anything, p).Return(newProduct(p), nil)
			}
			mockIndex.On("CountDatasets", mock.Anything, productFilter(p)).Return(countReturned[p], countErrorReturned)
			mockIndex.On("FindDatasets", mock.Anything, productFilter(p), 0).Return(findReturned[p], nil)
		}
		mockStorage.On("UploadFile", mock.Anything, mock.Anything, mock.Anything).Return(func(ctx context.Context, uri string, content []byte) error {
			uploaded[uri] = int64(len(content))
			return uploadErrorReturned
		})
		mockStorage.On("GetAttrs", mock.Anything, mock.Anything).Return(func(ctx context.Context, uri string) (storage.Attrs, error) {
			size := uploaded[uri]
			if truncatedUpload {
				size /= 2
			}
			return storage.Attrs{Size: size}, nil
		})
		returnedOutputs, returnedError = service.Execute(ctx, params, settings, feedback)
	})

	var (
		itShouldNotReturnAnError = func() {
			It("should not return an error", func() {
				Expect(returnedError).To(BeNil())
			})
		}
		itShouldReturnAnErrorWithCode = func(code datacube.ErrorCode) {
			It("should return an error "+code.String(), func() {
				Expect(datacube.IsError(returnedError, code)).To(BeTrue(), fmt.Sprint(returnedError))
			})
		}
		itShouldReturnTheOutputs = func(names ...string) {
			It(fmt.Sprintf("should return the outputs %v", names), func() {
				expected := svc.Outputs{}
				for _, name := range names {
					expected[filepath.Join(outDir, name+".tif")] = name
				}
				Expect(returnedOutputs).To(Equal(expected))
				for path := range expected {
					Expect(path).To(BeAnExistingFile())
				}
			})
		}
		itShouldReportTheError = func(msg string) {
			It("should report: "+msg, func() {
				Expect(feedback.Errors).To(ContainElement(ContainSubstring(msg)))
			})
		}
		itShouldEndAt = func(progress float64) {
			It(fmt.Sprintf("should end at %v%%", progress), func() {
				Expect(feedback.progress).NotTo(BeEmpty())
				Expect(feedback.progress[len(feedback.progress)-1]).To(BeNumerically("~", progress, 1e-9))
				for i := 1; i < len(feedback.progress); i++ {
					Expect(feedback.progress[i]).To(BeNumerically(">=", feedback.progress[i-1]))
				}
			})
		}
	)

	Context("default", func() {
		itShouldNotReturnAnError()
		itShouldReturnTheOutputs("p1_2020-01-01", "p1_2020-01-02", "p2_2020-01-01")
		itShouldEndAt(100)
		It("should tag the timestep", func() {
			tags, err := image.Tags(filepath.Join(outDir, "p1_2020-01-02.tif"), 0, "")
			Expect(err).To(BeNil())
			Expect(tags).To(HaveKeyWithValue(svc.DatetimeTag, "2020:01:02"))
		})
		It("should compute the statistics", func() {
			tags, err := image.Tags(filepath.Join(outDir, "p2_2020-01-01.tif"), 1, "")
			Expect(err).To(BeNil())
			Expect(tags).To(HaveKeyWithValue("STATISTICS_MEAN", "3"))
		})
		It("should not report any error", func() {
			Expect(feedback.Errors).To(BeEmpty())
		})
	})

	Context("unknown product", func() {
		BeforeEach(func() {
			readProductErrorReturned["p1"] = datacube.NewEntityNotFound("Product", "name", "p1", "")
		})
		itShouldNotReturnAnError()
		itShouldReportTheError("Error encountered processing p1: Product with name: p1")
		itShouldReturnTheOutputs("p2_2020-01-01")
		itShouldEndAt(100)
	})

	Context("no dataset", func() {
		BeforeEach(func() {
			countReturned["p2"] = 0
		})
		itShouldNotReturnAnError()
		itShouldReportTheError("Error encountered processing p2: No datasets found")
		itShouldReturnTheOutputs("p1_2020-01-01", "p1_2020-01-02")
		itShouldEndAt(100)
	})

	Context("too many datasets", func() {
		BeforeEach(func() {
			settings.MaxDatasets = 1
		})
		itShouldNotReturnAnError()
		itShouldReportTheError("Error encountered processing p1: Too many datasets found: 2 > 1")
		itShouldReturnTheOutputs("p2_2020-01-01")
	})

	Context("more than ten timesteps", func() {
		BeforeEach(func() {
			source := filepath.Join(workDir, "source.tif")
			findReturned["p1"] = nil
			for i := 0; i < 12; i++ {
				findReturned["p1"] = append(findReturned["p1"], newDataset(fmt.Sprintf("d1-%d", i), "p1", source, t0.AddDate(0, 0, i)))
			}
			countReturned["p1"] = 12
		})
		itShouldNotReturnAnError()
		itShouldEndAt(100)
		It("should not exceed the share of the first product before the second one", func() {
			expected := []float64{0}
			for i := 1; i <= 12; i++ {
				expected = append(expected, float64(utils.MinI(i, 10))*5)
			}
			expected = append(expected, 50, 55, 100)
			Expect(feedback.progress).To(Equal(expected))
		})
		It("should write all the timesteps", func() {
			Expect(returnedOutputs).To(HaveLen(13))
			Expect(filepath.Join(outDir, "p1_2020-01-12.tif")).To(BeAnExistingFile())
		})
	})

	Context("timestep not loaded", func() {
		BeforeEach(func() {
			findReturned["p1"][1] = newDataset("d2", "p1", filepath.Join(workDir, "missing.tif"), t0.AddDate(0, 0, 1))
		})
		itShouldNotReturnAnError()
		itShouldReportTheError("Error encountered processing p1: ")
		It("should report the failing timestep", func() {
			Expect(feedback.Errors).To(HaveLen(1))
			Expect(feedback.Errors[0]).To(ContainSubstring("missing.tif"))
		})
		itShouldReturnTheOutputs("p1_2020-01-01", "p2_2020-01-01")
		itShouldEndAt(100)
	})

	Context("canceled between two timesteps", func() {
		BeforeEach(func() {
			// 0%, then the first timestep of p1
			feedback.cancelAfter = 2
		})
		itShouldNotReturnAnError()
		itShouldReturnTheOutputs("p1_2020-01-01")
		It("should not process the next products", func() {
			mockIndex.AssertNotCalled(GinkgoT(), "ReadProduct", mock.Anything, "p2")
		})
	})

	Context("multi-temporal cloud optimized outputs", func() {
		BeforeEach(func() {
			settings.BuildOverviews = true
			settings.CloudOptimized = true
			settings.MultiTemporal = true
			settings.GTiffOvrOptions = map[string]interface{}{"factors": []int{2}}
		})
		itShouldNotReturnAnError()
		itShouldReturnTheOutputs("p1_2020-01-01", "p1_2020-01-02", "p1_mucog", "p2_2020-01-01", "p2_mucog")
		itShouldEndAt(100)
		It("should write a readable multi-temporal GeoTIFF", func() {
			_, err := image.Tags(filepath.Join(outDir, "p1_mucog.tif"), 0, "")
			Expect(err).To(BeNil())
		})
	})

	Context("index unreachable", func() {
		BeforeEach(func() {
			countErrorReturned = utils.MakeTemporary(fmt.Errorf("connection refused"))
		})
		itShouldReturnAnErrorWithCode(datacube.IndexUnavailable)
		It("should not return any output", func() {
			Expect(returnedOutputs).To(BeEmpty())
		})
	})

	Context("canceled", func() {
		BeforeEach(func() {
			cancel()
		})
		itShouldNotReturnAnError()
		It("should not return any output", func() {
			Expect(returnedOutputs).To(BeEmpty())
		})
		It("should not query the index", func() {
			mockIndex.AssertNotCalled(GinkgoT(), "ReadProduct", mock.Anything, mock.Anything)
		})
	})

	Context("invalid settings", func() {
		BeforeEach(func() {
			settings.Workers = 0
		})
		itShouldReturnAnErrorWithCode(datacube.ValidationError)
	})

	Context("no output directory", func() {
		BeforeEach(func() {
			params.OutputDirectory = ""
		})
		itShouldReturnAnErrorWithCode(datacube.ValidationError)
	})

	Context("remote output directory", func() {
		BeforeEach(func() {
			params.OutputDirectory = "gs://bucket/exports"
			settings.StorageClass = "NEARLINE"
		})
		itShouldNotReturnAnError()
		It("should return the uploaded outputs", func() {
			Expect(returnedOutputs).To(Equal(svc.Outputs{
				"gs://bucket/exports/p1_2020-01-01.tif": "p1_2020-01-01",
				"gs://bucket/exports/p1_2020-01-02.tif": "p1_2020-01-02",
				"gs://bucket/exports/p2_2020-01-01.tif": "p2_2020-01-01",
			}))
		})
		It("should upload the outputs", func() {
			mockStorage.AssertCalled(GinkgoT(), "UploadFile", mock.Anything, "gs://bucket/exports/p2_2020-01-01.tif", mock.Anything)
			Expect(uploaded["gs://bucket/exports/p2_2020-01-01.tif"]).To(BeNumerically(">", 0))
		})
		It("should retry the uploads in the storage class", func() {
			mockStorage.AssertCalled(GinkgoT(), "UploadFile", mock.Anything, "gs://bucket/exports/p1_2020-01-01.tif",
				mock.MatchedBy(func(o storage.Options) bool {
					return o.MaxTries == 5 && o.StorageClass == "NEARLINE" && o.ContentType == "image/tiff"
				}))
		})
		It("should check the uploaded size", func() {
			mockStorage.AssertCalled(GinkgoT(), "GetAttrs", mock.Anything, "gs://bucket/exports/p2_2020-01-01.tif")
		})
		It("should clean the workspace", func() {
			matches, err := filepath.Glob(filepath.Join(workDir, "export-*"))
			Expect(err).To(BeNil())
			Expect(matches).To(BeEmpty())
		})
	})

	Context("upload failure", func() {
		BeforeEach(func() {
			params.OutputDirectory = "gs://bucket/exports"
			uploadErrorReturned = fmt.Errorf("permission denied")
		})
		It("should return an error", func() {
			Expect(returnedError).NotTo(BeNil())
			Expect(returnedError.Error()).To(ContainSubstring("permission denied"))
		})
	})

	Context("incomplete upload", func() {
		BeforeEach(func() {
			params.OutputDirectory = "gs://bucket/exports"
			truncatedUpload = true
		})
		It("should return an error", func() {
			Expect(returnedError).NotTo(BeNil())
			Expect(returnedError.Error()).To(ContainSubstring("incomplete upload"))
		})
		It("should not return the incomplete output", func() {
			Expect(returnedOutputs).NotTo(HaveKey("gs://bucket/exports/p1_2020-01-01.tif"))
		})
	})
})

var _ = Describe("PostProcess", func() {
	It("should sort the layers by name", func() {
		layers := svc.PostProcess(svc.Outputs{
			"/out/p2_2020-01-01.tif": "p2_2020-01-01",
			"/out/p1_2020-01-02.tif": "p1_2020-01-02",
			"/out/p1_2020-01-01.tif": "p1_2020-01-01",
		})
		Expect(layers).To(Equal([]svc.Layer{
			{Path: "/out/p1_2020-01-01.tif", Name: "p1_2020-01-01"},
			{Path: "/out/p1_2020-01-02.tif", Name: "p1_2020-01-02"},
			{Path: "/out/p2_2020-01-01.tif", Name: "p2_2020-01-01"},
		}))
	})
})
