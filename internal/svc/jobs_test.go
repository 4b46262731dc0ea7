package svc_test

import (
	"bytes"
	"context"
	"fmt"
	"os"

	mocksDB "github.com/airbusgeo/dcquery/interface/database/mocks"
	"github.com/airbusgeo/dcquery/interface/messaging"
	mocksMessaging "github.com/airbusgeo/dcquery/interface/messaging/mocks"
	"github.com/airbusgeo/dcquery/interface/storage"
	mocksStorage "github.com/airbusgeo/dcquery/interface/storage/mocks"
	"github.com/airbusgeo/dcquery/internal/datacube"
	"github.com/airbusgeo/dcquery/internal/query"
	"github.com/airbusgeo/dcquery/internal/svc"
	"github.com/airbusgeo/dcquery/internal/utils"
	"github.com/stretchr/testify/mock"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

const cancelledJobs = "gs://bucket/cancelled"

var _ = Describe("SubmitExport", func() {
	var (
		ctx = context.Background()

		mockIndex     *mocksDB.Index
		mockPublisher *mocksMessaging.Publisher
		service       *svc.Service

		params   query.Parameters
		settings query.Settings

		publishedJobs []*svc.ExportJob
		returnedID    string
		returnedError error
	)

	BeforeEach(func() {
		var err error
		mockIndex = new(mocksDB.Index)
		mockPublisher = new(mocksMessaging.Publisher)
		service, err = svc.New(ctx, mockIndex, svc.WithJobPublisher(mockPublisher))
		Expect(err).To(BeNil())

		params = query.Parameters{
			Products:        map[string][]string{"s2_l2a": {"red"}},
			Extent:          [4]float64{2.5, 41.5, 3.5, 41.6},
			OutputDirectory: "gs://bucket/exports",
		}
		settings = query.DefaultSettings()
		settings.MaxDatasets = 50
		settings.Resampling = datacube.ResamplingBILINEAR
		publishedJobs = nil
	})

	JustBeforeEach(func() {
		mockIndex.On("ListProducts", mock.Anything, "").Return([]*datacube.Product{newProduct("s2_l2a")}, nil)
		mockPublisher.On("Publish", mock.Anything, mock.Anything).Return(func(ctx context.Context, data [][]byte) error {
			for _, d := range data {
				job, err := svc.UnmarshalExportJob(d)
				Expect(err).To(BeNil())
				publishedJobs = append(publishedJobs, job)
			}
			return nil
		})
		returnedID, returnedError = service.SubmitExport(ctx, params, settings)
	})

	Context("default", func() {
		It("should publish the job", func() {
			Expect(returnedError).To(BeNil())
			Expect(publishedJobs).To(HaveLen(1))
			Expect(publishedJobs[0].ID).To(Equal(returnedID))
			Expect(publishedJobs[0].Parameters).To(Equal(params))
		})
		It("should publish the settings", func() {
			s, err := publishedJobs[0].LoadSettings()
			Expect(err).To(BeNil())
			Expect(s.MaxDatasets).To(Equal(50))
			Expect(s.Resampling).To(Equal(datacube.ResamplingBILINEAR))
			Expect(s.CalculateStatistics).To(BeTrue())
		})
	})

	Context("unknown measurement", func() {
		BeforeEach(func() {
			params.Products["s2_l2a"] = []string{"swir"}
		})
		It("should return a validation error", func() {
			Expect(datacube.IsError(returnedError, datacube.ValidationError)).To(BeTrue())
			Expect(returnedError.Error()).To(ContainSubstring("Unknown measurement: s2_l2a/swir"))
			Expect(publishedJobs).To(BeEmpty())
		})
	})
})

var _ = Describe("CancelExport", func() {
	var (
		ctx = context.Background()

		mockStorage *mocksStorage.Strategy
		service     *svc.Service

		jobID         string
		returnedError error
	)

	BeforeEach(func() {
		var err error
		mockStorage = new(mocksStorage.Strategy)
		service, err = svc.New(ctx, new(mocksDB.Index), svc.WithStorage(mockStorage), svc.WithCancelledJobsStorage(cancelledJobs))
		Expect(err).To(BeNil())
		jobID = "0b4a2bb0-65b3-4b7f-a46d-3a4fcbcbf1e2"
	})

	JustBeforeEach(func() {
		mockStorage.On("Upload", mock.Anything, mock.Anything, mock.Anything).Return(nil)
		returnedError = service.CancelExport(ctx, jobID)
	})

	Context("default", func() {
		It("should write the marker", func() {
			Expect(returnedError).To(BeNil())
			mockStorage.AssertCalled(GinkgoT(), "Upload", mock.Anything, cancelledJobs+"/"+jobID, mock.Anything)
		})
	})

	Context("invalid job id", func() {
		BeforeEach(func() {
			jobID = "../etc/passwd"
		})
		It("should return a validation error", func() {
			Expect(datacube.IsError(returnedError, datacube.ValidationError)).To(BeTrue())
			mockStorage.AssertNotCalled(GinkgoT(), "Upload", mock.Anything, mock.Anything, mock.Anything)
		})
	})
})

var _ = Describe("HandleExportJob", func() {
	var (
		ctx = context.Background()

		mockIndex   *mocksDB.Index
		mockEvents  *mocksMessaging.Publisher
		mockStorage *mocksStorage.Strategy
		service     *svc.Service

		job      *svc.ExportJob
		settings query.Settings
		message  *messaging.Message

		existReturned      bool
		existErrorReturned error
		countErrorReturned error

		events        []*datacube.ExportEvent
		returnedError error
	)

	BeforeEach(func() {
		var err error
		mockIndex = new(mocksDB.Index)
		mockEvents = new(mocksMessaging.Publisher)
		mockStorage = new(mocksStorage.Strategy)
		service, err = svc.New(ctx, mockIndex,
			svc.WithEventPublisher(mockEvents),
			svc.WithStorage(mockStorage),
			svc.WithCancelledJobsStorage(cancelledJobs))
		Expect(err).To(BeNil())

		settings = query.DefaultSettings()
		existReturned = false
		existErrorReturned = storage.ErrFileNotFound
		countErrorReturned = nil
		events = nil
		message = nil
	})

	JustBeforeEach(func() {
		if message == nil {
			var err error
			job, err = svc.NewExportJob(query.Parameters{
				Products:        map[string][]string{"p1": {"red"}, "p2": {"red"}},
				Extent:          sourceExtent,
				ExtentCRS:       "EPSG:32631",
				OutputDirectory: os.TempDir(),
			}, settings)
			Expect(err).To(BeNil())
			data, err := svc.MarshalExportJob(*job)
			Expect(err).To(BeNil())
			message = &messaging.Message{ID: "msg", Data: data}
		}

		mockStorage.On("Exist", mock.Anything, mock.Anything).Return(existReturned, existErrorReturned)
		mockStorage.On("Delete", mock.Anything, mock.Anything, mock.Anything).Return(nil)
		mockIndex.On("ReadProduct", mock.Anything, mock.Anything).Return(newProduct("p"), nil)
		mockIndex.On("CountDatasets", mock.Anything, mock.Anything).Return(0, countErrorReturned)
		mockEvents.On("Publish", mock.Anything, mock.Anything).Return(func(ctx context.Context, data [][]byte) error {
			for _, d := range data {
				evt, err := datacube.UnmarshalEvent(bytes.NewReader(d))
				Expect(err).To(BeNil())
				events = append(events, evt)
			}
			return nil
		})
		returnedError = service.HandleExportJob(ctx, message)
	})

	var (
		itShouldNotReturnAnError = func() {
			It("should not return an error", func() {
				Expect(returnedError).To(BeNil())
			})
		}
		itShouldEndWith = func(status datacube.ExportStatus) {
			It("should end with a "+status.String()+" event", func() {
				Expect(events).NotTo(BeEmpty())
				last := events[len(events)-1]
				Expect(last.Status).To(Equal(status))
				Expect(last.JobID).To(Equal(job.ID))
				for _, evt := range events[:len(events)-1] {
					Expect(evt.Status).To(Equal(datacube.ExportRunning))
				}
			})
		}
	)

	Context("default", func() {
		itShouldNotReturnAnError()
		itShouldEndWith(datacube.ExportDone)
		It("should report the errors of each product", func() {
			last := events[len(events)-1]
			Expect(last.Progress).To(BeNumerically("~", 100, 1e-9))
			Expect(last.Errors).To(ConsistOf(
				"Error encountered processing p1: No datasets found",
				"Error encountered processing p2: No datasets found"))
			Expect(last.Outputs).To(BeEmpty())
		})
		It("should not clear any cancellation", func() {
			mockStorage.AssertNotCalled(GinkgoT(), "Delete", mock.Anything, mock.Anything, mock.Anything)
		})
		It("should publish the progress", func() {
			Expect(events).To(ContainElement(WithTransform(func(e *datacube.ExportEvent) string { return e.Message }, Equal("Processing p2"))))
		})
	})

	Context("cancelled job", func() {
		BeforeEach(func() {
			existReturned = true
			existErrorReturned = nil
		})
		itShouldNotReturnAnError()
		itShouldEndWith(datacube.ExportCancelled)
		It("should not run the export", func() {
			mockIndex.AssertNotCalled(GinkgoT(), "ReadProduct", mock.Anything, mock.Anything)
		})
		It("should clear the cancellation", func() {
			mockStorage.AssertCalled(GinkgoT(), "Delete", mock.Anything, cancelledJobs+"/"+job.ID,
				mock.MatchedBy(func(o storage.Options) bool { return o.IgnoreNotFound }))
		})
	})

	Context("cancelled jobs storage unreachable", func() {
		BeforeEach(func() {
			existErrorReturned = fmt.Errorf("network unreachable")
		})
		itShouldNotReturnAnError()
		itShouldEndWith(datacube.ExportDone)
	})

	Context("index unreachable", func() {
		BeforeEach(func() {
			countErrorReturned = utils.MakeTemporary(fmt.Errorf("connection refused"))
		})
		It("should return a temporary error", func() {
			Expect(datacube.IsError(returnedError, datacube.IndexUnavailable)).To(BeTrue())
			Expect(utils.Temporary(returnedError)).To(BeTrue())
		})
		It("should not publish a final event", func() {
			for _, evt := range events {
				Expect(evt.Status).To(Equal(datacube.ExportRunning))
			}
		})
	})

	Context("invalid settings", func() {
		BeforeEach(func() {
			settings.Workers = 0
		})
		itShouldNotReturnAnError()
		itShouldEndWith(datacube.ExportFailed)
		It("should report the error", func() {
			Expect(events[len(events)-1].Errors).To(ContainElement(ContainSubstring("workers must be greater than zero")))
		})
	})

	Context("invalid message", func() {
		BeforeEach(func() {
			message = &messaging.Message{ID: "msg", Data: []byte("not a job")}
		})
		itShouldNotReturnAnError()
		It("should not publish any event", func() {
			Expect(events).To(BeEmpty())
		})
	})
})
