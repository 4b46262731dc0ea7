package svc

// #include <unistd.h>
import "C"
import (
	"context"
	"fmt"
	"os"

	"github.com/airbusgeo/dcquery/interface/database"
	"github.com/airbusgeo/dcquery/interface/messaging"
	"github.com/airbusgeo/dcquery/interface/storage"
)

// Service queries the index and exports the datasets as GeoTIFF files
type Service struct {
	index                database.Index
	jobPublisher         messaging.Publisher
	eventPublisher       messaging.Publisher
	cancelledJobsStorage string
	workspace            string
	storage              storage.Strategy
	// ramSize is the physical memory in bytes (0 if unknown)
	ramSize int
}

// Option configures the optional features of the service
type Option func(svc *Service)

// WithJobPublisher enables SubmitExport
func WithJobPublisher(p messaging.Publisher) Option {
	return func(svc *Service) {
		svc.jobPublisher = p
	}
}

// WithEventPublisher publishes the progress of the export jobs
func WithEventPublisher(p messaging.Publisher) Option {
	return func(svc *Service) {
		svc.eventPublisher = p
	}
}

// WithCancelledJobsStorage sets the storage (local path or gs://, s3://) where cancelled jobs are referenced
func WithCancelledJobsStorage(storage string) Option {
	return func(svc *Service) {
		svc.cancelledJobsStorage = storage
	}
}

// WithWorkspace sets the local directory used to write outputs before their upload to a remote output directory
func WithWorkspace(workspace string) Option {
	return func(svc *Service) {
		svc.workspace = workspace
	}
}

// WithStorage uses the strategy for every remote output directory and for the cancelled jobs,
// instead of the strategy deduced from their uri
func WithStorage(s storage.Strategy) Option {
	return func(svc *Service) {
		svc.storage = s
	}
}

// New returns a new business service
func New(ctx context.Context, index database.Index, opts ...Option) (*Service, error) {
	if index == nil {
		return nil, fmt.Errorf("invalid arguments: an index must be defined")
	}
	svc := &Service{
		index:     index,
		workspace: os.TempDir(),
		ramSize:   int(C.sysconf(C._SC_PHYS_PAGES) * C.sysconf(C._SC_PAGE_SIZE)),
	}
	for _, o := range opts {
		o(svc)
	}
	return svc, nil
}
