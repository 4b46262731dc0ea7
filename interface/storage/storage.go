package storage

import (
	"context"
	"errors"
	"io"
	"time"
)

var (
	ErrFileNotFound = errors.New("file not found")
)

// Strategy reads and writes the objects of one storage backend (local filesystem, gs://, s3://)
type Strategy interface {
	Download(ctx context.Context, uri string, options ...Option) ([]byte, error)
	Upload(ctx context.Context, uri string, data []byte, options ...Option) error
	UploadFile(ctx context.Context, uri string, data io.ReadCloser, options ...Option) error
	Delete(ctx context.Context, uri string, options ...Option) error
	Exist(ctx context.Context, uri string) (bool, error)
	GetAttrs(ctx context.Context, uri string) (Attrs, error)
}

type Option func(o *Options)

// Options are the resolved values of a list of Option
type Options struct {
	MaxTries       int
	Delay          time.Duration
	StorageClass   string
	ContentType    string
	IgnoreNotFound bool
}

type Attrs struct {
	ContentType  string
	StorageClass string
	Size         int64
}

func MaxTries(n int) Option {
	if n <= 0 {
		n = 1
	}
	return func(o *Options) {
		o.MaxTries = n
	}
}

func OnErrorRetryDelay(d time.Duration) Option {
	if d < 0 {
		d = 0
	}
	return func(o *Options) {
		o.Delay = d
	}
}

func StorageClass(cl string) Option {
	return func(o *Options) {
		o.StorageClass = cl
	}
}

// ContentType sets the content-type of the uploaded object
func ContentType(ct string) Option {
	return func(o *Options) {
		o.ContentType = ct
	}
}

// IgnoreNotFound makes Delete succeed when the object does not exist
func IgnoreNotFound() Option {
	return func(o *Options) {
		o.IgnoreNotFound = true
	}
}

func Apply(opts ...Option) Options {
	opt := Options{
		MaxTries: 10,
		Delay:    time.Second,
	}
	for _, o := range opts {
		o(&opt)
	}
	return opt
}
