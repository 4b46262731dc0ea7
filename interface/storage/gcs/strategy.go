package gcs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	dcStorage "github.com/airbusgeo/dcquery/interface/storage"
	"github.com/airbusgeo/dcquery/internal/log"
	"github.com/airbusgeo/dcquery/internal/utils"
	"go.uber.org/zap"
)

type gsStrategy struct {
	gsClient *storage.Client
}

var retriableOAuth2Errors = []string{
	"cannot assign requested address",
	"connection refused",
	"connection reset",
	"timeout",
	"broken pipe",
	"client connection force closed",
	"502 Bad Gateway",
}

var retriableSuffixErrors = []string{
	"http2: client connection lost",
	"http2: client connection force closed via ClientConn.Close",
	"EOF", // Unexpected EOF is a temporary error
}

func gsError(err error) error {
	if err == nil {
		return nil
	}
	if utils.Temporary(err) {
		return err
	}

	// grpc & oauth2 do not transfer the temporary status of the error
	if strings.Contains(err.Error(), "oauth2: cannot fetch token:") {
		for _, e := range retriableOAuth2Errors {
			if strings.Contains(err.Error(), e) {
				return utils.MakeTemporary(err)
			}
		}
	}

	for _, e := range retriableSuffixErrors {
		if strings.HasSuffix(err.Error(), e) {
			return utils.MakeTemporary(err)
		}
	}
	return err
}

func NewGsStrategy(ctx context.Context) (dcStorage.Strategy, error) {
	gsClient, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create gs Client : %w", gsError(err))
	}

	return gsStrategy{gsClient: gsClient}, nil
}

func (s gsStrategy) Download(ctx context.Context, uri string, options ...dcStorage.Option) ([]byte, error) {
	bucket, path, err := decodeURI(uri)
	if err != nil {
		return nil, err
	}

	buf := &bytes.Buffer{}
	if err := s.downloadObjectTo(ctx, bucket, path, buf, options...); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (s gsStrategy) Upload(ctx context.Context, uri string, data []byte, options ...dcStorage.Option) error {
	bucket, object, err := decodeURI(uri)
	if err != nil {
		return err
	}

	return s.uploadObjectFrom(ctx, bucket, object, bytes.NewReader(data), options...)
}

// UploadFile retries the upload only if data can be rewound
func (s gsStrategy) UploadFile(ctx context.Context, uri string, data io.ReadCloser, options ...dcStorage.Option) error {
	bucket, object, err := decodeURI(uri)
	if err != nil {
		return err
	}
	if rs, ok := data.(io.ReadSeeker); ok {
		return s.uploadObjectFrom(ctx, bucket, object, rs, options...)
	}

	writer := s.newWriter(ctx, bucket, object, dcStorage.Apply(options...))
	if _, err = io.Copy(writer, data); err != nil {
		writer.Close()
		return fmt.Errorf("UploadFile: failed to copy: %w", gsError(err))
	}
	if err = writer.Close(); err != nil {
		return fmt.Errorf("UploadFile: failed to close writer: %w", gsError(err))
	}
	return nil
}

func (s gsStrategy) Delete(ctx context.Context, uri string, options ...dcStorage.Option) error {
	bucket, object, err := decodeURI(uri)
	if err != nil {
		return err
	}

	op := dcStorage.Apply(options...)
	d := op.Delay
	for try := 0; try < op.MaxTries; try++ {
		if try > 0 {
			time.Sleep(d)
			d *= 2
		}
		err = s.gsClient.Bucket(bucket).Object(object).Delete(ctx)
		if errors.Is(err, storage.ErrObjectNotExist) {
			if op.IgnoreNotFound {
				return nil
			}
			return dcStorage.ErrFileNotFound
		}
		err = gsError(err)
		if err == nil {
			return nil
		}
		if !utils.Temporary(err) {
			return fmt.Errorf("delete: %w", err)
		}
	}
	return fmt.Errorf("failed after %d retries: %w", op.MaxTries, err)
}

func (s gsStrategy) Exist(ctx context.Context, uri string) (bool, error) {
	if _, err := s.GetAttrs(ctx, uri); err != nil {
		return false, err
	}
	return true, nil
}

func (s gsStrategy) GetAttrs(ctx context.Context, uri string) (dcStorage.Attrs, error) {
	bucket, path, err := decodeURI(uri)
	if err != nil {
		return dcStorage.Attrs{}, err
	}

	attrs, err := s.gsClient.Bucket(bucket).Object(path).Attrs(ctx)
	switch {
	case errors.Is(err, storage.ErrBucketNotExist):
		return dcStorage.Attrs{}, fmt.Errorf("bucket not exist: %w", err)
	case errors.Is(err, storage.ErrObjectNotExist):
		return dcStorage.Attrs{}, dcStorage.ErrFileNotFound
	case err != nil:
		return dcStorage.Attrs{}, fmt.Errorf("failed to get file attributes from GCS : %w", gsError(err))
	}

	return dcStorage.Attrs{
		StorageClass: attrs.StorageClass,
		ContentType:  attrs.ContentType,
		Size:         attrs.Size,
	}, nil
}

func decodeURI(uri string) (string, string, error) {
	bucket, path, err := Parse(uri)
	if err != nil {
		return "", "", fmt.Errorf("failed to parse URI : %s : %w", uri, err)
	}
	return bucket, path, nil
}

func (s gsStrategy) newWriter(ctx context.Context, bucket, object string, op dcStorage.Options) *storage.Writer {
	w := s.gsClient.Bucket(bucket).Object(object).NewWriter(ctx)
	if op.StorageClass != "" {
		w.StorageClass = op.StorageClass
	}
	if op.ContentType != "" {
		w.ContentType = op.ContentType
	}
	return w
}

func (s gsStrategy) downloadObjectTo(ctx context.Context, bucket, path string, w io.Writer, opts ...dcStorage.Option) error {
	op := dcStorage.Apply(opts...)
	d := op.Delay
	var err error
	var r *storage.Reader
	var offset int64
	for try := 0; try < op.MaxTries; try++ {
		if try > 0 {
			log.Logger(ctx).Debug("retry download", zap.String("object", bucket+"/"+path), zap.Error(err))
			time.Sleep(d)
			d *= 2
		}
		r, err = s.gsClient.Bucket(bucket).Object(path).NewRangeReader(ctx, offset, -1)
		if errors.Is(err, storage.ErrObjectNotExist) {
			return dcStorage.ErrFileNotFound
		}
		if err != nil {
			err = gsError(err)
			if utils.Temporary(err) {
				continue
			}
			return fmt.Errorf("newreader: %w", err)
		}

		var n int64
		n, err = io.Copy(w, r)
		r.Close()
		if err == nil {
			return nil
		}
		err = gsError(err)
		if !utils.Temporary(err) {
			return fmt.Errorf("copy: %w", err)
		}
		offset += n
	}
	return fmt.Errorf("failed after %d retries: %w", op.MaxTries, err)
}

func (s gsStrategy) uploadObjectFrom(ctx context.Context, bucket, object string, r io.ReadSeeker, opts ...dcStorage.Option) error {
	op := dcStorage.Apply(opts...)
	d := op.Delay
	var err error
	off, _ := r.Seek(0, io.SeekCurrent)
	for try := 0; try < op.MaxTries; try++ {
		if try > 0 {
			log.Logger(ctx).Debug("retry upload", zap.String("object", bucket+"/"+object), zap.Error(err))
			time.Sleep(d)
			d *= 2
			if _, err = r.Seek(off, io.SeekStart); err != nil {
				return fmt.Errorf("r.reset: %w", err)
			}
		}
		w := s.newWriter(ctx, bucket, object, op)
		if _, err = io.Copy(w, r); err != nil {
			w.Close()
			err = gsError(err)
			if utils.Temporary(err) {
				continue
			}
			return fmt.Errorf("copy: %w", err)
		}
		err = gsError(w.Close())
		if err == nil {
			return nil
		}
		if !utils.Temporary(err) {
			return fmt.Errorf("w.close: %w", err)
		}
	}
	return fmt.Errorf("failed after %d retries: %w", op.MaxTries, err)
}
