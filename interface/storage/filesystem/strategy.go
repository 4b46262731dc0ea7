package filesystem

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/airbusgeo/dcquery/interface/storage"
)

type fileSystemStrategy struct {
}

func NewFileSystemStrategy(ctx context.Context) (storage.Strategy, error) {
	return fileSystemStrategy{}, nil
}

func formatError(err error) error {
	var epath *os.PathError
	if errors.As(err, &epath) && os.IsNotExist(epath) {
		return storage.ErrFileNotFound
	}
	return err
}

func localPath(uri string) string {
	return strings.TrimPrefix(uri, "file://")
}

func createParentDir(path string) error {
	if _, err := os.Stat(filepath.Dir(path)); os.IsNotExist(err) {
		return os.MkdirAll(filepath.Dir(path), os.ModePerm)
	}
	return nil
}

func (s fileSystemStrategy) Download(ctx context.Context, uri string, options ...storage.Option) ([]byte, error) {
	f, err := os.Open(localPath(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", formatError(err))
	}

	defer f.Close()
	return io.ReadAll(f)
}

func (s fileSystemStrategy) Upload(ctx context.Context, uri string, data []byte, options ...storage.Option) error {
	return s.UploadFile(ctx, uri, io.NopCloser(bytes.NewReader(data)), options...)
}

func (s fileSystemStrategy) UploadFile(ctx context.Context, uri string, data io.ReadCloser, options ...storage.Option) error {
	uri = localPath(uri)
	if err := createParentDir(uri); err != nil {
		return err
	}

	f, err := os.Create(uri)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}

	if _, err = io.Copy(f, data); err != nil {
		f.Close()
		return fmt.Errorf("UploadFile: failed to copy: %w", err)
	}
	return f.Close()
}

func (s fileSystemStrategy) Delete(ctx context.Context, uri string, options ...storage.Option) error {
	opts := storage.Apply(options...)

	if err := os.Remove(localPath(uri)); err != nil {
		if !opts.IgnoreNotFound || !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove file: %w", formatError(err))
		}
	}

	return nil
}

func (s fileSystemStrategy) Exist(ctx context.Context, uri string) (bool, error) {
	if _, err := os.Stat(localPath(uri)); err != nil {
		if os.IsNotExist(err) {
			return false, storage.ErrFileNotFound
		}
		return false, err
	}
	return true, nil
}

func (s fileSystemStrategy) GetAttrs(ctx context.Context, uri string) (storage.Attrs, error) {
	f, err := os.Open(localPath(uri))
	if err != nil {
		return storage.Attrs{}, fmt.Errorf("failed to open file: %w", formatError(err))
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return storage.Attrs{}, err
	}

	// Only the first 512 bytes are used to sniff the content type.
	buffer := make([]byte, 512)
	b, err := f.Read(buffer)
	if err != nil && err != io.EOF {
		return storage.Attrs{}, err
	}

	return storage.Attrs{
		ContentType:  http.DetectContentType(buffer[:b]),
		StorageClass: "filesystem",
		Size:         fi.Size(),
	}, nil
}
