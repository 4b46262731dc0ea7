package mocks

import (
	"context"
	"io"

	"github.com/airbusgeo/dcquery/interface/storage"
	"github.com/stretchr/testify/mock"
)

// Strategy is a mock of storage.Strategy
type Strategy struct {
	mock.Mock
}

func (_m *Strategy) Download(ctx context.Context, uri string, options ...storage.Option) ([]byte, error) {
	ret := _m.Called(ctx, uri)

	var r0 []byte
	if ret.Get(0) != nil {
		r0 = ret.Get(0).([]byte)
	}
	return r0, ret.Error(1)
}

func (_m *Strategy) Upload(ctx context.Context, uri string, data []byte, options ...storage.Option) error {
	ret := _m.Called(ctx, uri, data)
	return ret.Error(0)
}

// UploadFile consumes and closes data and passes the resolved options to the mock.
// The mocked return is an error or a func(ctx, uri, content) error.
func (_m *Strategy) UploadFile(ctx context.Context, uri string, data io.ReadCloser, options ...storage.Option) error {
	ret := _m.Called(ctx, uri, storage.Apply(options...))
	var content []byte
	if data != nil {
		content, _ = io.ReadAll(data)
		data.Close()
	}
	if rf, ok := ret.Get(0).(func(context.Context, string, []byte) error); ok {
		return rf(ctx, uri, content)
	}
	return ret.Error(0)
}

// Delete passes the resolved options to the mock
func (_m *Strategy) Delete(ctx context.Context, uri string, options ...storage.Option) error {
	ret := _m.Called(ctx, uri, storage.Apply(options...))
	return ret.Error(0)
}

func (_m *Strategy) Exist(ctx context.Context, uri string) (bool, error) {
	ret := _m.Called(ctx, uri)
	return ret.Bool(0), ret.Error(1)
}

// GetAttrs returns the mocked attributes or calls the mocked func(ctx, uri) (storage.Attrs, error)
func (_m *Strategy) GetAttrs(ctx context.Context, uri string) (storage.Attrs, error) {
	ret := _m.Called(ctx, uri)
	if rf, ok := ret.Get(0).(func(context.Context, string) (storage.Attrs, error)); ok {
		return rf(ctx, uri)
	}

	var r0 storage.Attrs
	if ret.Get(0) != nil {
		r0 = ret.Get(0).(storage.Attrs)
	}
	return r0, ret.Error(1)
}
