package mocks

import (
	"context"

	"github.com/airbusgeo/dcquery/interface/database"
	"github.com/airbusgeo/dcquery/internal/datacube"
	"github.com/stretchr/testify/mock"
)

// Index is a mock of database.Index
type Index struct {
	mock.Mock
}

func (_m *Index) CreateProduct(ctx context.Context, product *datacube.Product) error {
	ret := _m.Called(ctx, product)

	var r0 error
	if rf, ok := ret.Get(0).(func(context.Context, *datacube.Product) error); ok {
		r0 = rf(ctx, product)
	} else {
		r0 = ret.Error(0)
	}
	return r0
}

func (_m *Index) ReadProduct(ctx context.Context, name string) (*datacube.Product, error) {
	ret := _m.Called(ctx, name)

	var r0 *datacube.Product
	if rf, ok := ret.Get(0).(func(context.Context, string) *datacube.Product); ok {
		r0 = rf(ctx, name)
	} else if ret.Get(0) != nil {
		r0 = ret.Get(0).(*datacube.Product)
	}

	var r1 error
	if rf, ok := ret.Get(1).(func(context.Context, string) error); ok {
		r1 = rf(ctx, name)
	} else {
		r1 = ret.Error(1)
	}
	return r0, r1
}

func (_m *Index) ListProducts(ctx context.Context, namelike string) ([]*datacube.Product, error) {
	ret := _m.Called(ctx, namelike)

	var r0 []*datacube.Product
	if rf, ok := ret.Get(0).(func(context.Context, string) []*datacube.Product); ok {
		r0 = rf(ctx, namelike)
	} else if ret.Get(0) != nil {
		r0 = ret.Get(0).([]*datacube.Product)
	}

	var r1 error
	if rf, ok := ret.Get(1).(func(context.Context, string) error); ok {
		r1 = rf(ctx, namelike)
	} else {
		r1 = ret.Error(1)
	}
	return r0, r1
}

func (_m *Index) IndexDatasets(ctx context.Context, datasets []*datacube.Dataset) error {
	ret := _m.Called(ctx, datasets)

	var r0 error
	if rf, ok := ret.Get(0).(func(context.Context, []*datacube.Dataset) error); ok {
		r0 = rf(ctx, datasets)
	} else {
		r0 = ret.Error(0)
	}
	return r0
}

func (_m *Index) CountDatasets(ctx context.Context, filter database.DatasetFilter) (int, error) {
	ret := _m.Called(ctx, filter)

	var r0 int
	if rf, ok := ret.Get(0).(func(context.Context, database.DatasetFilter) int); ok {
		r0 = rf(ctx, filter)
	} else {
		r0 = ret.Int(0)
	}

	var r1 error
	if rf, ok := ret.Get(1).(func(context.Context, database.DatasetFilter) error); ok {
		r1 = rf(ctx, filter)
	} else {
		r1 = ret.Error(1)
	}
	return r0, r1
}

func (_m *Index) FindDatasets(ctx context.Context, filter database.DatasetFilter, limit int) ([]*datacube.Dataset, error) {
	ret := _m.Called(ctx, filter, limit)

	var r0 []*datacube.Dataset
	if rf, ok := ret.Get(0).(func(context.Context, database.DatasetFilter, int) []*datacube.Dataset); ok {
		r0 = rf(ctx, filter, limit)
	} else if ret.Get(0) != nil {
		r0 = ret.Get(0).([]*datacube.Dataset)
	}

	var r1 error
	if rf, ok := ret.Get(1).(func(context.Context, database.DatasetFilter, int) error); ok {
		r1 = rf(ctx, filter, limit)
	} else {
		r1 = ret.Error(1)
	}
	return r0, r1
}
