package mocks

import (
	"context"

	"github.com/airbusgeo/dcquery/interface/messaging"
	"github.com/stretchr/testify/mock"
)

type Publisher struct {
	mock.Mock
}

func (_m *Publisher) Publish(ctx context.Context, data ...[]byte) error {
	ret := _m.Called(ctx, data)
	var r0 error
	if rf, ok := ret.Get(0).(func(context.Context, [][]byte) error); ok {
		r0 = rf(ctx, data)
	} else {
		r0 = ret.Error(0)
	}
	return r0
}

type Consumer struct {
	mock.Mock
}

func (_m *Consumer) Pull(ctx context.Context, cb messaging.Callback) error {
	ret := _m.Called(ctx, cb)
	var r0 error
	if rf, ok := ret.Get(0).(func(context.Context, messaging.Callback) error); ok {
		r0 = rf(ctx, cb)
	} else {
		r0 = ret.Error(0)
	}
	return r0
}

func (_m *Consumer) Backlog(ctx context.Context) (int64, error) {
	ret := _m.Called(ctx)
	var r0 int64
	if rf, ok := ret.Get(0).(func(context.Context) int64); ok {
		r0 = rf(ctx)
	} else {
		r0 = ret.Get(0).(int64)
	}
	return r0, ret.Error(1)
}
