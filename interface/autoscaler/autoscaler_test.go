package autoscaler_test

import (
	"context"
	"fmt"

	"github.com/airbusgeo/dcquery/interface/autoscaler"
	mocksMessaging "github.com/airbusgeo/dcquery/interface/messaging/mocks"
	"github.com/stretchr/testify/mock"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

type mockWorkers struct {
	mock.Mock
}

func (m *mockWorkers) Size(ctx context.Context) (int64, error) {
	ret := m.Called(ctx)
	return ret.Get(0).(int64), ret.Error(1)
}

func (m *mockWorkers) Resize(ctx context.Context, newSize int64) error {
	return m.Called(ctx, newSize).Error(0)
}

func (m *mockWorkers) ScaleDown(ctx context.Context, newSize int64) error {
	return m.Called(ctx, newSize).Error(0)
}

var _ = Describe("NeededSize", func() {
	var (
		cfg       autoscaler.Config
		backlog   int64
		instances int64
		needed    int64
	)

	BeforeEach(func() {
		cfg = autoscaler.Config{Ratio: 2, MaxStep: 5, MaxInstances: 10}
	})

	JustBeforeEach(func() {
		needed = cfg.NeededSize(backlog, instances)
	})

	var itShouldNeed = func(n *int64) {
		It("should return the needed size", func() {
			Expect(needed).To(Equal(*n))
		})
	}

	Context("empty backlog", func() {
		var expected int64
		BeforeEach(func() {
			backlog, instances, expected = 0, 3, 0
		})
		itShouldNeed(&expected)

		Context("with min instances", func() {
			BeforeEach(func() {
				cfg.MinInstances = 1
				expected = 1
			})
			itShouldNeed(&expected)
		})
	})

	Context("no instance", func() {
		var expected int64
		BeforeEach(func() {
			backlog, instances, expected = 5, 0, 3
		})
		itShouldNeed(&expected)
	})

	Context("ratio exceeded", func() {
		var expected int64
		BeforeEach(func() {
			backlog, instances, expected = 12, 2, 6
		})
		itShouldNeed(&expected)

		Context("more than max step", func() {
			BeforeEach(func() {
				backlog, instances, expected = 16, 1, 6
			})
			itShouldNeed(&expected)
		})

		Context("more than max instances", func() {
			BeforeEach(func() {
				backlog, instances, expected = 40, 8, 10
			})
			itShouldNeed(&expected)
		})
	})

	Context("ratio within bounds", func() {
		var expected int64
		BeforeEach(func() {
			backlog, instances, expected = 3, 2, 2
		})
		itShouldNeed(&expected)
	})

	Context("less jobs than instances", func() {
		var expected int64
		BeforeEach(func() {
			backlog, instances, expected = 2, 4, 2
		})
		itShouldNeed(&expected)
	})

	Context("under min ratio", func() {
		var expected int64
		BeforeEach(func() {
			cfg.MinRatio = 1.5
			backlog, instances, expected = 6, 5, 4
		})
		itShouldNeed(&expected)
	})

	Context("instances started outside of the autoscaler", func() {
		var expected int64
		BeforeEach(func() {
			backlog, instances, expected = 30, 12, 12
		})
		itShouldNeed(&expected)
	})
})

var _ = Describe("Autoscale", func() {
	var (
		ctx = context.Background()

		mockQueue   *mocksMessaging.Consumer
		workers     *mockWorkers
		as          *autoscaler.Autoscaler
		backlog     int64
		backlogErr  error
		instances   int64
		returnedOp  autoscaler.Operation
		returnedErr error
	)

	BeforeEach(func() {
		var err error
		mockQueue = new(mocksMessaging.Consumer)
		workers = new(mockWorkers)
		as, err = autoscaler.New(mockQueue, workers, autoscaler.Config{Ratio: 2, MaxStep: 5, MaxInstances: 10}, nil)
		Expect(err).To(BeNil())
		backlogErr = nil
	})

	JustBeforeEach(func() {
		mockQueue.On("Backlog", mock.Anything).Return(backlog, backlogErr)
		workers.On("Size", mock.Anything).Return(instances, nil)
		workers.On("Resize", mock.Anything, mock.Anything).Return(nil)
		workers.On("ScaleDown", mock.Anything, mock.Anything).Return(nil)
		returnedOp, returnedErr = as.Autoscale(ctx)
	})

	Context("scale up", func() {
		BeforeEach(func() {
			backlog, instances = 8, 1
		})
		It("should resize the workers", func() {
			Expect(returnedErr).To(BeNil())
			Expect(returnedOp).To(Equal(autoscaler.Operation{Backlog: 8, Instances: 1, Delta: 3}))
			workers.AssertCalled(GinkgoT(), "Resize", mock.Anything, int64(4))
			workers.AssertNotCalled(GinkgoT(), "ScaleDown", mock.Anything, mock.Anything)
		})
	})

	Context("scale down", func() {
		BeforeEach(func() {
			backlog, instances = 2, 4
		})
		It("should remove the idle workers", func() {
			Expect(returnedErr).To(BeNil())
			Expect(returnedOp.Delta).To(Equal(int64(-2)))
			workers.AssertCalled(GinkgoT(), "ScaleDown", mock.Anything, int64(2))
			workers.AssertNotCalled(GinkgoT(), "Resize", mock.Anything, mock.Anything)
		})
	})

	Context("empty backlog", func() {
		BeforeEach(func() {
			backlog, instances = 0, 4
		})
		It("should stop all the workers", func() {
			Expect(returnedErr).To(BeNil())
			workers.AssertCalled(GinkgoT(), "Resize", mock.Anything, int64(0))
		})
	})

	Context("steady", func() {
		BeforeEach(func() {
			backlog, instances = 3, 2
		})
		It("should not resize", func() {
			Expect(returnedErr).To(BeNil())
			Expect(returnedOp.Delta).To(Equal(int64(0)))
			workers.AssertNotCalled(GinkgoT(), "Resize", mock.Anything, mock.Anything)
			workers.AssertNotCalled(GinkgoT(), "ScaleDown", mock.Anything, mock.Anything)
		})
	})

	Context("backlog unavailable", func() {
		BeforeEach(func() {
			backlog, instances = -1, 2
			backlogErr = fmt.Errorf("queue unreachable")
		})
		It("should return an error", func() {
			Expect(returnedErr).NotTo(BeNil())
			workers.AssertNotCalled(GinkgoT(), "Resize", mock.Anything, mock.Anything)
		})
	})
})

var _ = Describe("Config", func() {
	It("should reject a ratio lower than 1", func() {
		Expect(autoscaler.Config{Ratio: 0.5, MaxStep: 1, MaxInstances: 1}.Validate()).NotTo(BeNil())
	})
	It("should reject max instances lower than min instances", func() {
		Expect(autoscaler.Config{Ratio: 1, MaxStep: 1, MaxInstances: 1, MinInstances: 2}.Validate()).NotTo(BeNil())
	})
	It("should accept a valid config", func() {
		Expect(autoscaler.Config{Ratio: 10, MaxStep: 3, MaxInstances: 15}.Validate()).To(BeNil())
	})
})
