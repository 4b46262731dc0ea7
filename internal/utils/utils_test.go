package utils_test

import (
	"context"
	"fmt"
	"regexp"

	"github.com/airbusgeo/dcquery/internal/utils"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
	"google.golang.org/api/googleapi"
)

var _ = Describe("Temporary error", func() {
	var err error

	var (
		itShouldReturnATemporaryError = func() {
			It("it should return a temporary error", func() {
				Expect(utils.Temporary(err)).To(BeTrue())
			})
		}
		itShouldReturnAPermanentError = func() {
			It("it should return a permanent error", func() {
				Expect(utils.Temporary(err)).To(BeFalse())
			})
		}
	)

	Describe("Wrapped temporary", func() {
		JustBeforeEach(func() {
			err = fmt.Errorf("temporary err: %w", utils.MakeTemporary(fmt.Errorf("Temporary")))
		})
		itShouldReturnATemporaryError()
	})

	Describe("Formatted temporary", func() {
		JustBeforeEach(func() {
			err = fmt.Errorf("permanent err: %v", utils.MakeTemporary(fmt.Errorf("Temporary")))
		})
		itShouldReturnAPermanentError()
	})

	Describe("Google API error", func() {
		Context("when code is 503", func() {
			JustBeforeEach(func() {
				err = fmt.Errorf("upload: %w", &googleapi.Error{Code: 503})
			})
			itShouldReturnATemporaryError()
		})
		Context("when code is 404", func() {
			JustBeforeEach(func() {
				err = fmt.Errorf("upload: %w", &googleapi.Error{Code: 404})
			})
			itShouldReturnAPermanentError()
		})
	})

	Describe("Context", func() {
		JustBeforeEach(func() {
			err = fmt.Errorf("load: %w", context.DeadlineExceeded)
		})
		itShouldReturnATemporaryError()
	})

	Describe("nil", func() {
		JustBeforeEach(func() {
			err = nil
		})
		itShouldReturnAPermanentError()
	})
})

var _ = Describe("Merge error", func() {
	var err error

	var tmpErr = utils.MakeTemporary(fmt.Errorf("Temporary"))
	var fatalErr = fmt.Errorf("Fatal")

	var (
		itShouldReturnNil = func() {
			It("it should return nil", func() {
				Expect(err).To(BeNil())
			})
		}
		itShouldReturnATemporaryError = func() {
			It("it should return a temporary error", func() {
				Expect(utils.Temporary(err)).To(BeTrue())
			})
		}
		itShouldReturnAPermanentError = func() {
			It("it should return a permanent error", func() {
				Expect(err).NotTo(BeNil())
				Expect(utils.Temporary(err)).To(BeFalse())
			})
		}
	)

	Describe("nil then err", func() {
		JustBeforeEach(func() {
			err = utils.MergeErrors(false, nil, fatalErr)
		})
		It("it should return the error", func() {
			Expect(err).To(Equal(fatalErr))
		})
	})

	Describe("Temporary then fatal, priority to temporary", func() {
		JustBeforeEach(func() {
			err = utils.MergeErrors(false, tmpErr, fatalErr)
		})
		itShouldReturnATemporaryError()
	})

	Describe("Temporary then fatal then nil, priority to temporary", func() {
		JustBeforeEach(func() {
			err = utils.MergeErrors(false, tmpErr, fatalErr, nil)
		})
		itShouldReturnNil()
	})

	Describe("Temporary then fatal then nil, priority to fatal", func() {
		JustBeforeEach(func() {
			err = utils.MergeErrors(true, tmpErr, fatalErr, nil)
		})
		itShouldReturnAPermanentError()
	})

	Describe("Fatal then temporary, priority to temporary", func() {
		JustBeforeEach(func() {
			err = utils.MergeErrors(false, fatalErr, tmpErr)
		})
		itShouldReturnATemporaryError()
	})
})

var _ = Describe("ErrWaitGroup", func() {
	It("should collect every error", func() {
		var g utils.ErrWaitGroup
		for i := 0; i < 5; i++ {
			i := i
			g.Go(func() error {
				if i%2 == 0 {
					return fmt.Errorf("task %d", i)
				}
				return nil
			})
		}
		Expect(g.Wait()).To(HaveLen(3))
	})
})

var _ = Describe("Helpers", func() {
	It("should format floats with full precision", func() {
		Expect(utils.F64ToS(0.1)).To(Equal("0.1"))
		Expect(utils.F64ToS(-25)).To(Equal("-25"))
	})

	It("should clamp", func() {
		Expect(utils.ClampF(12, 0, 10)).To(Equal(10.0))
		Expect(utils.ClampF(-1, 0, 10)).To(Equal(0.0))
		Expect(utils.ClampF(5, 0, 10)).To(Equal(5.0))
	})

	It("should find named groups", func() {
		groups, err := utils.FindRegexGroups(regexp.MustCompile(`^(?P<protocol>\w+)://(?P<bucket>[^/]+)`), "gs://bucket/key")
		Expect(err).To(BeNil())
		Expect(groups).To(Equal(map[string]string{"protocol": "gs", "bucket": "bucket"}))
		_, err = utils.FindRegexGroups(regexp.MustCompile(`^s3://`), "gs://bucket")
		Expect(err).NotTo(BeNil())
	})

	It("should deduplicate string sets", func() {
		set := utils.NewStringSet("red", "blue", "red")
		Expect(set).To(HaveLen(2))
		Expect(set.Exists("blue")).To(BeTrue())
		Expect(set.Exists("nir")).To(BeFalse())
	})
})
