package datacube_test

import (
	"encoding/json"

	"github.com/airbusgeo/dcquery/internal/datacube"
	"github.com/airbusgeo/godal"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("DType", func() {
	Describe("Upcast", func() {
		It("should keep the same kind with the next size", func() {
			for from, to := range map[datacube.DType]datacube.DType{
				datacube.DTypeINT8:    datacube.DTypeINT16,
				datacube.DTypeINT16:   datacube.DTypeINT32,
				datacube.DTypeUINT8:   datacube.DTypeUINT16,
				datacube.DTypeUINT16:  datacube.DTypeUINT32,
				datacube.DTypeFLOAT32: datacube.DTypeFLOAT64,
			} {
				dtype, err := from.Upcast()
				Expect(err).To(BeNil())
				Expect(dtype).To(Equal(to))
				Expect(dtype.Size()).To(Equal(2 * from.Size()))
			}
		})

		It("should fail on the largest types", func() {
			_, err := datacube.DTypeFLOAT64.Upcast()
			Expect(err).NotTo(BeNil())
		})
	})

	Describe("GTiff compatibility", func() {
		It("should reject int8", func() {
			Expect(datacube.DTypeINT8.IsValidForGTiff()).To(BeFalse())
			Expect(datacube.DTypeINT16.IsValidForGTiff()).To(BeTrue())
		})
	})

	Describe("Conversions", func() {
		It("should convert from and to gdal", func() {
			Expect(datacube.DTypeFromGDAL(datacube.DTypeUINT16.ToGDAL())).To(Equal(datacube.DTypeUINT16))
			Expect(datacube.DTypeFromGDAL(godal.Float32)).To(Equal(datacube.DTypeFLOAT32))
		})

		It("should convert from and to strings", func() {
			Expect(datacube.DTypeFromString("Byte")).To(Equal(datacube.DTypeUINT8))
			Expect(datacube.DTypeFromString(datacube.DTypeINT32.String())).To(Equal(datacube.DTypeINT32))
			Expect(datacube.DTypeFromString("bool")).To(Equal(datacube.DTypeUNDEFINED))
		})

		It("should be stored as a string", func() {
			v, err := datacube.DTypeFLOAT32.Value()
			Expect(err).To(BeNil())
			Expect(v).To(Equal("float32"))
			var d datacube.DType
			Expect(d.Scan([]byte("uint16"))).To(Succeed())
			Expect(d).To(Equal(datacube.DTypeUINT16))
			Expect(d.Scan(nil)).To(Succeed())
			Expect(d).To(Equal(datacube.DTypeUINT16))
			Expect(d.Scan("bool")).NotTo(Succeed())
		})

		It("should be encoded in json by name", func() {
			b, err := json.Marshal(datacube.Measurement{Name: "red", DType: datacube.DTypeINT16})
			Expect(err).To(BeNil())
			Expect(string(b)).To(ContainSubstring(`"DType":"int16"`))
			var m datacube.Measurement
			Expect(json.Unmarshal(b, &m)).To(Succeed())
			Expect(m.DType).To(Equal(datacube.DTypeINT16))
		})
	})
})

var _ = Describe("Resampling", func() {
	It("should parse names", func() {
		for name, expected := range map[string]datacube.Resampling{
			"nearest":      datacube.ResamplingNEAR,
			"NEAR":         datacube.ResamplingNEAR,
			"average":      datacube.ResamplingAVERAGE,
			"cubic_spline": datacube.ResamplingCUBICSPLINE,
			"gauss":        datacube.ResamplingGAUSS,
			"median":       datacube.ResamplingMED,
		} {
			r, err := datacube.ParseResampling(name)
			Expect(err).To(BeNil())
			Expect(r).To(Equal(expected))
		}
	})

	It("should return a validation error for unknown names", func() {
		_, err := datacube.ParseResampling("sharpen")
		Expect(datacube.IsError(err, datacube.ValidationError)).To(BeTrue())
	})

	It("should use gdal utilities names", func() {
		Expect(datacube.ResamplingNEAR.GDALName()).To(Equal("near"))
		Expect(datacube.ResamplingBILINEAR.GDALName()).To(Equal("bilinear"))
	})
})
