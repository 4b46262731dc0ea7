package query

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/airbusgeo/dcquery/internal/datacube"
	"github.com/airbusgeo/dcquery/internal/utils/proj"
)

// Parameters are the user inputs of an export
type Parameters struct {
	// Products maps a product to the measurements to export
	Products map[string][]string
	// DateRange is a pair of dates (YYYY-MM-DD), both set or both empty
	DateRange [2]string
	// Extent is [xmin, ymin, xmax, ymax] in ExtentCRS
	Extent [4]float64
	// ExtentCRS is optional (EPSG:4326 if empty)
	ExtentCRS string
	// OutputCRS is optional (native crs of the product if empty)
	OutputCRS string
	// OutputResolution is required with OutputCRS
	OutputResolution float64
	// GroupBy is the index of the option in datacube.GroupByOptions
	GroupBy         int
	OutputDirectory string
}

// ParseProducts reads the json value of a product selector: {"product": ["measurement", ...], ...}
func ParseProducts(s string) (map[string][]string, error) {
	products := map[string][]string{}
	if strings.TrimSpace(s) == "" {
		return products, nil
	}
	if err := json.Unmarshal([]byte(s), &products); err != nil {
		return nil, datacube.NewValidationError("invalid products %s: %v", s, err)
	}
	return products, nil
}

// ParseDateRange reads the json value of a date range: ["YYYY-MM-DD", "YYYY-MM-DD"], null or empty items being unset
func ParseDateRange(s string) ([2]string, error) {
	var dates []*string
	if strings.TrimSpace(s) == "" {
		return [2]string{}, nil
	}
	if err := json.Unmarshal([]byte(s), &dates); err != nil {
		return [2]string{}, datacube.NewValidationError("invalid date range %s: %v", s, err)
	}
	if len(dates) > 2 {
		return [2]string{}, datacube.NewValidationError("invalid date range %s: expecting two dates", s)
	}
	var res [2]string
	for i, d := range dates {
		if d != nil {
			res[i] = strings.TrimSpace(*d)
		}
	}
	return res, nil
}

// ProductNames returns the names of the products, sorted
func (p Parameters) ProductNames() []string {
	names := make([]string, 0, len(p.Products))
	for name := range p.Products {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// HasDateRange returns true if both dates are set
func (p Parameters) HasDateRange() bool {
	return p.DateRange[0] != "" && p.DateRange[1] != ""
}

// GroupByOption returns the grouping selected by the user
func (p Parameters) GroupByOption() (datacube.GroupByOption, error) {
	if p.GroupBy < 0 || p.GroupBy >= len(datacube.GroupByOptions) {
		return datacube.GroupByOption{}, datacube.NewValidationError("invalid group by option: %d", p.GroupBy)
	}
	return datacube.GroupByOptions[p.GroupBy], nil
}

// CheckParameterValues validates the parameters before any processing.
// Returns false and human-readable messages if the parameters are not valid.
func CheckParameterValues(p Parameters) (bool, []string) {
	var msgs []string

	if len(p.Products) == 0 {
		msgs = append(msgs, "Please select at least one product")
	}

	start, end := p.DateRange[0] != "", p.DateRange[1] != ""
	if start != end {
		msgs = append(msgs, "Please select two dates or none at all")
	}
	if start && end {
		d0, err0 := datacube.ParseDate(p.DateRange[0])
		d1, err1 := datacube.ParseDate(p.DateRange[1])
		switch {
		case err0 != nil || err1 != nil:
			msgs = append(msgs, "Please enter dates as YYYY-MM-DD")
		case d0.After(d1):
			msgs = append(msgs, "The start date must be earlier than the end date")
		}
	}

	if p.ExtentCRS == "" {
		if !proj.Within(p.Extent, proj.LonLatBounds) {
			msgs = append(msgs, "Please set a valid EPSG CRS for your project/layer")
		}
	} else if !proj.IsValid(p.ExtentCRS) {
		msgs = append(msgs, "Please set a valid EPSG CRS for your project/layer")
	}

	if p.OutputCRS != "" {
		if !proj.IsValid(p.OutputCRS) {
			msgs = append(msgs, `Please set a valid EPSG "Output CRS"`)
		} else if p.OutputResolution <= 0 {
			msgs = append(msgs, `Please specify "Output Resolution" when specifying "Output CRS"`)
		}
	}

	if _, err := p.GroupByOption(); err != nil {
		msgs = append(msgs, err.Error())
	}

	return len(msgs) == 0, msgs
}

// BuildQuery creates the query of a product.
// dateRange is optional (nil or both dates set), extentCRS defaults to EPSG:4326,
// outputCRS and outputRes are optional (0: native resolution).
func BuildQuery(product string, measurements []string, dateRange []string, extent [4]float64, extentCRS, outputCRS string,
	outputRes float64, chunks map[string]int, groupBy datacube.GroupBy, fuseFunc datacube.FuseFunc) (datacube.Query, error) {
	q := datacube.Query{
		Product:      product,
		Measurements: append([]string(nil), measurements...),
		X:            [2]float64{extent[0], extent[2]},
		Y:            [2]float64{extent[1], extent[3]},
		CRS:          extentCRS,
		OutputCRS:    outputCRS,
		GroupBy:      groupBy,
		FuseFunc:     fuseFunc,
		Chunks:       chunks,
	}
	if q.CRS == "" {
		q.CRS = "EPSG:4326"
	}
	if len(dateRange) == 2 && dateRange[0] != "" && dateRange[1] != "" {
		first, err := datacube.ParseDate(dateRange[0])
		if err != nil {
			return q, datacube.NewValidationError("invalid start date %s: %v", dateRange[0], err)
		}
		last, err := datacube.ParseDate(dateRange[1])
		if err != nil {
			return q, datacube.NewValidationError("invalid end date %s: %v", dateRange[1], err)
		}
		tr := datacube.NewTimeRangeFromDates(first, last)
		q.Time = &tr
	}
	if outputRes != 0 {
		q.Resolution = [2]float64{-outputRes, outputRes}
	}
	return q, nil
}

// Queries builds the query of each product of the parameters, sorted by product name
func (p Parameters) Queries() ([]datacube.Query, error) {
	opt, err := p.GroupByOption()
	if err != nil {
		return nil, err
	}
	var dateRange []string
	var chunks map[string]int
	if p.HasDateRange() {
		dateRange = p.DateRange[:]
		chunks = map[string]int{"time": 1}
	}
	var queries []datacube.Query
	for _, product := range p.ProductNames() {
		q, err := BuildQuery(product, p.Products[product], dateRange, p.Extent, p.ExtentCRS, p.OutputCRS, p.OutputResolution, chunks, opt.GroupBy, opt.FuseFunc)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", product, err)
		}
		queries = append(queries, q)
	}
	return queries, nil
}
