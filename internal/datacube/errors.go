package datacube

import (
	"errors"
	"fmt"
)

type ErrorCode int

const (
	ValidationError ErrorCode = iota
	EntityNotFound
	EntityAlreadyExists
	NoData
	TooManyDatasets
	IndexUnavailable
	ShouldNeverHappen
)

// Access details
const (
	DetailNotFoundEntity = 0
	DetailNotFoundKeyID  = 1
	DetailNotFoundID     = 2
)

func (c ErrorCode) String() string {
	switch c {
	case ValidationError:
		return "ValidationError"
	case EntityNotFound:
		return "EntityNotFound"
	case EntityAlreadyExists:
		return "EntityAlreadyExists"
	case NoData:
		return "NoDataError"
	case TooManyDatasets:
		return "TooManyDatasetsError"
	case IndexUnavailable:
		return "IndexUnavailable"
	case ShouldNeverHappen:
		return "ShouldNeverHappen"
	}
	return fmt.Sprintf("ErrorCode(%d)", int(c))
}

type DatacubeError struct {
	code    ErrorCode
	desc    string
	details []string
}

// NewValidationError creates a new validation error
func NewValidationError(desc string, a ...interface{}) error {
	return DatacubeError{code: ValidationError, desc: fmt.Sprintf(desc, a...)}
}

// NewEntityNotFound creates a new error stating that an entity has not been found
func NewEntityNotFound(entity, keyID, id, desc string, a ...interface{}) error {
	switch {
	case desc == "":
		desc = formatEntityWith(entity, keyID, id)
	case len(a) > 0:
		desc = fmt.Sprintf(desc, a...)
	}
	return DatacubeError{code: EntityNotFound, desc: desc, details: []string{entity, keyID, id}}
}

// NewEntityAlreadyExists creates a new error stating that an entity already exists
func NewEntityAlreadyExists(entity, keyID, id string) error {
	return DatacubeError{code: EntityAlreadyExists, desc: formatEntityWith(entity, keyID, id), details: []string{entity, keyID, id}}
}

// NewNoData creates an error stating that a query does not match any dataset
func NewNoData(desc string, a ...interface{}) error {
	return DatacubeError{code: NoData, desc: fmt.Sprintf(desc, a...)}
}

// NewTooManyDatasets creates an error stating that a query matches more datasets than allowed
func NewTooManyDatasets(count, limit int) error {
	return DatacubeError{code: TooManyDatasets, desc: fmt.Sprintf("Too many datasets found: %d > %d", count, limit)}
}

// NewIndexUnavailable creates an error stating that the dataset index cannot be reached
func NewIndexUnavailable(cause error) error {
	return DatacubeError{code: IndexUnavailable, desc: fmt.Sprintf("Unable to connect to a running Data Cube instance: %v", cause)}
}

// NewShouldNeverHappen creates a new error that should never happen...
func NewShouldNeverHappen(desc string, a ...interface{}) error {
	return DatacubeError{code: ShouldNeverHappen, desc: fmt.Sprintf(desc, a...)}
}

// Error implements error
func (e DatacubeError) Error() string {
	return e.code.String() + ": " + e.desc
}

// Desc returns a description of the error
func (e DatacubeError) Desc() string {
	return e.desc
}

// Code returns the code of the error
func (e DatacubeError) Code() ErrorCode {
	return e.code
}

// Detail returns a detail of the error (see const above)
func (e DatacubeError) Detail(i int) string {
	if i >= len(e.details) {
		return ""
	}
	return e.details[i]
}

// IsError tests whether error is a DatacubeError
func IsError(err error, code ErrorCode) bool {
	var dcerr DatacubeError
	return errors.As(err, &dcerr) && dcerr.Code() == code
}

// AsError tests whether error is a DatacubeError and returns it
func AsError(err error, code ErrorCode) (DatacubeError, bool) {
	var dcerr DatacubeError
	return dcerr, errors.As(err, &dcerr) && dcerr.Code() == code
}

func formatEntityWith(entity, keyID, id string) string {
	if entity != "" && id != "" {
		return entity + " with " + keyID + ": " + id
	}
	return ""
}
