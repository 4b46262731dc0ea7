package pg

import (
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/airbusgeo/dcquery/internal/utils"
	"github.com/lib/pq"
)

/* http://www.postgresql.org/docs/9.3/static/errcodes-appendix.html */
const (
	noError             = "00000"
	connectionException = "08000"
	connectionFailure   = "08006"
	adminShutdown       = "57P01"
	cannotConnectNow    = "57P03"
	tooManyConnections  = "53300"
	foreignKeyViolation = "23503"
	uniqueViolation     = "23505"
	noData              = "02000"

	notPqError = "X"
)

var detailKeyValue = regexp.MustCompile(`\((.*)\)=\((.*)\)`)

func extractKeyValueFromDetail(err error) (string, string) {
	var pqerr *pq.Error
	if errors.As(err, &pqerr) {
		if value := detailKeyValue.FindStringSubmatch(pqerr.Detail); len(value) == 3 {
			return value[1], value[2]
		}
	}
	return "", ""
}

func pqErrorCode(err error) pq.ErrorCode {
	if err == nil {
		return noError
	}
	var pqerr *pq.Error
	if errors.As(err, &pqerr) {
		return pqerr.Code
	}
	if errors.Is(err, sql.ErrNoRows) {
		return noData
	}
	return notPqError
}

// pqErrorFormat wraps err with format (fmt.Errorf), appending the pq code and marking connection errors as temporary
// Returns nil if err is nil
func pqErrorFormat(format string, err error) error {
	if err == nil {
		return nil
	}
	ferr := fmt.Errorf(format, err)
	switch code := pqErrorCode(err); code {
	case connectionException, connectionFailure, adminShutdown, cannotConnectNow, tooManyConnections:
		return utils.MakeTemporary(ferr)
	case notPqError:
	default:
		ferr = fmt.Errorf("%w [%s]", ferr, code)
	}
	if errors.Is(err, sql.ErrConnDone) {
		return utils.MakeTemporary(ferr)
	}
	for _, s := range []string{"connection refused", "connection reset", "broken pipe", "i/o timeout"} {
		if strings.Contains(err.Error(), s) {
			return utils.MakeTemporary(ferr)
		}
	}
	return ferr
}
