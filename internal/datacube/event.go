package datacube

import (
	"bytes"
	"encoding/gob"
	"io"
)

//go:generate enumer -json -type ExportStatus -trimprefix Export -transform upper

// ExportStatus is the status of an export job
type ExportStatus int32

const (
	ExportRunning ExportStatus = iota
	ExportDone
	ExportFailed
	ExportCancelled
)

// ExportEvent is published while an export job is running and when it is finished
type ExportEvent struct {
	JobID    string
	Status   ExportStatus
	Progress float64
	Message  string
	// Outputs maps the written files to their layer name
	Outputs map[string]string
	Errors  []string
}

// MarshalEvent returns bytes representation of an export event
func MarshalEvent(evt ExportEvent) ([]byte, error) {
	var data bytes.Buffer
	if err := gob.NewEncoder(&data).Encode(&evt); err != nil {
		return nil, err
	}
	return data.Bytes(), nil
}

// UnmarshalEvent returns the event stored in the Reader
func UnmarshalEvent(r io.Reader) (*ExportEvent, error) {
	var evt ExportEvent
	if err := gob.NewDecoder(r).Decode(&evt); err != nil {
		return nil, err
	}
	return &evt, nil
}
