package gcs

import (
	"fmt"
	"strings"
)

// Parse splits gs://bucket/path/to/object (or bucket/path/to/object, /bucket/path/to/object)
// into the bucket and the object name expected by the storage client
func Parse(uri string) (bucket, object string, err error) {
	trimmed, found := strings.CutPrefix(uri, "gs://")
	if !found {
		trimmed = strings.TrimPrefix(uri, "/")
	}
	bucket, object, _ = strings.Cut(trimmed, "/")
	if bucket == "" || object == "" {
		return "", "", fmt.Errorf("failed to parse URI : %s : missing bucket or object", uri)
	}
	return bucket, object, nil
}
