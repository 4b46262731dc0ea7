package uri

import (
	"context"
	"fmt"
	pathPkg "path"
	"regexp"
	"strings"

	"github.com/airbusgeo/dcquery/interface/storage"
	"github.com/airbusgeo/dcquery/interface/storage/filesystem"
	"github.com/airbusgeo/dcquery/interface/storage/gcs"
	"github.com/airbusgeo/dcquery/interface/storage/s3"
	"github.com/airbusgeo/dcquery/internal/utils"
)

var (
	BadUriErr = fmt.Errorf("badly formatted storage uri")
	uriRegex  = regexp.MustCompile("^(?P<Protocol>.+)://(?P<BucketName>.+?)(/(?P<Path>(?:.*/)*(?P<FileName>.*)))?$")
)

// IsRemote returns true if the uri targets an object storage (gs://, s3://)
func IsRemote(rawURI string) bool {
	u, err := ParseUri(rawURI)
	if err != nil {
		return false
	}
	switch strings.ToLower(u.Protocol()) {
	case "gs", "s3":
		return true
	}
	return false
}

// ParseUri parses a storage uri (e.g. gs://bucket-name/path/to/file)
func ParseUri(rawURI string) (DefaultUri, error) {
	if strings.HasPrefix(rawURI, "/") || !strings.Contains(rawURI, "://") {
		// local path
		return DefaultUri{
			path: rawURI,
		}, nil
	}
	matches, err := utils.FindRegexGroups(uriRegex, rawURI)
	if err != nil {
		return DefaultUri{}, BadUriErr
	}

	protocol, ok := matches["Protocol"]
	if !ok {
		return DefaultUri{}, fmt.Errorf("invalid protocol: %w", BadUriErr)
	}
	bucket, ok := matches["BucketName"]
	if !ok {
		return DefaultUri{}, fmt.Errorf("invalid bucket name: %w", BadUriErr)
	}
	path, ok := matches["Path"]
	if !ok {
		return DefaultUri{}, fmt.Errorf("invalid path: %w", BadUriErr)
	}
	fileName, ok := matches["FileName"]
	if !ok {
		return DefaultUri{}, fmt.Errorf("invalid filename: %w", BadUriErr)
	}

	if protocol == "file" {
		// use full path to directory as bucket name
		bucket = pathPkg.Join(bucket, pathPkg.Dir(path))
		path = fileName
	}
	return DefaultUri{
		protocol: protocol,
		bucket:   bucket,
		path:     path,
		fileName: fileName,
	}, nil
}

// DefaultUri is a parsed storage uri
type DefaultUri struct {
	protocol string
	bucket   string
	path     string
	fileName string
}

func (u DefaultUri) Protocol() string {
	return u.protocol
}

func (u DefaultUri) Bucket() string {
	return u.bucket
}

func (u DefaultUri) Path() string {
	return u.path
}

func (u DefaultUri) FileName() string {
	return u.fileName
}

func (u DefaultUri) String() string {
	if u.protocol == "" && u.bucket == "" {
		return u.path
	}
	return fmt.Sprintf("%s://%s/%s", u.protocol, u.bucket, u.path)
}

// NewStorageStrategy returns the strategy handling the protocol of the uri
func (u DefaultUri) NewStorageStrategy(ctx context.Context) (storage.Strategy, error) {
	return u.getStrategy(ctx)
}

func (u DefaultUri) getStrategy(ctx context.Context) (storage.Strategy, error) {
	switch strings.ToLower(u.protocol) {
	case "gs":
		return gcs.NewGsStrategy(ctx)
	case "file", "":
		return filesystem.NewFileSystemStrategy(ctx)
	case "s3":
		return s3.NewS3Strategy(ctx, s3.ConfigFromEnv())
	default:
		return nil, fmt.Errorf("failed to determine storage strategy")
	}
}

// Download returns the content of the object
func (u DefaultUri) Download(ctx context.Context) ([]byte, error) {
	strategy, err := u.getStrategy(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get storage strategy: %w", err)
	}

	return strategy.Download(ctx, u.String())
}
