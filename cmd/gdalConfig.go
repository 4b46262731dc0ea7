package cmd

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/airbusgeo/godal"
	"github.com/airbusgeo/osio"
	osioGcs "github.com/airbusgeo/osio/gcs"
	osioS3 "github.com/airbusgeo/osio/s3"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	aws3 "github.com/aws/aws-sdk-go-v2/service/s3"
)

// GDALConfig configures the GDAL drivers and the remote file systems used to read the datasets
type GDALConfig struct {
	BlockSize       string
	NumCachedBlocks int
	WithGCS         bool
	WithS3          bool
	AwsRegion       string
	AwsEndpoint     string
	AwsCredentials  string
}

// GDALConfigFlags registers the GDAL flags in the default flag set
func GDALConfigFlags() *GDALConfig {
	return GDALConfigFlagSet(flag.CommandLine)
}

// GDALConfigFlagSet registers the GDAL flags in fs
func GDALConfigFlagSet(fs *flag.FlagSet) *GDALConfig {
	gdalConfig := GDALConfig{}
	fs.StringVar(&gdalConfig.BlockSize, "gdalBlockSize", "1Mb", "gdal blocksize value (default 1Mb)")
	fs.IntVar(&gdalConfig.NumCachedBlocks, "gdalNumCachedBlocks", 500, "gdal blockcache value (default 500)")
	fs.BoolVar(&gdalConfig.WithGCS, "with-gcs", false, "configure GDAL to read gs:// datasets (may need authentication)")
	fs.BoolVar(&gdalConfig.WithS3, "with-s3", false, "configure GDAL to read s3:// datasets (may need authentication)")
	fs.StringVar(&gdalConfig.AwsRegion, "aws-region", os.Getenv("AWS_REGION"), "aws region (--with-s3)")
	fs.StringVar(&gdalConfig.AwsEndpoint, "aws-endpoint", os.Getenv("AWS_ENDPOINT_URL"), "aws endpoint (--with-s3)")
	fs.StringVar(&gdalConfig.AwsCredentials, "aws-shared-credentials-file", os.Getenv("AWS_SHARED_CREDENTIALS_FILE"), "aws shared credentials file (--with-s3)")
	return &gdalConfig
}

// InitGDAL registers the GDAL drivers and the gs:// and s3:// handlers
func InitGDAL(ctx context.Context, gdalConfig *GDALConfig) error {
	os.Setenv("GDAL_DISABLE_READDIR_ON_OPEN", "EMPTY_DIR")
	godal.RegisterAll()

	if gdalConfig.WithGCS {
		gcsHandle, err := osioGcs.Handle(ctx)
		if err != nil {
			return fmt.Errorf("InitGDAL.gcs: %w", err)
		}
		if err := registerHandler("gs://", gcsHandle, gdalConfig); err != nil {
			return err
		}
	}

	if gdalConfig.WithS3 {
		var opts []func(*awsConfig.LoadOptions) error
		if gdalConfig.AwsRegion != "" {
			opts = append(opts, awsConfig.WithRegion(gdalConfig.AwsRegion))
		}
		if gdalConfig.AwsCredentials != "" {
			opts = append(opts, awsConfig.WithSharedCredentialsFiles([]string{gdalConfig.AwsCredentials}))
		}
		config, err := awsConfig.LoadDefaultConfig(ctx, opts...)
		if err != nil {
			return fmt.Errorf("InitGDAL.s3: %w", err)
		}
		s3Client := aws3.NewFromConfig(config, func(o *aws3.Options) {
			if gdalConfig.AwsEndpoint != "" {
				o.BaseEndpoint = &gdalConfig.AwsEndpoint
				o.UsePathStyle = true
			}
		})
		s3Handle, err := osioS3.Handle(ctx, osioS3.S3Client(s3Client))
		if err != nil {
			return fmt.Errorf("InitGDAL.s3: %w", err)
		}
		if err := registerHandler("s3://", s3Handle, gdalConfig); err != nil {
			return err
		}
	}
	return nil
}

func registerHandler(prefix string, handle osio.KeyStreamerAt, gdalConfig *GDALConfig) error {
	adapter, err := osio.NewAdapter(handle,
		osio.BlockSize(gdalConfig.BlockSize),
		osio.NumCachedBlocks(gdalConfig.NumCachedBlocks))
	if err != nil {
		return fmt.Errorf("InitGDAL.NewAdapter: %w", err)
	}
	if err := godal.RegisterVSIHandler(prefix, adapter); err != nil {
		return fmt.Errorf("InitGDAL.RegisterVSIHandler(%s): %w", prefix, err)
	}
	return nil
}
