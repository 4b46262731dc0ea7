package query

import (
	"context"
	"fmt"
	"strings"

	"github.com/airbusgeo/dcquery/interface/storage/uri"
	"github.com/airbusgeo/dcquery/internal/datacube"
	"github.com/airbusgeo/dcquery/internal/image"
	"gopkg.in/yaml.v2"
)

// Settings are the general options of the exports
type Settings struct {
	// ConfigFile is the path to the index configuration (see IndexConfig)
	ConfigFile string `yaml:"config_file"`
	// MaxDatasets is the maximum number of datasets of a query (0: unlimited)
	MaxDatasets int `yaml:"max_datasets"`
	// GTiffOptions overrides image.GTiffDefaults
	GTiffOptions map[string]interface{} `yaml:"gtiff_options"`
	// GTiffOvrOptions overrides image.DefaultOverviewOptions (factors, resampling, internal_storage)
	GTiffOvrOptions     map[string]interface{} `yaml:"gtiff_ovr_options"`
	BuildOverviews      bool                   `yaml:"build_overviews"`
	CalculateStatistics bool                   `yaml:"calculate_statistics"`
	ApproxStatistics    bool                   `yaml:"approx_statistics"`
	// CloudOptimized rewrites each output as a COG (requires internal overviews)
	CloudOptimized bool `yaml:"cloud_optimized"`
	// MultiTemporal stacks the outputs of a product in a MUCOG (requires CloudOptimized)
	MultiTemporal bool `yaml:"multi_temporal"`
	// Workers is the number of timesteps loaded in parallel
	Workers    int                 `yaml:"workers"`
	Resampling datacube.Resampling `yaml:"resampling"`
	// StorageClass of the outputs uploaded to a remote output directory (e.g. NEARLINE, STANDARD_IA)
	StorageClass string `yaml:"storage_class"`
}

// DefaultSettings returns the settings used when no file is given
func DefaultSettings() Settings {
	return Settings{
		BuildOverviews:      true,
		CalculateStatistics: true,
		ApproxStatistics:    true,
		Workers:             1,
		Resampling:          datacube.ResamplingNEAR,
	}
}

// LoadSettings reads a yaml settings file (local path, gs:// or s3://) over the default settings
func LoadSettings(ctx context.Context, path string) (Settings, error) {
	s := DefaultSettings()
	if path == "" {
		return s, nil
	}
	b, err := readFile(ctx, path)
	if err != nil {
		return s, fmt.Errorf("LoadSettings: %w", err)
	}
	if err := yaml.UnmarshalStrict(b, &s); err != nil {
		return s, fmt.Errorf("LoadSettings[%s]: %w", path, err)
	}
	return s, s.Validate()
}

// ParseOptions reads a map of options written in json or yaml (e.g. {"compress": "deflate"})
func ParseOptions(s string) (map[string]interface{}, error) {
	options := map[string]interface{}{}
	if strings.TrimSpace(s) == "" {
		return options, nil
	}
	if err := yaml.Unmarshal([]byte(s), &options); err != nil {
		return nil, fmt.Errorf("ParseOptions[%s]: %w", s, err)
	}
	return options, nil
}

// Validate checks the consistency of the settings
func (s Settings) Validate() error {
	if s.MaxDatasets < 0 {
		return datacube.NewValidationError("max_datasets must be positive or zero (unlimited)")
	}
	if s.Workers < 1 {
		return datacube.NewValidationError("workers must be greater than zero")
	}
	if _, err := s.Profile(); err != nil {
		return datacube.NewValidationError("gtiff_options: %v", err)
	}
	ovr, err := s.OverviewOptions()
	if err != nil {
		return datacube.NewValidationError("gtiff_ovr_options: %v", err)
	}
	if s.CloudOptimized && !(s.BuildOverviews && ovr.InternalStorage) {
		return datacube.NewValidationError("cloud_optimized requires build_overviews with internal_storage")
	}
	if s.MultiTemporal && !s.CloudOptimized {
		return datacube.NewValidationError("multi_temporal requires cloud_optimized")
	}
	return nil
}

// Profile returns the GeoTIFF creation options overriding image.GTiffDefaults
func (s Settings) Profile() (image.Profile, error) {
	return image.NewProfile(s.GTiffOptions)
}

// OverviewOptions returns the overview options
func (s Settings) OverviewOptions() (image.OverviewOptions, error) {
	return image.DefaultOverviewOptions().Merge(s.GTiffOvrOptions)
}

// IndexConfig locates the index database
type IndexConfig struct {
	DbConnection string `yaml:"db_connection"`
	DbName       string `yaml:"db_database"`
	DbUser       string `yaml:"db_username"`
	DbHost       string `yaml:"db_hostname"`
	DbPassword   string `yaml:"db_password"`
	// DbSecretName is the name of the secret storing the credentials (gcp only)
	DbSecretName string `yaml:"db_secret_name"`
	// DbSecretVersion pins a version of the secret (latest if empty)
	DbSecretVersion string `yaml:"db_secret_version"`
	Project         string `yaml:"project"`
}

// LoadIndexConfig reads a yaml index configuration (local path, gs:// or s3://)
func LoadIndexConfig(ctx context.Context, path string) (IndexConfig, error) {
	var c IndexConfig
	b, err := readFile(ctx, path)
	if err != nil {
		return c, fmt.Errorf("LoadIndexConfig: %w", err)
	}
	if err := yaml.Unmarshal(b, &c); err != nil {
		return c, fmt.Errorf("LoadIndexConfig[%s]: %w", path, err)
	}
	return c, nil
}

// Merge returns c, its empty fields being set by other
func (c IndexConfig) Merge(other IndexConfig) IndexConfig {
	pick := func(a, b string) string {
		if a != "" {
			return a
		}
		return b
	}
	return IndexConfig{
		DbConnection:    pick(c.DbConnection, other.DbConnection),
		DbName:          pick(c.DbName, other.DbName),
		DbUser:          pick(c.DbUser, other.DbUser),
		DbHost:          pick(c.DbHost, other.DbHost),
		DbPassword:      pick(c.DbPassword, other.DbPassword),
		DbSecretName:    pick(c.DbSecretName, other.DbSecretName),
		DbSecretVersion: pick(c.DbSecretVersion, other.DbSecretVersion),
		Project:         pick(c.Project, other.Project),
	}
}

func readFile(ctx context.Context, path string) ([]byte, error) {
	u, err := uri.ParseUri(path)
	if err != nil {
		return nil, err
	}
	return u.Download(ctx)
}
