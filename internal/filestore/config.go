package filestore

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"go.yaml.in/yaml/v3"

	"github.com/koustreak/fileport/internal/errs"
)

// ProviderKind identifies the storage backend.
type ProviderKind string

const (
	ProviderS3     ProviderKind = "s3"
	ProviderAzure  ProviderKind = "azure"
	ProviderB2     ProviderKind = "b2"
	ProviderMinIO  ProviderKind = "minio"
	ProviderMemory ProviderKind = "memory"
)

// Config selects a backend and carries the settings for each one.
// Only the section matching Provider is read.
type Config struct {
	// Provider is the storage backend (e.g. ProviderS3).
	Provider ProviderKind `yaml:"provider"`

	// MaxDownloadBytes caps DownloadFile. 0 means DefaultMaxDownloadBytes.
	MaxDownloadBytes int64 `yaml:"max_download_bytes"`

	S3    S3Config    `yaml:"s3"`
	Azure AzureConfig `yaml:"azure"`
	B2    B2Config    `yaml:"b2"`
	MinIO MinIOConfig `yaml:"minio"`
}

// S3Config holds optional overrides for the S3 backend. Credentials are
// never configured here; they come from the AWS default chain
// (environment, shared config files, instance or task role).
type S3Config struct {
	Region       string `yaml:"region"`
	Endpoint     string `yaml:"endpoint"`
	UsePathStyle bool   `yaml:"use_path_style"`
}

// AzureConfig holds the Azure Blob Storage connection string.
// Signed URLs need a connection string that carries an AccountKey.
type AzureConfig struct {
	ConnectionString string `yaml:"connection_string"`
}

// B2Config holds the Backblaze B2 application key pair.
type B2Config struct {
	KeyID string `yaml:"key_id"`
	Key   string `yaml:"key"`

	// AuthorizeURL overrides the b2_authorize_account endpoint.
	AuthorizeURL string `yaml:"authorize_url"`
}

// MinIOConfig holds the settings for a MinIO or other S3-compatible server.
type MinIOConfig struct {
	// Endpoint is the host:port of the server, e.g. "localhost:9000".
	Endpoint string `yaml:"endpoint"`

	// AccessKey and SecretKey are static credentials. When both are empty
	// the environment / IAM credential chain is used.
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`

	UseSSL bool   `yaml:"use_ssl"`
	Region string `yaml:"region"`
}

// DefaultConfig returns a config for the in-memory backend.
func DefaultConfig() *Config {
	return &Config{
		Provider:         ProviderMemory,
		MaxDownloadBytes: DefaultMaxDownloadBytes,
		MinIO: MinIOConfig{
			Endpoint: "localhost:9000",
			Region:   "us-east-1",
		},
	}
}

// LoadFile reads a YAML config file on top of DefaultConfig and validates it.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindInvalidInput, "failed to read config file", err)
	}
	return Parse(data)
}

// Parse decodes YAML on top of DefaultConfig and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errs.Wrap(errs.ErrKindInvalidInput, "failed to parse config", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadEnv builds a config from FILEPORT_* environment variables, first
// loading the given .env files (".env" when none are named). Missing .env
// files are ignored.
func LoadEnv(files ...string) (*Config, error) {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, errs.Wrap(errs.ErrKindInvalidInput, "failed to load .env file", err)
	}

	cfg := DefaultConfig()
	cfg.Provider = ProviderKind(getEnv("FILEPORT_PROVIDER", string(cfg.Provider)))

	var err error
	if cfg.MaxDownloadBytes, err = getEnvInt("FILEPORT_MAX_DOWNLOAD_BYTES", cfg.MaxDownloadBytes); err != nil {
		return nil, err
	}

	cfg.S3.Region = getEnv("FILEPORT_S3_REGION", "")
	cfg.S3.Endpoint = getEnv("FILEPORT_S3_ENDPOINT", "")
	cfg.S3.UsePathStyle = getEnv("FILEPORT_S3_USE_PATH_STYLE", "false") == "true"

	cfg.Azure.ConnectionString = getEnv("FILEPORT_AZURE_CONNECTION_STRING", "")

	cfg.B2.KeyID = getEnv("FILEPORT_B2_KEY_ID", "")
	cfg.B2.Key = getEnv("FILEPORT_B2_KEY", "")
	cfg.B2.AuthorizeURL = getEnv("FILEPORT_B2_AUTHORIZE_URL", "")

	cfg.MinIO.Endpoint = getEnv("FILEPORT_MINIO_ENDPOINT", cfg.MinIO.Endpoint)
	cfg.MinIO.AccessKey = getEnv("FILEPORT_MINIO_ACCESS_KEY", "")
	cfg.MinIO.SecretKey = getEnv("FILEPORT_MINIO_SECRET_KEY", "")
	cfg.MinIO.UseSSL = getEnv("FILEPORT_MINIO_USE_SSL", "false") == "true"
	cfg.MinIO.Region = getEnv("FILEPORT_MINIO_REGION", cfg.MinIO.Region)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the selected backend has its required settings.
func (c *Config) Validate() error {
	if c.MaxDownloadBytes < 0 {
		return errs.New(errs.ErrKindInvalidInput, "max_download_bytes must not be negative")
	}

	switch c.Provider {
	case ProviderS3, ProviderMemory:
		return nil
	case ProviderAzure:
		if c.Azure.ConnectionString == "" {
			return errs.New(errs.ErrKindInvalidInput, "azure.connection_string is required")
		}
	case ProviderB2:
		if c.B2.KeyID == "" || c.B2.Key == "" {
			return errs.New(errs.ErrKindInvalidInput, "b2.key_id and b2.key are required")
		}
	case ProviderMinIO:
		if c.MinIO.Endpoint == "" {
			return errs.New(errs.ErrKindInvalidInput, "minio.endpoint is required")
		}
		if (c.MinIO.AccessKey == "") != (c.MinIO.SecretKey == "") {
			return errs.New(errs.ErrKindInvalidInput, "minio.access_key and minio.secret_key must be set together")
		}
	default:
		return errs.New(errs.ErrKindInvalidInput, fmt.Sprintf("unknown provider %q", c.Provider))
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int64) (int64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, errs.Wrap(errs.ErrKindInvalidInput, key+" must be an integer", err)
	}
	return n, nil
}
