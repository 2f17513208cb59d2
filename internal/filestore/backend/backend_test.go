package backend

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koustreak/fileport/internal/errs"
	"github.com/koustreak/fileport/internal/filestore"
	"github.com/koustreak/fileport/internal/filestore/azure"
	"github.com/koustreak/fileport/internal/filestore/b2"
	"github.com/koustreak/fileport/internal/filestore/memory"
	"github.com/koustreak/fileport/internal/filestore/metrics"
	"github.com/koustreak/fileport/internal/filestore/minio"
	"github.com/koustreak/fileport/internal/filestore/s3"
	"github.com/koustreak/fileport/internal/logger"
)

func TestOpen_DefaultIsMemory(t *testing.T) {
	svc, err := Open(context.Background(), nil)
	require.NoError(t, err)
	assert.IsType(t, &memory.Store{}, svc.Provider())

	ctx := context.Background()
	require.NoError(t, svc.UploadFile(ctx, "c", "k", []byte("v")))
	data, err := svc.DownloadFile(ctx, "c", "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), data)
	require.NoError(t, svc.Close())
}

func TestOpen_SelectsBackend(t *testing.T) {
	const azureConn = "DefaultEndpointsProtocol=https;AccountName=acct;" +
		"AccountKey=dGVzdGtleXRlc3RrZXl0ZXN0a2V5dGVzdGtleQ==;EndpointSuffix=core.windows.net"

	// keep the AWS chain away from the developer's real profile
	t.Setenv("AWS_CONFIG_FILE", filepath.Join(t.TempDir(), "config"))
	t.Setenv("AWS_SHARED_CREDENTIALS_FILE", filepath.Join(t.TempDir(), "credentials"))
	t.Setenv("AWS_ACCESS_KEY_ID", "AKIDEXAMPLE")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "secret")

	tests := []struct {
		name string
		cfg  *filestore.Config
		want filestore.Provider
	}{
		{"s3", &filestore.Config{Provider: filestore.ProviderS3, S3: filestore.S3Config{Region: "eu-west-1"}}, &s3.Driver{}},
		{"azure", &filestore.Config{Provider: filestore.ProviderAzure, Azure: filestore.AzureConfig{ConnectionString: azureConn}}, &azure.Driver{}},
		{"b2", &filestore.Config{Provider: filestore.ProviderB2, B2: filestore.B2Config{KeyID: "K1", Key: "S1"}}, &b2.Driver{}},
		{"minio", &filestore.Config{Provider: filestore.ProviderMinIO, MinIO: filestore.MinIOConfig{Endpoint: "localhost:9000"}}, &minio.Driver{}},
		{"memory", &filestore.Config{Provider: filestore.ProviderMemory}, &memory.Store{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, err := Open(context.Background(), tt.cfg)
			require.NoError(t, err)
			assert.IsType(t, tt.want, svc.Provider())
		})
	}
}

func TestOpen_InvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  *filestore.Config
	}{
		{"unknown provider", &filestore.Config{Provider: "gcs"}},
		{"b2 without key", &filestore.Config{Provider: filestore.ProviderB2, B2: filestore.B2Config{KeyID: "K1"}}},
		{"azure without connection string", &filestore.Config{Provider: filestore.ProviderAzure}},
		{"azure bad connection string", &filestore.Config{Provider: filestore.ProviderAzure, Azure: filestore.AzureConfig{ConnectionString: "garbage"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, err := Open(context.Background(), tt.cfg)
			require.Error(t, err)
			assert.Nil(t, svc)
			assert.True(t, errs.IsInvalidInput(err))
		})
	}
}

func TestOpen_WithRegisterer(t *testing.T) {
	reg := prometheus.NewRegistry()

	svc, err := Open(context.Background(), &filestore.Config{Provider: filestore.ProviderMemory}, WithRegisterer(reg))
	require.NoError(t, err)

	ip, ok := svc.Provider().(*metrics.Provider)
	require.True(t, ok)
	assert.IsType(t, &memory.Store{}, ip.Unwrap())

	_, err = svc.ListFiles(context.Background(), "c")
	require.NoError(t, err)
	n, err := testutil.GatherAndCount(reg, "fileport_storage_operations_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestOpen_LogsReady(t *testing.T) {
	var buf bytes.Buffer
	log := logger.New(&logger.Config{Level: "info", Format: "json", Output: &buf})

	_, err := Open(context.Background(), filestore.DefaultConfig(), WithLogger(log))
	require.NoError(t, err)
	assert.Contains(t, buf.String(), `"provider":"memory"`)
	assert.Contains(t, buf.String(), "storage backend ready")
}

func TestOpen_LoggerFromContext(t *testing.T) {
	var buf bytes.Buffer
	log := logger.New(&logger.Config{Level: "info", Format: "json", Output: &buf})
	ctx := log.WithContext(context.Background())

	_, err := Open(ctx, filestore.DefaultConfig())
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "storage backend ready")
}
