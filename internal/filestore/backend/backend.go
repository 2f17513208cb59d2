// Package backend builds the configured storage backend.
//
// It is the only package that imports every adapter. Calling code picks a
// backend through filestore.Config and receives a *filestore.Service.
//
// Usage:
//
//	cfg, err := filestore.LoadEnv()
//	if err != nil { ... }
//	svc, err := backend.Open(ctx, cfg, backend.WithLogger(log))
//	if err != nil { ... }
//	defer svc.Close()
package backend

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

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

type options struct {
	log *logger.Logger
	reg prometheus.Registerer
}

// Option configures Open.
type Option func(*options)

// WithLogger hands log to the backend and the metrics layer. Without it the
// logger carried by ctx is used, if any.
func WithLogger(l *logger.Logger) Option {
	return func(o *options) { o.log = l }
}

// WithRegisterer enables Prometheus instrumentation on reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) { o.reg = reg }
}

// Open validates cfg, constructs the selected backend and wraps it in a
// Service. The S3 backend resolves AWS configuration here; the other
// backends make no network request until the first operation.
func Open(ctx context.Context, cfg *filestore.Config, opts ...Option) (*filestore.Service, error) {
	if cfg == nil {
		cfg = filestore.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := options{log: logger.FromContext(ctx)}
	for _, opt := range opts {
		opt(&o)
	}
	log := o.log.With().Str("provider", string(cfg.Provider)).Logger()

	p, err := build(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	if o.reg != nil {
		ip, err := metrics.Instrument(p, string(cfg.Provider), o.reg, log)
		if err != nil {
			return nil, err
		}
		p = ip
	}

	log.Info("storage backend ready")
	return filestore.NewService(p), nil
}

func build(ctx context.Context, cfg *filestore.Config, log *logger.Logger) (filestore.Provider, error) {
	switch cfg.Provider {
	case filestore.ProviderS3:
		return s3.New(ctx, &cfg.S3, s3.WithLogger(log), s3.WithMaxDownloadBytes(cfg.MaxDownloadBytes))

	case filestore.ProviderAzure:
		return azure.New(cfg.Azure.ConnectionString, azure.WithLogger(log), azure.WithMaxDownloadBytes(cfg.MaxDownloadBytes))

	case filestore.ProviderB2:
		opts := []b2.Option{b2.WithLogger(log), b2.WithMaxDownloadBytes(cfg.MaxDownloadBytes)}
		if cfg.B2.AuthorizeURL != "" {
			opts = append(opts, b2.WithAuthorizeURL(cfg.B2.AuthorizeURL))
		}
		return b2.New(cfg.B2.KeyID, cfg.B2.Key, opts...), nil

	case filestore.ProviderMinIO:
		return minio.New(&cfg.MinIO, minio.WithLogger(log), minio.WithMaxDownloadBytes(cfg.MaxDownloadBytes))

	case filestore.ProviderMemory:
		return memory.New(), nil
	}
	return nil, errs.New(errs.ErrKindInvalidInput, fmt.Sprintf("unknown provider %q", cfg.Provider))
}
