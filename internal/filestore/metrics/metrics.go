// Package metrics wraps a filestore.Provider with Prometheus instrumentation.
//
// Every call is counted by provider, operation and outcome, and its latency
// observed. Results and errors pass through untouched.
package metrics

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/koustreak/fileport/internal/errs"
	"github.com/koustreak/fileport/internal/filestore"
	"github.com/koustreak/fileport/internal/logger"
)

// Operation label values.
const (
	OpUpload    = "upload"
	OpDelete    = "delete"
	OpList      = "list"
	OpDownload  = "download"
	OpExists    = "exists"
	OpSignedURL = "signed_url"
)

// StatusSuccess is the status label of calls that returned no error. Failed
// calls are labelled with their errs.ErrKind, e.g. "not_found".
const StatusSuccess = "success"

type collectors struct {
	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
}

func newCollectors(reg prometheus.Registerer) (*collectors, error) {
	ops := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fileport_storage_operations_total",
			Help: "Total number of storage provider operations",
		},
		[]string{"provider", "operation", "status"},
	)
	dur := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fileport_storage_operation_duration_seconds",
			Help:    "Duration of storage provider operations in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"provider", "operation"},
	)

	var err error
	if ops, err = register(reg, ops); err != nil {
		return nil, err
	}
	if dur, err = register(reg, dur); err != nil {
		return nil, err
	}
	return &collectors{operations: ops, duration: dur}, nil
}

// register adds c to reg, reusing the collector already registered under
// the same name so several providers can share one registry.
func register[T prometheus.Collector](reg prometheus.Registerer, c T) (T, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
		}
		return c, errs.Wrap(errs.ErrKindInvalidInput, "failed to register storage metrics", err)
	}
	return c, nil
}

// Provider is an instrumented filestore.Provider.
type Provider struct {
	next filestore.Provider
	name string
	m    *collectors
	log  *logger.Logger
}

// Instrument returns a Provider that records metrics for next under the
// provider label name. A nil reg means prometheus.DefaultRegisterer; a nil
// log discards failure logs.
func Instrument(next filestore.Provider, name string, reg prometheus.Registerer, log *logger.Logger) (*Provider, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if log == nil {
		log = logger.Nop()
	}

	m, err := newCollectors(reg)
	if err != nil {
		return nil, err
	}
	return &Provider{next: next, name: name, m: m, log: log}, nil
}

// Unwrap returns the wrapped provider.
func (p *Provider) Unwrap() filestore.Provider {
	return p.next
}

// Close closes the wrapped provider if it holds resources.
func (p *Provider) Close() error {
	if c, ok := p.next.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func (p *Provider) observe(op, container string, start time.Time, err error) {
	status := StatusSuccess
	if err != nil {
		status = errs.KindOf(err).String()
	}

	p.m.operations.WithLabelValues(p.name, op, status).Inc()
	p.m.duration.WithLabelValues(p.name, op).Observe(time.Since(start).Seconds())

	if err != nil {
		p.log.WarnWith("storage operation failed", err, logger.Fields{
			"provider":  p.name,
			"operation": op,
			"container": container,
			"status":    status,
		})
	}
}

func (p *Provider) UploadFile(ctx context.Context, container, key string, content []byte) (err error) {
	defer func(start time.Time) { p.observe(OpUpload, container, start, err) }(time.Now())
	return p.next.UploadFile(ctx, container, key, content)
}

func (p *Provider) DeleteFile(ctx context.Context, container, key string) (err error) {
	defer func(start time.Time) { p.observe(OpDelete, container, start, err) }(time.Now())
	return p.next.DeleteFile(ctx, container, key)
}

func (p *Provider) ListFiles(ctx context.Context, container string) (_ []string, err error) {
	defer func(start time.Time) { p.observe(OpList, container, start, err) }(time.Now())
	return p.next.ListFiles(ctx, container)
}

func (p *Provider) DownloadFile(ctx context.Context, container, key string) (_ []byte, err error) {
	defer func(start time.Time) { p.observe(OpDownload, container, start, err) }(time.Now())
	return p.next.DownloadFile(ctx, container, key)
}

func (p *Provider) FileExists(ctx context.Context, container, key string) (_ bool, err error) {
	defer func(start time.Time) { p.observe(OpExists, container, start, err) }(time.Now())
	return p.next.FileExists(ctx, container, key)
}

func (p *Provider) GenerateSignedURL(ctx context.Context, container, key string, expiresIn time.Duration) (_ string, err error) {
	defer func(start time.Time) { p.observe(OpSignedURL, container, start, err) }(time.Now())
	return p.next.GenerateSignedURL(ctx, container, key, expiresIn)
}

var _ filestore.Provider = (*Provider)(nil)
