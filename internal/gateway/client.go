// Package gateway is the client for the document analysis REST gateway.
//
// Every operation first calls the live gateway. When that fails and fallback
// is enabled, the operation answers from an injected mock job collection
// instead, and the returned Result records which path was taken.
package gateway

import (
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/dunamismax/docflow/internal/auth"
	"github.com/dunamismax/docflow/internal/id"
	"github.com/dunamismax/docflow/internal/mockdata"
	"github.com/dunamismax/docflow/internal/store"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const (
	defaultTimeout      = 30 * time.Second
	defaultUploadFolder = "documents"
)

type Config struct {
	BaseURL         string
	Timeout         time.Duration
	MockBucketURL   string
	UploadFolder    string
	DisableFallback bool
}

type Client struct {
	cfg        Config
	baseURL    string
	http       *http.Client
	logger     *log.Logger
	sessions   auth.SessionProvider
	mock       *store.MemoryJobStore
	now        func() time.Time
	newID      func() string
	tracer     trace.Tracer
	propagator propagation.TextMapPropagator
	metrics    *metrics
}

type Option func(*Client)

func WithLogger(logger *log.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithSessionProvider sets where bearer tokens come from. Without one every
// request is sent unauthenticated.
func WithSessionProvider(p auth.SessionProvider) Option {
	return func(c *Client) { c.sessions = p }
}

// WithMockStore sets the collection fallback answers are served from and
// mutated in.
func WithMockStore(s *store.MemoryJobStore) Option {
	return func(c *Client) {
		if s != nil {
			c.mock = s
		}
	}
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

func WithIDGenerator(newID func() string) Option {
	return func(c *Client) {
		if newID != nil {
			c.newID = newID
		}
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(c *Client) {
		if tracer != nil {
			c.tracer = tracer
		}
	}
}

func NewClient(cfg Config, opts ...Option) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if strings.TrimSpace(cfg.MockBucketURL) == "" {
		cfg.MockBucketURL = mockdata.DefaultBucketURL
	}
	cfg.UploadFolder = strings.Trim(strings.TrimSpace(cfg.UploadFolder), "/")
	if cfg.UploadFolder == "" {
		cfg.UploadFolder = defaultUploadFolder
	}

	c := &Client{
		cfg:        cfg,
		baseURL:    strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		http:       &http.Client{Timeout: cfg.Timeout},
		logger:     log.New(io.Discard, "", 0),
		now:        func() time.Time { return time.Now().UTC() },
		newID:      id.New,
		tracer:     otel.Tracer("docflow/gateway"),
		propagator: otel.GetTextMapPropagator(),
		metrics:    newMetrics(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.mock == nil {
		c.mock = store.NewMemoryJobStore(mockdata.SeedJobs(c.now())...)
	}
	return c
}

// MockStore returns the collection fallback answers come from.
func (c *Client) MockStore() *store.MemoryJobStore {
	return c.mock
}

func (c *Client) MetricsHandler() http.Handler {
	return c.metrics.handler()
}
