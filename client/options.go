package client

import (
	"log/slog"
	"net/http"
	"time"
)

// ClientConfig holds client configuration.
type ClientConfig struct {
	HTTPClient      *http.Client
	Logger          *slog.Logger
	Headers         map[string]string
	RunPath         string
	HealthPath      string
	InterruptPath   string
	FeedbackPath    string
	HumanActionPath string
	RequestTimeout  time.Duration
	EventBufferSize int
}

func defaultClientConfig() ClientConfig {
	return ClientConfig{
		RunPath:         "/ag-ui/run",
		HealthPath:      "/ag-ui/health",
		InterruptPath:   "/interrupt",
		FeedbackPath:    "/feedback",
		HumanActionPath: "/human-action",
		RequestTimeout:  30 * time.Second,
		EventBufferSize: 16,
	}
}

// ClientOption is a functional option for configuring a Client.
type ClientOption func(*ClientConfig)

// WithHTTPClient sets the HTTP client. Streaming runs are bounded only by
// their context, so the client should not set an overall Timeout.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *ClientConfig) { c.HTTPClient = hc }
}

// WithRunPath sets the path of the streaming run endpoint.
func WithRunPath(path string) ClientOption {
	return func(c *ClientConfig) { c.RunPath = path }
}

// WithHealthPath sets the path of the health endpoint.
func WithHealthPath(path string) ClientOption {
	return func(c *ClientConfig) { c.HealthPath = path }
}

// WithHeader adds a header sent with every request.
func WithHeader(key, value string) ClientOption {
	return func(c *ClientConfig) {
		if c.Headers == nil {
			c.Headers = make(map[string]string)
		}
		c.Headers[key] = value
	}
}

// WithLogger sets the logger for transport and decode diagnostics.
func WithLogger(l *slog.Logger) ClientOption {
	return func(c *ClientConfig) { c.Logger = l }
}

// WithRequestTimeout bounds the non-streaming endpoints.
func WithRequestTimeout(d time.Duration) ClientOption {
	return func(c *ClientConfig) { c.RequestTimeout = d }
}

// WithEventBufferSize sets the run event channel buffer size.
func WithEventBufferSize(size int) ClientOption {
	return func(c *ClientConfig) { c.EventBufferSize = size }
}
