package flagclient

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	DefaultBaseURL      = "http://localhost:8080"
	DefaultEnv          = "prod"
	DefaultPollInterval = 30 * time.Second
	DefaultRetryMax     = 3

	defaultRequestTimeout    = 10 * time.Second
	defaultInitialRetryDelay = 500 * time.Millisecond
	defaultMaxRetryDelay     = 30 * time.Second
)

// Option configures a Client.
type Option func(*options)

type options struct {
	baseURL           string
	env               string
	streaming         bool
	pollInterval      time.Duration
	httpClient        *http.Client
	rolloutSalt       string
	logger            zerolog.Logger
	retryMax          int
	initialRetryDelay time.Duration
	maxRetryDelay     time.Duration
}

func defaultOptions() options {
	return options{
		baseURL:           DefaultBaseURL,
		env:               DefaultEnv,
		streaming:         true,
		pollInterval:      DefaultPollInterval,
		logger:            zerolog.Nop(),
		retryMax:          DefaultRetryMax,
		initialRetryDelay: defaultInitialRetryDelay,
		maxRetryDelay:     defaultMaxRetryDelay,
	}
}

// WithBaseURL points the client at a flagship service, e.g. "https://flags.example.com".
func WithBaseURL(u string) Option { return func(o *options) { o.baseURL = strings.TrimRight(u, "/") } }

// WithEnv selects the flag environment.
func WithEnv(env string) Option { return func(o *options) { o.env = env } }

// WithStreaming switches between the SSE update stream (true) and polling (false).
func WithStreaming(on bool) Option { return func(o *options) { o.streaming = on } }

func WithPollInterval(d time.Duration) Option { return func(o *options) { o.pollInterval = d } }

// WithHTTPClient replaces the HTTP client used for snapshot requests. Its transport
// is shared with the stream connection, its timeout is not.
func WithHTTPClient(c *http.Client) Option { return func(o *options) { o.httpClient = c } }

// WithRolloutSalt overrides the salt the service publishes in its snapshot.
func WithRolloutSalt(salt string) Option { return func(o *options) { o.rolloutSalt = salt } }

func WithLogger(l zerolog.Logger) Option { return func(o *options) { o.logger = l } }

// WithRetryMax bounds per-request retries of a single snapshot fetch.
func WithRetryMax(n int) Option { return func(o *options) { o.retryMax = n } }

// WithRetryDelays bounds the backoff between initial sync attempts and stream reconnects.
func WithRetryDelays(initial, max time.Duration) Option {
	return func(o *options) {
		o.initialRetryDelay = initial
		o.maxRetryDelay = max
	}
}

func (o options) validate() error {
	u, err := url.Parse(o.baseURL)
	if err != nil {
		return fmt.Errorf("base URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("base URL %q: scheme must be http or https", o.baseURL)
	}
	if u.Host == "" {
		return fmt.Errorf("base URL %q: host is required", o.baseURL)
	}
	if strings.TrimSpace(o.env) == "" {
		return errors.New("environment cannot be empty")
	}
	if o.pollInterval <= 0 {
		return errors.New("poll interval must be positive")
	}
	if o.retryMax < 0 {
		return errors.New("retry max cannot be negative")
	}
	if o.initialRetryDelay <= 0 || o.maxRetryDelay < o.initialRetryDelay {
		return errors.New("retry delays must be positive and max >= initial")
	}
	return nil
}
