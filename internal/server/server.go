// Package server runs the flag page service from startup to drained shutdown.
//
// Startup order is fixed: build the flag client, load templates, wait for the
// first flag snapshot, and only then bind listeners. Cancelling the context
// passed to Run stops accepting connections and waits for in-flight requests.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/TimurManjosov/flagpage/internal/api"
	"github.com/TimurManjosov/flagpage/internal/config"
	"github.com/TimurManjosov/flagpage/internal/flagclient"
	"github.com/TimurManjosov/flagpage/internal/telemetry"
	"github.com/TimurManjosov/flagpage/internal/view"
)

var ErrInitializationFailed = errors.New("flag client initialization failed")

// FlagClient is what the lifecycle needs from the flag client.
type FlagClient interface {
	api.FlagEvaluator
	WaitForInitialization(ctx context.Context) bool
	Initialized() bool
	InitErr() error
	Close() error
}

// ClientFactory builds the flag client from configuration.
type ClientFactory func(cfg *config.Config, logger zerolog.Logger) (FlagClient, error)

type Lifecycle struct {
	cfg       *config.Config
	logger    zerolog.Logger
	newClient ClientFactory

	state   atomic.Int32
	serving chan struct{}

	mu          sync.Mutex
	addr        net.Addr
	metricsAddr net.Addr
}

type Option func(*Lifecycle)

func WithLogger(l zerolog.Logger) Option { return func(lc *Lifecycle) { lc.logger = l } }

// WithClientFactory replaces how the flag client is built.
func WithClientFactory(f ClientFactory) Option { return func(lc *Lifecycle) { lc.newClient = f } }

func New(cfg *config.Config, opts ...Option) *Lifecycle {
	lc := &Lifecycle{
		cfg:       cfg,
		logger:    zerolog.Nop(),
		newClient: NewFlagClient,
		serving:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(lc)
	}
	return lc
}

// NewFlagClient is the default ClientFactory.
func NewFlagClient(cfg *config.Config, logger zerolog.Logger) (FlagClient, error) {
	c, err := flagclient.New(cfg.SDKKey,
		flagclient.WithBaseURL(cfg.BaseURL),
		flagclient.WithEnv(cfg.Env),
		flagclient.WithStreaming(cfg.Streaming),
		flagclient.WithPollInterval(cfg.PollInterval),
		flagclient.WithRolloutSalt(cfg.RolloutSalt),
		flagclient.WithRetryMax(cfg.HTTPRetries),
		flagclient.WithLogger(logger),
	)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (lc *Lifecycle) State() State { return State(lc.state.Load()) }

// Serving is closed once the listeners are bound.
func (lc *Lifecycle) Serving() <-chan struct{} { return lc.serving }

// Addr is the page listener address, nil until Serving.
func (lc *Lifecycle) Addr() net.Addr {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	return lc.addr
}

// MetricsAddr is the metrics listener address, nil until Serving or when disabled.
func (lc *Lifecycle) MetricsAddr() net.Addr {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	return lc.metricsAddr
}

func (lc *Lifecycle) setState(s State) {
	lc.state.Store(int32(s))
	lc.logger.Debug().Stringer("state", s).Msg("lifecycle state")
}

func (lc *Lifecycle) fail(err error) error {
	lc.setState(FailedToStart)
	return err
}

// Run starts the service and blocks until it has drained after ctx is cancelled.
// It returns nil after a clean shutdown and the startup or serve error otherwise.
func (lc *Lifecycle) Run(ctx context.Context) error {
	lc.setState(Starting)
	telemetry.Init()

	client, err := lc.newClient(lc.cfg, lc.logger)
	if err != nil {
		return lc.fail(err)
	}
	views, err := view.Load(lc.cfg.TemplatePath, view.WithLogger(lc.logger))
	if err != nil {
		client.Close()
		return lc.fail(err)
	}
	lc.logger.Debug().Strs("templates", views.Names()).Msg("templates loaded")
	if _, err := flagclient.NewContext(lc.cfg.ContextKey, lc.cfg.ContextKind, lc.cfg.ContextName); err != nil {
		client.Close()
		return lc.fail(err)
	}

	lc.setState(AwaitingFlagReady)
	if err := lc.awaitReady(ctx, client); err != nil {
		client.Close()
		return lc.fail(err)
	}

	page := api.NewServer(client, views,
		api.WithContext(lc.cfg.ContextKey, lc.cfg.ContextKind, lc.cfg.ContextName),
		api.WithFlagKey(lc.cfg.FlagKey),
		api.WithRateLimit(lc.cfg.RateLimitPerIP),
		api.WithLogger(lc.logger),
	)
	err = lc.serve(ctx, page.Router(), lc.metricsRouter(client))
	client.Close()
	if err != nil {
		return err
	}
	lc.logger.Info().Msg("service closed successfully")
	return nil
}

func (lc *Lifecycle) awaitReady(ctx context.Context, client FlagClient) error {
	waitCtx := ctx
	if lc.cfg.InitTimeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, lc.cfg.InitTimeout)
		defer cancel()
	}
	lc.logger.Info().Dur("timeout", lc.cfg.InitTimeout).Msg("waiting for flag client")

	if client.WaitForInitialization(waitCtx) {
		lc.logger.Info().Msg("flag client ready")
		return nil
	}
	cause := client.InitErr()
	if cause == nil {
		cause = waitCtx.Err()
	}
	if cause == nil {
		return ErrInitializationFailed
	}
	return fmt.Errorf("%w: %w", ErrInitializationFailed, cause)
}

func (lc *Lifecycle) serve(ctx context.Context, pageHandler, metricsHandler http.Handler) error {
	ln, err := net.Listen("tcp", lc.cfg.HTTPAddr)
	if err != nil {
		return lc.fail(fmt.Errorf("listen %s: %w", lc.cfg.HTTPAddr, err))
	}
	var metricsLn net.Listener
	if lc.cfg.MetricsAddr != "" {
		metricsLn, err = net.Listen("tcp", lc.cfg.MetricsAddr)
		if err != nil {
			ln.Close()
			return lc.fail(fmt.Errorf("listen %s: %w", lc.cfg.MetricsAddr, err))
		}
	}

	pageSrv := &http.Server{
		Handler:           pageHandler,
		ReadHeaderTimeout: 3 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	servers := []*http.Server{pageSrv}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return serveUntilClosed(pageSrv, ln) })
	if metricsLn != nil {
		metricsSrv := &http.Server{Handler: metricsHandler, ReadHeaderTimeout: 3 * time.Second}
		servers = append(servers, metricsSrv)
		g.Go(func() error { return serveUntilClosed(metricsSrv, metricsLn) })
	}

	lc.mu.Lock()
	lc.addr = ln.Addr()
	if metricsLn != nil {
		lc.metricsAddr = metricsLn.Addr()
	}
	lc.mu.Unlock()
	lc.setState(Serving)
	close(lc.serving)
	ev := lc.logger.Info().Str("addr", ln.Addr().String())
	if metricsLn != nil {
		ev = ev.Str("metrics_addr", metricsLn.Addr().String())
	}
	ev.Msg("listening")

	g.Go(func() error {
		<-gctx.Done()
		lc.setState(Draining)
		lc.logger.Info().Dur("timeout", lc.cfg.ShutdownTimeout).Msg("draining in-flight requests")

		shutCtx := context.Background()
		if lc.cfg.ShutdownTimeout > 0 {
			var cancel context.CancelFunc
			shutCtx, cancel = context.WithTimeout(shutCtx, lc.cfg.ShutdownTimeout)
			defer cancel()
		}
		var errs []error
		for _, srv := range servers {
			if err := srv.Shutdown(shutCtx); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	})

	err = g.Wait()
	lc.setState(Stopped)
	return err
}

func serveUntilClosed(srv *http.Server, ln net.Listener) error {
	if err := srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// metricsRouter serves Prometheus metrics and a readiness probe.
func (lc *Lifecycle) metricsRouter(client FlagClient) http.Handler {
	r := chi.NewRouter()
	r.Handle("/metrics", telemetry.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		if !client.Initialized() {
			http.Error(w, "flag client not initialized", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return r
}
