// Package api serves the flag page: GET / evaluates one flag and renders it,
// every other request is a 404.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"github.com/TimurManjosov/flagpage/internal/flagclient"
	"github.com/TimurManjosov/flagpage/internal/telemetry"
	"github.com/TimurManjosov/flagpage/internal/view"
)

const (
	DefaultFlagKey     = "test-flag"
	DefaultContextKey  = "018ee873-7b09-7f26-b296-0358b2ff1c87"
	DefaultContextKind = "device"
	DefaultContextName = "Linux"

	// IndexView is the template rendered for GET /.
	IndexView = "index"
)

// FlagEvaluator is the part of the flag client the page needs.
type FlagEvaluator interface {
	BoolVariation(ec flagclient.EvaluationContext, flagKey string, def bool) bool
}

type ViewRenderer interface {
	Render(v view.View) string
}

type Server struct {
	flags     FlagEvaluator
	views     ViewRenderer
	ctxKey    string
	ctxKind   string
	ctxName   string
	flagKey   string
	rateLimit int
	logger    zerolog.Logger
}

type Option func(*Server)

// WithContext sets the identity the flag is evaluated for. A fresh
// EvaluationContext is built from it for every request.
func WithContext(key, kind, name string) Option {
	return func(s *Server) { s.ctxKey, s.ctxKind, s.ctxName = key, kind, name }
}

func WithFlagKey(key string) Option { return func(s *Server) { s.flagKey = key } }

// WithRateLimit caps page requests per client IP per minute. 0 disables the limit.
func WithRateLimit(perMinute int) Option { return func(s *Server) { s.rateLimit = perMinute } }

func WithLogger(l zerolog.Logger) Option { return func(s *Server) { s.logger = l } }

func NewServer(flags FlagEvaluator, views ViewRenderer, opts ...Option) *Server {
	s := &Server{
		flags:   flags,
		views:   views,
		ctxKey:  DefaultContextKey,
		ctxKind: DefaultContextKind,
		ctxName: DefaultContextName,
		flagKey: DefaultFlagKey,
		logger:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer)
	r.Use(hlog.NewHandler(s.logger))
	r.Use(hlog.AccessHandler(func(r *http.Request, status, size int, d time.Duration) {
		hlog.FromRequest(r).Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("request_id", middleware.GetReqID(r.Context())).
			Int("status", status).
			Int("size", size).
			Dur("duration", d).
			Msg("request")
	}))
	r.Use(telemetry.Middleware)
	if s.rateLimit > 0 {
		r.Use(httprate.LimitByIP(s.rateLimit, time.Minute))
	}

	// Only GET / exists; a wrong method is reported like a wrong path.
	r.NotFound(http.NotFound)
	r.MethodNotAllowed(http.NotFound)

	r.Get("/", s.handlePage)
	return r
}
