// Package flagclient is a flagship SDK client: it keeps a local copy of an
// environment's flags in sync with the flag service and evaluates flags against it.
//
// A Client is safe for concurrent use. Evaluations read the local snapshot only,
// they never touch the network and never fail: any problem yields the caller's default.
package flagclient

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc"

	"github.com/TimurManjosov/flagpage/internal/evaluation"
	"github.com/TimurManjosov/flagpage/internal/snapshot"
	"github.com/TimurManjosov/flagpage/internal/telemetry"
)

// Reason explains where a variation came from.
type Reason string

const (
	ReasonClientNotReady  Reason = "CLIENT_NOT_READY"
	ReasonFlagNotFound    Reason = "FLAG_NOT_FOUND"
	ReasonError           Reason = "ERROR"
	ReasonDisabled        Reason = Reason(evaluation.ReasonDisabled)
	ReasonTargetingMiss   Reason = Reason(evaluation.ReasonTargetingMiss)
	ReasonRolloutExcluded Reason = Reason(evaluation.ReasonRolloutExcluded)
	ReasonMatch           Reason = Reason(evaluation.ReasonMatch)
)

// Detail is a variation together with how it was reached.
type Detail struct {
	Value   bool
	Variant string
	Reason  Reason
	Err     error
}

// UsedDefault reports whether Value is the caller's default rather than an evaluated result.
func (d Detail) UsedDefault() bool {
	switch d.Reason {
	case ReasonClientNotReady, ReasonFlagNotFound, ReasonError:
		return true
	}
	return false
}

type Client struct {
	sdkKey string
	opts   options
	logger zerolog.Logger

	http   *retryablehttp.Client
	stream *http.Client
	holder *snapshot.Holder

	ready     chan struct{}
	readyOnce sync.Once
	initErr   error // written once, before ready is closed

	cancel    context.CancelFunc
	workers   conc.WaitGroup
	closeOnce sync.Once
}

// New validates the options and starts synchronizing in the background.
// It does not wait for the first sync; use WaitForInitialization for that.
func New(sdkKey string, opts ...Option) (*Client, error) {
	if strings.TrimSpace(sdkKey) == "" {
		return nil, ErrMissingCredential
	}
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if err := o.validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrClientConstruction, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		sdkKey: sdkKey,
		opts:   o,
		logger: o.logger.With().Str("component", "flagclient").Str("env", o.env).Logger(),
		holder: snapshot.NewHolder(),
		ready:  make(chan struct{}),
		cancel: cancel,
	}
	c.http, c.stream = newHTTPClients(o, c.logger)

	c.workers.Go(func() { c.run(ctx) })
	return c, nil
}

// WaitForInitialization blocks until the first snapshot is loaded (true), the
// service rejected the SDK key or the client was closed (false), or ctx ends (false).
func (c *Client) WaitForInitialization(ctx context.Context) bool {
	select {
	case <-c.ready:
		return c.initErr == nil
	case <-ctx.Done():
		return false
	}
}

// Initialized reports whether the first snapshot has been loaded.
func (c *Client) Initialized() bool {
	select {
	case <-c.ready:
		return c.initErr == nil
	default:
		return false
	}
}

// InitErr returns why initialization failed, or nil while pending or after success.
func (c *Client) InitErr() error {
	select {
	case <-c.ready:
		return c.initErr
	default:
		return nil
	}
}

// BoolVariation evaluates flagKey for ec and returns def when the flag can't be evaluated.
func (c *Client) BoolVariation(ec EvaluationContext, flagKey string, def bool) bool {
	return c.BoolVariationDetail(ec, flagKey, def).Value
}

// BoolVariationDetail is BoolVariation with the reason and assigned variant.
func (c *Client) BoolVariationDetail(ec EvaluationContext, flagKey string, def bool) (d Detail) {
	defer func() {
		if r := recover(); r != nil {
			d = Detail{Value: def, Reason: ReasonError, Err: fmt.Errorf("evaluation panic: %v", r)}
		}
		if d.Err != nil {
			c.logger.Debug().Err(d.Err).Str("flag", flagKey).Msg("evaluation fell back to default")
		}
		telemetry.FlagEvaluations.WithLabelValues(flagKey, string(d.Reason)).Inc()
	}()

	if !c.Initialized() {
		return Detail{Value: def, Reason: ReasonClientNotReady}
	}
	snap := c.holder.Load()
	flag, ok := snap.Flag(flagKey)
	if !ok {
		return Detail{Value: def, Reason: ReasonFlagNotFound}
	}

	res := evaluation.EvaluateFlag(flag, ec.evaluationContext(), c.salt(snap))
	if res.Reason == evaluation.ReasonError {
		return Detail{Value: def, Reason: ReasonError, Err: res.Err}
	}
	return Detail{Value: res.Enabled, Variant: res.Variant, Reason: Reason(res.Reason)}
}

// Flags returns a copy of the locally cached flags.
func (c *Client) Flags() map[string]snapshot.FlagView {
	snap := c.holder.Load()
	if snap == nil {
		return map[string]snapshot.FlagView{}
	}
	out := make(map[string]snapshot.FlagView, len(snap.Flags))
	for k, v := range snap.Flags {
		out[k] = v
	}
	return out
}

// Snapshot returns the current snapshot, nil before initialization. Do not modify it.
func (c *Client) Snapshot() *snapshot.Snapshot {
	return c.holder.Load()
}

// Subscribe delivers the ETag of every new snapshot. Call the returned func to stop.
func (c *Client) Subscribe() (<-chan string, func()) {
	return c.holder.Subscribe()
}

// Close stops background synchronization and waits for it to exit.
// Evaluations keep working against the last snapshot.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.cancel()
		c.workers.Wait()
		c.markReady(ErrClientClosed)
		telemetry.StreamConnected.Set(0)
	})
	return nil
}

func (c *Client) markReady(err error) {
	c.readyOnce.Do(func() {
		c.initErr = err
		close(c.ready)
		if err == nil {
			telemetry.ClientInitialized.Set(1)
		}
	})
}

func (c *Client) salt(snap *snapshot.Snapshot) string {
	if c.opts.rolloutSalt != "" {
		return c.opts.rolloutSalt
	}
	return snap.RolloutSalt
}
