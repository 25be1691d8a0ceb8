package flagclient

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog"

	"github.com/TimurManjosov/flagpage/internal/snapshot"
	"github.com/TimurManjosov/flagpage/internal/telemetry"
	"github.com/TimurManjosov/flagpage/internal/validation"
)

const (
	snapshotPath = "/v1/flags/snapshot"
	streamPath   = "/v1/flags/stream"
)

var errStreamClosed = errors.New("stream closed by server")

func newHTTPClients(o options, logger zerolog.Logger) (*retryablehttp.Client, *http.Client) {
	base := o.httpClient
	if base == nil {
		base = &http.Client{Timeout: defaultRequestTimeout}
	}
	rc := retryablehttp.NewClient()
	rc.HTTPClient = base
	rc.RetryMax = o.retryMax
	rc.RetryWaitMin = o.initialRetryDelay
	rc.RetryWaitMax = o.maxRetryDelay
	rc.Logger = leveledLogger{logger}
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler

	// The stream is long-lived, so it gets the transport without the timeout.
	return rc, &http.Client{Transport: base.Transport}
}

func (c *Client) run(ctx context.Context) {
	if err := c.initialize(ctx); err != nil {
		if ctx.Err() != nil {
			return
		}
		c.logger.Error().Err(err).Msg("flag client failed to initialize")
		c.markReady(err)
		return
	}
	c.markReady(nil)
	c.logger.Info().Str("etag", c.holder.Load().ETag).Int("flags", len(c.holder.Load().Flags)).Msg("flag client initialized")

	if c.opts.streaming {
		c.streamLoop(ctx)
	} else {
		c.pollLoop(ctx)
	}
}

// initialize retries the first fetch until it succeeds, the key is rejected, or ctx ends.
func (c *Client) initialize(ctx context.Context) error {
	b := c.newBackOff()
	for {
		err := c.refresh(ctx)
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrUnauthorized) {
			return err
		}
		wait := b.NextBackOff()
		c.logger.Warn().Err(err).Dur("retry_in", wait).Msg("initial flag sync failed")
		if !sleep(ctx, wait) {
			return ctx.Err()
		}
	}
}

// refresh fetches the snapshot, sending the current ETag so an unchanged set costs a 304.
func (c *Client) refresh(ctx context.Context) error {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, c.endpoint(snapshotPath), nil)
	if err != nil {
		return fmt.Errorf("build snapshot request: %w", err)
	}
	c.authorize(req.Header)
	req.Header.Set("Accept", "application/json")
	if cur := c.holder.Load(); cur != nil && cur.ETag != "" {
		req.Header.Set("If-None-Match", cur.ETag)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("fetch snapshot: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotModified:
		return nil
	case http.StatusUnauthorized, http.StatusForbidden:
		return ErrUnauthorized
	default:
		return fmt.Errorf("fetch snapshot: unexpected status %d", resp.StatusCode)
	}

	var snap snapshot.Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		return fmt.Errorf("decode snapshot: %w", err)
	}
	if snap.Flags == nil {
		snap.Flags = map[string]snapshot.FlagView{}
	}
	if snap.ETag == "" {
		snap.ETag = resp.Header.Get("ETag")
	}
	for key, flag := range snap.Flags {
		if err := validation.ValidateFlagView(flag).Err(); err != nil {
			// Still stored; evaluating it falls back to the default.
			c.logger.Warn().Err(err).Str("flag", key).Msg("snapshot contains invalid flag")
		}
	}
	c.holder.Store(&snap)
	telemetry.SnapshotFlags.Set(float64(len(snap.Flags)))
	c.logger.Debug().Str("etag", snap.ETag).Int("flags", len(snap.Flags)).Msg("snapshot updated")
	return nil
}

func (c *Client) streamLoop(ctx context.Context) {
	b := c.newBackOff()
	for {
		err := c.consumeStream(ctx, b)
		telemetry.StreamConnected.Set(0)
		if ctx.Err() != nil {
			return
		}
		if errors.Is(err, ErrUnauthorized) {
			c.logger.Error().Err(err).Msg("flag stream rejected, updates stopped")
			return
		}
		wait := b.NextBackOff()
		c.logger.Warn().Err(err).Dur("retry_in", wait).Msg("flag stream disconnected")
		if !sleep(ctx, wait) {
			return
		}
	}
}

// consumeStream holds one SSE connection open and refetches the snapshot whenever
// an init or update event announces an ETag different from the local one.
func (c *Client) consumeStream(ctx context.Context, b *backoff.ExponentialBackOff) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint(streamPath), nil)
	if err != nil {
		return fmt.Errorf("build stream request: %w", err)
	}
	c.authorize(req.Header)
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := c.stream.Do(req)
	if err != nil {
		return fmt.Errorf("connect stream: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized, http.StatusForbidden:
		return ErrUnauthorized
	default:
		return fmt.Errorf("connect stream: unexpected status %d", resp.StatusCode)
	}

	telemetry.StreamConnected.Set(1)
	b.Reset()
	c.logger.Debug().Msg("flag stream connected")

	var event string
	var data []string
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if event != "" {
				c.handleEvent(ctx, event, strings.Join(data, "\n"))
			}
			event, data = "", nil
		case strings.HasPrefix(line, ":"):
			// heartbeat
		case strings.HasPrefix(line, "event:"):
			event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data = append(data, strings.TrimSpace(strings.TrimPrefix(line, "data:")))
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read stream: %w", err)
	}
	return errStreamClosed
}

func (c *Client) handleEvent(ctx context.Context, event, data string) {
	if event != "init" && event != "update" {
		return
	}
	var payload struct {
		ETag string `json:"etag"`
	}
	if err := json.Unmarshal([]byte(data), &payload); err != nil {
		c.logger.Warn().Err(err).Str("event", event).Msg("ignoring malformed stream event")
		return
	}
	if cur := c.holder.Load(); cur != nil && payload.ETag != "" && cur.ETag == payload.ETag {
		return
	}
	if err := c.refresh(ctx); err != nil && ctx.Err() == nil {
		c.logger.Warn().Err(err).Str("event", event).Msg("snapshot refresh failed")
	}
}

func (c *Client) pollLoop(ctx context.Context) {
	t := time.NewTicker(c.opts.pollInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := c.refresh(ctx); err != nil && ctx.Err() == nil {
				c.logger.Warn().Err(err).Msg("snapshot poll failed")
			}
		}
	}
}

func (c *Client) endpoint(path string) string {
	return c.opts.baseURL + path + "?env=" + url.QueryEscape(c.opts.env)
}

func (c *Client) authorize(h http.Header) {
	h.Set("Authorization", "Bearer "+c.sdkKey)
}

func (c *Client) newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.opts.initialRetryDelay
	b.MaxInterval = c.opts.maxRetryDelay
	b.Reset()
	return b
}

// sleep waits for d and reports false if ctx ended first.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
