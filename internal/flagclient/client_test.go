package flagclient

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/TimurManjosov/flagpage/internal/snapshot"
	"github.com/TimurManjosov/flagpage/internal/testutil"
)

const testKey = "sdk-test-key"

func testContext(t *testing.T) EvaluationContext {
	t.Helper()
	ec, err := NewContext("018ee873-7b09-7f26-b296-0358b2ff1c87", "device", "Linux")
	if err != nil {
		t.Fatalf("NewContext failed: %v", err)
	}
	return ec
}

func newTestClient(t *testing.T, fs *testutil.FlagService, opts ...Option) *Client {
	t.Helper()
	base := []Option{
		WithBaseURL(fs.URL),
		WithRetryDelays(10*time.Millisecond, 50*time.Millisecond),
		WithRetryMax(0),
	}
	c, err := New(testKey, append(base, opts...)...)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func waitReady(t *testing.T, c *Client) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if !c.WaitForInitialization(ctx) {
		t.Fatalf("Expected client to initialize, init error: %v", c.InitErr())
	}
}

func flag(key string, enabled bool) snapshot.FlagView {
	return snapshot.FlagView{Key: key, Enabled: enabled, Rollout: 100, Env: "prod"}
}

func TestNew_MissingCredential(t *testing.T) {
	for _, key := range []string{"", "   "} {
		c, err := New(key)
		if !errors.Is(err, ErrMissingCredential) {
			t.Errorf("Expected ErrMissingCredential for %q, got %v", key, err)
		}
		if c != nil {
			t.Error("Expected nil client")
		}
	}
}

func TestNew_InvalidOptions(t *testing.T) {
	tests := []struct {
		name string
		opt  Option
	}{
		{"bad scheme", WithBaseURL("ftp://flags.example.com")},
		{"no host", WithBaseURL("http://")},
		{"empty env", WithEnv(" ")},
		{"zero poll interval", WithPollInterval(0)},
		{"negative retries", WithRetryMax(-1)},
		{"inverted delays", WithRetryDelays(time.Second, time.Millisecond)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(testKey, tt.opt)
			if !errors.Is(err, ErrClientConstruction) {
				t.Errorf("Expected ErrClientConstruction, got %v", err)
			}
		})
	}
}

func TestClient_InitializesFromService(t *testing.T) {
	fs := testutil.NewFlagService(t, testKey, flag("test-flag", true))
	c := newTestClient(t, fs)
	waitReady(t, c)

	if !c.Initialized() {
		t.Error("Expected Initialized to be true")
	}
	if c.InitErr() != nil {
		t.Errorf("Expected no init error, got %v", c.InitErr())
	}
	d := c.BoolVariationDetail(testContext(t), "test-flag", false)
	if !d.Value {
		t.Error("Expected flag value true")
	}
	if d.Reason != ReasonMatch {
		t.Errorf("Expected reason %s, got %s", ReasonMatch, d.Reason)
	}
	if d.UsedDefault() {
		t.Error("Expected evaluated value, not default")
	}
	if c.Snapshot().ETag != fs.ETag() {
		t.Errorf("Expected ETag %s, got %s", fs.ETag(), c.Snapshot().ETag)
	}
}

func TestClient_DisabledFlag(t *testing.T) {
	fs := testutil.NewFlagService(t, testKey, flag("test-flag", false))
	c := newTestClient(t, fs)
	waitReady(t, c)

	d := c.BoolVariationDetail(testContext(t), "test-flag", true)
	if d.Value {
		t.Error("Expected disabled flag to evaluate false even with default true")
	}
	if d.Reason != ReasonDisabled {
		t.Errorf("Expected reason %s, got %s", ReasonDisabled, d.Reason)
	}
}

func TestClient_FlagNotFound(t *testing.T) {
	fs := testutil.NewFlagService(t, testKey)
	c := newTestClient(t, fs)
	waitReady(t, c)

	d := c.BoolVariationDetail(testContext(t), "missing", true)
	if !d.Value {
		t.Error("Expected default value true")
	}
	if d.Reason != ReasonFlagNotFound {
		t.Errorf("Expected reason %s, got %s", ReasonFlagNotFound, d.Reason)
	}
}

func TestClient_NotReadyReturnsDefault(t *testing.T) {
	fs := testutil.NewFlagService(t, testKey, flag("test-flag", false))
	fs.FailWith(http.StatusServiceUnavailable)
	c := newTestClient(t, fs)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	if c.WaitForInitialization(ctx) {
		t.Fatal("Expected initialization to time out")
	}
	d := c.BoolVariationDetail(testContext(t), "test-flag", true)
	if !d.Value || d.Reason != ReasonClientNotReady {
		t.Errorf("Expected default true with %s, got %v with %s", ReasonClientNotReady, d.Value, d.Reason)
	}
	if c.InitErr() != nil {
		t.Errorf("Expected no init error while pending, got %v", c.InitErr())
	}
}

func TestClient_RetriesUntilServiceRecovers(t *testing.T) {
	fs := testutil.NewFlagService(t, testKey, flag("test-flag", true))
	fs.FailWith(http.StatusInternalServerError)
	c := newTestClient(t, fs)

	testutil.Eventually(t, 2*time.Second, func() bool { return fs.SnapshotRequests() >= 2 }, "client retries")
	if c.Initialized() {
		t.Fatal("Expected client not initialized while service fails")
	}
	fs.FailWith(0)
	waitReady(t, c)

	if !c.BoolVariation(testContext(t), "test-flag", false) {
		t.Error("Expected flag value true after recovery")
	}
}

func TestClient_Unauthorized(t *testing.T) {
	fs := testutil.NewFlagService(t, "another-key")
	c := newTestClient(t, fs)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if c.WaitForInitialization(ctx) {
		t.Fatal("Expected initialization to fail")
	}
	if !errors.Is(c.InitErr(), ErrUnauthorized) {
		t.Errorf("Expected ErrUnauthorized, got %v", c.InitErr())
	}
	if ctx.Err() != nil {
		t.Error("Expected failure to be reported before the deadline")
	}
}

func TestClient_StreamingUpdate(t *testing.T) {
	fs := testutil.NewFlagService(t, testKey, flag("test-flag", false))
	c := newTestClient(t, fs)
	waitReady(t, c)
	ec := testContext(t)

	if c.BoolVariation(ec, "test-flag", false) {
		t.Fatal("Expected initial value false")
	}
	testutil.Eventually(t, 2*time.Second, func() bool { return fs.StreamConnections() > 0 }, "stream connects")

	fs.SetFlags(flag("test-flag", true))
	testutil.Eventually(t, 2*time.Second, func() bool { return c.BoolVariation(ec, "test-flag", false) }, "update applied")
}

func TestClient_Polling(t *testing.T) {
	fs := testutil.NewFlagService(t, testKey, flag("test-flag", false))
	c := newTestClient(t, fs, WithStreaming(false), WithPollInterval(20*time.Millisecond))
	waitReady(t, c)
	ec := testContext(t)

	fs.SetFlags(flag("test-flag", true))
	testutil.Eventually(t, 2*time.Second, func() bool { return c.BoolVariation(ec, "test-flag", false) }, "poll picks up update")

	if fs.StreamConnections() != 0 {
		t.Errorf("Expected no stream connections in polling mode, got %d", fs.StreamConnections())
	}
}

func TestClient_Subscribe(t *testing.T) {
	fs := testutil.NewFlagService(t, testKey, flag("a", true))
	c := newTestClient(t, fs)
	updates, stop := c.Subscribe()
	defer stop()

	select {
	case etag := <-updates:
		if etag != fs.ETag() {
			t.Errorf("Expected ETag %s, got %s", fs.ETag(), etag)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Expected a snapshot notification")
	}
}

func TestClient_Flags(t *testing.T) {
	fs := testutil.NewFlagService(t, testKey, flag("a", true), flag("b", false))
	c := newTestClient(t, fs)
	waitReady(t, c)

	flags := c.Flags()
	if len(flags) != 2 {
		t.Fatalf("Expected 2 flags, got %d", len(flags))
	}
	delete(flags, "a")
	if _, ok := c.Flags()["a"]; !ok {
		t.Error("Expected Flags to return a copy")
	}
}

func TestClient_CloseBeforeInit(t *testing.T) {
	fs := testutil.NewFlagService(t, testKey)
	fs.FailWith(http.StatusServiceUnavailable)
	c := newTestClient(t, fs)

	if err := c.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if c.WaitForInitialization(context.Background()) {
		t.Error("Expected WaitForInitialization false after Close")
	}
	if !errors.Is(c.InitErr(), ErrClientClosed) {
		t.Errorf("Expected ErrClientClosed, got %v", c.InitErr())
	}
	if err := c.Close(); err != nil {
		t.Errorf("Expected second Close to be a no-op, got %v", err)
	}
}

func TestClient_EvaluatesAfterClose(t *testing.T) {
	fs := testutil.NewFlagService(t, testKey, flag("test-flag", true))
	c := newTestClient(t, fs)
	waitReady(t, c)
	c.Close()

	if !c.BoolVariation(testContext(t), "test-flag", false) {
		t.Error("Expected last snapshot to keep serving after Close")
	}
}

// countingTransport counts the requests sent through it.
type countingTransport struct {
	n atomic.Int32
}

func (c *countingTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	c.n.Add(1)
	return http.DefaultTransport.RoundTrip(r)
}

func TestClient_CustomHTTPClient(t *testing.T) {
	fs := testutil.NewFlagService(t, testKey, flag("test-flag", true))
	rt := &countingTransport{}
	c := newTestClient(t, fs,
		WithHTTPClient(&http.Client{Transport: rt, Timeout: 2 * time.Second}),
		WithStreaming(false),
	)
	waitReady(t, c)

	if rt.n.Load() == 0 {
		t.Error("Expected snapshot requests through the custom HTTP client")
	}
	if !c.BoolVariation(testContext(t), "test-flag", false) {
		t.Error("Expected true, got false")
	}
}
