package verify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/lead-extractor/internal/phone"
)

type checkRequest struct {
	Numbers []string `json:"numbers"`
}

func mobiles(n int) []phone.CanonicalNumber {
	out := make([]phone.CanonicalNumber, n)
	for i := range out {
		out[i] = phone.CanonicalNumber(fmt.Sprintf("+55119%08d", 10000000+i))
	}
	return out
}

// echoHandler confirms every number the verdict function approves, echoing
// the received digits back in the top-level-list shape.
func echoHandler(t *testing.T, confirm func(digits string) bool) http.HandlerFunc {
	t.Helper()
	return func(w http.ResponseWriter, r *http.Request) {
		var req checkRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		rows := make([]map[string]any, 0, len(req.Numbers))
		for _, d := range req.Numbers {
			rows = append(rows, map[string]any{"query": d, "isInWhatsapp": confirm(d)})
		}
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(rows))
	}
}

func newTestClient(t *testing.T, srv *httptest.Server, cfg Config) *Client {
	t.Helper()
	cfg.Endpoint = srv.URL
	if cfg.Token == "" {
		cfg.Token = "test-token"
	}
	return New(cfg, phone.NewNormalizer("55"), WithHTTPClient(srv.Client()))
}

func TestVerify_PartitionsConfirmedAndRejected(t *testing.T) {
	input := mobiles(10)
	confirmed := map[string]bool{
		input[0].Digits(): true,
		input[4].Digits(): true,
	}
	srv := httptest.NewServer(echoHandler(t, func(d string) bool { return confirmed[d] }))
	defer srv.Close()

	c := newTestClient(t, srv, Config{})
	res := c.Verify(context.Background(), input)

	assert.True(t, res.IsConfirmed(input[0]))
	assert.True(t, res.IsConfirmed(input[4]))
	assert.Len(t, res.Confirmed, 2)
	assert.Len(t, res.Rejected, 8)
	assert.Empty(t, res.Unknown)
	assert.Equal(t, 10, res.Metrics.Sent)
	assert.Equal(t, 1, res.Metrics.SucceededChunks)
}

func TestVerify_FailedChunkDegradesToUnknown(t *testing.T) {
	input := mobiles(120)
	// Fail any chunk containing the first number; the other chunks succeed.
	poison := input[0].Digits()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req checkRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		rows := make([]map[string]any, 0, len(req.Numbers))
		for _, d := range req.Numbers {
			if d == poison {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			rows = append(rows, map[string]any{"query": d, "isInWhatsapp": true})
		}
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(rows))
	}))
	defer srv.Close()

	c := newTestClient(t, srv, Config{ChunkSize: 50, MaxAttempts: 1})
	res := c.Verify(context.Background(), input)

	// Three chunks of 50/50/20; only the poisoned one degrades.
	assert.Equal(t, 1, res.Metrics.FailedChunks)
	assert.Equal(t, 2, res.Metrics.SucceededChunks)
	assert.Equal(t, 120, res.Metrics.Sent)
	assert.Len(t, res.Unknown, 50)
	assert.Len(t, res.Confirmed, 70)

	// The partition covers the input exactly.
	assert.Equal(t, len(input), len(res.Confirmed)+len(res.Rejected)+len(res.Unknown))
}

func TestVerify_RetriesTransientFailure(t *testing.T) {
	input := mobiles(3)
	var hits atomic.Int32

	// The whole first attempt fails: every header variant sees a 503.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) <= 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		echoHandler(t, func(string) bool { return true })(w, r)
	}))
	defer srv.Close()

	c := newTestClient(t, srv, Config{MaxAttempts: 3})
	c.policy.InitialBackoff = time.Millisecond

	res := c.Verify(context.Background(), input)
	assert.Len(t, res.Confirmed, 3)
	assert.Zero(t, res.Metrics.FailedChunks)
}

func TestVerify_ProbesHeaderVariants(t *testing.T) {
	input := mobiles(2)
	var sawSchemes []string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Header.Get("apikey") == "secret":
			sawSchemes = append(sawSchemes, "apikey")
			echoHandler(t, func(string) bool { return true })(w, r)
		default:
			if r.Header.Get("token") != "" {
				sawSchemes = append(sawSchemes, "token")
			}
			w.WriteHeader(http.StatusUnauthorized)
		}
	}))
	defer srv.Close()

	c := newTestClient(t, srv, Config{Token: "secret", Concurrency: 1})
	res := c.Verify(context.Background(), input)

	assert.Len(t, res.Confirmed, 2)
	// The "token" scheme is probed first and rejected before "apikey" lands.
	assert.Equal(t, []string{"token", "apikey"}, sawSchemes)
}

func TestVerify_UnconfiguredTreatsAllAsNotReachable(t *testing.T) {
	input := mobiles(5)
	c := New(Config{}, phone.NewNormalizer("55"))

	require.False(t, c.Configured())
	res := c.Verify(context.Background(), input)

	assert.Empty(t, res.Confirmed)
	assert.Equal(t, input, res.Rejected)
	assert.Empty(t, res.Unknown)
	assert.Zero(t, res.Metrics.Sent)
}

func TestVerify_EmptyVerdictListRejectsChunk(t *testing.T) {
	input := mobiles(2)
	var hits atomic.Int32

	// A 2xx with an empty list is a complete answer: nobody is reachable.
	// It must not be retried or counted as a chunk failure.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte("[]"))
	}))
	defer srv.Close()

	c := newTestClient(t, srv, Config{MaxAttempts: 2})
	res := c.Verify(context.Background(), input)

	assert.Empty(t, res.Confirmed)
	assert.Equal(t, input, res.Rejected)
	assert.Empty(t, res.Unknown)
	assert.Zero(t, res.Metrics.FailedChunks)
	assert.Equal(t, 1, res.Metrics.SucceededChunks)
	assert.Equal(t, int32(1), hits.Load(), "a valid empty reply must stop at the first header variant")
}

func TestVerify_EmptyInput(t *testing.T) {
	c := New(Config{Endpoint: "http://unused", Token: "x"}, phone.NewNormalizer("55"))
	res := c.Verify(context.Background(), nil)

	assert.Empty(t, res.Confirmed)
	assert.Empty(t, res.Rejected)
	assert.Empty(t, res.Unknown)
}

func TestVerify_MissingEchoMeansRejected(t *testing.T) {
	input := mobiles(2)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req checkRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		// Echo only the first number back.
		rows := []map[string]any{{"query": req.Numbers[0], "isInWhatsapp": true}}
		require.NoError(t, json.NewEncoder(w).Encode(rows))
	}))
	defer srv.Close()

	c := newTestClient(t, srv, Config{})
	res := c.Verify(context.Background(), input)

	assert.True(t, res.IsConfirmed(input[0]))
	assert.Equal(t, []phone.CanonicalNumber{input[1]}, res.Rejected)
}

func TestChunkNumbers(t *testing.T) {
	input := mobiles(7)

	chunks := chunkNumbers(input, 3)
	require.Len(t, chunks, 3)
	assert.Len(t, chunks[0], 3)
	assert.Len(t, chunks[1], 3)
	assert.Len(t, chunks[2], 1)

	assert.Len(t, chunkNumbers(input, 10), 1)
	assert.Nil(t, chunkNumbers(nil, 10))
}
