// Package verify confirms which candidate numbers are reachable on the
// messaging platform, via a remote check API with a loosely-specified
// contract. Chunk failures degrade to "unknown"; the package never surfaces
// an error past its boundary.
package verify

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/lead-extractor/internal/phone"
	"github.com/sells-group/lead-extractor/internal/resilience"
)

// Config controls the verification client.
type Config struct {
	// Endpoint is the full check URL. Empty disables verification: every
	// input number is treated as not reachable (documented degrade, not an
	// error).
	Endpoint string
	// Token authenticates against the API. The header scheme varies by
	// deployment, so each request probes the known variants.
	Token string
	// ChunkSize bounds numbers per remote call. Default 80.
	ChunkSize int
	// Concurrency bounds in-flight remote calls. Default 3.
	Concurrency int
	// MaxAttempts bounds retries per chunk. Default 3.
	MaxAttempts int
	// Timeout bounds one remote call. Default 20s.
	Timeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.ChunkSize <= 0 {
		c.ChunkSize = 80
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 3
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.Timeout <= 0 {
		c.Timeout = 20 * time.Second
	}
	return c
}

// Metrics aggregates one verification pass.
type Metrics struct {
	Sent            int
	SucceededChunks int
	FailedChunks    int
}

// Result partitions one pass's input: confirmed reachable, definitively not
// reachable, and unknown (verification could not complete). The three sets
// together cover the input exactly.
type Result struct {
	Confirmed map[phone.CanonicalNumber]struct{}
	Rejected  []phone.CanonicalNumber
	Unknown   []phone.CanonicalNumber
	Metrics   Metrics
}

// IsConfirmed reports whether n was confirmed reachable in this pass.
func (r *Result) IsConfirmed(n phone.CanonicalNumber) bool {
	_, ok := r.Confirmed[n]
	return ok
}

// headerVariants are the authentication schemes probed in order. The remote
// deployments disagree on which one they expect.
var headerVariants = []func(h http.Header, token string){
	func(h http.Header, token string) { h.Set("token", token) },
	func(h http.Header, token string) { h.Set("apikey", token) },
	func(h http.Header, token string) { h.Set("Authorization", "Bearer "+token) },
}

// Client verifies candidate batches against the remote check API.
type Client struct {
	cfg     Config
	norm    *phone.Normalizer
	http    *http.Client
	policy  resilience.Policy
	breaker *breaker
}

// Option configures the Client.
type Option func(*Client)

// WithHTTPClient overrides the transport, for tests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// New creates a verification client. The normalizer is used to reconcile
// echoed query values back to canonical numbers.
func New(cfg Config, norm *phone.Normalizer, opts ...Option) *Client {
	cfg = cfg.withDefaults()
	c := &Client{
		cfg:  cfg,
		norm: norm,
		http: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		policy: resilience.Policy{
			MaxAttempts:    cfg.MaxAttempts,
			InitialBackoff: 1 * time.Second,
			MaxBackoff:     10 * time.Second,
			Multiplier:     2.0,
			JitterFraction: 0.25,
			OnRetry:        resilience.RetryLogger("verify", "check_chunk"),
		},
		breaker: newBreaker(3, 30*time.Second, 60*time.Second),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Configured reports whether the client has an endpoint and credentials.
func (c *Client) Configured() bool {
	return c.cfg.Endpoint != "" && c.cfg.Token != ""
}

// Verify partitions numbers into confirmed, rejected, and unknown. Chunks
// are dispatched through a bounded worker pool; a chunk that exhausts its
// retries contributes its numbers to unknown and never aborts the pass.
// Verify never returns an error: total remote failure degrades to an empty
// confirmed set.
func (c *Client) Verify(ctx context.Context, numbers []phone.CanonicalNumber) *Result {
	res := &Result{Confirmed: make(map[phone.CanonicalNumber]struct{})}
	if len(numbers) == 0 {
		return res
	}

	if !c.Configured() {
		zap.L().Warn("verify: endpoint or token not configured, treating numbers as not reachable",
			zap.Int("count", len(numbers)),
		)
		res.Rejected = append(res.Rejected, numbers...)
		return res
	}

	chunks := chunkNumbers(numbers, c.cfg.ChunkSize)

	var mu sync.Mutex
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.Concurrency)

	for _, chunk := range chunks {
		g.Go(func() error {
			verdicts, err := c.verifyChunk(gCtx, chunk)

			// Merge under the caller-held lock; workers share no other state.
			mu.Lock()
			defer mu.Unlock()
			res.Metrics.Sent += len(chunk)
			if err != nil {
				res.Metrics.FailedChunks++
				res.Unknown = append(res.Unknown, chunk...)
				zap.L().Warn("verify: chunk failed after retries",
					zap.Int("size", len(chunk)),
					zap.Error(err),
				)
				return nil
			}
			res.Metrics.SucceededChunks++
			for _, n := range chunk {
				if verdicts[n] {
					res.Confirmed[n] = struct{}{}
				} else {
					res.Rejected = append(res.Rejected, n)
				}
			}
			return nil
		})
	}
	_ = g.Wait()

	zap.L().Info("verify: pass complete",
		zap.Int("sent", res.Metrics.Sent),
		zap.Int("confirmed", len(res.Confirmed)),
		zap.Int("rejected", len(res.Rejected)),
		zap.Int("unknown", len(res.Unknown)),
		zap.Int("failed_chunks", res.Metrics.FailedChunks),
	)
	return res
}

// verifyChunk runs one chunk through the retry policy and the circuit
// breaker. The returned map is keyed by canonical number with the
// reachability flag; absent keys mean the remote did not echo the number
// back (treated as not reachable, matching the remote's semantics).
func (c *Client) verifyChunk(ctx context.Context, chunk []phone.CanonicalNumber) (map[phone.CanonicalNumber]bool, error) {
	if c.breaker.open() {
		return nil, eris.New("verify: circuit breaker open")
	}

	verdicts, err := resilience.DoVal(ctx, c.policy, func(ctx context.Context) (map[phone.CanonicalNumber]bool, error) {
		return c.callOnce(ctx, chunk)
	})
	if err != nil {
		c.breaker.recordFailure()
		return nil, err
	}
	c.breaker.recordSuccess()
	return verdicts, nil
}

// callOnce makes one remote attempt, probing each header variant in order.
// A non-2xx status, unreadable body, or unrecognizable shape moves on to the
// next variant; only when every variant fails does the attempt error.
func (c *Client) callOnce(ctx context.Context, chunk []phone.CanonicalNumber) (map[phone.CanonicalNumber]bool, error) {
	digits := make([]string, 0, len(chunk))
	for _, n := range chunk {
		digits = append(digits, n.Digits())
	}
	body, err := json.Marshal(map[string][]string{"numbers": digits})
	if err != nil {
		return nil, eris.Wrap(err, "verify: marshal request")
	}

	var lastErr error
	for _, setAuth := range headerVariants {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(body))
		if err != nil {
			return nil, eris.Wrap(err, "verify: create request")
		}
		req.Header.Set("Content-Type", "application/json")
		setAuth(req.Header, c.cfg.Token)

		resp, err := c.http.Do(req)
		if err != nil {
			lastErr = eris.Wrap(err, "verify: request failed")
			continue
		}
		respBody, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			lastErr = eris.Wrap(readErr, "verify: read response")
			continue
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			lastErr = resilience.NewTransientError(
				eris.Errorf("verify: status %d", resp.StatusCode), resp.StatusCode)
			continue
		}

		rows := parseVerdicts(respBody)
		if rows == nil {
			lastErr = resilience.NewTransientError(
				eris.New("verify: unrecognized response shape"), resp.StatusCode)
			continue
		}
		return c.reconcile(rows), nil
	}

	if lastErr == nil {
		lastErr = eris.New("verify: no header variant accepted")
	}
	return nil, lastErr
}

// reconcile matches rows back to canonical numbers by re-normalizing the
// echoed query value. The remote does not guarantee row order, so position
// is never used.
func (c *Client) reconcile(rows []verdictRow) map[phone.CanonicalNumber]bool {
	out := make(map[phone.CanonicalNumber]bool, len(rows))
	for _, row := range rows {
		num, ok := c.norm.Normalize(row.echo)
		if !ok {
			// The echo didn't survive normalization; fall back to the raw
			// digits so an exact echo still matches.
			num = phone.FromDigits(row.echo)
		}
		out[num] = row.reachable
	}
	return out
}

func chunkNumbers(numbers []phone.CanonicalNumber, size int) [][]phone.CanonicalNumber {
	var chunks [][]phone.CanonicalNumber
	for start := 0; start < len(numbers); start += size {
		end := min(start+size, len(numbers))
		chunks = append(chunks, numbers[start:end])
	}
	return chunks
}
