// Package classifier holds the HTTP clients for the external
// classification services. One client per kind; all clients share an
// http.Client with a hard timeout and a process-wide concurrency limiter
// so a burst of media-heavy notes cannot exhaust local sockets or the
// remote service.
package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/c360/relaybridge/errors"
	"github.com/c360/relaybridge/pkg/retry"
)

// MaxInFlight bounds concurrent classifier calls across the whole process.
const MaxInFlight = 10

// RequestTimeout is the hard per-request bound. Retry and backoff limit
// attempt count; this limits how long a single stuck call can hang.
const RequestTimeout = 10 * time.Second

// NewLimiter creates the process-wide classifier concurrency limiter.
// One instance is shared by every client.
func NewLimiter() *semaphore.Weighted {
	return semaphore.NewWeighted(MaxInFlight)
}

// NewHTTPClient creates the shared HTTP client for classifier calls.
func NewHTTPClient() *http.Client {
	return &http.Client{Timeout: RequestTimeout}
}

// core is the shared request machinery embedded by each typed client.
type core struct {
	endpoint   string
	token      string
	httpClient *http.Client
	sem        *semaphore.Weighted
	retryCfg   retry.Config
}

func newCore(endpoint, token string, httpClient *http.Client, sem *semaphore.Weighted) core {
	return core{
		endpoint:   endpoint,
		token:      token,
		httpClient: httpClient,
		sem:        sem,
		retryCfg:   retry.Classifier(),
	}
}

// textRequest is the body shape shared by the text classifiers.
type textRequest struct {
	Q      string `json:"q"`
	APIKey string `json:"api_key"`
}

// post sends body as JSON and decodes the response into out, holding a
// limiter slot for the duration of all attempts. bearer selects the
// Authorization header scheme used by the media-safety service.
func (c *core) post(ctx context.Context, body any, bearer bool, out any) error {
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return errors.WrapTransient(err, "classifier", "post", "acquiring limiter slot")
	}
	defer c.sem.Release(1)

	payload, err := json.Marshal(body)
	if err != nil {
		return errors.WrapInvalid(err, "classifier", "post", "encoding request")
	}

	return retry.Do(ctx, c.retryCfg, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
		if err != nil {
			return retry.NonRetryable(errors.WrapInvalid(err, "classifier", "post", "building request"))
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
		if bearer && c.token != "" {
			req.Header.Set("Authorization", "Bearer "+c.token)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return errors.WrapTransient(err, "classifier", "post", "sending request")
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			io.Copy(io.Discard, resp.Body)
			return errors.WrapTransient(
				fmt.Errorf("unexpected status %d", resp.StatusCode),
				"classifier", "post", "checking response")
		}

		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return errors.WrapTransient(err, "classifier", "post", "decoding response")
		}
		return nil
	})
}
