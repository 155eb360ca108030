package billing

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/ReelPass/internal/pkg/config"
)

// Gateway is the external payment provider.
type Gateway interface {
	Initiate(ctx context.Context, req InitiateRequest) (*InitiateResult, error)
	Verify(ctx context.Context, providerTxID string) (*Verification, error)
}

// HTTPGateway talks to the provider's REST API:
//
//	POST {base}/payments          -> InitiateResult
//	GET  {base}/payments/{txID}   -> Verification
type HTTPGateway struct {
	BaseURL string
	APIKey  string

	// Retries is the number of attempts for Verify, Backoff the delay before
	// the second attempt. The delay doubles after every attempt.
	Retries int
	Backoff time.Duration

	HTTPClient *http.Client
}

func NewHTTPGateway(cfg config.GatewayConfig) *HTTPGateway {
	return &HTTPGateway{
		BaseURL: strings.TrimRight(cfg.BaseURL, "/"),
		APIKey:  cfg.APIKey,
		Retries: cfg.VerifyRetries,
		Backoff: cfg.VerifyBackoff,
		HTTPClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// retryable marks failures worth another attempt: transport errors, 429 and 5xx.
type retryable struct{ err error }

func (r retryable) Error() string { return r.err.Error() }
func (r retryable) Unwrap() error { return r.err }

func (g *HTTPGateway) Initiate(ctx context.Context, req InitiateRequest) (*InitiateResult, error) {
	if g.BaseURL == "" {
		return nil, fmt.Errorf("%w: GATEWAY_BASE_URL is not configured", ErrGatewayUnavailable)
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	var out InitiateResult
	if err := g.do(ctx, http.MethodPost, g.BaseURL+"/payments", body, &out); err != nil {
		var r retryable
		if errors.As(err, &r) {
			return nil, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
		}
		return nil, err
	}
	if out.RedirectLink == "" {
		return nil, errors.New("gateway returned no redirect link")
	}
	if out.ExternalRef == "" {
		out.ExternalRef = req.ExternalRef
	}
	return &out, nil
}

// Verify asks the provider for the state of a transaction, retrying with
// exponential backoff. Exhausted retries return ErrGatewayUnavailable, which
// must never be read as a failed payment.
func (g *HTTPGateway) Verify(ctx context.Context, providerTxID string) (*Verification, error) {
	id := strings.TrimSpace(providerTxID)
	if id == "" {
		return nil, errors.New("provider transaction id is required")
	}
	if g.BaseURL == "" {
		return nil, fmt.Errorf("%w: GATEWAY_BASE_URL is not configured", ErrGatewayUnavailable)
	}

	attempts := max(g.Retries, 1)
	delay := g.Backoff
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		var out Verification
		err := g.do(ctx, http.MethodGet, g.BaseURL+"/payments/"+url.PathEscape(id), nil, &out)
		if err == nil {
			if out.ProviderTxID == "" {
				out.ProviderTxID = id
			}
			return &out, nil
		}
		var r retryable
		if !errors.As(err, &r) {
			return nil, err
		}
		lastErr = err
		if attempt == attempts {
			break
		}

		log.Warnf("[Gateway] verify %s attempt %d/%d failed: %v", id, attempt, attempts, err)
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %v", ErrGatewayUnavailable, ctx.Err())
		case <-time.After(delay):
		}
		delay *= 2
	}
	return nil, fmt.Errorf("%w: %v", ErrGatewayUnavailable, lastErr)
}

func (g *HTTPGateway) do(ctx context.Context, method, u string, body []byte, out interface{}) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if g.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+g.APIKey)
	}

	resp, err := g.HTTPClient.Do(req)
	if err != nil {
		return retryable{err}
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return retryable{fmt.Errorf("gateway request failed: status=%d body=%s", resp.StatusCode, string(raw))}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("gateway request failed: status=%d body=%s", resp.StatusCode, string(raw))
	}
	return json.Unmarshal(raw, out)
}
