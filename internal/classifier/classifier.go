// Package classifier is the HTTP client for the remote sequence classifier.
package classifier

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/ayusman/mudra/internal/features"
)

// DefaultEndpoint is the classifier's conventional local address.
const DefaultEndpoint = "http://127.0.0.1:5000/predict"

// maxErrorBody caps how much of a failed response is kept for logging.
const maxErrorBody = 512

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ErrMalformedResponse is returned when a 2xx body does not carry a usable
// label and confidence.
var ErrMalformedResponse = errors.New("malformed classifier response")

// Result is one classification.
type Result struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"` // percent, 0..100
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("classifier returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("classifier returned status %d: %s", e.StatusCode, e.Message)
}

// Classifier classifies one full window.
type Classifier interface {
	Classify(ctx context.Context, window []features.Vector) (Result, error)
}

// Config configures the HTTP client.
type Config struct {
	Endpoint string
	// Timeout bounds one call. Zero means no client-side timeout.
	Timeout time.Duration
}

// Client posts windows to the classifier endpoint.
type Client struct {
	endpoint string
	http     *http.Client
}

// New creates a Client whose transport is instrumented with otelhttp.
func New(cfg Config) *Client {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	return &Client{
		endpoint: endpoint,
		http: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

// Endpoint returns the configured URL.
func (c *Client) Endpoint() string {
	return c.endpoint
}

type request struct {
	Features []features.Vector `json:"features"`
}

type response struct {
	Label      *string  `json:"label"`
	Confidence *float64 `json:"confidence"`
}

type errorBody struct {
	Error string `json:"error"`
}

// Classify sends the window as {"features": [[126 floats] x N]} and decodes
// {"label", "confidence"}.
func (c *Client) Classify(ctx context.Context, window []features.Vector) (Result, error) {
	body, err := json.Marshal(request{Features: window})
	if err != nil {
		return Result{}, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("post window: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		var eb errorBody
		msg := string(bytes.TrimSpace(raw))
		if json.Unmarshal(raw, &eb) == nil && eb.Error != "" {
			msg = eb.Error
		}
		return Result{}, &StatusError{StatusCode: resp.StatusCode, Message: msg}
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, fmt.Errorf("read response: %w", err)
	}
	return decodeResult(raw)
}

func decodeResult(raw []byte) (Result, error) {
	var r response
	if err := json.Unmarshal(raw, &r); err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if r.Label == nil || *r.Label == "" {
		return Result{}, fmt.Errorf("%w: missing label", ErrMalformedResponse)
	}
	if r.Confidence == nil {
		return Result{}, fmt.Errorf("%w: missing confidence", ErrMalformedResponse)
	}
	if *r.Confidence < 0 || *r.Confidence > 100 {
		return Result{}, fmt.Errorf("%w: confidence %v out of range", ErrMalformedResponse, *r.Confidence)
	}
	return Result{Label: *r.Label, Confidence: *r.Confidence}, nil
}

// Kind classifies a Classify error for metrics: status, malformed, canceled
// or transport. Returns "" for nil.
func Kind(err error) string {
	var se *StatusError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &se):
		return "status"
	case errors.Is(err, ErrMalformedResponse):
		return "malformed"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "transport"
	}
}
