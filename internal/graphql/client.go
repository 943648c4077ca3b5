// Package graphql executes catalog operations against the GraphQL backend.
// Each Invoke validates its arguments and performs at most one HTTP request.
package graphql

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/vektah/gqlparser/v2/gqlerror"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/triage-ai/graphql-mcp/internal/catalog"
	"github.com/triage-ai/graphql-mcp/internal/toolerr"
)

// DefaultTimeout bounds a single backend call when Config.Timeout is zero.
const DefaultTimeout = 15 * time.Second

// maxResponseBytes caps how much of a backend response is read.
const maxResponseBytes = 32 << 20

// Config configures a Client.
type Config struct {
	Endpoint string
	// AuthToken is sent as "Authorization: Bearer <token>" when set.
	AuthToken string
	Headers   map[string]string
	Timeout   time.Duration
	// RateLimit caps backend calls per second. Zero disables limiting.
	RateLimit float64
	// HTTPClient defaults to a client without its own timeout; Timeout applies per call.
	HTTPClient *http.Client
	// Observer, when set, is told about every completed backend call.
	Observer Observer
}

// Observer receives one notification per backend call.
type Observer interface {
	ObserveBackendCall(operation string, outcome toolerr.Kind, elapsed time.Duration)
}

// Result is the decoded data of a successful invocation. Data holds the value
// of the operation's root field.
type Result struct {
	Operation string
	Data      json.RawMessage
}

// Client is safe for concurrent use.
type Client struct {
	endpoint string
	headers  http.Header
	timeout  time.Duration
	http     *http.Client
	limiter  *rate.Limiter
	observer Observer
	logger   *zap.Logger
}

// NewClient returns a Client for cfg.Endpoint.
func NewClient(cfg Config, logger *zap.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return nil, fmt.Errorf("NewClient: endpoint is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	headers := make(http.Header)
	headers.Set("Content-Type", "application/json")
	headers.Set("Accept", "application/json")
	for k, v := range cfg.Headers {
		headers.Set(k, v)
	}
	if cfg.AuthToken != "" {
		headers.Set("Authorization", "Bearer "+cfg.AuthToken)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}

	c := &Client{
		endpoint: cfg.Endpoint,
		headers:  headers,
		timeout:  timeout,
		http:     hc,
		observer: cfg.Observer,
		logger:   logger,
	}
	if cfg.RateLimit > 0 {
		burst := int(cfg.RateLimit)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	return c, nil
}

// Invoke validates args against desc and executes its document once.
// Validation failures never reach the network.
func (c *Client) Invoke(ctx context.Context, desc *catalog.OperationDescriptor, args map[string]any) (*Result, error) {
	if err := desc.ValidateArguments(args); err != nil {
		return nil, err
	}

	start := time.Now()
	data, err := c.execute(ctx, desc, args)
	elapsed := time.Since(start)
	if c.observer != nil {
		outcome := toolerr.Kind("")
		if err != nil {
			outcome = toolerr.KindOf(err)
		}
		c.observer.ObserveBackendCall(desc.Name, outcome, elapsed)
	}
	if err != nil {
		c.logger.Debug("backend call failed",
			zap.String("operation", desc.Name),
			zap.Duration("elapsed", elapsed),
			zap.Error(err),
		)
		return nil, err
	}
	return &Result{Operation: desc.Name, Data: data}, nil
}

type request struct {
	Query         string         `json:"query"`
	OperationName string         `json:"operationName,omitempty"`
	Variables     map[string]any `json:"variables,omitempty"`
}

type response struct {
	Data   map[string]json.RawMessage `json:"data"`
	Errors gqlerror.List              `json:"errors"`
}

func (c *Client) execute(ctx context.Context, desc *catalog.OperationDescriptor, args map[string]any) (json.RawMessage, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, toolerr.Wrap(toolerr.KindTransport, err, "rate limiter wait aborted")
		}
	}

	body, err := json.Marshal(request{Query: desc.Document, OperationName: desc.OperationName, Variables: args})
	if err != nil {
		return nil, toolerr.Wrap(toolerr.KindValidation, err, "arguments are not JSON encodable")
	}

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, toolerr.Wrap(toolerr.KindInternal, err, "build backend request")
	}
	req.Header = c.headers.Clone()

	countCall(ctx)
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, transportError(err, c.timeout)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, transportError(err, c.timeout)
	}

	var out response
	decodeErr := json.Unmarshal(raw, &out)
	if decodeErr == nil && len(out.Errors) > 0 {
		return nil, backendError(out.Errors)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, toolerr.Backend(fmt.Sprintf("HTTP_%d", resp.StatusCode), fmt.Sprintf("backend responded %s", resp.Status))
	}
	if decodeErr != nil {
		return nil, toolerr.Wrap(toolerr.KindTransport, decodeErr, "backend response is not valid GraphQL JSON")
	}

	data, ok := out.Data[desc.Name]
	if !ok {
		return nil, toolerr.Newf(toolerr.KindTransport, "backend response has no data for %q", desc.Name)
	}
	return data, nil
}

func transportError(err error, timeout time.Duration) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return toolerr.Wrap(toolerr.KindTransport, err, fmt.Sprintf("backend call timed out after %s", timeout))
	case errors.Is(err, context.Canceled):
		return toolerr.Wrap(toolerr.KindTransport, err, "backend call cancelled")
	}
	return toolerr.Wrap(toolerr.KindTransport, err, "backend unreachable")
}

// backendError maps GraphQL errors to a BackendError carrying the first
// extensions.code and every message.
func backendError(errs gqlerror.List) error {
	var code string
	msgs := make([]string, 0, len(errs))
	for _, e := range errs {
		if e == nil {
			continue
		}
		msgs = append(msgs, e.Message)
		if code == "" {
			if c, ok := e.Extensions["code"].(string); ok {
				code = c
			}
		}
	}
	if code == "" {
		code = "GRAPHQL_ERROR"
	}
	return toolerr.Backend(code, strings.Join(msgs, "; "))
}

type callCounterKey struct{}

// WithCallCounter returns a context that counts backend calls made with it.
func WithCallCounter(ctx context.Context) (context.Context, *atomic.Int64) {
	n := new(atomic.Int64)
	return context.WithValue(ctx, callCounterKey{}, n), n
}

func countCall(ctx context.Context) {
	if n, ok := ctx.Value(callCounterKey{}).(*atomic.Int64); ok {
		n.Add(1)
	}
}
