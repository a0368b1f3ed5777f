// Package engine provides the HTTP client for the external Monte Carlo
// simulation engine.
package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/Strob0t/simgate/internal/domain/simulation"
	engineport "github.com/Strob0t/simgate/internal/port/engine"
	"github.com/Strob0t/simgate/internal/resilience"
)

const maxResponseBytes = 32 << 20

var _ engineport.Engine = (*Client)(nil)

// Client calls POST {baseURL}/simulate and classifies every failure.
type Client struct {
	baseURL    string
	apiKey     string
	keySource  func() string
	httpClient *http.Client
	breaker    *resilience.Breaker
}

// NewClient creates an engine client. The timeout bounds a whole call; the
// gateway does not retry.
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// SetBreaker attaches a circuit breaker to all engine calls.
func (c *Client) SetBreaker(b *resilience.Breaker) {
	c.breaker = b
}

// SetKeySource makes every call read the bearer token from fn, so a rotated
// credential is picked up without a restart. An empty value falls back to the
// key given to NewClient.
func (c *Client) SetKeySource(fn func() string) {
	c.keySource = fn
}

// callError is a classified failure produced inside a breaker call.
type callError struct {
	kind    simulation.ErrorKind
	message string
	details map[string]any
}

func (e *callError) Error() string { return string(e.kind) + ": " + e.message }

// engineFault reports whether err says something about engine health.
// Caller input problems and undecodable bodies do not trip the breaker.
func engineFault(err error) bool {
	var ce *callError
	if !errors.As(err, &ce) {
		return true
	}
	switch ce.kind {
	case simulation.KindEngineUnreachable, simulation.KindEngineTimeout, simulation.KindEngineInternal:
		return true
	}
	return false
}

type errorEnvelope struct {
	Success *bool `json:"success"`
	Error   *struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details,omitempty"`
	} `json:"error"`
}

// Run sends req to the engine and returns its outcome.
func (c *Client) Run(ctx context.Context, req *simulation.Request) simulation.Outcome {
	body, err := json.Marshal(req)
	if err != nil {
		return simulation.Err(simulation.KindInputMalformed, fmt.Sprintf("encode request: %v", err), nil)
	}

	var res *simulation.Result
	call := func() error {
		r, err := c.post(ctx, "/simulate", body)
		res = r
		return err
	}

	if c.breaker != nil {
		err = c.breaker.Execute(call, engineFault)
	} else {
		err = call()
	}

	if err != nil {
		return classify(err)
	}
	return simulation.Ok(res)
}

func (c *Client) post(ctx context.Context, path string, body []byte) (*simulation.Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, &callError{kind: simulation.KindUnknown, message: fmt.Sprintf("create request: %v", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	if key := c.bearer(); key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, transportError(err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, transportError(err)
	}

	var env errorEnvelope
	envErr := json.Unmarshal(data, &env)

	if env.Error != nil {
		kind := simulation.KindFromCode(env.Error.Code)
		if kind == simulation.KindUnknown && resp.StatusCode >= 500 {
			kind = simulation.KindEngineInternal
		}
		msg := env.Error.Message
		if msg == "" {
			msg = env.Error.Code
		}
		return nil, &callError{kind: kind, message: msg, details: env.Error.Details}
	}

	switch {
	case resp.StatusCode >= 500:
		return nil, &callError{
			kind:    simulation.KindEngineInternal,
			message: fmt.Sprintf("engine returned %d", resp.StatusCode),
			details: map[string]any{"status": resp.StatusCode},
		}
	case resp.StatusCode >= 400:
		return nil, &callError{
			kind:    simulation.KindUnknown,
			message: fmt.Sprintf("engine rejected request with %d: %s", resp.StatusCode, truncate(data, 200)),
			details: map[string]any{"status": resp.StatusCode},
		}
	}

	if envErr != nil {
		return nil, &callError{kind: simulation.KindParseFailure, message: fmt.Sprintf("decode engine response: %v", envErr)}
	}
	if env.Success != nil && !*env.Success {
		return nil, &callError{kind: simulation.KindUnknown, message: "engine reported failure without an error"}
	}

	var res simulation.Result
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, &callError{kind: simulation.KindParseFailure, message: fmt.Sprintf("decode engine result: %v", err)}
	}
	res.Success = true
	if res.RunID == "" {
		res.RunID = uuid.NewString()
	}
	return &res, nil
}

// transportError classifies a failure to reach or hear back from the engine.
func (c *Client) bearer() string {
	if c.keySource != nil {
		if k := c.keySource(); k != "" {
			return k
		}
	}
	return c.apiKey
}

func transportError(err error) error {
	var ne net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.As(err, &ne) && ne.Timeout():
		return &callError{kind: simulation.KindEngineTimeout, message: "engine did not respond in time"}
	case errors.Is(err, syscall.ECONNREFUSED), errors.Is(err, syscall.ECONNRESET), isDNSError(err):
		return &callError{kind: simulation.KindEngineUnreachable, message: "engine is unreachable", details: map[string]any{"cause": err.Error()}}
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return &callError{kind: simulation.KindEngineUnreachable, message: "engine is unreachable", details: map[string]any{"cause": err.Error()}}
	}
	return &callError{kind: simulation.KindUnknown, message: err.Error()}
}

func isDNSError(err error) bool {
	var dnsErr *net.DNSError
	return errors.As(err, &dnsErr)
}

func classify(err error) simulation.Outcome {
	if errors.Is(err, resilience.ErrCircuitOpen) {
		return simulation.Err(simulation.KindEngineUnreachable, "engine temporarily unavailable", map[string]any{"breaker": "open"})
	}
	var ce *callError
	if errors.As(err, &ce) {
		return simulation.Err(ce.kind, ce.message, ce.details)
	}
	return simulation.Err(simulation.KindUnknown, err.Error(), nil)
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
