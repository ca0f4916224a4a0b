// Package transport issues HTTP calls to the medassist backends and folds
// every outcome into a Result.
//
// A call is described by a Request (method, path, optional JSON body or
// multipart fields and files, and whether bearer authorization is needed).
// The client arms a per-call timeout, attaches the session token when asked,
// decodes 2xx bodies as JSON, and classifies everything else into an
// *apierr.Error: structured backend errors by their code, unstructured ones by
// HTTP status, and transport failures as network or timeout errors.
//
// The client never retries. Callers that want to can consult
// apierr.Policy on the failure.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/fpang/medassist/internal/apierr"
	"github.com/fpang/medassist/internal/session"
)

// Time budgets per call class.
const (
	WriteTimeout    = 10 * time.Second
	ReadTimeout     = 15 * time.Second
	AnalysisTimeout = 30 * time.Second
)

// maxResponseBytes bounds how much of a response body is read.
const maxResponseBytes = 16 << 20

// RequestIDHeader carries a per-call identifier for backend log correlation.
const RequestIDHeader = "X-Request-ID"

// Client performs calls against one backend base URL.
type Client struct {
	httpClient *http.Client
	baseURL    string
	timeouts   Timeouts
}

// Timeouts overrides the per-class budgets. Zero fields keep the defaults.
type Timeouts struct {
	Read     time.Duration
	Write    time.Duration
	Analysis time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying *http.Client. Its own Timeout should
// be zero or larger than every budget; per-call budgets are enforced through
// the request context.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithTimeouts overrides the default time budgets.
func WithTimeouts(t Timeouts) Option {
	return func(c *Client) {
		if t.Read > 0 {
			c.timeouts.Read = t.Read
		}
		if t.Write > 0 {
			c.timeouts.Write = t.Write
		}
		if t.Analysis > 0 {
			c.timeouts.Analysis = t.Analysis
		}
	}
}

// NewClient creates a transport client for baseURL.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{},
		baseURL:    strings.TrimRight(baseURL, "/"),
		timeouts: Timeouts{
			Read:     ReadTimeout,
			Write:    WriteTimeout,
			Analysis: AnalysisTimeout,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the backend base URL the client was created with.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Class selects a request's time budget.
type Class int

const (
	// ClassAuto picks Read for GET and Write for everything else.
	ClassAuto Class = iota
	ClassRead
	ClassWrite
	ClassAnalysis
)

// Request describes one call.
type Request struct {
	Method string
	Path   string // relative to the base URL, with or without a leading slash
	Query  url.Values

	// At most one of JSON or a multipart body (Fields/Files) is used.
	JSON   any
	Fields map[string]string
	Files  []FilePart

	// Auth requires a bearer token from Session. Without one the call fails
	// with CodeAuthRequired before anything is sent.
	Auth    bool
	Session *session.Session

	Class Class
}

// Call performs req and decodes a 2xx body into T.
func Call[T any](ctx context.Context, c *Client, req Request) Result[T] {
	raw := c.Do(ctx, req)
	body, ok := raw.Value()
	if !ok {
		return Fail[T](raw.Err())
	}
	var out T
	if err := json.Unmarshal(body, &out); err != nil {
		log.Warn().Err(err).Str("path", req.Path).Msg("Undecodable success body")
		return Fail[T](apierr.New(apierr.CodeUnknown, fmt.Errorf("decode response: %w", err)))
	}
	return Ok(out)
}

// Do performs req and returns the raw JSON body of a 2xx response.
// An empty success body is returned as JSON null.
func (c *Client) Do(ctx context.Context, req Request) (result Result[json.RawMessage]) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Str("path", req.Path).Msg("Transport call panicked")
			result = Fail[json.RawMessage](apierr.New(apierr.CodeUnknown, fmt.Errorf("panic: %v", r)))
		}
	}()

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	token := ""
	if req.Auth {
		if !req.Session.Authenticated() {
			log.Debug().Str("path", req.Path).Msg("Call requires a session but none is active")
			return Fail[json.RawMessage](apierr.New(apierr.CodeAuthRequired, nil))
		}
		token = req.Session.BearerToken()
	}

	body, contentType, apiErr := encodeBody(req)
	if apiErr != nil {
		return Fail[json.RawMessage](apiErr)
	}

	timeout := c.budget(method, req.Class)
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	target := c.resolve(req.Path, req.Query)
	httpReq, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return Fail[json.RawMessage](apierr.New(apierr.CodeUnknown, fmt.Errorf("build request: %w", err)))
	}
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}
	httpReq.Header.Set("Accept", "application/json")
	requestID := uuid.NewString()
	httpReq.Header.Set(RequestIDHeader, requestID)
	if token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}

	log.Debug().
		Str("method", method).
		Str("path", req.Path).
		Str("requestId", requestID).
		Dur("timeout", timeout).
		Bool("auth", token != "").
		Msg("API request")

	start := time.Now()
	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		apiErr := classifyTransportError(err)
		log.Warn().
			Err(err).
			Str("path", req.Path).
			Str("code", string(apiErr.Code)).
			Dur("duration", time.Since(start)).
			Msg("API request failed")
		return Fail[json.RawMessage](apiErr)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBytes))
	duration := time.Since(start)
	if err != nil {
		apiErr := classifyTransportError(err)
		log.Warn().Err(err).Str("path", req.Path).Str("code", string(apiErr.Code)).Msg("Failed reading API response")
		return Fail[json.RawMessage](apiErr)
	}

	log.Debug().
		Int("statusCode", httpResp.StatusCode).
		Str("path", req.Path).
		Dur("duration", duration).
		Int("bytes", len(respBody)).
		Msg("API response")

	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		apiErr := classifyResponse(httpResp.StatusCode, respBody)
		log.Warn().
			Int("statusCode", httpResp.StatusCode).
			Str("path", req.Path).
			Str("code", string(apiErr.Code)).
			Str("kind", apiErr.Kind.String()).
			Msg("API error response")
		return Fail[json.RawMessage](apiErr)
	}

	if len(strings.TrimSpace(string(respBody))) == 0 {
		return Ok(json.RawMessage("null"))
	}
	if !json.Valid(respBody) {
		return Fail[json.RawMessage](apierr.New(apierr.CodeUnknown,
			fmt.Errorf("invalid JSON in success response (body: %s)", truncate(string(respBody), 200))))
	}
	return Ok(json.RawMessage(respBody))
}

func (c *Client) budget(method string, class Class) time.Duration {
	switch class {
	case ClassRead:
		return c.timeouts.Read
	case ClassWrite:
		return c.timeouts.Write
	case ClassAnalysis:
		return c.timeouts.Analysis
	}
	if method == http.MethodGet || method == http.MethodHead {
		return c.timeouts.Read
	}
	return c.timeouts.Write
}

// resolve joins the base URL and path. Both "chats" and "/chats" resolve to
// <base>/chats.
func (c *Client) resolve(path string, query url.Values) string {
	target := c.baseURL + "/" + strings.TrimLeft(path, "/")
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	return target
}

// classifyTransportError maps a failure from http.Client.Do or body reading.
// Deadline expiry (our timer or the caller's) is a timeout; everything else,
// including DNS failures and refused connections, is a network error.
func classifyTransportError(err error) *apierr.Error {
	if errors.Is(err, context.DeadlineExceeded) {
		return apierr.New(apierr.CodeTimeout, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return apierr.New(apierr.CodeTimeout, err)
	}
	if errors.Is(err, context.Canceled) {
		return apierr.Newf(apierr.CodeNetwork, err, "The request was cancelled.")
	}
	return apierr.New(apierr.CodeNetwork, err)
}

// truncate returns the first n characters of s, appending "..." if truncated.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
