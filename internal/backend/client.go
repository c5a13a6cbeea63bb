// Package backend is the client for the facility REST API. Every response is a
// {body, error} envelope; failures are classified into the apperr kinds and
// nothing is retried automatically.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/dharsanguruparan/CleanOps/internal/apperr"
)

// Client calls the backend on behalf of one bearer token.
type Client struct {
	http   *resty.Client
	token  string
	logger *zap.Logger
}

// New builds a client rooted at baseURL (for example http://host:4000/api).
func New(baseURL string, timeout time.Duration, logger *zap.Logger) *Client {
	httpClient := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")
	return &Client{http: httpClient, logger: logger}
}

// WithToken returns a client that authenticates as token. The underlying
// connection pool is shared.
func (c *Client) WithToken(token string) *Client {
	clone := *c
	clone.token = token
	return &clone
}

// Token is the bearer token this client sends.
func (c *Client) Token() string {
	return c.token
}

type envelope struct {
	Body    json.RawMessage `json:"body"`
	Error   json.RawMessage `json:"error"`
	Message string          `json:"message"`
}

// errorText returns the envelope's error as text, or "" when absent.
func (e envelope) errorText() string {
	raw := bytes.TrimSpace(e.Error)
	switch string(raw) {
	case "", "null", "false", `""`:
		return ""
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	var obj struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(raw, &obj) == nil && obj.Message != "" {
		return obj.Message
	}
	return string(raw)
}

// call performs one request and decodes the envelope body into out (which may
// be nil). A response without a "body" key is decoded whole.
func (c *Client) call(ctx context.Context, method, path string, query url.Values, payload, out any) error {
	op := method + " " + path
	req := c.http.R().SetContext(ctx)
	if c.token != "" {
		req.SetAuthToken(c.token)
	}
	if len(query) > 0 {
		req.SetQueryParamsFromValues(query)
	}
	if payload != nil {
		req.SetHeader("Content-Type", "application/json").SetBody(payload)
	}
	start := time.Now()
	resp, err := req.Execute(method, path)
	if err != nil {
		c.logger.Warn("backend request failed", zap.String("op", op), zap.Error(err))
		return &apperr.RequestError{Kind: apperr.ErrNetwork, Op: op, Err: err}
	}
	c.logger.Debug("backend request",
		zap.String("op", op),
		zap.Int("status", resp.StatusCode()),
		zap.Duration("elapsed", time.Since(start)),
	)

	raw := resp.Body()
	var env envelope
	hasEnvelope := false
	if len(bytes.TrimSpace(raw)) > 0 {
		var probe map[string]json.RawMessage
		if json.Unmarshal(raw, &probe) == nil {
			_, hasBody := probe["body"]
			_, hasError := probe["error"]
			hasEnvelope = hasBody || hasError
			_ = json.Unmarshal(raw, &env)
		}
	}

	if !resp.IsSuccess() {
		msg := env.errorText()
		if msg == "" {
			msg = env.Message
		}
		if msg == "" {
			msg = http.StatusText(resp.StatusCode())
		}
		kind := apperr.ErrNetwork
		switch resp.StatusCode() {
		case http.StatusUnauthorized, http.StatusForbidden:
			kind = apperr.ErrAuth
		case http.StatusNotFound:
			kind = apperr.ErrNotFound
		}
		return &apperr.RequestError{Kind: kind, Op: op, Status: resp.StatusCode(), Message: msg}
	}
	if msg := env.errorText(); msg != "" {
		return &apperr.RequestError{Kind: apperr.ErrNetwork, Op: op, Status: resp.StatusCode(), Message: msg}
	}
	if out == nil {
		return nil
	}
	body := raw
	if hasEnvelope {
		body = env.Body
	}
	if len(bytes.TrimSpace(body)) == 0 || string(bytes.TrimSpace(body)) == "null" {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &apperr.RequestError{Kind: apperr.ErrNetwork, Op: op, Status: resp.StatusCode(), Message: "unexpected response shape", Err: err}
	}
	return nil
}

// get decodes a list endpoint.
func get[T any](ctx context.Context, c *Client, path string, query url.Values) ([]T, error) {
	var out []T
	if err := c.call(ctx, http.MethodGet, path, query, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// getOne decodes a by-id endpoint. The backend answers with either an object
// or a one-element array; an empty array means not found.
func getOne[T any](ctx context.Context, c *Client, path string) (T, error) {
	var zero T
	var raw json.RawMessage
	if err := c.call(ctx, http.MethodGet, path, nil, nil, &raw); err != nil {
		return zero, err
	}
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return zero, &apperr.RequestError{Kind: apperr.ErrNotFound, Op: "GET " + path}
	}
	if trimmed[0] == '[' {
		var list []T
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return zero, &apperr.RequestError{Kind: apperr.ErrNetwork, Op: "GET " + path, Message: "unexpected response shape", Err: err}
		}
		if len(list) == 0 {
			return zero, &apperr.RequestError{Kind: apperr.ErrNotFound, Op: "GET " + path}
		}
		return list[0], nil
	}
	var item T
	if err := json.Unmarshal(trimmed, &item); err != nil {
		return zero, &apperr.RequestError{Kind: apperr.ErrNetwork, Op: "GET " + path, Message: "unexpected response shape", Err: err}
	}
	return item, nil
}

// IsNotFound reports whether err means the record does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, apperr.ErrNotFound)
}

func pathf(format string, args ...any) string {
	return fmt.Sprintf(format, args...)
}
