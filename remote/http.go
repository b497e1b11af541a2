package remote

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dayplan/plancache/errors"
)

// maxResponseBytes caps how much of a backend response we will buffer.
const maxResponseBytes = 8 << 20

// RequestDecorator mutates an outgoing request before it is sent. The usual
// use is injecting an Authorization header; the cache itself never interprets
// credentials.
type RequestDecorator func(*http.Request)

// HTTPSource talks to the hosted planner backend over REST. Collections map
// to paths: GET /collection?query for reads, POST/PATCH/DELETE /collection
// for mutations with the record in the body.
type HTTPSource struct {
	baseURL   string
	client    *http.Client
	timeout   time.Duration
	decorator RequestDecorator
}

// HTTPOption configures an HTTPSource.
type HTTPOption func(*HTTPSource)

// WithRequestDecorator sets a hook applied to every outgoing request.
func WithRequestDecorator(d RequestDecorator) HTTPOption {
	return func(s *HTTPSource) {
		s.decorator = d
	}
}

// WithHTTPClient overrides the underlying client. Tests use this to point at
// httptest servers with custom transports.
func WithHTTPClient(client *http.Client) HTTPOption {
	return func(s *HTTPSource) {
		if client != nil {
			s.client = client
		}
	}
}

// NewHTTPSource creates a REST source against baseURL. Every request is
// bounded by timeout on top of whatever deadline the caller's context carries.
func NewHTTPSource(baseURL string, timeout time.Duration, options ...HTTPOption) (*HTTPSource, error) {
	if baseURL == "" {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "remote", "NewHTTPSource",
			"baseURL cannot be empty")
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "remote", "NewHTTPSource",
			fmt.Sprintf("baseURL %q", baseURL))
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	s := &HTTPSource{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{},
		timeout: timeout,
	}
	for _, opt := range options {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}

// Fetch implements Source.
func (s *HTTPSource) Fetch(ctx context.Context, collection, query string) ([]byte, error) {
	if collection == "" {
		return nil, errors.WrapInvalid(errors.ErrInvalidData, "remote", "Fetch",
			"collection cannot be empty")
	}

	target := s.baseURL + "/" + url.PathEscape(collection)
	if query != "" {
		target += "?" + query
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, errors.WrapInvalid(err, "remote", "Fetch", "building request")
	}
	req.Header.Set("Accept", "application/json")
	if s.decorator != nil {
		s.decorator(req)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		if stderrors.Is(err, context.DeadlineExceeded) {
			return nil, errors.WrapTransient(errors.ErrFetchTimeout, "remote", "Fetch",
				fmt.Sprintf("GET %s after %v", collection, s.timeout))
		}
		return nil, errors.WrapTransient(
			fmt.Errorf("%w: %w", errors.ErrRemoteFetch, err),
			"remote", "Fetch", "GET "+collection)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, errors.WrapTransient(
			fmt.Errorf("%w: reading body: %w", errors.ErrRemoteFetch, err),
			"remote", "Fetch", "GET "+collection)
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return body, nil
	case resp.StatusCode >= 500:
		return nil, errors.WrapTransient(
			fmt.Errorf("%w: status %d", errors.ErrRemoteFetch, resp.StatusCode),
			"remote", "Fetch", "GET "+collection)
	default:
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: status %d", errors.ErrRemoteFetch, resp.StatusCode),
			"remote", "Fetch", "GET "+collection)
	}
}

// Mutate implements Source. The record travels in the body for all three
// operation kinds; the backend resolves the target record from the payload.
func (s *HTTPSource) Mutate(ctx context.Context, collection string, op OperationType, payload []byte) ([]byte, error) {
	if collection == "" {
		return nil, errors.WrapInvalid(errors.ErrInvalidData, "remote", "Mutate",
			"collection cannot be empty")
	}

	var method string
	switch op {
	case OpCreate:
		method = http.MethodPost
	case OpUpdate:
		method = http.MethodPatch
	case OpDelete:
		method = http.MethodDelete
	default:
		return nil, errors.WrapInvalid(errors.ErrUnknownOperationType, "remote", "Mutate",
			fmt.Sprintf("operation %q", op))
	}

	target := s.baseURL + "/" + url.PathEscape(collection)

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, target, bytes.NewReader(payload))
	if err != nil {
		return nil, errors.WrapInvalid(err, "remote", "Mutate", "building request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if s.decorator != nil {
		s.decorator(req)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		if stderrors.Is(err, context.DeadlineExceeded) {
			return nil, errors.WrapTransient(errors.ErrFetchTimeout, "remote", "Mutate",
				fmt.Sprintf("%s %s after %v", method, collection, s.timeout))
		}
		return nil, errors.WrapTransient(
			fmt.Errorf("%w: %w", errors.ErrRemoteMutation, err),
			"remote", "Mutate", method+" "+collection)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, errors.WrapTransient(
			fmt.Errorf("%w: reading body: %w", errors.ErrRemoteMutation, err),
			"remote", "Mutate", method+" "+collection)
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return body, nil
	case resp.StatusCode >= 500:
		return nil, errors.WrapTransient(
			fmt.Errorf("%w: status %d", errors.ErrRemoteMutation, resp.StatusCode),
			"remote", "Mutate", method+" "+collection)
	default:
		// 4xx: the server understood and rejected the mutation. Retrying
		// the same payload will not change the outcome.
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: status %d", errors.ErrRemoteMutation, resp.StatusCode),
			"remote", "Mutate", method+" "+collection)
	}
}
