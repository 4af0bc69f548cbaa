package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/catherinevee/cloudboard/internal/metrics"
	apierrors "github.com/catherinevee/cloudboard/internal/shared/errors"
	"github.com/catherinevee/cloudboard/internal/shared/logger"
)

// maxResponseBytes caps how much of a response body is read
const maxResponseBytes = 10 << 20

// RequestIDHeader carries the per-call id generated by the client
const RequestIDHeader = "X-Request-ID"

// Client talks to the identity and inventory services. Every method issues
// exactly one HTTP request; nothing is retried.
//
// Client is safe for concurrent use.
type Client struct {
	identityURL  string
	inventoryURL string
	httpClient   *http.Client
	metrics      *metrics.Collector
	log          zerolog.Logger
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the default http.Client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithMetrics records every call on the collector
func WithMetrics(m *metrics.Collector) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// WithLogger sets the logger used for request tracing
func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) {
		c.log = l
	}
}

// NewClient creates a client for the two backends
func NewClient(identityURL, inventoryURL string, opts ...Option) *Client {
	c := &Client{
		identityURL:  strings.TrimRight(identityURL, "/"),
		inventoryURL: strings.TrimRight(inventoryURL, "/"),
		httpClient:   &http.Client{},
		log:          logger.WithComponent("api"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// operation names a remote call and the message used when the server
// does not supply one
type operation struct {
	name     string
	fallback string
}

// envelope is the {success, data, message, error} wrapper every backend uses
type envelope[T any] struct {
	Success bool   `json:"success"`
	Data    *T     `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// errorBody is decoded from non-2xx responses
type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

type validatable interface {
	Validate() error
}

// call performs one request and decodes the envelope's data into T
func call[T any](ctx context.Context, c *Client, op operation, method, url, token string, body interface{}) (*T, error) {
	raw, status, requestID, err := c.send(ctx, op, method, url, token, body)
	if err != nil {
		return nil, err
	}

	if status < 200 || status > 299 {
		return nil, httpError(op, status, raw, requestID)
	}

	var env envelope[T]
	if len(bytes.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(raw, &env); err != nil {
			return nil, apierrors.NewError(apierrors.ErrorTypeDecode, op.fallback).
				WithOperation(op.name).
				WithStatus(status).
				WithRequestID(requestID).
				WithWrapped(err).
				Build()
		}
	}

	if env.Data == nil {
		return nil, apierrors.NewError(apierrors.ErrorTypeDecode, op.fallback).
			WithOperation(op.name).
			WithStatus(status).
			WithRequestID(requestID).
			WithWrapped(fmt.Errorf("response has no data")).
			Build()
	}

	return env.Data, nil
}

// callNoData performs one request whose success carries no payload
func callNoData(ctx context.Context, c *Client, op operation, method, url, token string, body interface{}) error {
	raw, status, requestID, err := c.send(ctx, op, method, url, token, body)
	if err != nil {
		return err
	}
	if status < 200 || status > 299 {
		return httpError(op, status, raw, requestID)
	}
	return nil
}

func (c *Client) send(ctx context.Context, op operation, method, url, token string, body interface{}) ([]byte, int, string, error) {
	if v, ok := body.(validatable); ok {
		if err := v.Validate(); err != nil {
			return nil, 0, "", apierrors.NewError(apierrors.ErrorTypeValidation, err.Error()).
				WithOperation(op.name).
				WithWrapped(err).
				Build()
		}
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, 0, "", fmt.Errorf("%s: failed to encode request: %w", op.name, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, 0, "", fmt.Errorf("%s: failed to build request: %w", op.name, err)
	}

	requestID := uuid.NewString()
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set(RequestIDHeader, requestID)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	log := logger.WithRequestID(c.log, requestID)
	start := time.Now()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.ObserveAPICall(op.name, 0, time.Since(start))
		log.Debug().Err(err).Str("operation", op.name).Msg("request failed")
		return nil, 0, requestID, apierrors.NewError(apierrors.ErrorTypeNetwork, op.fallback).
			WithOperation(op.name).
			WithRequestID(requestID).
			WithWrapped(err).
			Build()
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	elapsed := time.Since(start)
	c.metrics.ObserveAPICall(op.name, resp.StatusCode, elapsed)
	log.Debug().
		Str("operation", op.name).
		Str("method", method).
		Str("url", url).
		Int("status", resp.StatusCode).
		Dur("duration", elapsed).
		Msg("request completed")

	if err != nil {
		return nil, resp.StatusCode, requestID, apierrors.NewError(apierrors.ErrorTypeNetwork, op.fallback).
			WithOperation(op.name).
			WithStatus(resp.StatusCode).
			WithRequestID(requestID).
			WithWrapped(err).
			Build()
	}

	return raw, resp.StatusCode, requestID, nil
}

// httpError turns a non-2xx body into an APIError carrying the server's
// message, or the operation's generic one when the body has none
func httpError(op operation, status int, raw []byte, requestID string) error {
	var body errorBody
	_ = json.Unmarshal(raw, &body)

	msg := body.Error
	if msg == "" {
		msg = body.Message
	}

	err := apierrors.NewHTTPError(op.name, status, msg, op.fallback)
	err.RequestID = requestID
	return err
}

func requireToken(op operation, token string) error {
	if token == "" {
		return apierrors.NewError(apierrors.ErrorTypeAuth, "not logged in").
			WithOperation(op.name).
			WithStatus(http.StatusUnauthorized).
			Build()
	}
	return nil
}
