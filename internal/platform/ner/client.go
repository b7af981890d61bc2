// Package ner calls the upstream named-entity-recognition service and turns
// its output into annotation payloads the coder understands.
package ner

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ehr/loinc-coder/internal/domain/annotation"
)

// ErrUpstream is returned when the NER service fails or answers with
// something that is not a NER payload.
var ErrUpstream = errors.New("ner upstream failure")

const (
	predictPath     = "/predict_ner_str"
	maxResponseSize = 32 << 20
)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout sets the request timeout. The configured HTTP client is copied
// first so a client shared through WithHTTPClient is left untouched.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d <= 0 {
			return
		}
		hc := *c.httpClient
		hc.Timeout = d
		c.httpClient = &hc
	}
}

func WithTypeMapping(m *TypeMapping) Option {
	return func(c *Client) { c.mapping = m }
}

// WithFacility sets the servicingFacility sent with each request.
func WithFacility(f string) Option {
	return func(c *Client) { c.facility = f }
}

func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// Client talks to the NER service.
type Client struct {
	endpoint   string
	facility   string
	httpClient *http.Client
	mapping    *TypeMapping
	logger     zerolog.Logger
}

// NewClient creates a client for the service at endpoint.
func NewClient(endpoint string, opts ...Option) *Client {
	c := &Client{
		endpoint:   strings.TrimRight(endpoint, "/"),
		facility:   "RUMC",
		httpClient: &http.Client{Timeout: 30 * time.Second},
		mapping:    DefaultTypeMapping(),
		logger:     zerolog.Nop(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

type predictRequest struct {
	Content           string `json:"content"`
	ServicingFacility string `json:"servicingFacility"`
}

// Annotate runs NER over content, remaps entity types and rebuilds lab
// attributes from relations.
func (c *Client) Annotate(ctx context.Context, content string) (*annotation.Payload, error) {
	body, err := json.Marshal(predictRequest{Content: content, ServicingFacility: c.facility})
	if err != nil {
		return nil, fmt.Errorf("encode ner request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+predictPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build ner request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrUpstream, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: non-2xx response: %d", ErrUpstream, resp.StatusCode)
	}

	p, err := annotation.DecodePayload(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	before := len(p.Entities)
	c.mapping.Apply(p)
	p.ApplyRelations()

	c.logger.Debug().
		Int("entities", before).
		Int("mapped_entities", len(p.Entities)).
		Dur("elapsed", time.Since(start)).
		Msg("ner call completed")
	return p, nil
}
