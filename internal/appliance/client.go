// Copyright 2024 Alexandre Mahdhaoui
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package appliance is a client of the management appliance REST API: entity
// details, provider refresh and tag mapping rules.
package appliance

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/alexandremahdhaoui/tagconverge/internal/util/tlsutil"
	"github.com/alexandremahdhaoui/tagconverge/pkg/poll"
	"github.com/go-logr/logr"
	"github.com/go-resty/resty/v2"
)

const (
	// DefaultRequestTimeout bounds a single HTTP request.
	DefaultRequestTimeout = 30 * time.Second
	// DefaultTaskDelay is the interval between two task state reads.
	DefaultTaskDelay = 5 * time.Second
)

var (
	// ErrNotFound is matched by *APIError with a 404 status.
	ErrNotFound = errors.New("appliance resource not found")
	// ErrInvalidConfig indicates an unusable Config.
	ErrInvalidConfig = errors.New("invalid appliance config")
)

// Config configures a Client.
type Config struct {
	URL            string
	Username       string
	Password       string
	TLS            tlsutil.Config
	RequestTimeout time.Duration
	Retries        int
}

// APIError is a non-2xx response.
type APIError struct {
	StatusCode int
	Kind       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("appliance API error: %d %s", e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("appliance API error: %d %s: %s", e.StatusCode, e.Kind, e.Message)
}

func (e *APIError) Is(target error) bool {
	return target == ErrNotFound && e.StatusCode == http.StatusNotFound
}

type errorBody struct {
	Error struct {
		Kind    string `json:"kind"`
		Message string `json:"message"`
	} `json:"error"`
}

// Client talks to the appliance REST API.
type Client struct {
	rest      *resty.Client
	log       logr.Logger
	poller    *poll.Poller
	taskDelay time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithPoller sets the poller used to wait for tasks.
func WithPoller(p *poll.Poller) Option {
	return func(c *Client) { c.poller = p }
}

// WithTaskDelay overrides DefaultTaskDelay.
func WithTaskDelay(d time.Duration) Option {
	return func(c *Client) { c.taskDelay = d }
}

// New creates a Client.
func New(cfg Config, log logr.Logger, opts ...Option) (*Client, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("%w: url is required", ErrInvalidConfig)
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}

	rest := resty.New().
		SetBaseURL(cfg.URL).
		SetHeader("Accept", "application/json").
		SetTimeout(cfg.RequestTimeout).
		SetRetryCount(cfg.Retries).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() >= http.StatusInternalServerError
		})
	if cfg.Username != "" {
		rest.SetBasicAuth(cfg.Username, cfg.Password)
	}
	tlsConfig, err := tlsutil.BuildClientTLSConfig(&cfg.TLS)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if tlsConfig != nil {
		rest.SetTLSClientConfig(tlsConfig)
	}

	c := &Client{
		rest:      rest,
		log:       log,
		taskDelay: DefaultTaskDelay,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.poller == nil {
		c.poller = poll.New(poll.WithLogger(log))
	}
	return c, nil
}

// do sends a request. out, if not nil, receives the decoded JSON body.
func (c *Client) do(ctx context.Context, method, path string, body, out any, configure ...func(*resty.Request)) error {
	req := c.rest.R().SetContext(ctx).SetError(&errorBody{})
	if body != nil {
		req.SetBody(body)
	}
	if out != nil {
		req.SetResult(out)
	}
	for _, fn := range configure {
		fn(req)
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}

	c.log.V(2).Info("appliance request", "method", method, "url", resp.Request.URL, "status", resp.StatusCode())

	if resp.IsError() {
		apiErr := &APIError{StatusCode: resp.StatusCode()}
		if e, ok := resp.Error().(*errorBody); ok {
			apiErr.Kind = e.Error.Kind
			apiErr.Message = e.Error.Message
		}
		return fmt.Errorf("%s %s: %w", method, path, apiErr)
	}
	return nil
}
