package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-retryablehttp"

	httpapi "github.com/GriffinCanCode/codelive/internal/api/http"
	"github.com/GriffinCanCode/codelive/internal/domain/buffer"
	"github.com/GriffinCanCode/codelive/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/codelive/internal/relay"
)

// DefaultBaseURL is where a locally started server listens
const DefaultBaseURL = "http://localhost:8000"

// APIError is a non-2xx answer from the server
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server answered %d", e.Status)
	}
	return fmt.Sprintf("server answered %d: %s", e.Status, e.Message)
}

// IsStatus reports whether err is an APIError with the given status
func IsStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == status
}

// Options configures a Client
type Options struct {
	Timeout    time.Duration
	MaxRetries int
	Breaker    *resilience.Breaker
}

// Client talks to a CodeLive server over its REST API
type Client struct {
	resty   *resty.Client
	breaker *resilience.Breaker
}

// New creates a client for the server at baseURL. Connection failures and
// 5xx answers are retried by the transport; repeated failures open the
// breaker so a dead server fails fast.
func New(baseURL string, opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.Breaker == nil {
		opts.Breaker = resilience.New("codelive-api", resilience.Settings{
			Timeout:     10 * time.Second,
			ReadyToTrip: resilience.ConsecutiveFailures(5),
		})
	}

	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = opts.MaxRetries
	retryClient.RetryWaitMin = 100 * time.Millisecond
	retryClient.RetryWaitMax = 2 * time.Second
	retryClient.Logger = nil
	// Hand the final response back instead of a "giving up" error
	retryClient.ErrorHandler = retryablehttp.PassthroughErrorHandler

	httpClient := retryClient.StandardClient()
	httpClient.Timeout = opts.Timeout

	r := resty.NewWithClient(httpClient).
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", "playctl/1.0")

	return &Client{resty: r, breaker: opts.Breaker}
}

// Health describes the server's health endpoint
type Health struct {
	Status     string         `json:"status"`
	Version    string         `json:"version"`
	Uptime     string         `json:"uptime"`
	Playground map[string]any `json:"playground"`
}

// Health fetches /health
func (c *Client) Health(ctx context.Context) (Health, error) {
	var out Health
	err := c.do(ctx, http.MethodGet, "/health", nil, &out)
	return out, err
}

// Buffers fetches the current buffer set
func (c *Client) Buffers(ctx context.Context) (buffer.Set, error) {
	var out buffer.Set
	err := c.do(ctx, http.MethodGet, "/api/buffers", nil, &out)
	return out, err
}

// PutBuffers replaces all three buffers, rebuilding immediately when run is set
func (c *Client) PutBuffers(ctx context.Context, set buffer.Set, run bool) error {
	path := "/api/buffers?run=" + strconv.FormatBool(run)
	return c.do(ctx, http.MethodPut, path, set, nil)
}

// Run rebuilds the preview now
func (c *Client) Run(ctx context.Context) (httpapi.RunResponse, error) {
	var out httpapi.RunResponse
	err := c.do(ctx, http.MethodPost, "/api/run", nil, &out)
	return out, err
}

// Templates lists the starter gallery
func (c *Client) Templates(ctx context.Context) ([]httpapi.TemplateSummary, error) {
	var out struct {
		Templates []httpapi.TemplateSummary `json:"templates"`
	}
	err := c.do(ctx, http.MethodGet, "/api/templates", nil, &out)
	return out.Templates, err
}

// LoadTemplate replaces the buffers with a template
func (c *Client) LoadTemplate(ctx context.Context, id string) (buffer.Set, error) {
	var out struct {
		Buffers buffer.Set `json:"buffers"`
	}
	err := c.do(ctx, http.MethodPost, "/api/templates/"+id+"/load", nil, &out)
	return out.Buffers, err
}

// Console returns console lines after sequence since; zero returns all
func (c *Client) Console(ctx context.Context, since uint64) ([]relay.Event, error) {
	path := "/api/console"
	if since > 0 {
		path += "?since=" + strconv.FormatUint(since, 10)
	}
	var out struct {
		Lines []relay.Event `json:"lines"`
	}
	err := c.do(ctx, http.MethodGet, path, nil, &out)
	return out.Lines, err
}

// ClearConsole empties the console panel
func (c *Client) ClearConsole(ctx context.Context) error {
	return c.do(ctx, http.MethodDelete, "/api/console", nil, nil)
}

// do sends one request through the breaker. Only transport failures and 5xx
// answers count against the breaker; a 4xx is the caller's mistake.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var rejected *APIError
	err := c.breaker.Do(func() error {
		var failure struct {
			Error string `json:"error"`
		}
		req := c.resty.R().SetContext(ctx).SetError(&failure)
		if body != nil {
			req.SetBody(body)
		}
		if out != nil {
			req.SetResult(out)
		}

		resp, err := req.Execute(method, path)
		if err != nil {
			return fmt.Errorf("%s %s: %w", method, path, err)
		}
		if !resp.IsError() {
			return nil
		}
		apiErr := &APIError{Status: resp.StatusCode(), Message: failure.Error}
		if apiErr.Status >= http.StatusInternalServerError {
			return apiErr
		}
		rejected = apiErr
		return nil
	})
	if err != nil {
		return err
	}
	if rejected != nil {
		return rejected
	}
	return nil
}
