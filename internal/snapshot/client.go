package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/go-resty/resty/v2"
	pkgerrors "github.com/pkg/errors"

	"ledger-dash/internal/config"
)

var (
	// ErrTransport wraps failures where no response was received.
	ErrTransport = errors.New("upstream request failed")
	// ErrStatus is matched by every *StatusError.
	ErrStatus = errors.New("upstream returned an error status")
	// ErrUnauthorized is returned when the upstream session is missing or the
	// configured credentials were rejected.
	ErrUnauthorized = errors.New("upstream rejected credentials")
)

// StatusError is a non-success HTTP response from the upstream server.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	body := strings.TrimSpace(e.Body)
	if len(body) > 200 {
		body = body[:200] + "..."
	}
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.Code, body)
}

func (e *StatusError) Unwrap() error { return ErrStatus }

// MineResponse is the upstream answer to a mine request.
type MineResponse struct {
	Success bool
	Message string
}

// Client talks to the ledger server. It is safe for concurrent use.
type Client struct {
	http    *resty.Client
	cfg     config.UpstreamConfig
	loginMu sync.Mutex
}

// New creates a client for the configured upstream. resty keeps a cookie
// jar, so a session obtained by Login is reused by later requests.
func New(cfg config.UpstreamConfig) *Client {
	hc := resty.New().
		SetBaseURL(strings.TrimRight(cfg.URL, "/")).
		SetHeader("Accept", "application/json")
	if cfg.Timeout > 0 {
		hc.SetTimeout(cfg.Timeout)
	}
	return &Client{http: hc, cfg: cfg}
}

// FetchSnapshot issues one read of the system state.
func (c *Client) FetchSnapshot(ctx context.Context) (*Snapshot, error) {
	resp, err := c.do(ctx, resty.MethodGet, c.cfg.StatePath)
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, newStatusError(resp, resty.MethodGet, c.cfg.StatePath)
	}
	return Decode(resp.Body())
}

// Mine asks the server to seal the pending pool into a block. A client error
// status that still carries a message (e.g. an empty pool) is returned as an
// unsuccessful MineResponse rather than an error.
func (c *Client) Mine(ctx context.Context) (*MineResponse, error) {
	resp, err := c.do(ctx, resty.MethodPost, c.cfg.MinePath)
	if err != nil {
		return nil, err
	}

	var body struct {
		Success *bool  `json:"success"`
		Message string `json:"message"`
	}
	if jerr := json.Unmarshal(resp.Body(), &body); jerr != nil || body.Message == "" {
		if resp.IsError() {
			return nil, newStatusError(resp, resty.MethodPost, c.cfg.MinePath)
		}
		return nil, fmt.Errorf("%w: mine response has no message", ErrMalformed)
	}
	if resp.StatusCode() >= http.StatusInternalServerError {
		return nil, newStatusError(resp, resty.MethodPost, c.cfg.MinePath)
	}

	out := &MineResponse{Message: body.Message, Success: !resp.IsError()}
	if body.Success != nil {
		out.Success = *body.Success && !resp.IsError()
	}
	return out, nil
}

// Login posts the configured admin credentials to the login form. The
// session cookie is stored in the client's jar.
func (c *Client) Login(ctx context.Context) error {
	if c.cfg.Username == "" {
		return fmt.Errorf("%w: no upstream username configured", ErrUnauthorized)
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"username": c.cfg.Username,
			"password": c.cfg.Password,
		}).
		Post(c.cfg.LoginPath)
	if err != nil {
		return pkgerrors.WithMessage(fmt.Errorf("%w: %w", ErrTransport, err), "login")
	}
	if resp.IsError() {
		return newStatusError(resp, resty.MethodPost, c.cfg.LoginPath)
	}
	if c.onLoginPage(resp) {
		return ErrUnauthorized
	}
	slog.Info("Logged in to upstream", "username", c.cfg.Username, "component", "Upstream")
	return nil
}

// do executes a request and, when credentials are configured and the server
// answers as if no session exists, logs in once and retries.
func (c *Client) do(ctx context.Context, method, path string) (*resty.Response, error) {
	resp, err := c.execute(ctx, method, path)
	if err != nil {
		return nil, err
	}
	if !c.unauthorized(resp) {
		return resp, nil
	}
	if c.cfg.Username == "" {
		return nil, fmt.Errorf("%w: %s %s requires a session", ErrUnauthorized, method, path)
	}

	c.loginMu.Lock()
	err = c.Login(ctx)
	c.loginMu.Unlock()
	if err != nil {
		return nil, err
	}

	resp, err = c.execute(ctx, method, path)
	if err != nil {
		return nil, err
	}
	if c.unauthorized(resp) {
		return nil, fmt.Errorf("%w: %s %s still unauthorized after login", ErrUnauthorized, method, path)
	}
	return resp, nil
}

func (c *Client) execute(ctx context.Context, method, path string) (*resty.Response, error) {
	resp, err := c.http.R().SetContext(ctx).Execute(method, path)
	if err != nil {
		return nil, pkgerrors.WithMessage(fmt.Errorf("%w: %w", ErrTransport, err), method+" "+path)
	}
	return resp, nil
}

func (c *Client) unauthorized(resp *resty.Response) bool {
	switch resp.StatusCode() {
	case http.StatusUnauthorized, http.StatusForbidden:
		return true
	}
	return c.onLoginPage(resp)
}

// onLoginPage reports whether redirects ended on the login form, which is
// how the server answers admin-only requests without a session.
func (c *Client) onLoginPage(resp *resty.Response) bool {
	raw := resp.RawResponse
	if raw == nil || raw.Request == nil || raw.Request.URL == nil {
		return false
	}
	return strings.HasSuffix(raw.Request.URL.Path, c.cfg.LoginPath)
}

func newStatusError(resp *resty.Response, method, path string) *StatusError {
	return &StatusError{
		Method: method,
		Path:   path,
		Code:   resp.StatusCode(),
		Body:   resp.String(),
	}
}
