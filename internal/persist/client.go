// Package persist is the REST client for the authoritative layout copy.
//
// Every request waits on a token-bucket limiter before it is sent, so a
// burst of discrete changes cannot exceed the backend's rate limit. Errors
// are classified into the layout failure taxonomy:
//
//   - transport failures, 429 and 5xx: network.transient
//   - any other non-2xx status: server.rejected
//   - a 2xx body that does not decode: codec.decode_failed
//
// The client never retries. Callers decide what a failure means.
package persist

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/time/rate"

	"github.com/pseudocoder/layoutsync/internal/codec"
	apperrors "github.com/pseudocoder/layoutsync/internal/errors"
	"github.com/pseudocoder/layoutsync/internal/layout"
	"github.com/pseudocoder/layoutsync/internal/wire"
)

// DefaultRateLimit and DefaultRateBurst bound outbound requests when the
// caller does not configure a limiter.
const (
	DefaultRateLimit = 10
	DefaultRateBurst = 20
)

// maxErrorBody caps how much of a failed response is read for its message.
const maxErrorBody = 4096

// Options configures a Client.
type Options struct {
	// BaseURL is the backend root, for example "http://localhost:7171".
	BaseURL string

	// Token, when set, is sent as a bearer token on every request.
	Token string

	// HTTPClient defaults to a client without a timeout. Pushes are never
	// cancelled by the engine, so any deadline comes from the caller's ctx.
	HTTPClient *http.Client

	// Limiter defaults to DefaultRateLimit requests/second with
	// DefaultRateBurst burst.
	Limiter *rate.Limiter
}

// Client talks to the layout REST endpoints of one backend.
type Client struct {
	base    *url.URL
	token   string
	http    *http.Client
	limiter *rate.Limiter
}

// New returns a Client for opts.BaseURL.
func New(opts Options) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(opts.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("base url %q: scheme must be http or https", opts.BaseURL)
	}

	c := &Client{
		base:    base,
		token:   opts.Token,
		http:    opts.HTTPClient,
		limiter: opts.Limiter,
	}
	if c.http == nil {
		c.http = &http.Client{}
	}
	if c.limiter == nil {
		c.limiter = rate.NewLimiter(rate.Limit(DefaultRateLimit), DefaultRateBurst)
	}
	return c, nil
}

// FetchLayout returns the full layout of a session.
func (c *Client) FetchLayout(ctx context.Context, sessionID string) (layout.SessionLayout, error) {
	var w wire.Layout
	if err := c.do(ctx, "fetch layout", http.MethodGet, layoutPath(sessionID), nil, &w); err != nil {
		return layout.SessionLayout{}, err
	}
	return codec.LayoutFromWire(w), nil
}

// PushLayout patches the top-level fields of a session layout and returns
// the stored values.
func (c *Client) PushLayout(ctx context.Context, sessionID string, patch wire.LayoutPatch) (wire.LayoutFields, error) {
	var out wire.LayoutFields
	err := c.do(ctx, "push layout", http.MethodPatch, layoutPath(sessionID), patch, &out)
	return out, err
}

// PushAgentLayout patches one agent's geometry and returns the stored layout.
func (c *Client) PushAgentLayout(ctx context.Context, sessionID, agentID string, patch wire.AgentPatch) (layout.AgentLayout, error) {
	var out wire.AgentLayout
	path := layoutPath(sessionID) + "/agents/" + url.PathEscape(agentID)
	if err := c.do(ctx, "push agent layout", http.MethodPatch, path, patch, &out); err != nil {
		return layout.AgentLayout{}, err
	}
	return codec.AgentLayoutFromWire(out), nil
}

// PushFilePreviewLayout patches one file preview and returns the stored layout.
func (c *Client) PushFilePreviewLayout(ctx context.Context, sessionID, previewID string, patch wire.FilePreviewPatch) (layout.FilePreviewLayout, error) {
	var out wire.FilePreviewLayout
	path := layoutPath(sessionID) + "/previews/" + url.PathEscape(previewID)
	if err := c.do(ctx, "push file preview layout", http.MethodPatch, path, patch, &out); err != nil {
		return layout.FilePreviewLayout{}, err
	}
	return codec.FilePreviewLayoutFromWire(out), nil
}

// PushEditorLayout patches the editor card and returns the stored editor.
func (c *Client) PushEditorLayout(ctx context.Context, sessionID string, patch wire.EditorPatch) (layout.EditorLayout, error) {
	var out wire.EditorFields
	if err := c.do(ctx, "push editor layout", http.MethodPatch, layoutPath(sessionID)+"/editor", patch, &out); err != nil {
		return layout.EditorLayout{}, err
	}
	return codec.EditorFromWire(out), nil
}

// ListDevices returns the devices the backend has seen on a session.
func (c *Client) ListDevices(ctx context.Context, sessionID string) ([]wire.Device, error) {
	var out []wire.Device
	path := "/sessions/" + url.PathEscape(sessionID) + "/devices"
	if err := c.do(ctx, "list devices", http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Status returns the backend's status report.
func (c *Client) Status(ctx context.Context) (wire.Status, error) {
	var out wire.Status
	err := c.do(ctx, "status", http.MethodGet, "/status", nil, &out)
	return out, err
}

func layoutPath(sessionID string) string {
	return "/sessions/" + url.PathEscape(sessionID) + "/layout"
}

// do sends one request and decodes a 2xx JSON body into out.
func (c *Client) do(ctx context.Context, op, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return apperrors.Internal(op+": encode request", err)
		}
		reader = bytes.NewReader(data)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return apperrors.TransientNetwork(op, err)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base.String()+path, reader)
	if err != nil {
		return apperrors.Internal(op+": build request", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return apperrors.TransientNetwork(op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail := errorDetail(resp.Body)
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return apperrors.TransientNetwork(op, fmt.Errorf("status %d: %s", resp.StatusCode, detail))
		}
		return apperrors.ServerRejection(op, resp.StatusCode, detail)
	}

	if out == nil {
		return nil
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return apperrors.TransientNetwork(op, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return apperrors.DecodeFailed(op+" response", err)
	}
	return nil
}

// errorDetail extracts the message of a wire.ErrorResponse, falling back to
// the raw body text.
func errorDetail(r io.Reader) string {
	data, _ := io.ReadAll(io.LimitReader(r, maxErrorBody))
	var resp wire.ErrorResponse
	if json.Unmarshal(data, &resp) == nil && resp.Message != "" {
		return resp.Message
	}
	return strings.TrimSpace(string(data))
}
