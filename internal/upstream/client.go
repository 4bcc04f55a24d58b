// Forwarding of validated requests to provider backends.
package upstream

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/requestdirectory/gateway/internal/registry"
)

// Error is any upstream outcome that must never be billed: network
// failures, timeouts, open circuit breakers.
type Error struct {
	Provider string
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("upstream %s: %v", e.Provider, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Response is the upstream's complete reply. JSON holds the body when it
// decoded; otherwise Text carries the raw bytes so the orchestrator always
// has a parseable value to return.
type Response struct {
	StatusCode int
	JSON       json.RawMessage
	Text       string
}

func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Payload returns the response body as JSON, encoding the text fallback as
// a JSON string when the upstream did not speak JSON.
func (r *Response) Payload() json.RawMessage {
	if r.JSON != nil {
		return r.JSON
	}
	encoded, err := json.Marshal(r.Text)
	if err != nil {
		return json.RawMessage(`""`)
	}
	return encoded
}

// Client forwards requests to provider backends. Each provider gets its own
// circuit breaker so one flapping backend cannot poison the rest.
type Client struct {
	http     *http.Client
	breakers map[string]*gobreaker.CircuitBreaker
}

func NewClient(providers []*registry.Definition, timeout time.Duration) *Client {
	breakers := make(map[string]*gobreaker.CircuitBreaker, len(providers))
	for _, p := range providers {
		settings := gobreaker.Settings{
			Name:        p.Slug,
			MaxRequests: 3,
			Interval:    5 * time.Second,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 3
			},
		}
		breakers[p.Slug] = gobreaker.NewCircuitBreaker(settings)
	}
	return &Client{
		http:     &http.Client{Timeout: timeout},
		breakers: breakers,
	}
}

// Forward streams the request body to the provider's backend and waits for
// the complete response. The body is not buffered on the way out; contentType
// overrides the inbound Content-Type header when non-empty.
func (c *Client) Forward(r *http.Request, def *registry.Definition, subPath string, body io.Reader, contentType string) (*Response, error) {
	cb, ok := c.breakers[def.Slug]
	if !ok {
		// Providers registered after construction still get forwarded,
		// just without breaker protection.
		return c.forward(r, def, subPath, body, contentType)
	}

	result, err := cb.Execute(func() (interface{}, error) {
		return c.forward(r, def, subPath, body, contentType)
	})
	if err != nil {
		if _, isUpstream := err.(*Error); isUpstream {
			return nil, err
		}
		return nil, &Error{Provider: def.Slug, Err: err}
	}
	return result.(*Response), nil
}

func (c *Client) forward(r *http.Request, def *registry.Definition, subPath string, body io.Reader, contentType string) (*Response, error) {
	url := fmt.Sprintf("http://%s:%d/%s", def.Host, def.Port, strings.Trim(subPath, "/"))

	req, err := http.NewRequestWithContext(r.Context(), r.Method, url, body)
	if err != nil {
		return nil, &Error{Provider: def.Slug, Err: err}
	}

	copyHeader(req.Header, r.Header)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &Error{Provider: def.Slug, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{Provider: def.Slug, Err: fmt.Errorf("failed to read response body: %w", err)}
	}

	out := &Response{StatusCode: resp.StatusCode}
	if json.Valid(raw) && len(raw) > 0 {
		out.JSON = json.RawMessage(raw)
	} else {
		out.Text = string(raw)
	}
	return out, nil
}

// hop-by-hop headers stripped before forwarding
var hopHeaders = map[string]struct{}{
	"Connection":          {},
	"Keep-Alive":          {},
	"Proxy-Authorization": {},
	"Te":                  {},
	"Trailer":             {},
	"Transfer-Encoding":   {},
	"Upgrade":             {},
	"Content-Length":      {},
}

func copyHeader(dst, src http.Header) {
	for key, values := range src {
		if _, hop := hopHeaders[http.CanonicalHeaderKey(key)]; hop {
			continue
		}
		for _, v := range values {
			dst.Add(key, v)
		}
	}
}
