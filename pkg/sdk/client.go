package sdk

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	defaultTimeout   = 30 * time.Second
	maxErrorBodySize = 64 << 10
)

// Client talks to one tablekit server.
type Client struct {
	base      *url.URL
	http      *http.Client
	userAgent string
	obs       *observer
}

// New creates a Client for the server at baseURL, e.g. "http://localhost:8080".
func New(baseURL string, opts ...Option) (*Client, error) {
	cfg := &clientConfig{timeout: defaultTimeout, userAgent: "tablekit-sdk"}
	for _, o := range opts {
		o.apply(cfg)
	}

	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("tablekit: parse base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("tablekit: base url must be http or https, got %q", baseURL)
	}

	hc := cfg.httpClient
	if hc == nil {
		hc = &http.Client{Timeout: cfg.timeout}
	}
	obs, err := newObserver(cfg.logger, cfg.metricsReg)
	if err != nil {
		return nil, err
	}
	return &Client{base: u, http: hc, userAgent: cfg.userAgent, obs: obs}, nil
}

// Health checks the server. A degraded server is not an error.
func (c *Client) Health(ctx context.Context) (hs HealthStatus, err error) {
	start := time.Now()
	defer func() { c.obs.observe("health", start, err) }()

	err = c.do(ctx, http.MethodGet, "/health", nil, &hs, http.StatusServiceUnavailable)
	return hs, err
}

// Doctypes lists the doctypes the server serves.
func (c *Client) Doctypes(ctx context.Context) (out []Doctype, err error) {
	start := time.Now()
	defer func() { c.obs.observe("doctypes", start, err) }()

	err = c.do(ctx, http.MethodGet, "/api/v1/doctypes/", nil, &out)
	return out, err
}

// Rows returns one page of a doctype.
func (c *Client) Rows(ctx context.Context, doctype string, q Query) (page Page, err error) {
	start := time.Now()
	defer func() { c.obs.observe("rows", start, err) }()

	vals, err := q.values()
	if err != nil {
		return Page{}, fmt.Errorf("tablekit: parse link: %w", err)
	}
	if len(q.Fields) > 0 {
		vals.Set("fields", strings.Join(q.Fields, ","))
	}
	err = c.do(ctx, http.MethodGet, doctypePath(doctype, "rows"), vals, &page)
	return page, err
}

// Aggregates computes whole-set aggregates, each "<function>:<field>", over the filtered rows.
func (c *Client) Aggregates(ctx context.Context, doctype string, q Query, aggs ...string) (res Aggregates, err error) {
	start := time.Now()
	defer func() { c.obs.observe("aggregates", start, err) }()

	vals, err := q.values()
	if err != nil {
		return Aggregates{}, fmt.Errorf("tablekit: parse link: %w", err)
	}
	for _, a := range aggs {
		vals.Add("agg", a)
	}
	err = c.do(ctx, http.MethodGet, doctypePath(doctype, "aggregates"), vals, &res)
	return res, err
}

// GroupBy returns the top groups of the filtered rows.
func (c *Client) GroupBy(ctx context.Context, doctype string, q Query, g GroupBy) (res Groups, err error) {
	start := time.Now()
	defer func() { c.obs.observe("group_by", start, err) }()

	vals, err := q.values()
	if err != nil {
		return Groups{}, fmt.Errorf("tablekit: parse link: %w", err)
	}
	vals.Set("by", g.By)
	vals.Set("agg", g.Agg)
	if g.Limit > 0 {
		vals.Set("limit", strconv.Itoa(g.Limit))
	}
	err = c.do(ctx, http.MethodGet, doctypePath(doctype, "group-by"), vals, &res)
	return res, err
}

// Facets returns the distinct values of field under every filter except field's own.
// limit 0 uses the server default.
func (c *Client) Facets(ctx context.Context, doctype, field string, q Query, limit int) (res Facets, err error) {
	start := time.Now()
	defer func() { c.obs.observe("facets", start, err) }()

	vals, err := q.values()
	if err != nil {
		return Facets{}, fmt.Errorf("tablekit: parse link: %w", err)
	}
	if limit > 0 {
		vals.Set("limit", strconv.Itoa(limit))
	}
	err = c.do(ctx, http.MethodGet, doctypePath(doctype, "facets/"+url.PathEscape(field)), vals, &res)
	return res, err
}

// Invalidate drops the server's cached responses of a doctype.
func (c *Client) Invalidate(ctx context.Context, doctype string) (err error) {
	start := time.Now()
	defer func() { c.obs.observe("invalidate", start, err) }()

	return c.do(ctx, http.MethodPost, doctypePath(doctype, "invalidate"), nil, nil)
}

func doctypePath(doctype, rest string) string {
	return "/api/v1/doctypes/" + url.PathEscape(doctype) + "/" + rest
}

// do sends a request and decodes a 2xx body into out. Statuses in accept are decoded too.
func (c *Client) do(ctx context.Context, method, path string, vals url.Values, out any, accept ...int) error {
	u := *c.base
	u.Path = strings.TrimRight(u.Path, "/") + path
	if len(vals) > 0 {
		u.RawQuery = vals.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), nil)
	if err != nil {
		return fmt.Errorf("tablekit: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("tablekit: %s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	ok := resp.StatusCode >= 200 && resp.StatusCode < 300
	for _, s := range accept {
		ok = ok || resp.StatusCode == s
	}
	if !ok {
		return decodeError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("tablekit: decode %s response: %w", path, err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
	if err != nil && !errors.Is(err, io.EOF) {
		return &APIError{StatusCode: resp.StatusCode, Message: err.Error()}
	}
	ae := &APIError{StatusCode: resp.StatusCode}
	var payload struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &payload) == nil && payload.Code != "" {
		ae.Code, ae.Message = payload.Code, payload.Message
		return ae
	}
	ae.Message = strings.TrimSpace(string(body))
	if ae.Message == "" {
		ae.Message = http.StatusText(resp.StatusCode)
	}
	return ae
}
