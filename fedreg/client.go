package fedreg

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"fedreg-fetcher/retry"
)

// DefaultBaseURL is the production Federal Register API root.
const DefaultBaseURL = "https://www.federalregister.gov/api/v1"

// maxResponseBytes bounds how much of a search response is read.
const maxResponseBytes = 10 << 20

// searchFields is the field list requested from the documents endpoint.
// Asking for exactly what the pipeline consumes keeps responses small.
var searchFields = []string{
	"document_number", "title", "publication_date", "type",
	"full_text_xml_url", "html_url",
}

// Client searches the Federal Register documents API.
type Client interface {
	SearchDocuments(ctx context.Context, agencySlug string, page, perPage int) (*SearchPage, error)
}

// RequestGate admits outbound requests. Satisfied by ratelimit.Limiter.
type RequestGate interface {
	Acquire(ctx context.Context) error
}

type httpClient struct {
	httpc     *http.Client
	baseURL   string
	gate      RequestGate
	userAgent string
}

// NewClient creates a Client against the production API. gate may be nil
// for unpaced use.
func NewClient(gate RequestGate, timeout time.Duration, userAgent string) Client {
	return NewClientWithBaseURL(DefaultBaseURL, gate, timeout, userAgent)
}

// NewClientWithBaseURL creates a Client against a custom API root. Used
// by tests to point at a local server.
func NewClientWithBaseURL(baseURL string, gate RequestGate, timeout time.Duration, userAgent string) Client {
	return &httpClient{
		httpc:     &http.Client{Timeout: timeout},
		baseURL:   baseURL,
		gate:      gate,
		userAgent: userAgent,
	}
}

type searchResponse struct {
	Count       int        `json:"count"`
	TotalPages  int        `json:"total_pages"`
	NextPageURL string     `json:"next_page_url"`
	Results     []Document `json:"results"`
}

// SearchDocuments fetches one page of documents for an agency, newest
// first. Non-200 responses surface as *retry.StatusError so callers can
// classify them.
func (c *httpClient) SearchDocuments(ctx context.Context, agencySlug string, page, perPage int) (*SearchPage, error) {
	if c.gate != nil {
		if err := c.gate.Acquire(ctx); err != nil {
			return nil, err
		}
	}

	q := url.Values{}
	q.Add("conditions[agencies][]", agencySlug)
	q.Set("per_page", strconv.Itoa(perPage))
	q.Set("page", strconv.Itoa(page))
	q.Set("order", "newest")
	for _, f := range searchFields {
		q.Add("fields[]", f)
	}
	reqURL := c.baseURL + "/documents.json?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("fedreg: build search request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fedreg: search request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &retry.StatusError{
			URL:        reqURL,
			StatusCode: resp.StatusCode,
			RetryAfter: ParseRetryAfter(resp.Header.Get("Retry-After")),
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("fedreg: read search response: %w", err)
	}
	var sr searchResponse
	if err := json.Unmarshal(body, &sr); err != nil {
		return nil, fmt.Errorf("fedreg: decode search response: %w", err)
	}

	for i := range sr.Results {
		sr.Results[i].AgencySlug = agencySlug
	}
	return &SearchPage{
		Results:    sr.Results,
		TotalCount: sr.Count,
		TotalPages: sr.TotalPages,
		HasMore:    sr.NextPageURL != "" && len(sr.Results) > 0,
	}, nil
}

// ParseRetryAfter reads a Retry-After header value, either delay seconds
// or an HTTP date. Unparseable or past values yield zero.
func ParseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}
