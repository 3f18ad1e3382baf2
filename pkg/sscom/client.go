// Package sscom is a client for the ss.com classifieds filter workflow.
package sscom

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

// Default base URL for the classifieds site.
const defaultBaseURL = "https://www.ss.com"

const (
	listingsPath = "/lv/transport/cars/today/"
	filterPath   = "/lv/transport/cars/today/filter/"
)

// Filter form field ids used by the site.
const (
	fieldPrice    = "8"
	fieldEngine   = "15"
	fieldColor    = "17"
	fieldYear     = "18"
	fieldBodyType = "32"
	fieldFuelType = "34"
	fieldGearbox  = "35"
)

// Client fetches the filtered listings page.
type Client interface {
	FetchFiltered(ctx context.Context, f Filters) (string, error)
}

// RangeFilter is a min/max bound pair for a range filter field.
type RangeFilter struct {
	Min string
	Max string
}

// Filters holds the search criteria submitted with the filter POST.
// Values are opaque to the client; the site interprets them.
type Filters struct {
	Price    RangeFilter
	Year     RangeFilter
	Engine   RangeFilter
	Color    string
	BodyType string
	FuelType string
	Gearbox  string
}

// encode builds the form body the filter endpoint expects: topt[<id>][min|max]
// for range fields, opt[<id>] for exact-match fields, and the sid field
// echoing the filter action path.
func (f Filters) encode() url.Values {
	v := url.Values{}

	setRange := func(id string, r RangeFilter) {
		v.Set(fmt.Sprintf("topt[%s][min]", id), r.Min)
		v.Set(fmt.Sprintf("topt[%s][max]", id), r.Max)
	}
	setRange(fieldPrice, f.Price)
	setRange(fieldYear, f.Year)
	setRange(fieldEngine, f.Engine)

	v.Set(fmt.Sprintf("opt[%s]", fieldColor), f.Color)
	v.Set(fmt.Sprintf("opt[%s]", fieldBodyType), f.BodyType)
	v.Set(fmt.Sprintf("opt[%s]", fieldFuelType), f.FuelType)
	v.Set(fmt.Sprintf("opt[%s]", fieldGearbox), f.Gearbox)

	v.Set("sid", filterPath)
	return v
}

// APIError is returned when the site responds with a non-2xx status.
type APIError struct {
	StatusCode int
	URL        string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("sscom: HTTP %d fetching %s", e.StatusCode, e.URL)
}

// Option configures the httpClient.
type Option func(*httpClient)

// WithBaseURL overrides the default base URL.
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = strings.TrimSuffix(url, "/")
	}
}

// WithHTTPClient sets a custom *http.Client. The client must carry a cookie
// jar, or session continuity between the priming GET and the filter POST
// is lost.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithTimeout sets the per-request timeout. Applied after all options, so
// it also takes effect on a client supplied via WithHTTPClient.
func WithTimeout(d time.Duration) Option {
	return func(c *httpClient) {
		c.timeout = d
	}
}

// httpClient implements Client using net/http with a session cookie jar.
type httpClient struct {
	baseURL string
	http    *http.Client
	timeout time.Duration
	limiter *rate.Limiter
}

// NewClient creates a client with a fresh cookie jar. Cookie state lives
// and dies with the client instance; nothing persists across runs.
func NewClient(opts ...Option) Client {
	jar, _ := cookiejar.New(nil)
	c := &httpClient{
		baseURL: defaultBaseURL,
		http: &http.Client{
			Timeout: 30 * time.Second,
			Jar:     jar,
		},
		// Polite pacing between the two requests.
		limiter: rate.NewLimiter(rate.Every(time.Second), 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.timeout > 0 {
		c.http.Timeout = c.timeout
	}
	return c
}

// FetchFiltered performs the two-step filter workflow: a priming GET to the
// listings page that establishes the session cookie, then a POST to the
// filter endpoint on the same session. Returns the filtered page HTML.
func (c *httpClient) FetchFiltered(ctx context.Context, f Filters) (string, error) {
	if err := c.prime(ctx); err != nil {
		return "", eris.Wrap(err, "sscom: prime session")
	}

	body, err := c.postFilter(ctx, f)
	if err != nil {
		return "", eris.Wrap(err, "sscom: submit filter")
	}
	return body, nil
}

// prime issues the session-establishing GET. The response body is discarded;
// only the Set-Cookie exchange matters.
func (c *httpClient) prime(ctx context.Context) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return eris.Wrap(err, "wait rate limit")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+listingsPath, nil)
	if err != nil {
		return eris.Wrap(err, "create request")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return eris.Wrap(err, "execute request")
	}
	defer resp.Body.Close() //nolint:errcheck
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{StatusCode: resp.StatusCode, URL: c.baseURL + listingsPath}
	}
	return nil
}

func (c *httpClient) postFilter(ctx context.Context, f Filters) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", eris.Wrap(err, "wait rate limit")
	}

	form := f.encode().Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+filterPath, strings.NewReader(form))
	if err != nil {
		return "", eris.Wrap(err, "create request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", eris.Wrap(err, "execute request")
	}
	defer resp.Body.Close() //nolint:errcheck

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", eris.Wrap(err, "read response body")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &APIError{StatusCode: resp.StatusCode, URL: c.baseURL + filterPath}
	}

	return string(data), nil
}
