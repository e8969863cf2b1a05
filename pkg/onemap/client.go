// Package onemap provides address geocoding via the OneMap Search API.
package onemap

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

const defaultBaseURL = "https://www.onemap.gov.sg/api/common/elastic/search"

// defaultRPM matches the free tier's documented limit of 250 requests/minute.
const defaultRPM = 250

// Client resolves address strings to coordinates.
type Client interface {
	// Geocode looks up a single address. An address with no results is not
	// an error; the returned Result has Matched=false.
	Geocode(ctx context.Context, address string) (*Result, error)
}

// Result holds the geocoding output for an address.
type Result struct {
	Latitude  float64
	Longitude float64
	Matched   bool
}

// searchResponse is the OneMap results envelope. Coordinates arrive as
// strings; the response is decoded strictly rather than evaluated.
type searchResponse struct {
	Found   int            `json:"found"`
	Results []searchResult `json:"results"`
}

type searchResult struct {
	Latitude  string `json:"LATITUDE"`
	Longitude string `json:"LONGITUDE"`
	BlkNo     string `json:"BLK_NO"`
	RoadName  string `json:"ROAD_NAME"`
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default search endpoint.
func WithBaseURL(u string) Option {
	return func(c *httpClient) {
		c.baseURL = u
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithRateLimit sets the requests-per-minute limit.
func WithRateLimit(rpm int) Option {
	return func(c *httpClient) {
		c.limiter = rate.NewLimiter(rate.Limit(float64(rpm)/60), 1)
	}
}

type httpClient struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
}

// NewClient creates a OneMap geocoding client.
func NewClient(opts ...Option) Client {
	c := &httpClient{
		baseURL: defaultBaseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
		limiter: rate.NewLimiter(rate.Limit(float64(defaultRPM)/60), 1),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *httpClient) Geocode(ctx context.Context, address string) (*Result, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "onemap: rate limit wait")
	}

	q := url.Values{}
	q.Set("searchVal", address)
	q.Set("returnGeom", "Y")
	q.Set("getAddrDetails", "Y")
	q.Set("pageNum", "1")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "onemap: create request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "onemap: search request")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("onemap: search returned status %d", resp.StatusCode)
	}

	var sr searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return nil, eris.Wrap(err, "onemap: decode response")
	}

	if len(sr.Results) == 0 {
		return &Result{Matched: false}, nil
	}

	lat, err := strconv.ParseFloat(sr.Results[0].Latitude, 64)
	if err != nil {
		return nil, eris.Wrapf(err, "onemap: parse latitude %q", sr.Results[0].Latitude)
	}
	lon, err := strconv.ParseFloat(sr.Results[0].Longitude, 64)
	if err != nil {
		return nil, eris.Wrapf(err, "onemap: parse longitude %q", sr.Results[0].Longitude)
	}

	return &Result{Latitude: lat, Longitude: lon, Matched: true}, nil
}
