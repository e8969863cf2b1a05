// Package datagov fetches records from the data.gov.sg datastore API.
package datagov

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
)

const (
	defaultBaseURL     = "https://data.gov.sg/api/action/datastore_search"
	defaultMetadataURL = "https://api-production.data.gov.sg/v2/public/api/collections"

	// ResaleCollectionID is the collection holding the resale price datasets.
	ResaleCollectionID = 189
	// RentalCollectionID is the collection holding the rental datasets.
	RentalCollectionID = 166

	// resaleFirstMonth identifies the child dataset the resale pipeline
	// starts from: the one whose first record is January 2017.
	resaleFirstMonth = "2017-01"
)

// Record is one datastore row with every value coerced to a string; the
// upstream mixes strings and numbers per field across datasets.
type Record map[string]string

// UnmarshalJSON coerces numeric and string JSON values into strings.
func (r *Record) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(Record, len(raw))
	for k, v := range raw {
		var s string
		if err := json.Unmarshal(v, &s); err == nil {
			out[k] = s
			continue
		}
		var n json.Number
		if err := json.Unmarshal(v, &n); err == nil {
			out[k] = n.String()
			continue
		}
		out[k] = string(v)
	}
	*r = out
	return nil
}

// Client pages through datastore records by (resource id, limit, offset).
type Client interface {
	// Records fetches one page. The offset is the caller's cursor into the
	// upstream dataset; the same offset returns the same rows.
	Records(ctx context.Context, resourceID string, limit, offset int) ([]Record, error)

	// ResaleResourceID resolves the resale dataset's resource id by probing
	// the collection's child datasets for the 2017-01 first month.
	ResaleResourceID(ctx context.Context) (string, error)

	// RentalResourceID resolves the rental dataset's resource id (the
	// collection's first child).
	RentalResourceID(ctx context.Context) (string, error)
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the datastore_search endpoint.
func WithBaseURL(u string) Option {
	return func(c *httpClient) {
		c.baseURL = u
	}
}

// WithMetadataURL overrides the collections metadata endpoint.
func WithMetadataURL(u string) Option {
	return func(c *httpClient) {
		c.metadataURL = u
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

type httpClient struct {
	baseURL     string
	metadataURL string
	http        *http.Client
}

// NewClient creates a data.gov.sg datastore client.
func NewClient(opts ...Option) Client {
	c := &httpClient{
		baseURL:     defaultBaseURL,
		metadataURL: defaultMetadataURL,
		http:        &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

type searchEnvelope struct {
	Result struct {
		Records []Record `json:"records"`
	} `json:"result"`
}

func (c *httpClient) Records(ctx context.Context, resourceID string, limit, offset int) ([]Record, error) {
	q := url.Values{}
	q.Set("resource_id", resourceID)
	q.Set("limit", strconv.Itoa(limit))
	if offset > 0 {
		q.Set("offset", strconv.Itoa(offset))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "datagov: create search request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "datagov: search request")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("datagov: search returned status %d", resp.StatusCode)
	}

	var env searchEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, eris.Wrap(err, "datagov: decode search response")
	}
	return env.Result.Records, nil
}

type collectionMetadata struct {
	Data struct {
		CollectionMetadata struct {
			ChildDatasets []string `json:"childDatasets"`
		} `json:"collectionMetadata"`
	} `json:"data"`
}

func (c *httpClient) childDatasets(ctx context.Context, collectionID int) ([]string, error) {
	u := fmt.Sprintf("%s/%d/metadata", c.metadataURL, collectionID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, eris.Wrap(err, "datagov: create metadata request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "datagov: metadata request")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("datagov: metadata returned status %d", resp.StatusCode)
	}

	var meta collectionMetadata
	if err := json.NewDecoder(resp.Body).Decode(&meta); err != nil {
		return nil, eris.Wrap(err, "datagov: decode metadata")
	}
	children := meta.Data.CollectionMetadata.ChildDatasets
	if len(children) == 0 {
		return nil, eris.Errorf("datagov: collection %d has no child datasets", collectionID)
	}
	return children, nil
}

func (c *httpClient) ResaleResourceID(ctx context.Context) (string, error) {
	children, err := c.childDatasets(ctx, ResaleCollectionID)
	if err != nil {
		return "", err
	}

	for _, child := range children {
		records, err := c.Records(ctx, child, 1, 0)
		if err != nil {
			return "", eris.Wrapf(err, "datagov: probe dataset %s", child)
		}
		if len(records) > 0 && records[0]["month"] == resaleFirstMonth {
			return child, nil
		}
	}
	return "", eris.Errorf("datagov: no resale dataset starts at %s", resaleFirstMonth)
}

func (c *httpClient) RentalResourceID(ctx context.Context) (string, error) {
	children, err := c.childDatasets(ctx, RentalCollectionID)
	if err != nil {
		return "", err
	}
	return children[0], nil
}
