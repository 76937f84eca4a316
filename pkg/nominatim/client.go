// Package nominatim queries the OSM Nominatim search API for the single
// best POI match of a (name, postcode) pair within the United Kingdom.
package nominatim

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rotisserie/eris"

	"github.com/nest-urban/anchor-cli/internal/throttle"
)

const defaultBaseURL = "https://nominatim.openstreetmap.org"

// Place is the best-ranked candidate returned by a search. Lat and Lon are
// parsed from Nominatim's string coordinates; the remaining fields carry the
// raw candidate attributes for source attribution.
type Place struct {
	Lat         float64
	Lon         float64
	DisplayName string
	OSMType     string
	OSMID       int64
	Class       string
	Type        string
}

// searchResult mirrors one element of the Nominatim jsonv2 response.
type searchResult struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
	OSMType     string `json:"osm_type"`
	OSMID       int64  `json:"osm_id"`
	Class       string `json:"category"`
	Type        string `json:"type"`
}

// Option configures the client.
type Option func(*Client)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(base string) Option {
	return func(c *Client) {
		c.baseURL = base
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// WithUserAgent sets the User-Agent header. Nominatim's usage policy
// requires an identifying agent with contact details.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		c.userAgent = ua
	}
}

// Client performs searches against the Nominatim API.
type Client struct {
	baseURL   string
	userAgent string
	http      *http.Client
	gate      *throttle.Gate
}

// NewClient creates a Nominatim client. Every request acquires the
// nominatim key on the given gate first.
func NewClient(gate *throttle.Gate, opts ...Option) *Client {
	c := &Client{
		baseURL:   defaultBaseURL,
		userAgent: "anchor-cli/1.0",
		http:      &http.Client{Timeout: 30 * time.Second},
		gate:      gate,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Search looks up the single best POI match for name and postcode,
// restricted to Great Britain. A nil Place with nil error means the
// service responded but found nothing; an error means the search itself
// could not be performed.
func (c *Client) Search(ctx context.Context, name, postcode string) (*Place, error) {
	if err := c.gate.Acquire(ctx, throttle.KeyNominatim); err != nil {
		return nil, err
	}

	params := url.Values{
		"q":              {fmt.Sprintf("%s, %s, United Kingdom", name, postcode)},
		"format":         {"jsonv2"},
		"limit":          {"1"},
		"countrycodes":   {"gb"},
		"addressdetails": {"1"},
	}

	reqURL := c.baseURL + "/search?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "nominatim: build request")
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "nominatim: search request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("nominatim: search returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "nominatim: read body")
	}

	var results []searchResult
	if err := json.Unmarshal(body, &results); err != nil {
		return nil, eris.Wrap(err, "nominatim: parse response")
	}

	if len(results) == 0 {
		return nil, nil
	}

	best := results[0]
	lat, err := strconv.ParseFloat(best.Lat, 64)
	if err != nil {
		return nil, eris.Wrapf(err, "nominatim: parse lat %q", best.Lat)
	}
	lon, err := strconv.ParseFloat(best.Lon, 64)
	if err != nil {
		return nil, eris.Wrapf(err, "nominatim: parse lon %q", best.Lon)
	}

	return &Place{
		Lat:         lat,
		Lon:         lon,
		DisplayName: best.DisplayName,
		OSMType:     best.OSMType,
		OSMID:       best.OSMID,
		Class:       best.Class,
		Type:        best.Type,
	}, nil
}
