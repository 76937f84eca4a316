// Package overpass queries the Overpass API for entrance nodes near a
// coordinate and selects the best candidate by entrance-tag quality.
package overpass

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/nest-urban/anchor-cli/internal/throttle"
)

const (
	defaultBaseURL = "https://overpass-api.de/api/interpreter"

	// DefaultRadiusM is the default search radius around a POI point.
	DefaultRadiusM = 150
)

// Entrance is the selected entrance node.
type Entrance struct {
	Lat  float64
	Lon  float64
	Tags map[string]string
}

// IsMain reports whether the node is tagged as the primary entrance.
func (e *Entrance) IsMain() bool {
	return e.Tags["entrance"] == "main"
}

// element mirrors one node of the Overpass JSON response.
type element struct {
	Lat  float64           `json:"lat"`
	Lon  float64           `json:"lon"`
	Tags map[string]string `json:"tags"`
}

type response struct {
	Elements []element `json:"elements"`
}

// Option configures the client.
type Option func(*Client)

// WithBaseURL overrides the default interpreter URL.
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

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		c.userAgent = ua
	}
}

// Client performs entrance queries against the Overpass API.
type Client struct {
	baseURL   string
	userAgent string
	http      *http.Client
	gate      *throttle.Gate
}

// NewClient creates an Overpass client. Every request acquires the
// overpass key on the given gate first.
func NewClient(gate *throttle.Gate, opts ...Option) *Client {
	c := &Client{
		baseURL:   defaultBaseURL,
		userAgent: "anchor-cli/1.0",
		http:      &http.Client{Timeout: 60 * time.Second},
		gate:      gate,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// entranceScore ranks candidates: 0 for entrance=main, 1 for any other
// entrance tag, 2 for nodes matched only via highway=entrance.
func entranceScore(el element) int {
	if el.Tags["entrance"] == "main" {
		return 0
	}
	if _, ok := el.Tags["entrance"]; ok {
		return 1
	}
	return 2
}

// FindEntrance queries for entrance nodes within radiusM metres of the
// given point and returns the best-scoring one. A nil Entrance with nil
// error means the query succeeded but found no entrance nodes.
func (c *Client) FindEntrance(ctx context.Context, lat, lon float64, radiusM int) (*Entrance, error) {
	if radiusM <= 0 {
		radiusM = DefaultRadiusM
	}

	if err := c.gate.Acquire(ctx, throttle.KeyOverpass); err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`[out:json][timeout:25];
(
  node(around:%d,%f,%f)["entrance"];
  node(around:%d,%f,%f)["highway"="entrance"];
);
out body;`, radiusM, lat, lon, radiusM, lat, lon)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, strings.NewReader(query))
	if err != nil {
		return nil, eris.Wrap(err, "overpass: build request")
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "overpass: entrance request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("overpass: entrance query returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "overpass: read body")
	}

	var parsed response
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, eris.Wrap(err, "overpass: parse response")
	}

	if len(parsed.Elements) == 0 {
		return nil, nil
	}

	// Stable sort keeps the service's original ordering within a score band.
	els := parsed.Elements
	sort.SliceStable(els, func(i, j int) bool {
		return entranceScore(els[i]) < entranceScore(els[j])
	})

	best := els[0]
	tags := best.Tags
	if tags == nil {
		tags = map[string]string{}
	}
	return &Entrance{Lat: best.Lat, Lon: best.Lon, Tags: tags}, nil
}
