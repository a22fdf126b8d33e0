// Package mapbox names prediction locations through the Mapbox reverse
// geocoding API.
package mapbox

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/couchcryptid/crash-risk-service/internal/domain"
)

const defaultBaseURL = "https://api.mapbox.com/geocoding/v5/mapbox.places"

// nameTypes restricts reverse results to features that make sensible
// location labels, most specific first.
const nameTypes = "address,neighborhood,locality,place"

// Client implements domain.Geocoder using the Mapbox Geocoding API.
type Client struct {
	token      string
	httpClient *http.Client
	baseURL    string
	logger     *slog.Logger
}

// NewClient creates a Mapbox geocoding client.
func NewClient(token string, timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    defaultBaseURL,
		logger:     logger,
	}
}

// ReverseGeocode labels the road point at lat,lon. Street matches are
// labelled "<street>, <town>" so the map shows which road the risk is on.
// No match yields a zero result and no error; HTTP 429 wraps
// domain.ErrRateLimited.
func (c *Client) ReverseGeocode(ctx context.Context, lat, lon float64) (domain.GeocodingResult, error) {
	params := url.Values{
		"access_token": {c.token},
		"limit":        {"1"},
		"types":        {nameTypes},
		"country":      {"us"},
	}
	// Mapbox uses lon,lat order.
	endpoint := fmt.Sprintf("%s/%.6f,%.6f.json?%s", c.baseURL, lon, lat, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return domain.GeocodingResult{}, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.GeocodingResult{}, fmt.Errorf("reverse geocode request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return domain.GeocodingResult{}, fmt.Errorf("%w: mapbox status 429, retry after %q", domain.ErrRateLimited, resp.Header.Get("Retry-After"))
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return domain.GeocodingResult{}, fmt.Errorf("mapbox API error: status %d: %s", resp.StatusCode, body)
	}

	var decoded response
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return domain.GeocodingResult{}, fmt.Errorf("decode response: %w", err)
	}
	if len(decoded.Features) == 0 {
		c.logger.Debug("no reverse geocoding match", "lat", lat, "lon", lon)
		return domain.GeocodingResult{}, nil
	}

	f := decoded.Features[0]
	return domain.GeocodingResult{
		FormattedAddress: f.PlaceName,
		PlaceName:        f.label(),
		Confidence:       f.Relevance,
	}, nil
}

type response struct {
	Features []feature `json:"features"`
}

type feature struct {
	PlaceName  string        `json:"place_name"`
	Text       string        `json:"text"`
	PlaceTypes []string      `json:"place_type"`
	Relevance  float64       `json:"relevance"`
	Context    []contextItem `json:"context"`
}

// contextItem is one enclosing region of a feature; ID is prefixed with the
// region type, e.g. "place.12345".
type contextItem struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

func (f feature) label() string {
	if !f.isAddress() {
		return f.Text
	}
	for _, prefix := range []string{"place.", "locality."} {
		for _, c := range f.Context {
			if strings.HasPrefix(c.ID, prefix) && c.Text != "" {
				return f.Text + ", " + c.Text
			}
		}
	}
	return f.Text
}

func (f feature) isAddress() bool {
	for _, t := range f.PlaceTypes {
		if t == "address" {
			return true
		}
	}
	return false
}
