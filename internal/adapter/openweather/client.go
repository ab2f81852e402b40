// Package openweather fetches current-weather readings from the
// OpenWeather API and normalizes failures into typed outcomes.
package openweather

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/airsight/air-quality-pipeline/internal/domain"
)

// ErrFetchFailed marks network, HTTP status, and decode failures, distinct
// from a response that succeeded but carried no usable data.
var ErrFetchFailed = errors.New("openweather fetch failed")

// Client implements the collector's weather adapter against the
// OpenWeather current-weather endpoint.
type Client struct {
	apiKey     string
	httpClient *http.Client
	baseURL    string
	logger     *slog.Logger
}

// NewClient creates an OpenWeather client.
func NewClient(apiKey string, timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		apiKey: apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL: "https://api.openweathermap.org/data/2.5/weather",
		logger:  logger,
	}
}

// Fetch retrieves the current weather for a location's coordinates and
// returns the provider payload verbatim, after verifying it normalizes.
func (c *Client) Fetch(ctx context.Context, loc domain.Location) (json.RawMessage, error) {
	params := url.Values{
		"lat":   {strconv.FormatFloat(loc.Latitude, 'f', -1, 64)},
		"lon":   {strconv.FormatFloat(loc.Longitude, 'f', -1, 64)},
		"appid": {c.apiKey},
		"units": {"metric"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetchFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: status %d: %s", ErrFetchFailed, resp.StatusCode, body)
	}

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %w", ErrFetchFailed, err)
	}

	if err := domain.ValidateWeatherPayload(payload); err != nil {
		return nil, fmt.Errorf("malformed weather payload for %q: %w", loc.Name, err)
	}
	return payload, nil
}
