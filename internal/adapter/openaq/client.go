// Package openaq fetches pollution measurements from the OpenAQ v3 API.
//
// One fetch resolves up to five monitoring stations within 10 km of the
// location, then pulls the newest daily measurement from one sensor per
// pollutant parameter. The assembled measurement list is the raw event
// payload.
package openaq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/airsight/air-quality-pipeline/internal/domain"
)

// ErrFetchFailed marks network, HTTP status, and decode failures.
var ErrFetchFailed = errors.New("openaq fetch failed")

// ErrNoData marks a successful response with no nearby stations or no
// usable measurements, distinct from a fetch failure.
var ErrNoData = errors.New("openaq returned no data")

const (
	stationRadiusMeters = 10000
	stationLimit        = 5
	maxParameters       = 5
)

// Client implements the collector's pollution adapter against OpenAQ v3.
type Client struct {
	apiKey     string
	httpClient *http.Client
	baseURL    string
	logger     *slog.Logger
}

// NewClient creates an OpenAQ client. The API key may be empty; OpenAQ
// rate-limits anonymous access but does not require a key.
func NewClient(apiKey string, timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		apiKey: apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL: "https://api.openaq.org/v3",
		logger:  logger,
	}
}

type stationsResponse struct {
	Results []struct {
		ID      int `json:"id"`
		Sensors []struct {
			ID        int `json:"id"`
			Parameter struct {
				Name string `json:"name"`
			} `json:"parameter"`
		} `json:"sensors"`
	} `json:"results"`
}

type measurementsResponse struct {
	Results []json.RawMessage `json:"results"`
}

// Fetch assembles the latest daily measurements around a location into a
// single payload, deduplicating sensors by parameter.
func (c *Client) Fetch(ctx context.Context, loc domain.Location) (json.RawMessage, error) {
	stations, err := c.fetchStations(ctx, loc)
	if err != nil {
		return nil, err
	}
	if len(stations.Results) == 0 {
		return nil, fmt.Errorf("%w: no stations near %q", ErrNoData, loc.Name)
	}

	var measurements []json.RawMessage
	seen := make(map[string]bool)

	for _, station := range stations.Results {
		for _, sensor := range station.Sensors {
			param := strings.ToLower(sensor.Parameter.Name)
			if param == "" || seen[param] {
				continue
			}
			m, err := c.fetchLatestMeasurement(ctx, sensor.ID)
			if err != nil {
				c.logger.Warn("sensor measurement fetch failed",
					"sensor_id", sensor.ID, "parameter", param, "error", err)
				continue
			}
			if m == nil {
				continue
			}
			measurements = append(measurements, m)
			seen[param] = true
		}
		if len(seen) >= maxParameters {
			break
		}
	}

	if len(measurements) == 0 {
		return nil, fmt.Errorf("%w: no measurements near %q", ErrNoData, loc.Name)
	}

	payload, err := json.Marshal(measurements)
	if err != nil {
		return nil, fmt.Errorf("marshal measurements: %w", err)
	}
	if err := domain.ValidatePollutionPayload(payload); err != nil {
		return nil, fmt.Errorf("malformed pollution payload for %q: %w", loc.Name, err)
	}
	return payload, nil
}

func (c *Client) fetchStations(ctx context.Context, loc domain.Location) (*stationsResponse, error) {
	params := url.Values{
		"coordinates": {fmt.Sprintf("%f,%f", loc.Latitude, loc.Longitude)},
		"radius":      {fmt.Sprintf("%d", stationRadiusMeters)},
		"limit":       {fmt.Sprintf("%d", stationLimit)},
		"sort":        {"asc"},
	}

	var stations stationsResponse
	if err := c.getJSON(ctx, c.baseURL+"/locations?"+params.Encode(), &stations); err != nil {
		return nil, err
	}
	return &stations, nil
}

func (c *Client) fetchLatestMeasurement(ctx context.Context, sensorID int) (json.RawMessage, error) {
	u := fmt.Sprintf("%s/sensors/%d/measurements/daily?limit=1&sort=desc", c.baseURL, sensorID)

	var resp measurementsResponse
	if err := c.getJSON(ctx, u, &resp); err != nil {
		return nil, err
	}
	if len(resp.Results) == 0 {
		return nil, nil
	}
	return resp.Results[0], nil
}

func (c *Client) getJSON(ctx context.Context, fullURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrFetchFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: status %d: %s", ErrFetchFailed, resp.StatusCode, body)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode response: %w", ErrFetchFailed, err)
	}
	return nil
}
