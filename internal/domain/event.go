package domain

import (
	"encoding/json"
	"time"
)

// Source identifies which upstream provider produced a raw event.
type Source string

const (
	SourceWeather   Source = "weather"
	SourcePollution Source = "pollution"
)

// Location is a monitored geographic point, read from the registry each
// collection cycle. Locations are managed by an external admin surface and
// are read-only to the pipeline.
type Location struct {
	Name      string
	Latitude  float64
	Longitude float64
	Country   string
	City      string
	IsActive  bool
}

// RawEvent is the envelope published on the raw topic: one source's reading
// for one location, with the provider payload carried verbatim.
type RawEvent struct {
	ID         uint            `json:"id"`
	Source     Source          `json:"source"`
	Location   string          `json:"location"`
	Latitude   float64         `json:"latitude"`
	Longitude  float64         `json:"longitude"`
	Payload    json.RawMessage `json:"payload"`
	ObservedAt time.Time       `json:"observed_at"`
}

// Weather is the normalized weather half of a merged record. Optional
// provider fields are pointers so that "not reported" survives the round
// trip through JSON; rain and snow default to zero when absent upstream.
type Weather struct {
	Temperature   *float64 `json:"temperature,omitempty"`
	FeelsLike     *float64 `json:"feels_like,omitempty"`
	Humidity      *float64 `json:"humidity,omitempty"`
	Pressure      *float64 `json:"pressure,omitempty"`
	WindSpeed     *float64 `json:"wind_speed,omitempty"`
	WindDirection *float64 `json:"wind_direction,omitempty"`
	CloudCover    *float64 `json:"cloud_cover,omitempty"`
	Condition     string   `json:"condition,omitempty"`
	Description   string   `json:"description,omitempty"`
	Rain1h        float64  `json:"rain_1h"`
	Snow1h        float64  `json:"snow_1h"`
}

// Pollution is the normalized pollution half: pollutant concentrations
// keyed by lowercased OpenAQ parameter name, with their reported units.
type Pollution struct {
	Measurements map[string]float64 `json:"measurements"`
	Units        map[string]string  `json:"units,omitempty"`
}

// Header carries the fields common to both normalized event variants.
type Header struct {
	RawID      uint
	Location   string
	Latitude   float64
	Longitude  float64
	ObservedAt time.Time
}

// NormalizedEvent is the tagged result of normalizing a raw event: exactly
// one of Weather or Pollution is non-nil, matching Source().
type NormalizedEvent struct {
	Header    Header
	Weather   *Weather
	Pollution *Pollution
}

// Source reports which variant this event holds.
func (e NormalizedEvent) Source() Source {
	if e.Weather != nil {
		return SourceWeather
	}
	return SourcePollution
}

// MergedRecord is the envelope published on the processed topic: one
// weather half and one pollution half for the same location. Immutable
// once created.
type MergedRecord struct {
	ID         uint      `json:"id"`
	Location   string    `json:"location"`
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	Weather    Weather   `json:"weather"`
	Pollution  Pollution `json:"pollution"`
	ObservedAt time.Time `json:"observed_at"`
}
