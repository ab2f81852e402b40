package domain

import (
	"encoding/json"
	"fmt"
	"strings"
)

// openWeatherPayload mirrors the subset of the OpenWeather current-weather
// response the pipeline consumes. Main is a pointer so a response missing
// the block is detectable as malformed rather than silently zeroed.
type openWeatherPayload struct {
	Main *struct {
		Temp      float64  `json:"temp"`
		FeelsLike float64  `json:"feels_like"`
		Humidity  float64  `json:"humidity"`
		Pressure  *float64 `json:"pressure"`
	} `json:"main"`
	Wind *struct {
		Speed float64  `json:"speed"`
		Deg   *float64 `json:"deg"`
	} `json:"wind"`
	Clouds *struct {
		All float64 `json:"all"`
	} `json:"clouds"`
	Weather []struct {
		Main        string `json:"main"`
		Description string `json:"description"`
	} `json:"weather"`
	Rain map[string]float64 `json:"rain"`
	Snow map[string]float64 `json:"snow"`
}

// openAQMeasurement mirrors one entry of the OpenAQ daily-measurement list
// stored in a pollution raw event.
type openAQMeasurement struct {
	Parameter struct {
		Name  string `json:"name"`
		Units string `json:"units"`
	} `json:"parameter"`
	Value *float64 `json:"value"`
}

// Normalize classifies a raw event by source and parses its payload into
// the matching variant. Malformed payloads return an error and never reach
// join state.
func Normalize(raw RawEvent) (NormalizedEvent, error) {
	header := Header{
		RawID:      raw.ID,
		Location:   raw.Location,
		Latitude:   raw.Latitude,
		Longitude:  raw.Longitude,
		ObservedAt: raw.ObservedAt,
	}

	switch raw.Source {
	case SourceWeather:
		w, err := normalizeWeather(raw.Payload)
		if err != nil {
			return NormalizedEvent{}, fmt.Errorf("normalize weather payload for %q: %w", raw.Location, err)
		}
		return NormalizedEvent{Header: header, Weather: w}, nil
	case SourcePollution:
		p, err := normalizePollution(raw.Payload)
		if err != nil {
			return NormalizedEvent{}, fmt.Errorf("normalize pollution payload for %q: %w", raw.Location, err)
		}
		return NormalizedEvent{Header: header, Pollution: p}, nil
	default:
		return NormalizedEvent{}, fmt.Errorf("unknown event source %q", raw.Source)
	}
}

func normalizeWeather(payload json.RawMessage) (*Weather, error) {
	var p openWeatherPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	if p.Main == nil {
		return nil, fmt.Errorf(`missing "main" block`)
	}

	w := &Weather{
		Temperature: ptr(p.Main.Temp),
		FeelsLike:   ptr(p.Main.FeelsLike),
		Humidity:    ptr(p.Main.Humidity),
		Pressure:    p.Main.Pressure,
		// Absent rain/snow blocks mean no precipitation.
		Rain1h: p.Rain["1h"],
		Snow1h: p.Snow["1h"],
	}
	if p.Wind != nil {
		w.WindSpeed = ptr(p.Wind.Speed)
		w.WindDirection = p.Wind.Deg
	}
	if p.Clouds != nil {
		w.CloudCover = ptr(p.Clouds.All)
	}
	if len(p.Weather) > 0 {
		w.Condition = p.Weather[0].Main
		w.Description = p.Weather[0].Description
	}
	return w, nil
}

func normalizePollution(payload json.RawMessage) (*Pollution, error) {
	var measurements []openAQMeasurement
	if err := json.Unmarshal(payload, &measurements); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}

	p := &Pollution{
		Measurements: make(map[string]float64),
		Units:        make(map[string]string),
	}
	for _, m := range measurements {
		name := strings.ToLower(m.Parameter.Name)
		if name == "" || m.Value == nil {
			continue
		}
		p.Measurements[name] = *m.Value
		if m.Parameter.Units != "" {
			p.Units[name] = m.Parameter.Units
		}
	}
	if len(p.Measurements) == 0 {
		return nil, fmt.Errorf("no usable measurements")
	}
	return p, nil
}

// ValidateWeatherPayload reports whether a provider payload would survive
// weather normalization. Adapters call this so malformed payloads are
// rejected before a raw event is ever produced.
func ValidateWeatherPayload(payload json.RawMessage) error {
	_, err := normalizeWeather(payload)
	return err
}

// ValidatePollutionPayload is the pollution counterpart of
// [ValidateWeatherPayload].
func ValidatePollutionPayload(payload json.RawMessage) error {
	_, err := normalizePollution(payload)
	return err
}

func ptr(v float64) *float64 { return &v }
