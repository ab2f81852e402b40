// Package domain models environmental telemetry for the air-quality pipeline.
//
// # Data Sources
//
// Weather readings come from the OpenWeather current-weather API
// (https://api.openweathermap.org/data/2.5/weather), queried by coordinate
// with metric units. Pollution readings come from the OpenAQ v3 API: the
// collector locates up to five monitoring stations within 10 km of a
// location and takes the newest daily measurement from one sensor per
// pollutant parameter.
//
// # Event Shapes
//
// A RawEvent is the envelope published on the raw topic: one source's
// reading for one location at one point in time, carrying the provider
// payload verbatim. The payload is opaque to the producer; normalization
// into a Weather or Pollution half happens in [Normalize], and malformed
// payloads are rejected there before they can reach join state.
//
// A MergedRecord pairs one weather half with one pollution half for the
// same location and is the unit the prediction and training paths consume.
//
// # Provider Conventions
//
// OpenWeather omits the "rain" and "snow" blocks entirely when there is no
// precipitation; both default to zero. Wind direction and cloud cover are
// optional. A response without the "main" block is malformed.
//
// OpenAQ parameter names are lowercased on normalization. The model schema
// recognizes pm25, pm10, o3, no2, so2 and co; other parameters are carried
// through the measurement map but ignored by feature building.
package domain
