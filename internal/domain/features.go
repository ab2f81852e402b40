package domain

// FeatureNames is the fixed model schema, in column order. Training and
// inference both use the full schema; the feature sets must stay in parity.
var FeatureNames = []string{
	"temperature",
	"humidity",
	"wind_speed",
	"pressure",
	"cloud_cover",
	"pm25",
	"pm10",
	"o3",
	"no2",
	"so2",
	"co",
}

// TargetFeature is the regression target column.
const TargetFeature = "pm25"

// FeatureDefaults are the documented fallbacks used on the prediction path
// when a merged record lacks a field.
var FeatureDefaults = map[string]float64{
	"temperature": 20,
	"humidity":    50,
	"wind_speed":  5,
	"pressure":    1013,
	"cloud_cover": 0,
	"pm25":        10,
	"pm10":        20,
	"o3":          30,
	"no2":         10,
	"so2":         5,
	"co":          0.5,
}

// FeatureRow extracts the schema features present in a merged record.
// Absent fields are left out of the map; the caller decides between
// documented defaults (prediction) and column fill (training).
func FeatureRow(rec MergedRecord) map[string]float64 {
	row := make(map[string]float64, len(FeatureNames))

	putIf(row, "temperature", rec.Weather.Temperature)
	putIf(row, "humidity", rec.Weather.Humidity)
	putIf(row, "wind_speed", rec.Weather.WindSpeed)
	putIf(row, "pressure", rec.Weather.Pressure)
	putIf(row, "cloud_cover", rec.Weather.CloudCover)

	for _, name := range FeatureNames[5:] {
		if v, ok := rec.Pollution.Measurements[name]; ok {
			row[name] = v
		}
	}
	return row
}

// PredictionFeatures builds the full feature map for inference, filling
// absent fields with the documented defaults.
func PredictionFeatures(rec MergedRecord) map[string]float64 {
	row := FeatureRow(rec)
	for name, def := range FeatureDefaults {
		if _, ok := row[name]; !ok {
			row[name] = def
		}
	}
	return row
}

// Vector orders a feature map by the fixed schema.
func Vector(features map[string]float64) []float64 {
	v := make([]float64, len(FeatureNames))
	for i, name := range FeatureNames {
		v[i] = features[name]
	}
	return v
}

func putIf(row map[string]float64, name string, v *float64) {
	if v != nil {
		row[name] = *v
	}
}
