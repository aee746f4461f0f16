package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"alertflow/internal/model"
)

// airReading is the air-quality adapter's raw item: one station or
// district measurement with its computed AQI.
type airReading struct {
	ID          string   `json:"id"`
	StationName string   `json:"station_name"`
	District    string   `json:"district"`
	PM25        float64  `json:"pm25"`
	PM10        *float64 `json:"pm10,omitempty"`
	AQI         int      `json:"aqi"`
	Latitude    *float64 `json:"latitude,omitempty"`
	Longitude   *float64 `json:"longitude,omitempty"`
	Datetime    string   `json:"datetime"`
	Fixture     bool     `json:"-"`
}

// airRecord mirrors one record of the station/district API payload.
type airRecord struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	District string   `json:"district"`
	PM25     *float64 `json:"pm25"`
	PM10     *float64 `json:"pm10"`
	Lat      *float64 `json:"lat"`
	Lon      *float64 `json:"lon"`
	Datetime string   `json:"datetime"`
}

// AirQualityAdapter polls a station/district air-quality API and grades
// readings on the US EPA AQI scale.
type AirQualityAdapter struct {
	sourceID string
	url      string
	cfg      model.AirQualityConfig
	client   HTTPClient
	fixtures *FixtureLoader
}

// NewAirQualityAdapter creates an air-quality adapter.
func NewAirQualityAdapter(sourceID, url string, cfg model.AirQualityConfig, client HTTPClient, fixtures *FixtureLoader) *AirQualityAdapter {
	return &AirQualityAdapter{sourceID: sourceID, url: url, cfg: cfg, client: client, fixtures: fixtures}
}

// Fetch downloads the latest readings. Records without a PM2.5 value are
// skipped.
func (a *AirQualityAdapter) Fetch(ctx context.Context) ([]RawItem, error) {
	body, _, err := fetchBody(ctx, a.client, a.url, "application/json", userAgent)
	fixture := false
	if err != nil {
		if !a.fixtures.Enabled() {
			return nil, err
		}
		if body, err = a.fixtures.Load(model.KindAirQuality); err != nil {
			return nil, err
		}
		fixture = true
	}

	var records []airRecord
	if err := json.Unmarshal(body, &records); err != nil {
		// Some deployments return a single object instead of an array.
		var single airRecord
		if err2 := json.Unmarshal(body, &single); err2 != nil {
			return nil, &ParseError{URL: a.url, Err: err}
		}
		records = []airRecord{single}
	}

	var items []RawItem
	for _, rec := range records {
		if rec.PM25 == nil {
			continue
		}
		reading := airReading{
			ID:          rec.ID,
			StationName: rec.Name,
			District:    rec.District,
			PM25:        *rec.PM25,
			PM10:        rec.PM10,
			AQI:         CalculateAQI(*rec.PM25),
			Latitude:    rec.Lat,
			Longitude:   rec.Lon,
			Datetime:    rec.Datetime,
			Fixture:     fixture,
		}
		if reading.StationName == "" {
			reading.StationName = rec.District
		}
		if reading.ID == "" {
			reading.ID = fmt.Sprintf("aqi_%s_%s", rec.District, rec.Datetime)
		}
		items = append(items, reading)
	}
	return items, nil
}

// Normalize converts one reading into the canonical event shape.
func (a *AirQualityAdapter) Normalize(raw RawItem) model.NormalizedEvent {
	reading, ok := raw.(airReading)
	if !ok {
		return model.NormalizedEvent{SourceID: a.sourceID}
	}

	label := AQIHealthLabel(reading.AQI)
	stationName := reading.StationName
	if stationName == "" {
		stationName = "Unknown Station"
	}

	startTime := time.Now().UTC()
	if reading.Datetime != "" {
		for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02 15:04:05"} {
			if t, err := time.Parse(layout, reading.Datetime); err == nil {
				startTime = t.UTC()
				break
			}
		}
	}

	return model.NormalizedEvent{
		SourceID:     a.sourceID,
		OriginalID:   reading.ID,
		Title:        fmt.Sprintf("Air Quality %s - %s", label, stationName),
		Description:  airDescription(reading.AQI, reading.PM25, reading.PM10, label),
		Severity:     AQISeverity(reading.AQI),
		Category:     model.CategoryHealth,
		Status:       model.StatusActive,
		StartTime:    startTime,
		District:     normalizeDistrict(reading.District),
		LocationName: stationName,
		Latitude:     reading.Latitude,
		Longitude:    reading.Longitude,
		RawData:      marshalRaw(reading, reading.Fixture),
	}
}

// pm25Breakpoint is one segment of the EPA piecewise-linear AQI scale.
type pm25Breakpoint struct {
	low, high       float64
	aqiLow, aqiHigh int
}

// US EPA AQI breakpoints for PM2.5 (µg/m³, 24h average).
var pm25Breakpoints = []pm25Breakpoint{
	{0.0, 12.0, 0, 50},
	{12.1, 35.4, 51, 100},
	{35.5, 55.4, 101, 150},
	{55.5, 150.4, 151, 200},
	{150.5, 250.4, 201, 300},
	{250.5, 500.0, 301, 500},
}

// CalculateAQI computes the US EPA AQI for a PM2.5 concentration using
// linear interpolation within the matching breakpoint segment.
func CalculateAQI(pm25 float64) int {
	if pm25 > 500 {
		return 500
	}
	for _, bp := range pm25Breakpoints {
		if pm25 >= bp.low && pm25 <= bp.high {
			return int(math.Round(
				float64(bp.aqiHigh-bp.aqiLow)/(bp.high-bp.low)*(pm25-bp.low) + float64(bp.aqiLow),
			))
		}
	}
	return 0
}

// AQISeverity maps an AQI value to a severity tier.
func AQISeverity(aqi int) model.Severity {
	switch {
	case aqi <= 50:
		return model.SeverityLow
	case aqi <= 100:
		return model.SeverityMedium
	case aqi <= 150:
		return model.SeverityHigh
	default:
		return model.SeverityCritical
	}
}

// AQIHealthLabel returns the EPA health-status label for an AQI value.
func AQIHealthLabel(aqi int) string {
	switch {
	case aqi <= 50:
		return "Good"
	case aqi <= 100:
		return "Moderate"
	case aqi <= 150:
		return "Unhealthy for Sensitive Groups"
	case aqi <= 200:
		return "Unhealthy"
	case aqi <= 300:
		return "Very Unhealthy"
	default:
		return "Hazardous"
	}
}

func airDescription(aqi int, pm25 float64, pm10 *float64, label string) string {
	parts := []string{
		fmt.Sprintf("AQI: %d", aqi),
		fmt.Sprintf("PM2.5: %.1f µg/m³", pm25),
	}
	if pm10 != nil {
		parts = append(parts, fmt.Sprintf("PM10: %.1f µg/m³", *pm10))
	}
	parts = append(parts, "Primary pollutant: PM2.5")
	parts = append(parts, "Health recommendation: "+aqiRecommendation(aqi))
	return strings.Join(parts, ", ")
}

func aqiRecommendation(aqi int) string {
	switch {
	case aqi <= 50:
		return "Air quality is satisfactory, and air pollution poses little or no risk."
	case aqi <= 100:
		return "Unusually sensitive people should consider reducing prolonged or heavy outdoor exertion."
	case aqi <= 150:
		return "People with respiratory or heart disease, the elderly, and children should limit prolonged outdoor exertion."
	case aqi <= 200:
		return "Everyone may begin to experience health effects. Avoid prolonged outdoor exertion."
	case aqi <= 300:
		return "Health alert: everyone may experience more serious health effects. Avoid all outdoor exertion."
	default:
		return "Health warning: emergency conditions. Everyone should avoid all outdoor exertion and remain indoors."
	}
}

func normalizeDistrict(district string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(district)), " ", "_")
}
