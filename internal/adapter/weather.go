package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"alertflow/internal/model"
)

// weatherResponse mirrors the Open-Meteo forecast payload.
type weatherResponse struct {
	Latitude       float64 `json:"latitude"`
	Longitude      float64 `json:"longitude"`
	CurrentWeather *struct {
		Temperature float64 `json:"temperature"`
		Windspeed   float64 `json:"windspeed"`
		Weathercode int     `json:"weathercode"`
		Time        string  `json:"time"`
	} `json:"current_weather"`
	Daily *struct {
		Time           []string  `json:"time"`
		Weathercode    []int     `json:"weathercode"`
		TemperatureMax []float64 `json:"temperature_2m_max"`
		TemperatureMin []float64 `json:"temperature_2m_min"`
		Precipitation  []float64 `json:"precipitation_sum"`
	} `json:"daily"`
}

// weatherObs is the weather adapter's raw item: either the current
// observation or one daily forecast entry.
type weatherObs struct {
	ID             string  `json:"id"`
	Time           string  `json:"time"`
	Weathercode    int     `json:"weathercode"`
	IsCurrent      bool    `json:"is_current"`
	Temperature    float64 `json:"temperature,omitempty"`
	TemperatureMax float64 `json:"temperature_max,omitempty"`
	TemperatureMin float64 `json:"temperature_min,omitempty"`
	Windspeed      float64 `json:"windspeed,omitempty"`
	Precipitation  float64 `json:"precipitation,omitempty"`
	Latitude       float64 `json:"latitude"`
	Longitude      float64 `json:"longitude"`
	Fixture        bool    `json:"-"`
}

// WeatherAdapter polls an Open-Meteo style forecast API. It emits one
// current-conditions event plus one event per daily forecast entry.
type WeatherAdapter struct {
	sourceID string
	url      string
	cfg      model.WeatherConfig
	client   HTTPClient
	fixtures *FixtureLoader
}

// NewWeatherAdapter creates a weather adapter for one location.
func NewWeatherAdapter(sourceID, url string, cfg model.WeatherConfig, client HTTPClient, fixtures *FixtureLoader) *WeatherAdapter {
	if cfg.City == "" {
		cfg.City = "Almaty"
	}
	return &WeatherAdapter{sourceID: sourceID, url: url, cfg: cfg, client: client, fixtures: fixtures}
}

// Fetch downloads the forecast and flattens it into raw observations.
func (a *WeatherAdapter) Fetch(ctx context.Context) ([]RawItem, error) {
	body, _, err := fetchBody(ctx, a.client, a.url, "application/json", userAgent)
	fixture := false
	if err != nil {
		if !a.fixtures.Enabled() {
			return nil, err
		}
		if body, err = a.fixtures.Load(model.KindWeather); err != nil {
			return nil, err
		}
		fixture = true
	}

	var resp weatherResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &ParseError{URL: a.url, Err: err}
	}

	var items []RawItem
	if cw := resp.CurrentWeather; cw != nil {
		items = append(items, weatherObs{
			ID:          "weather_current_" + cw.Time,
			Time:        cw.Time,
			Weathercode: cw.Weathercode,
			IsCurrent:   true,
			Temperature: cw.Temperature,
			Windspeed:   cw.Windspeed,
			Latitude:    resp.Latitude,
			Longitude:   resp.Longitude,
			Fixture:     fixture,
		})
	}
	if d := resp.Daily; d != nil {
		for i, day := range d.Time {
			obs := weatherObs{
				ID:        "weather_daily_" + day,
				Time:      day,
				Latitude:  resp.Latitude,
				Longitude: resp.Longitude,
				Fixture:   fixture,
			}
			if i < len(d.Weathercode) {
				obs.Weathercode = d.Weathercode[i]
			}
			if i < len(d.TemperatureMax) {
				obs.TemperatureMax = d.TemperatureMax[i]
			}
			if i < len(d.TemperatureMin) {
				obs.TemperatureMin = d.TemperatureMin[i]
			}
			if i < len(d.Precipitation) {
				obs.Precipitation = d.Precipitation[i]
			}
			items = append(items, obs)
		}
	}
	return items, nil
}

// Normalize converts one observation into the canonical event shape.
func (a *WeatherAdapter) Normalize(raw RawItem) model.NormalizedEvent {
	obs, ok := raw.(weatherObs)
	if !ok {
		return model.NormalizedEvent{SourceID: a.sourceID}
	}

	condition := WeatherCondition(obs.Weathercode)
	severity := WeatherSeverity(obs.Weathercode)

	var title, description string
	var endTime *time.Time
	startTime := parseWeatherTime(obs.Time)

	if obs.IsCurrent {
		title = fmt.Sprintf("%s in %s", condition, a.cfg.City)
		description = fmt.Sprintf("Current temperature: %.1f°C. %s",
			obs.Temperature, healthRecommendation(obs.Weathercode, obs.Temperature))
	} else {
		title = fmt.Sprintf("%s forecast for %s", condition, startTime.Format("Monday, January 2"))
		description = fmt.Sprintf("Temperature: %.1f°C to %.1f°C", obs.TemperatureMin, obs.TemperatureMax)
		if obs.Precipitation > 0 {
			description += fmt.Sprintf(", Precipitation: %.1fmm", obs.Precipitation)
		}
		description += ". " + healthRecommendation(obs.Weathercode, obs.TemperatureMax)
		end := startTime.Add(24*time.Hour - time.Second)
		endTime = &end
	}

	lat, lon := obs.Latitude, obs.Longitude
	if lat == 0 && lon == 0 {
		lat, lon = a.cfg.Latitude, a.cfg.Longitude
	}

	return model.NormalizedEvent{
		SourceID:     a.sourceID,
		OriginalID:   obs.ID,
		Title:        title,
		Description:  description,
		Severity:     severity,
		Category:     model.CategoryWeather,
		Status:       model.StatusActive,
		StartTime:    startTime,
		EndTime:      endTime,
		LocationName: a.cfg.City,
		Latitude:     &lat,
		Longitude:    &lon,
		RawData:      marshalRaw(obs, obs.Fixture),
	}
}

// WeatherCondition maps a WMO weather interpretation code to a
// human-readable condition.
func WeatherCondition(code int) string {
	switch {
	case code == 0:
		return "Clear sky"
	case code == 1:
		return "Mainly clear"
	case code == 2:
		return "Partly cloudy"
	case code == 3:
		return "Overcast"
	case code == 45 || code == 48:
		return "Fog"
	case code >= 51 && code <= 55:
		return "Drizzle"
	case code == 56 || code == 57:
		return "Freezing drizzle"
	case code >= 61 && code <= 65:
		return "Rain"
	case code == 66 || code == 67:
		return "Freezing rain"
	case code >= 71 && code <= 75:
		return "Snow"
	case code == 77:
		return "Snow grains"
	case code >= 80 && code <= 82:
		return "Rain showers"
	case code == 85 || code == 86:
		return "Snow showers"
	case code == 95:
		return "Thunderstorm"
	case code == 96 || code == 99:
		return "Thunderstorm with hail"
	default:
		return "Unknown weather"
	}
}

// WeatherSeverity grades a WMO weather code. Thunderstorms are always
// critical, independent of temperature.
func WeatherSeverity(code int) model.Severity {
	switch {
	case code <= 3:
		return model.SeverityLow
	case code <= 57:
		return model.SeverityMedium
	case code <= 77:
		if code >= 66 {
			return model.SeverityHigh
		}
		return model.SeverityMedium
	case code <= 86:
		if code >= 82 {
			return model.SeverityHigh
		}
		return model.SeverityMedium
	case code >= 95:
		return model.SeverityCritical
	default:
		return model.SeverityLow
	}
}

// healthRecommendation builds safety advice from temperature and
// conditions.
func healthRecommendation(code int, temperature float64) string {
	var recs []string

	switch {
	case temperature < -20:
		recs = append(recs, "Extreme cold: Avoid prolonged outdoor exposure. Risk of frostbite within minutes.")
	case temperature < -10:
		recs = append(recs, "Very cold: Dress warmly in layers. Limit outdoor activities.")
	case temperature < 0:
		recs = append(recs, "Cold weather: Wear warm clothing and stay dry.")
	case temperature > 35:
		recs = append(recs, "Extreme heat: Stay hydrated and avoid prolonged sun exposure.")
	case temperature > 30:
		recs = append(recs, "Hot weather: Drink plenty of water and take breaks in shade.")
	}

	switch {
	case code >= 95:
		recs = append(recs, "Thunderstorm warning: Stay indoors, avoid open areas and metal objects.")
	case code >= 80:
		recs = append(recs, "Heavy precipitation: Exercise caution on roads and walkways.")
	case code >= 66:
		recs = append(recs, "Freezing conditions: Be extremely careful, roads may be icy.")
	case code >= 45:
		recs = append(recs, "Low visibility: Drive carefully and use fog lights.")
	}

	if len(recs) == 0 {
		return "Normal weather conditions."
	}
	return strings.Join(recs, " ")
}

// parseWeatherTime accepts the API's date and date-time shapes.
func parseWeatherTime(value string) time.Time {
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04", "2006-01-02"} {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC()
		}
	}
	return time.Now().UTC()
}
