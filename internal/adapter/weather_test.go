package adapter

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"alertflow/internal/model"
)

func TestWeatherAdapterFetch(t *testing.T) {
	payload := loadFixture(t, "../../testdata/fixtures/weather.json")
	a := NewWeatherAdapter("src-weather", "https://api.example.com/forecast",
		model.WeatherConfig{City: "Almaty"}, &mockTransport{body: payload, statusCode: 200}, nil)

	items, err := a.Fetch(context.Background())
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	// One current observation plus two daily entries.
	if diff := cmp.Diff(3, len(items)); diff != "" {
		t.Fatalf("item count mismatch (-want +got):\n%s", diff)
	}
}

func TestWeatherAdapterNormalize(t *testing.T) {
	payload := loadFixture(t, "../../testdata/fixtures/weather.json")
	a := NewWeatherAdapter("src-weather", "https://api.example.com/forecast",
		model.WeatherConfig{City: "Almaty"}, &mockTransport{body: payload, statusCode: 200}, nil)

	items, err := a.Fetch(context.Background())
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}

	current := a.Normalize(items[0])
	if current.OriginalID != "weather_current_2025-01-15T12:00" {
		t.Errorf("originalID = %q", current.OriginalID)
	}
	if current.Title != "Thunderstorm in Almaty" {
		t.Errorf("title = %q", current.Title)
	}
	if current.Severity != model.SeverityCritical {
		t.Errorf("severity = %q, want critical for code 95", current.Severity)
	}
	if current.Category != model.CategoryWeather {
		t.Errorf("category = %q", current.Category)
	}
	if current.EndTime != nil {
		t.Error("current conditions should have no end time")
	}
	if current.Latitude == nil || *current.Latitude != 43.25 {
		t.Errorf("latitude = %v, want API coordinates", current.Latitude)
	}

	daily := a.Normalize(items[1])
	if daily.EndTime == nil {
		t.Fatal("daily forecast should have an end time")
	}
	wantEnd := daily.StartTime.Add(24*time.Hour - time.Second)
	if !daily.EndTime.Equal(wantEnd) {
		t.Errorf("endTime = %v, want %v", daily.EndTime, wantEnd)
	}

	calm := a.Normalize(items[2])
	if calm.Severity != model.SeverityLow {
		t.Errorf("severity = %q, want low for code 2", calm.Severity)
	}
}

func TestWeatherSeverity(t *testing.T) {
	tests := []struct {
		code int
		want model.Severity
	}{
		{0, model.SeverityLow},
		{3, model.SeverityLow},
		{51, model.SeverityMedium},
		{61, model.SeverityMedium},
		{66, model.SeverityHigh},
		{75, model.SeverityHigh},
		{80, model.SeverityMedium},
		{85, model.SeverityHigh},
		{95, model.SeverityCritical},
		{99, model.SeverityCritical},
	}
	for _, tt := range tests {
		if got := WeatherSeverity(tt.code); got != tt.want {
			t.Errorf("WeatherSeverity(%d) = %q, want %q", tt.code, got, tt.want)
		}
	}
}

func TestWeatherCondition(t *testing.T) {
	tests := []struct {
		code int
		want string
	}{
		{0, "Clear sky"},
		{45, "Fog"},
		{63, "Rain"},
		{95, "Thunderstorm"},
		{123, "Unknown weather"},
	}
	for _, tt := range tests {
		if got := WeatherCondition(tt.code); got != tt.want {
			t.Errorf("WeatherCondition(%d) = %q, want %q", tt.code, got, tt.want)
		}
	}
}

func TestParseWeatherTime(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
	}{
		{"2025-01-15T12:00", time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC)},
		{"2025-01-15", time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC)},
		{"2025-01-15T12:00:00Z", time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		if got := parseWeatherTime(tt.in); !got.Equal(tt.want) {
			t.Errorf("parseWeatherTime(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
