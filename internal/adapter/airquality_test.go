package adapter

import (
	"context"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"alertflow/internal/model"
)

func TestAirQualityAdapterFetch(t *testing.T) {
	payload := loadFixture(t, "../../testdata/fixtures/air_quality.json")
	a := NewAirQualityAdapter("src-air", "https://api.example.com/air",
		model.AirQualityConfig{City: "Almaty"}, &mockTransport{body: payload, statusCode: 200}, nil)

	items, err := a.Fetch(context.Background())
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	// The record with a null PM2.5 is dropped.
	if diff := cmp.Diff(2, len(items)); diff != "" {
		t.Fatalf("item count mismatch (-want +got):\n%s", diff)
	}
}

func TestAirQualityAdapterSingleObjectPayload(t *testing.T) {
	payload := `{"id":"s1","name":"Center","district":"Almaly","pm25":10.0,"datetime":"2025-01-15T11:00:00"}`
	a := NewAirQualityAdapter("src-air", "https://api.example.com/air",
		model.AirQualityConfig{}, &mockTransport{body: payload, statusCode: 200}, nil)

	items, err := a.Fetch(context.Background())
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(items))
	}
}

func TestAirQualityAdapterNormalize(t *testing.T) {
	payload := loadFixture(t, "../../testdata/fixtures/air_quality.json")
	a := NewAirQualityAdapter("src-air", "https://api.example.com/air",
		model.AirQualityConfig{City: "Almaty"}, &mockTransport{body: payload, statusCode: 200}, nil)

	items, err := a.Fetch(context.Background())
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}

	polluted := a.Normalize(items[0])
	// PM2.5 40.0 interpolates to AQI 112 in the 35.5-55.4 band.
	if polluted.Severity != model.SeverityHigh {
		t.Errorf("severity = %q, want high for AQI 112", polluted.Severity)
	}
	if polluted.Category != model.CategoryHealth {
		t.Errorf("category = %q, want health", polluted.Category)
	}
	if polluted.Title != "Air Quality Unhealthy for Sensitive Groups - Almaty Center" {
		t.Errorf("title = %q", polluted.Title)
	}
	if !strings.Contains(polluted.Description, "AQI: 112") {
		t.Errorf("description missing AQI value: %q", polluted.Description)
	}
	if polluted.District != "almaly" {
		t.Errorf("district = %q, want almaly", polluted.District)
	}
	if polluted.Latitude == nil || *polluted.Latitude != 43.2567 {
		t.Errorf("latitude = %v", polluted.Latitude)
	}

	clean := a.Normalize(items[1])
	if clean.Severity != model.SeverityLow {
		t.Errorf("severity = %q, want low for PM2.5 8.2", clean.Severity)
	}
	if clean.Latitude != nil {
		t.Error("station without coordinates should have nil latitude")
	}
}

func TestCalculateAQI(t *testing.T) {
	tests := []struct {
		pm25 float64
		want int
	}{
		{0.0, 0},
		{12.0, 50},
		{12.1, 51},
		{35.4, 100},
		{40.0, 112},
		{55.4, 150},
		{150.4, 200},
		{250.4, 300},
		{500.0, 500},
		{750.0, 500},
	}
	for _, tt := range tests {
		if got := CalculateAQI(tt.pm25); got != tt.want {
			t.Errorf("CalculateAQI(%.1f) = %d, want %d", tt.pm25, got, tt.want)
		}
	}
}

func TestAQISeverity(t *testing.T) {
	tests := []struct {
		aqi  int
		want model.Severity
	}{
		{0, model.SeverityLow},
		{50, model.SeverityLow},
		{51, model.SeverityMedium},
		{100, model.SeverityMedium},
		{101, model.SeverityHigh},
		{150, model.SeverityHigh},
		{151, model.SeverityCritical},
		{400, model.SeverityCritical},
	}
	for _, tt := range tests {
		if got := AQISeverity(tt.aqi); got != tt.want {
			t.Errorf("AQISeverity(%d) = %q, want %q", tt.aqi, got, tt.want)
		}
	}
}
