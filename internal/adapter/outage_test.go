package adapter

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"alertflow/internal/model"
)

func TestOutageAdapterFetch(t *testing.T) {
	html := loadFixture(t, "../../testdata/fixtures/outage.html")
	a := NewOutageAdapter("src-outage", "https://power.example.kz/schedule",
		model.OutageConfig{City: "Almaty"}, &mockTransport{body: html, statusCode: 200}, nil)

	items, err := a.Fetch(context.Background())
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	// Header and colspan rows are not schedule entries.
	if diff := cmp.Diff(2, len(items)); diff != "" {
		t.Fatalf("item count mismatch (-want +got):\n%s", diff)
	}
}

func TestOutageAdapterNormalize(t *testing.T) {
	html := loadFixture(t, "../../testdata/fixtures/outage.html")
	a := NewOutageAdapter("src-outage", "https://power.example.kz/schedule",
		model.OutageConfig{City: "Almaty", District: "almaly"}, &mockTransport{body: html, statusCode: 200}, nil)

	items, err := a.Fetch(context.Background())
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}

	long := a.Normalize(items[0])
	if !strings.HasPrefix(long.OriginalID, "outage_") {
		t.Errorf("originalID = %q, want outage_ hash", long.OriginalID)
	}
	if !strings.HasPrefix(long.Title, "Электроснабжение: ") {
		t.Errorf("title = %q", long.Title)
	}
	// Nine hours, 450 customers: duration alone pushes it to high.
	if long.Severity != model.SeverityHigh {
		t.Errorf("severity = %q, want high", long.Severity)
	}
	if long.Category != model.CategoryUtility {
		t.Errorf("category = %q, want utility", long.Category)
	}
	if long.District != "алмалинский" {
		t.Errorf("district = %q, want from address text", long.District)
	}
	wantStart := time.Date(2025, 1, 15, 9, 0, 0, 0, time.UTC)
	if !long.StartTime.Equal(wantStart) {
		t.Errorf("startTime = %v, want %v", long.StartTime, wantStart)
	}
	if long.EndTime == nil || !long.EndTime.Equal(time.Date(2025, 1, 15, 18, 0, 0, 0, time.UTC)) {
		t.Errorf("endTime = %v", long.EndTime)
	}
	// The schedule date is in the past relative to the wall clock, so the
	// outage is already over.
	if long.Status != model.StatusResolved {
		t.Errorf("status = %q, want resolved for a past window", long.Status)
	}
	if !strings.Contains(long.Description, "Затронуто: 450") {
		t.Errorf("description missing affected count: %q", long.Description)
	}

	short := a.Normalize(items[1])
	// Three hours, 120 customers.
	if short.Severity != model.SeverityLow {
		t.Errorf("severity = %q, want low", short.Severity)
	}
	// No district in the address: the source config supplies it.
	if short.District != "almaly" {
		t.Errorf("district = %q, want config fallback", short.District)
	}
}

func TestOutageSeverity(t *testing.T) {
	tests := []struct {
		name     string
		duration time.Duration
		affected int
		want     model.Severity
	}{
		{"short small", 2 * time.Hour, 50, model.SeverityLow},
		{"long duration", 9 * time.Hour, 10, model.SeverityHigh},
		{"many affected", time.Hour, 600, model.SeverityHigh},
		{"medium duration", 5 * time.Hour, 10, model.SeverityMedium},
		{"medium affected", time.Hour, 350, model.SeverityMedium},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := OutageSeverity(tt.duration, tt.affected); got != tt.want {
				t.Errorf("OutageSeverity(%v, %d) = %q, want %q", tt.duration, tt.affected, got, tt.want)
			}
		})
	}
}

func TestParseLocalDateTime(t *testing.T) {
	tests := []struct {
		name    string
		date    string
		time    string
		want    *time.Time
		wantNil bool
	}{
		{
			name: "full date and time",
			date: "15.01.2025",
			time: "09:30",
			want: timePtr(time.Date(2025, 1, 15, 9, 30, 0, 0, time.UTC)),
		},
		{
			name: "two digit year",
			date: "15.01.25",
			time: "10:00",
			want: timePtr(time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC)),
		},
		{
			name: "missing time defaults to morning",
			date: "16.01.2025",
			time: "",
			want: timePtr(time.Date(2025, 1, 16, 9, 0, 0, 0, time.UTC)),
		},
		{
			name:    "unparseable date",
			date:    "tomorrow",
			time:    "09:00",
			wantNil: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseLocalDateTime(tt.date, tt.time)
			if tt.wantNil {
				if got != nil {
					t.Fatalf("expected nil, got %v", got)
				}
				return
			}
			if got == nil || !got.Equal(*tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func timePtr(t time.Time) *time.Time { return &t }
