package event

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"alertflow/internal/model"
)

func baseEvent() model.NormalizedEvent {
	return model.NormalizedEvent{
		SourceID:   "src-1",
		OriginalID: "guid-42",
		Title:      "Road closed on Abay Ave",
		Severity:   model.SeverityMedium,
		Category:   model.CategoryTraffic,
		Status:     model.StatusActive,
		StartTime:  time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC),
	}
}

func TestFingerprintDeterminism(t *testing.T) {
	e1 := baseEvent()
	e2 := baseEvent()
	e2.Title = "Road closed on Abay Avenue (corrected)"
	e2.Description = "copy-edited description"
	e2.Severity = model.SeverityHigh

	if diff := cmp.Diff(Fingerprint(e1), Fingerprint(e2)); diff != "" {
		t.Errorf("fingerprints should match despite cosmetic edits (-want +got):\n%s", diff)
	}
}

func TestFingerprintSensitivity(t *testing.T) {
	base := baseEvent()

	tests := []struct {
		name   string
		mutate func(*model.NormalizedEvent)
	}{
		{"source id", func(e *model.NormalizedEvent) { e.SourceID = "src-2" }},
		{"original id", func(e *model.NormalizedEvent) { e.OriginalID = "guid-43" }},
		{"category", func(e *model.NormalizedEvent) { e.Category = model.CategoryWeather }},
		{"start time", func(e *model.NormalizedEvent) { e.StartTime = e.StartTime.Add(time.Second) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := baseEvent()
			tt.mutate(&e)
			if Fingerprint(e) == Fingerprint(base) {
				t.Errorf("fingerprint did not change when %s changed", tt.name)
			}
		})
	}
}

func storedFrom(e model.NormalizedEvent) model.StoredEvent {
	return model.StoredEvent{
		Fingerprint: Fingerprint(e),
		SourceID:    e.SourceID,
		OriginalID:  e.OriginalID,
		Title:       e.Title,
		Description: e.Description,
		Severity:    e.Severity,
		Category:    e.Category,
		Status:      e.Status,
		StartTime:   e.StartTime,
		Latitude:    FormatCoord(e.Latitude),
		Longitude:   FormatCoord(e.Longitude),
	}
}

func TestHasMeaningfulChange(t *testing.T) {
	lat := 43.222
	lon := 76.8512

	tests := []struct {
		name   string
		mutate func(*model.NormalizedEvent)
		want   bool
	}{
		{"identical", func(e *model.NormalizedEvent) {}, false},
		{"title edit only", func(e *model.NormalizedEvent) { e.Title = "edited" }, false},
		{"description edit only", func(e *model.NormalizedEvent) { e.Description = "edited" }, false},
		{"severity change", func(e *model.NormalizedEvent) { e.Severity = model.SeverityCritical }, true},
		{"status change", func(e *model.NormalizedEvent) { e.Status = model.StatusResolved }, true},
		{"latitude appears", func(e *model.NormalizedEvent) { e.Latitude = &lat }, true},
		{"longitude appears", func(e *model.NormalizedEvent) { e.Longitude = &lon }, true},
		{"start shifted 59s", func(e *model.NormalizedEvent) { e.StartTime = e.StartTime.Add(59 * time.Second) }, false},
		{"start shifted exactly 60s", func(e *model.NormalizedEvent) { e.StartTime = e.StartTime.Add(60 * time.Second) }, false},
		{"start shifted 61s", func(e *model.NormalizedEvent) { e.StartTime = e.StartTime.Add(61 * time.Second) }, true},
		{"start shifted -61s", func(e *model.NormalizedEvent) { e.StartTime = e.StartTime.Add(-61 * time.Second) }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stored := storedFrom(baseEvent())
			incoming := baseEvent()
			tt.mutate(&incoming)

			if got := HasMeaningfulChange(stored, incoming); got != tt.want {
				t.Errorf("HasMeaningfulChange = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestHasMeaningfulChangeCoordinatePresence(t *testing.T) {
	lat := 43.222
	stored := storedFrom(baseEvent())
	stored.Latitude = FormatCoord(&lat)

	// Stored had a latitude, incoming lost it.
	incoming := baseEvent()
	if !HasMeaningfulChange(stored, incoming) {
		t.Error("losing a coordinate should be a meaningful change")
	}
}

func TestChangedFields(t *testing.T) {
	end := time.Date(2026, 3, 14, 18, 0, 0, 0, time.UTC)

	stored := storedFrom(baseEvent())
	incoming := baseEvent()
	incoming.Title = "Road reopened on Abay Ave"
	incoming.Status = model.StatusResolved
	incoming.EndTime = &end

	want := []string{"title", "status", "endTime"}
	if diff := cmp.Diff(want, ChangedFields(stored, incoming)); diff != "" {
		t.Errorf("changed fields mismatch (-want +got):\n%s", diff)
	}
}

func TestChangedFieldsNoChanges(t *testing.T) {
	stored := storedFrom(baseEvent())
	if got := ChangedFields(stored, baseEvent()); len(got) != 0 {
		t.Errorf("expected no changed fields, got %v", got)
	}
}
