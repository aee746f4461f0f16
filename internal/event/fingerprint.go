// Package event implements event identity and change detection.
package event

import (
	"fmt"
	"hash/fnv"
	"strconv"
	"time"

	"alertflow/internal/model"
)

// startTimeTolerance is how far an event's start time may drift before the
// shift counts as a meaningful change.
const startTimeTolerance = 60 * time.Second

// Fingerprint computes the deterministic dedup identity of an event.
// Title and description are deliberately excluded so that cosmetic source
// corrections do not create duplicate events. A hash collision merges the
// colliding events.
func Fingerprint(e model.NormalizedEvent) string {
	h := fnv.New64a()
	fmt.Fprintf(h, "%s|%s|%s|%s", e.SourceID, e.OriginalID, e.Category, e.StartTime.UTC().Format(time.RFC3339))
	return fmt.Sprintf("fp_%x", h.Sum64())
}

// FormatCoord renders an optional coordinate the way the store keeps it:
// shortest decimal text that round-trips, or empty when absent.
func FormatCoord(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

// HasMeaningfulChange reports whether the incoming sighting differs from
// the stored event in a way that warrants a notification: severity, status,
// either coordinate (including presence), or a start-time shift beyond the
// tolerance. Title and description edits are intentionally not meaningful.
func HasMeaningfulChange(stored model.StoredEvent, incoming model.NormalizedEvent) bool {
	if stored.Severity != incoming.Severity {
		return true
	}
	if stored.Status != incoming.Status {
		return true
	}
	if stored.Latitude != FormatCoord(incoming.Latitude) {
		return true
	}
	if stored.Longitude != FormatCoord(incoming.Longitude) {
		return true
	}
	diff := stored.StartTime.Sub(incoming.StartTime)
	if diff < 0 {
		diff = -diff
	}
	return diff > startTimeTolerance
}

// ChangedFields returns the names of all normalized fields that differ
// between the stored event and the incoming one, raw payload excluded.
// Used for the audit trail only; a field can change without the change
// being meaningful.
func ChangedFields(stored model.StoredEvent, incoming model.NormalizedEvent) []string {
	var changed []string

	add := func(name string, differs bool) {
		if differs {
			changed = append(changed, name)
		}
	}

	add("title", stored.Title != incoming.Title)
	add("description", stored.Description != incoming.Description)
	add("severity", stored.Severity != incoming.Severity)
	add("category", stored.Category != incoming.Category)
	add("status", stored.Status != incoming.Status)
	add("startTime", !stored.StartTime.Equal(incoming.StartTime))
	add("endTime", !equalOptTime(stored.EndTime, incoming.EndTime))
	add("district", stored.District != incoming.District)
	add("locationName", stored.LocationName != incoming.LocationName)
	add("latitude", stored.Latitude != FormatCoord(incoming.Latitude))
	add("longitude", stored.Longitude != FormatCoord(incoming.Longitude))
	add("originalUrl", stored.OriginalURL != incoming.OriginalURL)

	return changed
}

func equalOptTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}
