package dispatch

import (
	"fmt"
	"strings"

	"alertflow/internal/model"
)

// SeverityIcon returns the marker prefixed to notification messages.
func SeverityIcon(s model.Severity) string {
	switch s {
	case model.SeverityCritical:
		return "🔴"
	case model.SeverityHigh:
		return "🟠"
	case model.SeverityMedium:
		return "🟡"
	default:
		return "🔵"
	}
}

// SeverityLabel returns the human-readable severity name.
func SeverityLabel(s model.Severity) string {
	switch s {
	case model.SeverityCritical:
		return "Critical"
	case model.SeverityHigh:
		return "High"
	case model.SeverityMedium:
		return "Medium"
	default:
		return "Low"
	}
}

var categoryLabels = map[model.Category]string{
	model.CategoryWeather:      "Weather",
	model.CategoryTraffic:      "Traffic",
	model.CategoryPublicSafety: "Public safety",
	model.CategoryHealth:       "Health",
	model.CategoryUtility:      "Utility",
	model.CategoryOther:        "General",
}

// FormatAlert renders the Telegram message body for a notification job.
func FormatAlert(job model.NotificationJob) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s\n", SeverityIcon(job.Severity), job.Title)

	label, ok := categoryLabels[job.Category]
	if !ok {
		label = string(job.Category)
	}
	fmt.Fprintf(&b, "\n%s · %s severity", label, SeverityLabel(job.Severity))
	if job.District != "" && job.District != "city" {
		fmt.Fprintf(&b, "\nDistrict: %s", job.District)
	}
	return b.String()
}
