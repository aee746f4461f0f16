package adapter

import (
	"fmt"
	"os"
	"path/filepath"

	"alertflow/internal/model"
)

// FixtureLoader serves static payloads when a live fetch fails, for
// environments without network access to upstream providers. Disabled by
// default; items produced from fixtures are marked in the audit trail.
type FixtureLoader struct {
	enabled bool
	dir     string
}

// NewFixtureLoader creates a loader reading from dir when enabled.
func NewFixtureLoader(enabled bool, dir string) *FixtureLoader {
	return &FixtureLoader{enabled: enabled, dir: dir}
}

// Enabled reports whether fixture fallback is active.
func (l *FixtureLoader) Enabled() bool {
	return l != nil && l.enabled
}

// Load reads the fixture payload for a source kind.
func (l *FixtureLoader) Load(kind model.SourceKind) ([]byte, error) {
	if !l.Enabled() {
		return nil, fmt.Errorf("fixture fallback disabled")
	}
	name := fixtureFile(kind)
	data, err := os.ReadFile(filepath.Join(l.dir, name))
	if err != nil {
		return nil, fmt.Errorf("load fixture %s: %w", name, err)
	}
	return data, nil
}

func fixtureFile(kind model.SourceKind) string {
	switch kind {
	case model.KindFeed:
		return "feed.xml"
	case model.KindWeather:
		return "weather.json"
	case model.KindAirQuality:
		return "air_quality.json"
	case model.KindOutage:
		return "outage.html"
	default:
		return string(kind) + ".json"
	}
}
