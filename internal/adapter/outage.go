package adapter

import (
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"alertflow/internal/model"
)

// Utility pages are served to browsers; a bot user agent tends to get
// blocked.
const browserUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"

// outageRow is the outage adapter's raw item: one scraped schedule row.
type outageRow struct {
	ID            string `json:"id"`
	Address       string `json:"address"`
	District      string `json:"district"`
	StartTime     string `json:"start_time"`
	EndTime       string `json:"end_time"`
	Reason        string `json:"reason"`
	AffectedCount int    `json:"affected_count,omitempty"`
	Fixture       bool   `json:"-"`
}

// OutageAdapter scrapes a utility-outage schedule page. The row heuristics
// are illustrative and fragile by nature; an upstream layout change breaks
// the adapter, not the pipeline.
type OutageAdapter struct {
	sourceID string
	url      string
	cfg      model.OutageConfig
	client   HTTPClient
	fixtures *FixtureLoader
}

// NewOutageAdapter creates an outage adapter.
func NewOutageAdapter(sourceID, url string, cfg model.OutageConfig, client HTTPClient, fixtures *FixtureLoader) *OutageAdapter {
	return &OutageAdapter{sourceID: sourceID, url: url, cfg: cfg, client: client, fixtures: fixtures}
}

var (
	addressPattern  = regexp.MustCompile(`(?i)(ул\.|пр\.|мкр\.|улица|проспект|микрорайон)`)
	districtPat     = regexp.MustCompile(`(?i)(?:р-н\s+|район\s+)([А-Яа-яЁёA-Za-z]+)`)
	datePattern     = regexp.MustCompile(`(\d{1,2})[.\-/](\d{1,2})[.\-/](\d{2,4})`)
	timeRangePat    = regexp.MustCompile(`(\d{1,2}:\d{2})\s*-\s*(\d{1,2}:\d{2})`)
	timePattern     = regexp.MustCompile(`(\d{1,2}):(\d{2})`)
	reasonPattern   = regexp.MustCompile(`(?i)(ремонт|замена|обслуживание|модернизация|плановые|работы)`)
	affectedPattern = regexp.MustCompile(`(\d+)\s*(?:абонент|потребител|домов)`)
)

// Fetch downloads the outage page and scans table-like rows.
func (a *OutageAdapter) Fetch(ctx context.Context) ([]RawItem, error) {
	body, _, err := fetchBody(ctx, a.client, a.url,
		"text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8", browserUserAgent)
	fixture := false
	if err != nil {
		if !a.fixtures.Enabled() {
			return nil, err
		}
		if body, err = a.fixtures.Load(model.KindOutage); err != nil {
			return nil, err
		}
		fixture = true
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, &ParseError{URL: a.url, Err: err}
	}

	var items []RawItem
	doc.Find("table tr, .outage-row, .schedule-item").Each(func(_ int, row *goquery.Selection) {
		if outage := a.extractRow(row); outage != nil {
			outage.Fixture = fixture
			items = append(items, *outage)
		}
	})
	return items, nil
}

// extractRow identifies columns by content patterns rather than position,
// since the upstream layout is not stable.
func (a *OutageAdapter) extractRow(row *goquery.Selection) *outageRow {
	cells := row.Find("td")
	if cells.Length() < 3 {
		return nil
	}

	var address, dateStr, timeRange, reason, district string
	affected := 0

	cells.Each(func(_ int, cell *goquery.Selection) {
		text := strings.TrimSpace(cell.Text())

		if addressPattern.MatchString(text) {
			address = text
			if m := districtPat.FindStringSubmatch(text); m != nil {
				district = m[1]
			}
		}
		if datePattern.MatchString(text) {
			dateStr = text
		}
		if m := timeRangePat.FindString(text); m != "" {
			timeRange = m
		}
		if reasonPattern.MatchString(text) {
			reason = text
		}
		if m := affectedPattern.FindStringSubmatch(text); m != nil {
			affected, _ = strconv.Atoi(m[1])
		}
	})

	if address == "" || dateStr == "" {
		return nil
	}

	var startStr, endStr string
	if m := timeRangePat.FindStringSubmatch(timeRange); m != nil {
		startStr, endStr = m[1], m[2]
	}
	start := parseLocalDateTime(dateStr, startStr)
	end := parseLocalDateTime(dateStr, endStr)
	if start == nil || end == nil {
		return nil
	}

	h := sha256.Sum256([]byte(address + dateStr + timeRange))
	return &outageRow{
		ID:            fmt.Sprintf("outage_%x", h[:8]),
		Address:       address,
		District:      district,
		StartTime:     start.Format(time.RFC3339),
		EndTime:       end.Format(time.RFC3339),
		Reason:        defaultReason(reason),
		AffectedCount: affected,
	}
}

// Normalize converts one scraped row into the canonical event shape.
// Coordinates stay empty until a geocoding backend is wired in; the
// address is preserved in locationName.
func (a *OutageAdapter) Normalize(raw RawItem) model.NormalizedEvent {
	row, ok := raw.(outageRow)
	if !ok {
		return model.NormalizedEvent{SourceID: a.sourceID}
	}

	startTime, err1 := time.Parse(time.RFC3339, row.StartTime)
	endTime, err2 := time.Parse(time.RFC3339, row.EndTime)
	if err1 != nil || err2 != nil {
		return model.NormalizedEvent{SourceID: a.sourceID}
	}

	status := model.StatusActive
	if time.Now().UTC().After(endTime) {
		status = model.StatusResolved
	}

	district := row.District
	if district == "" {
		district = a.cfg.District
	}

	return model.NormalizedEvent{
		SourceID:     a.sourceID,
		OriginalID:   row.ID,
		Title:        "Электроснабжение: " + row.Address,
		Description:  outageDescription(row, startTime, endTime),
		Severity:     OutageSeverity(endTime.Sub(startTime), row.AffectedCount),
		Category:     model.CategoryUtility,
		Status:       status,
		StartTime:    startTime.UTC(),
		EndTime:      ptrTime(endTime.UTC()),
		District:     normalizeDistrict(district),
		LocationName: row.Address,
		RawData:      marshalRaw(row, row.Fixture),
	}
}

// OutageSeverity grades an outage by duration and affected-customer count.
func OutageSeverity(duration time.Duration, affected int) model.Severity {
	switch {
	case duration > 8*time.Hour || affected > 500:
		return model.SeverityHigh
	case duration > 4*time.Hour || affected > 300:
		return model.SeverityMedium
	default:
		return model.SeverityLow
	}
}

// parseLocalDateTime combines a DD.MM.YYYY date with an optional HH:MM
// time. A missing time defaults to 09:00, matching published schedules.
func parseLocalDateTime(dateStr, timeStr string) *time.Time {
	m := datePattern.FindStringSubmatch(dateStr)
	if m == nil {
		return nil
	}
	day, _ := strconv.Atoi(m[1])
	month, _ := strconv.Atoi(m[2])
	year, _ := strconv.Atoi(m[3])
	if year < 100 {
		year += 2000
	}

	hours, minutes := 9, 0
	if timeStr != "" {
		if tm := timePattern.FindStringSubmatch(timeStr); tm != nil {
			hours, _ = strconv.Atoi(tm[1])
			minutes, _ = strconv.Atoi(tm[2])
		}
	}

	t := time.Date(year, time.Month(month), day, hours, minutes, 0, 0, time.UTC)
	return &t
}

func defaultReason(reason string) string {
	if reason == "" {
		return "Плановые работы"
	}
	return reason
}

func outageDescription(row outageRow, start, end time.Time) string {
	parts := []string{
		"Причина: " + row.Reason,
		fmt.Sprintf("Время: %s - %s", start.Format("15:04"), end.Format("15:04")),
	}
	if row.AffectedCount > 0 {
		parts = append(parts, fmt.Sprintf("Затронуто: %d", row.AffectedCount))
	}
	return strings.Join(parts, ". ")
}

func ptrTime(t time.Time) *time.Time { return &t }
