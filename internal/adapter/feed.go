package adapter

import (
	"context"
	"crypto/sha256"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/mmcdole/gofeed"
	ext "github.com/mmcdole/gofeed/extensions"

	"alertflow/internal/model"
)

const (
	maxTitleLen       = 500
	maxDescriptionLen = 5000
)

// CategoryRule maps category keywords to an event category. The tables are
// data, not logic, so deployments can swap them per region.
type CategoryRule struct {
	Keywords []string
	Category model.Category
}

// SeverityRule maps category keywords to a severity tier.
type SeverityRule struct {
	Keywords []string
	Severity model.Severity
}

// DefaultCategoryRules is the keyword heuristic for classifying feed items.
// First matching rule wins.
var DefaultCategoryRules = []CategoryRule{
	{[]string{"weather", "storm", "rain", "flood", "temperature", "wind"}, model.CategoryWeather},
	{[]string{"traffic", "road", "closure", "accident", "delay"}, model.CategoryTraffic},
	{[]string{"safety", "police", "fire", "emergency", "crime"}, model.CategoryPublicSafety},
	{[]string{"health", "medical", "hospital"}, model.CategoryHealth},
	{[]string{"utility", "power", "water", "gas", "outage"}, model.CategoryUtility},
}

// DefaultSeverityRules is the keyword heuristic for grading feed items.
// Most severe tiers are listed first.
var DefaultSeverityRules = []SeverityRule{
	{[]string{"critical", "emergency", "danger"}, model.SeverityCritical},
	{[]string{"warning", "severe", "high"}, model.SeverityHigh},
	{[]string{"watch", "advisory", "moderate"}, model.SeverityMedium},
}

// feedRaw is the feed adapter's raw item: one parsed feed entry.
type feedRaw struct {
	Item    *gofeed.Item
	Fixture bool
}

// FeedAdapter polls an RSS, Atom, or JSON-Feed source.
type FeedAdapter struct {
	sourceID      string
	url           string
	client        HTTPClient
	fixtures      *FixtureLoader
	categoryRules []CategoryRule
	severityRules []SeverityRule
}

// NewFeedAdapter creates a feed adapter with the default keyword tables.
func NewFeedAdapter(sourceID, url string, client HTTPClient, fixtures *FixtureLoader) *FeedAdapter {
	return &FeedAdapter{
		sourceID:      sourceID,
		url:           url,
		client:        client,
		fixtures:      fixtures,
		categoryRules: DefaultCategoryRules,
		severityRules: DefaultSeverityRules,
	}
}

// Fetch downloads and parses the feed. gofeed content-negotiates between
// RSS, Atom, and JSON Feed from the payload itself.
func (a *FeedAdapter) Fetch(ctx context.Context) ([]RawItem, error) {
	body, _, err := fetchBody(ctx, a.client, a.url,
		"application/rss+xml, application/atom+xml, application/feed+json, application/xml, text/xml", userAgent)
	fixture := false
	if err != nil {
		if !a.fixtures.Enabled() {
			return nil, err
		}
		if body, err = a.fixtures.Load(model.KindFeed); err != nil {
			return nil, err
		}
		fixture = true
	}

	feed, err := gofeed.NewParser().ParseString(string(body))
	if err != nil {
		return nil, &ParseError{URL: a.url, Err: err}
	}

	items := make([]RawItem, 0, len(feed.Items))
	for _, item := range feed.Items {
		items = append(items, feedRaw{Item: item, Fixture: fixture})
	}
	return items, nil
}

// Normalize converts one feed entry into the canonical event shape.
func (a *FeedAdapter) Normalize(raw RawItem) model.NormalizedEvent {
	fr, ok := raw.(feedRaw)
	if !ok || fr.Item == nil {
		return model.NormalizedEvent{SourceID: a.sourceID}
	}
	item := fr.Item

	var category string
	if len(item.Categories) > 0 {
		category = item.Categories[0]
	}

	startTime := time.Now().UTC()
	if item.PublishedParsed != nil {
		startTime = item.PublishedParsed.UTC()
	} else if item.UpdatedParsed != nil {
		startTime = item.UpdatedParsed.UTC()
	}

	description := item.Description
	if description == "" {
		description = item.Content
	}

	lat, lon := extractGeo(item)
	district := extractDistrict(category)

	return model.NormalizedEvent{
		SourceID:    a.sourceID,
		OriginalID:  itemGUID(item),
		Title:       truncate(collapseWhitespace(stripHTML(item.Title)), maxTitleLen),
		Description: truncate(stripHTML(description), maxDescriptionLen),
		Severity:    matchSeverity(a.severityRules, category),
		Category:    matchCategory(a.categoryRules, category),
		Status:      model.StatusActive,
		StartTime:   startTime,
		District:    district,
		Latitude:    lat,
		Longitude:   lon,
		OriginalURL: item.Link,
		RawData:     marshalRaw(item, fr.Fixture),
	}
}

// itemGUID returns the stable identity of a feed entry. Entries with no
// GUID fall back to a hash of title and link.
func itemGUID(item *gofeed.Item) string {
	if item.GUID != "" {
		return item.GUID
	}
	if item.Link != "" {
		return item.Link
	}
	h := sha256.Sum256([]byte(item.Title + "|" + item.Link))
	return fmt.Sprintf("sha256:%x", h[:16])
}

func matchCategory(rules []CategoryRule, category string) model.Category {
	cat := strings.ToLower(category)
	for _, rule := range rules {
		for _, kw := range rule.Keywords {
			if strings.Contains(cat, kw) {
				return rule.Category
			}
		}
	}
	return model.CategoryOther
}

func matchSeverity(rules []SeverityRule, category string) model.Severity {
	cat := strings.ToLower(category)
	for _, rule := range rules {
		for _, kw := range rule.Keywords {
			if strings.Contains(cat, kw) {
				return rule.Severity
			}
		}
	}
	return model.SeverityLow
}

// extractGeo reads coordinates from GeoRSS extensions: either separate
// geo:lat / geo:long tags or a single point field ("lat,lng" or "lat lng").
func extractGeo(item *gofeed.Item) (*float64, *float64) {
	if geo, ok := item.Extensions["geo"]; ok {
		latStr := extensionValue(geo, "lat")
		lonStr := extensionValue(geo, "long")
		if latStr != "" && lonStr != "" {
			lat, err1 := strconv.ParseFloat(latStr, 64)
			lon, err2 := strconv.ParseFloat(lonStr, 64)
			if err1 == nil && err2 == nil {
				return &lat, &lon
			}
		}
	}

	if georss, ok := item.Extensions["georss"]; ok {
		point := extensionValue(georss, "point")
		fields := strings.FieldsFunc(point, func(r rune) bool { return r == ',' || r == ' ' })
		if len(fields) >= 2 {
			lat, err1 := strconv.ParseFloat(strings.TrimSpace(fields[0]), 64)
			lon, err2 := strconv.ParseFloat(strings.TrimSpace(fields[1]), 64)
			if err1 == nil && err2 == nil {
				return &lat, &lon
			}
		}
	}

	return nil, nil
}

func extensionValue(exts map[string][]ext.Extension, name string) string {
	if vals, ok := exts[name]; ok && len(vals) > 0 {
		return strings.TrimSpace(vals[0].Value)
	}
	return ""
}

// extractDistrict looks for a "District - Category" pattern in the
// category string.
var districtPattern = regexp.MustCompile(`^([\w ]+?)\s*-\s*\w+`)

func extractDistrict(category string) string {
	m := districtPattern.FindStringSubmatch(category)
	if m == nil {
		return ""
	}
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(m[1])), " ", "_")
}

var (
	htmlTagPattern    = regexp.MustCompile(`<[^>]*>`)
	numericEntity     = regexp.MustCompile(`&#(\d+);`)
	whitespacePattern = regexp.MustCompile(`\s+`)
	entityReplacer    = strings.NewReplacer(
		"&nbsp;", " ",
		"&amp;", "&",
		"&lt;", "<",
		"&gt;", ">",
		"&quot;", `"`,
		"&#39;", "'",
	)
)

func stripHTML(text string) string {
	if text == "" {
		return ""
	}
	out := htmlTagPattern.ReplaceAllString(text, "")
	out = entityReplacer.Replace(out)
	out = numericEntity.ReplaceAllStringFunc(out, func(m string) string {
		code, err := strconv.Atoi(numericEntity.FindStringSubmatch(m)[1])
		if err != nil {
			return m
		}
		return string(rune(code))
	})
	return strings.TrimSpace(out)
}

func collapseWhitespace(text string) string {
	return strings.TrimSpace(whitespacePattern.ReplaceAllString(text, " "))
}

// truncate limits text to max characters, not bytes, so multi-byte
// runes are never split.
func truncate(text string, max int) string {
	if utf8.RuneCountInString(text) <= max {
		return text
	}
	runes := []rune(text)
	return string(runes[:max])
}
