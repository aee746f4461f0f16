// Package adapter fetches raw items from external sources and normalizes
// them into canonical events.
package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"alertflow/internal/model"
)

const (
	fetchTimeout = 30 * time.Second
	maxBodySize  = 5 * 1024 * 1024
	userAgent    = "AlertFlow/1.0"
)

// RawItem is an opaque, adapter-specific payload as fetched. It only lives
// within one fetch cycle; each adapter normalizes its own raw shape.
type RawItem any

// Adapter is the polymorphic contract every source kind implements.
type Adapter interface {
	Fetch(ctx context.Context) ([]RawItem, error)
	Normalize(raw RawItem) model.NormalizedEvent
}

// HTTPClient is the interface for performing HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// FetchError reports a network-level failure: timeout, connection error,
// or non-2xx status. The scheduler treats it as one failed cycle.
type FetchError struct {
	URL string
	Err error
}

func (e *FetchError) Error() string { return fmt.Sprintf("fetch %s: %v", e.URL, e.Err) }
func (e *FetchError) Unwrap() error { return e.Err }

// ParseError reports a malformed payload. Handled identically to a
// FetchError: the cycle produced nothing usable.
type ParseError struct {
	URL string
	Err error
}

func (e *ParseError) Error() string { return fmt.Sprintf("parse %s: %v", e.URL, e.Err) }
func (e *ParseError) Unwrap() error { return e.Err }

// New selects the adapter implementation for a source's kind. Per-kind
// config is decoded from the source's config bag; missing keys become
// defaults rather than hard failures.
func New(src model.Source, client HTTPClient, fixtures *FixtureLoader) (Adapter, error) {
	switch src.Kind {
	case model.KindFeed:
		return NewFeedAdapter(src.ID, src.URL, client, fixtures), nil
	case model.KindWeather:
		var cfg model.WeatherConfig
		decodeConfig(src.Config, &cfg)
		return NewWeatherAdapter(src.ID, src.URL, cfg, client, fixtures), nil
	case model.KindAirQuality:
		var cfg model.AirQualityConfig
		decodeConfig(src.Config, &cfg)
		return NewAirQualityAdapter(src.ID, src.URL, cfg, client, fixtures), nil
	case model.KindOutage:
		var cfg model.OutageConfig
		decodeConfig(src.Config, &cfg)
		return NewOutageAdapter(src.ID, src.URL, cfg, client, fixtures), nil
	default:
		return nil, fmt.Errorf("unsupported source kind %q", src.Kind)
	}
}

func decodeConfig(raw json.RawMessage, out any) {
	if len(raw) == 0 {
		return
	}
	// Unknown or malformed config bags fall back to zero-value defaults.
	_ = json.Unmarshal(raw, out)
}

// fetchBody performs a GET with the standard timeout and size limit and
// returns the body plus content type. Non-2xx statuses become FetchErrors.
func fetchBody(ctx context.Context, client HTTPClient, url, accept, agent string) ([]byte, string, error) {
	ctx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", &FetchError{URL: url, Err: err}
	}
	req.Header.Set("User-Agent", agent)
	req.Header.Set("Accept", accept)

	resp, err := client.Do(req)
	if err != nil {
		return nil, "", &FetchError{URL: url, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, "", &FetchError{URL: url, Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, "", &FetchError{URL: url, Err: fmt.Errorf("read body: %w", err)}
	}
	return body, resp.Header.Get("Content-Type"), nil
}

// rawEnvelope wraps the adapter-specific payload for the audit trail.
// Fixture-fed items are explicitly marked so they are distinguishable
// from live data.
type rawEnvelope struct {
	Item      any       `json:"item"`
	FetchedAt time.Time `json:"fetchedAt"`
	Fixture   bool      `json:"fixture,omitempty"`
}

func marshalRaw(item any, fixture bool) json.RawMessage {
	data, err := json.Marshal(rawEnvelope{Item: item, FetchedAt: time.Now().UTC(), Fixture: fixture})
	if err != nil {
		return json.RawMessage("{}")
	}
	return data
}
