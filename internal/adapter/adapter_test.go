package adapter

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"testing"

	"alertflow/internal/model"
)

type mockTransport struct {
	body       string
	statusCode int
	err        error
}

func (m *mockTransport) Do(_ *http.Request) (*http.Response, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &http.Response{
		StatusCode: m.statusCode,
		Body:       io.NopCloser(bytes.NewBufferString(m.body)),
		Header:     http.Header{},
	}, nil
}

func loadFixture(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path) //nolint:gosec // test-only fixture loading
	if err != nil {
		t.Fatalf("read fixture %s: %v", path, err)
	}
	return string(data)
}

func TestNewSelectsAdapterByKind(t *testing.T) {
	tests := []struct {
		kind    model.SourceKind
		wantErr bool
	}{
		{model.KindFeed, false},
		{model.KindWeather, false},
		{model.KindAirQuality, false},
		{model.KindOutage, false},
		{model.SourceKind("carrier_pigeon"), true},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			src := model.Source{ID: "src-1", Kind: tt.kind, URL: "https://example.com"}
			a, err := New(src, &mockTransport{statusCode: 200}, nil)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if a == nil {
				t.Fatal("expected adapter, got nil")
			}
		})
	}
}

func TestFetchBodyErrorTyping(t *testing.T) {
	tests := []struct {
		name      string
		transport *mockTransport
	}{
		{"network error", &mockTransport{err: io.ErrUnexpectedEOF}},
		{"server error", &mockTransport{body: "oops", statusCode: 500}},
		{"not found", &mockTransport{body: "missing", statusCode: 404}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := fetchBody(context.Background(), tt.transport, "https://example.com", "*/*", userAgent)
			var fe *FetchError
			if !errors.As(err, &fe) {
				t.Fatalf("expected FetchError, got %T: %v", err, err)
			}
		})
	}
}

func TestFixtureLoader(t *testing.T) {
	t.Run("disabled loader refuses", func(t *testing.T) {
		l := NewFixtureLoader(false, "../../testdata/fixtures")
		if l.Enabled() {
			t.Fatal("loader should be disabled")
		}
		if _, err := l.Load(model.KindFeed); err == nil {
			t.Fatal("expected error from disabled loader")
		}
	})

	t.Run("nil loader is disabled", func(t *testing.T) {
		var l *FixtureLoader
		if l.Enabled() {
			t.Fatal("nil loader should report disabled")
		}
	})

	t.Run("loads payload per kind", func(t *testing.T) {
		l := NewFixtureLoader(true, "../../testdata/fixtures")
		for _, kind := range []model.SourceKind{model.KindFeed, model.KindWeather, model.KindAirQuality, model.KindOutage} {
			data, err := l.Load(kind)
			if err != nil {
				t.Fatalf("load %s: %v", kind, err)
			}
			if len(data) == 0 {
				t.Fatalf("empty fixture for %s", kind)
			}
		}
	})
}
