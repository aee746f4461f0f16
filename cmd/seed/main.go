// Command seed loads source and subscription definitions from a YAML file
// into the database. Existing rows are left alone; seeding is additive.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"

	"gopkg.in/yaml.v3"

	"alertflow/internal/model"
	"alertflow/internal/storage"
)

type seedFile struct {
	Sources       []seedSource       `yaml:"sources"`
	Subscriptions []seedSubscription `yaml:"subscriptions"`
}

type seedSource struct {
	Name                   string         `yaml:"name"`
	Kind                   string         `yaml:"kind"`
	URL                    string         `yaml:"url"`
	PollingIntervalSeconds int            `yaml:"polling_interval_seconds"`
	Enabled                *bool          `yaml:"enabled"`
	Config                 map[string]any `yaml:"config"`
}

type seedSubscription struct {
	ChatID     int64    `yaml:"chat_id"`
	Categories []string `yaml:"categories"`
	District   string   `yaml:"district"`
}

func main() {
	dbPath := flag.String("db", envOrDefault("DATABASE_PATH", "./data/alertflow.db"), "path to sqlite database")
	file := flag.String("file", "seed.yaml", "path to seed file")
	flag.Parse()

	raw, err := os.ReadFile(*file)
	if err != nil {
		log.Fatalf("read seed file: %v", err)
	}

	var seed seedFile
	if err := yaml.Unmarshal(raw, &seed); err != nil {
		log.Fatalf("parse seed file: %v", err)
	}

	store, err := storage.NewSQLite(*dbPath)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer func() { _ = store.Close() }()

	ctx := context.Background()

	for _, s := range seed.Sources {
		src, err := toSource(s)
		if err != nil {
			log.Fatalf("source %q: %v", s.Name, err)
		}
		if err := store.CreateSource(ctx, src); err != nil {
			log.Fatalf("create source %q: %v", s.Name, err)
		}
		fmt.Printf("created source %s (%s)\n", src.Name, src.ID)
	}

	for _, s := range seed.Subscriptions {
		sub := &model.Subscription{
			ChatID:     s.ChatID,
			Categories: s.Categories,
			District:   s.District,
		}
		if err := store.CreateSubscription(ctx, sub); err != nil {
			log.Fatalf("create subscription for chat %d: %v", s.ChatID, err)
		}
		fmt.Printf("created subscription for chat %d\n", s.ChatID)
	}
}

func toSource(s seedSource) (*model.Source, error) {
	kind := model.SourceKind(s.Kind)
	switch kind {
	case model.KindFeed, model.KindWeather, model.KindAirQuality, model.KindOutage:
	default:
		return nil, fmt.Errorf("unknown kind %q", s.Kind)
	}

	interval := s.PollingIntervalSeconds
	if interval <= 0 {
		interval = 300
	}

	enabled := true
	if s.Enabled != nil {
		enabled = *s.Enabled
	}

	var cfg json.RawMessage
	if len(s.Config) > 0 {
		b, err := json.Marshal(s.Config)
		if err != nil {
			return nil, fmt.Errorf("encode config: %w", err)
		}
		cfg = b
	}

	return &model.Source{
		Name:                   s.Name,
		Kind:                   kind,
		URL:                    s.URL,
		PollingIntervalSeconds: interval,
		Enabled:                enabled,
		Config:                 cfg,
	}, nil
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
