// Package config loads the map catalog: the basemaps a session may swap
// between, ring radii, reference-parcel thresholds and service limits. A
// missing file means built-in defaults; an unknown key is an error.
package config

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"github.com/paulmach/orb"
	"gopkg.in/yaml.v3"
)

// Basemap is one catalog entry. Swapping to a different entry replaces the
// whole style and destroys every custom layer on the surface.
type Basemap struct {
	ID       string `yaml:"id" json:"id"`
	Label    string `yaml:"label" json:"label"`
	StyleURL string `yaml:"style" json:"style"`
	Default  bool   `yaml:"default,omitempty" json:"default,omitempty"`
}

type Center struct {
	Lon float64 `yaml:"lon" json:"lon"`
	Lat float64 `yaml:"lat" json:"lat"`
}

type Config struct {
	Basemaps              []Basemap     `yaml:"basemaps"`
	RingRadiiMiles        []float64     `yaml:"ring_radii_miles"`
	RefParcelMinZoom      float64       `yaml:"ref_parcel_min_zoom"`
	ParcelIDFields        []string      `yaml:"parcel_id_fields"`
	DefaultCenter         Center        `yaml:"default_center"`
	DefaultZoom           float64       `yaml:"default_zoom"`
	MaxCollectionFeatures int           `yaml:"max_collection_features"`
	MaxSessions           int           `yaml:"max_sessions"`
	SessionTTL            time.Duration `yaml:"session_ttl"`
}

// Default returns the built-in catalog used when no config file is given.
// The default center is the middle of the primary market the application
// serves; unparseable host-supplied centers fall back to it too.
func Default() Config {
	return Config{
		Basemaps: []Basemap{
			{ID: "streets", Label: "Streets", StyleURL: "https://styles.example.com/streets/v12.json", Default: true},
			{ID: "satellite", Label: "Satellite", StyleURL: "https://styles.example.com/satellite/v9.json"},
			{ID: "hybrid", Label: "Hybrid", StyleURL: "https://styles.example.com/hybrid/v9.json"},
		},
		RingRadiiMiles: []float64{1, 3, 5},
		// The production variants disagreed between 15 and 17.5; 15 is the
		// more permissive value and ships as the default.
		RefParcelMinZoom:      15,
		DefaultCenter:         Center{Lon: -86.7816, Lat: 36.1627},
		DefaultZoom:           11,
		MaxCollectionFeatures: 10000,
		MaxSessions:           256,
		SessionTTL:            30 * time.Minute,
	}
}

// Load reads a YAML config file on top of the defaults. An empty path means
// defaults only. Unknown keys are rejected so typos do not silently fall
// back to a default value.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	var file fileConfig
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	file.apply(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// fileConfig mirrors Config with pointer fields so absent keys keep their
// defaults. session_ttl is a duration string ("30m").
type fileConfig struct {
	Basemaps              []Basemap `yaml:"basemaps"`
	RingRadiiMiles        []float64 `yaml:"ring_radii_miles"`
	RefParcelMinZoom      *float64  `yaml:"ref_parcel_min_zoom"`
	ParcelIDFields        []string  `yaml:"parcel_id_fields"`
	DefaultCenter         *Center   `yaml:"default_center"`
	DefaultZoom           *float64  `yaml:"default_zoom"`
	MaxCollectionFeatures *int      `yaml:"max_collection_features"`
	MaxSessions           *int      `yaml:"max_sessions"`
	SessionTTL            *string   `yaml:"session_ttl"`
}

func (f fileConfig) apply(cfg *Config) {
	if len(f.Basemaps) > 0 {
		cfg.Basemaps = f.Basemaps
	}
	if len(f.RingRadiiMiles) > 0 {
		cfg.RingRadiiMiles = f.RingRadiiMiles
	}
	if f.RefParcelMinZoom != nil {
		cfg.RefParcelMinZoom = *f.RefParcelMinZoom
	}
	if len(f.ParcelIDFields) > 0 {
		cfg.ParcelIDFields = f.ParcelIDFields
	}
	if f.DefaultCenter != nil {
		cfg.DefaultCenter = *f.DefaultCenter
	}
	if f.DefaultZoom != nil {
		cfg.DefaultZoom = *f.DefaultZoom
	}
	if f.MaxCollectionFeatures != nil {
		cfg.MaxCollectionFeatures = *f.MaxCollectionFeatures
	}
	if f.MaxSessions != nil {
		cfg.MaxSessions = *f.MaxSessions
	}
	if f.SessionTTL != nil {
		if d, err := time.ParseDuration(*f.SessionTTL); err == nil {
			cfg.SessionTTL = d
		}
	}
}

func (c Config) Validate() error {
	if len(c.Basemaps) == 0 {
		return fmt.Errorf("at least one basemap is required")
	}
	seen := make(map[string]struct{}, len(c.Basemaps))
	for _, b := range c.Basemaps {
		if b.ID == "" {
			return fmt.Errorf("basemap with empty id")
		}
		if b.StyleURL == "" {
			return fmt.Errorf("basemap %q has no style url", b.ID)
		}
		if _, ok := seen[b.ID]; ok {
			return fmt.Errorf("duplicate basemap id %q", b.ID)
		}
		seen[b.ID] = struct{}{}
	}
	for _, r := range c.RingRadiiMiles {
		if r <= 0 {
			return fmt.Errorf("ring radius must be positive, got %v", r)
		}
	}
	if c.RefParcelMinZoom < 0 || c.RefParcelMinZoom > 24 {
		return fmt.Errorf("ref_parcel_min_zoom %v out of range", c.RefParcelMinZoom)
	}
	if c.MaxCollectionFeatures <= 0 {
		return fmt.Errorf("max_collection_features must be positive")
	}
	if c.MaxSessions <= 0 {
		return fmt.Errorf("max_sessions must be positive")
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("session_ttl must be positive")
	}
	return nil
}

// Styles maps basemap ids to style URLs, the shape the viewport controller
// consumes.
func (c Config) Styles() map[string]string {
	out := make(map[string]string, len(c.Basemaps))
	for _, b := range c.Basemaps {
		out[b.ID] = b.StyleURL
	}
	return out
}

// DefaultBasemap returns the catalog entry flagged default, or the first
// entry when none is flagged.
func (c Config) DefaultBasemap() string {
	for _, b := range c.Basemaps {
		if b.Default {
			return b.ID
		}
	}
	if len(c.Basemaps) > 0 {
		return c.Basemaps[0].ID
	}
	return ""
}

// DefaultCenterPoint returns the fallback center as a lon/lat point.
func (c Config) DefaultCenterPoint() orb.Point {
	return orb.Point{c.DefaultCenter.Lon, c.DefaultCenter.Lat}
}
