// Package featurestore hydrates a new session's collections from the
// project database. Collections are stored as whole GeoJSON documents per
// project and domain; sessions created without a project id (or without a
// database) start empty and receive everything over the HTTP API instead.
package featurestore

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/paulmach/orb/geojson"
	"github.com/rs/zerolog"

	"groundwork/mapcore/internal/db"
	"groundwork/mapcore/internal/scene"
)

var ErrNotFound = errors.New("not found")

// Store loads per-project map data. Implementations return ErrNotFound for
// projects or domains with no stored document; callers treat that as an
// empty collection, not a failure.
type Store interface {
	Collection(ctx context.Context, projectID string, domain scene.Domain) (*geojson.FeatureCollection, error)
	RefParcelConfig(ctx context.Context, projectID string) (scene.RefParcelConfig, error)
	Center(ctx context.Context, projectID string) (lon, lat float64, err error)
}

// PG reads map documents from Postgres.
type PG struct {
	log  zerolog.Logger
	pool *db.Pool
}

func NewPG(log zerolog.Logger, pool *db.Pool) *PG {
	return &PG{log: log, pool: pool}
}

func (s *PG) Collection(ctx context.Context, projectID string, domain scene.Domain) (*geojson.FeatureCollection, error) {
	var body []byte
	err := s.pool.DB().QueryRow(ctx,
		`SELECT body FROM map_collections WHERE project_id = $1 AND domain = $2`,
		projectID, string(domain),
	).Scan(&body)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("collection %s/%s: %w", projectID, domain, ErrNotFound)
		}
		return nil, fmt.Errorf("load collection %s/%s: %w", projectID, domain, err)
	}

	fc, err := geojson.UnmarshalFeatureCollection(body)
	if err != nil {
		return nil, fmt.Errorf("decode collection %s/%s: %w", projectID, domain, err)
	}
	return fc, nil
}

func (s *PG) RefParcelConfig(ctx context.Context, projectID string) (scene.RefParcelConfig, error) {
	var cfg scene.RefParcelConfig
	err := s.pool.DB().QueryRow(ctx,
		`SELECT subject_parcel_id, comp_parcel_ids FROM project_parcel_config WHERE project_id = $1`,
		projectID,
	).Scan(&cfg.SubjectID, &cfg.CompIDs)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return scene.RefParcelConfig{}, fmt.Errorf("parcel config %s: %w", projectID, ErrNotFound)
		}
		return scene.RefParcelConfig{}, fmt.Errorf("load parcel config %s: %w", projectID, err)
	}
	return cfg, nil
}

func (s *PG) Center(ctx context.Context, projectID string) (float64, float64, error) {
	var lon, lat float64
	err := s.pool.DB().QueryRow(ctx,
		`SELECT center_lon, center_lat FROM projects WHERE id = $1`,
		projectID,
	).Scan(&lon, &lat)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, 0, fmt.Errorf("project %s: %w", projectID, ErrNotFound)
		}
		return 0, 0, fmt.Errorf("load project %s: %w", projectID, err)
	}
	return lon, lat, nil
}
