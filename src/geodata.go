package mowas

import (
	"database/sql"

	"github.com/ctessum/geom"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

// Geodata maps 12-digit ARS region codes onto region outlines in
// WGS84. The data comes from a GeoPackage with a single `region` layer
// (ARS text column, MultiPolygon geometry), prepared offline from the
// BKG VG5000 administrative boundaries.
type Geodata struct {
	logger  zerolog.Logger
	regions map[string]geom.MultiPolygon
}

// NewGeodata loads the region index. Geodata is optional: without it
// the gateway still runs, it just cannot position alerts that carry no
// polygon of their own. Load errors therefore log instead of aborting.
func NewGeodata(cfg GeodataConfig, logger zerolog.Logger) *Geodata {
	g := &Geodata{
		logger:  logger.With().Str("component", "geodata").Logger(),
		regions: map[string]geom.MultiPolygon{},
	}
	if cfg.Path == "" {
		g.logger.Debug().Msg("no geodata configured")
		return g
	}
	if err := g.load(cfg.Path); err != nil {
		g.logger.Error().Err(err).Str("path", cfg.Path).Msg("cannot load geodata")
	}
	return g
}

func (g *Geodata) load(path string) error {
	db, err := sql.Open("sqlite3", "file:"+path+"?mode=ro")
	if err != nil {
		return err
	}
	defer db.Close()

	rows, err := db.Query(`SELECT "ARS", "geom" FROM "region"`)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var ars string
		var blob []byte
		if err := rows.Scan(&ars, &blob); err != nil {
			return err
		}
		if len(ars) != 12 {
			g.logger.Warn().Str("ars", ars).Msg("skipping region with malformed ARS")
			continue
		}
		mp, err := decodeGPKGGeometry(blob)
		if err != nil {
			g.logger.Warn().Err(err).Str("ars", ars).Msg("skipping region with undecodable geometry")
			continue
		}
		g.regions[ars] = mp
	}
	if err := rows.Err(); err != nil {
		return err
	}
	g.logger.Info().Int("regions", len(g.regions)).Msg("geodata loaded")
	return nil
}

// Lookup returns the outline of a region by its 12-digit ARS code.
func (g *Geodata) Lookup(ars string) (geom.MultiPolygon, bool) {
	mp, ok := g.regions[ars]
	return mp, ok
}

// Len returns the number of indexed regions.
func (g *Geodata) Len() int {
	return len(g.regions)
}
