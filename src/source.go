package mowas

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/rs/zerolog"
)

// httpFetchTimeout bounds every feed download. The supervisor cycle is
// 60 s; a hanging fetch must not eat the whole period.
const httpFetchTimeout = 15 * time.Second

// Source is one alert feed. Fetch returns the currently published
// alerts; Purge lets adapters with local scratch state drop everything
// that no longer belongs to a fresh alert.
type Source interface {
	Type() string
	Name() string
	Fetch(ctx context.Context) ([]*Alert, error)
	Purge(valid map[string]bool) error
}

// BuildSources constructs all configured source adapters, in
// deterministic order.
func BuildSources(cfg SourceConfig, logger zerolog.Logger) ([]Source, error) {
	var sources []Source
	for _, name := range sortedKeys(cfg.DARC) {
		s, err := NewDARCSource(name, cfg.DARC[name], logger)
		if err != nil {
			return nil, err
		}
		sources = append(sources, s)
	}
	for _, name := range sortedKeys(cfg.BBKFile) {
		sources = append(sources, NewBBKFileSource(name, cfg.BBKFile[name], logger))
	}
	for _, name := range sortedKeys(cfg.BBKURL) {
		sources = append(sources, NewBBKURLSource(name, cfg.BBKURL[name], logger))
	}
	return sources, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sourceLogger(logger zerolog.Logger, stype, name string) zerolog.Logger {
	return logger.With().Str("component", "source").Str("type", stype).Str("name", name).Logger()
}

func newFetchClient() *http.Client {
	return &http.Client{Timeout: httpFetchTimeout}
}
