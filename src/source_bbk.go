package mowas

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/rs/zerolog"
)

// BBKURLSource polls a BBK warning feed: a JSON array of CAP alerts,
// as published under warnung.bund.de.
type BBKURLSource struct {
	name   string
	url    string
	client *http.Client
	logger zerolog.Logger
}

func NewBBKURLSource(name string, cfg *BBKURLSourceConfig, logger zerolog.Logger) *BBKURLSource {
	return &BBKURLSource{
		name:   name,
		url:    cfg.URL,
		client: newFetchClient(),
		logger: sourceLogger(logger, "bbk_url", name),
	}
}

func (s *BBKURLSource) Type() string { return "bbk_url" }
func (s *BBKURLSource) Name() string { return s.name }

func (s *BBKURLSource) Fetch(ctx context.Context) ([]*Alert, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching %s: %s", s.url, resp.Status)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	return parseBBKFeed(data)
}

// Purge is a no-op: the adapter keeps no local state.
func (s *BBKURLSource) Purge(valid map[string]bool) error {
	return nil
}

// BBKFileSource reads the same JSON feed from a local file, e.g. one
// mirrored by a separate download job.
type BBKFileSource struct {
	name   string
	path   string
	logger zerolog.Logger
}

func NewBBKFileSource(name string, cfg *BBKFileSourceConfig, logger zerolog.Logger) *BBKFileSource {
	return &BBKFileSource{
		name:   name,
		path:   cfg.Path,
		logger: sourceLogger(logger, "bbk_file", name),
	}
}

func (s *BBKFileSource) Type() string { return "bbk_file" }
func (s *BBKFileSource) Name() string { return s.name }

func (s *BBKFileSource) Fetch(ctx context.Context) ([]*Alert, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, err
	}
	return parseBBKFeed(data)
}

func (s *BBKFileSource) Purge(valid map[string]bool) error {
	return nil
}

func parseBBKFeed(data []byte) ([]*Alert, error) {
	var caps []*CAPAlert
	if err := json.Unmarshal(data, &caps); err != nil {
		return nil, err
	}
	alerts := make([]*Alert, 0, len(caps))
	for _, c := range caps {
		if c == nil || c.Identifier == "" {
			continue
		}
		alerts = append(alerts, NewAlert(c))
	}
	return alerts, nil
}
