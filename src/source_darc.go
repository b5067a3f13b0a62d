package mowas

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
)

// DARCSource consumes the DARC distribution of MoWaS alerts: a
// directory of notify manifests (JSON), each pointing at the CAP XML
// and an optional audio announcement, with mirror URLs both on the
// public internet and in HAMNET. The referenced files are downloaded
// into local scratch directories and kept until the alert ages out of
// the cache.
type DARCSource struct {
	name          string
	dirJSON       string
	dirCAP        string
	dirAudio      string
	fetchInternet bool
	fetchHamnet   bool
	client        *http.Client
	logger        zerolog.Logger
}

// darcNotify is one notify manifest.
type darcNotify struct {
	ID  string `json:"id"`
	URL struct {
		XML   darcURLSet `json:"xml"`
		Audio darcURLSet `json:"audio"`
	} `json:"url"`
}

type darcURLSet struct {
	Internet []string `json:"internet"`
	Hamnet   []string `json:"hamnet"`
}

func NewDARCSource(name string, cfg *DARCSourceConfig, logger zerolog.Logger) (*DARCSource, error) {
	for _, dir := range []string{cfg.DirJSON, cfg.DirCAP, cfg.DirAudio} {
		if dir == "" {
			continue
		}
		st, err := os.Stat(dir)
		if err != nil || !st.IsDir() {
			return nil, configErrorf("source darc/%s: %s is not a directory", name, dir)
		}
	}
	return &DARCSource{
		name:          name,
		dirJSON:       cfg.DirJSON,
		dirCAP:        cfg.DirCAP,
		dirAudio:      cfg.DirAudio,
		fetchInternet: cfg.FetchInternet,
		fetchHamnet:   cfg.FetchHamnet,
		client:        newFetchClient(),
		logger:        sourceLogger(logger, "darc", name),
	}, nil
}

func (s *DARCSource) Type() string { return "darc" }
func (s *DARCSource) Name() string { return s.name }

// safeFilename makes an alert identifier usable as a file name.
func safeFilename(name string) string {
	return strings.ReplaceAll(name, "/", "_")
}

func (s *DARCSource) pathCAP(aid string) string {
	return filepath.Join(s.dirCAP, safeFilename(aid)+".xml")
}

func (s *DARCSource) pathAudio(aid string) string {
	if s.dirAudio == "" {
		return ""
	}
	return filepath.Join(s.dirAudio, safeFilename(aid)+".wav")
}

// urls collects the mirror URLs enabled by configuration, internet
// mirrors first.
func (s *DARCSource) urls(set darcURLSet) []string {
	var urls []string
	if s.fetchInternet {
		urls = append(urls, set.Internet...)
	}
	if s.fetchHamnet {
		urls = append(urls, set.Hamnet...)
	}
	return urls
}

// readNotifies parses all manifests in the notify directory. Broken
// manifests are logged and skipped.
func (s *DARCSource) readNotifies() []*darcNotify {
	entries, err := os.ReadDir(s.dirJSON)
	if err != nil {
		s.logger.Error().Err(err).Str("dir", s.dirJSON).Msg("cannot read notify directory")
		return nil
	}
	var notifies []*darcNotify
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		path := filepath.Join(s.dirJSON, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			s.logger.Warn().Err(err).Str("path", path).Msg("cannot read notify manifest")
			continue
		}
		var notify darcNotify
		if err := json.Unmarshal(data, &notify); err != nil {
			s.logger.Warn().Err(err).Str("path", path).Msg("cannot parse notify manifest")
			continue
		}
		if notify.ID == "" {
			s.logger.Warn().Str("path", path).Msg("notify manifest without alert id")
			continue
		}
		notifies = append(notifies, &notify)
	}
	return notifies
}

// fetchFile downloads one referenced file unless it is already present.
// The mirror list is tried in random order to spread load.
func (s *DARCSource) fetchFile(ctx context.Context, path string, urls []string) bool {
	if _, err := os.Stat(path); err == nil {
		s.logger.Debug().Str("path", path).Msg("file already present")
		return true
	}
	shuffled := make([]string, len(urls))
	copy(shuffled, urls)
	rand.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})
	for _, url := range shuffled {
		data, err := s.download(ctx, url)
		if err != nil {
			s.logger.Warn().Err(err).Str("url", url).Msg("download failed")
			continue
		}
		if err := os.WriteFile(path, data, 0644); err != nil {
			s.logger.Error().Err(err).Str("path", path).Msg("cannot store downloaded file")
			return false
		}
		s.logger.Info().Str("url", url).Str("path", path).Msg("file downloaded")
		return true
	}
	s.logger.Warn().Str("path", path).Msg("no mirror delivered the file")
	return false
}

func (s *DARCSource) download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching %s: %s", url, resp.Status)
	}
	return io.ReadAll(resp.Body)
}

func (s *DARCSource) readCAP(aid string) (*CAPAlert, error) {
	data, err := os.ReadFile(s.pathCAP(aid))
	if err != nil {
		return nil, err
	}
	capMsg, err := ParseCAPXML(data)
	if err != nil {
		return nil, err
	}
	if capMsg.Identifier != aid {
		return nil, fmt.Errorf("CAP identifier %q does not match notify id %q", capMsg.Identifier, aid)
	}
	return capMsg, nil
}

func (s *DARCSource) Fetch(ctx context.Context) ([]*Alert, error) {
	var alerts []*Alert
	for _, notify := range s.readNotifies() {
		capPath := s.pathCAP(notify.ID)
		if !s.fetchFile(ctx, capPath, s.urls(notify.URL.XML)) {
			continue
		}
		capMsg, err := s.readCAP(notify.ID)
		if err != nil {
			s.logger.Warn().Err(err).Str("alert", notify.ID).Msg("cannot parse CAP file")
			continue
		}
		alert := NewAlert(capMsg)
		if audioPath := s.pathAudio(notify.ID); audioPath != "" {
			if s.fetchFile(ctx, audioPath, s.urls(notify.URL.Audio)) {
				alert.Attrs["path_audio"] = audioPath
			}
		}
		alerts = append(alerts, alert)
	}
	return alerts, nil
}

// Purge removes notify manifests whose alert has aged out of the
// cache, plus any scratch file no surviving manifest points at.
func (s *DARCSource) Purge(valid map[string]bool) error {
	entries, err := os.ReadDir(s.dirJSON)
	if err != nil {
		return err
	}
	keep := map[string]bool{}
	var remove []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		path := filepath.Join(s.dirJSON, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var notify darcNotify
		if err := json.Unmarshal(data, &notify); err != nil || notify.ID == "" {
			continue
		}
		if !valid[notify.ID] {
			if _, err := os.Stat(s.pathCAP(notify.ID)); os.IsNotExist(err) {
				// Without its CAP file the alert never reached the
				// cache. Keep the manifest so the next cycle retries
				// the download.
				s.logger.Debug().Str("path", path).Msg("keeping manifest, CAP file still missing")
				continue
			}
			remove = append(remove, path)
			continue
		}
		keep[s.pathCAP(notify.ID)] = true
		if audioPath := s.pathAudio(notify.ID); audioPath != "" {
			keep[audioPath] = true
		}
	}

	scratchDirs := []string{s.dirCAP}
	if s.dirAudio != "" {
		scratchDirs = append(scratchDirs, s.dirAudio)
	}
	for _, dir := range scratchDirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			s.logger.Error().Err(err).Str("dir", dir).Msg("cannot read scratch directory")
			continue
		}
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			path := filepath.Join(dir, entry.Name())
			if !keep[path] {
				remove = append(remove, path)
			}
		}
	}

	for _, path := range remove {
		if err := os.Remove(path); err != nil {
			s.logger.Warn().Err(err).Str("path", path).Msg("cannot remove stale file")
			continue
		}
		s.logger.Info().Str("path", path).Msg("stale file removed")
	}
	return nil
}
