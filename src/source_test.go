package mowas

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testBBKFeed = `[
  {"identifier": "bbk.1", "sent": "2023-06-01T10:00:00+02:00"},
  {"identifier": "bbk.2", "sent": "2023-06-01T11:00:00+02:00"},
  {"sent": "2023-06-01T11:00:00+02:00"}
]`

func TestBBKFileSourceFetch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "feed.json")
	require.NoError(t, os.WriteFile(path, []byte(testBBKFeed), 0644))

	src := NewBBKFileSource("test", &BBKFileSourceConfig{Path: path}, zerolog.Nop())
	assert.Equal(t, "bbk_file", src.Type())
	assert.Equal(t, "test", src.Name())

	alerts, err := src.Fetch(context.Background())
	require.NoError(t, err)
	// The entry without identifier is dropped.
	require.Len(t, alerts, 2)
	assert.Equal(t, "bbk.1", alerts[0].ID())
	assert.Equal(t, "bbk.2", alerts[1].ID())

	assert.NoError(t, src.Purge(map[string]bool{}))
}

func TestBBKFileSourceFetchErrors(t *testing.T) {
	src := NewBBKFileSource("test", &BBKFileSourceConfig{Path: "/nonexistent/feed.json"}, zerolog.Nop())
	_, err := src.Fetch(context.Background())
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "feed.json")
	require.NoError(t, os.WriteFile(path, []byte("no json"), 0644))
	src = NewBBKFileSource("test", &BBKFileSourceConfig{Path: path}, zerolog.Nop())
	_, err = src.Fetch(context.Background())
	assert.Error(t, err)
}

func newTestDARCSource(t *testing.T) (*DARCSource, *DARCSourceConfig) {
	t.Helper()
	base := t.TempDir()
	cfg := &DARCSourceConfig{
		DirJSON:       filepath.Join(base, "json"),
		DirCAP:        filepath.Join(base, "cap"),
		DirAudio:      filepath.Join(base, "audio"),
		FetchInternet: true,
	}
	require.NoError(t, os.Mkdir(cfg.DirJSON, 0755))
	require.NoError(t, os.Mkdir(cfg.DirCAP, 0755))
	require.NoError(t, os.Mkdir(cfg.DirAudio, 0755))

	src, err := NewDARCSource("test", cfg, zerolog.Nop())
	require.NoError(t, err)
	return src, cfg
}

func writeDARCNotify(t *testing.T, dir, aid string) {
	t.Helper()
	manifest := `{"id": "` + aid + `", "url": {"xml": {"internet": []}, "audio": {"internet": []}}}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, safeFilename(aid)+".json"), []byte(manifest), 0644))
}

const testDARCCAPXML = `<?xml version="1.0" encoding="UTF-8"?>
<alert xmlns="urn:oasis:names:tc:emergency:cap:1.2">
  <identifier>darc.1</identifier>
  <sent>2023-06-01T10:30:00+02:00</sent>
  <msgType>Alert</msgType>
</alert>`

func TestDARCSourceFetchFromScratch(t *testing.T) {
	src, cfg := newTestDARCSource(t)
	writeDARCNotify(t, cfg.DirJSON, "darc.1")

	// CAP file already present: no download needed. The audio file is
	// absent and has no mirrors, so the alert goes out without the
	// audio attribute.
	require.NoError(t, os.WriteFile(src.pathCAP("darc.1"), []byte(testDARCCAPXML), 0644))

	alerts, err := src.Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, "darc.1", alerts[0].ID())
	_, hasAudio := alerts[0].Attrs["path_audio"]
	assert.False(t, hasAudio)
}

func TestDARCSourceFetchAudioAttr(t *testing.T) {
	src, cfg := newTestDARCSource(t)
	writeDARCNotify(t, cfg.DirJSON, "darc.1")
	require.NoError(t, os.WriteFile(src.pathCAP("darc.1"), []byte(testDARCCAPXML), 0644))
	require.NoError(t, os.WriteFile(src.pathAudio("darc.1"), []byte("RIFF"), 0644))

	alerts, err := src.Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, src.pathAudio("darc.1"), alerts[0].Attrs["path_audio"])
}

func TestDARCSourceFetchSkipsUnfetchable(t *testing.T) {
	src, cfg := newTestDARCSource(t)
	// Notify present, but neither a local CAP file nor any mirror.
	writeDARCNotify(t, cfg.DirJSON, "darc.gone")

	alerts, err := src.Fetch(context.Background())
	require.NoError(t, err)
	assert.Empty(t, alerts)
}

func TestDARCSourcePurge(t *testing.T) {
	src, cfg := newTestDARCSource(t)
	writeDARCNotify(t, cfg.DirJSON, "darc.1")
	writeDARCNotify(t, cfg.DirJSON, "darc.2")
	require.NoError(t, os.WriteFile(src.pathCAP("darc.1"), []byte(testDARCCAPXML), 0644))
	require.NoError(t, os.WriteFile(src.pathCAP("darc.2"), []byte("x"), 0644))
	require.NoError(t, os.WriteFile(src.pathAudio("darc.1"), []byte("RIFF"), 0644))
	orphan := filepath.Join(cfg.DirCAP, "orphan.xml")
	require.NoError(t, os.WriteFile(orphan, []byte("x"), 0644))

	require.NoError(t, src.Purge(map[string]bool{"darc.1": true}))

	// darc.1 survives completely.
	assert.FileExists(t, filepath.Join(cfg.DirJSON, "darc.1.json"))
	assert.FileExists(t, src.pathCAP("darc.1"))
	assert.FileExists(t, src.pathAudio("darc.1"))

	// darc.2 and the orphan are gone.
	assert.NoFileExists(t, filepath.Join(cfg.DirJSON, "darc.2.json"))
	assert.NoFileExists(t, src.pathCAP("darc.2"))
	assert.NoFileExists(t, orphan)
}

func TestDARCSourcePurgeKeepsPendingDownload(t *testing.T) {
	src, cfg := newTestDARCSource(t)

	// The CAP file never arrived, e.g. all mirrors were down. The
	// manifest must survive the purge so the next cycle can retry the
	// download.
	writeDARCNotify(t, cfg.DirJSON, "darc.retry")

	require.NoError(t, src.Purge(map[string]bool{}))
	assert.FileExists(t, filepath.Join(cfg.DirJSON, "darc.retry.json"))
}

func TestNewDARCSourceValidation(t *testing.T) {
	_, err := NewDARCSource("test", &DARCSourceConfig{
		DirJSON:       "/nonexistent",
		DirCAP:        "/nonexistent",
		FetchInternet: true,
	}, zerolog.Nop())
	assert.Error(t, err)
}

func TestSafeFilename(t *testing.T) {
	assert.Equal(t, "a_b_c", safeFilename("a/b/c"))
	assert.Equal(t, "plain", safeFilename("plain"))
}

func TestBuildSources(t *testing.T) {
	path := filepath.Join(t.TempDir(), "feed.json")
	require.NoError(t, os.WriteFile(path, []byte("[]"), 0644))

	sources, err := BuildSources(SourceConfig{
		BBKFile: map[string]*BBKFileSourceConfig{"local": {Path: path}},
		BBKURL:  map[string]*BBKURLSourceConfig{"bund": {URL: "https://example.invalid/feed.json"}},
	}, zerolog.Nop())
	require.NoError(t, err)
	require.Len(t, sources, 2)
	assert.Equal(t, "bbk_file", sources[0].Type())
	assert.Equal(t, "bbk_url", sources[1].Type())
}
