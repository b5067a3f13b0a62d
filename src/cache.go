package mowas

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"sort"
	"time"

	"github.com/rs/zerolog"
)

// Cache holds all alerts the gateway currently knows about, keyed by
// CAP identifier, and persists them across restarts as a JSON file.
type Cache struct {
	logger zerolog.Logger
	path   string
	age    time.Duration
	alerts map[string]*Alert
}

// cacheEntry is the on-disk shape of one alert.
type cacheEntry struct {
	Alert   *CAPAlert                       `json:"alert"`
	Attrs   map[string]any                  `json:"attrs"`
	TXState map[string]map[string]*TXWindow `json:"txstate"`
}

func NewCache(cfg CacheConfig, logger zerolog.Logger) *Cache {
	c := &Cache{
		logger: logger.With().Str("component", "cache").Logger(),
		path:   cfg.Path,
		age:    cfg.Purge.Std(),
		alerts: map[string]*Alert{},
	}
	c.load()
	return c
}

// load reads the cache file. A missing or unreadable file is not an
// error: the gateway starts with an empty cache and rebuilds state from
// the sources.
func (c *Cache) load() {
	data, err := os.ReadFile(c.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			c.logger.Debug().Str("path", c.path).Msg("no cache file, starting empty")
		} else {
			c.logger.Error().Err(err).Str("path", c.path).Msg("cannot read cache file, starting empty")
		}
		return
	}
	var entries map[string]*cacheEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		c.logger.Error().Err(err).Str("path", c.path).Msg("corrupt cache file, starting empty")
		return
	}
	for aid, entry := range entries {
		if entry == nil || entry.Alert == nil || entry.Alert.Identifier != aid {
			c.logger.Warn().Str("alert", aid).Msg("inconsistent cache entry, dropping")
			continue
		}
		alert := &Alert{CAP: entry.Alert, Attrs: entry.Attrs, TXState: entry.TXState}
		alert.normalizeAttrs()
		c.alerts[aid] = alert
	}
	c.logger.Info().Int("alerts", len(c.alerts)).Msg("cache loaded")
}

// Dump writes the cache to disk.
func (c *Cache) Dump() error {
	entries := make(map[string]*cacheEntry, len(c.alerts))
	for aid, alert := range c.alerts {
		entries[aid] = &cacheEntry{Alert: alert.CAP, Attrs: alert.Attrs, TXState: alert.TXState}
	}
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(c.path, data, 0644)
}

// Update inserts a freshly fetched alert, or merges it into the cached
// record carrying the same identifier. Unknown alerts older than the
// purge age are not admitted at all.
func (c *Cache) Update(alert *Alert) {
	c.updateAt(alert, time.Now().UTC())
}

func (c *Cache) updateAt(alert *Alert, now time.Time) {
	aid := alert.ID()
	if cached, ok := c.alerts[aid]; ok {
		cached.Merge(alert)
		return
	}
	if alert.CAP.Sent == nil || alert.CAP.Sent.Before(now.Add(-c.age)) {
		c.logger.Debug().Str("alert", aid).Msg("alert too old, not admitted")
		return
	}
	c.alerts[aid] = alert
	c.logger.Info().Str("alert", aid).Msg("alert admitted")
}

// Purge drops alerts older than the configured age, except those still
// referenced by a fresh alert: a cancellation must keep its target
// around so persistent IDs stay inheritable. The returned set contains
// the identifiers of the fresh alerts; source adapters use it to clean
// their scratch directories.
func (c *Cache) Purge() map[string]bool {
	return c.purgeAt(time.Now().UTC())
}

func (c *Cache) purgeAt(now time.Time) map[string]bool {
	thresh := now.Add(-c.age)
	valid := map[string]bool{}
	remove := map[string]bool{}
	for aid, alert := range c.alerts {
		if alert.CAP.Sent != nil && !alert.CAP.Sent.Before(thresh) {
			valid[aid] = true
		} else {
			remove[aid] = true
		}
	}
	for aid := range valid {
		for _, rid := range c.alerts[aid].CAP.ReferenceIDs() {
			delete(remove, rid)
		}
	}
	for aid := range remove {
		delete(c.alerts, aid)
		c.logger.Info().Str("alert", aid).Msg("alert purged")
	}
	return valid
}

// PersistentIDs assigns stable numeric IDs to every cached alert that
// does not have them yet. An alert referencing others inherits the
// union of their IDs; an alert referencing nothing (inside the cache)
// gets the lowest free ID. Assignment runs to a fixpoint so chains of
// updates resolve in one pass; alerts stuck on a reference cycle keep
// no IDs and are reported.
func (c *Cache) PersistentIDs() {
	needpids := map[string]*Alert{}
	pids := map[string][]int{}
	refs := map[string]map[string]bool{}
	for aid, alert := range c.alerts {
		if p := alert.PIDs(); len(p) > 0 {
			pids[aid] = p
		} else {
			needpids[aid] = alert
		}
		refs[aid] = map[string]bool{}
		for _, rid := range alert.CAP.ReferenceIDs() {
			if _, ok := c.alerts[rid]; ok {
				refs[aid][rid] = true
			}
		}
	}

	// Free-ID list: gaps in the currently used range first, then
	// fresh IDs past the maximum.
	used := map[int]bool{}
	maxused := 0
	for _, p := range pids {
		for _, id := range p {
			used[id] = true
			if id > maxused {
				maxused = id
			}
		}
	}
	var free []int
	for id := 1; id <= maxused && len(free) < len(needpids); id++ {
		if !used[id] {
			free = append(free, id)
		}
	}
	for id := maxused + 1; len(free) < len(needpids); id++ {
		free = append(free, id)
	}

	for progress := true; progress; {
		progress = false
		for aid, alert := range needpids {
			ready := true
			for rid := range refs[aid] {
				if _, ok := pids[rid]; !ok {
					ready = false
					break
				}
			}
			if !ready {
				continue
			}
			set := map[int]bool{}
			for rid := range refs[aid] {
				for _, id := range pids[rid] {
					set[id] = true
				}
			}
			var assigned []int
			if len(set) == 0 {
				assigned = []int{free[0]}
				free = free[1:]
			} else {
				for id := range set {
					assigned = append(assigned, id)
				}
				sort.Ints(assigned)
			}
			pids[aid] = assigned
			alert.SetPIDs(assigned)
			delete(needpids, aid)
			progress = true
		}
	}
	for aid := range needpids {
		c.logger.Error().Str("alert", aid).Msg("reference cycle, no persistent IDs assigned")
	}
}

// Query returns the head alerts: those not referenced by any other
// cached alert. Sorted by identifier for deterministic emission order.
func (c *Cache) Query() []*Alert {
	referenced := map[string]bool{}
	for _, alert := range c.alerts {
		for _, rid := range alert.CAP.ReferenceIDs() {
			referenced[rid] = true
		}
	}
	var heads []*Alert
	for aid, alert := range c.alerts {
		if !referenced[aid] {
			heads = append(heads, alert)
		}
	}
	sort.Slice(heads, func(i, j int) bool { return heads[i].ID() < heads[j].ID() })
	return heads
}

// Get looks up a cached alert by identifier.
func (c *Cache) Get(aid string) (*Alert, bool) {
	alert, ok := c.alerts[aid]
	return alert, ok
}

// Len returns the number of cached alerts.
func (c *Cache) Len() int {
	return len(c.alerts)
}
