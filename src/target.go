package mowas

import (
	"sort"
	"time"

	"github.com/rs/zerolog"
)

// Target is one alert sink. Alert receives the current head alerts of
// the cache once per supervisor cycle and decides itself what, if
// anything, to emit.
type Target interface {
	Type() string
	Name() string
	Alert(alerts []*Alert)
	Close() error
}

// BuildTargets constructs all configured sinks, in deterministic
// order.
func BuildTargets(cfg TargetConfig, geodata *Geodata, logger zerolog.Logger) ([]Target, error) {
	var targets []Target
	for _, name := range sortedKeys(cfg.APRSKISSSerial) {
		tcfg := cfg.APRSKISSSerial[name]
		tlogger := targetLogger(logger, "aprs_kiss_serial", name)
		link, err := NewSerialKISSLink(tcfg.Serial, tlogger)
		if err != nil {
			return nil, configErrorf("target aprs_kiss_serial/%s: %v", name, err)
		}
		t, err := NewAPRSTarget("aprs_kiss_serial", name, &tcfg.APRSTargetConfig, geodata, link, tlogger)
		if err != nil {
			return nil, err
		}
		targets = append(targets, t)
	}
	for _, name := range sortedKeys(cfg.APRSKISSTCP) {
		tcfg := cfg.APRSKISSTCP[name]
		tlogger := targetLogger(logger, "aprs_kiss_tcp", name)
		link := NewTCPKISSLink(tcfg.Remote, tlogger)
		t, err := NewAPRSTarget("aprs_kiss_tcp", name, &tcfg.APRSTargetConfig, geodata, link, tlogger)
		if err != nil {
			return nil, err
		}
		targets = append(targets, t)
	}
	return targets, nil
}

func targetLogger(logger zerolog.Logger, ttype, name string) zerolog.Logger {
	return logger.With().Str("component", "target").Str("type", ttype).Str("name", name).Logger()
}

// targetBase carries what every sink flavour shares: identity, filter
// and schedule.
type targetBase struct {
	ttype  string
	tname  string
	logger zerolog.Logger
	filter *Filter
	sched  *Schedule
}

func newTargetBase(ttype, tname string, cfg *APRSTargetConfig, logger zerolog.Logger) (targetBase, error) {
	filter, err := NewFilter(cfg.Filter, logger)
	if err != nil {
		return targetBase{}, configErrorf("target %s/%s: %v", ttype, tname, err)
	}
	sched, err := NewSchedule(cfg.Schedule)
	if err != nil {
		return targetBase{}, configErrorf("target %s/%s: %v", ttype, tname, err)
	}
	return targetBase{
		ttype:  ttype,
		tname:  tname,
		logger: logger,
		filter: filter,
		sched:  sched,
	}, nil
}

func (t *targetBase) Type() string { return t.ttype }
func (t *targetBase) Name() string { return t.tname }

// queryResult pairs an alert due for emission with its filtered view
// of the CAP payload: expired info blocks dropped, areas reduced to
// those with at least one matching geocode. The view is a copy; the
// cached payload stays untouched.
type queryResult struct {
	alert *Alert
	cap   *CAPAlert
}

// query selects the alerts this sink owes an emission right now.
func (t *targetBase) query(alerts []*Alert, now time.Time) []queryResult {
	var due []queryResult
	for _, alert := range alerts {
		if !t.filter.MatchAge(alert, t.ttype, t.tname, now) {
			continue
		}
		if !t.sched.TXRequired(alert, t.ttype, t.tname, now) {
			continue
		}
		filtered := t.filterCAP(alert.CAP, now)
		if filtered == nil {
			continue
		}
		due = append(due, queryResult{alert: alert, cap: filtered})
	}
	sort.Slice(due, func(i, j int) bool { return due[i].alert.ID() < due[j].alert.ID() })
	return due
}

// filterCAP builds the sink's view of a CAP payload. An area survives
// only if it has at least one geocode of interest; an info block
// survives only if it is not expired and has at least one surviving
// area; the alert survives only with at least one info block.
func (t *targetBase) filterCAP(c *CAPAlert, now time.Time) *CAPAlert {
	filtered := *c
	var infos []CAPInfo
	for _, info := range c.Info {
		if info.Expires != nil && info.Expires.Before(now) {
			continue
		}
		var areas []CAPArea
		for _, area := range info.Area {
			matched := t.filter.MatchGeo(area.Geocode)
			if len(matched) == 0 {
				continue
			}
			filteredArea := area
			filteredArea.Geocode = matched
			areas = append(areas, filteredArea)
		}
		if len(areas) == 0 {
			continue
		}
		filteredInfo := info
		filteredInfo.Area = areas
		infos = append(infos, filteredInfo)
	}
	if len(infos) == 0 {
		return nil
	}
	filtered.Info = infos
	return &filtered
}
