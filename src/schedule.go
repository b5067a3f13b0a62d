package mowas

import (
	"sort"
	"time"
)

// Schedule decides when an alert is due for repetition. The config maps
// age thresholds onto intervals, e.g.
//
//	{"1h": "10", "1d": "1h"}
//
// repeat every 10 minutes during the first hour, then hourly up to one
// day, then never again. The ladder is precomputed into a list of
// offsets from the first emission; an empty config means one single
// emission.
type Schedule struct {
	offsets []time.Duration
}

// txJitter absorbs the supervisor's cycle drift: an emission due within
// the next few seconds is due now.
const txJitter = 5 * time.Second

func NewSchedule(cfg ScheduleConfig) (*Schedule, error) {
	type rung struct {
		threshold, interval time.Duration
	}
	rungs := make([]rung, 0, len(cfg))
	for thresh, ival := range cfg {
		t, err := ParseDurationConfig(thresh)
		if err != nil {
			return nil, configErrorf("schedule threshold %q: %v", thresh, err)
		}
		i, err := ParseDurationConfig(ival)
		if err != nil {
			return nil, configErrorf("schedule interval %q: %v", ival, err)
		}
		if i.Std() <= 0 {
			return nil, configErrorf("schedule interval %q must be positive", ival)
		}
		rungs = append(rungs, rung{threshold: t.Std(), interval: i.Std()})
	}
	sort.Slice(rungs, func(i, j int) bool {
		if rungs[i].threshold != rungs[j].threshold {
			return rungs[i].threshold < rungs[j].threshold
		}
		return rungs[i].interval < rungs[j].interval
	})

	offsets := []time.Duration{0}
	for _, r := range rungs {
		n := int((r.threshold - offsets[len(offsets)-1]) / r.interval)
		for i := 0; i < n; i++ {
			offsets = append(offsets, offsets[len(offsets)-1]+r.interval)
		}
	}
	return &Schedule{offsets: offsets}, nil
}

// Offsets returns the precomputed emission offsets. The first entry is
// always zero.
func (s *Schedule) Offsets() []time.Duration {
	return s.offsets
}

// TXRequired reports whether the given sink owes this alert an
// emission at time now. An alert never emitted is always due. Otherwise
// the next pending offset is the first one past the distance between
// first and last emission; the alert is due once first+offset has
// arrived (with a little jitter allowance). Past the end of the ladder
// the alert is never due again.
func (s *Schedule) TXRequired(alert *Alert, ttype, tname string, now time.Time) bool {
	first, last, ok := alert.TXStatus(ttype, tname)
	if !ok {
		return true
	}
	done := last.Sub(first)
	for _, d := range s.offsets {
		if d > done {
			return !first.Add(d).After(now.Add(txJitter))
		}
	}
	return false
}
