package mowas

import (
	"fmt"
	"time"
)

// TXWindow records the first and last emission of an alert through one
// sink. Both timestamps are set together; first <= last.
type TXWindow struct {
	First time.Time `json:"first"`
	Last  time.Time `json:"last"`
}

// Alert is one cached alert: the CAP payload plus gateway-private
// bookkeeping. Attrs holds source- and cache-assigned attributes
// ("pids", "path_audio"); TXState holds one TXWindow per sink, keyed by
// sink type and sink name.
type Alert struct {
	CAP     *CAPAlert
	Attrs   map[string]any
	TXState map[string]map[string]*TXWindow
}

func NewAlert(cap *CAPAlert) *Alert {
	return &Alert{
		CAP:     cap,
		Attrs:   map[string]any{},
		TXState: map[string]map[string]*TXWindow{},
	}
}

// ID returns the alert's identity, the CAP identifier.
func (a *Alert) ID() string {
	return a.CAP.Identifier
}

// Merge absorbs a newer record with the same identifier: the CAP
// payload is replaced, while attrs and txstate entries already present
// survive. Keys only the newer record has are added. Merging records
// with differing identifiers is an integrity violation.
func (a *Alert) Merge(newer *Alert) {
	if a.ID() != newer.ID() {
		panic(fmt.Sprintf("merge of alert %q with %q", a.ID(), newer.ID()))
	}
	a.CAP = newer.CAP
	for k, v := range newer.Attrs {
		if _, ok := a.Attrs[k]; !ok {
			a.Attrs[k] = v
		}
	}
	for ttype, sinks := range newer.TXState {
		if _, ok := a.TXState[ttype]; !ok {
			a.TXState[ttype] = map[string]*TXWindow{}
		}
		for tname, win := range sinks {
			if _, ok := a.TXState[ttype][tname]; !ok {
				a.TXState[ttype][tname] = win
			}
		}
	}
}

// PIDs returns the persistent IDs assigned to this alert, or nil if
// none have been assigned yet.
func (a *Alert) PIDs() []int {
	v, ok := a.Attrs["pids"]
	if !ok {
		return nil
	}
	pids, _ := v.([]int)
	return pids
}

func (a *Alert) SetPIDs(pids []int) {
	a.Attrs["pids"] = pids
}

// TXStatus returns the emission window of this alert through the given
// sink. ok is false if the sink has never emitted it.
func (a *Alert) TXStatus(ttype, tname string) (first, last time.Time, ok bool) {
	sinks, ok := a.TXState[ttype]
	if !ok {
		return time.Time{}, time.Time{}, false
	}
	win, ok := sinks[tname]
	if !ok || win == nil {
		return time.Time{}, time.Time{}, false
	}
	return win.First, win.Last, true
}

// TXDone records an emission of this alert through the given sink at t.
// The first emission opens the window; later ones only advance last.
func (a *Alert) TXDone(ttype, tname string, t time.Time) {
	sinks, ok := a.TXState[ttype]
	if !ok {
		sinks = map[string]*TXWindow{}
		a.TXState[ttype] = sinks
	}
	win, ok := sinks[tname]
	if !ok || win == nil {
		sinks[tname] = &TXWindow{First: t, Last: t}
		return
	}
	win.Last = t
}

// normalizeAttrs repairs attribute types after a JSON round trip
// through the cache file ("pids" comes back as []any of float64).
func (a *Alert) normalizeAttrs() {
	if a.Attrs == nil {
		a.Attrs = map[string]any{}
	}
	if a.TXState == nil {
		a.TXState = map[string]map[string]*TXWindow{}
	}
	if raw, ok := a.Attrs["pids"].([]any); ok {
		pids := make([]int, 0, len(raw))
		for _, v := range raw {
			if f, ok := v.(float64); ok {
				pids = append(pids, int(f))
			}
		}
		a.Attrs["pids"] = pids
	}
}
