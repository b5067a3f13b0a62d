package mowas

import (
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Filter decides which alerts and which of their areas a sink emits.
// It matches the hierarchical 12-digit German ARS region codes: a code
// matches if the configured region contains it, or if it contains a
// configured region. The hierarchy boundaries are the ARS components
// Land (2), Regierungsbezirk (3), Kreis (5), Verwaltungsgemeinschaft
// (9) and Gemeinde (12).
type Filter struct {
	logger zerolog.Logger

	// geocodes is the reduced configured set; geocodesSuper is the
	// union of the superset chains of all configured codes.
	geocodes      map[string]bool
	geocodesSuper map[string]bool
	maxAge        time.Duration
}

// arsLengths are the prefix lengths at which an ARS code can be cut to
// name a coarser region.
var arsLengths = []int{2, 3, 5, 9}

// normalizeARS brings a code to canonical 12-digit form by padding with
// trailing zeros, or truncating if it is longer.
func normalizeARS(code string) string {
	if len(code) >= 12 {
		return code[:12]
	}
	return code + strings.Repeat("0", 12-len(code))
}

// arsSuperset returns the chain of regions containing the given code,
// from the whole country down to the code itself.
func arsSuperset(code string) map[string]bool {
	code = normalizeARS(code)
	super := map[string]bool{
		strings.Repeat("0", 12): true,
		code:                    true,
	}
	for _, l := range arsLengths {
		super[normalizeARS(code[:l])] = true
	}
	return super
}

// reduceGeocodes drops every code that is already covered by a coarser
// configured code.
func reduceGeocodes(codes map[string]bool) map[string]bool {
	reduced := map[string]bool{}
	for code := range codes {
		covered := false
		for super := range arsSuperset(code) {
			if super != code && codes[super] {
				covered = true
				break
			}
		}
		if !covered {
			reduced[code] = true
		}
	}
	return reduced
}

func NewFilter(cfg FilterConfig, logger zerolog.Logger) (*Filter, error) {
	f := &Filter{
		logger:        logger,
		geocodes:      map[string]bool{},
		geocodesSuper: map[string]bool{},
		maxAge:        cfg.MaxAge.Std(),
	}

	raw := map[string]bool{}
	for _, code := range cfg.Geocodes {
		for _, r := range code {
			if r < '0' || r > '9' {
				return nil, configErrorf("geocode %q contains non-digit characters", code)
			}
		}
		switch len(code) {
		case 2, 3, 5, 9, 12:
		default:
			if len(code) > 12 {
				f.logger.Warn().Str("geocode", code).Msg("geocode longer than 12 digits, truncating")
			} else {
				return nil, configErrorf("geocode %q has invalid length %d", code, len(code))
			}
		}
		raw[normalizeARS(code)] = true
	}

	f.geocodes = reduceGeocodes(raw)
	for code := range f.geocodes {
		for super := range arsSuperset(code) {
			f.geocodesSuper[super] = true
		}
	}
	return f, nil
}

// MatchGeocode reports whether a single region code is of interest:
// either it lies within a configured region, or a configured region
// lies within it.
func (f *Filter) MatchGeocode(code string) bool {
	code = normalizeARS(code)
	if f.geocodesSuper[code] {
		return true
	}
	for super := range arsSuperset(code) {
		if f.geocodes[super] {
			return true
		}
	}
	return false
}

// MatchGeo returns the subset of an area's geocode entries that match.
func (f *Filter) MatchGeo(geocodes []CAPNamedValue) []CAPNamedValue {
	var matched []CAPNamedValue
	for _, gc := range geocodes {
		if f.MatchGeocode(gc.Value) {
			matched = append(matched, gc)
		}
	}
	return matched
}

// MatchAge admits an alert for first emission only while it is younger
// than max_age. Once a sink has emitted an alert it stays admitted, so
// the repetition schedule can run its full course.
func (f *Filter) MatchAge(alert *Alert, ttype, tname string, now time.Time) bool {
	if _, _, ok := alert.TXStatus(ttype, tname); ok {
		return true
	}
	if alert.CAP.Sent == nil {
		return false
	}
	return alert.CAP.Sent.Add(f.maxAge).After(now)
}
