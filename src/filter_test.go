package mowas

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func newTestFilter(t *testing.T, geocodes []string, maxAge time.Duration) *Filter {
	t.Helper()
	f, err := NewFilter(FilterConfig{Geocodes: geocodes, MaxAge: Duration(maxAge)}, zerolog.Nop())
	require.NoError(t, err)
	return f
}

func TestNormalizeARS(t *testing.T) {
	assert.Equal(t, "090000000000", normalizeARS("09"))
	assert.Equal(t, "091620000000", normalizeARS("09162"))
	assert.Equal(t, "091620000000", normalizeARS("091620000000"))
	assert.Equal(t, "091620000000", normalizeARS("0916200000009"))
}

func TestARSSuperset(t *testing.T) {
	super := arsSuperset("091620000000")
	assert.Equal(t, map[string]bool{
		"000000000000": true,
		"090000000000": true,
		"091000000000": true,
		"091620000000": true,
	}, super)
}

func TestNewFilterValidation(t *testing.T) {
	tests := []struct {
		name    string
		geocode string
		wantErr bool
	}{
		{"land", "09", false},
		{"bezirk", "091", false},
		{"kreis", "09162", false},
		{"verband", "091620000", false},
		{"gemeinde", "091620000000", false},
		{"too long", "0916200000001", false},
		{"bad length", "0916", true},
		{"non-digit", "09abc", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewFilter(FilterConfig{Geocodes: []string{tt.geocode}}, zerolog.Nop())
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestMatchGeocode(t *testing.T) {
	f := newTestFilter(t, []string{"091620000000"}, 4*time.Hour)

	tests := []struct {
		name     string
		code     string
		expected bool
	}{
		{"exact", "091620000000", true},
		{"containing kreis", "09162000", true},
		{"containing kreis short", "091620", true},
		{"containing land", "09", true},
		{"whole country", "000000000000", true},
		{"sibling kreis", "091780000000", false},
		{"other land", "071110000000", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, f.MatchGeocode(tt.code))
		})
	}
}

func TestMatchGeocodeCoarseConfig(t *testing.T) {
	// A configured Land matches every region below it.
	f := newTestFilter(t, []string{"09"}, 4*time.Hour)
	assert.True(t, f.MatchGeocode("091620000000"))
	assert.True(t, f.MatchGeocode("091780000000"))
	assert.False(t, f.MatchGeocode("071110000000"))
}

func TestMatchGeo(t *testing.T) {
	f := newTestFilter(t, []string{"091620000000"}, 4*time.Hour)
	geocodes := []CAPNamedValue{
		{ValueName: "ARS", Value: "091620000000"},
		{ValueName: "ARS", Value: "071110000000"},
	}
	matched := f.MatchGeo(geocodes)
	require.Len(t, matched, 1)
	assert.Equal(t, "091620000000", matched[0].Value)
}

func TestReduceGeocodes(t *testing.T) {
	reduced := reduceGeocodes(map[string]bool{
		"090000000000": true,
		"091620000000": true,
		"071110000000": true,
	})
	assert.Equal(t, map[string]bool{
		"090000000000": true,
		"071110000000": true,
	}, reduced)
}

// Reducing a reduced set must change nothing, and reduction must not
// change what the filter matches.
func TestReduceGeocodesIdempotent(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		lengths := []int{2, 3, 5, 9, 12}
		n := rapid.IntRange(1, 8).Draw(t, "n")
		codes := map[string]bool{}
		for i := 0; i < n; i++ {
			l := rapid.SampledFrom(lengths).Draw(t, "length")
			digits := make([]byte, l)
			for j := range digits {
				digits[j] = byte('0' + rapid.IntRange(0, 2).Draw(t, "digit"))
			}
			codes[normalizeARS(string(digits))] = true
		}
		reduced := reduceGeocodes(codes)
		again := reduceGeocodes(reduced)
		if len(reduced) != len(again) {
			t.Fatalf("reduction not idempotent: %v vs %v", reduced, again)
		}
		for code := range reduced {
			if !again[code] {
				t.Fatalf("reduction not idempotent: %q lost", code)
			}
		}
	})
}

func TestMatchAge(t *testing.T) {
	f := newTestFilter(t, []string{"09"}, 4*time.Hour)
	now := time.Date(2023, 6, 1, 12, 0, 0, 0, time.UTC)

	fresh := NewAlert(&CAPAlert{
		Identifier: "A",
		Sent:       &CAPTime{now.Add(-time.Hour)},
	})
	assert.True(t, f.MatchAge(fresh, "tt", "tn", now))

	stale := NewAlert(&CAPAlert{
		Identifier: "B",
		Sent:       &CAPTime{now.Add(-5 * time.Hour)},
	})
	assert.False(t, f.MatchAge(stale, "tt", "tn", now))

	// Once transmitted, age no longer blocks repetitions.
	stale.TXDone("tt", "tn", now.Add(-4*time.Hour))
	assert.True(t, f.MatchAge(stale, "tt", "tn", now))

	// The window is per sink.
	assert.False(t, f.MatchAge(stale, "tt", "other", now))
}
