package mowas

import (
	"fmt"
	"math"
)

// Functions for turning latitude and longitude into the fixed-width
// APRS position encodings.

// wrapLatLon reduces arbitrary coordinates into the canonical ranges
// lat ∈ (-90, +90], lon ∈ (-180, +180].
func wrapLatLon(lat, lon float64) (float64, float64) {
	lat = math.Mod(math.Mod(lat+90, 180)+180, 180) - 90
	if lat <= -90 {
		lat += 180
	}
	lon = math.Mod(math.Mod(lon+180, 360)+360, 360) - 180
	if lon <= -180 {
		lon += 360
	}
	return lat, lon
}

// latitudeToStr converts a latitude to the uncompressed "ddmm.mmN"
// form. The APRS position report has fixed width fields, so degrees
// and minutes always carry leading zeros.
func latitudeToStr(dlat float64) string {
	if dlat < -90 {
		dlat = -90
	}
	if dlat > 90 {
		dlat = 90
	}

	hemi := byte('N')
	if dlat < 0 {
		dlat = -dlat
		hemi = 'S'
	}

	ideg := int(dlat)
	dmin := (dlat - float64(ideg)) * 60

	smin := fmt.Sprintf("%05.2f", dmin)
	// Due to roundoff, 59.9999 could come out as "60.00".
	if smin[0] == '6' {
		smin = "00.00"
		ideg++
	}

	return fmt.Sprintf("%02d%s%c", ideg, smin, hemi)
}

// longitudeToStr converts a longitude to the uncompressed "dddmm.mmE"
// form.
func longitudeToStr(dlong float64) string {
	if dlong < -180 {
		dlong = -180
	}
	if dlong > 180 {
		dlong = 180
	}

	hemi := byte('E')
	if dlong < 0 {
		dlong = -dlong
		hemi = 'W'
	}

	ideg := int(dlong)
	dmin := (dlong - float64(ideg)) * 60

	smin := fmt.Sprintf("%05.2f", dmin)
	// Due to roundoff, 59.9999 could come out as "60.00".
	if smin[0] == '6' {
		smin = "00.00"
		ideg++
	}

	return fmt.Sprintf("%03d%s%c", ideg, smin, hemi)
}

// base91 encodes a non-negative value as n digits of the base-91
// alphabet used by compressed positions.
func base91(value, n int) string {
	digits := make([]byte, n)
	for i := n - 1; i >= 0; i-- {
		digits[i] = byte(value%91) + 33
		value /= 91
	}
	return string(digits)
}

// latitudeToCompStr converts a latitude to the 4-byte base-91
// compressed form.
func latitudeToCompStr(dlat float64) string {
	if dlat < -90 {
		dlat = -90
	}
	if dlat > 90 {
		dlat = 90
	}
	y := int(math.Round(380926 * (90 - dlat)))
	return base91(y, 4)
}

// longitudeToCompStr converts a longitude to the 4-byte base-91
// compressed form.
func longitudeToCompStr(dlong float64) string {
	if dlong < -180 {
		dlong = -180
	}
	if dlong > 180 {
		dlong = 180
	}
	x := int(math.Round(190463 * (180 + dlong)))
	return base91(x, 4)
}
