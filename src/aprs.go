package mowas

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/lestrrat-go/strftime"
)

// APRS payload encoding: object reports, item reports and bulletins as
// defined by APRS Protocol Reference 1.0.1 chapters 7, 11 and 14.

// APRSSymbol is a display symbol: table (or overlay) selector plus
// symbol code.
type APRSSymbol struct {
	Table byte
	Code  byte
}

// symbolWarningArea marks civil-protection warnings on the map.
var symbolWarningArea = APRSSymbol{Table: '\\', Code: '\''}

// Payload length limits from the APRS spec. Comments exceeding the
// limit are truncated to limit-3 characters plus "...".
const (
	maxCommentObject   = 43
	maxCommentBulletin = 67
)

// dhmTimestamp renders t in the day/hours/minutes zulu form used by
// object reports.
func dhmTimestamp(t time.Time) string {
	s, err := strftime.Format("%d%H%M", t.UTC())
	if err != nil {
		// The pattern is constant; Format cannot fail on it.
		panic(err)
	}
	return s + "z"
}

// uncompressedPosition renders the 19-byte plain-text position.
func uncompressedPosition(lat, lon float64, sym APRSSymbol) string {
	return latitudeToStr(lat) + string(sym.Table) + longitudeToStr(lon) + string(sym.Code)
}

// compressedPosition renders the 13-byte base-91 position. Course,
// speed and range are unused, so the trailing bytes carry the " sT"
// placeholder.
func compressedPosition(lat, lon float64, sym APRSSymbol) string {
	return string(sym.Table) + latitudeToCompStr(lat) + longitudeToCompStr(lon) + string(sym.Code) + " sT"
}

// objectReport builds a timestamped object report. The object name is
// space-padded to exactly 9 characters; a killed object announces a
// cancellation.
func objectReport(name string, killed bool, ts time.Time, pos, comment string) string {
	state := byte('*')
	if killed {
		state = '_'
	}
	return fmt.Sprintf(";%-9s%c%s%s%s", name, state, dhmTimestamp(ts), pos, comment)
}

// itemReport builds an item report, the timestamp-less sibling of the
// object report. The item name is 3 to 9 characters.
func itemReport(name string, killed bool, pos, comment string) string {
	state := byte('!')
	if killed {
		state = '_'
	}
	return fmt.Sprintf(")%-3s%c%s%s", name, state, pos, comment)
}

// bulletinPayload builds a general bulletin. The addressee field is
// "BLN" plus the id padded to exactly 6 characters.
func bulletinPayload(id, text string) string {
	return fmt.Sprintf(":BLN%-6.6s:%s", id, text)
}

// truncateComment shortens a comment to the given limit, marking the
// cut with an ellipsis. Limits are in characters, not bytes.
func truncateComment(comment string, limit int) string {
	r := []rune(comment)
	if len(r) <= limit {
		return comment
	}
	return string(r[:limit-3]) + "..."
}

// commentTooLong reports whether a comment exceeds the limit.
func commentTooLong(comment string, limit int) bool {
	return len([]rune(comment)) > limit
}

// German umlauts and ß are outside the APRS character repertoire.
// The transliteration keeps capitalisation readable: an umlaut
// adjacent to another capital expands to two capitals ("BAYERN-SÜD" →
// "BAYERN-SUED"), elsewhere it expands in mixed case ("Übung" →
// "Uebung"). Literal "ÄE" pairs collapse so no triple vowel appears.
var (
	umlautPairs = []struct{ from, to string }{
		{"ÄE", "AE"}, {"ÖE", "OE"}, {"ÜE", "UE"},
		{"Äe", "Ae"}, {"Öe", "Oe"}, {"Üe", "Ue"},
		{"äe", "ae"}, {"öe", "oe"}, {"üe", "ue"},
	}
	umlautBeforeUpper = []struct {
		re *regexp.Regexp
		to string
	}{
		{regexp.MustCompile(`Ä([A-Z])`), "AE$1"},
		{regexp.MustCompile(`Ö([A-Z])`), "OE$1"},
		{regexp.MustCompile(`Ü([A-Z])`), "UE$1"},
	}
	umlautAfterUpper = []struct {
		re *regexp.Regexp
		to string
	}{
		{regexp.MustCompile(`([A-Z])Ä`), "${1}AE"},
		{regexp.MustCompile(`([A-Z])Ö`), "${1}OE"},
		{regexp.MustCompile(`([A-Z])Ü`), "${1}UE"},
	}
	umlautSingles = []struct{ from, to string }{
		{"Ä", "Ae"}, {"Ö", "Oe"}, {"Ü", "Ue"},
		{"ä", "ae"}, {"ö", "oe"}, {"ü", "ue"},
		{"ß", "ss"},
	}
)

func transliterate(s string) string {
	for _, p := range umlautPairs {
		s = strings.ReplaceAll(s, p.from, p.to)
	}
	for _, p := range umlautBeforeUpper {
		s = p.re.ReplaceAllString(s, p.to)
	}
	for _, p := range umlautAfterUpper {
		s = p.re.ReplaceAllString(s, p.to)
	}
	for _, p := range umlautSingles {
		s = strings.ReplaceAll(s, p.from, p.to)
	}
	return s
}

// stripReserved removes the two characters reserved for the APRS
// base-91 telemetry extension.
func stripReserved(s string) string {
	s = strings.ReplaceAll(s, "|", "")
	s = strings.ReplaceAll(s, "~", "")
	return s
}
