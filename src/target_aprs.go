package mowas

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/ctessum/geom"
	"github.com/rs/zerolog"
)

// Bulletin emission modes.
const (
	BulletinNever    = "never"
	BulletinFallback = "fallback"
	BulletinAlways   = "always"
)

// Beacon timestamp sanity window: an event timestamp far in the past
// or future is suppressed rather than transmitted.
const (
	beaconTimeMaxPast   = 21 * 24 * time.Hour
	beaconTimeMaxFuture = 7 * 24 * time.Hour
)

// Default comments when an alert has no usable headline.
const (
	defaultCommentWarning = "Unspezifische MoWaS-Warnung"
	defaultCommentCancel  = "Unspezifische MoWaS-Entwarnung"
)

// maxObjectName is the APRS object name limit.
const maxObjectName = 9

// APRSTarget turns due alerts into APRS object/item beacons and
// bulletins, packs them into AX.25 UI frames with KISS framing, and
// hands the stream to its link.
type APRSTarget struct {
	targetBase

	geodata *Geodata
	link    KISSLink
	ports   []int

	dstcall  AX25Address
	mycall   AX25Address
	digipath []AX25Address
	truncate bool

	beacon           bool
	beaconPrefix     string
	beaconTime       bool
	beaconCompressed bool
	maxAreas         int

	bulletinMode string
	bulletinID   string
}

func NewAPRSTarget(ttype, tname string, cfg *APRSTargetConfig, geodata *Geodata, link KISSLink, logger zerolog.Logger) (*APRSTarget, error) {
	base, err := newTargetBase(ttype, tname, cfg, logger)
	if err != nil {
		return nil, err
	}

	dstcall, err := ParseAX25Address(cfg.APRS.DstCall)
	if err != nil {
		return nil, configErrorf("target %s/%s: dstcall: %v", ttype, tname, err)
	}
	mycall, err := ParseAX25Address(cfg.APRS.MyCall)
	if err != nil {
		return nil, configErrorf("target %s/%s: mycall: %v", ttype, tname, err)
	}
	var digipath []AX25Address
	for _, digi := range cfg.APRS.DigiPath {
		addr, err := ParseAX25Address(digi)
		if err != nil {
			return nil, configErrorf("target %s/%s: digipath: %v", ttype, tname, err)
		}
		digipath = append(digipath, addr)
	}

	mode := strings.ToLower(cfg.APRS.Bulletin.Mode)
	switch mode {
	case BulletinNever, BulletinFallback, BulletinAlways:
	case "":
		mode = BulletinFallback
	default:
		logger.Warn().Str("mode", mode).Msg("unknown bulletin mode, falling back to 'fallback'")
		mode = BulletinFallback
	}

	// The bulletin addressee field is fixed width.
	id := cfg.APRS.Bulletin.ID
	if len(id) > 6 {
		id = id[:6]
	}
	id += strings.Repeat(" ", 6-len(id))

	return &APRSTarget{
		targetBase:       base,
		geodata:          geodata,
		link:             link,
		ports:            cfg.KISS.Ports,
		dstcall:          dstcall,
		mycall:           mycall,
		digipath:         digipath,
		truncate:         boolDefault(cfg.APRS.TruncateComment, true),
		beacon:           boolDefault(cfg.APRS.Beacon.Enabled, true),
		beaconPrefix:     cfg.APRS.Beacon.Prefix,
		beaconTime:       boolDefault(cfg.APRS.Beacon.Time, true),
		beaconCompressed: cfg.APRS.Beacon.Compressed,
		maxAreas:         cfg.APRS.Beacon.MaxAreas,
		bulletinMode:     mode,
		bulletinID:       id,
	}, nil
}

func (t *APRSTarget) Alert(alerts []*Alert) {
	t.alertAt(alerts, time.Now().UTC())
}

func (t *APRSTarget) alertAt(alerts []*Alert, now time.Time) {
	var frames [][]byte
	var emitted []*Alert
	for _, qr := range t.query(alerts, now) {
		pids := qr.alert.PIDs()
		if len(pids) == 0 {
			// No persistent IDs: the alert sits on a reference
			// cycle. Leave it alone.
			t.logger.Warn().Str("alert", qr.alert.ID()).Msg("alert without persistent IDs, skipping")
			continue
		}
		cancel := qr.cap.IsCancel()
		multiinfo := len(qr.cap.Info) > 1
		for idx := range qr.cap.Info {
			info := &qr.cap.Info[idx]
			positions := t.positions(qr.alert.ID(), info)
			ts := t.beaconTimestamp(qr.cap, info, now)
			comment := t.comment(info)
			frames = append(frames, t.bulletinFrames(qr.alert.ID(), len(positions), comment, cancel)...)
			frames = append(frames, t.beaconFrames(qr.alert.ID(), pids[0], cancel, idx, multiinfo, positions, ts, comment)...)
		}
		emitted = append(emitted, qr.alert)
	}

	if len(frames) > 0 {
		t.logger.Info().Int("frames", len(frames)).Int("alerts", len(emitted)).Msg("emitting alert batch")
	}
	if err := t.link.Send(kissStream(frames, t.ports)); err != nil {
		t.logger.Error().Err(err).Msg("cannot send to KISS link, batch will be retried")
		return
	}
	for _, alert := range emitted {
		alert.TXDone(t.ttype, t.tname, now)
	}
}

func (t *APRSTarget) Close() error {
	return t.link.Close()
}

// frame wraps one APRS payload into an AX.25 UI frame.
func (t *APRSTarget) frame(payload string) []byte {
	f := AX25UIFrame{
		Dst:   t.dstcall,
		Src:   t.mycall,
		Digis: t.digipath,
		Info:  []byte(payload),
	}
	return f.Bytes()
}

// positions derives the beacon positions of one info block: the
// centroid of each of its areas. An area's own polygon wins; without
// one, the outlines of its matching regions come from the geodata
// index. With max_areas set, excess areas collapse into one combined
// shape with a single centroid.
func (t *APRSTarget) positions(aid string, info *CAPInfo) []geom.Point {
	if !t.beacon {
		return nil
	}
	var polys []geom.Polygonal
	for _, area := range info.Area {
		if len(area.Polygon) > 0 {
			if p := t.parsePolygon(aid, area.Polygon); len(p) > 0 {
				polys = append(polys, p)
			}
			continue
		}
		for _, gc := range area.Geocode {
			mp, ok := t.geodata.Lookup(normalizeARS(gc.Value))
			if !ok {
				t.logger.Warn().Str("alert", aid).Str("ars", gc.Value).Msg("no geodata for region")
				continue
			}
			// Scattered regions beacon once per part.
			for _, p := range mp {
				polys = append(polys, p)
			}
		}
	}

	if t.maxAreas > 0 && len(polys) > t.maxAreas {
		t.logger.Debug().Str("alert", aid).Int("areas", len(polys)).Msg("too many areas, merging")
		var merged geom.MultiPolygon
		for _, poly := range polys {
			switch p := poly.(type) {
			case geom.Polygon:
				merged = append(merged, p)
			case geom.MultiPolygon:
				merged = append(merged, p...)
			}
		}
		polys = []geom.Polygonal{merged}
	}

	var positions []geom.Point
	for _, poly := range polys {
		c := poly.Centroid()
		if math.IsNaN(c.X) || math.IsNaN(c.Y) || math.IsInf(c.X, 0) || math.IsInf(c.Y, 0) {
			t.logger.Warn().Str("alert", aid).Msg("degenerate area, no centroid")
			continue
		}
		positions = append(positions, c)
	}
	return positions
}

// parsePolygon converts CAP polygon rings ("lon,lat lon,lat ..." per
// ring) into a geometry. MoWaS sometimes prepends a bogus "-1.0,-1.0"
// vertex to an otherwise closed ring; that defect is repaired.
// Unclosed or unparsable rings are discarded.
func (t *APRSTarget) parsePolygon(aid string, rings []string) geom.Polygon {
	var polygon geom.Polygon
	for _, ringstr := range rings {
		coords := strings.Fields(ringstr)
		if len(coords) > 2 && coords[0] == "-1.0,-1.0" && coords[1] == coords[len(coords)-1] {
			t.logger.Info().Str("alert", aid).Msg("repairing bogus leading polygon vertex")
			coords = coords[1:]
		}
		if len(coords) < 4 || coords[0] != coords[len(coords)-1] {
			t.logger.Error().Str("alert", aid).Msg("polygon ring not closed, discarding")
			continue
		}
		ring := make([]geom.Point, 0, len(coords))
		ok := true
		for _, coord := range coords {
			lonstr, latstr, found := strings.Cut(coord, ",")
			if !found {
				ok = false
				break
			}
			lon, errLon := strconv.ParseFloat(lonstr, 64)
			lat, errLat := strconv.ParseFloat(latstr, 64)
			if errLon != nil || errLat != nil {
				ok = false
				break
			}
			ring = append(ring, geom.Point{X: lon, Y: lat})
		}
		if !ok {
			t.logger.Error().Str("alert", aid).Msg("unparsable polygon ring, discarding")
			continue
		}
		polygon = append(polygon, ring)
	}
	return polygon
}

// beaconTimestamp picks the event time transmitted with an object
// report: onset, else effective, else sent. Implausible values are
// suppressed and the beacon goes out as an untimed item instead.
func (t *APRSTarget) beaconTimestamp(c *CAPAlert, info *CAPInfo, now time.Time) *time.Time {
	if !t.beaconTime {
		return nil
	}
	var ts *CAPTime
	switch {
	case info.Onset != nil:
		ts = info.Onset
	case info.Effective != nil:
		ts = info.Effective
	case c.Sent != nil:
		ts = c.Sent
	default:
		return nil
	}
	age := now.Sub(ts.Time)
	if age >= beaconTimeMaxPast || age <= -beaconTimeMaxFuture {
		return nil
	}
	utc := ts.Time.UTC()
	return &utc
}

// comment derives the transmitted comment from the headline.
func (t *APRSTarget) comment(info *CAPInfo) string {
	c := stripReserved(transliterate(info.Headline))
	if strings.TrimSpace(c) == "" {
		return ""
	}
	return c
}

// bulletinFrames emits the textual bulletin for one info block,
// subject to the bulletin mode.
func (t *APRSTarget) bulletinFrames(aid string, npositions int, comment string, cancel bool) [][]byte {
	switch t.bulletinMode {
	case BulletinNever:
		return nil
	case BulletinFallback:
		if npositions > 0 {
			return nil
		}
	}
	if comment == "" {
		if cancel {
			comment = defaultCommentCancel
		} else {
			comment = defaultCommentWarning
		}
	}
	if commentTooLong(comment, maxCommentBulletin) {
		t.logger.Warn().Str("alert", aid).Msg("bulletin text too long")
		if t.truncate {
			comment = truncateComment(comment, maxCommentBulletin)
		}
	}
	return [][]byte{t.frame(bulletinPayload(t.bulletinID, comment))}
}

// beaconFrames emits one object or item report per position of one
// info block.
//
// The name is built from the beacon prefix and the alert's first
// persistent ID; with several positions an area letter (A..Z, clamped
// at Z) distinguishes them, and with several info blocks the 0-based
// info index follows, base-26 encoded with digits A..Z.
func (t *APRSTarget) beaconFrames(aid string, pid int, cancel bool, infoidx int, multiinfo bool, positions []geom.Point, ts *time.Time, comment string) [][]byte {
	if len(positions) == 0 {
		return nil
	}
	if comment == "" {
		if cancel {
			comment = defaultCommentCancel
		} else {
			comment = defaultCommentWarning
		}
	}
	if commentTooLong(comment, maxCommentObject) {
		t.logger.Warn().Str("alert", aid).Msg("beacon comment too long")
		if t.truncate {
			comment = truncateComment(comment, maxCommentObject)
		}
	}

	var frames [][]byte
	for i, p := range positions {
		name := t.beaconPrefix + strconv.Itoa(pid)
		if len(positions) > 1 {
			letter := i
			if letter > 25 {
				letter = 25
			}
			name += string(rune('A' + letter))
		}
		if multiinfo {
			name += base26Upper(infoidx)
		}
		if len(name) > maxObjectName {
			t.logger.Warn().Str("alert", aid).Str("name", name).Msg("object name too long, truncating")
			name = name[:maxObjectName]
		}

		lat, lon := wrapLatLon(p.Y, p.X)
		var pos string
		if t.beaconCompressed {
			pos = compressedPosition(lat, lon, symbolWarningArea)
		} else {
			pos = uncompressedPosition(lat, lon, symbolWarningArea)
		}

		var payload string
		if ts != nil {
			payload = objectReport(name, cancel, *ts, pos, comment)
		} else {
			payload = itemReport(name, cancel, pos, comment)
		}
		frames = append(frames, t.frame(payload))
	}
	return frames
}

// base26Upper encodes a non-negative index with digits A..Z, most
// significant digit first; 0 encodes as "A".
func base26Upper(n int) string {
	if n < 0 {
		n = 0
	}
	var digits []byte
	for {
		digits = append([]byte{byte('A' + n%26)}, digits...)
		n /= 26
		if n == 0 {
			break
		}
	}
	return string(digits)
}
