package mowas

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/ctessum/geom"
)

// GeoPackage geometry BLOB decoding.
//
// Specifications:
//  - GeoPackage: https://www.geopackage.org/spec/#gpb_format
//  - WKB: ISO 19125 / OGC 06-103r4
//
// A GeoPackage geometry is a small header ("GP" magic, version, flags,
// SRS id, optional envelope) followed by a standard WKB geometry. Only
// the geometry types the region layer can contain are supported.

const (
	wkbPolygon      = 3
	wkbMultiPolygon = 6
)

// envelope sizes in bytes, indexed by the envelope contents indicator
// from the header flags.
var gpkgEnvelopeSize = [5]int{0, 32, 48, 48, 64}

func decodeGPKGGeometry(blob []byte) (geom.MultiPolygon, error) {
	if len(blob) < 8 || blob[0] != 'G' || blob[1] != 'P' {
		return nil, fmt.Errorf("not a GeoPackage geometry")
	}
	flags := blob[3]
	if flags&0x20 != 0 {
		return nil, fmt.Errorf("empty geometry")
	}
	envelope := int(flags>>1) & 0x07
	if envelope >= len(gpkgEnvelopeSize) {
		return nil, fmt.Errorf("invalid envelope indicator %d", envelope)
	}
	offset := 8 + gpkgEnvelopeSize[envelope]
	if len(blob) < offset {
		return nil, fmt.Errorf("truncated geometry header")
	}
	r := &wkbReader{data: blob[offset:]}
	mp, err := r.geometry()
	if err != nil {
		return nil, err
	}
	return mp, nil
}

type wkbReader struct {
	data []byte
	pos  int
}

func (r *wkbReader) order() (binary.ByteOrder, error) {
	if r.pos >= len(r.data) {
		return nil, fmt.Errorf("truncated WKB")
	}
	b := r.data[r.pos]
	r.pos++
	switch b {
	case 0:
		return binary.BigEndian, nil
	case 1:
		return binary.LittleEndian, nil
	}
	return nil, fmt.Errorf("invalid WKB byte order %d", b)
}

func (r *wkbReader) u32(bo binary.ByteOrder) (uint32, error) {
	if r.pos+4 > len(r.data) {
		return 0, fmt.Errorf("truncated WKB")
	}
	v := bo.Uint32(r.data[r.pos:])
	r.pos += 4
	return v, nil
}

func (r *wkbReader) f64(bo binary.ByteOrder) (float64, error) {
	if r.pos+8 > len(r.data) {
		return 0, fmt.Errorf("truncated WKB")
	}
	v := math.Float64frombits(bo.Uint64(r.data[r.pos:]))
	r.pos += 8
	return v, nil
}

// header reads the per-geometry byte order and type, and derives the
// coordinate dimension from the ISO type offset (+1000 Z, +2000 M,
// +3000 ZM). Extra dimensions are read and dropped.
func (r *wkbReader) header() (binary.ByteOrder, uint32, int, error) {
	bo, err := r.order()
	if err != nil {
		return nil, 0, 0, err
	}
	raw, err := r.u32(bo)
	if err != nil {
		return nil, 0, 0, err
	}
	typ := raw % 1000
	dims := 2
	switch raw / 1000 {
	case 0:
	case 1, 2:
		dims = 3
	case 3:
		dims = 4
	default:
		return nil, 0, 0, fmt.Errorf("invalid WKB geometry type %d", raw)
	}
	return bo, typ, dims, nil
}

func (r *wkbReader) geometry() (geom.MultiPolygon, error) {
	bo, typ, dims, err := r.header()
	if err != nil {
		return nil, err
	}
	switch typ {
	case wkbPolygon:
		p, err := r.polygon(bo, dims)
		if err != nil {
			return nil, err
		}
		return geom.MultiPolygon{p}, nil
	case wkbMultiPolygon:
		n, err := r.u32(bo)
		if err != nil {
			return nil, err
		}
		mp := make(geom.MultiPolygon, 0, n)
		for i := uint32(0); i < n; i++ {
			pbo, ptyp, pdims, err := r.header()
			if err != nil {
				return nil, err
			}
			if ptyp != wkbPolygon {
				return nil, fmt.Errorf("unexpected geometry type %d inside MultiPolygon", ptyp)
			}
			p, err := r.polygon(pbo, pdims)
			if err != nil {
				return nil, err
			}
			mp = append(mp, p)
		}
		return mp, nil
	}
	return nil, fmt.Errorf("unsupported WKB geometry type %d", typ)
}

func (r *wkbReader) polygon(bo binary.ByteOrder, dims int) (geom.Polygon, error) {
	nrings, err := r.u32(bo)
	if err != nil {
		return nil, err
	}
	p := make(geom.Polygon, 0, nrings)
	for i := uint32(0); i < nrings; i++ {
		npoints, err := r.u32(bo)
		if err != nil {
			return nil, err
		}
		ring := make([]geom.Point, 0, npoints)
		for j := uint32(0); j < npoints; j++ {
			x, err := r.f64(bo)
			if err != nil {
				return nil, err
			}
			y, err := r.f64(bo)
			if err != nil {
				return nil, err
			}
			for d := 2; d < dims; d++ {
				if _, err := r.f64(bo); err != nil {
					return nil, err
				}
			}
			ring = append(ring, geom.Point{X: x, Y: y})
		}
		p = append(p, ring)
	}
	return p, nil
}
