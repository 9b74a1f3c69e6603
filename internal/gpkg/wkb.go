package gpkg

import (
	"encoding/binary"
	"fmt"
	"math"

	"landopt/internal/gis"
)

// Geometry is a polygonal feature carried as its original WKB bytes plus a
// precomputed planar area, so cloning into a new package is lossless.
type Geometry struct {
	wkb  []byte
	area float64
}

// Area implements gis.Geometry.
func (g *Geometry) Area() float64 { return g.area }

// Clone implements gis.Geometry.
func (g *Geometry) Clone() gis.Geometry {
	return &Geometry{wkb: append([]byte(nil), g.wkb...), area: g.area}
}

// GeoPackage geometry blob header: magic "GP", version, flags, srs id,
// optional envelope, then standard WKB.
const gpkgMagic = "GP"

// decodeGeometry parses a GeoPackage geometry blob into a Geometry.
func decodeGeometry(blob []byte) (*Geometry, error) {
	if len(blob) < 8 || string(blob[:2]) != gpkgMagic {
		return nil, fmt.Errorf("not a geopackage geometry blob")
	}
	flags := blob[3]
	if flags&(1<<5) != 0 {
		return nil, fmt.Errorf("extended geometry blobs are unsupported")
	}
	envelope := (flags >> 1) & 0x7
	var envelopeLen int
	switch envelope {
	case 0:
		envelopeLen = 0
	case 1:
		envelopeLen = 32
	case 2, 3:
		envelopeLen = 48
	case 4:
		envelopeLen = 64
	default:
		return nil, fmt.Errorf("invalid envelope indicator %d", envelope)
	}
	wkbStart := 8 + envelopeLen
	if len(blob) < wkbStart {
		return nil, fmt.Errorf("truncated geometry blob")
	}

	wkb := append([]byte(nil), blob[wkbStart:]...)
	area, err := wkbArea(wkb)
	if err != nil {
		return nil, err
	}
	return &Geometry{wkb: wkb, area: area}, nil
}

// encodeGeometry wraps WKB bytes in a minimal GeoPackage blob header with
// no envelope.
func encodeGeometry(srsID int32, wkb []byte) []byte {
	blob := make([]byte, 8+len(wkb))
	blob[0], blob[1] = 'G', 'P'
	blob[2] = 0    // version 1
	blob[3] = 0x01 // little-endian header, no envelope
	binary.LittleEndian.PutUint32(blob[4:], uint32(srsID))
	copy(blob[8:], wkb)
	return blob
}

const (
	wkbPolygon      = 3
	wkbMultiPolygon = 6

	ewkbZ    = 0x80000000
	ewkbM    = 0x40000000
	ewkbSRID = 0x20000000
)

// wkbArea computes the planar area of a WKB polygon or multi-polygon:
// exterior ring area minus hole areas, summed across members.
func wkbArea(wkb []byte) (float64, error) {
	r := &wkbReader{buf: wkb}
	return r.geometryArea()
}

type wkbReader struct {
	buf []byte
	pos int
}

func (r *wkbReader) geometryArea() (float64, error) {
	order, err := r.byteOrder()
	if err != nil {
		return 0, err
	}
	rawType, err := r.uint32(order)
	if err != nil {
		return 0, err
	}

	dims := 2
	if rawType&ewkbZ != 0 {
		dims++
	}
	if rawType&ewkbM != 0 {
		dims++
	}
	hasSRID := rawType&ewkbSRID != 0
	base := rawType &^ (ewkbZ | ewkbM | ewkbSRID)
	// ISO encodings add 1000 per extra dimension set.
	switch base / 1000 {
	case 1, 2:
		dims++
	case 3:
		dims += 2
	}
	base %= 1000

	if hasSRID {
		if _, err := r.uint32(order); err != nil {
			return 0, err
		}
	}

	switch base {
	case wkbPolygon:
		return r.polygonArea(order, dims)
	case wkbMultiPolygon:
		count, err := r.uint32(order)
		if err != nil {
			return 0, err
		}
		var total float64
		for i := uint32(0); i < count; i++ {
			area, err := r.geometryArea()
			if err != nil {
				return 0, err
			}
			total += area
		}
		return total, nil
	default:
		return 0, fmt.Errorf("geometry type %d is not polygonal", base)
	}
}

func (r *wkbReader) polygonArea(order binary.ByteOrder, dims int) (float64, error) {
	ringCount, err := r.uint32(order)
	if err != nil {
		return 0, err
	}
	var area float64
	for ring := uint32(0); ring < ringCount; ring++ {
		signed, err := r.ringArea(order, dims)
		if err != nil {
			return 0, err
		}
		if ring == 0 {
			area = math.Abs(signed)
		} else {
			area -= math.Abs(signed)
		}
	}
	return area, nil
}

// ringArea computes the shoelace area of one linear ring.
func (r *wkbReader) ringArea(order binary.ByteOrder, dims int) (float64, error) {
	pointCount, err := r.uint32(order)
	if err != nil {
		return 0, err
	}
	var sum, prevX, prevY float64
	for i := uint32(0); i < pointCount; i++ {
		x, err := r.float64(order)
		if err != nil {
			return 0, err
		}
		y, err := r.float64(order)
		if err != nil {
			return 0, err
		}
		for skip := 2; skip < dims; skip++ {
			if _, err := r.float64(order); err != nil {
				return 0, err
			}
		}
		if i > 0 {
			sum += prevX*y - x*prevY
		}
		prevX, prevY = x, y
	}
	return sum / 2, nil
}

func (r *wkbReader) byteOrder() (binary.ByteOrder, error) {
	if r.pos >= len(r.buf) {
		return nil, fmt.Errorf("truncated WKB")
	}
	b := r.buf[r.pos]
	r.pos++
	switch b {
	case 0:
		return binary.BigEndian, nil
	case 1:
		return binary.LittleEndian, nil
	default:
		return nil, fmt.Errorf("invalid WKB byte order %d", b)
	}
}

func (r *wkbReader) uint32(order binary.ByteOrder) (uint32, error) {
	if r.pos+4 > len(r.buf) {
		return 0, fmt.Errorf("truncated WKB")
	}
	v := order.Uint32(r.buf[r.pos:])
	r.pos += 4
	return v, nil
}

func (r *wkbReader) float64(order binary.ByteOrder) (float64, error) {
	if r.pos+8 > len(r.buf) {
		return 0, fmt.Errorf("truncated WKB")
	}
	v := math.Float64frombits(order.Uint64(r.buf[r.pos:]))
	r.pos += 8
	return v, nil
}
