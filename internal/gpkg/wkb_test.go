package gpkg

import (
	"encoding/binary"
	"math"
	"testing"
)

func appendUint32(buf []byte, v uint32) []byte {
	return binary.LittleEndian.AppendUint32(buf, v)
}

func appendFloat64(buf []byte, v float64) []byte {
	return binary.LittleEndian.AppendUint64(buf, math.Float64bits(v))
}

func polygonWKB(rings ...[][2]float64) []byte {
	buf := []byte{1}
	buf = appendUint32(buf, wkbPolygon)
	buf = appendUint32(buf, uint32(len(rings)))
	for _, ring := range rings {
		buf = appendUint32(buf, uint32(len(ring)))
		for _, pt := range ring {
			buf = appendFloat64(buf, pt[0])
			buf = appendFloat64(buf, pt[1])
		}
	}
	return buf
}

func multiPolygonWKB(polygons ...[]byte) []byte {
	buf := []byte{1}
	buf = appendUint32(buf, wkbMultiPolygon)
	buf = appendUint32(buf, uint32(len(polygons)))
	for _, poly := range polygons {
		buf = append(buf, poly...)
	}
	return buf
}

func unitSquare(x, y float64) [][2]float64 {
	return [][2]float64{{x, y}, {x + 1, y}, {x + 1, y + 1}, {x, y + 1}, {x, y}}
}

func TestWKBPolygonArea(t *testing.T) {
	area, err := wkbArea(polygonWKB(unitSquare(0, 0)))
	if err != nil {
		t.Fatalf("wkbArea failed: %v", err)
	}
	if area != 1 {
		t.Fatalf("area = %v, want 1", area)
	}
}

func TestWKBPolygonAreaSubtractsHoles(t *testing.T) {
	outer := [][2]float64{{0, 0}, {4, 0}, {4, 4}, {0, 4}, {0, 0}}
	hole := [][2]float64{{1, 1}, {2, 1}, {2, 2}, {1, 2}, {1, 1}}
	area, err := wkbArea(polygonWKB(outer, hole))
	if err != nil {
		t.Fatalf("wkbArea failed: %v", err)
	}
	if area != 15 {
		t.Fatalf("area = %v, want 15", area)
	}
}

func TestWKBAreaIsOrientationIndependent(t *testing.T) {
	clockwise := [][2]float64{{0, 0}, {0, 1}, {1, 1}, {1, 0}, {0, 0}}
	area, err := wkbArea(polygonWKB(clockwise))
	if err != nil {
		t.Fatalf("wkbArea failed: %v", err)
	}
	if area != 1 {
		t.Fatalf("area = %v, want 1", area)
	}
}

func TestWKBMultiPolygonArea(t *testing.T) {
	area, err := wkbArea(multiPolygonWKB(
		polygonWKB(unitSquare(0, 0)),
		polygonWKB(unitSquare(5, 5)),
	))
	if err != nil {
		t.Fatalf("wkbArea failed: %v", err)
	}
	if area != 2 {
		t.Fatalf("area = %v, want 2", area)
	}
}

func TestWKBRejectsNonPolygonal(t *testing.T) {
	point := []byte{1}
	point = appendUint32(point, 1) // wkb point
	point = appendFloat64(point, 0)
	point = appendFloat64(point, 0)
	if _, err := wkbArea(point); err == nil {
		t.Fatal("expected error for point geometry")
	}
}

func TestGeometryBlobRoundTrip(t *testing.T) {
	wkb := polygonWKB(unitSquare(0, 0))
	blob := encodeGeometry(0, wkb)

	geom, err := decodeGeometry(blob)
	if err != nil {
		t.Fatalf("decodeGeometry failed: %v", err)
	}
	if geom.Area() != 1 {
		t.Fatalf("area = %v, want 1", geom.Area())
	}

	clone, ok := geom.Clone().(*Geometry)
	if !ok {
		t.Fatalf("Clone returned %T", geom.Clone())
	}
	if clone.Area() != geom.Area() {
		t.Fatalf("clone area = %v, want %v", clone.Area(), geom.Area())
	}
	// The clone's bytes must be independent of the original.
	clone.wkb[0] = 0xFF
	if geom.wkb[0] == 0xFF {
		t.Fatal("clone shares backing bytes with the original")
	}
}

func TestDecodeGeometryRejectsGarbage(t *testing.T) {
	if _, err := decodeGeometry([]byte("not a blob")); err == nil {
		t.Fatal("expected error for malformed blob")
	}
}
