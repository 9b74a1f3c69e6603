// Package geotiff reads and writes single-band float64 GeoTIFF rasters
// without cgo. It covers the subset of the format this pipeline produces
// and consumes: little-endian, uncompressed, strip-organized IEEE floating
// point samples, with pixel size carried in the ModelPixelScale tag and the
// nodata sentinel in the GDAL_NODATA tag.
package geotiff

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"landopt/internal/gis"
)

const (
	tagImageWidth      = 256
	tagImageLength     = 257
	tagBitsPerSample   = 258
	tagCompression     = 259
	tagPhotometric     = 262
	tagStripOffsets    = 273
	tagSamplesPerPixel = 277
	tagRowsPerStrip    = 278
	tagStripByteCounts = 279
	tagSampleFormat    = 339
	tagModelPixelScale = 33550
	tagGDALNoData      = 42113

	typeShort  = 3
	typeLong   = 4
	typeDouble = 12
	typeASCII  = 2

	compressionNone = 1
	sampleFormatFP  = 3
)

// Store implements gis.RasterStore over GeoTIFF files on disk.
type Store struct{}

// NewStore constructs a GeoTIFF-backed raster store.
func NewStore() *Store { return &Store{} }

// Info implements gis.RasterStore.
func (s *Store) Info(_ context.Context, path string) (gis.RasterInfo, error) {
	f, err := openFile(path)
	if err != nil {
		return gis.RasterInfo{}, err
	}
	return f.info, nil
}

// ReadBlocks implements gis.RasterStore, delivering one block per strip.
func (s *Store) ReadBlocks(ctx context.Context, pb gis.PathBand, fn func(gis.Block) error) error {
	if pb.Band != 1 {
		return fmt.Errorf("geotiff: %s: band %d requested of single-band raster", pb.Path, pb.Band)
	}
	f, err := openFile(pb.Path)
	if err != nil {
		return err
	}
	for y := 0; y < f.info.Height; y += f.rowsPerStrip {
		if err := ctx.Err(); err != nil {
			return err
		}
		h := f.rowsPerStrip
		if y+h > f.info.Height {
			h = f.info.Height - y
		}
		grid, err := f.readRows(y, h)
		if err != nil {
			return err
		}
		if err := fn(gis.Block{X: 0, Y: y, Grid: grid}); err != nil {
			return err
		}
	}
	return nil
}

// ReadRegion implements gis.RasterStore.
func (s *Store) ReadRegion(_ context.Context, pb gis.PathBand, x, y, w, h int) (gis.Grid, error) {
	if pb.Band != 1 {
		return gis.Grid{}, fmt.Errorf("geotiff: %s: band %d requested of single-band raster", pb.Path, pb.Band)
	}
	f, err := openFile(pb.Path)
	if err != nil {
		return gis.Grid{}, err
	}
	if x < 0 || y < 0 || x+w > f.info.Width || y+h > f.info.Height {
		return gis.Grid{}, fmt.Errorf("geotiff: %s: window %d,%d %dx%d outside %dx%d",
			pb.Path, x, y, w, h, f.info.Width, f.info.Height)
	}
	rows, err := f.readRows(y, h)
	if err != nil {
		return gis.Grid{}, err
	}
	out := gis.NewGrid(w, h)
	for row := 0; row < h; row++ {
		copy(out.Data[row*w:(row+1)*w], rows.Data[row*rows.W+x:row*rows.W+x+w])
	}
	return out, nil
}

// Create implements gis.RasterStore. The dataset is buffered in memory and
// encoded on Close.
func (s *Store) Create(_ context.Context, path string, info gis.RasterInfo) (gis.RasterWriter, error) {
	if info.Width <= 0 || info.Height <= 0 {
		return nil, fmt.Errorf("geotiff: create %s with size %dx%d", path, info.Width, info.Height)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("geotiff: create directory for %s: %w", path, err)
	}
	return &writer{path: path, info: info, grid: gis.NewGrid(info.Width, info.Height)}, nil
}

type writer struct {
	path string
	info gis.RasterInfo
	grid gis.Grid
}

func (w *writer) WriteBlock(block gis.Block) error {
	if block.X < 0 || block.Y < 0 || block.X+block.Grid.W > w.grid.W || block.Y+block.Grid.H > w.grid.H {
		return fmt.Errorf("geotiff: block %d,%d %dx%d outside %s", block.X, block.Y, block.Grid.W, block.Grid.H, w.path)
	}
	for row := 0; row < block.Grid.H; row++ {
		src := block.Grid.Data[row*block.Grid.W : (row+1)*block.Grid.W]
		dstStart := (block.Y+row)*w.grid.W + block.X
		copy(w.grid.Data[dstStart:dstStart+block.Grid.W], src)
	}
	return nil
}

func (w *writer) Close() error {
	encoded := encode(w.info, w.grid)
	if err := os.WriteFile(w.path, encoded, 0o644); err != nil {
		return fmt.Errorf("geotiff: write %s: %w", w.path, err)
	}
	return nil
}

// encode lays the file out as header, pixel data in one strip, IFD, then
// out-of-line tag values.
func encode(info gis.RasterInfo, grid gis.Grid) []byte {
	le := binary.LittleEndian
	dataLen := 8 * grid.W * grid.H
	ifdOffset := 8 + dataLen
	if ifdOffset%2 != 0 {
		ifdOffset++
	}

	nodata := strconv.FormatFloat(info.NoData, 'g', -1, 64) + "\x00"
	const entryCount = 12
	ifdLen := 2 + entryCount*12 + 4
	scaleOffset := ifdOffset + ifdLen
	nodataOffset := scaleOffset + 3*8

	buf := make([]byte, nodataOffset+len(nodata))
	buf[0], buf[1] = 'I', 'I'
	le.PutUint16(buf[2:], 42)
	le.PutUint32(buf[4:], 8)
	for i, v := range grid.Data {
		le.PutUint64(buf[8+8*i:], math.Float64bits(v))
	}

	off := ifdOffset
	le.PutUint16(buf[off:], entryCount)
	off += 2
	entry := func(tag, typ uint16, count, value uint32) {
		le.PutUint16(buf[off:], tag)
		le.PutUint16(buf[off+2:], typ)
		le.PutUint32(buf[off+4:], count)
		le.PutUint32(buf[off+8:], value)
		off += 12
	}
	entry(tagImageWidth, typeLong, 1, uint32(grid.W))
	entry(tagImageLength, typeLong, 1, uint32(grid.H))
	entry(tagBitsPerSample, typeShort, 1, 64)
	entry(tagCompression, typeShort, 1, compressionNone)
	entry(tagPhotometric, typeShort, 1, 1)
	entry(tagStripOffsets, typeLong, 1, 8)
	entry(tagSamplesPerPixel, typeShort, 1, 1)
	entry(tagRowsPerStrip, typeLong, 1, uint32(grid.H))
	entry(tagStripByteCounts, typeLong, 1, uint32(dataLen))
	entry(tagSampleFormat, typeShort, 1, sampleFormatFP)
	entry(tagModelPixelScale, typeDouble, 3, uint32(scaleOffset))
	entry(tagGDALNoData, typeASCII, uint32(len(nodata)), uint32(nodataOffset))
	le.PutUint32(buf[off:], 0) // no next IFD

	le.PutUint64(buf[scaleOffset:], math.Float64bits(math.Abs(info.PixelSize[0])))
	le.PutUint64(buf[scaleOffset+8:], math.Float64bits(math.Abs(info.PixelSize[1])))
	le.PutUint64(buf[scaleOffset+16:], math.Float64bits(0))
	copy(buf[nodataOffset:], nodata)
	return buf
}

// file is one parsed GeoTIFF.
type file struct {
	path         string
	raw          []byte
	info         gis.RasterInfo
	rowsPerStrip int
	stripOffsets []uint32
	stripCounts  []uint32
}

func openFile(path string) (*file, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("geotiff: read %s: %w", path, err)
	}
	f := &file{path: path, raw: raw}
	if err := f.parse(); err != nil {
		return nil, fmt.Errorf("geotiff: parse %s: %w", path, err)
	}
	return f, nil
}

func (f *file) parse() error {
	le := binary.LittleEndian
	if len(f.raw) < 8 || f.raw[0] != 'I' || f.raw[1] != 'I' || le.Uint16(f.raw[2:]) != 42 {
		return fmt.Errorf("not a little-endian TIFF")
	}
	ifdOffset := int(le.Uint32(f.raw[4:]))
	if ifdOffset+2 > len(f.raw) {
		return fmt.Errorf("IFD offset out of range")
	}
	count := int(le.Uint16(f.raw[ifdOffset:]))
	if ifdOffset+2+count*12+4 > len(f.raw) {
		return fmt.Errorf("truncated IFD")
	}

	f.info.NoData = math.NaN()
	f.info.PixelSize = [2]float64{1, -1}
	bits, format, compression := 64, sampleFormatFP, compressionNone

	for i := 0; i < count; i++ {
		off := ifdOffset + 2 + i*12
		tag := le.Uint16(f.raw[off:])
		typ := le.Uint16(f.raw[off+2:])
		n := int(le.Uint32(f.raw[off+4:]))
		value := f.raw[off+8 : off+12]

		switch tag {
		case tagImageWidth:
			f.info.Width = int(f.scalar(typ, value))
		case tagImageLength:
			f.info.Height = int(f.scalar(typ, value))
		case tagBitsPerSample:
			bits = int(f.scalar(typ, value))
		case tagCompression:
			compression = int(f.scalar(typ, value))
		case tagSamplesPerPixel:
			if f.scalar(typ, value) != 1 {
				return fmt.Errorf("multi-sample rasters are unsupported")
			}
		case tagRowsPerStrip:
			f.rowsPerStrip = int(f.scalar(typ, value))
		case tagSampleFormat:
			format = int(f.scalar(typ, value))
		case tagStripOffsets:
			offsets, err := f.longs(typ, n, value)
			if err != nil {
				return fmt.Errorf("strip offsets: %w", err)
			}
			f.stripOffsets = offsets
		case tagStripByteCounts:
			counts, err := f.longs(typ, n, value)
			if err != nil {
				return fmt.Errorf("strip byte counts: %w", err)
			}
			f.stripCounts = counts
		case tagModelPixelScale:
			if typ == typeDouble && n >= 2 {
				ext := int(le.Uint32(value))
				if ext+16 <= len(f.raw) {
					sx := math.Float64frombits(le.Uint64(f.raw[ext:]))
					sy := math.Float64frombits(le.Uint64(f.raw[ext+8:]))
					f.info.PixelSize = [2]float64{sx, -sy}
				}
			}
		case tagGDALNoData:
			text := f.ascii(n, value)
			if v, err := strconv.ParseFloat(strings.TrimSpace(text), 64); err == nil {
				f.info.NoData = v
			}
		}
	}

	switch {
	case f.info.Width <= 0 || f.info.Height <= 0:
		return fmt.Errorf("missing image dimensions")
	case compression != compressionNone:
		return fmt.Errorf("compression %d is unsupported", compression)
	case bits != 64 || format != sampleFormatFP:
		return fmt.Errorf("only float64 samples are supported, got %d-bit format %d", bits, format)
	case len(f.stripOffsets) == 0 || len(f.stripOffsets) != len(f.stripCounts):
		return fmt.Errorf("inconsistent strip layout")
	}
	if f.rowsPerStrip <= 0 || f.rowsPerStrip > f.info.Height {
		f.rowsPerStrip = f.info.Height
	}
	return nil
}

func (f *file) scalar(typ uint16, value []byte) uint32 {
	le := binary.LittleEndian
	if typ == typeShort {
		return uint32(le.Uint16(value))
	}
	return le.Uint32(value)
}

func (f *file) longs(typ uint16, n int, value []byte) ([]uint32, error) {
	le := binary.LittleEndian
	out := make([]uint32, n)
	if n == 1 {
		out[0] = f.scalar(typ, value)
		return out, nil
	}
	width := 4
	if typ == typeShort {
		width = 2
	}
	ext := int(le.Uint32(value))
	if ext+n*width > len(f.raw) {
		return nil, fmt.Errorf("array out of range")
	}
	for i := 0; i < n; i++ {
		if typ == typeShort {
			out[i] = uint32(le.Uint16(f.raw[ext+i*2:]))
		} else {
			out[i] = le.Uint32(f.raw[ext+i*4:])
		}
	}
	return out, nil
}

func (f *file) ascii(n int, value []byte) string {
	le := binary.LittleEndian
	if n <= 4 {
		return strings.TrimRight(string(value[:n]), "\x00")
	}
	ext := int(le.Uint32(value))
	if ext+n > len(f.raw) {
		return ""
	}
	return strings.TrimRight(string(f.raw[ext:ext+n]), "\x00")
}

// readRows returns h full-width rows starting at row y.
func (f *file) readRows(y, h int) (gis.Grid, error) {
	le := binary.LittleEndian
	out := gis.NewGrid(f.info.Width, h)
	for row := y; row < y+h; row++ {
		strip := row / f.rowsPerStrip
		if strip >= len(f.stripOffsets) {
			return gis.Grid{}, fmt.Errorf("geotiff: %s: row %d beyond strip table", f.path, row)
		}
		rowInStrip := row - strip*f.rowsPerStrip
		start := int(f.stripOffsets[strip]) + rowInStrip*f.info.Width*8
		end := start + f.info.Width*8
		if end > len(f.raw) || end > int(f.stripOffsets[strip])+int(f.stripCounts[strip]) {
			return gis.Grid{}, fmt.Errorf("geotiff: %s: row %d outside strip %d", f.path, row, strip)
		}
		for col := 0; col < f.info.Width; col++ {
			out.Set(col, row-y, math.Float64frombits(le.Uint64(f.raw[start+col*8:])))
		}
	}
	return out, nil
}
