// Package navstore reads and writes walkability grid files: a JSON header line
// followed by a gob-encoded grid, the whole stream zstd-compressed.
package navstore

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"

	"pathcraft.ai/internal/sim/mathx"
	"pathcraft.ai/internal/sim/nav"
)

const Version = 1

var ErrCorrupt = errors.New("navstore: corrupt grid file")

type Header struct {
	Version int    `json:"version"`
	WorldID string `json:"world_id"`
	Tick    uint64 `json:"tick"`
	Cols    int    `json:"cols"`
	Rows    int    `json:"rows"`
}

type GridV1 struct {
	Header Header

	CellSize         float64
	WorldHalfExtents float64
	WorldBottomBound float64
	WalkableRadius   int
	AreaCosts        []float64

	Origin   [3]float64
	Walkable []bool
	Area     []uint8
}

// Capture copies g into a file record. The caller must hold at least a read view of g.
func Capture(worldID string, tick uint64, g *nav.Grid) GridV1 {
	s := g.Settings
	return GridV1{
		Header: Header{
			Version: Version,
			WorldID: worldID,
			Tick:    tick,
			Cols:    g.Cols,
			Rows:    g.Rows,
		},
		CellSize:         s.CellSize,
		WorldHalfExtents: s.WorldHalfExtents,
		WorldBottomBound: s.WorldBottomBound,
		WalkableRadius:   s.WalkableRadius,
		AreaCosts:        append([]float64(nil), s.AreaCosts...),
		Origin:           g.Origin.Array(),
		Walkable:         append([]bool(nil), g.Walkable...),
		Area:             append([]uint8(nil), g.Area...),
	}
}

// Grid rebuilds a nav grid from the record.
func (r GridV1) Grid() (*nav.Grid, error) {
	n := r.Header.Cols * r.Header.Rows
	if r.Header.Version != Version {
		return nil, fmt.Errorf("%w: version %d", ErrCorrupt, r.Header.Version)
	}
	if n <= 0 || len(r.Walkable) != n || len(r.Area) != n {
		return nil, fmt.Errorf("%w: %dx%d with %d/%d cells", ErrCorrupt, r.Header.Cols, r.Header.Rows, len(r.Walkable), len(r.Area))
	}
	return &nav.Grid{
		Settings: nav.Settings{
			CellSize:         r.CellSize,
			WorldHalfExtents: r.WorldHalfExtents,
			WorldBottomBound: r.WorldBottomBound,
			WalkableRadius:   r.WalkableRadius,
			AreaCosts:        append([]float64(nil), r.AreaCosts...),
		},
		Cols:     r.Header.Cols,
		Rows:     r.Header.Rows,
		Origin:   mathx.FromArray(r.Origin),
		Walkable: append([]bool(nil), r.Walkable...),
		Area:     append([]uint8(nil), r.Area...),
	}, nil
}

func Write(path string, rec GridV1) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if err := encode(f, rec); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

func encode(f *os.File, rec GridV1) error {
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	bw := bufio.NewWriterSize(enc, 256*1024)

	hb, _ := json.Marshal(rec.Header)
	if _, err := bw.Write(hb); err != nil {
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		return err
	}
	if err := gob.NewEncoder(bw).Encode(&rec); err != nil {
		return fmt.Errorf("gob encode: %w", err)
	}
	if err := bw.Flush(); err != nil {
		return err
	}
	return enc.Close()
}

// ReadHeader decodes only the header line.
func ReadHeader(path string) (Header, error) {
	var h Header
	f, err := os.Open(path)
	if err != nil {
		return h, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return h, err
	}
	defer dec.Close()

	line, err := bufio.NewReader(dec).ReadBytes('\n')
	if err != nil {
		return h, fmt.Errorf("%w: header: %v", ErrCorrupt, err)
	}
	if err := json.Unmarshal(line, &h); err != nil {
		return h, fmt.Errorf("%w: header: %v", ErrCorrupt, err)
	}
	return h, nil
}

func Read(path string) (GridV1, error) {
	var rec GridV1
	f, err := os.Open(path)
	if err != nil {
		return rec, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return rec, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 256*1024)

	// The gob body repeats the header.
	if _, err := br.ReadBytes('\n'); err != nil {
		return rec, fmt.Errorf("%w: header: %v", ErrCorrupt, err)
	}
	if err := gob.NewDecoder(br).Decode(&rec); err != nil {
		return rec, fmt.Errorf("gob decode: %w", err)
	}
	return rec, nil
}

// Load reads path and rebuilds the grid.
func Load(path string) (*nav.Grid, Header, error) {
	rec, err := Read(path)
	if err != nil {
		return nil, Header{}, err
	}
	g, err := rec.Grid()
	if err != nil {
		return nil, Header{}, err
	}
	return g, rec.Header, nil
}
