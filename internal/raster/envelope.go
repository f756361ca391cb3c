package raster

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"time"
)

// The artifact envelope stores a grid and its attributes in one object so an
// artifact and its metadata are always written together:
//
//	"RPAF" | version:uint8 | headerLen:uint32 | header:JSON | samples
//
// Samples are little-endian and row-major, 4 bytes each for float32 grids
// and 8 bytes each for float64 grids.
const (
	envelopeMagic   = "RPAF"
	envelopeVersion = 1
)

// ErrNotEnvelope is returned when decoding bytes that do not start with the
// envelope magic.
var ErrNotEnvelope = errors.New("not a raster envelope")

type envelopeHeader struct {
	Geometry
	Time  *time.Time        `json:"time,omitempty"`
	Attrs map[string]string `json:"attrs"`
}

// Artifact is a decoded envelope.
type Artifact struct {
	Grid  Grid
	Attrs map[string]string
}

// EncodeArtifact serializes a grid together with its attributes.
func EncodeArtifact(g Grid, attrs map[string]string) ([]byte, error) {
	if err := g.CheckShape(); err != nil {
		return nil, err
	}

	header, err := json.Marshal(envelopeHeader{Geometry: g.Geometry, Time: g.Time, Attrs: attrs})
	if err != nil {
		return nil, fmt.Errorf("encode envelope header: %w", err)
	}

	var buf bytes.Buffer
	buf.WriteString(envelopeMagic)
	buf.WriteByte(envelopeVersion)
	_ = binary.Write(&buf, binary.LittleEndian, uint32(len(header)))
	buf.Write(header)

	switch g.DType {
	case Float64:
		for _, v := range g.Data {
			_ = binary.Write(&buf, binary.LittleEndian, float64(v))
		}
	default:
		for _, v := range g.Data {
			_ = binary.Write(&buf, binary.LittleEndian, math.Float32bits(v))
		}
	}
	return buf.Bytes(), nil
}

// DecodeArtifact parses an envelope produced by EncodeArtifact.
func DecodeArtifact(data []byte) (Artifact, error) {
	r := bytes.NewReader(data)

	magic := make([]byte, len(envelopeMagic))
	if _, err := io.ReadFull(r, magic); err != nil || string(magic) != envelopeMagic {
		return Artifact{}, ErrNotEnvelope
	}
	version, err := r.ReadByte()
	if err != nil {
		return Artifact{}, fmt.Errorf("read envelope version: %w", err)
	}
	if version != envelopeVersion {
		return Artifact{}, fmt.Errorf("unsupported envelope version %d", version)
	}

	var headerLen uint32
	if err := binary.Read(r, binary.LittleEndian, &headerLen); err != nil {
		return Artifact{}, fmt.Errorf("read envelope header length: %w", err)
	}
	if int64(headerLen) > int64(r.Len()) {
		return Artifact{}, fmt.Errorf("envelope header length %d exceeds payload", headerLen)
	}
	header := make([]byte, headerLen)
	if _, err := io.ReadFull(r, header); err != nil {
		return Artifact{}, fmt.Errorf("read envelope header: %w", err)
	}
	var h envelopeHeader
	if err := json.Unmarshal(header, &h); err != nil {
		return Artifact{}, fmt.Errorf("decode envelope header: %w", err)
	}

	g := Grid{Geometry: h.Geometry, Time: h.Time}
	sampleSize := int64(4)
	if g.DType == Float64 {
		sampleSize = 8
	}
	// Checked before allocating: the axes come from untrusted bytes.
	rows, cols := int64(g.Rows()), int64(g.Cols())
	if rows*cols != int64(r.Len())/sampleSize || int64(r.Len())%sampleSize != 0 {
		return Artifact{}, fmt.Errorf("%w: %d payload bytes for %dx%d grid of %d-byte samples",
			ErrShape, r.Len(), rows, cols, sampleSize)
	}
	g.Data = make([]float32, rows*cols)
	switch g.DType {
	case Float64:
		for i := range g.Data {
			var v float64
			if err := binary.Read(r, binary.LittleEndian, &v); err != nil {
				return Artifact{}, fmt.Errorf("read sample %d: %w", i, err)
			}
			g.Data[i] = float32(v)
		}
	default:
		for i := range g.Data {
			var bits uint32
			if err := binary.Read(r, binary.LittleEndian, &bits); err != nil {
				return Artifact{}, fmt.Errorf("read sample %d: %w", i, err)
			}
			g.Data[i] = math.Float32frombits(bits)
		}
	}
	return Artifact{Grid: g, Attrs: h.Attrs}, nil
}

// Decoder turns raw provider bytes into a grid. Implementations for binary
// formats such as GRIB or NetCDF live outside this module.
type Decoder interface {
	Decode(raw []byte) (Grid, error)
}

// EnvelopeDecoder reads raw files that are already in envelope form, as
// produced by cmd/genmock or an upstream conversion step. Attributes are
// dropped; the pipeline sets its own.
type EnvelopeDecoder struct{}

func (EnvelopeDecoder) Decode(raw []byte) (Grid, error) {
	a, err := DecodeArtifact(raw)
	if err != nil {
		return Grid{}, err
	}
	return a.Grid, nil
}
