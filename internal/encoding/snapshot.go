package encoding

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
)

// VectorsMagic identifies a vectors.bin file (spec §6).
const VectorsMagic uint32 = 0x56454354

// VectorsVersion is the only wire version this build writes or reads.
const VectorsVersion uint32 = 1

// CodecTag distinguishes which quantization codec produced the records in
// a vectors.bin file, so Restore knows which codec.bin to expect.
type CodecTag uint32

const (
	CodecNone CodecTag = iota
	CodecScalar
	CodecProduct
	CodecBinary
)

// VectorsHeader is the fixed-size header at the top of vectors.bin.
type VectorsHeader struct {
	Magic    uint32
	Version  uint32
	Dim      uint32
	Count    uint32
	CodecTag CodecTag
}

// WriteVectorsHeader writes the little-endian fixed header.
func WriteVectorsHeader(w io.Writer, h VectorsHeader) error {
	for _, v := range []uint32{h.Magic, h.Version, h.Dim, h.Count, uint32(h.CodecTag)} {
		if err := binary.Write(w, binary.LittleEndian, v); err != nil {
			return fmt.Errorf("write vectors header: %w", err)
		}
	}
	return nil
}

// ReadVectorsHeader reads the header and validates its magic number and
// version. It returns plain errors; pkg/core wraps them in
// ErrCorruptFormat before surfacing them.
func ReadVectorsHeader(r io.Reader) (VectorsHeader, error) {
	var h VectorsHeader
	var codecTag uint32
	fields := []*uint32{&h.Magic, &h.Version, &h.Dim, &h.Count, &codecTag}
	for _, f := range fields {
		if err := binary.Read(r, binary.LittleEndian, f); err != nil {
			return VectorsHeader{}, fmt.Errorf("read vectors header: %w", err)
		}
	}
	h.CodecTag = CodecTag(codecTag)

	if h.Magic != VectorsMagic {
		return VectorsHeader{}, fmt.Errorf("vectors.bin: bad magic %#x", h.Magic)
	}
	if h.Version != VectorsVersion {
		return VectorsHeader{}, fmt.Errorf("vectors.bin: unsupported version %d", h.Version)
	}

	return h, nil
}

// VectorRecord is one record in vectors.bin: an external ID, its encoded
// (possibly quantized) code, and its JSON payload.
type VectorRecord struct {
	ExternalID string
	Code       []byte
	Payload    string
}

// WriteVectorRecord appends one length-prefixed record to w.
func WriteVectorRecord(w *bufio.Writer, rec VectorRecord) error {
	if err := writeLenPrefixed(w, []byte(rec.ExternalID)); err != nil {
		return fmt.Errorf("write record id: %w", err)
	}
	if err := writeLenPrefixed(w, rec.Code); err != nil {
		return fmt.Errorf("write record code: %w", err)
	}
	if err := writeLenPrefixed(w, []byte(rec.Payload)); err != nil {
		return fmt.Errorf("write record payload: %w", err)
	}
	return nil
}

// ReadVectorRecord reads one record written by WriteVectorRecord.
func ReadVectorRecord(r io.Reader) (VectorRecord, error) {
	id, err := readLenPrefixed(r)
	if err != nil {
		return VectorRecord{}, fmt.Errorf("read record id: %w", err)
	}
	code, err := readLenPrefixed(r)
	if err != nil {
		return VectorRecord{}, fmt.Errorf("read record code: %w", err)
	}
	payload, err := readLenPrefixed(r)
	if err != nil {
		return VectorRecord{}, fmt.Errorf("read record payload: %w", err)
	}
	return VectorRecord{ExternalID: string(id), Code: code, Payload: string(payload)}, nil
}

func writeLenPrefixed(w io.Writer, data []byte) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(len(data))); err != nil {
		return err
	}
	_, err := w.Write(data)
	return err
}

func readLenPrefixed(r io.Reader) ([]byte, error) {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return nil, err
	}
	buf := make([]byte, n)
	if n > 0 {
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, err
		}
	}
	return buf, nil
}

// GraphHeader is the fixed-size header at the top of graph.bin.
type GraphHeader struct {
	EntryPoint uint32
	NodeCount  uint32
}

// WriteGraphHeader writes the little-endian fixed header.
func WriteGraphHeader(w io.Writer, h GraphHeader) error {
	if err := binary.Write(w, binary.LittleEndian, h.EntryPoint); err != nil {
		return fmt.Errorf("write graph header: %w", err)
	}
	if err := binary.Write(w, binary.LittleEndian, h.NodeCount); err != nil {
		return fmt.Errorf("write graph header: %w", err)
	}
	return nil
}

// ReadGraphHeader reads the header written by WriteGraphHeader.
func ReadGraphHeader(r io.Reader) (GraphHeader, error) {
	var h GraphHeader
	if err := binary.Read(r, binary.LittleEndian, &h.EntryPoint); err != nil {
		return GraphHeader{}, fmt.Errorf("read graph header: %w", err)
	}
	if err := binary.Read(r, binary.LittleEndian, &h.NodeCount); err != nil {
		return GraphHeader{}, fmt.Errorf("read graph header: %w", err)
	}
	return h, nil
}

// GraphNodeRecord is one node's layer assignment and per-layer neighbor
// list, as stored in graph.bin.
type GraphNodeRecord struct {
	Layer     uint8
	Neighbors [][]uint32 // one slice per layer, 0..Layer inclusive
}

// WriteGraphNode appends one node record to w.
func WriteGraphNode(w *bufio.Writer, rec GraphNodeRecord) error {
	if err := w.WriteByte(rec.Layer); err != nil {
		return err
	}
	for _, layerNeighbors := range rec.Neighbors {
		if err := binary.Write(w, binary.LittleEndian, uint32(len(layerNeighbors))); err != nil {
			return err
		}
		if err := binary.Write(w, binary.LittleEndian, layerNeighbors); err != nil {
			return err
		}
	}
	return nil
}

// ReadGraphNode reads one node record written by WriteGraphNode.
func ReadGraphNode(r io.Reader) (GraphNodeRecord, error) {
	var layerByte [1]byte
	if _, err := io.ReadFull(r, layerByte[:]); err != nil {
		return GraphNodeRecord{}, err
	}
	layer := layerByte[0]

	neighbors := make([][]uint32, int(layer)+1)
	for l := range neighbors {
		var n uint32
		if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
			return GraphNodeRecord{}, err
		}
		list := make([]uint32, n)
		for i := range list {
			if err := binary.Read(r, binary.LittleEndian, &list[i]); err != nil {
				return GraphNodeRecord{}, err
			}
		}
		neighbors[l] = list
	}

	return GraphNodeRecord{Layer: layer, Neighbors: neighbors}, nil
}
