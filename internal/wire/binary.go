package wire

import (
	"bytes"
	"encoding/binary"
	"io"
	"math"

	"github.com/openneuro/rtbids/internal/bidserrors"
)

const binaryMagic uint32 = 0x42444953 // "BDIS"

// EncodeBinary renders e as the compact binary wire form: a fixed header
// (magic, version, dtype, shape), the affine, the length-prefixed raw
// little-endian float64 voxel bytes, a length-prefixed gojay-encoded
// block holding the three open-ended map sections, then the
// length-prefixed readme. EncodeJSON exists for transports that require
// a text-safe payload.
func (e *Envelope) EncodeBinary() ([]byte, error) {
	var buf bytes.Buffer

	if err := binary.Write(&buf, binary.LittleEndian, binaryMagic); err != nil {
		return nil, bidserrors.IO("Envelope.EncodeBinary", err)
	}
	if err := binary.Write(&buf, binary.LittleEndian, e.Version); err != nil {
		return nil, bidserrors.IO("Envelope.EncodeBinary", err)
	}
	if err := binary.Write(&buf, binary.LittleEndian, e.ImageDType); err != nil {
		return nil, bidserrors.IO("Envelope.EncodeBinary", err)
	}
	if err := binary.Write(&buf, binary.LittleEndian, uint32(len(e.ImageShape))); err != nil {
		return nil, bidserrors.IO("Envelope.EncodeBinary", err)
	}
	if err := binary.Write(&buf, binary.LittleEndian, e.ImageShape); err != nil {
		return nil, bidserrors.IO("Envelope.EncodeBinary", err)
	}
	if err := binary.Write(&buf, binary.LittleEndian, e.Affine); err != nil {
		return nil, bidserrors.IO("Envelope.EncodeBinary", err)
	}
	if err := binary.Write(&buf, binary.LittleEndian, uint64(len(e.ImageBytes))); err != nil {
		return nil, bidserrors.IO("Envelope.EncodeBinary", err)
	}
	if _, err := buf.Write(e.ImageBytes); err != nil {
		return nil, bidserrors.IO("Envelope.EncodeBinary", err)
	}

	mapBlock, err := marshalMapSections(e)
	if err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.LittleEndian, uint64(len(mapBlock))); err != nil {
		return nil, bidserrors.IO("Envelope.EncodeBinary", err)
	}
	if _, err := buf.Write(mapBlock); err != nil {
		return nil, bidserrors.IO("Envelope.EncodeBinary", err)
	}

	readmeBytes := []byte(e.Readme)
	if err := binary.Write(&buf, binary.LittleEndian, uint64(len(readmeBytes))); err != nil {
		return nil, bidserrors.IO("Envelope.EncodeBinary", err)
	}
	if _, err := buf.Write(readmeBytes); err != nil {
		return nil, bidserrors.IO("Envelope.EncodeBinary", err)
	}

	return buf.Bytes(), nil
}

// DecodeEnvelopeBinary parses the binary wire form produced by
// EncodeBinary.
func DecodeEnvelopeBinary(data []byte) (*Envelope, error) {
	r := bytes.NewReader(data)

	var magic uint32
	if err := binary.Read(r, binary.LittleEndian, &magic); err != nil {
		return nil, bidserrors.IO("DecodeEnvelopeBinary", err)
	}
	if magic != binaryMagic {
		return nil, bidserrors.Validation("DecodeEnvelopeBinary", "bad magic number")
	}

	e := &Envelope{}
	if err := binary.Read(r, binary.LittleEndian, &e.Version); err != nil {
		return nil, bidserrors.IO("DecodeEnvelopeBinary", err)
	}
	if err := binary.Read(r, binary.LittleEndian, &e.ImageDType); err != nil {
		return nil, bidserrors.IO("DecodeEnvelopeBinary", err)
	}

	var shapeLen uint32
	if err := binary.Read(r, binary.LittleEndian, &shapeLen); err != nil {
		return nil, bidserrors.IO("DecodeEnvelopeBinary", err)
	}
	e.ImageShape = make([]uint32, shapeLen)
	if err := binary.Read(r, binary.LittleEndian, e.ImageShape); err != nil {
		return nil, bidserrors.IO("DecodeEnvelopeBinary", err)
	}

	if err := binary.Read(r, binary.LittleEndian, &e.Affine); err != nil {
		return nil, bidserrors.IO("DecodeEnvelopeBinary", err)
	}

	var voxelLen uint64
	if err := binary.Read(r, binary.LittleEndian, &voxelLen); err != nil {
		return nil, bidserrors.IO("DecodeEnvelopeBinary", err)
	}
	e.ImageBytes = make([]byte, voxelLen)
	if _, err := io.ReadFull(r, e.ImageBytes); err != nil {
		return nil, bidserrors.IO("DecodeEnvelopeBinary", err)
	}

	var mapLen uint64
	if err := binary.Read(r, binary.LittleEndian, &mapLen); err != nil {
		return nil, bidserrors.IO("DecodeEnvelopeBinary", err)
	}
	mapBlock := make([]byte, mapLen)
	if _, err := io.ReadFull(r, mapBlock); err != nil {
		return nil, bidserrors.IO("DecodeEnvelopeBinary", err)
	}
	if err := unmarshalMapSections(mapBlock, e); err != nil {
		return nil, err
	}

	var readmeLen uint64
	if err := binary.Read(r, binary.LittleEndian, &readmeLen); err != nil {
		return nil, bidserrors.IO("DecodeEnvelopeBinary", err)
	}
	readmeBytes := make([]byte, readmeLen)
	if _, err := io.ReadFull(r, readmeBytes); err != nil {
		return nil, bidserrors.IO("DecodeEnvelopeBinary", err)
	}
	e.Readme = string(readmeBytes)

	return e, nil
}

// voxelsToBytes packs a float64 voxel slice into little-endian bytes for
// ImageBytes.
func voxelsToBytes(data []float64) []byte {
	out := make([]byte, 8*len(data))
	for i, v := range data {
		binary.LittleEndian.PutUint64(out[i*8:], math.Float64bits(v))
	}
	return out
}

// bytesToVoxels unpacks little-endian ImageBytes into a float64 slice of
// the given element count.
func bytesToVoxels(b []byte, n int) []float64 {
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		out[i] = math.Float64frombits(binary.LittleEndian.Uint64(b[i*8:]))
	}
	return out
}
