package nifti

import (
	"encoding/binary"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/openneuro/rtbids/internal/bidserrors"
)

// magicV1 and magicV2 identify the on-disk version of the encoded
// header, replacing the ANALYZE-derived "n+1\0"/"n+2\0" magic strings
// real NIfTI files use with this package's own fixed binary container
// (there is no NIfTI library anywhere in the example corpus to be
// byte-compatible with; see DESIGN.md).
var (
	magicV1 = [4]byte{'N', 'I', '1', 0}
	magicV2 = [4]byte{'N', 'I', '2', 0}
	gzipMagic = [2]byte{0x1f, 0x8b}
)

// Open reads a NIfTI image from path, accepting both ".nii" and
// ".nii.gz" regardless of which extension is given: readers sniff the
// gzip magic number on the file's first two bytes rather than trusting
// the extension, per spec §9 Open Question (iii).
func Open(path string) (*Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, bidserrors.IO("nifti.Open", err)
	}
	defer f.Close()

	br := bufReader(f)
	peek, err := br.Peek(2)
	if err != nil && err != io.EOF {
		return nil, bidserrors.IO("nifti.Open", err)
	}

	var r io.Reader = br
	if len(peek) == 2 && peek[0] == gzipMagic[0] && peek[1] == gzipMagic[1] {
		gz, err := gzip.NewReader(br)
		if err != nil {
			return nil, bidserrors.IO("nifti.Open", err)
		}
		defer gz.Close()
		r = gz
	}

	return Decode(r)
}

// Write writes img to path, gzip-compressed if path ends in ".gz" and
// uncompressed otherwise. The archive's own write path
// (atomicfile.WriteImage) always writes uncompressed ".nii"; that policy
// is recorded into dataset_description.json's writerExtension key by
// the caller that builds the incremental (cmd/bidscore, via
// Incremental.WithDatasetPolicy).
func Write(path string, img *Image) error {
	if strings.HasSuffix(path, ".gz") {
		return writeGzip(path, img)
	}
	f, err := os.Create(path)
	if err != nil {
		return bidserrors.IO("nifti.Write", err)
	}
	defer f.Close()
	if err := Encode(f, img); err != nil {
		return err
	}
	return f.Sync()
}

func writeGzip(path string, img *Image) error {
	f, err := os.Create(path)
	if err != nil {
		return bidserrors.IO("nifti.Write", err)
	}
	defer f.Close()
	gz := gzip.NewWriter(f)
	if err := Encode(gz, img); err != nil {
		return err
	}
	if err := gz.Close(); err != nil {
		return bidserrors.IO("nifti.Write", err)
	}
	return f.Sync()
}

// Encode serializes img as this package's fixed binary container:
// magic, header fields, affine, voxel dtype+shape+data.
func Encode(w io.Writer, img *Image) error {
	magic := magicV1
	if img.Header.Version == 2 {
		magic = magicV2
	}
	if err := binary.Write(w, binary.LittleEndian, magic); err != nil {
		return bidserrors.IO("nifti.Encode", err)
	}
	if err := writeHeader(w, img.Header); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, img.Affine); err != nil {
		return bidserrors.IO("nifti.Encode", err)
	}
	if err := writeVoxels(w, img.Voxels); err != nil {
		return err
	}
	return nil
}

// Decode deserializes an Image previously written by Encode.
func Decode(r io.Reader) (*Image, error) {
	var magic [4]byte
	if err := binary.Read(r, binary.LittleEndian, &magic); err != nil {
		return nil, bidserrors.IO("nifti.Decode", err)
	}

	var version int
	switch magic {
	case magicV1:
		version = 1
	case magicV2:
		version = 2
	default:
		return nil, bidserrors.Validation("nifti.Decode", "not a recognized NIfTI-1/2 stream")
	}

	h, err := readHeader(r, version)
	if err != nil {
		return nil, err
	}

	var affine [4][4]float64
	if err := binary.Read(r, binary.LittleEndian, &affine); err != nil {
		return nil, bidserrors.IO("nifti.Decode", err)
	}

	voxels, err := readVoxels(r)
	if err != nil {
		return nil, err
	}

	return &Image{Header: h, Affine: affine, Voxels: voxels}, nil
}

func writeHeader(w io.Writer, h Header) error {
	fields := []any{
		int32(h.Version), h.Dim, h.Pixdim, h.DataType, h.BitPix, h.XYZTUnits,
		h.SclSlope, h.SclInter, h.SformCode, h.QformCode,
		h.QuaternB, h.QuaternC, h.QuaternD,
		h.QoffsetX, h.QoffsetY, h.QoffsetZ,
		h.SrowX, h.SrowY, h.SrowZ,
		h.IntentP1, h.IntentP2, h.IntentP3, h.IntentCode,
		h.DimInfo, h.SliceDuration, h.Toffset,
	}
	for _, f := range fields {
		if err := binary.Write(w, binary.LittleEndian, f); err != nil {
			return bidserrors.IO("nifti.writeHeader", err)
		}
	}
	return nil
}

func readHeader(r io.Reader, version int) (Header, error) {
	var h Header
	h.Version = version
	var v int32
	fields := []any{
		&v, &h.Dim, &h.Pixdim, &h.DataType, &h.BitPix, &h.XYZTUnits,
		&h.SclSlope, &h.SclInter, &h.SformCode, &h.QformCode,
		&h.QuaternB, &h.QuaternC, &h.QuaternD,
		&h.QoffsetX, &h.QoffsetY, &h.QoffsetZ,
		&h.SrowX, &h.SrowY, &h.SrowZ,
		&h.IntentP1, &h.IntentP2, &h.IntentP3, &h.IntentCode,
		&h.DimInfo, &h.SliceDuration, &h.Toffset,
	}
	for _, f := range fields {
		if err := binary.Read(r, binary.LittleEndian, f); err != nil {
			return Header{}, bidserrors.IO("nifti.readHeader", err)
		}
	}
	return h, nil
}

func writeVoxels(w io.Writer, v *Voxels) error {
	shapeLen := int32(len(v.Shape))
	if err := binary.Write(w, binary.LittleEndian, shapeLen); err != nil {
		return bidserrors.IO("nifti.writeVoxels", err)
	}
	shape32 := make([]int32, len(v.Shape))
	for i, s := range v.Shape {
		shape32[i] = int32(s)
	}
	if err := binary.Write(w, binary.LittleEndian, shape32); err != nil {
		return bidserrors.IO("nifti.writeVoxels", err)
	}
	if err := binary.Write(w, binary.LittleEndian, int16(v.DType)); err != nil {
		return bidserrors.IO("nifti.writeVoxels", err)
	}
	dataLen := int64(len(v.Data))
	if err := binary.Write(w, binary.LittleEndian, dataLen); err != nil {
		return bidserrors.IO("nifti.writeVoxels", err)
	}
	if err := binary.Write(w, binary.LittleEndian, v.Data); err != nil {
		return bidserrors.IO("nifti.writeVoxels", err)
	}
	return nil
}

func readVoxels(r io.Reader) (*Voxels, error) {
	var shapeLen int32
	if err := binary.Read(r, binary.LittleEndian, &shapeLen); err != nil {
		return nil, bidserrors.IO("nifti.readVoxels", err)
	}
	shape32 := make([]int32, shapeLen)
	if err := binary.Read(r, binary.LittleEndian, shape32); err != nil {
		return nil, bidserrors.IO("nifti.readVoxels", err)
	}
	shape := make([]int, shapeLen)
	for i, s := range shape32 {
		shape[i] = int(s)
	}
	var dtype int16
	if err := binary.Read(r, binary.LittleEndian, &dtype); err != nil {
		return nil, bidserrors.IO("nifti.readVoxels", err)
	}
	var dataLen int64
	if err := binary.Read(r, binary.LittleEndian, &dataLen); err != nil {
		return nil, bidserrors.IO("nifti.readVoxels", err)
	}
	data := make([]float64, dataLen)
	if err := binary.Read(r, binary.LittleEndian, data); err != nil {
		return nil, bidserrors.IO("nifti.readVoxels", err)
	}
	return &Voxels{Shape: shape, DType: DataType(dtype), Data: data}, nil
}

// bufReader is a tiny peekable reader so Open can sniff the gzip magic
// without consuming bytes Decode/gzip.NewReader still need.
type peeker struct {
	r   io.Reader
	buf []byte
}

func bufReader(r io.Reader) *peeker {
	return &peeker{r: r}
}

func (p *peeker) Peek(n int) ([]byte, error) {
	if len(p.buf) >= n {
		return p.buf[:n], nil
	}
	need := n - len(p.buf)
	extra := make([]byte, need)
	read, err := io.ReadFull(p.r, extra)
	p.buf = append(p.buf, extra[:read]...)
	if read < need {
		if err == io.ErrUnexpectedEOF || err == io.EOF {
			return p.buf, io.EOF
		}
		return p.buf, err
	}
	return p.buf, nil
}

func (p *peeker) Read(out []byte) (int, error) {
	if len(p.buf) > 0 {
		n := copy(out, p.buf)
		p.buf = p.buf[n:]
		if n == len(out) {
			return n, nil
		}
		m, err := p.r.Read(out[n:])
		return n + m, err
	}
	return p.r.Read(out)
}
