package nifti

import (
	"math"
	"strconv"

	"github.com/openneuro/rtbids/internal/bidserrors"
)

// DataType is the NIfTI intent-independent voxel datatype code (a
// subset sufficient for the float/int families fMRI volumes use).
type DataType int16

const (
	DataTypeUint8   DataType = 2
	DataTypeInt16   DataType = 4
	DataTypeInt32   DataType = 8
	DataTypeFloat32 DataType = 16
	DataTypeFloat64 DataType = 64
	DataTypeInt8    DataType = 256
	DataTypeUint16  DataType = 512
	DataTypeUint32  DataType = 768
)

// BitsPerVoxel returns the NIfTI bitpix value for dt.
func BitsPerVoxel(dt DataType) int16 {
	switch dt {
	case DataTypeUint8, DataTypeInt8:
		return 8
	case DataTypeInt16, DataTypeUint16:
		return 16
	case DataTypeInt32, DataTypeUint32, DataTypeFloat32:
		return 32
	case DataTypeFloat64:
		return 64
	default:
		return 0
	}
}

// Voxels is a typed dense tensor. Values are held as canonical float64
// in memory regardless of on-disk element type; DType records the
// element type used for encode/decode so round-tripping is lossless for
// the integer types and exact for float32/float64 (spec §3.3's "typed
// voxel array whose element type is set by datatype").
type Voxels struct {
	Shape []int
	DType DataType
	Data  []float64
}

// NewVoxels allocates a zero-filled tensor of the given shape.
func NewVoxels(shape []int, dtype DataType) *Voxels {
	n := 1
	for _, s := range shape {
		n *= s
	}
	return &Voxels{
		Shape: append([]int(nil), shape...),
		DType: dtype,
		Data:  make([]float64, n),
	}
}

// NumElements returns the total element count implied by Shape.
func (v *Voxels) NumElements() int {
	n := 1
	for _, s := range v.Shape {
		n *= s
	}
	return n
}

// Image is a NIfTI-1/2 image: an N-D voxel array, an affine transform,
// and a header (spec §3.3).
type Image struct {
	Header Header
	Affine [4][4]float64
	Voxels *Voxels
}

// Validate enforces the dim[0] coherence check spec §9 Open Question
// (ii) requires be enforced loudly rather than silently skipped: dim[0]
// must equal the number of dimensions actually populated (i.e. the
// voxel tensor's own rank), and every entry of dim[] beyond dim[0] must
// be 0 or 1.
func (img *Image) Validate() error {
	h := img.Header
	n := h.NumDims()
	if n < 1 || n > 7 {
		return bidserrors.Validation("Image.Validate", "header dim[0] out of range: "+strconv.Itoa(n))
	}
	if img.Voxels != nil && len(img.Voxels.Shape) != n {
		return bidserrors.Validation("Image.Validate", "header dim[0] does not match voxel tensor rank")
	}
	for i := n + 1; i <= 7; i++ {
		if h.Dim[i] != 0 && h.Dim[i] != 1 {
			return bidserrors.Validation("Image.Validate", "dim[0] coherence violated: dim["+strconv.Itoa(i)+"] is populated but dim[0] only declares "+strconv.Itoa(n)+" dimensions")
		}
	}
	return nil
}

// closeEnough implements the "absolute tolerance 0, NaN-equal" rule
// spec §4.2 requires for must-match header field comparison.
func closeEnough(a, b float64) bool {
	if math.IsNaN(a) && math.IsNaN(b) {
		return true
	}
	return a == b
}

// Equal reports field-wise, NaN-equal header equality and element-wise
// voxel equality, the §4.3 Incremental equality contract.
func (img *Image) Equal(other *Image) bool {
	if img == nil || other == nil {
		return img == other
	}
	if !headerFieldsEqual(img.Header, other.Header) {
		return false
	}
	if img.Affine != other.Affine {
		return false
	}
	if img.Voxels == nil || other.Voxels == nil {
		return img.Voxels == other.Voxels
	}
	if len(img.Voxels.Shape) != len(other.Voxels.Shape) {
		return false
	}
	for i := range img.Voxels.Shape {
		if img.Voxels.Shape[i] != other.Voxels.Shape[i] {
			return false
		}
	}
	if len(img.Voxels.Data) != len(other.Voxels.Data) {
		return false
	}
	for i := range img.Voxels.Data {
		if !closeEnough(img.Voxels.Data[i], other.Voxels.Data[i]) {
			return false
		}
	}
	return true
}

func headerFieldsEqual(a, b Header) bool {
	if a.Dim != b.Dim {
		return false
	}
	for i := range a.Pixdim {
		if !closeEnough(a.Pixdim[i], b.Pixdim[i]) {
			return false
		}
	}
	return a.DataType == b.DataType &&
		a.BitPix == b.BitPix &&
		a.XYZTUnits == b.XYZTUnits &&
		closeEnough(a.SclSlope, b.SclSlope) &&
		closeEnough(a.SclInter, b.SclInter) &&
		a.SformCode == b.SformCode &&
		a.QformCode == b.QformCode &&
		closeEnough(a.QuaternB, b.QuaternB) &&
		closeEnough(a.QuaternC, b.QuaternC) &&
		closeEnough(a.QuaternD, b.QuaternD) &&
		closeEnough(a.QoffsetX, b.QoffsetX) &&
		closeEnough(a.QoffsetY, b.QoffsetY) &&
		closeEnough(a.QoffsetZ, b.QoffsetZ) &&
		a.SrowX == b.SrowX && a.SrowY == b.SrowY && a.SrowZ == b.SrowZ &&
		closeEnough(a.IntentP1, b.IntentP1) &&
		closeEnough(a.IntentP2, b.IntentP2) &&
		closeEnough(a.IntentP3, b.IntentP3) &&
		a.IntentCode == b.IntentCode &&
		a.DimInfo == b.DimInfo &&
		closeEnough(a.SliceDuration, b.SliceDuration) &&
		closeEnough(a.Toffset, b.Toffset)
}
