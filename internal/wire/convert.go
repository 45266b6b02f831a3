package wire

import (
	"github.com/openneuro/rtbids/internal/bidserrors"
	"github.com/openneuro/rtbids/internal/entity"
	"github.com/openneuro/rtbids/internal/nifti"
)

// FromImage builds the image-bearing fields of an Envelope from img.
// HeaderFields carries the header entries spec §4.2 treats as
// must-match/must-differ, flattened to a generic map so the wire format
// stays forward-compatible with header fields this core doesn't
// interpret itself.
func FromImage(img *nifti.Image) Envelope {
	shape := make([]uint32, len(img.Voxels.Shape))
	for i, s := range img.Voxels.Shape {
		shape[i] = uint32(s)
	}

	affine := [16]float64{}
	for r := 0; r < 4; r++ {
		for c := 0; c < 4; c++ {
			affine[r*4+c] = img.Affine[r][c]
		}
	}

	h := img.Header
	headerFields := map[string]any{
		"dim":            dimSlice(h.Dim),
		"pixdim":         pixdimSlice(h.Pixdim),
		"datatype":       int64(h.DataType),
		"bitpix":         int64(h.BitPix),
		"xyzt_units":     int64(h.XYZTUnits),
		"scl_slope":      h.SclSlope,
		"scl_inter":      h.SclInter,
		"sform_code":     int64(h.SformCode),
		"qform_code":     int64(h.QformCode),
		"quatern_b":      h.QuaternB,
		"quatern_c":      h.QuaternC,
		"quatern_d":      h.QuaternD,
		"qoffset_x":      h.QoffsetX,
		"qoffset_y":      h.QoffsetY,
		"qoffset_z":      h.QoffsetZ,
		"srow_x":         h.SrowX[:],
		"srow_y":         h.SrowY[:],
		"srow_z":         h.SrowZ[:],
		"intent_p1":      h.IntentP1,
		"intent_p2":      h.IntentP2,
		"intent_p3":      h.IntentP3,
		"intent_code":    int64(h.IntentCode),
		"dim_info":       int64(h.DimInfo),
		"slice_duration": h.SliceDuration,
		"toffset":        h.Toffset,
		"version":        int64(h.Version),
	}

	return Envelope{
		ImageDType:   int16(img.Voxels.DType),
		ImageShape:   shape,
		ImageBytes:   voxelsToBytes(img.Voxels.Data),
		Affine:       affine,
		HeaderFields: headerFields,
	}
}

// ToImage reconstructs a nifti.Image from e's image-bearing fields.
func (e *Envelope) ToImage() (*nifti.Image, error) {
	shape := make([]int, len(e.ImageShape))
	n := 1
	for i, s := range e.ImageShape {
		shape[i] = int(s)
		n *= int(s)
	}

	voxels := &nifti.Voxels{
		Shape: shape,
		DType: nifti.DataType(e.ImageDType),
		Data:  bytesToVoxels(e.ImageBytes, n),
	}

	var affine [4][4]float64
	for r := 0; r < 4; r++ {
		for c := 0; c < 4; c++ {
			affine[r][c] = e.Affine[r*4+c]
		}
	}

	h, err := headerFromFields(e.HeaderFields)
	if err != nil {
		return nil, err
	}

	img := &nifti.Image{Header: h, Affine: affine, Voxels: voxels}
	if err := img.Validate(); err != nil {
		return nil, err
	}
	return img, nil
}

// EntityMetadata returns e's sidecar metadata section as an entity.Map, the
// type internal/incremental and internal/compat operate on.
func (e *Envelope) EntityMetadata() entity.Map {
	return entity.Map(e.Metadata)
}

func dimSlice(dim [8]int64) []any {
	out := make([]any, 8)
	for i, v := range dim {
		out[i] = v
	}
	return out
}

func pixdimSlice(pixdim [8]float64) []any {
	out := make([]any, 8)
	for i, v := range pixdim {
		out[i] = v
	}
	return out
}

func headerFromFields(m map[string]any) (nifti.Header, error) {
	var h nifti.Header

	dim, err := anySliceToInt64Array8(m["dim"])
	if err != nil {
		return h, bidserrors.Validation("wire.headerFromFields", "dim: "+err.Error())
	}
	h.Dim = dim

	pixdim, err := anySliceToFloat64Array8(m["pixdim"])
	if err != nil {
		return h, bidserrors.Validation("wire.headerFromFields", "pixdim: "+err.Error())
	}
	h.Pixdim = pixdim

	h.DataType = int16(asInt64(m["datatype"]))
	h.BitPix = int16(asInt64(m["bitpix"]))
	h.XYZTUnits = uint8(asInt64(m["xyzt_units"]))
	h.SclSlope = asFloat64(m["scl_slope"])
	h.SclInter = asFloat64(m["scl_inter"])
	h.SformCode = int16(asInt64(m["sform_code"]))
	h.QformCode = int16(asInt64(m["qform_code"]))
	h.QuaternB = asFloat64(m["quatern_b"])
	h.QuaternC = asFloat64(m["quatern_c"])
	h.QuaternD = asFloat64(m["quatern_d"])
	h.QoffsetX = asFloat64(m["qoffset_x"])
	h.QoffsetY = asFloat64(m["qoffset_y"])
	h.QoffsetZ = asFloat64(m["qoffset_z"])

	srowX, err := anySliceToFloat64Array4(m["srow_x"])
	if err != nil {
		return h, bidserrors.Validation("wire.headerFromFields", "srow_x: "+err.Error())
	}
	h.SrowX = srowX
	srowY, err := anySliceToFloat64Array4(m["srow_y"])
	if err != nil {
		return h, bidserrors.Validation("wire.headerFromFields", "srow_y: "+err.Error())
	}
	h.SrowY = srowY
	srowZ, err := anySliceToFloat64Array4(m["srow_z"])
	if err != nil {
		return h, bidserrors.Validation("wire.headerFromFields", "srow_z: "+err.Error())
	}
	h.SrowZ = srowZ

	h.IntentP1 = asFloat64(m["intent_p1"])
	h.IntentP2 = asFloat64(m["intent_p2"])
	h.IntentP3 = asFloat64(m["intent_p3"])
	h.IntentCode = int16(asInt64(m["intent_code"]))
	h.DimInfo = uint8(asInt64(m["dim_info"]))
	h.SliceDuration = asFloat64(m["slice_duration"])
	h.Toffset = asFloat64(m["toffset"])
	h.Version = int(asInt64(m["version"]))
	if h.Version == 0 {
		h.Version = 1
	}

	return h, nil
}

func asFloat64(v any) float64 {
	switch x := v.(type) {
	case float64:
		return x
	case float32:
		return float64(x)
	case int64:
		return float64(x)
	case int:
		return float64(x)
	default:
		return 0
	}
}

func asInt64(v any) int64 {
	switch x := v.(type) {
	case int64:
		return x
	case int:
		return int64(x)
	case float64:
		return int64(x)
	default:
		return 0
	}
}

func anySliceToFloat64Array4(v any) ([4]float64, error) {
	var out [4]float64
	switch s := v.(type) {
	case []any:
		for i := 0; i < len(s) && i < 4; i++ {
			out[i] = asFloat64(s[i])
		}
		return out, nil
	case []float64:
		for i := 0; i < len(s) && i < 4; i++ {
			out[i] = s[i]
		}
		return out, nil
	case [4]float64:
		return s, nil
	default:
		return out, bidserrors.Validation("wire.anySliceToFloat64Array4", "expected array")
	}
}

func anySliceToFloat64Array8(v any) ([8]float64, error) {
	var out [8]float64
	switch s := v.(type) {
	case []any:
		for i := 0; i < len(s) && i < 8; i++ {
			out[i] = asFloat64(s[i])
		}
		return out, nil
	case []float64:
		for i := 0; i < len(s) && i < 8; i++ {
			out[i] = s[i]
		}
		return out, nil
	case [8]float64:
		return s, nil
	default:
		return out, bidserrors.Validation("wire.anySliceToFloat64Array8", "expected array")
	}
}

func anySliceToInt64Array8(v any) ([8]int64, error) {
	var out [8]int64
	s, ok := v.([]any)
	if !ok {
		if f, ok := v.([8]int64); ok {
			return f, nil
		}
		return out, bidserrors.Validation("wire.anySliceToInt64Array8", "expected array")
	}
	for i := 0; i < len(s) && i < 8; i++ {
		out[i] = asInt64(s[i])
	}
	return out, nil
}
