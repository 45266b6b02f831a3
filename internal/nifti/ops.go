package nifti

import "github.com/openneuro/rtbids/internal/bidserrors"

// Squeeze removes singleton dimensions from img, matching spec §4.3
// step 4's normalization. The header's Dim/Pixdim are rewritten to the
// squeezed shape.
func Squeeze(img *Image) *Image {
	if img.Voxels == nil {
		return img
	}
	var newShape []int
	for _, s := range img.Voxels.Shape {
		if s != 1 {
			newShape = append(newShape, s)
		}
	}
	if len(newShape) == 0 {
		newShape = []int{1}
	}
	if len(newShape) == len(img.Voxels.Shape) {
		return img
	}
	return reshape(img, newShape)
}

// Promote4D appends a trailing singleton dimension, turning a 3-D image
// into a 4-D one with a single frame (spec §3.4, §4.3 step 4).
func Promote4D(img *Image) *Image {
	shape := append(append([]int(nil), img.Voxels.Shape...), 1)
	return reshape(img, shape)
}

func reshape(img *Image, newShape []int) *Image {
	out := &Image{Header: img.Header, Affine: img.Affine}
	out.Voxels = &Voxels{Shape: newShape, DType: img.Voxels.DType, Data: img.Voxels.Data}
	out.Header.Dim = [8]int64{}
	out.Header.Dim[0] = int64(len(newShape))
	for i, s := range newShape {
		out.Header.Dim[i+1] = int64(s)
	}
	return out
}

// NumFrames returns the extent of the 4th dimension, or 1 for a 3-D
// image.
func NumFrames(img *Image) int {
	if img.Header.NumDims() < 4 {
		return 1
	}
	return int(img.Header.Dim[4])
}

// Slice extracts the single 3-D frame at index along axis 3 (the time
// dimension) of a 4-D image, bounds-checked per spec §4.5
// get_incremental.
func Slice(img *Image, index int) (*Image, error) {
	if img.Header.NumDims() != 4 {
		return nil, bidserrors.Runtime("Slice", "image is not 4-D")
	}
	nx, ny, nz, nt := int(img.Header.Dim[1]), int(img.Header.Dim[2]), int(img.Header.Dim[3]), int(img.Header.Dim[4])
	if index < 0 || index >= nt {
		return nil, bidserrors.IndexRange("Slice", "slice_index out of range")
	}

	frameSize := nx * ny * nz
	out := reshape(&Image{Header: img.Header, Affine: img.Affine, Voxels: &Voxels{DType: img.Voxels.DType}}, []int{nx, ny, nz})
	out.Voxels.Data = append([]float64(nil), img.Voxels.Data[index*frameSize:(index+1)*frameSize]...)
	return out, nil
}

// Concat concatenates b onto a along axis 3 (the 4th dimension),
// preserving a's affine and header (other than the updated dim/pixdim),
// per spec §4.5 case 2 and Open Question (i)'s "concatenation, not
// stacking" decision (SPEC_FULL.md).
func Concat(a, b *Image) (*Image, error) {
	if a.Header.NumDims() != 4 || b.Header.NumDims() != 4 {
		return nil, bidserrors.Runtime("Concat", "both images must be 4-D; expand 3-D images first")
	}
	if a.Header.Dim[1] != b.Header.Dim[1] || a.Header.Dim[2] != b.Header.Dim[2] || a.Header.Dim[3] != b.Header.Dim[3] {
		return nil, bidserrors.Runtime("Concat", "spatial dimensions differ between images being concatenated")
	}

	nx, ny, nz := int(a.Header.Dim[1]), int(a.Header.Dim[2]), int(a.Header.Dim[3])
	frameSize := nx * ny * nz
	nta, ntb := int(a.Header.Dim[4]), int(b.Header.Dim[4])

	out := &Image{Header: a.Header, Affine: a.Affine}
	out.Header.Dim[4] = int64(nta + ntb)
	out.Voxels = &Voxels{
		Shape: []int{nx, ny, nz, nta + ntb},
		DType: a.Voxels.DType,
		Data:  make([]float64, frameSize*(nta+ntb)),
	}
	copy(out.Voxels.Data, a.Voxels.Data)
	copy(out.Voxels.Data[frameSize*nta:], b.Voxels.Data)
	return out, nil
}

// ExpandTo4D converts a 3-D image to 4-D with a trailing singleton,
// copying repetitionTimeSeconds into pixdim[4] (spec §4.5 case 2).
func ExpandTo4D(img *Image, repetitionTimeSeconds float64) *Image {
	out := Promote4D(img)
	out.Header.Pixdim[4] = repetitionTimeSeconds
	return out
}
