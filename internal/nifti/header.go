// Package nifti implements the minimal NIfTI-1/2 image model the BIDS
// streaming core needs: a fixed typed header record, a typed dense voxel
// tensor, and an affine transform (spec §3.3). The NIfTI codec is named
// in spec §1 as an external collaborator with no analogue anywhere in
// the example corpus, so this package is a from-scratch, self-contained
// reader/writer grounded directly on the header field list of spec
// §3.3/§4.2 rather than on any example file.
package nifti

// Header is the fixed-layout NIfTI record, exposed as a tagged record
// (one field per known header entry) per spec §9's design note, rather
// than as a generic string-keyed attribute bag.
type Header struct {
	// Version is 1 or 2. It selects the magic tag Encode writes; the
	// encoded field layout is the same for both versions.
	Version int

	// Dim holds dim[0..7]: Dim[0] is the number of dimensions, Dim[1..7]
	// the extent of each.
	Dim [8]int64

	// Pixdim holds pixdim[0..7], the physical size of a unit step along
	// each dimension; Pixdim[4] carries the TR in seconds for 4-D data.
	Pixdim [8]float64

	DataType    int16
	BitPix      int16
	XYZTUnits   uint8
	SclSlope    float64
	SclInter    float64
	SformCode   int16
	QformCode   int16
	QuaternB    float64
	QuaternC    float64
	QuaternD    float64
	QoffsetX    float64
	QoffsetY    float64
	QoffsetZ    float64
	SrowX       [4]float64
	SrowY       [4]float64
	SrowZ       [4]float64
	IntentP1    float64
	IntentP2    float64
	IntentP3    float64
	IntentCode  int16
	DimInfo     uint8
	SliceDuration float64
	Toffset     float64
}

// NumDims returns the number of populated dimensions (dim[0]).
func (h Header) NumDims() int {
	return int(h.Dim[0])
}

// Dims returns the populated dimension extents, dim[1..dim[0]].
func (h Header) Dims() []int {
	n := h.NumDims()
	out := make([]int, n)
	for i := 0; i < n; i++ {
		out[i] = int(h.Dim[i+1])
	}
	return out
}
