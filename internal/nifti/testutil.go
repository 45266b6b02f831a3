package nifti

// NewTestImage3D builds a minimal, internally-consistent 3-D image for
// tests, standing in for original_source/tests/create_test_niftis.py's
// role of producing small synthetic fixtures instead of committing
// binary NIfTI files.
func NewTestImage3D(nx, ny, nz int) *Image {
	shape := []int{nx, ny, nz}
	v := NewVoxels(shape, DataTypeFloat32)
	for i := range v.Data {
		v.Data[i] = float64(i % 100)
	}

	h := Header{Version: 1}
	h.Dim[0] = 3
	h.Dim[1], h.Dim[2], h.Dim[3] = int64(nx), int64(ny), int64(nz)
	h.Pixdim[1], h.Pixdim[2], h.Pixdim[3] = 2, 2, 2
	h.DataType = int16(DataTypeFloat32)
	h.BitPix = BitsPerVoxel(DataTypeFloat32)
	h.SformCode = 1
	h.QformCode = 1

	affine := [4][4]float64{
		{2, 0, 0, 0},
		{0, 2, 0, 0},
		{0, 0, 2, 0},
		{0, 0, 0, 1},
	}

	return &Image{Header: h, Affine: affine, Voxels: v}
}

// NewTestImage4D builds a 4-D image with nt frames, each a copy of a
// synthetic 3-D volume.
func NewTestImage4D(nx, ny, nz, nt int) *Image {
	base := NewTestImage3D(nx, ny, nz)
	img := Promote4D(base)
	if nt == 1 {
		return img
	}
	frameSize := nx * ny * nz
	data := make([]float64, frameSize*nt)
	for f := 0; f < nt; f++ {
		copy(data[f*frameSize:(f+1)*frameSize], base.Voxels.Data)
	}
	img.Voxels.Data = data
	img.Voxels.Shape[3] = nt
	img.Header.Dim[4] = int64(nt)
	return img
}
