package nifti

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	img := NewTestImage3D(4, 4, 2)

	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, img))

	got, err := Decode(&buf)
	require.NoError(t, err)
	assert.True(t, img.Equal(got))
}

func TestWriteOpen_NiiGz(t *testing.T) {
	img := NewTestImage3D(3, 3, 3)
	path := filepath.Join(t.TempDir(), "vol.nii.gz")
	require.NoError(t, Write(path, img))

	got, err := Open(path)
	require.NoError(t, err)
	assert.True(t, img.Equal(got))
}

func TestWriteOpen_PlainNii(t *testing.T) {
	img := NewTestImage3D(2, 2, 2)
	path := filepath.Join(t.TempDir(), "vol.nii")
	require.NoError(t, Write(path, img))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotEqual(t, byte(0x1f), data[0], "plain .nii write must not be gzip-compressed")

	got, err := Open(path)
	require.NoError(t, err)
	assert.True(t, img.Equal(got))
}

func TestValidate_RejectsDimCoherenceMismatch(t *testing.T) {
	img := NewTestImage3D(2, 2, 2)
	img.Header.Dim[5] = 3 // populated beyond dim[0]==3
	assert.Error(t, img.Validate())
}

func TestValidate_AcceptsCoherentHeader(t *testing.T) {
	img := NewTestImage3D(2, 2, 2)
	assert.NoError(t, img.Validate())
}

func TestSqueezeAndPromote4D(t *testing.T) {
	shape := []int{4, 4, 1, 4}
	v := NewVoxels(shape, DataTypeFloat32)
	img := &Image{Voxels: v}
	img.Header.Dim[0] = 4
	img.Header.Dim[1], img.Header.Dim[2], img.Header.Dim[3], img.Header.Dim[4] = 4, 4, 1, 4

	squeezed := Squeeze(img)
	assert.Equal(t, []int{4, 4, 4}, squeezed.Voxels.Shape)
	assert.Equal(t, 3, squeezed.Header.NumDims())

	promoted := Promote4D(squeezed)
	assert.Equal(t, []int{4, 4, 4, 1}, promoted.Voxels.Shape)
	assert.Equal(t, 4, promoted.Header.NumDims())
	assert.Equal(t, int64(1), promoted.Header.Dim[4])
}

func TestConcatAndSlice(t *testing.T) {
	a := NewTestImage4D(2, 2, 2, 1)
	b := NewTestImage4D(2, 2, 2, 1)
	for i := range b.Voxels.Data {
		b.Voxels.Data[i] += 1000
	}

	merged, err := Concat(a, b)
	require.NoError(t, err)
	assert.Equal(t, int64(2), merged.Header.Dim[4])
	assert.Equal(t, NumFrames(merged), 2)

	frame0, err := Slice(merged, 0)
	require.NoError(t, err)
	assert.Equal(t, a.Voxels.Data, frame0.Voxels.Data)

	frame1, err := Slice(merged, 1)
	require.NoError(t, err)
	assert.Equal(t, b.Voxels.Data, frame1.Voxels.Data)

	_, err = Slice(merged, -1)
	assert.Error(t, err)
	_, err = Slice(merged, 2)
	assert.Error(t, err)
}

func TestExpandTo4D(t *testing.T) {
	img3d := NewTestImage3D(2, 2, 2)
	img4d := ExpandTo4D(img3d, 1.5)
	assert.Equal(t, 4, img4d.Header.NumDims())
	assert.Equal(t, 1.5, img4d.Header.Pixdim[4])
}
