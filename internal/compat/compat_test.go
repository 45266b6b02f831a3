package compat

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openneuro/rtbids/internal/entity"
	"github.com/openneuro/rtbids/internal/nifti"
)

func TestImagesAppendCompatible_Reflexive(t *testing.T) {
	img := nifti.NewTestImage4D(4, 4, 4, 1)
	ok, err := ImagesAppendCompatible(img, img, false)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestImagesAppendCompatible_Symmetric(t *testing.T) {
	a := nifti.NewTestImage4D(4, 4, 4, 1)
	b := nifti.NewTestImage4D(4, 4, 4, 1)
	b.Header.DataType = 512

	ok1, err1 := ImagesAppendCompatible(a, b, false)
	ok2, err2 := ImagesAppendCompatible(b, a, false)
	assert.Equal(t, ok1, ok2)
	assert.Equal(t, err1 == nil, err2 == nil)
}

func TestImagesAppendCompatible_DatatypeMismatch(t *testing.T) {
	a := nifti.NewTestImage4D(4, 4, 4, 1)
	b := nifti.NewTestImage4D(4, 4, 4, 1)
	b.Header.DataType = 512 // differs from a's float32 (16)

	ok, err := ImagesAppendCompatible(a, b, false)
	assert.False(t, ok)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "datatype")
}

func TestImagesAppendCompatible_CaseB_OneDimOff(t *testing.T) {
	a := nifti.NewTestImage4D(4, 4, 4, 1)
	b := nifti.NewTestImage3D(4, 4, 4)

	ok, err := ImagesAppendCompatible(a, b, false)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestImagesAppendCompatible_DisabledAlwaysSucceeds(t *testing.T) {
	a := nifti.NewTestImage4D(4, 4, 4, 1)
	b := nifti.NewTestImage4D(8, 8, 8, 1)
	ok, err := ImagesAppendCompatible(a, b, true)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMetadataAppendCompatible_AcquisitionTimeMayDiffer(t *testing.T) {
	a := entity.Map{
		"Modality": "MR", "RepetitionTime": 1.5, "EchoTime": 0.03,
		"AcquisitionTime": "10:00:00",
	}
	b := a.Clone()
	b["AcquisitionTime"] = "10:02:30"

	ok, err := MetadataAppendCompatible(a, b, false)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMetadataAppendCompatible_AcquisitionTimeMustDiffer(t *testing.T) {
	a := entity.Map{"AcquisitionTime": "10:00:00"}
	b := entity.Map{"AcquisitionTime": "10:00:00"}

	ok, err := MetadataAppendCompatible(a, b, false)
	assert.False(t, ok)
	require.Error(t, err)
}

func TestMetadataAppendCompatible_MustMatchViolation(t *testing.T) {
	a := entity.Map{"Modality": "MR"}
	b := entity.Map{"Modality": "CT"}

	ok, err := MetadataAppendCompatible(a, b, false)
	assert.False(t, ok)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Modality")
}

func TestMetadataAppendCompatible_UnsharedKeysIgnored(t *testing.T) {
	a := entity.Map{"Modality": "MR", "CustomField": 1}
	b := entity.Map{"Modality": "MR", "OtherField": 2}

	ok, err := MetadataAppendCompatible(a, b, false)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMetadataAppendCompatible_Disabled(t *testing.T) {
	a := entity.Map{"Modality": "MR"}
	b := entity.Map{"Modality": "CT"}
	ok, err := MetadataAppendCompatible(a, b, true)
	require.NoError(t, err)
	assert.True(t, ok)
}
