package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openneuro/rtbids/internal/entity"
	"github.com/openneuro/rtbids/internal/nifti"
)

func sampleEnvelope() Envelope {
	img := nifti.NewTestImage4D(2, 2, 2, 1)
	e := FromImage(img)
	e.Version = 1
	e.Metadata = map[string]any{
		"RepetitionTime": 1.5,
		"Modality":       "MR",
		"subject":        "01",
		"run":            int64(1),
		"tags":           []any{"a", "b"},
	}
	e.DatasetDesc = map[string]any{"Name": "demo", "BIDSVersion": "1.9.0"}
	e.Readme = "generated for a round-trip test"
	return e
}

func TestEnvelopeJSONRoundTrip(t *testing.T) {
	e := sampleEnvelope()
	data, err := e.EncodeJSON()
	require.NoError(t, err)

	got, err := DecodeEnvelopeJSON(data)
	require.NoError(t, err)

	assert.Equal(t, e.Version, got.Version)
	assert.Equal(t, e.ImageDType, got.ImageDType)
	assert.Equal(t, e.ImageShape, got.ImageShape)
	assert.Equal(t, e.ImageBytes, got.ImageBytes)
	assert.Equal(t, e.Affine, got.Affine)
	assert.Equal(t, e.Readme, got.Readme)
	assert.Equal(t, "demo", got.DatasetDesc["Name"])
}

func TestEnvelopeBinaryRoundTrip(t *testing.T) {
	e := sampleEnvelope()
	data, err := e.EncodeBinary()
	require.NoError(t, err)

	got, err := DecodeEnvelopeBinary(data)
	require.NoError(t, err)

	assert.Equal(t, e.Version, got.Version)
	assert.Equal(t, e.ImageDType, got.ImageDType)
	assert.Equal(t, e.ImageShape, got.ImageShape)
	assert.Equal(t, e.ImageBytes, got.ImageBytes)
	assert.Equal(t, e.Affine, got.Affine)
	assert.Equal(t, e.Readme, got.Readme)
	assert.Equal(t, "demo", got.DatasetDesc["Name"])
	assert.EqualValues(t, e.Metadata["RepetitionTime"], got.Metadata["RepetitionTime"])
	assert.Equal(t, e.Metadata["Modality"], got.Metadata["Modality"])
}

func TestEnvelopeImageRoundTrip(t *testing.T) {
	img := nifti.NewTestImage4D(2, 2, 2, 3)
	e := FromImage(img)

	data, err := e.EncodeBinary()
	require.NoError(t, err)

	got, err := DecodeEnvelopeBinary(data)
	require.NoError(t, err)

	rebuilt, err := got.ToImage()
	require.NoError(t, err)

	assert.True(t, img.Equal(rebuilt))
}

func TestEnvelopeEntityMetadata(t *testing.T) {
	e := sampleEnvelope()
	m := e.EntityMetadata()
	v, ok := m.GetString("subject")
	require.True(t, ok)
	assert.Equal(t, "01", v)
	assert.IsType(t, entity.Map{}, m)
}
