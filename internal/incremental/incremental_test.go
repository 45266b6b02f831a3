package incremental

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openneuro/rtbids/internal/bidserrors"
	"github.com/openneuro/rtbids/internal/entity"
	"github.com/openneuro/rtbids/internal/nifti"
)

func baseMetadata() entity.Map {
	return entity.Map{
		"subject":        "01",
		"task":           "faces",
		"suffix":         "bold",
		"RepetitionTime": 1500.0,
		"EchoTime":       500.0,
	}
}

func TestNew_NormalizesScenario1(t *testing.T) {
	img := nifti.NewTestImage3D(4, 4, 4)
	inc, err := New(img, baseMetadata(), nil)
	require.NoError(t, err)

	dt, _ := inc.Metadata.GetString("datatype")
	assert.Equal(t, "func", dt)
	rt, _ := inc.Metadata.GetFloat("RepetitionTime")
	assert.Equal(t, 1.5, rt)
	et, _ := inc.Metadata.GetFloat("EchoTime")
	assert.Equal(t, 0.5, et)
	assert.Equal(t, []int{4, 4, 4, 1}, inc.ImageDimensions())
}

func TestNew_EchoTimeWithinCapIsPreserved(t *testing.T) {
	md := baseMetadata()
	md["EchoTime"] = 0.5
	img := nifti.NewTestImage3D(4, 4, 4)
	inc, err := New(img, md, nil)
	require.NoError(t, err)
	et, _ := inc.Metadata.GetFloat("EchoTime")
	assert.Equal(t, 0.5, et)
}

func TestNew_MissingRequiredField(t *testing.T) {
	md := baseMetadata()
	delete(md, "EchoTime")
	img := nifti.NewTestImage3D(4, 4, 4)
	_, err := New(img, md, nil)
	require.Error(t, err)
	be, ok := err.(*bidserrors.BIDSError)
	require.True(t, ok)
	assert.Equal(t, bidserrors.KindMissingMetadata, be.Kind)
}

func TestNew_RejectsTooManyDimensions(t *testing.T) {
	img := nifti.NewTestImage4D(2, 2, 2, 2)
	img.Voxels.Shape = []int{2, 2, 2, 2, 2}
	img.Header.Dim[0] = 5
	img.Header.Dim[5] = 2
	_, err := New(img, baseMetadata(), nil)
	require.Error(t, err)
}

func TestNew_ProtocolNameMergeDoesNotOverrideExplicit(t *testing.T) {
	md := baseMetadata()
	md["ProtocolName"] = "sub-99_task-rest"
	img := nifti.NewTestImage3D(4, 4, 4)
	inc, err := New(img, md, nil)
	require.NoError(t, err)
	sub, _ := inc.Metadata.GetString("subject")
	assert.Equal(t, "01", sub) // explicit caller value wins
}

func TestNew_RunCoercedToInteger(t *testing.T) {
	md := baseMetadata()
	md["run"] = "2"
	img := nifti.NewTestImage3D(4, 4, 4)
	inc, err := New(img, md, nil)
	require.NoError(t, err)
	assert.EqualValues(t, 2, inc.Metadata["run"])
}

func TestNew_DefaultDatasetDescription(t *testing.T) {
	img := nifti.NewTestImage3D(4, 4, 4)
	inc, err := New(img, baseMetadata(), nil)
	require.NoError(t, err)
	assert.Equal(t, "1.4.1", inc.DatasetDesc["BIDSVersion"])
}

func TestNew_InvalidDatasetDescription(t *testing.T) {
	img := nifti.NewTestImage3D(4, 4, 4)
	_, err := New(img, baseMetadata(), entity.Map{"Name": "demo"})
	require.Error(t, err)
}

func TestFieldAccessors(t *testing.T) {
	img := nifti.NewTestImage3D(4, 4, 4)
	inc, err := New(img, baseMetadata(), nil)
	require.NoError(t, err)

	v, err := inc.GetField("subject", true)
	require.NoError(t, err)
	assert.Equal(t, "01", v)

	require.NoError(t, inc.SetField("acquisition", "highres", true))
	v, err = inc.GetField("acquisition", false)
	require.NoError(t, err)
	assert.Equal(t, "highres", v)

	err = inc.RemoveField("subject", false)
	require.Error(t, err)

	require.NoError(t, inc.RemoveField("acquisition", false))
	_, err = inc.GetField("acquisition", false)
	require.Error(t, err)
}

func TestPathComposition(t *testing.T) {
	img := nifti.NewTestImage3D(4, 4, 4)
	inc, err := New(img, baseMetadata(), nil)
	require.NoError(t, err)

	name, err := inc.MakeBIDSFileName(".nii")
	require.NoError(t, err)
	assert.Equal(t, "sub-01_task-faces_bold.nii", name)

	dir, err := inc.DataDirPath()
	require.NoError(t, err)
	assert.Equal(t, "sub-01/func/", dir)

	events, err := inc.EventsFileName()
	require.NoError(t, err)
	assert.Equal(t, "sub-01_task-faces_events.tsv", events)
}

func TestEqual(t *testing.T) {
	img := nifti.NewTestImage3D(4, 4, 4)
	a, err := New(img, baseMetadata(), nil)
	require.NoError(t, err)
	b, err := New(img, baseMetadata(), nil)
	require.NoError(t, err)
	assert.True(t, a.Equal(b))

	b.Metadata["acquisition"] = "diff"
	assert.False(t, a.Equal(b))
}

func TestEnvelopeRoundTrip(t *testing.T) {
	img := nifti.NewTestImage3D(4, 4, 4)
	inc, err := New(img, baseMetadata(), nil)
	require.NoError(t, err)

	env := inc.ToEnvelope()
	back, err := FromEnvelope(env)
	require.NoError(t, err)

	assert.True(t, inc.Equal(back))
}

func TestWriteToArchive(t *testing.T) {
	img := nifti.NewTestImage3D(4, 4, 4)
	inc, err := New(img, baseMetadata(), nil)
	require.NoError(t, err)

	root := t.TempDir()
	require.NoError(t, inc.WriteToArchive(root))

	imgPath, err := inc.ImageFilePath()
	require.NoError(t, err)
	assert.FileExists(t, root+"/"+imgPath)

	sidecarPath, err := inc.MetadataFilePath()
	require.NoError(t, err)
	assert.FileExists(t, root+"/"+sidecarPath)

	assert.FileExists(t, root+"/dataset_description.json")
	assert.FileExists(t, root+"/README")
}
