package entity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseProtocolName(t *testing.T) {
	got := ParseProtocolName("sub-01_task-rest_acq-highres_run-2")
	assert.Equal(t, "01", got["subject"])
	assert.Equal(t, "rest", got["task"])
	assert.Equal(t, "highres", got["acquisition"])
	assert.Equal(t, "2", got["run"])
}

func TestParseProtocolName_IgnoresUnknownTokens(t *testing.T) {
	got := ParseProtocolName("foo-bar_sub-02")
	_, hasFoo := got["foo"]
	assert.False(t, hasFoo)
	assert.Equal(t, "02", got["subject"])
}

func TestParseProtocolName_Empty(t *testing.T) {
	assert.Empty(t, ParseProtocolName(""))
}

func TestParseProtocolName_ValueWithNonAlnumCharacters(t *testing.T) {
	got := ParseProtocolName("sub-01_task-rest.1")
	assert.Equal(t, "01", got["subject"])
	assert.Equal(t, "rest.1", got["task"])
}

func TestFilterEntities(t *testing.T) {
	m := Map{
		"subject":        "01",
		"task":           "faces",
		"RepetitionTime": 1.5,
		"suffix":         "bold",
	}
	filtered := FilterEntities(m)
	assert.Equal(t, Map{"subject": "01", "task": "faces", "suffix": "bold"}, filtered)
}

func TestBuildFileName(t *testing.T) {
	m := Map{
		"subject": "01", "session": "1", "task": "faces",
		"acquisition": "highres", "run": 2, "suffix": "bold", "extension": "nii",
	}
	name, err := BuildFileName(m)
	require.NoError(t, err)
	assert.Equal(t, "sub-01_ses-1_task-faces_acq-highres_run-2_bold.nii", name)
}

func TestBuildFileName_MissingSubject(t *testing.T) {
	_, err := BuildFileName(Map{"task": "faces", "suffix": "bold"})
	assert.Error(t, err)
}

func TestBuildFileName_RejectsInvalidFunctionalSuffix(t *testing.T) {
	_, err := BuildFileName(Map{"subject": "01", "task": "faces", "suffix": "T1w", "datatype": "func"})
	assert.Error(t, err)
}

func TestBuildDirPath(t *testing.T) {
	p, err := BuildDirPath(Map{"subject": "01", "session": "2", "suffix": "bold"})
	require.NoError(t, err)
	assert.Equal(t, "sub-01/ses-2/func/", p)
}

func TestBuildDirPath_NoSession(t *testing.T) {
	p, err := BuildDirPath(Map{"subject": "01", "suffix": "T1w", "datatype": "anat"})
	require.NoError(t, err)
	assert.Equal(t, "sub-01/anat/", p)
}

func TestDicomFieldToBIDS(t *testing.T) {
	assert.Equal(t, "RepetitionTime", DicomFieldToBIDS("Repetition Time (0018,0080)"))
	assert.Equal(t, "EchoTime", DicomFieldToBIDS("Echo_Time"))
	// second call should hit the memoization cache and return the same value
	assert.Equal(t, "EchoTime", DicomFieldToBIDS("Echo_Time"))
}

func TestEqual(t *testing.T) {
	a := Map{"subject": "01", "run": 1}
	b := Map{"subject": "01", "run": "1"}
	assert.True(t, Equal(a, b))

	c := Map{"subject": "02", "run": 1}
	assert.False(t, Equal(a, c))
}

func TestParseFileName_RoundTripsBuildFileName(t *testing.T) {
	m := Map{
		"subject": "01", "session": "2", "task": "faces",
		"run": int64(3), "suffix": "bold",
	}
	name, err := BuildFileName(m)
	require.NoError(t, err)

	parsed := ParseFileName(name)
	assert.Equal(t, "01", parsed["subject"])
	assert.Equal(t, "2", parsed["session"])
	assert.Equal(t, "faces", parsed["task"])
	assert.EqualValues(t, 3, parsed["run"])
	assert.Equal(t, "bold", parsed["suffix"])
}

func TestParseFileName_SidecarExtension(t *testing.T) {
	parsed := ParseFileName("sub-01_task-rest_bold.json")
	assert.Equal(t, ".json", parsed["extension"])
	assert.Equal(t, "bold", parsed["suffix"])
}

func TestParseFileName_CompoundExtension(t *testing.T) {
	parsed := ParseFileName("sub-01_task-rest_bold.nii.gz")
	assert.Equal(t, ".nii.gz", parsed["extension"])
	assert.Equal(t, "bold", parsed["suffix"])
}

func TestParseFileName_UnknownTokenIgnored(t *testing.T) {
	parsed := ParseFileName("sub-01_task-rest_zz-99_bold.nii")
	_, ok := parsed["zz"]
	assert.False(t, ok)
	assert.Equal(t, "01", parsed["subject"])
}

func TestParseFileName_RecoversDatatypeFromDirectory(t *testing.T) {
	parsed := ParseFileName("sub-01/func/sub-01_task-rest_bold.nii")
	assert.Equal(t, "func", parsed["datatype"])
	assert.Equal(t, "01", parsed["subject"])
	assert.Equal(t, "bold", parsed["suffix"])
}

func TestParseFileName_RecoversDatatypeWithSession(t *testing.T) {
	parsed := ParseFileName("sub-01/ses-1/func/sub-01_ses-1_task-rest_bold.nii")
	assert.Equal(t, "func", parsed["datatype"])
	assert.Equal(t, "1", parsed["session"])
}

func TestParseFileName_NoDatatypeWhenNoDirectory(t *testing.T) {
	parsed := ParseFileName("sub-01_task-rest_bold.nii")
	_, ok := parsed["datatype"]
	assert.False(t, ok)
}
