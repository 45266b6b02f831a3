package layout

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openneuro/rtbids/internal/entity"
)

func writeFile(t *testing.T, root, rel string) {
	t.Helper()
	p := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte("x"), 0o644))
}

func sampleRoot(t *testing.T) string {
	root := t.TempDir()
	writeFile(t, root, "sub-01/func/sub-01_task-rest_bold.nii")
	writeFile(t, root, "sub-01/func/sub-01_task-rest_bold.json")
	writeFile(t, root, "sub-01/func/sub-01_task-rest_events.tsv")
	writeFile(t, root, "sub-02/func/sub-02_task-rest_run-1_bold.nii")
	writeFile(t, root, "dataset_description.json")
	return root
}

func TestReindex_FindsImages(t *testing.T) {
	root := sampleRoot(t)
	l := New(root)
	require.NoError(t, l.Reindex())

	images := l.FindImages(entity.Map{"subject": "01"}, false)
	require.Len(t, images, 1)
	assert.Equal(t, "sub-01/func/sub-01_task-rest_bold.nii", images[0].RelPath)
}

func TestReindex_FindsEvents(t *testing.T) {
	root := sampleRoot(t)
	l := New(root)
	require.NoError(t, l.Reindex())

	events := l.FindEvents(entity.Map{"subject": "01"}, false)
	require.Len(t, events, 1)
	assert.Equal(t, "events", events[0].Suffix)
}

func TestReindex_MatchExactRequiresEqualEntities(t *testing.T) {
	root := sampleRoot(t)
	l := New(root)
	require.NoError(t, l.Reindex())

	exact := l.FindImages(entity.Map{"subject": "02", "task": "rest", "run": int64(1), "suffix": "bold", "datatype": "func"}, true)
	require.Len(t, exact, 1)

	notExact := l.FindImages(entity.Map{"subject": "02"}, true)
	assert.Len(t, notExact, 0)
}

func TestReindex_Idempotent(t *testing.T) {
	root := sampleRoot(t)
	l := New(root)
	require.NoError(t, l.Reindex())
	first := l.Fingerprint()
	require.NoError(t, l.Reindex())
	second := l.Fingerprint()
	assert.Equal(t, first, second)
}

func TestReindex_DetectsChange(t *testing.T) {
	root := sampleRoot(t)
	l := New(root)
	require.NoError(t, l.Reindex())
	before := l.Fingerprint()

	writeFile(t, root, "sub-03/func/sub-03_task-rest_bold.nii")
	require.NoError(t, l.Reindex())
	after := l.Fingerprint()

	assert.NotEqual(t, before, after)
}

func TestFindFile_StripsLeadingSlash(t *testing.T) {
	root := sampleRoot(t)
	l := New(root)
	require.NoError(t, l.Reindex())

	e, ok := l.FindFile("/sub-01/func/sub-01_task-rest_bold.nii")
	require.True(t, ok)
	assert.Equal(t, "sub-01", e.Entities["subject"])
}

func TestReindex_EntitiesIncludeDatatype(t *testing.T) {
	root := sampleRoot(t)
	l := New(root)
	require.NoError(t, l.Reindex())

	images := l.FindImages(entity.Map{"subject": "01"}, false)
	require.Len(t, images, 1)
	assert.Equal(t, "func", images[0].Entities["datatype"])
}

func TestDistinctValues(t *testing.T) {
	root := sampleRoot(t)
	l := New(root)
	require.NoError(t, l.Reindex())

	subjects := l.DistinctValues("subject")
	assert.Equal(t, []string{"01", "02"}, subjects)
}

func TestDatasetDescriptionExcludedFromIndex(t *testing.T) {
	root := sampleRoot(t)
	l := New(root)
	require.NoError(t, l.Reindex())

	_, ok := l.FindFile("dataset_description.json")
	assert.False(t, ok)
}
