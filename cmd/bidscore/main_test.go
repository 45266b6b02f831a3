package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openneuro/rtbids/internal/nifti"
)

func writeTestImage(t *testing.T, dir string) (imagePath, metadataPath string) {
	t.Helper()
	img := nifti.NewTestImage4D(2, 2, 2, 1)
	imagePath = filepath.Join(dir, "test.nii")
	require.NoError(t, nifti.Write(imagePath, img))

	md := map[string]any{
		"subject":        "01",
		"task":           "rest",
		"suffix":         "bold",
		"RepetitionTime": 2.0,
		"EchoTime":       0.03,
	}
	data, err := json.Marshal(md)
	require.NoError(t, err)
	metadataPath = filepath.Join(dir, "test.json")
	require.NoError(t, os.WriteFile(metadataPath, data, 0o644))
	return imagePath, metadataPath
}

func TestAppendAndStat(t *testing.T) {
	root := t.TempDir()
	imagePath, metadataPath := writeTestImage(t, t.TempDir())

	app := newApp()
	args := []string{"bidscore", "--root", root, "append", imagePath, metadataPath}
	require.NoError(t, app.Run(args))

	var statOut bytes.Buffer
	app2 := newApp()
	app2.Writer = &statOut
	require.NoError(t, app2.Run([]string{"bidscore", "--root", root, "stat"}))
}

func TestGetImages_EmptyArchive(t *testing.T) {
	root := t.TempDir()
	app := newApp()
	err := app.Run([]string{"bidscore", "--root", root, "get-images", "--subject", "01"})
	assert.Error(t, err)
}

func TestAppend_MissingArgs(t *testing.T) {
	root := t.TempDir()
	app := newApp()
	err := app.Run([]string{"bidscore", "--root", root, "append"})
	assert.Error(t, err)
}
