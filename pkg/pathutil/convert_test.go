package pathutil

import (
	"path/filepath"
	"runtime"
	"testing"
)

func TestToRelative(t *testing.T) {
	tests := []struct {
		name     string
		absPath  string
		rootDir  string
		expected string
	}{
		{
			name:     "simple relative path",
			absPath:  "/home/user/dataset/sub-01/func/sub-01_task-rest_bold.nii",
			rootDir:  "/home/user/dataset",
			expected: "sub-01/func/sub-01_task-rest_bold.nii",
		},
		{
			name:     "nested relative path",
			absPath:  "/home/user/dataset/sub-01/ses-1/func/sub-01_ses-1_task-rest_bold.nii",
			rootDir:  "/home/user/dataset",
			expected: "sub-01/ses-1/func/sub-01_ses-1_task-rest_bold.nii",
		},
		{
			name:     "root level file",
			absPath:  "/home/user/dataset/dataset_description.json",
			rootDir:  "/home/user/dataset",
			expected: "dataset_description.json",
		},
		{
			name:     "same directory",
			absPath:  "/home/user/dataset",
			rootDir:  "/home/user/dataset",
			expected: ".",
		},
		{
			name:     "already relative path",
			absPath:  "sub-01/func/sub-01_task-rest_bold.nii",
			rootDir:  "/home/user/dataset",
			expected: "sub-01/func/sub-01_task-rest_bold.nii",
		},
		{
			name:     "path outside root falls back to absolute",
			absPath:  "/other/location/file.nii",
			rootDir:  "/home/user/dataset",
			expected: "/other/location/file.nii",
		},
		{
			name:     "empty root directory",
			absPath:  "/home/user/dataset/file.nii",
			rootDir:  "",
			expected: "/home/user/dataset/file.nii",
		},
		{
			name:     "empty absolute path",
			absPath:  "",
			rootDir:  "/home/user/dataset",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ToRelative(tt.absPath, tt.rootDir)

			if runtime.GOOS == "windows" {
				result = filepath.ToSlash(result)
				expected := filepath.ToSlash(tt.expected)
				if result != expected {
					t.Errorf("ToRelative() = %v, want %v", result, expected)
				}
			} else {
				if result != tt.expected {
					t.Errorf("ToRelative() = %v, want %v", result, tt.expected)
				}
			}
		})
	}
}
