// Package atomicfile implements the crash-consistent write path spec §5
// requires for every archive mutation: write to a temp file in the
// destination directory, fsync, then rename over the final path, so a
// reader never observes a partially written image or sidecar.
package atomicfile

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/openneuro/rtbids/internal/bidserrors"
	"github.com/openneuro/rtbids/internal/nifti"
)

// Write atomically replaces path's contents with the bytes produced by
// write, via a temp file in the same directory (so the final rename is
// same-filesystem and therefore atomic).
func Write(path string, write func(f *os.File) error) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return bidserrors.IO("atomicfile.Write", err)
	}

	tmpPath := filepath.Join(dir, "."+uuid.NewString()+".tmp")
	f, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return bidserrors.IO("atomicfile.Write", err)
	}

	if err := write(f); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return bidserrors.IO("atomicfile.Write", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return bidserrors.IO("atomicfile.Write", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return bidserrors.IO("atomicfile.Write", err)
	}
	return nil
}

// WriteBytes atomically writes raw bytes to path.
func WriteBytes(path string, data []byte) error {
	return Write(path, func(f *os.File) error {
		_, err := f.Write(data)
		if err != nil {
			return bidserrors.IO("atomicfile.WriteBytes", err)
		}
		return nil
	})
}

// WriteJSONSorted atomically writes v to path as UTF-8 JSON, indent 4,
// sorted keys, per spec §6.1's sidecar format.
func WriteJSONSorted(path string, v map[string]any) error {
	data, err := marshalSortedIndent(v)
	if err != nil {
		return bidserrors.IO("atomicfile.WriteJSONSorted", err)
	}
	return WriteBytes(path, data)
}

// marshalSortedIndent renders v as indent-4 JSON. encoding/json already
// sorts map[string]any keys lexicographically when marshaling, so no
// extra key-ordering step is needed here.
func marshalSortedIndent(v map[string]any) ([]byte, error) {
	return json.MarshalIndent(v, "", "    ")
}

// WriteImage atomically writes img to path using the NIfTI codec.
func WriteImage(path string, img *nifti.Image) error {
	return Write(path, func(f *os.File) error {
		return nifti.Encode(f, img)
	})
}
