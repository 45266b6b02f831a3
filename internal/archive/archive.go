// Package archive implements the on-disk dataset facade of spec
// §3.6/§4.5: the single entry point that ties together the layout
// index, the append-compatibility predicates, and atomic writes into
// the query/mutation/extraction surface the rest of the system calls.
package archive

import (
	"encoding/json"
	"os"
	"path"
	"sync"

	"github.com/openneuro/rtbids/internal/applog"
	"github.com/openneuro/rtbids/internal/atomicfile"
	"github.com/openneuro/rtbids/internal/bidserrors"
	"github.com/openneuro/rtbids/internal/compat"
	"github.com/openneuro/rtbids/internal/config"
	"github.com/openneuro/rtbids/internal/entity"
	"github.com/openneuro/rtbids/internal/incremental"
	"github.com/openneuro/rtbids/internal/layout"
	"github.com/openneuro/rtbids/internal/metrics"
	"github.com/openneuro/rtbids/internal/nifti"
	"github.com/openneuro/rtbids/internal/run"
)

// Archive is the dataset facade of spec §3.6: a root directory plus the
// layout index built from it. A freshly constructed Archive over a
// root that does not exist, or that has no indexable files, is "empty"
// per §3.6 — queries fail with bidserrors.State until the first
// mutation creates it.
//
// Reads take the lock's RLock; every mutation (AppendIncremental,
// AppendRun) takes the write lock for the full read-modify-write, the
// same read/write separation the teacher's IndexLockManager applies to
// index access, simplified here to a single sync.RWMutex since this
// facade has one index, not a set of coordinated index types.
type Archive struct {
	mu      sync.RWMutex
	root    string
	layout  *layout.Layout
	cfg     *config.Config
	metrics *metrics.Collectors
}

// Open builds an Archive rooted at root. A root that doesn't exist yet,
// or that has no indexable dataset, produces an empty Archive that
// AppendIncremental can populate; Open fails only if walking an
// existing root fails. cfg and mc may be
// nil; nil cfg uses config.Default(), a nil *metrics.Collectors is a
// no-op per its own nil-receiver contract.
func Open(root string, cfg *config.Config, mc *metrics.Collectors) (*Archive, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	l := layout.New(root)
	if err := l.Reindex(); err != nil {
		return nil, bidserrors.IO("archive.Open", err)
	}
	mc.ObserveReindex()
	a := &Archive{root: root, layout: l, cfg: cfg, metrics: mc}
	a.metrics.SetSubjects(len(l.DistinctValues("subject")))
	return a, nil
}

// IsEmpty reports whether the archive's root contains no indexed files
// (spec §3.6's empty state).
func (a *Archive) IsEmpty() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.isEmptyLocked()
}

func (a *Archive) isEmptyLocked() bool {
	if _, err := os.Stat(a.root); os.IsNotExist(err) {
		return true
	}
	return len(a.layout.DistinctValues("subject")) == 0
}

func (a *Archive) requireNonEmpty(op string) error {
	if a.isEmptyLocked() {
		return bidserrors.State(op, "archive has no dataset; call AppendIncremental with makePath to create one")
	}
	return nil
}

// Root returns the archive's dataset root.
func (a *Archive) Root() string {
	return a.root
}

// GetImages returns the indexed image files matching want (spec §4.5
// get_images). matchExact requires want to equal (not merely be a
// subset of) each candidate's entity map.
func (a *Archive) GetImages(want entity.Map, matchExact bool) ([]layout.Entry, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if err := a.requireNonEmpty("Archive.GetImages"); err != nil {
		return nil, err
	}
	return a.layout.FindImages(want, matchExact), nil
}

// GetEvents returns the indexed events TSV files matching want.
func (a *Archive) GetEvents(want entity.Map, matchExact bool) ([]layout.Entry, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if err := a.requireNonEmpty("Archive.GetEvents"); err != nil {
		return nil, err
	}
	return a.layout.FindEvents(want, matchExact), nil
}

// GetMetadata returns the indexed sidecar JSON files matching want.
func (a *Archive) GetMetadata(want entity.Map, matchExact bool) ([]layout.Entry, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if err := a.requireNonEmpty("Archive.GetMetadata"); err != nil {
		return nil, err
	}
	return a.layout.FindSidecars(want, matchExact), nil
}

// PathExists reports whether relPath names an indexed file.
func (a *Archive) PathExists(relPath string) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	_, ok := a.layout.FindFile(relPath)
	return ok
}

// DirExists reports whether relPath names a directory under the
// archive root.
func (a *Archive) DirExists(relPath string) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	info, err := os.Stat(path.Join(a.root, relPath))
	return err == nil && info.IsDir()
}

// TryGetFile returns the indexed entry at relPath, if any (spec §4.5
// try_get_file).
func (a *Archive) TryGetFile(relPath string) (layout.Entry, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.layout.FindFile(relPath)
}

// GetSubjects returns the sorted distinct subject entity values
// present in the archive (supplemented per SPEC_FULL.md).
func (a *Archive) GetSubjects() ([]string, error) {
	return a.distinctValues("Archive.GetSubjects", "subject")
}

// GetTasks returns the sorted distinct task entity values.
func (a *Archive) GetTasks() ([]string, error) {
	return a.distinctValues("Archive.GetTasks", "task")
}

// GetSessions returns the sorted distinct session entity values.
func (a *Archive) GetSessions() ([]string, error) {
	return a.distinctValues("Archive.GetSessions", "session")
}

// GetRuns returns the sorted distinct run entity values.
func (a *Archive) GetRuns() ([]string, error) {
	return a.distinctValues("Archive.GetRuns", "run")
}

func (a *Archive) distinctValues(op, longName string) ([]string, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if err := a.requireNonEmpty(op); err != nil {
		return nil, err
	}
	return a.layout.DistinctValues(longName), nil
}

// AppendIncremental implements spec §4.5's three-case append decision
// tree. It reports whether a new file was created (true) or an existing
// image was extended in place (false).
//
//  1. Archive is empty: if makePath is false, fail with bidserrors.State;
//     otherwise write x as the archive's first file.
//  2. An image already exists at x's computed path: run the §4.2
//     compatibility checks against it, expand/concat, and atomically
//     rewrite the image in place; the existing sidecar is left as is.
//  3. No image exists at that path yet: if makePath is false, fail;
//     otherwise write x as a new file under the existing dataset.
func (a *Archive) AppendIncremental(x *incremental.Incremental, makePath bool) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	imagePath, err := x.ImageFilePath()
	if err != nil {
		a.metrics.ObserveAppend("rejected")
		return false, err
	}

	if a.isEmptyLocked() {
		if !makePath {
			a.metrics.ObserveAppend("rejected")
			return false, bidserrors.State("Archive.AppendIncremental", "archive is empty and makePath is false")
		}
		if err := x.WriteToArchive(a.root); err != nil {
			a.metrics.ObserveAppend("rejected")
			return false, bidserrors.IO("Archive.AppendIncremental", err)
		}
		if err := a.layout.Reindex(); err != nil {
			return true, bidserrors.IO("Archive.AppendIncremental", err)
		}
		a.metrics.ObserveReindex()
		a.metrics.SetSubjects(len(a.layout.DistinctValues("subject")))
		a.metrics.ObserveAppend("created")
		return true, nil
	}

	existing, ok := a.layout.FindFile(imagePath)
	if ok {
		if err := a.appendToExistingImage(x, existing); err != nil {
			a.metrics.ObserveAppend("rejected")
			return false, err
		}
		if err := a.layout.Reindex(); err != nil {
			return false, bidserrors.IO("Archive.AppendIncremental", err)
		}
		a.metrics.ObserveReindex()
		a.metrics.ObserveAppend("extended")
		return false, nil
	}

	if !makePath {
		a.metrics.ObserveAppend("rejected")
		return false, bidserrors.State("Archive.AppendIncremental", "no image exists at the computed path and makePath is false")
	}
	if err := x.WriteToArchive(a.root); err != nil {
		a.metrics.ObserveAppend("rejected")
		return false, bidserrors.IO("Archive.AppendIncremental", err)
	}
	if err := a.layout.Reindex(); err != nil {
		return true, bidserrors.IO("Archive.AppendIncremental", err)
	}
	a.metrics.ObserveReindex()
	a.metrics.SetSubjects(len(a.layout.DistinctValues("subject")))
	a.metrics.ObserveAppend("created")
	return true, nil
}

func (a *Archive) appendToExistingImage(x *incremental.Incremental, existing layout.Entry) error {
	absImagePath := path.Join(a.root, existing.RelPath)
	existingImg, err := nifti.Open(absImagePath)
	if err != nil {
		return bidserrors.IO("Archive.AppendIncremental", err)
	}

	sidecarPath, err := x.MetadataFilePath()
	if err != nil {
		return err
	}
	existingMeta, err := readSidecarJSON(path.Join(a.root, sidecarPath))
	if err != nil {
		return err
	}

	ok, err := compat.MetadataAppendCompatible(entity.Map(existingMeta), x.Metadata, a.cfg.DisableMetadataCheck)
	if !ok {
		applog.WithField("path", absImagePath).Debug("append rejected: metadata incompatible")
		a.metrics.ObserveConflict("metadata")
		return err
	}

	left := existingImg
	if left.Header.NumDims() == 3 {
		rt, _ := entity.Map(existingMeta).GetFloat("RepetitionTime")
		left = nifti.ExpandTo4D(left, rt)
	}
	right := x.Image
	if right.Header.NumDims() == 3 {
		rt, _ := x.Metadata.GetFloat("RepetitionTime")
		right = nifti.ExpandTo4D(right, rt)
	}

	ok, err = compat.ImagesAppendCompatible(right, left, a.cfg.DisableNiftiHeaderCheck)
	if !ok {
		applog.WithField("path", absImagePath).Debug("append rejected: header incompatible")
		a.metrics.ObserveConflict("header")
		return err
	}

	merged, err := nifti.Concat(left, right)
	if err != nil {
		return bidserrors.Runtime("Archive.AppendIncremental", err.Error())
	}

	if err := atomicfile.WriteImage(absImagePath, merged); err != nil {
		return bidserrors.IO("Archive.AppendIncremental", err)
	}
	return nil
}

// AppendRun appends every incremental in r to the archive in order,
// stopping at the first error (spec §4.5 append_run).
func (a *Archive) AppendRun(r *run.Run) error {
	for i := 0; i < r.Len(); i++ {
		x, err := r.Get(i)
		if err != nil {
			return err
		}
		if _, err := a.AppendIncremental(x, true); err != nil {
			return err
		}
	}
	return nil
}

// GetIncremental reconstructs a single-frame Incremental from the
// on-disk image matching entities, slicing out sliceIndex if the image
// is a multi-frame series (spec §4.5 get_incremental). Exactly one
// on-disk image must match entities. The match is a subset match (an
// entry matches if its entity set includes entities), not the exact
// equality GetImages' match_exact=true offers: entities narrows the
// candidate set, and ambiguity (more than one remaining candidate, as
// when a run is left unspecified) is reported directly rather than
// forcing the caller to restate every entity the on-disk files carry.
func (a *Archive) GetIncremental(sliceIndex int, entities entity.Map) (*incremental.Incremental, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if err := a.requireNonEmpty("Archive.GetIncremental"); err != nil {
		return nil, err
	}

	matches := a.layout.FindImages(entities, false)
	if len(matches) == 0 {
		return nil, bidserrors.NoMatch("Archive.GetIncremental", "no image matches the given entities")
	}
	if len(matches) > 1 {
		return nil, bidserrors.Ambiguous("Archive.GetIncremental", "more than one image matches the given entities")
	}

	entry := matches[0]
	img, err := nifti.Open(path.Join(a.root, entry.RelPath))
	if err != nil {
		return nil, bidserrors.IO("Archive.GetIncremental", err)
	}
	meta, err := a.readSidecarForImage(entry)
	if err != nil {
		return nil, err
	}
	dd, err := readSidecarJSON(path.Join(a.root, "dataset_description.json"))
	if err != nil {
		return nil, err
	}

	frame := img
	if img.Header.NumDims() == 4 && img.Header.Dim[4] > 1 {
		frame, err = nifti.Slice(img, sliceIndex)
		if err != nil {
			return nil, err
		}
		frame = nifti.Promote4D(frame)
	}

	return incremental.New(frame, entity.Map(meta), entity.Map(dd))
}

// GetRun reconstructs a Run from every on-disk frame matching entities
// (spec §4.5 get_run), in path order.
func (a *Archive) GetRun(entities entity.Map) (*run.Run, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if err := a.requireNonEmpty("Archive.GetRun"); err != nil {
		return nil, err
	}

	matches := a.layout.FindImages(entities, false)
	if len(matches) == 0 {
		return nil, bidserrors.NoMatch("Archive.GetRun", "no image matches the given entities")
	}

	r := run.New(entities.Clone())
	for _, entry := range matches {
		img, err := nifti.Open(path.Join(a.root, entry.RelPath))
		if err != nil {
			return nil, bidserrors.IO("Archive.GetRun", err)
		}
		meta, err := a.readSidecarForImage(entry)
		if err != nil {
			return nil, err
		}
		dd, err := readSidecarJSON(path.Join(a.root, "dataset_description.json"))
		if err != nil {
			return nil, err
		}

		frames := nifti.NumFrames(img)
		for i := 0; i < frames; i++ {
			frame := img
			if frames > 1 {
				frame, err = nifti.Slice(img, i)
				if err != nil {
					return nil, err
				}
				frame = nifti.Promote4D(frame)
			}
			inc, err := incremental.New(frame, entity.Map(meta).Clone(), entity.Map(dd).Clone())
			if err != nil {
				return nil, err
			}
			if err := r.Append(inc, false); err != nil {
				return nil, err
			}
		}
	}

	return r, nil
}

func (a *Archive) readSidecarForImage(entry layout.Entry) (map[string]any, error) {
	sidecarRel := trimExt(entry.RelPath) + ".json"
	return readSidecarJSON(path.Join(a.root, sidecarRel))
}

func trimExt(relPath string) string {
	for _, ext := range []string{".nii.gz", ".nii"} {
		if len(relPath) > len(ext) && relPath[len(relPath)-len(ext):] == ext {
			return relPath[:len(relPath)-len(ext)]
		}
	}
	return relPath
}

func readSidecarJSON(absPath string) (map[string]any, error) {
	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, bidserrors.IO("archive.readSidecarJSON", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, bidserrors.IO("archive.readSidecarJSON", err)
	}
	return m, nil
}
