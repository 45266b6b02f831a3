// Package run implements the ordered-sequence-of-incrementals state
// machine of spec §3.5/§4.4.
package run

import (
	"github.com/openneuro/rtbids/internal/bidserrors"
	"github.com/openneuro/rtbids/internal/compat"
	"github.com/openneuro/rtbids/internal/entity"
	"github.com/openneuro/rtbids/internal/incremental"
	"github.com/openneuro/rtbids/internal/nifti"
)

type state int

const (
	stateEmpty state = iota
	stateOpen
	stateError
)

// Run holds an ordered sequence of Incrementals sharing one entity map
// (spec §3.5). Once it transitions to the error state, Append always
// fails; the caller must discard it.
type Run struct {
	state    state
	entities entity.Map
	items    []*incremental.Incremental
}

// New creates an empty Run. If entities is non-nil it is used as the
// fixed run entity map even before the first append; otherwise the map
// is assigned from the first appended incremental.
func New(entities entity.Map) *Run {
	r := &Run{state: stateEmpty}
	if entities != nil {
		r.entities = entities.Clone()
	}
	return r
}

// IsEmpty reports whether the run holds zero incrementals.
func (r *Run) IsEmpty() bool {
	return len(r.items) == 0
}

// Entities returns the run's entity map.
func (r *Run) Entities() entity.Map {
	return r.entities.Clone()
}

// Len returns the number of incrementals in the run.
func (r *Run) Len() int {
	return len(r.items)
}

// Get returns the i'th incremental (0-indexed, bounds-checked).
func (r *Run) Get(i int) (*incremental.Incremental, error) {
	if i < 0 || i >= len(r.items) {
		return nil, bidserrors.IndexRange("Run.Get", "index out of range")
	}
	return r.items[i], nil
}

// Append implements spec §4.4's append contract. validate defaults to
// true; pass false to skip the §4.4 checks (e.g. when rehydrating a run
// from a single known-consistent on-disk image).
func (r *Run) Append(x *incremental.Incremental, validate bool) error {
	if r.state == stateError {
		return bidserrors.State("Run.Append", "run is in the error state and cannot accept further appends")
	}

	if len(x.Image.Voxels.Shape) != 4 {
		return bidserrors.Runtime("Run.Append", "incremental image is not 4-D")
	}
	frames := x.Image.Voxels.Shape[3]

	if r.IsEmpty() {
		if r.entities == nil {
			r.entities = x.Entities()
		}
		r.state = stateOpen
		return r.appendFrames(x, frames)
	}

	if validate {
		last := r.items[len(r.items)-1]
		if !entity.Equal(x.Entities(), r.entities) {
			r.state = stateError
			return bidserrors.Validation("Run.Append", "incremental entities do not match the run's entity map").
				WithDiffs(bidserrors.Diff{Field: "entities", A: x.Entities(), B: r.entities})
		}
		ok, err := compat.ImagesAppendCompatible(x.Image, last.Image, false)
		if err != nil || !ok {
			r.state = stateError
			if err != nil {
				return err
			}
			return bidserrors.Validation("Run.Append", "images are not append-compatible")
		}
	}

	return r.appendFrames(x, frames)
}

// appendFrames implements the k-frame split of spec §4.4: if x's image
// has more than one frame along the time dimension, the run splits it
// into independent single-frame incrementals sharing metadata, header,
// and affine.
func (r *Run) appendFrames(x *incremental.Incremental, frames int) error {
	if frames <= 1 {
		r.items = append(r.items, x)
		return nil
	}

	for i := 0; i < frames; i++ {
		frame, err := nifti.Slice(x.Image, i)
		if err != nil {
			r.state = stateError
			return err
		}
		frame4d := nifti.Promote4D(frame)
		split, err := incremental.New(frame4d, x.Metadata.Clone(), x.DatasetDesc.Clone())
		if err != nil {
			r.state = stateError
			return err
		}
		r.items = append(r.items, split)
	}
	return nil
}
