// Package incremental implements the single-volume self-describing
// packet of spec §3.4/§4.3: exactly one 4-D image whose 4th dimension
// has length 1, a complete metadata map, a dataset description, and a
// fixed README, built through the normalization pipeline of §4.3.
package incremental

import (
	"fmt"
	"path"
	"strconv"

	"github.com/openneuro/rtbids/internal/atomicfile"
	"github.com/openneuro/rtbids/internal/bidserrors"
	"github.com/openneuro/rtbids/internal/entity"
	"github.com/openneuro/rtbids/internal/nifti"
	"github.com/openneuro/rtbids/internal/wire"
)

const (
	defaultBIDSVersion     = "1.4.1"
	repetitionTimeCapSec   = 100.0
	echoTimeCapSec         = 1.0
	readmeText             = "This dataset was generated by a real-time BIDS streaming core.\n"
	eventsHeaderLine       = "onset\tduration\tresponse_time\n"
)

var requiredMetadataFields = []string{"subject", "task", "suffix", "RepetitionTime", "EchoTime"}
var requiredDatasetFields = []string{"Name", "BIDSVersion"}

// Incremental is the value type of spec §3.4.
type Incremental struct {
	Image       *nifti.Image
	Metadata    entity.Map
	DatasetDesc entity.Map
	Readme      string
	Version     int
}

// New constructs an Incremental from a raw image and metadata map,
// running the normalization pipeline of spec §4.3 in order. img is not
// mutated; the returned Incremental owns its own copies. The result
// always satisfies the single-volume invariant: its 4th dimension has
// length 1.
func New(img *nifti.Image, metadata entity.Map, datasetDesc entity.Map) (*Incremental, error) {
	return newWithFrameCheck(img, metadata, datasetDesc, true)
}

// NewMultiFrame runs the same normalization pipeline as New but without
// the trailing single-frame check. It exists solely for internal/run's
// append contract (spec §4.4): the caller wraps a multi-volume series
// with this constructor and hands the result to Run.Append, which splits
// it into single-frame Incrementals built through New itself. Any
// Incremental not handed straight to Run.Append should come from New.
func NewMultiFrame(img *nifti.Image, metadata entity.Map, datasetDesc entity.Map) (*Incremental, error) {
	return newWithFrameCheck(img, metadata, datasetDesc, false)
}

func newWithFrameCheck(img *nifti.Image, metadata entity.Map, datasetDesc entity.Map, requireSingleFrame bool) (*Incremental, error) {
	if img == nil {
		return nil, bidserrors.Validation("incremental.New", "image is nil")
	}
	if img.Voxels == nil || len(img.Voxels.Shape) < 3 {
		return nil, bidserrors.Validation("incremental.New", "image has fewer than 3 dimensions")
	}

	dd := defaultDatasetDesc()
	if datasetDesc != nil {
		for _, f := range requiredDatasetFields {
			if _, ok := datasetDesc[f]; !ok {
				return nil, bidserrors.Validation("incremental.New", fmt.Sprintf("dataset description missing required field %q", f))
			}
		}
		dd = datasetDesc.Clone()
	}

	md := metadata.Clone()
	if md == nil {
		md = make(entity.Map)
	}

	// Step 1: merge ProtocolName tokens under (not over) the caller's map.
	if protocol, ok := md.GetString("ProtocolName"); ok {
		parsed := entity.ParseProtocolName(protocol)
		for k, v := range parsed {
			if _, present := md[k]; !present {
				md[k] = v
			}
		}
	}

	var missing []string
	for _, f := range requiredMetadataFields {
		if _, ok := md[f]; !ok {
			missing = append(missing, f)
		}
	}
	if len(missing) > 0 {
		return nil, bidserrors.MissingMetadata("incremental.New", missing...)
	}

	// Step 2: coerce run, mirror TaskName, default datatype.
	if run, ok := md["run"]; ok {
		coerced, err := coerceInt(run)
		if err != nil {
			return nil, bidserrors.Validation("incremental.New", "run entity is not coercible to an integer")
		}
		md["run"] = coerced
	}
	task, _ := md.GetString("task")
	md["TaskName"] = task
	if dt, ok := md.GetString("datatype"); !ok || dt == "" {
		md["datatype"] = "func"
	}

	// Step 3: normalize time units.
	rt, ok := md.GetFloat("RepetitionTime")
	if !ok {
		return nil, bidserrors.MissingMetadata("incremental.New", "RepetitionTime")
	}
	rt, err := normalizeTimeSeconds(rt, repetitionTimeCapSec)
	if err != nil {
		return nil, bidserrors.Validation("incremental.New", "RepetitionTime: "+err.Error())
	}
	md["RepetitionTime"] = rt

	et, ok := md.GetFloat("EchoTime")
	if !ok {
		return nil, bidserrors.MissingMetadata("incremental.New", "EchoTime")
	}
	et, err = normalizeTimeSeconds(et, echoTimeCapSec)
	if err != nil {
		return nil, bidserrors.Validation("incremental.New", "EchoTime: "+err.Error())
	}
	md["EchoTime"] = et

	// Step 4: squeeze singleton dims, promote 3-D to 4-D, reject >4-D.
	normalized := nifti.Squeeze(img)
	switch len(normalized.Voxels.Shape) {
	case 3:
		normalized = nifti.Promote4D(normalized)
	case 4:
		// already 4-D
	default:
		return nil, bidserrors.Validation("incremental.New", "image has an unsupported number of dimensions after squeezing")
	}
	if requireSingleFrame && normalized.Voxels.Shape[3] != 1 {
		return nil, bidserrors.Validation("incremental.New", "image's 4th dimension must have length 1")
	}
	owned := *normalized
	owned.Voxels = &nifti.Voxels{
		Shape: append([]int(nil), normalized.Voxels.Shape...),
		DType: normalized.Voxels.DType,
		Data:  append([]float64(nil), normalized.Voxels.Data...),
	}
	normalized = &owned

	// Step 5: set pixdim[4] to the normalized RepetitionTime.
	normalized.Header.Pixdim[4] = rt

	return &Incremental{
		Image:       normalized,
		Metadata:    md,
		DatasetDesc: dd,
		Readme:      readmeText,
		Version:     1,
	}, nil
}

func defaultDatasetDesc() entity.Map {
	return entity.Map{
		"Name":        "untitled",
		"BIDSVersion": defaultBIDSVersion,
	}
}

func coerceInt(v any) (int64, error) {
	switch x := v.(type) {
	case int:
		return int64(x), nil
	case int64:
		return x, nil
	case float64:
		return int64(x), nil
	case string:
		return strconv.ParseInt(x, 10, 64)
	default:
		return 0, bidserrors.Validation("coerceInt", "value is not coercible to an integer")
	}
}

// normalizeTimeSeconds implements spec §4.3 step 3: if value exceeds
// cap but value/1000 does not, treat value as milliseconds.
func normalizeTimeSeconds(value, cap float64) (float64, error) {
	if value <= cap {
		return value, nil
	}
	if value/1000 <= cap {
		return value / 1000, nil
	}
	return 0, fmt.Errorf("value %v exceeds cap %v even after assuming milliseconds", value, cap)
}

// GetField returns the metadata value for key. When strict is true, key
// must be a recognized entity long-name.
func (inc *Incremental) GetField(key string, strict bool) (any, error) {
	if strict && !entity.IsEntity(key) {
		return nil, bidserrors.Validation("Incremental.GetField", fmt.Sprintf("%q is not a recognized entity", key))
	}
	v, ok := inc.Metadata[key]
	if !ok {
		return nil, bidserrors.NoMatch("Incremental.GetField", fmt.Sprintf("field %q not present", key))
	}
	return v, nil
}

// SetField sets the metadata value for key. When strict is true, key
// must be a recognized entity long-name.
func (inc *Incremental) SetField(key string, value any, strict bool) error {
	if strict && !entity.IsEntity(key) {
		return bidserrors.Validation("Incremental.SetField", fmt.Sprintf("%q is not a recognized entity", key))
	}
	inc.Metadata[key] = value
	return nil
}

var requiredFieldSet = func() map[string]bool {
	m := make(map[string]bool, len(requiredMetadataFields))
	for _, f := range requiredMetadataFields {
		m[f] = true
	}
	return m
}()

// RemoveField removes key from the metadata map. Refuses to remove a
// required field (spec §4.3's required-field invariant). When strict is
// true, key must be a recognized entity long-name.
func (inc *Incremental) RemoveField(key string, strict bool) error {
	if requiredFieldSet[key] {
		return bidserrors.Validation("Incremental.RemoveField", fmt.Sprintf("%q is a required field and cannot be removed", key))
	}
	if strict && !entity.IsEntity(key) {
		return bidserrors.Validation("Incremental.RemoveField", fmt.Sprintf("%q is not a recognized entity", key))
	}
	delete(inc.Metadata, key)
	return nil
}

// Entities returns the entity subset of the metadata map.
func (inc *Incremental) Entities() entity.Map {
	return entity.FilterEntities(inc.Metadata)
}

// ImageData returns the incremental's voxel tensor.
func (inc *Incremental) ImageData() *nifti.Voxels {
	return inc.Image.Voxels
}

// ImageHeader returns the incremental's image header.
func (inc *Incremental) ImageHeader() nifti.Header {
	return inc.Image.Header
}

// ImageDimensions returns the incremental's voxel shape. For an
// Incremental built by New this always has length 4 with a trailing 1
// (spec §8's invariant); one built by NewMultiFrame may have more frames.
func (inc *Incremental) ImageDimensions() []int {
	return append([]int(nil), inc.Image.Voxels.Shape...)
}

// MakeBIDSFileName composes the filename for this incremental's image
// or sidecar, with the given extension (e.g. ".nii", ".json").
func (inc *Incremental) MakeBIDSFileName(extension string) (string, error) {
	m := inc.Metadata.Clone()
	m["extension"] = extension
	return entity.BuildFileName(m)
}

// DataDirPath returns the directory this incremental's files belong in,
// relative to an archive root.
func (inc *Incremental) DataDirPath() (string, error) {
	return entity.BuildDirPath(inc.Metadata)
}

// ImageFilePath returns the image file path relative to an archive root.
func (inc *Incremental) ImageFilePath() (string, error) {
	return inc.filePath(".nii")
}

// MetadataFilePath returns the sidecar JSON file path relative to an
// archive root.
func (inc *Incremental) MetadataFilePath() (string, error) {
	return inc.filePath(".json")
}

// EventsFileName returns the bare events TSV filename for this
// incremental's entities (not including the directory).
func (inc *Incremental) EventsFileName() (string, error) {
	m := inc.Metadata.Clone()
	m["suffix"] = "events"
	m["extension"] = ".tsv"
	return entity.BuildFileName(m)
}

func (inc *Incremental) filePath(extension string) (string, error) {
	dir, err := inc.DataDirPath()
	if err != nil {
		return "", err
	}
	name, err := inc.MakeBIDSFileName(extension)
	if err != nil {
		return "", err
	}
	return path.Join(dir, name), nil
}

// Equal reports whether two incrementals are equal per spec §4.3: equal
// headers (NaN-equal), equal voxel arrays, and equal metadata/dataset
// maps.
func (inc *Incremental) Equal(other *Incremental) bool {
	if other == nil {
		return false
	}
	if !inc.Image.Equal(other.Image) {
		return false
	}
	if !entity.Equal(inc.Metadata, other.Metadata) {
		return false
	}
	if !entity.Equal(inc.DatasetDesc, other.DatasetDesc) {
		return false
	}
	return true
}

// ToEnvelope serializes inc to the wire envelope of spec §6.2.
func (inc *Incremental) ToEnvelope() *wire.Envelope {
	e := wire.FromImage(inc.Image)
	e.Version = uint32(inc.Version)
	e.Metadata = map[string]any(inc.Metadata)
	e.DatasetDesc = map[string]any(inc.DatasetDesc)
	e.Readme = inc.Readme
	return &e
}

// FromEnvelope reconstructs an Incremental from a wire envelope,
// re-running the construction invariants so deserialization produces an
// object satisfying §4.3 exactly (spec §4.3's serialization clause).
func FromEnvelope(e *wire.Envelope) (*Incremental, error) {
	img, err := e.ToImage()
	if err != nil {
		return nil, err
	}
	return New(img, entity.Map(e.Metadata), entity.Map(e.DatasetDesc))
}

// WithDatasetPolicy returns a shallow copy of inc whose DatasetDesc
// carries the archive-wide writer policy decided for Open Question
// (iii): writerExtension, if non-empty, is stored as given under the
// writerExtension key (the archive's writers always emit ".nii",
// whatever value is recorded), and authors seeds the
// dataset_description.json author list when the incremental's own
// DatasetDesc doesn't already specify one. Image and Metadata are
// shared with inc, not copied.
func (inc *Incremental) WithDatasetPolicy(writerExtension string, authors []string) *Incremental {
	dd := inc.DatasetDesc.Clone()
	if writerExtension != "" {
		dd["writerExtension"] = writerExtension
	}
	if len(authors) > 0 {
		if _, ok := dd["Authors"]; !ok {
			dd["Authors"] = authors
		}
	}
	cp := *inc
	cp.DatasetDesc = dd
	return &cp
}

// WriteToArchive writes this incremental's image, sidecar JSON, events
// TSV, dataset_description.json, and README under root, creating
// intermediate directories as needed (spec §4.3 write_to_archive).
func (inc *Incremental) WriteToArchive(root string) error {
	dir, err := inc.DataDirPath()
	if err != nil {
		return err
	}
	absDir := path.Join(root, dir)

	imagePath, err := inc.ImageFilePath()
	if err != nil {
		return err
	}
	if err := atomicfile.WriteImage(path.Join(root, imagePath), inc.Image); err != nil {
		return err
	}

	sidecarPath, err := inc.MetadataFilePath()
	if err != nil {
		return err
	}
	if err := atomicfile.WriteJSONSorted(path.Join(root, sidecarPath), map[string]any(inc.Metadata)); err != nil {
		return err
	}

	eventsName, err := inc.EventsFileName()
	if err != nil {
		return err
	}
	if err := atomicfile.WriteBytes(path.Join(absDir, eventsName), []byte(eventsHeaderLine)); err != nil {
		return err
	}

	if err := atomicfile.WriteJSONSorted(path.Join(root, "dataset_description.json"), map[string]any(inc.DatasetDesc)); err != nil {
		return err
	}
	if err := atomicfile.WriteBytes(path.Join(root, "README"), []byte(inc.Readme)); err != nil {
		return err
	}

	return nil
}
