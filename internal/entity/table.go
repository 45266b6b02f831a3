// Package entity implements the BIDS Entity Model (spec §4.1): the
// static entity table, protocol-name token parsing, entity-subset
// filtering, and the filename/directory path grammar.
package entity

// Format describes the expected shape of an entity's value.
type Format string

const (
	FormatString Format = "string"
	FormatIndex  Format = "index" // integer value, preserved lexically in paths
)

// Def is one row of the static entity table: a recognized long-name
// mapped to its short-name, value format, and description.
type Def struct {
	LongName    string
	ShortName   string
	Format      Format
	Description string
}

// Functional suffixes per spec §4.1; used by BuildDirPath to default
// datatype to "func".
var functionalSuffixes = map[string]bool{
	"bold":   true,
	"cbv":    true,
	"sbref":  true,
	"events": true,
}

// IsFunctionalSuffix reports whether suffix is one of the recognized
// functional suffixes.
func IsFunctionalSuffix(suffix string) bool {
	return functionalSuffixes[suffix]
}

// table is the fixed, static entity table loaded once at process start,
// per spec §3.1 ("loaded once at startup from a static table"). It is
// embedded rather than read from a config file: the BIDS entity set is
// part of the specification, not a deployment-time choice.
var table = []Def{
	{"subject", "sub", FormatString, "A person or animal participating in the study"},
	{"session", "ses", FormatString, "A logical grouping of neuroimaging acquisitions"},
	{"task", "task", FormatString, "A set of structured activities performed by the participant"},
	{"acquisition", "acq", FormatString, "A distinguishing label for non-default acquisition parameters"},
	{"ceagent", "ce", FormatString, "A distinguishing label for a contrast-enhancing agent"},
	{"reconstruction", "rec", FormatString, "A distinguishing label for a non-default reconstruction"},
	{"direction", "dir", FormatString, "The phase-encoding direction of a fieldmap"},
	{"run", "run", FormatIndex, "The index of a run within an acquisition"},
	{"echo", "echo", FormatIndex, "The index of an echo in a multi-echo acquisition"},
	{"recording", "recording", FormatString, "A distinguishing label for continuous recordings"},
	{"part", "part", FormatString, "Whether an image is the magnitude or phase component"},
	{"chunk", "chunk", FormatIndex, "The index of a chunk in a split acquisition"},
	{"sample", "sample", FormatString, "A label for a tissue sample"},
	{"space", "space", FormatString, "The coordinate space an image is defined in"},
	{"resolution", "res", FormatString, "A label for the resolution of an image"},
	{"density", "den", FormatString, "A label for the density of a surface mesh"},
	{"label", "label", FormatString, "A free-form segmentation or parcellation label"},
	{"hemisphere", "hemi", FormatString, "Which brain hemisphere a file pertains to"},
	{"description", "desc", FormatString, "A distinguishing label for a derivative pipeline step"},
	{"suffix", "", FormatString, "The last entity-like component of a filename, before the extension"},
	{"datatype", "", FormatString, "The directory grouping a file belongs to (e.g. func, anat)"},
	{"extension", "", FormatString, "The file extension, including the leading dot"},
}

var (
	byLongName  map[string]Def
	byShortName map[string]Def
)

func init() {
	byLongName = make(map[string]Def, len(table))
	byShortName = make(map[string]Def, len(table))
	for _, d := range table {
		byLongName[d.LongName] = d
		if d.ShortName != "" {
			byShortName[d.ShortName] = d
		}
	}
}

// Table returns the static entity table.
func Table() []Def {
	out := make([]Def, len(table))
	copy(out, table)
	return out
}

// Lookup returns the Def for a recognized long-name.
func Lookup(longName string) (Def, bool) {
	d, ok := byLongName[longName]
	return d, ok
}

// LookupShort returns the Def for a recognized short-name.
func LookupShort(shortName string) (Def, bool) {
	d, ok := byShortName[shortName]
	return d, ok
}

// IsEntity reports whether key is a recognized entity long-name.
func IsEntity(key string) bool {
	_, ok := byLongName[key]
	return ok
}

// orderedPathEntities lists, in the order build_file_name (§4.1) uses
// them, the long-names that participate in the filename grammar.
var orderedPathEntities = []string{
	"subject", "session", "task", "acquisition", "ceagent", "direction",
	"reconstruction", "run", "echo", "recording", "part",
}
