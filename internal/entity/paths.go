package entity

import (
	"path"
	"strconv"
	"strings"

	"github.com/openneuro/rtbids/internal/bidserrors"
)

// BuildFileName composes the BIDS filename grammar of spec §4.1:
//
//	sub-<v>[_ses-<v>]_task-<v>[_acq-<v>][_ce-<v>][_dir-<v>]
//	[_rec-<v>][_run-<v>][_echo-<v>][_recording-<v>][_part-<v>]
//	_<suffix>[.<extension>]
//
// in exactly that order, omitting optional segments whose value is
// absent. suffix is required.
func BuildFileName(m Map) (string, error) {
	var b strings.Builder

	sub, ok := m.GetString("subject")
	if !ok || sub == "" {
		return "", bidserrors.Validation("BuildFileName", "metadata map is missing required entity \"subject\"")
	}
	b.WriteString("sub-")
	b.WriteString(sub)

	if ses, ok := m.GetString("session"); ok && ses != "" {
		b.WriteString("_ses-")
		b.WriteString(ses)
	}

	task, ok := m.GetString("task")
	if !ok || task == "" {
		return "", bidserrors.Validation("BuildFileName", "metadata map is missing required entity \"task\"")
	}
	b.WriteString("_task-")
	b.WriteString(task)

	writeOpt := func(longName, shortName string) {
		if v, ok := valueAsPathString(m, longName); ok && v != "" {
			b.WriteString("_")
			b.WriteString(shortName)
			b.WriteString("-")
			b.WriteString(v)
		}
	}
	writeOpt("acquisition", "acq")
	writeOpt("ceagent", "ce")
	writeOpt("direction", "dir")
	writeOpt("reconstruction", "rec")
	writeOpt("run", "run")
	writeOpt("echo", "echo")
	writeOpt("recording", "recording")
	writeOpt("part", "part")

	suffix, ok := m.GetString("suffix")
	if !ok || suffix == "" {
		return "", bidserrors.Validation("BuildFileName", "metadata map is missing required field \"suffix\"")
	}
	datatype, _ := m.GetString("datatype")
	if datatype == "" {
		datatype = "func"
	}
	if datatype == "func" && !IsFunctionalSuffix(suffix) {
		return "", bidserrors.Validation("BuildFileName", "suffix \""+suffix+"\" is not valid for functional data")
	}
	b.WriteString("_")
	b.WriteString(suffix)

	if ext, ok := m.GetString("extension"); ok && ext != "" {
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		b.WriteString(ext)
	}

	return b.String(), nil
}

// valueAsPathString renders an entity value (string or integer) as the
// opaque token build_file_name embeds; numeric-looking values such as
// run are preserved lexically in paths per spec §4.1.
func valueAsPathString(m Map, longName string) (string, bool) {
	v, ok := m[longName]
	if !ok {
		return "", false
	}
	switch x := v.(type) {
	case string:
		return x, true
	case int:
		return strconv.Itoa(x), true
	case int64:
		return strconv.FormatInt(x, 10), true
	case float64:
		return strconv.FormatInt(int64(x), 10), true
	default:
		return "", false
	}
}

// ParseFileName is the inverse of BuildFileName: it recovers the entity
// map encoded in a BIDS filename, for internal/layout's index-from-disk
// walk. filename may carry a leading directory (e.g.
// "sub-01/func/sub-01_task-rest_bold.nii"); the datatype segment
// (the directory immediately containing the file, per BuildDirPath's
// sub-<s>[/ses-<s>]/<datatype>/ grammar) is recovered from it the same
// way the filename-embedded tokens are, since datatype never appears
// in the filename itself. Unknown `short-value` tokens are ignored,
// matching parse_protocol_name's tolerance (spec §4.1). The final
// underscore-delimited segment before the extension is taken as
// suffix.
func ParseFileName(filename string) Map {
	out := make(Map)

	if dt := datatypeFromDir(filename); dt != "" {
		out["datatype"] = dt
	}

	base := path.Base(filename)
	stem := base
	if idx := strings.Index(base, "."); idx >= 0 {
		out["extension"] = base[idx:]
		stem = base[:idx]
	}

	segments := strings.Split(stem, "_")
	if len(segments) == 0 {
		return out
	}

	last := segments[len(segments)-1]
	segments = segments[:len(segments)-1]
	if !strings.Contains(last, "-") {
		out["suffix"] = last
	} else {
		segments = append(segments, last)
	}

	for _, seg := range segments {
		short, value, ok := strings.Cut(seg, "-")
		if !ok {
			continue
		}
		def, ok := LookupShort(short)
		if !ok {
			continue
		}
		if def.Format == FormatIndex {
			if n, err := strconv.ParseInt(value, 10, 64); err == nil {
				out[def.LongName] = n
				continue
			}
		}
		out[def.LongName] = value
	}

	return out
}

// datatypeFromDir recovers the datatype segment from the directory
// component of a BIDS-relative path, the inverse of BuildDirPath's
// sub-<s>[/ses-<s>]/<datatype>/ layout. Returns "" if filename carries
// no directory, or the directory is just the subject (and optionally
// session) prefix with nothing below it.
func datatypeFromDir(filename string) string {
	dir := path.Dir(path.Clean(filename))
	if dir == "." || dir == "/" {
		return ""
	}
	last := path.Base(dir)
	if strings.HasPrefix(last, "sub-") || strings.HasPrefix(last, "ses-") {
		return ""
	}
	return last
}

// BuildDirPath composes sub-<s>[/ses-<s>]/<datatype>/, defaulting
// datatype to "func" when the suffix is one of the functional suffixes
// (spec §4.1).
func BuildDirPath(m Map) (string, error) {
	sub, ok := m.GetString("subject")
	if !ok || sub == "" {
		return "", bidserrors.Validation("BuildDirPath", "metadata map is missing required entity \"subject\"")
	}

	datatype, _ := m.GetString("datatype")
	if datatype == "" {
		suffix, _ := m.GetString("suffix")
		if !IsFunctionalSuffix(suffix) {
			return "", bidserrors.Validation("BuildDirPath", "metadata map has no datatype and suffix \""+suffix+"\" is not a functional suffix")
		}
		datatype = "func"
	}

	parts := []string{"sub-" + sub}
	if ses, ok := m.GetString("session"); ok && ses != "" {
		parts = append(parts, "ses-"+ses)
	}
	parts = append(parts, datatype)

	return path.Join(parts...) + "/", nil
}
