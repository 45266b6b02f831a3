package entity

import (
	"regexp"
	"strings"
	"sync"
)

// protocolTokenPattern matches an `(^|_)<short-name>-<value>(?=_|$)`
// entity token embedded in a free-form protocol string (spec §4.1).
// Go's RE2 engine has no lookahead, so the trailing boundary is matched
// as a non-capturing group and excluded from the consumed range by the
// caller loop below rather than expressed as `(?=_|$)` directly.
var protocolTokenPattern = regexp.MustCompile(`(?:^|_)([A-Za-z]+)-([^_]+)(?:_|$)`)

// ParseProtocolName extracts entity-value tokens embedded in a free-form
// protocol string. Unknown short-names are ignored. A match is
// `(^|_)<short-name>-<value>(?=_|$)`.
func ParseProtocolName(s string) Map {
	out := make(Map)
	s = protocolNameTrim(s)
	if s == "" {
		return out
	}

	// Overlapping matches share their trailing "_" with the next token's
	// leading boundary; re-scan from the end of each match's value
	// so back-to-back tokens ("sub-01_task-rest") are both found.
	pos := 0
	for pos < len(s) {
		loc := protocolTokenPattern.FindStringSubmatchIndex(s[pos:])
		if loc == nil {
			break
		}
		short := s[pos+loc[2] : pos+loc[3]]
		value := s[pos+loc[4] : pos+loc[5]]
		if def, ok := LookupShort(short); ok {
			out[def.LongName] = value
		}
		// Advance just past the short-value pair, not past the trailing
		// separator, so the next token (which may reuse that separator)
		// is still found.
		pos += loc[5]
		if loc[5] == loc[0] {
			pos++
		}
	}

	return out
}

var (
	dicomCacheMu sync.Mutex
	dicomCache   = make(map[string]string)
)

var nonAlpha = regexp.MustCompile(`[^A-Za-z]`)

// DicomFieldToBIDS strips every non-alphabetic character from a DICOM
// field name, producing the CamelCase sidecar key BIDS expects. Results
// are memoized: the function is pure and the table of inputs is bounded
// by the fixed DICOM field dictionary, so caching is safe and avoids
// repeated regexp work per spec §9.
func DicomFieldToBIDS(name string) string {
	dicomCacheMu.Lock()
	if v, ok := dicomCache[name]; ok {
		dicomCacheMu.Unlock()
		return v
	}
	dicomCacheMu.Unlock()

	v := nonAlpha.ReplaceAllString(name, "")

	dicomCacheMu.Lock()
	dicomCache[name] = v
	dicomCacheMu.Unlock()

	return v
}

// protocolNameTrim removes surrounding whitespace the scanner console
// sometimes injects into ProtocolName sidecar values before tokenizing.
func protocolNameTrim(s string) string {
	return strings.TrimSpace(s)
}
