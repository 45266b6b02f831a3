// Package layout implements the external layout indexer spec §3.6/§4.5
// names as the archive's opaque handle: it walks a dataset root,
// records every image, sidecar, and events file as a path-sorted list
// of entries tagged with their entity maps, and answers
// entity-filtered queries by scanning that list. Re-indexing is
// idempotent and fingerprinted with xxhash, so callers can tell whether
// a re-index changed the set of indexed paths.
package layout

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/cespare/xxhash/v2"

	"github.com/openneuro/rtbids/internal/entity"
)

// Entry is one indexed file: its path relative to the dataset root, the
// entity map recovered from its filename, and the kind of file it is.
type Entry struct {
	RelPath  string
	Entities entity.Map
	Suffix   string
	Ext      string
}

// Layout is the index produced by a Reindex walk: every image, sidecar,
// and events file under a root, as a flat list sorted by path.
// internal/archive treats a Layout with no subject-bearing entries as
// the archive's empty state (spec §3.6).
type Layout struct {
	mu          sync.RWMutex
	root        string
	entries     []Entry
	fingerprint uint64
}

// New creates an empty Layout rooted at root. Callers must call Reindex
// before issuing queries.
func New(root string) *Layout {
	return &Layout{root: root}
}

// Root returns the dataset root this layout indexes.
func (l *Layout) Root() string {
	return l.root
}

// Reindex walks the root and rebuilds the entry list. It is idempotent:
// calling it twice in succession with no intervening writes produces an
// identical fingerprint (spec §8's "idempotence of re-index" law). The
// walk runs in full on every call; the fingerprint is computed from its
// result.
func (l *Layout) Reindex() error {
	var entries []Entry

	err := filepath.WalkDir(l.root, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel := filepath.ToSlash(relOrSelf(l.root, p))
		match, mErr := doublestar.Match("sub-*_*", filepath.Base(rel))
		if mErr != nil || !match || !hasIndexableExtension(rel) {
			return nil
		}
		entries = append(entries, classify(rel))
		return nil
	})
	if err != nil {
		return err
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].RelPath < entries[j].RelPath })

	l.mu.Lock()
	l.entries = entries
	l.fingerprint = fingerprint(entries)
	l.mu.Unlock()
	return nil
}

// Fingerprint returns the xxhash digest of the current entry list, used
// by callers (and tests) to detect whether a Reindex actually changed
// anything.
func (l *Layout) Fingerprint() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.fingerprint
}

var indexableExtensions = []string{".nii.gz", ".nii", ".json", ".tsv.gz", ".tsv"}

func hasIndexableExtension(relPath string) bool {
	for _, ext := range indexableExtensions {
		if strings.HasSuffix(relPath, ext) {
			return true
		}
	}
	return false
}

func relOrSelf(root, p string) string {
	rel, err := filepath.Rel(root, p)
	if err != nil {
		return p
	}
	return rel
}

func classify(relPath string) Entry {
	ents := entity.ParseFileName(relPath)
	suffix, _ := ents.GetString("suffix")
	ext, _ := ents.GetString("extension")
	return Entry{RelPath: filepath.ToSlash(relPath), Entities: ents, Suffix: suffix, Ext: ext}
}

func fingerprint(entries []Entry) uint64 {
	h := xxhash.New()
	for _, e := range entries {
		h.WriteString(e.RelPath)
		h.WriteString("\x00")
	}
	return h.Sum64()
}

// FindImages returns entries whose extension is ".nii" or ".nii.gz" and
// whose entity map contains (or, if matchExact, exactly equals) want.
func (l *Layout) FindImages(want entity.Map, matchExact bool) []Entry {
	return l.find(want, matchExact, func(e Entry) bool {
		return e.Ext == ".nii" || e.Ext == ".nii.gz"
	})
}

// FindEvents returns entries whose suffix is "events".
func (l *Layout) FindEvents(want entity.Map, matchExact bool) []Entry {
	return l.find(want, matchExact, func(e Entry) bool {
		return e.Suffix == "events"
	})
}

// FindSidecars returns entries whose extension is ".json".
func (l *Layout) FindSidecars(want entity.Map, matchExact bool) []Entry {
	return l.find(want, matchExact, func(e Entry) bool {
		return e.Ext == ".json"
	})
}

func (l *Layout) find(want entity.Map, matchExact bool, keep func(Entry) bool) []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []Entry
	for _, e := range l.entries {
		if !keep(e) {
			continue
		}
		if matchExact {
			if entityMapEqualIgnoringPathFields(e.Entities, want) {
				out = append(out, e)
			}
			continue
		}
		if entityMapIncludes(e.Entities, want) {
			out = append(out, e)
		}
	}
	return out
}

// FindFile returns the single entry at relPath, trying first the path
// as given and then with a leading slash stripped (spec §4.5
// try_get_file semantics).
func (l *Layout) FindFile(relPath string) (Entry, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	for _, candidate := range []string{relPath, strings.TrimPrefix(relPath, "/")} {
		for _, e := range l.entries {
			if e.RelPath == candidate {
				return e, true
			}
		}
	}
	return Entry{}, false
}

// DistinctValues returns the sorted, de-duplicated set of values entries
// carry for the given entity long-name, for the archive's supplemented
// GetSubjects/GetTasks/GetSessions/GetRuns convenience queries.
func (l *Layout) DistinctValues(longName string) []string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	seen := make(map[string]bool)
	var out []string
	for _, e := range l.entries {
		v, ok := e.Entities.GetString(longName)
		if !ok {
			if n, ok := e.Entities[longName]; ok {
				v = entityValueToString(n)
			} else {
				continue
			}
		}
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

func entityValueToString(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case int64:
		return strconv.FormatInt(x, 10)
	default:
		return ""
	}
}

func entityMapIncludes(have, want entity.Map) bool {
	for k, wv := range want {
		hv, ok := have[k]
		if !ok || !valuesEqual(hv, wv) {
			return false
		}
	}
	return true
}

func entityMapEqualIgnoringPathFields(have, want entity.Map) bool {
	filtered := have.Clone()
	delete(filtered, "extension")
	return entity.Equal(filtered, want)
}

func valuesEqual(a, b any) bool {
	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}
