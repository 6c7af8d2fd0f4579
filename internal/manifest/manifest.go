// Package manifest defines the manifest wire format shared by the device
// updater and the host-side builder, along with its canonical serialization.
package manifest

import (
	"encoding/json"
	"fmt"
	"path"
	"sort"
	"strings"

	"otaupdate/internal/fsiface"
)

// Entry describes a single file tracked by a manifest.
type Entry struct {
	Path    string `json:"path"`
	Version string `json:"version"`
	MD5     string `json:"md5,omitempty"`
}

// Manifest is the top-level wire document: a version, a set of file entries
// keyed by their relative path, and an optional HMAC signature.
type Manifest struct {
	Version   string           `json:"version"`
	Files     map[string]Entry `json:"files"`
	Signature string           `json:"signature,omitempty"`

	// order preserves the key order observed at parse time so iteration
	// over Files follows the manifest's own serialization order, as
	// required for stable diff-plan iteration.
	order []string
}

// New returns an empty manifest (the zero value local devices start from).
func New() *Manifest {
	return &Manifest{Files: make(map[string]Entry)}
}

// OrderedPaths returns file paths in the manifest's serialization order.
// Falls back to sorted order if the manifest was constructed directly
// rather than parsed.
func (m *Manifest) OrderedPaths() []string {
	if len(m.order) == len(m.Files) {
		return append([]string(nil), m.order...)
	}
	paths := make([]string, 0, len(m.Files))
	for p := range m.Files {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// SetOrder records an explicit file iteration order, used by the builder
// when it assembles a manifest from a directory walk.
func (m *Manifest) SetOrder(order []string) {
	m.order = append([]string(nil), order...)
}

// Validate checks structural invariants: no entry's path may escape the
// destination root (no ".." components, no absolute paths), and paths must
// be POSIX-relative.
func (m *Manifest) Validate() error {
	for p, entry := range m.Files {
		if err := ValidatePath(p); err != nil {
			return fmt.Errorf("manifest entry %q: %w", p, err)
		}
		if entry.Path != "" && entry.Path != p {
			return fmt.Errorf("manifest entry %q: embedded path %q does not match key", p, entry.Path)
		}
	}
	return nil
}

// ValidatePath rejects absolute paths and any path containing a ".."
// component, matching the containment invariant required of every
// manifest-driven filesystem operation.
func ValidatePath(p string) error {
	if p == "" {
		return fmt.Errorf("empty path")
	}
	if path.IsAbs(p) || strings.HasPrefix(p, "/") {
		return fmt.Errorf("absolute path not allowed")
	}
	cleaned := path.Clean(p)
	if cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return fmt.Errorf("path escapes destination root")
	}
	for _, seg := range strings.Split(p, "/") {
		if seg == ".." {
			return fmt.Errorf("path escapes destination root")
		}
	}
	return nil
}

// Parse decodes a manifest from JSON bytes. Unknown top-level and per-entry
// fields are tolerated for forward compatibility; malformed per-entry
// structures are skipped rather than failing the whole parse.
func Parse(data []byte) (*Manifest, error) {
	var raw struct {
		Version   string                     `json:"version"`
		Files     map[string]json.RawMessage `json:"files"`
		Signature string                     `json:"signature"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}

	m := &Manifest{
		Version:   raw.Version,
		Files:     make(map[string]Entry, len(raw.Files)),
		Signature: raw.Signature,
	}

	order, err := objectKeyOrder(data, "files")
	if err != nil {
		order = nil
	}
	seen := make(map[string]bool, len(raw.Files))
	for _, p := range order {
		entryRaw, ok := raw.Files[p]
		if !ok || seen[p] {
			continue
		}
		seen[p] = true
		var e Entry
		if err := json.Unmarshal(entryRaw, &e); err != nil {
			continue
		}
		if e.Path == "" {
			e.Path = p
		}
		m.Files[p] = e
	}
	// Any keys objectKeyOrder missed (e.g. parse fallback) still load.
	for p, entryRaw := range raw.Files {
		if seen[p] {
			continue
		}
		var e Entry
		if err := json.Unmarshal(entryRaw, &e); err != nil {
			continue
		}
		if e.Path == "" {
			e.Path = p
		}
		m.Files[p] = e
		order = append(order, p)
	}
	m.order = order

	return m, nil
}

// objectKeyOrder returns the key order of the nested object at fieldName by
// scanning the raw top-level document, since encoding/json discards object
// key order on decode into a map.
func objectKeyOrder(data []byte, fieldName string) ([]string, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil {
		return nil, err
	}
	raw, ok := top[fieldName]
	if !ok {
		return nil, nil
	}
	dec := json.NewDecoder(strings.NewReader(string(raw)))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("not an object")
	}
	var order []string
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, _ := keyTok.(string)
		order = append(order, key)
		var discard json.RawMessage
		if err := dec.Decode(&discard); err != nil {
			return nil, err
		}
	}
	return order, nil
}

// Encode serializes the manifest in its plain (non-canonical) wire form,
// used for the local manifest file and for the builder's default output.
func (m *Manifest) Encode() ([]byte, error) {
	out := struct {
		Version   string           `json:"version"`
		Files     map[string]Entry `json:"files"`
		Signature string           `json:"signature,omitempty"`
	}{Version: m.Version, Files: m.Files, Signature: m.Signature}
	return json.Marshal(&out)
}

// Load reads and parses a manifest file through fs. A missing file or a
// parse error both yield an empty manifest with version "" — the Manifest
// Store never fails outright on a missing local manifest, per the load
// contract.
func Load(fs fsiface.FS, path string) (*Manifest, error) {
	data, err := fs.ReadFile(path)
	if err != nil {
		return New(), nil
	}
	m, err := Parse(data)
	if err != nil {
		return New(), nil
	}
	return m, nil
}

// Save writes the manifest atomically through fs (write to a temp file,
// then rename).
func Save(fs fsiface.FS, path string, m *Manifest) error {
	data, err := m.Encode()
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	tmp := path + ".tmp"
	if err := fs.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write temp manifest: %w", err)
	}
	if err := fs.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename manifest into place: %w", err)
	}
	return nil
}

// IsNewer implements the version-gate predicate: any inequality between
// local and remote counts as newer, and equality only counts as newer when
// forced.
func IsNewer(localVersion, remoteVersion string, force bool) bool {
	if localVersion == remoteVersion {
		return force
	}
	return true
}

// ExtOf returns the lowercase file extension (including the leading dot) of
// a manifest-relative path, or "" when there is none.
func ExtOf(p string) string {
	ext := path.Ext(p)
	return strings.ToLower(ext)
}
