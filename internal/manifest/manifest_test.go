package manifest

import (
	"path/filepath"
	"testing"

	"otaupdate/internal/fsiface"
)

func TestParsePreservesFileOrder(t *testing.T) {
	data := []byte(`{"version":"2.0.0","files":{"c.bin":{"version":"1"},"a.bin":{"version":"1"},"b.bin":{"version":"1"}}}`)
	m, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	got := m.OrderedPaths()
	want := []string{"c.bin", "a.bin", "b.bin"}
	if len(got) != len(want) {
		t.Fatalf("OrderedPaths() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("OrderedPaths()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestParseTolerantOfUnknownFields(t *testing.T) {
	data := []byte(`{"version":"1.0","unexpected":"value","files":{"a.bin":{"version":"1","unexpected_field":true}}}`)
	m, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if m.Version != "1.0" {
		t.Errorf("Version = %q, want %q", m.Version, "1.0")
	}
	if _, ok := m.Files["a.bin"]; !ok {
		t.Error("expected a.bin entry to survive unknown-field tolerance")
	}
}

func TestValidatePathRejectsEscape(t *testing.T) {
	cases := []struct {
		path    string
		wantErr bool
	}{
		{"a/b.bin", false},
		{"/etc/passwd", true},
		{"../escape.bin", true},
		{"a/../../escape.bin", true},
		{"", true},
	}
	for _, tc := range cases {
		err := ValidatePath(tc.path)
		if (err != nil) != tc.wantErr {
			t.Errorf("ValidatePath(%q) error = %v, wantErr %v", tc.path, err, tc.wantErr)
		}
	}
}

func TestIsNewer(t *testing.T) {
	cases := []struct {
		local, remote string
		force         bool
		want          bool
	}{
		{"1.0.0", "1.0.1", false, true},
		{"1.0.1", "1.0.0", false, true}, // any inequality counts as newer, direction is cosmetic
		{"1.0.0", "1.0.0", false, false},
		{"1.0.0", "1.0.0", true, true},
	}
	for _, tc := range cases {
		if got := IsNewer(tc.local, tc.remote, tc.force); got != tc.want {
			t.Errorf("IsNewer(%q, %q, %v) = %v, want %v", tc.local, tc.remote, tc.force, got, tc.want)
		}
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "versions.json")

	m := New()
	m.Version = "3.1.4"
	m.Files["x.bin"] = Entry{Path: "x.bin", Version: "3.1.4", MD5: "abc123"}
	m.SetOrder([]string{"x.bin"})

	if err := Save(fsiface.OSFileSystem{}, path, m); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, err := Load(fsiface.OSFileSystem{}, path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.Version != "3.1.4" {
		t.Errorf("loaded Version = %q, want %q", loaded.Version, "3.1.4")
	}
	if loaded.Files["x.bin"].MD5 != "abc123" {
		t.Errorf("loaded MD5 = %q, want %q", loaded.Files["x.bin"].MD5, "abc123")
	}
}

func TestLoadMissingFileReturnsEmptyManifest(t *testing.T) {
	m, err := Load(fsiface.OSFileSystem{}, filepath.Join(t.TempDir(), "nope.json"))
	if err != nil {
		t.Fatalf("Load() error = %v, want nil (missing file must not fail)", err)
	}
	if len(m.Files) != 0 {
		t.Errorf("expected empty manifest for missing file, got %d files", len(m.Files))
	}
}

func TestValidateRejectsMismatchedEmbeddedPath(t *testing.T) {
	m := New()
	m.Files["a.bin"] = Entry{Path: "b.bin", Version: "1"}
	if err := m.Validate(); err == nil {
		t.Error("Validate() = nil, want error for mismatched embedded path")
	}
}
