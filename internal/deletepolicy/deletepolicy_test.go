package deletepolicy

import (
	"testing"

	"otaupdate/internal/diffplan"
	"otaupdate/internal/manifest"
)

func candidates(paths ...string) []diffplan.Action {
	var out []diffplan.Action
	for _, p := range paths {
		out = append(out, diffplan.Action{Kind: diffplan.DeleteExtra, Path: p})
	}
	return out
}

func TestFilterNeverDropsAll(t *testing.T) {
	kept := Filter(candidates("old.py", "old.raw"), Spec{Policy: Never}, manifest.New(), nil)
	if len(kept) != 0 {
		t.Errorf("Filter(never) kept %v, want none", kept)
	}
}

func TestFilterAllKeepsEverything(t *testing.T) {
	in := candidates("old.py", "old.raw")
	kept := Filter(in, Spec{Policy: All}, manifest.New(), nil)
	if len(kept) != 2 {
		t.Errorf("Filter(all) kept %d, want 2", len(kept))
	}
}

func TestFilterCustomExtensionsHonorsAllowlist(t *testing.T) {
	in := candidates("old.py", "data.raw")
	kept := Filter(in, Spec{Policy: CustomExtensions, Allowlist: []string{".py"}}, manifest.New(), nil)
	if len(kept) != 1 || kept[0].Path != "old.py" {
		t.Errorf("Filter(custom_extensions) = %v, want [old.py]", kept)
	}
}

func TestFilterManifestExtensionsRequiresBothAllowlistAndManifestMembership(t *testing.T) {
	remote := manifest.New()
	remote.Files["main.py"] = manifest.Entry{Path: "main.py", Version: "1"}

	in := candidates("old.py", "old.raw")
	kept := Filter(in, Spec{Policy: ManifestExtensions, Allowlist: []string{".py", ".raw"}}, remote, nil)
	if len(kept) != 1 || kept[0].Path != "old.py" {
		t.Errorf("Filter(manifest_extensions) = %v, want [old.py] (.raw not present in remote manifest)", kept)
	}
}

func TestFilterDegradesToNeverWithoutAllowlist(t *testing.T) {
	degraded := false
	in := candidates("old.py")
	kept := Filter(in, Spec{Policy: CustomExtensions}, manifest.New(), func() { degraded = true })
	if len(kept) != 0 {
		t.Errorf("Filter(custom_extensions, no allowlist) = %v, want none", kept)
	}
	if !degraded {
		t.Error("expected onDegrade to be called for an extension-scoped policy with empty allowlist")
	}
}
