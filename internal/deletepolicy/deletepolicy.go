// Package deletepolicy filters DeleteExtra candidates according to the
// configured extraneous-file deletion policy.
package deletepolicy

import (
	"strings"

	"otaupdate/internal/diffplan"
	"otaupdate/internal/manifest"
)

// Policy identifies one of the four deletion strategies.
type Policy string

const (
	Never               Policy = "never"
	ManifestExtensions   Policy = "manifest_extensions"
	CustomExtensions     Policy = "custom_extensions"
	All                  Policy = "all"
)

// Spec configures the policy and, for the extension-scoped policies, an
// allowlist of extensions (including the leading dot, e.g. ".py").
type Spec struct {
	Policy    Policy
	Allowlist []string
}

// Filter applies the policy table from the source spec §4.7 to a
// candidate set of DeleteExtra actions, returning the subset that should
// actually be deleted. onDegrade, if non-nil, is called when an
// extension-scoped policy without an allowlist silently degrades to Never.
func Filter(candidates []diffplan.Action, spec Spec, remote *manifest.Manifest, onDegrade func()) []diffplan.Action {
	policy := spec.Policy
	allowlist := normalizeAllowlist(spec.Allowlist)

	if (policy == CustomExtensions || policy == ManifestExtensions) && len(allowlist) == 0 {
		if onDegrade != nil {
			onDegrade()
		}
		policy = Never
	}

	manifestExts := manifestExtensionSet(remote)

	var kept []diffplan.Action
	for _, c := range candidates {
		if keep(c.Path, policy, allowlist, manifestExts) {
			kept = append(kept, c)
		}
	}
	return kept
}

func keep(path string, policy Policy, allowlist map[string]bool, manifestExts map[string]bool) bool {
	switch policy {
	case Never:
		return false
	case All:
		return true
	case CustomExtensions:
		return allowlist[manifest.ExtOf(path)]
	case ManifestExtensions:
		ext := manifest.ExtOf(path)
		return allowlist[ext] && manifestExts[ext]
	default:
		return false
	}
}

func normalizeAllowlist(exts []string) map[string]bool {
	set := make(map[string]bool, len(exts))
	for _, e := range exts {
		set[strings.ToLower(e)] = true
	}
	return set
}

func manifestExtensionSet(remote *manifest.Manifest) map[string]bool {
	set := make(map[string]bool)
	if remote == nil {
		return set
	}
	for p := range remote.Files {
		set[manifest.ExtOf(p)] = true
	}
	return set
}
