// Package diffplan builds the ordered plan of download/skip/delete actions
// from a local and remote manifest pair.
package diffplan

import (
	"os"
	"path/filepath"

	"otaupdate/internal/manifest"
)

// ActionKind identifies the kind of a plan step.
type ActionKind int

const (
	Download ActionKind = iota
	Skip
	DeleteExtra
)

// Action is one ordered step of a Plan.
type Action struct {
	Kind        ActionKind
	Path        string
	FromVersion string // "" when the path did not previously exist locally
	ToVersion   string
	MD5         string
}

// Plan is the ordered action sequence: all downloads first (in manifest
// iteration order), then deletions.
type Plan struct {
	Actions []Action
}

// Downloads returns only the Download actions, in plan order.
func (p *Plan) Downloads() []Action {
	var out []Action
	for _, a := range p.Actions {
		if a.Kind == Download {
			out = append(out, a)
		}
	}
	return out
}

// DeleteExtras returns only the DeleteExtra actions, in plan order.
func (p *Plan) DeleteExtras() []Action {
	var out []Action
	for _, a := range p.Actions {
		if a.Kind == DeleteExtra {
			out = append(out, a)
		}
	}
	return out
}

// Skips returns only the Skip actions, in plan order.
func (p *Plan) Skips() []Action {
	var out []Action
	for _, a := range p.Actions {
		if a.Kind == Skip {
			out = append(out, a)
		}
	}
	return out
}

// Build diffs local against remote and produces the ordered plan. destDir
// is walked to discover on-disk files absent from remote.Files, which
// become DeleteExtra candidates for the delete-extras policy to filter.
// backupDirName, when non-empty, is the destDir-relative backup directory
// name and is excluded from the walk — the backup tree is never itself a
// deletion candidate.
func Build(local, remote *manifest.Manifest, destDir, backupDirName string) (*Plan, error) {
	plan := &Plan{}

	for _, p := range remote.OrderedPaths() {
		entry := remote.Files[p]
		localEntry, exists := local.Files[p]
		if !exists || localEntry.Version != entry.Version {
			fromVersion := ""
			if exists {
				fromVersion = localEntry.Version
			}
			plan.Actions = append(plan.Actions, Action{
				Kind:        Download,
				Path:        p,
				FromVersion: fromVersion,
				ToVersion:   entry.Version,
				MD5:         entry.MD5,
			})
		} else {
			plan.Actions = append(plan.Actions, Action{Kind: Skip, Path: p})
		}
	}

	candidates, err := extraneousFiles(destDir, remote, backupDirName)
	if err != nil {
		return nil, err
	}
	for _, p := range candidates {
		plan.Actions = append(plan.Actions, Action{Kind: DeleteExtra, Path: p})
	}

	return plan, nil
}

// extraneousFiles walks destDir and returns every regular file's
// destDir-relative POSIX path that is not a key of remote.Files.
func extraneousFiles(destDir string, remote *manifest.Manifest, backupDirName string) ([]string, error) {
	var extras []string
	if _, err := os.Stat(destDir); os.IsNotExist(err) {
		return nil, nil
	}
	err := filepath.Walk(destDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			if backupDirName != "" && info.Name() == backupDirName && filepath.Dir(path) == destDir {
				return filepath.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(destDir, path)
		if err != nil {
			return err
		}
		relPosix := filepath.ToSlash(rel)
		if _, ok := remote.Files[relPosix]; !ok {
			extras = append(extras, relPosix)
		}
		return nil
	})
	return extras, err
}
