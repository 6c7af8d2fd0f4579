// Package hostbuild implements the host-side manifest builder: a source
// tree scan that produces a manifest the device core can consume
// unmodified, reusing the device's own canonicalization and encoding code
// so host and device provably agree on wire bytes.
package hostbuild

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"otaupdate/internal/fsiface"
	"otaupdate/internal/integrity"
	"otaupdate/internal/manifest"
)

// DefaultIgnoreGlobs are tree entries never included in a built manifest.
var DefaultIgnoreGlobs = []string{
	".git", ".svn", ".hg", ".DS_Store", "Thumbs.db", "*.tmp",
}

// Options configures a Build run.
type Options struct {
	SourceDir      string
	ManifestVer    string // applied to every entry unless PerFileVersion
	PerFileVersion bool   // true: each entry's version is its own MD5 (content-addressed)
	IgnoreGlobs    []string
	IOChunkSize    int
	Cache          *Cache

	SignKey        []byte
	SignatureField string
}

// Result is the outcome of a Build run.
type Result struct {
	Manifest   *manifest.Manifest
	FileCount  int
	CacheHits  int
	CacheMisses int
}

// Build walks opts.SourceDir and assembles a manifest describing every
// regular file found, honoring the build cache when present.
func Build(opts Options) (*Result, error) {
	if opts.SourceDir == "" {
		return nil, fmt.Errorf("source dir is required")
	}
	ignore := opts.IgnoreGlobs
	if ignore == nil {
		ignore = DefaultIgnoreGlobs
	}
	chunkSize := opts.IOChunkSize
	if chunkSize <= 0 {
		chunkSize = integrity.DefaultMD5ChunkSize
	}

	m := manifest.New()
	m.Version = opts.ManifestVer

	var relPaths []string
	res := &Result{}

	err := filepath.Walk(opts.SourceDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		name := info.Name()
		if matchesAny(ignore, name) {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if info.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(opts.SourceDir, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		md5sum, fromCache, err := hashWithCache(path, info, opts.Cache, chunkSize)
		if err != nil {
			return fmt.Errorf("hash %s: %w", rel, err)
		}
		if fromCache {
			res.CacheHits++
		} else {
			res.CacheMisses++
		}

		version := opts.ManifestVer
		if opts.PerFileVersion {
			version = md5sum
		}

		m.Files[rel] = manifest.Entry{Path: rel, Version: version, MD5: md5sum}
		relPaths = append(relPaths, rel)
		res.FileCount++
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk source tree: %w", err)
	}

	sort.Strings(relPaths)
	m.SetOrder(relPaths)

	if len(opts.SignKey) > 0 {
		sig, err := integrity.SignManifest(m, opts.SignKey, opts.SignatureField)
		if err != nil {
			return nil, fmt.Errorf("sign manifest: %w", err)
		}
		m.Signature = sig
	}

	res.Manifest = m
	return res, nil
}

func hashWithCache(path string, info os.FileInfo, cache *Cache, chunkSize int) (string, bool, error) {
	size := info.Size()
	modTime := info.ModTime().Unix()

	if cache != nil {
		if cached, ok := cache.Lookup(path, size, modTime); ok {
			return cached, true, nil
		}
	}

	f, err := os.Open(path)
	if err != nil {
		return "", false, err
	}
	defer f.Close()

	sum, err := integrity.HashFile(f, chunkSize)
	if err != nil {
		return "", false, err
	}

	if cache != nil {
		if err := cache.Put(path, size, modTime, sum); err != nil {
			return "", false, fmt.Errorf("update build cache: %w", err)
		}
	}
	return sum, false, nil
}

func matchesAny(globs []string, name string) bool {
	for _, g := range globs {
		if ok, _ := filepath.Match(g, name); ok {
			return true
		}
		if strings.EqualFold(g, name) {
			return true
		}
	}
	return false
}

// WriteManifest encodes and writes the manifest to outPath via the shared
// manifest package, so the bytes on disk are byte-identical to what a
// device-side Parse/Encode round trip would produce.
func WriteManifest(m *manifest.Manifest, outPath string) error {
	return manifest.Save(fsiface.OSFileSystem{}, outPath, m)
}
