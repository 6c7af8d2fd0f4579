// Command hostbuilder scans a source tree and produces a manifest the
// device updater can consume, optionally HMAC-signing it and serving the
// tree for local testing.
package main

import (
	"encoding/hex"
	"flag"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"otaupdate/cmd/hostbuilder/devserver"
	"otaupdate/internal/hostbuild"
)

func main() {
	sourceDir := flag.String("src", ".", "Source directory to build a manifest from")
	outPath := flag.String("out", "manifest.json", "Output manifest path")
	version := flag.String("version", "", "Manifest-level version string")
	perFileVersion := flag.Bool("per-file-version", false, "Use each file's own MD5 as its version instead of the manifest-level version")
	signKeyHex := flag.String("sign-key-hex", "", "Hex-encoded HMAC key to sign the manifest; empty disables signing")
	signatureField := flag.String("signature-field", "signature", "Name of the signature field excluded from the HMAC input")
	cachePath := flag.String("cache", "", "Path to the build cache database; empty disables caching")
	serve := flag.Bool("serve", false, "Serve the source directory over HTTP after building")
	serveAddr := flag.String("serve-addr", "127.0.0.1:8099", "Address to listen on when -serve is set")
	flag.Parse()

	var cache *hostbuild.Cache
	if *cachePath != "" {
		c, err := hostbuild.OpenCache(*cachePath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to open build cache: %v\n", err)
			os.Exit(1)
		}
		defer c.Close()
		cache = c
	}

	var signKey []byte
	if *signKeyHex != "" {
		k, err := hex.DecodeString(*signKeyHex)
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid -sign-key-hex: %v\n", err)
			os.Exit(1)
		}
		signKey = k
	}

	absSrc, err := filepath.Abs(*sourceDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "resolve source dir: %v\n", err)
		os.Exit(1)
	}

	result, err := hostbuild.Build(hostbuild.Options{
		SourceDir:      absSrc,
		ManifestVer:    *version,
		PerFileVersion: *perFileVersion,
		Cache:          cache,
		SignKey:        signKey,
		SignatureField: *signatureField,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "build failed: %v\n", err)
		os.Exit(1)
	}

	if err := hostbuild.WriteManifest(result.Manifest, *outPath); err != nil {
		fmt.Fprintf(os.Stderr, "write manifest failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("wrote %s: %d files (%d cache hits, %d misses)\n", *outPath, result.FileCount, result.CacheHits, result.CacheMisses)

	if *serve {
		srv := devserver.New(absSrc)
		fmt.Printf("serving %s on %s\n", absSrc, *serveAddr)
		if err := http.ListenAndServe(*serveAddr, srv); err != nil {
			fmt.Fprintf(os.Stderr, "dev server failed: %v\n", err)
			os.Exit(1)
		}
	}
}
