// Package config provides TOML configuration loading utilities and the
// device updater's configuration types.
package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"github.com/BurntSushi/toml"
)

// GetConfigSearchPaths returns an ordered list of platform-appropriate
// locations to search for a named config file belonging to component
// ("device" or "hostbuilder").
func GetConfigSearchPaths(filename, component string) []string {
	var paths []string

	switch runtime.GOOS {
	case "windows":
		paths = append(paths, filepath.Join(os.Getenv("ProgramData"), "otaupdate", component, filename))
	case "darwin":
		paths = append(paths, filepath.Join("/Library/Application Support", "otaupdate", component, filename))
	default:
		paths = append(paths, filepath.Join("/etc/otaupdate", component, filename))
	}

	if homeDir, err := os.UserHomeDir(); err == nil {
		switch runtime.GOOS {
		case "windows":
			paths = append(paths, filepath.Join(homeDir, "AppData", "Local", "otaupdate", component, filename))
		case "darwin":
			paths = append(paths, filepath.Join(homeDir, "Library", "Application Support", "otaupdate", component, filename))
		default:
			paths = append(paths, filepath.Join(homeDir, ".config", "otaupdate", component, filename))
		}
	}

	if exePath, err := os.Executable(); err == nil {
		paths = append(paths, filepath.Join(filepath.Dir(exePath), filename))
	}
	paths = append(paths, filepath.Join(".", filename))

	return paths
}

// FindConfigFile searches GetConfigSearchPaths in order and returns the
// first file found.
func FindConfigFile(filename, component string) (string, []byte, error) {
	for _, path := range GetConfigSearchPaths(filename, component) {
		if data, err := os.ReadFile(path); err == nil {
			return path, data, nil
		}
	}
	return "", nil, fmt.Errorf("%s not found in any search path", filename)
}

// WriteTOML writes config to path as TOML, overwriting any existing file,
// atomically (write to a temp file, then rename).
func WriteTOML(path string, config interface{}) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(config); err != nil {
		return fmt.Errorf("encode config to toml: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write temp config file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename temp config file: %w", err)
	}
	return nil
}

// LoadTOML decodes a TOML file at path into config. Windows paths written
// as double-quoted TOML strings (e.g. "C:\path\to\dest") trip the TOML
// escape-sequence parser; on that specific failure this retries with
// offending path assignments rewritten to single-quoted (literal) strings.
func LoadTOML(path string, config interface{}) error {
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("config file not found: %w", err)
	}

	if _, err := toml.DecodeFile(path, config); err != nil {
		if strings.Contains(err.Error(), "invalid escape") {
			data, rerr := os.ReadFile(path)
			if rerr != nil {
				return fmt.Errorf("parse config file: %w", err)
			}
			re := regexp.MustCompile(`(?m)^(\s*\w+\s*=\s*)"([^"\\]*\\[^"]*)"`)
			transformed := re.ReplaceAllString(string(data), `$1'$2'`)
			if _, derr := toml.Decode(transformed, config); derr == nil {
				return nil
			}
		}
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}
