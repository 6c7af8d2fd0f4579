// Package fsiface defines the abstract filesystem primitives the core
// consumes, with a default os-backed implementation. The source spec
// treats these as an external collaborator, specified only by this
// interface.
package fsiface

import (
	"os"
	"path/filepath"
)

// FS is the narrow set of filesystem primitives the Orchestrator and its
// subcomponents depend on.
type FS interface {
	Open(name string) (*os.File, error)
	Create(name string) (*os.File, error)
	Stat(name string) (os.FileInfo, error)
	Rename(oldpath, newpath string) error
	Remove(name string) error
	RemoveAll(path string) error
	MkdirAll(path string, perm os.FileMode) error
	ReadFile(name string) ([]byte, error)
	WriteFile(name string, data []byte, perm os.FileMode) error
	Walk(root string, fn filepath.WalkFunc) error
}

// OSFileSystem is the default FS, backed directly by package os.
type OSFileSystem struct{}

func (OSFileSystem) Open(name string) (*os.File, error)   { return os.Open(name) }
func (OSFileSystem) Create(name string) (*os.File, error) { return os.Create(name) }
func (OSFileSystem) Stat(name string) (os.FileInfo, error) { return os.Stat(name) }
func (OSFileSystem) Rename(oldpath, newpath string) error  { return os.Rename(oldpath, newpath) }
func (OSFileSystem) Remove(name string) error              { return os.Remove(name) }
func (OSFileSystem) RemoveAll(path string) error            { return os.RemoveAll(path) }
func (OSFileSystem) MkdirAll(path string, perm os.FileMode) error {
	return os.MkdirAll(path, perm)
}
func (OSFileSystem) ReadFile(name string) ([]byte, error) { return os.ReadFile(name) }
func (OSFileSystem) WriteFile(name string, data []byte, perm os.FileMode) error {
	return os.WriteFile(name, data, perm)
}
func (OSFileSystem) Walk(root string, fn filepath.WalkFunc) error { return filepath.Walk(root, fn) }
