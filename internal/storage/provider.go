// Package storage defines the data directory file-system abstraction.
package storage

import "time"

// FileMeta is a lightweight description of a document file returned by List.
type FileMeta struct {
	Path      string
	Checksum  string
	UpdatedAt time.Time
}

// Provider is the interface for data directory file operations.
// All paths are slash separated and relative to the data root.
type Provider interface {
	// List returns metadata for every .md file under dir.
	List(dir string) ([]FileMeta, error)
	// Read returns the raw bytes of the file at path.
	Read(path string) ([]byte, error)
	// Write atomically writes content to path, creating parent directories.
	Write(path string, content []byte) error
	// Delete removes the file at path.
	Delete(path string) error
	// Move renames oldPath to newPath.
	Move(oldPath, newPath string) error
	// Mkdir creates dir and any missing parents.
	Mkdir(dir string) error
	// RemoveAll removes dir and everything below it.
	RemoveAll(dir string) error
	// Dirs returns every directory below the root, sorted.
	Dirs() ([]string, error)
	// Exists reports whether path exists and whether it is a directory.
	Exists(path string) (exists bool, isDir bool, err error)
}
