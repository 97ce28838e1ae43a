// Package storage defines the file-system access used for image folders and
// export files.
package storage

// Provider is the interface for image and export file operations.
// Paths are host paths, not relative to any root.
type Provider interface {
	// List returns the files directly inside dir whose extension matches one
	// of exts (case-insensitive). Subdirectories are not descended.
	List(dir string, exts []string) ([]string, error)
	// Exists reports whether path names an existing regular file.
	Exists(path string) bool
	// Read returns the raw bytes of the file at path.
	Read(path string) ([]byte, error)
	// Write atomically writes content to path.
	Write(path string, content []byte) error
}
