// Package fs provides the small filesystem surface the database layer
// needs, behind an interface so tests can inject write failures at exact
// points of a multi-table transaction.
//
// Two implementations are provided:
//   - [Real]: production use, wraps the os package and atomic renames
//   - [Flaky]: testing use, fails selected operations on demand
package fs

import (
	"bytes"
	"io/fs"
	"os"
)

// FS defines the file operations used by the record store, backup manager
// and transaction coordinator.
type FS interface {
	// ReadFile reads the named file. See [os.ReadFile].
	ReadFile(path string) ([]byte, error)

	// WriteFile replaces the file at path with data, atomically and
	// durably (temp file + rename in the same directory).
	WriteFile(path string, data []byte) error

	// Remove removes the named file. See [os.Remove].
	Remove(path string) error

	// Stat returns file info. See [os.Stat].
	Stat(path string) (os.FileInfo, error)

	// ReadDir lists a directory. See [os.ReadDir].
	ReadDir(path string) ([]fs.DirEntry, error)
}

// Real is the production filesystem.
type Real struct{}

// NewReal returns the production filesystem implementation.
func NewReal() *Real {
	return &Real{}
}

func (*Real) ReadFile(path string) ([]byte, error) {
	return os.ReadFile(path) //nolint:gosec // paths come from validated config
}

func (*Real) WriteFile(path string, data []byte) error {
	return atomicWriteFile(path, bytes.NewReader(data))
}

func (*Real) Remove(path string) error {
	return os.Remove(path)
}

func (*Real) Stat(path string) (os.FileInfo, error) {
	return os.Stat(path)
}

func (*Real) ReadDir(path string) ([]fs.DirEntry, error) {
	return os.ReadDir(path)
}
