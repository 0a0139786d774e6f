package fs

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// ErrInjected marks a failure injected by [Flaky].
//
// Tests can assert on it with errors.Is while production code treats it as
// an ordinary I/O error.
var ErrInjected = errors.New("injected failure")

// Flaky wraps another FS and fails chosen operations.
//
// FailWriteTo makes every WriteFile for a given base name fail;
// FailWriteAfter fails the Nth write regardless of target. Both are safe
// for concurrent use, though the store itself is single-caller.
type Flaky struct {
	mu         sync.Mutex
	inner      FS
	failNames  map[string]bool
	writeCount int
	failAtNth  int // 1-based; 0 disables
}

// NewFlaky wraps inner with fault injection. Panics if inner is nil.
func NewFlaky(inner FS) *Flaky {
	if inner == nil {
		panic("inner fs is nil")
	}

	return &Flaky{inner: inner, failNames: make(map[string]bool)}
}

// FailWriteTo makes WriteFile fail for any path whose base name is name.
func (f *Flaky) FailWriteTo(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.failNames[name] = true
}

// FailWriteAfter makes the nth WriteFile call fail (1-based).
func (f *Flaky) FailWriteAfter(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.failAtNth = n
}

// Reset clears all injected failures and the write counter.
func (f *Flaky) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.failNames = make(map[string]bool)
	f.writeCount = 0
	f.failAtNth = 0
}

func (f *Flaky) ReadFile(path string) ([]byte, error) {
	return f.inner.ReadFile(path)
}

func (f *Flaky) WriteFile(path string, data []byte) error {
	f.mu.Lock()
	f.writeCount++
	nth := f.writeCount
	failName := f.failNames[filepath.Base(path)]
	failNth := f.failAtNth != 0 && nth == f.failAtNth
	f.mu.Unlock()

	if failName || failNth {
		return &os.PathError{Op: "write", Path: path, Err: ErrInjected}
	}

	return f.inner.WriteFile(path, data)
}

func (f *Flaky) Remove(path string) error {
	return f.inner.Remove(path)
}

func (f *Flaky) Stat(path string) (os.FileInfo, error) {
	return f.inner.Stat(path)
}

func (f *Flaky) ReadDir(path string) ([]fs.DirEntry, error) {
	return f.inner.ReadDir(path)
}
