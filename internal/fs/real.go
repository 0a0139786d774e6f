package fs

import (
	"fmt"
	"io"

	"github.com/natefinch/atomic"
)

// atomicWriteFile writes data to path via a temp file in the same
// directory followed by a rename, so readers never observe a partially
// written table.
func atomicWriteFile(path string, r io.Reader) error {
	err := atomic.WriteFile(path, r)
	if err != nil {
		return fmt.Errorf("atomic write %q: %w", path, err)
	}

	return nil
}
