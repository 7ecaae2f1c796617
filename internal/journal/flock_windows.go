//go:build windows

package journal

import "os"

// Cross-process locking is not implemented on Windows.
func lockFile(_ *os.File) error   { return nil }
func unlockFile(_ *os.File) error { return nil }
