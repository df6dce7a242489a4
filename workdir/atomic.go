// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package workdir

import (
	"fmt"
	"os"
	"path/filepath"
)

// WriteFileAtomic writes data to path by writing to a temporary file
// in the same directory, fsyncing it, and renaming it into place, so
// a reader polling for the file's creation (§4.5 step 2a) never
// observes a partial write. The parent directory is created if
// missing and fsynced after the rename for durability.
func WriteFileAtomic(path string, data []byte, mode os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, dirMode); err != nil {
		return fmt.Errorf("workdir: creating parent directory %s: %w", dir, err)
	}

	temporaryPath := path + ".tmp"
	file, err := os.OpenFile(temporaryPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return fmt.Errorf("workdir: creating temporary file: %w", err)
	}

	if _, err := file.Write(data); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("workdir: writing temporary file: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("workdir: syncing temporary file: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("workdir: closing temporary file: %w", err)
	}

	if err := os.Rename(temporaryPath, path); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("workdir: renaming file into place: %w", err)
	}

	parent, err := os.Open(dir)
	if err == nil {
		parent.Sync()
		parent.Close()
	}

	return nil
}
