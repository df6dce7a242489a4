// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package workdir

import (
	"archive/tar"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
)

// ExtractDiagnostics archives the envdump/ and response/ subtrees into
// a single zstd-compressed tar at destPath, for operators who want to
// retain a failed spawn's diagnostics after the WorkDir itself is
// dropped. Called by callers that extract residue before Drop, per
// §4.2's "on drop-after-error, callers may extract residue first."
func (w *WorkDir) ExtractDiagnostics(destPath string) error {
	out, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("workdir: creating diagnostics archive: %w", err)
	}
	defer out.Close()

	zw, err := zstd.NewWriter(out)
	if err != nil {
		return fmt.Errorf("workdir: creating zstd writer: %w", err)
	}
	defer zw.Close()

	tw := tar.NewWriter(zw)
	defer tw.Close()

	for _, subtree := range []string{EnvDumpDir, ResponseDir} {
		root := w.PathIn(subtree)
		if _, err := os.Stat(root); os.IsNotExist(err) {
			continue
		}
		if err := addTree(tw, w.root, root); err != nil {
			return err
		}
	}
	return nil
}

func addTree(tw *tar.Writer, workDirRoot, treeRoot string) error {
	return filepath.Walk(treeRoot, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		relPath, err := filepath.Rel(workDirRoot, path)
		if err != nil {
			return err
		}
		header, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		header.Name = filepath.ToSlash(relPath)
		if err := tw.WriteHeader(header); err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		file, err := os.Open(path)
		if err != nil {
			return err
		}
		defer file.Close()
		_, err = io.Copy(tw, file)
		return err
	})
}
