// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package workdir

import (
	"os"
	"path/filepath"
	"testing"
)

func TestCreateLayout(t *testing.T) {
	base := t.TempDir()
	w, err := Create(base)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer w.Drop()

	for _, dir := range []string{ResponseDir, ResponseStepsDir, ResponseErrorDir, EnvDumpDir, EnvDumpAnnotationsDir} {
		info, err := os.Stat(w.PathIn(dir))
		if err != nil {
			t.Fatalf("stat %s: %v", dir, err)
		}
		if !info.IsDir() {
			t.Fatalf("%s is not a directory", dir)
		}
	}

	info, err := os.Stat(w.Path())
	if err != nil {
		t.Fatalf("stat root: %v", err)
	}
	if info.Mode().Perm() != dirMode {
		t.Fatalf("root mode = %o, want %o", info.Mode().Perm(), dirMode)
	}
}

func TestCreateDistinctPaths(t *testing.T) {
	base := t.TempDir()
	a, err := Create(base)
	if err != nil {
		t.Fatal(err)
	}
	defer a.Drop()
	b, err := Create(base)
	if err != nil {
		t.Fatal(err)
	}
	defer b.Drop()

	if a.Path() == b.Path() {
		t.Fatalf("two WorkDirs got the same path: %s", a.Path())
	}
}

func TestDropRemovesTree(t *testing.T) {
	base := t.TempDir()
	w, err := Create(base)
	if err != nil {
		t.Fatal(err)
	}
	if err := WriteFileAtomic(w.PathIn(ArgsFile), []byte("{}"), 0600); err != nil {
		t.Fatal(err)
	}

	if err := w.Drop(); err != nil {
		t.Fatalf("Drop: %v", err)
	}
	if _, err := os.Stat(w.Path()); !os.IsNotExist(err) {
		t.Fatalf("expected work dir to be gone, stat err = %v", err)
	}

	// Invariant 4 (§8): "WorkDir contents are absent from the
	// filesystem after the spawn's owning session is released."
	if err := w.Drop(); err != nil {
		t.Fatalf("second Drop should be a no-op, got: %v", err)
	}
}

func TestWriteFileAtomicNoPartialWriteVisible(t *testing.T) {
	base := t.TempDir()
	path := filepath.Join(base, "sub", "finish")

	if err := WriteFileAtomic(path, []byte("1"), 0600); err != nil {
		t.Fatalf("WriteFileAtomic: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading written file: %v", err)
	}
	if string(data) != "1" {
		t.Fatalf("content = %q, want %q", data, "1")
	}

	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Fatalf("temporary file should not survive a successful write")
	}
}

func TestStepStateAndDurationFiles(t *testing.T) {
	base := t.TempDir()
	w, err := Create(base)
	if err != nil {
		t.Fatal(err)
	}
	defer w.Drop()

	statePath := w.StepStateFile("spawning_kit_preparation")
	if err := WriteFileAtomic(statePath, []byte("STEP_PERFORMED"), 0600); err != nil {
		t.Fatal(err)
	}
	durationPath := w.StepDurationFile("spawning_kit_preparation")
	if err := WriteFileAtomic(durationPath, []byte("12000"), 0600); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(statePath)
	if err != nil || string(data) != "STEP_PERFORMED" {
		t.Fatalf("state file content = %q, err = %v", data, err)
	}
}

func TestExtractDiagnosticsProducesArchive(t *testing.T) {
	base := t.TempDir()
	w, err := Create(base)
	if err != nil {
		t.Fatal(err)
	}
	defer w.Drop()

	if err := WriteFileAtomic(w.PathIn(EnvDumpEnvVarsFile), []byte("PATH=/bin\n"), 0600); err != nil {
		t.Fatal(err)
	}

	archivePath := filepath.Join(base, "diagnostics.tar.zst")
	if err := w.ExtractDiagnostics(archivePath); err != nil {
		t.Fatalf("ExtractDiagnostics: %v", err)
	}

	info, err := os.Stat(archivePath)
	if err != nil {
		t.Fatalf("stat archive: %v", err)
	}
	if info.Size() == 0 {
		t.Fatal("expected non-empty archive")
	}
}
