// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package spawner

import "testing"

func TestDigestPreloaderConfig_Deterministic(t *testing.T) {
	env := map[string]string{"RAILS_ENV": "production", "PORT": "3000"}
	a := digestPreloaderConfig([]string{"ruby", "preloader.rb"}, env)
	b := digestPreloaderConfig([]string{"ruby", "preloader.rb"}, env)
	if a != b {
		t.Errorf("expected identical inputs to produce identical digests, got %s != %s", a, b)
	}
}

func TestDigestPreloaderConfig_EnvOrderIndependent(t *testing.T) {
	a := digestPreloaderConfig([]string{"ruby"}, map[string]string{"A": "1", "B": "2"})
	b := digestPreloaderConfig([]string{"ruby"}, map[string]string{"B": "2", "A": "1"})
	if a != b {
		t.Errorf("expected map iteration order not to affect the digest, got %s != %s", a, b)
	}
}

func TestDigestPreloaderConfig_SensitiveToChanges(t *testing.T) {
	base := digestPreloaderConfig([]string{"ruby", "preloader.rb"}, map[string]string{"RAILS_ENV": "production"})

	diffCommand := digestPreloaderConfig([]string{"ruby", "other.rb"}, map[string]string{"RAILS_ENV": "production"})
	if base == diffCommand {
		t.Error("expected a different command to change the digest")
	}

	diffEnv := digestPreloaderConfig([]string{"ruby", "preloader.rb"}, map[string]string{"RAILS_ENV": "staging"})
	if base == diffEnv {
		t.Error("expected a different environment value to change the digest")
	}
}
