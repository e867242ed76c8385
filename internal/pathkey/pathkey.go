// Copyright 2025 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package pathkey canonicalizes file-system paths into the identity used by
// every other component in this repository (SPEC_FULL.md §3 "Canonical
// path"). Canonicalization is the direct Go equivalent of the original
// shim's realpath(3) call in create_file_from_shmem.
package pathkey

import (
	"path/filepath"
	"strings"
)

// procPrefix is the path prefix that is never considered for
// virtualization, regardless of cache state (spec.md §3, §4.5, §8).
const procPrefix = "/proc"

// Canonicalize resolves path against the process's current working
// directory and symlinks, returning the canonical absolute form used as
// cache and registry keys. If the path (or some leading component of it)
// does not exist, the furthest resolvable prefix is combined with the
// unresolved remainder, so that a not-yet-created file still canonicalizes
// deterministically.
func Canonicalize(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	return resolveExisting(abs)
}

// resolveExisting resolves symlinks in the nearest existing ancestor of abs
// and rejoins the unresolved suffix, so a not-yet-created leaf component
// still canonicalizes deterministically (unlike realpath(3), which fails
// for a path that does not exist).
func resolveExisting(abs string) (string, error) {
	resolved, err := filepath.EvalSymlinks(abs)
	if err == nil {
		return resolved, nil
	}

	parent := filepath.Dir(abs)
	if parent == abs {
		return abs, nil
	}

	resolvedParent, err := resolveExisting(parent)
	if err != nil {
		return "", err
	}
	return filepath.Join(resolvedParent, filepath.Base(abs)), nil
}

// IsProc reports whether the canonical path falls under /proc and must
// therefore never be virtualized (spec.md §3, §8).
func IsProc(canonical string) bool {
	return canonical == procPrefix || strings.HasPrefix(canonical, procPrefix+"/")
}
