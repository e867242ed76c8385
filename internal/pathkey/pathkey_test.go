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

package pathkey

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalizeExistingFile(t *testing.T) {
	dir := t.TempDir()
	f := filepath.Join(dir, "x")
	require.NoError(t, os.WriteFile(f, []byte("0123456789"), 0o644))

	got, err := Canonicalize(f)
	require.NoError(t, err)

	wantDir, err := filepath.EvalSymlinks(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(wantDir, "x"), got)
}

func TestCanonicalizeMissingFileStillDeterministic(t *testing.T) {
	dir := t.TempDir()
	f := filepath.Join(dir, "does-not-exist")

	got1, err := Canonicalize(f)
	require.NoError(t, err)
	got2, err := Canonicalize(f)
	require.NoError(t, err)

	assert.Equal(t, got1, got2)
	assert.Equal(t, "does-not-exist", filepath.Base(got1))
}

func TestCanonicalizeFollowsSymlink(t *testing.T) {
	dir := t.TempDir()
	real := filepath.Join(dir, "real")
	require.NoError(t, os.WriteFile(real, []byte("data"), 0o644))
	link := filepath.Join(dir, "link")
	require.NoError(t, os.Symlink(real, link))

	gotReal, err := Canonicalize(real)
	require.NoError(t, err)
	gotLink, err := Canonicalize(link)
	require.NoError(t, err)

	assert.Equal(t, gotReal, gotLink)
}

func TestIsProc(t *testing.T) {
	assert.True(t, IsProc("/proc"))
	assert.True(t, IsProc("/proc/self/maps"))
	assert.False(t, IsProc("/proceedings/x"))
	assert.False(t, IsProc("/tmp/proc"))
}
