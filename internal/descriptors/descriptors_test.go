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

package descriptors

import (
	"testing"

	"github.com/ndryden/pgdb-fileshim/internal/bufferpool"
	"github.com/stretchr/testify/require"
)

func TestFirstDescriptorIDIsAtLeast65535(t *testing.T) {
	tbl := NewTable()
	buf := bufferpool.New([]byte("0123456789"))
	d := tbl.Create("/tmp/x", buf)
	require.GreaterOrEqual(t, d.ID, int64(FirstID))
}

func TestIDsAreMonotonicAcrossOpens(t *testing.T) {
	tbl := NewTable()
	buf := bufferpool.New([]byte("0123456789"))
	d1 := tbl.Create("/tmp/x", buf)
	buf.Acquire()
	d2 := tbl.Create("/tmp/x", buf)
	require.Greater(t, d2.ID, d1.ID)
}

func TestReadAdvancesOffsetAndReportsZeroAtEnd(t *testing.T) {
	tbl := NewTable()
	buf := bufferpool.New([]byte("0123456789"))
	d := tbl.Create("/tmp/x", buf)

	got := make([]byte, 4)
	n, err := tbl.Read(d.ID, got)
	require.NoError(t, err)
	require.Equal(t, 4, n)
	require.Equal(t, "0123", string(got[:n]))

	off, err := tbl.Seek(d.ID, 0, SeekEnd)
	require.NoError(t, err)
	require.EqualValues(t, 10, off)

	n, err = tbl.Read(d.ID, got[:1])
	require.NoError(t, err)
	require.Equal(t, 0, n)
}

func TestSeekCurWithZeroOffsetIsANoOp(t *testing.T) {
	tbl := NewTable()
	buf := bufferpool.New([]byte("0123456789"))
	d := tbl.Create("/tmp/x", buf)
	tbl.Seek(d.ID, 3, SeekSet)

	off, err := tbl.Seek(d.ID, 0, SeekCur)
	require.NoError(t, err)
	require.EqualValues(t, 3, off)
}

func TestSeekInvalidWhence(t *testing.T) {
	tbl := NewTable()
	buf := bufferpool.New([]byte("0123456789"))
	d := tbl.Create("/tmp/x", buf)
	_, err := tbl.Seek(d.ID, 0, Whence(99))
	require.ErrorIs(t, err, ErrInvalidWhence)
}

func TestPreadLeavesOffsetUnchanged(t *testing.T) {
	tbl := NewTable()
	buf := bufferpool.New([]byte("0123456789"))
	d := tbl.Create("/tmp/x", buf)
	tbl.Seek(d.ID, 5, SeekSet)

	got := make([]byte, 3)
	n, err := tbl.Pread(d.ID, got, 0)
	require.NoError(t, err)
	require.Equal(t, 3, n)
	require.Equal(t, "012", string(got))

	off, _ := tbl.Seek(d.ID, 0, SeekCur)
	require.EqualValues(t, 5, off)
}

func TestWriteIsUnsupported(t *testing.T) {
	tbl := NewTable()
	buf := bufferpool.New([]byte("0123456789"))
	d := tbl.Create("/tmp/x", buf)
	require.ErrorIs(t, tbl.Write(d.ID), ErrUnsupportedWrite)
}

func TestCloseRemovesDescriptorAndReleasesBuffer(t *testing.T) {
	tbl := NewTable()
	buf := bufferpool.New([]byte("0123456789"))
	d := tbl.Create("/tmp/x", buf)
	buf.Release() // filename entry's reference, for this test's purposes

	require.NoError(t, tbl.Close(d.ID))
	require.Nil(t, tbl.Lookup(d.ID))
	require.Equal(t, 0, buf.Refcount)

	_, err := tbl.Read(d.ID, make([]byte, 1))
	require.ErrorIs(t, err, ErrNotFound)
}

func TestTwoOpensOfSamePathAreIndependentlyReadable(t *testing.T) {
	tbl := NewTable()
	buf := bufferpool.New([]byte("0123456789"))
	d1 := tbl.Create("/tmp/x", buf)
	buf.Acquire()
	d2 := tbl.Create("/tmp/x", buf)
	require.NotEqual(t, d1.ID, d2.ID)

	got1 := make([]byte, 10)
	n1, _ := tbl.Read(d1.ID, got1)
	require.Equal(t, "0123456789", string(got1[:n1]))

	tbl.Close(d1.ID)

	got2 := make([]byte, 10)
	n2, _ := tbl.Read(d2.ID, got2)
	require.Equal(t, "0123456789", string(got2[:n2]))
}

func TestMmapThenMunmapLeavesOnlyFilenameEntryReference(t *testing.T) {
	// Mirrors spec.md §8's worked example: open (buffer created at the
	// spec'd initial refcount of 2: one for this descriptor, one for the
	// filename entry), mmap, munmap, no intervening close. munmap deletes
	// the descriptor, releasing both its own reference and the mapping's,
	// leaving only the filename entry's reference: final refcount 1.
	tbl := NewTable()
	buf := bufferpool.New([]byte("0123456789"))
	d := tbl.Create("/tmp/x", buf)
	require.Equal(t, 2, buf.Refcount)

	mapped, err := tbl.Mmap(d.ID, false)
	require.NoError(t, err)
	require.Equal(t, "0123456789", string(mapped))
	require.Equal(t, 3, buf.Refcount)

	found := tbl.Munmap(bufferAddr(buf.Bytes))
	require.True(t, found)
	require.Equal(t, 1, buf.Refcount)
}

func TestMmapFixedAddressFails(t *testing.T) {
	tbl := NewTable()
	buf := bufferpool.New([]byte("0123456789"))
	d := tbl.Create("/tmp/x", buf)
	_, err := tbl.Mmap(d.ID, true)
	require.ErrorIs(t, err, ErrFixedMmap)
}

func TestFgetsStopsAtNewline(t *testing.T) {
	tbl := NewTable()
	buf := bufferpool.New([]byte("line one\nline two"))
	d := tbl.Create("/tmp/x", buf)

	line, ok, err := tbl.Fgets(d.ID, 64)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "line one\n", string(line))

	line, ok, err = tbl.Fgets(d.ID, 64)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "line two", string(line))
}

func TestFgetsAtEOFReportsNotOK(t *testing.T) {
	tbl := NewTable()
	buf := bufferpool.New([]byte("x"))
	d := tbl.Create("/tmp/x", buf)
	tbl.Seek(d.ID, 0, SeekEnd)

	_, ok, err := tbl.Fgets(d.ID, 64)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestFeofTracksOffset(t *testing.T) {
	tbl := NewTable()
	buf := bufferpool.New([]byte("ab"))
	d := tbl.Create("/tmp/x", buf)

	eof, _ := tbl.Feof(d.ID)
	require.False(t, eof)

	tbl.Seek(d.ID, 0, SeekEnd)
	eof, _ = tbl.Feof(d.ID)
	require.True(t, eof)
}
