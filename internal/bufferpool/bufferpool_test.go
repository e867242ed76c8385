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

package bufferpool

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type fakeOwner struct {
	forgotten bool
}

func (o *fakeOwner) Forget() { o.forgotten = true }

func TestInitialRefcountIsTwo(t *testing.T) {
	b := New([]byte("0123456789"))
	assert.Equal(t, 2, b.Refcount)
	assert.Equal(t, 10, b.Len())
}

func TestReleaseToZeroNotifiesOwner(t *testing.T) {
	b := New([]byte("data"))
	owner := &fakeOwner{}
	b.SetOwner(owner)

	b.Release() // descriptor's reference
	assert.False(t, owner.forgotten)
	b.Release() // filename entry's reference
	assert.True(t, owner.forgotten)
	assert.Equal(t, 0, b.Refcount)
}

func TestReleaseWithNilOwnerDoesNotPanic(t *testing.T) {
	b := New([]byte("data"))
	assert.NotPanics(t, func() {
		b.Release()
		b.Release()
	})
	assert.Equal(t, 0, b.Refcount)
}

func TestAcquireExtraReferenceForMmap(t *testing.T) {
	b := New([]byte("data"))
	b.Acquire() // an mmap mapping
	assert.Equal(t, 3, b.Refcount)
	b.Release() // munmap
	assert.Equal(t, 2, b.Refcount)
}
