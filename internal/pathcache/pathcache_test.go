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

package pathcache

import (
	"testing"

	"github.com/ndryden/pgdb-fileshim/internal/bufferpool"
	"github.com/stretchr/testify/assert"
)

func TestMissingLookup(t *testing.T) {
	c := New()
	assert.Nil(t, c.Lookup("/tmp/x"))
}

func TestNegativeEntryIsSticky(t *testing.T) {
	c := New()
	c.PutNegative("/tmp/y")

	e := c.Lookup("/tmp/y")
	if assert.NotNil(t, e) {
		assert.Equal(t, Negative, e.Status)
	}
}

func TestPositiveEntryRemovedWhenBufferReleased(t *testing.T) {
	c := New()
	buf := bufferpool.New([]byte("0123456789"))
	c.PutPositive("/tmp/x", buf)

	assert.Equal(t, 1, c.PositiveCount())

	buf.Release() // descriptor's reference
	assert.NotNil(t, c.Lookup("/tmp/x"))

	buf.Release() // filename entry's reference; buffer hits zero
	assert.Nil(t, c.Lookup("/tmp/x"))
	assert.Equal(t, 0, c.Len())
}
