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

package metrics

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewRegistersEveryInstrumentWithoutError(t *testing.T) {
	m, err := New()
	require.NoError(t, err)
	require.NotNil(t, m)
}

func TestEveryMethodIsSafeOnARealMetrics(t *testing.T) {
	m, err := New()
	require.NoError(t, err)

	require.NotPanics(t, func() {
		m.RoundTrip()
		m.CacheHit()
		m.CacheMiss()
		m.NegativeHit()
		m.DescriptorOpened()
		m.DescriptorClosed()
		m.SetLiveBuffers(3)
		m.SetLiveDescriptors(2)
	})
}

func TestEveryMethodIsNilReceiverSafe(t *testing.T) {
	var m *Metrics

	require.NotPanics(t, func() {
		m.RoundTrip()
		m.CacheHit()
		m.CacheMiss()
		m.NegativeHit()
		m.DescriptorOpened()
		m.DescriptorClosed()
		m.SetLiveBuffers(1)
		m.SetLiveDescriptors(1)
	})
}
