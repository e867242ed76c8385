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

package clock

import "time"

// Clock is the minimal time source every package that waits or paces
// retries depends on, so tests can substitute SimulatedClock for RealClock
// and control time without sleeping. Mirrors the Clock interfaces
// elsewhere in the codebase that previously appeared only as concrete
// {Real,Fake,Simulated}Clock types with matching method sets.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

var (
	_ Clock = RealClock{}
	_ Clock = (*FakeClock)(nil)
	_ Clock = (*SimulatedClock)(nil)
)
