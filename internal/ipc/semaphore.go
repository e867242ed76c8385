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

package ipc

// Semaphore is a named POSIX semaphore guarding exclusive access to a
// Segment (spec.md §4.2: the semaphore serializes writers across
// processes sharing one segment).
type Semaphore struct {
	name   string
	handle semHandle
}

// OpenSemaphore opens a semaphore that must already exist. The shim never
// creates its own semaphore (spec.md §4.1).
func OpenSemaphore(name string) (*Semaphore, error) {
	h, err := semOpenExisting(name)
	if err != nil {
		return nil, err
	}
	return &Semaphore{name: name, handle: h}, nil
}

// CreateSemaphore creates a semaphore initialized to 1 (unlocked), used
// only by the reference controller.
func CreateSemaphore(name string) (*Semaphore, error) {
	h, err := semOpenCreate(name, 1)
	if err != nil {
		return nil, err
	}
	return &Semaphore{name: name, handle: h}, nil
}

// Acquire blocks until the semaphore is available.
func (s *Semaphore) Acquire() error {
	return s.handle.wait()
}

// TryAcquire attempts a non-blocking acquire.
func (s *Semaphore) TryAcquire() (bool, error) {
	return s.handle.tryWait()
}

// Release posts the semaphore.
func (s *Semaphore) Release() error {
	return s.handle.post()
}

// Close closes this process's handle to the semaphore.
func (s *Semaphore) Close() error {
	return s.handle.close()
}

// Unlink removes the semaphore's POSIX name. Per spec.md §4.1, the shim
// unlinks the semaphore at its own process teardown, same as Segment.
func (s *Semaphore) Unlink() error {
	return semUnlink(s.name)
}
