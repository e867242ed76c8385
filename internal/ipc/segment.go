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

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// Segment is the memory-mapped view of the fixed-size POSIX shared-memory
// object carrying one request/response pair at a time (spec.md §4.2, §6).
// golang.org/x/sys/unix supplies Mmap/Munmap directly; it has no
// shm_open/shm_unlink wrappers, which live in posix_cgo.go.
type Segment struct {
	name string
	mem  []byte
}

// OpenSegment maps an already-created shared-memory segment (the shim
// side: it never creates the segment, only the controller does).
func OpenSegment(name string) (*Segment, error) {
	fd, err := shmOpenExisting(name)
	if err != nil {
		return nil, err
	}
	return mapSegment(name, fd)
}

// CreateSegment creates (or re-creates) the shared-memory segment sized to
// SegmentSize. Used only by the reference controller.
func CreateSegment(name string) (*Segment, error) {
	fd, err := shmOpenCreate(name, SegmentSize)
	if err != nil {
		return nil, err
	}
	return mapSegment(name, fd)
}

func mapSegment(name string, fd int) (*Segment, error) {
	defer unix.Close(fd)
	mem, err := unix.Mmap(fd, 0, SegmentSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("mmap %s: %w", name, err)
	}
	return &Segment{name: name, mem: mem}, nil
}

// Close unmaps the segment. It does not unlink the underlying shared
// memory object; that is a separate Unlink call.
func (s *Segment) Close() error {
	if s.mem == nil {
		return nil
	}
	err := unix.Munmap(s.mem)
	s.mem = nil
	return err
}

// Unlink removes the segment's POSIX name. Per spec.md §4.1/§5, the shim
// itself unlinks the segment at its own process teardown (not only the
// controller that created it) — a deliberately one-shot-per-hostname
// design: a second shim process tearing down under the same name prefix
// would pull the segment out from under a sibling still using it, which
// spec.md §5 documents as an accepted limitation, not something this
// package works around.
func (s *Segment) Unlink() error {
	return shmUnlink(s.name)
}

func (s *Segment) header() header {
	return header{mem: s.mem}
}
