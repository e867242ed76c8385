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

// Package ipc implements the single-slot shared-memory channel and named
// semaphore handshake of spec.md §4.2 and §6. The wire layout below is
// fixed and wire-incompatible to change, matching gdb_mem_t in
// gdb_load_file.c:18-31.
package ipc

import "encoding/binary"

const (
	// SegmentSize is the total fixed shared-memory segment size (spec.md
	// §6): 32 MiB.
	SegmentSize = 32 * 1024 * 1024

	offsetControllerHasWritten = 0
	offsetShimHasWritten       = 1
	offsetLength               = 2
	offsetData                 = 6

	// DataSize is the payload capacity: SegmentSize - 6 header bytes.
	DataSize = SegmentSize - offsetData
)

// ErrorSentinel is the literal five-byte payload the controller sends to
// mean "no image available for this path" (spec.md §4.2).
const ErrorSentinel = "error"

// header is a thin view over the shared-memory segment's fixed-layout
// header fields (spec.md §6 table). It never copies the backing bytes.
type header struct {
	mem []byte
}

func (h header) controllerHasWritten() bool {
	return h.mem[offsetControllerHasWritten] != 0
}

func (h header) setControllerHasWritten(v bool) {
	h.mem[offsetControllerHasWritten] = boolByte(v)
}

func (h header) shimHasWritten() bool {
	return h.mem[offsetShimHasWritten] != 0
}

func (h header) setShimHasWritten(v bool) {
	h.mem[offsetShimHasWritten] = boolByte(v)
}

func (h header) length() uint32 {
	return binary.LittleEndian.Uint32(h.mem[offsetLength : offsetLength+4])
}

func (h header) setLength(n uint32) {
	binary.LittleEndian.PutUint32(h.mem[offsetLength:offsetLength+4], n)
}

func (h header) data() []byte {
	return h.mem[offsetData:]
}

func boolByte(v bool) byte {
	if v {
		return 1
	}
	return 0
}
