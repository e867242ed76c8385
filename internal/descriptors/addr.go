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

import "unsafe"

// bufferAddr returns the address of b's first byte, used to key Munmap's
// address-based lookup (spec.md §4.5). Every virtual mmap hands the
// caller this exact address (see cmd/libpgdbshim), so the comparison in
// LookupByBufferAddr is exact pointer identity, not a range check.
func bufferAddr(b []byte) uintptr {
	return uintptr(unsafe.Pointer(&b[0]))
}
