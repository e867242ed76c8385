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

// Names returns the POSIX object names for the shared-memory segment and
// named semaphore for a given host identifier, matching gdb_load_file.c's
// "/PGDBMem<hostname>" / "/PGDBSemaphore<hostname>" scheme (spec.md §6).
// hostPrefix is normally the machine hostname but is overridable (cfg) so
// concurrent test runs on one machine do not collide.
func Names(hostPrefix string) (segment, semaphore string) {
	return "/PGDBMem" + hostPrefix, "/PGDBSemaphore" + hostPrefix
}
