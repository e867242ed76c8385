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

// Command libpgdbshim is the LD_PRELOAD-able shared object built with
// `go build -buildmode=c-shared`: it exports a replacement for each libc
// entry point named in spec.md §6 (open, close, read, write, fcntl,
// fstat, lseek, pread, fopen, fdopen, fclose, fread, fwrite, fgetc,
// fgets, clearerr, feof, ferror, fileno, fileno_unlocked, fseeko64,
// ftello64, mmap, munmap). Every exported function either serves the
// call from internal/shim.Runtime or tail-calls the real libc symbol
// resolved lazily via dlsym(RTLD_NEXT, ...), matching
// gdb_load_file.c's own per-call dlsym resolution.
package main

import "C"

// main is required by -buildmode=c-shared but is never invoked; the
// library only ever runs as code loaded into a host process via
// LD_PRELOAD, never execed directly.
func main() {}

//export PgdbShimGood
func PgdbShimGood() C.int {
	if rt.Good() {
		return 1
	}
	return 0
}
