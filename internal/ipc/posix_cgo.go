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

//go:build linux

package ipc

/*
#cgo LDFLAGS: -lrt -lpthread
#include <fcntl.h>
#include <semaphore.h>
#include <sys/mman.h>
#include <sys/stat.h>
#include <errno.h>
#include <unistd.h>
#include <stdlib.h>

// sem_open's C signature is variadic; give cgo fixed-arity wrappers for
// the two call shapes this package needs. The shim side only ever opens a
// semaphore the controller already created (spec.md §4.1); the controller
// side creates it.
static sem_t *pgdb_sem_open_existing(const char *name) {
	return sem_open(name, 0);
}

static sem_t *pgdb_sem_open_create(const char *name, unsigned int value) {
	return sem_open(name, O_CREAT, 0600, value);
}
*/
import "C"

import (
	"fmt"
	"syscall"
	"unsafe"
)

// shmOpenExisting opens (without creating) a POSIX shared-memory object and
// returns its file descriptor, mirroring gdb_load_file.c's use of
// shm_open(name, O_RDWR, ...) with no O_CREAT.
func shmOpenExisting(name string) (int, error) {
	cname := C.CString(name)
	defer C.free(unsafe.Pointer(cname))
	fd, err := C.shm_open(cname, C.O_RDWR, 0)
	if fd < 0 {
		return -1, fmt.Errorf("shm_open %s: %w", name, err)
	}
	return int(fd), nil
}

// shmOpenCreate creates a POSIX shared memory object sized to size bytes
// and returns its file descriptor. Used only by the reference controller,
// which owns the segment's lifetime.
func shmOpenCreate(name string, size int64) (int, error) {
	cname := C.CString(name)
	defer C.free(unsafe.Pointer(cname))
	fd, err := C.shm_open(cname, C.O_CREAT|C.O_RDWR, 0600)
	if fd < 0 {
		return -1, fmt.Errorf("shm_open %s: %w", name, err)
	}
	if _, err := C.ftruncate(fd, C.off_t(size)); err != nil {
		C.close(fd)
		return -1, fmt.Errorf("ftruncate %s: %w", name, err)
	}
	return int(fd), nil
}

// shmUnlink removes a POSIX shared-memory object's name.
func shmUnlink(name string) error {
	cname := C.CString(name)
	defer C.free(unsafe.Pointer(cname))
	if _, err := C.shm_unlink(cname); err != nil {
		return fmt.Errorf("shm_unlink %s: %w", name, err)
	}
	return nil
}

// semHandle is an opaque POSIX named semaphore handle.
type semHandle struct {
	sem *C.sem_t
}

// semOpenExisting opens a named semaphore that must already exist (the
// shim side of the handshake: spec.md §4.1 says the shim never creates
// the semaphore, only the controller does).
func semOpenExisting(name string) (semHandle, error) {
	cname := C.CString(name)
	defer C.free(unsafe.Pointer(cname))
	sem, err := C.pgdb_sem_open_existing(cname)
	if sem == nil {
		return semHandle{}, fmt.Errorf("sem_open %s: %w", name, err)
	}
	return semHandle{sem: sem}, nil
}

// semOpenCreate creates a named semaphore initialized to value, used only
// by the reference controller.
func semOpenCreate(name string, value uint) (semHandle, error) {
	cname := C.CString(name)
	defer C.free(unsafe.Pointer(cname))
	sem, err := C.pgdb_sem_open_create(cname, C.uint(value))
	if sem == nil {
		return semHandle{}, fmt.Errorf("sem_open %s: %w", name, err)
	}
	return semHandle{sem: sem}, nil
}

func (h semHandle) wait() error {
	if _, err := C.sem_wait(h.sem); err != nil {
		return fmt.Errorf("sem_wait: %w", err)
	}
	return nil
}

// tryWait attempts a non-blocking acquire, returning ok=false (nil error)
// when the semaphore's count is currently zero.
func (h semHandle) tryWait() (ok bool, err error) {
	ret, cerr := C.sem_trywait(h.sem)
	if ret == 0 {
		return true, nil
	}
	if cerr == syscall.EAGAIN {
		return false, nil
	}
	return false, cerr
}

func (h semHandle) post() error {
	if _, err := C.sem_post(h.sem); err != nil {
		return fmt.Errorf("sem_post: %w", err)
	}
	return nil
}

func (h semHandle) close() error {
	if _, err := C.sem_close(h.sem); err != nil {
		return fmt.Errorf("sem_close: %w", err)
	}
	return nil
}

func semUnlink(name string) error {
	cname := C.CString(name)
	defer C.free(unsafe.Pointer(cname))
	if _, err := C.sem_unlink(cname); err != nil {
		return fmt.Errorf("sem_unlink %s: %w", name, err)
	}
	return nil
}
