// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package ringq

import (
	"fmt"
	"time"
	"unsafe"

	"code.hybscloud.com/atomix"
	"code.hybscloud.com/spin"
	"go.uber.org/zap"
)

// Region is a block of memory, possibly shared across process boundaries,
// that a Queue maps its header, control array, and data array onto. The
// default implementation (region_unix.go) backs it with a named POSIX
// shared-memory segment; tests may substitute a plain heap allocation.
type Region interface {
	// Base returns a pointer to the first byte of the region.
	Base() unsafe.Pointer
	// Size returns the region's length in bytes.
	Size() uintptr
	// Close unmaps the region. It does not remove the underlying segment.
	Close() error
	// Remove unlinks the underlying named segment. Only the owner should
	// call this, and only after Close.
	Remove() error
}

// RegionProvider creates or opens named Regions. Swappable via
// WithRegionProvider, mainly for tests.
type RegionProvider interface {
	// CreateOrOpen returns a Region backing name, sized to at least size
	// bytes, creating the underlying segment if it does not already exist.
	// created reports whether this call created the segment (not whether
	// this call won the header-initialization race; see initState).
	CreateOrOpen(name string, size uintptr) (region Region, created bool, err error)
	// AttachExisting opens a Region backing an already-created segment.
	AttachExisting(name string) (Region, error)
}

// Shared memory segment layout. A header of headerSize bytes is followed by
// capacity controlSlot entries, then capacity elements of T.
//
//	[0:8)   reserved      atomix.Uint64  reservation cursor (index:48, size:16)
//	[8:12)  capacity      uint32         plain store, fenced by initState
//	[12:16) elemSize      uint32         plain store, fenced by initState
//	[16:24) lastPublished atomix.Uint64  last-published watermark
//	[24:28) magic         atomix.Int32   headerMagic once initState == ready
//	[28:48) reserved for future use
//	[48:52) initState     atomix.Int32   0 uninit / 1 legacy / 2 initializing / 3 ready
//	[52:64) reserved for future use
const (
	headerSize           = 64
	headerCapacityOffset = 8
	headerElemSizeOffset = 12
	headerMagicOffset    = 24
	headerInitOffset     = 48

	headerMagic = int32(0x534C5131) // "SLQ1"
)

const (
	initUninitialized int32 = 0
	initLegacy        int32 = 1
	initInitializing  int32 = 2
	initReady         int32 = 3
)

const legacyGrace = 5 * time.Millisecond

// header is the typed view of the region's first headerSize bytes. Its
// field order and sizes must exactly reproduce the byte offsets above;
// init() below asserts that at package load time.
type header struct {
	reserved      atomix.Uint64
	capacity      uint32
	elemSize      uint32
	lastPublished atomix.Uint64
	magic         atomix.Int32
	_             [headerInitOffset - headerMagicOffset - 4]byte
	initState     atomix.Int32
	_             [headerSize - headerInitOffset - 4]byte
}

func init() {
	if unsafe.Sizeof(header{}) != headerSize {
		panic(fmt.Sprintf("ringq: header layout is %d bytes, want %d", unsafe.Sizeof(header{}), headerSize))
	}
	var h header
	if unsafe.Offsetof(h.capacity) != headerCapacityOffset ||
		unsafe.Offsetof(h.elemSize) != headerElemSizeOffset ||
		unsafe.Offsetof(h.lastPublished) != 16 ||
		unsafe.Offsetof(h.magic) != headerMagicOffset ||
		unsafe.Offsetof(h.initState) != headerInitOffset {
		panic("ringq: header field offsets do not match the documented layout")
	}
}

func regionSize[T any](capacity uint32) uintptr {
	var zero T
	return headerSize + uintptr(capacity)*unsafe.Sizeof(controlSlot{}) + uintptr(capacity)*unsafe.Sizeof(zero)
}

func controlSliceFromBase(base unsafe.Pointer, capacity uint32) []controlSlot {
	p := unsafe.Add(base, headerSize)
	return unsafe.Slice((*controlSlot)(p), capacity)
}

func dataSliceFromBase[T any](base unsafe.Pointer, capacity uint32) []T {
	p := unsafe.Add(base, headerSize+uintptr(capacity)*unsafe.Sizeof(controlSlot{}))
	return unsafe.Slice((*T)(p), capacity)
}

// initOwnerHeader writes a fresh header, control array, and implicit data
// array (left zeroed by the OS) for a region this process just created,
// then publishes it with a release store to initState so every field
// written above becomes visible to any process that acquire-loads it ready.
func initOwnerHeader[T any](base unsafe.Pointer, capacity uint32) {
	hdr := (*header)(base)
	hdr.magic.StoreRelease(headerMagic)
	hdr.reserved.StoreRelaxed(0)
	hdr.capacity = capacity
	hdr.elemSize = uint32(unsafe.Sizeof(*new(T)))
	hdr.lastPublished.StoreRelaxed(sentinel)

	control := controlSliceFromBase(base, capacity)
	for i := range control {
		control[i].publishedIndex.StoreRelaxed(sentinel)
	}

	hdr.initState.StoreRelease(initReady)
}

// waitReady spin-waits for another process to finish the init handshake on
// base, returning the observed terminal state (ready or legacy). It never
// returns initUninitialized or initInitializing; it returns ErrRegion on
// timeout.
func waitReady(base unsafe.Pointer, timeout time.Duration, logger *zap.Logger) (int32, error) {
	hdr := (*header)(base)
	deadline := time.Now().Add(timeout)
	legacyDeadline := time.Now().Add(legacyGrace)
	sw := spin.Wait{}

	for {
		state := hdr.initState.LoadAcquire()
		if state == initReady {
			return state, nil
		}
		if state == initLegacy && time.Now().After(legacyDeadline) {
			if hdr.capacity != 0 && hdr.elemSize != 0 {
				logger.Warn("ringq: region initialized by legacy writer, last-published watermark unavailable")
				return state, nil
			}
		}
		if time.Now().After(deadline) {
			return 0, fmt.Errorf("%w: timed out waiting for region initialization", ErrRegion)
		}
		time.Sleep(time.Millisecond)
		sw.Once()
	}
}

// validateHeader checks an already-ready (or legacy) header against T and,
// if checkCapacity is set, against expectedCapacity. Every failure is
// logged at Error on logger before it's returned.
func validateHeader[T any](base unsafe.Pointer, expectedCapacity uint32, checkCapacity bool, logger *zap.Logger) error {
	hdr := (*header)(base)
	capacity := hdr.capacity
	if !isPowerOfTwo(capacity) {
		err := fmt.Errorf("%w: region capacity %d is not a power of two", ErrRegion, capacity)
		logger.Error(err.Error())
		return err
	}
	if checkCapacity && capacity != expectedCapacity {
		err := fmt.Errorf("%w: region capacity %d does not match requested %d", ErrRegion, capacity, expectedCapacity)
		logger.Error(err.Error())
		return err
	}
	want := uint32(unsafe.Sizeof(*new(T)))
	if hdr.elemSize != want {
		err := fmt.Errorf("%w: region element size %d does not match %d", ErrRegion, hdr.elemSize, want)
		logger.Error(err.Error())
		return err
	}
	return nil
}
