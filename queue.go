// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package ringq

import (
	"fmt"
	"math"
	"unsafe"

	"code.hybscloud.com/atomix"
	"code.hybscloud.com/spin"
	"go.uber.org/zap"
)

// controlSlot is the per-index metadata cell shadowing the data array. Its
// publishedIndex carries the sentinel value until Publish writes the real
// reservation index into it with release ordering; a reader acquire-loading
// a non-sentinel value is guaranteed to see that slot's data write too.
type controlSlot struct {
	publishedIndex atomix.Uint64
	length         uint32
}

// closer abstracts the three ways a Queue's backing memory is released:
// nothing (heap, left to the GC), unmap-and-unlink (region owner), or
// unmap-only (region attacher). See lifetime.go.
type closer interface {
	close() error
}

// Queue is a lock-free, multi-producer/multi-consumer ring buffer of N
// (a power of two) elements of T. It is intentionally lossy: Reserve and
// Publish never block on a slow reader, so a reader that falls more than
// N reservations behind a producer will observe that some indices were
// skipped (see LossCount) rather than ever blocking the producer.
//
// A Queue is either owned (its backing memory was allocated or created by
// this call) or attached (mapped onto a region another process created).
// Either way the zero value is not usable; construct with New, NewShared,
// or Attach.
type Queue[T any] struct {
	mask     uint64
	capacity uint32

	reserved      *atomix.Uint64
	lastPublished *atomix.Uint64

	control []controlSlot
	data    []T

	reservedLocal      atomix.Uint64
	_                  pad
	lastPublishedLocal atomix.Uint64
	_                  pad

	lossCount     atomix.Uint64
	lossDetection bool

	lastPublishedValid bool
	owned              bool
	shared             bool

	logger   *zap.Logger
	lifetime closer
	closed   atomix.Bool

	debug debugGuard
}

// New constructs a private-heap Queue. capacity must be a power of two.
func New[T any](capacity uint32, opts ...Option) (*Queue[T], error) {
	if !isPowerOfTwo(capacity) {
		return nil, fmt.Errorf("%w: capacity %d is not a power of two", ErrInvalidArgument, capacity)
	}
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	q := &Queue[T]{
		mask:                uint64(capacity - 1),
		capacity:            capacity,
		control:             make([]controlSlot, capacity),
		data:                make([]T, capacity),
		lastPublishedValid:  true,
		owned:               true,
		lossDetection:       cfg.lossDetection,
		logger:              cfg.logger,
		lifetime:            heapCloser{},
	}
	q.reserved = &q.reservedLocal
	q.lastPublished = &q.lastPublishedLocal
	q.reservedLocal.StoreRelaxed(0)
	q.lastPublishedLocal.StoreRelaxed(sentinel)
	for i := range q.control {
		q.control[i].publishedIndex.StoreRelaxed(sentinel)
	}
	return q, nil
}

// NewShared creates or attaches to a named shared-memory Queue. If another
// process already created the segment, this call waits (bounded by
// WithAttachTimeout) for that process to finish initializing the header,
// then attaches to it instead of re-initializing — the capacity and
// element type of the existing segment win, and are validated against what
// this call asked for.
func NewShared[T any](name string, capacity uint32, opts ...Option) (*Queue[T], error) {
	if !isPowerOfTwo(capacity) {
		return nil, fmt.Errorf("%w: capacity %d is not a power of two", ErrInvalidArgument, capacity)
	}
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	provider := cfg.provider
	if provider == nil {
		provider = DefaultRegionProvider()
	}

	region, _, err := provider.CreateOrOpen(name, regionSize[T](capacity))
	if err != nil {
		return nil, err
	}
	base := region.Base()
	hdr := (*header)(base)

	if hdr.initState.CompareAndSwapAcqRel(initUninitialized, initInitializing) {
		initOwnerHeader[T](base, capacity)
		return wrapShared[T](base, capacity, true, region, cfg), nil
	}

	if _, err := waitReady(base, cfg.attachTimeout, cfg.logger); err != nil {
		region.Close()
		return nil, err
	}
	if err := validateHeader[T](base, capacity, true, cfg.logger); err != nil {
		region.Close()
		return nil, err
	}
	return wrapShared[T](base, hdr.capacity, false, region, cfg), nil
}

// Attach maps onto an already-created named shared-memory Queue without
// attempting to create it. Capacity is taken from the existing segment's
// header, not from the caller; loss detection follows the caller's options.
func Attach[T any](name string, opts ...Option) (*Queue[T], error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	provider := cfg.provider
	if provider == nil {
		provider = DefaultRegionProvider()
	}

	region, err := provider.AttachExisting(name)
	if err != nil {
		return nil, err
	}
	base := region.Base()

	if _, err := waitReady(base, cfg.attachTimeout, cfg.logger); err != nil {
		region.Close()
		return nil, err
	}
	if err := validateHeader[T](base, 0, false, cfg.logger); err != nil {
		region.Close()
		return nil, err
	}
	hdr := (*header)(base)
	return wrapShared[T](base, hdr.capacity, false, region, cfg), nil
}

func wrapShared[T any](base unsafe.Pointer, capacity uint32, owner bool, region Region, cfg config) *Queue[T] {
	hdr := (*header)(base)
	q := &Queue[T]{
		mask:                uint64(capacity - 1),
		capacity:            capacity,
		control:             controlSliceFromBase(base, capacity),
		data:                dataSliceFromBase[T](base, capacity),
		reserved:            &hdr.reserved,
		lastPublished:       &hdr.lastPublished,
		lastPublishedValid:  hdr.magic.LoadAcquire() == headerMagic,
		owned:               owner,
		shared:              true,
		lossDetection:       cfg.lossDetection,
		logger:              cfg.logger,
	}
	q.lossCount.StoreRelaxed(0)
	if owner {
		q.lifetime = &regionOwner{region: region}
	} else {
		q.lifetime = &regionAttacher{region: region}
	}
	return q
}

// Reserve claims n contiguous slots for writing and returns the logical
// index of the first one. The returned index must be passed to At to
// obtain the storage to write into, and then to Publish to make the write
// visible to readers. Reserve never blocks: a producer outrunning every
// reader simply overwrites not-yet-read slots.
//
// If the reservation would straddle the physical end of the buffer, the
// abandoned slots before the wrap are marked so readers skip over them,
// and the returned index starts a fresh lap at the beginning instead.
func (q *Queue[T]) Reserve(n uint32) (uint64, error) {
	if n == 0 {
		return 0, fmt.Errorf("%w: reservation length must be > 0", ErrInvalidArgument)
	}
	if n > q.capacity {
		return 0, fmt.Errorf("%w: reservation length %d exceeds capacity %d", ErrInvalidArgument, n, q.capacity)
	}
	if n > math.MaxUint16 {
		return 0, fmt.Errorf("%w: reservation length %d exceeds maximum %d", ErrInvalidArgument, n, math.MaxUint16)
	}
	q.debug.enterWrite()
	defer q.debug.exitWrite()
	if n == 1 {
		return q.reserveOne(), nil
	}
	return q.reserveMany(n), nil
}

func (q *Queue[T]) reserveOne() uint64 {
	const step = uint64(1) << 16
	prev := q.reserved.AddAcqRel(step) - step
	index, prevSize := unpack(prev)
	if prevSize != 1 {
		expected := pack(index+1, prevSize)
		desired := pack(index+1, 1)
		q.reserved.CompareAndSwapAcqRel(expected, desired)
	}
	return index
}

func (q *Queue[T]) reserveMany(n uint32) uint64 {
	reserved := q.reserved.LoadRelaxed()
	sw := spin.Wait{}
	for {
		index, _ := unpack(reserved)
		idx := uint32(index & q.mask)
		wrapped := idx+n > q.capacity

		advanced := index
		if wrapped {
			advanced = index + uint64(q.capacity-idx)
		}
		next := pack(advanced+uint64(n), uint16(n))

		if q.reserved.CompareAndSwapAcqRel(reserved, next) {
			if wrapped {
				skip := &q.control[idx]
				skip.length = n
				skip.publishedIndex.StoreRelease(advanced)
			}
			return advanced
		}
		reserved = q.reserved.LoadRelaxed()
		sw.Once()
	}
}

// At returns a pointer to the element at the given logical index, for
// writing after Reserve and before Publish, or for reading the element
// returned by Read/ReadShared/ReadLast by equivalent index arithmetic.
func (q *Queue[T]) At(index uint64) *T {
	return &q.data[index&q.mask]
}

// Publish makes the n slots starting at index (as returned by Reserve)
// visible to readers. index and n must match a prior Reserve call exactly.
func (q *Queue[T]) Publish(index uint64, n uint32) {
	q.debug.enterWrite()
	defer q.debug.exitWrite()

	slot := &q.control[index&q.mask]
	slot.length = n
	slot.publishedIndex.StoreRelease(index)

	if !q.lastPublishedValid {
		return
	}
	current := q.lastPublished.LoadRelaxed()
	sw := spin.Wait{}
	for current == sentinel || current < index {
		if q.lastPublished.CompareAndSwapAcqRel(current, index) {
			return
		}
		current = q.lastPublished.LoadRelaxed()
		sw.Once()
	}
}

// Read advances an independent reader cursor and returns the next
// published slot, or ok=false if nothing new has been published. Each
// reader owns its cursor; broadcast delivery falls out of giving every
// reader its own *uint64 starting at 0 or InitialReadingIndex.
func (q *Queue[T]) Read(cursor *uint64) (ptr *T, length uint32, ok bool) {
	q.debug.enterRead()
	defer q.debug.exitRead()

	var index uint64
	var slot *controlSlot
	sw := spin.Wait{}
	for {
		idx := *cursor & q.mask
		slot = &q.control[idx]
		index = slot.publishedIndex.LoadAcquire()

		if index != sentinel {
			if reservedIndex, _ := unpack(q.reserved.LoadRelaxed()); reservedIndex < index {
				*cursor = 0
				continue
			}
			if q.lossDetection && index > *cursor && (index&q.mask) == idx {
				q.addLoss(index - *cursor)
			}
		}

		if index == sentinel || index < *cursor {
			return nil, 0, false
		}
		if index > *cursor && (index&q.mask) != idx {
			*cursor = index
			sw.Once()
			continue
		}
		break
	}

	data := &q.data[*cursor&q.mask]
	n := slot.length
	*cursor = index + uint64(n)
	return data, n, true
}

// ReadShared is Read's work-stealing counterpart: independent goroutines
// share one atomic cursor and each successful call atomically claims a
// distinct slot, so the stream is distributed across callers rather than
// broadcast to each of them.
func (q *Queue[T]) ReadShared(cursor *atomix.Uint64) (ptr *T, length uint32, ok bool) {
	q.debug.enterRead()
	defer q.debug.exitRead()

	sw := spin.Wait{}
	for {
		current := cursor.LoadRelaxed()
		idx := current & q.mask
		slot := &q.control[idx]
		index := slot.publishedIndex.LoadAcquire()

		if index != sentinel {
			if reservedIndex, _ := unpack(q.reserved.LoadRelaxed()); reservedIndex < index {
				cursor.StoreRelaxed(0)
				continue
			}
		}

		if index == sentinel || index < current {
			return nil, 0, false
		}

		var overrun uint64
		if q.lossDetection && index > current && (index&q.mask) == idx {
			overrun = index - current
		}

		if index > current && (index&q.mask) != idx {
			cursor.CompareAndSwapRelaxed(current, index)
			continue
		}

		next := index + uint64(slot.length)
		if cursor.CompareAndSwapRelaxed(current, next) {
			if overrun != 0 {
				q.addLoss(overrun)
			}
			return &q.data[current&q.mask], slot.length, true
		}
		sw.Once()
	}
}

// ReadLast returns the most recently published slot, independent of any
// reader cursor, or ok=false if nothing has ever been published. If the
// queue attached to a region initialized by a legacy (pre-magic) writer,
// it falls back to deriving the last publish from the reservation word
// itself instead of the watermark, which that writer never maintained.
func (q *Queue[T]) ReadLast() (ptr *T, length uint32, ok bool) {
	if q.lastPublishedValid {
		last := q.lastPublished.LoadAcquire()
		if last == sentinel {
			return nil, 0, false
		}
		return &q.data[last&q.mask], q.control[last&q.mask].length, true
	}

	reserved := q.reserved.LoadRelaxed()
	index, size := unpack(reserved)
	if index == 0 {
		return nil, 0, false
	}
	last := index - uint64(size)
	return &q.data[last&q.mask], size, true
}

// Reset clears every slot and rewinds the reservation, watermark, and loss
// counters to their initial state. It is not itself synchronized against
// concurrent Reserve/Publish/Read calls; the caller must ensure the queue
// is quiescent (built with the ringq_debug tag, Reset panics instead of
// racing if it isn't).
func (q *Queue[T]) Reset() {
	q.debug.checkQuiescent()

	for i := range q.control {
		q.control[i].publishedIndex.StoreRelaxed(sentinel)
		q.control[i].length = 0
	}
	q.reserved.StoreRelease(0)
	if q.lastPublishedValid {
		q.lastPublished.StoreRelaxed(sentinel)
	}
	q.lossCount.StoreRelaxed(0)
}

// Capacity returns the queue's slot count, a power of two.
func (q *Queue[T]) Capacity() uint32 { return q.capacity }

// LossCount returns the number of reservation indices this Queue instance
// has observed being overwritten before it could read them. It is always
// zero if WithLossDetection(false) was used, and is process-local even in
// shared-memory mode: each attacher counts its own losses independently.
func (q *Queue[T]) LossCount() uint64 {
	if !q.lossDetection {
		return 0
	}
	return q.lossCount.LoadRelaxed()
}

// InitialReadingIndex returns the queue's current reservation index. A new
// reader that wants to see only items published from now on, rather than
// from the beginning of the queue's history, should seed its cursor with
// this value instead of 0.
func (q *Queue[T]) InitialReadingIndex() uint64 {
	index, _ := unpack(q.reserved.LoadRelaxed())
	return index
}

// Owned reports whether this Queue allocated or created its backing
// memory, as opposed to attaching to a region another process created.
func (q *Queue[T]) Owned() bool { return q.owned }

// Shared reports whether this Queue's backing memory is a shared-memory
// region rather than a private heap allocation.
func (q *Queue[T]) Shared() bool { return q.shared }

// Close releases the queue's backing resources: a no-op for a private-heap
// queue, unmap for an attacher, and unmap-then-unlink for a region owner.
// Close is idempotent.
func (q *Queue[T]) Close() error {
	if !q.closed.CompareAndSwapAcqRel(false, true) {
		return nil
	}
	return q.lifetime.close()
}

func (q *Queue[T]) addLoss(delta uint64) {
	sw := spin.Wait{}
	for {
		cur := q.lossCount.LoadRelaxed()
		if q.lossCount.CompareAndSwapRelaxed(cur, cur+delta) {
			return
		}
		sw.Once()
	}
}
