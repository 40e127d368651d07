// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package ringq provides a lock-free, multi-producer/multi-consumer ring
// buffer queue that can live on the private heap or in a named
// shared-memory segment shared across processes.
//
// The queue is intentionally lossy: Reserve and Publish never block a
// producer on a slow reader. A reader that falls more than the queue's
// capacity behind simply observes that some indices were skipped (see
// LossCount) instead of ever stalling the producer.
//
// # Quick Start
//
//	q, err := ringq.New[Event](1024)
//	if err != nil {
//	    // capacity wasn't a power of two
//	}
//	defer q.Close()
//
//	idx, _ := q.Reserve(1)
//	*q.At(idx) = Event{ID: 1}
//	q.Publish(idx, 1)
//
//	var cursor uint64
//	if ev, _, ok := q.Read(&cursor); ok {
//	    process(ev)
//	}
//
// # Basic Usage
//
// Producers reserve space, write into it, then publish it:
//
//	idx, err := q.Reserve(1)           // err on n == 0 or n > capacity
//	*q.At(idx) = value
//	q.Publish(idx, 1)
//
// Readers own a cursor and poll it:
//
//	var cursor uint64
//	for {
//	    v, _, ok := q.Read(&cursor)
//	    if !ok {
//	        break // caught up, nothing new yet
//	    }
//	    handle(v)
//	}
//
// # Common Patterns
//
// Broadcast fan-out (every reader sees every published item):
//
//	q, _ := ringq.New[Tick](4096)
//	for range numSubscribers {
//	    go func() {
//	        var cursor uint64
//	        for {
//	            v, _, ok := q.Read(&cursor)
//	            if ok {
//	                handle(v)
//	            }
//	        }
//	    }()
//	}
//
// Work-stealing fan-out (each published item goes to exactly one reader):
//
//	q, _ := ringq.New[Job](4096)
//	var cursor atomix.Uint64
//	for range numWorkers {
//	    go func() {
//	        for {
//	            job, _, ok := q.ReadShared(&cursor)
//	            if ok {
//	                job.Run()
//	            }
//	        }
//	    }()
//	}
//
// Cross-process pipeline (one process creates, others attach):
//
//	// Process A
//	q, err := ringq.NewShared[Frame]("camera0", 256)
//
//	// Process B
//	q, err := ringq.Attach[Frame]("camera0")
//
// # Deployment Modes
//
// New allocates a private Go heap backing and is only reachable within the
// creating process. NewShared creates (or attaches to, if another process
// got there first) a named shared-memory segment; Attach only ever
// attaches, returning [ErrRegion] if the segment doesn't already exist.
// Owned (Owned returns true) queues unlink the segment on Close; attached
// queues only unmap it.
//
// # Error Handling
//
// Construction can fail with [ErrInvalidArgument] (non-power-of-two
// capacity) or [ErrRegion] (shared-memory create/attach/validation
// failure). After construction, Reserve can fail with
// [ErrInvalidArgument] for a zero or over-long reservation; every other
// hot-path operation (Publish, Read, ReadShared, ReadLast) never returns
// an error — the empty case is reported as ok=false, a sentinel result,
// not a failure to retry against.
//
// # Capacity
//
// Capacity must be a power of two; New/NewShared return [ErrInvalidArgument]
// otherwise rather than silently rounding. There is no Len: an accurate
// count would require the same cross-core synchronization this queue is
// built to avoid. Use LossCount as a diagnostic signal for "falling behind"
// instead.
//
// # Thread Safety
//
// Reserve and Publish are safe to call from any number of goroutines (or
// processes, in shared mode) concurrently. Read is meant for one cursor
// per reader — passing the same *uint64 to two goroutines races the
// cursor update itself. ReadShared is built for exactly that case: pass
// every worker the same *atomix.Uint64 and each call atomically claims a
// distinct item. Reset is not synchronized against any of the above; the
// caller must ensure the queue is quiescent, which builds tagged
// ringq_debug enforce by panicking instead of racing.
//
// # Race Detection
//
// Go's race detector tracks explicit synchronization primitives (mutex,
// channel, WaitGroup) but not the happens-before relationships this queue
// establishes purely through acquire/release atomics on separate fields.
// The algorithm is correct; the detector may still flag false positives on
// the control-array/data-array split. Tests that would trip this check
// RaceEnabled and skip themselves when the detector is active.
//
// # Dependencies
//
// This package uses [code.hybscloud.com/atomix] for every atomic field
// (explicit acquire/release/relaxed ordering), [code.hybscloud.com/spin]
// for architecture-aware contention backoff, [golang.org/x/sys/unix] for
// the default shared-memory Region provider, and [go.uber.org/zap] for
// diagnostic logging during the shared-memory init handshake.
package ringq
