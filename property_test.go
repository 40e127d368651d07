// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package ringq_test

import (
	"testing"

	"ringq.dev/ringq"
)

// TestNoLossWithinCapacity verifies invariant: a producer that never
// publishes more than capacity reservations ahead of a reader causes no
// loss, however interleaved the publishes are.
func TestNoLossWithinCapacity(t *testing.T) {
	q, err := ringq.New[int](8)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer q.Close()

	var cursor uint64
	for round := 0; round < 50; round++ {
		idx, err := q.Reserve(1)
		if err != nil {
			t.Fatalf("Reserve: %v", err)
		}
		*q.At(idx) = round
		q.Publish(idx, 1)

		v, _, ok := q.Read(&cursor)
		if !ok {
			t.Fatalf("round %d: Read: got ok=false", round)
		}
		if *v != round {
			t.Fatalf("round %d: got %d, want %d", round, *v, round)
		}
	}
	if got := q.LossCount(); got != 0 {
		t.Fatalf("LossCount: got %d, want 0", got)
	}
}

// TestBroadcastDeliversToAllReaders verifies invariant: every reader with
// its own cursor observes every published item, independent of how far
// ahead or behind other readers are (as long as none falls more than
// capacity items behind).
func TestBroadcastDeliversToAllReaders(t *testing.T) {
	const n = 16
	q, err := ringq.New[int](32)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer q.Close()

	for i := 0; i < n; i++ {
		idx, _ := q.Reserve(1)
		*q.At(idx) = i
		q.Publish(idx, 1)
	}

	for reader := 0; reader < 3; reader++ {
		var cursor uint64
		for want := 0; want < n; want++ {
			v, _, ok := q.Read(&cursor)
			if !ok {
				t.Fatalf("reader %d item %d: got ok=false", reader, want)
			}
			if *v != want {
				t.Fatalf("reader %d item %d: got %d, want %d", reader, want, *v, want)
			}
		}
		if _, _, ok := q.Read(&cursor); ok {
			t.Fatalf("reader %d: extra item after catching up", reader)
		}
	}
}

// TestInitialReadingIndexStartsFromNow verifies the supplemented
// InitialReadingIndex accessor: a reader seeded with it only sees items
// published after it attached, not the queue's whole history.
func TestInitialReadingIndexStartsFromNow(t *testing.T) {
	q, err := ringq.New[int](8)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer q.Close()

	for i := 0; i < 3; i++ {
		idx, _ := q.Reserve(1)
		*q.At(idx) = i
		q.Publish(idx, 1)
	}

	cursor := q.InitialReadingIndex()
	if cursor != 3 {
		t.Fatalf("InitialReadingIndex: got %d, want 3", cursor)
	}
	if _, _, ok := q.Read(&cursor); ok {
		t.Fatalf("Read from InitialReadingIndex: got ok=true, want caught up")
	}

	idx, _ := q.Reserve(1)
	*q.At(idx) = 99
	q.Publish(idx, 1)

	v, _, ok := q.Read(&cursor)
	if !ok || *v != 99 {
		t.Fatalf("Read after new publish: got (%v, %v), want (99, true)", v, ok)
	}
}
