// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package ringq_test

import (
	"errors"
	"fmt"
	"testing"

	"ringq.dev/ringq"
)

func uniqueName(t *testing.T) string {
	t.Helper()
	return fmt.Sprintf("test-%s-%d", t.Name(), testSeq())
}

var testCounter int64

func testSeq() int64 {
	testCounter++
	return testCounter
}

func TestNewSharedCreateThenAttach(t *testing.T) {
	name := uniqueName(t)

	owner, err := ringq.NewShared[int](name, 8)
	if err != nil {
		t.Fatalf("NewShared (creator): %v", err)
	}
	defer owner.Close()

	if !owner.Owned() {
		t.Fatalf("creator: Owned() = false, want true")
	}
	if !owner.Shared() {
		t.Fatalf("creator: Shared() = false, want true")
	}

	idx, _ := owner.Reserve(1)
	*owner.At(idx) = 7
	owner.Publish(idx, 1)

	attacher, err := ringq.Attach[int](name)
	if err != nil {
		t.Fatalf("Attach: %v", err)
	}
	defer attacher.Close()

	if attacher.Owned() {
		t.Fatalf("attacher: Owned() = true, want false")
	}
	if attacher.Capacity() != 8 {
		t.Fatalf("attacher: Capacity() = %d, want 8", attacher.Capacity())
	}

	var cursor uint64
	v, _, ok := attacher.Read(&cursor)
	if !ok || *v != 7 {
		t.Fatalf("attacher Read: got (%v, %v), want (7, true)", v, ok)
	}
}

func TestNewSharedSecondCallAttachesInstead(t *testing.T) {
	name := uniqueName(t)

	first, err := ringq.NewShared[int](name, 4)
	if err != nil {
		t.Fatalf("NewShared (first): %v", err)
	}
	defer first.Close()

	second, err := ringq.NewShared[int](name, 4)
	if err != nil {
		t.Fatalf("NewShared (second): %v", err)
	}
	defer second.Close()

	if second.Owned() {
		t.Fatalf("second NewShared call: Owned() = true, want false (should have attached)")
	}

	idx, _ := first.Reserve(1)
	*first.At(idx) = 42
	first.Publish(idx, 1)

	var cursor uint64
	v, _, ok := second.Read(&cursor)
	if !ok || *v != 42 {
		t.Fatalf("second.Read: got (%v, %v), want (42, true)", v, ok)
	}
}

func TestAttachElementSizeMismatch(t *testing.T) {
	name := uniqueName(t)

	owner, err := ringq.NewShared[int64](name, 4)
	if err != nil {
		t.Fatalf("NewShared: %v", err)
	}
	defer owner.Close()

	_, err = ringq.Attach[int32](name)
	if !errors.Is(err, ringq.ErrRegion) {
		t.Fatalf("Attach with mismatched element size: got %v, want ErrRegion", err)
	}
}

func TestAttachMissingSegment(t *testing.T) {
	_, err := ringq.Attach[int]("does-not-exist-" + uniqueName(t))
	if !errors.Is(err, ringq.ErrRegion) {
		t.Fatalf("Attach to missing segment: got %v, want ErrRegion", err)
	}
}

func TestNewSharedCapacityMismatch(t *testing.T) {
	name := uniqueName(t)

	owner, err := ringq.NewShared[int](name, 8)
	if err != nil {
		t.Fatalf("NewShared: %v", err)
	}
	defer owner.Close()

	_, err = ringq.NewShared[int](name, 16)
	if !errors.Is(err, ringq.ErrRegion) {
		t.Fatalf("NewShared with mismatched capacity: got %v, want ErrRegion", err)
	}
}
