// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package ringq_test

import (
	"sync"
	"sync/atomic"
	"testing"

	"code.hybscloud.com/atomix"
	"ringq.dev/ringq"
)

// TestReadSharedDistributesWithoutDuplication verifies ReadShared's
// work-stealing contract: with multiple producers and multiple consumers
// sharing one cursor, every published item is claimed by exactly one
// consumer, never more than one.
func TestReadSharedDistributesWithoutDuplication(t *testing.T) {
	if ringq.RaceEnabled {
		t.Skip("lock-free algorithm correctness is not observable under the race detector")
	}

	const (
		numProducer = 4
		numPerProd  = 2000
		numConsumer = 8
		capacity    = 8192 // >= numProducer*numPerProd: nothing is ever overwritten
	)
	total := numProducer * numPerProd

	q, err := ringq.New[int](capacity)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer q.Close()

	seen := make([]atomix.Int32, total)
	var claimed int64

	var cursor atomix.Uint64
	var consumers sync.WaitGroup
	consumers.Add(numConsumer)
	for c := 0; c < numConsumer; c++ {
		go func() {
			defer consumers.Done()
			for atomic.LoadInt64(&claimed) < int64(total) {
				v, _, ok := q.ReadShared(&cursor)
				if !ok {
					continue
				}
				if seen[*v].AddAcqRel(1) != 1 {
					t.Errorf("value %d claimed more than once", *v)
				}
				atomic.AddInt64(&claimed, 1)
			}
		}()
	}

	var producers sync.WaitGroup
	producers.Add(numProducer)
	for p := 0; p < numProducer; p++ {
		go func(p int) {
			defer producers.Done()
			for i := 0; i < numPerProd; i++ {
				value := p*numPerProd + i
				idx, err := q.Reserve(1)
				if err != nil {
					t.Errorf("Reserve: %v", err)
					return
				}
				*q.At(idx) = value
				q.Publish(idx, 1)
			}
		}(p)
	}
	producers.Wait()
	consumers.Wait()

	for i, s := range seen {
		if s.LoadAcquire() != 1 {
			t.Fatalf("value %d: claimed %d times, want 1", i, s.LoadAcquire())
		}
	}
}
