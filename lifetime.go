// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package ringq

import "code.hybscloud.com/atomix"

// heapCloser backs a private-heap Queue. There is nothing to release
// explicitly; the control and data slices are reclaimed by the garbage
// collector once the Queue is unreachable.
type heapCloser struct{}

func (heapCloser) close() error { return nil }

// regionOwner backs a Queue that created the shared-memory segment it
// maps. Close unmaps it; Remove additionally unlinks the named segment so
// the OS reclaims it once every attacher has also unmapped. unlinked
// guards against a double Remove if Close is somehow invoked twice outside
// Queue.Close's own CAS guard (e.g. from a test poking at internals).
type regionOwner struct {
	region   Region
	unlinked atomix.Bool
}

func (o *regionOwner) close() error {
	err := o.region.Close()
	if o.unlinked.CompareAndSwapAcqRel(false, true) {
		if rerr := o.region.Remove(); rerr != nil && err == nil {
			err = rerr
		}
	}
	return err
}

// regionAttacher backs a Queue that mapped onto a region another process
// created. Close only unmaps; the owner is responsible for unlinking.
type regionAttacher struct {
	region Region
}

func (a *regionAttacher) close() error { return a.region.Close() }
