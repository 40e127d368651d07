// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package ringq

import "errors"

// ErrInvalidArgument is returned when a caller-supplied argument violates a
// construction or reservation precondition: non-power-of-two capacity, a
// zero-length reservation, or a reservation longer than the queue capacity.
var ErrInvalidArgument = errors.New("ringq: invalid argument")

// ErrRegion is returned for any failure acquiring, mapping, or validating a
// shared-memory region: create/open/mmap failure, initialization timeout,
// capacity mismatch, or element-size mismatch on attach.
var ErrRegion = errors.New("ringq: region error")
