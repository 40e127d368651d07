// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

//go:build !ringq_debug

package ringq

// debugGuard is a zero-cost no-op outside the ringq_debug build tag: Reset's
// quiescence precondition (see Open Question OQ-2) is documented rather
// than enforced in production builds.
type debugGuard struct{}

func (debugGuard) enterRead()       {}
func (debugGuard) exitRead()        {}
func (debugGuard) enterWrite()      {}
func (debugGuard) exitWrite()       {}
func (debugGuard) checkQuiescent()  {}
