// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

//go:build ringq_debug

package ringq

import (
	"fmt"

	"code.hybscloud.com/atomix"
)

// debugGuard detects (rather than prevents) Reset racing with a concurrent
// Reserve/Publish/Read/ReadShared call, built only under the ringq_debug
// tag so production builds pay nothing for it. See Open Question OQ-2.
type debugGuard struct {
	readers atomix.Int64
	writers atomix.Int64
}

func (g *debugGuard) enterRead()  { g.readers.AddAcqRel(1) }
func (g *debugGuard) exitRead()   { g.readers.AddAcqRel(-1) }
func (g *debugGuard) enterWrite() { g.writers.AddAcqRel(1) }
func (g *debugGuard) exitWrite()  { g.writers.AddAcqRel(-1) }

func (g *debugGuard) checkQuiescent() {
	readers := g.readers.LoadAcquire()
	writers := g.writers.LoadAcquire()
	if readers != 0 || writers != 0 {
		panic(fmt.Sprintf("ringq: Reset called while not quiescent (%d active readers, %d active writers)", readers, writers))
	}
}
