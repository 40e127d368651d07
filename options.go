// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package ringq

import (
	"time"

	"go.uber.org/zap"
)

// config holds the resolved settings for New, NewShared, and Attach.
type config struct {
	lossDetection bool
	logger        *zap.Logger
	attachTimeout time.Duration
	provider      RegionProvider
}

func defaultConfig() config {
	return config{
		lossDetection: true,
		logger:        zap.NewNop(),
		attachTimeout: 2 * time.Second,
	}
}

// Option configures a Queue at construction time.
type Option func(*config)

// WithLossDetection toggles the relaxed loss counter maintained by Read and
// ReadShared when a slow reader observes a slot that was overwritten before
// it got there. Enabled by default.
func WithLossDetection(enabled bool) Option {
	return func(c *config) { c.lossDetection = enabled }
}

// WithLogger sets the logger used for shared-memory region-initialization
// events: a Warn when a region was created by a legacy (pre-magic) writer,
// an Error when attach validation fails. Defaults to a no-op logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *config) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithAttachTimeout bounds how long NewShared and Attach will spin-wait for
// another process to finish initializing a region header. Defaults to 2s.
func WithAttachTimeout(d time.Duration) Option {
	return func(c *config) { c.attachTimeout = d }
}

// WithRegionProvider overrides the default RegionProvider used by NewShared
// and Attach. Mainly useful for tests that want an in-memory Region without
// touching /dev/shm.
func WithRegionProvider(p RegionProvider) Option {
	return func(c *config) { c.provider = p }
}

// pad is cache line padding to prevent false sharing between the producer
// and consumer hot-path fields.
type pad [64]byte
