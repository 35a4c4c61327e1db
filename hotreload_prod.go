//go:build prod

package jshost

import "context"

// HotReload is a stub for production builds
type HotReload struct{}

// Start is a no-op in production
func (hr *HotReload) Start() error { return nil }

// Stop is a no-op in production
func (hr *HotReload) Stop(ctx context.Context) {}

// Publish is a no-op in production
func (hr *HotReload) Publish(report RunReport) {}
