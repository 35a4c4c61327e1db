//go:build prod

package jshost

import "context"

// initDevTools is a no-op in production builds
func (host *Host) initDevTools() error {
	host.Logger.Info("Running js host in production mode")
	return nil
}

// stopHotReload is a no-op in production builds
func (host *Host) stopHotReload(ctx context.Context) {}

// publish is a no-op in production builds
func (host *Host) publish(report RunReport) {}

// watchDependencies is a no-op in production builds
func (host *Host) watchDependencies(paths []string) {}
