//go:build !prod

package jshost

import (
	"context"
	"os"
)

// initDevTools runs generators and starts the watcher and relay (dev only)
func (host *Host) initDevTools() error {
	if host.Config.AppEnv == "production" || os.Getenv("APP_ENV") == "production" {
		host.Logger.Info("Running js host in production mode")
		return nil
	}

	host.Logger.Info("Running js host in development mode")

	generators := host.Config.Generators
	if host.Config.GeneratedTypesPath != "" {
		generators = append(generators, TypesGenerator{Path: host.Config.GeneratedTypesPath})
	}
	for _, g := range generators {
		if err := g.Generate(host.Config); err != nil {
			host.Logger.Error("Failed to run generator", "error", err)
			return err
		}
	}

	if host.Config.HotReloadAddr == "" && host.Config.WatchEntry == "" {
		return nil
	}
	host.Logger.Debug("Starting hot reload", "addr", host.Config.HotReloadAddr, "entry", host.Config.WatchEntry)
	hr, err := newHotReload(host)
	if err != nil {
		host.Logger.Error("Failed to start hot reload", "error", err)
		return err
	}
	host.HotReload = hr
	return host.HotReload.Start()
}

// stopHotReload stops the watcher and relay (dev only)
func (host *Host) stopHotReload(ctx context.Context) {
	if host.HotReload != nil {
		host.Logger.Debug("Hot reload stopping")
		host.HotReload.Stop(ctx)
	}
}

// publish sends a report to connected relay clients (dev only)
func (host *Host) publish(report RunReport) {
	if host.HotReload != nil {
		host.HotReload.Publish(report)
	}
}

// watchDependencies adds the files a bundle read to the watcher (dev only)
func (host *Host) watchDependencies(paths []string) {
	if host.HotReload != nil {
		host.HotReload.watchFiles(paths)
	}
}
