package jshost

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/yejune/go-jshost/internal/cache"
)

// ErrPoolClosed is returned by Get after Close.
var ErrPoolClosed = errors.New("jshost: pool closed")

// Pool manages a fixed set of pre-warmed hosts, each on its own engine
// thread, sharing one bytecode cache.
type Pool struct {
	hosts chan *Host
	all   []*Host
	cache cache.Cache

	mu      sync.Mutex
	size    int
	inUse   int
	served  int64
	closed  bool
	runtime string
}

// PoolConfig configures the host pool
type PoolConfig struct {
	Host     Config
	PoolSize int // Number of hosts to create up front
}

// NewPool creates PoolSize hosts. If any host fails to start, the ones
// already created are shut down.
func NewPool(config PoolConfig) (*Pool, error) {
	if config.PoolSize <= 0 {
		config.PoolSize = 4
	}

	p := &Pool{
		hosts: make(chan *Host, config.PoolSize),
		size:  config.PoolSize,
	}
	if !config.Host.DisableCache {
		c, err := cache.NewCache(config.Host.Cache)
		if err != nil {
			return nil, err
		}
		p.cache = c
	}

	for i := 0; i < config.PoolSize; i++ {
		hc := config.Host
		hc.Name = fmt.Sprintf("%s-%d", nameOr(hc.Name, "jshost"), i)
		// The relay and watcher belong to a single host, not to every member.
		hc.HotReloadAddr, hc.WatchEntry = "", ""
		h, err := newHost(hc, p.cache)
		if err != nil {
			_ = p.Close(context.Background())
			return nil, fmt.Errorf("start host %d: %w", i, err)
		}
		p.all = append(p.all, h)
		p.hosts <- h
	}
	p.runtime = string(p.all[0].Runtime())
	return p, nil
}

func nameOr(name, fallback string) string {
	if name == "" {
		return fallback
	}
	return name
}

// Get takes a host from the pool, waiting until one is free or ctx ends.
func (p *Pool) Get(ctx context.Context) (*Host, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrPoolClosed
	}
	p.mu.Unlock()

	select {
	case h, ok := <-p.hosts:
		if !ok {
			return nil, ErrPoolClosed
		}
		p.mu.Lock()
		p.inUse++
		p.served++
		p.mu.Unlock()
		return h, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Put returns a host to the pool
func (p *Pool) Put(h *Host) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.inUse--
	if p.closed {
		return
	}
	p.hosts <- h
}

// RunFile is a convenience method that gets a host, runs path, and returns it
func (p *Pool) RunFile(ctx context.Context, path string) (RunReport, error) {
	h, err := p.Get(ctx)
	if err != nil {
		return RunReport{Path: path}, err
	}
	defer p.Put(h)
	return h.RunFile(ctx, path)
}

// Eval is a convenience method that gets a host, evaluates src, and returns it
func (p *Pool) Eval(ctx context.Context, src, name string) (RunReport, error) {
	h, err := p.Get(ctx)
	if err != nil {
		return RunReport{Path: name}, err
	}
	defer p.Put(h)
	return h.Eval(ctx, src, name)
}

// Stats returns pool statistics. With a shared cache, its statistics are
// under "cache".
func (p *Pool) Stats(ctx context.Context) map[string]interface{} {
	p.mu.Lock()
	stats := map[string]interface{}{
		"runtime_type": p.runtime,
		"pool_size":    p.size,
		"in_use":       p.inUse,
		"total_served": p.served,
		"shared_cache": p.cache != nil,
		"closed":       p.closed,
	}
	closed := p.closed
	p.mu.Unlock()

	if p.cache != nil && !closed {
		cs, err := p.cache.Stats(ctx)
		if err != nil {
			cs = map[string]interface{}{"error": err.Error()}
		}
		stats["cache"] = cs
	}
	return stats
}

// ClearCache drops every entry of the shared cache.
func (p *Pool) ClearCache() {
	if p.cache != nil {
		p.cache.Clear()
	}
}

// Close shuts every host down. Hosts still checked out are shut down too;
// callers must not use them afterwards.
func (p *Pool) Close(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.hosts)
	p.mu.Unlock()

	var errs []error
	for _, h := range p.all {
		if err := h.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if p.cache != nil {
		if err := p.cache.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
