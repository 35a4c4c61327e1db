//go:build !prod

package jshost

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/gorilla/websocket"
)

// HotReload re-runs the watched entry script when files change and relays
// every RunReport to websocket clients.
type HotReload struct {
	host     *Host
	upgrader websocket.Upgrader
	server   *http.Server
	listener net.Listener
	watcher  *fsnotify.Watcher

	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}
	watched map[string]bool

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func newHotReload(host *Host) (*HotReload, error) {
	hr := &HotReload{
		host:    host,
		clients: make(map[*websocket.Conn]struct{}),
		watched: make(map[string]bool),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	if host.Config.WatchEntry == "" {
		return hr, nil
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	for _, dir := range watchDirs(host.Config.WatchEntry, host.Config.WatchPaths) {
		if err := w.Add(dir); err != nil {
			_ = w.Close()
			return nil, err
		}
		hr.watched[dir] = true
	}
	hr.watcher = w
	return hr, nil
}

// watchDirs returns the directories to watch: the entry's own and every
// configured path, with files mapped to their directory.
func watchDirs(entry string, paths []string) []string {
	seen := map[string]bool{}
	var dirs []string
	add := func(p string) {
		p = strings.TrimPrefix(p, "file:")
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			p = filepath.Dir(p)
		}
		if abs, err := filepath.Abs(p); err == nil && !seen[abs] {
			seen[abs] = true
			dirs = append(dirs, abs)
		}
	}
	add(entry)
	for _, p := range paths {
		add(p)
	}
	return dirs
}

// watchFiles adds the directories of paths to the watcher.
func (hr *HotReload) watchFiles(paths []string) {
	if hr.watcher == nil {
		return
	}
	hr.mu.Lock()
	defer hr.mu.Unlock()
	for _, p := range paths {
		dir := filepath.Dir(p)
		if hr.watched[dir] {
			continue
		}
		if err := hr.watcher.Add(dir); err != nil {
			hr.host.Logger.Warn("Failed to watch dependency", "dir", dir, "error", err)
			continue
		}
		hr.watched[dir] = true
		hr.host.Logger.Debug("Watching dependency", "dir", dir)
	}
}

// Start serves the relay and starts watching.
func (hr *HotReload) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	hr.cancel = cancel

	if addr := hr.host.Config.HotReloadAddr; addr != "" {
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			cancel()
			return err
		}
		hr.listener = ln
		mux := http.NewServeMux()
		mux.HandleFunc("/ws", hr.serveWS)
		hr.server = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		hr.wg.Add(1)
		go func() {
			defer hr.wg.Done()
			if err := hr.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				hr.host.Logger.Error("Hot reload server failed", "error", err)
			}
		}()
		hr.host.Logger.Info("Hot reload relay listening", "addr", ln.Addr().String())
	}

	if hr.watcher != nil {
		hr.wg.Add(1)
		go func() {
			defer hr.wg.Done()
			hr.watch(ctx)
		}()
	}
	return nil
}

// Addr returns the relay address, or "" when no relay is served.
func (hr *HotReload) Addr() string {
	if hr.listener == nil {
		return ""
	}
	return hr.listener.Addr().String()
}

func (hr *HotReload) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := hr.upgrader.Upgrade(w, r, nil)
	if err != nil {
		hr.host.Logger.Error("Failed to upgrade websocket", "error", err)
		return
	}
	hr.mu.Lock()
	hr.clients[conn] = struct{}{}
	hr.mu.Unlock()
	hr.host.Logger.Debug("Hot reload client connected", "remote", conn.RemoteAddr().String())

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			hr.drop(conn)
			return
		}
	}
}

func (hr *HotReload) drop(conn *websocket.Conn) {
	hr.mu.Lock()
	defer hr.mu.Unlock()
	if _, ok := hr.clients[conn]; ok {
		delete(hr.clients, conn)
		_ = conn.Close()
	}
}

// Publish sends report to every connected client.
func (hr *HotReload) Publish(report RunReport) {
	data, err := json.Marshal(report)
	if err != nil {
		hr.host.Logger.Error("Failed to encode run report", "error", err)
		return
	}
	hr.mu.Lock()
	defer hr.mu.Unlock()
	for conn := range hr.clients {
		_ = conn.SetWriteDeadline(time.Now().Add(2 * time.Second))
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			delete(hr.clients, conn)
			_ = conn.Close()
		}
	}
}

func (hr *HotReload) watch(ctx context.Context) {
	var (
		timer   *time.Timer
		trigger = make(chan struct{}, 1)
	)
	fire := func() {
		select {
		case trigger <- struct{}{}:
		default:
		}
	}
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return
		case ev, ok := <-hr.watcher.Events:
			if !ok {
				return
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(hr.host.Config.Debounce, fire)
		case err, ok := <-hr.watcher.Errors:
			if !ok {
				return
			}
			hr.host.Logger.Error("Watcher error", "error", err)
		case <-trigger:
			hr.rerun(ctx)
		}
	}
}

func (hr *HotReload) rerun(ctx context.Context) {
	entry := hr.host.Config.WatchEntry
	hr.host.Logger.Info("Change detected, re-running", "entry", entry)
	if _, err := hr.host.RunFile(ctx, entry); err != nil {
		hr.host.Logger.Error("Re-run failed", "entry", entry, "error", err)
	}
}

// Stop stops watching, closes client connections and the relay server.
func (hr *HotReload) Stop(ctx context.Context) {
	if hr.cancel != nil {
		hr.cancel()
	}
	if hr.watcher != nil {
		_ = hr.watcher.Close()
	}
	if hr.server != nil {
		_ = hr.server.Shutdown(ctx)
	}
	hr.mu.Lock()
	for conn := range hr.clients {
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutdown"))
		_ = conn.Close()
		delete(hr.clients, conn)
	}
	hr.mu.Unlock()
	hr.wg.Wait()
}
