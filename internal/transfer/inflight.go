package transfer

import "sync"

// inflight is the set of paths currently being uploaded.
type inflight struct {
	mu    sync.Mutex
	paths map[string]struct{}
}

func newInflight() *inflight {
	return &inflight{paths: make(map[string]struct{})}
}

// acquire claims path and reports whether it was free.
func (f *inflight) acquire(path string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, busy := f.paths[path]; busy {
		return false
	}
	f.paths[path] = struct{}{}
	return true
}

func (f *inflight) release(path string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.paths, path)
}
