package capture

import "sync"

// ============================================================
// PLATFORM INIT GUARD
// ============================================================

// Platform state is initialized on first use and shut down when the last
// user lets go, once per backend per process.
var platform = struct {
	mu   sync.Mutex
	refs map[Backend]int
}{refs: make(map[Backend]int)}

func acquirePlatform(b Backend) error {
	platform.mu.Lock()
	defer platform.mu.Unlock()

	if platform.refs[b] == 0 {
		if err := b.Init(); err != nil {
			return platformErr("init", err)
		}
		log.Debugf("platform initialized")
	}
	platform.refs[b]++
	return nil
}

func releasePlatform(b Backend) {
	platform.mu.Lock()
	defer platform.mu.Unlock()

	n := platform.refs[b]
	switch {
	case n <= 0:
		return
	case n == 1:
		delete(platform.refs, b)
		b.Shutdown()
		log.Debugf("platform shut down")
	default:
		platform.refs[b] = n - 1
	}
}

func platformRefs(b Backend) int {
	platform.mu.Lock()
	defer platform.mu.Unlock()
	return platform.refs[b]
}
