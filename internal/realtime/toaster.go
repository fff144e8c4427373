package realtime

import (
	"sync"
	"time"
)

// Toaster shows at most one toast per key within a window.  Keys are held
// in a set and each is removed by its own timer when the window expires.
type Toaster struct {
	window time.Duration
	show   func(msg string)

	mu     sync.Mutex
	recent map[string]*time.Timer
}

// NewToaster returns a toaster that calls show for every accepted toast.
func NewToaster(window time.Duration, show func(msg string)) *Toaster {
	if window <= 0 {
		window = 2 * time.Second
	}
	return &Toaster{window: window, show: show, recent: make(map[string]*time.Timer)}
}

// Toast shows msg unless a toast with the same key was shown within the
// window, and reports whether it was shown.
func (t *Toaster) Toast(key, msg string) bool {
	t.mu.Lock()
	if _, dup := t.recent[key]; dup {
		t.mu.Unlock()
		return false
	}
	t.recent[key] = time.AfterFunc(t.window, func() {
		t.mu.Lock()
		delete(t.recent, key)
		t.mu.Unlock()
	})
	t.mu.Unlock()

	t.show(msg)
	return true
}

// Pending returns the number of keys still inside their window.
func (t *Toaster) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.recent)
}

// Stop cancels every pending timer and forgets all keys.
func (t *Toaster) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for k, timer := range t.recent {
		timer.Stop()
		delete(t.recent, k)
	}
}
