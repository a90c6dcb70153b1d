package editor

import "sync"

// keyLocks serializes service requests per segment label. Acquisition is
// all-or-nothing and never blocks.
type keyLocks struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func newKeyLocks() *keyLocks {
	return &keyLocks{held: make(map[string]struct{})}
}

// tryAcquire takes every key or none. The returned release func is safe to
// call more than once.
func (k *keyLocks) tryAcquire(keys ...string) (release func(), ok bool) {
	k.mu.Lock()
	defer k.mu.Unlock()
	for _, key := range keys {
		if _, busy := k.held[key]; busy {
			return nil, false
		}
	}
	for _, key := range keys {
		k.held[key] = struct{}{}
	}
	var once sync.Once
	return func() {
		once.Do(func() {
			k.mu.Lock()
			for _, key := range keys {
				delete(k.held, key)
			}
			k.mu.Unlock()
		})
	}, true
}
