package guard

import (
	"context"
	"sync"

	"github.com/provgate/gateway/internal/domain"
)

// KeyLock serializes work per key within one process. A second Acquire on a
// held key fails fast instead of waiting.
type KeyLock struct {
	mu   sync.Mutex
	held map[string]struct{}
}

// NewKeyLock creates a new in-memory key lock.
func NewKeyLock() *KeyLock {
	return &KeyLock{
		held: make(map[string]struct{}),
	}
}

// Acquire takes the lock for key. The returned release func is safe to call more than once.
func (kl *KeyLock) Acquire(_ context.Context, key string) (func(), error) {
	kl.mu.Lock()
	defer kl.mu.Unlock()

	if _, busy := kl.held[key]; busy {
		return nil, domain.ErrTransactionInProgress(key)
	}
	kl.held[key] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() { kl.release(key) })
	}, nil
}

// Held reports whether key is currently locked.
func (kl *KeyLock) Held(key string) bool {
	kl.mu.Lock()
	defer kl.mu.Unlock()
	_, ok := kl.held[key]
	return ok
}

func (kl *KeyLock) release(key string) {
	kl.mu.Lock()
	defer kl.mu.Unlock()
	delete(kl.held, key)
}
