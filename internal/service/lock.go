package service

import (
	"fmt"
	"sync"
)

// providerLocks serializes mutating operations per (center, provider) queue.
// Two concurrent callNext calls on the same provider take turns; queues of
// different providers never contend.
type providerLocks struct {
	locks sync.Map
}

func (p *providerLocks) acquire(centerID, providerID string) func() {
	key := fmt.Sprintf("%s:%s", centerID, providerID)
	v, _ := p.locks.LoadOrStore(key, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}
