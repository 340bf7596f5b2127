/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package lock serializes on-chain mutations per account within a single process.
package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrTimeout is returned when a lock could not be acquired within the requested timeout.
var ErrTimeout = errors.New("lock acquisition timed out")

// Lock is a handle to a held account lock. A handle only ever releases the hold it was issued for.
type Lock struct {
	key        string
	id         uint64
	AcquiredAt time.Time
}

// Key returns the account the lock was acquired for.
func (l *Lock) Key() string {
	return l.key
}

type entry struct {
	token  chan struct{} // holds one token while the account is free
	holder uint64
	lease  *time.Timer
}

// Registry owns one lazily created lock per account for the lifetime of the process.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*entry
	seq     uint64
	lease   time.Duration
}

// NewRegistry returns an empty registry. A hold not released within lease is released
// automatically; a zero lease keeps holds until they are released.
func NewRegistry(lease time.Duration) *Registry {
	return &Registry{entries: make(map[string]*entry), lease: lease}
}

func (r *Registry) entry(key string) *entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[key]
	if !ok {
		e = &entry{token: make(chan struct{}, 1)}
		e.token <- struct{}{}
		r.entries[key] = e
	}
	return e
}

// Acquire waits up to timeout for the account lock.
func (r *Registry) Acquire(ctx context.Context, key string, timeout time.Duration) (*Lock, error) {
	e := r.entry(key)

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-e.token:
	case <-timer.C:
		return nil, fmt.Errorf("%w: account %s", ErrTimeout, key)
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	l := &Lock{key: key, id: r.seq, AcquiredAt: time.Now()}
	e.holder = l.id
	if r.lease > 0 {
		e.lease = time.AfterFunc(r.lease, func() { r.Release(l) })
	}
	return l, nil
}

// Release frees the hold l was issued for. Releasing a nil, stale or already released handle is a no-op.
func (r *Registry) Release(l *Lock) {
	if l == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[l.key]
	if !ok || e.holder != l.id {
		return
	}
	r.free(e)
}

// Unlock frees whatever currently holds key. It is a no-op when key is not held.
func (r *Registry) Unlock(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[key]
	if !ok || e.holder == 0 {
		return false
	}
	r.free(e)
	return true
}

// IsLocked reports whether key is currently held.
func (r *Registry) IsLocked(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[key]
	return ok && e.holder != 0
}

// free must be called with r.mu held.
func (r *Registry) free(e *entry) {
	e.holder = 0
	if e.lease != nil {
		e.lease.Stop()
		e.lease = nil
	}
	e.token <- struct{}{}
}
