// Package sessions tracks live voice sessions for draining and shutdown.
package sessions

import (
	"context"
	"sync"
)

// Handle is the control surface a session exposes to the registry.
type Handle struct {
	// Cancel stops the session. Must be safe to call more than once.
	Cancel func()
	// Notify pushes an out-of-band notice (shutdown warning) to the client.
	Notify func(code, message string) error
}

// Hooks observe session lifecycle transitions. Either field may be nil.
// Hooks run outside the registry lock and must not call back into it.
type Hooks struct {
	OnRegister   func(sessionID string)
	OnUnregister func(sessionID string)
}

// Registry tracks live sessions by id. All methods are safe for concurrent
// use and safe on a nil receiver.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*registeredSession
	wg       sync.WaitGroup
	hooks    Hooks
}

type registeredSession struct {
	handle Handle
	once   sync.Once
}

func NewRegistry(hooks Hooks) *Registry {
	return &Registry{
		sessions: make(map[string]*registeredSession),
		hooks:    hooks,
	}
}

// Register adds a session and returns its unregister function. Registering
// an id that is already present cancels and replaces the old session.
func (r *Registry) Register(sessionID string, h Handle) (unregister func()) {
	if r == nil {
		return func() {}
	}

	entry := &registeredSession{handle: h}

	r.mu.Lock()
	if r.sessions == nil {
		r.sessions = make(map[string]*registeredSession)
	}
	old := r.sessions[sessionID]
	r.sessions[sessionID] = entry
	r.wg.Add(1)
	r.mu.Unlock()

	if old != nil {
		if old.handle.Cancel != nil {
			old.handle.Cancel()
		}
		r.unregister(sessionID, old)
	}

	if r.hooks.OnRegister != nil {
		r.hooks.OnRegister(sessionID)
	}

	return func() { r.unregister(sessionID, entry) }
}

func (r *Registry) unregister(sessionID string, entry *registeredSession) {
	if r == nil || entry == nil {
		return
	}
	entry.once.Do(func() {
		r.mu.Lock()
		if r.sessions != nil && r.sessions[sessionID] == entry {
			delete(r.sessions, sessionID)
		}
		r.mu.Unlock()
		r.wg.Done()

		if r.hooks.OnUnregister != nil {
			r.hooks.OnUnregister(sessionID)
		}
	})
}

func (r *Registry) Count() int {
	if r == nil {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// NotifyAll pushes a notice to every live session, best effort.
func (r *Registry) NotifyAll(code, message string) (sent int) {
	if r == nil {
		return 0
	}

	var notifies []func(code, message string) error
	r.mu.Lock()
	for _, entry := range r.sessions {
		if entry == nil || entry.handle.Notify == nil {
			continue
		}
		notifies = append(notifies, entry.handle.Notify)
	}
	r.mu.Unlock()

	for _, notify := range notifies {
		_ = notify(code, message)
		sent++
	}
	return sent
}

// CancelAll cancels every live session. Sessions remain counted until
// their handlers unregister.
func (r *Registry) CancelAll() (canceled int) {
	if r == nil {
		return 0
	}

	var cancels []func()
	r.mu.Lock()
	for _, entry := range r.sessions {
		if entry == nil || entry.handle.Cancel == nil {
			continue
		}
		cancels = append(cancels, entry.handle.Cancel)
	}
	r.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
		canceled++
	}
	return canceled
}

// Wait blocks until every registered session has unregistered, or the
// context expires. Returns true on a clean drain.
func (r *Registry) Wait(ctx context.Context) bool {
	if r == nil {
		return true
	}
	if ctx == nil {
		r.wg.Wait()
		return true
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		r.wg.Wait()
	}()

	select {
	case <-done:
		return true
	case <-ctx.Done():
		return false
	}
}
