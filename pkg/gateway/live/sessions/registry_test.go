package sessions

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestRegistryRegisterAndUnregister(t *testing.T) {
	r := NewRegistry(Hooks{})

	unregister := r.Register("sess_1", Handle{})
	if got := r.Count(); got != 1 {
		t.Fatalf("Count() = %d, want 1", got)
	}

	unregister()
	if got := r.Count(); got != 0 {
		t.Fatalf("Count() after unregister = %d, want 0", got)
	}

	// Unregister is idempotent.
	unregister()
	if got := r.Count(); got != 0 {
		t.Fatalf("Count() after double unregister = %d, want 0", got)
	}
}

func TestRegistryHooks(t *testing.T) {
	var mu sync.Mutex
	var registered, unregistered []string
	r := NewRegistry(Hooks{
		OnRegister: func(id string) {
			mu.Lock()
			registered = append(registered, id)
			mu.Unlock()
		},
		OnUnregister: func(id string) {
			mu.Lock()
			unregistered = append(unregistered, id)
			mu.Unlock()
		},
	})

	unregister := r.Register("sess_1", Handle{})
	unregister()
	unregister()

	mu.Lock()
	defer mu.Unlock()
	if len(registered) != 1 || registered[0] != "sess_1" {
		t.Fatalf("register hook calls = %v", registered)
	}
	if len(unregistered) != 1 || unregistered[0] != "sess_1" {
		t.Fatalf("unregister hook calls = %v", unregistered)
	}
}

func TestRegistryReplacesDuplicateID(t *testing.T) {
	r := NewRegistry(Hooks{})

	firstCancelled := false
	first := r.Register("sess_dup", Handle{Cancel: func() { firstCancelled = true }})
	_ = first

	second := r.Register("sess_dup", Handle{})
	defer second()

	if !firstCancelled {
		t.Fatal("old session not cancelled on id reuse")
	}
	if got := r.Count(); got != 1 {
		t.Fatalf("Count() = %d, want 1", got)
	}
}

func TestRegistryCancelAll(t *testing.T) {
	r := NewRegistry(Hooks{})

	var mu sync.Mutex
	cancelled := map[string]bool{}
	for _, id := range []string{"a", "b", "c"} {
		id := id
		defer r.Register(id, Handle{Cancel: func() {
			mu.Lock()
			cancelled[id] = true
			mu.Unlock()
		}})()
	}

	if got := r.CancelAll(); got != 3 {
		t.Fatalf("CancelAll() = %d, want 3", got)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(cancelled) != 3 {
		t.Fatalf("cancelled = %v", cancelled)
	}
}

func TestRegistryNotifyAll(t *testing.T) {
	r := NewRegistry(Hooks{})

	var mu sync.Mutex
	var notices []string
	defer r.Register("a", Handle{Notify: func(code, message string) error {
		mu.Lock()
		notices = append(notices, code+":"+message)
		mu.Unlock()
		return nil
	}})()
	defer r.Register("b", Handle{})() // no Notify; skipped

	if got := r.NotifyAll("draining", "going away"); got != 1 {
		t.Fatalf("NotifyAll() = %d, want 1", got)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(notices) != 1 || notices[0] != "draining:going away" {
		t.Fatalf("notices = %v", notices)
	}
}

func TestRegistryWait(t *testing.T) {
	r := NewRegistry(Hooks{})
	unregister := r.Register("sess_slow", Handle{})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if r.Wait(ctx) {
		t.Fatal("Wait returned clean with a live session")
	}

	go func() {
		time.Sleep(10 * time.Millisecond)
		unregister()
	}()

	ctx2, cancel2 := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel2()
	if !r.Wait(ctx2) {
		t.Fatal("Wait timed out after drain")
	}
}

func TestRegistryNilReceiver(t *testing.T) {
	var r *Registry
	unregister := r.Register("sess_nil", Handle{})
	unregister()
	if got := r.Count(); got != 0 {
		t.Fatalf("Count() = %d", got)
	}
	if got := r.CancelAll(); got != 0 {
		t.Fatalf("CancelAll() = %d", got)
	}
	if !r.Wait(context.Background()) {
		t.Fatal("nil Wait should return true")
	}
}
