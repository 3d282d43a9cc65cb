package state

import (
	"sort"
	"testing"

	"github.com/dshills/plugstorm/internal/app"
)

func newTestStore() *Store {
	return NewStore(app.NullLogger)
}

func TestStoreRegister(t *testing.T) {
	s := newTestStore()

	current, created := s.Register("alpha", "cache", 42)
	if !created {
		t.Error("Register() created = false, want true")
	}
	if current != 42 {
		t.Errorf("Register() current = %v, want 42", current)
	}

	value, ok := s.Get("alpha", "cache")
	if !ok || value != 42 {
		t.Errorf("Get() = %v, %v, want 42, true", value, ok)
	}
}

func TestStoreRegisterFirstWins(t *testing.T) {
	s := newTestStore()

	s.Register("alpha", "cache", 42)
	current, created := s.Register("alpha", "cache", 99)

	if created {
		t.Error("second Register() created = true, want false")
	}
	if current != 42 {
		t.Errorf("second Register() current = %v, want 42 (existing value kept)", current)
	}
}

func TestStoreGetUnknown(t *testing.T) {
	s := newTestStore()

	if _, ok := s.Get("alpha", "nope"); ok {
		t.Error("Get() on unknown key ok = true, want false")
	}
	if s.Has("alpha", "nope") {
		t.Error("Has() on unknown key = true, want false")
	}
}

func TestStoreSet(t *testing.T) {
	s := newTestStore()
	s.Register("alpha", "cache", 1)

	if !s.Set("alpha", "cache", 2) {
		t.Fatal("Set() = false, want true")
	}
	value, _ := s.Get("alpha", "cache")
	if value != 2 {
		t.Errorf("Get() after Set() = %v, want 2", value)
	}
}

func TestStoreSetUnregistered(t *testing.T) {
	s := newTestStore()

	// Set never creates entries.
	if s.Set("alpha", "nope", 1) {
		t.Error("Set() on unregistered key = true, want false")
	}
	if s.Has("alpha", "nope") {
		t.Error("Set() created an entry")
	}
}

func TestStoreSubscribe(t *testing.T) {
	s := newTestStore()
	s.Register("alpha", "cache", 1)

	var gotNew, gotOld any
	var notifications int
	off, ok := s.Subscribe("alpha", "cache", func(newValue, oldValue any) {
		notifications++
		gotNew, gotOld = newValue, oldValue
	})
	if !ok {
		t.Fatal("Subscribe() ok = false, want true")
	}

	s.Set("alpha", "cache", 2)
	if notifications != 1 {
		t.Fatalf("listener ran %d times, want 1", notifications)
	}
	if gotNew != 2 || gotOld != 1 {
		t.Errorf("listener got (%v, %v), want (2, 1)", gotNew, gotOld)
	}

	off()
	s.Set("alpha", "cache", 3)
	if notifications != 1 {
		t.Errorf("listener ran %d times after unsubscribe, want 1", notifications)
	}

	// Double unsubscribe is safe.
	off()
}

func TestStoreSubscribeUnknown(t *testing.T) {
	s := newTestStore()

	off, ok := s.Subscribe("alpha", "nope", func(newValue, oldValue any) {})
	if ok {
		t.Error("Subscribe() on unknown key ok = true, want false")
	}
	if off == nil {
		t.Fatal("Subscribe() returned nil unsubscribe")
	}
	off()
}

func TestStoreSubscribeNilListener(t *testing.T) {
	s := newTestStore()
	s.Register("alpha", "cache", 1)

	if _, ok := s.Subscribe("alpha", "cache", nil); ok {
		t.Error("Subscribe(nil) ok = true, want false")
	}
}

func TestStoreListenerPanic(t *testing.T) {
	s := newTestStore()
	s.Register("alpha", "cache", 1)

	var survived bool
	s.Subscribe("alpha", "cache", func(newValue, oldValue any) { panic("listener bug") })
	s.Subscribe("alpha", "cache", func(newValue, oldValue any) { survived = true })

	if !s.Set("alpha", "cache", 2) {
		t.Fatal("Set() = false, want true")
	}
	if !survived {
		t.Error("listener after panicking one did not run")
	}
}

func TestStoreListenerMayReadStore(t *testing.T) {
	s := newTestStore()
	s.Register("alpha", "cache", 1)

	// Delivery happens outside the store lock.
	var seen any
	s.Subscribe("alpha", "cache", func(newValue, oldValue any) {
		seen, _ = s.Get("alpha", "cache")
	})

	s.Set("alpha", "cache", 2)
	if seen != 2 {
		t.Errorf("listener read %v, want 2", seen)
	}
}

func TestStoreRemovePlugin(t *testing.T) {
	s := newTestStore()
	s.Register("alpha", "cache", 1)
	s.Register("alpha", "session", 2)
	s.Register("beta", "cache", 3)

	removed := s.RemovePlugin("alpha")
	sort.Strings(removed)
	if len(removed) != 2 || removed[0] != "cache" || removed[1] != "session" {
		t.Errorf("RemovePlugin() = %v, want [cache session]", removed)
	}

	if s.Has("alpha", "cache") || s.Has("alpha", "session") {
		t.Error("alpha entries survived RemovePlugin()")
	}
	if !s.Has("beta", "cache") {
		t.Error("beta entry removed by alpha's RemovePlugin()")
	}
	if s.Len() != 1 {
		t.Errorf("Len() = %d, want 1", s.Len())
	}
}

func TestStoreNamespaces(t *testing.T) {
	s := newTestStore()
	s.Register("alpha", "cache", 1)
	s.Register("alpha", "session", 2)

	namespaces := s.Namespaces("alpha")
	sort.Strings(namespaces)
	if len(namespaces) != 2 || namespaces[0] != "cache" || namespaces[1] != "session" {
		t.Errorf("Namespaces() = %v, want [cache session]", namespaces)
	}
}
