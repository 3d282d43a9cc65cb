package host

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// ErrAccessDenied is returned when a permission check fails.
var ErrAccessDenied = errors.New("host: access denied")

// GrantAllPermissions grants every permission when given to Grant.
const GrantAllPermissions = "*"

// AccessChecker tracks the permissions granted to the current session
// and answers access checks against them.
//
// Permission ids are hierarchical. Granting a parent implicitly grants
// every id beneath it: a grant of "users" satisfies checks for
// "users.view" and "users.edit.any". The wildcard "*" grants everything.
type AccessChecker struct {
	mu      sync.RWMutex
	granted map[string]bool
}

// NewAccessChecker creates a checker with no grants.
func NewAccessChecker() *AccessChecker {
	return &AccessChecker{
		granted: make(map[string]bool),
	}
}

// Grant grants a permission id.
func (a *AccessChecker) Grant(id string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.granted[id] = true
}

// GrantAll grants multiple permission ids.
func (a *AccessChecker) GrantAll(ids []string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, id := range ids {
		a.granted[id] = true
	}
}

// Revoke removes a grant. Revoking a parent removes access to its
// children unless they are granted directly.
func (a *AccessChecker) Revoke(id string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.granted, id)
}

// Has returns true if the permission is granted, directly or through a
// parent grant.
func (a *AccessChecker) Has(id string) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if a.granted[GrantAllPermissions] {
		return true
	}

	// Direct check
	if a.granted[id] {
		return true
	}

	// Walk up the hierarchy: "users.edit.any" is satisfied by a grant
	// of "users.edit" or "users".
	for {
		dot := strings.LastIndex(id, ".")
		if dot < 0 {
			return false
		}
		id = id[:dot]
		if a.granted[id] {
			return true
		}
	}
}

// HasAny returns true if any of the permissions is granted.
func (a *AccessChecker) HasAny(ids []string) bool {
	for _, id := range ids {
		if a.Has(id) {
			return true
		}
	}
	return false
}

// Check returns an error if the permission is not granted.
func (a *AccessChecker) Check(id string) error {
	if !a.Has(id) {
		return fmt.Errorf("permission %q: %w", id, ErrAccessDenied)
	}
	return nil
}

// Granted returns all directly granted permission ids, sorted.
func (a *AccessChecker) Granted() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()

	ids := make([]string, 0, len(a.granted))
	for id := range a.granted {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Reset removes every grant.
func (a *AccessChecker) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.granted = make(map[string]bool)
}
