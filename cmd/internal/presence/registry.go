// Package presence tracks which users are currently reachable and over which
// connections. A user may hold many simultaneous connections (devices, tabs);
// the user is online iff its connection set is non-empty.
package presence

import (
	"sort"
	"sync"
)

// shardCount spreads unrelated users across independent locks so that one
// user's connect storm does not serialize everyone else's lifecycle events.
const shardCount = 32

// Registry is the in-memory user -> connection-set mapping.
//
// Concurrency guarantees:
// - Register/Unregister for a given user are serialized (per-shard mutex).
// - Snapshot reads never block writers of unrelated shards.
type Registry struct {
	shards [shardCount]shard
}

type shard struct {
	mu    sync.RWMutex
	conns map[string]map[string]struct{} // userID -> set of connIDs
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	r := &Registry{}
	for i := range r.shards {
		r.shards[i].conns = make(map[string]map[string]struct{})
	}
	return r
}

func (r *Registry) shardFor(userID string) *shard {
	return &r.shards[fnv32(userID)%shardCount]
}

// RegisterConnection adds connID to userID's connection set, creating the set
// if absent. It reports whether this was the user's first active connection
// (a transition into "online").
func (r *Registry) RegisterConnection(userID, connID string) bool {
	if userID == "" || connID == "" {
		return false
	}

	s := r.shardFor(userID)
	s.mu.Lock()
	defer s.mu.Unlock()

	set, ok := s.conns[userID]
	if !ok {
		set = make(map[string]struct{})
		s.conns[userID] = set
	}
	wasEmpty := len(set) == 0
	set[connID] = struct{}{}
	return wasEmpty
}

// UnregisterConnection removes connID from userID's connection set and prunes
// the entry when it becomes empty. It reports whether the user transitioned
// into "offline" (the removed connection was the last one).
func (r *Registry) UnregisterConnection(userID, connID string) bool {
	if userID == "" || connID == "" {
		return false
	}

	s := r.shardFor(userID)
	s.mu.Lock()
	defer s.mu.Unlock()

	set, ok := s.conns[userID]
	if !ok {
		return false
	}
	if _, ok := set[connID]; !ok {
		return false
	}
	delete(set, connID)
	if len(set) == 0 {
		delete(s.conns, userID)
		return true
	}
	return false
}

// ConnectionsFor returns a snapshot of userID's open connection ids.
// An empty result is a normal, non-error outcome: delivery is best-effort to
// whoever is currently reachable.
func (r *Registry) ConnectionsFor(userID string) []string {
	if userID == "" {
		return nil
	}

	s := r.shardFor(userID)
	s.mu.RLock()
	defer s.mu.RUnlock()

	set := s.conns[userID]
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// ListOnlineUsers returns a sorted snapshot of all users with at least one
// open connection.
func (r *Registry) ListOnlineUsers() []string {
	var out []string
	for i := range r.shards {
		s := &r.shards[i]
		s.mu.RLock()
		for userID, set := range s.conns {
			if len(set) > 0 {
				out = append(out, userID)
			}
		}
		s.mu.RUnlock()
	}
	sort.Strings(out)
	return out
}

// AllConnections returns a snapshot of every open connection id system-wide.
// Used for the global presence broadcast on each online/offline transition.
func (r *Registry) AllConnections() []string {
	var out []string
	for i := range r.shards {
		s := &r.shards[i]
		s.mu.RLock()
		for _, set := range s.conns {
			for connID := range set {
				out = append(out, connID)
			}
		}
		s.mu.RUnlock()
	}
	sort.Strings(out)
	return out
}

// IsOnline reports whether userID currently has at least one open connection.
func (r *Registry) IsOnline(userID string) bool {
	if userID == "" {
		return false
	}
	s := r.shardFor(userID)
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.conns[userID]) > 0
}

// fnv32 is a small inline FNV-1a hash; enough to pick a shard.
func fnv32(s string) uint32 {
	const (
		offset32 = 2166136261
		prime32  = 16777619
	)
	h := uint32(offset32)
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= prime32
	}
	return h
}
