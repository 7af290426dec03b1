package hub

import (
	"fmt"
	"sort"
	"sync"
)

// Outbound delivers encoded frames to a single peer. Send must not block for
// long because it is called with the registry locked.
type Outbound interface {
	Send(frame []byte) error
}

type record struct {
	outbound Outbound
	username string
	named    bool
}

// Member describes a registry entry.
type Member struct {
	ID       ConnID
	Username string
	Named    bool
}

// JoinSnapshot is the registry membership as it was just before an insert.
type JoinSnapshot struct {
	PreviousUsers []string
	PreviousCount int
}

// Registry maps connection ids to their outbound channel and optional
// username. All access goes through one mutex.
type Registry struct {
	mu      sync.Mutex
	records map[ConnID]*record
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{records: make(map[ConnID]*record)}
}

// Register inserts a connection. username may be nil for an anonymous peer.
// The returned snapshot reflects membership before the insert.
func (r *Registry) Register(id ConnID, out Outbound, username *string) (JoinSnapshot, error) {
	if out == nil {
		return JoinSnapshot{}, fmt.Errorf("register %s: nil outbound", id)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.records[id]; exists {
		return JoinSnapshot{}, fmt.Errorf("register %s: %w", id, ErrDuplicateConn)
	}

	snapshot := JoinSnapshot{
		PreviousUsers: r.usernamesLocked(),
		PreviousCount: len(r.records),
	}

	rec := &record{outbound: out}
	if username != nil {
		rec.username = *username
		rec.named = true
	}
	r.records[id] = rec

	return snapshot, nil
}

// Remove deletes a connection and reports what was removed. Removing an
// unknown id is a no-op.
func (r *Registry) Remove(id ConnID) (Member, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[id]
	if !ok {
		return Member{}, false
	}
	delete(r.records, id)
	return Member{ID: id, Username: rec.username, Named: rec.named}, true
}

// SnapshotUsernames returns the usernames of all named connections, sorted.
func (r *Registry) SnapshotUsernames() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.usernamesLocked()
}

// ForEachOutbound calls fn for every live connection while holding the
// registry lock. fn must not call back into the registry.
func (r *Registry) ForEachOutbound(fn func(id ConnID, out Outbound)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, rec := range r.records {
		fn(id, rec.outbound)
	}
}

// Len returns the number of registered connections.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records)
}

// Contains reports whether id is registered.
func (r *Registry) Contains(id ConnID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.records[id]
	return ok
}

func (r *Registry) usernamesLocked() []string {
	users := make([]string, 0, len(r.records))
	for _, rec := range r.records {
		if rec.named {
			users = append(users, rec.username)
		}
	}
	sort.Strings(users)
	return users
}

// deliverLocked sends frame to every connection and evicts the ones whose
// outbound reports ErrOutboundClosed. It returns the number of attempts and
// the evicted members. Caller holds r.mu.
func (r *Registry) deliverLocked(frame []byte, onFailure func(id ConnID, err error)) (int, []Member) {
	attempts := 0
	var evicted []Member

	for id, rec := range r.records {
		attempts++
		err := safeSend(rec.outbound, frame)
		if err == nil {
			continue
		}
		if onFailure != nil {
			onFailure(id, err)
		}
		if isPermanent(err) {
			delete(r.records, id)
			evicted = append(evicted, Member{ID: id, Username: rec.username, Named: rec.named})
		}
	}

	return attempts, evicted
}

func safeSend(out Outbound, frame []byte) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("%w: send panicked: %v", ErrOutboundClosed, rec)
		}
	}()
	return out.Send(frame)
}
