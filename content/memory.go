package content

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"
)

// MemoryRepository is an in-memory Repository for tests and local runs.
type MemoryRepository struct {
	mu      sync.RWMutex
	nodes   map[int]*Node
	perms   map[int][]GroupPermission
	users   map[int]*User
	members map[int][]int
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		nodes:   make(map[int]*Node),
		perms:   make(map[int][]GroupPermission),
		users:   make(map[int]*User),
		members: make(map[int][]int),
	}
}

// AddNode stores a copy of n, replacing any node with the same id.
func (r *MemoryRepository) AddNode(n *Node) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nodes[n.ID] = n.Clone()
}

func (r *MemoryRepository) AddUser(u *User) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := *u
	r.users[u.ID] = &c
}

func (r *MemoryRepository) AddGroupMember(groupID, userID int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !slices.Contains(r.members[groupID], userID) {
		r.members[groupID] = append(r.members[groupID], userID)
	}
}

// SetPermissions replaces the permissions a group holds on a node.
func (r *MemoryRepository) SetPermissions(nodeID, groupID int, permissions ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry := GroupPermission{GroupID: groupID, Permissions: slices.Clone(permissions)}
	list := r.perms[nodeID]
	for i := range list {
		if list[i].GroupID == groupID {
			list[i] = entry
			return
		}
	}
	r.perms[nodeID] = append(list, entry)
}

func (r *MemoryRepository) Node(_ context.Context, id int) (*Node, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n, ok := r.nodes[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrNodeNotFound, id)
	}
	return n.Clone(), nil
}

func (r *MemoryRepository) Children(_ context.Context, id int) ([]*Node, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.collect(func(n *Node) bool { return n.ParentID != nil && *n.ParentID == id }), nil
}

func (r *MemoryRepository) Roots(_ context.Context) ([]*Node, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.collect(func(n *Node) bool { return n.ParentID == nil }), nil
}

func (r *MemoryRepository) SetExpireDate(_ context.Context, id int, expires *time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.nodes[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrNodeNotFound, id)
	}
	if expires == nil {
		n.Expires = nil
		return nil
	}
	e := *expires
	n.Expires = &e
	return nil
}

func (r *MemoryRepository) ExpiringPages(_ context.Context, from, to time.Time) ([]*Node, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.collect(func(n *Node) bool {
		if !n.Published {
			return false
		}
		if n.Expires == nil {
			return true
		}
		return !n.Expires.Before(from) && !n.Expires.After(to)
	}), nil
}

func (r *MemoryRepository) GroupPermissions(_ context.Context, nodeID int) ([]GroupPermission, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	list := r.perms[nodeID]
	out := make([]GroupPermission, len(list))
	for i, p := range list {
		out[i] = GroupPermission{GroupID: p.GroupID, Permissions: slices.Clone(p.Permissions)}
	}
	return out, nil
}

func (r *MemoryRepository) User(_ context.Context, id int) (*User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.users[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUserNotFound, id)
	}
	c := *u
	return &c, nil
}

func (r *MemoryRepository) GroupMembers(_ context.Context, groupID int) ([]*User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*User
	for _, id := range r.members[groupID] {
		if u, ok := r.users[id]; ok {
			c := *u
			out = append(out, &c)
		}
	}
	return out, nil
}

// collect returns copies of the matching nodes ordered by sort order then id.
// Callers hold the read lock.
func (r *MemoryRepository) collect(match func(*Node) bool) []*Node {
	var out []*Node
	for _, n := range r.nodes {
		if match(n) {
			out = append(out, n.Clone())
		}
	}
	slices.SortFunc(out, func(a, b *Node) int {
		if c := cmp.Compare(a.SortOrder, b.SortOrder); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out
}
