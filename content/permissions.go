package content

import (
	"context"
	"errors"
	"fmt"
)

// PermissionsService answers "who is responsible for this page".
// Permissions are inherited down the tree, so a page's groups are its own
// plus those of every ancestor.
type PermissionsService struct {
	tree  Tree
	perms PermissionSource
	users UserDirectory
}

func NewPermissionsService(tree Tree, perms PermissionSource, users UserDirectory) *PermissionsService {
	return &PermissionsService{tree: tree, perms: perms, users: users}
}

// GroupsWithPermissionsForPage returns the ids of the groups with more than
// browse permission on the page or any of its ancestors, nearest first.
func (s *PermissionsService) GroupsWithPermissionsForPage(ctx context.Context, pageID int) ([]int, error) {
	chain, err := s.ancestry(ctx, pageID)
	if err != nil {
		return nil, err
	}

	// Resolve from the top down so each node extends its parent's list. The
	// memo holds the inherited list of every node on the chain.
	memo := make(map[int][]int, len(chain))
	var inherited []int
	for i := len(chain) - 1; i >= 0; i-- {
		own, err := s.perms.GroupPermissions(ctx, chain[i])
		if err != nil {
			return nil, fmt.Errorf("failed to load permissions for node %d: %w", chain[i], err)
		}

		seen := make(map[int]struct{}, len(own)+len(inherited))
		resolved := make([]int, 0, len(own)+len(inherited))
		for _, p := range own {
			if !p.Meaningful() {
				continue
			}
			if _, ok := seen[p.GroupID]; !ok {
				seen[p.GroupID] = struct{}{}
				resolved = append(resolved, p.GroupID)
			}
		}
		for _, g := range inherited {
			if _, ok := seen[g]; !ok {
				seen[g] = struct{}{}
				resolved = append(resolved, g)
			}
		}

		memo[chain[i]] = resolved
		inherited = resolved
	}
	return memo[pageID], nil
}

// ancestry returns pageID followed by its ancestors up to the root. An
// ancestor missing from the tree ends the chain early.
func (s *PermissionsService) ancestry(ctx context.Context, pageID int) ([]int, error) {
	var chain []int
	visited := make(map[int]struct{})
	id := pageID
	for {
		if _, ok := visited[id]; ok {
			return nil, fmt.Errorf("content tree has a cycle at node %d", id)
		}
		visited[id] = struct{}{}

		node, err := s.tree.Node(ctx, id)
		if err != nil {
			if id != pageID && errors.Is(err, ErrNodeNotFound) {
				return chain, nil
			}
			return nil, fmt.Errorf("failed to load node %d: %w", id, err)
		}
		chain = append(chain, node.ID)
		if node.ParentID == nil {
			return chain, nil
		}
		id = *node.ParentID
	}
}

// ActiveUsersInGroup returns the group members whose accounts are enabled.
func (s *PermissionsService) ActiveUsersInGroup(ctx context.Context, groupID int) ([]*User, error) {
	members, err := s.users.GroupMembers(ctx, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to list members of group %d: %w", groupID, err)
	}
	active := make([]*User, 0, len(members))
	for _, u := range members {
		if u.Active {
			active = append(active, u)
		}
	}
	return active, nil
}

// UserIDsForPage returns every member, active or not, of the groups
// responsible for the page.
func (s *PermissionsService) UserIDsForPage(ctx context.Context, pageID int) ([]int, error) {
	groups, err := s.GroupsWithPermissionsForPage(ctx, pageID)
	if err != nil {
		return nil, err
	}

	seen := make(map[int]struct{})
	ids := []int{}
	for _, g := range groups {
		members, err := s.users.GroupMembers(ctx, g)
		if err != nil {
			return nil, fmt.Errorf("failed to list members of group %d: %w", g, err)
		}
		for _, u := range members {
			if _, ok := seen[u.ID]; ok {
				continue
			}
			seen[u.ID] = struct{}{}
			ids = append(ids, u.ID)
		}
	}
	return ids, nil
}

// UsersResponsibleFor returns the active users who should be told the page
// is about to expire. An empty result means nobody can act on the page.
func (s *PermissionsService) UsersResponsibleFor(ctx context.Context, pageID int) ([]*User, error) {
	groups, err := s.GroupsWithPermissionsForPage(ctx, pageID)
	if err != nil {
		return nil, err
	}

	seen := make(map[int]struct{})
	var users []*User
	for _, g := range groups {
		active, err := s.ActiveUsersInGroup(ctx, g)
		if err != nil {
			return nil, err
		}
		for _, u := range active {
			if _, ok := seen[u.ID]; ok {
				continue
			}
			seen[u.ID] = struct{}{}
			users = append(users, u)
		}
	}
	return users, nil
}
