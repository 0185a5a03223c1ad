// Package content models the CMS content tree, its users and permissions,
// and the services built on top of them.
package content

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNodeNotFound = errors.New("content node not found")
	ErrUserNotFound = errors.New("user not found")
)

// Node is a page in the content tree.
type Node struct {
	ID           int        `json:"id"`
	ParentID     *int       `json:"parentId,omitempty"`
	Name         string     `json:"name"`
	URLName      string     `json:"urlName,omitempty"`
	URL          string     `json:"url,omitempty"`
	DocumentType string     `json:"documentType"`
	TreeLevel    int        `json:"level"`
	SortOrder    int        `json:"sortOrder"`
	Published    bool       `json:"published"`
	Expires      *time.Time `json:"expireDate,omitempty"`
}

func (n *Node) DocumentTypeAlias() string { return n.DocumentType }
func (n *Node) Level() int                { return n.TreeLevel }
func (n *Node) ExpireDate() *time.Time    { return n.Expires }

// Clone returns a deep copy of n.
func (n *Node) Clone() *Node {
	c := *n
	if n.ParentID != nil {
		p := *n.ParentID
		c.ParentID = &p
	}
	if n.Expires != nil {
		e := *n.Expires
		c.Expires = &e
	}
	return &c
}

// User is a back-office account.
type User struct {
	ID     int    `json:"userId"`
	Name   string `json:"fullName"`
	Email  string `json:"emailAddress"`
	Active bool   `json:"active"`
}

// GroupPermission is the set of permission codes a user group holds on a node.
type GroupPermission struct {
	GroupID     int
	Permissions []string
}

// Meaningful reports whether the permission grants more than browsing.
// An empty entry ("-") or browse-only entry ("F") does not make the group
// responsible for the page.
func (p GroupPermission) Meaningful() bool {
	if len(p.Permissions) == 0 {
		return false
	}
	if len(p.Permissions) > 1 {
		return true
	}
	return p.Permissions[0] != "-" && p.Permissions[0] != "F"
}

// Tree gives read access to the content tree and lets expiry dates be written back.
type Tree interface {
	Node(ctx context.Context, id int) (*Node, error)
	Children(ctx context.Context, id int) ([]*Node, error)
	Roots(ctx context.Context) ([]*Node, error)
	SetExpireDate(ctx context.Context, id int, expires *time.Time) error
}

// PageIndex finds published pages by expiry date.
type PageIndex interface {
	// ExpiringPages returns published pages whose expiry date falls in
	// [from, to], plus published pages with no expiry date.
	ExpiringPages(ctx context.Context, from, to time.Time) ([]*Node, error)
}

// PermissionSource lists the permissions assigned directly on a node.
type PermissionSource interface {
	GroupPermissions(ctx context.Context, nodeID int) ([]GroupPermission, error)
}

// UserDirectory looks up users and group membership.
type UserDirectory interface {
	User(ctx context.Context, id int) (*User, error)
	GroupMembers(ctx context.Context, groupID int) ([]*User, error)
}

// Repository is everything the expiry services need from the CMS.
type Repository interface {
	Tree
	PageIndex
	PermissionSource
	UserDirectory
}
