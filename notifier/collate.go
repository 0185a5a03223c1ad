// Package notifier emails web authors about their pages that are about to
// expire, and warns the site administrator about pages nobody has dealt with.
package notifier

import (
	"context"
	"fmt"

	"github.com/liamcoop/expiry/content"
)

// AdminUserID marks the administrator's bucket. No real user has this id.
const AdminUserID = -1

// PagesForUser is one recipient and the pages they need to look at.
type PagesForUser struct {
	User  content.User   `json:"user"`
	Pages []content.Page `json:"pages"`
}

// Source lists expiring pages and who can edit them. It is satisfied by
// *content.PageExpiryService in process and by APIClient over HTTP.
type Source interface {
	ExpiringPages(ctx context.Context, days int) ([]content.Page, error)
	PermissionsForPage(ctx context.Context, pageID int) ([]int, error)
	UserByID(ctx context.Context, userID int) (*content.User, error)
}

// Collate groups the pages expiring in the next days by the users who can
// edit them. The administrator always comes first and gets every page that
// has no editor with an active account.
func Collate(ctx context.Context, src Source, days int, adminEmail string) ([]*PagesForUser, error) {
	pages, err := src.ExpiringPages(ctx, days)
	if err != nil {
		return nil, fmt.Errorf("failed to get expiring pages: %w", err)
	}

	admin := &PagesForUser{User: content.User{ID: AdminUserID, Name: "Administrator", Email: adminEmail, Active: true}}
	buckets := []*PagesForUser{admin}
	byID := map[int]*PagesForUser{}
	users := map[int]*content.User{}

	for _, page := range pages {
		ids, err := src.PermissionsForPage(ctx, page.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to get permissions for page %d: %w", page.ID, err)
		}

		var active []int
		for _, id := range ids {
			u, ok := users[id]
			if !ok {
				u, err = src.UserByID(ctx, id)
				if err != nil {
					return nil, fmt.Errorf("failed to get user %d: %w", id, err)
				}
				users[id] = u
			}
			if !u.Active {
				continue
			}
			if _, ok := byID[id]; !ok {
				b := &PagesForUser{User: *u}
				byID[id] = b
				buckets = append(buckets, b)
			}
			active = append(active, id)
		}

		if len(active) == 0 {
			admin.Pages = append(admin.Pages, page)
			continue
		}
		seen := map[int]struct{}{}
		for _, id := range active {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			byID[id].Pages = append(byID[id].Pages, page)
		}
	}

	return buckets, nil
}
