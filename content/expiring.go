package content

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/liamcoop/expiry/rules"
)

// Page is a published page as reported to the people who look after it.
type Page struct {
	ID         int        `json:"pageId"`
	Name       string     `json:"pageName"`
	URL        string     `json:"pageUrl"`
	ExpiryDate *time.Time `json:"expiryDate,omitempty"`
}

// PageExpiryService reports pages that are about to expire and who can
// act on them.
type PageExpiryService struct {
	index PageIndex
	users UserDirectory
	perms *PermissionsService
	urls  *URLBuilder
	now   func() time.Time
}

func NewPageExpiryService(repo Repository) *PageExpiryService {
	return &PageExpiryService{
		index: repo,
		users: repo,
		perms: NewPermissionsService(repo, repo, repo),
		urls:  NewURLBuilder(repo),
		now:   time.Now,
	}
}

// ExpiringPages returns published pages expiring between the start of today
// and days from then, followed by published pages that never expire.
func (s *PageExpiryService) ExpiringPages(ctx context.Context, days int) ([]Page, error) {
	if days < 0 {
		return nil, fmt.Errorf("%w: days must not be negative, got %d", rules.ErrInvalidArgument, days)
	}

	now := s.now()
	from := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	to := from.AddDate(0, 0, days)

	nodes, err := s.index.ExpiringPages(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query expiring pages: %w", err)
	}

	pages := make([]Page, 0, len(nodes))
	for _, n := range nodes {
		url, err := s.urls.URL(ctx, n)
		if err != nil {
			return nil, err
		}
		pages = append(pages, Page{ID: n.ID, Name: n.Name, URL: url, ExpiryDate: n.Expires})
	}

	slices.SortStableFunc(pages, comparePages)
	return pages, nil
}

func comparePages(a, b Page) int {
	switch {
	case a.ExpiryDate == nil && b.ExpiryDate == nil:
		return cmp.Compare(a.ID, b.ID)
	case a.ExpiryDate == nil:
		return 1
	case b.ExpiryDate == nil:
		return -1
	}
	if c := a.ExpiryDate.Compare(*b.ExpiryDate); c != 0 {
		return c
	}
	return cmp.Compare(a.ID, b.ID)
}

// PermissionsForPage returns the ids of users in groups with edit rights to
// the page, including disabled accounts.
func (s *PageExpiryService) PermissionsForPage(ctx context.Context, pageID int) ([]int, error) {
	return s.perms.UserIDsForPage(ctx, pageID)
}

// ResponsibleUsers returns the active users who can act on the page.
func (s *PageExpiryService) ResponsibleUsers(ctx context.Context, pageID int) ([]*User, error) {
	return s.perms.UsersResponsibleFor(ctx, pageID)
}

// UserByID looks up a single user.
func (s *PageExpiryService) UserByID(ctx context.Context, userID int) (*User, error) {
	return s.users.User(ctx, userID)
}

// Permissions exposes the underlying permissions service.
func (s *PageExpiryService) Permissions() *PermissionsService {
	return s.perms
}
