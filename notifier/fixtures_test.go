package notifier

import (
	"context"
	"fmt"
	"time"

	"github.com/liamcoop/expiry/content"
)

var now = time.Date(2024, time.March, 1, 9, 0, 0, 0, time.UTC)

func days(n float64) *time.Time {
	t := now.Add(time.Duration(n * 24 * float64(time.Hour)))
	return &t
}

type fakeSource struct {
	pages     []content.Page
	perms     map[int][]int
	users     map[int]*content.User
	userCalls int
	pagesErr  error
}

func (f *fakeSource) ExpiringPages(_ context.Context, _ int) ([]content.Page, error) {
	if f.pagesErr != nil {
		return nil, f.pagesErr
	}
	return f.pages, nil
}

func (f *fakeSource) PermissionsForPage(_ context.Context, pageID int) ([]int, error) {
	return f.perms[pageID], nil
}

func (f *fakeSource) UserByID(_ context.Context, userID int) (*content.User, error) {
	f.userCalls++
	u, ok := f.users[userID]
	if !ok {
		return nil, fmt.Errorf("%w: %d", content.ErrUserNotFound, userID)
	}
	c := *u
	return &c, nil
}

// siteSource has an orphaned page, a page only a leaver can edit, a shared
// page and a page that never expires.
func siteSource() *fakeSource {
	return &fakeSource{
		pages: []content.Page{
			{ID: 1, Name: "Bins", URL: "/bins/", ExpiryDate: days(1)},
			{ID: 2, Name: "Parking", URL: "/parking/", ExpiryDate: days(3.5)},
			{ID: 3, Name: "Orphan", URL: "#", ExpiryDate: days(10)},
			{ID: 4, Name: "Old news", URL: "/news/old/", ExpiryDate: days(12)},
			{ID: 5, Name: "Home", URL: "/"},
		},
		perms: map[int][]int{
			1: {10, 11},
			2: {11},
			4: {12},
			5: {10},
		},
		users: map[int]*content.User{
			10: {ID: 10, Name: "Editor", Email: "editor@example.org", Active: true},
			11: {ID: 11, Name: "Writer", Email: "writer@example.org", Active: true},
			12: {ID: 12, Name: "Leaver", Email: "leaver@example.org", Active: false},
		},
	}
}

func pageIDs(pages []content.Page) []int {
	ids := []int{}
	for _, p := range pages {
		ids = append(ids, p.ID)
	}
	return ids
}

var testSettings = EmailSettings{
	WebsiteName:      "Example Council",
	SiteURI:          "https://cms.example.org/umbraco/",
	GuidanceURL:      "https://example.org/guidance",
	AdminEmail:       "webstaff@example.org",
	EmailAdminAtDays: 3,
}
