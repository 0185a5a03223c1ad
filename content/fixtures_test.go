package content

import "time"

func intPtr(i int) *int { return &i }

func date(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 9, 0, 0, 0, time.UTC)
	return &t
}

// siteFixture builds:
//
//	1 Home (/)
//	└── 2 Services (/services/)
//	    ├── 3 Bins (/services/bins/)
//	    └── 4 Draft page (unpublished)
//	5 Archive (/archive/)
func siteFixture() *MemoryRepository {
	repo := NewMemoryRepository()
	repo.AddNode(&Node{ID: 1, Name: "Home", URL: "/", DocumentType: "home", TreeLevel: 1, Published: true})
	repo.AddNode(&Node{ID: 2, ParentID: intPtr(1), Name: "Services", URL: "/services/", DocumentType: "landing", TreeLevel: 2, Published: true})
	repo.AddNode(&Node{ID: 3, ParentID: intPtr(2), Name: "Bins", URL: "/services/bins/", DocumentType: "content", TreeLevel: 3, SortOrder: 1, Published: true, Expires: date(2024, time.March, 10)})
	repo.AddNode(&Node{ID: 4, ParentID: intPtr(2), Name: "Draft page", DocumentType: "content", TreeLevel: 3, SortOrder: 2})
	repo.AddNode(&Node{ID: 5, Name: "Archive", URL: "/archive/", DocumentType: "landing", TreeLevel: 1, SortOrder: 1, Published: true, Expires: date(2024, time.March, 2)})

	repo.AddUser(&User{ID: 10, Name: "Editor", Email: "editor@example.org", Active: true})
	repo.AddUser(&User{ID: 11, Name: "Writer", Email: "writer@example.org", Active: true})
	repo.AddUser(&User{ID: 12, Name: "Leaver", Email: "leaver@example.org", Active: false})

	repo.AddGroupMember(100, 10)
	repo.AddGroupMember(200, 11)
	repo.AddGroupMember(200, 12)
	repo.AddGroupMember(300, 12)
	return repo
}
