package notifier

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"text/template"
	"time"

	"github.com/liamcoop/expiry/content"
)

// Message is a plain text email.
type Message struct {
	To      string
	Subject string
	Body    string
}

// EmailSettings are the site details that go into every email.
type EmailSettings struct {
	WebsiteName      string
	SiteURI          string
	GuidanceURL      string
	AdminEmail       string
	ForceSendTo      string
	EmailAdminAtDays int
}

// recipient applies ForceSendTo, used on test systems.
func (s EmailSettings) recipient(to string) string {
	if s.ForceSendTo != "" {
		return s.ForceSendTo
	}
	return to
}

const notVisible = "This page is not visible on the live site."

type emailPage struct {
	Name     string
	EditLink string
	URL      string
	Expires  string
}

type authorEmail struct {
	Site        string
	GuidanceURL string
	Tomorrow    []emailPage
	OtherTitle  string
	Other       []emailPage
	Never       []emailPage
}

var authorTemplate = template.Must(template.New("author").Funcs(funcs).Parse(`Your {{.Site}} pages will expire within the next two weeks. After this they will no longer be available to the public. The dates for each page are given below.

After you've logged in, open each page below and:
  - check it is up to date
  - check the information is still needed
  - on the Properties tab, use the calendar to set a new date in the 'Unpublish at' box
  - then click 'Save and publish'.

For details on updating your pages, see Guidance for web authors: {{.GuidanceURL}}
{{if .Tomorrow}}
PAGES EXPIRING TOMORROW
{{range $i, $p := .Tomorrow}}
{{inc $i}}. {{$p.Name}} (expires {{$p.Expires}})
   Edit: {{$p.EditLink}}
   {{$p.URL}}
{{end}}{{end}}{{if .Other}}
{{.OtherTitle}}
{{range $i, $p := .Other}}
{{inc $i}}. {{$p.Name}} (expires {{$p.Expires}})
   Edit: {{$p.EditLink}}
   {{$p.URL}}
{{end}}{{end}}{{if .Never}}
PAGES NEVER EXPIRING

As these pages never expire, it's important to check them periodically.
After you've logged in, open each page below and:
  - check it is up to date
  - check the information is still needed
  - then click 'Save and publish'.
You don't need to worry about setting any dates.
{{range $i, $p := .Never}}
{{inc $i}}. {{$p.Name}}
   Edit: {{$p.EditLink}}
   {{$p.URL}}
{{end}}{{end}}`))

var adminTemplate = template.Must(template.New("admin").Funcs(funcs).Parse(`These {{.Site}} pages will expire within the next {{.Days}} days. After this they will no longer be available to the public.

After you've logged in, open each page below and:
  - check it is up to date
  - check the information is still needed
  - on the Properties tab, use the calendar to set a new date in the 'Unpublish at' box
  - then click 'Save and publish'.

For details on updating pages, see Guidance for web authors: {{.GuidanceURL}}

EXPIRING PAGES
{{range $i, $p := .Pages}}
{{inc $i}}. {{$p.Name}} (expires {{$p.Expires}})
   Edit: {{$p.EditLink}}
   {{$p.URL}}
{{end}}`))

var funcs = template.FuncMap{
	"inc": func(i int) int { return i + 1 },
}

// FormatExpiry renders an expiry date for an email, for example
// "Friday, 1 March 2024, 9:00 AM".
func FormatExpiry(t time.Time) string {
	return t.Format("Monday, 2 January 2006, 3:04 PM")
}

func (s EmailSettings) editLink(pageID int) string {
	return s.SiteURI + "#/content/content/edit/" + strconv.Itoa(pageID)
}

func (s EmailSettings) toEmailPage(p content.Page) emailPage {
	ep := emailPage{Name: p.Name, EditLink: s.editLink(p.ID), URL: p.URL}
	if ep.URL == "" || ep.URL == "#" {
		ep.URL = notVisible
	}
	if p.ExpiryDate != nil {
		ep.Expires = FormatExpiry(*p.ExpiryDate)
	}
	return ep
}

// AuthorEmail builds the reminder for one author. It returns false when the
// author has no dated pages; never-expiring pages alone do not warrant an email.
func (s EmailSettings) AuthorEmail(u *PagesForUser, now time.Time) (*Message, bool, error) {
	warningDate := now.AddDate(0, 0, 2)
	data := authorEmail{Site: s.WebsiteName, GuidanceURL: s.GuidanceURL, OtherTitle: "EXPIRING PAGES"}

	for _, p := range u.Pages {
		switch {
		case p.ExpiryDate == nil:
			data.Never = append(data.Never, s.toEmailPage(p))
		case !p.ExpiryDate.After(warningDate):
			data.Tomorrow = append(data.Tomorrow, s.toEmailPage(p))
		default:
			data.Other = append(data.Other, s.toEmailPage(p))
		}
	}
	if len(data.Tomorrow) == 0 && len(data.Other) == 0 {
		return nil, false, nil
	}
	if len(data.Tomorrow) > 0 {
		data.OtherTitle = "OTHER PAGES"
	}

	var body bytes.Buffer
	if err := authorTemplate.Execute(&body, data); err != nil {
		return nil, false, fmt.Errorf("failed to render author email: %w", err)
	}
	return &Message{
		To:      s.recipient(u.User.Email),
		Subject: fmt.Sprintf("ACTION: Your %s pages expire in under 14 days", s.WebsiteName),
		Body:    strings.TrimSpace(body.String()) + "\n",
	}, true, nil
}

// AdminEmail builds the last warning sent to the administrator.
func (s EmailSettings) AdminEmail(pages []content.Page) (*Message, error) {
	data := struct {
		Site        string
		Days        int
		GuidanceURL string
		Pages       []emailPage
	}{Site: s.WebsiteName, Days: s.EmailAdminAtDays, GuidanceURL: s.GuidanceURL}
	for _, p := range pages {
		data.Pages = append(data.Pages, s.toEmailPage(p))
	}

	var body bytes.Buffer
	if err := adminTemplate.Execute(&body, data); err != nil {
		return nil, fmt.Errorf("failed to render admin email: %w", err)
	}
	return &Message{
		To:      s.recipient(s.AdminEmail),
		Subject: fmt.Sprintf("ACTION: The following %s pages expire in under %d days", s.WebsiteName, s.EmailAdminAtDays),
		Body:    strings.TrimSpace(body.String()) + "\n",
	}, nil
}
