package notifier

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/liamcoop/expiry/internal/metrics"
)

// Options configures a Notifier. Zero values fall back to sensible defaults.
type Options struct {
	// Days is how far ahead to look for expiring pages. Default 14.
	Days       int
	Settings   EmailSettings
	Escalation *EscalationFilter
	Metrics    *metrics.Metrics
	Logger     *slog.Logger
	Now        func() time.Time
}

// Notifier runs one round of expiry emails: a reminder to every author with
// expiring pages, then a last warning to the administrator.
type Notifier struct {
	source     Source
	sender     Sender
	logs       LogRepository
	days       int
	settings   EmailSettings
	escalation *EscalationFilter
	metrics    *metrics.Metrics
	log        *slog.Logger
	now        func() time.Time
}

// RunSummary describes one run.
type RunSummary struct {
	RunID        string        `json:"runId"`
	StartedAt    time.Time     `json:"startedAt"`
	Duration     time.Duration `json:"duration"`
	Users        int           `json:"users"`
	AuthorsSent  int           `json:"authorsSent"`
	AuthorsFail  int           `json:"authorsFailed"`
	Skipped      int           `json:"skipped"`
	AdminPages   int           `json:"adminPages"`
	AdminSent    bool          `json:"adminSent"`
	AdminFailure string        `json:"adminFailure,omitempty"`
}

func New(source Source, sender Sender, logs LogRepository, opts Options) (*Notifier, error) {
	if opts.Days <= 0 {
		opts.Days = 14
	}
	if opts.Escalation == nil {
		f, err := NewEscalationFilter(DefaultEscalation(opts.Settings.EmailAdminAtDays))
		if err != nil {
			return nil, err
		}
		opts.Escalation = f
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Notifier{
		source:     source,
		sender:     sender,
		logs:       logs,
		days:       opts.Days,
		settings:   opts.Settings,
		escalation: opts.Escalation,
		metrics:    opts.Metrics,
		log:        opts.Logger.With(slog.String("component", "notifier")),
		now:        opts.Now,
	}, nil
}

// Run collates the expiring pages and sends the emails. Failing to reach the
// page source is an error; a failed email is logged, recorded and counted.
func (n *Notifier) Run(ctx context.Context) (*RunSummary, error) {
	start := time.Now()
	now := n.now()
	summary := &RunSummary{RunID: uuid.NewString(), StartedAt: now}
	log := n.log.With(slog.String("run_id", summary.RunID))

	log.Info("checking for expiring pages", slog.Int("days", n.days))
	users, err := Collate(ctx, n.source, n.days, n.settings.AdminEmail)
	if err != nil {
		return nil, fmt.Errorf("failed to collate expiring pages: %w", err)
	}
	summary.Users = len(users)

	for _, u := range users {
		if len(u.Pages) == 0 {
			continue
		}
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		n.notifyAuthor(ctx, log, u, now, summary)
	}

	n.notifyAdmin(ctx, log, users, now, summary)

	summary.Duration = time.Since(start)
	log.Info("expiry email run complete",
		slog.Int("authors_sent", summary.AuthorsSent),
		slog.Int("authors_failed", summary.AuthorsFail),
		slog.Int("admin_pages", summary.AdminPages),
		slog.Duration("duration", summary.Duration))
	return summary, nil
}

func (n *Notifier) notifyAuthor(ctx context.Context, log *slog.Logger, u *PagesForUser, now time.Time, summary *RunSummary) {
	msg, ok, err := n.settings.AuthorEmail(u, now)
	if err == nil && !ok {
		summary.Skipped++
		return
	}
	if err == nil {
		err = n.sender.Send(ctx, msg)
	}

	to := u.User.Email
	if msg != nil {
		to = msg.To
	}
	entry := &LogEntry{EmailAddress: to, Success: err == nil, Pages: u.Pages}
	if logErr := n.logs.Record(ctx, entry); logErr != nil {
		log.Error("failed to record notification", slog.String("email", to), slog.String("err", logErr.Error()))
	}
	n.metrics.RecordNotification("author", err == nil)

	if err != nil {
		summary.AuthorsFail++
		log.Error("failure sending expiry email", slog.String("email", u.User.Email), slog.String("err", err.Error()))
		return
	}
	summary.AuthorsSent++
	log.Info("expiry email sent", slog.String("email", to), slog.Int("pages", len(u.Pages)))
}

func (n *Notifier) notifyAdmin(ctx context.Context, log *slog.Logger, users []*PagesForUser, now time.Time, summary *RunSummary) {
	pages := n.escalation.Escalate(users, now)
	summary.AdminPages = len(pages)
	if len(pages) == 0 {
		return
	}

	msg, err := n.settings.AdminEmail(pages)
	if err == nil {
		err = n.sender.Send(ctx, msg)
	}
	n.metrics.RecordNotification("admin", err == nil)
	if err != nil {
		summary.AdminFailure = err.Error()
		log.Error("failure sending warning email to admins", slog.String("err", err.Error()))
		return
	}
	summary.AdminSent = true
	log.Info("warning email sent", slog.String("email", msg.To), slog.Int("pages", len(pages)))
}
