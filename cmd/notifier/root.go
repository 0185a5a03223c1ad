package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/liamcoop/expiry/config"
	"github.com/liamcoop/expiry/internal/logger"
	"github.com/liamcoop/expiry/internal/metrics"
	"github.com/liamcoop/expiry/notifier"
	"github.com/liamcoop/expiry/policy"
	"github.com/spf13/cobra"
)

type app struct {
	configDir string
	logLevel  string
	cfg       *config.Config
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "expiry-notifier",
		Short: "Email web authors about pages that are about to expire",
		Long: `expiry-notifier asks the content expiry API which pages expire soon,
emails each author the pages they can edit, and sends the site
administrator a last warning about pages nobody has dealt with.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Annotations["config"] == "none" {
				return nil
			}
			cfg, err := config.Load(a.configDir)
			if err != nil {
				return err
			}
			if a.logLevel != "" {
				cfg.LogLevel = a.logLevel
			}
			logger.Setup(logger.Options{
				Level:  cfg.LogLevel,
				Format: cfg.LogType,
				Color:  cfg.Env == "local",
				Output: cmd.ErrOrStderr(),
			})
			a.cfg = cfg
			logger.Debug("command started", slog.String("command", cmd.Name()))
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&a.configDir, "config", "", "Directory containing config.yaml (default: working directory)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "Override log_level from the config file")

	root.AddCommand(a.runCmd(), a.onceCmd(), a.historyCmd(), a.validateRulesCmd())
	return root
}

func (a *app) runCmd() *cobra.Command {
	var metricsAddr string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Send expiry emails on the configured schedule",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			m := a.metrics()
			logs, closeLogs, err := openLogs(a.cfg)
			if err != nil {
				return err
			}
			defer closeLogs()

			n, err := buildNotifier(a.cfg, notifier.NewSMTPSender(a.cfg.NotifierSettings.SMTP), logs, m)
			if err != nil {
				return err
			}
			sched, err := notifier.NewScheduler(n, a.cfg.NotifierSettings.Schedule)
			if err != nil {
				return err
			}
			if err := sched.Start(ctx); err != nil {
				return err
			}
			if next := sched.NextRun(); next != nil {
				logger.Info("next expiry email run", slog.Time("at", *next))
			}

			if metricsAddr != "" && m != nil {
				srv := &http.Server{Addr: metricsAddr, Handler: m.Handler(), ReadHeaderTimeout: 5 * time.Second}
				go func() {
					if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						logger.Error("metrics listener stopped", slog.String("err", err.Error()))
					}
				}()
				defer srv.Close()
			}

			<-ctx.Done()
			sched.Stop()
			return nil
		},
	}
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address, e.g. :9102")
	return cmd
}

func (a *app) onceCmd() *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "once",
		Short: "Send expiry emails now and exit",
		Long: `once runs a single round of expiry emails. With --dry-run nothing is
sent or logged; the emails that would have gone out are printed instead.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			var (
				sender    notifier.Sender
				logs      notifier.LogRepository
				closeLogs func()
				err       error
				outbox    *notifier.MemorySender
			)
			if dryRun {
				outbox = &notifier.MemorySender{}
				sender = outbox
				repo, err := notifier.NewSQLiteLogRepository(":memory:")
				if err != nil {
					return err
				}
				logs, closeLogs = repo, func() { _ = repo.Close() }
			} else {
				sender = notifier.NewSMTPSender(a.cfg.NotifierSettings.SMTP)
				logs, closeLogs, err = openLogs(a.cfg)
				if err != nil {
					return err
				}
			}
			defer closeLogs()

			n, err := buildNotifier(a.cfg, sender, logs, nil)
			if err != nil {
				return err
			}
			summary, err := n.Run(ctx)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if outbox != nil {
				printMessages(out, outbox.Sent)
			}
			return printJSON(out, summary)
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Print the emails instead of sending them")
	return cmd
}

func (a *app) historyCmd() *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List logged expiry emails, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			logs, closeLogs, err := openLogs(a.cfg)
			if err != nil {
				return err
			}
			defer closeLogs()

			ctx := cmd.Context()
			var entries []*notifier.LogEntry
			switch status {
			case "all":
				entries, err = logs.All(ctx)
			case "success":
				entries, err = logs.Successes(ctx)
			case "failure":
				entries, err = logs.Failures(ctx)
			default:
				return fmt.Errorf("--status must be all, success or failure, got %q", status)
			}
			if err != nil {
				return err
			}
			printHistory(cmd.OutOrStdout(), entries)
			return nil
		},
	}
	cmd.Flags().StringVar(&status, "status", "all", "Filter by outcome: all, success or failure")
	return cmd
}

func (a *app) validateRulesCmd() *cobra.Command {
	return &cobra.Command{
		Use:         "validate-rules <file>",
		Short:       "Check an expiry rules file without loading it",
		Args:        cobra.ExactArgs(1),
		Annotations: map[string]string{"config": "none"},
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := policy.LoadFile(args[0])
			if err != nil {
				return err
			}
			if err := policy.ValidateFile(f); err != nil {
				return fmt.Errorf("%s is not valid:\n%w", args[0], err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d rules ok\n", args[0], len(f.Definitions()))
			return nil
		},
	}
}

func (a *app) metrics() *metrics.Metrics {
	if !a.cfg.MetricsSettings.Enabled {
		return nil
	}
	return metrics.New(a.cfg.MetricsSettings.Namespace)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printMessages(w io.Writer, msgs []*notifier.Message) {
	for _, msg := range msgs {
		fmt.Fprintf(w, "To: %s\nSubject: %s\n\n%s\n\n", msg.To, msg.Subject, msg.Body)
	}
}

func printHistory(w io.Writer, entries []*notifier.LogEntry) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSENT\tTO\tPAGES\tOK")
	for _, e := range entries {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%t\n", e.ID, e.DateAdded.Local().Format(time.DateTime), e.EmailAddress, e.PageCount, e.Success)
	}
	tw.Flush()
}
