package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/readbori/pulse-diary/internal/backup"
	"github.com/readbori/pulse-diary/internal/identity"
	"github.com/readbori/pulse-diary/internal/model"
	"github.com/readbori/pulse-diary/internal/remote"
	"github.com/readbori/pulse-diary/internal/syncer"
)

// withApp opens the data directory for the duration of fn. The log file is
// released when the command is done.
func (c *cli) withApp(ctx context.Context, fn func(a *app) error) (runErr error) {
	defer func() {
		if err := c.closeLog(); err != nil && runErr == nil {
			runErr = err
		}
	}()
	a, err := openApp(ctx, c.cfg, c.log)
	if err != nil {
		return err
	}
	runErr = fn(a)
	if err := a.Close(); err != nil && runErr == nil {
		return err
	}
	return runErr
}

func newSyncCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Pull remote rows, then push unsynced local rows",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd.Context(), func(a *app) error {
				res := a.sync.Run(cmd.Context(), c.session())
				return printSyncResult(cmd.OutOrStdout(), res)
			})
		},
	}
}

func newSignInCmd(c *cli) *cobra.Command {
	var from string
	var hint identity.Hint
	cmd := &cobra.Command{
		Use:   "signin",
		Short: "Adopt the data of a previous identity and sync as --owner",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd.Context(), func(a *app) error {
				res, err := a.svc.SignIn(cmd.Context(), from, c.session(), hint)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				printMigration(out, res.Migration)
				if res.ProfileCreated {
					fmt.Fprintln(out, "profile: created")
				}
				return printSyncResult(out, res.Sync)
			})
		},
	}
	cmd.Flags().StringVar(&from, "from", model.AnonymousOwner, "Identity whose local data is adopted")
	cmd.Flags().StringVar(&hint.DisplayName, "name", "", "Display name for a new profile")
	cmd.Flags().StringVar(&hint.Email, "email", "", "E-mail address for a new profile")
	return cmd
}

func newMigrateCmd(c *cli) *cobra.Command {
	var from, to string
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Move every local row from one identity to another",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd.Context(), func(a *app) error {
				res, err := identity.Migrate(cmd.Context(), a.store, from, to, time.Now().UTC())
				if err != nil {
					return err
				}
				printMigration(cmd.OutOrStdout(), res)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&from, "from", model.AnonymousOwner, "Source identity")
	cmd.Flags().StringVar(&to, "to", "", "Target identity")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

func newExportCmd(c *cli) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write a backup of --owner to a JSON file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd.Context(), func(a *app) error {
				now := time.Now()
				doc, err := backup.Export(cmd.Context(), a.store, c.owner, backup.ExportOptions{AppVersion: c.cfg.AppVersion, Now: now})
				if err != nil {
					return err
				}
				if out == "-" {
					return doc.Encode(cmd.OutOrStdout())
				}
				if out == "" {
					out = backup.FileName(now)
				}
				f, err := os.Create(out)
				if err != nil {
					return err
				}
				if err := doc.Encode(f); err != nil {
					_ = f.Close()
					return err
				}
				if err := f.Close(); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "exported %d records, %d reports to %s\n", len(doc.Data.Records), len(doc.Data.Reports), out)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "Output file; \"-\" for stdout (default pulse-diary-backup-<date>.json)")
	return cmd
}

func newImportCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "import FILE",
		Short: "Restore a backup file; rows in the file replace local rows",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			return c.withApp(cmd.Context(), func(a *app) error {
				res, err := backup.Import(cmd.Context(), a.store, f)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "imported %d records, %d reports\n", res.Records, res.Reports)
				return nil
			})
		},
	}
}

func newRecordsCmd(c *cli) *cobra.Command {
	var week bool
	var since, until string
	cmd := &cobra.Command{
		Use:   "records",
		Short: "List the records of --owner, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd.Context(), func(a *app) error {
				var (
					recs []model.EmotionRecord
					err  error
				)
				switch {
				case week:
					recs, err = a.svc.WeekRecords(cmd.Context(), c.owner)
				case since != "" || until != "":
					from, to, perr := parseRange(since, until)
					if perr != nil {
						return perr
					}
					recs, err = a.svc.RecordsInRange(cmd.Context(), c.owner, from, to)
				default:
					recs, err = a.svc.Records(cmd.Context(), c.owner)
				}
				if err != nil {
					return err
				}
				return printRecords(cmd.OutOrStdout(), recs)
			})
		},
	}
	cmd.Flags().BoolVar(&week, "week", false, "Only records of the current week")
	cmd.Flags().StringVar(&since, "since", "", "Lower bound, YYYY-MM-DD or RFC 3339")
	cmd.Flags().StringVar(&until, "until", "", "Upper bound, YYYY-MM-DD or RFC 3339")
	return cmd
}

func newStreakCmd(c *cli) *cobra.Command {
	var record bool
	cmd := &cobra.Command{
		Use:   "streak",
		Short: "Show the daily streak of --owner",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd.Context(), func(a *app) error {
				var (
					s   *model.StreakData
					err error
				)
				if record {
					s, err = a.svc.RecordDay(cmd.Context(), c.session())
				} else {
					s, err = a.svc.Streak(cmd.Context(), c.owner)
				}
				if errors.Is(err, model.ErrNotFound) {
					fmt.Fprintln(cmd.OutOrStdout(), "no streak yet")
					return nil
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "current %d, longest %d, last %s, milestones %v\n",
					s.CurrentStreak, s.LongestStreak, s.LastRecordDate, s.Milestones)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&record, "record", false, "Count today before showing")
	return cmd
}

// parseRange accepts calendar days or full timestamps. A day given as the
// upper bound covers the whole day.
func parseRange(since, until string) (from, to time.Time, err error) {
	to = time.Now()
	if since != "" {
		if from, _, err = parseBound(since); err != nil {
			return
		}
	}
	if until != "" {
		var day bool
		if to, day, err = parseBound(until); err != nil {
			return
		}
		if day {
			to = to.AddDate(0, 0, 1).Add(-time.Millisecond)
		}
	}
	return from, to, nil
}

func parseBound(s string) (time.Time, bool, error) {
	if t, err := time.ParseInLocation(model.DateLayout, s, time.Local); err == nil {
		return t, true, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("invalid date %q", s)
	}
	return t, false, nil
}

func printRecords(w io.Writer, recs []model.EmotionRecord) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tCREATED\tEMOTION\tSYNC\tTRANSCRIPT")
	for _, r := range recs {
		emotion := "-"
		if r.Emotions != nil {
			emotion = string(r.Emotions.Primary)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", r.ID, r.CreatedAt.Local().Format(time.DateTime), emotion, r.SyncState, truncate(r.Transcript, 40))
	}
	return tw.Flush()
}

func truncate(s string, n int) string {
	rs := []rune(s)
	if len(rs) <= n {
		return s
	}
	return string(rs[:n-1]) + "…"
}

func printMigration(w io.Writer, m identity.MigrationResult) {
	if m.Empty() {
		fmt.Fprintln(w, "migration: nothing to move")
		return
	}
	fmt.Fprintf(w, "migration: %d records, %d reports, profile=%t settings=%t streak=%t\n",
		m.Records, m.Reports, m.Profile, m.Settings, m.Streak)
}

// printSyncResult reports a run. A run with failures is an error so scripts
// can tell.
func printSyncResult(w io.Writer, res syncer.Result) error {
	if res.Skipped {
		fmt.Fprintln(w, "sync: skipped (anonymous owner or no remote configured)")
		return nil
	}
	for _, k := range remote.Kinds {
		fmt.Fprintf(w, "%-8s pulled %d, pushed %d\n", k, res.Pulled[k], res.Pushed[k])
	}
	if len(res.Failures) == 0 {
		return nil
	}
	sort.Slice(res.Failures, func(i, j int) bool {
		a, b := res.Failures[i], res.Failures[j]
		if a.Phase != b.Phase {
			return a.Phase == syncer.PhasePull
		}
		return a.Kind < b.Kind
	})
	for _, f := range res.Failures {
		fmt.Fprintf(w, "failed: %s %s %s: %v\n", f.Phase, f.Kind, f.ID, f.Err)
	}
	return fmt.Errorf("sync finished with %d failures", len(res.Failures))
}
