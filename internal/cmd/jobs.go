package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/3leaps/seqsubmit/internal/config"
	apperrors "github.com/3leaps/seqsubmit/internal/errors"
	"github.com/3leaps/seqsubmit/pkg/job"
	"github.com/3leaps/seqsubmit/pkg/scheduler"
)

var (
	jobsOwner   string
	jobsJSON    bool
	jobsProject string
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Inspect and create submission jobs",
	Long: `Inspect and create submission jobs in the configured store.

Examples:
  seqsubmit jobs list --owner alice
  seqsubmit jobs status 3f2a
  seqsubmit jobs history 3f2a9c1e-... --json
  seqsubmit jobs create --project P-42 --owner alice`,
}

var jobsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List jobs, newest first",
	Args:  cobra.NoArgs,
	RunE:  runJobsList,
}

var jobsStatusCmd = &cobra.Command{
	Use:   "status <job-id|prefix>",
	Short: "Show one job",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobsStatus,
}

var jobsHistoryCmd = &cobra.Command{
	Use:   "history <job-id|prefix>",
	Short: "Show a job's status changes",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobsHistory,
}

var jobsCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a job for a project",
	Long: `Create a CREATED job for a project. A running leader launches it on its next
poll. Fails when the project already has an active job.`,
	Args: cobra.NoArgs,
	RunE: runJobsCreate,
}

func init() {
	rootCmd.AddCommand(jobsCmd)
	jobsCmd.AddCommand(jobsListCmd, jobsStatusCmd, jobsHistoryCmd, jobsCreateCmd)

	jobsCmd.PersistentFlags().StringVar(&jobsOwner, "owner", "", "Restrict to jobs owned by this user")
	jobsCmd.PersistentFlags().BoolVar(&jobsJSON, "json", false, "Write JSON instead of a table")
	jobsCreateCmd.Flags().StringVar(&jobsProject, "project", "", "Project id (required)")
	_ = jobsCreateCmd.MarkFlagRequired("project")
}

// jobService opens the store, and the project repository when withProjects
// is set, behind a scheduler that never runs jobs.
func jobService(ctx context.Context, cfg *config.Config, withProjects bool) (*scheduler.Scheduler, func(), error) {
	store, err := openStore(ctx, cfg)
	if err != nil {
		return nil, nil, exitError(apperrors.ExitFileReadError, "Failed to open job store", err)
	}
	if !withProjects {
		return scheduler.New(store, nil, nil), func() { _ = store.Close() }, nil
	}

	projects, err := openProjects(ctx, cfg)
	if err != nil {
		_ = store.Close()
		return nil, nil, exitError(apperrors.ExitExternalServiceUnavailable, "Failed to open project repository", err)
	}
	closeAll := func() {
		_ = projects.Close()
		_ = store.Close()
	}
	return scheduler.New(store, projects, nil), closeAll, nil
}

func withJobService(cmd *cobra.Command, withProjects bool, fn func(*scheduler.Scheduler) error) error {
	cfg, err := loadConfig(cmd.Context(), nil)
	if err != nil {
		return err
	}
	svc, closeFn, err := jobService(cmd.Context(), cfg, withProjects)
	if err != nil {
		return err
	}
	defer closeFn()
	return fn(svc)
}

func runJobsList(cmd *cobra.Command, _ []string) error {
	return withJobService(cmd, false, func(svc *scheduler.Scheduler) error {
		views, err := svc.ListJobs(cmd.Context(), jobsOwner)
		if err != nil {
			return err
		}
		return writeJobs(cmd.OutOrStdout(), views, jobsJSON)
	})
}

func runJobsStatus(cmd *cobra.Command, args []string) error {
	return withJobService(cmd, false, func(svc *scheduler.Scheduler) error {
		v, err := svc.FindJob(cmd.Context(), args[0], jobsOwner)
		if err != nil {
			return err
		}
		return writeJob(cmd.OutOrStdout(), v, jobsJSON)
	})
}

func runJobsHistory(cmd *cobra.Command, args []string) error {
	return withJobService(cmd, false, func(svc *scheduler.Scheduler) error {
		v, err := svc.FindJob(cmd.Context(), args[0], jobsOwner)
		if err != nil {
			return err
		}
		history, err := svc.GetJobHistory(cmd.Context(), v.ID, jobsOwner)
		if err != nil {
			return err
		}
		return writeHistory(cmd.OutOrStdout(), history, jobsJSON)
	})
}

func runJobsCreate(cmd *cobra.Command, _ []string) error {
	return withJobService(cmd, true, func(svc *scheduler.Scheduler) error {
		id, err := svc.CreateJob(cmd.Context(), jobsProject, jobsOwner)
		if err != nil {
			return err
		}
		if jobsJSON {
			return writeJSON(cmd.OutOrStdout(), map[string]string{"id": id})
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), id)
		return err
	})
}

func writeJobs(w io.Writer, views []job.View, asJSON bool) error {
	if asJSON {
		if views == nil {
			views = []job.View{}
		}
		return writeJSON(w, views)
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "ID\tPROJECT\tOWNER\tSTATUS\tSTARTED\tENDED")
	for _, v := range views {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			v.ID, v.ProjectID, dash(v.Owner), v.Status, formatWhen(&v.StartTime), formatWhen(v.EndTime))
	}
	return tw.Flush()
}

func writeJob(w io.Writer, v job.View, asJSON bool) error {
	if asJSON {
		return writeJSON(w, v)
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintf(tw, "ID:\t%s\n", v.ID)
	_, _ = fmt.Fprintf(tw, "Project:\t%s\n", v.ProjectID)
	_, _ = fmt.Fprintf(tw, "Owner:\t%s\n", dash(v.Owner))
	_, _ = fmt.Fprintf(tw, "Status:\t%s\n", v.Status)
	_, _ = fmt.Fprintf(tw, "Started:\t%s\n", formatWhen(&v.StartTime))
	_, _ = fmt.Fprintf(tw, "Ended:\t%s\n", formatWhen(v.EndTime))
	return tw.Flush()
}

func writeHistory(w io.Writer, history []job.HistoryEntry, asJSON bool) error {
	if asJSON {
		if history == nil {
			history = []job.HistoryEntry{}
		}
		return writeJSON(w, history)
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "CHANGED\tSTATUS")
	for _, h := range history {
		_, _ = fmt.Fprintf(tw, "%s\t%s\n", formatWhen(&h.ChangedAt), h.Status)
	}
	return tw.Flush()
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func formatWhen(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
