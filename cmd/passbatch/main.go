// Command passbatch runs the pass batch jobs.
//
//	passbatch migrate
//	passbatch jobs
//	passbatch run makeStatisticsJob from="2024-03-04 00:00" to="2024-03-11 00:00"
//	passbatch run expirePassesJob --run-id
//	passbatch schedule
//	passbatch status addPassesJob
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/jdziat/pass-batch/pkg/config"
	"github.com/jdziat/pass-batch/pkg/core"
	"github.com/jdziat/pass-batch/pkg/params"
)

// runIDKey is the parameter --run-id adds so repeated runs get distinct
// job instances.
const runIDKey = "run.at"

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

type appKey struct{}

func appFrom(cmd *cobra.Command) *app {
	a, _ := cmd.Context().Value(appKey{}).(*app)
	return a
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:          "passbatch",
		Short:        "Run pass expiration, bulk pass and statistics batch jobs",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			path, err := cmd.Flags().GetString("config")
			if err != nil {
				return fmt.Errorf("read config flag: %w", err)
			}
			cfg, err := config.Load(path)
			if err != nil {
				return err
			}
			a, err := newApp(cfg, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			if err := a.Migrate(cmd.Context()); err != nil {
				_ = a.Close()
				return err
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey{}, a))
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			if a := appFrom(cmd); a != nil {
				return a.Close()
			}
			return nil
		},
	}
	root.PersistentFlags().String("config", "", "path to config file (default ./passbatch.yaml)")

	root.AddCommand(
		newMigrateCommand(),
		newJobsCommand(),
		newRunCommand(),
		newScheduleCommand(),
		newStatusCommand(),
	)
	return root
}

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			// The schema is migrated before every command.
			fmt.Fprintln(cmd.OutOrStdout(), "schema up to date")
		},
	}
}

func newJobsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "jobs",
		Short: "List registered jobs and their parameters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := appFrom(cmd)
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "JOB\tPARAMETERS")
			for _, name := range a.launcher.JobNames() {
				job, _ := a.launcher.Job(name)
				fmt.Fprintf(tw, "%s\t%s\n", name, describeParams(job.Parameters))
			}
			return tw.Flush()
		},
	}
}

func describeParams(spec params.Spec) string {
	if len(spec) == 0 {
		return "-"
	}
	parts := make([]string, 0, len(spec))
	for _, d := range spec {
		s := fmt.Sprintf("%s:%s", d.Key, d.Type)
		if d.Required {
			s += " (required)"
		}
		parts = append(parts, s)
	}
	return strings.Join(parts, ", ")
}

func newRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <job> [key=value ...]",
		Short: "Run one job to completion",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := appFrom(cmd)
			p, err := params.Parse(args[1:])
			if err != nil {
				return err
			}
			runID, err := cmd.Flags().GetBool("run-id")
			if err != nil {
				return err
			}
			if runID && !p.Has(runIDKey) {
				m := p.Map()
				m[runIDKey] = time.Now().UTC().Format(time.RFC3339Nano)
				p = params.New(m)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			exec, err := a.launcher.Run(ctx, args[0], p)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s %s\n", exec.JobName, exec.ID, exec.Status)
			if exec.Status != core.StatusCompleted {
				return fmt.Errorf("job %s ended %s: %s", exec.JobName, exec.Status, exec.ExitMessage)
			}
			return nil
		},
	}
	cmd.Flags().Bool("run-id", false, "add a "+runIDKey+" parameter so the run starts a new job instance")
	return cmd
}

func newScheduleCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "schedule",
		Short: "Run jobs on the schedules from the config file until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := appFrom(cmd)
			s, err := a.Scheduler()
			if err != nil {
				return err
			}
			if len(s.Jobs()) == 0 {
				return errors.New("no schedules configured")
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return s.Start(ctx)
		},
	}
}

func newStatusCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status <job>",
		Short: "Show the most recent executions of a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := appFrom(cmd)
			limit, err := cmd.Flags().GetInt("limit")
			if err != nil {
				return err
			}
			execs, err := a.repo.GetJobExecutions(cmd.Context(), args[0], limit)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "EXECUTION\tSTATUS\tSTARTED\tENDED\tPARAMETERS\tEXIT MESSAGE")
			for _, e := range execs {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", e.ID, e.Status, fmtTime(e.StartedAt), fmtTime(e.EndedAt), e.Parameters, e.ExitMessage)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().Int("limit", 10, "number of executions to show")
	return cmd
}

func fmtTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}
