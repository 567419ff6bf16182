package commands

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/kbase/cts-browser/internal/constants"
	"github.com/kbase/cts-browser/internal/events"
	"github.com/kbase/cts-browser/internal/jobsync"
	"github.com/kbase/cts-browser/pkg/types"
)

// Job flag names
const (
	flagJobState     = "state"
	flagJobCluster   = "cluster"
	flagJobAfter     = "after"
	flagJobBefore    = "before"
	flagJobLimit     = "limit"
	flagJobWatch     = "watch"
	flagLogContainer = "container"
	flagLogStream    = "stream"
)

func newJobsCmd(c *cli) *cobra.Command {
	jobsCmd := &cobra.Command{
		Use:   "jobs",
		Short: "Browse and monitor jobs",
	}

	jobsCmd.AddCommand(newListJobsCmd(c))
	jobsCmd.AddCommand(newGetJobCmd(c))
	jobsCmd.AddCommand(newJobStatusCmd(c))
	jobsCmd.AddCommand(newCancelJobCmd(c))
	jobsCmd.AddCommand(newExitCodesCmd(c))
	jobsCmd.AddCommand(newJobLogsCmd(c))
	jobsCmd.AddCommand(newWatchJobCmd(c))

	return jobsCmd
}

func (c *cli) selection(id string) jobsync.Inputs {
	in := c.app.Inputs()
	in.JobID = id
	return in
}

func newListJobsCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs in the order the CTS returns them",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			filters, err := jobFilters(cmd)
			if err != nil {
				return err
			}

			in := c.app.Inputs()
			in.Filters = filters
			if err := requireEnabled(jobsync.KindJobs, in); err != nil {
				return err
			}

			watch, _ := cmd.Flags().GetBool(flagJobWatch)
			if watch {
				return c.watchJobs(cmd, in)
			}

			res := c.app.Sync.Jobs(cmd.Context(), filters)
			if res.Err != nil {
				return fmt.Errorf("error fetching jobs: %w", res.Err)
			}
			return renderJobs(cmd.OutOrStdout(), c.output, res.Data, time.Now())
		},
	}

	cmd.Flags().String(flagJobState, "", "Filter jobs by state")
	cmd.Flags().String(flagJobCluster, "", "Filter jobs by cluster")
	cmd.Flags().String(flagJobAfter, "", "Only jobs updated after this RFC 3339 time")
	cmd.Flags().String(flagJobBefore, "", "Only jobs updated before this RFC 3339 time")
	cmd.Flags().IntP(flagJobLimit, "l", 0, envHelp("Maximum number of jobs, 0 for the default", constants.EnvDefaultJobLimit))
	cmd.Flags().BoolP(flagJobWatch, "w", false, "Keep the listing up to date until interrupted")

	return cmd
}

func jobFilters(cmd *cobra.Command) (types.JobFilters, error) {
	var filters types.JobFilters

	if state, _ := cmd.Flags().GetString(flagJobState); state != "" {
		parsed, err := types.ParseJobState(state)
		if err != nil {
			return filters, err
		}
		filters.State = parsed
	}
	for name, dst := range map[string]*string{flagJobAfter: &filters.After, flagJobBefore: &filters.Before} {
		value, _ := cmd.Flags().GetString(name)
		if value == "" {
			continue
		}
		if _, err := time.Parse(time.RFC3339, value); err != nil {
			return filters, fmt.Errorf("invalid --%s value: %w", name, err)
		}
		*dst = value
	}
	filters.Cluster, _ = cmd.Flags().GetString(flagJobCluster)

	limit, _ := cmd.Flags().GetInt(flagJobLimit)
	if limit < 0 {
		return filters, fmt.Errorf("limit must not be negative")
	}
	filters.Limit = limit

	return filters, nil
}

// watchJobs re-renders the listing on every refresh until the command
// context is done
func (c *cli) watchJobs(cmd *cobra.Command, in jobsync.Inputs) error {
	w := cmd.OutOrStdout()
	var mu sync.Mutex

	o := c.app.Sync.ObserveJobs(cmd.Context(), func() jobsync.Inputs { return in }, func(res jobsync.Result[[]types.Job]) {
		mu.Lock()
		defer mu.Unlock()

		now := time.Now()
		if c.output == outputTable {
			fmt.Fprintf(w, "--- %s ---\n", now.Format(time.TimeOnly))
		}
		if res.Err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "Error refreshing jobs: %v\n", res.Err)
			if !res.HasData {
				return
			}
		}
		if err := renderJobs(w, c.output, res.Data, now); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "Error rendering jobs: %v\n", err)
		}
	})

	<-cmd.Context().Done()
	o.Stop()
	return nil
}

func newGetJobCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "get <job-id>",
		Short: "Show the details of a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireEnabled(jobsync.KindJob, c.selection(args[0])); err != nil {
				return err
			}

			res := c.app.Sync.Job(cmd.Context(), args[0])
			if res.Err != nil {
				return fmt.Errorf("error fetching job: %w", res.Err)
			}
			return renderJob(cmd.OutOrStdout(), c.output, res.Data, time.Now())
		},
	}
}

func newJobStatusCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "status <job-id>",
		Short: "Show the current state of a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireEnabled(jobsync.KindJobStatus, c.selection(args[0])); err != nil {
				return err
			}

			res := c.app.Sync.JobStatus(cmd.Context(), args[0])
			if res.Err != nil {
				return fmt.Errorf("error fetching job status: %w", res.Err)
			}
			return renderStatus(cmd.OutOrStdout(), c.output, res.Data)
		},
	}
}

func newCancelJobCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <job-id>",
		Short: "Request cancellation of a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			if err := requireEnabled(jobsync.KindJobStatus, c.selection(id)); err != nil {
				return err
			}

			status := c.app.Sync.JobStatus(cmd.Context(), id)
			if status.Err != nil {
				return fmt.Errorf("error fetching job status: %w", status.Err)
			}
			if !status.Data.State.IsCancelable() {
				return fmt.Errorf("job %s is %s and cannot be canceled", id, status.Data.State)
			}

			job, err := c.app.Sync.CancelJob(cmd.Context(), id)
			if err != nil {
				return err
			}

			if c.output == outputJSON {
				return printJSON(cmd.OutOrStdout(), job)
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "Cancel requested for job %s (now %s)\n", id, stateLabel(job.State))
			return err
		},
	}
}

func newExitCodesCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "exit-codes <job-id>",
		Short: "Show the per-container exit codes of a finished job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			if err := requireEnabled(jobsync.KindJobStatus, c.selection(id)); err != nil {
				return err
			}

			status := c.app.Sync.JobStatus(cmd.Context(), id)
			if status.Err != nil {
				return fmt.Errorf("error fetching job status: %w", status.Err)
			}

			in := c.selection(id)
			in.LastState = status.Data.State
			if !jobsync.Enabled(jobsync.KindExitCodes, in) {
				return fmt.Errorf("job %s is %s; exit codes are available once it finishes", id, status.Data.State)
			}

			res := c.app.Sync.ExitCodes(cmd.Context(), id)
			if res.Err != nil {
				return fmt.Errorf("error fetching exit codes: %w", res.Err)
			}
			return renderExitCodes(cmd.OutOrStdout(), c.output, id, res.Data)
		},
	}
}

func newJobLogsCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "logs <job-id>",
		Short: "Print the log of one container stream",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]

			container, _ := cmd.Flags().GetInt(flagLogContainer)
			if container < 0 {
				return fmt.Errorf("container must not be negative")
			}
			streamFlag, _ := cmd.Flags().GetString(flagLogStream)
			stream, err := types.ParseLogStream(streamFlag)
			if err != nil {
				return err
			}

			in := c.selection(id)
			in.Container = container
			in.Stream = stream
			in.LogRequested = true
			if err := requireEnabled(jobsync.KindJobLog, in); err != nil {
				return err
			}

			res := c.app.Sync.JobLog(cmd.Context(), id, container, stream)
			if res.Err != nil {
				return fmt.Errorf("error fetching log: %w", res.Err)
			}

			if c.output == outputJSON {
				return printJSON(cmd.OutOrStdout(), map[string]interface{}{
					"id":        id,
					"container": container,
					"stream":    stream,
					"log":       res.Data,
				})
			}
			if res.Data == "" {
				_, err = fmt.Fprintln(cmd.ErrOrStderr(), "No log output")
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), res.Data)
			return err
		},
	}

	cmd.Flags().IntP(flagLogContainer, "c", 0, "Container number")
	cmd.Flags().String(flagLogStream, string(types.LogStreamStdout), "Log stream: stdout or stderr")

	return cmd
}

func newWatchJobCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "watch <job-id>",
		Short: "Follow a job until it finishes, then print its exit codes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			if err := requireEnabled(jobsync.KindJobStatus, c.selection(id)); err != nil {
				return err
			}
			return c.watchJob(cmd, id)
		},
	}
}

// transitionGrace bounds how long watch waits for the transition event
// after polling has already seen the terminal state
const transitionGrace = time.Second

// transitionView is the JSON form of one observed state change
type transitionView struct {
	ID   string         `json:"id"`
	From types.JobState `json:"from"`
	To   types.JobState `json:"to"`
	Time time.Time      `json:"time"`
}

// watchJob prints the current state, then every transition published on
// the event bus until the job is terminal
func (c *cli) watchJob(cmd *cobra.Command, id string) error {
	ctx := cmd.Context()
	w := cmd.OutOrStdout()

	var (
		mu       sync.Mutex
		first    sync.Once
		terminal = make(chan types.JobState, 1)
		polled   = make(chan types.JobState, 1)
	)
	signal := func(ch chan types.JobState, state types.JobState) {
		select {
		case ch <- state:
		default:
		}
	}

	c.app.Bus.Subscribe(events.EventJobStateChanged, func(_ context.Context, e events.Event) error {
		if e.JobID != id {
			return nil
		}
		mu.Lock()
		defer mu.Unlock()

		if c.output == outputJSON {
			_ = printJSON(w, transitionView{ID: id, From: e.From, To: e.To, Time: e.Timestamp})
		} else {
			fmt.Fprintf(w, "%s  %s -> %s\n", e.Timestamp.Format(time.TimeOnly), stateLabel(e.From), stateLabel(e.To))
		}
		if e.To.IsTerminal() {
			signal(terminal, e.To)
		}
		return nil
	})

	o := c.app.Sync.ObserveJobStatus(ctx, func() jobsync.Inputs { return c.selection(id) }, func(res jobsync.Result[types.JobStatus]) {
		if res.Err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "Error polling job %s: %v\n", id, res.Err)
			return
		}
		state := res.Data.State

		first.Do(func() {
			mu.Lock()
			defer mu.Unlock()

			if c.output == outputJSON {
				_ = printJSON(w, statusView{JobStatus: res.Data, Terminal: state.IsTerminal(), Cancelable: state.IsCancelable()})
			} else {
				fmt.Fprintf(w, "%s  %s\n", time.Now().Format(time.TimeOnly), stateLabel(state))
			}
			if state.IsTerminal() {
				signal(terminal, state)
			}
		})
		if state.IsTerminal() {
			signal(polled, state)
		}
	})
	defer o.Stop()

	var final types.JobState
	select {
	case <-ctx.Done():
		return nil
	case final = <-terminal:
	case final = <-polled:
		// The bus delivers the transition line shortly after the poll
		select {
		case <-ctx.Done():
			return nil
		case final = <-terminal:
		case <-time.After(transitionGrace):
		}
	}

	return c.printFinalExitCodes(ctx, cmd, id, final)
}

func (c *cli) printFinalExitCodes(ctx context.Context, cmd *cobra.Command, id string, final types.JobState) error {
	in := c.selection(id)
	in.LastState = final
	if !jobsync.Enabled(jobsync.KindExitCodes, in) {
		return nil
	}

	res := c.app.Sync.ExitCodes(ctx, id)
	if res.Err != nil {
		return fmt.Errorf("error fetching exit codes: %w", res.Err)
	}
	return renderExitCodes(cmd.OutOrStdout(), c.output, id, res.Data)
}
