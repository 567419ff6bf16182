package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/pterm/pterm"

	"github.com/kbase/cts-browser/pkg/types"
)

// printJSON pretty prints v
func printJSON(w io.Writer, v interface{}) error {
	prettyJSON, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("error formatting response: %w", err)
	}
	_, err = fmt.Fprintln(w, string(prettyJSON))
	return err
}

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}

// stateLabel colors a state by its category
func stateLabel(state types.JobState) string {
	switch {
	case state == types.JobStateComplete:
		return pterm.Green(state)
	case state.IsError():
		return pterm.Red(state)
	case state == types.JobStateCanceling || state == types.JobStateCanceled:
		return pterm.Yellow(state)
	default:
		return pterm.LightCyan(state)
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func exitCodeLabel(code *int) string {
	if code == nil {
		return "-"
	}
	return strconv.Itoa(*code)
}

// jobRow is the listing view of a job
type jobRow struct {
	ID         string         `json:"id"`
	State      types.JobState `json:"state"`
	Cluster    string         `json:"cluster,omitempty"`
	Image      string         `json:"image,omitempty"`
	LastUpdate string         `json:"last_update,omitempty"`
}

func toJobRows(jobs []types.Job, now time.Time) []jobRow {
	rows := make([]jobRow, 0, len(jobs))
	for _, job := range jobs {
		rows = append(rows, jobRow{
			ID:         job.ID,
			State:      job.State,
			Cluster:    job.Cluster(),
			Image:      job.ImageRef(),
			LastUpdate: job.LastUpdate(now),
		})
	}
	return rows
}

func renderJobs(w io.Writer, format string, jobs []types.Job, now time.Time) error {
	rows := toJobRows(jobs, now)
	if format == outputJSON {
		return printJSON(w, struct {
			Jobs []jobRow `json:"jobs"`
		}{rows})
	}

	if len(rows) == 0 {
		_, err := fmt.Fprintln(w, "No jobs found")
		return err
	}

	tw := newTable(w)
	fmt.Fprintln(tw, "ID\tCLUSTER\tIMAGE\tUPDATED\tSTATE")
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", r.ID, orDash(r.Cluster), orDash(r.Image), orDash(r.LastUpdate), stateLabel(r.State))
	}
	return tw.Flush()
}

func renderJob(w io.Writer, format string, job types.Job, now time.Time) error {
	if format == outputJSON {
		return printJSON(w, job)
	}

	tw := newTable(w)
	fmt.Fprintf(tw, "ID:\t%s\n", job.ID)
	fmt.Fprintf(tw, "State:\t%s\n", stateLabel(job.State))
	fmt.Fprintf(tw, "User:\t%s\n", orDash(job.User))
	fmt.Fprintf(tw, "Cluster:\t%s\n", orDash(job.Cluster()))
	fmt.Fprintf(tw, "Image:\t%s\n", orDash(job.ImageRef()))
	fmt.Fprintf(tw, "Containers:\t%d\n", job.NumContainers())
	if job.CPUHours != nil {
		fmt.Fprintf(tw, "CPU hours:\t%.2f\n", *job.CPUHours)
	}
	if job.MaxMemory != "" {
		fmt.Fprintf(tw, "Max memory:\t%s\n", job.MaxMemory)
	}
	fmt.Fprintf(tw, "Updated:\t%s\n", orDash(job.LastUpdate(now)))
	if job.Error != "" {
		fmt.Fprintf(tw, "Error:\t%s\n", pterm.Red(job.Error))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if len(job.TransitionTimes) > 0 {
		fmt.Fprintln(w, "\nTransitions:")
		tw = newTable(w)
		for _, tt := range job.TransitionTimes {
			fmt.Fprintf(tw, "  %s\t%s\n", tt.State, tt.Time)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}

	if len(job.Outputs) > 0 {
		fmt.Fprintln(w, "\nOutputs:")
		for _, out := range job.Outputs {
			fmt.Fprintf(w, "  %s\n", out.File)
		}
	}
	return nil
}

// statusView adds the derived predicates to a status
type statusView struct {
	types.JobStatus
	Terminal   bool `json:"terminal"`
	Cancelable bool `json:"cancelable"`
}

func renderStatus(w io.Writer, format string, status types.JobStatus) error {
	view := statusView{
		JobStatus:  status,
		Terminal:   status.State.IsTerminal(),
		Cancelable: status.State.IsCancelable(),
	}
	if format == outputJSON {
		return printJSON(w, view)
	}
	_, err := fmt.Fprintf(w, "%s\t%s\n", status.ID, stateLabel(status.State))
	return err
}

func renderExitCodes(w io.Writer, format string, id string, codes []types.ExitCode) error {
	if format == outputJSON {
		return printJSON(w, struct {
			ID        string           `json:"id"`
			ExitCodes []types.ExitCode `json:"exit_codes"`
		}{id, codes})
	}

	if len(codes) == 0 {
		_, err := fmt.Fprintln(w, "No exit codes reported")
		return err
	}

	tw := newTable(w)
	fmt.Fprintln(tw, "CONTAINER\tEXIT CODE")
	for _, code := range codes {
		fmt.Fprintf(tw, "%d\t%s\n", code.ContainerNum, exitCodeLabel(code.ExitCode))
	}
	return tw.Flush()
}

func renderSites(w io.Writer, format string, sites []types.Site) error {
	if format == outputJSON {
		return printJSON(w, struct {
			Sites []types.Site `json:"sites"`
		}{sites})
	}

	if len(sites) == 0 {
		_, err := fmt.Fprintln(w, "No sites found")
		return err
	}

	tw := newTable(w)
	fmt.Fprintln(tw, "CLUSTER\tNODES\tCPUS/NODE\tMEM/NODE\tMAX RUNTIME\tAVAILABLE")
	for _, s := range sites {
		nodes := "-"
		if s.Nodes != nil {
			nodes = strconv.Itoa(*s.Nodes)
		}
		available := pterm.Green("yes")
		if !s.Available {
			available = pterm.Red("no")
			if s.UnavailableReason != "" {
				available += " (" + s.UnavailableReason + ")"
			}
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d GB\t%s\t%s\n",
			s.Cluster, nodes, s.CPUsPerNode, s.MemoryPerNodeGB,
			(time.Duration(s.MaxRuntimeMin) * time.Minute).String(), available)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	for _, s := range sites {
		if len(s.Notes) > 0 {
			fmt.Fprintf(w, "%s: %s\n", s.Cluster, strings.Join(s.Notes, "; "))
		}
	}
	return nil
}
