package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"

	"resellerhq/warden/pkg/limits"
	"resellerhq/warden/pkg/limits/enforcement"
	"resellerhq/warden/pkg/monitor"
	"resellerhq/warden/pkg/panels"
)

// OutputFormat selects how command results are printed.
type OutputFormat string

const (
	FormatText OutputFormat = "text"
	FormatJSON OutputFormat = "json"
)

// ParseFormat validates a --output flag value.
func ParseFormat(s string) (OutputFormat, error) {
	switch OutputFormat(strings.ToLower(s)) {
	case FormatText, "":
		return FormatText, nil
	case FormatJSON:
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("unknown output format %q: must be text or json", s)
	}
}

// Printer renders domain values in the selected format.
type Printer struct {
	w      io.Writer
	format OutputFormat
}

// NewPrinter creates a printer writing to w.
func NewPrinter(w io.Writer, format OutputFormat) *Printer {
	return &Printer{w: w, format: format}
}

// JSON writes v as indented JSON regardless of format.
func (p *Printer) JSON(v any) error {
	enc := json.NewEncoder(p.w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Panels prints a panel table.
func (p *Printer) Panels(list []panels.AdminPanel) error {
	if p.format == FormatJSON {
		return p.JSON(list)
	}
	if len(list) == 0 {
		_, err := fmt.Fprintln(p.w, "No panels.")
		return err
	}

	tw := tabwriter.NewWriter(p.w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tUSERNAME\tSTATUS\tUSERS\tTRAFFIC\tCREATED")
	for i := range list {
		pn := &list[i]
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n",
			pn.ID,
			pn.Username,
			statusLabel(pn.Status),
			quota(pn.UsersHistoricalPeak, pn.MaxUsers, false),
			quota(pn.CurrentTraffic, pn.MaxTotalTraffic, true),
			humanize.Time(pn.CreatedAt),
		)
	}
	return tw.Flush()
}

// Panel prints one panel with its recent history.
func (p *Printer) Panel(pn *panels.AdminPanel, samples []panels.UsageSample, logs []panels.LogEntry) error {
	if p.format == FormatJSON {
		return p.JSON(map[string]any{"panel": pn, "samples": samples, "logs": logs})
	}

	tw := tabwriter.NewWriter(p.w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Panel:\t%d (%s)\n", pn.ID, pn.Username)
	fmt.Fprintf(tw, "Owner:\t%d\n", pn.OwnerID)
	fmt.Fprintf(tw, "Status:\t%s\n", statusLabel(pn.Status))
	if pn.DeactivatedAt != nil {
		fmt.Fprintf(tw, "Deactivated:\t%s (%s)\n", pn.DeactivatedAt.Format(time.RFC3339), pn.DeactivatedReason)
	}
	fmt.Fprintf(tw, "Users (peak):\t%s\n", quota(pn.UsersHistoricalPeak, pn.MaxUsers, false))
	fmt.Fprintf(tw, "Traffic:\t%s\n", quota(pn.CurrentTraffic, pn.MaxTotalTraffic, true))
	fmt.Fprintf(tw, "Time:\t%s\n", timeQuota(pn.CurrentTime, pn.MaxTotalTime))
	fmt.Fprintf(tw, "Created:\t%s\n", pn.CreatedAt.Format(time.RFC3339))
	if err := tw.Flush(); err != nil {
		return err
	}

	if len(samples) > 0 {
		fmt.Fprintln(p.w, "\nRecent samples:")
		tw = tabwriter.NewWriter(p.w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "TIME\tUSERS\tPEAK\tACTIVE\tTRAFFIC")
		for _, s := range samples {
			fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%s\n",
				s.Timestamp.Format(time.RFC3339), s.Users, s.PeakUsers, s.ActiveUsers, humanize.IBytes(uint64(max(s.TrafficUsed, 0))))
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}

	if len(logs) > 0 {
		fmt.Fprintln(p.w, "\nRecent log:")
		tw = tabwriter.NewWriter(p.w, 0, 0, 2, ' ', 0)
		for _, e := range logs {
			fmt.Fprintf(tw, "%s\t%s\t%s\n", e.CreatedAt.Format(time.RFC3339), e.Action, e.Details)
		}
		return tw.Flush()
	}
	return nil
}

// Check prints an evaluation.
func (p *Printer) Check(res *limits.CheckResult) error {
	if p.format == FormatJSON {
		return p.JSON(res)
	}

	tw := tabwriter.NewWriter(p.w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RESOURCE\tUSED\tLIMIT\tRATIO\tSTATE")
	for _, c := range res.Checks {
		state := "ok"
		switch {
		case c.Limit <= 0:
			state = "unlimited"
		case c.Exceeded:
			state = color.RedString("exceeded")
		case c.Bracket > 0:
			state = color.YellowString("warning %d%%", int(c.Bracket*100+0.5))
		}
		fmt.Fprintf(tw, "%s\t%d\t%d\t%.1f%%\t%s\n", c.Resource, c.Used, c.Limit, c.Ratio*100, state)
	}
	return tw.Flush()
}

// Result prints an enforcement result. Passwords are never printed.
func (p *Printer) Result(res *enforcement.Result) error {
	if p.format == FormatJSON {
		return p.JSON(res)
	}

	fmt.Fprintf(p.w, "%s panel %d (%s)", res.Action, res.PanelID, res.Username)
	if res.Reason != "" {
		fmt.Fprintf(p.w, ": %s", res.Reason)
	}
	fmt.Fprintf(p.w, "\nUsers: %d succeeded, %d failed\n", res.Succeeded, res.Failed)

	tw := tabwriter.NewWriter(p.w, 0, 0, 2, ' ', 0)
	for _, s := range res.Steps {
		state := color.GreenString("ok")
		switch {
		case s.Err != nil:
			state = color.RedString("failed: %v", s.Err)
		case s.Skipped:
			state = color.YellowString("skipped: %s", s.Note)
		}
		fmt.Fprintf(tw, "  %s\t%s\n", s.Step, state)
	}
	return tw.Flush()
}

// Report prints a sweep report.
func (p *Printer) Report(r *monitor.Report) error {
	if p.format == FormatJSON {
		return p.JSON(r)
	}

	fmt.Fprintf(p.w, "Sweep %s: %d panels in %s", r.ID, len(r.Panels), r.Duration.Round(time.Millisecond))
	if r.Cleaned > 0 {
		fmt.Fprintf(p.w, ", %d expired users deleted", r.Cleaned)
	}
	fmt.Fprintln(p.w)

	tw := tabwriter.NewWriter(p.w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tUSERNAME\tOUTCOME\tDETAIL")
	for _, pr := range r.Panels {
		detail := pr.Error
		if detail == "" && pr.Check != nil {
			detail = ratios(pr.Check)
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", pr.PanelID, pr.Username, outcomeLabel(pr.Outcome), detail)
	}
	return tw.Flush()
}

func ratios(c *limits.CheckResult) string {
	var parts []string
	for _, rc := range c.Checks {
		if rc.Limit > 0 {
			parts = append(parts, fmt.Sprintf("%s=%.0f%%", rc.Resource, rc.Ratio*100))
		}
	}
	return strings.Join(parts, " ")
}

func statusLabel(s panels.Status) string {
	if s == panels.StatusActive {
		return color.GreenString("%s", s)
	}
	return color.RedString("%s", s)
}

func outcomeLabel(o string) string {
	switch o {
	case monitor.OutcomeOK:
		return color.GreenString("%s", o)
	case monitor.OutcomeWarning, monitor.OutcomeSkipped:
		return color.YellowString("%s", o)
	default:
		return color.RedString("%s", o)
	}
}

func quota(used, limit int64, bytes bool) string {
	format := func(n int64) string {
		if bytes {
			return humanize.IBytes(uint64(max(n, 0)))
		}
		return humanize.Comma(n)
	}
	if limit <= 0 {
		return format(used) + " / unlimited"
	}
	return fmt.Sprintf("%s / %s", format(used), format(limit))
}

func timeQuota(elapsed, limit int64) string {
	days := func(secs int64) string {
		return fmt.Sprintf("%.1fd", float64(secs)/86400)
	}
	if limit <= 0 {
		return days(elapsed) + " / unlimited"
	}
	return fmt.Sprintf("%s / %s", days(elapsed), days(limit))
}
