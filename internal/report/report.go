// Package report renders run summaries for the terminal or as JSON.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"

	"github.com/imamik/orgsync/internal/orchestration"
	"github.com/imamik/orgsync/internal/reconciler"
)

// Format selects the summary encoding.
type Format string

const (
	FormatTable Format = "table"
	FormatJSON  Format = "json"
)

// ParseFormat validates a --output value.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case "", FormatTable:
		return FormatTable, nil
	case FormatJSON:
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("unsupported output format %q (want table or json)", s)
	}
}

var (
	colorGreen  = lipgloss.Color("#22c55e")
	colorRed    = lipgloss.Color("#ef4444")
	colorYellow = lipgloss.Color("#eab308")
	colorDim    = lipgloss.Color("#6b7280")

	okStyle      = lipgloss.NewStyle().Foreground(colorGreen)
	failedStyle  = lipgloss.NewStyle().Foreground(colorRed).Bold(true)
	skippedStyle = lipgloss.NewStyle().Foreground(colorYellow)
	dimStyle     = lipgloss.NewStyle().Foreground(colorDim)
)

// outcomeOrder fixes the order of the totals line.
var outcomeOrder = []reconciler.Outcome{
	reconciler.OutcomeIntegrated,
	reconciler.OutcomeAlreadyConverged,
	reconciler.OutcomePlanned,
	reconciler.OutcomeSkipped,
	reconciler.OutcomeFailed,
}

// Printer writes summaries to one destination.
type Printer struct {
	w      io.Writer
	format Format
	color  bool
}

// New creates a Printer. Colors are enabled only when w is a terminal.
func New(w io.Writer, format Format) *Printer {
	return &Printer{w: w, format: format, color: isTerminal(w)}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func (p *Printer) paint(style lipgloss.Style, s string) string {
	if !p.color || s == "" {
		return s
	}
	return style.Render(s)
}

func (p *Printer) outcome(o reconciler.Outcome) string {
	switch o {
	case reconciler.OutcomeIntegrated, reconciler.OutcomeAlreadyConverged:
		return p.paint(okStyle, o.String())
	case reconciler.OutcomeFailed:
		return p.paint(failedStyle, o.String())
	case reconciler.OutcomeSkipped:
		return p.paint(skippedStyle, o.String())
	default:
		return o.String()
	}
}

func (p *Printer) newTable(header table.Row) table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(p.w)
	tw.SetStyle(table.StyleLight)
	tw.Style().Format.Header = text.FormatDefault
	tw.AppendHeader(header)
	return tw
}

type accountJSON struct {
	AccountID    string   `json:"account_id"`
	Name         string   `json:"name,omitempty"`
	Outcome      string   `json:"outcome"`
	Status       string   `json:"status,omitempty"`
	RegionsAdded []string `json:"regions_added,omitempty"`
	Deployed     []string `json:"deployed,omitempty"`
	Failures     []string `json:"region_failures,omitempty"`
	Plan         []string `json:"plan,omitempty"`
	Error        string   `json:"error,omitempty"`
	DurationSec  float64  `json:"duration_seconds"`
}

type runJSON struct {
	RunID       string         `json:"run_id"`
	StartedAt   time.Time      `json:"started_at"`
	DurationSec float64        `json:"duration_seconds"`
	Counts      map[string]int `json:"counts"`
	Accounts    []accountJSON  `json:"accounts"`
}

// Run writes the summary of an integrate run.
func (p *Printer) Run(res *orchestration.RunResult) error {
	if p.format == FormatJSON {
		return p.runJSON(res)
	}

	tw := p.newTable(table.Row{"Account", "Name", "Outcome", "Regions Added", "Deployed", "Detail"})
	for _, r := range res.Results {
		tw.AppendRow(table.Row{
			r.AccountID,
			r.Name,
			p.outcome(r.Outcome),
			strings.Join(r.RegionsAdded, ","),
			strings.Join(r.Deployed, ","),
			p.detail(r),
		})
	}
	tw.Render()

	fmt.Fprintf(p.w, "%s\n", p.paint(dimStyle, fmt.Sprintf("run %s: %s in %v",
		res.RunID, totals(res), res.Duration.Round(time.Second))))
	return nil
}

func (p *Printer) detail(r reconciler.Result) string {
	switch {
	case len(r.Plan) > 0:
		return strings.Join(r.Plan, "; ")
	case r.Err != nil:
		return p.paint(failedStyle, oneLine(r.Reason()))
	default:
		return ""
	}
}

func (p *Printer) runJSON(res *orchestration.RunResult) error {
	out := runJSON{
		RunID:       res.RunID,
		StartedAt:   res.StartedAt,
		DurationSec: res.Duration.Seconds(),
		Counts:      make(map[string]int),
		Accounts:    make([]accountJSON, 0, len(res.Results)),
	}
	for o, n := range res.Counts() {
		out.Counts[o.String()] = n
	}
	for _, r := range res.Results {
		a := accountJSON{
			AccountID:    r.AccountID,
			Name:         r.Name,
			Outcome:      r.Outcome.String(),
			RegionsAdded: r.RegionsAdded,
			Deployed:     r.Deployed,
			Plan:         r.Plan,
			Error:        r.Reason(),
			DurationSec:  r.Duration.Seconds(),
		}
		if r.Outcome != reconciler.OutcomeSkipped {
			a.Status = r.Status.String()
		}
		for _, f := range r.RegionFailures {
			a.Failures = append(a.Failures, fmt.Sprintf("%s/%s: %v", f.Step, f.Region, f.Err))
		}
		out.Accounts = append(out.Accounts, a)
	}
	return p.encode(out)
}

type offboardJSON struct {
	AccountID string   `json:"account_id"`
	Name      string   `json:"name,omitempty"`
	Stacks    []string `json:"stacks"`
	Error     string   `json:"error,omitempty"`
}

// Offboard writes the summary of an offboarding pass.
func (p *Printer) Offboard(run *orchestration.OffboardRun) error {
	if p.format == FormatJSON {
		out := struct {
			DryRun   bool           `json:"dry_run"`
			Accounts []offboardJSON `json:"accounts"`
		}{DryRun: run.DryRun, Accounts: make([]offboardJSON, 0, len(run.Results))}
		for _, r := range run.Results {
			o := offboardJSON{AccountID: r.AccountID, Name: r.Name, Stacks: r.Stacks}
			if o.Stacks == nil {
				o.Stacks = []string{}
			}
			if r.Err != nil {
				o.Error = r.Err.Error()
			}
			out.Accounts = append(out.Accounts, o)
		}
		return p.encode(out)
	}

	stacksHeader := "Deleted Stacks"
	if run.DryRun {
		stacksHeader = "Matching Stacks"
	}
	tw := p.newTable(table.Row{"Account", "Name", "Result", stacksHeader, "Detail"})
	for _, r := range run.Results {
		result := p.paint(okStyle, "ok")
		detail := ""
		if r.Err != nil {
			result = p.paint(failedStyle, "failed")
			detail = oneLine(r.Err.Error())
		}
		tw.AppendRow(table.Row{r.AccountID, r.Name, result, strings.Join(r.Stacks, "\n"), detail})
	}
	tw.Render()
	return nil
}

type stackUpdateJSON struct {
	Region     string `json:"region"`
	Name       string `json:"name"`
	Action     string `json:"action"`
	RolledBack bool   `json:"rolled_back,omitempty"`
	Error      string `json:"error,omitempty"`
}

type updateJSON struct {
	AccountID string            `json:"account_id"`
	Name      string            `json:"name,omitempty"`
	Stacks    []stackUpdateJSON `json:"stacks"`
	Error     string            `json:"error,omitempty"`
}

// Updates writes the summary of an update-stacks pass, one row per stack.
func (p *Printer) Updates(run *orchestration.UpdateRun) error {
	if p.format == FormatJSON {
		out := struct {
			DryRun   bool         `json:"dry_run"`
			Accounts []updateJSON `json:"accounts"`
		}{DryRun: run.DryRun, Accounts: make([]updateJSON, 0, len(run.Results))}
		for _, r := range run.Results {
			u := updateJSON{AccountID: r.AccountID, Name: r.Name, Stacks: make([]stackUpdateJSON, 0, len(r.Stacks))}
			for _, st := range r.Stacks {
				sj := stackUpdateJSON{Region: st.Region, Name: st.Name, Action: st.Action, RolledBack: st.RolledBack}
				if st.Err != nil {
					sj.Error = st.Err.Error()
				}
				u.Stacks = append(u.Stacks, sj)
			}
			if r.Err != nil {
				u.Error = r.Err.Error()
			}
			out.Accounts = append(out.Accounts, u)
		}
		return p.encode(out)
	}

	tw := p.newTable(table.Row{"Account", "Name", "Stack", "Action", "Detail"})
	for _, r := range run.Results {
		if len(r.Stacks) == 0 {
			action, detail := p.paint(dimStyle, "none"), ""
			if r.Err != nil {
				action, detail = p.paint(failedStyle, orchestration.ActionFailed), oneLine(r.Err.Error())
			}
			tw.AppendRow(table.Row{r.AccountID, r.Name, "", action, detail})
			continue
		}
		for _, st := range r.Stacks {
			action := st.Action
			if st.RolledBack {
				action += " (rollback continued)"
			}
			detail := ""
			switch {
			case st.Err != nil:
				action = p.paint(failedStyle, action)
				detail = oneLine(st.Err.Error())
			case st.Action == orchestration.ActionUpdated:
				action = p.paint(okStyle, action)
			}
			tw.AppendRow(table.Row{r.AccountID, r.Name, st.Region + "/" + st.Name, action, detail})
		}
	}
	tw.Render()
	return nil
}

// Renames writes the display names changed by align-names.
func (p *Printer) Renames(renames []orchestration.Rename) error {
	if p.format == FormatJSON {
		type renameJSON struct {
			AccountID string `json:"account_id"`
			From      string `json:"from"`
			To        string `json:"to"`
			Error     string `json:"error,omitempty"`
		}
		out := make([]renameJSON, 0, len(renames))
		for _, r := range renames {
			rj := renameJSON{AccountID: r.AccountID, From: r.From, To: r.To}
			if r.Err != nil {
				rj.Error = r.Err.Error()
			}
			out = append(out, rj)
		}
		return p.encode(out)
	}

	if len(renames) == 0 {
		fmt.Fprintln(p.w, "all display names already aligned")
		return nil
	}
	tw := p.newTable(table.Row{"Account", "From", "To", "Result"})
	for _, r := range renames {
		result := p.paint(okStyle, "renamed")
		if r.Err != nil {
			result = p.paint(failedStyle, oneLine(r.Err.Error()))
		}
		tw.AppendRow(table.Row{r.AccountID, r.From, r.To, result})
	}
	tw.Render()
	return nil
}

func (p *Printer) encode(v any) error {
	enc := json.NewEncoder(p.w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// totals renders "3 accounts: 2 integrated, 1 failed".
func totals(res *orchestration.RunResult) string {
	counts := res.Counts()
	parts := make([]string, 0, len(outcomeOrder))
	for _, o := range outcomeOrder {
		if n := counts[o]; n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", n, o))
		}
	}
	noun := "accounts"
	if len(res.Results) == 1 {
		noun = "account"
	}
	if len(parts) == 0 {
		return fmt.Sprintf("0 %s", noun)
	}
	return fmt.Sprintf("%d %s: %s", len(res.Results), noun, strings.Join(parts, ", "))
}

// oneLine flattens multierror output for a table cell.
func oneLine(s string) string {
	var head string
	var items []string
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case line == "":
		case strings.HasPrefix(line, "* "):
			items = append(items, strings.TrimPrefix(line, "* "))
		case head == "" && len(items) == 0:
			head = line
		default:
			items = append(items, line)
		}
	}
	switch {
	case len(items) == 0:
		return head
	case head == "":
		return strings.Join(items, "; ")
	default:
		return head + " " + strings.Join(items, "; ")
	}
}
