package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"

	"github.com/command-center/hive/internal/model"
)

// statusColor returns the colour for a campaign or curation status.
func statusColor(status string) *color.Color {
	switch status {
	case string(model.CampaignStatusComplete), string(model.CurationValuable):
		return color.New(color.FgHiGreen)
	case string(model.CampaignStatusRunning):
		return color.New(color.FgHiCyan)
	case string(model.CampaignStatusPaused), string(model.CurationPending):
		return color.New(color.FgYellow)
	case string(model.CampaignStatusFailed), string(model.CurationNoise):
		return color.New(color.FgRed)
	default:
		return color.New(color.FgHiBlack)
	}
}

func eventColor(t model.EventType) *color.Color {
	switch t {
	case model.EventError, model.EventFailed, model.EventSlackError, model.EventPublishError:
		return color.New(color.FgRed)
	case model.EventLimitReached, model.EventStopped:
		return color.New(color.FgYellow)
	case model.EventCompleted, model.EventPublished:
		return color.New(color.FgHiGreen)
	default:
		return color.New(color.FgCyan)
	}
}

// formatCampaignsList writes a tabular list of campaigns to w. Status is the
// last column so its colour codes do not skew alignment.
func formatCampaignsList(out io.Writer, campaigns []model.Campaign) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tNAME\tEXPLORATIONS\tSPENT\tCREATED\tSTATUS")
	_, _ = fmt.Fprintln(w, "--\t----\t------------\t-----\t-------\t------")

	for _, c := range campaigns {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%d/%d\t$%.2f/$%.2f\t%s\t%s\n",
			truncateID(c.ID),
			truncate(c.Name, 30),
			c.ExplorationCount, c.ExplorationCap,
			c.BudgetSpent, c.BudgetCap,
			c.CreatedAt.Format("2006-01-02 15:04"),
			statusColor(string(c.Status)).Sprint(c.Status),
		)
	}
	_ = w.Flush()
}

// formatReview writes a campaign, its briefing and its explorations to w.
func formatReview(out io.Writer, rv *model.CampaignReview) {
	c := rv.Campaign
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Campaign:\t%s (%s)\n", c.Name, c.ID)
	_, _ = fmt.Fprintf(w, "Question:\t%s\n", c.RootQuestion)
	_, _ = fmt.Fprintf(w, "Status:\t%s\n", statusColor(string(c.Status)).Sprint(c.Status))
	_, _ = fmt.Fprintf(w, "Models:\t%s\n", strings.Join(c.Models, ", "))
	_, _ = fmt.Fprintf(w, "Explorations:\t%d/%d (%d valuable)\n", c.ExplorationCount, c.ExplorationCap, rv.ValuableCount)
	_, _ = fmt.Fprintf(w, "Cost:\t$%.4f of $%.2f\n", rv.TotalCost, c.BudgetCap)
	if c.ErrorMessage != "" {
		_, _ = fmt.Fprintf(w, "Error:\t%s\n", color.New(color.FgRed).Sprint(c.ErrorMessage))
	}
	_ = w.Flush()

	if b := rv.Briefing; b != nil {
		_, _ = fmt.Fprintf(out, "\n%s\n%s\n", color.New(color.Bold).Sprint("Briefing"), b.Summary)
		writeBullets(out, "Key findings", b.KeyFindings)
		writeBullets(out, "Gaps", b.Gaps)
		writeBullets(out, "Next actions", b.NextActions)
	}

	if len(rv.Explorations) == 0 {
		return
	}
	_, _ = fmt.Fprintln(out)
	w = tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tMODEL\tCLAIMS\tVALUE\tCOST\tQUESTION\tCURATION")
	_, _ = fmt.Fprintln(w, "--\t-----\t------\t-----\t----\t--------\t--------")
	for _, e := range rv.Explorations {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%.2f\t$%.4f\t%s\t%s\n",
			truncateID(e.ID),
			e.SourceModel,
			len(e.Claims),
			e.PredictedValue,
			e.CostDollars,
			truncate(e.Question, 50),
			statusColor(string(e.CurationStatus)).Sprint(e.CurationStatus),
		)
	}
	_ = w.Flush()
}

func writeBullets(out io.Writer, title string, items []string) {
	if len(items) == 0 {
		return
	}
	_, _ = fmt.Fprintf(out, "\n%s:\n", title)
	for _, it := range items {
		_, _ = fmt.Fprintf(out, "  • %s\n", it)
	}
}

// formatEvents writes the event log in append order.
func formatEvents(out io.Writer, events []model.CampaignEvent) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "TIME\tEVENT\tDATA")
	_, _ = fmt.Fprintln(w, "----\t-----\t----")
	for _, ev := range events {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n",
			ev.CreatedAt.Format("15:04:05.000"),
			eventColor(ev.EventType).Sprint(ev.EventType),
			eventSummary(ev.EventData),
		)
	}
	_ = w.Flush()
}

// eventSummary renders event data as sorted key=value pairs.
func eventSummary(data map[string]any) string {
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		var v string
		switch val := data[k].(type) {
		case string:
			v = truncate(val, 60)
		default:
			b, err := json.Marshal(val)
			if err != nil {
				v = fmt.Sprint(val)
			} else {
				v = truncate(string(b), 60)
			}
		}
		parts = append(parts, k+"="+v)
	}
	return strings.Join(parts, " ")
}

// truncateID returns the first 8 characters of a UUID for compact display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// truncate shortens s to at most n runes.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
