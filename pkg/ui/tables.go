package ui

import (
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"captioner/pkg/estimate"
	"captioner/pkg/models"
)

// RenderStats prints the per-status tally of a journal
func RenderStats(w io.Writer, counts map[models.Status]int, discarded int) {
	total := 0
	for _, n := range counts {
		total += n
	}
	if total == 0 && discarded == 0 {
		fmt.Fprintln(w, "No records found.")
		return
	}

	tw := newTable(w)
	tw.AppendHeader(table.Row{"Status", "Photos", "Share"})
	for _, s := range models.AllStatuses() {
		n := counts[s]
		tw.AppendRow(table.Row{s.String(), humanize.Comma(int64(n)), percent(n, total)})
	}
	tw.AppendFooter(table.Row{"Total", humanize.Comma(int64(total)), ""})
	tw.SetColumnConfigs(rightAligned(2, 3))
	tw.Render()

	if discarded > 0 {
		fmt.Fprintf(w, "%s %s malformed lines were skipped\n", Yellow("!"), humanize.Comma(int64(discarded)))
	}
}

// RenderEstimate prints the projected cost and time of the remaining photos
func RenderEstimate(w io.Writer, e estimate.Estimate) {
	tw := newTable(w)
	tw.AppendRows([]table.Row{
		{"Photos remaining", fmt.Sprintf("%s / %s (%s already done)",
			humanize.Comma(int64(e.Remaining)), humanize.Comma(int64(e.Total)), humanize.Comma(int64(e.Done)))},
		{"Backend", e.Backend + " / " + e.Model},
		{"Estimated cost", fmt.Sprintf("~$%.2f (input) + ~$%.2f (output) = ~$%.2f", e.InputCost, e.OutputCost, e.TotalCost())},
		{"Estimated time", fmt.Sprintf("~%s at %d workers", FormatDuration(e.Duration), e.Workers)},
	})
	tw.Render()

	if !e.KnownRate {
		fmt.Fprintf(w, "%s no rate on file for %q, using the default per-image rate\n", Yellow("!"), e.Model)
	}
}

// RenderKeys prints stored API keys, masked
func RenderKeys(w io.Writer, rows [][3]string) {
	if len(rows) == 0 {
		fmt.Fprintln(w, "No keys stored.")
		return
	}
	tw := newTable(w)
	tw.AppendHeader(table.Row{"Provider", "Key", "Store"})
	for _, r := range rows {
		tw.AppendRow(table.Row{r[0], r[1], r[2]})
	}
	tw.Render()
}

// FormatDuration formats a duration for humans
func FormatDuration(d time.Duration) string {
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	default:
		return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
	}
}

func newTable(w io.Writer) table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.SetStyle(table.StyleRounded)
	return tw
}

func rightAligned(columns ...int) []table.ColumnConfig {
	configs := make([]table.ColumnConfig, 0, len(columns))
	for _, c := range columns {
		configs = append(configs, table.ColumnConfig{
			Number:      c,
			Align:       text.AlignRight,
			AlignHeader: text.AlignLeft,
			AlignFooter: text.AlignRight,
		})
	}
	return configs
}

func percent(n, total int) string {
	if total == 0 {
		return "-"
	}
	return fmt.Sprintf("%.1f%%", 100*float64(n)/float64(total))
}

// RenderRates prints the per-image figures used by estimates
func RenderRates(w io.Writer, rates map[string]estimate.Rate, models []string) {
	tw := newTable(w)
	tw.AppendHeader(table.Row{"Model", "Input $/img", "Output $/img", "Seconds/img"})
	for _, m := range models {
		r := rates[m]
		tw.AppendRow(table.Row{m, fmt.Sprintf("%.5f", r.Input), fmt.Sprintf("%.5f", r.Output), fmt.Sprintf("%.1f", r.Seconds)})
	}
	d := estimate.DefaultRate
	tw.AppendFooter(table.Row{"default", fmt.Sprintf("%.5f", d.Input), fmt.Sprintf("%.5f", d.Output), fmt.Sprintf("%.1f", d.Seconds)})
	tw.SetColumnConfigs(rightAligned(2, 3, 4))
	tw.Render()
}
