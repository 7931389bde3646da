package tunnel

import (
	"bytes"
	"fmt"

	"github.com/fatih/color"
	"github.com/guptarohit/asciigraph"
	"github.com/olekukonko/tablewriter"
	"go.uber.org/zap"
)

// logExtendedReport renders the forced-reset diagnostic: every
// partially-filled window slot with its missing indices, as a
// colorized table, plus a sparkline of recent per-group fill counts.
func logExtendedReport(logger *zap.Logger, entries []partialSlot) {
	if len(entries) == 0 {
		logger.Info("extended report: no partially-filled groups")
		return
	}

	var buf bytes.Buffer
	table := tablewriter.NewWriter(&buf)
	table.Header("group seq", "received", "missing indices")
	for _, e := range entries {
		missing := fmt.Sprintf("%v", e.missing)
		row := fmt.Sprintf("%d", e.count)
		if e.count < DataSize {
			row = color.New(color.FgYellow).Sprint(row)
		}
		_ = table.Append(fmt.Sprintf("0x%08x", e.seq), row, missing)
	}
	_ = table.Render()

	counts := make([]float64, len(entries))
	for i, e := range entries {
		counts[i] = float64(e.count)
	}
	graph := asciigraph.Plot(counts,
		asciigraph.Height(8),
		asciigraph.Width(min(len(counts), 70)),
		asciigraph.Caption("received packets per partial group"),
	)

	logger.Info("extended report",
		zap.Int("partial_groups", len(entries)),
		zap.String("table", buf.String()),
		zap.String("sparkline", graph),
	)
}
