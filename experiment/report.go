package experiment

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fatih/color"
)

// BestByWorkload returns, for each workload, the index of the result with the
// highest accuracy. The first result wins ties.
func BestByWorkload(results []Result) map[string]int {
	best := make(map[string]int)
	for i, r := range results {
		j, ok := best[r.Workload]
		if !ok || r.Accuracy > results[j].Accuracy {
			best[r.Workload] = i
		}
	}
	return best
}

// PrintResults outputs a summary table in a human-readable format. The most
// accurate predictor of each workload is highlighted.
func (h *Harness) PrintResults(results []Result) {
	out := h.config.Output

	header := color.New(color.Bold)
	winner := color.New(color.FgGreen)
	if h.config.NoColor {
		header.DisableColor()
		winner.DisableColor()
	}

	_, _ = header.Fprintln(out, "==================== FINAL RESULTS ====================")
	_, _ = fmt.Fprintf(out, "%-12s %-10s %-9s %-8s %-8s %-8s %-8s %-8s\n",
		"Predictor", "Trace", "Accuracy", "Correct", "Total", "Misp", "MPKI", "CPI")
	_, _ = fmt.Fprintln(out, strings.Repeat("-", 66))

	best := BestByWorkload(results)
	for i, r := range results {
		line := fmt.Sprintf("%-12s %-10s %-9.4f %-8d %-8d %-8d %-8.2f %-8.4f",
			r.Predictor, r.Workload, r.Accuracy, r.Correct, r.Total,
			r.Mispredictions, r.MPKI, r.CPI)
		if best[r.Workload] == i && len(results) > 1 {
			_, _ = winner.Fprintln(out, line)
		} else {
			_, _ = fmt.Fprintln(out, line)
		}
	}
	_, _ = fmt.Fprintln(out, strings.Repeat("=", 66))

	for _, r := range results {
		if len(r.HotBranches) == 0 {
			continue
		}
		_, _ = fmt.Fprintf(out, "\nHot branches: %s on %s\n", r.Predictor, r.Workload)
		for _, b := range r.HotBranches {
			_, _ = fmt.Fprintf(out, "  0x%-12X execs=%-8d misp=%-8d rate=%.3f\n",
				b.Address, b.Executions, b.Mispredictions, b.MispredictionRate())
		}
	}
}

// PrintCSV outputs results in CSV format for easy comparison.
func (h *Harness) PrintCSV(results []Result) {
	out := h.config.Output

	_, _ = fmt.Fprintln(out, "predictor,workload,accuracy,correct,total,mispredictions,mpki,cpi")
	for _, r := range results {
		_, _ = fmt.Fprintf(out, "%s,%s,%.6f,%d,%d,%d,%.4f,%.6f\n",
			r.Predictor,
			r.Workload,
			r.Accuracy,
			r.Correct,
			r.Total,
			r.Mispredictions,
			r.MPKI,
			r.CPI,
		)
	}
}

// PrintJSON outputs results as an indented JSON array.
func (h *Harness) PrintJSON(results []Result) error {
	enc := json.NewEncoder(h.config.Output)
	enc.SetIndent("", "  ")
	if err := enc.Encode(results); err != nil {
		return fmt.Errorf("failed to encode results: %w", err)
	}
	return nil
}
