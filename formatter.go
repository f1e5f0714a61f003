package bridge

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/ethereum-optimism/infra/vitest-bridge/types"
)

// writeResultsTable renders the per-run results, grouped by suite, followed
// by a totals footer. The table style tracks the overall status.
func writeResultsTable(w io.Writer, summary types.Summary, outcomes []types.ResolvedOutcome) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle(fmt.Sprintf("Test Run Results (%s)", formatDuration(summary.Duration)))

	t.AppendHeader(table.Row{
		"Type", "ID", "Duration", "Passed", "Failed", "Skipped", "Status", "Message",
	})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Type", AutoMerge: true},
		{Name: "ID", WidthMax: 50, WidthMaxEnforcer: text.WrapSoft},
		{Name: "Duration", Align: text.AlignRight},
		{Name: "Passed", Align: text.AlignRight},
		{Name: "Failed", Align: text.AlignRight},
		{Name: "Skipped", Align: text.AlignRight},
		{Name: "Message", WidthMax: 80, WidthMaxEnforcer: text.WrapSoft},
	})

	for _, group := range groupBySuite(outcomes) {
		var passed, failed, skipped int
		var duration time.Duration
		for _, o := range group.outcomes {
			passed += boolToInt(o.Verdict == types.VerdictPass)
			failed += boolToInt(o.Verdict == types.VerdictFail)
			skipped += boolToInt(o.Verdict == types.VerdictSkip)
			duration += o.Duration
		}
		suiteStatus := types.VerdictPass
		if failed > 0 {
			suiteStatus = types.VerdictFail
		} else if passed == 0 && skipped > 0 {
			suiteStatus = types.VerdictSkip
		}

		t.AppendRow(table.Row{
			"Suite",
			group.name,
			formatDuration(duration),
			passed,
			failed,
			skipped,
			getResultString(suiteStatus),
			"",
		})

		for i, o := range group.outcomes {
			prefix := "├──"
			if i == len(group.outcomes)-1 {
				prefix = "└──"
			}
			t.AppendRow(table.Row{
				"Test",
				fmt.Sprintf("%s %s", prefix, o.Test.Name),
				formatDuration(o.Duration),
				boolToInt(o.Verdict == types.VerdictPass),
				boolToInt(o.Verdict == types.VerdictFail),
				boolToInt(o.Verdict == types.VerdictSkip),
				getResultString(o.Verdict),
				firstLine(o.Message),
			})
		}
		t.AppendSeparator()
	}

	switch summary.Status() {
	case types.VerdictPass:
		t.SetStyle(table.StyleColoredBlackOnGreenWhite)
	case types.VerdictSkip:
		t.SetStyle(table.StyleColoredBlackOnYellowWhite)
	default:
		t.SetStyle(table.StyleColoredBlackOnRedWhite)
	}

	t.AppendFooter(table.Row{
		"TOTAL",
		"",
		formatDuration(summary.Duration),
		summary.Passed,
		summary.Failed,
		summary.Skipped,
		getResultString(summary.Status()),
		fmt.Sprintf("unresolved: %d", summary.Unresolved),
	})

	t.Render()
}

type suiteGroup struct {
	name     string
	outcomes []types.ResolvedOutcome
}

// groupBySuite buckets outcomes by suite, preserving first-seen suite order
// and outcome order within a suite.
func groupBySuite(outcomes []types.ResolvedOutcome) []suiteGroup {
	var groups []suiteGroup
	index := make(map[string]int)
	for _, o := range outcomes {
		suite := o.Test.Suite
		if suite == "" {
			suite = "(no suite)"
		}
		i, ok := index[suite]
		if !ok {
			i = len(groups)
			index[suite] = i
			groups = append(groups, suiteGroup{name: suite})
		}
		groups[i].outcomes = append(groups[i].outcomes, o)
	}
	return groups
}

// firstLine trims a failure message down to something that fits in a table
// cell.
func firstLine(s string) string {
	if idx := strings.Index(s, "\n"); idx != -1 {
		s = s[:idx]
	}
	if len(s) > 80 {
		return s[:70] + "..."
	}
	return s
}

// Helper function to convert bool to int
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// getResultString returns a short string representing the test result
func getResultString(status types.Verdict) string {
	switch status {
	case types.VerdictPass:
		return "✓ pass"
	case types.VerdictSkip:
		return "- skip"
	default:
		return "✗ fail"
	}
}

// Helper function to format duration to seconds with 1 decimal place
func formatDuration(d time.Duration) string {
	return fmt.Sprintf("%.1fs", d.Seconds())
}
