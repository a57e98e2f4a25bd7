package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/spigell/nudger/internal/engine"
	"github.com/spigell/nudger/internal/nudge"
	"github.com/spigell/nudger/internal/stats"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/viper"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("12")).
			MarginTop(1).
			MarginBottom(1)

	labelStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("10"))

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("7"))

	mutedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("8"))

	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("11"))

	nudgeStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("12")).
			Padding(0, 1).
			MarginBottom(1)
)

func row(w io.Writer, label string, value any) {
	fmt.Fprintf(w, "%s %s\n", labelStyle.Render(label+":"), valueStyle.Render(fmt.Sprint(value)))
}

func printJSON(w io.Writer, v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(out))
	return err
}

func renderNudge(n *nudge.Nudge) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s\n", labelStyle.Render(string(n.RuleType)), mutedStyle.Render(fmt.Sprintf("(%.1f)", n.Score)))
	b.WriteString(valueStyle.Render(n.Reason))
	if n.SuggestedAction != "" {
		fmt.Fprintf(&b, "\n%s %s", labelStyle.Render("→"), valueStyle.Render(n.SuggestedAction))
		if n.ActionURL != "" {
			b.WriteString(" " + mutedStyle.Render(n.ActionURL))
		}
	}
	status := string(n.Status)
	if n.SnoozeUntil != nil {
		status += " until " + n.SnoozeUntil.Format(time.RFC3339)
	}
	fmt.Fprintf(&b, "\n%s", mutedStyle.Render(fmt.Sprintf("%s · %s · %s", n.ID, status, n.CreatedAt.Format(time.RFC3339))))
	return nudgeStyle.Render(b.String())
}

func printNudges(w io.Writer, title string, nudges []*nudge.Nudge) {
	fmt.Fprintln(w, titleStyle.Render(title))
	if len(nudges) == 0 {
		fmt.Fprintln(w, mutedStyle.Render("nothing to show"))
		return
	}
	for _, n := range nudges {
		fmt.Fprintln(w, renderNudge(n))
	}
}

func printEvaluation(w io.Writer, ev *engine.Evaluation) {
	fmt.Fprintln(w, titleStyle.Render("Evaluation for "+ev.UserID))
	row(w, "Outcome", ev.Outcome)
	if ev.Reason != "" {
		row(w, "Reason", ev.Reason)
	}
	if !ev.Evaluated() {
		return
	}
	row(w, "Fired today", ev.FiredToday)
	row(w, "Remaining", ev.Remaining)
	row(w, "Triggered", len(ev.Candidates))
	for _, f := range ev.Failures {
		fmt.Fprintln(w, warnStyle.Render("rule failed: "+f.Error()))
	}
	fmt.Fprintln(w)
	for _, n := range ev.Nudges {
		fmt.Fprintln(w, renderNudge(n))
	}
}

func printRuleCheck(w io.Writer, c *engine.RuleCheck) {
	fmt.Fprintln(w, titleStyle.Render(fmt.Sprintf("%s (%s)", c.RuleType, c.Category)))
	row(w, "Triggered", c.Result.ShouldTrigger)
	row(w, "Score", fmt.Sprintf("%.1f", c.Result.Score))
	row(w, "Reason", c.Result.Reason)
	if c.Result.SuggestedAction != "" {
		row(w, "Action", c.Result.SuggestedAction)
	}
	if c.Result.ActionURL != "" {
		row(w, "URL", c.Result.ActionURL)
	}
	if c.OnCooldown && c.AvailableAt != nil {
		fmt.Fprintln(w, warnStyle.Render("on cooldown until "+c.AvailableAt.Format(time.RFC3339)))
	}
	if len(c.Result.Metadata) > 0 {
		keys := make([]string, 0, len(c.Result.Metadata))
		for k := range c.Result.Metadata {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			row(w, "  "+k, c.Result.Metadata[k])
		}
	}
}

func printPreferences(w io.Writer, p *nudge.Preferences) {
	fmt.Fprintln(w, titleStyle.Render("Preferences for "+p.UserID))
	row(w, "Agent enabled", p.AgentEnabled)
	row(w, "Proactive enabled", p.ProactiveEnabled)
	row(w, "Daily limit", p.DailyLimit)
	row(w, "Quiet hours", fmt.Sprintf("%02d:00 - %02d:00", p.QuietHoursStart, p.QuietHoursEnd))
	row(w, "Timezone", p.Timezone)

	channels := make([]string, 0, len(p.Channels))
	for _, ch := range p.EnabledChannels() {
		channels = append(channels, string(ch))
	}
	row(w, "Channels", strings.Join(channels, ", "))
}

func printStats(w io.Writer, userID string, s *stats.Stats) {
	fmt.Fprintln(w, titleStyle.Render("Nudge stats for "+userID))
	row(w, "Today", fmt.Sprintf("%d sent, %d remaining", s.Today.Count, s.Today.Remaining))
	row(w, "This week", s.Week.Count)
	row(w, "  accepted", s.Week.Accepted)
	row(w, "  dismissed", s.Week.Dismissed)
	row(w, "  snoozed", s.Week.Snoozed)
	row(w, "  pending", s.Week.Pending)
	row(w, "All time", s.All.Total)
	row(w, "Acceptance rate", fmt.Sprintf("%.1f%%", s.AcceptanceRate))
}

func printSweep(w io.Writer, s *engine.SweepSummary) {
	fmt.Fprintln(w, titleStyle.Render("Sweep"))
	row(w, "Users", len(s.Results))
	row(w, "Nudges emitted", s.Emitted)
	row(w, "Failed", s.Failed)
	row(w, "Took", s.Duration.Round(time.Millisecond))
	for _, r := range s.Results {
		switch {
		case r.Err != nil:
			fmt.Fprintln(w, warnStyle.Render(fmt.Sprintf("%s: %v", r.UserID, r.Err)))
		case r.Evaluation != nil:
			fmt.Fprintln(w, mutedStyle.Render(fmt.Sprintf("%s: %s, %d nudges", r.UserID, r.Evaluation.Outcome, len(r.Evaluation.Nudges))))
		}
	}
}

func jsonOutput() bool {
	return strings.EqualFold(viper.GetString("output"), "json")
}

// emit prints v as json when asked to, otherwise calls text.
func emit(w io.Writer, v any, text func()) error {
	if jsonOutput() {
		return printJSON(w, v)
	}
	text()
	return nil
}
