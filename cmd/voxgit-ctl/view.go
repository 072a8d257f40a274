package main

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"voxgit/internal/history"
	"voxgit/internal/ipc"
	"voxgit/internal/voice"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("33"))
	labelStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	commandStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("255"))
	errStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	okStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	boxStyle     = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("214")).
			Padding(0, 1)
)

var riskStyles = map[string]lipgloss.Style{
	"low":    okStyle,
	"medium": warnStyle,
	"high":   errStyle.Bold(true),
}

var stateStyles = map[voice.State]lipgloss.Style{
	voice.Off:                  labelStyle,
	voice.WakeListening:        okStyle,
	voice.CommandListening:     titleStyle,
	voice.Processing:           warnStyle,
	voice.AwaitingConfirmation: errStyle,
}

func renderStatus(r ipc.Reply) string {
	if r.Snapshot == nil {
		return okStyle.Render("ok") + "\n"
	}

	var b strings.Builder
	s := *r.Snapshot
	fmt.Fprintf(&b, "%s %s\n", labelStyle.Render("state:"), stateStyles[s.State].Render(string(s.State)))
	if !s.LastWakeAt.IsZero() {
		fmt.Fprintf(&b, "%s %s\n", labelStyle.Render("woke: "), s.LastWakeAt.Format(time.TimeOnly))
	}
	if s.LastHeardText != "" {
		fmt.Fprintf(&b, "%s %q\n", labelStyle.Render("heard:"), s.LastHeardText)
	}
	if r.Pending != nil {
		fmt.Fprintf(&b, "%s %s %s\n", labelStyle.Render("plan: "),
			commandStyle.Render(r.Pending.Command),
			riskStyles[string(r.Pending.Risk)].Render("["+string(r.Pending.Risk)+"]"))
	}
	if r.Prompt != nil {
		fmt.Fprintf(&b, "%s step %d of %d, run `voxgit-ctl confirm`\n",
			warnStyle.Render("awaiting confirmation:"), r.Prompt.Step, r.Prompt.Steps)
	}
	return b.String()
}

func renderHistory(entries []history.Entry) string {
	if len(entries) == 0 {
		return labelStyle.Render("no executions yet") + "\n"
	}

	var b strings.Builder
	for _, e := range entries {
		outcome := okStyle
		if e.Outcome != "success" {
			outcome = errStyle
		}
		fmt.Fprintf(&b, "%s  %-7s %s  %s %s\n",
			labelStyle.Render(e.At.Format("2006-01-02 15:04:05")),
			outcome.Render(e.Outcome),
			riskStyles[e.Risk].Render(fmt.Sprintf("%-6s", e.Risk)),
			commandStyle.Render(e.Command),
			labelStyle.Render(fmt.Sprintf("(exit %d, %s)", e.ExitCode, e.Duration.Round(time.Millisecond))))
	}
	return b.String()
}

// confirmModel shows the pending plan and waits for y or n.
type confirmModel struct {
	reply    ipc.Reply
	approved bool
	done     bool
}

func (m confirmModel) Init() tea.Cmd { return nil }

func (m confirmModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	switch key.String() {
	case "y", "Y":
		m.approved, m.done = true, true
		return m, tea.Quit
	case "n", "N", "q", "esc", "ctrl+c":
		m.approved, m.done = false, true
		return m, tea.Quit
	}
	return m, nil
}

func (m confirmModel) View() string {
	if m.done {
		if m.approved {
			return okStyle.Render("approved") + "\n"
		}
		return errStyle.Render("declined") + "\n"
	}

	var b strings.Builder
	p := m.reply.Prompt
	b.WriteString(titleStyle.Render(fmt.Sprintf("Confirm (step %d of %d)", p.Step, p.Steps)))
	b.WriteString("\n\n")
	if pl := m.reply.Pending; pl != nil {
		b.WriteString(commandStyle.Render("$ " + pl.Command))
		b.WriteString("  ")
		b.WriteString(riskStyles[string(pl.Risk)].Render(string(pl.Risk) + " risk"))
		b.WriteString("\n")
	}
	b.WriteString(p.Message)
	b.WriteString("\n\n")
	b.WriteString(labelStyle.Render("y approve · n decline"))
	return boxStyle.Render(b.String()) + "\n"
}

func askUser(r ipc.Reply) (bool, error) {
	final, err := tea.NewProgram(confirmModel{reply: r}).Run()
	if err != nil {
		return false, err
	}
	return final.(confirmModel).approved, nil
}
