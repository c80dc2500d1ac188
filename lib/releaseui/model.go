// Copyright 2026 The Bale Authors
// SPDX-License-Identifier: Apache-2.0

package releaseui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"github.com/baleproject/bale/lib/release"
	"github.com/baleproject/bale/lib/releaseplan"
)

// defaultInterval is the state file poll period when Config.Interval
// is zero.
const defaultInterval = time.Second

// Config describes what the dashboard watches.
type Config struct {
	// Version is the release version, shown in the header.
	Version string

	// Steps is the plan's step list in dependency order, variables
	// already expanded. The dashboard renders steps in this order;
	// the state file only knows step IDs.
	Steps []releaseplan.Step

	// StatePath is the state file to poll. The file may not exist yet
	// when the dashboard starts; polling continues until it appears.
	StatePath string

	// Interval is the poll period. Zero means one second.
	Interval time.Duration
}

// reloadMsg carries a freshly loaded state snapshot, or the load
// error when the state file is missing or unreadable.
type reloadMsg struct {
	state *release.State
	err   error
}

// Model is the bubbletea model for the release dashboard.
type Model struct {
	version   string
	steps     []releaseplan.Step
	statePath string
	interval  time.Duration
	theme     Theme
	keys      KeyMap
	spinner   spinner.Model

	// Last loaded state. Nil until the first successful reload.
	state   *release.State
	loadErr error

	// Terminal dimensions (set by WindowSizeMsg).
	width  int
	height int
}

// NewModel creates a dashboard model for the given release.
func NewModel(config Config) Model {
	interval := config.Interval
	if interval == 0 {
		interval = defaultInterval
	}

	theme := DefaultTheme

	spin := spinner.New()
	spin.Spinner = spinner.MiniDot
	spin.Style = lipgloss.NewStyle().Foreground(theme.StatusRunning)

	return Model{
		version:   config.Version,
		steps:     config.Steps,
		statePath: config.StatePath,
		interval:  interval,
		theme:     theme,
		keys:      DefaultKeyMap,
		spinner:   spin,
	}
}

// Init implements tea.Model. Loads the state immediately and starts
// the spinner.
func (model Model) Init() tea.Cmd {
	return tea.Batch(model.spinner.Tick, loadState(model.statePath))
}

// loadState returns a command that reads the state file once and
// delivers the result as a reloadMsg.
func loadState(path string) tea.Cmd {
	return func() tea.Msg {
		state, err := release.LoadState(path)
		return reloadMsg{state: state, err: err}
	}
}

// scheduleReload returns a command that waits one poll interval and
// then reads the state file.
func scheduleReload(path string, interval time.Duration) tea.Cmd {
	return tea.Tick(interval, func(time.Time) tea.Msg {
		state, err := release.LoadState(path)
		return reloadMsg{state: state, err: err}
	})
}

// Update implements tea.Model.
func (model Model) Update(message tea.Msg) (tea.Model, tea.Cmd) {
	switch message := message.(type) {
	case tea.KeyMsg:
		if key.Matches(message, model.keys.Quit) {
			return model, tea.Quit
		}

	case tea.WindowSizeMsg:
		model.width = message.Width
		model.height = message.Height

	case reloadMsg:
		if message.err != nil {
			// Keep the previous snapshot on transient read errors so
			// the display does not flicker to empty mid-write.
			model.loadErr = message.err
		} else {
			model.state = message.state
			model.loadErr = nil
		}
		if model.finished() {
			return model, nil
		}
		return model, scheduleReload(model.statePath, model.interval)

	case spinner.TickMsg:
		if model.finished() {
			return model, nil
		}
		var command tea.Cmd
		model.spinner, command = model.spinner.Update(message)
		return model, command
	}

	return model, nil
}

// finished reports whether the release reached a terminal state:
// aborted, or every step satisfied. Polling stops at that point.
func (model Model) finished() bool {
	if model.state == nil {
		return false
	}
	return model.state.Aborted || model.state.Complete()
}

// View implements tea.Model.
func (model Model) View() string {
	header := lipgloss.NewStyle().Bold(true).Foreground(model.theme.HeaderForeground)
	faint := lipgloss.NewStyle().Foreground(model.theme.FaintText)

	var out strings.Builder
	out.WriteString(model.line(header.Render("bale release " + model.version)))
	out.WriteString("\n")

	if model.state != nil && model.state.Branch != "" {
		out.WriteString(model.line(faint.Render(
			fmt.Sprintf("branch %s  tag %s", model.state.Branch, model.state.Tag))))
		out.WriteString("\n")
	}
	out.WriteString("\n")

	for _, step := range model.steps {
		out.WriteString(model.line(model.renderStep(step)))
		out.WriteString("\n")
	}

	out.WriteString("\n")
	out.WriteString(model.line(model.renderFooter()))
	out.WriteString("\n")

	return out.String()
}

// line truncates a rendered line to the terminal width. Before the
// first WindowSizeMsg the width is unknown and lines pass through.
func (model Model) line(rendered string) string {
	if model.width <= 0 {
		return rendered
	}
	return ansi.Truncate(rendered, model.width, "…")
}

// renderStep renders one step row: a status glyph, the step name, and
// a status-dependent annotation.
func (model Model) renderStep(step releaseplan.Step) string {
	faint := lipgloss.NewStyle().Foreground(model.theme.FaintText)

	var stepState *release.StepState
	if model.state != nil {
		stepState = model.state.Steps[step.ID]
	}

	status := release.StatusPending
	if stepState != nil {
		status = stepState.Status
	}

	name := step.Name
	if name == "" {
		name = step.ID
	}

	row := "  " + model.statusGlyph(status) + " "
	switch status {
	case release.StatusPending:
		row += faint.Render(name)
	default:
		row += lipgloss.NewStyle().Foreground(model.theme.NormalText).Render(name)
	}

	switch status {
	case release.StatusDone:
		if stepState.StartedAt != nil && stepState.FinishedAt != nil {
			elapsed := stepState.FinishedAt.Sub(*stepState.StartedAt).Round(time.Second)
			row += faint.Render(fmt.Sprintf("  (%s)", elapsed))
		}
	case release.StatusRunning:
		if stepState.StartedAt != nil {
			elapsed := time.Since(*stepState.StartedAt).Round(time.Second)
			row += faint.Render(fmt.Sprintf("  (%s)", elapsed))
		}
	case release.StatusFailed:
		if stepState.Error != "" {
			row += lipgloss.NewStyle().
				Foreground(model.theme.StatusFailed).
				Render("  " + firstLine(stepState.Error))
		}
	case release.StatusSkipped:
		if stepState.SkipReason != "" {
			row += faint.Render("  (" + stepState.SkipReason + ")")
		}
	}

	return row
}

// statusGlyph returns the colored single-character indicator for a
// step status. The running glyph is the live spinner frame.
func (model Model) statusGlyph(status release.Status) string {
	if status == release.StatusRunning {
		return model.spinner.View()
	}

	style := lipgloss.NewStyle().Foreground(model.theme.StatusColor(status))
	switch status {
	case release.StatusDone:
		return style.Render("✓")
	case release.StatusFailed:
		return style.Render("✗")
	case release.StatusSkipped:
		return style.Render("-")
	default:
		return style.Render("·")
	}
}

// renderFooter renders the bottom line: a terminal-state summary when
// the release is finished, otherwise progress plus the key hints. A
// state file read error surfaces here rather than replacing the step
// list.
func (model Model) renderFooter() string {
	help := lipgloss.NewStyle().Foreground(model.theme.HelpText)

	if model.state == nil {
		if model.loadErr != nil {
			waiting := lipgloss.NewStyle().Foreground(model.theme.FaintText).
				Render("waiting for release to start")
			return waiting + help.Render("  q quit")
		}
		return help.Render("q quit")
	}

	if model.state.Aborted {
		summary := lipgloss.NewStyle().Bold(true).Foreground(model.theme.StatusFailed).
			Render("release aborted")
		return summary + help.Render("  q quit")
	}

	if model.state.Complete() {
		summary := lipgloss.NewStyle().Bold(true).Foreground(model.theme.StatusDone).
			Render("release complete")
		return summary + help.Render("  q quit")
	}

	complete, total := model.state.Progress()
	progress := lipgloss.NewStyle().Foreground(model.theme.NormalText).
		Render(fmt.Sprintf("%d/%d steps done", complete, total))
	if model.loadErr != nil {
		progress += lipgloss.NewStyle().Foreground(model.theme.StatusFailed).
			Render("  (state read failed)")
	}
	return progress + help.Render("  q quit")
}

// firstLine returns text up to the first newline.
func firstLine(text string) string {
	if index := strings.IndexByte(text, '\n'); index >= 0 {
		return text[:index]
	}
	return text
}
