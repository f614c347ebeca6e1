package cli

import (
	"fmt"

	"charm.land/bubbles/v2/progress"
	tea "charm.land/bubbletea/v2"
	"github.com/charmbracelet/lipgloss"

	"github.com/raphaelgruber/kbops-go/internal/kb"
	"github.com/raphaelgruber/kbops-go/internal/kbimport"
)

// Theme holds the color scheme for the progress display.
type Theme struct {
	Status     lipgloss.Color
	Success    lipgloss.Color
	Error      lipgloss.Color
	Hint       lipgloss.Color
	ProgressBg lipgloss.Color
}

// defaultTheme provides default colors.
var defaultTheme = Theme{
	Status:     lipgloss.Color("#5FAFD7"), // light blue
	Success:    lipgloss.Color("#00D787"), // green
	Error:      lipgloss.Color("#FF005F"), // red
	Hint:       lipgloss.Color("#6C6C6C"), // dim gray
	ProgressBg: lipgloss.Color("#3A3A3A"), // dark gray
}

// Style functions for dynamic theming
func (t Theme) statusStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Status)
}

func (t Theme) completedStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Success).Bold(true)
}

func (t Theme) errorStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Error).Bold(true)
}

func (t Theme) hintStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Hint).Italic(true)
}

// snapshotMsg carries an orchestrator state change into the UI.
type snapshotMsg kbimport.Snapshot

// progressModel is the bubbletea model for the import workflow view. It
// renders orchestrator snapshots; the orchestrator owns the one poll loop,
// the view only consumes its updates.
type progressModel struct {
	updates  <-chan kbimport.Snapshot
	snap     kbimport.Snapshot
	progress progress.Model
	theme    Theme
	done     bool
	quitting bool
}

// newProgressModel creates the workflow view fed by updates.
func newProgressModel(initial kbimport.Snapshot, updates <-chan kbimport.Snapshot) progressModel {
	prog := progress.New(
		progress.WithDefaultBlend(),
		progress.WithWidth(40),
	)

	return progressModel{
		updates:  updates,
		snap:     initial,
		progress: prog,
		theme:    defaultTheme,
	}
}

// Init returns the initial command (subscribe to orchestrator updates).
func (m progressModel) Init() tea.Cmd {
	return tea.Batch(
		waitForSnapshot(m.updates),
		m.progress.Init(),
	)
}

// Update handles messages and returns the updated model.
func (m progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyPressMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.quitting = true
			return m, tea.Quit
		}

	case snapshotMsg:
		m.snap = kbimport.Snapshot(msg)

		// The workflow view only stays open while the job is being driven.
		switch m.snap.State {
		case kbimport.StateStarted, kbimport.StatePolling:
			return m, waitForSnapshot(m.updates)
		}
		m.done = true
		return m, tea.Quit

	case progress.FrameMsg:
		// Update progress bar animation
		var cmd tea.Cmd
		m.progress, cmd = m.progress.Update(msg)
		return m, cmd
	}

	return m, nil
}

// View renders the progress display.
func (m progressModel) View() tea.View {
	return tea.NewView(m.renderContent())
}

// renderContent builds the display string.
func (m progressModel) renderContent() string {
	if m.done {
		return m.finalView()
	}

	job := m.snap.Job
	status := job.Status
	if status == "" {
		status = kb.StatusQueued
	}

	statusLabel := m.theme.statusStyle().Render(fmt.Sprintf("[%s]", status))
	progressBar := m.progress.ViewAs(float64(job.ProgressPct) / 100)
	counts := fmt.Sprintf("%d%%", job.ProgressPct)
	hint := m.theme.hintStyle().Render("Press Ctrl+C to continue in background")

	return fmt.Sprintf("%s %s %s\n%s\n", statusLabel, progressBar, counts, hint)
}

// finalView renders the completion message.
func (m progressModel) finalView() string {
	if m.quitting {
		msg := fmt.Sprintf("\nImport %s continues in background.\nUse 'kbops jobs %s' to check status.\n",
			m.snap.JobID, m.snap.JobID)
		return m.theme.hintStyle().Render(msg)
	}

	switch m.snap.State {
	case kbimport.StateCompleted:
		out := m.theme.completedStyle().Render("✓ Processing complete") + "\n\n"
		out += fmt.Sprintf("  Estimated cost: %d¢\n", m.snap.Job.CostEstimateCents)
		out += m.theme.hintStyle().Render(
			fmt.Sprintf("  Review and commit with 'kbops jobs commit %s'\n", m.snap.JobID))
		return out
	case kbimport.StateCommitted:
		return m.theme.completedStyle().Render("✓ Import committed\n")
	case kbimport.StateCanceled:
		return m.theme.hintStyle().Render("Import canceled\n")
	case kbimport.StateFailed:
		reason := m.snap.Job.ErrorMessage
		if reason == "" && m.snap.Err != nil {
			reason = m.snap.Err.Error()
		}
		return m.theme.errorStyle().Render(fmt.Sprintf("\n✗ Import failed: %s\n", reason))
	}
	return ""
}

// waitForSnapshot blocks (as a command) until the orchestrator publishes
// the next state change.
func waitForSnapshot(ch <-chan kbimport.Snapshot) tea.Cmd {
	return func() tea.Msg {
		return snapshotMsg(<-ch)
	}
}

// runImportProgress runs the interactive workflow view until the job
// leaves the polling stage or the user detaches. Returns the final
// snapshot and whether the user detached.
func runImportProgress(initial kbimport.Snapshot, updates <-chan kbimport.Snapshot) (kbimport.Snapshot, bool, error) {
	model := newProgressModel(initial, updates)
	p := tea.NewProgram(model)

	finalModel, err := p.Run()
	if err != nil {
		return initial, false, fmt.Errorf("progress UI error: %w", err)
	}

	if m, ok := finalModel.(progressModel); ok {
		return m.snap, m.quitting, nil
	}
	return initial, false, nil
}
