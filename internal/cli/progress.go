package cli

import (
	"fmt"

	"charm.land/bubbles/v2/progress"
	tea "charm.land/bubbletea/v2"
	"github.com/charmbracelet/lipgloss"
	"github.com/raphaelgruber/lecturekb/internal/generate"
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

// progressUpdate carries batch progress from the pipeline goroutine.
// done marks the terminal message with the run's result.
type progressUpdate struct {
	completed int
	total     int
	done      bool
	report    generate.Report
	err       error
}

// progressModel is the bubbletea model for generation progress.
type progressModel struct {
	updates   <-chan progressUpdate
	progress  progress.Model
	theme     Theme
	completed int
	total     int
	report    generate.Report
	done      bool
	cancelled bool
	err       error
}

// newProgressModel creates a new progress model.
func newProgressModel(updates <-chan progressUpdate) progressModel {
	prog := progress.New(
		progress.WithDefaultBlend(),
		progress.WithWidth(40),
	)

	return progressModel{
		updates:  updates,
		progress: prog,
		theme:    defaultTheme,
	}
}

// Init returns the initial command (wait for the first update).
func (m progressModel) Init() tea.Cmd {
	return tea.Batch(
		waitForUpdate(m.updates),
		m.progress.Init(),
	)
}

// Update handles messages and returns the updated model.
func (m progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyPressMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.cancelled = true
			return m, tea.Quit
		}

	case progressUpdate:
		if msg.done {
			m.done = true
			m.report = msg.report
			m.err = msg.err
			return m, tea.Quit
		}
		m.completed = msg.completed
		m.total = msg.total
		return m, waitForUpdate(m.updates)

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

	if m.total == 0 {
		return "Segmenting transcript...\n"
	}

	var pct float64
	if m.total > 0 {
		pct = float64(m.completed) / float64(m.total)
	}

	status := m.theme.statusStyle().Render("[generating]")
	progressBar := m.progress.ViewAs(pct)
	counts := fmt.Sprintf("%d/%d notes", m.completed, m.total)
	hint := m.theme.hintStyle().Render("Press Ctrl+C to abort")

	return fmt.Sprintf("%s %s %s\n%s\n", status, progressBar, counts, hint)
}

// finalView renders the completion message.
func (m progressModel) finalView() string {
	if m.err != nil {
		return m.theme.errorStyle().Render(fmt.Sprintf("\n✗ Generation failed: %s\n", m.err))
	}

	var output string
	output += m.theme.completedStyle().Render("✓ Completed") + "\n\n"
	output += fmt.Sprintf("  Knowledge points: %d\n", m.report.KnowledgePoints)
	output += fmt.Sprintf("  Notes written:    %d\n", m.report.NotesWritten)
	output += fmt.Sprintf("  Batches:          %d\n", m.report.Stats.BatchesProcessed)
	if m.report.Stats.Retried > 0 {
		output += fmt.Sprintf("  Retries:          %d\n", m.report.Stats.Retried)
	}
	if len(m.report.Failed) > 0 {
		output += m.theme.errorStyle().Render(fmt.Sprintf("\nFailed (%d):\n", len(m.report.Failed)))
		for _, name := range m.report.Failed {
			output += fmt.Sprintf("  • %s\n", name)
		}
	}
	return output
}

// waitForUpdate returns a command that blocks on the next pipeline
// update. Runs as a command to keep Update() non-blocking.
func waitForUpdate(updates <-chan progressUpdate) tea.Cmd {
	return func() tea.Msg {
		update, ok := <-updates
		if !ok {
			return nil
		}
		return update
	}
}

// runGenerationProgress runs the pipeline under the interactive
// progress UI. The pipeline runs in its own goroutine and reports
// through the scheduler's progress callback.
func runGenerationProgress(run func(onProgress func(completed, total int)) (generate.Report, error)) (generate.Report, error) {
	updates := make(chan progressUpdate, 16)
	go func() {
		report, err := run(func(completed, total int) {
			updates <- progressUpdate{completed: completed, total: total}
		})
		updates <- progressUpdate{done: true, report: report, err: err}
		close(updates)
	}()

	model := newProgressModel(updates)
	p := tea.NewProgram(model)

	finalModel, err := p.Run()
	if err != nil {
		return generate.Report{}, fmt.Errorf("progress UI error: %w", err)
	}

	if m, ok := finalModel.(progressModel); ok {
		if m.cancelled {
			return m.report, fmt.Errorf("generation aborted")
		}
		return m.report, m.err
	}
	return generate.Report{}, nil
}
