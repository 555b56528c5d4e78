package ui

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/witx/internal/tasks"
)

// ViewState represents the current view in the TUI.
type ViewState int

const (
	PromptView ViewState = iota
	ConfirmView
	TransferView
	ResultView
)

// Prompt field indices, in the order they are asked.
const (
	SourceURLField = iota
	SourceProjectField
	DestURLField
	DestProjectField
)

var fieldLabels = [...]string{
	SourceURLField:     "Source URL",
	SourceProjectField: "Source project",
	DestURLField:       "Destination URL",
	DestProjectField:   "Destination project",
}

// maxLogLines bounds the progress lines kept for display.
const maxLogLines = 500

// Answers holds the endpoints collected by the prompt.
type Answers struct {
	SourceURL     string
	SourceProject string
	DestURL       string
	DestProject   string
}

func (a Answers) values() [4]string {
	return [4]string{a.SourceURL, a.SourceProject, a.DestURL, a.DestProject}
}

// RunFunc performs a migration for the collected answers, reporting progress on the channel.
//
// The model never closes the channel it passes; RunFunc must not either.
type RunFunc func(ctx context.Context, answers Answers, progress chan<- tasks.ProgressUpdate) (*tasks.RunResult, error)

// Model represents the TUI application state.
type Model struct {
	ctx          context.Context
	view         ViewState
	inputs       []textinput.Model
	focus        int
	invalid      string
	run          RunFunc
	progressChan chan tasks.ProgressUpdate
	doneChan     chan Msg
	progress     tasks.ProgressUpdate
	lines        []string
	result       *tasks.RunResult
	err          error
	aborted      bool
	width        int
	height       int
	help         help.Model
	keys         keyMap
}

// NewModel creates a new TUI model. Non-empty fields of defaults prefill the prompt.
func NewModel(ctx context.Context, defaults Answers, run RunFunc) *Model {
	values := defaults.values()
	inputs := make([]textinput.Model, len(fieldLabels))
	for i := range inputs {
		ti := textinput.New()
		ti.Prompt = "› "
		ti.CharLimit = 512
		ti.Width = 60
		ti.Cursor.Style = styles.cursor
		ti.SetValue(values[i])
		switch i {
		case SourceURLField, DestURLField:
			ti.Placeholder = "https://dev.azure.com/organization"
		default:
			ti.Placeholder = "Project name"
		}
		inputs[i] = ti
	}
	inputs[0].Focus()

	return &Model{
		ctx:    ctx,
		view:   PromptView,
		inputs: inputs,
		run:    run,
		help:   help.New(),
		keys:   newKeyMap(),
	}
}

// Answers returns the current prompt values.
func (m *Model) Answers() Answers {
	return Answers{
		SourceURL:     strings.TrimSpace(m.inputs[SourceURLField].Value()),
		SourceProject: strings.TrimSpace(m.inputs[SourceProjectField].Value()),
		DestURL:       strings.TrimSpace(m.inputs[DestURLField].Value()),
		DestProject:   strings.TrimSpace(m.inputs[DestProjectField].Value()),
	}
}

// Result returns the outcome of the run, if one completed.
func (m *Model) Result() (*tasks.RunResult, error) { return m.result, m.err }

// Aborted reports whether the user quit before the run finished.
func (m *Model) Aborted() bool { return m.aborted }

// ViewState returns the view being displayed.
func (m *Model) ViewState() ViewState { return m.view }

// Init starts the cursor blinking on the first prompt.
func (m *Model) Init() tea.Cmd {
	return textinput.Blink
}

// Update handles incoming messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		return m, nil

	case tea.KeyMsg:
		if key.Matches(msg, m.keys.quit) {
			m.aborted = m.view != ResultView
			return m, tea.Quit
		}

		switch m.view {
		case PromptView:
			return m.handlePromptKeys(msg)
		case ConfirmView:
			return m.handleConfirmKeys(msg)
		case ResultView:
			return m.handleResultKeys(msg)
		}
		return m, nil

	case Msg:
		switch msg.kind {
		case MsgProgressUpdate:
			update := msg.data.(tasks.ProgressUpdate)
			m.progress = update
			if update.Phase != tasks.DonePhase {
				m.appendLine(update.Message)
			}
			return m, m.waitForProgress()

		case MsgRunComplete:
			outcome := msg.data.(runOutcome)
			m.result = outcome.result
			m.err = outcome.err
			m.view = ResultView
			m.progressChan = nil
			m.doneChan = nil
			return m, nil
		}
	}

	if m.view == PromptView {
		var cmd tea.Cmd
		m.inputs[m.focus], cmd = m.inputs[m.focus].Update(msg)
		return m, cmd
	}
	return m, nil
}

// View renders the UI based on the current view state.
func (m *Model) View() string {
	switch m.view {
	case PromptView:
		return m.renderPrompt()
	case ConfirmView:
		return m.renderConfirm()
	case TransferView:
		return m.renderTransfer()
	case ResultView:
		return m.renderResult()
	default:
		return ""
	}
}

func (m *Model) handlePromptKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.submit):
		if err := ValidateField(m.focus, m.inputs[m.focus].Value()); err != nil {
			m.invalid = err.Error()
			return m, nil
		}
		m.invalid = ""
		if m.focus == len(m.inputs)-1 {
			m.inputs[m.focus].Blur()
			m.view = ConfirmView
			return m, nil
		}
		return m, m.setFocus(m.focus + 1)

	case key.Matches(msg, m.keys.next):
		return m, m.setFocus(m.focus + 1)

	case key.Matches(msg, m.keys.prev), key.Matches(msg, m.keys.back):
		return m, m.setFocus(m.focus - 1)
	}

	var cmd tea.Cmd
	m.inputs[m.focus], cmd = m.inputs[m.focus].Update(msg)
	return m, cmd
}

func (m *Model) handleConfirmKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.yes):
		m.view = TransferView
		return m, m.startTransfer()
	case key.Matches(msg, m.keys.no):
		m.view = PromptView
		return m, m.setFocus(0)
	}
	return m, nil
}

func (m *Model) handleResultKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, m.keys.close) {
		return m, tea.Quit
	}
	return m, nil
}

// setFocus moves focus to field i, clamped to the prompt range.
func (m *Model) setFocus(i int) tea.Cmd {
	i = max(0, min(i, len(m.inputs)-1))
	m.inputs[m.focus].Blur()
	m.focus = i
	return m.inputs[i].Focus()
}

func (m *Model) appendLine(line string) {
	if line == "" {
		return
	}
	m.lines = append(m.lines, line)
	if len(m.lines) > maxLogLines {
		m.lines = m.lines[len(m.lines)-maxLogLines:]
	}
}

func (m *Model) startTransfer() tea.Cmd {
	progress := make(chan tasks.ProgressUpdate, 256)
	done := make(chan Msg, 1)
	m.progressChan = progress
	m.doneChan = done

	answers := m.Answers()
	run := m.run
	ctx := m.ctx

	go func() {
		var (
			result *tasks.RunResult
			err    error
		)
		if run == nil {
			err = fmt.Errorf("no migration configured")
		} else {
			result, err = run(ctx, answers, progress)
		}
		done <- runCompleteMsg(result, err)
		close(progress)
	}()

	return m.waitForProgress()
}

func (m *Model) waitForProgress() tea.Cmd {
	progress, done := m.progressChan, m.doneChan
	return func() tea.Msg {
		if progress == nil {
			return nil
		}

		update, ok := <-progress
		if !ok {
			return <-done
		}
		return progressUpdateMsg(update)
	}
}

// Label returns the display name of a prompt field.
func Label(field int) string { return fieldLabels[field] }

// ValidateField checks one prompt answer: every field is required and URL fields must be http(s) URLs.
func ValidateField(field int, value string) error {
	value = strings.TrimSpace(value)
	if value == "" {
		return fmt.Errorf("%s is required", fieldLabels[field])
	}

	if field == SourceURLField || field == DestURLField {
		u, err := url.Parse(value)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("%s must be an http(s) URL", fieldLabels[field])
		}
	}
	return nil
}

func (m *Model) renderPrompt() string {
	var b strings.Builder
	b.WriteString(styles.title.Render("Work item migration"))
	b.WriteString("\n")

	for i, input := range m.inputs {
		label := fieldLabels[i]
		if i == m.focus {
			label = styles.label.Render(label)
		}
		fmt.Fprintf(&b, "%s\n%s\n\n", label, input.View())
	}

	if m.invalid != "" {
		b.WriteString(styles.err.Render(m.invalid))
		b.WriteString("\n\n")
	}

	b.WriteString(m.help.ShortHelpView([]key.Binding{m.keys.submit, m.keys.next, m.keys.prev, m.keys.quit}))
	return b.String()
}

func (m *Model) renderConfirm() string {
	a := m.Answers()
	title := styles.title.Render("Start migration?")
	info := fmt.Sprintf(
		"Copy every work item of %s\n  %s\ninto %s\n  %s\n\nCreated work items are not removed if the run fails.",
		a.SourceProject, a.SourceURL, a.DestProject, a.DestURL,
	)

	helpView := m.help.ShortHelpView([]key.Binding{m.keys.yes, m.keys.no, m.keys.quit})
	return fmt.Sprintf("%s\n%s\n\n%s", title, info, helpView)
}

func (m *Model) renderTransfer() string {
	title := styles.title.Render("Migrating work items")

	var phase string
	switch m.progress.Phase {
	case tasks.FetchPhase:
		phase = "Querying source project..."
	case tasks.CopyPhase:
		phase = fmt.Sprintf("Copying (%d/%d)", m.progress.Step, m.progress.Total)
	case tasks.LinkPhase:
		phase = fmt.Sprintf("Linking (%d/%d)", m.progress.Step, m.progress.Total)
	default:
		phase = "Processing..."
	}

	return fmt.Sprintf("%s\n%s\n\n%s", title, styles.label.Render(phase), m.renderLines(m.tail()))
}

func (m *Model) renderResult() string {
	var b strings.Builder

	if m.err != nil {
		b.WriteString(styles.err.Render("✗ Migration finished with errors"))
	} else {
		b.WriteString(styles.ok.Render("✓ Migration complete"))
	}
	b.WriteString("\n\n")
	b.WriteString(m.renderLines(m.tail()))

	if m.result != nil {
		b.WriteString("\n")
		for _, line := range m.result.Summary() {
			b.WriteString(line + "\n")
		}
	}

	if m.err != nil {
		fmt.Fprintf(&b, "\n%s\n", styles.warn.Render(fmt.Sprintf("Error: %v", m.err)))
	} else {
		b.WriteString("\nLive long and prosper!\n")
	}

	b.WriteString("\n" + styles.help.Render("Press 'enter' to close"))
	return b.String()
}

// tail returns the progress lines that fit the window.
func (m *Model) tail() []string {
	limit := len(m.lines)
	if m.height > 0 {
		limit = max(m.height-12, 5)
	}
	if len(m.lines) <= limit {
		return m.lines
	}
	return m.lines[len(m.lines)-limit:]
}

func (m *Model) renderLines(lines []string) string {
	var b strings.Builder
	for _, line := range lines {
		b.WriteString(lineStyle(line).Render(line))
		b.WriteString("\n")
	}
	return b.String()
}
