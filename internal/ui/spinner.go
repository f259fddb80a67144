package ui

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	spinnerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("99"))
	messageStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("86"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
)

type spinnerModel struct {
	spinner spinner.Model
	message string
	done    bool
	err     error
}

type spinnerCompleteMsg struct {
	err error
}

func newSpinnerModel(message string) spinnerModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = spinnerStyle
	return spinnerModel{
		spinner: s,
		message: message,
	}
}

func (m spinnerModel) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m spinnerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
		return m, nil

	case spinnerCompleteMsg:
		m.done = true
		m.err = msg.err
		return m, tea.Quit

	default:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
}

func (m spinnerModel) View() string {
	if m.done {
		return statusLine(m.message, m.err) + "\n"
	}
	return fmt.Sprintf("%s %s\n", m.spinner.View(), messageStyle.Render(m.message))
}

func statusLine(message string, err error) string {
	if err != nil {
		return errorStyle.Render("✗ " + message + " failed: " + err.Error())
	}
	return successStyle.Render("✓ " + message + " complete")
}

// Step wraps a long blocking call with progress output
type Step func(ctx context.Context, message string, fn func(context.Context) error) error

// PlainStep prints a line before and after fn
func PlainStep(out io.Writer) Step {
	return func(ctx context.Context, message string, fn func(context.Context) error) error {
		fmt.Fprintln(out, messageStyle.Render(message+"..."))
		err := fn(ctx)
		fmt.Fprintln(out, statusLine(message, err))
		return err
	}
}

// SpinnerStep animates a spinner while fn runs. Ctrl+C cancels fn's context.
func SpinnerStep(out io.Writer) Step {
	return func(ctx context.Context, message string, fn func(context.Context) error) error {
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		p := tea.NewProgram(newSpinnerModel(message), tea.WithOutput(out), tea.WithContext(ctx))

		done := make(chan error, 1)
		go func() {
			time.Sleep(100 * time.Millisecond)
			err := fn(ctx)
			done <- err
			p.Send(spinnerCompleteMsg{err: err})
		}()

		if _, err := p.Run(); err != nil {
			cancel()
			if fnErr := <-done; fnErr != nil {
				return fnErr
			}
			return err
		}

		// the program also quits on ctrl+c, before fn reports
		cancel()
		return <-done
	}
}

// NewStep picks the spinner on a terminal and plain lines otherwise
func NewStep(out io.Writer, interactive bool) Step {
	if interactive {
		return SpinnerStep(out)
	}
	return PlainStep(out)
}
