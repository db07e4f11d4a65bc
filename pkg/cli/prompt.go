/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package cli

import (
	"context"
	"errors"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// ErrAborted is returned when the operator presses ctrl+c inside a prompt.
var ErrAborted = errors.New("prompt aborted by operator")

// ErrNoOptions is returned by Select when there is nothing to choose from.
var ErrNoOptions = errors.New("no options to select from")

// Confirm answers.
const (
	Yes = "Yes"
	No  = "No"
)

const (
	maxInputLength = 8192
	pendingNotice  = "(an update arrived, it is shown once you answer)"
)

// interruptMsg asks a prompt to give up. Prompts only honour it while the operator has not
// started answering.
type interruptMsg struct{}

// Prompter runs one bubbletea program per question on the given terminal streams.
type Prompter struct {
	in  io.Reader
	out io.Writer
}

// NewPrompter returns a Prompter reading keystrokes from in and drawing to out.
func NewPrompter(in io.Reader, out io.Writer) *Prompter {
	return &Prompter{in: in, out: out}
}

// Select asks the operator to pick one of options.
func (p *Prompter) Select(ctx context.Context, title string, options []string) (string, error) {
	if len(options) == 0 {
		return "", ErrNoOptions
	}

	final, err := p.run(ctx, newSelectModel(p.out, title, options))
	if err != nil {
		return "", err
	}

	m, _ := final.(selectModel) //nolint:errcheck

	if err := m.err(ctx); err != nil {
		return "", err
	}

	return m.options[m.cursor], nil
}

// Confirm asks a yes/no question.
func (p *Prompter) Confirm(ctx context.Context, title string) (bool, error) {
	choice, err := p.Select(ctx, title, []string{Yes, No})
	if err != nil {
		return false, err
	}

	return choice == Yes, nil
}

// Input reads one line of free text.
func (p *Prompter) Input(ctx context.Context, title string) (string, error) {
	final, err := p.run(ctx, newInputModel(p.out, title))
	if err != nil {
		return "", err
	}

	m, _ := final.(inputModel) //nolint:errcheck

	if err := m.err(ctx); err != nil {
		return "", err
	}

	return strings.TrimSpace(m.input.Value()), nil
}

func (p *Prompter) run(ctx context.Context, m tea.Model) (tea.Model, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	prog := tea.NewProgram(m, tea.WithInput(p.in), tea.WithOutput(p.out))

	done := make(chan struct{})
	defer close(done)

	go func() {
		select {
		case <-ctx.Done():
			prog.Send(interruptMsg{})
		case <-done:
		}
	}()

	return prog.Run()
}

type outcome struct {
	submitted   bool
	aborted     bool
	interrupted bool
}

func (o outcome) err(ctx context.Context) error {
	switch {
	case o.aborted:
		return ErrAborted
	case o.interrupted:
		if ctx.Err() != nil {
			return ctx.Err()
		}

		return context.Canceled
	}

	return nil
}

type selectModel struct {
	outcome
	title   string
	options []string
	cursor  int
	touched bool
	// interrupt arrived mid-answer, the choice is still returned on submit
	deferred bool
	active   lipgloss.Style
	heading  lipgloss.Style
}

func newSelectModel(out io.Writer, title string, options []string) selectModel {
	r := lipgloss.NewRenderer(out)

	return selectModel{
		title:   title,
		options: options,
		active:  r.NewStyle().Foreground(colorGreen).Bold(true),
		heading: r.NewStyle().Bold(true),
	}
}

func (m selectModel) Init() tea.Cmd {
	return nil
}

func (m selectModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case interruptMsg:
		if !m.touched {
			m.interrupted = true

			return m, tea.Quit
		}

		m.deferred = true
	case tea.KeyMsg:
		return m.key(msg)
	}

	return m, nil
}

func (m selectModel) key(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	n := len(m.options)

	if msg.String() == "ctrl+c" {
		m.aborted = true

		return m, tea.Quit
	}

	if n == 0 {
		return m, nil
	}

	switch msg.String() {
	case "up", "k":
		m.touched = true
		m.cursor = (m.cursor - 1 + n) % n
	case "down", "j", "tab":
		m.touched = true
		m.cursor = (m.cursor + 1) % n
	case "y", "n":
		if i := indexOf(m.options, map[string]string{"y": Yes, "n": No}[msg.String()]); i >= 0 {
			m.cursor = i
			m.submitted = true

			return m, tea.Quit
		}
	case "enter":
		m.submitted = true

		return m, tea.Quit
	}

	return m, nil
}

func (m selectModel) View() string {
	var b strings.Builder

	b.WriteString(m.heading.Render(m.title))
	b.WriteString("\n")

	if m.submitted {
		b.WriteString(m.active.Render(m.options[m.cursor]))
		b.WriteString("\n")

		return b.String()
	}

	if m.interrupted {
		return b.String()
	}

	for i, opt := range m.options {
		if i == m.cursor {
			b.WriteString(m.active.Render("❯ " + opt))
		} else {
			b.WriteString("  " + opt)
		}

		b.WriteString("\n")
	}

	if m.deferred {
		b.WriteString(pendingNotice + "\n")
	}

	return b.String()
}

type inputModel struct {
	outcome
	title    string
	input    textinput.Model
	deferred bool
	heading  lipgloss.Style
}

func newInputModel(out io.Writer, title string) inputModel {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.CharLimit = maxInputLength
	ti.Focus()

	return inputModel{
		title:   title,
		input:   ti,
		heading: lipgloss.NewRenderer(out).NewStyle().Bold(true),
	}
}

func (m inputModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m inputModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case interruptMsg:
		if m.input.Value() == "" {
			m.interrupted = true

			return m, tea.Quit
		}

		m.deferred = true

		return m, nil
	case tea.KeyMsg:
		switch msg.Type { //nolint:exhaustive
		case tea.KeyCtrlC:
			m.aborted = true

			return m, tea.Quit
		case tea.KeyEnter:
			m.submitted = true

			return m, tea.Quit
		}
	}

	var cmd tea.Cmd

	m.input, cmd = m.input.Update(msg)

	return m, cmd
}

func (m inputModel) View() string {
	if m.submitted || m.interrupted {
		return m.heading.Render(m.title) + "\n" + m.input.Value() + "\n"
	}

	view := m.heading.Render(m.title) + "\n" + m.input.View() + "\n"

	if m.deferred {
		view += pendingNotice + "\n"
	}

	return view
}

func indexOf(options []string, s string) int {
	for i, o := range options {
		if o == s {
			return i
		}
	}

	return -1
}
