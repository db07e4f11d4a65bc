/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package cli renders the faber operator console: colored narration and the menu, text and
// yes/no prompts.
package cli

import (
	"fmt"
	"io"
	"sync"

	"github.com/charmbracelet/lipgloss"
)

const (
	colorGreen  = lipgloss.Color("2")
	colorRed    = lipgloss.Color("1")
	colorPurple = lipgloss.Color("5")
)

// Output writes narration lines. It is safe for concurrent use, so background listeners can
// print while a flow is narrating.
type Output struct {
	w       io.Writer
	lock    sync.Mutex
	success lipgloss.Style
	failure lipgloss.Style
	notice  lipgloss.Style
	banner  lipgloss.Style
}

// NewOutput returns an Output writing to w. Colors follow the terminal capabilities of w.
func NewOutput(w io.Writer) *Output {
	r := lipgloss.NewRenderer(w)

	return &Output{
		w:       w,
		success: r.NewStyle().Foreground(colorGreen),
		failure: r.NewStyle().Foreground(colorRed),
		notice:  r.NewStyle().Foreground(colorPurple),
		banner:  r.NewStyle().Bold(true).Padding(0, 2).Border(lipgloss.RoundedBorder()).BorderForeground(colorGreen),
	}
}

func (o *Output) println(s string) {
	o.lock.Lock()
	defer o.lock.Unlock()

	fmt.Fprintln(o.w, s) //nolint:errcheck
}

// Plain prints msg unstyled.
func (o *Output) Plain(msg string) {
	o.println(msg)
}

// Success prints msg in green.
func (o *Output) Success(msg string) {
	o.println(o.success.Render(msg))
}

// Error prints msg in red.
func (o *Output) Error(msg string) {
	o.println(o.failure.Render(msg))
}

// Notice prints msg in purple.
func (o *Output) Notice(msg string) {
	o.println(o.notice.Render(msg))
}

// Banner prints title framed.
func (o *Output) Banner(title string) {
	o.println(o.banner.Render(title))
}
