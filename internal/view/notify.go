// Package view renders API records for the terminal and validates form
// input before it reaches the API layer. It holds no session logic.
package view

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
)

var (
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
)

// Toast prints transient user-visible notices, the terminal analogue of a
// toast popup. It satisfies session.Notifier.
type Toast struct {
	out io.Writer
}

func NewToast(out io.Writer) *Toast {
	return &Toast{out: out}
}

func (t *Toast) Success(msg string) {
	fmt.Fprintln(t.out, successStyle.Render("✓ "+msg))
}

func (t *Toast) Error(msg string) {
	fmt.Fprintln(t.out, errorStyle.Render("✗ "+msg))
}
