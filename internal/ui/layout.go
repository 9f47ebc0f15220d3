// Package ui holds layout helpers shared by the terminal views.
package ui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/pmsync/internal/theme"
)

const (
	barHeight = 1
	// panelChrome is the top border, the title line, and the bottom
	// border of a panel.
	panelChrome = 3
)

// Frame lays out a full-screen view: a title bar, stacked bordered
// panels, and a status bar.
type Frame struct {
	Width  int
	Height int
}

// NewFrame creates a Frame for the given terminal size.
func NewFrame(width, height int) Frame {
	return Frame{Width: width, Height: height}
}

// BodyHeight is the height between the title bar and the status bar.
func (f Frame) BodyHeight() int {
	h := f.Height - 2*barHeight
	if h < 0 {
		return 0
	}
	return h
}

// PanelWidth is the inner width of a full-width panel.
func (f Frame) PanelWidth() int {
	w := f.Width - 2
	if w < 0 {
		return 0
	}
	return w
}

// SplitRows divides the body among stacked panels in proportion to
// weights and returns the content rows of each. Every panel gets at
// least minRows; leftover rows go to the first panel.
func (f Frame) SplitRows(minRows int, weights ...int) []int {
	rows := make([]int, len(weights))
	total := 0
	for _, w := range weights {
		total += w
	}
	if total == 0 {
		return rows
	}

	avail := f.BodyHeight() - panelChrome*len(weights)
	used := 0
	for i, w := range weights {
		rows[i] = avail * w / total
		used += rows[i]
	}
	if avail > used {
		rows[0] += avail - used
	}
	for i := range rows {
		if rows[i] < minRows {
			rows[i] = minRows
		}
	}
	return rows
}

// TitleBar renders the top bar with the title on the left and status on
// the right.
func (f Frame) TitleBar(title, status string) string {
	left := theme.HeaderStyle.Render(title)
	right := theme.HeaderStyle.Align(lipgloss.Right).Render(status)
	return lipgloss.JoinHorizontal(lipgloss.Top,
		left,
		fill(theme.HeaderStyle, f.Width-lipgloss.Width(left)-lipgloss.Width(right)),
		right,
	)
}

// StatusBar renders the bottom bar with key hints.
func (f Frame) StatusBar(hints string) string {
	rendered := theme.StatusBarStyle.Render(hints)
	return lipgloss.JoinHorizontal(lipgloss.Top,
		rendered,
		fill(theme.StatusBarStyle, f.Width-lipgloss.Width(rendered)),
	)
}

// Panel renders content in a rounded border under a bold title. The
// focused panel gets the accent border.
func (f Frame) Panel(title, content string, focused bool) string {
	border := theme.BorderStyle
	if focused {
		border = border.BorderForeground(theme.ColorBlue)
	}
	return border.Render(lipgloss.JoinVertical(lipgloss.Left,
		lipgloss.NewStyle().Bold(true).Render(title),
		content,
	))
}

// Compose stacks the title bar, the body, and the status bar.
func (f Frame) Compose(titleBar, body, statusBar string) string {
	return lipgloss.JoinVertical(lipgloss.Left, titleBar, body, statusBar)
}

// fill renders width blank cells with the background of style.
func fill(style lipgloss.Style, width int) string {
	if width < 0 {
		width = 0
	}
	return lipgloss.NewStyle().
		Width(width).
		Background(style.GetBackground()).
		Render("")
}
