package ui

import (
	"strings"
	"testing"

	"github.com/charmbracelet/lipgloss"
)

func TestSplitRows(t *testing.T) {
	tests := []struct {
		name    string
		height  int
		min     int
		weights []int
		want    []int
	}{
		// body 38, chrome 6, 32 rows split 3:2
		{"proportional", 40, 4, []int{3, 2}, []int{20, 12}},
		// body 29, chrome 6, 23 rows: 13 + 9 leaves 1 for the first panel
		{"remainder to first", 31, 4, []int{3, 2}, []int{14, 9}},
		{"tiny terminal", 8, 4, []int{3, 2}, []int{4, 4}},
		{"no weights", 40, 4, []int{0, 0}, []int{0, 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NewFrame(80, tt.height).SplitRows(tt.min, tt.weights...)
			if len(got) != len(tt.want) {
				t.Fatalf("SplitRows = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Fatalf("SplitRows = %v, want %v", got, tt.want)
				}
			}
		})
	}
}

func TestBarsSpanWidth(t *testing.T) {
	f := NewFrame(60, 20)

	if w := lipgloss.Width(f.TitleBar("pmsync", "idle")); w != 60 {
		t.Errorf("title bar width = %d, want 60", w)
	}
	if w := lipgloss.Width(f.StatusBar("q quit")); w != 60 {
		t.Errorf("status bar width = %d, want 60", w)
	}
}

func TestPanelIncludesTitle(t *testing.T) {
	out := NewFrame(40, 10).Panel("Projects", "PROJ", true)
	if !strings.Contains(out, "Projects") || !strings.Contains(out, "PROJ") {
		t.Errorf("panel = %q", out)
	}
	if h := lipgloss.Height(out); h != 4 {
		t.Errorf("panel height = %d, want 4", h)
	}
}

func TestBodyHeightNeverNegative(t *testing.T) {
	if h := NewFrame(10, 1).BodyHeight(); h != 0 {
		t.Errorf("BodyHeight = %d, want 0", h)
	}
}
