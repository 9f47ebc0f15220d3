package dashboard

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"

	"github.com/nhle/pmsync/internal/model"
)

func projectColumns() []table.Column {
	return []table.Column{
		{Title: "Key", Width: 10},
		{Title: "Name", Width: 28},
		{Title: "Health", Width: 16},
		{Title: "Score", Width: 6},
		{Title: "Done", Width: 9},
		{Title: "Blockers", Width: 8},
		{Title: "Reason", Width: 30},
	}
}

func runColumns() []table.Column {
	return []table.Column{
		{Title: "Started", Width: 17},
		{Title: "Type", Width: 11},
		{Title: "Trigger", Width: 9},
		{Title: "Status", Width: 9},
		{Title: "+/~/-/!", Width: 16},
		{Title: "Duration", Width: 9},
		{Title: "Error", Width: 30},
	}
}

// HealthLabel renders a health level for humans.
func HealthLabel(level model.HealthLevel) string {
	if level == "" {
		level = model.HealthUnknown
	}
	return strings.ReplaceAll(string(level), "_", " ")
}

func projectRows(projects []model.Project) []table.Row {
	rows := make([]table.Row, 0, len(projects))
	for _, p := range projects {
		rows = append(rows, table.Row{
			p.RemoteKey,
			p.Name,
			HealthLabel(p.Health.Level),
			fmt.Sprintf("%.2f", p.Health.Score),
			fmt.Sprintf("%d/%d", p.Progress.CompletedTasks, p.Progress.TotalTasks),
			fmt.Sprintf("%d", p.Progress.ActiveBlockers),
			p.Health.Reason,
		})
	}
	return rows
}

func runRows(runs []model.SyncRun) []table.Row {
	rows := make([]table.Row, 0, len(runs))
	for _, r := range runs {
		duration := "-"
		if r.FinishedAt != nil {
			duration = r.Duration().Round(time.Millisecond).String()
		}
		rows = append(rows, table.Row{
			r.StartedAt.Local().Format("2006-01-02 15:04"),
			string(r.Type),
			string(r.Trigger),
			string(r.Status),
			fmt.Sprintf("%d/%d/%d/%d", r.Created, r.Updated, r.Deleted, r.Failed),
			duration,
			r.ErrorMessage,
		})
	}
	return rows
}
