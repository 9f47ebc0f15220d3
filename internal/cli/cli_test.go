package cli

import (
	"bytes"
	"encoding/json"
	"io"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/nhle/pmsync/internal/model"
)

var now = time.Date(2026, 3, 4, 15, 30, 0, 0, time.UTC)

func TestParseSince(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want time.Time
	}{
		{"rfc3339", "2026-03-01T08:00:00Z", time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)},
		{"date", "2026-02-27", time.Date(2026, 2, 27, 0, 0, 0, 0, time.UTC)},
		{"duration", "24h", now.Add(-24 * time.Hour)},
		{"negative duration", "-90m", now.Add(-90 * time.Minute)},
		{"padded", "  6h ", now.Add(-6 * time.Hour)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseSince(tt.in, now)
			if err != nil {
				t.Fatalf("parseSince(%q): %v", tt.in, err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("parseSince(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseSinceNaturalLanguage(t *testing.T) {
	got, err := parseSince("yesterday", now)
	if err != nil {
		t.Fatalf("parseSince: %v", err)
	}
	if !got.Before(now) || now.Sub(got) > 48*time.Hour {
		t.Errorf("yesterday = %v, want within the previous two days of %v", got, now)
	}
}

func TestParseSinceRejectsGarbage(t *testing.T) {
	for _, in := range []string{"", "   ", "qwerty"} {
		if _, err := parseSince(in, now); err == nil {
			t.Errorf("parseSince(%q): expected error", in)
		}
	}
}

func TestRender(t *testing.T) {
	v := map[string]int{"created": 3}
	text := func(w io.Writer) error {
		_, err := io.WriteString(w, "created: three\n")
		return err
	}

	var buf bytes.Buffer
	if err := render(&buf, outputText, v, text); err != nil {
		t.Fatal(err)
	}
	if buf.String() != "created: three\n" {
		t.Errorf("text output = %q", buf.String())
	}

	buf.Reset()
	if err := render(&buf, outputJSON, v, text); err != nil {
		t.Fatal(err)
	}
	var fromJSON map[string]int
	if err := json.Unmarshal(buf.Bytes(), &fromJSON); err != nil {
		t.Fatalf("json output %q: %v", buf.String(), err)
	}
	if fromJSON["created"] != 3 {
		t.Errorf("json created = %d", fromJSON["created"])
	}

	buf.Reset()
	if err := render(&buf, outputYAML, v, text); err != nil {
		t.Fatal(err)
	}
	var fromYAML map[string]int
	if err := yaml.Unmarshal(buf.Bytes(), &fromYAML); err != nil {
		t.Fatalf("yaml output %q: %v", buf.String(), err)
	}
	if fromYAML["created"] != 3 {
		t.Errorf("yaml created = %d", fromYAML["created"])
	}

	if err := render(&buf, "xml", v, text); err == nil {
		t.Error("expected error for unknown format")
	}
}

func TestPlanFormPlan(t *testing.T) {
	f := planForm{
		Status:  model.PlanStatusActive,
		Summary: "  Ship the beta  ",
		Owner:   "Ana",
		Start:   "2026-03-01",
		Target:  "2026-06-30",
	}
	plan, err := f.plan()
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if plan.ExecutiveSummary != "Ship the beta" {
		t.Errorf("summary = %q", plan.ExecutiveSummary)
	}
	if plan.StartDate == nil || plan.StartDate.Format(dateLayout) != "2026-03-01" {
		t.Errorf("start = %v", plan.StartDate)
	}
	if plan.TargetDate == nil || plan.TargetDate.Format(dateLayout) != "2026-06-30" {
		t.Errorf("target = %v", plan.TargetDate)
	}

	cleared, err := planForm{Status: model.PlanStatusNotSet}.plan()
	if err != nil {
		t.Fatalf("empty plan: %v", err)
	}
	if cleared.StartDate != nil || cleared.TargetDate != nil {
		t.Error("empty dates should clear the plan dates")
	}
}

func TestPlanFormPlanErrors(t *testing.T) {
	tests := []struct {
		name string
		form planForm
	}{
		{"unknown status", planForm{Status: "shipping"}},
		{"bad date", planForm{Start: "03/01/2026"}},
		{"target before start", planForm{Start: "2026-06-30", Target: "2026-03-01"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tt.form.plan(); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestLoginFormApply(t *testing.T) {
	base := model.JiraConfig{StoryPointsField: "customfield_10016", Email: "old@example.com"}

	cloud := loginForm{BaseURL: " https://acme.atlassian.net/ ", Auth: "basic", Email: "pm@acme.io"}.apply(base)
	if cloud.BaseURL != "https://acme.atlassian.net" {
		t.Errorf("base url = %q", cloud.BaseURL)
	}
	if cloud.Email != "pm@acme.io" || cloud.Auth != "basic" {
		t.Errorf("cloud = %+v", cloud)
	}
	if cloud.StoryPointsField != "customfield_10016" {
		t.Error("field mapping should be kept")
	}

	server := loginForm{BaseURL: "https://jira.acme.io", Auth: "bearer", Email: "ignored"}.apply(base)
	if server.Email != "" {
		t.Errorf("bearer auth should clear email, got %q", server.Email)
	}
}

func TestValidateURL(t *testing.T) {
	for _, ok := range []string{"https://acme.atlassian.net", "http://localhost:8080"} {
		if err := validateURL(ok); err != nil {
			t.Errorf("validateURL(%q): %v", ok, err)
		}
	}
	for _, bad := range []string{"", "acme.atlassian.net", "https://"} {
		if err := validateURL(bad); err == nil {
			t.Errorf("validateURL(%q): expected error", bad)
		}
	}
}

func TestPrintRuns(t *testing.T) {
	var buf bytes.Buffer
	if err := printRuns(&buf, nil); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "No sync runs") {
		t.Errorf("empty output = %q", buf.String())
	}

	finished := now.Add(2 * time.Second)
	buf.Reset()
	err := printRuns(&buf, []model.SyncRun{{
		ID:           "r1",
		StartedAt:    now,
		FinishedAt:   &finished,
		Type:         model.SyncFull,
		Status:       model.SyncPartial,
		Trigger:      model.TriggerScheduled,
		Created:      4,
		Updated:      2,
		Deleted:      1,
		Failed:       1,
		DurationMs:   2000,
		ErrorMessage: "task PROJ-9: missing title",
	}})
	if err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{"4/2/1/1", "2s", "partial", "missing title"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestPrintHealth(t *testing.T) {
	var buf bytes.Buffer
	err := printHealth(&buf, []model.Project{{
		RemoteKey: "PROJ",
		Name:      "A project with a name that does not fit the column",
		Health: model.Health{
			Level:      model.HealthNeedsAttention,
			Score:      0.42,
			Confidence: model.ConfidenceHigh,
			Reason:     "3 active blockers",
		},
	}})
	if err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{"PROJ", "0.42", "3 active blockers", "…"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 10); got != "short" {
		t.Errorf("truncate = %q", got)
	}
	if got := truncate("abcdefghij", 5); got != "abcd…" {
		t.Errorf("truncate = %q", got)
	}
}
