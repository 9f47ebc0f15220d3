package issuekey

import "testing"

func TestValid(t *testing.T) {
	tests := []struct {
		key  string
		want bool
	}{
		{"PROJ-1", true},
		{"AB1-204", true},
		{"MY_PROJ-7", true},
		{"proj-1", false},
		{"PROJ-", false},
		{"PROJ1", false},
		{"1PROJ-2", false},
		{" PROJ-1", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := Valid(tt.key); got != tt.want {
			t.Errorf("Valid(%q) = %v, want %v", tt.key, got, tt.want)
		}
	}
}

func TestValidProject(t *testing.T) {
	for key, want := range map[string]bool{
		"PROJ": true, "AB1": true, "A": false, "proj": false, "PROJ-1": false,
	} {
		if got := ValidProject(key); got != want {
			t.Errorf("ValidProject(%q) = %v, want %v", key, got, want)
		}
	}
}

func TestProject(t *testing.T) {
	if got := Project("CORE-99"); got != "CORE" {
		t.Errorf("Project(CORE-99) = %q", got)
	}
	if got := Project("not a key"); got != "" {
		t.Errorf("Project(malformed) = %q, want empty", got)
	}
}
