package scheduling

import (
	"encoding/json"
	"testing"
)

func TestStatus_LabelAndClass(t *testing.T) {
	tests := []struct {
		status Status
		code   string
		label  string
		class  StatusClass
	}{
		{StatusScheduled, "scheduled", "Scheduled", ClassInfo},
		{StatusCompleted, "completed", "Completed", ClassSuccess},
		{StatusCancelled, "cancelled", "Cancelled", ClassDanger},
		{StatusNoShow, "no-show", "No-show", ClassWarning},
	}
	for _, tt := range tests {
		if got := tt.status.String(); got != tt.code {
			t.Errorf("String() = %q, want %q", got, tt.code)
		}
		if got := tt.status.Label(); got != tt.label {
			t.Errorf("%s: Label() = %q, want %q", tt.code, got, tt.label)
		}
		if got := tt.status.Class(); got != tt.class {
			t.Errorf("%s: Class() = %q, want %q", tt.code, got, tt.class)
		}
	}
}

func TestStatuses_EveryStatusHasLabelAndClass(t *testing.T) {
	all := Statuses()
	if len(all) != 4 {
		t.Fatalf("expected 4 statuses, got %d", len(all))
	}
	for _, s := range all {
		if s.Label() == "" || s.Class() == "" {
			t.Errorf("status %s is missing a label or class", s)
		}
		parsed, err := ParseStatus(s.String())
		if err != nil || parsed != s {
			t.Errorf("ParseStatus(%q) = %v, %v", s.String(), parsed, err)
		}
	}
}

func TestParseStatus_Invalid(t *testing.T) {
	for _, code := range []string{"", "Scheduled", "noshow", "pending"} {
		if _, err := ParseStatus(code); err == nil {
			t.Errorf("expected error for %q", code)
		}
	}
}

func TestStatus_ZeroValueIsInvalid(t *testing.T) {
	var s Status
	if s.Valid() {
		t.Error("zero status should be invalid")
	}
	if s.Label() != "" {
		t.Errorf("expected empty label, got %q", s.Label())
	}
	if _, err := s.MarshalText(); err == nil {
		t.Error("expected marshal error for zero status")
	}
}

func TestStatus_JSON(t *testing.T) {
	b, err := json.Marshal(struct {
		Status Status `json:"status"`
	}{StatusNoShow})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(b) != `{"status":"no-show"}` {
		t.Errorf("unexpected JSON %s", b)
	}

	var v struct {
		Status Status `json:"status"`
	}
	if err := json.Unmarshal([]byte(`{"status":"archived"}`), &v); err == nil {
		t.Error("expected error for unknown status")
	}
}

func TestStatus_Scan(t *testing.T) {
	var s Status
	if err := s.Scan("cancelled"); err != nil || s != StatusCancelled {
		t.Errorf("Scan(string) = %v, %v", s, err)
	}
	if err := s.Scan([]byte("completed")); err != nil || s != StatusCompleted {
		t.Errorf("Scan([]byte) = %v, %v", s, err)
	}
	if err := s.Scan(nil); err == nil {
		t.Error("expected error scanning NULL")
	}
	if err := s.Scan(42); err == nil {
		t.Error("expected error scanning int")
	}

	v, err := StatusScheduled.Value()
	if err != nil || v != "scheduled" {
		t.Errorf("Value() = %v, %v", v, err)
	}
}
