package logging

import (
	"errors"
	"testing"
)

func TestOrgID(t *testing.T) {
	attr := OrgID("org-123")
	if attr.Key != FieldOrgID {
		t.Errorf("expected key %q, got %q", FieldOrgID, attr.Key)
	}
	if attr.Value.String() != "org-123" {
		t.Errorf("expected value %q, got %q", "org-123", attr.Value.String())
	}
}

func TestJobID(t *testing.T) {
	attr := JobID("job-123")
	if attr.Key != FieldJobID {
		t.Errorf("expected key %q, got %q", FieldJobID, attr.Key)
	}
	if attr.Value.String() != "job-123" {
		t.Errorf("expected value %q, got %q", "job-123", attr.Value.String())
	}
}

func TestRows(t *testing.T) {
	attr := Rows(42)
	if attr.Key != FieldRows {
		t.Errorf("expected key %q, got %q", FieldRows, attr.Key)
	}
	if attr.Value.Int64() != 42 {
		t.Errorf("expected value 42, got %d", attr.Value.Int64())
	}
}

func TestErr(t *testing.T) {
	attr := Err(errors.New("boom"))
	if attr.Key != FieldError {
		t.Errorf("expected key %q, got %q", FieldError, attr.Key)
	}
	if attr.Value.String() != "boom" {
		t.Errorf("expected value %q, got %q", "boom", attr.Value.String())
	}
}

func TestErrNil(t *testing.T) {
	attr := Err(nil)
	if attr.Value.String() != "" {
		t.Errorf("expected empty value for nil error, got %q", attr.Value.String())
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"debug", "DEBUG"},
		{"info", "INFO"},
		{"warn", "WARN"},
		{"error", "ERROR"},
		{"bogus", "INFO"},
		{"", "INFO"},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in).String(); got != tt.want {
			t.Errorf("ParseLevel(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
