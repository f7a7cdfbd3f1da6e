package service

import (
	"encoding/json"
	"testing"

	"github.com/stemsi/proktor-backend/internal/model"
)

func TestNormalizeSeverity(t *testing.T) {
	cases := []struct {
		in   string
		want model.Severity
	}{
		{"LOW", model.SeverityLow},
		{"MEDIUM", model.SeverityMedium},
		{"HIGH", model.SeverityHigh},
		{"high", model.SeverityHigh},
		{"  Medium  ", model.SeverityMedium},
		{"", model.SeverityLow},
		{"CRITICAL", model.SeverityLow},
		{"garbage", model.SeverityLow},
	}
	for _, tc := range cases {
		if got := NormalizeSeverity(tc.in); got != tc.want {
			t.Errorf("NormalizeSeverity(%q) = %s, want %s", tc.in, got, tc.want)
		}
	}
}

func TestEncodeEventData(t *testing.T) {
	t.Run("nil becomes JSON null", func(t *testing.T) {
		if got := EncodeEventData(nil); string(got) != "null" {
			t.Errorf("got %s", got)
		}
	})

	t.Run("valid raw JSON passes through untouched", func(t *testing.T) {
		raw := json.RawMessage(`{"screens":2,"focus":false}`)
		if got := EncodeEventData(raw); string(got) != string(raw) {
			t.Errorf("got %s", got)
		}
	})

	t.Run("invalid raw JSON is stored as a string", func(t *testing.T) {
		got := EncodeEventData(json.RawMessage(`{broken`))
		var s string
		if err := json.Unmarshal(got, &s); err != nil {
			t.Fatalf("result is not a JSON string: %s", got)
		}
		if s != "{broken" {
			t.Errorf("got %q", s)
		}
	})

	t.Run("plain values are marshaled", func(t *testing.T) {
		got := EncodeEventData(map[string]int{"tabs": 3})
		if string(got) != `{"tabs":3}` {
			t.Errorf("got %s", got)
		}
	})

	t.Run("unmarshalable values degrade to their string form", func(t *testing.T) {
		got := EncodeEventData(func() {})
		var s string
		if err := json.Unmarshal(got, &s); err != nil {
			t.Fatalf("result is not a JSON string: %s", got)
		}
	})
}

func TestOptionMatches(t *testing.T) {
	declared := []string{"Jakarta", " Bandung ", "SURABAYA"}

	cases := []struct {
		value string
		want  bool
	}{
		{"Jakarta", true},
		{"jakarta", true},
		{"  JAKARTA  ", true},
		{"Bandung", true},
		{"surabaya", true},
		{"Medan", false},
		{"", false},
		{"Jak", false},
	}
	for _, tc := range cases {
		if got := optionMatches(tc.value, declared); got != tc.want {
			t.Errorf("optionMatches(%q) = %v, want %v", tc.value, got, tc.want)
		}
	}
}

func TestRequesterHasPermission(t *testing.T) {
	r := Requester{
		Role:        TokenTypeAdmin,
		Permissions: []string{"sessions:read", "sessions:monitor"},
	}
	if !r.hasPermission(model.PermissionSessionsRead) {
		t.Error("expected sessions:read to match")
	}
	if r.hasPermission(model.PermissionSessionsReadAll) {
		t.Error("sessions:read_all must not match")
	}
}
