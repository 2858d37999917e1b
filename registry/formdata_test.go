package registry

import (
	"context"
	"errors"
	"testing"
)

func loadLoanForm(t *testing.T) *Manager {
	t.Helper()
	m := newTestManager()
	if _, err := m.LoadDefinitions("testdata/definitions"); err != nil {
		t.Fatalf("LoadDefinitions() error = %v", err)
	}
	return m
}

// TestValidateFormData verifies the effective schema, including rule modifications, is enforced
func TestValidateFormData(t *testing.T) {
	m := loadLoanForm(t)

	tests := []struct {
		name     string
		data     map[string]any
		field    string
		keyword  string
		wantNone bool
	}{
		{"valid outside canada", map[string]any{"amount": 5000, "country": "US"}, "", "", true},
		{"capped in canada", map[string]any{"amount": 5000, "country": "CA"}, "amount", "maximum", false},
		{"within cap in canada", map[string]any{"amount": 999.5, "country": "CA"}, "", "", true},
		{"base maximum", map[string]any{"amount": 200000}, "amount", "maximum", false},
		{"wrong type", map[string]any{"amount": 10, "country": 7}, "country", "type", false},
		{"missing required", map[string]any{"country": "US"}, "", "required", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			violations, err := m.ValidateFormData(context.Background(), "loan", tt.data)
			if err != nil {
				t.Fatalf("ValidateFormData() error = %v", err)
			}
			if tt.wantNone {
				if len(violations) != 0 {
					t.Errorf("expected no violations, got %+v", violations)
				}
				return
			}
			if len(violations) != 1 {
				t.Fatalf("expected 1 violation, got %+v", violations)
			}
			v := violations[0]
			if v.Field != tt.field || v.Keyword != tt.keyword {
				t.Errorf("violation = %+v, want field %q keyword %q", v, tt.field, tt.keyword)
			}
			if v.Message == "" {
				t.Error("expected a message")
			}
		})
	}
}

// TestValidateFormData_UnknownForm verifies the not-found error is passed through
func TestValidateFormData_UnknownForm(t *testing.T) {
	m := newTestManager()

	_, err := m.ValidateFormData(context.Background(), "missing", nil)
	if !errors.Is(err, ErrFormNotFound) {
		t.Errorf("expected ErrFormNotFound, got %v", err)
	}
}

// TestValidateFormData_NotSerializable verifies data that cannot be encoded is an error
func TestValidateFormData_NotSerializable(t *testing.T) {
	m := loadLoanForm(t)

	_, err := m.ValidateFormData(context.Background(), "loan", map[string]any{"amount": make(chan int)})
	if err == nil {
		t.Error("expected error for unserializable data, got nil")
	}
}

func TestPointerToPath(t *testing.T) {
	tests := map[string]string{
		"":              "",
		"/amount":       "amount",
		"/address/city": "address.city",
		"/items/0/name": "items[0].name",
		"/matrix/1/2":   "matrix[1][2]",
		"/a~1b/c~0d":    "a/b.c~d",
	}
	for in, want := range tests {
		if got := pointerToPath(in); got != want {
			t.Errorf("pointerToPath(%q) = %q, want %q", in, got, want)
		}
	}
}
