package appointment

import (
	"errors"
	"testing"

	"github.com/brianvoe/gofakeit/v6"
)

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"(11) 98765-4321", "11987654321", false},
		{"11 3456-7890", "1134567890", false},
		{"011 98765 4321", "11987654321", false},
		{"+55.11.3456.7890", "", true},
		{"98765-4321", "", true},
		{"11 98765-432x", "", true},
	}
	for _, tt := range tests {
		got, err := NormalizePhone(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("NormalizePhone(%q) err = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("NormalizePhone(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestValidateContact(t *testing.T) {
	valid := PatientContact{
		Name:  "  " + gofakeit.Name() + " ",
		Email: "Patient.Name@Example.COM",
		Phone: "(11) 98765-4321",
	}

	got, err := ValidateContact(valid)
	if err != nil {
		t.Fatalf("ValidateContact: %v", err)
	}
	if got.Email != "patient.name@example.com" {
		t.Errorf("email = %q", got.Email)
	}
	if got.Phone != "11987654321" {
		t.Errorf("phone = %q", got.Phone)
	}
	if got.Name[0] == ' ' {
		t.Errorf("name not trimmed: %q", got.Name)
	}

	invalid := []PatientContact{
		{Name: "", Email: "a@b.com", Phone: "1134567890"},
		{Name: "Ana", Email: "", Phone: "1134567890"},
		{Name: "Ana", Email: "not-an-email", Phone: "1134567890"},
		{Name: "Ana", Email: "Ana <ana@b.com>", Phone: "1134567890"},
		{Name: "Ana", Email: "ana@localhost", Phone: "1134567890"},
		{Name: "Ana", Email: "ana@b.com", Phone: "12345"},
	}
	for _, c := range invalid {
		if _, err := ValidateContact(c); !errors.Is(err, ErrValidation) {
			t.Errorf("ValidateContact(%+v) err = %v, want ErrValidation", c, err)
		}
	}
}
