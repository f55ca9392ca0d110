package app

import (
	"errors"
	"testing"

	"github.com/medicamp/camp-portal/internal/domain"
)

func validInput() domain.RegistrationInput {
	return domain.RegistrationInput{
		ParticipantName:  "Jane Doe",
		ParticipantEmail: "jane@example.com",
		Age:              34,
		Phone:            "+1 (555) 010-0100",
		Gender:           "female",
		EmergencyContact: "John Doe 555-0101",
	}
}

func TestValidateRegistration(t *testing.T) {
	tests := []struct {
		name       string
		mutate     func(*domain.RegistrationInput)
		wantFields []string
	}{
		{name: "valid", mutate: func(*domain.RegistrationInput) {}},
		{name: "missing name", mutate: func(in *domain.RegistrationInput) { in.ParticipantName = "  " }, wantFields: []string{"participantName"}},
		{name: "display-name email", mutate: func(in *domain.RegistrationInput) { in.ParticipantEmail = "Jane <jane@example.com>" }, wantFields: []string{"participantEmail"}},
		{name: "email without domain dot", mutate: func(in *domain.RegistrationInput) { in.ParticipantEmail = "jane@localhost" }, wantFields: []string{"participantEmail"}},
		{name: "zero age", mutate: func(in *domain.RegistrationInput) { in.Age = 0 }, wantFields: []string{"age"}},
		{name: "age out of range", mutate: func(in *domain.RegistrationInput) { in.Age = 151 }, wantFields: []string{"age"}},
		{name: "phone with letters", mutate: func(in *domain.RegistrationInput) { in.Phone = "call me" }, wantFields: []string{"phone"}},
		{name: "phone too short", mutate: func(in *domain.RegistrationInput) { in.Phone = "12-3" }, wantFields: []string{"phone"}},
		{
			name: "several fields",
			mutate: func(in *domain.RegistrationInput) {
				in.ParticipantName = ""
				in.ParticipantEmail = ""
				in.Phone = ""
			},
			wantFields: []string{"participantName", "participantEmail", "phone"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input := validInput()
			tt.mutate(&input)

			err := validateRegistration(input)
			if len(tt.wantFields) == 0 {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}

			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if len(verr.Fields) != len(tt.wantFields) {
				t.Fatalf("expected fields %v, got %v", tt.wantFields, verr.Fields)
			}
			for _, field := range tt.wantFields {
				if _, ok := verr.Fields[field]; !ok {
					t.Fatalf("expected error on %s, got %v", field, verr.Fields)
				}
			}
		})
	}
}

func TestValidationErrorMessageIsSorted(t *testing.T) {
	v := &ValidationError{}
	v.add("phone", "bad")
	v.add("age", "bad")
	v.add("age", "ignored")

	want := "validation failed: age: bad; phone: bad"
	if got := v.Error(); got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}
