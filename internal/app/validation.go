package app

import (
	"net/mail"
	"strings"

	"github.com/medicamp/camp-portal/internal/domain"
)

const maxParticipantAge = 150

func validateCampID(campID string) error {
	v := &ValidationError{}
	if strings.TrimSpace(campID) == "" {
		v.add("campId", "camp id is required")
	}
	return v.orNil()
}

// validateRegistration checks the form locally; nothing invalid is ever sent to the backend.
func validateRegistration(input domain.RegistrationInput) error {
	v := &ValidationError{}

	if strings.TrimSpace(input.ParticipantName) == "" {
		v.add("participantName", "name is required")
	}

	email := strings.TrimSpace(input.ParticipantEmail)
	if email == "" {
		v.add("participantEmail", "email is required")
	} else if !isEmail(email) {
		v.add("participantEmail", "email is not valid")
	}

	if input.Age <= 0 {
		v.add("age", "age must be a positive whole number")
	} else if input.Age > maxParticipantAge {
		v.add("age", "age is out of range")
	}

	phone := strings.TrimSpace(input.Phone)
	if phone == "" {
		v.add("phone", "phone number is required")
	} else if !isPhone(phone) {
		v.add("phone", "phone number may only contain digits, spaces and + - ( )")
	}

	return v.orNil()
}

func isEmail(value string) bool {
	addr, err := mail.ParseAddress(value)
	if err != nil {
		return false
	}
	// ParseAddress accepts "Name <a@b>"; the form wants a bare address.
	return addr.Address == value && strings.Contains(value[strings.LastIndex(value, "@"):], ".")
}

func isPhone(value string) bool {
	digits := 0
	for _, r := range value {
		switch {
		case r >= '0' && r <= '9':
			digits++
		case r == '+' || r == '-' || r == '(' || r == ')' || r == ' ':
		default:
			return false
		}
	}
	return digits >= 5
}
