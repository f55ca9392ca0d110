package app

import (
	"strings"

	"github.com/medicamp/camp-portal/internal/domain"
)

// IsDuplicate reports whether candidate repeats one of the existing registrations.
// Name matches trimmed and case-insensitively; email and phone must match exactly.
// All three must agree, partial matches pass. The check only sees records the caller
// already fetched and is therefore advisory.
func IsDuplicate(candidate domain.RegistrationRecord, existing []domain.RegistrationRecord) bool {
	name := normalizeName(candidate.ParticipantName)
	for _, record := range existing {
		if record.ParticipantEmail != candidate.ParticipantEmail {
			continue
		}
		if record.Phone != candidate.Phone {
			continue
		}
		if normalizeName(record.ParticipantName) == name {
			return true
		}
	}
	return false
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// submissionKey identifies one logical registration for the in-flight lock.
func submissionKey(loggedUserEmail string, candidate domain.RegistrationRecord) string {
	return strings.Join([]string{
		strings.ToLower(strings.TrimSpace(loggedUserEmail)),
		candidate.CampID,
		candidate.ParticipantEmail,
		normalizeName(candidate.ParticipantName),
		candidate.Phone,
	}, "|")
}
