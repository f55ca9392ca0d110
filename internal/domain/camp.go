/**
 * @description
 * This file defines the core domain models for the camp-portal.
 * These structs mirror the records owned by the camp backend. The portal only ever
 * holds transient, non-authoritative copies of them.
 *
 * @notes
 * - JSON field names follow the camp backend's wire format (camelCase, `_id`).
 * - Fees are whole currency units as stored by the backend; 0 means the camp is free.
 */

package domain

import "time"

// Payment statuses stored on a registration.
const (
	PaymentStatusUnpaid = "unpaid"
	PaymentStatusPaid   = "paid"
)

// Confirmation statuses stored on a registration.
const (
	ConfirmationStatusPending   = "pending"
	ConfirmationStatusConfirmed = "confirmed"
)

// User roles returned by the backend role lookup.
const (
	RoleParticipant = "participant"
	RoleOrganizer   = "organizer"
	RoleAdmin       = "admin"
)

// CampSnapshot is a read-only copy of a camp as served by GET /camps/{id}.
type CampSnapshot struct {
	ID                     string `json:"_id"`
	Name                   string `json:"campName"`
	Location               string `json:"location"`
	DateTime               string `json:"dateTime"`
	Fees                   int64  `json:"campFees"`
	HealthcareProfessional string `json:"healthcareProfessional"`
	Description            string `json:"description"`
	Image                  string `json:"image"`
	ParticipantCount       int64  `json:"participantCount"`
}

// IsFree reports whether the camp charges no fee.
func (c CampSnapshot) IsFree() bool {
	return c.Fees <= 0
}

// RegistrationRecord is a participant's registration for a camp. The camp fields are a
// denormalized copy taken at registration time so the record stays self-describing even
// if the camp is later edited.
type RegistrationRecord struct {
	ID                 string    `json:"_id,omitempty"`
	CampID             string    `json:"campId"`
	ParticipantName    string    `json:"participantName"`
	ParticipantEmail   string    `json:"participantEmail"`
	LoggedUserEmail    string    `json:"loggedUserEmail"`
	Age                int       `json:"age"`
	Phone              string    `json:"phone"`
	Gender             string    `json:"gender"`
	EmergencyContact   string    `json:"emergencyContact"`
	PaymentStatus      string    `json:"paymentStatus"`
	ConfirmationStatus string    `json:"confirmationStatus"`
	TransactionID      *string   `json:"transactionId"`
	RegisteredAt       time.Time `json:"registeredAt"`

	CampName               string `json:"campName"`
	Location               string `json:"location"`
	DateTime               string `json:"dateTime"`
	CampFees               int64  `json:"campFees"`
	HealthcareProfessional string `json:"healthcareProfessional"`
	Description            string `json:"description"`
	Image                  string `json:"image"`
}

// IsPaid reports whether the registration has been settled.
func (r RegistrationRecord) IsPaid() bool {
	return r.PaymentStatus == PaymentStatusPaid
}

// RegistrationInput is the DTO submitted by the participant's registration form.
type RegistrationInput struct {
	ParticipantName  string `json:"participantName"`
	ParticipantEmail string `json:"participantEmail"`
	Age              int    `json:"age"`
	Phone            string `json:"phone"`
	Gender           string `json:"gender"`
	EmergencyContact string `json:"emergencyContact"`
}

// NewRegistrationRecord builds the record sent to the backend, embedding the camp snapshot.
func NewRegistrationRecord(camp CampSnapshot, input RegistrationInput, loggedUserEmail string, now time.Time) RegistrationRecord {
	return RegistrationRecord{
		CampID:                 camp.ID,
		ParticipantName:        input.ParticipantName,
		ParticipantEmail:       input.ParticipantEmail,
		LoggedUserEmail:        loggedUserEmail,
		Age:                    input.Age,
		Phone:                  input.Phone,
		Gender:                 input.Gender,
		EmergencyContact:       input.EmergencyContact,
		PaymentStatus:          PaymentStatusUnpaid,
		ConfirmationStatus:     ConfirmationStatusPending,
		RegisteredAt:           now.UTC(),
		CampName:               camp.Name,
		Location:               camp.Location,
		DateTime:               camp.DateTime,
		CampFees:               camp.Fees,
		HealthcareProfessional: camp.HealthcareProfessional,
		Description:            camp.Description,
		Image:                  camp.Image,
	}
}
