package domain

import (
	"time"

	"github.com/google/uuid"
)

// PaymentRequest is the payload for POST /create-payment-session.
// RegistrationID is optional and lets the checkout return URLs name the exact registration.
type PaymentRequest struct {
	CampID         string `json:"campId"`
	Amount         int64  `json:"amount"`
	PayerEmail     string `json:"payerEmail"`
	PayerName      string `json:"payerName"`
	CampTitle      string `json:"campTitle"`
	RegistrationID string `json:"registrationId,omitempty"`
}

// CheckoutSessionResponse is returned by the backend when a hosted checkout is created.
type CheckoutSessionResponse struct {
	URL string `json:"url"`
}

// CheckoutSessionDetails is the backend's view of a completed checkout session.
type CheckoutSessionDetails struct {
	PaymentIntent string `json:"payment_intent"`
	CustomerEmail string `json:"customer_email"`
	Metadata      struct {
		CampID         string `json:"campId"`
		RegistrationID string `json:"registrationId,omitempty"`
	} `json:"metadata"`
}

// PaymentStatusUpdate is the payload for PATCH /update-payment-status/{campId}.
type PaymentStatusUpdate struct {
	ParticipantEmail string `json:"participantEmail"`
	PaymentStatus    string `json:"paymentStatus"`
	TransactionID    string `json:"transactionId"`
}

// DeleteResult is returned by the backend's delete endpoints.
type DeleteResult struct {
	DeletedCount int64 `json:"deletedCount"`
}

// ParticipantCountTask asks for one participant-count increment on a camp.
// TaskID travels as the idempotency key so a redelivered task can be recognised downstream.
type ParticipantCountTask struct {
	TaskID      uuid.UUID `json:"task_id"`
	CampID      string    `json:"camp_id"`
	RequestedAt time.Time `json:"requested_at"`
}

// NewParticipantCountTask creates a task with a fresh id.
func NewParticipantCountTask(campID string, now time.Time) ParticipantCountTask {
	return ParticipantCountTask{
		TaskID:      uuid.New(),
		CampID:      campID,
		RequestedAt: now.UTC(),
	}
}
