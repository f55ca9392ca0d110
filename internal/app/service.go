/**
 * @description
 * This file contains the core application service for the camp-portal. The service owns
 * the registration and payment-reconciliation workflow and delegates every persistent
 * change to the camp backend.
 *
 * @dependencies
 * - internal/domain: workflow models.
 * - internal/session: the caller's identity and credential.
 */

package app

import (
	"context"
	"time"

	"github.com/medicamp/camp-portal/internal/domain"
	"github.com/medicamp/camp-portal/internal/session"
)

const (
	defaultSubmissionLockTTL = 15 * time.Second
	myCampsPath              = "/dashboard/registered-camps"
)

// CampBackend is the subset of the camp backend API the workflow uses.
type CampBackend interface {
	GetCamp(ctx context.Context, sess *session.Session, campID string) (*domain.CampSnapshot, error)
	ListRegistrations(ctx context.Context, sess *session.Session, email string) ([]domain.RegistrationRecord, error)
	CreateRegistration(ctx context.Context, sess *session.Session, record domain.RegistrationRecord) (*domain.RegistrationRecord, error)
	DeleteRegistrationByID(ctx context.Context, sess *session.Session, registrationID string) (*domain.DeleteResult, error)
	IncrementParticipants(ctx context.Context, sess *session.Session, campID, idempotencyKey string) error
	CreatePaymentSession(ctx context.Context, sess *session.Session, payload domain.PaymentRequest) (*domain.CheckoutSessionResponse, error)
	GetSessionDetails(ctx context.Context, sess *session.Session, sessionID string) (*domain.CheckoutSessionDetails, error)
	UpdatePaymentStatus(ctx context.Context, sess *session.Session, campID string, update domain.PaymentStatusUpdate) error
	DeleteRegistration(ctx context.Context, sess *session.Session, campID, email, registrationID string) (*domain.DeleteResult, error)
	GetUserRole(ctx context.Context, sess *session.Session, email string) (string, error)
	ConfirmRegistration(ctx context.Context, sess *session.Session, registrationID string) error
}

// Service is the workflow service.
type Service struct {
	backend           CampBackend
	tasks             ParticipantTaskQueue
	lock              SubmissionLock
	submissionLockTTL time.Duration
	now               func() time.Time
}

// NewService creates the workflow service. A nil lock disables the submission lock.
func NewService(backend CampBackend, tasks ParticipantTaskQueue, lock SubmissionLock) *Service {
	if lock == nil {
		lock = NoopSubmissionLock{}
	}
	return &Service{
		backend:           backend,
		tasks:             tasks,
		lock:              lock,
		submissionLockTTL: defaultSubmissionLockTTL,
		now:               time.Now,
	}
}

// SetSubmissionLockTTL overrides how long an in-flight submission holds its lock.
func (s *Service) SetSubmissionLockTTL(ttl time.Duration) {
	if ttl > 0 {
		s.submissionLockTTL = ttl
	}
}
