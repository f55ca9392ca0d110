package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/medicamp/camp-portal/internal/domain"
	"github.com/medicamp/camp-portal/internal/metrics"
	"github.com/medicamp/camp-portal/internal/session"
)

// FetchCamp loads the camp a participant is about to register for.
func (s *Service) FetchCamp(ctx context.Context, sess *session.Session, campID string) (*domain.CampSnapshot, error) {
	campID = strings.TrimSpace(campID)
	if err := validateCampID(campID); err != nil {
		return nil, err
	}
	return s.backend.GetCamp(ctx, sess, campID)
}

// SubmitRegistration validates the form, runs the duplicate guard, creates the registration
// and queues the participant-count increment. The increment is never allowed to undo a
// created registration; a failure to queue it is reported in the outcome instead.
func (s *Service) SubmitRegistration(ctx context.Context, sess *session.Session, campID string, input domain.RegistrationInput) (*domain.RegistrationOutcome, error) {
	identity := sess.Identity()
	if !sess.Authenticated() || identity.Email == "" {
		return nil, ErrUnauthenticated
	}

	campID = strings.TrimSpace(campID)
	if err := validateCampID(campID); err != nil {
		metrics.ObserveRegistration("invalid")
		return nil, err
	}
	input = normalizeInput(input)
	if err := validateRegistration(input); err != nil {
		metrics.ObserveRegistration("invalid")
		return nil, err
	}

	camp, err := s.backend.GetCamp(ctx, sess, campID)
	if err != nil {
		metrics.ObserveRegistration("camp_lookup_failed")
		return nil, fmt.Errorf("failed to load camp: %w", err)
	}

	record := domain.NewRegistrationRecord(*camp, input, identity.Email, s.now())
	if camp.IsFree() {
		record.PaymentStatus = domain.PaymentStatusPaid
	}

	release, acquired, err := s.lock.Acquire(ctx, submissionKey(identity.Email, record), s.submissionLockTTL)
	if err != nil {
		log.Printf("level=warn component=service flow=registration msg=\"submission lock unavailable; continuing without it\" camp_id=%s err=%v", campID, err)
	} else if !acquired {
		metrics.ObserveRegistration("in_flight")
		return nil, ErrSubmissionInFlight
	}
	defer release()

	existing, err := s.backend.ListRegistrations(ctx, sess, identity.Email)
	if err != nil {
		metrics.ObserveRegistration("guard_lookup_failed")
		return nil, fmt.Errorf("failed to load existing registrations: %w", err)
	}
	if IsDuplicate(record, existing) {
		log.Printf("level=info component=service flow=registration outcome=duplicate camp_id=%s logged_user=%s", campID, identity.Email)
		metrics.ObserveRegistration("duplicate")
		return nil, ErrDuplicateRegistration
	}

	created, err := s.backend.CreateRegistration(ctx, sess, record)
	if err != nil {
		metrics.ObserveRegistration("create_failed")
		return nil, fmt.Errorf("failed to create registration: %w", err)
	}
	metrics.ObserveRegistration("created")
	log.Printf("level=info component=service flow=registration outcome=created camp_id=%s registration_id=%s payment_status=%s", campID, created.ID, created.PaymentStatus)

	outcome := &domain.RegistrationOutcome{
		Registration:    *created,
		PaymentRequired: !camp.IsFree(),
		Next:            myCampsPath,
	}

	task := domain.NewParticipantCountTask(campID, s.now())
	if err := s.enqueueParticipantTask(ctx, task); err != nil {
		log.Printf("level=warn component=service flow=registration msg=\"participant count increment not queued\" camp_id=%s task_id=%s err=%v", campID, task.TaskID, err)
		outcome.IncrementWarning = "Your registration is saved, but the camp's participant count could not be updated yet."
	} else {
		outcome.IncrementQueued = true
	}

	return outcome, nil
}

// CancelRegistration lets a participant withdraw one of their own registrations while unpaid.
func (s *Service) CancelRegistration(ctx context.Context, sess *session.Session, registrationID string) (*domain.DeleteResult, error) {
	identity := sess.Identity()
	if !sess.Authenticated() || identity.Email == "" {
		return nil, ErrUnauthenticated
	}

	records, err := s.backend.ListRegistrations(ctx, sess, identity.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to load registrations: %w", err)
	}

	record, ok := findRegistration(records, registrationID)
	if !ok || record.LoggedUserEmail != identity.Email {
		return nil, ErrRegistrationNotFound
	}
	if record.IsPaid() {
		return nil, ErrRegistrationPaid
	}

	result, err := s.backend.DeleteRegistrationByID(ctx, sess, registrationID)
	if err != nil {
		return nil, fmt.Errorf("failed to delete registration: %w", err)
	}
	log.Printf("level=info component=service flow=registration outcome=cancelled registration_id=%s deleted=%d", registrationID, result.DeletedCount)
	return result, nil
}

func (s *Service) enqueueParticipantTask(ctx context.Context, task domain.ParticipantCountTask) error {
	if s.tasks == nil {
		metrics.ObserveParticipantTask("enqueue", "unconfigured")
		return errors.New("participant task queue is not configured")
	}
	if err := s.tasks.Enqueue(ctx, task); err != nil {
		metrics.ObserveParticipantTask("enqueue", "failed")
		return err
	}
	metrics.ObserveParticipantTask("enqueue", "ok")
	return nil
}

func normalizeInput(input domain.RegistrationInput) domain.RegistrationInput {
	input.ParticipantName = strings.TrimSpace(input.ParticipantName)
	input.ParticipantEmail = strings.TrimSpace(input.ParticipantEmail)
	input.Phone = strings.TrimSpace(input.Phone)
	input.Gender = strings.TrimSpace(input.Gender)
	input.EmergencyContact = strings.TrimSpace(input.EmergencyContact)
	return input
}

func findRegistration(records []domain.RegistrationRecord, registrationID string) (domain.RegistrationRecord, bool) {
	for _, record := range records {
		if record.ID == registrationID {
			return record, true
		}
	}
	return domain.RegistrationRecord{}, false
}
