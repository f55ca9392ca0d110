package app

import (
	"context"
	"fmt"
	"log"
	"sort"

	"github.com/medicamp/camp-portal/internal/domain"
	"github.com/medicamp/camp-portal/internal/session"
)

// Dashboard returns the registrations the caller may see, split by payment status.
// Organizers and admins see every registration; participants see their own.
func (s *Service) Dashboard(ctx context.Context, sess *session.Session) (*domain.DashboardView, error) {
	identity := sess.Identity()
	if !sess.Authenticated() || identity.Email == "" {
		return nil, ErrUnauthenticated
	}

	role := s.resolveRole(ctx, sess, identity.Email)
	filter := identity.Email
	if isOrganizer(role) {
		filter = ""
	}

	records, err := s.backend.ListRegistrations(ctx, sess, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to load registrations: %w", err)
	}

	view := &domain.DashboardView{
		Email:  identity.Email,
		Role:   role,
		Paid:   []domain.RegistrationRecord{},
		Unpaid: []domain.RegistrationRecord{},
		Total:  len(records),
	}
	for _, record := range records {
		if record.IsPaid() {
			view.Paid = append(view.Paid, record)
		} else {
			view.Unpaid = append(view.Unpaid, record)
		}
	}
	sortNewestFirst(view.Paid)
	sortNewestFirst(view.Unpaid)
	view.PaidCount = len(view.Paid)
	return view, nil
}

// ConfirmRegistration is the organizer action that confirms a paid registration.
func (s *Service) ConfirmRegistration(ctx context.Context, sess *session.Session, registrationID string) error {
	identity := sess.Identity()
	if !sess.Authenticated() || identity.Email == "" {
		return ErrUnauthenticated
	}
	if !isOrganizer(s.resolveRole(ctx, sess, identity.Email)) {
		return ErrNotOrganizer
	}

	records, err := s.backend.ListRegistrations(ctx, sess, "")
	if err != nil {
		return fmt.Errorf("failed to load registrations: %w", err)
	}
	record, ok := findRegistration(records, registrationID)
	if !ok {
		return ErrRegistrationNotFound
	}
	if !record.IsPaid() {
		return ErrRegistrationUnpaid
	}
	if record.ConfirmationStatus == domain.ConfirmationStatusConfirmed {
		return nil
	}

	if err := s.backend.ConfirmRegistration(ctx, sess, registrationID); err != nil {
		return fmt.Errorf("failed to confirm registration: %w", err)
	}
	log.Printf("level=info component=service flow=dashboard outcome=confirmed registration_id=%s organizer=%s", registrationID, identity.Email)
	return nil
}

// resolveRole falls back to participant when the lookup fails; the participant view only
// ever narrows what is shown.
func (s *Service) resolveRole(ctx context.Context, sess *session.Session, email string) string {
	role, err := s.backend.GetUserRole(ctx, sess, email)
	if err != nil {
		log.Printf("level=warn component=service flow=dashboard msg=\"role lookup failed; using participant view\" email=%s err=%v", email, err)
		return domain.RoleParticipant
	}
	if role == "" {
		return domain.RoleParticipant
	}
	return role
}

func isOrganizer(role string) bool {
	return role == domain.RoleOrganizer || role == domain.RoleAdmin
}

func sortNewestFirst(records []domain.RegistrationRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].RegisteredAt.After(records[j].RegisteredAt)
	})
}
