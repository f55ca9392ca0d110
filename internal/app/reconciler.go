package app

import (
	"context"
	"log"
	"net/url"
	"strings"

	"github.com/medicamp/camp-portal/internal/domain"
	"github.com/medicamp/camp-portal/internal/metrics"
	"github.com/medicamp/camp-portal/internal/session"
)

const (
	reconcilePathSuccess = "success"
	reconcilePathCancel  = "cancel"
)

// ReconcileSuccess handles a return from the hosted checkout's success URL.
//
// Arrived(sessionId?) -> Resolving -> Reconciled | ReconciliationFailed
//
// A failure leaves the registration unpaid even though the provider may have captured the
// funds. Nothing retries. The patch carries no dedup key, so running this twice for one
// session patches twice. An unauthenticated session never reaches the backend.
func (s *Service) ReconcileSuccess(ctx context.Context, sess *session.Session, query url.Values) domain.ReconcileResult {
	sessionID := strings.TrimSpace(query.Get("session_id"))
	if sessionID == "" {
		log.Printf("level=warn component=service flow=reconcile path=success state=%s reason=missing_session_id", domain.StateReconciliationFailed)
		return s.finish(reconcilePathSuccess, domain.ReconcileResult{
			State:  domain.StateReconciliationFailed,
			Notice: domain.Notice{Level: domain.NoticeError, Message: "Payment could not be verified: the checkout session is missing."},
		})
	}

	if !sess.Authenticated() {
		log.Printf("level=warn component=service flow=reconcile path=success state=%s session_id=%s reason=unauthenticated", domain.StateReconciliationFailed, sessionID)
		return s.finish(reconcilePathSuccess, domain.ReconcileResult{
			State:  domain.StateReconciliationFailed,
			Notice: domain.Notice{Level: domain.NoticeError, Message: "Sign in to confirm your payment."},
		})
	}

	log.Printf("level=info component=service flow=reconcile path=success state=%s session_id=%s", domain.StateResolving, sessionID)
	details, err := s.backend.GetSessionDetails(ctx, sess, sessionID)
	if err != nil {
		log.Printf("level=error component=service flow=reconcile path=success state=%s session_id=%s err=%v", domain.StateReconciliationFailed, sessionID, err)
		return s.finish(reconcilePathSuccess, domain.ReconcileResult{
			State:  domain.StateReconciliationFailed,
			Notice: domain.Notice{Level: domain.NoticeError, Message: "Payment could not be verified. Please contact the organizer."},
		})
	}

	campID := strings.TrimSpace(details.Metadata.CampID)
	if campID == "" {
		campID = strings.TrimSpace(query.Get("campId"))
	}
	email := strings.TrimSpace(details.CustomerEmail)
	transactionID := strings.TrimSpace(details.PaymentIntent)

	result := domain.ReconcileResult{CampID: campID, Email: email}
	if campID == "" || email == "" || transactionID == "" {
		log.Printf("level=error component=service flow=reconcile path=success state=%s session_id=%s reason=incomplete_session camp_id=%q email_set=%t transaction_set=%t",
			domain.StateReconciliationFailed, sessionID, campID, email != "", transactionID != "")
		result.State = domain.StateReconciliationFailed
		result.Notice = domain.Notice{Level: domain.NoticeError, Message: "Payment could not be matched to a registration. Please contact the organizer."}
		return s.finish(reconcilePathSuccess, result)
	}

	err = s.backend.UpdatePaymentStatus(ctx, sess, campID, domain.PaymentStatusUpdate{
		ParticipantEmail: email,
		PaymentStatus:    domain.PaymentStatusPaid,
		TransactionID:    transactionID,
	})
	if err != nil {
		log.Printf("level=error component=service flow=reconcile path=success state=%s session_id=%s camp_id=%s transaction_id=%s err=%v",
			domain.StateReconciliationFailed, sessionID, campID, transactionID, err)
		result.State = domain.StateReconciliationFailed
		result.Notice = domain.Notice{Level: domain.NoticeError, Message: "Payment was received but your registration could not be updated. Please contact the organizer."}
		return s.finish(reconcilePathSuccess, result)
	}

	result.State = domain.StateReconciled
	result.TransactionID = transactionID
	result.Notice = domain.Notice{Level: domain.NoticeSuccess, Message: "Payment successful."}
	log.Printf("level=info component=service flow=reconcile path=success state=%s camp_id=%s transaction_id=%s", domain.StateReconciled, campID, transactionID)
	return s.finish(reconcilePathSuccess, result)
}

// ReconcileCancel handles a return from the hosted checkout's cancel URL.
//
// Arrived(campId, email) -> Cancelling -> Cancelled | CancellationFailed
//
// Exactly one delete is issued. Keyed by campId and email alone it may remove more than one
// pending registration; a registrationId on the return URL narrows it to one. Only a
// signed-in caller's credential is ever attached to the delete.
func (s *Service) ReconcileCancel(ctx context.Context, sess *session.Session, query url.Values) domain.ReconcileResult {
	campID := strings.TrimSpace(query.Get("campId"))
	email := strings.TrimSpace(query.Get("email"))
	registrationID := strings.TrimSpace(query.Get("registrationId"))

	result := domain.ReconcileResult{CampID: campID, Email: email}
	if campID == "" || email == "" {
		log.Printf("level=warn component=service flow=reconcile path=cancel state=%s reason=missing_parameters camp_id_set=%t email_set=%t",
			domain.StateCancellationFailed, campID != "", email != "")
		result.State = domain.StateCancellationFailed
		result.Notice = domain.Notice{Level: domain.NoticeError, Message: "Missing camp or email information; nothing was cancelled."}
		return s.finish(reconcilePathCancel, result)
	}

	if !sess.Authenticated() {
		log.Printf("level=warn component=service flow=reconcile path=cancel state=%s camp_id=%s reason=unauthenticated", domain.StateCancellationFailed, campID)
		result.State = domain.StateCancellationFailed
		result.Notice = domain.Notice{Level: domain.NoticeError, Message: "Sign in to cancel your registration; nothing was cancelled."}
		return s.finish(reconcilePathCancel, result)
	}

	log.Printf("level=info component=service flow=reconcile path=cancel state=%s camp_id=%s email=%s", domain.StateCancelling, campID, email)
	deleted, err := s.backend.DeleteRegistration(ctx, sess, campID, email, registrationID)
	if err != nil {
		log.Printf("level=error component=service flow=reconcile path=cancel state=%s camp_id=%s err=%v", domain.StateCancellationFailed, campID, err)
		result.State = domain.StateCancellationFailed
		result.Notice = domain.Notice{Level: domain.NoticeError, Message: "Something went wrong while cancelling your registration."}
		return s.finish(reconcilePathCancel, result)
	}

	result.State = domain.StateCancelled
	result.DeletedCount = deleted.DeletedCount
	if deleted.DeletedCount == 0 {
		result.AlreadyRemoved = true
		result.Notice = domain.Notice{Level: domain.NoticeInfo, Message: "Registration was already removed or not found."}
	} else {
		result.Notice = domain.Notice{Level: domain.NoticeSuccess, Message: "Your registration has been cancelled."}
	}
	log.Printf("level=info component=service flow=reconcile path=cancel state=%s camp_id=%s deleted=%d", domain.StateCancelled, campID, deleted.DeletedCount)
	return s.finish(reconcilePathCancel, result)
}

func (s *Service) finish(path string, result domain.ReconcileResult) domain.ReconcileResult {
	metrics.ObserveReconciliation(path, string(result.State))
	return result
}
