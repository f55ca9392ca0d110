package app

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"strings"

	"github.com/medicamp/camp-portal/internal/domain"
	"github.com/medicamp/camp-portal/internal/metrics"
	"github.com/medicamp/camp-portal/internal/session"
)

// StartPayment requests a hosted checkout session and returns the URL the browser must be
// sent to. The portal loses all request state across that navigation, so campId, payer
// email and (when known) the registration id are handed to the backend for the session's
// metadata and return URLs.
func (s *Service) StartPayment(ctx context.Context, sess *session.Session, req domain.PaymentRequest) (string, error) {
	identity := sess.Identity()
	if !sess.Authenticated() || identity.Email == "" {
		return "", ErrUnauthenticated
	}

	req.CampID = strings.TrimSpace(req.CampID)
	if err := validateCampID(req.CampID); err != nil {
		return "", err
	}
	if req.Amount <= 0 {
		return "", ErrFreeCampPayment
	}
	if strings.TrimSpace(req.PayerEmail) == "" {
		req.PayerEmail = identity.Email
	}
	if strings.TrimSpace(req.PayerName) == "" {
		req.PayerName = identity.DisplayName
	}

	camp, err := s.backend.GetCamp(ctx, sess, req.CampID)
	if err != nil {
		metrics.ObserveCheckout("camp_lookup_failed")
		return "", fmt.Errorf("failed to load camp: %w", err)
	}
	if camp.IsFree() {
		return "", ErrFreeCampPayment
	}
	if camp.Fees != req.Amount {
		metrics.ObserveCheckout("amount_mismatch")
		return "", fmt.Errorf("%w: camp fee %d, requested %d", ErrAmountMismatch, camp.Fees, req.Amount)
	}
	if strings.TrimSpace(req.CampTitle) == "" {
		req.CampTitle = camp.Name
	}

	checkout, err := s.backend.CreatePaymentSession(ctx, sess, req)
	if err != nil {
		metrics.ObserveCheckout("failed")
		return "", fmt.Errorf("failed to create checkout session: %w", err)
	}

	target := strings.TrimSpace(checkout.URL)
	parsed, parseErr := url.Parse(target)
	if target == "" || parseErr != nil || !parsed.IsAbs() {
		metrics.ObserveCheckout("bad_url")
		return "", ErrEmptyCheckoutURL
	}

	metrics.ObserveCheckout("created")
	log.Printf("level=info component=service flow=payment msg=\"checkout session created\" camp_id=%s payer=%s amount=%d", req.CampID, req.PayerEmail, req.Amount)
	return target, nil
}
