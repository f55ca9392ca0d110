/**
 * @description
 * This file contains the HTTP handlers for the camp-portal's API endpoints. Handlers parse
 * the request, pick the caller's session, call the workflow service and map its errors to
 * HTTP statuses.
 *
 * @dependencies
 * - internal/app: registration, payment and reconciliation workflow.
 * - pkg/campclient: backend error types.
 */

package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/medicamp/camp-portal/internal/app"
	"github.com/medicamp/camp-portal/internal/domain"
	"github.com/medicamp/camp-portal/internal/session"
	"github.com/medicamp/camp-portal/pkg/campclient"
)

const maxRequestBodyBytes = 1 << 20

type Handlers struct {
	service *app.Service
}

func NewHandlers(service *app.Service) *Handlers {
	return &Handlers{service: service}
}

type checkoutResponse struct {
	URL string `json:"url"`
}

type errorResponse struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

func (h *Handlers) handleGetCamp(w http.ResponseWriter, r *http.Request) {
	camp, err := h.service.FetchCamp(r.Context(), h.callerSession(r), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, camp)
}

func (h *Handlers) handleSubmitRegistration(w http.ResponseWriter, r *http.Request) {
	var input domain.RegistrationInput
	if err := decodeJSONBody(w, r, &input); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	outcome, err := h.service.SubmitRegistration(r.Context(), h.callerSession(r), chi.URLParam(r, "id"), input)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, outcome)
}

func (h *Handlers) handleDashboard(w http.ResponseWriter, r *http.Request) {
	view, err := h.service.Dashboard(r.Context(), h.callerSession(r))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handlers) handleCancelRegistration(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.CancelRegistration(r.Context(), h.callerSession(r), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handlers) handleConfirmRegistration(w http.ResponseWriter, r *http.Request) {
	if err := h.service.ConfirmRegistration(r.Context(), h.callerSession(r), chi.URLParam(r, "id")); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleCheckout answers a browser form post with a 303 to the hosted checkout, and an
// API caller asking for JSON with the URL itself.
func (h *Handlers) handleCheckout(w http.ResponseWriter, r *http.Request) {
	req, err := decodePaymentRequest(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	target, err := h.service.StartPayment(r.Context(), h.callerSession(r), req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	if wantsJSON(r) {
		writeJSON(w, http.StatusOK, checkoutResponse{URL: target})
		return
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

func (h *Handlers) handlePaymentSuccess(w http.ResponseWriter, r *http.Request) {
	result := h.service.ReconcileSuccess(r.Context(), h.callerSession(r), r.URL.Query())
	writeJSON(w, reconcileStatus(result), result)
}

func (h *Handlers) handlePaymentCancel(w http.ResponseWriter, r *http.Request) {
	result := h.service.ReconcileCancel(r.Context(), h.callerSession(r), r.URL.Query())
	writeJSON(w, reconcileStatus(result), result)
}

// callerSession returns the verified session or an anonymous one; the service rejects
// anonymous sessions where sign-in is required.
func (h *Handlers) callerSession(r *http.Request) *session.Session {
	if sess, ok := GetSession(r.Context()); ok {
		return sess
	}
	return session.Anonymous()
}

func reconcileStatus(result domain.ReconcileResult) int {
	switch result.State {
	case domain.StateReconciled, domain.StateCancelled:
		return http.StatusOK
	default:
		return http.StatusUnprocessableEntity
	}
}

func (h *Handlers) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var validationErr *app.ValidationError
	if errors.As(err, &validationErr) {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "validation failed", Fields: validationErr.Fields})
		return
	}

	switch {
	case errors.Is(err, app.ErrUnauthenticated):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, app.ErrNotOrganizer):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, campclient.ErrCampNotFound):
		writeError(w, http.StatusNotFound, "Camp not found")
	case errors.Is(err, app.ErrRegistrationNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, app.ErrDuplicateRegistration),
		errors.Is(err, app.ErrSubmissionInFlight),
		errors.Is(err, app.ErrRegistrationPaid),
		errors.Is(err, app.ErrRegistrationUnpaid):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, app.ErrFreeCampPayment), errors.Is(err, app.ErrAmountMismatch):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		log.Printf("level=error component=api method=%s path=%s err=%v", r.Method, r.URL.Path, err)
		writeError(w, http.StatusBadGateway, "The camp service could not complete the request")
	}
}

func decodeJSONBody(w http.ResponseWriter, r *http.Request, out interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	return json.NewDecoder(r.Body).Decode(out)
}

func decodePaymentRequest(w http.ResponseWriter, r *http.Request) (domain.PaymentRequest, error) {
	var req domain.PaymentRequest
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		if err := decodeJSONBody(w, r, &req); err != nil {
			return req, errors.New("invalid request body")
		}
		return req, nil
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	if err := r.ParseForm(); err != nil {
		return req, errors.New("invalid form body")
	}
	amount, err := strconv.ParseInt(strings.TrimSpace(r.PostForm.Get("amount")), 10, 64)
	if err != nil {
		return req, errors.New("amount must be a whole number")
	}
	req = domain.PaymentRequest{
		CampID:         r.PostForm.Get("campId"),
		Amount:         amount,
		PayerEmail:     r.PostForm.Get("payerEmail"),
		PayerName:      r.PostForm.Get("payerName"),
		CampTitle:      r.PostForm.Get("campTitle"),
		RegistrationID: r.PostForm.Get("registrationId"),
	}
	return req, nil
}

func wantsJSON(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "application/json")
}

// writeJSON is a helper for writing JSON responses.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// writeError is a helper for writing JSON error responses.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}
