// Package testutil provides an in-memory camp backend for tests. It serves the same REST
// surface as the real backend and records every request it receives.
package testutil

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/medicamp/camp-portal/internal/domain"
)

// Call is one request seen by the fake backend.
type Call struct {
	Method        string
	Path          string
	Query         map[string][]string
	Body          []byte
	Authorization string
	Idempotency   string
}

// CampBackend is a fake camp backend.
type CampBackend struct {
	Server *httptest.Server

	mu            sync.Mutex
	calls         []Call
	camps         map[string]domain.CampSnapshot
	registrations []domain.RegistrationRecord
	sessions      map[string]domain.CheckoutSessionDetails
	roles         map[string]string
	failures      map[string]int
	nextID        int
}

// NewCampBackend starts the fake server. Call Close when done.
func NewCampBackend() *CampBackend {
	b := &CampBackend{
		camps:    make(map[string]domain.CampSnapshot),
		sessions: make(map[string]domain.CheckoutSessionDetails),
		roles:    make(map[string]string),
		failures: make(map[string]int),
	}

	r := chi.NewRouter()
	r.Use(b.record)
	r.Get("/camps/{id}", b.getCamp)
	r.Patch("/camps/{id}/increment-participants", b.incrementParticipants)
	r.Get("/registered-participant", b.listRegistrations)
	r.Post("/registered-participant", b.createRegistration)
	r.Delete("/registered-participant/{id}", b.deleteRegistrationByID)
	r.Post("/create-payment-session", b.createPaymentSession)
	r.Get("/session-details/{id}", b.sessionDetails)
	r.Patch("/update-payment-status/{campId}", b.updatePaymentStatus)
	r.Delete("/delete-registration", b.deleteRegistration)
	r.Get("/users/role/{email}", b.userRole)
	r.Patch("/confirm-registration/{id}", b.confirmRegistration)

	b.Server = httptest.NewServer(r)
	return b
}

// URL returns the server's base URL.
func (b *CampBackend) URL() string {
	return b.Server.URL
}

// Close stops the server.
func (b *CampBackend) Close() {
	b.Server.Close()
}

// AddCamp seeds a camp.
func (b *CampBackend) AddCamp(camp domain.CampSnapshot) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.camps[camp.ID] = camp
}

// Camp returns the stored camp.
func (b *CampBackend) Camp(id string) domain.CampSnapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.camps[id]
}

// AddRegistration seeds a registration, assigning an id when missing.
func (b *CampBackend) AddRegistration(record domain.RegistrationRecord) domain.RegistrationRecord {
	b.mu.Lock()
	defer b.mu.Unlock()
	if record.ID == "" {
		record.ID = b.newIDLocked("r")
	}
	b.registrations = append(b.registrations, record)
	return record
}

// Registrations returns a copy of the stored registrations.
func (b *CampBackend) Registrations() []domain.RegistrationRecord {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]domain.RegistrationRecord, len(b.registrations))
	copy(out, b.registrations)
	return out
}

// AddSession seeds a checkout session.
func (b *CampBackend) AddSession(id string, details domain.CheckoutSessionDetails) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sessions[id] = details
}

// SetRole assigns a role to a user email.
func (b *CampBackend) SetRole(email, role string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.roles[email] = role
}

// FailWith makes every request whose "METHOD /path-prefix" matches key reply with status.
func (b *CampBackend) FailWith(key string, status int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures[key] = status
}

// ClearFailures removes injected failures.
func (b *CampBackend) ClearFailures() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = make(map[string]int)
}

// Calls returns the recorded requests.
func (b *CampBackend) Calls() []Call {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Call, len(b.calls))
	copy(out, b.calls)
	return out
}

// CallsTo returns recorded requests with the given method whose path starts with prefix.
func (b *CampBackend) CallsTo(method, prefix string) []Call {
	var out []Call
	for _, call := range b.Calls() {
		if call.Method == method && strings.HasPrefix(call.Path, prefix) {
			out = append(out, call)
		}
	}
	return out
}

// WriteCalls counts recorded non-GET requests.
func (b *CampBackend) WriteCalls() int {
	count := 0
	for _, call := range b.Calls() {
		if call.Method != http.MethodGet {
			count++
		}
	}
	return count
}

func (b *CampBackend) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		r.Body = io.NopCloser(strings.NewReader(string(body)))

		b.mu.Lock()
		b.calls = append(b.calls, Call{
			Method:        r.Method,
			Path:          r.URL.Path,
			Query:         r.URL.Query(),
			Body:          body,
			Authorization: r.Header.Get("Authorization"),
			Idempotency:   r.Header.Get("Idempotency-Key"),
		})
		status := 0
		for key, code := range b.failures {
			method, prefix, _ := strings.Cut(key, " ")
			if method == r.Method && strings.HasPrefix(r.URL.Path, prefix) {
				status = code
			}
		}
		b.mu.Unlock()

		if status != 0 {
			writeJSON(w, status, map[string]string{"message": "injected failure"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (b *CampBackend) getCamp(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	camp, ok := b.camps[chi.URLParam(r, "id")]
	b.mu.Unlock()
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "camp not found"})
		return
	}
	writeJSON(w, http.StatusOK, camp)
}

func (b *CampBackend) incrementParticipants(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := chi.URLParam(r, "id")
	camp, ok := b.camps[id]
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "camp not found"})
		return
	}
	camp.ParticipantCount++
	b.camps[id] = camp
	writeJSON(w, http.StatusOK, map[string]int64{"modifiedCount": 1})
}

func (b *CampBackend) listRegistrations(w http.ResponseWriter, r *http.Request) {
	email := r.URL.Query().Get("email")

	b.mu.Lock()
	out := []domain.RegistrationRecord{}
	for _, record := range b.registrations {
		if email == "" || record.LoggedUserEmail == email {
			out = append(out, record)
		}
	}
	b.mu.Unlock()

	writeJSON(w, http.StatusOK, out)
}

func (b *CampBackend) createRegistration(w http.ResponseWriter, r *http.Request) {
	var record domain.RegistrationRecord
	if err := json.NewDecoder(r.Body).Decode(&record); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": err.Error()})
		return
	}

	b.mu.Lock()
	record.ID = b.newIDLocked("r")
	b.registrations = append(b.registrations, record)
	b.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]interface{}{"acknowledged": true, "insertedId": record.ID})
}

func (b *CampBackend) deleteRegistrationByID(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	deleted := b.deleteWhere(func(record domain.RegistrationRecord) bool { return record.ID == id })
	writeJSON(w, http.StatusOK, domain.DeleteResult{DeletedCount: deleted})
}

func (b *CampBackend) createPaymentSession(w http.ResponseWriter, r *http.Request) {
	var payload domain.PaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": err.Error()})
		return
	}

	b.mu.Lock()
	sessionID := b.newIDLocked("cs")
	details := domain.CheckoutSessionDetails{
		PaymentIntent: "pi_" + sessionID,
		CustomerEmail: payload.PayerEmail,
	}
	details.Metadata.CampID = payload.CampID
	details.Metadata.RegistrationID = payload.RegistrationID
	b.sessions[sessionID] = details
	b.mu.Unlock()

	writeJSON(w, http.StatusOK, domain.CheckoutSessionResponse{URL: "https://checkout.example.test/pay/" + sessionID})
}

func (b *CampBackend) sessionDetails(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	details, ok := b.sessions[chi.URLParam(r, "id")]
	b.mu.Unlock()
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "session not found"})
		return
	}
	writeJSON(w, http.StatusOK, details)
}

func (b *CampBackend) updatePaymentStatus(w http.ResponseWriter, r *http.Request) {
	campID := chi.URLParam(r, "campId")
	var update domain.PaymentStatusUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": err.Error()})
		return
	}

	b.mu.Lock()
	var modified int64
	for i := range b.registrations {
		record := &b.registrations[i]
		if record.CampID == campID && record.ParticipantEmail == update.ParticipantEmail {
			record.PaymentStatus = update.PaymentStatus
			transactionID := update.TransactionID
			record.TransactionID = &transactionID
			modified++
		}
	}
	b.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]int64{"modifiedCount": modified})
}

func (b *CampBackend) deleteRegistration(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	campID, email, registrationID := q.Get("campId"), q.Get("email"), q.Get("registrationId")
	deleted := b.deleteWhere(func(record domain.RegistrationRecord) bool {
		if registrationID != "" && record.ID != registrationID {
			return false
		}
		return record.CampID == campID && record.ParticipantEmail == email && !record.IsPaid()
	})
	writeJSON(w, http.StatusOK, domain.DeleteResult{DeletedCount: deleted})
}

func (b *CampBackend) userRole(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	role, ok := b.roles[chi.URLParam(r, "email")]
	b.mu.Unlock()
	if !ok {
		role = domain.RoleParticipant
	}
	writeJSON(w, http.StatusOK, map[string]string{"role": role})
}

func (b *CampBackend) confirmRegistration(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	b.mu.Lock()
	var modified int64
	for i := range b.registrations {
		if b.registrations[i].ID == id {
			b.registrations[i].ConfirmationStatus = domain.ConfirmationStatusConfirmed
			modified++
		}
	}
	b.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]int64{"modifiedCount": modified})
}

func (b *CampBackend) deleteWhere(match func(domain.RegistrationRecord) bool) int64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	kept := b.registrations[:0]
	var deleted int64
	for _, record := range b.registrations {
		if match(record) {
			deleted++
			continue
		}
		kept = append(kept, record)
	}
	b.registrations = kept
	return deleted
}

func (b *CampBackend) newIDLocked(prefix string) string {
	b.nextID++
	return fmt.Sprintf("%s_%d", prefix, b.nextID)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
