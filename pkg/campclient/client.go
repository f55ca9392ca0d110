/**
 * @description
 * This package provides a client for the camp backend. It encapsulates the REST calls the
 * portal makes for camps, registrations, participant counts and hosted checkout sessions.
 *
 * @notes
 * - Every call takes the caller's *session.Session explicitly. The bearer credential is read
 *   from it when the request is built, never cached in the client.
 * - Non-2xx replies surface as *StatusError so callers can branch on the status code.
 */
package campclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/medicamp/camp-portal/internal/domain"
	"github.com/medicamp/camp-portal/internal/session"
)

var (
	// ErrCampNotFound is returned when the backend has no camp with the requested id.
	ErrCampNotFound = errors.New("camp not found")
	// ErrEmptyBaseURL is returned when the client was built without a backend address.
	ErrEmptyBaseURL = errors.New("camp api base url is empty")
)

// StatusError describes a non-2xx reply from the camp backend.
type StatusError struct {
	Op         string
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("camp api %s returned status %d: %s", e.Op, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("camp api %s returned status %d", e.Op, e.StatusCode)
}

// Client is a client for the camp backend.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a camp backend client. A zero timeout leaves requests unbounded.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// NewClientWithHTTP creates a client around a caller-supplied *http.Client.
func NewClientWithHTTP(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		httpClient: httpClient,
	}
}

// GetCamp fetches a camp by id.
func (c *Client) GetCamp(ctx context.Context, sess *session.Session, campID string) (*domain.CampSnapshot, error) {
	var camp domain.CampSnapshot
	err := c.do(ctx, sess, request{
		op:     "get_camp",
		method: http.MethodGet,
		path:   "/camps/" + url.PathEscape(campID),
	}, &camp)
	if err != nil {
		var statusErr *StatusError
		if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusNotFound {
			return nil, fmt.Errorf("%w: %s", ErrCampNotFound, campID)
		}
		return nil, err
	}
	if camp.ID == "" {
		camp.ID = campID
	}
	return &camp, nil
}

// ListRegistrations lists registrations. A non-empty email filters by the logged-in user.
func (c *Client) ListRegistrations(ctx context.Context, sess *session.Session, email string) ([]domain.RegistrationRecord, error) {
	query := url.Values{}
	if strings.TrimSpace(email) != "" {
		query.Set("email", email)
	}

	var records []domain.RegistrationRecord
	if err := c.do(ctx, sess, request{
		op:     "list_registrations",
		method: http.MethodGet,
		path:   "/registered-participant",
		query:  query,
	}, &records); err != nil {
		return nil, err
	}
	return records, nil
}

type createRegistrationResponse struct {
	InsertedID string `json:"insertedId"`
	domain.RegistrationRecord
}

// CreateRegistration submits a registration record and returns the stored copy.
func (c *Client) CreateRegistration(ctx context.Context, sess *session.Session, record domain.RegistrationRecord) (*domain.RegistrationRecord, error) {
	var resp createRegistrationResponse
	if err := c.do(ctx, sess, request{
		op:     "create_registration",
		method: http.MethodPost,
		path:   "/registered-participant",
		body:   record,
	}, &resp); err != nil {
		return nil, err
	}

	created := record
	if resp.RegistrationRecord.CampID != "" {
		created = resp.RegistrationRecord
	}
	if created.ID == "" {
		created.ID = resp.InsertedID
	}
	return &created, nil
}

// DeleteRegistrationByID removes a single registration.
func (c *Client) DeleteRegistrationByID(ctx context.Context, sess *session.Session, registrationID string) (*domain.DeleteResult, error) {
	var result domain.DeleteResult
	if err := c.do(ctx, sess, request{
		op:     "delete_registration_by_id",
		method: http.MethodDelete,
		path:   "/registered-participant/" + url.PathEscape(registrationID),
	}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// IncrementParticipants bumps a camp's participant counter. The idempotency key, when set,
// is forwarded so a backend can drop redelivered increments.
func (c *Client) IncrementParticipants(ctx context.Context, sess *session.Session, campID, idempotencyKey string) error {
	headers := http.Header{}
	if strings.TrimSpace(idempotencyKey) != "" {
		headers.Set("Idempotency-Key", idempotencyKey)
	}
	return c.do(ctx, sess, request{
		op:      "increment_participants",
		method:  http.MethodPatch,
		path:    "/camps/" + url.PathEscape(campID) + "/increment-participants",
		headers: headers,
	}, nil)
}

// CreatePaymentSession asks the backend for a hosted checkout session.
func (c *Client) CreatePaymentSession(ctx context.Context, sess *session.Session, payload domain.PaymentRequest) (*domain.CheckoutSessionResponse, error) {
	var resp domain.CheckoutSessionResponse
	if err := c.do(ctx, sess, request{
		op:     "create_payment_session",
		method: http.MethodPost,
		path:   "/create-payment-session",
		body:   payload,
	}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetSessionDetails resolves a checkout session id into its payment outcome.
func (c *Client) GetSessionDetails(ctx context.Context, sess *session.Session, sessionID string) (*domain.CheckoutSessionDetails, error) {
	var details domain.CheckoutSessionDetails
	if err := c.do(ctx, sess, request{
		op:     "session_details",
		method: http.MethodGet,
		path:   "/session-details/" + url.PathEscape(sessionID),
	}, &details); err != nil {
		return nil, err
	}
	return &details, nil
}

// UpdatePaymentStatus patches the payment status of a participant's registration for a camp.
func (c *Client) UpdatePaymentStatus(ctx context.Context, sess *session.Session, campID string, update domain.PaymentStatusUpdate) error {
	return c.do(ctx, sess, request{
		op:     "update_payment_status",
		method: http.MethodPatch,
		path:   "/update-payment-status/" + url.PathEscape(campID),
		body:   update,
	}, nil)
}

// DeleteRegistration removes pending registrations matching campId and email. When
// registrationID is set it is sent too so the backend can narrow the match to one record.
func (c *Client) DeleteRegistration(ctx context.Context, sess *session.Session, campID, email, registrationID string) (*domain.DeleteResult, error) {
	query := url.Values{}
	query.Set("campId", campID)
	query.Set("email", email)
	if strings.TrimSpace(registrationID) != "" {
		query.Set("registrationId", registrationID)
	}

	var result domain.DeleteResult
	if err := c.do(ctx, sess, request{
		op:     "delete_registration",
		method: http.MethodDelete,
		path:   "/delete-registration",
		query:  query,
	}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetUserRole looks up the role assigned to a user.
func (c *Client) GetUserRole(ctx context.Context, sess *session.Session, email string) (string, error) {
	var resp struct {
		Role string `json:"role"`
	}
	if err := c.do(ctx, sess, request{
		op:     "get_user_role",
		method: http.MethodGet,
		path:   "/users/role/" + url.PathEscape(email),
	}, &resp); err != nil {
		return "", err
	}
	return strings.ToLower(strings.TrimSpace(resp.Role)), nil
}

// ConfirmRegistration marks a registration as confirmed by an organizer.
func (c *Client) ConfirmRegistration(ctx context.Context, sess *session.Session, registrationID string) error {
	return c.do(ctx, sess, request{
		op:     "confirm_registration",
		method: http.MethodPatch,
		path:   "/confirm-registration/" + url.PathEscape(registrationID),
		body:   map[string]string{"confirmationStatus": domain.ConfirmationStatusConfirmed},
	}, nil)
}

type request struct {
	op      string
	method  string
	path    string
	query   url.Values
	headers http.Header
	body    interface{}
}

// do is the shared request helper. out may be nil when the reply body is ignored.
func (c *Client) do(ctx context.Context, sess *session.Session, r request, out interface{}) error {
	if c.baseURL == "" {
		return ErrEmptyBaseURL
	}

	target := c.baseURL + r.path
	if len(r.query) > 0 {
		target += "?" + r.query.Encode()
	}

	var body io.Reader
	if r.body != nil {
		blob, err := json.Marshal(r.body)
		if err != nil {
			return fmt.Errorf("failed to marshal %s request: %w", r.op, err)
		}
		body = bytes.NewReader(blob)
	}

	req, err := http.NewRequestWithContext(ctx, r.method, target, body)
	if err != nil {
		return fmt.Errorf("failed to create %s request: %w", r.op, err)
	}
	req.Header.Set("Accept", "application/json")
	if r.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for key, values := range r.headers {
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}
	if credential := sess.Credential(); credential != "" {
		req.Header.Set("Authorization", "Bearer "+credential)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute %s request: %w", r.op, err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read %s response: %w", r.op, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		statusErr := &StatusError{Op: r.op, StatusCode: resp.StatusCode, Message: errorMessage(bodyBytes)}
		log.Printf("level=warn component=camp_client op=%s status=%d detail=%q", r.op, resp.StatusCode, statusErr.Message)
		return statusErr
	}

	if out == nil || len(bytes.TrimSpace(bodyBytes)) == 0 {
		return nil
	}
	if err := json.Unmarshal(bodyBytes, out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", r.op, err)
	}
	return nil
}

func errorMessage(body []byte) string {
	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		if payload.Message != "" {
			return payload.Message
		}
		return payload.Error
	}
	text := strings.TrimSpace(string(body))
	if len(text) > 200 {
		text = text[:200]
	}
	return text
}
