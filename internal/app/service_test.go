package app

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/medicamp/camp-portal/internal/domain"
	"github.com/medicamp/camp-portal/internal/session"
	"github.com/medicamp/camp-portal/internal/testutil"
	"github.com/medicamp/camp-portal/pkg/campclient"
)

type recordingTaskQueue struct {
	mu    sync.Mutex
	tasks []domain.ParticipantCountTask
	err   error
}

func (q *recordingTaskQueue) Enqueue(ctx context.Context, task domain.ParticipantCountTask) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.tasks = append(q.tasks, task)
	return nil
}

type stubLock struct {
	acquired bool
	err      error
	released int
	keys     []string
}

func (l *stubLock) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), bool, error) {
	l.keys = append(l.keys, key)
	return func() { l.released++ }, l.acquired, l.err
}

type harness struct {
	backend *testutil.CampBackend
	client  *campclient.Client
	tasks   *recordingTaskQueue
	service *Service
	sess    *session.Session
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	backend := testutil.NewCampBackend()
	t.Cleanup(backend.Close)

	client := campclient.NewClient(backend.URL(), 5*time.Second)
	tasks := &recordingTaskQueue{}
	service := NewService(client, tasks, nil)
	service.now = func() time.Time { return time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC) }

	return &harness{
		backend: backend,
		client:  client,
		tasks:   tasks,
		service: service,
		sess:    session.New(session.Identity{Email: "user@example.com", DisplayName: "Pat User"}, "token-1"),
	}
}

func paidCamp() domain.CampSnapshot {
	return domain.CampSnapshot{ID: "c1", Name: "Eye Care Camp", Location: "Dhaka", DateTime: "2026-04-01T09:00", Fees: 500, HealthcareProfessional: "Dr. Rahman"}
}

func TestNewServiceDefaultsToNoopLock(t *testing.T) {
	s := NewService(nil, nil, nil)
	if _, ok := s.lock.(NoopSubmissionLock); !ok {
		t.Fatalf("expected NoopSubmissionLock, got %T", s.lock)
	}
	if s.submissionLockTTL != defaultSubmissionLockTTL {
		t.Fatalf("expected default ttl, got %v", s.submissionLockTTL)
	}

	s.SetSubmissionLockTTL(0)
	if s.submissionLockTTL != defaultSubmissionLockTTL {
		t.Fatal("expected non-positive ttl to be ignored")
	}
	s.SetSubmissionLockTTL(time.Minute)
	if s.submissionLockTTL != time.Minute {
		t.Fatalf("expected one minute, got %v", s.submissionLockTTL)
	}
}

func TestUnauthenticatedCallsMakeNoRequests(t *testing.T) {
	h := newHarness(t)
	anon := session.Anonymous()
	ctx := context.Background()

	if _, err := h.service.SubmitRegistration(ctx, anon, "c1", validInput()); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated from SubmitRegistration, got %v", err)
	}
	if _, err := h.service.StartPayment(ctx, anon, domain.PaymentRequest{CampID: "c1", Amount: 500}); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated from StartPayment, got %v", err)
	}
	if _, err := h.service.Dashboard(ctx, anon); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated from Dashboard, got %v", err)
	}
	if _, err := h.service.CancelRegistration(ctx, anon, "r_1"); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated from CancelRegistration, got %v", err)
	}
	if err := h.service.ConfirmRegistration(ctx, anon, "r_1"); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated from ConfirmRegistration, got %v", err)
	}
	if calls := h.backend.Calls(); len(calls) != 0 {
		t.Fatalf("expected no backend calls, got %d", len(calls))
	}
}

func TestCredentialIsReadAtDispatch(t *testing.T) {
	h := newHarness(t)
	h.backend.AddCamp(paidCamp())
	ctx := context.Background()

	if _, err := h.service.FetchCamp(ctx, h.sess, "c1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	h.sess.Refresh("token-2")
	if _, err := h.service.FetchCamp(ctx, h.sess, "c1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	calls := h.backend.CallsTo("GET", "/camps/c1")
	if len(calls) != 2 {
		t.Fatalf("expected two camp lookups, got %d", len(calls))
	}
	if calls[0].Authorization != "Bearer token-1" || calls[1].Authorization != "Bearer token-2" {
		t.Fatalf("expected refreshed credential on second call, got %q then %q", calls[0].Authorization, calls[1].Authorization)
	}
}
