package store

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type execCall struct {
	sql  string
	args []any
}

type dbStub struct {
	execs   []execCall
	execErr error
}

func (s *dbStub) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	s.execs = append(s.execs, execCall{sql: sql, args: args})
	if s.execErr != nil {
		return pgconn.CommandTag{}, s.execErr
	}
	return pgconn.NewCommandTag("UPDATE 1"), nil
}

func (s *dbStub) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, errors.New("query not supported by stub")
}

func TestEnqueueOutboxMarshalsPayload(t *testing.T) {
	db := &dbStub{}
	repo := NewPostgresOutboxRepository(db)

	payload := map[string]string{"camp_id": "c1"}
	if err := repo.EnqueueOutbox(context.Background(), " camp_portal.events ", "camp.participants.increment", payload); err != nil {
		t.Fatalf("EnqueueOutbox returned error: %v", err)
	}

	if len(db.execs) != 1 {
		t.Fatalf("expected one exec, got %d", len(db.execs))
	}
	call := db.execs[0]
	if !strings.Contains(call.sql, "INSERT INTO event_outbox") {
		t.Fatalf("unexpected sql %q", call.sql)
	}
	if call.args[0] != "camp_portal.events" {
		t.Fatalf("expected trimmed exchange, got %v", call.args[0])
	}
	if call.args[2] != `{"camp_id":"c1"}` {
		t.Fatalf("unexpected payload %v", call.args[2])
	}
}

func TestEnqueueOutboxWrapsDatabaseError(t *testing.T) {
	dbErr := errors.New("connection reset")
	repo := NewPostgresOutboxRepository(&dbStub{execErr: dbErr})

	err := repo.EnqueueOutbox(context.Background(), "x", "y", map[string]string{})
	if !errors.Is(err, dbErr) {
		t.Fatalf("expected wrapped database error, got %v", err)
	}
}

func TestMarkOutboxFailedClampsInputs(t *testing.T) {
	db := &dbStub{}
	repo := NewPostgresOutboxRepository(db)

	reason := strings.Repeat("x", maxLastErrorLength+50)
	if err := repo.MarkOutboxFailed(context.Background(), 7, 0, reason); err != nil {
		t.Fatalf("MarkOutboxFailed returned error: %v", err)
	}

	args := db.execs[0].args
	if args[1] != 1 {
		t.Fatalf("expected retry delay clamped to 1, got %v", args[1])
	}
	if got := len(args[2].(string)); got != maxLastErrorLength {
		t.Fatalf("expected reason truncated to %d, got %d", maxLastErrorLength, got)
	}
}
