package store

import (
	"context"
	"encoding/json"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"

	core "github.com/mohammad-safakhou/hivemind/internal/agent/core"
)

func TestSaveSession(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	st := &Store{DB: db}
	session := core.Session{
		ID:           "s1",
		ProjectID:    "p1",
		Type:         core.SessionProblemSolving,
		Participants: []string{"a1", "a2"},
		Status:       core.SessionStatusActive,
		Shared: core.SharedContext{
			Understanding: []string{"the cache is stale"},
		},
		CreatedAt: time.Now(),
	}

	mock.ExpectExec(regexp.QuoteMeta(`
INSERT INTO sessions (id, project_id, type, participants, status, shared, sync_points, consensus_reached, created_at, ended_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
ON CONFLICT (id) DO UPDATE SET
  participants = EXCLUDED.participants,
  status = EXCLUDED.status,
  shared = EXCLUDED.shared,
  sync_points = EXCLUDED.sync_points,
  consensus_reached = EXCLUDED.consensus_reached,
  ended_at = EXCLUDED.ended_at
`)).
		WithArgs("s1", "p1", "problem_solving", sqlmock.AnyArg(), "active",
			sqlmock.AnyArg(), sqlmock.AnyArg(), false, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := st.SaveSession(context.Background(), session); err != nil {
		t.Fatalf("SaveSession: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestGetSession(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	st := &Store{DB: db}
	now := time.Now()
	shared, _ := json.Marshal(core.SharedContext{
		Understanding: []string{"latency tracks deploys"},
		Decisions:     []core.Decision{{ID: "d1", ChosenOption: "roll back"}},
	})
	syncPoints, _ := json.Marshal([]core.SyncPoint{{Name: "decision", At: now}})

	mock.ExpectQuery(regexp.QuoteMeta(`
SELECT id, project_id, type, participants, status, shared, sync_points, consensus_reached, created_at, ended_at
FROM sessions WHERE id=$1
`)).
		WithArgs("s1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "project_id", "type", "participants", "status", "shared", "sync_points", "consensus_reached", "created_at", "ended_at"}).
			AddRow("s1", "p1", "review", pq.StringArray{"a1"}, "completed", shared, syncPoints, true, now, now))

	session, err := st.GetSession(context.Background(), "s1")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if session.Type != core.SessionReview || session.Status != core.SessionStatusCompleted {
		t.Fatalf("decoded session wrong: %+v", session)
	}
	if len(session.Shared.Decisions) != 1 || session.Shared.Decisions[0].ChosenOption != "roll back" {
		t.Fatalf("shared context not decoded: %+v", session.Shared)
	}
	if !session.ConsensusReached || session.EndedAt.IsZero() {
		t.Fatalf("session flags wrong: %+v", session)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestGetSessionNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	st := &Store{DB: db}
	mock.ExpectQuery(regexp.QuoteMeta(`
SELECT id, project_id, type, participants, status, shared, sync_points, consensus_reached, created_at, ended_at
FROM sessions WHERE id=$1
`)).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	if _, err := st.GetSession(context.Background(), "missing"); err != core.ErrSessionNotFound {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
