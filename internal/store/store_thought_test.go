package store

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"

	core "github.com/mohammad-safakhou/hivemind/internal/agent/core"
)

func TestSaveThought(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	st := &Store{DB: db}
	node := core.ThoughtNode{
		ID:           "t1",
		ParentID:     "root",
		ProjectID:    "p1",
		AgentID:      "agent-1",
		Content:      "the cache is stale",
		Confidence:   0.8,
		Reasoning:    "TTL never refreshed",
		Alternatives: []string{"network partition"},
	}

	mock.ExpectExec(regexp.QuoteMeta(`
INSERT INTO thoughts (id, parent_id, project_id, agent_id, content, confidence, reasoning, alternatives, selected, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
ON CONFLICT (id) DO UPDATE SET
  content = EXCLUDED.content,
  confidence = EXCLUDED.confidence,
  reasoning = EXCLUDED.reasoning,
  alternatives = EXCLUDED.alternatives,
  selected = EXCLUDED.selected
`)).
		WithArgs(node.ID, node.ParentID, node.ProjectID, node.AgentID, node.Content, node.Confidence,
			node.Reasoning, sqlmock.AnyArg(), false, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := st.SaveThought(context.Background(), node); err != nil {
		t.Fatalf("SaveThought: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestGetThought(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	st := &Store{DB: db}
	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta(`
SELECT id, parent_id, project_id, agent_id, content, confidence, reasoning, alternatives, selected, created_at
FROM thoughts WHERE id=$1
`)).
		WithArgs("t1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "parent_id", "project_id", "agent_id", "content", "confidence", "reasoning", "alternatives", "selected", "created_at"}).
			AddRow("t1", "root", "p1", "agent-1", "the cache is stale", 0.8, "TTL never refreshed", pq.StringArray{"network partition"}, true, now))

	node, err := st.GetThought(context.Background(), "t1")
	if err != nil {
		t.Fatalf("GetThought: %v", err)
	}
	if !node.Selected || node.Confidence != 0.8 || len(node.Alternatives) != 1 {
		t.Fatalf("decoded thought wrong: %+v", node)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestMarkThoughtSelected(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	st := &Store{DB: db}
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE thoughts SET selected=TRUE WHERE id=$1`)).
		WithArgs("t1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := st.MarkThoughtSelected(context.Background(), "t1"); err != nil {
		t.Fatalf("MarkThoughtSelected: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
