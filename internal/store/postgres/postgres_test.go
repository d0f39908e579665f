package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/alphabot-ai/pressbutton/internal/model"
	"github.com/alphabot-ai/pressbutton/internal/store"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestIsUniqueViolation(t *testing.T) {
	if isUniqueViolation(nil) {
		t.Fatalf("expected nil error to not be unique violation")
	}
	if !isUniqueViolation(&pgconn.PgError{Code: "23505"}) {
		t.Fatalf("expected pg unique violation error to be recognized")
	}
	if !isUniqueViolation(fmt.Errorf("create user: %w", &pgconn.PgError{Code: "23505"})) {
		t.Fatalf("expected wrapped unique violation to be recognized")
	}
	if isUniqueViolation(&pgconn.PgError{Code: "22001"}) {
		t.Fatalf("expected non-unique pg error to be rejected")
	}
	if isUniqueViolation(errors.New("plain error")) {
		t.Fatalf("expected generic error to be rejected")
	}
}

func TestEscapeLike(t *testing.T) {
	if got := escapeLike(`50%_off\`); got != `50\%\_off\\` {
		t.Fatalf("unexpected escape: %q", got)
	}
}

// newTestStore connects to PRESSBUTTON_TEST_DATABASE_URL and empties the
// tables. Tests are skipped when the variable is unset.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("PRESSBUTTON_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("PRESSBUTTON_TEST_DATABASE_URL not set")
	}
	st, err := Open(dsn, Options{MaxOpenConns: 5, AutoMigrate: true})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	if err := st.db.Exec("TRUNCATE votes, comments, questions, users RESTART IDENTITY CASCADE").Error; err != nil {
		t.Fatalf("truncate: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestPostgresLifecycle(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	author, err := st.CreateUser(ctx, &model.User{Email: "a@example.com", PasswordHash: "x", Name: "ada", CreatedAt: now})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	if _, err := st.CreateUser(ctx, &model.User{Email: "a@example.com", PasswordHash: "x", CreatedAt: now}); !errors.Is(err, store.ErrDuplicateEmail) {
		t.Fatalf("expected ErrDuplicateEmail, got %v", err)
	}

	qid, err := st.CreateQuestion(ctx, &model.Question{PositiveOutcome: "Fly", NegativeOutcome: "slowly", AuthorID: author, CreatedAt: now, UpdatedAt: now})
	if err != nil {
		t.Fatalf("create question: %v", err)
	}

	first := model.Vote{QuestionID: qid, UserID: author, Choice: model.ChoicePress, CreatedAt: now}
	if err := st.UpsertVote(ctx, &first); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	second := model.Vote{QuestionID: qid, UserID: author, Choice: model.ChoiceDontPress, CreatedAt: now}
	if err := st.UpsertVote(ctx, &second); err != nil {
		t.Fatalf("upsert again: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("expected one vote row, got ids %d and %d", first.ID, second.ID)
	}

	if _, err := st.CreateComment(ctx, &model.Comment{QuestionID: qid, UserID: author, Content: "hi", CreatedAt: now, UpdatedAt: now}); err != nil {
		t.Fatalf("comment: %v", err)
	}

	q, err := st.GetQuestion(ctx, qid)
	if err != nil {
		t.Fatalf("get question: %v", err)
	}
	if q.VoteCount != 1 || q.CommentCount != 1 || q.AuthorName != "ada" {
		t.Fatalf("unexpected question: %+v", q)
	}

	list, err := st.ListQuestions(ctx, store.QuestionListOpts{QuestionFilter: store.QuestionFilter{Search: "fLy"}, Limit: 10})
	if err != nil || len(list) != 1 {
		t.Fatalf("expected search match, got %d (%v)", len(list), err)
	}

	err = st.WithTx(ctx, func(tx store.Repo) error {
		if _, err := tx.DeleteCommentsByQuestion(ctx, qid); err != nil {
			return err
		}
		if _, err := tx.DeleteVotesByQuestion(ctx, qid); err != nil {
			return err
		}
		return tx.DeleteQuestion(ctx, qid)
	})
	if err != nil {
		t.Fatalf("cascade: %v", err)
	}
	if _, err := st.GetQuestion(ctx, qid); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestReadTxSeesOneSnapshot(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	author, err := st.CreateUser(ctx, &model.User{Email: "snap@example.com", PasswordHash: "x", CreatedAt: now})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	newQuestion := func() {
		t.Helper()
		if _, err := st.CreateQuestion(ctx, &model.Question{PositiveOutcome: "p", NegativeOutcome: "n", AuthorID: author, CreatedAt: now, UpdatedAt: now}); err != nil {
			t.Fatalf("create question: %v", err)
		}
	}
	newQuestion()

	err = st.ReadTx(ctx, func(tx store.Repo) error {
		before, err := tx.CountQuestions(ctx, store.QuestionFilter{})
		if err != nil {
			return err
		}
		// Committed on another pooled connection while the transaction is open.
		newQuestion()
		after, err := tx.CountQuestions(ctx, store.QuestionFilter{})
		if err != nil {
			return err
		}
		page, err := tx.ListQuestions(ctx, store.QuestionListOpts{Limit: 100})
		if err != nil {
			return err
		}
		if before != 1 || after != before || len(page) != before {
			t.Errorf("expected a stable snapshot of 1, got before=%d after=%d page=%d", before, after, len(page))
		}
		return nil
	})
	if err != nil {
		t.Fatalf("read tx: %v", err)
	}

	if n, _ := st.CountQuestions(ctx, store.QuestionFilter{}); n != 2 {
		t.Fatalf("expected 2 questions after commit, got %d", n)
	}
}
