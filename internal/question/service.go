// Package question owns the lifecycle of questions and their dependent votes
// and comments.
package question

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/alphabot-ai/pressbutton/internal/model"
	"github.com/alphabot-ai/pressbutton/internal/store"
)

var (
	ErrInvalidChoice   = errors.New("choice must be PRESS or DONT_PRESS")
	ErrInvalidQuestion = errors.New("both outcomes are required")
	ErrInvalidComment  = errors.New("comment must be 1-1000 characters")
)

const (
	MaxOutcomeLength = 500
	MaxCommentLength = 1000
	DefaultPageSize  = 10
	MaxPageSize      = 100
)

// Service applies validation and ownership rules on top of a store.Store.
type Service struct {
	store  store.Store
	logger *slog.Logger
	now    func() time.Time
}

// NewService returns a Service backed by st. A nil logger falls back to
// slog.Default.
func NewService(st store.Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: st, logger: logger, now: time.Now}
}

// CreateQuestion trims both outcomes and stores a question for authorID.
// Empty or over-long outcomes report ErrInvalidQuestion.
func (s *Service) CreateQuestion(ctx context.Context, authorID int64, positive, negative string) (model.Question, error) {
	positive = strings.TrimSpace(positive)
	negative = strings.TrimSpace(negative)
	if positive == "" || negative == "" ||
		utf8.RuneCountInString(positive) > MaxOutcomeLength ||
		utf8.RuneCountInString(negative) > MaxOutcomeLength {
		return model.Question{}, ErrInvalidQuestion
	}

	now := s.now()
	var created model.Question
	err := s.store.WithTx(ctx, func(tx store.Repo) error {
		if _, err := tx.GetUser(ctx, authorID); err != nil {
			return fmt.Errorf("user %d: %w", authorID, err)
		}
		q := model.Question{
			PositiveOutcome: positive,
			NegativeOutcome: negative,
			AuthorID:        authorID,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		id, err := tx.CreateQuestion(ctx, &q)
		if err != nil {
			return err
		}
		created, err = tx.GetQuestion(ctx, id)
		return err
	})
	if err != nil {
		return model.Question{}, fmt.Errorf("create question: %w", err)
	}
	s.logger.InfoContext(ctx, "question created", "question_id", created.ID, "author_id", authorID)
	return created, nil
}

// GetQuestion returns a question with its vote and comment counts.
func (s *Service) GetQuestion(ctx context.Context, id int64) (model.Question, error) {
	q, err := s.store.GetQuestion(ctx, id)
	if err != nil {
		return model.Question{}, fmt.Errorf("question %d: %w", id, err)
	}
	return q, nil
}

// DeleteQuestion removes a question together with every vote and comment on
// it, whoever wrote them. A missing question and a question owned by someone
// else both report store.ErrNotFound.
func (s *Service) DeleteQuestion(ctx context.Context, questionID, authorID int64) error {
	if _, err := s.store.FindQuestionByIDAndAuthor(ctx, questionID, authorID); err != nil {
		return fmt.Errorf("delete question %d by user %d: %w", questionID, authorID, err)
	}

	var comments, votes int64
	err := s.store.WithTx(ctx, func(tx store.Repo) error {
		// The row may have gone between the check and the transaction.
		if _, err := tx.FindQuestionByIDAndAuthor(ctx, questionID, authorID); err != nil {
			return err
		}
		var err error
		if comments, err = tx.DeleteCommentsByQuestion(ctx, questionID); err != nil {
			return fmt.Errorf("delete comments: %w", err)
		}
		if votes, err = tx.DeleteVotesByQuestion(ctx, questionID); err != nil {
			return fmt.Errorf("delete votes: %w", err)
		}
		return tx.DeleteQuestion(ctx, questionID)
	})
	if err != nil {
		s.logger.WarnContext(ctx, "question delete aborted", "question_id", questionID, "author_id", authorID, "error", err)
		return fmt.Errorf("delete question %d by user %d: %w", questionID, authorID, err)
	}

	s.logger.InfoContext(ctx, "question deleted",
		"question_id", questionID,
		"author_id", authorID,
		"comments_removed", comments,
		"votes_removed", votes,
	)
	return nil
}
