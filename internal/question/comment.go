package question

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/alphabot-ai/pressbutton/internal/model"
	"github.com/alphabot-ai/pressbutton/internal/store"
)

// AddComment attaches trimmed content to a question. Content must be 1 to
// MaxCommentLength characters.
func (s *Service) AddComment(ctx context.Context, questionID, userID int64, content string) (model.Comment, error) {
	content = strings.TrimSpace(content)
	if n := utf8.RuneCountInString(content); n == 0 || n > MaxCommentLength {
		return model.Comment{}, ErrInvalidComment
	}

	now := s.now()
	var created model.Comment
	err := s.store.WithTx(ctx, func(tx store.Repo) error {
		if _, err := tx.GetQuestion(ctx, questionID); err != nil {
			return fmt.Errorf("question %d: %w", questionID, err)
		}
		if _, err := tx.GetUser(ctx, userID); err != nil {
			return fmt.Errorf("user %d: %w", userID, err)
		}
		c := model.Comment{
			QuestionID: questionID,
			UserID:     userID,
			Content:    content,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		id, err := tx.CreateComment(ctx, &c)
		if err != nil {
			return err
		}
		created, err = tx.GetComment(ctx, id)
		return err
	})
	if err != nil {
		return model.Comment{}, fmt.Errorf("add comment: %w", err)
	}
	s.logger.InfoContext(ctx, "comment added", "comment_id", created.ID, "question_id", questionID, "user_id", userID)
	return created, nil
}

// ListComments returns comments newest first.
func (s *Service) ListComments(ctx context.Context, questionID int64, page, limit int) (model.CommentPage, error) {
	page, limit = normalizePage(page, limit)

	var items []model.Comment
	var total int
	err := s.store.ReadTx(ctx, func(tx store.Repo) error {
		if _, err := tx.GetQuestion(ctx, questionID); err != nil {
			return fmt.Errorf("question %d: %w", questionID, err)
		}
		var err error
		if total, err = tx.CountCommentsByQuestion(ctx, questionID); err != nil {
			return err
		}
		items, err = tx.ListCommentsByQuestion(ctx, questionID, store.CommentListOpts{
			Limit:  limit,
			Offset: (page - 1) * limit,
		})
		return err
	})
	if err != nil {
		return model.CommentPage{}, fmt.Errorf("list comments: %w", err)
	}
	if items == nil {
		items = []model.Comment{}
	}
	return model.CommentPage{
		Items:      items,
		Pagination: model.NewPagination(page, limit, total),
	}, nil
}

// DeleteComment removes a comment written by userID. Comments by other users
// are reported as not found.
func (s *Service) DeleteComment(ctx context.Context, commentID, userID int64) error {
	err := s.store.WithTx(ctx, func(tx store.Repo) error {
		c, err := tx.GetComment(ctx, commentID)
		if err != nil {
			return err
		}
		if c.UserID != userID {
			return store.ErrNotFound
		}
		return tx.DeleteComment(ctx, commentID)
	})
	if err != nil {
		return fmt.Errorf("delete comment %d by user %d: %w", commentID, userID, err)
	}
	s.logger.InfoContext(ctx, "comment deleted", "comment_id", commentID, "user_id", userID)
	return nil
}
