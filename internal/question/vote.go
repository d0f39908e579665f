package question

import (
	"context"
	"fmt"
	"math"

	"github.com/alphabot-ai/pressbutton/internal/model"
	"github.com/alphabot-ai/pressbutton/internal/store"

	"golang.org/x/sync/errgroup"
)

// VoteQuestion records the user's choice, replacing any earlier vote by the
// same user on the same question. Under concurrent calls the last committed
// write wins; the (user, question) unique index keeps it to a single row.
func (s *Service) VoteQuestion(ctx context.Context, questionID, userID int64, choice model.Choice) (model.Vote, error) {
	if !choice.Valid() {
		return model.Vote{}, ErrInvalidChoice
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if _, err := s.store.GetQuestion(gctx, questionID); err != nil {
			return fmt.Errorf("question %d: %w", questionID, err)
		}
		return nil
	})
	g.Go(func() error {
		if _, err := s.store.GetUser(gctx, userID); err != nil {
			return fmt.Errorf("user %d: %w", userID, err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return model.Vote{}, fmt.Errorf("vote: %w", err)
	}

	var persisted model.Vote
	err := s.store.WithTx(ctx, func(tx store.Repo) error {
		vote := model.Vote{
			QuestionID: questionID,
			UserID:     userID,
			Choice:     choice,
			CreatedAt:  s.now(),
		}
		if err := tx.UpsertVote(ctx, &vote); err != nil {
			return err
		}
		var err error
		persisted, err = tx.GetVote(ctx, questionID, userID)
		return err
	})
	if err != nil {
		return model.Vote{}, fmt.Errorf("vote on question %d by user %d: %w", questionID, userID, err)
	}

	s.logger.InfoContext(ctx, "vote recorded",
		"question_id", questionID,
		"user_id", userID,
		"choice", persisted.Choice,
	)
	return persisted, nil
}

// GetUserVote returns the caller's current vote on a question.
func (s *Service) GetUserVote(ctx context.Context, questionID, userID int64) (model.Vote, error) {
	v, err := s.store.GetVote(ctx, questionID, userID)
	if err != nil {
		return model.Vote{}, fmt.Errorf("vote on question %d by user %d: %w", questionID, userID, err)
	}
	return v, nil
}

// GetVoteStatus aggregates the votes on an existing question.
func (s *Service) GetVoteStatus(ctx context.Context, questionID int64) (model.VoteStatus, error) {
	if _, err := s.store.GetQuestion(ctx, questionID); err != nil {
		return model.VoteStatus{}, fmt.Errorf("vote status for question %d: %w", questionID, err)
	}
	counts, err := s.store.CountVotesByChoice(ctx, questionID)
	if err != nil {
		return model.VoteStatus{}, fmt.Errorf("vote status for question %d: %w", questionID, err)
	}
	return ComputeVoteStatus(counts), nil
}

// ComputeVoteStatus aggregates per-choice counts. Only PRESS and DONT_PRESS
// count toward the total; the percentage is rounded half away from zero to two
// decimals and is 0 when nobody has voted.
func ComputeVoteStatus(counts map[model.Choice]int) model.VoteStatus {
	st := model.VoteStatus{
		PositiveVotes: counts[model.ChoicePress],
		NegativeVotes: counts[model.ChoiceDontPress],
	}
	st.TotalVotes = st.PositiveVotes + st.NegativeVotes
	if st.TotalVotes > 0 {
		st.PositivePercentage = math.Round(float64(st.PositiveVotes)/float64(st.TotalVotes)*10000) / 100
	}
	return st
}
