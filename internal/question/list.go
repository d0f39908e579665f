package question

import (
	"context"
	"fmt"
	"strings"

	"github.com/alphabot-ai/pressbutton/internal/model"
	"github.com/alphabot-ai/pressbutton/internal/store"
)

// ListParams selects a page of questions. Zero values mean page 1,
// DefaultPageSize items, no filter and newest first.
type ListParams struct {
	Page     int
	Limit    int
	Search   string
	AuthorID int64
	SortBy   model.SortOrder
}

func (p ListParams) normalize() ListParams {
	p.Page, p.Limit = normalizePage(p.Page, p.Limit)
	p.Search = strings.TrimSpace(p.Search)
	if !p.SortBy.Valid() {
		p.SortBy = model.SortNewest
	}
	return p
}

func normalizePage(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	return page, limit
}

// ListQuestions returns one page of questions and the total matching count,
// both read from the same snapshot.
func (s *Service) ListQuestions(ctx context.Context, params ListParams) (model.QuestionPage, error) {
	p := params.normalize()
	filter := store.QuestionFilter{Search: p.Search, AuthorID: p.AuthorID}

	var items []model.Question
	var total int
	err := s.store.ReadTx(ctx, func(tx store.Repo) error {
		var err error
		if total, err = tx.CountQuestions(ctx, filter); err != nil {
			return err
		}
		items, err = tx.ListQuestions(ctx, store.QuestionListOpts{
			QuestionFilter: filter,
			Sort:           p.SortBy,
			Limit:          p.Limit,
			Offset:         (p.Page - 1) * p.Limit,
		})
		return err
	})
	if err != nil {
		return model.QuestionPage{}, fmt.Errorf("list questions: %w", err)
	}
	if items == nil {
		items = []model.Question{}
	}
	return model.QuestionPage{
		Items:      items,
		Pagination: model.NewPagination(p.Page, p.Limit, total),
	}, nil
}
