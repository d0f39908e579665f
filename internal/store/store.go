package store

import (
	"context"
	"errors"

	"github.com/alphabot-ai/pressbutton/internal/model"
)

var (
	ErrNotFound       = errors.New("not found")
	ErrDuplicateEmail = errors.New("duplicate email")
)

type QuestionFilter struct {
	Search   string
	AuthorID int64
}

type QuestionListOpts struct {
	QuestionFilter
	Sort   model.SortOrder
	Limit  int
	Offset int
}

type CommentListOpts struct {
	Limit  int
	Offset int
}

// Store is the relational collaborator. Repo methods called on the Store run
// outside any transaction; WithTx hands fn a Repo bound to one transaction that
// commits when fn returns nil and rolls back otherwise.
//
// ReadTx runs fn in a read-only transaction in which every statement sees the
// same snapshot, so a count and the page it describes agree.
type Store interface {
	Repo
	WithTx(ctx context.Context, fn func(tx Repo) error) error
	ReadTx(ctx context.Context, fn func(tx Repo) error) error
	Ping(ctx context.Context) error
	Close() error
}

type Repo interface {
	UserStore
	QuestionStore
	CommentStore
	VoteStore
}

type UserStore interface {
	CreateUser(ctx context.Context, user *model.User) (int64, error)
	GetUser(ctx context.Context, id int64) (model.User, error)
	FindUserByEmail(ctx context.Context, email string) (model.User, error)
}

type QuestionStore interface {
	CreateQuestion(ctx context.Context, question *model.Question) (int64, error)
	GetQuestion(ctx context.Context, id int64) (model.Question, error)
	FindQuestionByIDAndAuthor(ctx context.Context, id, authorID int64) (model.Question, error)
	ListQuestions(ctx context.Context, opts QuestionListOpts) ([]model.Question, error)
	CountQuestions(ctx context.Context, filter QuestionFilter) (int, error)
	DeleteQuestion(ctx context.Context, id int64) error
}

type CommentStore interface {
	CreateComment(ctx context.Context, comment *model.Comment) (int64, error)
	GetComment(ctx context.Context, id int64) (model.Comment, error)
	ListCommentsByQuestion(ctx context.Context, questionID int64, opts CommentListOpts) ([]model.Comment, error)
	CountCommentsByQuestion(ctx context.Context, questionID int64) (int, error)
	DeleteComment(ctx context.Context, id int64) error
	DeleteCommentsByQuestion(ctx context.Context, questionID int64) (int64, error)
}

type VoteStore interface {
	// UpsertVote inserts the vote or, when (user, question) already voted,
	// overwrites the stored choice.
	UpsertVote(ctx context.Context, vote *model.Vote) error
	GetVote(ctx context.Context, questionID, userID int64) (model.Vote, error)
	CountVotesByChoice(ctx context.Context, questionID int64) (map[model.Choice]int, error)
	DeleteVotesByQuestion(ctx context.Context, questionID int64) (int64, error)
}
