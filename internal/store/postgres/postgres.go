// Package postgres implements store.Store on PostgreSQL through gorm.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/alphabot-ai/pressbutton/internal/model"
	"github.com/alphabot-ai/pressbutton/internal/store"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

type Options struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	AutoMigrate     bool
}

type Store struct {
	repo
	db *gorm.DB
}

type repo struct {
	db *gorm.DB
}

var _ store.Store = (*Store)(nil)

// Open connects to dsn and applies pool settings from opts.
func Open(dsn string, opts Options) (*Store, error) {
	if dsn == "" {
		return nil, errors.New("database url is not set")
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if opts.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if opts.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(opts.MaxIdleConns)
	}
	if opts.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(opts.ConnMaxLifetime)
	}
	if opts.ConnMaxIdleTime > 0 {
		sqlDB.SetConnMaxIdleTime(opts.ConnMaxIdleTime)
	}
	if opts.AutoMigrate {
		if err := Migrate(db); err != nil {
			_ = sqlDB.Close()
			return nil, err
		}
	}
	return &Store{repo: repo{db: db}, db: db}, nil
}

// Migrate runs GORM auto-migrations for the core tables.
func Migrate(conn *gorm.DB) error {
	if conn == nil {
		return errors.New("db connection is nil")
	}
	return conn.AutoMigrate(
		&User{},
		&Question{},
		&Comment{},
		&Vote{},
	)
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *Store) WithTx(ctx context.Context, fn func(tx store.Repo) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&repo{db: tx})
	})
}

// ReadTx runs at REPEATABLE READ: under the default READ COMMITTED each
// statement would take its own snapshot.
func (s *Store) ReadTx(ctx context.Context, fn func(tx store.Repo) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&repo{db: tx})
	}, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
}

// Users

func (r *repo) CreateUser(ctx context.Context, user *model.User) (int64, error) {
	row := User{
		Email:        user.Email,
		PasswordHash: user.PasswordHash,
		CreatedAt:    user.CreatedAt,
	}
	if name := strings.TrimSpace(user.Name); name != "" {
		row.Name = &name
	}
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		if isUniqueViolation(err) {
			return 0, store.ErrDuplicateEmail
		}
		return 0, err
	}
	return row.ID, nil
}

func (r *repo) GetUser(ctx context.Context, id int64) (model.User, error) {
	var row User
	if err := r.db.WithContext(ctx).Take(&row, id).Error; err != nil {
		return model.User{}, mapErr(err)
	}
	return row.toModel(), nil
}

func (r *repo) FindUserByEmail(ctx context.Context, email string) (model.User, error) {
	var row User
	if err := r.db.WithContext(ctx).Where("email = ?", email).Take(&row).Error; err != nil {
		return model.User{}, mapErr(err)
	}
	return row.toModel(), nil
}

// Questions

const questionSelect = `q.id, q.positive_outcome, q.negative_outcome, q.author_id, u.name AS author_name,
	(SELECT COUNT(*) FROM votes v WHERE v.question_id = q.id) AS vote_count,
	(SELECT COUNT(*) FROM comments c WHERE c.question_id = q.id) AS comment_count,
	q.created_at, q.updated_at`

func (r *repo) questions(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).
		Table("questions AS q").
		Select(questionSelect).
		Joins("LEFT JOIN users u ON u.id = q.author_id")
}

func (r *repo) CreateQuestion(ctx context.Context, question *model.Question) (int64, error) {
	row := Question{
		PositiveOutcome: question.PositiveOutcome,
		NegativeOutcome: question.NegativeOutcome,
		AuthorID:        question.AuthorID,
		CreatedAt:       question.CreatedAt,
		UpdatedAt:       question.UpdatedAt,
	}
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		return 0, err
	}
	return row.ID, nil
}

func (r *repo) GetQuestion(ctx context.Context, id int64) (model.Question, error) {
	var row questionRow
	if err := r.questions(ctx).Where("q.id = ?", id).Take(&row).Error; err != nil {
		return model.Question{}, mapErr(err)
	}
	return row.toModel(), nil
}

func (r *repo) FindQuestionByIDAndAuthor(ctx context.Context, id, authorID int64) (model.Question, error) {
	var row questionRow
	if err := r.questions(ctx).Where("q.id = ? AND q.author_id = ?", id, authorID).Take(&row).Error; err != nil {
		return model.Question{}, mapErr(err)
	}
	return row.toModel(), nil
}

func (r *repo) ListQuestions(ctx context.Context, opts store.QuestionListOpts) ([]model.Question, error) {
	query := applyQuestionFilter(r.questions(ctx), opts.QuestionFilter)
	switch opts.Sort {
	case model.SortOldest:
		query = query.Order("q.created_at ASC").Order("q.id ASC")
	case model.SortMostVoted:
		query = query.Order("vote_count DESC").Order("q.created_at DESC").Order("q.id DESC")
	default:
		query = query.Order("q.created_at DESC").Order("q.id DESC")
	}

	limit := opts.Limit
	if limit < 1 {
		limit = 1
	} else if limit > 100 {
		limit = 100
	}
	offset := opts.Offset
	if offset < 0 {
		offset = 0
	}

	var rows []questionRow
	if err := query.Limit(limit).Offset(offset).Find(&rows).Error; err != nil {
		return nil, err
	}
	questions := make([]model.Question, 0, len(rows))
	for _, row := range rows {
		questions = append(questions, row.toModel())
	}
	return questions, nil
}

func (r *repo) CountQuestions(ctx context.Context, filter store.QuestionFilter) (int, error) {
	var count int64
	query := applyQuestionFilter(r.db.WithContext(ctx).Table("questions AS q"), filter)
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return int(count), nil
}

func (r *repo) DeleteQuestion(ctx context.Context, id int64) error {
	res := r.db.WithContext(ctx).Delete(&Question{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func applyQuestionFilter(query *gorm.DB, filter store.QuestionFilter) *gorm.DB {
	if search := strings.TrimSpace(filter.Search); search != "" {
		pattern := "%" + escapeLike(search) + "%"
		query = query.Where("(q.positive_outcome ILIKE ? OR q.negative_outcome ILIKE ?)", pattern, pattern)
	}
	if filter.AuthorID > 0 {
		query = query.Where("q.author_id = ?", filter.AuthorID)
	}
	return query
}

// Comments

func (r *repo) CreateComment(ctx context.Context, comment *model.Comment) (int64, error) {
	row := Comment{
		QuestionID: comment.QuestionID,
		UserID:     comment.UserID,
		Content:    comment.Content,
		CreatedAt:  comment.CreatedAt,
		UpdatedAt:  comment.UpdatedAt,
	}
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		return 0, err
	}
	return row.ID, nil
}

func (r *repo) comments(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).
		Table("comments AS c").
		Select("c.id, c.question_id, c.user_id, u.name AS author_name, c.content, c.created_at, c.updated_at").
		Joins("LEFT JOIN users u ON u.id = c.user_id")
}

func (r *repo) GetComment(ctx context.Context, id int64) (model.Comment, error) {
	var row commentRow
	if err := r.comments(ctx).Where("c.id = ?", id).Take(&row).Error; err != nil {
		return model.Comment{}, mapErr(err)
	}
	return row.toModel(), nil
}

func (r *repo) ListCommentsByQuestion(ctx context.Context, questionID int64, opts store.CommentListOpts) ([]model.Comment, error) {
	limit := opts.Limit
	if limit < 1 {
		limit = 1
	} else if limit > 100 {
		limit = 100
	}
	var rows []commentRow
	err := r.comments(ctx).
		Where("c.question_id = ?", questionID).
		Order("c.created_at DESC").Order("c.id DESC").
		Limit(limit).Offset(max(opts.Offset, 0)).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	comments := make([]model.Comment, 0, len(rows))
	for _, row := range rows {
		comments = append(comments, row.toModel())
	}
	return comments, nil
}

func (r *repo) CountCommentsByQuestion(ctx context.Context, questionID int64) (int, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&Comment{}).Where("question_id = ?", questionID).Count(&count).Error
	return int(count), err
}

func (r *repo) DeleteComment(ctx context.Context, id int64) error {
	res := r.db.WithContext(ctx).Delete(&Comment{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (r *repo) DeleteCommentsByQuestion(ctx context.Context, questionID int64) (int64, error) {
	res := r.db.WithContext(ctx).Where("question_id = ?", questionID).Delete(&Comment{})
	return res.RowsAffected, res.Error
}

// Votes

func (r *repo) UpsertVote(ctx context.Context, vote *model.Vote) error {
	row := Vote{
		QuestionID: vote.QuestionID,
		UserID:     vote.UserID,
		Choice:     string(vote.Choice),
		CreatedAt:  vote.CreatedAt,
	}
	err := r.db.WithContext(ctx).
		Clauses(
			clause.OnConflict{
				Columns:   []clause.Column{{Name: "user_id"}, {Name: "question_id"}},
				DoUpdates: clause.AssignmentColumns([]string{"choice"}),
			},
			clause.Returning{},
		).
		Create(&row).Error
	if err != nil {
		return err
	}
	*vote = row.toModel()
	return nil
}

func (r *repo) GetVote(ctx context.Context, questionID, userID int64) (model.Vote, error) {
	var row Vote
	err := r.db.WithContext(ctx).
		Where("question_id = ? AND user_id = ?", questionID, userID).
		Take(&row).Error
	if err != nil {
		return model.Vote{}, mapErr(err)
	}
	return row.toModel(), nil
}

func (r *repo) CountVotesByChoice(ctx context.Context, questionID int64) (map[model.Choice]int, error) {
	var rows []struct {
		Choice string
		N      int
	}
	err := r.db.WithContext(ctx).
		Model(&Vote{}).
		Select("choice, COUNT(*) AS n").
		Where("question_id = ?", questionID).
		Group("choice").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	counts := make(map[model.Choice]int, len(rows))
	for _, row := range rows {
		counts[model.Choice(row.Choice)] = row.N
	}
	return counts, nil
}

func (r *repo) DeleteVotesByQuestion(ctx context.Context, questionID int64) (int64, error) {
	res := r.db.WithContext(ctx).Where("question_id = ?", questionID).Delete(&Vote{})
	return res.RowsAffected, res.Error
}

func mapErr(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return store.ErrNotFound
	}
	return err
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
