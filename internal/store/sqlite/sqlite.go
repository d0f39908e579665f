package sqlite

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/alphabot-ai/pressbutton/internal/model"
	"github.com/alphabot-ai/pressbutton/internal/store"

	msqlite "modernc.org/sqlite"
)

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type Store struct {
	repo
	db *sql.DB
}

type repo struct {
	q queryer
}

var _ store.Store = (*Store)(nil)

func Open(path string) (*Store, error) {
	if err := registerFunctions(); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// One connection serializes writers; concurrent transactions on a shared
	// cache database otherwise fail with SQLITE_LOCKED.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA foreign_keys = ON;"); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := applySchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{repo: repo{q: db}, db: db}, nil
}

var (
	registerOnce sync.Once
	registerErr  error
)

// registerFunctions installs unicode_lower. The built-in LOWER only folds
// ASCII letters.
func registerFunctions() error {
	registerOnce.Do(func() {
		registerErr = msqlite.RegisterDeterministicScalarFunction("unicode_lower", 1, unicodeLower)
	})
	return registerErr
}

func unicodeLower(_ *msqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
	switch v := args[0].(type) {
	case string:
		return strings.ToLower(v), nil
	case []byte:
		return strings.ToLower(string(v)), nil
	default:
		return v, nil
	}
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) WithTx(ctx context.Context, fn func(tx store.Repo) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	if err = fn(&repo{q: tx}); err != nil {
		return err
	}
	return tx.Commit()
}

// ReadTx is a plain transaction: the single connection already serializes
// every statement.
func (s *Store) ReadTx(ctx context.Context, fn func(tx store.Repo) error) error {
	return s.WithTx(ctx, fn)
}

// migrations is an ordered list of SQL migrations.
// Each migration runs exactly once, tracked by schema_version table.
var migrations = []string{
	// Migration 1: Initial schema
	`
CREATE TABLE IF NOT EXISTS users (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	email TEXT NOT NULL,
	password_hash TEXT NOT NULL,
	name TEXT,
	created_at INTEGER NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_users_email ON users(email);

CREATE TABLE IF NOT EXISTS questions (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	positive_outcome TEXT NOT NULL,
	negative_outcome TEXT NOT NULL,
	author_id INTEGER NOT NULL,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL,
	FOREIGN KEY(author_id) REFERENCES users(id)
);
CREATE INDEX IF NOT EXISTS idx_questions_created_at ON questions(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_questions_author_id ON questions(author_id);

CREATE TABLE IF NOT EXISTS comments (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	question_id INTEGER NOT NULL,
	user_id INTEGER NOT NULL,
	content TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL,
	FOREIGN KEY(question_id) REFERENCES questions(id),
	FOREIGN KEY(user_id) REFERENCES users(id)
);
CREATE INDEX IF NOT EXISTS idx_comments_question_id ON comments(question_id);

CREATE TABLE IF NOT EXISTS votes (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	question_id INTEGER NOT NULL,
	user_id INTEGER NOT NULL,
	choice TEXT NOT NULL CHECK (choice IN ('PRESS', 'DONT_PRESS')),
	created_at INTEGER NOT NULL,
	FOREIGN KEY(question_id) REFERENCES questions(id),
	FOREIGN KEY(user_id) REFERENCES users(id)
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_votes_user_question ON votes(user_id, question_id);
CREATE INDEX IF NOT EXISTS idx_votes_question_id ON votes(question_id);
`,
}

func applySchema(db *sql.DB) error {
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY
		)
	`); err != nil {
		return err
	}

	var currentVersion int
	row := db.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_version`)
	if err := row.Scan(&currentVersion); err != nil {
		return err
	}

	for i := currentVersion; i < len(migrations); i++ {
		if _, err := db.Exec(migrations[i]); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
		if _, err := db.Exec(`INSERT INTO schema_version (version) VALUES (?)`, i+1); err != nil {
			return fmt.Errorf("failed to record migration %d: %w", i+1, err)
		}
	}

	return nil
}

// Users

func (r *repo) CreateUser(ctx context.Context, user *model.User) (int64, error) {
	res, err := r.q.ExecContext(ctx, `
INSERT INTO users (email, password_hash, name, created_at)
VALUES (?, ?, ?, ?)
`, user.Email, user.PasswordHash, nullIfEmpty(user.Name), user.CreatedAt.Unix())
	if err != nil {
		if isUniqueViolation(err) {
			return 0, store.ErrDuplicateEmail
		}
		return 0, err
	}
	return res.LastInsertId()
}

func (r *repo) GetUser(ctx context.Context, id int64) (model.User, error) {
	row := r.q.QueryRowContext(ctx, `
SELECT id, email, password_hash, name, created_at
FROM users
WHERE id = ?
`, id)
	return scanUser(row)
}

func (r *repo) FindUserByEmail(ctx context.Context, email string) (model.User, error) {
	row := r.q.QueryRowContext(ctx, `
SELECT id, email, password_hash, name, created_at
FROM users
WHERE email = ?
`, email)
	return scanUser(row)
}

// Questions

const questionColumns = `
SELECT q.id, q.positive_outcome, q.negative_outcome, q.author_id, u.name,
	(SELECT COUNT(*) FROM votes v WHERE v.question_id = q.id),
	(SELECT COUNT(*) FROM comments c WHERE c.question_id = q.id),
	q.created_at, q.updated_at
FROM questions q
LEFT JOIN users u ON u.id = q.author_id
`

func (r *repo) CreateQuestion(ctx context.Context, question *model.Question) (int64, error) {
	res, err := r.q.ExecContext(ctx, `
INSERT INTO questions (positive_outcome, negative_outcome, author_id, created_at, updated_at)
VALUES (?, ?, ?, ?, ?)
`, question.PositiveOutcome, question.NegativeOutcome, question.AuthorID, question.CreatedAt.Unix(), question.UpdatedAt.Unix())
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (r *repo) GetQuestion(ctx context.Context, id int64) (model.Question, error) {
	row := r.q.QueryRowContext(ctx, questionColumns+`WHERE q.id = ?`, id)
	return scanQuestion(row)
}

func (r *repo) FindQuestionByIDAndAuthor(ctx context.Context, id, authorID int64) (model.Question, error) {
	row := r.q.QueryRowContext(ctx, questionColumns+`WHERE q.id = ? AND q.author_id = ?`, id, authorID)
	return scanQuestion(row)
}

func (r *repo) ListQuestions(ctx context.Context, opts store.QuestionListOpts) ([]model.Question, error) {
	where, args := questionWhere(opts.QuestionFilter)

	order := "q.created_at DESC, q.id DESC"
	switch opts.Sort {
	case model.SortOldest:
		order = "q.created_at ASC, q.id ASC"
	case model.SortMostVoted:
		order = "(SELECT COUNT(*) FROM votes v WHERE v.question_id = q.id) DESC, q.created_at DESC, q.id DESC"
	}

	limit := clamp(opts.Limit, 1, 100)
	offset := opts.Offset
	if offset < 0 {
		offset = 0
	}
	args = append(args, limit, offset)

	rows, err := r.q.QueryContext(ctx, fmt.Sprintf(`%s%s
ORDER BY %s
LIMIT ? OFFSET ?
`, questionColumns, where, order), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	questions := make([]model.Question, 0, limit)
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, err
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

func (r *repo) CountQuestions(ctx context.Context, filter store.QuestionFilter) (int, error) {
	where, args := questionWhere(filter)
	var count int
	err := r.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM questions q `+where, args...).Scan(&count)
	return count, err
}

func (r *repo) DeleteQuestion(ctx context.Context, id int64) error {
	res, err := r.q.ExecContext(ctx, `DELETE FROM questions WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func questionWhere(filter store.QuestionFilter) (string, []any) {
	var clauses []string
	var args []any
	if search := strings.TrimSpace(filter.Search); search != "" {
		pattern := "%" + escapeLike(strings.ToLower(search)) + "%"
		clauses = append(clauses, `(unicode_lower(q.positive_outcome) LIKE ? ESCAPE '\' OR unicode_lower(q.negative_outcome) LIKE ? ESCAPE '\')`)
		args = append(args, pattern, pattern)
	}
	if filter.AuthorID > 0 {
		clauses = append(clauses, "q.author_id = ?")
		args = append(args, filter.AuthorID)
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return "WHERE " + strings.Join(clauses, " AND "), args
}

// Comments

func (r *repo) CreateComment(ctx context.Context, comment *model.Comment) (int64, error) {
	res, err := r.q.ExecContext(ctx, `
INSERT INTO comments (question_id, user_id, content, created_at, updated_at)
VALUES (?, ?, ?, ?, ?)
`, comment.QuestionID, comment.UserID, comment.Content, comment.CreatedAt.Unix(), comment.UpdatedAt.Unix())
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (r *repo) GetComment(ctx context.Context, id int64) (model.Comment, error) {
	row := r.q.QueryRowContext(ctx, `
SELECT c.id, c.question_id, c.user_id, u.name, c.content, c.created_at, c.updated_at
FROM comments c
LEFT JOIN users u ON u.id = c.user_id
WHERE c.id = ?
`, id)
	return scanComment(row)
}

func (r *repo) ListCommentsByQuestion(ctx context.Context, questionID int64, opts store.CommentListOpts) ([]model.Comment, error) {
	limit := clamp(opts.Limit, 1, 100)
	offset := opts.Offset
	if offset < 0 {
		offset = 0
	}
	rows, err := r.q.QueryContext(ctx, `
SELECT c.id, c.question_id, c.user_id, u.name, c.content, c.created_at, c.updated_at
FROM comments c
LEFT JOIN users u ON u.id = c.user_id
WHERE c.question_id = ?
ORDER BY c.created_at DESC, c.id DESC
LIMIT ? OFFSET ?
`, questionID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	comments := make([]model.Comment, 0, limit)
	for rows.Next() {
		c, err := scanComment(rows)
		if err != nil {
			return nil, err
		}
		comments = append(comments, c)
	}
	return comments, rows.Err()
}

func (r *repo) CountCommentsByQuestion(ctx context.Context, questionID int64) (int, error) {
	var count int
	err := r.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM comments WHERE question_id = ?`, questionID).Scan(&count)
	return count, err
}

func (r *repo) DeleteComment(ctx context.Context, id int64) error {
	res, err := r.q.ExecContext(ctx, `DELETE FROM comments WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (r *repo) DeleteCommentsByQuestion(ctx context.Context, questionID int64) (int64, error) {
	res, err := r.q.ExecContext(ctx, `DELETE FROM comments WHERE question_id = ?`, questionID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Votes

func (r *repo) UpsertVote(ctx context.Context, vote *model.Vote) error {
	row := r.q.QueryRowContext(ctx, `
INSERT INTO votes (question_id, user_id, choice, created_at)
VALUES (?, ?, ?, ?)
ON CONFLICT(user_id, question_id) DO UPDATE SET choice = excluded.choice
RETURNING id, created_at
`, vote.QuestionID, vote.UserID, string(vote.Choice), vote.CreatedAt.Unix())
	var created int64
	if err := row.Scan(&vote.ID, &created); err != nil {
		return err
	}
	vote.CreatedAt = time.Unix(created, 0)
	return nil
}

func (r *repo) GetVote(ctx context.Context, questionID, userID int64) (model.Vote, error) {
	row := r.q.QueryRowContext(ctx, `
SELECT id, question_id, user_id, choice, created_at
FROM votes
WHERE question_id = ? AND user_id = ?
`, questionID, userID)
	var v model.Vote
	var choice string
	var created int64
	if err := row.Scan(&v.ID, &v.QuestionID, &v.UserID, &choice, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Vote{}, store.ErrNotFound
		}
		return model.Vote{}, err
	}
	v.Choice = model.Choice(choice)
	v.CreatedAt = time.Unix(created, 0)
	return v, nil
}

func (r *repo) CountVotesByChoice(ctx context.Context, questionID int64) (map[model.Choice]int, error) {
	rows, err := r.q.QueryContext(ctx, `
SELECT choice, COUNT(*) FROM votes WHERE question_id = ? GROUP BY choice
`, questionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[model.Choice]int)
	for rows.Next() {
		var choice string
		var n int
		if err := rows.Scan(&choice, &n); err != nil {
			return nil, err
		}
		counts[model.Choice(choice)] = n
	}
	return counts, rows.Err()
}

func (r *repo) DeleteVotesByQuestion(ctx context.Context, questionID int64) (int64, error) {
	res, err := r.q.ExecContext(ctx, `DELETE FROM votes WHERE question_id = ?`, questionID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

type scanner interface{ Scan(dest ...any) error }

func scanUser(row scanner) (model.User, error) {
	var u model.User
	var name sql.NullString
	var created int64
	if err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &name, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.User{}, store.ErrNotFound
		}
		return model.User{}, err
	}
	if name.Valid {
		u.Name = name.String
	}
	u.CreatedAt = time.Unix(created, 0)
	return u, nil
}

func scanQuestion(row scanner) (model.Question, error) {
	var q model.Question
	var authorName sql.NullString
	var created, updated int64
	if err := row.Scan(&q.ID, &q.PositiveOutcome, &q.NegativeOutcome, &q.AuthorID, &authorName, &q.VoteCount, &q.CommentCount, &created, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Question{}, store.ErrNotFound
		}
		return model.Question{}, err
	}
	if authorName.Valid {
		q.AuthorName = authorName.String
	}
	q.CreatedAt = time.Unix(created, 0)
	q.UpdatedAt = time.Unix(updated, 0)
	return q, nil
}

func scanComment(row scanner) (model.Comment, error) {
	var c model.Comment
	var authorName sql.NullString
	var created, updated int64
	if err := row.Scan(&c.ID, &c.QuestionID, &c.UserID, &authorName, &c.Content, &created, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Comment{}, store.ErrNotFound
		}
		return model.Comment{}, err
	}
	if authorName.Valid {
		c.AuthorName = authorName.String
	}
	c.CreatedAt = time.Unix(created, 0)
	c.UpdatedAt = time.Unix(updated, 0)
	return c, nil
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func nullIfEmpty(s string) any {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return s
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "PRIMARY KEY")
}
