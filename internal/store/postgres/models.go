package postgres

import (
	"time"

	"github.com/alphabot-ai/pressbutton/internal/model"
)

type User struct {
	ID           int64     `gorm:"primaryKey"`
	Email        string    `gorm:"size:320;uniqueIndex:idx_users_email;not null"`
	PasswordHash string    `gorm:"size:100;not null"`
	Name         *string   `gorm:"size:100"`
	CreatedAt    time.Time `gorm:"not null"`
}

type Question struct {
	ID              int64     `gorm:"primaryKey"`
	PositiveOutcome string    `gorm:"type:text;not null"`
	NegativeOutcome string    `gorm:"type:text;not null"`
	AuthorID        int64     `gorm:"index;not null"`
	Author          *User     `gorm:"foreignKey:AuthorID"`
	CreatedAt       time.Time `gorm:"index;not null"`
	UpdatedAt       time.Time `gorm:"not null"`
	Comments        []Comment
	Votes           []Vote
}

type Comment struct {
	ID         int64     `gorm:"primaryKey"`
	QuestionID int64     `gorm:"index;not null"`
	UserID     int64     `gorm:"index;not null"`
	User       *User     `gorm:"foreignKey:UserID"`
	Content    string    `gorm:"size:1000;not null"`
	CreatedAt  time.Time `gorm:"not null"`
	UpdatedAt  time.Time `gorm:"not null"`
}

type Vote struct {
	ID         int64     `gorm:"primaryKey"`
	QuestionID int64     `gorm:"index;not null;uniqueIndex:idx_votes_user_question,priority:2"`
	UserID     int64     `gorm:"not null;uniqueIndex:idx_votes_user_question,priority:1"`
	User       *User     `gorm:"foreignKey:UserID"`
	Choice     string    `gorm:"size:16;not null"`
	CreatedAt  time.Time `gorm:"not null"`
}

// questionRow is the listing projection with aggregate columns.
type questionRow struct {
	ID              int64
	PositiveOutcome string
	NegativeOutcome string
	AuthorID        int64
	AuthorName      *string
	VoteCount       int
	CommentCount    int
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (r questionRow) toModel() model.Question {
	q := model.Question{
		ID:              r.ID,
		PositiveOutcome: r.PositiveOutcome,
		NegativeOutcome: r.NegativeOutcome,
		AuthorID:        r.AuthorID,
		VoteCount:       r.VoteCount,
		CommentCount:    r.CommentCount,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}
	if r.AuthorName != nil {
		q.AuthorName = *r.AuthorName
	}
	return q
}

type commentRow struct {
	ID         int64
	QuestionID int64
	UserID     int64
	AuthorName *string
	Content    string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (r commentRow) toModel() model.Comment {
	c := model.Comment{
		ID:         r.ID,
		QuestionID: r.QuestionID,
		UserID:     r.UserID,
		Content:    r.Content,
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
	}
	if r.AuthorName != nil {
		c.AuthorName = *r.AuthorName
	}
	return c
}

func (u User) toModel() model.User {
	out := model.User{
		ID:           u.ID,
		Email:        u.Email,
		PasswordHash: u.PasswordHash,
		CreatedAt:    u.CreatedAt,
	}
	if u.Name != nil {
		out.Name = *u.Name
	}
	return out
}

func (v Vote) toModel() model.Vote {
	return model.Vote{
		ID:         v.ID,
		QuestionID: v.QuestionID,
		UserID:     v.UserID,
		Choice:     model.Choice(v.Choice),
		CreatedAt:  v.CreatedAt,
	}
}
